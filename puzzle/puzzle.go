// Package puzzle defines the heist puzzle records and the read-only catalog
// that holds them.
package puzzle

// Type tags the kind of challenge a record describes.
type Type string

const (
	TypePassword Type = "password"
	TypeHash     Type = "hash"
	TypePhishing Type = "phishing"
	TypeEncrypt  Type = "encrypt"
	TypeLogs     Type = "logs"
	TypeFirewall Type = "firewall"
)

// Valid reports whether t is one of the known puzzle types.
func (t Type) Valid() bool {
	switch t {
	case TypePassword, TypeHash, TypePhishing, TypeEncrypt, TypeLogs, TypeFirewall:
		return true
	default:
		return false
	}
}

// ArtifactField returns the name under which a record of this type publishes
// its artifact, or "" when the type carries none.
func (t Type) ArtifactField() string {
	switch t {
	case TypePhishing:
		return "email"
	case TypeEncrypt:
		return "js_code"
	case TypeLogs:
		return "png_b64"
	default:
		return ""
	}
}

// Record is one catalog entry. Records are values; the catalog hands out
// copies so callers can never mutate shared state.
type Record struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Type        Type   `yaml:"type"`
	Description string `yaml:"description"`
	// Artifact is the email text, script source or base64 blob the player
	// works on. Only types with an ArtifactField carry one.
	Artifact string `yaml:"artifact,omitempty"`
	Solution string `yaml:"solution"`
	Flag     string `yaml:"flag"`
	Match    Match  `yaml:"match,omitempty"`
}

// Check reports whether answer solves the record.
func (r Record) Check(answer string) bool {
	return r.Match.Matches(r.Solution, answer)
}

// Summary returns the listing view of the record.
func (r Record) Summary() Summary {
	return Summary{ID: r.ID, Title: r.Title, Type: r.Type}
}

// Detail returns the player-facing view of the record.
func (r Record) Detail() Detail {
	d := Detail{
		ID:          r.ID,
		Title:       r.Title,
		Type:        r.Type,
		Description: r.Description,
	}
	if r.Type.ArtifactField() != "" {
		d.Artifact = r.Artifact
	}
	return d
}

// Summary is the safe listing view of a record.
type Summary struct {
	ID    string
	Title string
	Type  Type
}

// Detail is the safe single-puzzle view of a record. It never carries the
// solution or the flag.
type Detail struct {
	ID          string
	Title       string
	Type        Type
	Description string
	Artifact    string
}

// ArtifactField is a shorthand for d.Type.ArtifactField.
func (d Detail) ArtifactField() string {
	return d.Type.ArtifactField()
}
