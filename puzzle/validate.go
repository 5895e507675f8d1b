package puzzle

import (
	"encoding/base64"
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"
)

// MaxIDLength bounds puzzle identifiers, which appear in URL paths.
const MaxIDLength = 64

// ErrInvalidCatalog is matched by every ValidationError.
var ErrInvalidCatalog = errors.New("invalid catalog")

// ValidationError describes a record that breaks a catalog invariant.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return "invalid catalog: " + e.Msg }

func (e *ValidationError) Unwrap() error { return ErrInvalidCatalog }

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

func validateID(id string) error {
	if id == "" {
		return validationErrorf("puzzle id must not be empty")
	}
	if len(id) > MaxIDLength {
		return validationErrorf("puzzle id %q exceeds maximum length of %d", id, MaxIDLength)
	}
	if !utf8.ValidString(id) {
		return validationErrorf("puzzle id contains invalid UTF-8")
	}
	for _, r := range id {
		if r == '/' || r == '?' || r == '#' {
			return validationErrorf("puzzle id %q contains forbidden character %q", id, r)
		}
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return validationErrorf("puzzle id %q contains control or space character", id)
		}
	}
	return nil
}

// validateRecord checks a single record after its match strategy has been
// resolved.
func validateRecord(r Record) error {
	if err := validateID(r.ID); err != nil {
		return err
	}
	if r.Title == "" {
		return validationErrorf("puzzle %q has no title", r.ID)
	}
	if !r.Type.Valid() {
		return validationErrorf("puzzle %q has unknown type %q", r.ID, r.Type)
	}
	if r.Solution == "" {
		return validationErrorf("puzzle %q has no solution", r.ID)
	}
	if !flagShape.MatchString(r.Flag) {
		return validationErrorf("puzzle %q flag %q is not of the form FLAG{...}", r.ID, r.Flag)
	}
	if !r.Match.Valid() {
		return validationErrorf("puzzle %q has unknown match strategy %q", r.ID, r.Match)
	}
	if r.Match == MatchDigest && !digestShape.MatchString(r.Solution) {
		return validationErrorf("puzzle %q uses digest matching but its solution is not a hex MD5 digest", r.ID)
	}

	field := r.Type.ArtifactField()
	switch {
	case field != "" && r.Artifact == "":
		return validationErrorf("puzzle %q of type %q requires an artifact", r.ID, r.Type)
	case field == "" && r.Artifact != "":
		return validationErrorf("puzzle %q of type %q must not carry an artifact", r.ID, r.Type)
	}
	if r.Type == TypeLogs {
		if _, err := base64.StdEncoding.DecodeString(r.Artifact); err != nil {
			return validationErrorf("puzzle %q artifact is not valid base64: %v", r.ID, err)
		}
	}
	return nil
}
