package puzzle

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

// Match selects how a submitted answer is compared with a record's solution.
type Match string

const (
	// MatchExact requires byte-for-byte equality.
	MatchExact Match = "exact"
	// MatchFold compares Unicode case-folded strings.
	MatchFold Match = "fold"
	// MatchDigest compares the hex MD5 digest of the answer with the solution.
	MatchDigest Match = "digest"
)

// Valid reports whether m is a known strategy.
func (m Match) Valid() bool {
	switch m {
	case MatchExact, MatchFold, MatchDigest:
		return true
	default:
		return false
	}
}

// Matches reports whether answer satisfies solution under m. Surrounding
// whitespace on the answer is always ignored.
func (m Match) Matches(solution, answer string) bool {
	answer = strings.TrimSpace(answer)
	switch m {
	case MatchExact:
		return constantTimeEqual(answer, solution)
	case MatchFold:
		// A Caser is stateful; never share one between goroutines.
		return constantTimeEqual(cases.Fold().String(answer), cases.Fold().String(strings.TrimSpace(solution)))
	case MatchDigest:
		sum := md5.Sum([]byte(answer))
		return constantTimeEqual(hex.EncodeToString(sum[:]), strings.ToLower(solution))
	default:
		return false
	}
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

var (
	flagShape    = regexp.MustCompile(`^FLAG\{.*\}$`)
	numericShape = regexp.MustCompile(`^[0-9]+$`)
	sessionShape = regexp.MustCompile(`^sess_[0-9]+$`)
	wordShape    = regexp.MustCompile(`^[A-Z]{4}$`)
	digestShape  = regexp.MustCompile(`^[0-9a-f]{32}$`)
)

// InferMatch derives a strategy from the shape of a solution. It is only
// consulted for catalog records that do not declare one.
func InferMatch(t Type, solution string) Match {
	switch {
	case flagShape.MatchString(solution):
		return MatchExact
	case numericShape.MatchString(solution), sessionShape.MatchString(solution):
		return MatchExact
	case wordShape.MatchString(solution):
		return MatchFold
	case t == TypePassword && digestShape.MatchString(solution):
		return MatchDigest
	default:
		return MatchFold
	}
}
