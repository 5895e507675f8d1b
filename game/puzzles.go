// Package game implements the heist rules: answering puzzles, registering
// reward flags and opening the vault. Services are pure functions of the
// catalog, the flag store, the caller's session and the input.
package game

import (
	"fmt"

	"github.com/jmcleod/heist/puzzle"
)

// AnswerResult is the outcome of an answer submission. RewardFlag is set only
// when Correct is true.
type AnswerResult struct {
	Correct    bool
	RewardFlag string
}

// PuzzleService exposes safe views of the catalog and evaluates answers.
type PuzzleService struct {
	catalog *puzzle.Catalog
}

// NewPuzzleService constructs a PuzzleService over catalog.
func NewPuzzleService(catalog *puzzle.Catalog) *PuzzleService {
	return &PuzzleService{catalog: catalog}
}

// List returns every puzzle in catalog order without solutions, flags or
// artifacts.
func (s *PuzzleService) List() []puzzle.Summary {
	records := s.catalog.Records()
	out := make([]puzzle.Summary, len(records))
	for i, r := range records {
		out[i] = r.Summary()
	}
	return out
}

// Get returns the player-facing view of one puzzle.
func (s *PuzzleService) Get(id string) (puzzle.Detail, error) {
	r, ok := s.catalog.Lookup(id)
	if !ok {
		return puzzle.Detail{}, fmt.Errorf("%s: %w", id, ErrUnknownPuzzle)
	}
	return r.Detail(), nil
}

// SubmitAnswer checks answer against the puzzle's solution. A correct answer
// reveals the reward flag but does not register it; registration is a
// separate step on the VaultService. Submitting is free of side effects and
// may be repeated.
func (s *PuzzleService) SubmitAnswer(id, answer string) (AnswerResult, error) {
	r, ok := s.catalog.Lookup(id)
	if !ok {
		return AnswerResult{}, fmt.Errorf("%s: %w", id, ErrUnknownPuzzle)
	}
	if !r.Check(answer) {
		return AnswerResult{}, nil
	}
	return AnswerResult{Correct: true, RewardFlag: r.Flag}, nil
}
