package game

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmcleod/heist/puzzle"
	"github.com/jmcleod/heist/session"
	"github.com/jmcleod/heist/storage"
)

// DefaultFinalFlag is reported once a session holds every catalog flag.
const DefaultFinalFlag = "FLAG{bank_heist_complete}"

// FlagResult is the outcome of a flag submission. Already and Flag are only
// meaningful when Valid is true.
type FlagResult struct {
	Valid   bool
	Already bool
	Flag    string
}

// VaultStatus is derived from a session's flags on every check; it is never
// stored.
type VaultStatus struct {
	Opened    bool
	FinalFlag string
	// Missing lists the catalog flags the session still lacks, in catalog
	// order. Empty when Opened.
	Missing []string
}

// VaultService registers reward flags into a session and reports whether the
// vault opens.
type VaultService struct {
	catalog   *puzzle.Catalog
	repo      storage.Repository
	finalFlag string
}

// VaultOption configures a VaultService.
type VaultOption func(*VaultService)

// WithFinalFlag overrides the flag revealed when the vault opens.
func WithFinalFlag(flag string) VaultOption {
	return func(s *VaultService) {
		if flag != "" {
			s.finalFlag = flag
		}
	}
}

// NewVaultService constructs a VaultService.
func NewVaultService(catalog *puzzle.Catalog, repo storage.Repository, opts ...VaultOption) *VaultService {
	s := &VaultService{
		catalog:   catalog,
		repo:      repo,
		finalFlag: DefaultFinalFlag,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitFlag registers flag into the session when it is a catalog flag.
// Registering a flag twice is a no-op reported through Already.
func (s *VaultService) SubmitFlag(ctx context.Context, sess session.Session, flag string) (FlagResult, error) {
	flag = strings.TrimSpace(flag)
	if !s.catalog.HasFlag(flag) {
		return FlagResult{}, nil
	}
	added, err := s.repo.Add(ctx, sess.ID, flag)
	if err != nil {
		return FlagResult{}, fmt.Errorf("registering flag: %w", err)
	}
	return FlagResult{Valid: true, Already: !added, Flag: flag}, nil
}

// Check computes the vault status for the session.
func (s *VaultService) Check(ctx context.Context, sess session.Session) (VaultStatus, error) {
	have, err := s.repo.List(ctx, sess.ID)
	if err != nil {
		return VaultStatus{}, fmt.Errorf("loading session flags: %w", err)
	}
	held := make(map[string]struct{}, len(have))
	for _, f := range have {
		held[f] = struct{}{}
	}

	missing := []string{}
	for _, f := range s.catalog.Flags() {
		if _, ok := held[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return VaultStatus{Missing: missing}, nil
	}
	return VaultStatus{Opened: true, FinalFlag: s.finalFlag}, nil
}

// Flags returns the session's registered flags in registration order.
func (s *VaultService) Flags(ctx context.Context, sess session.Session) ([]string, error) {
	flags, err := s.repo.List(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("loading session flags: %w", err)
	}
	return flags, nil
}

// Reset discards every flag the session has registered. Callers end the
// session afterwards; its identifier must not be reused.
func (s *VaultService) Reset(ctx context.Context, sess session.Session) error {
	if err := s.repo.Delete(ctx, sess.ID); err != nil {
		return fmt.Errorf("resetting session: %w", err)
	}
	return nil
}
