package trigger

import (
	"context"

	"github.com/fluxrelay/fluxrelay/pkg/relayerr"
)

// AdmissionLimits configures the two concurrency caps checked before a new
// execution row is created.
type AdmissionLimits struct {
	PerUser int
	Global  int
}

// admit checks the per-user and global active-execution counters against
// limits, returning a *relayerr.ConcurrencyError carrying both counts when
// either cap is exceeded.
func (s *Service) admit(ctx context.Context, userID string) error {
	perUser, global, err := s.store.Executions.CountActive(ctx, userID)
	if err != nil {
		return err
	}
	if perUser >= s.limits.PerUser {
		return &relayerr.ConcurrencyError{ActiveUser: perUser, ActiveGlobal: global, Limit: s.limits.PerUser, Scope: "user"}
	}
	if global >= s.limits.Global {
		return &relayerr.ConcurrencyError{ActiveUser: perUser, ActiveGlobal: global, Limit: s.limits.Global, Scope: "global"}
	}
	return nil
}
