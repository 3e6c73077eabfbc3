package reconcile

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// RollbackError is returned by UpdateWithRollback when the forward action
// failed and the compensating action failed too. It unwraps to both errors.
type RollbackError struct {
	Label    string
	Forward  error
	Rollback error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("%s: rollback failed: %v (after: %v)", e.Label, e.Rollback, e.Forward)
}

// Unwrap returns the rollback error first, then the forward error.
func (e *RollbackError) Unwrap() []error {
	return []error{e.Rollback, e.Forward}
}

// UpdateWithRollback runs forward. If it fails and shouldRollback is set,
// rollback runs before the error is returned. This is a best-effort
// compensating action: whatever forward did before failing is left alone.
//
// The forward error is returned unchanged when rollback is skipped or
// succeeds; a *RollbackError is returned when rollback fails.
func UpdateWithRollback(ctx context.Context, label string, shouldRollback bool, forward, rollback func(ctx context.Context) error) error {
	err := forward(ctx)
	if err == nil {
		return nil
	}

	if !shouldRollback || rollback == nil {
		log.Error().Err(err).Str("update", label).Msg("Update failed, no rollback")
		return err
	}

	log.Warn().Err(err).Str("update", label).Msg("Update failed, rolling back")
	if rbErr := rollback(ctx); rbErr != nil {
		log.Error().
			Err(rbErr).
			AnErr("forward_error", err).
			Str("update", label).
			Msg("Rollback failed")
		return &RollbackError{Label: label, Forward: err, Rollback: rbErr}
	}

	log.Info().Str("update", label).Msg("Rollback completed")
	return err
}
