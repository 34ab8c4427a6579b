package limits

import (
	"fmt"
	"time"

	dErrors "celebrate/pkg/domain-errors"
)

// ExceededError reports a blocked pledge with the allowance left and the
// date it resets.
type ExceededError struct {
	Result Result
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("pledge exceeds %s: remaining %s until %s",
		e.Result.Reason, e.Result.RemainingLimit, e.Result.ResetsAt.Format(time.DateOnly))
}

// Unwrap exposes the domain code so transports map it without knowing this type.
func (e *ExceededError) Unwrap() error {
	return dErrors.New(dErrors.CodeLimitExceeded, e.Error())
}

// ErrorDetails adds the fields a client needs to offer an auto-capped amount.
func (e *ExceededError) ErrorDetails() map[string]any {
	return map[string]any{
		"remaining_limit": e.Result.RemainingLimit.Cents(),
		"resets_at":       e.Result.ResetsAt.UTC().Format(time.RFC3339),
		"reason":          string(e.Result.Reason),
	}
}
