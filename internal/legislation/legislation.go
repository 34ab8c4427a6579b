// Package legislation reports whether a bill's trigger condition has been met.
package legislation

import (
	"context"
	"fmt"

	"celebrate/pkg/domain"
)

// Status is the state of a bill's trigger condition.
type Status string

const (
	StatusPending   Status = "pending"
	StatusTriggered Status = "triggered"
	StatusFailed    Status = "failed"
)

// IsFinal reports whether the bill will not change status again.
func (s Status) IsFinal() bool { return s == StatusTriggered || s == StatusFailed }

func ParseStatus(v string) (Status, error) {
	switch s := Status(v); s {
	case StatusPending, StatusTriggered, StatusFailed:
		return s, nil
	default:
		return "", fmt.Errorf("unknown bill status %q", v)
	}
}

// Source is the legislative-status collaborator.
type Source interface {
	Status(ctx context.Context, billID domain.BillID) (Status, error)
}
