package warmup

import (
	"errors"
	"fmt"
)

// Sentinel errors for the warm-up engine.
var (
	ErrConfigNotFound     = errors.New("warmup not found for instance")
	ErrConfigExists       = errors.New("warmup already started for instance")
	ErrStageNotFound      = errors.New("stage not found in catalog")
	ErrInvalidContacts    = errors.New("at least one contact is required")
	ErrMessageNotFound    = errors.New("scheduled message not found")
	ErrMessageNotPending  = errors.New("scheduled message is not pending")
	ErrDailyLimitExceeded = errors.New("daily limit reached")
	ErrUnknownContact     = errors.New("contact is not part of the warm-up")
)

// DailyLimitError carries the counts that explain a refused send.
type DailyLimitError struct {
	Instance  string
	Limit     int
	SentToday int
	InFlight  int
}

func (e *DailyLimitError) Error() string {
	return fmt.Sprintf("daily limit reached for %s: %d/%d sent (%d in flight)",
		e.Instance, e.SentToday, e.Limit, e.InFlight)
}

// Is lets errors.Is(err, ErrDailyLimitExceeded) match.
func (e *DailyLimitError) Is(target error) bool {
	return target == ErrDailyLimitExceeded
}
