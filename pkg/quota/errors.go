package quota

import (
	"errors"
	"fmt"
)

// ExceededError reports a failed quota check with the observed numbers
type ExceededError struct {
	ResourceType string
	UserID       string
	Requested    int64
	Used         int64
	Limit        int64
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s: used %d + requested %d > limit %d",
		e.ResourceType, e.Used, e.Requested, e.Limit)
}

// IsQuotaExceeded checks if an error is a quota exceeded error
func IsQuotaExceeded(err error) bool {
	var target *ExceededError
	return errors.As(err, &target)
}
