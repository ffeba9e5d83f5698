package quota

import (
	"fmt"
	"time"
)

// Period is the reset cadence of a quota.
type Period string

const (
	PeriodDay      Period = "day"
	PeriodMonth    Period = "month"
	PeriodYear     Period = "year"
	PeriodInfinite Period = "infinite"
)

// ParsePeriod converts an external period string to a Period.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case PeriodDay, PeriodMonth, PeriodYear, PeriodInfinite:
		return Period(s), nil
	}
	return "", fmt.Errorf("unknown quota period %q", s)
}

// Config is the quota configuration for a single resource type.
// ResetDay anchors month periods to a day-of-month and year periods to a
// day-of-January; nil means the period rolls over on calendar boundaries
// relative to the usage record's period start.
type Config struct {
	Limit    int64  `json:"limit"`
	Period   Period `json:"period"`
	ResetDay *int   `json:"reset_day,omitempty"`
}

func (c *Config) clone() *Config {
	out := *c
	if c.ResetDay != nil {
		day := *c.ResetDay
		out.ResetDay = &day
	}
	return &out
}

// Usage is one user's consumption counter for a resource type within the
// current period. Used never goes below zero.
type Usage struct {
	Used        int64     `json:"used"`
	PeriodStart time.Time `json:"period_start"`
	LastUpdated time.Time `json:"last_updated"`
}

// Status is the point-in-time quota standing for a (resource type, user)
// pair. HasQuota is false when no configuration exists for the resource
// type, in which case the remaining fields are zero.
type Status struct {
	ResourceType string     `json:"resource_type"`
	UserID       string     `json:"user_id"`
	HasQuota     bool       `json:"has_quota"`
	Limit        int64      `json:"limit,omitempty"`
	Used         int64      `json:"used,omitempty"`
	Remaining    int64      `json:"remaining,omitempty"`
	Percentage   float64    `json:"percentage,omitempty"`
	Period       Period     `json:"period,omitempty"`
	PeriodStart  *time.Time `json:"period_start,omitempty"`
	NextReset    *time.Time `json:"next_reset,omitempty"`
	ResetDay     *int       `json:"reset_day,omitempty"`
}
