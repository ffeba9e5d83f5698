package delegation

import "time"

// PlatformAny is the platform wildcard on a rule, matching any platform
const PlatformAny = "*"

// PermissionAll on a rule's delegated list means any permission may be
// granted under it; on a grant it satisfies every permission check.
const PermissionAll = "*"

// Rule bounds what a platform may delegate to its users
type Rule struct {
	RuleID      string   `json:"rule_id"`
	PlatformID  string   `json:"platform_id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Delegated   []string `json:"delegated_permissions"`

	// MaxDepth caps re-delegation hops. The value is stored and surfaced
	// but delegation is single-hop; nothing consults it.
	MaxDepth        int  `json:"max_delegation_depth"`
	RequireApproval bool `json:"require_approval"`
	IsActive        bool `json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string    `json:"created_by,omitempty"`
}

func (r *Rule) clone() *Rule {
	out := *r
	out.Delegated = append([]string(nil), r.Delegated...)
	return &out
}

// Grant awards concrete permissions to one user under one platform. A
// grant anchored to a rule requiring approval stays inactive until
// approved. A nil ExpiresAt never expires.
type Grant struct {
	GrantID    string   `json:"grant_id"`
	PlatformID string   `json:"platform_id"`
	UserID     string   `json:"user_id"`
	Granted    []string `json:"granted_permissions"`
	RuleID     string   `json:"rule_id,omitempty"`
	IsActive   bool     `json:"is_active"`

	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	CreatedBy  string     `json:"created_by,omitempty"`
	ApprovedBy string     `json:"approved_by,omitempty"`
}

func (g *Grant) clone() *Grant {
	out := *g
	out.Granted = append([]string(nil), g.Granted...)
	if g.ExpiresAt != nil {
		t := *g.ExpiresAt
		out.ExpiresAt = &t
	}
	return &out
}

func (g *Grant) expired(now time.Time) bool {
	return g.ExpiresAt != nil && g.ExpiresAt.Before(now)
}

// RuleUpdate carries optional field updates; nil fields are untouched
type RuleUpdate struct {
	PlatformID      *string
	Name            *string
	Description     *string
	Delegated       []string
	MaxDepth        *int
	RequireApproval *bool
	IsActive        *bool
}

// RuleFilter narrows ListRules; ActiveOnly defaults to true in callers
type RuleFilter struct {
	PlatformID string
	ActiveOnly bool
}

// GrantFilter narrows ListGrants
type GrantFilter struct {
	PlatformID string
	UserID     string
	RuleID     string
	ActiveOnly bool
}
