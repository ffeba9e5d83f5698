package plans

import "time"

// Feature keys accepted by IsFeatureAllowed. Model and tool checks use
// the "model:" and "tool:" prefixes followed by the model or tool name.
const (
	FeatureModelPrefix = "model:"
	FeatureToolPrefix  = "tool:"

	FeatureFineTuning        = "fine-tuning"
	FeatureCustomPrompts     = "custom-prompts"
	FeatureTeamCollaboration = "team-collaboration"
	FeatureAPIAccess         = "api-access"
	FeatureWebhook           = "webhook"
	FeatureAdvancedAnalytics = "advanced-analytics"
)

// FreePlanID is the fallback plan for users without an active
// subscription.
const FreePlanID = "free"

// ResourceLimits caps a plan's resource consumption.
type ResourceLimits struct {
	MaxRequestsPerDay     int64   `json:"max_requests_per_day"`
	MaxTokensPerRequest   int64   `json:"max_tokens_per_request"`
	MaxTokensPerDay       int64   `json:"max_tokens_per_day"`
	MaxFilesStorage       int     `json:"max_files_storage"`
	MaxFileSizeMB         float64 `json:"max_file_size_mb"`
	MaxConcurrentRequests int     `json:"max_concurrent_requests"`
	PriorityQueue         bool    `json:"priority_queue"`
}

// DefaultResourceLimits returns the limits applied when a plan does not
// specify its own.
func DefaultResourceLimits() ResourceLimits {
	return ResourceLimits{
		MaxRequestsPerDay:     100,
		MaxTokensPerRequest:   4000,
		MaxTokensPerDay:       100000,
		MaxFilesStorage:       10,
		MaxFileSizeMB:         5.0,
		MaxConcurrentRequests: 2,
	}
}

// FeatureAccess declares what a plan's subscribers may use. AllowedModels
// and AllowedTools are allow-lists; a "*" member means everything.
type FeatureAccess struct {
	AllowedModels     []string `json:"allowed_models"`
	AllowedTools      []string `json:"allowed_tools"`
	FineTuning        bool     `json:"fine_tuning_allowed"`
	CustomPrompts     bool     `json:"custom_prompts_allowed"`
	TeamCollaboration bool     `json:"team_collaboration"`
	APIAccess         bool     `json:"api_access"`
	WebhookSupport    bool     `json:"webhook_support"`
	AdvancedAnalytics bool     `json:"advanced_analytics"`
}

// Plan is a service tier: resource limits, feature access, the base
// permission set its subscribers carry, and pricing.
type Plan struct {
	PlanID          string         `json:"plan_id"`
	Name            string         `json:"name"`
	Description     string         `json:"description,omitempty"`
	IsActive        bool           `json:"is_active"`
	IsPublic        bool           `json:"is_public"`
	ResourceLimits  ResourceLimits `json:"resource_limits"`
	FeatureAccess   FeatureAccess  `json:"feature_access"`
	BasePermissions []string       `json:"base_permissions"`
	PriceMonthly    float64        `json:"price_monthly"`
	PriceYearly     float64        `json:"price_yearly"`
	TrialDays       int            `json:"trial_days"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func (p *Plan) clone() *Plan {
	out := *p
	out.FeatureAccess.AllowedModels = append([]string(nil), p.FeatureAccess.AllowedModels...)
	out.FeatureAccess.AllowedTools = append([]string(nil), p.FeatureAccess.AllowedTools...)
	out.BasePermissions = append([]string(nil), p.BasePermissions...)
	return &out
}

// Subscription binds a user to a plan. A nil EndDate never expires. At
// most one subscription per user is active at a time.
type Subscription struct {
	SubscriptionID string     `json:"subscription_id"`
	UserID         string     `json:"user_id"`
	PlanID         string     `json:"plan_id"`
	IsActive       bool       `json:"is_active"`
	IsTrial        bool       `json:"is_trial"`
	StartDate      time.Time  `json:"start_date"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	PaymentID      string     `json:"payment_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (s *Subscription) clone() *Subscription {
	out := *s
	if s.EndDate != nil {
		end := *s.EndDate
		out.EndDate = &end
	}
	return &out
}

func (s *Subscription) expired(now time.Time) bool {
	return s.EndDate != nil && s.EndDate.Before(now)
}

// PlanOptions carries the optional CreatePlan attributes.
type PlanOptions struct {
	Description     string
	Active          bool
	Public          bool
	ResourceLimits  ResourceLimits
	FeatureAccess   FeatureAccess
	BasePermissions []string
	PriceMonthly    float64
	PriceYearly     float64
	TrialDays       int
}

// DefaultPlanOptions returns options for an active, public plan with the
// default resource limits.
func DefaultPlanOptions() PlanOptions {
	return PlanOptions{
		Active:         true,
		Public:         true,
		ResourceLimits: DefaultResourceLimits(),
	}
}

// PlanUpdate applies only its non-nil fields.
type PlanUpdate struct {
	Name            *string
	Description     *string
	IsActive        *bool
	IsPublic        *bool
	ResourceLimits  *ResourceLimits
	FeatureAccess   *FeatureAccess
	BasePermissions []string
	PriceMonthly    *float64
	PriceYearly     *float64
	TrialDays       *int
}

// PlanFilter narrows ListPlans results.
type PlanFilter struct {
	ActiveOnly bool
	PublicOnly bool
}

// SubscribeOptions carries the optional SubscribeUser attributes. Months
// of 0 with Trial false means the subscription never expires.
type SubscribeOptions struct {
	Trial     bool
	Months    int
	PaymentID string
}
