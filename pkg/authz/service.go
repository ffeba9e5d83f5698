package authz

import (
	"context"
	"sort"

	"github.com/platinummonkey/warden/pkg/acl"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/delegation"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/plans"
	"github.com/platinummonkey/warden/pkg/quota"
	"github.com/platinummonkey/warden/pkg/rbac"
)

// Permission sources reported in the permission-check metric.
const (
	sourceSubject    = "subject"
	sourcePlan       = "plan"
	sourceDelegation = "delegation"
	sourceNone       = "none"
)

// Config wires a Service. Identity is required; Teams may be nil when
// team-scoped ACL grants are unused. Metrics may be nil.
type Config struct {
	Identity   auth.IdentityProvider
	Teams      auth.TeamDirectory
	ACL        *acl.Engine
	Delegation *delegation.Engine
	Quota      *quota.Engine
	Plans      *plans.Engine
	Logger     *observability.Logger
	Metrics    *observability.Metrics
}

// Service is the decision facade over the policy engines. Callers hand
// it an authenticated subject id and ask yes/no questions; the engines
// underneath stay individually addressable for administration.
type Service struct {
	identity   auth.IdentityProvider
	teams      auth.TeamDirectory
	acl        *acl.Engine
	delegation *delegation.Engine
	quota      *quota.Engine
	plans      *plans.Engine
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// NewService builds the facade.
func NewService(cfg Config) *Service {
	s := &Service{
		identity:   cfg.Identity,
		teams:      cfg.Teams,
		acl:        cfg.ACL,
		delegation: cfg.Delegation,
		quota:      cfg.Quota,
		plans:      cfg.Plans,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}
	if cfg.Metrics != nil {
		s.quota.SetMetrics(cfg.Metrics)
	}
	return s
}

// Start begins the quota engine's background sweep.
func (s *Service) Start() {
	s.quota.Start()
}

// Stop halts the sweep and flushes quota state.
func (s *Service) Stop() {
	s.quota.Stop()
}

// CheckPermission reports whether the subject's effective permission set
// satisfies the permission. The set is assembled from the subject's
// claimed permissions and role defaults, then the base permissions of
// its plan, then (when platformID is non-empty) its delegated grants. A
// granted "*" satisfies everything.
func (s *Service) CheckPermission(ctx context.Context, subjectID, permission, platformID string) (bool, error) {
	subject, err := s.identity.Subject(ctx, subjectID)
	if err != nil {
		s.recordPermission(sourceNone, false)
		return false, err
	}

	if satisfies(permission, subject.EffectivePermissions()) {
		s.recordPermission(sourceSubject, true)
		return true, nil
	}
	if satisfies(permission, s.plans.UserPermissions(subjectID)) {
		s.recordPermission(sourcePlan, true)
		return true, nil
	}
	if platformID != "" && s.delegation.CheckPermission(platformID, subjectID, permission) {
		s.recordPermission(sourceDelegation, true)
		return true, nil
	}

	s.recordPermission(sourceNone, false)
	s.logger.WithFields(map[string]interface{}{
		"subject_id": subjectID,
		"permission": permission,
	}).Debug("permission denied")
	return false, nil
}

// CheckResourceAccess reports whether the subject holds at least the
// required access level on a resource, including through its teams.
func (s *Service) CheckResourceAccess(ctx context.Context, subjectID string, resourceType acl.ResourceType, resourceID string, required acl.AccessLevel) (bool, error) {
	teamIDs, err := s.teamsFor(ctx, subjectID)
	if err != nil {
		s.recordAccess(resourceType, false)
		return false, err
	}

	allowed := s.acl.CheckAccess(subjectID, resourceType, resourceID, required, teamIDs)
	s.recordAccess(resourceType, allowed)
	return allowed, nil
}

// UserPermissions returns the subject's full effective permission set
// for introspection: claimed, role-default, plan-base, and (when
// platformID is non-empty) delegated permissions, sorted.
func (s *Service) UserPermissions(ctx context.Context, subjectID, platformID string) ([]string, error) {
	subject, err := s.identity.Subject(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	for _, p := range subject.EffectivePermissions() {
		seen[p] = struct{}{}
	}
	for _, p := range s.plans.UserPermissions(subjectID) {
		seen[p] = struct{}{}
	}
	if platformID != "" {
		for _, p := range s.delegation.UserPermissions(platformID, subjectID) {
			seen[p] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

// FeatureAllowed reports whether the user's plan grants a feature key.
func (s *Service) FeatureAllowed(userID, feature string) bool {
	allowed := s.plans.IsFeatureAllowed(userID, feature)
	if s.metrics != nil {
		s.metrics.FeatureChecksTotal.WithLabelValues(result(allowed)).Inc()
	}
	return allowed
}

// ConsumeQuota checks the user's budget for a resource type and, when
// within it, records the consumption. The user's plan limits override
// the engine defaults for the resource types they cover.
func (s *Service) ConsumeQuota(userID, resourceType string, amount int64) bool {
	limit := s.planLimit(userID, resourceType)
	if !s.quota.CheckQuota(resourceType, userID, amount, limit) {
		s.recordQuota(resourceType, false)
		return false
	}
	s.quota.IncreaseUsage(resourceType, userID, amount)
	s.recordQuota(resourceType, true)
	return true
}

// TryConsumeQuota is ConsumeQuota for callers that want the observed
// numbers on rejection; the returned error is a *quota.ExceededError.
func (s *Service) TryConsumeQuota(userID, resourceType string, amount int64) error {
	if s.ConsumeQuota(userID, resourceType, amount) {
		return nil
	}
	status := s.quota.Status(resourceType, userID, s.planLimit(userID, resourceType))
	return &quota.ExceededError{
		ResourceType: resourceType,
		UserID:       userID,
		Requested:    amount,
		Used:         status.Used,
		Limit:        status.Limit,
	}
}

// ReleaseQuota hands back previously consumed budget.
func (s *Service) ReleaseQuota(userID, resourceType string, amount int64) {
	s.quota.DecreaseUsage(resourceType, userID, amount)
}

// QuotaStatus reports the user's standing for a resource type under the
// plan-adjusted limit.
func (s *Service) QuotaStatus(userID, resourceType string) *quota.Status {
	return s.quota.Status(resourceType, userID, s.planLimit(userID, resourceType))
}

// RefreshGauges publishes the engines' current sizes. Wire it to a
// periodic schedule alongside the quota sweep.
func (s *Service) RefreshGauges() {
	if s.metrics == nil {
		return
	}
	s.metrics.ACLEntriesTotal.Set(float64(s.acl.Count()))
	s.metrics.DelegationGrantsActive.Set(float64(s.delegation.ActiveGrantCount()))
	s.metrics.SubscriptionsActiveTotal.Set(float64(s.plans.ActiveSubscriptionCount()))
}

// planLimit maps a quota resource type to the matching cap in the
// user's plan, or nil when the plan does not cover it.
func (s *Service) planLimit(userID, resourceType string) *int64 {
	limits := s.plans.UserResourceLimits(userID)
	switch resourceType {
	case "model_tokens":
		return &limits.MaxTokensPerDay
	case "api_calls":
		return &limits.MaxRequestsPerDay
	}
	return nil
}

func (s *Service) teamsFor(ctx context.Context, userID string) ([]string, error) {
	if s.teams == nil {
		return nil, nil
	}
	return s.teams.TeamsFor(ctx, userID)
}

func (s *Service) recordPermission(source string, allowed bool) {
	if s.metrics != nil {
		s.metrics.PermissionChecksTotal.WithLabelValues(source, result(allowed)).Inc()
	}
}

func (s *Service) recordAccess(resourceType acl.ResourceType, allowed bool) {
	if s.metrics != nil {
		s.metrics.AccessChecksTotal.WithLabelValues(string(resourceType), result(allowed)).Inc()
	}
}

func (s *Service) recordQuota(resourceType string, allowed bool) {
	if s.metrics != nil {
		s.metrics.QuotaChecksTotal.WithLabelValues(resourceType, result(allowed)).Inc()
	}
}

func satisfies(permission string, granted []string) bool {
	for _, p := range granted {
		if p == "*" {
			return true
		}
	}
	return rbac.Matches(permission, granted)
}

func result(allowed bool) string {
	if allowed {
		return "allow"
	}
	return "deny"
}
