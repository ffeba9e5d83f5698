package authz

import (
	"context"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/acl"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/delegation"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/plans"
	"github.com/platinummonkey/warden/pkg/quota"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/storage"
)

type fixture struct {
	service  *Service
	identity *auth.StaticIdentityProvider
	teams    *auth.StaticTeamDirectory
	metrics  *observability.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	newStore := func() storage.Store {
		store, err := storage.NewFilesystemStore(t.TempDir())
		require.NoError(t, err)
		return store
	}

	aclEngine, err := acl.NewEngine(newStore(), logger)
	require.NoError(t, err)
	delegationEngine, err := delegation.NewEngine(newStore(), logger)
	require.NoError(t, err)
	quotaEngine, err := quota.NewEngine(newStore(), logger)
	require.NoError(t, err)
	planEngine, err := plans.NewEngine(newStore(), logger)
	require.NoError(t, err)

	identity := auth.NewStaticIdentityProvider()
	teams := auth.NewStaticTeamDirectory()
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	service := NewService(Config{
		Identity:   identity,
		Teams:      teams,
		ACL:        aclEngine,
		Delegation: delegationEngine,
		Quota:      quotaEngine,
		Plans:      planEngine,
		Logger:     logger,
		Metrics:    metrics,
	})
	return &fixture{service: service, identity: identity, teams: teams, metrics: metrics}
}

func TestCheckPermissionFromRoleDefaults(t *testing.T) {
	f := newFixture(t)
	f.identity.Put(&auth.Subject{ID: "u1", Roles: []rbac.Role{rbac.RoleUser}})

	allowed, err := f.service.CheckPermission(context.Background(), "u1", "agent.execute", "")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = f.service.CheckPermission(context.Background(), "u1", "system.admin", "")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestCheckPermissionFromClaimedWildcard(t *testing.T) {
	f := newFixture(t)
	f.identity.Put(&auth.Subject{ID: "u1", Permissions: []string{"content.*"}})

	allowed, err := f.service.CheckPermission(context.Background(), "u1", "content.publish", "")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestCheckPermissionFromPlan(t *testing.T) {
	f := newFixture(t)
	f.identity.Put(&auth.Subject{ID: "u1"})

	// the free plan's base permissions include content.read
	allowed, err := f.service.CheckPermission(context.Background(), "u1", "content.read", "")
	require.NoError(t, err)
	assert.True(t, allowed)

	assert.Equal(t, float64(1), testutil.ToFloat64(
		f.metrics.PermissionChecksTotal.WithLabelValues("plan", "allow")))
}

func TestCheckPermissionDelegated(t *testing.T) {
	f := newFixture(t)
	f.identity.Put(&auth.Subject{ID: "u1"})

	grantID := f.service.delegation.DelegatePermissions("p1", "u1", []string{"reports.view"}, delegation.DelegateOptions{})
	require.NotEmpty(t, grantID)

	allowed, err := f.service.CheckPermission(context.Background(), "u1", "reports.view", "p1")
	require.NoError(t, err)
	assert.True(t, allowed)

	// delegated grants only count when a platform is in scope
	allowed, err = f.service.CheckPermission(context.Background(), "u1", "reports.view", "")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestCheckPermissionUnknownSubject(t *testing.T) {
	f := newFixture(t)

	allowed, err := f.service.CheckPermission(context.Background(), "ghost", "content.read", "")
	assert.ErrorIs(t, err, auth.ErrUnknownSubject)
	assert.False(t, allowed)
}

func TestCheckResourceAccess(t *testing.T) {
	f := newFixture(t)
	f.identity.Put(&auth.Subject{ID: "alice"})
	f.identity.Put(&auth.Subject{ID: "bob"})

	require.NotEmpty(t, f.service.acl.CreateEntry(acl.ResourceProject, "proj-1", "alice", acl.DefaultEntryOptions()))

	allowed, err := f.service.CheckResourceAccess(context.Background(), "alice", acl.ResourceProject, "proj-1", acl.AccessOwner)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = f.service.CheckResourceAccess(context.Background(), "bob", acl.ResourceProject, "proj-1", acl.AccessRead)
	require.NoError(t, err)
	assert.False(t, allowed)

	// team-granted access resolves through the directory
	f.service.acl.SetTeamAccess(acl.ResourceProject, "proj-1", "team-1", acl.AccessWrite)
	f.teams.AddMember("team-1", "bob")

	allowed, err = f.service.CheckResourceAccess(context.Background(), "bob", acl.ResourceProject, "proj-1", acl.AccessWrite)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestUserPermissionsUnion(t *testing.T) {
	f := newFixture(t)
	f.identity.Put(&auth.Subject{ID: "u1", Roles: []rbac.Role{rbac.RoleUser}, Permissions: []string{"billing.view"}})

	grantID := f.service.delegation.DelegatePermissions("p1", "u1", []string{"reports.view"}, delegation.DelegateOptions{})
	require.NotEmpty(t, grantID)

	perms, err := f.service.UserPermissions(context.Background(), "u1", "p1")
	require.NoError(t, err)
	assert.Contains(t, perms, "billing.view")
	assert.Contains(t, perms, "agent.execute")
	assert.Contains(t, perms, "content.read") // free plan base
	assert.Contains(t, perms, "reports.view")
	assert.IsIncreasing(t, perms)
}

func TestFeatureAllowed(t *testing.T) {
	f := newFixture(t)

	assert.True(t, f.service.FeatureAllowed("u1", "model:gpt-3.5-turbo"))
	assert.False(t, f.service.FeatureAllowed("u1", plans.FeatureFineTuning))

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.FeatureChecksTotal.WithLabelValues("allow")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.FeatureChecksTotal.WithLabelValues("deny")))
}

func TestConsumeQuotaUsesPlanLimit(t *testing.T) {
	f := newFixture(t)

	// the free plan caps api_calls at 20/day, far below the engine default
	assert.True(t, f.service.ConsumeQuota("u1", "api_calls", 20))
	assert.False(t, f.service.ConsumeQuota("u1", "api_calls", 1))

	f.service.ReleaseQuota("u1", "api_calls", 5)
	assert.True(t, f.service.ConsumeQuota("u1", "api_calls", 5))

	assert.Equal(t, float64(1), testutil.ToFloat64(
		f.metrics.QuotaChecksTotal.WithLabelValues("api_calls", "deny")))
}

func TestTryConsumeQuotaReportsNumbers(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.service.TryConsumeQuota("u1", "api_calls", 18))

	err := f.service.TryConsumeQuota("u1", "api_calls", 5)
	require.Error(t, err)
	assert.True(t, quota.IsQuotaExceeded(err))

	var exceeded *quota.ExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, "api_calls", exceeded.ResourceType)
	assert.Equal(t, int64(18), exceeded.Used)
	assert.Equal(t, int64(5), exceeded.Requested)
	assert.Equal(t, int64(20), exceeded.Limit)
}

func TestQuotaStatusUsesPlanLimit(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.service.ConsumeQuota("u1", "api_calls", 5))

	status := f.service.QuotaStatus("u1", "api_calls")
	require.NotNil(t, status)
	assert.Equal(t, int64(20), status.Limit)
	assert.Equal(t, int64(5), status.Used)
	assert.Equal(t, int64(15), status.Remaining)
}

func TestRefreshGauges(t *testing.T) {
	f := newFixture(t)
	f.service.acl.CreateEntry(acl.ResourceAgent, "a-1", "alice", acl.DefaultEntryOptions())
	require.NotEmpty(t, f.service.plans.SubscribeUser("u1", "pro", plans.SubscribeOptions{}))

	f.service.RefreshGauges()

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.ACLEntriesTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.SubscriptionsActiveTotal))
}
