package delegation

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/storage"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	store, err := storage.NewFilesystemStore(t.TempDir())
	require.NoError(t, err)
	engine, err := NewEngine(store, observability.NewLogger(observability.ErrorLevel, io.Discard))
	require.NoError(t, err)
	return engine
}

func TestSeedsDefaultRules(t *testing.T) {
	engine := newTestEngine(t)

	admin := engine.GetRule("platform_admin_delegate")
	require.NotNil(t, admin)
	assert.Equal(t, []string{"*"}, admin.Delegated)
	assert.False(t, admin.RequireApproval)

	manager := engine.GetRule("team_manager_delegate")
	require.NotNil(t, manager)
	assert.True(t, manager.RequireApproval)
}

func TestCreateAndUpdateRule(t *testing.T) {
	engine := newTestEngine(t)

	ruleID := engine.CreateRule("plat-1", "content", []string{"content.*"}, RuleOptions{
		Description: "content delegation",
	})
	require.NotEmpty(t, ruleID)

	rule := engine.GetRule(ruleID)
	require.NotNil(t, rule)
	assert.Equal(t, 1, rule.MaxDepth)
	assert.True(t, rule.IsActive)

	inactive := false
	require.True(t, engine.UpdateRule(ruleID, RuleUpdate{IsActive: &inactive}))
	assert.False(t, engine.GetRule(ruleID).IsActive)

	assert.False(t, engine.UpdateRule("missing", RuleUpdate{IsActive: &inactive}))
}

func TestListRulesPlatformFilter(t *testing.T) {
	engine := newTestEngine(t)
	engine.CreateRule("plat-1", "one", []string{"a.b"}, RuleOptions{})
	engine.CreateRule("plat-2", "two", []string{"a.b"}, RuleOptions{})

	rules := engine.ListRules(RuleFilter{PlatformID: "plat-1", ActiveOnly: true})
	for _, rule := range rules {
		assert.True(t, rule.PlatformID == "plat-1" || rule.PlatformID == PlatformAny)
	}
}

func TestDelegateWithinRuleSubset(t *testing.T) {
	engine := newTestEngine(t)
	ruleID := engine.CreateRule("plat-1", "content", []string{"content.*"}, RuleOptions{})

	grantID := engine.DelegatePermissions("plat-1", "u1", []string{"content.read"}, DelegateOptions{RuleID: ruleID})
	assert.NotEmpty(t, grantID)

	// any permission outside the rule rejects the whole call
	rejected := engine.DelegatePermissions("plat-1", "u1",
		[]string{"content.read", "api.read"}, DelegateOptions{RuleID: ruleID})
	assert.Empty(t, rejected)
	assert.NotContains(t, engine.UserPermissions("plat-1", "u1"), "api.read")
}

func TestDelegateRuleChecks(t *testing.T) {
	engine := newTestEngine(t)
	ruleID := engine.CreateRule("plat-1", "scoped", []string{"content.read"}, RuleOptions{})

	// unknown rule
	assert.Empty(t, engine.DelegatePermissions("plat-1", "u1", []string{"content.read"},
		DelegateOptions{RuleID: "missing"}))

	// wrong platform
	assert.Empty(t, engine.DelegatePermissions("plat-2", "u1", []string{"content.read"},
		DelegateOptions{RuleID: ruleID}))

	// inactive rule
	inactive := false
	engine.UpdateRule(ruleID, RuleUpdate{IsActive: &inactive})
	assert.Empty(t, engine.DelegatePermissions("plat-1", "u1", []string{"content.read"},
		DelegateOptions{RuleID: ruleID}))
}

func TestDelegateUnderWildcardRule(t *testing.T) {
	engine := newTestEngine(t)

	grantID := engine.DelegatePermissions("plat-1", "u1", []string{"anything.goes"},
		DelegateOptions{RuleID: "platform_admin_delegate"})
	assert.NotEmpty(t, grantID)
	assert.True(t, engine.CheckPermission("plat-1", "u1", "anything.goes"))
}

func TestApprovalGating(t *testing.T) {
	engine := newTestEngine(t)

	grantID := engine.DelegatePermissions("plat-1", "u1", []string{"team.view"},
		DelegateOptions{RuleID: "team_manager_delegate"})
	require.NotEmpty(t, grantID)

	// pending grants contribute nothing
	assert.Empty(t, engine.UserPermissions("plat-1", "u1"))
	assert.False(t, engine.CheckPermission("plat-1", "u1", "team.view"))

	require.True(t, engine.ApproveGrant(grantID, "admin-1"))
	assert.Equal(t, []string{"team.view"}, engine.UserPermissions("plat-1", "u1"))

	grant := engine.GetGrant(grantID)
	assert.Equal(t, "admin-1", grant.ApprovedBy)
	assert.True(t, grant.IsActive)
}

func TestApproveGrantWithoutApprovalRule(t *testing.T) {
	engine := newTestEngine(t)
	ruleID := engine.CreateRule("plat-1", "open", []string{"content.read"}, RuleOptions{})

	grantID := engine.DelegatePermissions("plat-1", "u1", []string{"content.read"},
		DelegateOptions{RuleID: ruleID})
	require.NotEmpty(t, grantID)

	assert.False(t, engine.ApproveGrant(grantID, "admin-1"))
	assert.Empty(t, engine.GetGrant(grantID).ApprovedBy)

	assert.False(t, engine.ApproveGrant("missing", "admin-1"))
}

func TestApproveRulelessGrant(t *testing.T) {
	engine := newTestEngine(t)

	grantID := engine.DelegatePermissions("plat-1", "u1", []string{"content.read"}, DelegateOptions{})
	require.NotEmpty(t, grantID)

	assert.True(t, engine.ApproveGrant(grantID, "admin-1"))
}

func TestUserPermissionsUnionSorted(t *testing.T) {
	engine := newTestEngine(t)
	engine.DelegatePermissions("plat-1", "u1", []string{"b.read", "a.read"}, DelegateOptions{})
	engine.DelegatePermissions("plat-1", "u1", []string{"a.read", "c.read"}, DelegateOptions{})
	engine.DelegatePermissions("plat-1", "u2", []string{"z.read"}, DelegateOptions{})
	engine.DelegatePermissions("plat-2", "u1", []string{"y.read"}, DelegateOptions{})

	assert.Equal(t, []string{"a.read", "b.read", "c.read"}, engine.UserPermissions("plat-1", "u1"))
}

func TestExpiryLazilyExcluded(t *testing.T) {
	engine := newTestEngine(t)
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	engine.nowFn = func() time.Time { return base }

	grantID := engine.DelegatePermissions("plat-1", "u1", []string{"content.read"},
		DelegateOptions{ExpiresInDays: 2})
	require.NotEmpty(t, grantID)
	assert.Equal(t, []string{"content.read"}, engine.UserPermissions("plat-1", "u1"))

	// past expiry the grant is excluded while still stored
	engine.nowFn = func() time.Time { return base.Add(3 * 24 * time.Hour) }
	assert.Empty(t, engine.UserPermissions("plat-1", "u1"))
	assert.NotNil(t, engine.GetGrant(grantID))

	removed := engine.CleanExpiredGrants()
	assert.Equal(t, 1, removed)
	assert.Nil(t, engine.GetGrant(grantID))
	assert.Zero(t, engine.CleanExpiredGrants())
}

func TestCheckPermissionWildcards(t *testing.T) {
	engine := newTestEngine(t)
	engine.DelegatePermissions("plat-1", "u1", []string{"content.*"}, DelegateOptions{})
	engine.DelegatePermissions("plat-1", "u2", []string{"*"}, DelegateOptions{})

	assert.True(t, engine.CheckPermission("plat-1", "u1", "content.publish"))
	assert.False(t, engine.CheckPermission("plat-1", "u1", "api.read"))
	assert.True(t, engine.CheckPermission("plat-1", "u2", "api.read"))
	assert.False(t, engine.CheckPermission("plat-1", "ghost", "api.read"))
}

func TestRevokeGrant(t *testing.T) {
	engine := newTestEngine(t)
	grantID := engine.DelegatePermissions("plat-1", "u1", []string{"content.read"}, DelegateOptions{})

	require.True(t, engine.RevokeGrant(grantID))
	assert.Empty(t, engine.UserPermissions("plat-1", "u1"))
	assert.False(t, engine.RevokeGrant(grantID))
}

func TestDeleteRuleCascades(t *testing.T) {
	engine := newTestEngine(t)
	ruleID := engine.CreateRule("plat-1", "content", []string{"content.*"}, RuleOptions{})
	grantID := engine.DelegatePermissions("plat-1", "u1", []string{"content.read"},
		DelegateOptions{RuleID: ruleID})
	otherID := engine.DelegatePermissions("plat-1", "u1", []string{"api.read"}, DelegateOptions{})

	require.True(t, engine.DeleteRule(ruleID))
	assert.Nil(t, engine.GetRule(ruleID))
	assert.Nil(t, engine.GetGrant(grantID))
	assert.NotNil(t, engine.GetGrant(otherID))
	assert.Equal(t, []string{"api.read"}, engine.UserPermissions("plat-1", "u1"))
}

func TestListGrantsFilters(t *testing.T) {
	engine := newTestEngine(t)
	engine.DelegatePermissions("plat-1", "u1", []string{"a.b"}, DelegateOptions{})
	engine.DelegatePermissions("plat-1", "u2", []string{"a.b"}, DelegateOptions{})
	pending := engine.DelegatePermissions("plat-1", "u1", []string{"team.view"},
		DelegateOptions{RuleID: "team_manager_delegate"})
	require.NotEmpty(t, pending)

	active := engine.ListGrants(GrantFilter{PlatformID: "plat-1", UserID: "u1", ActiveOnly: true})
	require.Len(t, active, 1)

	all := engine.ListGrants(GrantFilter{PlatformID: "plat-1", UserID: "u1"})
	assert.Len(t, all, 2)
}

func TestPersistenceRoundTrip(t *testing.T) {
	store, err := storage.NewFilesystemStore(t.TempDir())
	require.NoError(t, err)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)

	engine, err := NewEngine(store, logger)
	require.NoError(t, err)
	ruleID := engine.CreateRule("plat-1", "content", []string{"content.*"}, RuleOptions{})
	grantID := engine.DelegatePermissions("plat-1", "u1", []string{"content.read"},
		DelegateOptions{RuleID: ruleID})

	reloaded, err := NewEngine(store, logger)
	require.NoError(t, err)
	assert.NotNil(t, reloaded.GetRule(ruleID))
	assert.NotNil(t, reloaded.GetGrant(grantID))
	assert.Equal(t, []string{"content.read"}, reloaded.UserPermissions("plat-1", "u1"))
}

func TestPermissionCacheInvalidation(t *testing.T) {
	engine := newTestEngine(t)

	engine.DelegatePermissions("plat-1", "u1", []string{"a.read"}, DelegateOptions{})
	assert.Equal(t, []string{"a.read"}, engine.UserPermissions("plat-1", "u1"))

	// a later grant must be visible despite the cached union
	engine.DelegatePermissions("plat-1", "u1", []string{"b.read"}, DelegateOptions{})
	assert.Equal(t, []string{"a.read", "b.read"}, engine.UserPermissions("plat-1", "u1"))

	grants := engine.ListGrants(GrantFilter{PlatformID: "plat-1", UserID: "u1"})
	require.Len(t, grants, 2)
	require.True(t, engine.RevokeGrant(grants[0].GrantID))
	assert.Len(t, engine.UserPermissions("plat-1", "u1"), 1)
}

func TestRevokeNotUndoneByConcurrentReaders(t *testing.T) {
	engine := newTestEngine(t)

	// Readers computing the permission union while a revoke runs must
	// never re-install the pre-revoke set; a check after the revoke
	// returns has to see the grant gone.
	for i := 0; i < 500; i++ {
		grantID := engine.DelegatePermissions("plat-1", "u1", []string{"content.read"},
			DelegateOptions{})

		start := make(chan struct{})
		var wg sync.WaitGroup
		for r := 0; r < 4; r++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				engine.CheckPermission("plat-1", "u1", "content.read")
			}()
		}
		close(start)
		require.True(t, engine.RevokeGrant(grantID))
		wg.Wait()

		require.False(t, engine.CheckPermission("plat-1", "u1", "content.read"))
	}
}

func TestActiveGrantCount(t *testing.T) {
	engine := newTestEngine(t)
	engine.DelegatePermissions("plat-1", "u1", []string{"a.read"}, DelegateOptions{})
	engine.DelegatePermissions("plat-1", "u2", []string{"team.view"},
		DelegateOptions{RuleID: "team_manager_delegate"})

	assert.Equal(t, 1, engine.ActiveGrantCount())
}
