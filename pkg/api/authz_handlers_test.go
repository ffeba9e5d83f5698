package api

import (
	"net/http"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckPermissionFromRoleDefaults(t *testing.T) {
	f := newFixture(t)

	var out struct {
		Allowed bool `json:"allowed"`
	}
	rec := f.do(t, http.MethodPost, "/v1/authz/permission-check", map[string]string{
		"subject_id": "alice",
		"permission": "agent.execute",
	}, &out)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, out.Allowed)

	rec = f.do(t, http.MethodPost, "/v1/authz/permission-check", map[string]string{
		"subject_id": "alice",
		"permission": "system.admin",
	}, &out)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, out.Allowed)
}

func TestCheckPermissionDelegatedOnPlatform(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/v1/delegation/grants", map[string]interface{}{
		"platform_id": "platform-1",
		"user_id":     "alice",
		"permissions": []string{"reports.view"},
	}, nil)

	var out struct {
		Allowed bool `json:"allowed"`
	}
	rec := f.do(t, http.MethodPost, "/v1/authz/permission-check", map[string]string{
		"subject_id":  "alice",
		"permission":  "reports.view",
		"platform_id": "platform-1",
	}, &out)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, out.Allowed)

	// the grant is scoped to platform-1 only
	rec = f.do(t, http.MethodPost, "/v1/authz/permission-check", map[string]string{
		"subject_id": "alice",
		"permission": "reports.view",
	}, &out)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, out.Allowed)
}

func TestCheckPermissionUnknownSubject(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/authz/permission-check", map[string]string{
		"subject_id": "stranger",
		"permission": "agent.execute",
	}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckResourceAccess(t *testing.T) {
	f := newFixture(t)
	createProjectEntry(t, f, "proj-1", "alice")

	var out struct {
		Allowed bool `json:"allowed"`
	}
	rec := f.do(t, http.MethodPost, "/v1/authz/access-check", map[string]string{
		"subject_id":     "alice",
		"resource_type":  "project",
		"resource_id":    "proj-1",
		"required_level": "admin",
	}, &out)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, out.Allowed)

	rec = f.do(t, http.MethodPost, "/v1/authz/access-check", map[string]string{
		"subject_id":     "bob",
		"resource_type":  "project",
		"resource_id":    "proj-1",
		"required_level": "read",
	}, &out)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, out.Allowed)
}

func TestCheckResourceAccessViaTeam(t *testing.T) {
	f := newFixture(t)
	createProjectEntry(t, f, "proj-1", "alice")
	f.do(t, http.MethodPut, "/v1/acl/entries/project/proj-1/teams/team-x", map[string]string{"level": "write"}, nil)
	f.teams.AddMember("team-x", "bob")

	var out struct {
		Allowed bool `json:"allowed"`
	}
	rec := f.do(t, http.MethodPost, "/v1/authz/access-check", map[string]string{
		"subject_id":     "bob",
		"resource_type":  "project",
		"resource_id":    "proj-1",
		"required_level": "write",
	}, &out)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, out.Allowed)
}

func TestSubjectPermissionsUnion(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/v1/delegation/grants", map[string]interface{}{
		"platform_id": "platform-1",
		"user_id":     "alice",
		"permissions": []string{"reports.view"},
	}, nil)

	var out struct {
		Permissions []string `json:"permissions"`
	}
	rec := f.do(t, http.MethodGet, "/v1/authz/subjects/alice/permissions?platform_id=platform-1", nil, &out)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, out.Permissions, "agent.execute")
	assert.Contains(t, out.Permissions, "reports.view")
	assert.Contains(t, out.Permissions, "content.read")
	assert.True(t, sort.StringsAreSorted(out.Permissions))
}

func TestCleanExpired(t *testing.T) {
	f := newFixture(t)

	var out struct {
		ExpiredGrants        int `json:"expired_grants"`
		ExpiredSubscriptions int `json:"expired_subscriptions"`
	}
	rec := f.do(t, http.MethodPost, "/v1/maintenance/expired", nil, &out)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, out.ExpiredGrants)
	assert.Equal(t, 0, out.ExpiredSubscriptions)
}
