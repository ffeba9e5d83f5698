package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createProjectEntry(t *testing.T, f *fixture, resourceID, ownerID string) entryResponse {
	t.Helper()

	var entry entryResponse
	rec := f.do(t, http.MethodPost, "/v1/acl/entries", map[string]interface{}{
		"resource_type": "project",
		"resource_id":   resourceID,
		"owner_id":      ownerID,
	}, &entry)
	require.Equal(t, http.StatusCreated, rec.Code)
	return entry
}

func TestCreateAndGetACLEntry(t *testing.T) {
	f := newFixture(t)

	entry := createProjectEntry(t, f, "proj-1", "alice")
	assert.NotEmpty(t, entry.EntryID)
	assert.Equal(t, "owner", entry.UserLevels["alice"])

	var fetched entryResponse
	rec := f.do(t, http.MethodGet, "/v1/acl/entries/project/proj-1", nil, &fetched)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, entry.EntryID, fetched.EntryID)
	assert.Equal(t, "alice", fetched.OwnerID)
}

func TestCreateACLEntryRejectsUnknownType(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/acl/entries", map[string]interface{}{
		"resource_type": "spaceship",
		"resource_id":   "x",
		"owner_id":      "alice",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetMissingACLEntry(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/acl/entries/project/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUserAccessLifecycle(t *testing.T) {
	f := newFixture(t)
	createProjectEntry(t, f, "proj-1", "alice")

	rec := f.do(t, http.MethodPut, "/v1/acl/entries/project/proj-1/users/bob", map[string]string{"level": "write"}, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	var entry entryResponse
	f.do(t, http.MethodGet, "/v1/acl/entries/project/proj-1", nil, &entry)
	assert.Equal(t, "write", entry.UserLevels["bob"])

	rec = f.do(t, http.MethodDelete, "/v1/acl/entries/project/proj-1/users/bob", nil, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodDelete, "/v1/acl/entries/project/proj-1/users/bob", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetUserAccessRejectsBadLevel(t *testing.T) {
	f := newFixture(t)
	createProjectEntry(t, f, "proj-1", "alice")

	rec := f.do(t, http.MethodPut, "/v1/acl/entries/project/proj-1/users/bob", map[string]string{"level": "superuser"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTeamAccessLifecycle(t *testing.T) {
	f := newFixture(t)
	createProjectEntry(t, f, "proj-1", "alice")

	rec := f.do(t, http.MethodPut, "/v1/acl/entries/project/proj-1/teams/team-x", map[string]string{"level": "read"}, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	var entry entryResponse
	f.do(t, http.MethodGet, "/v1/acl/entries/project/proj-1", nil, &entry)
	assert.Equal(t, "read", entry.TeamLevels["team-x"])

	rec = f.do(t, http.MethodDelete, "/v1/acl/entries/project/proj-1/teams/team-x", nil, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestChangeOwner(t *testing.T) {
	f := newFixture(t)
	createProjectEntry(t, f, "proj-1", "alice")

	rec := f.do(t, http.MethodPost, "/v1/acl/entries/project/proj-1/owner", map[string]string{"new_owner_id": "bob"}, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	var entry entryResponse
	f.do(t, http.MethodGet, "/v1/acl/entries/project/proj-1", nil, &entry)
	assert.Equal(t, "bob", entry.OwnerID)
	assert.Equal(t, "owner", entry.UserLevels["bob"])
}

func TestCopyACL(t *testing.T) {
	f := newFixture(t)
	createProjectEntry(t, f, "proj-1", "alice")
	f.do(t, http.MethodPut, "/v1/acl/entries/project/proj-1/users/bob", map[string]string{"level": "write"}, nil)

	var copied entryResponse
	rec := f.do(t, http.MethodPost, "/v1/acl/entries/project/proj-1/copy", map[string]string{
		"dest_type": "project",
		"dest_id":   "proj-2",
	}, &copied)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "proj-2", copied.ResourceID)
	assert.Equal(t, "alice", copied.OwnerID)
	assert.Equal(t, "write", copied.UserLevels["bob"])
}

func TestCopyACLFailureCodes(t *testing.T) {
	f := newFixture(t)
	createProjectEntry(t, f, "proj-1", "alice")
	createProjectEntry(t, f, "proj-2", "bob")

	rec := f.do(t, http.MethodPost, "/v1/acl/entries/project/proj-1/copy", map[string]string{
		"dest_type": "project",
		"dest_id":   "proj-2",
	}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/acl/entries/project/missing/copy", map[string]string{
		"dest_type": "project",
		"dest_id":   "proj-3",
	}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResourceUsers(t *testing.T) {
	f := newFixture(t)
	createProjectEntry(t, f, "proj-1", "alice")
	f.do(t, http.MethodPut, "/v1/acl/entries/project/proj-1/users/bob", map[string]string{"level": "write"}, nil)
	f.do(t, http.MethodPut, "/v1/acl/entries/project/proj-1/users/carol", map[string]string{"level": "read"}, nil)

	var out struct {
		Users []struct {
			UserID string `json:"user_id"`
			Level  int    `json:"level"`
		} `json:"users"`
	}
	rec := f.do(t, http.MethodGet, "/v1/acl/entries/project/proj-1/users?min_level=write", nil, &out)
	require.Equal(t, http.StatusOK, rec.Code)

	ids := make([]string, 0, len(out.Users))
	for _, u := range out.Users {
		ids = append(ids, u.UserID)
	}
	assert.Contains(t, ids, "alice")
	assert.Contains(t, ids, "bob")
	assert.NotContains(t, ids, "carol")
}

func TestAccessibleResources(t *testing.T) {
	f := newFixture(t)
	createProjectEntry(t, f, "proj-1", "alice")
	createProjectEntry(t, f, "proj-2", "bob")
	f.do(t, http.MethodPut, "/v1/acl/entries/project/proj-2/teams/team-x", map[string]string{"level": "read"}, nil)

	var out struct {
		Resources []struct {
			ResourceID string `json:"resource_id"`
		} `json:"resources"`
	}
	rec := f.do(t, http.MethodGet, "/v1/acl/users/alice/resources/project?team=team-x", nil, &out)
	require.Equal(t, http.StatusOK, rec.Code)

	ids := make([]string, 0, len(out.Resources))
	for _, res := range out.Resources {
		ids = append(ids, res.ResourceID)
	}
	assert.Contains(t, ids, "proj-1")
	assert.Contains(t, ids, "proj-2")
}

func TestDeleteACLEntry(t *testing.T) {
	f := newFixture(t)
	createProjectEntry(t, f, "proj-1", "alice")

	rec := f.do(t, http.MethodDelete, "/v1/acl/entries/project/proj-1", nil, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodDelete, "/v1/acl/entries/project/proj-1", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
