package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/delegation"
)

func TestCreateAndGetRule(t *testing.T) {
	f := newFixture(t)

	var rule delegation.Rule
	rec := f.do(t, http.MethodPost, "/v1/delegation/rules", map[string]interface{}{
		"platform_id":           "platform-1",
		"name":                  "Report delegation",
		"delegated_permissions": []string{"reports.view", "reports.export"},
	}, &rule)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, rule.RuleID)
	assert.Equal(t, 1, rule.MaxDepth)

	var fetched delegation.Rule
	rec = f.do(t, http.MethodGet, "/v1/delegation/rules/"+rule.RuleID, nil, &fetched)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Report delegation", fetched.Name)
}

func TestCreateRuleValidation(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/delegation/rules", map[string]interface{}{
		"platform_id": "platform-1",
		"name":        "No permissions",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListRulesFiltersByPlatform(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/v1/delegation/rules", map[string]interface{}{
		"platform_id":           "platform-1",
		"name":                  "Scoped",
		"delegated_permissions": []string{"reports.view"},
	}, nil)

	var out struct {
		Rules []delegation.Rule `json:"rules"`
	}
	rec := f.do(t, http.MethodGet, "/v1/delegation/rules?platform_id=platform-1", nil, &out)
	require.Equal(t, http.StatusOK, rec.Code)

	// the wildcard-platform seed rules apply to every platform
	names := make([]string, 0, len(out.Rules))
	for _, rule := range out.Rules {
		names = append(names, rule.Name)
	}
	assert.Contains(t, names, "Scoped")
	assert.Contains(t, names, "Platform administrator delegation")
}

func TestUpdateRule(t *testing.T) {
	f := newFixture(t)

	var updated delegation.Rule
	rec := f.do(t, http.MethodPatch, "/v1/delegation/rules/content_creator_delegate", map[string]interface{}{
		"is_active": false,
	}, &updated)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, updated.IsActive)
}

func TestDeleteRule(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodDelete, "/v1/delegation/rules/content_creator_delegate", nil, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodDelete, "/v1/delegation/rules/content_creator_delegate", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDelegateAndCheckPermissions(t *testing.T) {
	f := newFixture(t)

	var grant delegation.Grant
	rec := f.do(t, http.MethodPost, "/v1/delegation/grants", map[string]interface{}{
		"platform_id": "platform-1",
		"user_id":     "bob",
		"permissions": []string{"content.read", "content.write"},
		"rule_id":     "content_creator_delegate",
	}, &grant)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, grant.IsActive)

	var out struct {
		Permissions []string `json:"permissions"`
	}
	rec = f.do(t, http.MethodGet, "/v1/delegation/platforms/platform-1/users/bob/permissions", nil, &out)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"content.read", "content.write"}, out.Permissions)
}

func TestDelegateOutsideRuleRejected(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/delegation/grants", map[string]interface{}{
		"platform_id": "platform-1",
		"user_id":     "bob",
		"permissions": []string{"system.admin"},
		"rule_id":     "content_creator_delegate",
	}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestApprovalFlow(t *testing.T) {
	f := newFixture(t)

	var grant delegation.Grant
	rec := f.do(t, http.MethodPost, "/v1/delegation/grants", map[string]interface{}{
		"platform_id": "platform-1",
		"user_id":     "bob",
		"permissions": []string{"team.view"},
		"rule_id":     "team_manager_delegate",
	}, &grant)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.False(t, grant.IsActive)

	var approved delegation.Grant
	rec = f.do(t, http.MethodPost, "/v1/delegation/grants/"+grant.GrantID+"/approve", map[string]string{
		"approved_by": "admin",
	}, &approved)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, approved.IsActive)
	assert.Equal(t, "admin", approved.ApprovedBy)
}

func TestRevokeGrant(t *testing.T) {
	f := newFixture(t)

	var grant delegation.Grant
	f.do(t, http.MethodPost, "/v1/delegation/grants", map[string]interface{}{
		"platform_id": "platform-1",
		"user_id":     "bob",
		"permissions": []string{"content.read"},
	}, &grant)

	rec := f.do(t, http.MethodDelete, "/v1/delegation/grants/"+grant.GrantID, nil, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	var out struct {
		Permissions []string `json:"permissions"`
	}
	f.do(t, http.MethodGet, "/v1/delegation/platforms/platform-1/users/bob/permissions", nil, &out)
	assert.Empty(t, out.Permissions)
}

func TestListGrantsFilters(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/v1/delegation/grants", map[string]interface{}{
		"platform_id": "platform-1",
		"user_id":     "bob",
		"permissions": []string{"content.read"},
	}, nil)
	f.do(t, http.MethodPost, "/v1/delegation/grants", map[string]interface{}{
		"platform_id": "platform-2",
		"user_id":     "carol",
		"permissions": []string{"content.read"},
	}, nil)

	var out struct {
		Grants []delegation.Grant `json:"grants"`
	}
	rec := f.do(t, http.MethodGet, "/v1/delegation/grants?user_id=bob", nil, &out)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, out.Grants, 1)
	assert.Equal(t, "platform-1", out.Grants[0].PlatformID)
}
