package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/platinummonkey/warden/pkg/rbac"
)

func TestSubjectHasRole(t *testing.T) {
	subject := &Subject{ID: "u1", Roles: []rbac.Role{rbac.RoleUser, rbac.RoleDeveloper}}

	assert.True(t, subject.HasRole(rbac.RoleDeveloper))
	assert.False(t, subject.HasRole(rbac.RoleAdmin))
}

func TestSubjectClaimedPermission(t *testing.T) {
	subject := &Subject{ID: "u1", Permissions: []string{"content.read"}}

	assert.True(t, subject.ClaimedPermission("content.read"))
	// literal membership only, no wildcard expansion
	assert.False(t, subject.ClaimedPermission("content.write"))
}

func TestEffectivePermissionsMergesRoleDefaults(t *testing.T) {
	subject := &Subject{
		ID:          "u1",
		Roles:       []rbac.Role{rbac.RoleUser},
		Permissions: []string{"content.publish", "agent.read"},
	}

	perms := subject.EffectivePermissions()
	assert.Contains(t, perms, "content.publish")
	assert.Contains(t, perms, rbac.PermissionAgentExecute)
	assert.IsIncreasing(t, perms)

	// agent.read appears once despite being both claimed and a role default
	count := 0
	for _, p := range perms {
		if p == "agent.read" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}
