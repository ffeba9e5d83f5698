package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/rbac"
)

func writeDirectoryFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "directory.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDirectory(t *testing.T) {
	path := writeDirectoryFile(t, `
subjects:
  - id: alice
    roles: [user]
    permissions: [billing.view]
    auth_type: api_key
  - id: svc-worker
    roles: [agent]
teams:
  - id: team-x
    members: [alice, bob]
`)

	identity, teams, err := loadDirectory(path)
	require.NoError(t, err)

	subject, err := identity.Subject(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, subject.HasRole(rbac.RoleUser))
	assert.Contains(t, subject.Permissions, "billing.view")
	assert.Equal(t, "api_key", subject.AuthType)

	memberships, err := teams.TeamsFor(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"team-x"}, memberships)
}

func TestLoadDirectoryEmptyPath(t *testing.T) {
	identity, teams, err := loadDirectory("")
	require.NoError(t, err)

	_, err = identity.Subject(context.Background(), "anyone")
	assert.Error(t, err)

	memberships, err := teams.TeamsFor(context.Background(), "anyone")
	require.NoError(t, err)
	assert.Empty(t, memberships)
}

func TestLoadDirectoryRejectsUnknownRole(t *testing.T) {
	path := writeDirectoryFile(t, `
subjects:
  - id: alice
    roles: [wizard]
`)

	_, _, err := loadDirectory(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown role")
}

func TestLoadDirectoryRejectsMissingSubjectID(t *testing.T) {
	path := writeDirectoryFile(t, `
subjects:
  - roles: [user]
`)

	_, _, err := loadDirectory(path)
	require.Error(t, err)
}

func TestLoadDirectoryMissingFile(t *testing.T) {
	_, _, err := loadDirectory(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
