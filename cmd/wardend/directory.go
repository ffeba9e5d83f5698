package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/rbac"
)

// directoryFile is the on-disk shape of the subject/team directory. The
// daemon has no upstream identity service; deployments list their
// subjects and team memberships here.
type directoryFile struct {
	Subjects []struct {
		ID          string            `yaml:"id"`
		Roles       []string          `yaml:"roles"`
		Permissions []string          `yaml:"permissions"`
		AuthType    string            `yaml:"auth_type"`
		Metadata    map[string]string `yaml:"metadata"`
	} `yaml:"subjects"`
	Teams []struct {
		ID      string   `yaml:"id"`
		Members []string `yaml:"members"`
	} `yaml:"teams"`
}

// loadDirectory builds the identity provider and team directory from a
// YAML file. An empty path yields empty collaborators.
func loadDirectory(path string) (*auth.StaticIdentityProvider, *auth.StaticTeamDirectory, error) {
	identity := auth.NewStaticIdentityProvider()
	teams := auth.NewStaticTeamDirectory()
	if path == "" {
		return identity, teams, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	var file directoryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, nil, fmt.Errorf("parsing directory file: %w", err)
	}

	for _, entry := range file.Subjects {
		if entry.ID == "" {
			return nil, nil, fmt.Errorf("directory subject without id")
		}
		roles := make([]rbac.Role, 0, len(entry.Roles))
		for _, name := range entry.Roles {
			role, ok := rbac.ParseRole(name)
			if !ok {
				return nil, nil, fmt.Errorf("subject %s: unknown role %q", entry.ID, name)
			}
			roles = append(roles, role)
		}
		identity.Put(&auth.Subject{
			ID:          entry.ID,
			Roles:       roles,
			Permissions: entry.Permissions,
			AuthType:    entry.AuthType,
			Metadata:    entry.Metadata,
		})
	}

	for _, team := range file.Teams {
		if team.ID == "" {
			return nil, nil, fmt.Errorf("directory team without id")
		}
		for _, member := range team.Members {
			teams.AddMember(team.ID, member)
		}
	}
	return identity, teams, nil
}
