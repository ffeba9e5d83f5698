package auth

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/platinummonkey/warden/pkg/rbac"
)

// ErrUnknownSubject is returned when an identity provider has no record
// of a subject id.
var ErrUnknownSubject = errors.New("auth: unknown subject")

// IdentityProvider resolves an already-authenticated subject id to its
// roles and claimed permissions.
type IdentityProvider interface {
	Subject(ctx context.Context, subjectID string) (*Subject, error)
}

// TeamDirectory supplies the team ids a user belongs to, consumed by
// ACL resolution.
type TeamDirectory interface {
	TeamsFor(ctx context.Context, userID string) ([]string, error)
}

// StaticIdentityProvider is an in-memory IdentityProvider backed by a
// fixed subject table. Useful for tests and single-tenant deployments
// that configure subjects up front.
type StaticIdentityProvider struct {
	mu       sync.RWMutex
	subjects map[string]*Subject
}

// NewStaticIdentityProvider builds a provider over the given subjects.
func NewStaticIdentityProvider(subjects ...*Subject) *StaticIdentityProvider {
	p := &StaticIdentityProvider{subjects: make(map[string]*Subject)}
	for _, s := range subjects {
		p.subjects[s.ID] = s
	}
	return p
}

// Put adds or replaces a subject.
func (p *StaticIdentityProvider) Put(subject *Subject) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects[subject.ID] = subject
}

// Subject implements IdentityProvider.
func (p *StaticIdentityProvider) Subject(_ context.Context, subjectID string) (*Subject, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	subject, ok := p.subjects[subjectID]
	if !ok {
		return nil, ErrUnknownSubject
	}
	out := *subject
	out.Roles = append([]rbac.Role(nil), subject.Roles...)
	out.Permissions = append([]string(nil), subject.Permissions...)
	return &out, nil
}

// StaticTeamDirectory is an in-memory TeamDirectory.
type StaticTeamDirectory struct {
	mu     sync.RWMutex
	byUser map[string]map[string]struct{}
}

// NewStaticTeamDirectory builds an empty directory.
func NewStaticTeamDirectory() *StaticTeamDirectory {
	return &StaticTeamDirectory{byUser: make(map[string]map[string]struct{})}
}

// AddMember records a user's membership in a team.
func (d *StaticTeamDirectory) AddMember(teamID, userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	teams := d.byUser[userID]
	if teams == nil {
		teams = make(map[string]struct{})
		d.byUser[userID] = teams
	}
	teams[teamID] = struct{}{}
}

// RemoveMember drops a user's membership in a team.
func (d *StaticTeamDirectory) RemoveMember(teamID, userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.byUser[userID], teamID)
}

// TeamsFor implements TeamDirectory; the result is sorted.
func (d *StaticTeamDirectory) TeamsFor(_ context.Context, userID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	teams := make([]string, 0, len(d.byUser[userID]))
	for teamID := range d.byUser[userID] {
		teams = append(teams, teamID)
	}
	sort.Strings(teams)
	return teams, nil
}
