package acl

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/storage"
)

const entriesTable = "acl_entries"

// Engine is the resource ACL engine. All state lives in memory; every
// mutation rewrites the full entry table to the snapshot store before
// returning.
type Engine struct {
	mu sync.RWMutex

	entries map[string]*Entry                  // entry_id -> entry
	byType  map[ResourceType]map[string]string // type -> resource_id -> entry_id

	store  storage.Store
	logger *observability.Logger
	nowFn  func() time.Time
}

// NewEngine creates the engine and loads any persisted entries.
// Malformed persisted records are skipped with an error log.
func NewEngine(store storage.Store, logger *observability.Logger) (*Engine, error) {
	e := &Engine{
		entries: make(map[string]*Entry),
		byType:  make(map[ResourceType]map[string]string),
		store:   store,
		logger:  logger,
		nowFn:   time.Now,
	}
	if err := e.load(); err != nil {
		return nil, err
	}
	e.logger.WithField("entries", len(e.entries)).Info("resource ACL engine initialized")
	return e, nil
}

func (e *Engine) load() error {
	data, err := e.store.Load(context.Background(), entriesTable)
	if err != nil {
		return err
	}
	if data == nil {
		return nil
	}

	var records []entryRecord
	if err := json.Unmarshal(data, &records); err != nil {
		e.logger.WithError(err).Error("failed to decode ACL snapshot")
		return nil
	}

	for _, record := range records {
		entry, err := record.toEntry()
		if err != nil {
			e.logger.WithError(err).WithField("entry_id", record.EntryID).
				Error("skipping malformed ACL entry")
			continue
		}
		e.entries[entry.EntryID] = entry
		e.index(entry.ResourceType)[entry.ResourceID] = entry.EntryID
	}
	return nil
}

// save serializes the full table; callers hold the write lock. An I/O
// failure is logged and the in-memory mutation stands.
func (e *Engine) save() {
	records := make([]entryRecord, 0, len(e.entries))
	for _, entry := range e.entries {
		records = append(records, recordFromEntry(entry))
	}
	sort.Slice(records, func(i, j int) bool { return records[i].EntryID < records[j].EntryID })

	data, err := json.Marshal(records)
	if err != nil {
		e.logger.WithError(err).Error("failed to encode ACL snapshot")
		return
	}
	if err := e.store.Save(context.Background(), entriesTable, data); err != nil {
		e.logger.WithError(err).Error("failed to persist ACL snapshot")
	}
}

func (e *Engine) index(resourceType ResourceType) map[string]string {
	m, ok := e.byType[resourceType]
	if !ok {
		m = make(map[string]string)
		e.byType[resourceType] = m
	}
	return m
}

func (e *Engine) lookup(resourceType ResourceType, resourceID string) *Entry {
	entryID, ok := e.byType[resourceType][resourceID]
	if !ok {
		return nil
	}
	return e.entries[entryID]
}

// EntryOptions carries the optional CreateEntry attributes
type EntryOptions struct {
	DefaultLevel AccessLevel
	IsPublic     bool
	PublicLevel  AccessLevel
	Metadata     map[string]string
}

// DefaultEntryOptions returns the standard options: default level none,
// not public, public level read
func DefaultEntryOptions() EntryOptions {
	return EntryOptions{
		DefaultLevel: AccessNone,
		PublicLevel:  AccessRead,
	}
}

// CreateEntry registers a resource for access control and returns its
// entry id. Creation is idempotent: if an entry already exists for the
// (type, id) pair, the existing id is returned and a warning logged.
func (e *Engine) CreateEntry(resourceType ResourceType, resourceID, ownerID string, opts EntryOptions) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if existing := e.lookup(resourceType, resourceID); existing != nil {
		e.logger.WithFields(map[string]interface{}{
			"resource_type": resourceType.String(),
			"resource_id":   resourceID,
			"entry_id":      existing.EntryID,
		}).Warn("ACL entry already exists")
		return existing.EntryID
	}

	now := e.nowFn()
	metadata := opts.Metadata
	if metadata == nil {
		metadata = make(map[string]string)
	}
	entry := &Entry{
		EntryID:      uuid.New().String(),
		ResourceType: resourceType,
		ResourceID:   resourceID,
		OwnerID:      ownerID,
		DefaultLevel: opts.DefaultLevel,
		UserLevels:   map[string]AccessLevel{ownerID: AccessOwner},
		TeamLevels:   make(map[string]AccessLevel),
		IsPublic:     opts.IsPublic,
		PublicLevel:  opts.PublicLevel,
		CreatedAt:    now,
		UpdatedAt:    now,
		Metadata:     metadata,
	}

	e.entries[entry.EntryID] = entry
	e.index(resourceType)[resourceID] = entry.EntryID
	e.save()

	e.logger.WithFields(map[string]interface{}{
		"resource_type": resourceType.String(),
		"resource_id":   resourceID,
		"owner_id":      ownerID,
	}).Info("ACL entry created")
	return entry.EntryID
}

// GetEntry returns a copy of the entry for a resource, or nil
func (e *Engine) GetEntry(resourceType ResourceType, resourceID string) *Entry {
	e.mu.RLock()
	defer e.mu.RUnlock()

	entry := e.lookup(resourceType, resourceID)
	if entry == nil {
		return nil
	}
	return entry.clone()
}

// SetUserAccess grants or updates a user's level on a resource
func (e *Engine) SetUserAccess(resourceType ResourceType, resourceID, userID string, level AccessLevel) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry := e.lookup(resourceType, resourceID)
	if entry == nil {
		e.logger.WithFields(map[string]interface{}{
			"resource_type": resourceType.String(),
			"resource_id":   resourceID,
		}).Warn("no ACL entry for resource")
		return false
	}

	entry.UserLevels[userID] = level
	entry.UpdatedAt = e.nowFn()
	e.save()
	return true
}

// RemoveUserAccess removes a user's direct grant. The owner's own access
// cannot be removed this way; only ChangeOwner alters owner-level access.
func (e *Engine) RemoveUserAccess(resourceType ResourceType, resourceID, userID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry := e.lookup(resourceType, resourceID)
	if entry == nil {
		return false
	}
	if userID == entry.OwnerID {
		e.logger.WithFields(map[string]interface{}{
			"resource_type": resourceType.String(),
			"resource_id":   resourceID,
			"user_id":       userID,
		}).Warn("cannot remove owner access")
		return false
	}
	if _, ok := entry.UserLevels[userID]; !ok {
		return false
	}

	delete(entry.UserLevels, userID)
	entry.UpdatedAt = e.nowFn()
	e.save()
	return true
}

// SetTeamAccess grants or updates a team's level on a resource
func (e *Engine) SetTeamAccess(resourceType ResourceType, resourceID, teamID string, level AccessLevel) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry := e.lookup(resourceType, resourceID)
	if entry == nil {
		return false
	}

	entry.TeamLevels[teamID] = level
	entry.UpdatedAt = e.nowFn()
	e.save()
	return true
}

// RemoveTeamAccess removes a team's grant on a resource
func (e *Engine) RemoveTeamAccess(resourceType ResourceType, resourceID, teamID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry := e.lookup(resourceType, resourceID)
	if entry == nil {
		return false
	}
	if _, ok := entry.TeamLevels[teamID]; !ok {
		return false
	}

	delete(entry.TeamLevels, teamID)
	entry.UpdatedAt = e.nowFn()
	e.save()
	return true
}

// resolveLevel computes the effective level; callers hold at least the
// read lock. Resolution order: owner, explicit user grant, best team
// grant, public level, default level.
func resolveLevel(entry *Entry, userID string, teamIDs []string) AccessLevel {
	if entry == nil {
		return AccessNone
	}
	if userID == entry.OwnerID {
		return AccessOwner
	}
	if level, ok := entry.UserLevels[userID]; ok {
		return level
	}

	best := AccessNone
	found := false
	for _, teamID := range teamIDs {
		if level, ok := entry.TeamLevels[teamID]; ok {
			found = true
			if level > best {
				best = level
			}
		}
	}
	if found {
		return best
	}

	if entry.IsPublic {
		return entry.PublicLevel
	}
	return entry.DefaultLevel
}

// UserAccessLevel returns the user's effective level on a resource.
// Resources with no entry resolve to none.
func (e *Engine) UserAccessLevel(userID string, resourceType ResourceType, resourceID string, teamIDs []string) AccessLevel {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return resolveLevel(e.lookup(resourceType, resourceID), userID, teamIDs)
}

// CheckAccess reports whether the user's effective level rank reaches
// the required level
func (e *Engine) CheckAccess(userID string, resourceType ResourceType, resourceID string, required AccessLevel, teamIDs []string) bool {
	return e.UserAccessLevel(userID, resourceType, resourceID, teamIDs) >= required
}

// AccessibleResources lists every resource of a type the user can reach
// at or above minLevel, with the effective level. Linear in the number
// of entries for the type.
func (e *Engine) AccessibleResources(userID string, resourceType ResourceType, minLevel AccessLevel, teamIDs []string) []ResourceAccess {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []ResourceAccess
	for resourceID, entryID := range e.byType[resourceType] {
		level := resolveLevel(e.entries[entryID], userID, teamIDs)
		if level >= minLevel {
			out = append(out, ResourceAccess{ResourceID: resourceID, Level: level})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResourceID < out[j].ResourceID })
	return out
}

// ResourceUsers lists the owner followed by every directly granted user
// at or above minLevel. Team grants are not expanded into users.
func (e *Engine) ResourceUsers(resourceType ResourceType, resourceID string, minLevel AccessLevel) []UserAccess {
	e.mu.RLock()
	defer e.mu.RUnlock()

	entry := e.lookup(resourceType, resourceID)
	if entry == nil {
		return nil
	}

	out := []UserAccess{{UserID: entry.OwnerID, Level: AccessOwner}}
	var rest []UserAccess
	for userID, level := range entry.UserLevels {
		if userID == entry.OwnerID {
			continue
		}
		if level >= minLevel {
			rest = append(rest, UserAccess{UserID: userID, Level: level})
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i].UserID < rest[j].UserID })
	return append(out, rest...)
}

// ChangeOwner reassigns ownership. The former owner's direct grant, if
// any, is demoted to admin rather than removed; the new owner is
// force-set to owner level.
func (e *Engine) ChangeOwner(resourceType ResourceType, resourceID, newOwnerID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry := e.lookup(resourceType, resourceID)
	if entry == nil {
		return false
	}

	former := entry.OwnerID
	if _, ok := entry.UserLevels[former]; ok {
		entry.UserLevels[former] = AccessAdmin
	}
	entry.OwnerID = newOwnerID
	entry.UserLevels[newOwnerID] = AccessOwner
	entry.UpdatedAt = e.nowFn()
	e.save()

	e.logger.WithFields(map[string]interface{}{
		"resource_type": resourceType.String(),
		"resource_id":   resourceID,
		"former_owner":  former,
		"new_owner":     newOwnerID,
	}).Info("resource owner changed")
	return true
}

// CopyACL copies a resource's access policy onto a new resource. Fails
// if the destination already has an entry. The source owner's direct
// grant is not copied; the destination owner (newOwnerID, or the source
// owner when empty) is force-set to owner level.
func (e *Engine) CopyACL(srcType ResourceType, srcID string, dstType ResourceType, dstID, newOwnerID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	src := e.lookup(srcType, srcID)
	if src == nil {
		e.logger.WithFields(map[string]interface{}{
			"resource_type": srcType.String(),
			"resource_id":   srcID,
		}).Warn("copy source has no ACL entry")
		return false
	}
	if e.lookup(dstType, dstID) != nil {
		e.logger.WithFields(map[string]interface{}{
			"resource_type": dstType.String(),
			"resource_id":   dstID,
		}).Warn("copy destination already has an ACL entry")
		return false
	}

	owner := newOwnerID
	if owner == "" {
		owner = src.OwnerID
	}

	users := make(map[string]AccessLevel, len(src.UserLevels))
	for userID, level := range src.UserLevels {
		if userID == src.OwnerID {
			continue
		}
		users[userID] = level
	}
	users[owner] = AccessOwner

	teams := make(map[string]AccessLevel, len(src.TeamLevels))
	for teamID, level := range src.TeamLevels {
		teams[teamID] = level
	}
	metadata := make(map[string]string, len(src.Metadata))
	for k, v := range src.Metadata {
		metadata[k] = v
	}

	now := e.nowFn()
	entry := &Entry{
		EntryID:      uuid.New().String(),
		ResourceType: dstType,
		ResourceID:   dstID,
		OwnerID:      owner,
		DefaultLevel: src.DefaultLevel,
		UserLevels:   users,
		TeamLevels:   teams,
		IsPublic:     src.IsPublic,
		PublicLevel:  src.PublicLevel,
		CreatedAt:    now,
		UpdatedAt:    now,
		Metadata:     metadata,
	}

	e.entries[entry.EntryID] = entry
	e.index(dstType)[dstID] = entry.EntryID
	e.save()
	return true
}

// DeleteEntry removes a resource's ACL entry and its index membership
func (e *Engine) DeleteEntry(resourceType ResourceType, resourceID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	entryID, ok := e.byType[resourceType][resourceID]
	if !ok {
		return false
	}

	delete(e.entries, entryID)
	delete(e.byType[resourceType], resourceID)
	e.save()
	return true
}

// Count returns the number of ACL entries
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.entries)
}
