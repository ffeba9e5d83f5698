package delegation

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/storage"
)

const (
	rulesTable  = "delegation_rules"
	grantsTable = "permission_grants"

	permissionCacheSize = 4096
)

// cachedPermissions memoizes a user's effective permission union. The
// entry is only valid until the earliest expiry among the grants that
// produced it.
type cachedPermissions struct {
	permissions []string
	validUntil  *time.Time
}

// Engine manages delegation rules and permission grants
type Engine struct {
	mu sync.RWMutex

	rules  map[string]*Rule
	grants map[string]*Grant

	permCache *lru.Cache[string, cachedPermissions]

	store  storage.Store
	logger *observability.Logger
	nowFn  func() time.Time
}

// NewEngine creates the engine, loads persisted rules and grants, and
// seeds the default rule set when no rules exist.
func NewEngine(store storage.Store, logger *observability.Logger) (*Engine, error) {
	cache, err := lru.New[string, cachedPermissions](permissionCacheSize)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		rules:     make(map[string]*Rule),
		grants:    make(map[string]*Grant),
		permCache: cache,
		store:     store,
		logger:    logger,
		nowFn:     time.Now,
	}
	if err := e.load(); err != nil {
		return nil, err
	}
	if len(e.rules) == 0 {
		e.seedDefaultRules()
	}
	e.logger.WithFields(map[string]interface{}{
		"rules":  len(e.rules),
		"grants": len(e.grants),
	}).Info("permission delegation engine initialized")
	return e, nil
}

func (e *Engine) load() error {
	if err := e.loadRules(); err != nil {
		return err
	}
	return e.loadGrants()
}

func (e *Engine) loadRules() error {
	data, err := e.store.Load(context.Background(), rulesTable)
	if err != nil {
		return err
	}
	if data == nil {
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		e.logger.WithError(err).Error("failed to decode delegation rules snapshot")
		return nil
	}
	for _, item := range raw {
		var rule Rule
		if err := json.Unmarshal(item, &rule); err != nil || rule.RuleID == "" || rule.PlatformID == "" {
			e.logger.WithError(err).Error("skipping malformed delegation rule")
			continue
		}
		e.rules[rule.RuleID] = &rule
	}
	return nil
}

func (e *Engine) loadGrants() error {
	data, err := e.store.Load(context.Background(), grantsTable)
	if err != nil {
		return err
	}
	if data == nil {
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		e.logger.WithError(err).Error("failed to decode permission grants snapshot")
		return nil
	}
	for _, item := range raw {
		var grant Grant
		if err := json.Unmarshal(item, &grant); err != nil || grant.GrantID == "" || grant.UserID == "" {
			e.logger.WithError(err).Error("skipping malformed permission grant")
			continue
		}
		e.grants[grant.GrantID] = &grant
	}
	return nil
}

// seedDefaultRules installs the stock delegation rules; callers hold no
// lock (construction only)
func (e *Engine) seedDefaultRules() {
	now := e.nowFn()
	defaults := []*Rule{
		{
			RuleID:      "platform_admin_delegate",
			PlatformID:  PlatformAny,
			Name:        "Platform administrator delegation",
			Description: "Platform administrators may delegate any permission",
			Delegated:   []string{PermissionAll},
			MaxDepth:    3,
			IsActive:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		{
			RuleID:      "content_creator_delegate",
			PlatformID:  PlatformAny,
			Name:        "Content creator delegation",
			Description: "Content creators may delegate content permissions",
			Delegated:   []string{"content.read", "content.write", "content.publish"},
			MaxDepth:    1,
			IsActive:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		{
			RuleID:          "team_manager_delegate",
			PlatformID:      PlatformAny,
			Name:            "Team manager delegation",
			Description:     "Team managers may delegate team permissions, subject to approval",
			Delegated:       []string{"team.view", "team.edit", "team.invite"},
			MaxDepth:        2,
			RequireApproval: true,
			IsActive:        true,
			CreatedAt:       now,
			UpdatedAt:       now,
		},
	}
	for _, rule := range defaults {
		e.rules[rule.RuleID] = rule
	}
	e.saveRules()
}

func (e *Engine) saveRules() {
	rules := make([]*Rule, 0, len(e.rules))
	for _, rule := range e.rules {
		rules = append(rules, rule)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].RuleID < rules[j].RuleID })

	data, err := json.Marshal(rules)
	if err != nil {
		e.logger.WithError(err).Error("failed to encode delegation rules snapshot")
		return
	}
	if err := e.store.Save(context.Background(), rulesTable, data); err != nil {
		e.logger.WithError(err).Error("failed to persist delegation rules")
	}
}

func (e *Engine) saveGrants() {
	grants := make([]*Grant, 0, len(e.grants))
	for _, grant := range e.grants {
		grants = append(grants, grant)
	}
	sort.Slice(grants, func(i, j int) bool { return grants[i].GrantID < grants[j].GrantID })

	data, err := json.Marshal(grants)
	if err != nil {
		e.logger.WithError(err).Error("failed to encode permission grants snapshot")
		return
	}
	if err := e.store.Save(context.Background(), grantsTable, data); err != nil {
		e.logger.WithError(err).Error("failed to persist permission grants")
	}
}

func shortID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

func cacheKey(platformID, userID string) string {
	return platformID + "\x00" + userID
}

// RuleOptions carries the optional CreateRule attributes
type RuleOptions struct {
	Description     string
	MaxDepth        int // defaults to 1
	RequireApproval bool
	CreatedBy       string
}

// CreateRule registers a new delegation rule and returns its id
func (e *Engine) CreateRule(platformID, name string, delegated []string, opts RuleOptions) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	maxDepth := opts.MaxDepth
	if maxDepth == 0 {
		maxDepth = 1
	}

	now := e.nowFn()
	rule := &Rule{
		RuleID:          shortID("rule"),
		PlatformID:      platformID,
		Name:            name,
		Description:     opts.Description,
		Delegated:       append([]string(nil), delegated...),
		MaxDepth:        maxDepth,
		RequireApproval: opts.RequireApproval,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
		CreatedBy:       opts.CreatedBy,
	}

	e.rules[rule.RuleID] = rule
	e.saveRules()

	e.logger.WithFields(map[string]interface{}{
		"rule_id":     rule.RuleID,
		"platform_id": platformID,
	}).Info("delegation rule created")
	return rule.RuleID
}

// UpdateRule applies the non-nil fields of the update. Existing grants
// are not revalidated against the edited rule.
func (e *Engine) UpdateRule(ruleID string, update RuleUpdate) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	rule, ok := e.rules[ruleID]
	if !ok {
		e.logger.WithField("rule_id", ruleID).Warn("delegation rule not found")
		return false
	}

	if update.PlatformID != nil {
		rule.PlatformID = *update.PlatformID
	}
	if update.Name != nil {
		rule.Name = *update.Name
	}
	if update.Description != nil {
		rule.Description = *update.Description
	}
	if update.Delegated != nil {
		rule.Delegated = append([]string(nil), update.Delegated...)
	}
	if update.MaxDepth != nil {
		rule.MaxDepth = *update.MaxDepth
	}
	if update.RequireApproval != nil {
		rule.RequireApproval = *update.RequireApproval
	}
	if update.IsActive != nil {
		rule.IsActive = *update.IsActive
	}
	rule.UpdatedAt = e.nowFn()

	e.permCache.Purge()
	e.saveRules()
	return true
}

// DeleteRule removes a rule and cascades to every grant that references
// it, in memory and in the persisted store
func (e *Engine) DeleteRule(ruleID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.rules[ruleID]; !ok {
		e.logger.WithField("rule_id", ruleID).Warn("delegation rule not found")
		return false
	}

	delete(e.rules, ruleID)
	removed := 0
	for grantID, grant := range e.grants {
		if grant.RuleID == ruleID {
			delete(e.grants, grantID)
			removed++
		}
	}

	e.permCache.Purge()
	e.saveRules()
	e.saveGrants()

	e.logger.WithFields(map[string]interface{}{
		"rule_id":        ruleID,
		"grants_removed": removed,
	}).Info("delegation rule deleted")
	return true
}

// GetRule returns a copy of a rule, or nil
func (e *Engine) GetRule(ruleID string) *Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rule, ok := e.rules[ruleID]
	if !ok {
		return nil
	}
	return rule.clone()
}

// ListRules returns rules matching the filter. A platform filter also
// matches wildcard-platform rules.
func (e *Engine) ListRules(filter RuleFilter) []*Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []*Rule
	for _, rule := range e.rules {
		if filter.ActiveOnly && !rule.IsActive {
			continue
		}
		if filter.PlatformID != "" && rule.PlatformID != PlatformAny && rule.PlatformID != filter.PlatformID {
			continue
		}
		out = append(out, rule.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RuleID < out[j].RuleID })
	return out
}

// DelegateOptions carries the optional DelegatePermissions attributes
type DelegateOptions struct {
	RuleID        string
	ExpiresInDays int // 0 means the grant never expires
	DelegatedBy   string
}

// DelegatePermissions awards permissions to a user under a platform and
// returns the grant id, or "" on rejection. When anchored to a rule, the
// rule must exist, be active, and apply to the platform; unless the rule
// delegates "*", every requested permission must match the rule's list,
// or the whole call is rejected. A rule requiring approval leaves the
// grant inactive until approved.
func (e *Engine) DelegatePermissions(platformID, userID string, permissions []string, opts DelegateOptions) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var rule *Rule
	if opts.RuleID != "" {
		var ok bool
		rule, ok = e.rules[opts.RuleID]
		if !ok {
			e.logger.WithField("rule_id", opts.RuleID).Warn("delegation rule not found")
			return ""
		}
		if rule.PlatformID != PlatformAny && rule.PlatformID != platformID {
			e.logger.WithFields(map[string]interface{}{
				"rule_id":     opts.RuleID,
				"platform_id": platformID,
			}).Warn("delegation rule does not apply to platform")
			return ""
		}
		if !rule.IsActive {
			e.logger.WithField("rule_id", opts.RuleID).Warn("delegation rule is inactive")
			return ""
		}

		if !containsAll(rule.Delegated) {
			for _, permission := range permissions {
				if !rbac.Matches(permission, rule.Delegated) {
					e.logger.WithFields(map[string]interface{}{
						"rule_id":    opts.RuleID,
						"permission": permission,
					}).Warn("permission outside rule's delegated set")
					return ""
				}
			}
		}
	}

	now := e.nowFn()
	var expiresAt *time.Time
	if opts.ExpiresInDays > 0 {
		t := now.Add(time.Duration(opts.ExpiresInDays) * 24 * time.Hour)
		expiresAt = &t
	}

	grant := &Grant{
		GrantID:    shortID("grant"),
		PlatformID: platformID,
		UserID:     userID,
		Granted:    append([]string(nil), permissions...),
		RuleID:     opts.RuleID,
		IsActive:   true,
		ExpiresAt:  expiresAt,
		CreatedAt:  now,
		UpdatedAt:  now,
		CreatedBy:  opts.DelegatedBy,
	}
	if rule != nil && rule.RequireApproval {
		grant.IsActive = false
	}

	e.grants[grant.GrantID] = grant
	e.permCache.Remove(cacheKey(platformID, userID))
	e.saveGrants()

	e.logger.WithFields(map[string]interface{}{
		"grant_id":    grant.GrantID,
		"platform_id": platformID,
		"user_id":     userID,
	}).Info("permissions delegated")
	return grant.GrantID
}

// ApproveGrant activates a pending grant. Approving a grant whose rule
// does not require approval fails and leaves state unchanged; a grant
// with no anchoring rule is approvable.
func (e *Engine) ApproveGrant(grantID, approvedBy string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	grant, ok := e.grants[grantID]
	if !ok {
		e.logger.WithField("grant_id", grantID).Warn("permission grant not found")
		return false
	}

	if grant.RuleID != "" {
		if rule, ok := e.rules[grant.RuleID]; ok && !rule.RequireApproval {
			e.logger.WithField("grant_id", grantID).Warn("grant does not require approval")
			return false
		}
	}

	grant.IsActive = true
	grant.ApprovedBy = approvedBy
	grant.UpdatedAt = e.nowFn()

	e.permCache.Remove(cacheKey(grant.PlatformID, grant.UserID))
	e.saveGrants()

	e.logger.WithFields(map[string]interface{}{
		"grant_id":    grantID,
		"approved_by": approvedBy,
	}).Info("permission grant approved")
	return true
}

// RevokeGrant deletes a grant
func (e *Engine) RevokeGrant(grantID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	grant, ok := e.grants[grantID]
	if !ok {
		e.logger.WithField("grant_id", grantID).Warn("permission grant not found")
		return false
	}

	delete(e.grants, grantID)
	e.permCache.Remove(cacheKey(grant.PlatformID, grant.UserID))
	e.saveGrants()

	e.logger.WithField("grant_id", grantID).Info("permission grant revoked")
	return true
}

// GetGrant returns a copy of a grant, or nil
func (e *Engine) GetGrant(grantID string) *Grant {
	e.mu.RLock()
	defer e.mu.RUnlock()

	grant, ok := e.grants[grantID]
	if !ok {
		return nil
	}
	return grant.clone()
}

// ListGrants returns grants matching the filter
func (e *Engine) ListGrants(filter GrantFilter) []*Grant {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []*Grant
	for _, grant := range e.grants {
		if filter.ActiveOnly && !grant.IsActive {
			continue
		}
		if filter.PlatformID != "" && grant.PlatformID != filter.PlatformID {
			continue
		}
		if filter.UserID != "" && grant.UserID != filter.UserID {
			continue
		}
		if filter.RuleID != "" && grant.RuleID != filter.RuleID {
			continue
		}
		out = append(out, grant.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GrantID < out[j].GrantID })
	return out
}

// UserPermissions returns the sorted union of granted permissions across
// the user's active, unexpired grants for a platform. Expiry is checked
// against the call time; expired grants are excluded without being
// deleted.
func (e *Engine) UserPermissions(platformID, userID string) []string {
	now := e.nowFn()
	key := cacheKey(platformID, userID)
	if cached, ok := e.permCache.Get(key); ok {
		if cached.validUntil == nil || now.Before(*cached.validUntil) {
			return append([]string(nil), cached.permissions...)
		}
		e.permCache.Remove(key)
	}

	e.mu.RLock()
	seen := make(map[string]struct{})
	var validUntil *time.Time
	for _, grant := range e.grants {
		if grant.PlatformID != platformID || grant.UserID != userID {
			continue
		}
		if !grant.IsActive || grant.expired(now) {
			continue
		}
		for _, permission := range grant.Granted {
			seen[permission] = struct{}{}
		}
		if grant.ExpiresAt != nil && (validUntil == nil || grant.ExpiresAt.Before(*validUntil)) {
			validUntil = grant.ExpiresAt
		}
	}

	permissions := make([]string, 0, len(seen))
	for permission := range seen {
		permissions = append(permissions, permission)
	}
	sort.Strings(permissions)

	// Insert while still holding the read lock. Mutators take the write
	// lock before purging the cache, so a revoke cannot slip between the
	// computation above and this insert and leave a stale set behind.
	e.permCache.Add(key, cachedPermissions{permissions: permissions, validUntil: validUntil})
	e.mu.RUnlock()
	return permissions
}

// CheckPermission reports whether the user's effective delegated set
// satisfies the permission. A granted "*" satisfies everything;
// otherwise the standard matching rule applies.
func (e *Engine) CheckPermission(platformID, userID, permission string) bool {
	permissions := e.UserPermissions(platformID, userID)
	for _, granted := range permissions {
		if granted == PermissionAll {
			return true
		}
	}
	return rbac.Matches(permission, permissions)
}

// CleanExpiredGrants deletes every grant whose expiry has passed and
// returns the number removed
func (e *Engine) CleanExpiredGrants() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.nowFn()
	removed := 0
	for grantID, grant := range e.grants {
		if grant.expired(now) {
			delete(e.grants, grantID)
			removed++
		}
	}

	if removed > 0 {
		e.permCache.Purge()
		e.saveGrants()
		e.logger.WithField("removed", removed).Info("expired permission grants cleaned")
	}
	return removed
}

// ActiveGrantCount returns the number of active grants
func (e *Engine) ActiveGrantCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	count := 0
	for _, grant := range e.grants {
		if grant.IsActive {
			count++
		}
	}
	return count
}

func containsAll(permissions []string) bool {
	for _, permission := range permissions {
		if permission == PermissionAll {
			return true
		}
	}
	return false
}
