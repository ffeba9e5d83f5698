package plans

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/storage"
)

const (
	plansTable         = "service_plans"
	subscriptionsTable = "user_subscriptions"
)

// Engine manages the plan catalog and user subscriptions.
type Engine struct {
	mu sync.Mutex

	plans         map[string]*Plan
	subscriptions map[string]*Subscription

	store  storage.Store
	logger *observability.Logger
	nowFn  func() time.Time
}

// NewEngine creates the engine, loads persisted plans and subscriptions,
// and seeds the default plan catalog when no plans exist.
func NewEngine(store storage.Store, logger *observability.Logger) (*Engine, error) {
	e := &Engine{
		plans:         make(map[string]*Plan),
		subscriptions: make(map[string]*Subscription),
		store:         store,
		logger:        logger,
		nowFn:         time.Now,
	}
	if err := e.load(); err != nil {
		return nil, err
	}
	if len(e.plans) == 0 {
		e.seedDefaultPlans()
	}
	e.logger.WithFields(map[string]interface{}{
		"plans":         len(e.plans),
		"subscriptions": len(e.subscriptions),
	}).Info("service plan engine initialized")
	return e, nil
}

func (e *Engine) load() error {
	if err := e.loadPlans(); err != nil {
		return err
	}
	return e.loadSubscriptions()
}

func (e *Engine) loadPlans() error {
	data, err := e.store.Load(context.Background(), plansTable)
	if err != nil {
		return err
	}
	if data == nil {
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		e.logger.WithError(err).Error("failed to decode service plans snapshot")
		return nil
	}
	for _, item := range raw {
		var plan Plan
		if err := json.Unmarshal(item, &plan); err != nil || plan.PlanID == "" || plan.Name == "" {
			e.logger.WithError(err).Error("skipping malformed service plan")
			continue
		}
		e.plans[plan.PlanID] = &plan
	}
	return nil
}

func (e *Engine) loadSubscriptions() error {
	data, err := e.store.Load(context.Background(), subscriptionsTable)
	if err != nil {
		return err
	}
	if data == nil {
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		e.logger.WithError(err).Error("failed to decode subscriptions snapshot")
		return nil
	}
	for _, item := range raw {
		var sub Subscription
		if err := json.Unmarshal(item, &sub); err != nil || sub.SubscriptionID == "" || sub.UserID == "" || sub.PlanID == "" {
			e.logger.WithError(err).Error("skipping malformed subscription")
			continue
		}
		e.subscriptions[sub.SubscriptionID] = &sub
	}
	return nil
}

// seedDefaultPlans installs the stock plan catalog; callers hold no lock
// (construction only)
func (e *Engine) seedDefaultPlans() {
	now := e.nowFn()
	defaults := []*Plan{
		{
			PlanID:      FreePlanID,
			Name:        "Free",
			Description: "Basic features for individual users",
			IsActive:    true,
			IsPublic:    true,
			ResourceLimits: ResourceLimits{
				MaxRequestsPerDay:     20,
				MaxTokensPerRequest:   2000,
				MaxTokensPerDay:       10000,
				MaxFilesStorage:       3,
				MaxFileSizeMB:         2.0,
				MaxConcurrentRequests: 1,
			},
			FeatureAccess: FeatureAccess{
				AllowedModels: []string{"gpt-3.5-turbo"},
				AllowedTools:  []string{"text-generation", "summarization"},
				CustomPrompts: true,
			},
			BasePermissions: []string{
				"agent.execute.basic",
				"agent.read",
				"content.read",
				"content.write.basic",
			},
			CreatedAt: now,
			UpdatedAt: now,
		},
		{
			PlanID:      "basic",
			Name:        "Basic",
			Description: "Expanded features for light users",
			IsActive:    true,
			IsPublic:    true,
			ResourceLimits: ResourceLimits{
				MaxRequestsPerDay:     100,
				MaxTokensPerRequest:   4000,
				MaxTokensPerDay:       50000,
				MaxFilesStorage:       10,
				MaxFileSizeMB:         5.0,
				MaxConcurrentRequests: 2,
			},
			FeatureAccess: FeatureAccess{
				AllowedModels: []string{"gpt-3.5-turbo", "gpt-4"},
				AllowedTools: []string{
					"text-generation",
					"summarization",
					"question-answering",
					"image-generation",
				},
				CustomPrompts: true,
				APIAccess:     true,
			},
			BasePermissions: []string{
				"agent.execute.basic",
				"agent.execute.advanced",
				"agent.read",
				"agent.create.basic",
				"content.read",
				"content.write.basic",
				"content.write.advanced",
				"api.access.basic",
			},
			PriceMonthly: 9.99,
			PriceYearly:  99.99,
			TrialDays:    7,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
		{
			PlanID:      "pro",
			Name:        "Pro",
			Description: "Full features for professional users",
			IsActive:    true,
			IsPublic:    true,
			ResourceLimits: ResourceLimits{
				MaxRequestsPerDay:     500,
				MaxTokensPerRequest:   8000,
				MaxTokensPerDay:       200000,
				MaxFilesStorage:       50,
				MaxFileSizeMB:         20.0,
				MaxConcurrentRequests: 5,
				PriorityQueue:         true,
			},
			FeatureAccess: FeatureAccess{
				AllowedModels: []string{"gpt-3.5-turbo", "gpt-4", "gpt-4-32k", "claude-3"},
				AllowedTools: []string{
					"text-generation",
					"summarization",
					"question-answering",
					"image-generation",
					"code-generation",
					"data-analysis",
					"file-processing",
				},
				CustomPrompts:     true,
				FineTuning:        true,
				TeamCollaboration: true,
				APIAccess:         true,
				WebhookSupport:    true,
				AdvancedAnalytics: true,
			},
			BasePermissions: []string{
				"agent.execute.*",
				"agent.read",
				"agent.create.*",
				"agent.edit.*",
				"content.read",
				"content.write.*",
				"content.publish",
				"api.access.*",
				"team.*",
			},
			PriceMonthly: 29.99,
			PriceYearly:  299.99,
			TrialDays:    14,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
		{
			PlanID:      "enterprise",
			Name:        "Enterprise",
			Description: "Custom features for organizations",
			IsActive:    true,
			// sold through sales, not self-serve
			IsPublic: false,
			ResourceLimits: ResourceLimits{
				MaxRequestsPerDay:     2000,
				MaxTokensPerRequest:   16000,
				MaxTokensPerDay:       1000000,
				MaxFilesStorage:       500,
				MaxFileSizeMB:         100.0,
				MaxConcurrentRequests: 20,
				PriorityQueue:         true,
			},
			FeatureAccess: FeatureAccess{
				AllowedModels: []string{
					"gpt-3.5-turbo",
					"gpt-4",
					"gpt-4-32k",
					"claude-3",
					"custom-models",
				},
				AllowedTools:      []string{"*"},
				CustomPrompts:     true,
				FineTuning:        true,
				TeamCollaboration: true,
				APIAccess:         true,
				WebhookSupport:    true,
				AdvancedAnalytics: true,
			},
			BasePermissions: []string{"*"},
			PriceMonthly:    99.99,
			PriceYearly:     999.99,
			TrialDays:       30,
			CreatedAt:       now,
			UpdatedAt:       now,
		},
	}
	for _, plan := range defaults {
		e.plans[plan.PlanID] = plan
	}
	e.savePlans()
}

func (e *Engine) savePlans() {
	plans := make([]*Plan, 0, len(e.plans))
	for _, plan := range e.plans {
		plans = append(plans, plan)
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].PlanID < plans[j].PlanID })

	data, err := json.Marshal(plans)
	if err != nil {
		e.logger.WithError(err).Error("failed to encode service plans snapshot")
		return
	}
	if err := e.store.Save(context.Background(), plansTable, data); err != nil {
		e.logger.WithError(err).Error("failed to persist service plans")
	}
}

func (e *Engine) saveSubscriptions() {
	subs := make([]*Subscription, 0, len(e.subscriptions))
	for _, sub := range e.subscriptions {
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].SubscriptionID < subs[j].SubscriptionID })

	data, err := json.Marshal(subs)
	if err != nil {
		e.logger.WithError(err).Error("failed to encode subscriptions snapshot")
		return
	}
	if err := e.store.Save(context.Background(), subscriptionsTable, data); err != nil {
		e.logger.WithError(err).Error("failed to persist subscriptions")
	}
}

// CreatePlan adds a new plan to the catalog. An existing plan id is
// rejected.
func (e *Engine) CreatePlan(planID, name string, opts PlanOptions) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.plans[planID]; ok {
		e.logger.WithField("plan_id", planID).Warn("plan id already exists")
		return false
	}

	now := e.nowFn()
	e.plans[planID] = &Plan{
		PlanID:          planID,
		Name:            name,
		Description:     opts.Description,
		IsActive:        opts.Active,
		IsPublic:        opts.Public,
		ResourceLimits:  opts.ResourceLimits,
		FeatureAccess:   opts.FeatureAccess,
		BasePermissions: append([]string(nil), opts.BasePermissions...),
		PriceMonthly:    opts.PriceMonthly,
		PriceYearly:     opts.PriceYearly,
		TrialDays:       opts.TrialDays,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	e.savePlans()

	e.logger.WithField("plan_id", planID).Info("service plan created")
	return true
}

// UpdatePlan applies the non-nil fields of the update. Existing
// subscriptions keep pointing at the edited plan.
func (e *Engine) UpdatePlan(planID string, update PlanUpdate) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	plan, ok := e.plans[planID]
	if !ok {
		e.logger.WithField("plan_id", planID).Warn("plan not found")
		return false
	}

	if update.Name != nil {
		plan.Name = *update.Name
	}
	if update.Description != nil {
		plan.Description = *update.Description
	}
	if update.IsActive != nil {
		plan.IsActive = *update.IsActive
	}
	if update.IsPublic != nil {
		plan.IsPublic = *update.IsPublic
	}
	if update.ResourceLimits != nil {
		plan.ResourceLimits = *update.ResourceLimits
	}
	if update.FeatureAccess != nil {
		plan.FeatureAccess = *update.FeatureAccess
	}
	if update.BasePermissions != nil {
		plan.BasePermissions = append([]string(nil), update.BasePermissions...)
	}
	if update.PriceMonthly != nil {
		plan.PriceMonthly = *update.PriceMonthly
	}
	if update.PriceYearly != nil {
		plan.PriceYearly = *update.PriceYearly
	}
	if update.TrialDays != nil {
		plan.TrialDays = *update.TrialDays
	}
	plan.UpdatedAt = e.nowFn()

	e.savePlans()
	e.logger.WithField("plan_id", planID).Info("service plan updated")
	return true
}

// DeletePlan removes a plan from the catalog. A plan with any active
// subscription is not deletable.
func (e *Engine) DeletePlan(planID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.plans[planID]; !ok {
		e.logger.WithField("plan_id", planID).Warn("plan not found")
		return false
	}
	for _, sub := range e.subscriptions {
		if sub.PlanID == planID && sub.IsActive {
			e.logger.WithFields(map[string]interface{}{
				"plan_id":         planID,
				"subscription_id": sub.SubscriptionID,
			}).Warn("plan has active subscriptions, not deleting")
			return false
		}
	}

	delete(e.plans, planID)
	e.savePlans()

	e.logger.WithField("plan_id", planID).Info("service plan deleted")
	return true
}

// GetPlan returns a copy of a plan, or nil.
func (e *Engine) GetPlan(planID string) *Plan {
	e.mu.Lock()
	defer e.mu.Unlock()

	plan, ok := e.plans[planID]
	if !ok {
		return nil
	}
	return plan.clone()
}

// ListPlans returns plans matching the filter, sorted by id.
func (e *Engine) ListPlans(filter PlanFilter) []*Plan {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []*Plan
	for _, plan := range e.plans {
		if filter.ActiveOnly && !plan.IsActive {
			continue
		}
		if filter.PublicOnly && !plan.IsPublic {
			continue
		}
		out = append(out, plan.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlanID < out[j].PlanID })
	return out
}

// SubscribeUser binds a user to a plan and returns the subscription id,
// or "" on rejection. The plan must exist and be active; a trial is
// rejected when the plan offers no trial days. Any prior active
// subscription for the user is cancelled first.
func (e *Engine) SubscribeUser(userID, planID string, opts SubscribeOptions) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	plan, ok := e.plans[planID]
	if !ok {
		e.logger.WithField("plan_id", planID).Warn("plan not found")
		return ""
	}
	if !plan.IsActive {
		e.logger.WithField("plan_id", planID).Warn("plan is inactive")
		return ""
	}

	now := e.nowFn()
	var endDate *time.Time
	if opts.Trial {
		if plan.TrialDays <= 0 {
			e.logger.WithField("plan_id", planID).Warn("plan offers no trial")
			return ""
		}
		t := now.Add(time.Duration(plan.TrialDays) * 24 * time.Hour)
		endDate = &t
	} else if opts.Months > 0 {
		t := now.Add(time.Duration(opts.Months) * 30 * 24 * time.Hour)
		endDate = &t
	}

	if current := e.activeSubscription(userID, now); current != nil {
		current.IsActive = false
		current.UpdatedAt = now
		e.logger.WithField("subscription_id", current.SubscriptionID).Info("prior subscription cancelled")
	}

	sub := &Subscription{
		SubscriptionID: "sub_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:8],
		UserID:         userID,
		PlanID:         planID,
		IsActive:       true,
		IsTrial:        opts.Trial,
		StartDate:      now,
		EndDate:        endDate,
		PaymentID:      opts.PaymentID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	e.subscriptions[sub.SubscriptionID] = sub
	e.saveSubscriptions()

	e.logger.WithFields(map[string]interface{}{
		"subscription_id": sub.SubscriptionID,
		"user_id":         userID,
		"plan_id":         planID,
		"trial":           opts.Trial,
	}).Info("user subscribed")
	return sub.SubscriptionID
}

// CancelSubscription deactivates a subscription. The record is kept for
// history.
func (e *Engine) CancelSubscription(subscriptionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	sub, ok := e.subscriptions[subscriptionID]
	if !ok {
		e.logger.WithField("subscription_id", subscriptionID).Warn("subscription not found")
		return false
	}

	sub.IsActive = false
	sub.UpdatedAt = e.nowFn()
	e.saveSubscriptions()

	e.logger.WithField("subscription_id", subscriptionID).Info("subscription cancelled")
	return true
}

// GetUserSubscription returns a copy of the user's active subscription,
// or nil. An active subscription found expired is deactivated and
// persisted on the spot.
func (e *Engine) GetUserSubscription(userID string) *Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()

	sub := e.activeSubscription(userID, e.nowFn())
	if sub == nil {
		return nil
	}
	return sub.clone()
}

// activeSubscription returns the user's live active subscription record,
// deactivating and persisting any expired one it encounters; callers
// hold the lock
func (e *Engine) activeSubscription(userID string, now time.Time) *Subscription {
	for _, sub := range e.subscriptions {
		if sub.UserID != userID || !sub.IsActive {
			continue
		}
		if sub.expired(now) {
			sub.IsActive = false
			sub.UpdatedAt = now
			e.saveSubscriptions()
			e.logger.WithFields(map[string]interface{}{
				"subscription_id": sub.SubscriptionID,
				"user_id":         userID,
			}).Info("subscription expired")
			continue
		}
		return sub
	}
	return nil
}

// UserPlan resolves the user's current plan, falling back to the free
// plan when the user has no active subscription or the subscribed plan
// is inactive.
func (e *Engine) UserPlan(userID string) *Plan {
	e.mu.Lock()
	defer e.mu.Unlock()

	if sub := e.activeSubscription(userID, e.nowFn()); sub != nil {
		if plan, ok := e.plans[sub.PlanID]; ok && plan.IsActive {
			return plan.clone()
		}
	}
	if plan, ok := e.plans[FreePlanID]; ok {
		return plan.clone()
	}
	return nil
}

// UserPermissions returns the base permission set of the user's plan.
func (e *Engine) UserPermissions(userID string) []string {
	plan := e.UserPlan(userID)
	if plan == nil {
		return nil
	}
	return plan.BasePermissions
}

// UserResourceLimits returns the resource limits of the user's plan, or
// the defaults when no plan resolves.
func (e *Engine) UserResourceLimits(userID string) ResourceLimits {
	plan := e.UserPlan(userID)
	if plan == nil {
		return DefaultResourceLimits()
	}
	return plan.ResourceLimits
}

// IsFeatureAllowed reports whether the user's plan grants a feature.
// "model:<name>" and "tool:<name>" check the plan's allow-lists, where a
// "*" member allows everything; bare keys check the matching boolean
// flag; unrecognized keys are denied.
func (e *Engine) IsFeatureAllowed(userID, feature string) bool {
	plan := e.UserPlan(userID)
	if plan == nil {
		return false
	}
	access := plan.FeatureAccess

	if model, ok := strings.CutPrefix(feature, FeatureModelPrefix); ok {
		return listAllows(access.AllowedModels, model)
	}
	if tool, ok := strings.CutPrefix(feature, FeatureToolPrefix); ok {
		return listAllows(access.AllowedTools, tool)
	}

	switch feature {
	case FeatureFineTuning:
		return access.FineTuning
	case FeatureCustomPrompts:
		return access.CustomPrompts
	case FeatureTeamCollaboration:
		return access.TeamCollaboration
	case FeatureAPIAccess:
		return access.APIAccess
	case FeatureWebhook:
		return access.WebhookSupport
	case FeatureAdvancedAnalytics:
		return access.AdvancedAnalytics
	}
	return false
}

// CleanExpiredSubscriptions deactivates every active subscription whose
// end date has passed and returns the number deactivated.
func (e *Engine) CleanExpiredSubscriptions() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.nowFn()
	count := 0
	for _, sub := range e.subscriptions {
		if sub.IsActive && sub.expired(now) {
			sub.IsActive = false
			sub.UpdatedAt = now
			count++
		}
	}
	if count > 0 {
		e.saveSubscriptions()
		e.logger.WithField("expired", count).Info("expired subscriptions deactivated")
	}
	return count
}

// ActiveSubscriptionCount returns the number of active subscriptions.
func (e *Engine) ActiveSubscriptionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	count := 0
	for _, sub := range e.subscriptions {
		if sub.IsActive {
			count++
		}
	}
	return count
}

func listAllows(list []string, name string) bool {
	for _, item := range list {
		if item == "*" || item == name {
			return true
		}
	}
	return false
}
