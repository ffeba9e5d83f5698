package api

import (
	"net/http"

	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/plans"
)

func (s *Server) createPlan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlanID          string                `json:"plan_id"`
		Name            string                `json:"name"`
		Description     string                `json:"description"`
		IsActive        *bool                 `json:"is_active"`
		IsPublic        *bool                 `json:"is_public"`
		ResourceLimits  *plans.ResourceLimits `json:"resource_limits"`
		FeatureAccess   *plans.FeatureAccess  `json:"feature_access"`
		BasePermissions []string              `json:"base_permissions"`
		PriceMonthly    float64               `json:"price_monthly"`
		PriceYearly     float64               `json:"price_yearly"`
		TrialDays       int                   `json:"trial_days"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.PlanID, "plan_id") ||
		!httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	opts := plans.DefaultPlanOptions()
	opts.Description = req.Description
	opts.BasePermissions = req.BasePermissions
	opts.PriceMonthly = req.PriceMonthly
	opts.PriceYearly = req.PriceYearly
	opts.TrialDays = req.TrialDays
	if req.IsActive != nil {
		opts.Active = *req.IsActive
	}
	if req.IsPublic != nil {
		opts.Public = *req.IsPublic
	}
	if req.ResourceLimits != nil {
		opts.ResourceLimits = *req.ResourceLimits
	}
	if req.FeatureAccess != nil {
		opts.FeatureAccess = *req.FeatureAccess
	}

	if !s.plans.CreatePlan(req.PlanID, req.Name, opts) {
		httputil.WriteConflict(w, "plan id already exists")
		return
	}
	httputil.WriteCreated(w, s.plans.GetPlan(req.PlanID))
}

func (s *Server) listPlans(w http.ResponseWriter, r *http.Request) {
	activeOnly, err := httputil.ParseQueryBool(r, "active_only", false)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	publicOnly, err := httputil.ParseQueryBool(r, "public_only", false)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	list := s.plans.ListPlans(plans.PlanFilter{ActiveOnly: activeOnly, PublicOnly: publicOnly})
	httputil.WriteSuccess(w, map[string]interface{}{"plans": list})
}

func (s *Server) getPlan(w http.ResponseWriter, r *http.Request) {
	plan := s.plans.GetPlan(httputil.GetPathVars(r)["planID"])
	if plan == nil {
		httputil.WriteNotFoundError(w, "plan not found")
		return
	}
	httputil.WriteSuccess(w, plan)
}

func (s *Server) updatePlan(w http.ResponseWriter, r *http.Request) {
	planID := httputil.GetPathVars(r)["planID"]

	var req struct {
		Name            *string               `json:"name"`
		Description     *string               `json:"description"`
		IsActive        *bool                 `json:"is_active"`
		IsPublic        *bool                 `json:"is_public"`
		ResourceLimits  *plans.ResourceLimits `json:"resource_limits"`
		FeatureAccess   *plans.FeatureAccess  `json:"feature_access"`
		BasePermissions []string              `json:"base_permissions"`
		PriceMonthly    *float64              `json:"price_monthly"`
		PriceYearly     *float64              `json:"price_yearly"`
		TrialDays       *int                  `json:"trial_days"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	ok := s.plans.UpdatePlan(planID, plans.PlanUpdate{
		Name:            req.Name,
		Description:     req.Description,
		IsActive:        req.IsActive,
		IsPublic:        req.IsPublic,
		ResourceLimits:  req.ResourceLimits,
		FeatureAccess:   req.FeatureAccess,
		BasePermissions: req.BasePermissions,
		PriceMonthly:    req.PriceMonthly,
		PriceYearly:     req.PriceYearly,
		TrialDays:       req.TrialDays,
	})
	if !ok {
		httputil.WriteNotFoundError(w, "plan not found")
		return
	}
	httputil.WriteSuccess(w, s.plans.GetPlan(planID))
}

func (s *Server) deletePlan(w http.ResponseWriter, r *http.Request) {
	planID := httputil.GetPathVars(r)["planID"]

	if s.plans.GetPlan(planID) == nil {
		httputil.WriteNotFoundError(w, "plan not found")
		return
	}
	if !s.plans.DeletePlan(planID) {
		httputil.WriteConflict(w, "plan has active subscriptions")
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) subscribeUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string `json:"user_id"`
		PlanID    string `json:"plan_id"`
		Trial     bool   `json:"trial"`
		Months    int    `json:"months"`
		PaymentID string `json:"payment_id"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.UserID, "user_id") ||
		!httputil.RequireNonEmpty(w, req.PlanID, "plan_id") {
		return
	}

	subID := s.plans.SubscribeUser(req.UserID, req.PlanID, plans.SubscribeOptions{
		Trial:     req.Trial,
		Months:    req.Months,
		PaymentID: req.PaymentID,
	})
	if subID == "" {
		httputil.WriteErrorMessage(w, http.StatusUnprocessableEntity, "subscription rejected")
		return
	}

	sub := s.plans.GetUserSubscription(req.UserID)
	if sub == nil {
		httputil.WriteInternalError(w, errEntryVanished)
		return
	}
	httputil.WriteCreated(w, sub)
}

func (s *Server) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	if !s.plans.CancelSubscription(httputil.GetPathVars(r)["subscriptionID"]) {
		httputil.WriteNotFoundError(w, "subscription not found")
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) getUserSubscription(w http.ResponseWriter, r *http.Request) {
	sub := s.plans.GetUserSubscription(httputil.GetPathVars(r)["userID"])
	if sub == nil {
		httputil.WriteNotFoundError(w, "no active subscription")
		return
	}
	httputil.WriteSuccess(w, sub)
}

func (s *Server) getUserPlan(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, s.plans.UserPlan(httputil.GetPathVars(r)["userID"]))
}

func (s *Server) getUserLimits(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, s.plans.UserResourceLimits(httputil.GetPathVars(r)["userID"]))
}

func (s *Server) checkFeature(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetPathVars(r)["userID"]
	feature := httputil.ParseQueryString(r, "feature", "")
	if !httputil.RequireNonEmpty(w, feature, "feature") {
		return
	}

	allowed := s.authz.FeatureAllowed(userID, feature)
	httputil.WriteSuccess(w, map[string]interface{}{
		"user_id": userID,
		"feature": feature,
		"allowed": allowed,
	})
}
