package api

import (
	"net/http"

	"github.com/platinummonkey/warden/pkg/delegation"
	"github.com/platinummonkey/warden/pkg/httputil"
)

func (s *Server) createRule(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlatformID      string   `json:"platform_id"`
		Name            string   `json:"name"`
		Description     string   `json:"description"`
		Delegated       []string `json:"delegated_permissions"`
		MaxDepth        int      `json:"max_delegation_depth"`
		RequireApproval bool     `json:"require_approval"`
		CreatedBy       string   `json:"created_by"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.PlatformID, "platform_id") ||
		!httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}
	if len(req.Delegated) == 0 {
		httputil.WriteValidationError(w, "delegated_permissions is required")
		return
	}

	ruleID := s.delegation.CreateRule(req.PlatformID, req.Name, req.Delegated, delegation.RuleOptions{
		Description:     req.Description,
		MaxDepth:        req.MaxDepth,
		RequireApproval: req.RequireApproval,
		CreatedBy:       req.CreatedBy,
	})

	rule := s.delegation.GetRule(ruleID)
	if rule == nil {
		httputil.WriteInternalError(w, errEntryVanished)
		return
	}
	httputil.WriteCreated(w, rule)
}

func (s *Server) listRules(w http.ResponseWriter, r *http.Request) {
	activeOnly, err := httputil.ParseQueryBool(r, "active_only", true)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	rules := s.delegation.ListRules(delegation.RuleFilter{
		PlatformID: httputil.ParseQueryString(r, "platform_id", ""),
		ActiveOnly: activeOnly,
	})
	httputil.WriteSuccess(w, map[string]interface{}{"rules": rules})
}

func (s *Server) getRule(w http.ResponseWriter, r *http.Request) {
	rule := s.delegation.GetRule(httputil.GetPathVars(r)["ruleID"])
	if rule == nil {
		httputil.WriteNotFoundError(w, "rule not found")
		return
	}
	httputil.WriteSuccess(w, rule)
}

func (s *Server) updateRule(w http.ResponseWriter, r *http.Request) {
	ruleID := httputil.GetPathVars(r)["ruleID"]

	var req struct {
		PlatformID      *string  `json:"platform_id"`
		Name            *string  `json:"name"`
		Description     *string  `json:"description"`
		Delegated       []string `json:"delegated_permissions"`
		MaxDepth        *int     `json:"max_delegation_depth"`
		RequireApproval *bool    `json:"require_approval"`
		IsActive        *bool    `json:"is_active"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	ok := s.delegation.UpdateRule(ruleID, delegation.RuleUpdate{
		PlatformID:      req.PlatformID,
		Name:            req.Name,
		Description:     req.Description,
		Delegated:       req.Delegated,
		MaxDepth:        req.MaxDepth,
		RequireApproval: req.RequireApproval,
		IsActive:        req.IsActive,
	})
	if !ok {
		httputil.WriteNotFoundError(w, "rule not found")
		return
	}
	httputil.WriteSuccess(w, s.delegation.GetRule(ruleID))
}

func (s *Server) deleteRule(w http.ResponseWriter, r *http.Request) {
	if !s.delegation.DeleteRule(httputil.GetPathVars(r)["ruleID"]) {
		httputil.WriteNotFoundError(w, "rule not found")
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) delegatePermissions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlatformID    string   `json:"platform_id"`
		UserID        string   `json:"user_id"`
		Permissions   []string `json:"permissions"`
		RuleID        string   `json:"rule_id"`
		ExpiresInDays int      `json:"expires_in_days"`
		DelegatedBy   string   `json:"delegated_by"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.PlatformID, "platform_id") ||
		!httputil.RequireNonEmpty(w, req.UserID, "user_id") {
		return
	}
	if len(req.Permissions) == 0 {
		httputil.WriteValidationError(w, "permissions is required")
		return
	}

	grantID := s.delegation.DelegatePermissions(req.PlatformID, req.UserID, req.Permissions, delegation.DelegateOptions{
		RuleID:        req.RuleID,
		ExpiresInDays: req.ExpiresInDays,
		DelegatedBy:   req.DelegatedBy,
	})
	if grantID == "" {
		httputil.WriteErrorMessage(w, http.StatusUnprocessableEntity, "delegation rejected")
		return
	}

	grant := s.delegation.GetGrant(grantID)
	if grant == nil {
		httputil.WriteInternalError(w, errEntryVanished)
		return
	}
	httputil.WriteCreated(w, grant)
}

func (s *Server) listGrants(w http.ResponseWriter, r *http.Request) {
	activeOnly, err := httputil.ParseQueryBool(r, "active_only", false)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	grants := s.delegation.ListGrants(delegation.GrantFilter{
		PlatformID: httputil.ParseQueryString(r, "platform_id", ""),
		UserID:     httputil.ParseQueryString(r, "user_id", ""),
		RuleID:     httputil.ParseQueryString(r, "rule_id", ""),
		ActiveOnly: activeOnly,
	})
	httputil.WriteSuccess(w, map[string]interface{}{"grants": grants})
}

func (s *Server) getGrant(w http.ResponseWriter, r *http.Request) {
	grant := s.delegation.GetGrant(httputil.GetPathVars(r)["grantID"])
	if grant == nil {
		httputil.WriteNotFoundError(w, "grant not found")
		return
	}
	httputil.WriteSuccess(w, grant)
}

func (s *Server) revokeGrant(w http.ResponseWriter, r *http.Request) {
	if !s.delegation.RevokeGrant(httputil.GetPathVars(r)["grantID"]) {
		httputil.WriteNotFoundError(w, "grant not found")
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) approveGrant(w http.ResponseWriter, r *http.Request) {
	grantID := httputil.GetPathVars(r)["grantID"]

	var req struct {
		ApprovedBy string `json:"approved_by"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.ApprovedBy, "approved_by") {
		return
	}

	if !s.delegation.ApproveGrant(grantID, req.ApprovedBy) {
		httputil.WriteNotFoundError(w, "no pending grant to approve")
		return
	}
	httputil.WriteSuccess(w, s.delegation.GetGrant(grantID))
}

func (s *Server) delegatedPermissions(w http.ResponseWriter, r *http.Request) {
	vars := httputil.GetPathVars(r)
	platformID := vars["platformID"]
	userID := vars["userID"]

	permissions := s.delegation.UserPermissions(platformID, userID)
	httputil.WriteSuccess(w, map[string]interface{}{
		"platform_id": platformID,
		"user_id":     userID,
		"permissions": permissions,
	})
}
