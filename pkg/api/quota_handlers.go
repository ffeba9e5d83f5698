package api

import (
	"net/http"

	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/quota"
)

func (s *Server) listQuotaConfigs(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]interface{}{"quotas": s.quota.Configs()})
}

func (s *Server) setQuotaConfig(w http.ResponseWriter, r *http.Request) {
	resourceType := httputil.GetPathVars(r)["resourceType"]

	var req struct {
		Limit    int64  `json:"limit"`
		Period   string `json:"period"`
		ResetDay *int   `json:"reset_day"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	period, err := quota.ParsePeriod(req.Period)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if req.ResetDay != nil && (*req.ResetDay < 1 || *req.ResetDay > 31) {
		httputil.WriteValidationError(w, "reset_day must be between 1 and 31")
		return
	}

	s.quota.SetQuota(resourceType, req.Limit, period, req.ResetDay)
	httputil.WriteSuccess(w, s.quota.GetQuota(resourceType))
}

func (s *Server) getQuotaConfig(w http.ResponseWriter, r *http.Request) {
	resourceType := httputil.GetPathVars(r)["resourceType"]

	config := s.quota.GetQuota(resourceType)
	if config == nil {
		httputil.WriteNotFoundError(w, "no quota configured")
		return
	}
	httputil.WriteSuccess(w, config)
}

func (s *Server) resetQuota(w http.ResponseWriter, r *http.Request) {
	resourceType := httputil.GetPathVars(r)["resourceType"]

	s.quota.ResetQuota(resourceType, "")
	httputil.WriteNoContent(w)
}

func (s *Server) resetUserQuota(w http.ResponseWriter, r *http.Request) {
	vars := httputil.GetPathVars(r)

	s.quota.ResetQuota(vars["resourceType"], vars["userID"])
	httputil.WriteNoContent(w)
}

func (s *Server) quotaStatus(w http.ResponseWriter, r *http.Request) {
	vars := httputil.GetPathVars(r)

	status := s.authz.QuotaStatus(vars["userID"], vars["resourceType"])
	httputil.WriteSuccess(w, status)
}

func (s *Server) consumeQuota(w http.ResponseWriter, r *http.Request) {
	vars := httputil.GetPathVars(r)

	var req struct {
		Amount int64 `json:"amount"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequirePositive(w, req.Amount, "amount") {
		return
	}

	if err := s.authz.TryConsumeQuota(vars["userID"], vars["resourceType"], req.Amount); err != nil {
		httputil.WriteError(w, http.StatusTooManyRequests, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"allowed": true,
		"used":    s.quota.GetUsage(vars["resourceType"], vars["userID"]),
	})
}

func (s *Server) releaseQuota(w http.ResponseWriter, r *http.Request) {
	vars := httputil.GetPathVars(r)

	var req struct {
		Amount int64 `json:"amount"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequirePositive(w, req.Amount, "amount") {
		return
	}

	s.authz.ReleaseQuota(vars["userID"], vars["resourceType"], req.Amount)
	httputil.WriteSuccess(w, map[string]interface{}{
		"used": s.quota.GetUsage(vars["resourceType"], vars["userID"]),
	})
}
