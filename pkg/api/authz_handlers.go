package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/warden/pkg/acl"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/httputil"
)

func (s *Server) checkPermission(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SubjectID  string `json:"subject_id"`
		Permission string `json:"permission"`
		PlatformID string `json:"platform_id"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.SubjectID, "subject_id") ||
		!httputil.RequireNonEmpty(w, req.Permission, "permission") {
		return
	}

	allowed, err := s.authz.CheckPermission(r.Context(), req.SubjectID, req.Permission, req.PlatformID)
	if err != nil {
		writeSubjectError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"subject_id": req.SubjectID,
		"permission": req.Permission,
		"allowed":    allowed,
	})
}

func (s *Server) checkResourceAccess(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SubjectID     string `json:"subject_id"`
		ResourceType  string `json:"resource_type"`
		ResourceID    string `json:"resource_id"`
		RequiredLevel string `json:"required_level"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.SubjectID, "subject_id") ||
		!httputil.RequireNonEmpty(w, req.ResourceID, "resource_id") {
		return
	}

	resourceType, err := acl.ParseResourceType(req.ResourceType)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	level, err := acl.ParseAccessLevelName(req.RequiredLevel)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	allowed, err := s.authz.CheckResourceAccess(r.Context(), req.SubjectID, resourceType, req.ResourceID, level)
	if err != nil {
		writeSubjectError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"subject_id":    req.SubjectID,
		"resource_type": resourceType.String(),
		"resource_id":   req.ResourceID,
		"allowed":       allowed,
	})
}

func (s *Server) subjectPermissions(w http.ResponseWriter, r *http.Request) {
	subjectID := httputil.GetPathVars(r)["subjectID"]
	platformID := httputil.ParseQueryString(r, "platform_id", "")

	permissions, err := s.authz.UserPermissions(r.Context(), subjectID, platformID)
	if err != nil {
		writeSubjectError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"subject_id":  subjectID,
		"permissions": permissions,
	})
}

func (s *Server) cleanExpired(w http.ResponseWriter, r *http.Request) {
	grants := s.delegation.CleanExpiredGrants()
	subscriptions := s.plans.CleanExpiredSubscriptions()

	s.logger.WithFields(map[string]interface{}{
		"grants":        grants,
		"subscriptions": subscriptions,
	}).Info("expired records cleaned")
	httputil.WriteSuccess(w, map[string]interface{}{
		"expired_grants":        grants,
		"expired_subscriptions": subscriptions,
	})
}

func writeSubjectError(w http.ResponseWriter, err error) {
	if errors.Is(err, auth.ErrUnknownSubject) {
		httputil.WriteNotFoundError(w, err.Error())
		return
	}
	httputil.WriteInternalError(w, err)
}
