package api

import (
	"net/http"
	"time"

	"github.com/platinummonkey/warden/pkg/acl"
	"github.com/platinummonkey/warden/pkg/httputil"
)

// entryResponse is the wire form of an ACL entry. Levels travel as
// names, not ranks.
type entryResponse struct {
	EntryID      string            `json:"entry_id"`
	ResourceType string            `json:"resource_type"`
	ResourceID   string            `json:"resource_id"`
	OwnerID      string            `json:"owner_id"`
	DefaultLevel string            `json:"default_level"`
	UserLevels   map[string]string `json:"user_levels"`
	TeamLevels   map[string]string `json:"team_levels"`
	IsPublic     bool              `json:"is_public"`
	PublicLevel  string            `json:"public_level"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

func toEntryResponse(e *acl.Entry) entryResponse {
	users := make(map[string]string, len(e.UserLevels))
	for id, level := range e.UserLevels {
		users[id] = level.String()
	}
	teams := make(map[string]string, len(e.TeamLevels))
	for id, level := range e.TeamLevels {
		teams[id] = level.String()
	}
	return entryResponse{
		EntryID:      e.EntryID,
		ResourceType: e.ResourceType.String(),
		ResourceID:   e.ResourceID,
		OwnerID:      e.OwnerID,
		DefaultLevel: e.DefaultLevel.String(),
		UserLevels:   users,
		TeamLevels:   teams,
		IsPublic:     e.IsPublic,
		PublicLevel:  e.PublicLevel.String(),
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
		Metadata:     e.Metadata,
	}
}

// resourceVars parses the {resourceType}/{resourceID} path pair,
// writing a 400 on an unknown type.
func resourceVars(w http.ResponseWriter, r *http.Request) (acl.ResourceType, string, bool) {
	vars := httputil.GetPathVars(r)
	resourceType, err := acl.ParseResourceType(vars["resourceType"])
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return "", "", false
	}
	return resourceType, vars["resourceID"], true
}

func parseLevel(w http.ResponseWriter, name string) (acl.AccessLevel, bool) {
	level, err := acl.ParseAccessLevelName(name)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return acl.AccessNone, false
	}
	return level, true
}

func (s *Server) createACLEntry(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ResourceType string            `json:"resource_type"`
		ResourceID   string            `json:"resource_id"`
		OwnerID      string            `json:"owner_id"`
		DefaultLevel string            `json:"default_level"`
		IsPublic     bool              `json:"is_public"`
		PublicLevel  string            `json:"public_level"`
		Metadata     map[string]string `json:"metadata"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.ResourceID, "resource_id") ||
		!httputil.RequireNonEmpty(w, req.OwnerID, "owner_id") {
		return
	}

	resourceType, err := acl.ParseResourceType(req.ResourceType)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	opts := acl.DefaultEntryOptions()
	opts.IsPublic = req.IsPublic
	opts.Metadata = req.Metadata
	if req.DefaultLevel != "" {
		level, ok := parseLevel(w, req.DefaultLevel)
		if !ok {
			return
		}
		opts.DefaultLevel = level
	}
	if req.PublicLevel != "" {
		level, ok := parseLevel(w, req.PublicLevel)
		if !ok {
			return
		}
		opts.PublicLevel = level
	}

	entryID := s.acl.CreateEntry(resourceType, req.ResourceID, req.OwnerID, opts)
	entry := s.acl.GetEntry(resourceType, req.ResourceID)
	if entry == nil {
		httputil.WriteInternalError(w, errEntryVanished)
		return
	}
	s.logger.WithField("entry_id", entryID).Debug("acl entry created")
	httputil.WriteCreated(w, toEntryResponse(entry))
}

func (s *Server) getACLEntry(w http.ResponseWriter, r *http.Request) {
	resourceType, resourceID, ok := resourceVars(w, r)
	if !ok {
		return
	}

	entry := s.acl.GetEntry(resourceType, resourceID)
	if entry == nil {
		httputil.WriteNotFoundError(w, "acl entry not found")
		return
	}
	httputil.WriteSuccess(w, toEntryResponse(entry))
}

func (s *Server) deleteACLEntry(w http.ResponseWriter, r *http.Request) {
	resourceType, resourceID, ok := resourceVars(w, r)
	if !ok {
		return
	}

	if !s.acl.DeleteEntry(resourceType, resourceID) {
		httputil.WriteNotFoundError(w, "acl entry not found")
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) setUserAccess(w http.ResponseWriter, r *http.Request) {
	resourceType, resourceID, ok := resourceVars(w, r)
	if !ok {
		return
	}
	userID := httputil.GetPathVars(r)["userID"]

	var req struct {
		Level string `json:"level"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	level, ok := parseLevel(w, req.Level)
	if !ok {
		return
	}

	if !s.acl.SetUserAccess(resourceType, resourceID, userID, level) {
		httputil.WriteNotFoundError(w, "acl entry not found")
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) removeUserAccess(w http.ResponseWriter, r *http.Request) {
	resourceType, resourceID, ok := resourceVars(w, r)
	if !ok {
		return
	}
	userID := httputil.GetPathVars(r)["userID"]

	if !s.acl.RemoveUserAccess(resourceType, resourceID, userID) {
		httputil.WriteNotFoundError(w, "no access to remove")
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) setTeamAccess(w http.ResponseWriter, r *http.Request) {
	resourceType, resourceID, ok := resourceVars(w, r)
	if !ok {
		return
	}
	teamID := httputil.GetPathVars(r)["teamID"]

	var req struct {
		Level string `json:"level"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	level, ok := parseLevel(w, req.Level)
	if !ok {
		return
	}

	if !s.acl.SetTeamAccess(resourceType, resourceID, teamID, level) {
		httputil.WriteNotFoundError(w, "acl entry not found")
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) removeTeamAccess(w http.ResponseWriter, r *http.Request) {
	resourceType, resourceID, ok := resourceVars(w, r)
	if !ok {
		return
	}
	teamID := httputil.GetPathVars(r)["teamID"]

	if !s.acl.RemoveTeamAccess(resourceType, resourceID, teamID) {
		httputil.WriteNotFoundError(w, "no access to remove")
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) changeOwner(w http.ResponseWriter, r *http.Request) {
	resourceType, resourceID, ok := resourceVars(w, r)
	if !ok {
		return
	}

	var req struct {
		NewOwnerID string `json:"new_owner_id"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.NewOwnerID, "new_owner_id") {
		return
	}

	if !s.acl.ChangeOwner(resourceType, resourceID, req.NewOwnerID) {
		httputil.WriteNotFoundError(w, "acl entry not found")
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) copyACL(w http.ResponseWriter, r *http.Request) {
	srcType, srcID, ok := resourceVars(w, r)
	if !ok {
		return
	}

	var req struct {
		DestType   string `json:"dest_type"`
		DestID     string `json:"dest_id"`
		NewOwnerID string `json:"new_owner_id"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.DestID, "dest_id") {
		return
	}

	dstType, err := acl.ParseResourceType(req.DestType)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	if !s.acl.CopyACL(srcType, srcID, dstType, req.DestID, req.NewOwnerID) {
		// The engine collapses both failure causes; distinguish them at
		// the boundary so the status code does not mislead.
		if s.acl.GetEntry(dstType, req.DestID) != nil {
			httputil.WriteConflict(w, "destination acl entry already exists")
			return
		}
		httputil.WriteNotFoundError(w, "source acl entry not found")
		return
	}

	entry := s.acl.GetEntry(dstType, req.DestID)
	if entry == nil {
		httputil.WriteInternalError(w, errEntryVanished)
		return
	}
	httputil.WriteCreated(w, toEntryResponse(entry))
}

func (s *Server) resourceUsers(w http.ResponseWriter, r *http.Request) {
	resourceType, resourceID, ok := resourceVars(w, r)
	if !ok {
		return
	}

	minLevel := acl.AccessRead
	if name := httputil.ParseQueryString(r, "min_level", ""); name != "" {
		level, ok := parseLevel(w, name)
		if !ok {
			return
		}
		minLevel = level
	}

	users := s.acl.ResourceUsers(resourceType, resourceID, minLevel)
	httputil.WriteSuccess(w, map[string]interface{}{
		"resource_type": resourceType.String(),
		"resource_id":   resourceID,
		"users":         users,
	})
}

func (s *Server) accessibleResources(w http.ResponseWriter, r *http.Request) {
	vars := httputil.GetPathVars(r)
	userID := vars["userID"]
	resourceType, err := acl.ParseResourceType(vars["resourceType"])
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	minLevel := acl.AccessRead
	if name := httputil.ParseQueryString(r, "min_level", ""); name != "" {
		level, ok := parseLevel(w, name)
		if !ok {
			return
		}
		minLevel = level
	}
	teamIDs := r.URL.Query()["team"]

	resources := s.acl.AccessibleResources(userID, resourceType, minLevel, teamIDs)
	httputil.WriteSuccess(w, map[string]interface{}{
		"user_id":       userID,
		"resource_type": resourceType.String(),
		"resources":     resources,
	})
}
