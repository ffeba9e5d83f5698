package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/warden/pkg/acl"
	"github.com/platinummonkey/warden/pkg/authz"
	"github.com/platinummonkey/warden/pkg/delegation"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/plans"
	"github.com/platinummonkey/warden/pkg/quota"
)

const maxRequestBody = 1 << 20 // 1 MiB

// errEntryVanished covers the window between a successful engine write
// and the follow-up read used to build the response body.
var errEntryVanished = errors.New("entry missing after write")

// Config carries the server's collaborators.
type Config struct {
	Authz      *authz.Service
	ACL        *acl.Engine
	Delegation *delegation.Engine
	Quota      *quota.Engine
	Plans      *plans.Engine
	Logger     *observability.Logger
}

// Server is the HTTP front for the authorization engines.
type Server struct {
	authz      *authz.Service
	acl        *acl.Engine
	delegation *delegation.Engine
	quota      *quota.Engine
	plans      *plans.Engine
	logger     *observability.Logger
	router     *mux.Router
	handler    http.Handler
}

// NewServer creates a server and registers all routes.
func NewServer(cfg Config) *Server {
	s := &Server{
		authz:      cfg.Authz,
		acl:        cfg.ACL,
		delegation: cfg.Delegation,
		quota:      cfg.Quota,
		plans:      cfg.Plans,
		logger:     cfg.Logger,
		router:     mux.NewRouter(),
	}
	s.setupRoutes()
	s.handler = httputil.Chain(
		httputil.RequestID,
		httputil.Logging(s.logger),
		httputil.Recovery(s.logger),
		httputil.MaxBytes(maxRequestBody),
	)(s.router)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	v1 := s.router.PathPrefix("/v1").Subrouter()

	// access control entries
	v1.HandleFunc("/acl/entries", s.createACLEntry).Methods("POST")
	v1.HandleFunc("/acl/entries/{resourceType}/{resourceID}", s.getACLEntry).Methods("GET")
	v1.HandleFunc("/acl/entries/{resourceType}/{resourceID}", s.deleteACLEntry).Methods("DELETE")
	v1.HandleFunc("/acl/entries/{resourceType}/{resourceID}/users/{userID}", s.setUserAccess).Methods("PUT")
	v1.HandleFunc("/acl/entries/{resourceType}/{resourceID}/users/{userID}", s.removeUserAccess).Methods("DELETE")
	v1.HandleFunc("/acl/entries/{resourceType}/{resourceID}/teams/{teamID}", s.setTeamAccess).Methods("PUT")
	v1.HandleFunc("/acl/entries/{resourceType}/{resourceID}/teams/{teamID}", s.removeTeamAccess).Methods("DELETE")
	v1.HandleFunc("/acl/entries/{resourceType}/{resourceID}/owner", s.changeOwner).Methods("POST")
	v1.HandleFunc("/acl/entries/{resourceType}/{resourceID}/copy", s.copyACL).Methods("POST")
	v1.HandleFunc("/acl/entries/{resourceType}/{resourceID}/users", s.resourceUsers).Methods("GET")
	v1.HandleFunc("/acl/users/{userID}/resources/{resourceType}", s.accessibleResources).Methods("GET")

	// delegation rules and grants
	v1.HandleFunc("/delegation/rules", s.createRule).Methods("POST")
	v1.HandleFunc("/delegation/rules", s.listRules).Methods("GET")
	v1.HandleFunc("/delegation/rules/{ruleID}", s.getRule).Methods("GET")
	v1.HandleFunc("/delegation/rules/{ruleID}", s.updateRule).Methods("PATCH")
	v1.HandleFunc("/delegation/rules/{ruleID}", s.deleteRule).Methods("DELETE")
	v1.HandleFunc("/delegation/grants", s.delegatePermissions).Methods("POST")
	v1.HandleFunc("/delegation/grants", s.listGrants).Methods("GET")
	v1.HandleFunc("/delegation/grants/{grantID}", s.getGrant).Methods("GET")
	v1.HandleFunc("/delegation/grants/{grantID}", s.revokeGrant).Methods("DELETE")
	v1.HandleFunc("/delegation/grants/{grantID}/approve", s.approveGrant).Methods("POST")
	v1.HandleFunc("/delegation/platforms/{platformID}/users/{userID}/permissions", s.delegatedPermissions).Methods("GET")

	// quotas and usage
	v1.HandleFunc("/quotas", s.listQuotaConfigs).Methods("GET")
	v1.HandleFunc("/quotas/{resourceType}", s.setQuotaConfig).Methods("PUT")
	v1.HandleFunc("/quotas/{resourceType}", s.getQuotaConfig).Methods("GET")
	v1.HandleFunc("/quotas/{resourceType}/reset", s.resetQuota).Methods("POST")
	v1.HandleFunc("/quotas/{resourceType}/users/{userID}", s.quotaStatus).Methods("GET")
	v1.HandleFunc("/quotas/{resourceType}/users/{userID}/reset", s.resetUserQuota).Methods("POST")
	v1.HandleFunc("/quotas/{resourceType}/users/{userID}/consume", s.consumeQuota).Methods("POST")
	v1.HandleFunc("/quotas/{resourceType}/users/{userID}/release", s.releaseQuota).Methods("POST")

	// service plans and subscriptions
	v1.HandleFunc("/plans", s.createPlan).Methods("POST")
	v1.HandleFunc("/plans", s.listPlans).Methods("GET")
	v1.HandleFunc("/plans/{planID}", s.getPlan).Methods("GET")
	v1.HandleFunc("/plans/{planID}", s.updatePlan).Methods("PATCH")
	v1.HandleFunc("/plans/{planID}", s.deletePlan).Methods("DELETE")
	v1.HandleFunc("/subscriptions", s.subscribeUser).Methods("POST")
	v1.HandleFunc("/subscriptions/{subscriptionID}", s.cancelSubscription).Methods("DELETE")
	v1.HandleFunc("/users/{userID}/subscription", s.getUserSubscription).Methods("GET")
	v1.HandleFunc("/users/{userID}/plan", s.getUserPlan).Methods("GET")
	v1.HandleFunc("/users/{userID}/limits", s.getUserLimits).Methods("GET")
	v1.HandleFunc("/users/{userID}/features", s.checkFeature).Methods("GET")

	// combined authorization decisions
	v1.HandleFunc("/authz/permission-check", s.checkPermission).Methods("POST")
	v1.HandleFunc("/authz/access-check", s.checkResourceAccess).Methods("POST")
	v1.HandleFunc("/authz/subjects/{subjectID}/permissions", s.subjectPermissions).Methods("GET")

	// maintenance
	v1.HandleFunc("/maintenance/expired", s.cleanExpired).Methods("POST")
}
