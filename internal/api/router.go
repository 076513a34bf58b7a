package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"

	apiContext "wagate/internal/api/context"
	"wagate/internal/api/handlers"
	"wagate/internal/api/middleware"
)

type Dependencies struct {
	AuthHandler      *handlers.AuthHandler
	OrgHandler       *handlers.OrgHandler
	InviteHandler    *handlers.InviteHandler
	UserHandler      *handlers.UserHandler
	SessionHandler   *handlers.SessionHandler
	MessageHandler   *handlers.MessageHandler
	WebhookHandler   *handlers.WebhookHandler
	AnalyticsHandler *handlers.AnalyticsHandler
	APIKeyHandler    *handlers.APIKeyHandler
	HealthHandler    *handlers.HealthHandler
	MetricsHandler   *handlers.MetricsHandler
	AuthMiddleware   *middleware.AuthMiddleware
	TenantMiddleware *middleware.TenantMiddleware
	RateLimiter      *middleware.RateLimiter
}

func NewRouter(deps *Dependencies) *httprouter.Router {
	router := httprouter.New()

	// Operational endpoints
	router.GET("/healthz", wrap(deps.HealthHandler.Check))
	router.GET("/metrics", wrap(deps.MetricsHandler.Export))

	// Authentication routes
	router.POST("/api/v1/auth/signup", wrap(deps.AuthHandler.Signup))
	router.POST("/api/v1/auth/login", wrap(deps.AuthHandler.Login))
	router.POST("/api/v1/auth/refresh", wrap(deps.AuthHandler.Refresh))

	authMid := deps.AuthMiddleware
	tenantMid := deps.TenantMiddleware
	readLimit := deps.RateLimiter.Limit("api_read")
	writeLimit := deps.RateLimiter.Limit("api_write")
	sendLimit := deps.RateLimiter.Limit("send")

	// Organization management
	router.POST("/api/v1/organizations", wrap(deps.OrgHandler.Create))
	router.GET("/api/v1/organizations/current",
		chain(deps.OrgHandler.GetCurrent, authMid.Handle, tenantMid.Handle, readLimit))
	router.PATCH("/api/v1/organizations/current",
		chain(deps.OrgHandler.Update, authMid.Handle, tenantMid.Handle, middleware.RequireRole("admin", "owner"), writeLimit))
	router.GET("/api/v1/organizations/members",
		chain(deps.OrgHandler.ListMembers, authMid.Handle, tenantMid.Handle, readLimit))

	// Invite management
	router.POST("/api/v1/invites",
		chain(deps.InviteHandler.Create, authMid.Handle, tenantMid.Handle, middleware.RequireRole("admin", "owner"), writeLimit))
	router.GET("/api/v1/invites",
		chain(deps.InviteHandler.List, authMid.Handle, tenantMid.Handle, middleware.RequireRole("admin", "owner"), readLimit))
	router.DELETE("/api/v1/invites/:invite_id",
		chain(deps.InviteHandler.Revoke, authMid.Handle, tenantMid.Handle, middleware.RequireRole("admin", "owner"), writeLimit))

	// Current user
	router.GET("/api/v1/users/me",
		chain(deps.UserHandler.Me, authMid.Handle, readLimit))
	router.PATCH("/api/v1/users/me",
		chain(deps.UserHandler.UpdateProfile, authMid.Handle, writeLimit))
	router.POST("/api/v1/users/me/password",
		chain(deps.UserHandler.ChangePassword, authMid.Handle, writeLimit))

	// Member management. Kept off /users/* so the routes never collide
	// with the static /users/me tree.
	router.PATCH("/api/v1/members/:user_id/role",
		chain(deps.UserHandler.UpdateRole, authMid.Handle, tenantMid.Handle, middleware.RequireRole("owner"), writeLimit))
	router.DELETE("/api/v1/members/:user_id",
		chain(deps.UserHandler.Remove, authMid.Handle, tenantMid.Handle, middleware.RequireRole("owner"), writeLimit))

	// Session management
	router.POST("/api/v1/sessions",
		chain(deps.SessionHandler.Create, authMid.Handle, tenantMid.Handle, writeLimit))
	router.GET("/api/v1/sessions",
		chain(deps.SessionHandler.List, authMid.Handle, tenantMid.Handle, readLimit))
	router.GET("/api/v1/sessions/:session_id",
		chain(deps.SessionHandler.Get, authMid.Handle, tenantMid.Handle, readLimit))
	router.GET("/api/v1/sessions/:session_id/qr",
		chain(deps.SessionHandler.QRCode, authMid.Handle, tenantMid.Handle, readLimit))
	router.DELETE("/api/v1/sessions/:session_id",
		chain(deps.SessionHandler.Delete, authMid.Handle, tenantMid.Handle, writeLimit))
	router.GET("/api/v1/sessions/:session_id/stats",
		chain(deps.AnalyticsHandler.SessionStats, authMid.Handle, tenantMid.Handle, readLimit))

	// Messaging
	router.POST("/api/v1/messages",
		chain(deps.MessageHandler.Send, authMid.Handle, tenantMid.Handle, sendLimit))
	router.GET("/api/v1/messages",
		chain(deps.MessageHandler.List, authMid.Handle, tenantMid.Handle, readLimit))
	router.GET("/api/v1/messages/:message_id",
		chain(deps.MessageHandler.Get, authMid.Handle, tenantMid.Handle, readLimit))

	// Webhook subscriptions
	router.POST("/api/v1/webhooks",
		chain(deps.WebhookHandler.Create, authMid.Handle, tenantMid.Handle, middleware.RequireRole("admin", "owner"), writeLimit))
	router.GET("/api/v1/webhooks",
		chain(deps.WebhookHandler.List, authMid.Handle, tenantMid.Handle, readLimit))
	router.GET("/api/v1/webhooks/:webhook_id",
		chain(deps.WebhookHandler.Get, authMid.Handle, tenantMid.Handle, readLimit))
	router.PATCH("/api/v1/webhooks/:webhook_id",
		chain(deps.WebhookHandler.Update, authMid.Handle, tenantMid.Handle, middleware.RequireRole("admin", "owner"), writeLimit))
	router.DELETE("/api/v1/webhooks/:webhook_id",
		chain(deps.WebhookHandler.Delete, authMid.Handle, tenantMid.Handle, middleware.RequireRole("admin", "owner"), writeLimit))
	router.POST("/api/v1/webhooks/:webhook_id/test",
		chain(deps.WebhookHandler.Test, authMid.Handle, tenantMid.Handle, writeLimit))
	router.GET("/api/v1/webhooks/:webhook_id/deliveries",
		chain(deps.WebhookHandler.Deliveries, authMid.Handle, tenantMid.Handle, readLimit))

	// Analytics
	router.GET("/api/v1/analytics/overview",
		chain(deps.AnalyticsHandler.Overview, authMid.Handle, tenantMid.Handle, readLimit))
	router.GET("/api/v1/analytics/deliveries",
		chain(deps.AnalyticsHandler.DeliverySummary, authMid.Handle, tenantMid.Handle, readLimit))

	// API keys
	router.POST("/api/v1/api-keys",
		chain(deps.APIKeyHandler.Create, authMid.Handle, tenantMid.Handle, middleware.RequireRole("admin", "owner"), writeLimit))
	router.GET("/api/v1/api-keys",
		chain(deps.APIKeyHandler.List, authMid.Handle, tenantMid.Handle, readLimit))
	router.DELETE("/api/v1/api-keys/:key_id",
		chain(deps.APIKeyHandler.Revoke, authMid.Handle, tenantMid.Handle, middleware.RequireRole("admin", "owner"), writeLimit))

	return router
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}
