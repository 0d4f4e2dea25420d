// README: HTTP router registration.
package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"novobot/internal/http/handlers"
	"novobot/internal/http/middleware"
	"novobot/internal/infra"
)

type RouterDeps struct {
	Chat  *handlers.ChatHandler
	Admin *handlers.AdminHandler
	Info  *handlers.InfoHandler
	// Verifier guards the operator endpoints; nil leaves them unregistered.
	Verifier           infra.OperatorVerifier
	WebhookToken       string
	RateLimitPerMinute int
	Log                *zap.Logger
}

func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(d.Log), middleware.Logging(d.Log))

	r.GET("/health", d.Info.Health)
	r.GET("/info", d.Info.Info)

	webhook := []gin.HandlerFunc{middleware.SharedToken(d.WebhookToken)}
	if d.RateLimitPerMinute > 0 {
		webhook = append(webhook, middleware.NewRateLimiter(d.RateLimitPerMinute).Middleware(handlers.PhoneKey))
	}
	webhook = append(webhook, d.Chat.Webhook)
	r.POST("/webhook/whatsapp", webhook...)
	r.POST("/api/chat", middleware.SharedToken(d.WebhookToken), d.Chat.Chat)

	if d.Verifier != nil && d.Admin != nil {
		admin := r.Group("/api", middleware.Auth(d.Verifier), middleware.RequireRole(infra.RoleAdmin, infra.RoleOperator))
		admin.GET("/users/:phone/preferences", d.Admin.Preferences)
		admin.GET("/users/:phone/bookings", d.Admin.UserBookings)
		admin.GET("/bookings/:id", d.Admin.Booking)
		admin.GET("/conversations/:id/turns", d.Admin.Turns)
		admin.POST("/bookings/:id/complete", d.Admin.Complete)
		admin.POST("/bookings/:id/cancel", d.Admin.Cancel)
	}
	return r
}
