// Package api exposes the policy, log, safety and alert surfaces over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/solana-sniper-bot/autotrader/internal/config"
	"github.com/solana-sniper-bot/autotrader/internal/copytrade"
	"github.com/solana-sniper-bot/autotrader/internal/models"
	"github.com/solana-sniper-bot/autotrader/internal/policy"
	"github.com/solana-sniper-bot/autotrader/internal/sniper"
	"github.com/solana-sniper-bot/autotrader/internal/tradelog"
	"github.com/solana-sniper-bot/autotrader/internal/utils"
)

const containerKey = "container"

type SniperStatus interface {
	Status(ctx context.Context, userID string) (sniper.Status, error)
}

type SafetyService interface {
	Evaluate(ctx context.Context, tokenID string) models.SafetyReport
	AddBadActor(wallet string)
	RemoveBadActor(wallet string)
	BadActors() []string
}

type AlertInbox interface {
	Alerts(userID string, unreadOnly bool) []models.Alert
	UnreadCount(userID string) int
	MarkRead(userID, alertID string) error
	MarkAllRead(userID string) int
	SetPreferences(p models.NotificationPreferences)
	Preferences(userID string) models.NotificationPreferences
}

// EventStream upgrades a request into a per-user event stream.
type EventStream interface {
	ServeWS(w http.ResponseWriter, r *http.Request, userID string)
}

// ReadinessCheck returns nil when the named dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// Container carries the services handlers need. It is attached to every
// request by middleware.
type Container struct {
	Config    *config.Config
	Logger    *utils.Logger
	Policies  *policy.Store
	Logs      tradelog.Store
	Sniper    SniperStatus
	Leaders   *copytrade.Registry
	Safety    SafetyService
	Alerts    AlertInbox
	Events    EventStream
	Metrics   http.Handler
	Checks    map[string]ReadinessCheck
	Version   string
	BuildTime string
	GitCommit string
}

func containerMiddleware(c *Container) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Set(containerKey, c)
		ctx.Next()
	}
}

func mustContainer(c *gin.Context) *Container {
	return c.MustGet(containerKey).(*Container)
}
