package api

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/solana-sniper-bot/autotrader/internal/address"
	"github.com/solana-sniper-bot/autotrader/internal/models"
	"github.com/solana-sniper-bot/autotrader/internal/notify"
)

const readinessTimeout = 3 * time.Second

// healthCheckHandler returns the health status of the application
func healthCheckHandler(c *gin.Context) {
	app := mustContainer(c)
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"timestamp":   time.Now().UTC(),
		"version":     app.Version,
		"environment": app.Config.Environment,
	})
}

// readinessHandler runs every registered dependency check
func readinessHandler(c *gin.Context) {
	app := mustContainer(c)
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	status := http.StatusOK
	checks := gin.H{}
	for name, check := range app.Checks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	c.JSON(status, gin.H{
		"status":    state,
		"timestamp": time.Now().UTC(),
		"checks":    checks,
	})
}

// versionHandler returns version information
func versionHandler(c *gin.Context) {
	app := mustContainer(c)
	c.JSON(http.StatusOK, gin.H{
		"version":    app.Version,
		"build_time": app.BuildTime,
		"git_commit": app.GitCommit,
		"go_version": runtime.Version(),
	})
}

func safetyReportHandler(c *gin.Context) {
	token := c.Param("token")
	if err := address.Validate(token); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	respondOK(c, mustContainer(c).Safety.Evaluate(c.Request.Context(), token))
}

func listBadActorsHandler(c *gin.Context) {
	respondOK(c, mustContainer(c).Safety.BadActors())
}

type badActorRequest struct {
	Wallet string `json:"wallet" binding:"required"`
}

func addBadActorHandler(c *gin.Context) {
	var req badActorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	wallet := strings.TrimSpace(req.Wallet)
	if err := address.Validate(wallet); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	app := mustContainer(c)
	app.Safety.AddBadActor(wallet)
	app.Logger.Info("Bad actor added", "wallet", wallet, "by", currentUser(c))
	respondOK(c, app.Safety.BadActors())
}

func removeBadActorHandler(c *gin.Context) {
	app := mustContainer(c)
	app.Safety.RemoveBadActor(c.Param("wallet"))
	respondOK(c, app.Safety.BadActors())
}

func listAlertsHandler(c *gin.Context) {
	app := mustContainer(c)
	user := currentUser(c)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    app.Alerts.Alerts(user, c.Query("unread") == "true"),
		"unread":  app.Alerts.UnreadCount(user),
	})
}

type markReadRequest struct {
	AlertID string `json:"alert_id"`
}

// markAlertsReadHandler marks one alert read, or all of them when no id is given.
func markAlertsReadHandler(c *gin.Context) {
	app := mustContainer(c)
	user := currentUser(c)

	var req markReadRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	if req.AlertID == "" {
		respondOK(c, gin.H{"marked": app.Alerts.MarkAllRead(user)})
		return
	}
	if err := app.Alerts.MarkRead(user, req.AlertID); err != nil {
		if errors.Is(err, notify.ErrAlertNotFound) {
			respondError(c, http.StatusNotFound, err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, "failed to mark alert read")
		return
	}
	respondOK(c, gin.H{"marked": 1})
}

func getPreferencesHandler(c *gin.Context) {
	respondOK(c, mustContainer(c).Alerts.Preferences(currentUser(c)))
}

func putPreferencesHandler(c *gin.Context) {
	var prefs models.NotificationPreferences
	if err := c.ShouldBindJSON(&prefs); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	prefs.UserID = currentUser(c)

	app := mustContainer(c)
	app.Alerts.SetPreferences(prefs)
	respondOK(c, app.Alerts.Preferences(prefs.UserID))
}

func websocketHandler(c *gin.Context) {
	mustContainer(c).Events.ServeWS(c.Writer, c.Request, currentUser(c))
}
