package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/solana-sniper-bot/autotrader/internal/models"
	"github.com/solana-sniper-bot/autotrader/internal/policy"
)

func queryLimit(c *gin.Context, def int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		respondError(c, http.StatusBadRequest, "limit must be a non-negative integer")
		return 0, false
	}
	return n, true
}

// policyError maps a policy store error onto a response.
func policyError(c *gin.Context, err error) {
	var verr *policy.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": policy.ErrInvalidPolicy.Error(), "details": verr.Problems})
		return
	}
	mustContainer(c).Logger.Error("Policy store failure", "user_id", currentUser(c), "error", err)
	respondError(c, http.StatusInternalServerError, "failed to save policy")
}

// startSniperHandler replaces the caller's sniper policy and enables it.
func startSniperHandler(c *gin.Context) {
	app := mustContainer(c)

	var p models.SniperPolicy
	if err := c.ShouldBindJSON(&p); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	p.UserID = currentUser(c)
	p.Enabled = true

	if err := app.Policies.SetSniperPolicy(c.Request.Context(), p); err != nil {
		policyError(c, err)
		return
	}
	saved, _ := app.Policies.GetSniperPolicy(p.UserID)
	respondOK(c, saved)
}

func stopSniperHandler(c *gin.Context) {
	app := mustContainer(c)
	if err := app.Policies.DisableSniper(c.Request.Context(), currentUser(c)); err != nil {
		policyError(c, err)
		return
	}
	respondOK(c, gin.H{"enabled": false})
}

func getSniperConfigHandler(c *gin.Context) {
	p, ok := mustContainer(c).Policies.GetSniperPolicy(currentUser(c))
	if !ok {
		respondError(c, http.StatusNotFound, "no sniper policy configured")
		return
	}
	respondOK(c, p)
}

// putSniperConfigHandler fully replaces the caller's sniper policy.
func putSniperConfigHandler(c *gin.Context) {
	app := mustContainer(c)

	var p models.SniperPolicy
	if err := c.ShouldBindJSON(&p); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	p.UserID = currentUser(c)

	if err := app.Policies.SetSniperPolicy(c.Request.Context(), p); err != nil {
		policyError(c, err)
		return
	}
	saved, _ := app.Policies.GetSniperPolicy(p.UserID)
	respondOK(c, saved)
}

func sniperLogsHandler(c *gin.Context) {
	limit, ok := queryLimit(c, 0)
	if !ok {
		return
	}
	app := mustContainer(c)
	logs, err := app.Logs.SniperLogs(c.Request.Context(), currentUser(c), limit)
	if err != nil {
		app.Logger.Error("Failed to read sniper logs", "user_id", currentUser(c), "error", err)
		respondError(c, http.StatusInternalServerError, "failed to read sniper logs")
		return
	}
	respondOK(c, logs)
}

func sniperStatusHandler(c *gin.Context) {
	app := mustContainer(c)
	st, err := app.Sniper.Status(c.Request.Context(), currentUser(c))
	if err != nil {
		app.Logger.Error("Failed to build sniper status", "user_id", currentUser(c), "error", err)
		respondError(c, http.StatusInternalServerError, "failed to read sniper status")
		return
	}
	respondOK(c, st)
}

func leaderWalletsHandler(c *gin.Context) {
	limit, ok := queryLimit(c, 0)
	if !ok {
		return
	}
	app := mustContainer(c)
	sortBy := c.DefaultQuery("sortBy", "profit30d")
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    app.Leaders.List(sortBy, limit),
		"sortBy":  sortBy,
		"total":   app.Leaders.Len(),
	})
}

type followRequest struct {
	LeaderWalletAddress string   `json:"leader_wallet_address"`
	Enabled             *bool    `json:"enabled"`
	CopyPercentage      *float64 `json:"copy_percentage"`
	MaxCopyAmount       *float64 `json:"max_copy_amount"`
	StopLossPercent     *float64 `json:"stop_loss_percent"`
	TakeProfitPercent   *float64 `json:"take_profit_percent"`
	OnlyVerifiedTokens  *bool    `json:"only_verified_tokens"`
	SkipHighTax         *bool    `json:"skip_high_tax"`
	AutoSellWithLeader  *bool    `json:"auto_sell_with_leader"`
}

func (r followRequest) policy(userID string) models.CopyTradePolicy {
	boolOr := func(v *bool, def bool) bool {
		if v == nil {
			return def
		}
		return *v
	}
	floatOr := func(v *float64, def float64) float64 {
		if v == nil {
			return def
		}
		return *v
	}
	return models.CopyTradePolicy{
		UserID:              userID,
		LeaderWalletAddress: r.LeaderWalletAddress,
		Enabled:             boolOr(r.Enabled, true),
		CopyPercentage:      floatOr(r.CopyPercentage, 10),
		MaxCopyAmount:       floatOr(r.MaxCopyAmount, 0.1),
		StopLossPercent:     r.StopLossPercent,
		TakeProfitPercent:   r.TakeProfitPercent,
		OnlyVerifiedTokens:  boolOr(r.OnlyVerifiedTokens, true),
		SkipHighTax:         boolOr(r.SkipHighTax, true),
		AutoSellWithLeader:  boolOr(r.AutoSellWithLeader, true),
	}
}

// followHandler upserts the caller's policy for one leader. Omitted fields
// take the defaults: 10%, 0.1 SOL cap, verified tokens only, skip high tax,
// sell with the leader.
func followHandler(c *gin.Context) {
	app := mustContainer(c)

	var req followRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	p := req.policy(currentUser(c))
	if err := app.Policies.FollowLeader(c.Request.Context(), p); err != nil {
		policyError(c, err)
		return
	}
	respondOK(c, app.Policies.GetFollowedLeaders(p.UserID))
}

func unfollowHandler(c *gin.Context) {
	app := mustContainer(c)
	if err := app.Policies.UnfollowLeader(c.Request.Context(), currentUser(c), c.Param("leader")); err != nil {
		policyError(c, err)
		return
	}
	respondOK(c, app.Policies.GetFollowedLeaders(currentUser(c)))
}

func followingHandler(c *gin.Context) {
	respondOK(c, mustContainer(c).Policies.GetFollowedLeaders(currentUser(c)))
}

func copyTradesHandler(c *gin.Context) {
	limit, ok := queryLimit(c, 0)
	if !ok {
		return
	}
	app := mustContainer(c)
	logs, err := app.Logs.CopyTradeLogs(c.Request.Context(), currentUser(c), limit)
	if err != nil {
		app.Logger.Error("Failed to read copy-trade logs", "user_id", currentUser(c), "error", err)
		respondError(c, http.StatusInternalServerError, "failed to read copy-trade logs")
		return
	}
	respondOK(c, logs)
}
