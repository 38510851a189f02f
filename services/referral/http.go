package referral

import (
	"errors"
	"net/http"

	"referral-ledger/pkg/errutil"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the onboarding routes under /v1/referral.
func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/v1/referral")
	g.POST("/codes", h.createCode)
	g.GET("/codes/:code/validate", h.validateCode)
	g.POST("/redemptions", h.redeem)
	g.GET("/redemptions/referee/:referee_id", h.progress)
	g.POST("/activity", h.activity)
	g.GET("/users/:user_id/stats", h.stats)
	g.GET("/users/:user_id/rewards", h.rewards)
	g.GET("/referrers/:referrer_id/eligibility", h.eligibility)
}

type createCodeRequest struct {
	OwnerID string `json:"owner_id" binding:"required"`
}

func badRequest(err error) error {
	return errutil.BadRequest("invalid request body", err, errutil.WithDetails(errutil.Detail{Message: err.Error()}))
}

func (h *Handler) createCode(c *gin.Context) {
	var req createCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(badRequest(err))
		return
	}

	code, err := h.svc.GetOrCreateCode(c.Request.Context(), req.OwnerID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, code)
}

func (h *Handler) validateCode(c *gin.Context) {
	refereeID := c.Query("referee_id")
	if blankID(refereeID) {
		_ = c.Error(errutil.BadRequest("referee_id is required", nil))
		return
	}

	res, err := h.svc.ValidateCode(c.Request.Context(), c.Param("code"), refereeID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) redeem(c *gin.Context) {
	var req RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(badRequest(err))
		return
	}

	res, err := h.svc.Redeem(c.Request.Context(), req)
	if errors.Is(err, ErrMissingRefereeID) {
		_ = c.Error(errutil.BadRequest("referee_id is required", err))
		return
	}
	if errors.Is(err, ErrFraudBlocked) {
		_ = c.Error(errutil.Forbidden("redemption blocked", err))
		return
	}
	if err != nil {
		_ = c.Error(err)
		return
	}

	if !res.Validation.Valid {
		_ = c.Error(errutil.UnprocessableEntity("referral code cannot be redeemed", nil,
			errutil.WithDetails(errutil.Detail{Field: "code", Message: string(res.Validation.Reason)})))
		return
	}
	c.JSON(http.StatusCreated, res.Redemption)
}

func (h *Handler) progress(c *gin.Context) {
	view, err := h.svc.GetProgress(c.Request.Context(), c.Param("referee_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	if view == nil {
		_ = c.Error(errutil.NotFound("no redemption for referee", nil))
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) activity(c *gin.Context) {
	var req ActivityLogged
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(badRequest(err))
		return
	}
	if blankID(req.RefereeID) {
		_ = c.Error(errutil.BadRequest("referee_id is required", nil))
		return
	}

	ev, err := h.svc.EnqueueActivity(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(errutil.ServiceUnavailable("activity queue unavailable", err))
		return
	}
	c.JSON(http.StatusAccepted, ev)
}

func (h *Handler) stats(c *gin.Context) {
	stats, err := h.svc.GetStats(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) rewards(c *gin.Context) {
	rewards, err := h.svc.ListRewards(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rewards": rewards})
}

func (h *Handler) eligibility(c *gin.Context) {
	res, err := h.svc.ReferrerEligibility(c.Request.Context(), c.Param("referrer_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}
