package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"blockplay-backend/internal/middleware"
	"blockplay-backend/internal/models"
	"blockplay-backend/internal/store"
)

type UserHandler struct {
	store  store.Store
	tokens *middleware.TokenService
}

func NewUserHandler(st store.Store, tokens *middleware.TokenService) *UserHandler {
	return &UserHandler{store: st, tokens: tokens}
}

// Authenticate issues a wallet-scoped session token. Address ownership is the
// fronting gateway's responsibility; this service only binds the session to
// the address it was handed.
func (h *UserHandler) Authenticate(c *gin.Context) {
	var req struct {
		Address string `json:"address" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: address is required"})
		return
	}

	token, err := h.tokens.Issue(req.Address)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "address": req.Address})
}

func (h *UserHandler) GetBalance(c *gin.Context) {
	wallet := c.GetString("wallet")

	w, err := h.store.GetWallet(c.Request.Context(), wallet)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		// Balance excludes escrowed stakes; locked is what sits in escrow.
		"wallet": gin.H{
			"address":       w.Address,
			"available":     models.FormatAmount(w.Balance),
			"locked":        models.FormatAmount(w.LockedBalance),
			"balance":       models.FormatAmount(w.Balance + w.LockedBalance),
			"total_wagered": models.FormatAmount(w.TotalWagered),
			"total_won":     models.FormatAmount(w.TotalWon),
		},
	})
}
