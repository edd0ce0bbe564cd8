package handlers

import (
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"blockplay-backend/internal/fair"
	"blockplay-backend/internal/games/crash"
	"blockplay-backend/internal/games/mines"
	"blockplay-backend/internal/games/slide"
	"blockplay-backend/internal/games/videopoker"
	"blockplay-backend/internal/models"
	"blockplay-backend/internal/payout"
	"blockplay-backend/internal/store"
)

type GameHandler struct {
	mines  *mines.Game
	crash  *crash.Game
	slide  *slide.Game
	poker  *videopoker.Game
	store  store.Store
	logger *log.Logger

	maxMultiplierX100 int64
	historySize       int64
}

func NewGameHandler(m *mines.Game, c *crash.Game, s *slide.Game, p *videopoker.Game,
	st store.Store, logger *log.Logger, maxMultiplierX100, historySize int64) *GameHandler {
	return &GameHandler{
		mines:             m,
		crash:             c,
		slide:             s,
		poker:             p,
		store:             st,
		logger:            logger.WithPrefix("http"),
		maxMultiplierX100: maxMultiplierX100,
		historySize:       historySize,
	}
}

func respondError(c *gin.Context, err error) {
	kind := models.KindOf(err)

	var status int
	switch kind {
	case models.KindValidation:
		status = http.StatusBadRequest
	case models.KindNotFound:
		status = http.StatusNotFound
	case models.KindConflict:
		status = http.StatusConflict
	case models.KindTransferRejected, models.KindTransferUnknown:
		status = http.StatusBadGateway
	default:
		status = http.StatusInternalServerError
	}

	payload := gin.H{
		"error": err.Error(),
		"kind":  kind,
	}
	var de *models.Error
	if errors.As(err, &de) {
		payload["error"] = de.Message
		if de.Status != "" {
			payload["state"] = de.Status
		}
	}
	c.JSON(status, payload)
}

// sessionView is the client-facing session shape. The private seed and the
// mine layout stay hidden while the session is live; once terminal, the seed
// is revealed so the outcome can be verified independently.
func sessionView(s *models.Session) gin.H {
	seeds := gin.H{
		"public_seed":       s.Seeds.PublicSeed,
		"private_seed_hash": s.Seeds.PrivateSeedHash,
	}
	if s.Status != models.SessionLive {
		seeds["private_seed"] = s.Seeds.PrivateSeed
	}

	view := gin.H{
		"id":         s.ID,
		"game_type":  s.GameType,
		"stake":      s.Stake,
		"status":     s.Status,
		"seeds":      seeds,
		"payout":     s.Payout,
		"created_at": s.CreatedAt,
		"expires_at": s.ExpiresAt,
	}
	if !s.EndedAt.IsZero() {
		view["ended_at"] = s.EndedAt
	}
	if s.MultiplierX100 > 0 {
		view["multiplier"] = models.FormatMultiplier(s.MultiplierX100)
	}

	switch s.GameType {
	case models.GameTypeMines:
		view["mine_count"] = s.MineCount
		view["revealed_mask"] = s.RevealedMask
		view["revealed_count"] = s.RevealedCount()
		view["hit_mine"] = s.HitMine
	case models.GameTypeVideoPoker:
		view["dealt"] = payout.CardStrings(s.Dealt)
		if s.DrawDone {
			view["final"] = payout.CardStrings(s.Final)
			view["hand"] = s.HandRank
		}
	}
	return view
}

func betView(b *models.Bet) gin.H {
	view := gin.H{
		"round_id":  b.RoundID,
		"stake":     b.Stake,
		"status":    b.Status,
		"payout":    b.Payout,
		"placed_at": b.PlacedAt,
	}
	if b.TargetX100 > 0 {
		view["target"] = models.FormatMultiplier(b.TargetX100)
	}
	if b.CashoutX100 > 0 {
		view["cashout"] = models.FormatMultiplier(b.CashoutX100)
	}
	return view
}

func roundView(r models.Round) gin.H {
	seeds := gin.H{
		"public_seed":       r.Seeds.PublicSeed,
		"private_seed_hash": r.Seeds.PrivateSeedHash,
	}
	view := gin.H{
		"id":        r.ID,
		"game_type": r.GameType,
		"phase":     r.Phase,
		"seeds":     seeds,
	}
	if r.Phase == models.PhaseOver {
		seeds["private_seed"] = r.Seeds.PrivateSeed
		view["result"] = models.FormatMultiplier(r.ResultX100)
	}
	return view
}

// --- Mines ---

func (h *GameHandler) CreateMines(c *gin.Context) {
	wallet := c.GetString("wallet")

	var req models.MinesCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	session, err := h.mines.Create(c.Request.Context(), wallet, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "session": sessionView(session)})
}

func (h *GameHandler) RevealMines(c *gin.Context) {
	wallet := c.GetString("wallet")

	var req models.MinesRevealRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Cell == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: cell is required"})
		return
	}

	session, err := h.mines.Reveal(c.Request.Context(), wallet, *req.Cell)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "session": sessionView(session)})
}

func (h *GameHandler) CashoutMines(c *gin.Context) {
	wallet := c.GetString("wallet")

	session, err := h.mines.Cashout(c.Request.Context(), wallet)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "session": sessionView(session)})
}

func (h *GameHandler) ClaimMines(c *gin.Context) {
	wallet := c.GetString("wallet")

	session, err := h.mines.Claim(c.Request.Context(), wallet)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "session": sessionView(session)})
}

func (h *GameHandler) CurrentMines(c *gin.Context) {
	wallet := c.GetString("wallet")

	session, err := h.mines.Current(c.Request.Context(), wallet)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sessionView(session)})
}

// --- Crash ---

func (h *GameHandler) CrashState(c *gin.Context) {
	round, multX100, joined := h.crash.Snapshot()
	view := roundView(round)
	view["joined"] = joined
	if round.Phase == models.PhaseInProgress {
		view["multiplier"] = models.FormatMultiplier(multX100)
	}
	c.JSON(http.StatusOK, gin.H{"round": view})
}

func (h *GameHandler) JoinCrash(c *gin.Context) {
	wallet := c.GetString("wallet")

	var req models.JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	bet, err := h.crash.Join(c.Request.Context(), wallet, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "bet": betView(bet)})
}

func (h *GameHandler) CashoutCrash(c *gin.Context) {
	wallet := c.GetString("wallet")

	bet, err := h.crash.Cashout(c.Request.Context(), wallet)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "bet": betView(bet)})
}

func (h *GameHandler) ClaimCrash(c *gin.Context) {
	wallet := c.GetString("wallet")

	var req struct {
		RoundID string `json:"round_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: round_id is required"})
		return
	}

	bet, err := h.crash.Claim(c.Request.Context(), wallet, req.RoundID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "bet": betView(bet)})
}

// --- Slide ---

func (h *GameHandler) SlideState(c *gin.Context) {
	round, joined := h.slide.Snapshot()
	view := roundView(round)
	view["joined"] = joined
	c.JSON(http.StatusOK, gin.H{"round": view})
}

func (h *GameHandler) JoinSlide(c *gin.Context) {
	wallet := c.GetString("wallet")

	var req models.JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	bet, err := h.slide.Join(c.Request.Context(), wallet, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "bet": betView(bet)})
}

func (h *GameHandler) ClaimSlide(c *gin.Context) {
	wallet := c.GetString("wallet")

	var req struct {
		RoundID string `json:"round_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: round_id is required"})
		return
	}

	bet, err := h.slide.Claim(c.Request.Context(), wallet, req.RoundID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "bet": betView(bet)})
}

// --- Video poker ---

func (h *GameHandler) InitPoker(c *gin.Context) {
	wallet := c.GetString("wallet")

	var req models.PokerInitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	session, err := h.poker.Init(c.Request.Context(), wallet, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "session": sessionView(session)})
}

func (h *GameHandler) DrawPoker(c *gin.Context) {
	wallet := c.GetString("wallet")

	var req models.PokerDrawRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.HoldMask == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: hold_mask is required"})
		return
	}

	session, err := h.poker.Draw(c.Request.Context(), wallet, *req.HoldMask)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "session": sessionView(session)})
}

func (h *GameHandler) ClaimPoker(c *gin.Context) {
	wallet := c.GetString("wallet")

	session, err := h.poker.Claim(c.Request.Context(), wallet)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "session": sessionView(session)})
}

func (h *GameHandler) CurrentPoker(c *gin.Context) {
	wallet := c.GetString("wallet")

	session, err := h.poker.Current(c.Request.Context(), wallet)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sessionView(session)})
}

// --- History and verification ---

func (h *GameHandler) GetHistory(c *gin.Context) {
	game := models.GameType(c.Param("game"))
	switch game {
	case models.GameTypeCrash, models.GameTypeSlide:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "History is kept for crash and slide rounds"})
		return
	}

	entries, err := h.store.History(c.Request.Context(), game, h.historySize)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		out = append(out, gin.H{
			"round_id":     e.RoundID,
			"result":       models.FormatMultiplier(e.ResultX100),
			"public_seed":  e.Seeds.PublicSeed,
			"private_seed": e.Seeds.PrivateSeed,
			"ended_at":     e.EndedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"history": out})
}

// VerifyGame re-derives an outcome from a revealed seed pair so anyone can
// audit a finished round or session.
func (h *GameHandler) VerifyGame(c *gin.Context) {
	var req models.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	pair := models.SeedPair{
		PublicSeed:      req.PublicSeed,
		PrivateSeed:     req.PrivateSeed,
		PrivateSeedHash: req.Commitment,
	}
	if err := fair.VerifyCommitment(pair); err != nil {
		c.JSON(http.StatusOK, models.VerifyResponse{Valid: false})
		return
	}

	resp := models.VerifyResponse{Valid: true}
	switch req.GameType {
	case models.GameTypeCrash, models.GameTypeSlide:
		resp.ResultX100 = fair.ResultX100(req.PublicSeed, req.PrivateSeed, h.maxMultiplierX100)
		resp.Multiplier = models.FormatMultiplier(resp.ResultX100)
	case models.GameTypeMines:
		if req.MineCount < 1 || req.MineCount > 24 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "mine_count must be between 1 and 24"})
			return
		}
		resp.MineCells = fair.MineCells(req.PublicSeed, req.PrivateSeed, req.MineCount)
	case models.GameTypeVideoPoker:
		resp.Deck = payout.CardStrings(fair.ShuffleDeck(req.PublicSeed, req.PrivateSeed, fair.TagInit))
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown game type"})
		return
	}

	c.JSON(http.StatusOK, resp)
}
