package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"blockplay-backend/internal/config"
	"blockplay-backend/internal/games/crash"
	"blockplay-backend/internal/games/mines"
	"blockplay-backend/internal/games/slide"
	"blockplay-backend/internal/games/videopoker"
	"blockplay-backend/internal/handlers"
	"blockplay-backend/internal/middleware"
	"blockplay-backend/internal/settle"
	"blockplay-backend/internal/store"
)

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
	})

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", "err", err)
	}
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	st, err := store.NewRedisStore(cfg)
	if err != nil {
		logger.Fatal("failed to connect to redis", "err", err)
	}
	defer st.Close()

	transfer := settle.NewHTTPTransfer(cfg.TransferURL)
	settler := settle.NewCoordinator(transfer, cfg.TransferTimeout, logger)

	clock := quartz.NewReal()
	hub := handlers.NewWebSocketHub(logger)
	go hub.Run()

	minesGame := mines.New(st, settler, clock, logger, cfg.HouseEdgeBps, cfg.SessionTTL)
	crashGame := crash.New(st, settler, clock, logger, hub, crash.Config{
		Countdown:         cfg.Countdown,
		RoundGap:          cfg.RoundGap,
		TickInterval:      cfg.TickInterval,
		GrowthConstant:    cfg.GrowthConstant,
		MaxMultiplierX100: cfg.MaxMultiplierX100,
	})
	slideGame := slide.New(st, settler, clock, logger, hub, slide.Config{
		Countdown:         cfg.Countdown,
		RoundGap:          cfg.RoundGap,
		MaxMultiplierX100: cfg.MaxMultiplierX100,
	})
	pokerGame := videopoker.New(st, settler, clock, logger, cfg.SessionTTL)

	tokens := middleware.NewTokenService(cfg.JWTSecret, 24*time.Hour)
	userHandler := handlers.NewUserHandler(st, tokens)
	gameHandler := handlers.NewGameHandler(minesGame, crashGame, slideGame, pokerGame,
		st, logger, cfg.MaxMultiplierX100, cfg.HistorySize)
	wsHandler := handlers.NewWebSocketHandler(hub, logger)

	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	router.POST("/auth/session", userHandler.Authenticate)

	protected := router.Group("/api")
	protected.Use(middleware.AuthMiddleware(tokens))
	protected.Use(middleware.RateLimitMiddleware(st))
	{
		protected.GET("/balance", userHandler.GetBalance)
		protected.GET("/ws", wsHandler.HandleWebSocket)

		games := protected.Group("/games")
		{
			games.GET("/history/:game", gameHandler.GetHistory)
			games.POST("/verify", gameHandler.VerifyGame)

			m := games.Group("/mines")
			{
				m.POST("", gameHandler.CreateMines)
				m.GET("/current", gameHandler.CurrentMines)
				m.POST("/reveal", gameHandler.RevealMines)
				m.POST("/cashout", gameHandler.CashoutMines)
				m.POST("/claim", gameHandler.ClaimMines)
			}

			cr := games.Group("/crash")
			{
				cr.GET("", gameHandler.CrashState)
				cr.POST("/join", gameHandler.JoinCrash)
				cr.POST("/cashout", gameHandler.CashoutCrash)
				cr.POST("/claim", gameHandler.ClaimCrash)
			}

			sl := games.Group("/slide")
			{
				sl.GET("", gameHandler.SlideState)
				sl.POST("/join", gameHandler.JoinSlide)
				sl.POST("/claim", gameHandler.ClaimSlide)
			}

			vp := games.Group("/videopoker")
			{
				vp.POST("", gameHandler.InitPoker)
				vp.GET("/current", gameHandler.CurrentPoker)
				vp.POST("/draw", gameHandler.DrawPoker)
				vp.POST("/claim", gameHandler.ClaimPoker)
			}
		}
	}

	port := cfg.Port
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{Addr: ":" + port, Handler: router}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return crashGame.Run(ctx) })
	g.Go(func() error { return slideGame.Run(ctx) })
	g.Go(func() error {
		logger.Info("server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("server stopped", "err", err)
	}
	logger.Info("shutdown complete")
}
