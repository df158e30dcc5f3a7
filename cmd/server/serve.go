package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/codeduel/internal/auth"
	"github.com/jason-s-yu/codeduel/internal/cache"
	"github.com/jason-s-yu/codeduel/internal/config"
	"github.com/jason-s-yu/codeduel/internal/database"
	"github.com/jason-s-yu/codeduel/internal/handlers"
	"github.com/jason-s-yu/codeduel/internal/leetcode"
	"github.com/jason-s-yu/codeduel/internal/match"
	"github.com/jason-s-yu/codeduel/internal/matchmaking"
	"github.com/jason-s-yu/codeduel/internal/middleware"
	"github.com/jason-s-yu/codeduel/internal/problems"
	"github.com/jason-s-yu/codeduel/internal/scheduler"
	"github.com/jason-s-yu/codeduel/internal/session"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Args:  cobra.ExactArgs(0),
	Short: "Start the matchmaking server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger := cfg.NewLogger()

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		return serve(ctx, cfg, logger)
	},
}

func initAuth(cfg config.Config) error {
	expire, err := auth.ParseExpire(cfg.Auth.TokenExpire)
	if err != nil {
		return err
	}
	if cfg.Auth.PrivateKeyPath != "" {
		return auth.InitFromPath(cfg.Auth.PrivateKeyPath, cfg.Auth.PublicKeyPath, expire)
	}
	return auth.Init(expire)
}

func serve(ctx context.Context, cfg config.Config, logger *logrus.Logger) error {
	if err := initAuth(cfg); err != nil {
		return fmt.Errorf("init auth: %w", err)
	}
	if cfg.Auth.PrivateKeyPath == "" {
		logger.Warn("no signing keys configured, tokens will not survive a restart")
	}

	var repo database.Repository
	if cfg.InMemory {
		logger.Warn("running with in-memory storage")
		repo = database.NewMemoryRepository()
	} else {
		pool, err := database.ConnectDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			return err
		}
		repo = database.NewPostgresRepository(pool)
	}

	var service problems.Service = leetcode.NewClient(cfg.ProblemServiceURL, nil, logger)
	var storeOpts []match.Option
	if cfg.Redis.Enabled() {
		rdb, err := cache.ConnectRedis(ctx, cache.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer rdb.Close()
		service = cache.NewProblemCache(service, rdb, cfg.Redis.ProblemCacheTTL)
		storeOpts = append(storeOpts, match.WithEvents(cache.NewEventPublisher(rdb, cfg.Redis.EventQueue)))
		logger.Infof("redis enabled at %s", cfg.Redis.Addr)
	}

	selector := problems.NewSelector(service, cfg.Selector, logger)
	store := match.NewStore(repo, selector, logger, storeOpts...)
	engine := matchmaking.NewEngine(store, cfg.Matchmaking.RatingTolerance, logger)
	hub := session.NewHub(engine, store, service, session.Options{
		Countdown:        cfg.Matchmaking.CountdownSeconds,
		TickInterval:     cfg.Matchmaking.TickInterval,
		LivenessInterval: cfg.Matchmaking.LivenessInterval,
		InboundRate:      cfg.Matchmaking.InboundRPS,
		InboundBurst:     cfg.Matchmaking.InboundBurst,
		ClientBuffer:     cfg.Matchmaking.ClientBuffer,
	}, logger)
	defer hub.Close()

	sched, err := scheduler.New(hub, scheduler.Options{
		SweepInterval:   cfg.Matchmaking.SweepInterval,
		QueueStaleAfter: cfg.Matchmaking.QueueStaleAfter,
	}, logger)
	if err != nil {
		return err
	}
	sched.Start()
	defer func() {
		if err := sched.Shutdown(); err != nil {
			logger.WithError(err).Warn("scheduler shutdown")
		}
	}()

	mux := http.NewServeMux()
	api := handlers.NewAPI(hub, store, logger)
	api.OriginPatterns = cfg.OriginPatterns()
	api.SecureCookies = cfg.Production()
	api.Routes(mux, middleware.LogMiddleware(logger))

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Infof("Running on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server exited: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		logger.Info("stopping server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return group.Wait()
}
