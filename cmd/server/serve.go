package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-playbooks/internal/assignment"
	"go-playbooks/internal/chat"
	"go-playbooks/internal/collab"
	"go-playbooks/internal/db"
	"go-playbooks/internal/drafts"
	"go-playbooks/internal/gateway"
	"go-playbooks/internal/logger"
	"go-playbooks/internal/mailer"
	"go-playbooks/internal/marketplace"
	myMiddleware "go-playbooks/internal/middleware"
	"go-playbooks/internal/pages"
	"go-playbooks/internal/playbook"
	"go-playbooks/internal/user"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func serve(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.NewDatabase(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()
	log.Info().Msg("connected to postgres")

	if err := database.AutoMigrate(ctx); err != nil {
		return err
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	log.Info().Str("addr", cfg.RedisAddr).Msg("connected to redis")

	gw := gateway.New(database.Conn)

	var mail mailer.Sender = mailer.NopSender{Log: logger.Component(log, "mailer")}
	if cfg.MailEnabled() {
		mail = mailer.NewSMTPSender(mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		}, logger.Component(log, "mailer"))
	}

	userService := user.NewService(user.NewRepository(gw), cfg.JWTSecret)
	userHandler := user.NewHandler(userService)

	playbookService := playbook.NewService(playbook.NewRepository(gw), logger.Component(log, "playbook"))
	draftService := drafts.NewService(drafts.NewRedisStore(redisClient), playbookService, logger.Component(log, "drafts"))

	collabService := collab.NewService(collab.NewRepository(gw), playbookService, userService, mail, cfg.AppBaseURL,
		logger.Component(log, "collab"))
	assignmentService := assignment.NewService(assignment.NewRepository(gw), playbookService, logger.Component(log, "assignment"))
	pageService := pages.NewService(pages.NewRepository(gw), playbookService, logger.Component(log, "pages"))
	marketService := marketplace.NewService(marketplace.NewRepository(gw), playbookService,
		marketplace.NewRedisListingCache(redisClient, cfg.ListingCacheTTL), logger.Component(log, "marketplace"))
	playbookService.OnChange(marketService.PlaybookChanged)

	chatLog := logger.Component(log, "chat")
	hub := chat.NewHub(redisClient, chatLog)
	chatService := chat.NewService(chat.NewRepository(gw), playbookService, hub, chatLog)
	chatHandler := chat.NewHandler(hub, chatService, chatLog)

	authMiddleware := myMiddleware.NewAuthMiddleware(userService)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(myMiddleware.RequestLogger(logger.Component(log, "http")))
	r.Use(middleware.Recoverer)

	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)
		r.Get("/ws", chatHandler.ServeWs)

		r.Route("/api", func(r chi.Router) {
			r.Get("/users/search", userHandler.SearchUsers)
			playbook.NewHandler(playbookService).Routes(r)
			r.Route("/drafts", drafts.NewHandler(draftService).Routes)
			collab.NewHandler(collabService).Routes(r)
			assignment.NewHandler(assignmentService).Routes(r)
			pages.NewHandler(pageService).Routes(r)
			marketplace.NewHandler(marketService).Routes(r)
			chatHandler.Routes(r)
		})
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return hub.SubscribeToRedis(gctx)
	})
	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info().Msg("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
