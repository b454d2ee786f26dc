package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/cermofi/ReserveUMT/internal/http/handlers"
	mw "github.com/cermofi/ReserveUMT/internal/http/middleware"
	"github.com/cermofi/ReserveUMT/internal/platform/auth"
	"github.com/cermofi/ReserveUMT/internal/platform/mailer"
	"github.com/cermofi/ReserveUMT/internal/ratelimit"
	"github.com/cermofi/ReserveUMT/internal/repo/postgres"
	"github.com/cermofi/ReserveUMT/internal/schedule"
	"github.com/cermofi/ReserveUMT/internal/timeutil"
	"github.com/cermofi/ReserveUMT/pkg/config"
	"github.com/cermofi/ReserveUMT/pkg/database"
	"github.com/cermofi/ReserveUMT/pkg/events"
	"github.com/cermofi/ReserveUMT/pkg/logger"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	cal, err := timeutil.NewCalendar(cfg.Field.Timezone)
	if err != nil {
		logger.Error("Invalid timezone", "tz", cfg.Field.Timezone, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		logger.Error("Failed to migrate schema", "error", err)
		os.Exit(1)
	}

	var bus events.Publisher = events.NopBus{}
	if cfg.NATS.URL != "" {
		natsBus, err := events.NewNATSEventBus(cfg.NATS.URL)
		if err != nil {
			logger.Error("Failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer natsBus.Close()
		bus = natsBus
	}

	var limiter schedule.Limiter
	pgLimiter := ratelimit.NewPostgresLimiter(pool)
	limiter = pgLimiter
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Error("Invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		limiter = ratelimit.NewRedisLimiter(redis.NewClient(opts))
	}

	var sender mailer.Sender
	switch {
	case cfg.Email.DevMode:
		sender = mailer.NewDevSender()
	case cfg.Email.MailerSendKey != "":
		sender = mailer.NewMailerSend(cfg.Email.MailerSendKey, cfg.Email.SMTPFromName, cfg.Email.SMTPFrom)
	default:
		sender = mailer.NewSMTPSender(
			cfg.Email.SMTPHost, cfg.Email.SMTPPort,
			cfg.Email.SMTPFrom, cfg.Email.SMTPUser, cfg.Email.SMTPPass,
			cfg.Email.SMTPUseTLS,
		)
	}
	notifier := mailer.NewNotifier(sender, cal, cfg.Server.PublicURL)

	store := postgres.NewStore(pool)
	settings := postgres.NewSettingsStore(pool)
	audit := postgres.NewAuditLog(pool)
	svc := schedule.NewService(store, settings, limiter, notifier, audit, bus, cal)

	sessions := auth.NewSessions(cfg.Admin.JWTSecret, cfg.Admin.SessionTTL)
	h := handlers.New(svc, sessions, limiter, cal, cfg.Admin.PasswordHash)

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc:  func(r *http.Request, origin string) bool { return true },
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/bookings", h.ListCalendar)
		r.Get("/settings", h.GetSettings)
		r.Post("/bookings", h.RequestBooking)
		r.Post("/bookings/verify", h.VerifyCode)

		r.Route("/manage", func(r chi.Router) {
			r.Get("/booking", h.GetManagedBooking)
			r.Patch("/booking", h.UpdateManagedBooking)
			r.Delete("/booking", h.DeleteManagedBooking)
			r.Get("/bookings", h.ListManagedBookings)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/login", h.Login)
			r.Post("/logout", h.Logout)

			r.Group(func(r chi.Router) {
				r.Use(mw.AdminAuth(sessions))
				r.Get("/overview", h.Overview)
				r.Post("/bookings", h.CreateBooking)
				r.Patch("/bookings/{id}", h.UpdateBooking)
				r.Delete("/bookings/{id}", h.DeleteBooking)
				r.Get("/rules", h.ListRules)
				r.Post("/rules", h.CreateRule)
				r.Delete("/rules/{id}", h.DeleteRule)
				r.Delete("/rules/{id}/occurrences/{date}", h.DeleteOccurrence)
				r.Get("/settings", h.GetSettings)
				r.Post("/settings", h.SetSetting)
				r.Post("/rate-limits/clear", h.ClearRateLimits)
			})
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Background cleanup of expired pending bookings and stale rate-limit
	// counters.
	g.Go(func() error {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if n, err := store.DeleteExpiredPending(ctx, time.Now().Unix()); err != nil {
					logger.Warn("Pending cleanup failed", "error", err)
				} else if n > 0 {
					logger.Info("Purged expired pending bookings", "count", n)
				}
				if _, err := pgLimiter.CleanupExpired(ctx); err != nil {
					logger.Warn("Rate limit cleanup failed", "error", err)
				}
			}
		}
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}
