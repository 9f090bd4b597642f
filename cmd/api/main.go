package main

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/BoweryJG/bowerycreativepayments/docs"
	"github.com/BoweryJG/bowerycreativepayments/internal/config"
	httphandler "github.com/BoweryJG/bowerycreativepayments/internal/handler/http"
	"github.com/BoweryJG/bowerycreativepayments/internal/repository"
	"github.com/BoweryJG/bowerycreativepayments/internal/service"
)

// @title           Bowery Creative Payments API
// @version         1.0
// @description     Billing portal backend: Stripe checkout, billing portal and webhook reconciliation.
//
// @host      localhost:8080
// @BasePath  /
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()
	if cfg.StripeWebhookSecret == "" {
		slog.Warn("STRIPE_WEBHOOK_SECRET is empty; webhook deliveries will be rejected")
	}

	db, err := repository.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := repository.Migrate(db); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("database ready", "path", cfg.DBPath)

	// DB -> repository -> service -> handlers
	repo := repository.NewSQLiteRepository(db)
	billingService := service.NewBillingService(repo, service.NewStripeGateway(cfg.StripeAPIKey), cfg)
	billingHandler := httphandler.NewBillingHandler(billingService)
	webhookHandler := httphandler.NewStripeWebhookHandler(billingService)
	authorizer := service.NewAuthorizer(cfg.AllowedEmails)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(prometheusMiddleware)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/swagger/*", httpSwagger.WrapHandler)

	// Webhook is authenticated by its signature, never by the allow-list.
	r.Post("/webhooks/stripe", webhookHandler.HandleStripeWebhook)

	r.Route("/api", func(r chi.Router) {
		r.Use(httphandler.RequireAuthorized(authorizer))
		r.Mount("/", billingHandler.Routes())
	})

	slog.Info("server listening", "addr", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, r); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
