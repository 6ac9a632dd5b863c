// Copyright 2026 The Atelier Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atelierhq/atelier/internal/audit"
	"github.com/atelierhq/atelier/internal/background"
	"github.com/atelierhq/atelier/internal/config"
	"github.com/atelierhq/atelier/internal/events"
	"github.com/atelierhq/atelier/internal/identity"
	"github.com/atelierhq/atelier/internal/notify"
	"github.com/atelierhq/atelier/internal/observability/logger"
	"github.com/atelierhq/atelier/internal/observability/metrics"
	"github.com/atelierhq/atelier/internal/observability/tracing"
	"github.com/atelierhq/atelier/internal/otp"
	"github.com/atelierhq/atelier/internal/records"
	"github.com/atelierhq/atelier/internal/session"
	"github.com/atelierhq/atelier/internal/signup"
	"github.com/atelierhq/atelier/internal/store/postgres"
	"github.com/atelierhq/atelier/internal/tenant"
	transportHTTP "github.com/atelierhq/atelier/internal/transport/http"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
	slog.Info("starting atelier workspace server")

	// CLI commands
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "bootstrap":
			if err := runBootstrap(cfg); err != nil {
				fmt.Printf("Bootstrap failed: %v\n", err)
				os.Exit(1)
			}
			os.Exit(0)
		case "migrate":
			if err := runMigrate(cfg); err != nil {
				fmt.Printf("Migration failed: %v\n", err)
				os.Exit(1)
			}
			os.Exit(0)
		}
	}

	ctx := context.Background()

	// Initialize tracer
	tracer, err := tracing.Init(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
		tracer = &tracing.Provider{}
	}
	defer tracer.Shutdown(ctx)

	// Initialize meter
	meter, err := metrics.New(ctx, metrics.Config{Enabled: cfg.Observability.OTELEnabled}, cfg.Observability.ServiceName)
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
		os.Exit(1)
	}
	recorder, err := metrics.NewRecorder(meter)
	if err != nil {
		slog.Error("failed to initialize metric instruments", logger.Error(err))
		os.Exit(1)
	}

	// Initialize database
	db, err := postgres.Open(ctx, cfg.Database.DSN())
	if err != nil {
		slog.Error("failed to connect to database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to database")

	// Initialize repositories
	userRepo := postgres.NewUserRepository(db)
	sessionRepo := postgres.NewSessionRepository(db)
	tenantRepo := postgres.NewTenantRepository(db)
	settingsRepo := postgres.NewSettingsRepository(db)
	subscriptionRepo := postgres.NewSubscriptionRepository(db)
	planRepo := postgres.NewPlanRepository(db)
	usageRepo := postgres.NewUsageRepository(db)
	catalogRepo := postgres.NewCatalogRepository(db)
	otpRepo := postgres.NewOTPRepository(db)

	auditLogger := audit.NewSlogLogger(slog.Default())

	// Event publisher
	var publisher events.Publisher = events.Noop{}
	if cfg.Events.NATSURL != "" {
		natsPublisher, err := events.NewNATSPublisher(events.NATSConfig{
			URL:    cfg.Events.NATSURL,
			Stream: cfg.Events.Stream,
			Name:   cfg.Observability.ServiceName,
		})
		if err != nil {
			slog.Error("failed to connect to nats, events disabled", logger.Error(err))
		} else {
			defer natsPublisher.Close()
			publisher = natsPublisher
		}
	}

	// Notifications
	renderer, err := notify.NewRenderer()
	if err != nil {
		slog.Error("failed to load email templates", logger.Error(err))
		os.Exit(1)
	}
	var mailer notify.Mailer = notify.LogMailer{}
	if cfg.Mail.Provider == "sendgrid" {
		mailer = notify.NewSendGridMailer(cfg.Mail.SendGridAPIKey, cfg.Mail.FromEmail, cfg.Mail.FromName)
	}
	var sms notify.SMSSender = notify.LogSMSSender{}
	if cfg.SMS.Provider == "gateway" {
		sms = notify.NewGatewaySMSSender(notify.GatewayConfig{
			URL:      cfg.SMS.GatewayURL,
			APIToken: cfg.SMS.APIToken,
			SenderID: cfg.SMS.SenderID,
			Timeout:  cfg.SMS.Timeout,
		})
	}
	dispatcher := notify.NewDispatcher(4, 256, 30*time.Second)
	notifier := notify.NewNotifier(renderer, mailer, sms, dispatcher, cfg.Mail.ProductName)

	// Initialize services
	identityService := newIdentityService(cfg, userRepo, auditLogger)
	sessionService := session.NewService(sessionRepo, cfg.Session.Lifetime, cfg.Session.IdleTimeout)

	bootstrapService := tenant.NewBootstrapService(postgres.NewProvisioner(db), recorder)
	tenantService := tenant.NewService(
		tenantRepo,
		settingsRepo,
		subscriptionRepo,
		planRepo,
		usageRepo,
		bootstrapService,
		publisher,
		auditLogger,
	)
	recordService := records.NewService(
		postgres.NewCustomerStore(db),
		postgres.NewOrderStore(db),
		postgres.NewWorkerStore(db),
		catalogRepo,
		catalogRepo,
	)
	otpService := otp.NewService(otpRepo, notifier, recorder, auditLogger, otp.Options{
		TTL:        cfg.OTP.TTL,
		MaxResends: cfg.OTP.MaxResends,
	})
	signupService := signup.NewService(
		tenantService,
		identityService,
		otpService,
		notifier,
		signup.NewLinkSigner(cfg.Auth.VerificationSecret, cfg.Auth.VerificationTTL),
		recorder,
		cfg.Auth.PublicBaseURL,
	)

	// Create the configured super-admin on first start
	if _, err := identity.NewBootstrapService(identityService).Bootstrap(ctx, bootstrapConfig(cfg)); err != nil {
		slog.Error("super admin bootstrap failed", logger.Error(err))
	}

	// Rate limiters
	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	defer rateLimiter.Stop()
	otpLimiter, closeOTPLimiter, err := transportHTTP.NewOTPLimiter(cfg.RateLimit.OTPRequests, cfg.RateLimit.OTPPeriod, cfg.RateLimit.RedisURL)
	if err != nil {
		slog.Error("failed to initialize otp rate limiter", logger.Error(err))
		os.Exit(1)
	}
	defer closeOTPLimiter()

	// Initialize HTTP handler
	handler := transportHTTP.NewHandler(
		transportHTTP.Services{
			Identity: identityService,
			Sessions: sessionService,
			Tenants:  tenantService,
			Records:  recordService,
			Signup:   signupService,
			Gate:     tenant.NewGate(tenantRepo, subscriptionRepo),
		},
		recorder,
		auditLogger,
		transportHTTP.SessionConfig{
			CookieName:     cfg.Session.CookieName,
			CookieDomain:   cfg.Session.CookieDomain,
			CookiePath:     cfg.Session.CookiePath,
			CookieSecure:   cfg.Session.CookieSecure,
			CookieHTTPOnly: cfg.Session.CookieHTTPOnly,
			CookieSameSite: transportHTTP.ParseSameSite(cfg.Session.CookieSameSite),
		},
		cfg.OTP.LoginRequiresOTP,
	)

	router := transportHTTP.NewRouter(handler, transportHTTP.RouterConfig{
		RequestTimeout: cfg.Server.RequestTimeout,
		RateLimiter:    rateLimiter,
		OTPLimiter:     otpLimiter,
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start maintenance sweeps
	var scheduler *background.Scheduler
	if cfg.Maintenance.Enabled {
		scheduler = background.NewScheduler(
			background.NewMaintenance(sessionService, subscriptionRepo, auditLogger),
			cfg.Maintenance.Schedule,
		)
		if err := scheduler.Start(); err != nil {
			slog.Error("failed to start maintenance scheduler", logger.Error(err))
			os.Exit(1)
		}
	}

	// Start server
	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"), logger.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", logger.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}
	if scheduler != nil {
		scheduler.Stop(shutdownCtx)
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		slog.Error("notification queue not drained", logger.Error(err))
	}

	slog.Info("server stopped")
}

func newIdentityService(cfg *config.Config, users identity.UserRepository, auditLogger audit.Logger) *identity.Service {
	hasher := identity.NewPasswordHasher(
		cfg.Security.Argon2Memory,
		cfg.Security.Argon2Iterations,
		cfg.Security.Argon2Parallelism,
		cfg.Security.Argon2SaltLength,
		cfg.Security.Argon2KeyLength,
	)
	return identity.NewService(
		users,
		hasher,
		auditLogger,
		cfg.Security.LockoutMaxAttempts,
		cfg.Security.LockoutDuration,
	)
}

func bootstrapConfig(cfg *config.Config) identity.BootstrapConfig {
	return identity.BootstrapConfig{
		Email:    cfg.Auth.BootstrapEmail,
		Password: cfg.Auth.BootstrapPassword,
		Name:     cfg.Auth.BootstrapName,
	}
}

// runBootstrap creates the configured super-admin and exits.
func runBootstrap(cfg *config.Config) error {
	ctx := context.Background()
	db, err := postgres.Open(ctx, cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer db.Close()

	identityService := newIdentityService(cfg, postgres.NewUserRepository(db), audit.NewSlogLogger(slog.Default()))
	u, err := identity.NewBootstrapService(identityService).Bootstrap(ctx, bootstrapConfig(cfg))
	if err != nil {
		return err
	}
	if u != nil {
		fmt.Printf("Super admin %s created.\n", u.Email)
	}
	return nil
}

func runMigrate(cfg *config.Config) error {
	ctx := context.Background()
	db, err := postgres.Open(ctx, cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Println("Applying migrations...")
	if err := db.MigrateUp(ctx); err != nil {
		return err
	}
	fmt.Println("Migration successful.")
	return nil
}
