package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"havenresearch/internal/app"
	"havenresearch/internal/authgate"
	"havenresearch/internal/config"
	"havenresearch/internal/identity"
	"havenresearch/internal/mailer"
	"havenresearch/internal/ratelimit"
	"havenresearch/internal/server"
	"havenresearch/internal/usertoken"
	"havenresearch/internal/util"
	"havenresearch/internal/worker"
	"havenresearch/pkg/queue"
	"havenresearch/pkg/storage"
	"havenresearch/pkg/store"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	idClient := identity.NewClient(cfg.AuthURL, cfg.AuthAnonKey)

	var verifier authgate.TokenVerifier
	if strings.TrimSpace(cfg.AuthJWTSecret) != "" {
		v, err := usertoken.NewVerifier(usertoken.Config{Secret: cfg.AuthJWTSecret})
		if err != nil {
			log.Fatalf("failed to init token verifier: %v", err)
		}
		verifier = v
	}

	gate := authgate.New(authgate.Config{
		Introspector: idClient,
		Verifier:     verifier,
		AllowLists:   authgate.EnvProvider(cfg.AllowedEmails, cfg.AllowedDomains),
	})

	reports, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init database: %v", err)
	}

	objects, err := storage.NewMinioStore(storage.MinioConfig{
		Endpoint:      cfg.MinioEndpoint,
		AccessKey:     cfg.MinioAccessKey,
		SecretKey:     cfg.MinioSecretKey,
		Bucket:        cfg.ReportsBucket,
		UseSSL:        cfg.MinioUseSSL,
		PublicBaseURL: cfg.StoragePublicBaseURL,
	})
	if err != nil {
		log.Fatalf("failed to init object storage: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appCfg := app.Config{
		Gate:    gate,
		Store:   reports,
		Objects: objects,
		Bucket:  cfg.ReportsBucket,
	}

	if strings.TrimSpace(cfg.RedisAddr) != "" && strings.TrimSpace(cfg.CleanupQueueStream) != "" {
		cleanupQueue, err := queue.NewRedisCleanupQueue(queue.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Stream:   cfg.CleanupQueueStream,
		})
		if err != nil {
			log.Fatalf("failed to init cleanup queue: %v", err)
		}
		appCfg.Cleanup = cleanupQueue
		worker.NewReconciler(cleanupQueue, objects, reports).Run(ctx, 1)
		slog.Info("cleanup reconciler started", "stream", cfg.CleanupQueueStream)
	}

	if strings.TrimSpace(cfg.MailAPIKey) != "" {
		endpoint := cfg.MailEndpoint
		if endpoint == "" {
			endpoint = "https://api.resend.com"
		}
		appCfg.Mail = mailer.NewClient(endpoint, cfg.MailAPIKey, cfg.MailFrom, cfg.MailTo)
	} else {
		slog.Warn("mail relay not configured, contact form submissions will fail")
	}

	appCore := app.New(appCfg)

	var contactLimiter server.Limiter
	if cfg.ContactRateLimitPerMinute > 0 {
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(
			cfg.RedisAddr, cfg.RedisPassword, "haven:contact", cfg.ContactRateLimitPerMinute, time.Minute)
		if err != nil {
			log.Fatalf("failed to init rate limiter: %v", err)
		}
		contactLimiter = limiter
	}

	trustedProxies, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		log.Fatalf("invalid trustedProxyCidrs: %v", err)
	}

	httpServer := server.New(server.Config{
		App:            appCore,
		ContactLimiter: contactLimiter,
		TrustedProxies: trustedProxies,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("research api listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
