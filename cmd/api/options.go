package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/melih/lighthouse-sandbox/internal/adapters/azure"
	"github.com/melih/lighthouse-sandbox/internal/adapters/docker"
	"github.com/melih/lighthouse-sandbox/internal/adapters/http"
	"github.com/melih/lighthouse-sandbox/internal/adapters/lock"
	"github.com/melih/lighthouse-sandbox/internal/core/ports"
	"github.com/melih/lighthouse-sandbox/internal/core/services"
)

const (
	armScope        = "https://management.azure.com/.default"
	shutdownTimeout = 30 * time.Second
)

// RawOptions holds flag values. Defaults come from the environment.
type RawOptions struct {
	ListenAddr string

	SubscriptionID string
	TenantID       string
	ClientID       string
	ClientSecret   string

	ImageCheck        bool
	ImageCheckTimeout time.Duration

	RedisAddr     string
	RedisUsername string
	RedisPassword string
	RedisDB       int
	LockTTL       time.Duration

	OperationTimeout time.Duration
	SweepConcurrency int

	LogLevel  string
	LogFormat string
}

func DefaultOptions() *RawOptions {
	return &RawOptions{
		ListenAddr:        envString("LISTEN_ADDR", ":5000"),
		SubscriptionID:    envString("AZURE_SUBSCRIPTION_ID", ""),
		TenantID:          envString("AZURE_TENANT_ID", ""),
		ClientID:          envString("AZURE_CLIENT_ID", ""),
		ClientSecret:      envString("AZURE_CLIENT_SECRET", ""),
		ImageCheck:        envBool("IMAGE_CHECK", false),
		ImageCheckTimeout: envDuration("IMAGE_CHECK_TIMEOUT", 15*time.Second),
		RedisAddr:         envString("REDIS_ADDR", ""),
		RedisUsername:     envString("REDIS_USERNAME", ""),
		RedisPassword:     envString("REDIS_PASSWORD", ""),
		RedisDB:           envInt("REDIS_DB", 0),
		LockTTL:           envDuration("SESSION_LOCK_TTL", 15*time.Minute),
		OperationTimeout:  envDuration("OPERATION_TIMEOUT", 0),
		SweepConcurrency:  envInt("SWEEP_CONCURRENCY", 1),
		LogLevel:          envString("LOG_LEVEL", "info"),
		LogFormat:         envString("LOG_FORMAT", "json"),
	}
}

func (o *RawOptions) BindFlags(flags *pflag.FlagSet) {
	flags.StringVar(&o.ListenAddr, "listen-addr", o.ListenAddr, "Address the HTTP server listens on.")
	flags.StringVar(&o.SubscriptionID, "subscription-id", o.SubscriptionID, "Azure subscription sessions are created in (AZURE_SUBSCRIPTION_ID).")
	flags.StringVar(&o.TenantID, "tenant-id", o.TenantID, "Azure tenant of the service principal (AZURE_TENANT_ID).")
	flags.StringVar(&o.ClientID, "client-id", o.ClientID, "Client ID of the service principal (AZURE_CLIENT_ID).")
	flags.StringVar(&o.ClientSecret, "client-secret", o.ClientSecret, "Client secret of the service principal (AZURE_CLIENT_SECRET).")
	flags.BoolVar(&o.ImageCheck, "image-check", o.ImageCheck, "Resolve the container image through the Docker daemon before provisioning.")
	flags.DurationVar(&o.ImageCheckTimeout, "image-check-timeout", o.ImageCheckTimeout, "Timeout of a single image check.")
	flags.StringVar(&o.RedisAddr, "redis-addr", o.RedisAddr, "Redis address for session locks shared between replicas. Empty uses in-process locks.")
	flags.StringVar(&o.RedisUsername, "redis-username", o.RedisUsername, "Redis ACL username.")
	flags.StringVar(&o.RedisPassword, "redis-password", o.RedisPassword, "Redis password.")
	flags.IntVar(&o.RedisDB, "redis-db", o.RedisDB, "Redis database number.")
	flags.DurationVar(&o.LockTTL, "session-lock-ttl", o.LockTTL, "Expiry of a Redis session lock.")
	flags.DurationVar(&o.OperationTimeout, "operation-timeout", o.OperationTimeout, "Timeout of each Azure operation. Zero waits for the request to end.")
	flags.IntVar(&o.SweepConcurrency, "sweep-concurrency", o.SweepConcurrency, "Resource groups deleted at once by stop-all-containers.")
	flags.StringVar(&o.LogLevel, "log-level", o.LogLevel, "Log level (debug, info, warn, error).")
	flags.StringVar(&o.LogFormat, "log-format", o.LogFormat, "Log format (json or text).")
}

type ValidatedOptions struct {
	*RawOptions
	logLevel logrus.Level
}

func (o *RawOptions) Validate() (*ValidatedOptions, error) {
	var errs []error
	for _, required := range []struct{ flag, value string }{
		{"subscription-id", o.SubscriptionID},
		{"tenant-id", o.TenantID},
		{"client-id", o.ClientID},
		{"client-secret", o.ClientSecret},
	} {
		if required.value == "" {
			errs = append(errs, fmt.Errorf("%s is required", required.flag))
		}
	}
	if o.ListenAddr == "" {
		errs = append(errs, errors.New("listen-addr is required"))
	}
	if o.SweepConcurrency < 1 {
		errs = append(errs, fmt.Errorf("sweep-concurrency must be at least 1, got %d", o.SweepConcurrency))
	}
	if o.LogFormat != "json" && o.LogFormat != "text" {
		errs = append(errs, fmt.Errorf("log-format must be json or text, got %q", o.LogFormat))
	}
	level, err := logrus.ParseLevel(o.LogLevel)
	if err != nil {
		errs = append(errs, fmt.Errorf("invalid log-level: %w", err))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &ValidatedOptions{RawOptions: o, logLevel: level}, nil
}

// Options is the fully wired server.
type Options struct {
	listenAddr string
	app        *fiber.App
	log        logrus.FieldLogger
	closers    []func() error
}

func (o *ValidatedOptions) Complete(ctx context.Context) (*Options, error) {
	log := o.newLogger()

	credential, err := azidentity.NewClientSecretCredential(o.TenantID, o.ClientID, o.ClientSecret, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}
	if _, err := credential.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{armScope}}); err != nil {
		return nil, fmt.Errorf("failed to authenticate with Azure: %w", err)
	}

	provider, err := azure.NewAdapter(o.SubscriptionID, credential, nil, log)
	if err != nil {
		return nil, err
	}

	var prober ports.ImageProber
	if o.ImageCheck {
		dockerProber, err := docker.NewProber(o.ImageCheckTimeout, log)
		if err != nil {
			return nil, err
		}
		prober = dockerProber
	}

	var (
		locker  ports.SessionLocker = lock.NewMemory()
		closers []func() error
	)
	if o.RedisAddr != "" {
		redisLocker, err := lock.NewRedis(ctx, lock.RedisConfig{
			Addr:     o.RedisAddr,
			Username: o.RedisUsername,
			Password: o.RedisPassword,
			DB:       o.RedisDB,
			TTL:      o.LockTTL,
		}, log)
		if err != nil {
			return nil, err
		}
		locker = redisLocker
		closers = append(closers, redisLocker.Close)
	}

	service := services.NewSessionService(provider, prober, locker, log, services.Options{
		OperationTimeout: o.OperationTimeout,
		SweepConcurrency: o.SweepConcurrency,
	})

	log.WithFields(logrus.Fields{
		"subscription_id": o.SubscriptionID,
		"image_check":     o.ImageCheck,
		"redis_locks":     o.RedisAddr != "",
	}).Info("Session service configured")

	return &Options{
		listenAddr: o.ListenAddr,
		app:        http.NewApp(http.NewSessionHandler(service, log), log),
		log:        log,
		closers:    closers,
	}, nil
}

func (o *ValidatedOptions) newLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetLevel(o.logLevel)
	if o.LogFormat == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (o *Options) Run(ctx context.Context) error {
	defer func() {
		for _, closeFn := range o.closers {
			if err := closeFn(); err != nil {
				o.log.WithError(err).Warn("Failed to close resource")
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		o.log.WithField("addr", o.listenAddr).Info("Server starting")
		errCh <- o.app.Listen(o.listenAddr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	o.log.Info("Shutting down server")
	if err := o.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(envString(key, "")); err == nil {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v, err := strconv.Atoi(envString(key, "")); err == nil {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(envString(key, "")); err == nil {
		return v
	}
	return fallback
}
