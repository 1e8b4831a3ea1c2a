// @title        SafeClaw Gateway
// @version      1.0
// @description  Privacy-preserving, TEE-gated multi-channel agent gateway.
// @host         localhost:8080
// @BasePath     /
package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"

	"github.com/arc-self/safeclaw-gateway/internal/audit"
	"github.com/arc-self/safeclaw-gateway/internal/channels"
	"github.com/arc-self/safeclaw-gateway/internal/config"
	"github.com/arc-self/safeclaw-gateway/internal/errs"
	"github.com/arc-self/safeclaw-gateway/internal/events"
	"github.com/arc-self/safeclaw-gateway/internal/events/memoryprovider"
	"github.com/arc-self/safeclaw-gateway/internal/events/natsprovider"
	"github.com/arc-self/safeclaw-gateway/internal/orchestrator"
	"github.com/arc-self/safeclaw-gateway/internal/privacy"
	"github.com/arc-self/safeclaw-gateway/internal/session"
	"github.com/arc-self/safeclaw-gateway/internal/tee"
	"github.com/arc-self/safeclaw-gateway/internal/telemetry"
)

func main() {
	logger, err := telemetry.NewLogger(os.Getenv("ENV") == "production")
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		telemetry.InitTracerProvider("safeclaw-gateway")
		logger.Info("otel tracer provider initialized", zap.String("endpoint", endpoint))
	}

	runtime := tee.Detect()
	logger.Info("tee detection complete", zap.String("level", runtime.Level().String()))

	vaultSecrets := loadVaultSecrets(logger)

	bus := audit.NewBus()
	globalLog := audit.NewRingLog(5000)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	startAuditConsumers(ctx, bus, globalLog, logger)

	eventBus, err := newEventBus(ctx, vaultSecrets, logger)
	if err != nil {
		logger.Fatal("failed to initialize event bus", zap.Error(err))
	}

	sessionMgr := session.NewManager(session.Config{
		TeeEnabled:         runtime.IsTeeActive(),
		SessionLogCapacity: 500,
	}, runtime, bus, logger)

	classifier := privacy.DefaultChain()
	router := orchestrator.NewRouter(sessionMgr, classifier, privacy.DefaultWarnThreshold, privacy.DefaultRejectThreshold, logger)
	pending := orchestrator.NewMemoryPendingStore()
	processor := orchestrator.NewProcessor(router, sessionMgr, bus, pending, logger)

	adapters := make(map[string]channels.Adapter)
	var adaptersMu sync.RWMutex
	lookup := func(channelID string) (channels.Adapter, bool) {
		adaptersMu.RLock()
		defer adaptersMu.RUnlock()
		a, ok := adapters[channelID]
		return a, ok
	}

	sweeper := orchestrator.NewSweeper(processor, sessionMgr, lookup, logger)
	if err := sweeper.Start(ctx); err != nil {
		logger.Fatal("failed to start sweeper", zap.Error(err))
	}
	defer sweeper.Stop()

	middlewareAuth := channels.NewAuthMiddleware()
	registerChannelAuth(middlewareAuth, vaultSecrets)
	authLayer := channels.NewAuthLayer(middlewareAuth, bus)

	e := echo.New()
	e.HideBanner = true
	e.Use(otelecho.Middleware("safeclaw-gateway"))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("http request", zap.String("uri", v.URI), zap.Int("status", v.Status))
			return nil
		},
	}))
	e.Use(middleware.Recover())

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "tee_level": runtime.Level().String()})
	})

	newWebhookHandler(processor, authLayer, lookup, logger).Register(e)

	_ = eventBus // built above; nothing in this process publishes to or subscribes on it

	go func() {
		addr := os.Getenv("LISTEN_ADDR")
		if addr == "" {
			addr = ":8080"
		}
		logger.Info("safeclaw-gateway listening", zap.String("addr", addr))
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failure", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Info("initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	cancel() // stop audit consumers and the sweeper's background context

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("echo shutdown error", zap.Error(err))
	}
	logger.Info("safeclaw-gateway shut down cleanly")
}

// loadVaultSecrets loads channel signing secrets and the event bus DSN
// from Vault when VAULT_ADDR is configured, returning nil otherwise. With
// no secrets only Telegram's ChannelAuth is registered, and the event bus
// uses NATS only when NATS_URL is set in the environment (else the
// in-memory provider).
func loadVaultSecrets(logger *zap.Logger) map[string]any {
	addr := os.Getenv("VAULT_ADDR")
	if addr == "" {
		return nil
	}
	token := os.Getenv("VAULT_TOKEN")
	path := os.Getenv("VAULT_SECRET_PATH")
	if path == "" {
		path = "secret/data/arc/safeclaw-gateway"
	}

	mgr, err := config.NewSecretManager(addr, token)
	if err != nil {
		logger.Warn("vault connection failed, continuing without secrets", zap.Error(err))
		return nil
	}
	secrets, err := mgr.GetKV2(path)
	if err != nil {
		logger.Warn("failed to load secrets from vault, continuing without them", zap.Error(err))
		return nil
	}
	return secrets
}

func stringSecret(secrets map[string]any, key string) string {
	if secrets == nil {
		return ""
	}
	v, _ := secrets[key].(string)
	return v
}

func registerChannelAuth(middlewareAuth *channels.AuthMiddleware, secrets map[string]any) {
	middlewareAuth.Register(channels.NewTelegramAuth())
	if v := stringSecret(secrets, "SLACK_SIGNING_SECRET"); v != "" {
		middlewareAuth.Register(channels.NewSlackAuth(v))
	}
	if v := stringSecret(secrets, "FEISHU_ENCRYPT_KEY"); v != "" {
		middlewareAuth.Register(channels.NewFeishuAuth(v))
	}
	if v := stringSecret(secrets, "DINGTALK_SECRET"); v != "" {
		middlewareAuth.Register(channels.NewDingTalkAuth(v))
	}
	if v := stringSecret(secrets, "WECOM_TOKEN"); v != "" {
		middlewareAuth.Register(channels.NewWeComAuth(v))
	}
	if v := stringSecret(secrets, "DISCORD_PUBLIC_KEY"); v != "" {
		middlewareAuth.Register(channels.NewDiscordAuth(v))
	}
}

// newEventBus prefers a durable NATS-backed provider when NATS_URL is
// set, falling back to the bounded in-memory provider for local runs and
// single-process deployments, per spec §4.1's non-persistent fallback.
func newEventBus(ctx context.Context, secrets map[string]any, logger *zap.Logger) (*events.Bus, error) {
	natsURL := stringSecret(secrets, "NATS_URL")
	if natsURL == "" {
		natsURL = os.Getenv("NATS_URL")
	}

	var provider events.EventProvider
	if natsURL != "" {
		p, err := natsprovider.New(natsURL, logger)
		if err != nil {
			return nil, err
		}
		provider = p
		logger.Info("event bus backed by nats jetstream")
	} else {
		provider = memoryprovider.New()
		logger.Info("event bus backed by in-memory provider")
	}

	schema := events.NewMemorySchemaRegistry()
	encryptor := events.NewAESGCMEncryptor()
	if err := seedEncryptionKey(encryptor, secrets, logger); err != nil {
		return nil, err
	}
	dlq := events.NewMemoryDlqHandler(1000, logger)
	store := events.NewFileStateStore(os.TempDir() + "/safeclaw-gateway-state.json")

	return events.NewBus(ctx, provider, schema, encryptor, dlq, store, logger)
}

// seedEncryptionKey loads the active AEAD key from the Vault secrets
// already fetched at startup (field "EVENT_BUS_KEY", base64-encoded
// 32 bytes), or generates an ephemeral one for local/dev runs where no
// Vault key is configured — matching the "no persistent key store"
// posture the in-memory provider already implies.
func seedEncryptionKey(enc *events.AESGCMEncryptor, secrets map[string]any, logger *zap.Logger) error {
	encoded := stringSecret(secrets, "EVENT_BUS_KEY")
	if encoded == "" {
		var raw [32]byte
		if _, err := rand.Read(raw[:]); err != nil {
			return err
		}
		logger.Warn("no EVENT_BUS_KEY found in vault secrets, generated an ephemeral encryption key for this process")
		return enc.AddKey("ephemeral", raw)
	}

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return err
	}
	if len(decoded) != 32 {
		return errs.New(errs.KindConfig, "EVENT_BUS_KEY must decode to exactly 32 bytes")
	}
	var key [32]byte
	copy(key[:], decoded)
	return enc.AddKey("primary", key)
}

func startAuditConsumers(ctx context.Context, bus *audit.Bus, globalLog *audit.RingLog, logger *zap.Logger) {
	globalCh, _ := bus.Subscribe()
	go audit.RunGlobalLog(ctx, globalCh, globalLog)

	alertCh, _ := bus.Subscribe()
	go audit.RunAlertMonitor(ctx, alertCh, func(ev audit.Event) {
		logger.Warn("audit alert",
			zap.String("severity", string(ev.Severity)),
			zap.String("vector", string(ev.Vector)),
			zap.String("description", ev.Description),
		)
	})
}
