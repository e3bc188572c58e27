package app

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nsqio/go-nsq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/shandysiswandi/otpgate/internal/pkg/audit"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/goroutine"
	"github.com/shandysiswandi/otpgate/internal/pkg/hash"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/keylock"
	"github.com/shandysiswandi/otpgate/internal/pkg/mfa"
	"github.com/shandysiswandi/otpgate/internal/pkg/otp"
	"github.com/shandysiswandi/otpgate/internal/pkg/router"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
	"github.com/shandysiswandi/otpgate/internal/pkg/validator"
)

// Lock drivers selectable with twofactor.lock.driver.
const (
	lockLocal = "local"
	lockRedis = "redis"
)

// backupCodeHashSize is the number of hex characters kept from each backup
// code digest.
const backupCodeHashSize = 16

func (a *App) initConfig() {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "/config/config.yaml"
		if os.Getenv("LOCAL") == "true" {
			path = "./config/config.yaml"
		}
	}

	cfg, err := config.NewViper(path)
	if err != nil {
		slog.Error("failed to init config", "error", err)
		os.Exit(1)
	}

	//nolint:errcheck,gosec // ignore error
	os.Setenv("TZ", cfg.GetString("app.tz"))

	a.config = cfg
}

func (a *App) initInstrument() {
	ins, err := instrument.New(context.Background(), &instrument.Config{
		Enabled:          a.config.GetBool("instrument.enabled"),
		ServiceName:      a.config.GetString("instrument.service_name"),
		ServiceVersion:   a.config.GetString("instrument.service_version"),
		Environment:      a.config.GetString("instrument.env"),
		OTLPEndpoint:     a.config.GetString("instrument.otlp_endpoint"),
		OTLPSecure:       a.config.GetBool("instrument.otlp_secure"),
		TraceSampleRatio: a.config.GetFloat64("instrument.trace_sample_ratio"),
		MetricsInterval:  a.config.GetSecond("instrument.metric_interval_seconds"),
		LogLevel:         a.config.GetString("instrument.log_level"),
		MaskFields:       a.config.GetArray("instrument.log_mask_fields"),
	})
	if err != nil {
		slog.Error("failed to init instrumentation", "error", err)
		os.Exit(1)
	}
	a.ins = ins
}

func (a *App) initLibraries() {
	a.clock = clock.New()
	a.uuid = uid.NewUUID()
	a.goroutine = goroutine.NewManager(a.config.GetInt("app.server.max_goroutine"))
	a.provisioner = otp.NewProvisioner(a.config.GetString("twofactor.issuer"))
	a.mfaRecoveryCode = mfa.NewRecoveryCode()

	validator, err := validator.NewV10Validator(
		validator.WithPrincipalPlus(a.config.GetBool("twofactor.principal.allow_plus")),
	)
	if err != nil {
		slog.Error("failed to init validation v10 validator", "error", err)
		os.Exit(1)
	}
	a.validator = validator

	key, err := hash.DeriveKey([]byte(a.config.GetString("hash.hmac.secret")), "twofactor.backup_code", 32)
	if err != nil {
		slog.Error("failed to derive backup code hash key", "error", err)
		os.Exit(1)
	}
	a.backupCodeHash = hash.NewHMACSHA256(key, backupCodeHashSize)
}

func (a *App) initCache() {
	opt, err := redis.ParseURL(a.config.GetString("redis.url"))
	if err != nil {
		slog.Error("failed to parse redis url", "error", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(a.ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		slog.Error("failed to init redis", "error", err)
		os.Exit(1)
	}

	a.cacheConn = rdb
}

func (a *App) initLocker() {
	driver := strings.TrimSpace(a.config.GetString("twofactor.lock.driver"))
	switch driver {
	case lockLocal:
		a.locker = keylock.NewLocal()
	case "", lockRedis:
		a.locker = keylock.NewRedis(a.cacheConn, "twofactor:lock:",
			keylock.WithTTL(a.config.GetSecond("twofactor.lock.ttl_seconds")),
			keylock.WithWait(a.config.GetSecond("twofactor.lock.wait_seconds")),
		)
	default:
		slog.Error("failed to init locker", "error", "unknown lock driver", "driver", driver)
		os.Exit(1)
	}
}

func (a *App) initAudit() {
	driver := a.config.GetString("audit.driver")
	sink, err := audit.NewFromDriver(driver, audit.FactoryOptions{
		Logger: slog.Default().With("component", "audit"),
		NATS: audit.NATSConfig{
			URL: a.config.GetString("audit.nats.url"),
			Options: []nats.Option{
				nats.Name(a.config.GetString("audit.nats.name")),
				nats.MaxReconnects(a.config.GetInt("audit.nats.max_reconnects")),
				nats.Timeout(a.config.GetSecond("audit.nats.timeout_seconds")),
				nats.ReconnectWait(a.config.GetSecond("audit.nats.reconnect_wait_seconds")),
				nats.RetryOnFailedConnect(a.config.GetBool("audit.nats.retry_on_failed_connect")),
			},
		},
		NSQ: audit.NSQConfig{
			ProducerAddr: a.config.GetString("audit.nsq.producer_addr"),
			Config: func() *nsq.Config {
				cfg := nsq.NewConfig()
				cfg.DialTimeout = a.config.GetSecond("audit.nsq.dial_timeout_seconds")
				cfg.WriteTimeout = a.config.GetSecond("audit.nsq.write_timeout_seconds")
				return cfg
			}(),
		},
		Kafka: audit.KafkaConfig{
			Brokers: a.config.GetArray("audit.kafka.brokers"),
		},
	})
	if err != nil {
		slog.Error("failed to init audit", "error", err, "driver", driver)
		os.Exit(1)
	}

	a.auditSink = sink
	a.audit = audit.NewRecorder(sink, a.config.GetString("audit.topic_prefix"), a.goroutine)
}

func (a *App) initHTTPServer() {
	a.router = router.NewRouter(router.Config{
		Config:     a.config,
		UUID:       a.uuid,
		Instrument: a.ins,
	})

	a.router.GET("/health", a.health)

	routerWithCORS := cors.New(cors.Options{
		AllowedOrigins: a.config.GetArray("app.server.cors"),
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(a.router)

	a.httpServer = &http.Server{
		Addr:              a.config.GetString("app.server.http.address"),
		Handler:           routerWithCORS,
		ReadTimeout:       a.config.GetSecond("app.server.http.read_timeout_seconds"),
		ReadHeaderTimeout: a.config.GetSecond("app.server.http.read_header_timeout_seconds"),
		WriteTimeout:      a.config.GetSecond("app.server.http.write_timeout_seconds"),
		IdleTimeout:       a.config.GetSecond("app.server.http.idle_timeout_seconds"),
	}
}

func (a *App) initClosers() {
	a.closers = []struct {
		name string
		fn   func(context.Context) error
	}{
		{
			name: "Instrument",
			fn: func(ctx context.Context) error {
				return a.ins.Shutdown(ctx)
			},
		},
		{
			name: "Audit",
			fn: func(context.Context) error {
				return a.auditSink.Close()
			},
		},
		{
			name: "Redis",
			fn: func(context.Context) error {
				return a.cacheConn.Close()
			},
		},
		{
			name: "Config",
			fn: func(context.Context) error {
				return a.config.Close()
			},
		},
	}
}
