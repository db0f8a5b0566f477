// internal/gateway/config.go
// Centralised loader for gateway configuration. It complements the Config
// struct declared in server.go by populating it from (highest precedence
// first):
//  1. Environment variables prefixed with APPGW_
//  2. Optional YAML/TOML/JSON config file path
//  3. The values already in the options struct passed by the caller
//
// Config is loaded once at startup; reloading it at runtime is out of scope
// (§9 open question resolved: only the resolution table is hot-swappable,
// not the surrounding gateway configuration).
package gateway

import (
    "time"

    "github.com/spf13/viper"
)

// Config parameterises a running gateway: the listener, the worker pool,
// the telemetry aggregator, and the resolution table's source document.
type Config struct {
    ListenAddr string // host:port the websocket manager binds

    ResolutionTablePath string // path to the resolution rule document

    WorkerPoolSize int // component C's bound on concurrent dispatch jobs

    QuiescenceTimeout time.Duration // §5 shutdown protocol bound

    SubscriptionSuffix string // defaults to ".listen"

    TelemetryFlushInterval  time.Duration
    TelemetryCacheThreshold int
    TelemetryFormat         string // "json" | "compact"
    TelemetryWebhookURL     string // optional

    RedisAddr string // optional; empty means single-instance, in-memory dedup

    JWTSigningKey string // HMAC key for the default JWTAuthenticator
}

// DefaultConfig returns production-ready defaults suitable for local dev.
func DefaultConfig() Config {
    return Config{
        ListenAddr:              ":8765",
        ResolutionTablePath:     "",
        WorkerPoolSize:          64,
        QuiescenceTimeout:       2 * time.Second,
        SubscriptionSuffix:      ".listen",
        TelemetryFlushInterval:  60 * time.Second,
        TelemetryCacheThreshold: 500,
        TelemetryFormat:         "json",
    }
}

// LoadConfig merges file + env into cfg (caller typically passes
// DefaultConfig()). filePath may be empty. envPrefix e.g. "APPGW".
func LoadConfig(cfg *Config, filePath, envPrefix string) error {
    v := viper.New()
    v.SetEnvPrefix(envPrefix)
    v.AutomaticEnv()

    v.SetDefault("listenaddr", cfg.ListenAddr)
    v.SetDefault("resolutiontablepath", cfg.ResolutionTablePath)
    v.SetDefault("workerpoolsize", cfg.WorkerPoolSize)
    v.SetDefault("quiescencetimeout", cfg.QuiescenceTimeout)
    v.SetDefault("subscriptionsuffix", cfg.SubscriptionSuffix)
    v.SetDefault("telemetryflushinterval", cfg.TelemetryFlushInterval)
    v.SetDefault("telemetrycachethreshold", cfg.TelemetryCacheThreshold)
    v.SetDefault("telemetryformat", cfg.TelemetryFormat)
    v.SetDefault("telemetrywebhookurl", cfg.TelemetryWebhookURL)
    v.SetDefault("redisaddr", cfg.RedisAddr)
    v.SetDefault("jwtsigningkey", cfg.JWTSigningKey)

    if filePath != "" {
        v.SetConfigFile(filePath)
        if err := v.ReadInConfig(); err != nil {
            return err
        }
    }

    return v.Unmarshal(cfg)
}
