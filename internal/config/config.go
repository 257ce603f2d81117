// Package config loads service settings from defaults, an optional YAML file,
// an optional .env file and the environment, in that order of precedence.
package config

import (
    "errors"
    "fmt"
    "io"
    "log/slog"
    "os"
    "strconv"
    "strings"
    "time"

    "github.com/joho/godotenv"
    "gopkg.in/yaml.v3"
)

type Retry struct {
    MaxRetries       int     `yaml:"maxRetries"`
    InitialBackoffMs int     `yaml:"initialBackoffMs"`
    MaxBackoffMs     int     `yaml:"maxBackoffMs"`
    Multiplier       float64 `yaml:"multiplier"`
}

type CRM struct {
    BaseURL           string           `yaml:"baseUrl"`
    Token             string           `yaml:"token"`
    SourceID          int64            `yaml:"sourceId"`
    PipelineID        int64            `yaml:"pipelineId"`
    ShippedStatusID   int64            `yaml:"shippedStatusId"`
    DeliveredStatusID int64            `yaml:"deliveredStatusId"`
    RateRPS           float64          `yaml:"rateRps"`
    RateBurst         int              `yaml:"rateBurst"`
    TimeoutMs         int              `yaml:"timeoutMs"`
    PaymentMethods    map[string]int64 `yaml:"paymentMethods"`
}

type Auth struct {
    Mode       string `yaml:"mode"` // token | hmac
    AdminToken string `yaml:"adminToken"`
    HMACSecret string `yaml:"hmacSecret"`
}

type Log struct {
    Level  string `yaml:"level"`
    Format string `yaml:"format"` // json | text
}

type Config struct {
    Port                 string `yaml:"port"`
    RedisURL             string `yaml:"redisUrl"`
    DatabaseURL          string `yaml:"databaseUrl"`
    ProcessingIntervalMs int    `yaml:"processingIntervalMs"`
    PaymentFailurePolicy string `yaml:"paymentFailurePolicy"`
    WebhookSecret        string `yaml:"webhookSecret"`
    Retry                Retry  `yaml:"retry"`
    CRM                  CRM    `yaml:"crm"`
    Auth                 Auth   `yaml:"auth"`
    Log                  Log    `yaml:"log"`
}

// Default returns the built-in settings.
func Default() Config {
    return Config{
        Port:                 "3000",
        ProcessingIntervalMs: 5000,
        PaymentFailurePolicy: "ignore",
        Retry:                Retry{MaxRetries: 5, InitialBackoffMs: 1000, MaxBackoffMs: 60000, Multiplier: 2},
        CRM: CRM{
            BaseURL:           "https://openapi.keycrm.app/v1",
            SourceID:          2,
            PipelineID:        1,
            ShippedStatusID:   8,
            DeliveredStatusID: 9,
            RateRPS:           1,
            RateBurst:         5,
            TimeoutMs:         10000,
        },
        Auth: Auth{Mode: "token"},
        Log:  Log{Level: "info", Format: "json"},
    }
}

// Load builds the configuration. path may be empty; CONFIG_FILE is used then.
// A missing .env file is not an error, a missing explicit config file is.
func Load(path string) (Config, error) {
    c := Default()
    if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
        return c, fmt.Errorf("load .env: %w", err)
    }
    if path == "" { path = os.Getenv("CONFIG_FILE") }
    if path != "" {
        f, err := os.Open(path)
        if err != nil { return c, fmt.Errorf("config file: %w", err) }
        defer f.Close()
        if err := decodeYAML(f, &c); err != nil { return c, fmt.Errorf("config file %s: %w", path, err) }
    }
    if err := applyEnv(&c, os.LookupEnv); err != nil { return c, err }
    return c, c.Validate()
}

func decodeYAML(r io.Reader, c *Config) error {
    dec := yaml.NewDecoder(r)
    dec.KnownFields(true)
    if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) { return err }
    return nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(c *Config, lookup lookupFunc) error {
    var errs []error
    str := func(dst *string, keys ...string) {
        for _, k := range keys {
            if v, ok := lookup(k); ok && v != "" { *dst = v; return }
        }
    }
    num := func(dst *int, key string) {
        if v, ok := lookup(key); ok && v != "" {
            n, err := strconv.Atoi(v)
            if err != nil { errs = append(errs, fmt.Errorf("%s: %w", key, err)); return }
            *dst = n
        }
    }
    num64 := func(dst *int64, key string) {
        if v, ok := lookup(key); ok && v != "" {
            n, err := strconv.ParseInt(v, 10, 64)
            if err != nil { errs = append(errs, fmt.Errorf("%s: %w", key, err)); return }
            *dst = n
        }
    }
    float := func(dst *float64, key string) {
        if v, ok := lookup(key); ok && v != "" {
            f, err := strconv.ParseFloat(v, 64)
            if err != nil { errs = append(errs, fmt.Errorf("%s: %w", key, err)); return }
            *dst = f
        }
    }

    str(&c.Port, "PORT")
    str(&c.RedisURL, "REDIS_URL")
    str(&c.DatabaseURL, "DATABASE_URL")
    num(&c.ProcessingIntervalMs, "PROCESSING_INTERVAL")
    str(&c.PaymentFailurePolicy, "PAYMENT_FAILURE_POLICY")
    str(&c.WebhookSecret, "WEBHOOK_SECRET")

    num(&c.Retry.MaxRetries, "MAX_RETRIES")
    num(&c.Retry.InitialBackoffMs, "INITIAL_BACKOFF")
    num(&c.Retry.MaxBackoffMs, "MAX_BACKOFF")
    float(&c.Retry.Multiplier, "BACKOFF_MULTIPLIER")

    str(&c.CRM.BaseURL, "CRM_BASE_URL")
    str(&c.CRM.Token, "KEYCRM_KEY", "CRM_TOKEN")
    num64(&c.CRM.SourceID, "KEYCRM_SOURCE_ID")
    num64(&c.CRM.PipelineID, "KEYCRM_PIPELINE_ID")
    num64(&c.CRM.ShippedStatusID, "CRM_SHIPPED_STATUS_ID")
    num64(&c.CRM.DeliveredStatusID, "CRM_DELIVERED_STATUS_ID")
    float(&c.CRM.RateRPS, "CRM_RATE_RPS")
    num(&c.CRM.RateBurst, "CRM_RATE_BURST")
    num(&c.CRM.TimeoutMs, "CRM_TIMEOUT")

    str(&c.Auth.Mode, "AUTH_MODE")
    str(&c.Auth.AdminToken, "ADMIN_TOKEN")
    str(&c.Auth.HMACSecret, "AUTH_HMAC_SECRET")

    str(&c.Log.Level, "LOG_LEVEL")
    str(&c.Log.Format, "LOG_FORMAT")
    return errors.Join(errs...)
}

// Validate rejects settings the worker cannot run with.
func (c Config) Validate() error {
    var errs []error
    if c.Retry.MaxRetries < 1 { errs = append(errs, errors.New("retry.maxRetries must be >= 1")) }
    if c.Retry.Multiplier < 1 { errs = append(errs, errors.New("retry.multiplier must be >= 1")) }
    if c.Retry.InitialBackoffMs <= 0 { errs = append(errs, errors.New("retry.initialBackoffMs must be > 0")) }
    if c.Retry.MaxBackoffMs < c.Retry.InitialBackoffMs { errs = append(errs, errors.New("retry.maxBackoffMs must be >= initialBackoffMs")) }
    if c.ProcessingIntervalMs <= 0 { errs = append(errs, errors.New("processingIntervalMs must be > 0")) }
    switch c.PaymentFailurePolicy {
    case "ignore", "retry":
    default:
        errs = append(errs, fmt.Errorf("unknown paymentFailurePolicy %q", c.PaymentFailurePolicy))
    }
    switch c.Auth.Mode {
    case "token":
    case "hmac":
        if c.Auth.HMACSecret == "" { errs = append(errs, errors.New("auth.hmacSecret required in hmac mode")) }
    default:
        errs = append(errs, fmt.Errorf("unknown auth.mode %q", c.Auth.Mode))
    }
    if c.CRM.BaseURL == "" { errs = append(errs, errors.New("crm.baseUrl is required")) }
    return errors.Join(errs...)
}

func (c Config) ProcessingInterval() time.Duration { return time.Duration(c.ProcessingIntervalMs) * time.Millisecond }
func (c Config) CRMTimeout() time.Duration         { return time.Duration(c.CRM.TimeoutMs) * time.Millisecond }
func (c Retry) InitialBackoff() time.Duration       { return time.Duration(c.InitialBackoffMs) * time.Millisecond }
func (c Retry) MaxBackoff() time.Duration           { return time.Duration(c.MaxBackoffMs) * time.Millisecond }

// Redacted is safe to print: secrets are masked.
func (c Config) Redacted() Config {
    mask := func(s string) string { if s == "" { return "" }; return "***" }
    c.CRM.Token = mask(c.CRM.Token)
    c.Auth.AdminToken = mask(c.Auth.AdminToken)
    c.Auth.HMACSecret = mask(c.Auth.HMACSecret)
    c.WebhookSecret = mask(c.WebhookSecret)
    c.RedisURL = maskURL(c.RedisURL)
    c.DatabaseURL = maskURL(c.DatabaseURL)
    return c
}

// maskURL hides the userinfo part of a connection string.
func maskURL(s string) string {
    at := strings.LastIndex(s, "@")
    scheme := strings.Index(s, "://")
    if at < 0 || scheme < 0 || at < scheme { return s }
    return s[:scheme+3] + "***" + s[at:]
}

// NewLogger builds the process logger from Log settings.
func NewLogger(l Log, w io.Writer) *slog.Logger {
    var level slog.Level
    if err := level.UnmarshalText([]byte(l.Level)); err != nil { level = slog.LevelInfo }
    opts := &slog.HandlerOptions{Level: level}
    if strings.EqualFold(l.Format, "text") { return slog.New(slog.NewTextHandler(w, opts)) }
    return slog.New(slog.NewJSONHandler(w, opts))
}
