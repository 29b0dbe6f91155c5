package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Error is a fatal configuration problem found at startup.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Create new config instance with production defaults
func NewConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080, ReadTimeoutSec: 60, WriteTimeoutSec: 300, ShutdownSec: 15},
		Upload: UploadConfig{MaxFileMB: 40, MaxMultipartMemoryMB: 32},
		Converter: ConverterConfig{
			DefaultQuality: 92,
			MaxStderrChars: 4096,
			MinOutputBytes: 50 * 1024,
			MinInputBytes:  100 * 1024,
		},
		Tools: ToolsConfig{TimeoutSec: 90, MagickTimeoutSec: 90, DecoderTimeoutSec: 120, DarktableTimeoutSec: 180},
		Validation: ValidationConfig{
			Inspector:     "magick",
			MinDimension:  200,
			MinMeanLuma:   0.02,
			MinRegionLuma: 0.015,
		},
		Worker: WorkerConfig{Source: "pubsub", ConversionTimeoutSec: 600, Quality: 92, MinResultBytes: 100},
		Dedupe: DedupeConfig{Backend: "memory", Capacity: 10000, TTLSec: 7 * 24 * 3600, Namespace: "converterbot:jobs"},
		Redis: RedisConfig{
			HealthCheckIntervalSec: 10,
			DialTimeoutSec:         5,
			ReadTimeoutSec:         3,
			WriteTimeoutSec:        3,
			PoolSize:               10,
		},
		R2: R2Config{Prefix: "converted", Workers: 2, QueueSize: 64, MaxAttempts: 5},
		Queue: QueueConfig{
			Stream:          "converterbot:jobs",
			Group:           "workers",
			Workers:         2,
			MaxAttempts:     5,
			MaxLen:          10000,
			BackoffBaseMS:   500,
			BlockTimeoutSec: 5,
			ClaimIdleSec:    900,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Load configuration file in json format
func (c *Config) Read(file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, c); err != nil {
		return &Error{Field: file, Reason: err.Error()}
	}
	return nil
}

// Load reads .env (if any), the JSON file (if it exists) and then the
// environment, which wins over both.
func Load(file string) (*Config, error) {
	_ = godotenv.Load()

	cfg := NewConfig()
	if file != "" {
		if err := cfg.Read(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(name string, set func(int64)) {
		v, ok := os.LookupEnv(name)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			errs = append(errs, &Error{Field: name, Reason: "must be an integer"})
			return
		}
		set(n)
	}

	num("PORT", func(n int64) { c.Server.Port = int(n) })
	str("CONVERTER_API_KEY", &c.Converter.APIKey)
	num("MAX_FILE_MB", func(n int64) { c.Upload.MaxFileMB = n })
	num("MAX_STDERR_CHARS", func(n int64) { c.Converter.MaxStderrChars = int(n) })
	num("MIN_OUTPUT_BYTES", func(n int64) { c.Converter.MinOutputBytes = n })
	num("MIN_INPUT_BYTES", func(n int64) { c.Converter.MinInputBytes = n })
	num("SUBPROCESS_TIMEOUT_SECONDS", func(n int64) { c.Tools.TimeoutSec = int(n) })
	num("MAGICK_TIMEOUT_SECONDS", func(n int64) { c.Tools.MagickTimeoutSec = int(n) })
	num("DCRAW_TIMEOUT_SECONDS", func(n int64) { c.Tools.DecoderTimeoutSec = int(n) })
	num("DARKTABLE_TIMEOUT_SECONDS", func(n int64) { c.Tools.DarktableTimeoutSec = int(n) })
	str("VALIDATION_INSPECTOR", &c.Validation.Inspector)

	str("BOT_TOKEN", &c.Telegram.BotToken)
	num("CHAT_ID", func(n int64) { c.Telegram.ChatID = n })
	num("TOPIC_CONVERTED_ID", func(n int64) { c.Telegram.TopicConvertedID = int(n) })
	str("CONVERTER_URL", &c.Worker.ConverterURL)
	num("CONVERSION_TIMEOUT_SECONDS", func(n int64) { c.Worker.ConversionTimeoutSec = int(n) })
	num("CONVERSION_QUALITY", func(n int64) { c.Worker.Quality = int(n) })
	str("WORKER_SOURCE", &c.Worker.Source)

	str("DATABASE_DSN", &c.Database.DSN)
	str("SENTRY_DSN", &c.Sentry.SentryDSN)
	str("SENTRY_ENVIRONMENT", &c.Sentry.Environment)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	if c.Worker.ConverterURL != "" {
		c.Worker.ConverterURL = NormalizeConverterURL(c.Worker.ConverterURL)
	}
	return errors.Join(errs...)
}

// NormalizeConverterURL makes raw point at the /convert endpoint exactly once.
func NormalizeConverterURL(raw string) string {
	u := strings.TrimRight(strings.TrimSpace(raw), "/")
	u = strings.ReplaceAll(u, "/convert/convert", "/convert")
	if strings.HasSuffix(u, "/convert") {
		return u
	}
	return u + "/convert"
}

var validate = validator.New()

// ValidateConverter checks what the converter service needs to start.
func (c *Config) ValidateConverter() error {
	return validateSections(c.Server, c.Upload, c.Converter, c.Tools, c.Validation)
}

// ValidateWorker checks what the worker service needs to start.
func (c *Config) ValidateWorker() error {
	if err := validateSections(c.Server, c.Worker, c.Telegram, c.Dedupe, c.Upload); err != nil {
		return err
	}
	if c.Converter.APIKey == "" {
		return &Error{Field: "CONVERTER_API_KEY", Reason: "is required"}
	}
	if c.Dedupe.Backend == "redis" && !c.Redis.Enabled() {
		return &Error{Field: "Dedupe.Backend", Reason: "redis backend needs redis nodes"}
	}
	if c.Worker.Source == "stream" && !c.Redis.Enabled() {
		return &Error{Field: "Worker.Source", Reason: "stream source needs redis nodes"}
	}
	return nil
}

func validateSections(sections ...any) error {
	for _, s := range sections {
		if err := validate.Struct(s); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) && len(verrs) > 0 {
				return &Error{Field: verrs[0].Namespace(), Reason: "failed " + verrs[0].Tag() + " check"}
			}
			return &Error{Field: fmt.Sprintf("%T", s), Reason: err.Error()}
		}
	}
	return nil
}
