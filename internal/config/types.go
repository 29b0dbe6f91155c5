package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server     ServerConfig     `json:"server"`
	Upload     UploadConfig     `json:"upload"`
	Converter  ConverterConfig  `json:"converter"`
	Tools      ToolsConfig      `json:"tools"`
	Validation ValidationConfig `json:"validation"`
	Worker     WorkerConfig     `json:"worker"`
	Telegram   TelegramConfig   `json:"telegram"`
	Dedupe     DedupeConfig     `json:"dedupe"`
	Database   Database         `json:"database"`
	Redis      RedisConfig      `json:"redis"`
	R2         R2Config         `json:"r2"`
	Queue      QueueConfig      `json:"queue"`
	Sentry     SentryConfig     `json:"sentry"`
	Log        LogConfig        `json:"log"`
}

type ServerConfig struct {
	Port            int `json:"port" validate:"gt=0,lt=65536"`
	ReadTimeoutSec  int `json:"read_timeout" validate:"gte=0"`
	WriteTimeoutSec int `json:"write_timeout" validate:"gte=0"`
	ShutdownSec     int `json:"shutdown_timeout" validate:"gte=0"`
}

func (s ServerConfig) ReadTimeout() time.Duration { return seconds(s.ReadTimeoutSec) }

func (s ServerConfig) WriteTimeout() time.Duration { return seconds(s.WriteTimeoutSec) }

func (s ServerConfig) ShutdownTimeout() time.Duration { return seconds(s.ShutdownSec) }

type UploadConfig struct {
	MaxFileMB            int64  `json:"max_file_mb" validate:"gt=0"`
	MaxMultipartMemoryMB int64  `json:"max_multipart_memory" validate:"gt=0"`
	TempDir              string `json:"temp_dir"`
}

func (u UploadConfig) MaxFileBytes() int64 { return u.MaxFileMB << 20 }

type ConverterConfig struct {
	APIKey         string `json:"api_key" validate:"required"`
	DefaultQuality int    `json:"default_quality" validate:"min=1,max=100"`
	MaxStderrChars int    `json:"max_stderr_chars" validate:"gt=0"`
	MinOutputBytes int64  `json:"min_output_bytes" validate:"gte=0"`
	MinInputBytes  int64  `json:"min_input_bytes" validate:"gte=0"`
}

type ToolsConfig struct {
	TimeoutSec          int      `json:"timeout" validate:"gt=0"`
	MagickTimeoutSec    int      `json:"magick_timeout" validate:"gt=0"`
	DecoderTimeoutSec   int      `json:"dcraw_timeout" validate:"gt=0"`
	DarktableTimeoutSec int      `json:"darktable_timeout" validate:"gt=0"`
	PreviewTags         []string `json:"preview_tags"`
}

type ValidationConfig struct {
	Inspector     string  `json:"inspector" validate:"oneof=magick native"`
	MinDimension  int     `json:"min_dimension" validate:"gt=0"`
	MinMeanLuma   float64 `json:"min_mean_luma" validate:"gte=0,lte=1"`
	MinRegionLuma float64 `json:"min_region_luma" validate:"gte=0,lte=1"`
}

type WorkerConfig struct {
	// Source selects the job intake: Pub/Sub push over HTTP or the redis stream.
	Source               string `json:"source" validate:"oneof=pubsub stream"`
	ConverterURL         string `json:"converter_url" validate:"required,url"`
	ConversionTimeoutSec int    `json:"conversion_timeout" validate:"gt=0"`
	Quality              int    `json:"quality" validate:"min=1,max=100"`
	MinResultBytes       int    `json:"min_result_bytes" validate:"gte=0"`
}

func (w WorkerConfig) ConversionTimeout() time.Duration { return seconds(w.ConversionTimeoutSec) }

type TelegramConfig struct {
	BotToken         string `json:"bot_token" validate:"required"`
	ChatID           int64  `json:"chat_id" validate:"required"`
	TopicConvertedID int    `json:"topic_converted_id" validate:"required"`
	APIEndpoint      string `json:"api_endpoint"`
}

type DedupeConfig struct {
	Backend   string `json:"backend" validate:"oneof=memory redis"`
	Capacity  int    `json:"capacity" validate:"gt=0"`
	TTLSec    int    `json:"ttl" validate:"gte=0"`
	Namespace string `json:"namespace"`
}

func (d DedupeConfig) TTL() time.Duration { return seconds(d.TTLSec) }

type Database struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	Password               string      `json:"password"`
	DatabaseID             int         `json:"database_id"`
	HealthCheckIntervalSec int         `json:"health_check_interval"`
	DialTimeoutSec         int         `json:"dial_timeout"`
	ReadTimeoutSec         int         `json:"read_timeout"`
	WriteTimeoutSec        int         `json:"write_timeout"`
	PoolSize               int         `json:"pool_size"`
	Nodes                  []RedisNode `json:"nodes"`
}

func (r RedisConfig) Enabled() bool { return len(r.Nodes) > 0 }

type RedisNode struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (n RedisNode) Addr() string { return fmt.Sprintf("%s:%d", n.Host, n.Port) }

type R2Config struct {
	AccountID   string `json:"account_id"`
	BucketName  string `json:"bucket_name"`
	AccessKeyID string `json:"access_key_id"`
	SecretKey   string `json:"secret_key"`
	Endpoint    string `json:"endpoint"`
	Prefix      string `json:"prefix"`
	Workers     int    `json:"workers"`
	QueueSize   int    `json:"queue_size"`
	MaxAttempts int    `json:"max_attempts"`
}

func (r R2Config) Enabled() bool { return r.BucketName != "" }

type QueueConfig struct {
	Stream          string `json:"stream"`        // redis stream name
	Group           string `json:"group"`         // consumer group name
	Workers         int    `json:"workers"`       // number of concurrent goroutines
	MaxAttempts     int    `json:"max_attempts"`  // retries before the entry is dropped
	MaxLen          int64  `json:"max_len"`       // stream max length before trim
	BackoffBaseMS   int    `json:"backoff_base"`  // base retry delay
	BlockTimeoutSec int    `json:"block_timeout"` // XREADGROUP block timeout
	ClaimIdleSec    int    `json:"claim_idle"`    // pending entries older than this are reclaimed
	Consumer        string `json:"consumer"`
}

func (q QueueConfig) BackoffBase() time.Duration {
	return time.Duration(q.BackoffBaseMS) * time.Millisecond
}

func (q QueueConfig) BlockTimeout() time.Duration { return seconds(q.BlockTimeoutSec) }

func (q QueueConfig) ClaimIdle() time.Duration { return seconds(q.ClaimIdleSec) }

type SentryConfig struct {
	SentryDSN   string `json:"sentry_dsn"`
	Environment string `json:"environment"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // json or console
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
