package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	Log     LogConfig
	Blob    BlobConfig
	Chat    ChatConfig
	Limits  LimitConfig
	Metrics MetricsConfig
}

// Load 先读取 CONFIG_FILE 指向的 YAML 文件（可选），再用环境变量覆盖。
func Load() (*Config, error) {
	file, err := loadFile(strings.TrimSpace(os.Getenv("CONFIG_FILE")))
	if err != nil {
		return nil, err
	}
	return fromSources(file)
}

func fromSources(file fileConfig) (*Config, error) {
	server, err := loadServerConfig(file)
	if err != nil {
		return nil, err
	}
	logCfg, err := loadLogConfig(file)
	if err != nil {
		return nil, err
	}
	blobCfg, err := loadBlobConfig(file)
	if err != nil {
		return nil, err
	}
	chatCfg, err := loadChatConfig(file)
	if err != nil {
		return nil, err
	}
	limits, err := loadLimitConfig(file)
	if err != nil {
		return nil, err
	}
	metrics, err := parseBoolEnv("METRICS_ENABLED", boolOr(file.MetricsEnabled, true))
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:  server,
		Log:     logCfg,
		Blob:    blobCfg,
		Chat:    chatCfg,
		Limits:  limits,
		Metrics: MetricsConfig{Enabled: metrics},
	}, nil
}

// fileConfig 是 YAML 配置文件的结构，字段均可省略。
type fileConfig struct {
	Port              string   `yaml:"port"`
	RequestTimeout    string   `yaml:"request_timeout"`
	LogLevel          string   `yaml:"log_level"`
	LogDevelopment    *bool    `yaml:"log_development"`
	BlobBackend       string   `yaml:"blob_backend"`
	BlobPebblePath    string   `yaml:"blob_pebble_path"`
	MaxPhotoSize      string   `yaml:"max_photo_size"`
	SearchLimit       *int     `yaml:"search_limit"`
	HideExistence     *bool    `yaml:"hide_existence"`
	RateLimitRPS      *float64 `yaml:"rate_limit_rps"`
	RateLimitBurst    *int     `yaml:"rate_limit_burst"`
	CORSAllowedOrigin string   `yaml:"cors_allowed_origin"`
	MetricsEnabled    *bool    `yaml:"metrics_enabled"`
}

func loadFile(path string) (fileConfig, error) {
	var cfg fileConfig
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr           string
	RequestTimeout time.Duration
	AllowedOrigin  string
}

// loadServerConfig 解析服务器监听地址与请求超时。
func loadServerConfig(file fileConfig) (ServerConfig, error) {
	port := getEnvOrDefault("PORT", file.Port)
	if port == "" {
		port = "8080"
	}

	addr := port
	if !strings.Contains(port, ":") {
		if strings.Contains(port, " ") {
			return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
		}
		addr = ":" + port
	}

	timeout := 5 * time.Second
	if raw := getEnvOrDefault("REQUEST_TIMEOUT", file.RequestTimeout); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return ServerConfig{}, fmt.Errorf("invalid REQUEST_TIMEOUT value %q", raw)
		}
		timeout = d
	}

	return ServerConfig{
		Addr:           addr,
		RequestTimeout: timeout,
		AllowedOrigin:  getEnvOrDefault("CORS_ALLOWED_ORIGIN", stringOr(file.CORSAllowedOrigin, "*")),
	}, nil
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level       string
	Development bool
}

func loadLogConfig(file fileConfig) (LogConfig, error) {
	dev, err := parseBoolEnv("LOG_DEVELOPMENT", boolOr(file.LogDevelopment, false))
	if err != nil {
		return LogConfig{}, err
	}
	level := strings.ToLower(getEnvOrDefault("LOG_LEVEL", stringOr(file.LogLevel, "info")))
	switch level {
	case "debug", "info", "warn", "error":
	default:
		return LogConfig{}, fmt.Errorf("invalid LOG_LEVEL value %q", level)
	}
	return LogConfig{Level: level, Development: dev}, nil
}

// 照片存储后端。
const (
	BlobBackendMemory = "memory"
	BlobBackendPebble = "pebble"
)

// BlobConfig 描述照片存储后端。
type BlobConfig struct {
	Backend    string
	PebblePath string
}

func loadBlobConfig(file fileConfig) (BlobConfig, error) {
	backend := strings.ToLower(getEnvOrDefault("BLOB_BACKEND", stringOr(file.BlobBackend, BlobBackendMemory)))
	if backend != BlobBackendMemory && backend != BlobBackendPebble {
		return BlobConfig{}, fmt.Errorf("invalid BLOB_BACKEND value %q", backend)
	}
	return BlobConfig{
		Backend:    backend,
		PebblePath: getEnvOrDefault("BLOB_PEBBLE_PATH", stringOr(file.BlobPebblePath, "./data/blobs")),
	}, nil
}

// ChatConfig 描述消息服务的行为参数。
type ChatConfig struct {
	MaxPhotoBytes int64
	SearchLimit   int
	HideExistence bool
}

func loadChatConfig(file fileConfig) (ChatConfig, error) {
	maxPhoto := int64(10 << 20)
	if raw := getEnvOrDefault("MAX_PHOTO_SIZE", file.MaxPhotoSize); raw != "" {
		n, err := humanize.ParseBytes(raw)
		if err != nil || n == 0 {
			return ChatConfig{}, fmt.Errorf("invalid MAX_PHOTO_SIZE value %q", raw)
		}
		maxPhoto = int64(n)
	}

	searchLimit := intOr(file.SearchLimit, 10)
	if override, err := parseOptionalIntEnv("SEARCH_LIMIT"); err != nil {
		return ChatConfig{}, err
	} else if override != nil {
		searchLimit = *override
	}
	if searchLimit < 1 {
		return ChatConfig{}, fmt.Errorf("invalid SEARCH_LIMIT value %d", searchLimit)
	}

	hide, err := parseBoolEnv("HIDE_EXISTENCE", boolOr(file.HideExistence, true))
	if err != nil {
		return ChatConfig{}, err
	}

	return ChatConfig{MaxPhotoBytes: maxPhoto, SearchLimit: searchLimit, HideExistence: hide}, nil
}

// LimitConfig 描述按身份的限流参数。RPS 为 0 表示关闭限流。
type LimitConfig struct {
	RPS   float64
	Burst int
}

func loadLimitConfig(file fileConfig) (LimitConfig, error) {
	rps := 20.0
	if file.RateLimitRPS != nil {
		rps = *file.RateLimitRPS
	}
	if override, err := parseOptionalFloatEnv("RATE_LIMIT_RPS"); err != nil {
		return LimitConfig{}, err
	} else if override != nil {
		rps = *override
	}

	burst := intOr(file.RateLimitBurst, 40)
	if override, err := parseOptionalIntEnv("RATE_LIMIT_BURST"); err != nil {
		return LimitConfig{}, err
	} else if override != nil {
		burst = *override
	}

	if rps < 0 || burst < 0 {
		return LimitConfig{}, fmt.Errorf("rate limit values must not be negative")
	}
	return LimitConfig{RPS: rps, Burst: burst}, nil
}

// MetricsConfig 控制 /metrics 端点。
type MetricsConfig struct {
	Enabled bool
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return strings.TrimSpace(defaultValue)
}

func stringOr(v, fallback string) string {
	if strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func boolOr(v *bool, fallback bool) bool {
	if v != nil {
		return *v
	}
	return fallback
}

func intOr(v *int, fallback int) int {
	if v != nil {
		return *v
	}
	return fallback
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
