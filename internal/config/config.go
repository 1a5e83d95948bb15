package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort    string
	DatabaseURL string
	// HostRoot 是站点目录树的根：<HostRoot>/<subdomain>/<version>
	HostRoot   string
	BaseDomain string
	Protocol   string

	APIToken      string
	AdminUsername string
	AdminPassword string
	SessionSecret string
	SessionTTL    time.Duration

	// ProxyBinary 为空时不启动代理进程；ProxyPID 非零时改为向已有进程发信号。
	ProxyBinary         string
	ProxyLogFile        string
	ProxyPID            int
	ProxyPort           string
	ProxyTimeoutSeconds int

	NotFoundPrefix string
	MaxUploadBytes int64

	LogLevel  string
	LogFormat string
}

// Load 读取环境变量；当前目录下的 .env（若存在）先被加载，已存在的环境变量优先。
func Load() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}
	return &Config{
		HTTPPort:            getEnv("HTTP_PORT", "8080"),
		DatabaseURL:         getEnv("DATABASE_URL", "sqlite:///var/lib/phost/catalog.db"),
		HostRoot:            getEnv("HOST_ROOT", "/var/lib/phost/sites"),
		BaseDomain:          getEnv("BASE_DOMAIN", "localhost"),
		Protocol:            getEnv("PROTOCOL", "https"),
		APIToken:            os.Getenv("API_TOKEN"),
		AdminUsername:       os.Getenv("ADMIN_USERNAME"),
		AdminPassword:       os.Getenv("ADMIN_PASSWORD"),
		SessionSecret:       os.Getenv("SESSION_SECRET"),
		SessionTTL:          time.Duration(getEnvInt("SESSION_TTL_MINUTES", 720)) * time.Minute,
		ProxyBinary:         os.Getenv("PROXY_BINARY"),
		ProxyLogFile:        getEnv("PROXY_LOG_FILE", "phost-proxy.log"),
		ProxyPID:            getEnvInt("PROXY_PID", 0),
		ProxyPort:           getEnv("PROXY_PORT", "8081"),
		ProxyTimeoutSeconds: getEnvInt("PROXY_TIMEOUT_SECONDS", 60),
		NotFoundPrefix:      getEnv("NOT_FOUND_PREFIX", "/hosted"),
		MaxUploadBytes:      int64(getEnvInt("MAX_UPLOAD_MB", 512)) << 20,
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "text"),
	}
}

// NewLogger 按 LOG_FORMAT（json|text）与 LOG_LEVEL 构造 slog.Logger。
func (c *Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(c.LogLevel)}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}
