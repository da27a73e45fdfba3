package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	RemoteBaseURL        string
	RemoteTimeoutSeconds int
	RemoteToken          string
	RemoteUsername       string
	RemotePassword       string
	DataPath             string
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	StoreID              string
	TerminalID           string
	ProfileName          string
	ProbeIntervalSeconds int
	CatalogTTLSeconds    int
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	remoteTimeout, err := strconv.Atoi(getEnv("REMOTE_TIMEOUT_SECONDS", "15"))
	if err != nil || remoteTimeout < 1 {
		remoteTimeout = 15
	}
	probeInterval, err := strconv.Atoi(getEnv("PROBE_INTERVAL_SECONDS", "10"))
	if err != nil || probeInterval < 1 {
		probeInterval = 10
	}
	catalogTTL, err := strconv.Atoi(getEnv("CATALOG_TTL_SECONDS", "300"))
	if err != nil || catalogTTL < 1 {
		catalogTTL = 300
	}

	cfg := Config{
		RemoteBaseURL:        strings.TrimRight(getEnv("REMOTE_BASE_URL", "http://127.0.0.1:8080"), "/"),
		RemoteTimeoutSeconds: remoteTimeout,
		RemoteToken:          strings.TrimSpace(os.Getenv("REMOTE_TOKEN")),
		RemoteUsername:       strings.TrimSpace(os.Getenv("REMOTE_USERNAME")),
		RemotePassword:       os.Getenv("REMOTE_PASSWORD"),
		DataPath:             os.Getenv("DATA_PATH"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              redisDB,
		StoreID:              getEnv("STORE_ID", "main-store"),
		TerminalID:           getEnv("TERMINAL_ID", "terminal-1"),
		ProfileName:          getEnv("POS_PROFILE", "default"),
		ProbeIntervalSeconds: probeInterval,
		CatalogTTLSeconds:    catalogTTL,
	}

	return cfg
}

func (c Config) RemoteTimeout() time.Duration {
	return time.Duration(c.RemoteTimeoutSeconds) * time.Second
}

func (c Config) ProbeInterval() time.Duration {
	return time.Duration(c.ProbeIntervalSeconds) * time.Second
}

func (c Config) CatalogTTL() time.Duration {
	return time.Duration(c.CatalogTTLSeconds) * time.Second
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
