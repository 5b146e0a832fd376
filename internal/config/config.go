package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all pipeline settings, populated from environment variables.
// Paths are absolute once Load returns.
type Config struct {
	ProjectDir       string
	CatalogPath      string
	DataDir          string
	VDLedgerPath     string
	HazardLedgerPath string
	PurgePlanPath    string
	RootGroup        string
	ReturnPeriods    []int
	DevLimit         int

	LogLevel  string
	LogFormat string

	// Derived-output events. No brokers disables publishing.
	KafkaBrokers []string
	KafkaTopic   string

	// Optional observability sinks; empty disables each.
	MetricsAddr     string
	MetricsTextfile string
	RunHistoryPath  string

	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	years, err := parseReturnPeriods(sharedcfg.EnvOrDefault("RETURN_PERIODS", "5,10,20,50,100,200"))
	if err != nil {
		return nil, err
	}

	limit, err := strconv.Atoi(sharedcfg.EnvOrDefault("DEV_LIMIT", "0"))
	if err != nil || limit < 0 {
		return nil, errors.New("invalid DEV_LIMIT: must be a non-negative integer")
	}

	projectDir, err := filepath.Abs(sharedcfg.EnvOrDefault("PROJECT_DIR", "."))
	if err != nil {
		return nil, fmt.Errorf("resolve PROJECT_DIR: %w", err)
	}
	resolve := func(key, def string) string {
		p := os.Getenv(key)
		if p == "" {
			if def == "" {
				return ""
			}
			p = def
		}
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		return filepath.Join(projectDir, p)
	}

	var brokers []string
	if s := os.Getenv("KAFKA_BROKERS"); s != "" {
		brokers = sharedcfg.ParseBrokers(s)
	}

	cfg := &Config{
		ProjectDir:       projectDir,
		CatalogPath:      resolve("CATALOG_PATH", "catalog.yaml"),
		DataDir:          resolve("DATA_DIR", filepath.Join("data", "flood")),
		VDLedgerPath:     resolve("VD_LEDGER_PATH", filepath.Join("scripts", "vd_log.csv")),
		HazardLedgerPath: resolve("HAZARD_LEDGER_PATH", filepath.Join("scripts", "hazard_log.csv")),
		PurgePlanPath:    resolve("PURGE_PLAN_PATH", filepath.Join("scripts", "purge.txt")),
		RootGroup:        sharedcfg.EnvOrDefault("ROOT_GROUP", "Flood maps"),
		ReturnPeriods:    years,
		DevLimit:         limit,
		LogLevel:         sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:        sharedcfg.EnvOrDefault("LOG_FORMAT", "text"),
		KafkaBrokers:     brokers,
		KafkaTopic:       sharedcfg.EnvOrDefault("KAFKA_TOPIC", "derived-flood-rasters"),
		MetricsAddr:      os.Getenv("METRICS_ADDR"),
		MetricsTextfile:  resolve("METRICS_TEXTFILE", ""),
		RunHistoryPath:   resolve("RUN_HISTORY_PATH", ""),
		ShutdownTimeout:  shutdownTimeout,
	}

	if strings.TrimSpace(cfg.RootGroup) == "" {
		return nil, errors.New("ROOT_GROUP must not be blank")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	switch cfg.LogFormat {
	case "json", "text":
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT %q: must be json or text", cfg.LogFormat)
	}

	return cfg, nil
}

// PublishEnabled reports whether derived outputs are announced on Kafka.
func (c *Config) PublishEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func parseReturnPeriods(s string) ([]int, error) {
	var years []int
	seen := make(map[int]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		y, err := strconv.Atoi(part)
		if err != nil || y <= 0 {
			return nil, fmt.Errorf("invalid RETURN_PERIODS entry %q: must be a positive integer", part)
		}
		if seen[y] {
			continue
		}
		seen[y] = true
		years = append(years, y)
	}
	if len(years) == 0 {
		return nil, errors.New("RETURN_PERIODS must list at least one year")
	}
	return years, nil
}
