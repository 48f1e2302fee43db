package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// CoreDatabaseURL points at the shared schema holding backup_jobs,
	// restore_jobs, tenant_snapshots and tenants.
	CoreDatabaseURL string
	// TargetDatabaseURL is the database whose tenant schemas are dumped and
	// restored. Defaults to CoreDatabaseURL (one shared Postgres instance).
	TargetDatabaseURL string

	TemporalAddress       string
	TemporalNamespace     string
	TaskQueue             string
	TemporalTLSCert       string
	TemporalTLSKey        string
	TemporalTLSCACert     string
	TemporalTLSServerName string

	HTTPListenAddr string
	MetricsAddr    string
	LogLevel       string
	ServiceName    string

	// PGBinDir is prepended to pg_dump/pg_restore/psql when set.
	PGBinDir string
	// WorkDir holds temporary dump and restore files.
	WorkDir string

	DumpTimeout     time.Duration
	FullDumpTimeout time.Duration
	DropTimeout     time.Duration

	SnapshotRetention   map[string]time.Duration
	SnapshotWaitTimeout time.Duration

	StorageConfigFile string
	Storage           StorageConfig
}

func Load() (*Config, error) {
	cfg := &Config{
		CoreDatabaseURL:       getEnv("CORE_DATABASE_URL", ""),
		TargetDatabaseURL:     getEnv("TARGET_DATABASE_URL", ""),
		TemporalAddress:       getEnv("TEMPORAL_ADDRESS", "localhost:7233"),
		TemporalNamespace:     getEnv("TEMPORAL_NAMESPACE", "default"),
		TaskQueue:             getEnv("TEMPORAL_TASK_QUEUE", "zargar-backups"),
		TemporalTLSCert:       getEnv("TEMPORAL_TLS_CERT", ""),
		TemporalTLSKey:        getEnv("TEMPORAL_TLS_KEY", ""),
		TemporalTLSCACert:     getEnv("TEMPORAL_TLS_CA_CERT", ""),
		TemporalTLSServerName: getEnv("TEMPORAL_TLS_SERVER_NAME", ""),
		HTTPListenAddr:        getEnv("HTTP_LISTEN_ADDR", ":8090"),
		MetricsAddr:           getEnv("METRICS_ADDR", ""),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		ServiceName:           getEnv("SERVICE_NAME", ""),
		PGBinDir:              getEnv("PG_BIN_DIR", ""),
		WorkDir:               getEnv("WORK_DIR", os.TempDir()),
		StorageConfigFile:     getEnv("STORAGE_CONFIG_FILE", ""),
	}
	if cfg.TargetDatabaseURL == "" {
		cfg.TargetDatabaseURL = cfg.CoreDatabaseURL
	}

	var err error
	if cfg.DumpTimeout, err = getDuration("DUMP_TIMEOUT", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.FullDumpTimeout, err = getDuration("FULL_DUMP_TIMEOUT", 60*time.Minute); err != nil {
		return nil, err
	}
	if cfg.DropTimeout, err = getDuration("DROP_SCHEMA_TIMEOUT", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SnapshotWaitTimeout, err = getDuration("SNAPSHOT_WAIT_TIMEOUT", 30*time.Minute); err != nil {
		return nil, err
	}

	cfg.SnapshotRetention = map[string]time.Duration{}
	for snapshotType, key := range map[string]string{
		"pre_operation": "SNAPSHOT_RETENTION_HOURS",
		"manual":        "MANUAL_SNAPSHOT_RETENTION_HOURS",
		"scheduled":     "SCHEDULED_SNAPSHOT_RETENTION_HOURS",
	} {
		hours, err := getInt(key, 0)
		if err != nil {
			return nil, err
		}
		if hours > 0 {
			cfg.SnapshotRetention[snapshotType] = time.Duration(hours) * time.Hour
		}
	}

	cfg.Storage = storageFromEnv()
	if cfg.StorageConfigFile != "" {
		if err := cfg.Storage.MergeFile(cfg.StorageConfigFile); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Validate checks that the settings required by the given binary are set.
// role is one of "worker", "core-api" or "cli".
func (c *Config) Validate(role string) error {
	var missing []string
	require := func(name, value string) {
		if value == "" {
			missing = append(missing, name)
		}
	}

	require("CORE_DATABASE_URL", c.CoreDatabaseURL)
	require("TEMPORAL_ADDRESS", c.TemporalAddress)

	switch role {
	case "worker":
		require("TARGET_DATABASE_URL", c.TargetDatabaseURL)
		require("WORK_DIR", c.WorkDir)
		if len(c.Storage.Backends) == 0 {
			missing = append(missing, "STORAGE_BACKENDS")
		}
	case "core-api":
		require("HTTP_LISTEN_ADDR", c.HTTPListenAddr)
	case "cli":
	default:
		return fmt.Errorf("unknown role %q", role)
	}

	var errs []error
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("missing required config: %s", strings.Join(missing, ", ")))
	}
	if (c.TemporalTLSCert == "") != (c.TemporalTLSKey == "") {
		errs = append(errs, errors.New("TEMPORAL_TLS_CERT and TEMPORAL_TLS_KEY must both be set"))
	}
	if role == "worker" {
		if err := c.Storage.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
