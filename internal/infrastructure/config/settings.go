package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// RawSettings mirrors the structure of the settings.yaml file.
// Pointer fields distinguish "unset" from zero values so defaults only
// fill genuine gaps.
type RawSettings struct {
	// Lock manager
	LockTTLMinutes   *int `yaml:"lock_ttl_minutes"`
	SweepIntervalSec *int `yaml:"sweep_interval_sec"`

	// Supervisor
	AuditIntervalSec  *int `yaml:"audit_interval_sec"`
	StuckThresholdMin *int `yaml:"stuck_threshold_min"`
	ResetLimit        *int `yaml:"reset_limit"`

	// Runner
	Workers          *int           `yaml:"workers"`
	IdleIntervalMs   *int           `yaml:"idle_interval_ms"`
	RetryBudgetSec   *int           `yaml:"retry_budget_sec"`
	Capabilities     []string       `yaml:"capabilities"`
	CapabilityLimits map[string]int `yaml:"capability_limits"`

	// Persistence
	DBPath *string `yaml:"db_path"`

	// Structural audit rules
	RequiredFiles []RequiredFile `yaml:"required_files"`
}

// RequiredFile is one structural expectation the supervisor audits
type RequiredFile struct {
	Path       string `yaml:"path"`
	Title      string `yaml:"title"`
	Capability string `yaml:"capability"`
}

// Settings is the resolved engine configuration
type Settings struct {
	LockTTL        time.Duration
	SweepInterval  time.Duration
	AuditInterval  time.Duration
	StuckThreshold time.Duration
	ResetLimit     int

	Workers          int
	IdleInterval     time.Duration
	RetryBudget      time.Duration
	Capabilities     []string
	CapabilityLimits map[string]int

	DBPath        string
	RequiredFiles []RequiredFile

	ConfigSource string // "default", "yaml"
}

// LoadSettings loads configuration from settings.yaml under baseDir.
// Priority: settings.yaml > environment > defaults.
func LoadSettings(baseDir string) (*Settings, error) {
	raw := &RawSettings{}
	configSource := "default"

	yamlPath := baseDir + "/settings.yaml"
	if data, err := os.ReadFile(yamlPath); err == nil {
		if err := yaml.Unmarshal(data, raw); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", yamlPath, err)
		}
		configSource = "yaml"
	}

	applyEnvOverrides(raw)

	settings := &Settings{
		LockTTL:          minutes(raw.LockTTLMinutes, 60),
		SweepInterval:    seconds(raw.SweepIntervalSec, 60),
		AuditInterval:    seconds(raw.AuditIntervalSec, 30),
		StuckThreshold:   minutes(raw.StuckThresholdMin, 30),
		ResetLimit:       intOr(raw.ResetLimit, 3),
		Workers:          intOr(raw.Workers, 2),
		IdleInterval:     millis(raw.IdleIntervalMs, 250),
		RetryBudget:      seconds(raw.RetryBudgetSec, 30),
		Capabilities:     raw.Capabilities,
		CapabilityLimits: raw.CapabilityLimits,
		DBPath:           stringOr(raw.DBPath, baseDir+"/crewsync.db"),
		RequiredFiles:    raw.RequiredFiles,
		ConfigSource:     configSource,
	}
	if len(settings.Capabilities) == 0 {
		settings.Capabilities = []string{"general"}
	}
	return settings, nil
}

// applyEnvOverrides fills unset fields from CREWSYNC_* environment
// variables
func applyEnvOverrides(raw *RawSettings) {
	envInt := func(key string, target **int) {
		if *target != nil {
			return
		}
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*target = &n
			}
		}
	}
	envInt("CREWSYNC_LOCK_TTL_MINUTES", &raw.LockTTLMinutes)
	envInt("CREWSYNC_SWEEP_INTERVAL_SEC", &raw.SweepIntervalSec)
	envInt("CREWSYNC_AUDIT_INTERVAL_SEC", &raw.AuditIntervalSec)
	envInt("CREWSYNC_STUCK_THRESHOLD_MIN", &raw.StuckThresholdMin)
	envInt("CREWSYNC_RESET_LIMIT", &raw.ResetLimit)
	envInt("CREWSYNC_WORKERS", &raw.Workers)

	if raw.DBPath == nil {
		if v := os.Getenv("CREWSYNC_DB_PATH"); v != "" {
			raw.DBPath = &v
		}
	}
}

func intOr(v *int, def int) int {
	if v == nil || *v <= 0 {
		return def
	}
	return *v
}

func stringOr(v *string, def string) string {
	if v == nil || *v == "" {
		return def
	}
	return *v
}

func minutes(v *int, def int) time.Duration {
	return time.Duration(intOr(v, def)) * time.Minute
}

func seconds(v *int, def int) time.Duration {
	return time.Duration(intOr(v, def)) * time.Second
}

func millis(v *int, def int) time.Duration {
	return time.Duration(intOr(v, def)) * time.Millisecond
}
