package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBSource string
	Port     string
	Env      string

	// ExpiryWindow is how long a request may sit in a non-terminal status
	// before the reaper expires it.
	ExpiryWindow time.Duration
	// ReapSchedule is a cron spec for the reaper run cadence.
	ReapSchedule string
	// ExpireAccepted widens the reaper's scope to accepted_by_user rows.
	ExpireAccepted bool
	// AllowHostPayer permits cash-ins whose payer phone belongs to a
	// host-role account.
	AllowHostPayer bool
}

func Load() (*Config, error) {
	// Best effort; real deployments set the environment directly.
	_ = godotenv.Load()

	dbSource := os.Getenv("DB_SOURCE")
	if dbSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	expiry := 15 * time.Minute
	if raw := os.Getenv("CASHIN_EXPIRY"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid CASHIN_EXPIRY %q: %w", raw, err)
		}
		expiry = d
	}

	schedule := os.Getenv("REAP_SCHEDULE")
	if schedule == "" {
		schedule = "@every 1m"
	}

	expireAccepted, err := boolEnv("EXPIRE_ACCEPTED", true)
	if err != nil {
		return nil, err
	}
	allowHostPayer, err := boolEnv("ALLOW_HOST_PAYER", false)
	if err != nil {
		return nil, err
	}

	return &Config{
		DBSource:       dbSource,
		Port:           port,
		Env:            env,
		ExpiryWindow:   expiry,
		ReapSchedule:   schedule,
		ExpireAccepted: expireAccepted,
		AllowHostPayer: allowHostPayer,
	}, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}
