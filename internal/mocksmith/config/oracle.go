package config

import (
	"context"
	"errors"
	"strconv"

	"mocksmith/common/environment"
)

// Config-table keys for oracle overrides. Values set here win over the
// environment so an operator can retune the oracle without a restart.
const (
	KeyOracleModel       = "oracle.model"
	KeyOracleTemperature = "oracle.temperature"
	KeyOracleMaxTokens   = "oracle.max_tokens"
)

// OracleSettings is an immutable snapshot of the generation parameters used
// for every oracle call. It is loaded once per request so config-table edits
// take effect on the next prompt.
type OracleSettings struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// LoadOracleSettings merges the environment defaults with any overrides in
// the config table. Store lookups that fail with anything other than a
// missing key fall back to the environment value; settings loading must
// never block a request.
func LoadOracleSettings(ctx context.Context, cfg Store) OracleSettings {
	s := OracleSettings{
		Model:       environment.StringOr("MOCKSMITH_ORACLE_MODEL", "gpt-4o-mini"),
		Temperature: environment.FloatOr("MOCKSMITH_ORACLE_TEMPERATURE", 0.2),
		MaxTokens:   environment.IntOr("MOCKSMITH_ORACLE_MAX_TOKENS", 2048),
	}
	if cfg == nil {
		return s
	}

	if v, err := cfg.Get(ctx, KeyOracleModel); err == nil && v != "" {
		s.Model = v
	}
	if v, err := cfg.Get(ctx, KeyOracleTemperature); err == nil {
		if f, perr := strconv.ParseFloat(v, 64); perr == nil {
			s.Temperature = f
		}
	}
	if v, err := cfg.Get(ctx, KeyOracleMaxTokens); err == nil {
		if n, perr := strconv.Atoi(v); perr == nil && n > 0 {
			s.MaxTokens = n
		}
	}
	return s
}

// SetOracleOverride writes one of the oracle keys, validating the value
// shape before it lands in the table.
func SetOracleOverride(ctx context.Context, cfg Store, key, value string) error {
	switch key {
	case KeyOracleModel:
		if value == "" {
			return errors.New("config: oracle model must not be empty")
		}
	case KeyOracleTemperature:
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return errors.New("config: oracle temperature must be a number")
		}
	case KeyOracleMaxTokens:
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return errors.New("config: oracle max_tokens must be a positive integer")
		}
	default:
		return errors.New("config: unknown oracle key " + key)
	}
	return cfg.Set(ctx, key, value)
}
