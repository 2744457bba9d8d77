// Package config loads and validates deployment settings from the
// environment.
package config

import (
	"os"
	"strconv"
)

// Settings holds everything a deployment configures outside code.
type Settings struct {
	Provider    string  // openai, claude or gemini
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int

	MaxRounds        int
	QualityThreshold float64
	ConfidenceCap    float64
	OverlapThreshold float64

	RedisAddr   string // empty disables checkpointing
	RedisDB     int
	RedisPrefix string

	MongoURI        string // empty disables the run archive
	MongoDatabase   string
	MongoCollection string
}

// FromEnv reads settings from DELIBERATE_* environment variables,
// falling back to defaults where unset.
func FromEnv() *Settings {
	return &Settings{
		Provider:    envString("DELIBERATE_PROVIDER", "openai"),
		APIKey:      os.Getenv("DELIBERATE_API_KEY"),
		Model:       os.Getenv("DELIBERATE_MODEL"),
		Temperature: envFloat("DELIBERATE_TEMPERATURE", 0.7),
		MaxTokens:   envInt("DELIBERATE_MAX_TOKENS", 2000),

		MaxRounds:        envInt("DELIBERATE_MAX_ROUNDS", 3),
		QualityThreshold: envFloat("DELIBERATE_QUALITY_THRESHOLD", 0.7),
		ConfidenceCap:    envFloat("DELIBERATE_CONFIDENCE_CAP", 0.7),
		OverlapThreshold: envFloat("DELIBERATE_OVERLAP_THRESHOLD", 0.70),

		RedisAddr:   os.Getenv("DELIBERATE_REDIS_ADDR"),
		RedisDB:     envInt("DELIBERATE_REDIS_DB", 0),
		RedisPrefix: envString("DELIBERATE_REDIS_PREFIX", "deliberate:checkpoint:"),

		MongoURI:        os.Getenv("DELIBERATE_MONGO_URI"),
		MongoDatabase:   envString("DELIBERATE_MONGO_DATABASE", "deliberate"),
		MongoCollection: envString("DELIBERATE_MONGO_COLLECTION", "runs"),
	}
}

// Validate checks the loaded settings. Store settings are validated
// only when the corresponding store is enabled.
func (s *Settings) Validate() error {
	if err := ValidateEngine(s.MaxRounds, s.QualityThreshold, s.ConfidenceCap, s.OverlapThreshold); err != nil {
		return err
	}
	if err := ValidateLLM(s.Provider, s.APIKey, s.Model, s.Temperature, s.MaxTokens); err != nil {
		return err
	}
	if s.RedisAddr != "" {
		if err := ValidateRedis(s.RedisAddr, s.RedisDB, s.RedisPrefix); err != nil {
			return err
		}
	}
	if s.MongoURI != "" {
		if err := ValidateMongo(s.MongoURI, s.MongoDatabase, s.MongoCollection); err != nil {
			return err
		}
	}
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
