package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL               string  `yaml:"ttl"` // quiz content cache TTL
		WaitSeconds       int     `yaml:"waitSeconds"`
		QuestionSeconds   int     `yaml:"questionSeconds"`
		PauseSeconds      int     `yaml:"pauseSeconds"`
		RenderIntervalMS  int     `yaml:"renderIntervalMs"`
		PointsPerQuestion int     `yaml:"pointsPerQuestion"`
		SpeedBonusMult    float64 `yaml:"speedBonusMultiplier"`
		StreakBonusMult   float64 `yaml:"streakBonusMultiplier"`
	} `yaml:"quiz"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty or invalid.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// Seconds converts a positive seconds count, falling back otherwise.
func Seconds(sec int, fallback time.Duration) time.Duration {
	if sec > 0 {
		return time.Duration(sec) * time.Second
	}
	return fallback
}
