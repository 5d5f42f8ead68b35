package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Durations are kept as strings ("12s", "5m") and parsed with Duration so an
// empty value falls back to the built-in default.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
		// Format is "text" (colored) or "json".
		Format string `yaml:"format"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
		Instance string `yaml:"instance"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	AMQP struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"amqp"`
	Questions struct {
		TTL string `yaml:"ttl"`
	} `yaml:"questions"`
	Engine struct {
		LobbyCountdown string `yaml:"lobbyCountdown"`
		StartCountdown string `yaml:"startCountdown"`
		RevealDuration string `yaml:"revealDuration"`
		EvictionGrace  string `yaml:"evictionGrace"`
		FetchTimeout   string `yaml:"fetchTimeout"`
	} `yaml:"engine"`
	Outbox struct {
		InitialInterval string `yaml:"initialInterval"`
		MaxInterval     string `yaml:"maxInterval"`
		MaxElapsed      string `yaml:"maxElapsed"`
	} `yaml:"outbox"`
}

// Load reads YAML config from path. A missing file yields the zero Config so
// the service starts with in-memory defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Duration parses a duration string or returns the fallback if empty.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
