package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/geckoctl/internal/gecko"
	"github.com/danmuck/geckoctl/internal/logging"
	"github.com/danmuck/geckoctl/internal/protocol"
)

type fileConfig struct {
	Host             string   `toml:"host"`
	Port             int      `toml:"port"`
	ByteOrder        string   `toml:"byte_order"`
	ConnectTimeout   string   `toml:"connect_timeout"`
	ConnectTimeoutMS int64    `toml:"connect_timeout_ms"`
	ReadTimeout      string   `toml:"read_timeout"`
	ReadTimeoutMS    int64    `toml:"read_timeout_ms"`
	WriteTimeout     string   `toml:"write_timeout"`
	WriteTimeoutMS   int64    `toml:"write_timeout_ms"`
	SettleDelay      string   `toml:"settle_delay"`
	SettleDelayMS    int64    `toml:"settle_delay_ms"`
	StatusDelay      string   `toml:"status_delay"`
	StatusDelayMS    int64    `toml:"status_delay_ms"`
	ConnectAttempts  int      `toml:"connect_attempts"`
	LogLevel         string   `toml:"log_level"`
	ListenAddr       string   `toml:"listen_addr"`
	CORSOrigins      []string `toml:"cors_origins"`
	Parallel         int      `toml:"parallel"`
}

// cliConfig is the resolved geckoctl setup.
type cliConfig struct {
	Session         gecko.Config
	ConnectAttempts int
	LogLevel        string
	ListenAddr      string
	CORSOrigins     []string
	Parallel        int
}

func defaultCLIConfig() cliConfig {
	return cliConfig{
		Session:         gecko.DefaultConfig(),
		ConnectAttempts: 1,
		ListenAddr:      "127.0.0.1:7332",
		CORSOrigins:     []string{"http://localhost:3000"},
		Parallel:        4,
	}
}

func loadCLIConfig(path string) (cliConfig, error) {
	cfg := defaultCLIConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return cliConfig{}, fmt.Errorf("load geckoctl config: %w", err)
	}

	if meta.IsDefined("host") {
		cfg.Session.Host = strings.TrimSpace(raw.Host)
	}
	if meta.IsDefined("port") {
		if raw.Port <= 0 || raw.Port > 65535 {
			return cliConfig{}, fmt.Errorf("parse port: %d out of range", raw.Port)
		}
		cfg.Session.Port = raw.Port
	}
	if meta.IsDefined("byte_order") {
		codec, err := protocol.ParseByteOrder(raw.ByteOrder)
		if err != nil {
			return cliConfig{}, fmt.Errorf("parse byte_order: %w", err)
		}
		cfg.Session.ByteOrder = codec
	}

	durations := []struct {
		key   string
		text  string
		milli int64
		dst   *time.Duration
	}{
		{"connect_timeout", raw.ConnectTimeout, raw.ConnectTimeoutMS, &cfg.Session.ConnectTimeout},
		{"read_timeout", raw.ReadTimeout, raw.ReadTimeoutMS, &cfg.Session.ReadTimeout},
		{"write_timeout", raw.WriteTimeout, raw.WriteTimeoutMS, &cfg.Session.WriteTimeout},
		{"settle_delay", raw.SettleDelay, raw.SettleDelayMS, &cfg.Session.SettleDelay},
		{"status_delay", raw.StatusDelay, raw.StatusDelayMS, &cfg.Session.StatusDelay},
	}
	for _, d := range durations {
		if meta.IsDefined(d.key) {
			v, err := time.ParseDuration(strings.TrimSpace(d.text))
			if err != nil {
				return cliConfig{}, fmt.Errorf("parse %s: %w", d.key, err)
			}
			*d.dst = v
		}
		if meta.IsDefined(d.key + "_ms") {
			*d.dst = time.Duration(d.milli) * time.Millisecond
		}
	}

	if meta.IsDefined("connect_attempts") {
		cfg.ConnectAttempts = max(raw.ConnectAttempts, 1)
	}
	if meta.IsDefined("log_level") {
		level := strings.TrimSpace(raw.LogLevel)
		if _, ok := logging.ParseLevel(level); !ok {
			return cliConfig{}, fmt.Errorf("parse log_level: unknown level %q", level)
		}
		cfg.LogLevel = level
	}
	if meta.IsDefined("listen_addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = normalizeOrigins(raw.CORSOrigins)
	}
	if meta.IsDefined("parallel") {
		cfg.Parallel = max(raw.Parallel, 1)
	}

	return cfg, nil
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, origin := range in {
		v := strings.TrimSpace(origin)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
