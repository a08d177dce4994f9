package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestApplyDefaults_Server(t *testing.T) {
	t.Parallel()

	cfg := Config{Server: &ServerConfig{}}
	ApplyDefaults(&cfg)

	if cfg.Server.Listen != DefaultListen || cfg.Server.Registration != "strict" {
		t.Fatalf("defaults not set: %+v", cfg.Server)
	}
	if cfg.Server.RelayTimeout != DefaultRelayTimeout || cfg.Server.RelayReadSize != 1024 {
		t.Fatalf("relay defaults: %+v", cfg.Server)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_CityRequiresDirectory(t *testing.T) {
	t.Parallel()

	cfg := Config{City: &CityConfig{Name: "springfield"}}
	ApplyDefaults(&cfg)
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error")
	}

	cfg.City.Directory = "127.0.0.1:3000"
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected: %v", err)
	}

	cfg.City.TelemetryEncoding = "xml"
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected encoding error")
	}
}

func TestValidate_RejectsUnknownRegistrationMode(t *testing.T) {
	t.Parallel()

	cfg := Config{Server: &ServerConfig{Registration: "merge"}}
	ApplyDefaults(&cfg)
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoad_ParsesDurations(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	path := filepath.Join(tmp, "citydir.yaml")
	data := "server:\n  listen: 0.0.0.0:3000\n  registration: overwrite\n  relay_timeout: 250ms\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.RelayTimeout != 250*time.Millisecond {
		t.Fatalf("relay_timeout=%s", cfg.Server.RelayTimeout)
	}
	if cfg.Server.Registration != "overwrite" || cfg.Server.RelayDialTimeout != DefaultRelayDialTimeout {
		t.Fatalf("server=%+v", cfg.Server)
	}
}

func TestSave_Writes0600(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	path := filepath.Join(tmp, "city.yaml")
	cfg := Config{City: &CityConfig{Name: "springfield", Directory: "127.0.0.1:3000", ID: "abc"}}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("mode=%o", info.Mode().Perm())
	}

	out, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.City.ID != "abc" || out.City.CommandListen != DefaultCommandListen {
		t.Fatalf("city=%+v", out.City)
	}
}

func TestNewLogger_Level(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "warn")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "city", "springfield")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "city=springfield") {
		t.Fatalf("out=%q", out)
	}

	if _, err := NewLogger(&buf, "loud"); err == nil {
		t.Fatalf("expected error")
	}
	if lvl, _ := ParseLogLevel("DEBUG"); lvl != slog.LevelDebug {
		t.Fatalf("lvl=%v", lvl)
	}
}
