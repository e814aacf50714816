package engine

import (
	"testing"

	flooderrors "github.com/fludmesh/flud/internal/errors"
)

func validConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Name:                 "alpha",
		ContextPath:          t.TempDir(),
		OwnMAC:               mustMAC("AA:BB:CC:DD:EE:01"),
		Channel:              3,
		MaxTTL:               5,
		HelloIntervalSeconds: 60,
	}
}

func TestConfigValidateAccepts(t *testing.T) {
	cfg := validConfig(t)
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConfigApplyDefaultsFillsZeroFields(t *testing.T) {
	cfg := validConfig(t)
	cfg.applyDefaults()
	if cfg.DedupeCapacity == 0 || cfg.SendQueueDepth == 0 || cfg.AckMaxTries == 0 {
		t.Fatalf("expected defaults to be filled, got %+v", cfg)
	}
	if cfg.CacheGCInterval == 0 || cfg.AckSweepInterval == 0 {
		t.Fatalf("expected housekeeping interval defaults, got %+v", cfg)
	}
}

func TestConfigValidateRejectsEmptyName(t *testing.T) {
	cfg := validConfig(t)
	cfg.Name = ""
	err := cfg.validate()
	if !flooderrors.IsCore(err) {
		t.Fatalf("expected a core error, got %v", err)
	}
}

func TestConfigValidateRejectsZeroMAC(t *testing.T) {
	cfg := validConfig(t)
	cfg.OwnMAC = mac0()
	if err := cfg.validate(); err == nil {
		t.Fatal("expected error for zero MAC")
	}
}

func TestConfigValidateRejectsOutOfRangeChannel(t *testing.T) {
	cfg := validConfig(t)
	cfg.Channel = 15
	if err := cfg.validate(); err == nil {
		t.Fatal("expected error for out-of-range channel")
	}
	cfg.Channel = -1
	if err := cfg.validate(); err == nil {
		t.Fatal("expected error for negative channel")
	}
}

func TestConfigValidateRejectsOutOfRangeMaxTTL(t *testing.T) {
	cfg := validConfig(t)
	cfg.MaxTTL = 0
	if err := cfg.validate(); err == nil {
		t.Fatal("expected error for ttl 0")
	}
	cfg.MaxTTL = 10
	if err := cfg.validate(); err == nil {
		t.Fatal("expected error for ttl above max")
	}
}

func TestConfigValidateRejectsOutOfRangeHelloInterval(t *testing.T) {
	cfg := validConfig(t)
	cfg.applyDefaults()
	cfg.HelloIntervalSeconds = 1
	if err := cfg.validate(); err == nil {
		t.Fatal("expected error for too-short hello interval")
	}
	cfg.HelloIntervalSeconds = 10000
	if err := cfg.validate(); err == nil {
		t.Fatal("expected error for too-long hello interval")
	}
}

func mac0() (z [6]byte) { return z }
