package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.SQLitePath == "" || cfg.FSMDBPath == "" {
		t.Errorf("database paths not defaulted: %+v", cfg)
	}
	if cfg.S3Bucket == "" || cfg.S3Region == "" {
		t.Errorf("s3 settings not defaulted: %+v", cfg)
	}
	if cfg.MaxEntrySize <= 0 || cfg.MaxTotalSize <= 0 || cfg.MaxCompressionRatio <= 0 {
		t.Errorf("package limits not defaulted: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("FASTFLASH_S3_BUCKET", "custom-bucket")
	t.Setenv("FASTFLASH_FSM_MAX_RETRIES", "9")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.S3Bucket != "custom-bucket" {
		t.Errorf("s3 bucket = %q, want custom-bucket", cfg.S3Bucket)
	}
	if cfg.FSMMaxRetries != 9 {
		t.Errorf("fsm max retries = %d, want 9", cfg.FSMMaxRetries)
	}
}

func TestValidate(t *testing.T) {
	valid := Config{
		SQLitePath:          "a.db",
		FSMDBPath:           "b.db",
		S3Bucket:            "bucket",
		MaxEntrySize:        1,
		MaxTotalSize:        1,
		MaxCompressionRatio: 1,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty sqlite path", func(c *Config) { c.SQLitePath = "" }},
		{"empty fsm path", func(c *Config) { c.FSMDBPath = "" }},
		{"empty bucket", func(c *Config) { c.S3Bucket = "" }},
		{"zero entry size", func(c *Config) { c.MaxEntrySize = 0 }},
		{"zero total size", func(c *Config) { c.MaxTotalSize = 0 }},
		{"zero ratio", func(c *Config) { c.MaxCompressionRatio = 0 }},
		{"negative retries", func(c *Config) { c.FSMMaxRetries = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
