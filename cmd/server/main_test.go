package main

import (
	"testing"

	"github.com/shopspring/decimal"

	"bakerypos/internal/config"
)

func validConfig() config.Config {
	return config.Config{
		Port:          "8080",
		BindAddr:      "127.0.0.1",
		AllowedOrigin: "*",
		DBDriver:      config.DriverMemory,
		Timezone:      "UTC",
		RetentionDays: 30,
		DisplayRate:   decimal.NewFromInt(90000),
	}
}

func TestValidateConfigAcceptsLocalDefaults(t *testing.T) {
	if err := validateConfig(validConfig()); err != nil {
		t.Fatalf("expected local config to pass, got %v", err)
	}
}

func TestValidateConfigRejectsWildcardOriginOnPublicBind(t *testing.T) {
	cfg := validConfig()
	cfg.BindAddr = "0.0.0.0"
	if err := validateConfig(cfg); err == nil {
		t.Fatalf("expected wildcard origin on public bind to be rejected")
	}
}

func TestValidateConfigRejectsUnknownDriver(t *testing.T) {
	cfg := validConfig()
	cfg.DBDriver = "mysql"
	if err := validateConfig(cfg); err == nil {
		t.Fatalf("expected unknown driver to be rejected")
	}
}
