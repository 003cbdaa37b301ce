package main

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"bakerypos/internal/config"
	"bakerypos/internal/logger"
)

func TestRunRequiresConfirmation(t *testing.T) {
	if err := run(config.Config{DBDriver: config.DriverMemory}, logger.Nop(), false); err == nil {
		t.Fatalf("expected reset without -yes to be refused")
	}
}

func TestRunWipesSQLiteStore(t *testing.T) {
	cfg := config.Config{
		DBDriver:      config.DriverSQLite,
		DBDSN:         fmt.Sprintf("file:%s?_pragma=foreign_keys(1)", filepath.Join(t.TempDir(), "till.db")),
		Timezone:      "UTC",
		RetentionDays: 30,
		DisplayRate:   decimal.NewFromInt(90000),
	}
	if err := run(cfg, logger.Nop(), true); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
}
