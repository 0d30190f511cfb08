package cli

import (
	"context"
	"strings"
	"testing"

	"mockexam-service/internal/config"
)

func TestRunMigrationsRequiresPostgresURL(t *testing.T) {
	for _, down := range []bool{false, true} {
		err := runMigrations(context.Background(), config.Config{}, down)
		if err == nil || !strings.Contains(err.Error(), "postgres url") {
			t.Fatalf("down=%v: err = %v, want postgres url guard", down, err)
		}
	}
}

func TestMigrateCmdHasDownFlag(t *testing.T) {
	path := "config/config.yaml"
	cmd := NewMigrateCmd(&path)
	if cmd.Flags().Lookup("down") == nil {
		t.Fatal("missing --down flag")
	}
}
