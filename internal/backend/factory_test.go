package backend

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"farmledger/internal/config"
	"farmledger/internal/storage"
	"farmledger/internal/storage/memory"
)

var (
	_ Repository = (*storage.SQLiteRepository)(nil)
	_ Repository = (*memory.Store)(nil)
)

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
	_, err := FromAppConfig(&config.Config{DataBackend: "sheets"})
	if err == nil || !strings.Contains(err.Error(), "valid: sqlite, memory") {
		t.Fatalf("unknown backend err = %v", err)
	}
	cfg, err := FromAppConfig(&config.Config{DataBackend: "sqlite", SQLiteDBPath: "x.db"})
	if err != nil || cfg.Type != SQLiteBackend || cfg.SQLiteDBPath != "x.db" {
		t.Fatalf("FromAppConfig = %+v, %v", cfg, err)
	}
}

func TestCreateBackend(t *testing.T) {
	f := NewFactory(nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite", Config{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(t.TempDir(), "farm.db")}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"unknown", Config{Type: "csv"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.CreateBackend(ctx, tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			defer res.Cleanup()
			if err := res.Repository.Ping(ctx); err != nil {
				t.Fatalf("Ping: %v", err)
			}
		})
	}
}
