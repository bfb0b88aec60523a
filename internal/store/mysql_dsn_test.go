package store

import (
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
)

func TestNormalizeMySQLDSN_ForcesUTCAndTimeZone(t *testing.T) {
	t.Parallel()

	got, err := normalizeMySQLDSN("user:pass@tcp(127.0.0.1:3306)/giteelink?charset=utf8mb4")
	if err != nil {
		t.Fatalf("normalizeMySQLDSN: %v", err)
	}

	cfg, err := mysql.ParseDSN(got)
	if err != nil {
		t.Fatalf("mysql.ParseDSN(normalized): %v", err)
	}
	if !cfg.ParseTime {
		t.Fatalf("ParseTime = false, want true")
	}
	if cfg.Loc != time.UTC {
		t.Fatalf("Loc = %v, want UTC", cfg.Loc)
	}
	if cfg.Params["time_zone"] != "'+00:00'" {
		t.Fatalf("time_zone = %q, want %q", cfg.Params["time_zone"], "'+00:00'")
	}
	if cfg.DBName != "giteelink" {
		t.Fatalf("DBName = %q", cfg.DBName)
	}
}

func TestNormalizeMySQLDSN_RejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := normalizeMySQLDSN("user:pass@tcp(127.0.0.1:3306"); err == nil {
		t.Fatalf("expected error")
	}
}
