package storage

import (
	"errors"
	"testing"

	"github.com/rhuss/datagem/pkg/api"
)

func TestParseDatabaseURL(t *testing.T) {
	tests := []struct {
		raw         string
		wantBackend string
		wantDSN     string
		wantErr     bool
	}{
		{raw: "", wantBackend: BackendSQLite, wantDSN: "./datagem.db"},
		{raw: "memory", wantBackend: BackendMemory},
		{raw: "sqlite:///./datagem.db", wantBackend: BackendSQLite, wantDSN: "./datagem.db"},
		{raw: "sqlite:////var/lib/datagem.db", wantBackend: BackendSQLite, wantDSN: "/var/lib/datagem.db"},
		{raw: "postgres://u:p@db:5432/app", wantBackend: BackendPostgres, wantDSN: "postgresql://u:p@db:5432/app"},
		{raw: "postgresql://u:p@db/app?sslmode=disable", wantBackend: BackendPostgres, wantDSN: "postgresql://u:p@db/app?sslmode=disable"},
		{raw: "mysql://db/app", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			backend, dsn, err := ParseDatabaseURL(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if backend != tt.wantBackend {
				t.Errorf("backend = %q, want %q", backend, tt.wantBackend)
			}
			if dsn != tt.wantDSN {
				t.Errorf("dsn = %q, want %q", dsn, tt.wantDSN)
			}
		})
	}
}

func TestNormalizeLimit(t *testing.T) {
	cases := map[int]int{0: 50, -3: 50, 10: 10, 500: 500, 501: 500}
	for in, want := range cases {
		if got := NormalizeLimit(in); got != want {
			t.Errorf("NormalizeLimit(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestNormalizeIdentity(t *testing.T) {
	if got := NormalizeIdentity("  "); got != DefaultIdentity {
		t.Errorf("blank identity = %q", got)
	}
	if got := NormalizeIdentity(" Ana@Example.com "); got != "ana@example.com" {
		t.Errorf("identity = %q", got)
	}
}

func TestValidateRole(t *testing.T) {
	if err := ValidateRole(api.RoleModel); err != nil {
		t.Errorf("model role rejected: %v", err)
	}
	if err := ValidateRole("system"); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("err = %v, want ErrInvalidRole", err)
	}
}
