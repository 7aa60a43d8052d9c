package dialect

import "testing"

func TestFromDriverName(t *testing.T) {
	tests := []struct {
		driver  string
		want    *Dialect
		wantErr bool
	}{
		{"", SQLite, false},
		{"sqlite", SQLite, false},
		{"SQLite3", SQLite, false},
		{" postgres ", Postgres, false},
		{"postgresql", Postgres, false},
		{"pgx", Postgres, false},
		{"mysql", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			got, err := FromDriverName(tt.driver)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FromDriverName(%q) error = %v, wantErr %v", tt.driver, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("FromDriverName(%q) = %v, want %v", tt.driver, got, tt.want)
			}
		})
	}
}

func TestDriverNames(t *testing.T) {
	if SQLite.DriverName() != "sqlite" || SQLite.Name() != "sqlite" {
		t.Errorf("sqlite = %s/%s", SQLite.Name(), SQLite.DriverName())
	}
	if Postgres.DriverName() != "pgx" || Postgres.Name() != "postgres" {
		t.Errorf("postgres = %s/%s", Postgres.Name(), Postgres.DriverName())
	}
}

func TestRebind(t *testing.T) {
	q := "UPDATE quota_usage SET tokens = tokens + ? WHERE identity = ? AND day = ?"

	if got := SQLite.Rebind(q); got != q {
		t.Errorf("sqlite Rebind() = %q", got)
	}
	want := "UPDATE quota_usage SET tokens = tokens + $1 WHERE identity = $2 AND day = $3"
	if got := Postgres.Rebind(q); got != want {
		t.Errorf("postgres Rebind() = %q, want %q", got, want)
	}
	if got := Postgres.Rebind("SELECT id FROM sessions"); got != "SELECT id FROM sessions" {
		t.Errorf("postgres Rebind() without placeholders = %q", got)
	}
}

func TestInsertIgnoreClause(t *testing.T) {
	if got := SQLite.InsertIgnoreClause("identity, day"); got != "ON CONFLICT(identity, day) DO NOTHING" {
		t.Errorf("sqlite InsertIgnoreClause() = %q", got)
	}
	if got := Postgres.InsertIgnoreClause("id"); got != "ON CONFLICT (id) DO NOTHING" {
		t.Errorf("postgres InsertIgnoreClause() = %q", got)
	}
}

func TestPool(t *testing.T) {
	if SQLite.MaxOpenConns() != 1 {
		t.Errorf("sqlite MaxOpenConns() = %d, want 1", SQLite.MaxOpenConns())
	}
	if Postgres.MaxOpenConns() != 0 {
		t.Errorf("postgres MaxOpenConns() = %d, want 0", Postgres.MaxOpenConns())
	}
	if len(Postgres.PragmaStatements()) != 0 {
		t.Error("postgres should not run pragmas")
	}

	p := SQLite.PragmaStatements()
	p[0] = "mutated"
	if SQLite.PragmaStatements()[0] == "mutated" {
		t.Error("PragmaStatements should return a copy")
	}
}
