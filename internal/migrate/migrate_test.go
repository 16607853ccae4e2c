package migrate

import (
	"strings"
	"testing"
)

func TestStatementsPerDialect(t *testing.T) {
	pg := strings.Join(Statements(Postgres), "\n")
	lite := strings.Join(Statements(SQLite), "\n")
	if !strings.Contains(pg, "JSONB") || strings.Contains(lite, "JSONB") {
		t.Errorf("JSON column type not dialect specific")
	}
	for _, s := range append(Statements(Postgres), Statements(SQLite)...) {
		if !strings.Contains(s, "IF NOT EXISTS") {
			t.Errorf("statement is not idempotent: %s", s)
		}
	}
}
