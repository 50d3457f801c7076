package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNames_Ordered(t *testing.T) {
	names := Names()
	require.Len(t, names, 3)
	assert.True(t, strings.HasSuffix(names[0], "0001_ledger_state.sql"))
	assert.True(t, strings.HasSuffix(names[2], "0003_audit_events.sql"))
}

func TestMigrations_AreIdempotent(t *testing.T) {
	for _, name := range Names() {
		body, err := files.ReadFile(name)
		require.NoError(t, err)
		for _, stmt := range strings.Split(string(body), ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			assert.Contains(t, stmt, "IF NOT EXISTS", "%s: %q", name, stmt)
		}
	}
}
