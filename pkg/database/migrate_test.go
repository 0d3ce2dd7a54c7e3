package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationNames_Ordered(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"001_schema.sql", "002_communities.sql", "003_email_logs.sql"}, names)
}

func TestSchema_RegistrationConstraints(t *testing.T) {
	raw, err := migrationsFS.ReadFile("migrations/001_schema.sql")
	require.NoError(t, err)
	sql := string(raw)

	assert.Contains(t, sql, "ON meeting_registrations (meeting_id, lower(email))")
	assert.Contains(t, sql, "UNIQUE (user_id, meeting_id)")
	assert.Contains(t, sql, "REFERENCES meetings(id) ON DELETE CASCADE")
}
