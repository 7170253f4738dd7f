// ABOUTME: Shared helpers for relational sink tests
// ABOUTME: Opens a fresh in-memory SQLite sink per test
package relational

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}
