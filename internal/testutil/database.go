package testutil

import (
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/WailSalutem-Health-Care/patient-registry/internal/db"
)

const defaultTestDSN = "host=localhost port=5432 user=registry password=registry dbname=patient_registry_test sslmode=disable"

// SetupTestDB connects to the integration database named by TEST_DATABASE_DSN,
// applies migrations and empties the registry tables. The test is skipped
// when the database is unreachable.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		dsn = defaultTestDSN
	}

	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		t.Skipf("Test database not available: %v", err)
	}

	if err := db.Migrate(conn, zap.NewNop()); err != nil {
		conn.Close()
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	CleanupTestDB(t, conn)
	t.Cleanup(func() {
		CleanupTestDB(t, conn)
		conn.Close()
	})

	return conn
}

// CleanupTestDB removes every patient and resets the MRN counter.
func CleanupTestDB(t *testing.T, conn *sql.DB) {
	t.Helper()

	if _, err := conn.Exec("TRUNCATE TABLE patients, id_sequences"); err != nil {
		t.Logf("Warning: Failed to clean up registry tables: %v", err)
	}
}
