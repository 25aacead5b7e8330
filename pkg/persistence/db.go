// Package persistence stores run history, stage results, review feedback, and
// build predictions in a project-local SQLite database.
package persistence

import (
	"database/sql"
	"fmt"
	"sync"

	"devopsteam/pkg/logx"
)

// The process holds exactly one connection to the project database; every
// operation goes through it, scoped to the session generated at startup.
//
//nolint:gochecknoglobals // Intentional singleton for the project database
var (
	db     *sql.DB
	dbOnce sync.Once
	dbMu   sync.RWMutex

	sessionID string
)

// Initialize opens the project database, runs migrations, and pins the
// session ID used for all subsequent writes. The first call wins; later calls
// are no-ops.
func Initialize(dbPath, sessID string) error {
	var initErr error

	dbOnce.Do(func() {
		sessionID = sessID

		conn, err := sql.Open("sqlite", fmt.Sprintf(
			"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000",
			dbPath,
		))
		if err != nil {
			initErr = fmt.Errorf("failed to open database: %w", err)
			return
		}

		if err := conn.Ping(); err != nil {
			_ = conn.Close()
			initErr = fmt.Errorf("failed to ping database: %w", err)
			return
		}

		if err := initializeSchemaWithMigrations(conn); err != nil {
			_ = conn.Close()
			initErr = fmt.Errorf("failed to initialize schema: %w", err)
			return
		}

		// SQLite supports a single writer
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)

		db = conn
		logx.NewLogger("persistence").Info("📦 Database initialized: %s (session: %s)", dbPath, sessID)
	})

	return initErr
}

// GetDB returns the shared connection. Panics when Initialize has not run.
func GetDB() *sql.DB {
	dbMu.RLock()
	defer dbMu.RUnlock()

	if db == nil {
		panic("persistence.Initialize must be called before GetDB")
	}
	return db
}

// GetSessionID returns the session all writes are scoped to.
func GetSessionID() string {
	dbMu.RLock()
	defer dbMu.RUnlock()
	return sessionID
}

// SetSessionID repins the session ID (used when a session restarts).
func SetSessionID(sessID string) {
	dbMu.Lock()
	defer dbMu.Unlock()
	sessionID = sessID
}

// IsInitialized reports whether the database is open. Callers that can run
// without history use this to degrade instead of panicking in GetDB.
func IsInitialized() bool {
	dbMu.RLock()
	defer dbMu.RUnlock()
	return db != nil
}

// Ops returns the operations layer bound to the shared connection and session.
func Ops() *DatabaseOperations {
	return NewDatabaseOperations(GetDB(), GetSessionID())
}

// Close closes the shared connection during shutdown.
func Close() error {
	dbMu.Lock()
	defer dbMu.Unlock()

	if db == nil {
		return nil
	}
	err := db.Close()
	db = nil
	if err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// Reset closes the database and clears the singleton so a test can
// re-initialize with a fresh path.
func Reset() error {
	dbMu.Lock()
	defer dbMu.Unlock()

	if db != nil {
		if err := db.Close(); err != nil {
			return fmt.Errorf("failed to close database during reset: %w", err)
		}
		db = nil
	}

	dbOnce = sync.Once{}
	sessionID = ""
	return nil
}
