// Package journal keeps an append-only audit trail of relay traffic in SQLite
// or Postgres. It is never read back to restore sessions.
package journal

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/lib/pq"  // Postgres driver
	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/soyeahso/relaychat/internal/logging"
)

const operationTimeout = 5 * time.Second

// Direction of a journaled message relative to the relay.
type Direction string

const (
	Outbound Direction = "outbound"
	Inbound  Direction = "inbound"
	Internal Direction = "internal"
)

// Kind classifies a journal entry.
type Kind string

const (
	KindText      Kind = "text"
	KindTemplate  Kind = "template"
	KindKeepalive Kind = "keepalive"
	KindReply     Kind = "reply"
	KindStatus    Kind = "status"
	KindEvicted   Kind = "evicted"
)

// Entry is one journal row.
type Entry struct {
	ID                int64     `json:"id"`
	SessionID         string    `json:"sessionId"`
	CustomerID        string    `json:"customerId,omitempty"`
	Direction         Direction `json:"direction"`
	Kind              Kind      `json:"kind"`
	ProviderMessageID string    `json:"providerMessageId,omitempty"`
	Status            string    `json:"status,omitempty"`
	Body              string    `json:"body,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// dialect captures the differences between the supported backends.
type dialect struct {
	name       string
	driver     string
	idColumn   string
	positional bool // $1 placeholders instead of ?
}

var (
	sqliteDialect   = dialect{name: "sqlite", driver: "sqlite", idColumn: "INTEGER PRIMARY KEY AUTOINCREMENT"}
	postgresDialect = dialect{name: "postgres", driver: "postgres", idColumn: "BIGSERIAL PRIMARY KEY", positional: true}
)

// rebind rewrites ? placeholders for dialects that use positional ones.
func (d dialect) rebind(query string) string {
	if !d.positional {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// target is a parsed journal DSN.
type target struct {
	dialect dialect
	source  string // driver data source name
	memory  bool
}

// parseDSN accepts "memory", "sqlite://<path>", "postgres://..." and
// "postgresql://...". Relative sqlite paths resolve against dataDir.
func parseDSN(dsn, dataDir string) (target, error) {
	dsn = strings.TrimSpace(dsn)
	switch dsn {
	case "":
		return target{}, fmt.Errorf("empty journal dsn")
	case "memory", ":memory:":
		return target{dialect: sqliteDialect, source: ":memory:", memory: true}, nil
	}

	parsed, err := url.Parse(dsn)
	if err != nil {
		return target{}, fmt.Errorf("parsing journal dsn: %w", err)
	}

	switch scheme := strings.ToLower(parsed.Scheme); scheme {
	case "sqlite":
		path := parsed.Host + parsed.Path
		if path == "" {
			return target{}, fmt.Errorf("sqlite dsn %q has no path", dsn)
		}
		if path == ":memory:" {
			return target{dialect: sqliteDialect, source: path, memory: true}, nil
		}
		if !filepath.IsAbs(path) && dataDir != "" {
			path = filepath.Join(dataDir, path)
		}
		return target{dialect: sqliteDialect, source: path}, nil
	case "postgres", "postgresql":
		return target{dialect: postgresDialect, source: dsn}, nil
	default:
		return target{}, fmt.Errorf("unsupported journal scheme: %s", scheme)
	}
}

// DB is an open journal.
type DB struct {
	sql     *sql.DB
	dialect dialect
	now     func() time.Time
	log     *logging.Logger
}

// Open connects to the journal named by dsn and runs migrations.
func Open(dsn, dataDir string, log *logging.Logger) (*DB, error) {
	t, err := parseDSN(dsn, dataDir)
	if err != nil {
		return nil, err
	}

	if t.dialect == sqliteDialect && !t.memory {
		if err := os.MkdirAll(filepath.Dir(t.source), 0o700); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
	}

	sqlDB, err := sql.Open(t.dialect.driver, t.source)
	if err != nil {
		return nil, fmt.Errorf("opening %s journal: %w", t.dialect.name, err)
	}

	if t.dialect == sqliteDialect {
		// Every pooled connection would otherwise see its own empty
		// in-memory database.
		if t.memory {
			sqlDB.SetMaxOpenConns(1)
		} else if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("setting WAL mode: %w", err)
		}
	}

	db := &DB{sql: sqlDB, dialect: t.dialect, now: time.Now, log: log.Sub("journal")}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	db.log.Info().Str("backend", t.dialect.name).Msg("journal opened")
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.log.Debug().Msg("closing journal")
	return db.sql.Close()
}

// Backend names the SQL dialect in use.
func (db *DB) Backend() string {
	return db.dialect.name
}
