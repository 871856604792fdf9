package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect selects the SQL flavor used for DDL and the few queries that
// cannot be expressed portably. Numbered placeholders ($1, $2, ...) are
// accepted by both pgx and modernc sqlite, so regular queries are shared.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Config describes the database connection.
type Config struct {
	Type         string // "postgres", "postgresql" or "sqlite"
	Path         string // sqlite file path (":memory:" allowed)
	Host         string
	Port         int
	Database     string
	Username     string
	Password     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// Store is the relational layer shared by auth, catalog, intake and the
// bot runtime mailbox. All methods are safe for concurrent use; the *sql.DB
// pool serializes access to the underlying connection(s).
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects to the configured database and verifies the connection.
func Open(cfg Config) (*Store, error) {
	var (
		db      *sql.DB
		dialect Dialect
		err     error
	)
	switch strings.ToLower(cfg.Type) {
	case "postgres", "postgresql":
		if cfg.Host == "" {
			cfg.Host = "localhost"
		}
		if cfg.Port == 0 {
			cfg.Port = 5432
		}
		if cfg.SSLMode == "" {
			cfg.SSLMode = "disable"
		}
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database, cfg.SSLMode)
		db, err = sql.Open("pgx", dsn)
		dialect = DialectPostgres
	case "sqlite":
		db, err = sql.Open("sqlite", sqliteDSN(cfg.Path))
		dialect = DialectSQLite
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Type, err)
	}

	if dialect == DialectPostgres {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		} else {
			db.SetMaxOpenConns(25)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		} else {
			db.SetMaxIdleConns(5)
		}
		db.SetConnMaxLifetime(5 * time.Minute)
	} else {
		// modernc sqlite is single-writer; a single connection also keeps
		// :memory: databases from vanishing between pool checkouts.
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, dialect: dialect}
	if err := s.Ping(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s database: %w", cfg.Type, err)
	}
	return s, nil
}

// OpenFromDSN opens a store from a DSN string. postgres:// URLs go to pgx,
// anything else is treated as a sqlite path.
func OpenFromDSN(dsn string) (*Store, error) {
	ld := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(ld, "postgres://") || strings.HasPrefix(ld, "postgresql://") {
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, err
		}
		s := &Store{db: db, dialect: DialectPostgres}
		if err := s.Ping(context.Background()); err != nil {
			_ = db.Close()
			return nil, err
		}
		return s, nil
	}
	db, err := sql.Open("sqlite", sqliteDSN(strings.TrimPrefix(dsn, "sqlite://")))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return &Store{db: db, dialect: DialectSQLite}, nil
}

// sqliteDSN appends _time_format=sqlite so time.Time values are bound in a
// text form sqlite's date functions can parse. Without it the driver stores
// Go's default String() representation and date(created_at) yields NULL.
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_time_format=sqlite"
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Dialect() Dialect { return s.dialect }

// EnsureSchema creates all application tables if missing. Statements are
// idempotent, so concurrent first-calls only race on no-op DDL.
func (s *Store) EnsureSchema(ctx context.Context) error {
	var stmts []string
	if s.dialect == DialectPostgres {
		stmts = postgresSchema
	} else {
		stmts = sqliteSchema
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS admins(
		id INTEGER PRIMARY KEY GENERATED ALWAYS AS IDENTITY,
		email VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		last_login_at TIMESTAMPTZ NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE TABLE IF NOT EXISTS admin_sessions(
		id INTEGER PRIMARY KEY GENERATED ALWAYS AS IDENTITY,
		admin_id INTEGER NOT NULL REFERENCES admins(id) ON DELETE CASCADE,
		token_hash VARCHAR(255) NOT NULL UNIQUE,
		expires_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE TABLE IF NOT EXISTS parents(
		id INTEGER PRIMARY KEY GENERATED ALWAYS AS IDENTITY,
		fullname VARCHAR(255) NOT NULL,
		phone VARCHAR(32) NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE TABLE IF NOT EXISTS children(
		id INTEGER PRIMARY KEY GENERATED ALWAYS AS IDENTITY,
		fullname VARCHAR(255) NOT NULL,
		birth_date DATE NOT NULL,
		language VARCHAR(16) NOT NULL,
		parent_id INTEGER NOT NULL REFERENCES parents(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE TABLE IF NOT EXISTS tests(
		id INTEGER PRIMARY KEY GENERATED ALWAYS AS IDENTITY,
		name VARCHAR(255) NOT NULL,
		age_from INTEGER NOT NULL,
		age_to INTEGER NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT tests_age_range_check CHECK (age_from < age_to)
	);`,
	// Legacy column name text_id is kept; the live DB predates the rename.
	`CREATE TABLE IF NOT EXISTS questions(
		id INTEGER PRIMARY KEY GENERATED ALWAYS AS IDENTITY,
		text_id INTEGER NOT NULL REFERENCES tests(id) ON DELETE CASCADE,
		text_ru VARCHAR(255) NOT NULL,
		text_kz VARCHAR(255) NOT NULL,
		text_en VARCHAR(255) NULL
	);`,
	`CREATE TABLE IF NOT EXISTS answers(
		id INTEGER PRIMARY KEY GENERATED ALWAYS AS IDENTITY,
		question_id INTEGER NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
		text_ru VARCHAR(255) NOT NULL,
		text_kz VARCHAR(255) NOT NULL,
		text_en VARCHAR(255) NULL,
		points INTEGER NOT NULL DEFAULT 0
	);`,
	`CREATE TABLE IF NOT EXISTS test_result_rules(
		id INTEGER PRIMARY KEY GENERATED ALWAYS AS IDENTITY,
		test_id INTEGER NOT NULL REFERENCES tests(id) ON DELETE CASCADE,
		min_score INTEGER NOT NULL,
		max_score INTEGER NOT NULL,
		label VARCHAR(100) NOT NULL,
		text_ru VARCHAR(1000) NOT NULL,
		text_kz VARCHAR(1000) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	// Legacy table name for test sessions.
	`CREATE TABLE IF NOT EXISTS sessions(
		id INTEGER PRIMARY KEY GENERATED ALWAYS AS IDENTITY,
		test_id INTEGER NOT NULL REFERENCES tests(id) ON DELETE CASCADE,
		parent_id INTEGER NOT NULL REFERENCES parents(id) ON DELETE CASCADE,
		children_id INTEGER NOT NULL REFERENCES children(id) ON DELETE CASCADE,
		chat_id VARCHAR(255) NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		completed_at TIMESTAMPTZ NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'incomplete',
		score INTEGER NOT NULL DEFAULT 0
	);`,
	`CREATE TABLE IF NOT EXISTS user_sessions(
		id INTEGER PRIMARY KEY GENERATED ALWAYS AS IDENTITY,
		parent_id INTEGER NOT NULL REFERENCES parents(id) ON DELETE CASCADE,
		children_id INTEGER NULL REFERENCES children(id) ON DELETE CASCADE,
		status VARCHAR(16) NOT NULL DEFAULT 'registered',
		step VARCHAR(64) NOT NULL,
		ui_language VARCHAR(16) NULL,
		started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_seen_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	// Legacy table name (historic typo) kept for the live DB.
	`CREATE TABLE IF NOT EXISTS sesson_answer(
		id INTEGER PRIMARY KEY GENERATED ALWAYS AS IDENTITY,
		session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		question_id INTEGER NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
		answer_id INTEGER NOT NULL REFERENCES answers(id) ON DELETE CASCADE,
		answer_text VARCHAR(255) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	// Legacy column name "leads" holds the status value.
	`CREATE TABLE IF NOT EXISTS leads(
		id INTEGER PRIMARY KEY GENERATED ALWAYS AS IDENTITY,
		parent_id INTEGER NOT NULL REFERENCES parents(id) ON DELETE CASCADE,
		children_id INTEGER NULL REFERENCES children(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		leads VARCHAR(8) NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS bot_runtime_state(
		id INTEGER PRIMARY KEY,
		status VARCHAR(32) NOT NULL,
		qr_data_url TEXT NULL,
		last_error TEXT NULL,
		heartbeat_at TIMESTAMPTZ NULL,
		control_action VARCHAR(32) NULL,
		control_token VARCHAR(128) NULL,
		control_requested_at TIMESTAMPTZ NULL,
		control_processed_at TIMESTAMPTZ NULL,
		control_result TEXT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_admin_sessions_token ON admin_sessions(token_hash);`,
	`CREATE INDEX IF NOT EXISTS idx_leads_parent ON leads(parent_id);`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);`,
	`CREATE INDEX IF NOT EXISTS idx_user_sessions_parent ON user_sessions(parent_id);`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS admins(
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		last_login_at TIMESTAMP NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS admin_sessions(
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		admin_id INTEGER NOT NULL REFERENCES admins(id) ON DELETE CASCADE,
		token_hash TEXT NOT NULL UNIQUE,
		expires_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS parents(
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		fullname TEXT NOT NULL,
		phone TEXT NOT NULL UNIQUE,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS children(
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		fullname TEXT NOT NULL,
		birth_date DATE NOT NULL,
		language TEXT NOT NULL,
		parent_id INTEGER NOT NULL REFERENCES parents(id) ON DELETE CASCADE,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS tests(
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		age_from INTEGER NOT NULL,
		age_to INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CHECK (age_from < age_to)
	);`,
	`CREATE TABLE IF NOT EXISTS questions(
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		text_id INTEGER NOT NULL REFERENCES tests(id) ON DELETE CASCADE,
		text_ru TEXT NOT NULL,
		text_kz TEXT NOT NULL,
		text_en TEXT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS answers(
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		question_id INTEGER NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
		text_ru TEXT NOT NULL,
		text_kz TEXT NOT NULL,
		text_en TEXT NULL,
		points INTEGER NOT NULL DEFAULT 0
	);`,
	`CREATE TABLE IF NOT EXISTS test_result_rules(
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		test_id INTEGER NOT NULL REFERENCES tests(id) ON DELETE CASCADE,
		min_score INTEGER NOT NULL,
		max_score INTEGER NOT NULL,
		label TEXT NOT NULL,
		text_ru TEXT NOT NULL,
		text_kz TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS sessions(
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		test_id INTEGER NOT NULL REFERENCES tests(id) ON DELETE CASCADE,
		parent_id INTEGER NOT NULL REFERENCES parents(id) ON DELETE CASCADE,
		children_id INTEGER NOT NULL REFERENCES children(id) ON DELETE CASCADE,
		chat_id TEXT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		completed_at TIMESTAMP NULL,
		status TEXT NOT NULL DEFAULT 'incomplete',
		score INTEGER NOT NULL DEFAULT 0
	);`,
	`CREATE TABLE IF NOT EXISTS user_sessions(
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		parent_id INTEGER NOT NULL REFERENCES parents(id) ON DELETE CASCADE,
		children_id INTEGER NULL REFERENCES children(id) ON DELETE CASCADE,
		status TEXT NOT NULL DEFAULT 'registered',
		step TEXT NOT NULL,
		ui_language TEXT NULL,
		started_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_seen_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS sesson_answer(
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		question_id INTEGER NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
		answer_id INTEGER NOT NULL REFERENCES answers(id) ON DELETE CASCADE,
		answer_text TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS leads(
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		parent_id INTEGER NOT NULL REFERENCES parents(id) ON DELETE CASCADE,
		children_id INTEGER NULL REFERENCES children(id) ON DELETE CASCADE,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		leads TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS bot_runtime_state(
		id INTEGER PRIMARY KEY,
		status TEXT NOT NULL,
		qr_data_url TEXT NULL,
		last_error TEXT NULL,
		heartbeat_at TIMESTAMP NULL,
		control_action TEXT NULL,
		control_token TEXT NULL,
		control_requested_at TIMESTAMP NULL,
		control_processed_at TIMESTAMP NULL,
		control_result TEXT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE INDEX IF NOT EXISTS idx_admin_sessions_token ON admin_sessions(token_hash);`,
	`CREATE INDEX IF NOT EXISTS idx_leads_parent ON leads(parent_id);`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);`,
	`CREATE INDEX IF NOT EXISTS idx_user_sessions_parent ON user_sessions(parent_id);`,
}
