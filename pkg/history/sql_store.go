package history

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect selects placeholder style and DDL.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// SQLStore implements Store on PostgreSQL or SQLite.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// Open opens the database named by a DSN of the form "postgres://..." or
// "sqlite:<path>" and creates the schema.
func Open(ctx context.Context, dsn string) (*SQLStore, error) {
	var (
		driver, source string
		dialect        Dialect
	)
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		driver, source, dialect = "postgres", dsn, Postgres
	case strings.HasPrefix(dsn, "sqlite:"):
		driver, source, dialect = "sqlite", strings.TrimPrefix(dsn, "sqlite:"), SQLite
	default:
		return nil, fmt.Errorf("history: unsupported dsn %q", dsn)
	}
	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", dialect, err)
	}
	if dialect == SQLite {
		db.SetMaxOpenConns(1)
	}
	s := NewSQLStore(db, dialect)
	if err := s.Init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Init creates the history table when it does not exist.
func (s *SQLStore) Init(ctx context.Context) error {
	id := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.dialect == Postgres {
		id = "BIGSERIAL PRIMARY KEY"
	}
	query := `
	CREATE TABLE IF NOT EXISTS tx_history (
		id ` + id + `,
		chain TEXT NOT NULL,
		account TEXT NOT NULL,
		action TEXT NOT NULL,
		block BIGINT NOT NULL,
		date TEXT NOT NULL,
		fee TEXT NOT NULL,
		from_address TEXT NOT NULL,
		from_name TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		proxy_address TEXT,
		proxy_name TEXT,
		tx_hash TEXT NOT NULL,
		failure_text TEXT NOT NULL DEFAULT ''
	);`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("history: init schema: %w", err)
	}
	index := `CREATE INDEX IF NOT EXISTS tx_history_account ON tx_history (chain, account, id)`
	if _, err := s.db.ExecContext(ctx, index); err != nil {
		return fmt.Errorf("history: init index: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Append inserts records in one transaction.
func (s *SQLStore) Append(ctx context.Context, chain, account string, records ...Record) error {
	if err := checkKey(chain, account); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := s.rebind(`INSERT INTO tx_history (
		chain, account, action, block, date, fee, from_address, from_name, status, proxy_address, proxy_name, tx_hash, failure_text
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	for _, r := range records {
		var proxyAddr, proxyName sql.NullString
		if r.ThroughProxy != nil {
			proxyAddr = sql.NullString{String: r.ThroughProxy.Address, Valid: true}
			proxyName = sql.NullString{String: r.ThroughProxy.Name, Valid: true}
		}
		_, err := tx.ExecContext(ctx, query,
			chain, account, r.Action, int64(r.Block), r.Date.UTC().Format(time.RFC3339Nano), r.Fee,
			r.From.Address, r.From.Name, r.Status, proxyAddr, proxyName, r.TxHash, r.FailureText,
		)
		if err != nil {
			return fmt.Errorf("history: insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: commit: %w", err)
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context, chain, account string) ([]Record, error) {
	if err := checkKey(chain, account); err != nil {
		return nil, err
	}
	query := s.rebind(`
		SELECT action, block, date, fee, from_address, from_name, status, proxy_address, proxy_name, tx_hash, failure_text
		FROM tx_history
		WHERE chain = ? AND account = ?
		ORDER BY id ASC`)
	rows, err := s.db.QueryContext(ctx, query, chain, account)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var (
			r                    Record
			block                int64
			date                 string
			proxyAddr, proxyName sql.NullString
		)
		if err := rows.Scan(&r.Action, &block, &date, &r.Fee, &r.From.Address, &r.From.Name,
			&r.Status, &proxyAddr, &proxyName, &r.TxHash, &r.FailureText); err != nil {
			return nil, err
		}
		r.Block = uint64(block)
		r.Date = parseTime(date)
		r.Chain = chain
		if proxyAddr.Valid {
			r.ThroughProxy = &Party{Address: proxyAddr.String, Name: proxyName.String}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}
