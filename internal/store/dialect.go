package store

import (
	"fmt"
	"strings"
)

// Dialect abstracts the SQL differences between SQLite and PostgreSQL.
type Dialect interface {
	// DriverName returns the database/sql driver name.
	// SQLite: "sqlite", PostgreSQL: "postgres"
	DriverName() string

	// Placeholder returns the parameter placeholder for a 1-indexed position.
	// SQLite: "?", PostgreSQL: "$1", "$2", ...
	Placeholder(position int) string

	// InitStatements run once after the connection is opened.
	InitStatements() []string
}

// DialectType identifies a dialect
type DialectType string

const (
	DialectSQLite   DialectType = "sqlite"
	DialectPostgres DialectType = "postgres"
)

// NewDialect returns the dialect for t, defaulting to SQLite
func NewDialect(t DialectType) Dialect {
	if t == DialectPostgres {
		return &PostgresDialect{}
	}
	return &SQLiteDialect{}
}

// SQLiteDialect implements Dialect for modernc.org/sqlite.
type SQLiteDialect struct{}

func (d *SQLiteDialect) DriverName() string { return "sqlite" }

func (d *SQLiteDialect) Placeholder(int) string { return "?" }

// InitStatements enables WAL and a busy timeout so the saver's workers wait
// for each other instead of failing with SQLITE_BUSY.
func (d *SQLiteDialect) InitStatements() []string {
	return []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
}

// PostgresDialect implements Dialect for lib/pq.
type PostgresDialect struct{}

func (d *PostgresDialect) DriverName() string { return "postgres" }

func (d *PostgresDialect) Placeholder(position int) string {
	return fmt.Sprintf("$%d", position)
}

func (d *PostgresDialect) InitStatements() []string { return nil }

// QueryBuilder rewrites ? placeholders for the target dialect.
type QueryBuilder struct {
	dialect Dialect
}

func NewQueryBuilder(d Dialect) *QueryBuilder {
	return &QueryBuilder{dialect: d}
}

// Build converts ? placeholders, leaving SQLite queries unchanged.
//
//	input:    "SELECT step FROM quest_records WHERE player_id = ? AND quest_type = ?"
//	Postgres: "SELECT step FROM quest_records WHERE player_id = $1 AND quest_type = $2"
func (qb *QueryBuilder) Build(query string) string {
	if _, ok := qb.dialect.(*SQLiteDialect); ok {
		return query
	}

	var b strings.Builder
	position := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteString(qb.dialect.Placeholder(position))
			position++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
