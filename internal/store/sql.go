package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/config"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/quest"
)

// SQLStore keeps quest records in a single table on SQLite or PostgreSQL.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	qb      *QueryBuilder
}

// OpenSQLite opens or creates the SQLite database at path.
func OpenSQLite(path string) (*SQLStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	return openSQL(NewDialect(DialectSQLite), path, nil)
}

// OpenPostgres connects to PostgreSQL using lib/pq.
func OpenPostgres(cfg config.PostgresConfig) (*SQLStore, error) {
	return openSQL(NewDialect(DialectPostgres), cfg.DSN(), func(db *sql.DB) {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if lt := cfg.ConnMaxLifetime(); lt > 0 {
			db.SetConnMaxLifetime(lt)
		}
	})
}

func openSQL(d Dialect, dsn string, tune func(*sql.DB)) (*SQLStore, error) {
	db, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if tune != nil {
		tune(db)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	for _, stmt := range d.InitStatements() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init statement %q failed: %w", stmt, err)
		}
	}

	s := &SQLStore{db: db, dialect: d, qb: NewQueryBuilder(d)}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *SQLStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS quest_records (
			player_id TEXT NOT NULL,
			quest_type TEXT NOT NULL,
			instance_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			status TEXT NOT NULL,
			goals TEXT NOT NULL DEFAULT '[]',
			granted_items TEXT NOT NULL DEFAULT '[]',
			awaiting_reward INTEGER NOT NULL DEFAULT 0,
			completed_count INTEGER NOT NULL DEFAULT 0,
			revision BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			PRIMARY KEY (player_id, quest_type)
		)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// DB returns the underlying handle
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

const selectColumns = `player_id, quest_type, instance_id, step, status, goals, granted_items,
	awaiting_reward, completed_count, revision, updated_at`

func (s *SQLStore) Load(ctx context.Context, playerID, questType string) (quest.Record, bool, error) {
	row := s.db.QueryRowContext(ctx, s.qb.Build(
		`SELECT `+selectColumns+` FROM quest_records WHERE player_id = ? AND quest_type = ?`),
		playerID, questType)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return quest.Record{}, false, nil
	}
	if err != nil {
		return quest.Record{}, false, fmt.Errorf("load %s/%s: %w", playerID, questType, err)
	}
	return rec, true, nil
}

func (s *SQLStore) LoadAll(ctx context.Context, playerID string) ([]quest.Record, error) {
	rows, err := s.db.QueryContext(ctx, s.qb.Build(
		`SELECT `+selectColumns+` FROM quest_records WHERE player_id = ? ORDER BY quest_type`),
		playerID)
	if err != nil {
		return nil, fmt.Errorf("load records of %s: %w", playerID, err)
	}
	defer rows.Close()

	var out []quest.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record of %s: %w", playerID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Players returns every player id with at least one record, sorted.
func (s *SQLStore) Players(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT player_id FROM quest_records ORDER BY player_id`)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Save upserts rec. The conflict clause only overwrites an older revision,
// so a stale write affects no rows and reports ErrStaleRevision.
func (s *SQLStore) Save(ctx context.Context, rec quest.Record) error {
	goals, err := json.Marshal(rec.Goals)
	if err != nil {
		return fmt.Errorf("encode goals: %w", err)
	}
	items := rec.GrantedItems
	if items == nil {
		items = []string{}
	}
	granted, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode granted items: %w", err)
	}
	awaiting := 0
	if rec.AwaitingReward {
		awaiting = 1
	}
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	res, err := s.db.ExecContext(ctx, s.qb.Build(`
		INSERT INTO quest_records (player_id, quest_type, instance_id, step, status, goals,
			granted_items, awaiting_reward, completed_count, revision, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (player_id, quest_type) DO UPDATE SET
			instance_id = excluded.instance_id,
			step = excluded.step,
			status = excluded.status,
			goals = excluded.goals,
			granted_items = excluded.granted_items,
			awaiting_reward = excluded.awaiting_reward,
			completed_count = excluded.completed_count,
			revision = excluded.revision,
			updated_at = excluded.updated_at
		WHERE excluded.revision > quest_records.revision`),
		rec.PlayerID, rec.QuestType, rec.InstanceID.String(), rec.Step, string(rec.Status),
		string(goals), string(granted), awaiting, rec.CompletedCount,
		int64(rec.Revision), updated.UnixNano())
	if err != nil {
		return fmt.Errorf("save %s/%s: %w", rec.PlayerID, rec.QuestType, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save %s/%s: %w", rec.PlayerID, rec.QuestType, err)
	}
	if n == 0 {
		return ErrStaleRevision
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, playerID, questType string) error {
	_, err := s.db.ExecContext(ctx, s.qb.Build(
		`DELETE FROM quest_records WHERE player_id = ? AND quest_type = ?`),
		playerID, questType)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", playerID, questType, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (quest.Record, error) {
	var (
		rec                    quest.Record
		instanceID, status     string
		goals, granted         string
		awaiting               int
		revision, updatedNanos int64
	)
	err := row.Scan(&rec.PlayerID, &rec.QuestType, &instanceID, &rec.Step, &status,
		&goals, &granted, &awaiting, &rec.CompletedCount, &revision, &updatedNanos)
	if err != nil {
		return quest.Record{}, err
	}

	if id, err := uuid.Parse(instanceID); err == nil {
		rec.InstanceID = id
	}
	rec.Status = quest.Status(status)
	if err := json.Unmarshal([]byte(goals), &rec.Goals); err != nil {
		return quest.Record{}, fmt.Errorf("decode goals: %w", err)
	}
	if err := json.Unmarshal([]byte(granted), &rec.GrantedItems); err != nil {
		return quest.Record{}, fmt.Errorf("decode granted items: %w", err)
	}
	if len(rec.GrantedItems) == 0 {
		rec.GrantedItems = nil
	}
	rec.AwaitingReward = awaiting != 0
	rec.Revision = uint64(revision)
	rec.UpdatedAt = time.Unix(0, updatedNanos)
	return rec, nil
}
