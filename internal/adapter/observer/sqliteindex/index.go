// Package sqliteindex keeps a queryable secondary index of committed steps
// and the messages they wrote. Writes are asynchronous and dropped when the
// writer falls behind; the step log stays the source of truth.
package sqliteindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	_ "modernc.org/sqlite"

	"aitown/internal/app/ports"
)

type Index struct {
	db *sql.DB

	ch   chan ports.StepSummary
	wg   sync.WaitGroup
	once sync.Once

	// mu orders sends against close(ch).
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

func Open(path string) (*Index, error) {
	if path == "" {
		return nil, errors.New("sqliteindex: empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	ix := &Index{db: db, ch: make(chan ports.StepSummary, 4096)}
	ix.wg.Add(1)
	go func() {
		defer ix.wg.Done()
		ix.loop()
	}()
	return ix, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS steps (
			world_id TEXT NOT NULL,
			generation INTEGER NOT NULL,
			start_ts INTEGER NOT NULL,
			end_ts INTEGER NOT NULL,
			ticks INTEGER NOT NULL,
			inputs INTEGER NOT NULL,
			input_errors INTEGER NOT NULL,
			agent_decisions INTEGER NOT NULL,
			messages INTEGER NOT NULL,
			budget_exhausted INTEGER NOT NULL,
			duration_us INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (world_id, generation)
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			world_id TEXT NOT NULL,
			id TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			author TEXT NOT NULL,
			text TEXT NOT NULL,
			ts INTEGER NOT NULL,
			generation INTEGER NOT NULL,
			PRIMARY KEY (world_id, id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_author_ts ON messages(world_id, author, ts);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (ix *Index) StepCommitted(_ context.Context, s ports.StepSummary) {
	if ix == nil {
		return
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.closed {
		return
	}
	select {
	case ix.ch <- s:
	default:
		ix.dropped.Add(1)
	}
}

// Dropped counts summaries discarded because the queue was full.
func (ix *Index) Dropped() uint64 {
	return ix.dropped.Load()
}

// Close drains the queue and closes the database.
func (ix *Index) Close() error {
	var err error
	ix.once.Do(func() {
		ix.mu.Lock()
		ix.closed = true
		close(ix.ch)
		ix.mu.Unlock()
		ix.wg.Wait()
		err = ix.db.Close()
	})
	return err
}

func (ix *Index) loop() {
	ctx := context.Background()
	for s := range ix.ch {
		if err := ix.write(ctx, s); err != nil {
			hlog.CtxWarnf(ctx, "sqliteindex: world %s generation %d: %v", s.WorldID, s.Generation, err)
		}
	}
}

func (ix *Index) write(ctx context.Context, s ports.StepSummary) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO steps(world_id,generation,start_ts,end_ts,ticks,inputs,input_errors,agent_decisions,messages,budget_exhausted,duration_us,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		s.WorldID, s.Generation, s.StartTs, s.EndTs, s.Ticks, s.Inputs, s.InputErrors, s.AgentDecisions, len(s.Messages), s.BudgetExhausted, s.Duration.Microseconds(), string(raw))
	if err != nil {
		return fmt.Errorf("insert step: %w", err)
	}
	if len(s.Messages) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO messages(world_id,id,conversation_id,author,text,ts,generation) VALUES(?,?,?,?,?,?,?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, m := range s.Messages {
			if _, err := stmt.ExecContext(ctx, s.WorldID, m.ID, m.ConversationID, m.Author, m.Text, m.Timestamp, s.Generation); err != nil {
				return fmt.Errorf("insert message %s: %w", m.ID, err)
			}
		}
	}
	return tx.Commit()
}

// RecentSteps returns up to limit steps of a world, newest first.
func (ix *Index) RecentSteps(ctx context.Context, worldID string, limit int) ([]ports.StepRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := ix.db.QueryContext(ctx,
		`SELECT world_id,generation,start_ts,end_ts,ticks,inputs,input_errors,agent_decisions,messages,budget_exhausted,duration_us
		 FROM steps WHERE world_id = ? ORDER BY generation DESC LIMIT ?`, worldID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ports.StepRow{}
	for rows.Next() {
		var r ports.StepRow
		if err := rows.Scan(&r.WorldID, &r.Generation, &r.StartTs, &r.EndTs, &r.Ticks, &r.Inputs, &r.InputErrors, &r.AgentDecisions, &r.Messages, &r.BudgetExhausted, &r.DurationMicros); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MessagesByAuthor returns an author's indexed messages, oldest first.
func (ix *Index) MessagesByAuthor(ctx context.Context, worldID, playerID string) ([]string, error) {
	rows, err := ix.db.QueryContext(ctx,
		`SELECT text FROM messages WHERE world_id = ? AND author = ? ORDER BY ts, id`, worldID, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, err
		}
		out = append(out, text)
	}
	return out, rows.Err()
}
