// Package recorder persists accepted opportunities to a local SQLite
// database for offline analysis.
package recorder

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/tradewatch/cyclarb/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS opportunities (
	id          TEXT PRIMARY KEY,
	path        TEXT NOT NULL,
	hops        INTEGER NOT NULL,
	profit_pct  REAL NOT NULL,
	max_volume  REAL NOT NULL,
	confidence  INTEGER NOT NULL,
	detected_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_opportunities_detected_at
	ON opportunities (detected_at);
`

// flushBatch bounds how many rows are written per transaction.
const flushBatch = 128

// Recorder writes opportunities to SQLite. The engine callback only enqueues
// into a buffered channel; inserts run on the recorder's own goroutine so the
// detection thread never blocks on disk.
type Recorder struct {
	db      *sql.DB
	queue   chan types.Opportunity
	done    chan struct{}
	stopped chan struct{}
	idle    time.Duration
}

// Open creates (or opens) the database at path and starts the writer.
func Open(path string) (*Recorder, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("recorder: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("recorder: create schema: %w", err)
	}

	r := &Recorder{
		db:      db,
		queue:   make(chan types.Opportunity, 4096),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		idle:    250 * time.Millisecond,
	}
	go r.run()
	return r, nil
}

// Callback returns an engine opportunity callback that enqueues for
// persistence, dropping when the queue is full.
func (r *Recorder) Callback() func(*types.Opportunity) {
	return func(opp *types.Opportunity) {
		select {
		case r.queue <- *opp:
		default:
			log.Warn().Str("id", opp.ID).Msg("recorder queue full, opportunity dropped")
		}
	}
}

// run batches queued opportunities into transactions until Close is called,
// then flushes the remainder.
func (r *Recorder) run() {
	defer close(r.stopped)

	batch := make([]types.Opportunity, 0, flushBatch)
	timer := time.NewTimer(r.idle)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := r.insert(batch); err != nil {
			log.Error().Err(err).Int("rows", len(batch)).Msg("recorder insert failed")
		}
		batch = batch[:0]
	}

	for {
		select {
		case opp := <-r.queue:
			batch = append(batch, opp)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-timer.C:
			flush()
			timer.Reset(r.idle)
		case <-r.done:
			for {
				select {
				case opp := <-r.queue:
					batch = append(batch, opp)
				default:
					flush()
					return
				}
			}
		}
	}
}

// insert writes one batch inside a transaction.
func (r *Recorder) insert(batch []types.Opportunity) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO opportunities
		(id, path, hops, profit_pct, max_volume, confidence, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range batch {
		opp := &batch[i]
		if _, err := stmt.Exec(opp.ID, opp.PathString(), len(opp.Path),
			opp.ProfitPct, opp.MaxVolume, opp.Confidence, opp.DetectedAt); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Count returns the number of persisted opportunities.
func (r *Recorder) Count() (int64, error) {
	var n int64
	err := r.db.QueryRow(`SELECT COUNT(*) FROM opportunities`).Scan(&n)
	return n, err
}

// Close flushes pending rows and closes the database.
func (r *Recorder) Close() error {
	close(r.done)
	<-r.stopped
	return r.db.Close()
}
