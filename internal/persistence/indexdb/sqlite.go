// Package indexdb keeps a sqlite index of bridge traffic: how many envelopes
// of each type crossed in each direction per minute.
package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteIndex struct {
	db  *sql.DB
	now func() time.Time

	// mu guards closed and the send on ch against close(ch).
	mu     sync.RWMutex
	closed bool
	ch     chan trafficRow
	wg     sync.WaitGroup
	once   sync.Once

	dropped atomic.Uint64
	written atomic.Uint64
}

type trafficRow struct {
	Minute string
	Dir    string
	Type   string
	Bytes  int
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
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

	s := &SQLiteIndex{
		db:  db,
		now: time.Now,
		ch:  make(chan trafficRow, 8192),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
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
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS traffic (
			minute TEXT NOT NULL,
			dir TEXT NOT NULL,
			type TEXT NOT NULL,
			count INTEGER NOT NULL,
			bytes INTEGER NOT NULL,
			PRIMARY KEY (minute, dir, type)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_traffic_type_minute ON traffic(type, minute);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close drains queued rows and closes the database.
func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Record queues one envelope. Rows are dropped when the writer falls behind.
func (s *SQLiteIndex) Record(dir, msgType string, raw []byte) {
	if s == nil {
		return
	}
	if msgType == "" {
		msgType = "?"
	}
	r := trafficRow{
		Minute: s.now().UTC().Truncate(time.Minute).Format("2006-01-02T15:04Z"),
		Dir:    dir,
		Type:   msgType,
		Bytes:  len(raw),
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- r:
	default:
		s.dropped.Add(1)
	}
}

type Stats struct {
	QueueDepth    int    `json:"queueDepth"`
	QueueCapacity int    `json:"queueCapacity"`
	Written       uint64 `json:"written"`
	Dropped       uint64 `json:"dropped"`
}

func (s *SQLiteIndex) Stats() Stats {
	return Stats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		Written:       s.written.Load(),
		Dropped:       s.dropped.Load(),
	}
}

// Count is one aggregated row of the traffic table.
type Count struct {
	Minute string
	Dir    string
	Type   string
	Count  int
	Bytes  int
}

// Counts returns the rows recorded at or after since, oldest first.
func (s *SQLiteIndex) Counts(ctx context.Context, since time.Time) ([]Count, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT minute, dir, type, count, bytes FROM traffic WHERE minute >= ? ORDER BY minute, dir, type`,
		since.UTC().Truncate(time.Minute).Format("2006-01-02T15:04Z"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Count
	for rows.Next() {
		var c Count
		if err := rows.Scan(&c.Minute, &c.Dir, &c.Type, &c.Count, &c.Bytes); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	upsert, err := s.db.Prepare(`INSERT INTO traffic(minute,dir,type,count,bytes) VALUES(?,?,?,1,?)
		ON CONFLICT(minute,dir,type) DO UPDATE SET count = count + 1, bytes = bytes + excluded.bytes`)
	if err != nil {
		for range s.ch {
			s.dropped.Add(1)
		}
		return
	}
	defer upsert.Close()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second
	)
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		if tx == nil {
			txx, err := s.db.BeginTx(context.Background(), nil)
			if err != nil {
				s.dropped.Add(1)
				time.Sleep(50 * time.Millisecond)
				continue
			}
			tx = txx
		}
		if _, err := tx.Stmt(upsert).Exec(r.Minute, r.Dir, r.Type, r.Bytes); err != nil {
			s.dropped.Add(1)
			_ = tx.Rollback()
			tx = nil
			opCount = 0
			continue
		}
		opCount++
		s.written.Add(1)
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait || len(s.ch) == 0 {
			commit()
		}
	}
	commit()
}
