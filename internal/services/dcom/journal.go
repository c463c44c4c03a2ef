package dcom

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MultiSerb/scadabraboooo/internal/model"
	"github.com/MultiSerb/scadabraboooo/internal/modbus"
)

// JournalEntry is one row of the local event journal.
type JournalEntry struct {
	Timestamp time.Time
	Kind      string // "alarm" | "command"
	Point     string
	Previous  string
	Current   string
	Detail    string
}

const createJournalSQL = `
CREATE TABLE IF NOT EXISTS journal (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp TEXT NOT NULL,
    kind TEXT NOT NULL,
    point TEXT NOT NULL,
    previous TEXT,
    current TEXT,
    detail TEXT
);`

const journalTimeLayout = "2006-01-02 15:04:05.000"

// Journal records alarm transitions and failed commands in sqlite. Entries
// are queued on a channel and written by Run.
type Journal struct {
	db      *sql.DB
	entries chan JournalEntry
	logger  *log.Logger
}

var (
	_ PointObserver   = (*Journal)(nil)
	_ FailureObserver = (*Journal)(nil)
)

// OpenJournal opens (or creates) the sqlite database at path.
func OpenJournal(path string, buffer int, logger *log.Logger) (*Journal, error) {
	if logger == nil {
		logger = log.Default()
	}
	if buffer < 1 {
		buffer = 256
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	// one connection: sqlite has a single writer and ":memory:" is per connection
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(createJournalSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal table: %w", err)
	}
	return &Journal{db: db, entries: make(chan JournalEntry, buffer), logger: logger}, nil
}

// PointChanged journals alarm transitions.
func (j *Journal) PointChanged(before, after model.Point) {
	if before.Alarm == after.Alarm {
		return
	}
	j.record(JournalEntry{
		Timestamp: after.Timestamp,
		Kind:      "alarm",
		Point:     after.ID.String(),
		Previous:  string(before.Alarm),
		Current:   string(after.Alarm),
		Detail:    fmt.Sprintf("raw=%d egu=%.3f", after.RawValue, after.EguValue),
	})
}

// CommandFailed journals a command the executor could not complete.
func (j *Journal) CommandFailed(p modbus.CommandParameters, err error) {
	target := ""
	switch p.Kind {
	case modbus.ReadKind:
		target = fmt.Sprintf("%d x%d", p.Read.StartAddress, p.Read.Quantity)
	case modbus.WriteKind:
		target = fmt.Sprintf("%d=%d", p.Write.OutputAddress, p.Write.Value)
	}
	j.record(JournalEntry{
		Timestamp: time.Now(),
		Kind:      "command",
		Point:     fmt.Sprintf("%v %s", p.FunctionCode, target),
		Current:   fmt.Sprintf("tx=%d", p.TransactionID),
		Detail:    err.Error(),
	})
}

func (j *Journal) record(e JournalEntry) {
	select {
	case j.entries <- e:
	default:
		j.logger.Printf("journal: queue full, dropping %s entry for %s", e.Kind, e.Point)
	}
}

// Run writes queued entries until ctx is done, then flushes what is left.
func (j *Journal) Run(ctx context.Context) {
	for {
		select {
		case e := <-j.entries:
			j.write(e)
		case <-ctx.Done():
			for len(j.entries) > 0 {
				j.write(<-j.entries)
			}
			return
		}
	}
}

func (j *Journal) write(e JournalEntry) {
	_, err := j.db.Exec(
		"INSERT INTO journal(timestamp, kind, point, previous, current, detail) VALUES(?, ?, ?, ?, ?, ?)",
		e.Timestamp.UTC().Format(journalTimeLayout), e.Kind, e.Point, e.Previous, e.Current, e.Detail)
	if err != nil {
		j.logger.Printf("journal: insert %s entry: %v", e.Kind, err)
	}
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx,
		"SELECT timestamp, kind, point, previous, current, detail FROM journal ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var (
			e                         JournalEntry
			ts                        string
			previous, current, detail sql.NullString
		)
		if err := rows.Scan(&ts, &e.Kind, &e.Point, &previous, &current, &detail); err != nil {
			return nil, err
		}
		t, err := time.Parse(journalTimeLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("journal timestamp %q: %w", ts, err)
		}
		e.Timestamp = t
		e.Previous, e.Current, e.Detail = previous.String, current.String, detail.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return errors.New("journal not open")
	}
	return j.db.Close()
}
