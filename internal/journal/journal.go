// Package journal persists device events (state changes, status lines,
// read-back mismatches, catalog refreshes) to an embedded database so the
// history survives restarts.
package journal

import (
	"fmt"
	"time"

	"github.com/asdine/storm/v3"
)

// Entry is one recorded device event.
type Entry struct {
	ID      int       `storm:"id,increment" json:"id"`
	Time    time.Time `storm:"index" json:"time"`
	Kind    string    `json:"kind"`
	Key     string    `json:"key,omitempty"`
	Channel string    `json:"channel,omitempty"`
	Value   string    `json:"value,omitempty"`
	Message string    `json:"message,omitempty"`
}

// Journal writes device events to a bolt file via storm.
type Journal struct {
	db *storm.DB
}

// Open opens or creates the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := storm.Open(path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	if err := db.Init(&Entry{}); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: init: %w", err)
	}
	return &Journal{db: db}, nil
}

// Append records one entry. The ID is assigned by the store.
func (j *Journal) Append(e Entry) error {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if err := j.db.Save(&e); err != nil {
		return fmt.Errorf("journal: save: %w", err)
	}
	return nil
}

// Recent returns up to n entries, newest first.
func (j *Journal) Recent(n int) ([]Entry, error) {
	var out []Entry
	err := j.db.AllByIndex("Time", &out, storm.Limit(n), storm.Reverse())
	if err != nil && err != storm.ErrNotFound {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	if out == nil {
		out = []Entry{}
	}
	return out, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
