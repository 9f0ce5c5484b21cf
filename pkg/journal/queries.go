package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// EventRecord is a persisted lifecycle event.
type EventRecord struct {
	ID         string
	Type       string
	Moniker    string
	Capability string
	Source     string
	Reason     string
	Error      string
	RecordedAt time.Time
}

// ComponentState is the journal's current view of one component.
type ComponentState struct {
	Moniker   string
	State     string
	Started   bool
	UpdatedAt time.Time
}

// RecentEvents returns the most recent events, newest first.
func (j *Journal) RecentEvents(ctx context.Context, limit, offset int) ([]EventRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, type, moniker, capability, source, reason, error, recorded_at
		FROM events
		ORDER BY recorded_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// EventsFor returns the events recorded for a component, oldest
// first.
func (j *Journal) EventsFor(ctx context.Context, moniker string, limit int) ([]EventRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, type, moniker, capability, source, reason, error, recorded_at
		FROM events
		WHERE moniker = ?
		ORDER BY recorded_at ASC, id ASC
		LIMIT ?
	`, moniker, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events for %s: %w", moniker, err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// States returns the state view for all recorded components, sorted
// by moniker.
func (j *Journal) States(ctx context.Context) ([]ComponentState, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT moniker, state, started, updated_at
		FROM component_states
		ORDER BY moniker ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list component states: %w", err)
	}
	defer rows.Close()

	states := []ComponentState{}
	for rows.Next() {
		var s ComponentState
		if err := rows.Scan(&s.Moniker, &s.State, &s.Started, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan component state: %w", err)
		}
		states = append(states, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating component states: %w", err)
	}
	return states, nil
}

// StateOf returns the state view for one component.
func (j *Journal) StateOf(ctx context.Context, moniker string) (*ComponentState, error) {
	var s ComponentState
	err := j.db.QueryRowContext(ctx, `
		SELECT moniker, state, started, updated_at
		FROM component_states
		WHERE moniker = ?
	`, moniker).Scan(&s.Moniker, &s.State, &s.Started, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("component not found: %s", moniker)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get component state: %w", err)
	}
	return &s, nil
}

// CountEvents returns the total number of recorded events.
func (j *Journal) CountEvents(ctx context.Context) (int, error) {
	var count int
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// PruneBefore deletes events recorded before the cutoff and returns
// how many were removed. The state view is left untouched.
func (j *Journal) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := j.db.ExecContext(ctx, `DELETE FROM events WHERE recorded_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	return result.RowsAffected()
}

// scanEvents reads event rows into records.
func scanEvents(rows *sql.Rows) ([]EventRecord, error) {
	events := []EventRecord{}
	for rows.Next() {
		var e EventRecord
		var capability, source, reason, errMsg sql.NullString
		if err := rows.Scan(&e.ID, &e.Type, &e.Moniker, &capability, &source, &reason, &errMsg, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Capability = capability.String
		e.Source = source.String
		e.Reason = reason.String
		e.Error = errMsg.String
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}
