package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RoundResult is one finalized round, kept after the terminal itself is reset.
type RoundResult struct {
	ID         string    `json:"id"`
	TerminalID string    `json:"terminalId"`
	TeamName   string    `json:"teamName"`
	Round      int       `json:"round"`
	Mode       string    `json:"mode"`
	Score      int       `json:"score"`
	Solved     int       `json:"solved"`
	Total      int       `json:"total"`
	Status     string    `json:"status"`
	RecordedAt time.Time `json:"recordedAt"`
}

func (d *DB) RecordResult(ctx context.Context, r RoundResult) (string, error) {
	id := uuid.NewString()
	_, err := d.conn.ExecContext(ctx, d.rebind(`
		INSERT INTO round_results (id, terminal_id, team_name, round, mode, score, solved, total, status, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), id, r.TerminalID, r.TeamName, r.Round, r.Mode, r.Score, r.Solved, r.Total, r.Status, time.Now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("recording round result: %w", err)
	}
	return id, nil
}

func (d *DB) ResultsForTeam(ctx context.Context, teamName string) ([]RoundResult, error) {
	rows, err := d.conn.QueryContext(ctx, d.rebind(`
		SELECT id, terminal_id, team_name, round, mode, score, solved, total, status, recorded_at
		FROM round_results WHERE team_name = ? ORDER BY recorded_at, round
	`), teamName)
	if err != nil {
		return nil, fmt.Errorf("getting round results: %w", err)
	}
	defer rows.Close()

	var results []RoundResult
	for rows.Next() {
		var r RoundResult
		var recordedAt int64
		if err := rows.Scan(&r.ID, &r.TerminalID, &r.TeamName, &r.Round, &r.Mode, &r.Score, &r.Solved, &r.Total, &r.Status, &recordedAt); err != nil {
			return nil, err
		}
		r.RecordedAt = time.UnixMilli(recordedAt).UTC()
		results = append(results, r)
	}
	return results, rows.Err()
}
