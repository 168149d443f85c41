// Package scoreboard owns the per-round score tables of a terminal and the
// merged leaderboard.
package scoreboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"mindbuzzer/internal/kv"
	"mindbuzzer/internal/session"
)

const (
	Round1Key = "round1_teams"
	Round2Key = "round2_teams"
)

var (
	ErrUnknownRound = errors.New("unknown round")
	ErrTeamNotFound = errors.New("team not found")
	ErrEmptyName    = errors.New("team name is empty")
)

type Team struct {
	ID     int64          `json:"id"`
	Name   string         `json:"name"`
	Score  int            `json:"score"`
	Solved *int           `json:"solved,omitempty"`
	Total  *int           `json:"total,omitempty"`
	Status session.Status `json:"status"`
	Mode   string         `json:"mode,omitempty"`
}

func key(round int) (string, error) {
	switch round {
	case 1:
		return Round1Key, nil
	case 2:
		return Round2Key, nil
	}
	return "", fmt.Errorf("%w: %d", ErrUnknownRound, round)
}

// MaxScore bounds operator score edits.
func MaxScore(round int) int {
	if round == 1 {
		return 600
	}
	return 500
}

// Tables serialises every read-modify-write of one terminal's tables.
type Tables struct {
	mu    sync.Mutex
	store kv.Store
	ns    string
	now   func() time.Time
}

func NewTables(store kv.Store, namespace string) *Tables {
	return &Tables{store: store, ns: namespace, now: time.Now}
}

func (t *Tables) read(ctx context.Context, k string) ([]Team, error) {
	raw, err := t.store.Get(ctx, t.ns, k)
	if errors.Is(err, kv.ErrNotFound) {
		return []Team{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", k, err)
	}
	var teams []Team
	if err := json.Unmarshal([]byte(raw), &teams); err != nil {
		log.Printf("[Scoreboard] Discarding corrupt %s for %s: %v\n", k, t.ns, err)
		return []Team{}, nil
	}
	if teams == nil {
		teams = []Team{}
	}
	return teams, nil
}

func (t *Tables) write(ctx context.Context, k string, teams []Team) error {
	b, err := json.Marshal(teams)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", k, err)
	}
	if err := t.store.Set(ctx, t.ns, k, string(b)); err != nil {
		return fmt.Errorf("writing %s: %w", k, err)
	}
	return nil
}

// modify runs fn on the round's table under the lock and writes the result.
func (t *Tables) modify(ctx context.Context, round int, fn func([]Team) ([]Team, error)) error {
	k, err := key(round)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	teams, err := t.read(ctx, k)
	if err != nil {
		return err
	}
	teams, err = fn(teams)
	if err != nil {
		return err
	}
	return t.write(ctx, k, teams)
}

func (t *Tables) List(ctx context.Context, round int) ([]Team, error) {
	k, err := key(round)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.read(ctx, k)
}

// Upsert replaces the row with the same name, or appends a new one.
func (t *Tables) Upsert(ctx context.Context, round int, row Team) error {
	if row.Name == "" {
		return ErrEmptyName
	}
	return t.modify(ctx, round, func(teams []Team) ([]Team, error) {
		if row.ID == 0 {
			row.ID = t.now().UnixMilli()
		}
		filtered := teams[:0]
		for _, tm := range teams {
			if tm.Name != row.Name {
				filtered = append(filtered, tm)
			}
		}
		return append(filtered, row), nil
	})
}

func (t *Tables) AddTeam(ctx context.Context, round int, name string) (Team, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return Team{}, ErrEmptyName
	}
	var added Team
	err := t.modify(ctx, round, func(teams []Team) ([]Team, error) {
		var maxID int64
		for _, tm := range teams {
			maxID = max(maxID, tm.ID)
		}
		added = Team{ID: maxID + 1, Name: name, Status: session.StatusPlaying}
		return append(teams, added), nil
	})
	return added, err
}

func (t *Tables) RemoveTeam(ctx context.Context, round int, id int64) error {
	return t.modify(ctx, round, func(teams []Team) ([]Team, error) {
		for i, tm := range teams {
			if tm.ID == id {
				return append(teams[:i], teams[i+1:]...), nil
			}
		}
		return nil, ErrTeamNotFound
	})
}

// SetScore clamps the score to [0, MaxScore(round)].
func (t *Tables) SetScore(ctx context.Context, round int, id int64, score int) (Team, error) {
	return t.update(ctx, round, id, func(tm *Team) {
		tm.Score = min(max(score, 0), MaxScore(round))
	})
}

// SetStatus returns the updated row so the caller can sync the session of a
// matching team.
func (t *Tables) SetStatus(ctx context.Context, round int, id int64, status session.Status) (Team, error) {
	if !status.Valid() {
		return Team{}, fmt.Errorf("invalid status %q", status)
	}
	return t.update(ctx, round, id, func(tm *Team) {
		tm.Status = status
	})
}

func (t *Tables) update(ctx context.Context, round int, id int64, fn func(*Team)) (Team, error) {
	var updated Team
	err := t.modify(ctx, round, func(teams []Team) ([]Team, error) {
		for i := range teams {
			if teams[i].ID == id {
				fn(&teams[i])
				updated = teams[i]
				return teams, nil
			}
		}
		return nil, ErrTeamNotFound
	})
	return updated, err
}

// ResetAll zeroes every score and puts every team back to playing.
func (t *Tables) ResetAll(ctx context.Context, round int) error {
	return t.modify(ctx, round, func(teams []Team) ([]Team, error) {
		for i := range teams {
			teams[i].Score = 0
			teams[i].Status = session.StatusPlaying
		}
		return teams, nil
	})
}
