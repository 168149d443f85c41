package scoreboard

import (
	"context"
	"sort"
	"strings"

	"mindbuzzer/internal/session"
)

type Standing struct {
	Rank   int    `json:"rank"`
	Name   string `json:"name"`
	Round1 int    `json:"round1"`
	Round2 int    `json:"round2"`
	Total  int    `json:"total"`
	Status string `json:"status"`
}

const (
	statusPending = "PENDING"
	statusLive    = "PLAYING"
)

// Leaderboard merges both round tables by team name. A round two status
// overrides round one; the live team is listed with its running score when
// neither table has it yet.
func (t *Tables) Leaderboard(ctx context.Context, live session.Session) ([]Standing, error) {
	r1, err := t.List(ctx, 1)
	if err != nil {
		return nil, err
	}
	r2, err := t.List(ctx, 2)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]*Standing)
	get := func(name string) *Standing {
		s, ok := byName[name]
		if !ok {
			s = &Standing{Name: name, Status: statusPending}
			byName[name] = s
		}
		return s
	}
	for _, tm := range r1 {
		s := get(tm.Name)
		s.Round1 = tm.Score
		s.Total += tm.Score
		if tm.Status != "" {
			s.Status = strings.ToUpper(string(tm.Status))
		}
	}
	for _, tm := range r2 {
		s := get(tm.Name)
		s.Round2 = tm.Score
		s.Total += tm.Score
		if tm.Status != "" {
			s.Status = strings.ToUpper(string(tm.Status))
		}
	}
	if live.TeamName != "" {
		if _, ok := byName[live.TeamName]; !ok {
			byName[live.TeamName] = &Standing{Name: live.TeamName, Total: live.Score, Status: statusLive}
		}
	}

	standings := make([]Standing, 0, len(byName))
	for _, s := range byName {
		standings = append(standings, *s)
	}
	sort.Slice(standings, func(i, j int) bool {
		if standings[i].Total != standings[j].Total {
			return standings[i].Total > standings[j].Total
		}
		return standings[i].Name < standings[j].Name
	})
	for i := range standings {
		standings[i].Rank = i + 1
	}
	return standings, nil
}
