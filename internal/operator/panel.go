package operator

import (
	"context"
	"errors"
	"fmt"
	"log"

	"mindbuzzer/internal/bans"
	"mindbuzzer/internal/metrics"
	"mindbuzzer/internal/rounds"
	"mindbuzzer/internal/scoreboard"
	"mindbuzzer/internal/session"
)

var (
	ErrPromoteWhileActive = errors.New("cannot promote while competition access is enabled")
	ErrSessionFlagged     = errors.New("session is flagged for cheating")
)

// Panel applies operator actions to one terminal.
type Panel struct {
	runner *rounds.Runner
	ctrl   *session.Controller
	tables *scoreboard.Tables
	bans   *bans.List
}

func NewPanel(runner *rounds.Runner, tables *scoreboard.Tables, banList *bans.List) *Panel {
	return &Panel{runner: runner, ctrl: runner.Session(), tables: tables, bans: banList}
}

func record(action string) {
	metrics.OperatorActions.WithLabelValues(action).Inc()
}

func (p *Panel) SetAccess(enabled bool) session.Session {
	record("access")
	p.ctrl.SetCompetitionAccess(enabled)
	log.Printf("[Operator] Competition access on %s set to %v\n", p.ctrl.Namespace(), enabled)
	return p.ctrl.Snapshot()
}

// SetStatus sets the terminal's competition status. Any status other than
// playing stops a running round; promotion also unlocks round two.
func (p *Panel) SetStatus(st session.Status) (session.Session, error) {
	if !st.Valid() {
		return p.ctrl.Snapshot(), fmt.Errorf("invalid status %q", st)
	}
	if st == session.StatusPromoted && p.ctrl.Snapshot().CompetitionAccessEnabled {
		return p.ctrl.Snapshot(), ErrPromoteWhileActive
	}
	record("status_" + string(st))
	s, err := p.applyStatus(st)
	if err != nil {
		return s, err
	}
	log.Printf("[Operator] Status of %s set to %s\n", p.ctrl.Namespace(), st)
	return s, nil
}

func (p *Panel) applyStatus(st session.Status) (session.Session, error) {
	s, ok := p.runner.SetStatus(st)
	if !ok {
		return s, ErrSessionFlagged
	}
	return s, nil
}

func (p *Panel) Bans(ctx context.Context) ([]string, error) {
	return p.bans.Names(ctx)
}

func (p *Panel) Ban(ctx context.Context, name string) (bool, error) {
	record("ban")
	added, err := p.bans.Add(ctx, name)
	if err != nil {
		return false, err
	}
	if added {
		log.Printf("[Operator] Banned %s on %s\n", name, p.ctrl.Namespace())
	}
	return added, nil
}

func (p *Panel) Unban(ctx context.Context, name string) (bool, error) {
	record("unban")
	return p.bans.Remove(ctx, name)
}

func (p *Panel) FlushBans(ctx context.Context) error {
	record("flush_bans")
	return p.bans.Flush(ctx)
}

func (p *Panel) Teams(ctx context.Context, round int) ([]scoreboard.Team, error) {
	return p.tables.List(ctx, round)
}

func (p *Panel) AddTeam(ctx context.Context, round int, name string) (scoreboard.Team, error) {
	record("add_team")
	return p.tables.AddTeam(ctx, round, name)
}

func (p *Panel) RemoveTeam(ctx context.Context, round int, id int64) error {
	record("remove_team")
	return p.tables.RemoveTeam(ctx, round, id)
}

func (p *Panel) SetTeamScore(ctx context.Context, round int, id int64, score int) (scoreboard.Team, error) {
	record("set_score")
	return p.tables.SetScore(ctx, round, id, score)
}

// SetTeamStatus edits a table row. When the row belongs to the team logged
// in on this terminal, promotion and elimination carry over to its session.
func (p *Panel) SetTeamStatus(ctx context.Context, round int, id int64, st session.Status) (scoreboard.Team, error) {
	record("set_team_status")
	team, err := p.tables.SetStatus(ctx, round, id, st)
	if err != nil {
		return team, err
	}
	if team.Name != "" && team.Name == p.ctrl.Snapshot().TeamName {
		switch st {
		case session.StatusPromoted, session.StatusEliminated:
			if _, err := p.applyStatus(st); err != nil {
				log.Printf("[Operator] Row %d synced but session of %s kept: %v\n", id, team.Name, err)
			}
		}
	}
	return team, nil
}

func (p *Panel) ResetRound(ctx context.Context, round int) error {
	record("reset_round")
	return p.tables.ResetAll(ctx, round)
}

// Wipe resets the terminal to its first-launch state.
func (p *Panel) Wipe() session.Session {
	record("wipe")
	p.runner.Reset()
	log.Printf("[Operator] Wiped %s\n", p.ctrl.Namespace())
	return p.ctrl.Snapshot()
}
