package rounds

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"

	"mindbuzzer/internal/metrics"
	"mindbuzzer/internal/session"
)

var teamNamePattern = regexp.MustCompile(`^[A-Z0-9 _.'-]{1,32}$`)

// NormalizeTeamName trims and upper-cases a team name and checks its
// alphabet and length.
func NormalizeTeamName(name string) (string, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if !teamNamePattern.MatchString(name) {
		return "", ErrInvalidName
	}
	return name, nil
}

// Login registers the team on this terminal and opens the dashboard. The
// bypass team gets round two unlocked straight away.
func (r *Runner) Login(ctx context.Context, name string) (session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.ctrl.Snapshot()
	if !s.CompetitionAccessEnabled {
		metrics.Logins.WithLabelValues("closed").Inc()
		return s, ErrAccessDisabled
	}
	if s.Cheated {
		metrics.Logins.WithLabelValues("banned").Inc()
		return s, ErrBanned
	}
	name, err := NormalizeTeamName(name)
	if err != nil {
		metrics.Logins.WithLabelValues("invalid").Inc()
		return s, err
	}
	banned, err := r.bans.Contains(ctx, name)
	if err != nil {
		return s, fmt.Errorf("checking ban list: %w", err)
	}
	if banned {
		metrics.Logins.WithLabelValues("banned").Inc()
		log.Printf("[Login] Refused banned team %s on %s\n", name, r.terminalID)
		return s, ErrBanned
	}

	if r.cfg.BypassTeam != "" && name == r.cfg.BypassTeam {
		r.ctrl.UnlockReact()
	}
	r.ctrl.SetTeamName(name)
	r.ctrl.SetPhase(session.PhaseDashboard)
	metrics.Logins.WithLabelValues("ok").Inc()
	log.Printf("[Login] %s logged in on %s\n", name, r.terminalID)
	return r.ctrl.Snapshot(), nil
}

// Navigate moves between pages. Leaving a round page stops its countdown.
// Round pages follow the same gates as Enter, minus the mode check.
func (r *Runner) Navigate(p session.Phase) (session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.ctrl.Snapshot()
	if !p.Valid() || p == session.PhaseLogin {
		return s, ErrInvalidPhase
	}
	if s.TeamName == "" {
		return s, ErrNotLoggedIn
	}

	switch p {
	case session.PhaseCoding:
		if s.CompetitionStatus != session.StatusPlaying {
			return s, ErrNotPlaying
		}
		if s.CodingCompleted {
			return s, ErrRoundCompleted
		}
	case session.PhaseReact:
		if s.CompetitionStatus != session.StatusPlaying {
			return s, ErrNotPlaying
		}
		if !s.ReactUnlocked {
			return s, ErrRoundLocked
		}
		if s.ReactCompleted {
			return s, ErrRoundCompleted
		}
	}

	if r.active != nil && r.active.kind.phase() != p {
		r.stopLocked()
		r.ctrl.LeaveRound()
	}
	r.ctrl.SetPhase(p)
	return r.ctrl.Snapshot(), nil
}

// ChooseMode picks the round two variant. The first choice sticks, so
// repeating it succeeds and switching fails.
func (r *Runner) ChooseMode(m session.Mode) (session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.ctrl.Snapshot()
	if m == session.ModeNone || !m.Valid() {
		return s, fmt.Errorf("invalid mode %q", m)
	}
	if !s.ReactUnlocked {
		return s, ErrRoundLocked
	}
	if s.ReactCompleted {
		return s, ErrRoundCompleted
	}
	if !r.ctrl.SetRound2Mode(m) && r.ctrl.Snapshot().Round2Mode != m {
		return r.ctrl.Snapshot(), ErrModeMismatch
	}
	return r.ctrl.Snapshot(), nil
}

// ContinueFromStatus returns a promoted team to play.
func (r *Runner) ContinueFromStatus() (session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.ctrl.Snapshot()
	if s.CompetitionStatus != session.StatusPromoted {
		return s, ErrNotPromoted
	}
	r.ctrl.UnlockReact()
	r.ctrl.SetCompetitionStatus(session.StatusPlaying)
	r.ctrl.SetPhase(session.PhaseDashboard)
	return r.ctrl.Snapshot(), nil
}
