// Package session holds one terminal's game state and the controller that
// is allowed to change it.
package session

import (
	"encoding/json"
	"fmt"
	"math"
)

type Phase string

const (
	PhaseLogin       = Phase("login")
	PhaseDashboard   = Phase("dashboard")
	PhaseCoding      = Phase("coding")
	PhaseReact       = Phase("react")
	PhaseResults     = Phase("results")
	PhaseLeaderboard = Phase("leaderboard")
)

func (p Phase) Valid() bool {
	switch p {
	case PhaseLogin, PhaseDashboard, PhaseCoding, PhaseReact, PhaseResults, PhaseLeaderboard:
		return true
	}
	return false
}

func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown phase %q", s)
	}
	return p, nil
}

type Status string

const (
	StatusPlaying    = Status("playing")
	StatusWaiting    = Status("waiting")
	StatusPromoted   = Status("promoted")
	StatusEliminated = Status("eliminated")
	StatusBanned     = Status("banned")
)

func (s Status) Valid() bool {
	switch s {
	case StatusPlaying, StatusWaiting, StatusPromoted, StatusEliminated, StatusBanned:
		return true
	}
	return false
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

// Round selects which score and completion flag an operation touches. The
// Java variant of round two counts as RoundReact.
type Round string

const (
	RoundCoding = Round("coding")
	RoundReact  = Round("react")
)

func (r Round) Valid() bool {
	return r == RoundCoding || r == RoundReact
}

// Mode is the round two variant. The zero value means not chosen yet and
// encodes as JSON null.
type Mode string

const (
	ModeNone  = Mode("")
	ModeJava  = Mode("java")
	ModeReact = Mode("react")
)

func (m Mode) Valid() bool {
	return m == ModeNone || m == ModeJava || m == ModeReact
}

func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if m == ModeNone || !m.Valid() {
		return "", fmt.Errorf("unknown round 2 mode %q", s)
	}
	return m, nil
}

func (m Mode) MarshalJSON() ([]byte, error) {
	if m == ModeNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(m))
}

func (m *Mode) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*m = ModeNone
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*m = Mode(s)
	return nil
}

type Session struct {
	TeamName                 string `json:"teamName"`
	Score                    int    `json:"score"`
	CodingScore              int    `json:"codingScore"`
	ReactScore               int    `json:"reactScore"`
	Phase                    Phase  `json:"phase"`
	CompetitionStatus        Status `json:"competitionStatus"`
	CodingQuestionIndex      int    `json:"codingQuestionIndex"`
	ReactQuestionIndex       int    `json:"reactQuestionIndex"`
	CodingSolvedCount        int    `json:"codingSolvedCount"`
	ReactSolvedCount         int    `json:"reactSolvedCount"`
	CodingCompleted          bool   `json:"codingCompleted"`
	ReactCompleted           bool   `json:"reactCompleted"`
	ReactUnlocked            bool   `json:"reactUnlocked"`
	Round2Mode               Mode   `json:"round2Mode"`
	TimeLeft                 int    `json:"timeLeft"`
	TimerActive              bool   `json:"timerActive"`
	RoundInProgress          bool   `json:"roundInProgress"`
	CompetitionAccessEnabled bool   `json:"competitionAccessEnabled"`
	Cheated                  bool   `json:"cheated"`
}

func Default(accessEnabled bool) Session {
	return Session{
		Phase:                    PhaseLogin,
		CompetitionStatus:        StatusPlaying,
		CompetitionAccessEnabled: accessEnabled,
	}
}

// SolvedCount and Completed read the counters of a round.
func (s Session) SolvedCount(r Round) int {
	if r == RoundCoding {
		return s.CodingSolvedCount
	}
	return s.ReactSolvedCount
}

func (s Session) Completed(r Round) bool {
	if r == RoundCoding {
		return s.CodingCompleted
	}
	return s.ReactCompleted
}

// Threshold is the number of solved questions needed to qualify.
func Threshold(total int, ratio float64) int {
	if total <= 0 {
		return 0
	}
	return int(math.Ceil(float64(total)*ratio - 1e-9))
}
