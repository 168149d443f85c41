// Package rounds runs the timed rounds of one terminal: entry rules, the
// countdown, grading, qualification and the focus-loss check.
package rounds

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"mindbuzzer/internal/bans"
	"mindbuzzer/internal/events"
	"mindbuzzer/internal/grader"
	"mindbuzzer/internal/metrics"
	"mindbuzzer/internal/questions"
	"mindbuzzer/internal/scoreboard"
	"mindbuzzer/internal/session"
)

type Kind string

const (
	KindCoding = Kind("coding")
	KindReact  = Kind("react")
	KindJava   = Kind("java")
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindCoding, KindReact, KindJava:
		return k, nil
	}
	return "", fmt.Errorf("unknown round %q", s)
}

func (k Kind) round() session.Round {
	if k == KindCoding {
		return session.RoundCoding
	}
	return session.RoundReact
}

func (k Kind) table() int {
	if k == KindCoding {
		return 1
	}
	return 2
}

func (k Kind) phase() session.Phase {
	if k == KindCoding {
		return session.PhaseCoding
	}
	return session.PhaseReact
}

func (k Kind) mode() session.Mode {
	switch k {
	case KindReact:
		return session.ModeReact
	case KindJava:
		return session.ModeJava
	}
	return session.ModeNone
}

type Config struct {
	CodingSecs   int
	ReactSecs    int
	JavaSecs     int
	Ratio        float64
	BypassTeam   string
	TickInterval time.Duration
}

func (c Config) secs(k Kind) int {
	switch k {
	case KindCoding:
		return c.CodingSecs
	case KindReact:
		return c.ReactSecs
	}
	return c.JavaSecs
}

type activeRound struct {
	kind      Kind
	javaIndex int
	stop      chan struct{}
}

// Runner owns at most one active round per terminal and the single ticker
// goroutine that drives it.
type Runner struct {
	mu     sync.Mutex
	active *activeRound

	terminalID string
	ctrl       *session.Controller
	tables     *scoreboard.Tables
	bans       *bans.List
	bank       *questions.Bank
	bus        *events.Bus
	cfg        Config

	// OnTick, when set, receives the time left after every tick.
	OnTick func(left int)
}

func NewRunner(terminalID string, ctrl *session.Controller, tables *scoreboard.Tables, banList *bans.List, bank *questions.Bank, bus *events.Bus, cfg Config) *Runner {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	return &Runner{
		terminalID: terminalID,
		ctrl:       ctrl,
		tables:     tables,
		bans:       banList,
		bank:       bank,
		bus:        bus,
		cfg:        cfg,
	}
}

func (r *Runner) Session() *session.Controller {
	return r.ctrl
}

// Active reports the kind of the running round, if any.
func (r *Runner) Active() (Kind, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return "", false
	}
	return r.active.kind, true
}

func (r *Runner) questionCount(k Kind) int {
	switch k {
	case KindCoding:
		return len(r.bank.Coding)
	case KindReact:
		return len(r.bank.React)
	}
	return 1
}

func (r *Runner) startLocked(a *activeRound) {
	a.stop = make(chan struct{})
	r.active = a
	metrics.ActiveRounds.Inc()
	go r.run(a)
}

func (r *Runner) stopLocked() {
	if r.active == nil {
		return
	}
	close(r.active.stop)
	r.active = nil
	metrics.ActiveRounds.Dec()
}

func (r *Runner) run(a *activeRound) {
	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
			r.tick(a)
		}
	}
}

// tick ignores rounds that were stopped or replaced since the tick fired.
func (r *Runner) tick(a *activeRound) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != a {
		return
	}
	if r.ctrl.Snapshot().CompetitionStatus != session.StatusPlaying {
		r.closeLocked()
		return
	}
	left, expired := r.ctrl.TickTimer()
	if r.OnTick != nil {
		r.OnTick(left)
	}
	if expired {
		r.timeoutLocked(a)
	}
}

func (r *Runner) timeoutLocked(a *activeRound) {
	r.stopLocked()
	total := r.questionCount(a.kind)
	s, ok := r.ctrl.FinalizeRound(a.kind.round(), total, r.cfg.Ratio)
	if !ok {
		return
	}
	log.Printf("[Round] %s timed out for %s: %d/%d solved, %s\n", a.kind, r.teamName(s), s.SolvedCount(a.kind.round()), total, s.CompetitionStatus)
	r.recordLocked(a.kind, s, total)
}

func (r *Runner) teamName(s session.Session) string {
	if s.TeamName == "" {
		return "UNKNOWN"
	}
	return s.TeamName
}

// recordLocked writes the score table row and publishes the result.
func (r *Runner) recordLocked(k Kind, s session.Session, total int) {
	score := s.CodingScore
	if k != KindCoding {
		score = s.ReactScore
	}
	solved := s.SolvedCount(k.round())
	row := scoreboard.Team{
		Name:   r.teamName(s),
		Score:  score,
		Solved: &solved,
		Total:  &total,
		Status: s.CompetitionStatus,
	}
	if k != KindCoding {
		row.Mode = string(k)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.tables.Upsert(ctx, k.table(), row); err != nil {
		log.Printf("[Round] Saving %s score for %s: %v\n", k, row.Name, err)
	}

	metrics.RoundsFinalized.WithLabelValues(string(k), string(s.CompetitionStatus)).Inc()
	if r.bus != nil {
		r.bus.Publish(events.RoundFinished{
			TerminalID:  r.terminalID,
			TeamName:    row.Name,
			Round:       k.table(),
			Mode:        string(k),
			Score:       score,
			Solved:      solved,
			Total:       total,
			Status:      string(s.CompetitionStatus),
			CodingScore: s.CodingScore,
			ReactScore:  s.ReactScore,
		})
	}
}

func (r *Runner) checkEntry(s session.Session, k Kind) error {
	if s.TeamName == "" || s.Phase == session.PhaseLogin {
		return ErrNotLoggedIn
	}
	if s.CompetitionStatus != session.StatusPlaying {
		return ErrNotPlaying
	}
	if k == KindCoding {
		if s.CodingCompleted {
			return ErrRoundCompleted
		}
		return nil
	}
	if !s.ReactUnlocked {
		return ErrRoundLocked
	}
	if s.ReactCompleted {
		return ErrRoundCompleted
	}
	if s.Round2Mode == session.ModeNone {
		return ErrModeNotChosen
	}
	if s.Round2Mode != k.mode() {
		return ErrModeMismatch
	}
	return nil
}

// Enter opens a round page. Coding and React rounds start their countdown
// immediately; the Java round starts once a question is selected. Entering
// a round whose questions are all answered completes it.
func (r *Runner) Enter(k Kind) (session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.ctrl.Snapshot()
	if err := r.checkEntry(s, k); err != nil {
		return s, err
	}
	if r.active != nil {
		if r.active.kind == k {
			return s, nil
		}
		r.stopLocked()
		r.ctrl.LeaveRound()
	}

	r.ctrl.SetPhase(k.phase())
	if k == KindJava {
		return r.ctrl.Snapshot(), nil
	}

	if r.cursor(s, k) >= r.questionCount(k) {
		return r.completeLocked(k), nil
	}

	r.ctrl.SetRoundInProgress(true)
	r.ctrl.SetTimer(r.cfg.secs(k))
	r.startLocked(&activeRound{kind: k})
	log.Printf("[Round] %s started for %s\n", k, s.TeamName)
	return r.ctrl.Snapshot(), nil
}

func (r *Runner) cursor(s session.Session, k Kind) int {
	if k == KindCoding {
		return s.CodingQuestionIndex
	}
	return s.ReactQuestionIndex
}

func (r *Runner) completeLocked(k Kind) session.Session {
	r.stopLocked()
	s, ok := r.ctrl.CompleteRound(k.round())
	if ok {
		log.Printf("[Round] %s completed by %s\n", k, r.teamName(s))
		r.recordLocked(k, s, r.questionCount(k))
	}
	return s
}

// SelectJava picks the Java question and starts its countdown.
func (r *Runner) SelectJava(index int) (session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.ctrl.Snapshot()
	if err := r.checkEntry(s, KindJava); err != nil {
		return s, err
	}
	if r.active != nil {
		return s, ErrRoundActive
	}
	if index < 0 || index >= len(r.bank.Java) {
		return s, ErrUnknownQuestion
	}

	r.ctrl.SetPhase(session.PhaseReact)
	r.ctrl.SetRoundInProgress(true)
	r.ctrl.SetTimer(r.cfg.JavaSecs)
	r.startLocked(&activeRound{kind: KindJava, javaIndex: index})
	log.Printf("[Round] java %s selected by %s\n", r.bank.Java[index].ID, s.TeamName)
	return r.ctrl.Snapshot(), nil
}

type Submission struct {
	// Question is the index the client is answering; a mismatch with the
	// cursor means the answer was already counted.
	Question int    `json:"question"`
	Output   string `json:"output"`
	Code     string `json:"code"`
}

type Result struct {
	Passed  bool            `json:"passed"`
	Points  int             `json:"points"`
	Session session.Session `json:"session"`
}

func (r *Runner) Submit(k Kind, sub Submission) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active == nil || r.active.kind != k {
		return Result{Session: r.ctrl.Snapshot()}, ErrNotInRound
	}
	a := r.active
	s := r.ctrl.Snapshot()
	if s.CompetitionStatus != session.StatusPlaying {
		return Result{Session: s}, ErrNotPlaying
	}

	if k == KindJava {
		return r.submitJavaLocked(a, s, sub), nil
	}

	idx := r.cursor(s, k)
	if sub.Question != idx {
		return Result{Session: s}, ErrStaleQuestion
	}

	var passed bool
	var points int
	if k == KindCoding {
		passed = grader.Output(sub.Output, r.bank.Coding[idx].ExpectedOutput)
		points = grader.CodingScore(s.TimeLeft, r.cfg.CodingSecs)
	} else {
		passed = grader.React(sub.Code, r.bank.React[idx])
		points = grader.ReactScore(s.TimeLeft)
	}
	metrics.Submissions.WithLabelValues(string(k), resultLabel(passed)).Inc()
	if !passed {
		return Result{Session: s}, nil
	}

	r.ctrl.AddScore(points, k.round())
	if k == KindCoding {
		r.ctrl.IncrementCodingSolved()
		r.ctrl.NextCodingQuestion()
	} else {
		r.ctrl.IncrementReactSolved()
		r.ctrl.NextReactQuestion()
	}

	if idx+1 >= r.questionCount(k) {
		return Result{Passed: true, Points: points, Session: r.completeLocked(k)}, nil
	}
	r.ctrl.SetTimer(r.cfg.secs(k))
	return Result{Passed: true, Points: points, Session: r.ctrl.Snapshot()}, nil
}

// submitJavaLocked may be retried until the countdown runs out.
func (r *Runner) submitJavaLocked(a *activeRound, s session.Session, sub Submission) Result {
	q := r.bank.Java[a.javaIndex]
	passed := grader.Java(sub.Code, q)
	metrics.Submissions.WithLabelValues(string(KindJava), resultLabel(passed)).Inc()
	if !passed {
		return Result{Session: s}
	}

	points := grader.JavaScore(s.TimeLeft, r.cfg.JavaSecs)
	r.ctrl.AddScore(points, session.RoundReact)
	r.ctrl.IncrementReactSolved()
	return Result{Passed: true, Points: points, Session: r.completeLocked(KindJava)}
}

func resultLabel(passed bool) string {
	if passed {
		return "pass"
	}
	return "fail"
}

// Leave stops the countdown; the round stays incomplete.
func (r *Runner) Leave() session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
	r.ctrl.LeaveRound()
	r.ctrl.SetPhase(session.PhaseDashboard)
	return r.ctrl.Snapshot()
}

// SetStatus applies an operator status decision. Any status other than
// playing takes the team off the round page, so a running round stops
// without being finalized. Promotion also unlocks round two. It reports
// false when the session refuses the change.
func (r *Runner) SetStatus(st session.Status) (session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.ctrl.SetCompetitionStatus(st) {
		return r.ctrl.Snapshot(), false
	}
	if st != session.StatusPlaying {
		r.closeLocked()
	}
	if st == session.StatusPromoted {
		r.ctrl.UnlockReact()
	}
	return r.ctrl.Snapshot(), true
}

// closeLocked stops the round and sends the page back to the dashboard.
func (r *Runner) closeLocked() {
	if r.active == nil && !r.ctrl.Snapshot().RoundInProgress {
		return
	}
	r.stopLocked()
	r.ctrl.LeaveRound()
	r.ctrl.SetPhase(session.PhaseDashboard)
}

// ReportFocusLoss flags the session when the round page loses focus while
// a round is running. Only the first report counts.
func (r *Runner) ReportFocusLoss(event string) bool {
	if event != "blur" && event != "hidden" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.ctrl.Snapshot()
	if !s.RoundInProgress || s.CompetitionStatus != session.StatusPlaying || s.Cheated {
		return false
	}
	r.stopLocked()
	r.ctrl.SetCheated(true)
	r.ctrl.LeaveRound()
	metrics.CheatFlags.Inc()
	log.Printf("[AntiCheat] %s flagged on %s (%s)\n", r.teamName(s), r.terminalID, event)
	return true
}

// Reset stops any round and wipes the terminal.
func (r *Runner) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
	r.ctrl.ResetGame()
}

// Close stops the ticker without touching the session.
func (r *Runner) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
}
