package session

import (
	"context"
	"log"
	"sync"

	"mindbuzzer/internal/kv"
)

// Change is delivered to observers after every mutation. Reset marks the
// notification that follows ResetGame, on which clients reload.
type Change struct {
	Session Session
	Reset   bool
}

type Observer func(Change)

// Controller is the only writer of a Session. Observers run synchronously on
// the mutating goroutine, after the lock is released.
type Controller struct {
	mu            sync.Mutex
	s             Session
	ns            string
	store         kv.Store
	accessDefault bool

	obsMu     sync.Mutex
	observers map[int]Observer
	nextObsID int
}

func Open(ctx context.Context, store kv.Store, namespace string, accessDefault bool) *Controller {
	return &Controller{
		s:             load(ctx, store, namespace, accessDefault),
		ns:            namespace,
		store:         store,
		accessDefault: accessDefault,
		observers:     make(map[int]Observer),
	}
}

func (c *Controller) Namespace() string {
	return c.ns
}

func (c *Controller) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}

// OnChange registers fn and returns a function that removes it.
func (c *Controller) OnChange(fn Observer) func() {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	id := c.nextObsID
	c.nextObsID++
	c.observers[id] = fn
	return func() {
		c.obsMu.Lock()
		defer c.obsMu.Unlock()
		delete(c.observers, id)
	}
}

func (c *Controller) notify(ch Change) {
	c.obsMu.Lock()
	list := make([]Observer, 0, len(c.observers))
	for _, fn := range c.observers {
		list = append(list, fn)
	}
	c.obsMu.Unlock()
	for _, fn := range list {
		fn(ch)
	}
}

// update applies fn under the lock. fn reports whether it applied a change;
// the durable projection is written only when it actually differs.
func (c *Controller) update(fn func(s *Session) bool) (Session, bool) {
	c.mu.Lock()
	before := c.s
	if !fn(&c.s) {
		c.mu.Unlock()
		return before, false
	}
	after := c.s
	if project(before) != project(after) {
		c.persist(after)
	}
	c.mu.Unlock()

	c.notify(Change{Session: after})
	return after, true
}

func (c *Controller) SetTeamName(name string) {
	c.update(func(s *Session) bool {
		s.TeamName = name
		return true
	})
}

func (c *Controller) SetPhase(p Phase) {
	if !p.Valid() {
		log.Printf("[Session] Ignoring unknown phase %q\n", p)
		return
	}
	c.update(func(s *Session) bool {
		s.Phase = p
		return true
	})
}

// AddScore adds points to the total and to the round's score. Negative
// points are ignored.
func (c *Controller) AddScore(points int, r Round) {
	if points < 0 || !r.Valid() {
		log.Printf("[Session] Ignoring score %d for round %q\n", points, r)
		return
	}
	c.update(func(s *Session) bool {
		s.Score += points
		if r == RoundCoding {
			s.CodingScore += points
		} else {
			s.ReactScore += points
		}
		return true
	})
}

func (c *Controller) NextCodingQuestion() {
	c.update(func(s *Session) bool {
		s.CodingQuestionIndex++
		return true
	})
}

func (c *Controller) NextReactQuestion() {
	c.update(func(s *Session) bool {
		s.ReactQuestionIndex++
		return true
	})
}

// IncrementCodingSolved double counts when called twice for one question;
// callers guard with the question index.
func (c *Controller) IncrementCodingSolved() {
	c.update(func(s *Session) bool {
		s.CodingSolvedCount++
		return true
	})
}

func (c *Controller) IncrementReactSolved() {
	c.update(func(s *Session) bool {
		s.ReactSolvedCount++
		return true
	})
}

// MarkCodingComplete also unlocks round two.
func (c *Controller) MarkCodingComplete() {
	c.update(func(s *Session) bool {
		s.CodingCompleted = true
		s.RoundInProgress = false
		s.ReactUnlocked = true
		return true
	})
}

func (c *Controller) UnlockReact() {
	c.update(func(s *Session) bool {
		s.ReactUnlocked = true
		return true
	})
}

func (c *Controller) MarkReactComplete() {
	c.update(func(s *Session) bool {
		s.ReactCompleted = true
		s.RoundInProgress = false
		return true
	})
}

// MarkJavaComplete shares the round two completion flag with React.
func (c *Controller) MarkJavaComplete() {
	c.MarkReactComplete()
}

// SetRound2Mode records the round two variant. The first choice sticks.
func (c *Controller) SetRound2Mode(m Mode) bool {
	if m == ModeNone || !m.Valid() {
		return false
	}
	_, ok := c.update(func(s *Session) bool {
		if s.Round2Mode != ModeNone {
			return false
		}
		s.Round2Mode = m
		return true
	})
	return ok
}

// SetCheated latches the cheat flag together with the banned status.
// Passing false does nothing.
func (c *Controller) SetCheated(cheated bool) {
	if !cheated {
		return
	}
	c.update(func(s *Session) bool {
		s.Cheated = true
		s.CompetitionStatus = StatusBanned
		return true
	})
}

func (c *Controller) SetTimer(seconds int) {
	if seconds < 0 {
		seconds = 0
	}
	c.update(func(s *Session) bool {
		s.TimeLeft = seconds
		s.TimerActive = true
		return true
	})
}

// TickTimer counts one second down. expired is true only on the tick that
// took an active timer to zero.
func (c *Controller) TickTimer() (left int, expired bool) {
	s, _ := c.update(func(s *Session) bool {
		wasActive := s.TimerActive
		if s.TimeLeft > 0 {
			s.TimeLeft--
		}
		if s.TimeLeft == 0 {
			s.TimerActive = false
			expired = wasActive
		}
		return true
	})
	return s.TimeLeft, expired
}

func (c *Controller) StopTimer() {
	c.update(func(s *Session) bool {
		s.TimerActive = false
		return true
	})
}

func (c *Controller) SetRoundInProgress(inProgress bool) {
	c.update(func(s *Session) bool {
		s.RoundInProgress = inProgress
		return true
	})
}

// LeaveRound stops the timer and clears the in-progress flag in one step.
// The round stays incomplete.
func (c *Controller) LeaveRound() {
	c.update(func(s *Session) bool {
		s.RoundInProgress = false
		s.TimerActive = false
		return true
	})
}

// SetCompetitionStatus is unguarded, except that a session flagged for
// cheating stays banned until ResetGame.
func (c *Controller) SetCompetitionStatus(st Status) bool {
	if !st.Valid() {
		log.Printf("[Session] Ignoring unknown status %q\n", st)
		return false
	}
	_, ok := c.update(func(s *Session) bool {
		if s.Cheated && st != StatusBanned {
			return false
		}
		s.CompetitionStatus = st
		return true
	})
	if !ok {
		log.Printf("[Session] Status %s refused for %s: session flagged for cheating\n", st, c.ns)
	}
	return ok
}

// SetCompetitionAccess also writes the dedicated access key.
func (c *Controller) SetCompetitionAccess(enabled bool) {
	c.update(func(s *Session) bool {
		c.persistAccess(enabled)
		s.CompetitionAccessEnabled = enabled
		return true
	})
}

// ResetGame restores the defaults and wipes the whole terminal namespace,
// score tables and ban list included. Nothing is written back, so a reload
// sees an empty namespace.
func (c *Controller) ResetGame() {
	c.mu.Lock()
	c.s = Default(c.accessDefault)
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	if err := c.store.Clear(ctx, c.ns); err != nil {
		log.Printf("[Session] Wiping %s: %v\n", c.ns, err)
	}
	cancel()
	after := c.s
	c.mu.Unlock()

	log.Printf("[Session] Reset %s\n", c.ns)
	c.notify(Change{Session: after, Reset: true})
}

// FinalizeRound is the timed-out transition of a round. It checks and sets
// the round's completion latch under one lock, so it applies at most once;
// ok is false when the round was already complete. The status becomes
// waiting when the solved count meets the threshold, eliminated otherwise.
func (c *Controller) FinalizeRound(r Round, total int, ratio float64) (s Session, ok bool) {
	if !r.Valid() {
		return c.Snapshot(), false
	}
	return c.update(func(s *Session) bool {
		if s.Completed(r) {
			return false
		}
		qualified := s.SolvedCount(r) >= Threshold(total, ratio)
		completeLocked(s, r)
		if s.Cheated {
			return true
		}
		if qualified {
			s.CompetitionStatus = StatusWaiting
		} else {
			s.CompetitionStatus = StatusEliminated
		}
		return true
	})
}

// CompleteRound finalizes a round whose questions are all answered.
func (c *Controller) CompleteRound(r Round) (s Session, ok bool) {
	if !r.Valid() {
		return c.Snapshot(), false
	}
	return c.update(func(s *Session) bool {
		if s.Completed(r) {
			return false
		}
		completeLocked(s, r)
		if !s.Cheated {
			s.CompetitionStatus = StatusWaiting
		}
		return true
	})
}

func completeLocked(s *Session, r Round) {
	if r == RoundCoding {
		s.CodingCompleted = true
		s.ReactUnlocked = true
	} else {
		s.ReactCompleted = true
	}
	s.RoundInProgress = false
	s.TimerActive = false
}
