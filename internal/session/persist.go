package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"mindbuzzer/internal/kv"
)

const (
	StorageKey = "mind-buzzer-storage"
	AccessKey  = "COMPETITION_ACCESS"

	accessEnabled  = "ENABLED"
	accessDisabled = "DISABLED"
)

var ErrCorruptSnapshot = errors.New("corrupt session snapshot")

const persistTimeout = 2 * time.Second

// snapshot is the durable projection: the timer and the in-progress flag
// never survive a reload.
type snapshot struct {
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
	CompetitionAccessEnabled bool   `json:"competitionAccessEnabled"`
	Cheated                  bool   `json:"cheated"`
}

func project(s Session) snapshot {
	return snapshot{
		TeamName:                 s.TeamName,
		Score:                    s.Score,
		CodingScore:              s.CodingScore,
		ReactScore:               s.ReactScore,
		Phase:                    s.Phase,
		CompetitionStatus:        s.CompetitionStatus,
		CodingQuestionIndex:      s.CodingQuestionIndex,
		ReactQuestionIndex:       s.ReactQuestionIndex,
		CodingSolvedCount:        s.CodingSolvedCount,
		ReactSolvedCount:         s.ReactSolvedCount,
		CodingCompleted:          s.CodingCompleted,
		ReactCompleted:           s.ReactCompleted,
		ReactUnlocked:            s.ReactUnlocked,
		Round2Mode:               s.Round2Mode,
		CompetitionAccessEnabled: s.CompetitionAccessEnabled,
		Cheated:                  s.Cheated,
	}
}

func (p snapshot) session() Session {
	return Session{
		TeamName:                 p.TeamName,
		Score:                    p.Score,
		CodingScore:              p.CodingScore,
		ReactScore:               p.ReactScore,
		Phase:                    p.Phase,
		CompetitionStatus:        p.CompetitionStatus,
		CodingQuestionIndex:      p.CodingQuestionIndex,
		ReactQuestionIndex:       p.ReactQuestionIndex,
		CodingSolvedCount:        p.CodingSolvedCount,
		ReactSolvedCount:         p.ReactSolvedCount,
		CodingCompleted:          p.CodingCompleted,
		ReactCompleted:           p.ReactCompleted,
		ReactUnlocked:            p.ReactUnlocked,
		Round2Mode:               p.Round2Mode,
		CompetitionAccessEnabled: p.CompetitionAccessEnabled,
		Cheated:                  p.Cheated,
	}
}

// Decode parses a stored snapshot over the defaults. Missing fields keep
// their default; unknown enum values and negative counters are rejected.
func Decode(raw string, accessDefault bool) (Session, error) {
	p := project(Default(accessDefault))
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if !p.Phase.Valid() {
		return Session{}, fmt.Errorf("%w: phase %q", ErrCorruptSnapshot, p.Phase)
	}
	if !p.CompetitionStatus.Valid() {
		return Session{}, fmt.Errorf("%w: status %q", ErrCorruptSnapshot, p.CompetitionStatus)
	}
	if !p.Round2Mode.Valid() {
		return Session{}, fmt.Errorf("%w: round 2 mode %q", ErrCorruptSnapshot, p.Round2Mode)
	}
	for _, n := range []int{p.CodingScore, p.ReactScore, p.CodingQuestionIndex, p.ReactQuestionIndex, p.CodingSolvedCount, p.ReactSolvedCount} {
		if n < 0 {
			return Session{}, fmt.Errorf("%w: negative counter", ErrCorruptSnapshot)
		}
	}

	s := p.session()
	s.Score = s.CodingScore + s.ReactScore
	if s.Cheated {
		s.CompetitionStatus = StatusBanned
	}
	if s.CodingCompleted {
		s.ReactUnlocked = true
	}
	return s, nil
}

func encode(s Session) (string, error) {
	b, err := json.Marshal(project(s))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// load rehydrates a session. Anything unreadable falls back to defaults.
func load(ctx context.Context, store kv.Store, ns string, accessDefault bool) Session {
	s := Default(accessDefault)

	raw, err := store.Get(ctx, ns, StorageKey)
	switch {
	case errors.Is(err, kv.ErrNotFound):
	case err != nil:
		log.Printf("[Session] Reading snapshot for %s: %v\n", ns, err)
	default:
		decoded, err := Decode(raw, accessDefault)
		if err != nil {
			log.Printf("[Session] Discarding snapshot for %s: %v\n", ns, err)
		} else {
			s = decoded
		}
	}

	access, err := store.Get(ctx, ns, AccessKey)
	if err == nil {
		switch access {
		case accessEnabled:
			s.CompetitionAccessEnabled = true
		case accessDisabled:
			s.CompetitionAccessEnabled = false
		default:
			log.Printf("[Session] Ignoring access flag %q for %s\n", access, ns)
		}
	} else if !errors.Is(err, kv.ErrNotFound) {
		log.Printf("[Session] Reading access flag for %s: %v\n", ns, err)
	}
	return s
}

func (c *Controller) persist(s Session) {
	raw, err := encode(s)
	if err != nil {
		log.Printf("[Session] Encoding snapshot for %s: %v\n", c.ns, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := c.store.Set(ctx, c.ns, StorageKey, raw); err != nil {
		log.Printf("[Session] Persisting snapshot for %s: %v\n", c.ns, err)
	}
}

func (c *Controller) persistAccess(enabled bool) {
	v := accessDisabled
	if enabled {
		v = accessEnabled
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := c.store.Set(ctx, c.ns, AccessKey, v); err != nil {
		log.Printf("[Session] Persisting access flag for %s: %v\n", c.ns, err)
	}
}
