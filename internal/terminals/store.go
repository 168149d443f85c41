package terminals

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"mindbuzzer/internal/bans"
	"mindbuzzer/internal/broadcast"
	"mindbuzzer/internal/events"
	"mindbuzzer/internal/kv"
	"mindbuzzer/internal/metrics"
	"mindbuzzer/internal/operator"
	"mindbuzzer/internal/questions"
	"mindbuzzer/internal/rounds"
	"mindbuzzer/internal/scoreboard"
	"mindbuzzer/internal/session"
	"mindbuzzer/internal/wshub"
)

var ErrInvalidID = errors.New("invalid terminal id")

const sweepInterval = 5 * time.Minute

type Config struct {
	Rounds        rounds.Config
	AccessDefault bool
	TTL           time.Duration
}

type Store struct {
	mu     sync.Mutex
	byID   map[string]*Terminal
	byCode map[string]*Terminal

	kv   kv.Store
	bank *questions.Bank
	bus  *events.Bus
	cfg  Config
	now  func() time.Time
	done chan struct{}
}

func NewStore(store kv.Store, bank *questions.Bank, bus *events.Bus, cfg Config) *Store {
	s := &Store{
		byID:   make(map[string]*Terminal),
		byCode: make(map[string]*Terminal),
		kv:     store,
		bank:   bank,
		bus:    bus,
		cfg:    cfg,
		now:    time.Now,
		done:   make(chan struct{}),
	}
	if cfg.TTL > 0 {
		go s.sweepStale()
	}
	return s
}

// NewID returns a fresh terminal id for a browser without a cookie.
func NewID() string {
	return uuid.NewString()
}

// Get returns the live terminal, loading it from its namespace when it is
// not in memory.
func (s *Store) Get(ctx context.Context, id string) (*Terminal, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	id = parsed.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.byID[id]; ok {
		t.touch(s.now())
		return t, nil
	}

	t, err := s.openLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	s.byID[id] = t
	s.byCode[t.Code] = t
	metrics.Terminals.Set(float64(len(s.byID)))
	return t, nil
}

func (s *Store) openLocked(ctx context.Context, id string) (*Terminal, error) {
	code, err := s.codeLocked(ctx, id)
	if err != nil {
		return nil, err
	}

	ctrl := session.Open(ctx, s.kv, id, s.cfg.AccessDefault)
	tables := scoreboard.NewTables(s.kv, id)
	banList := bans.New(s.kv, id)
	runner := rounds.NewRunner(id, ctrl, tables, banList, s.bank, s.bus, s.cfg.Rounds)

	t := &Terminal{
		ID:          id,
		Code:        code,
		Session:     ctrl,
		Runner:      runner,
		Tables:      tables,
		Bans:        banList,
		Panel:       operator.NewPanel(runner, tables, banList),
		Broadcaster: broadcast.NewBroadcaster(),
		Hub:         wshub.NewHub(),
		store:       s.kv,
	}
	t.touch(s.now())
	runner.OnTick = t.onTick
	t.detach = ctrl.OnChange(t.onChange)

	log.Printf("[Terminals] Opened %s as %s\n", id, code)
	return t, nil
}

// codeLocked reuses the stored display code unless another live terminal
// holds it.
func (s *Store) codeLocked(ctx context.Context, id string) (string, error) {
	stored, err := s.kv.Get(ctx, id, CodeKey)
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		return "", fmt.Errorf("reading terminal code: %w", err)
	}
	if validCode(stored) {
		if _, taken := s.byCode[stored]; !taken {
			return stored, nil
		}
	}

	// Try up to 10 times to generate a unique code
	for range 10 {
		code, err := GenerateCode()
		if err != nil {
			return "", fmt.Errorf("generating terminal code: %w", err)
		}
		if _, exists := s.byCode[code]; exists {
			continue
		}
		if err := s.kv.Set(ctx, id, CodeKey, code); err != nil {
			return "", fmt.Errorf("saving terminal code: %w", err)
		}
		return code, nil
	}
	return "", fmt.Errorf("failed to generate unique terminal code after 10 attempts")
}

// ByCode finds a live terminal by its display code.
func (s *Store) ByCode(code string) *Terminal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byCode[strings.ToUpper(strings.TrimSpace(code))]
}

func (s *Store) List() []*Terminal {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]*Terminal, 0, len(s.byID))
	for _, t := range s.byID {
		list = append(list, t)
	}
	return list
}

// Evict drops the terminal from memory; its namespace stays.
func (s *Store) Evict(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked(id)
}

func (s *Store) evictLocked(id string) {
	t, ok := s.byID[id]
	if !ok {
		return
	}
	delete(s.byID, id)
	delete(s.byCode, t.Code)
	t.close()
	metrics.Terminals.Set(float64(len(s.byID)))
}

// Sweep evicts idle terminals unseen for longer than the TTL.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	evicted := 0
	for id, t := range s.byID {
		if now.Sub(t.LastSeen()) > s.cfg.TTL && t.Idle() {
			s.evictLocked(id)
			evicted++
		}
	}
	if evicted > 0 {
		log.Printf("[Terminals] Evicted %d idle terminals\n", evicted)
	}
	return evicted
}

func (s *Store) sweepStale() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Close stops the sweeper and releases every terminal.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		return
	default:
		close(s.done)
	}
	for id := range s.byID {
		s.evictLocked(id)
	}
}
