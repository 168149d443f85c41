// Package bans keeps the list of team names refused at login.
package bans

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"

	"mindbuzzer/internal/kv"
)

const Key = "banned_users"

type List struct {
	mu    sync.Mutex
	store kv.Store
	ns    string
}

func New(store kv.Store, namespace string) *List {
	return &List{store: store, ns: namespace}
}

func normalize(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

func (l *List) read(ctx context.Context) ([]string, error) {
	raw, err := l.store.Get(ctx, l.ns, Key)
	if errors.Is(err, kv.ErrNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading ban list: %w", err)
	}
	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		log.Printf("[Bans] Discarding corrupt ban list for %s: %v\n", l.ns, err)
		return []string{}, nil
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

func (l *List) write(ctx context.Context, names []string) error {
	b, err := json.Marshal(names)
	if err != nil {
		return fmt.Errorf("encoding ban list: %w", err)
	}
	if err := l.store.Set(ctx, l.ns, Key, string(b)); err != nil {
		return fmt.Errorf("writing ban list: %w", err)
	}
	return nil
}

func (l *List) Names(ctx context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.read(ctx)
}

func (l *List) Contains(ctx context.Context, name string) (bool, error) {
	names, err := l.Names(ctx)
	if err != nil {
		return false, err
	}
	return slices.Contains(names, normalize(name)), nil
}

// Add reports whether the name was newly banned.
func (l *List) Add(ctx context.Context, name string) (bool, error) {
	name = normalize(name)
	if name == "" {
		return false, fmt.Errorf("team name is empty")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	names, err := l.read(ctx)
	if err != nil {
		return false, err
	}
	if slices.Contains(names, name) {
		return false, nil
	}
	return true, l.write(ctx, append(names, name))
}

func (l *List) Remove(ctx context.Context, name string) (bool, error) {
	name = normalize(name)
	l.mu.Lock()
	defer l.mu.Unlock()
	names, err := l.read(ctx)
	if err != nil {
		return false, err
	}
	i := slices.Index(names, name)
	if i < 0 {
		return false, nil
	}
	return true, l.write(ctx, slices.Delete(names, i, i+1))
}

// Flush lifts every ban.
func (l *List) Flush(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.store.Delete(ctx, l.ns, Key); err != nil {
		return fmt.Errorf("flushing ban list: %w", err)
	}
	return nil
}
