// Package terminals keeps the live state of every browser terminal in
// memory, backed by its durable namespace.
package terminals

import (
	"context"
	"encoding/json"
	"log"
	"sync/atomic"
	"time"

	"mindbuzzer/internal/bans"
	"mindbuzzer/internal/broadcast"
	"mindbuzzer/internal/kv"
	"mindbuzzer/internal/operator"
	"mindbuzzer/internal/rounds"
	"mindbuzzer/internal/scoreboard"
	"mindbuzzer/internal/session"
	"mindbuzzer/internal/wshub"
)

type Terminal struct {
	ID          string
	Code        string
	Session     *session.Controller
	Runner      *rounds.Runner
	Tables      *scoreboard.Tables
	Bans        *bans.List
	Panel       *operator.Panel
	Broadcaster *broadcast.Broadcaster
	Hub         *wshub.Hub

	store    kv.Store
	lastSeen atomic.Int64
	detach   func()
}

func (t *Terminal) touch(now time.Time) {
	t.lastSeen.Store(now.UnixNano())
}

func (t *Terminal) LastSeen() time.Time {
	return time.Unix(0, t.lastSeen.Load())
}

// Idle reports whether nothing keeps the terminal in memory.
func (t *Terminal) Idle() bool {
	if _, active := t.Runner.Active(); active {
		return false
	}
	return t.Broadcaster.Count() == 0 && t.Hub.Count() == 0
}

// onChange pushes every session change to the terminal's open pages. A
// reset wipes the namespace, so the display code is written back.
func (t *Terminal) onChange(ch session.Change) {
	data, err := json.Marshal(ch.Session)
	if err != nil {
		log.Printf("[Terminal:%s] Encoding session: %v\n", t.Code, err)
		return
	}
	t.Broadcaster.Broadcast("session", string(data))
	t.Hub.Broadcast(wshub.ServerMessage{Type: "session", Session: data})

	if ch.Reset {
		t.saveCode()
	}
}

func (t *Terminal) onTick(left int) {
	t.Hub.Broadcast(wshub.TickMessage(left))
}

func (t *Terminal) saveCode() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := t.store.Set(ctx, t.ID, CodeKey, t.Code); err != nil {
		log.Printf("[Terminal:%s] Saving display code: %v\n", t.Code, err)
	}
}

func (t *Terminal) close() {
	t.detach()
	t.Runner.Close()
	t.Broadcaster.Close()
	t.Hub.CloseAll()
}
