package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"mindbuzzer/internal/wshub"
)

// handleWS carries focus reports from the round page and pushes session
// snapshots and timer ticks back.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	t, err := s.terminal(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Printf("[WS] Accept error: %v\n", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	client := &wshub.Client{
		ConnID: uuid.NewString(),
		Conn:   conn,
		Send:   make(chan []byte, 16),
	}
	if data, err := json.Marshal(t.Session.Snapshot()); err == nil {
		msg, _ := json.Marshal(wshub.ServerMessage{Type: "session", Session: data})
		client.Send <- msg
	}
	t.Hub.Register(client)
	defer t.Hub.Unregister(client.ConnID)

	go client.WritePump(ctx)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			break
		}

		var msg wshub.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("[WS] Bad message from %s: %v\n", t.Code, err)
			continue
		}

		switch msg.Type {
		case wshub.MsgBlur, wshub.MsgHidden:
			t.Runner.ReportFocusLoss(msg.Type)
		case wshub.MsgVisible:
		default:
			log.Printf("[WS] Unknown message type %q from %s\n", msg.Type, t.Code)
		}
	}
	conn.Close(websocket.StatusNormalClosure, "")
}
