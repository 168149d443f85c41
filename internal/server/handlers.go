package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"mindbuzzer/internal/db"
	"mindbuzzer/internal/kv"
	"mindbuzzer/internal/operator"
	"mindbuzzer/internal/questions"
	"mindbuzzer/internal/rounds"
	"mindbuzzer/internal/scoreboard"
	"mindbuzzer/internal/session"
	"mindbuzzer/internal/sheets"
	"mindbuzzer/internal/terminals"
)

const (
	terminalCookie = "terminal_id"
	maxBodyBytes   = 1 << 20
)

type Server struct {
	Terminals *terminals.Store
	Questions *questions.Bank
	Auth      *operator.Auth
	Store     kv.Store
	DB        *db.DB         // nil without a SQL backend
	Sheets    *sheets.Client // nil without a webhook
}

var errBadRequest = errors.New("bad request")

// terminal resolves the caller's terminal from the terminal_id cookie,
// issuing a new id to browsers without one.
func (s *Server) terminal(w http.ResponseWriter, r *http.Request) (*terminals.Terminal, error) {
	id := ""
	if c, err := r.Cookie(terminalCookie); err == nil {
		id = c.Value
	}
	t, err := s.Terminals.Get(r.Context(), id)
	if errors.Is(err, terminals.ErrInvalidID) {
		id = terminals.NewID()
		http.SetCookie(w, &http.Cookie{
			Name:     terminalCookie,
			Value:    id,
			Path:     "/",
			MaxAge:   365 * 24 * 60 * 60,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		t, err = s.Terminals.Get(r.Context(), id)
	}
	return t, err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Server] Encoding response: %v\n", err)
	}
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, rounds.ErrInvalidName),
		errors.Is(err, rounds.ErrInvalidPhase),
		errors.Is(err, rounds.ErrUnknownQuestion),
		errors.Is(err, scoreboard.ErrUnknownRound),
		errors.Is(err, scoreboard.ErrEmptyName):
		return http.StatusBadRequest
	case errors.Is(err, operator.ErrInvalidPassword),
		errors.Is(err, operator.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, rounds.ErrAccessDisabled),
		errors.Is(err, rounds.ErrBanned):
		return http.StatusForbidden
	case errors.Is(err, scoreboard.ErrTeamNotFound):
		return http.StatusNotFound
	case errors.Is(err, rounds.ErrNotLoggedIn),
		errors.Is(err, rounds.ErrNotPlaying),
		errors.Is(err, rounds.ErrRoundLocked),
		errors.Is(err, rounds.ErrRoundCompleted),
		errors.Is(err, rounds.ErrNotInRound),
		errors.Is(err, rounds.ErrRoundActive),
		errors.Is(err, rounds.ErrModeNotChosen),
		errors.Is(err, rounds.ErrModeMismatch),
		errors.Is(err, rounds.ErrStaleQuestion),
		errors.Is(err, rounds.ErrNotPromoted),
		errors.Is(err, operator.ErrPromoteWhileActive),
		errors.Is(err, operator.ErrSessionFlagged):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("[Server] %v\n", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// sessionReply pairs a refusal with the session it left untouched.
type sessionReply struct {
	Session session.Session `json:"session"`
	Error   string          `json:"error,omitempty"`
}

func writeSession(w http.ResponseWriter, s session.Session, err error) {
	if err != nil {
		writeJSON(w, statusFor(err), sessionReply{Session: s, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, sessionReply{Session: s})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	t, err := s.terminal(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session": t.Session.Snapshot(),
		"code":    t.Code,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	fmt.Println("[Handle:Login] Request Received")
	t, err := s.terminal(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		TeamName string `json:"teamName"`
	}
	if err := readJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	sess, err := t.Runner.Login(r.Context(), body.TeamName)
	writeSession(w, sess, err)
}

func (s *Server) handlePhase(w http.ResponseWriter, r *http.Request) {
	t, err := s.terminal(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		Phase string `json:"phase"`
	}
	if err := readJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	phase, err := session.ParsePhase(body.Phase)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	sess, err := t.Runner.Navigate(phase)
	writeSession(w, sess, err)
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	fmt.Println("[Handle:Mode] Request Received")
	t, err := s.terminal(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		Mode string `json:"mode"`
	}
	if err := readJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	mode, err := session.ParseMode(body.Mode)
	if err != nil || mode == session.ModeNone {
		writeError(w, fmt.Errorf("%w: mode %q", errBadRequest, body.Mode))
		return
	}
	sess, err := t.Runner.ChooseMode(mode)
	writeSession(w, sess, err)
}

func (s *Server) handleContinue(w http.ResponseWriter, r *http.Request) {
	t, err := s.terminal(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	sess, err := t.Runner.ContinueFromStatus()
	writeSession(w, sess, err)
}

// handleReset wipes the caller's own terminal, like the reset button on
// the login screen.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	fmt.Println("[Handle:Reset] Request Received")
	t, err := s.terminal(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	t.Runner.Reset()
	writeSession(w, t.Session.Snapshot(), nil)
}

func (s *Server) handleQuestions(w http.ResponseWriter, r *http.Request) {
	kind, err := rounds.ParseKind(r.PathValue("round"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	switch kind {
	case rounds.KindCoding:
		writeJSON(w, http.StatusOK, s.Questions.PublicCoding())
	case rounds.KindReact:
		writeJSON(w, http.StatusOK, s.Questions.PublicReact())
	default:
		writeJSON(w, http.StatusOK, s.Questions.PublicJava())
	}
}

func (s *Server) handleEnter(w http.ResponseWriter, r *http.Request) {
	fmt.Println("[Handle:Enter] Request Received")
	t, err := s.terminal(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	kind, err := rounds.ParseKind(r.PathValue("round"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	sess, err := t.Runner.Enter(kind)
	writeSession(w, sess, err)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	fmt.Println("[Handle:Submit] Request Received")
	t, err := s.terminal(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	kind, err := rounds.ParseKind(r.PathValue("round"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	var sub rounds.Submission
	if err := readJSON(w, r, &sub); err != nil {
		writeError(w, err)
		return
	}
	res, err := t.Runner.Submit(kind, sub)
	if err != nil {
		writeSession(w, res.Session, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSelectJava(w http.ResponseWriter, r *http.Request) {
	t, err := s.terminal(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		Index int `json:"index"`
	}
	if err := readJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	sess, err := t.Runner.SelectJava(body.Index)
	writeSession(w, sess, err)
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	t, err := s.terminal(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSession(w, t.Runner.Leave(), nil)
}

// handleAntiCheat is the HTTP fallback of the focus reports sent over /ws.
func (s *Server) handleAntiCheat(w http.ResponseWriter, r *http.Request) {
	t, err := s.terminal(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		Event string `json:"event"`
	}
	if err := readJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	flagged := t.Runner.ReportFocusLoss(body.Event)
	writeJSON(w, http.StatusOK, map[string]any{
		"flagged": flagged,
		"session": t.Session.Snapshot(),
	})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	t, err := s.terminal(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	standings, err := t.Tables.Leaderboard(r.Context(), t.Session.Snapshot())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, standings)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	t, err := s.terminal(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	msgChan := t.Broadcaster.Subscribe()
	defer t.Broadcaster.Unsubscribe(msgChan)

	if data, err := json.Marshal(t.Session.Snapshot()); err == nil {
		fmt.Fprintf(w, "event: session\ndata: %s\n\n", data)
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-msgChan:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\n", msg.Event)
			for _, line := range strings.Split(msg.Data, "\n") {
				fmt.Fprintf(w, "data: %s\n", line)
			}
			fmt.Fprint(w, "\n")
			flusher.Flush()
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status := "ok"
	if err := s.Store.Ping(ctx); err != nil {
		status = "storage_error"
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, `{"status":"%s","error":%q}`, status, err.Error())
		return
	}
	fmt.Fprintf(w, `{"status":"%s"}`, status)
}
