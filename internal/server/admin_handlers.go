package server

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"mindbuzzer/internal/operator"
	"mindbuzzer/internal/scoreboard"
	"mindbuzzer/internal/session"
	"mindbuzzer/internal/terminals"
)

var errTerminalNotFound = errors.New("terminal not found")

func (s *Server) requireOperator(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(operator.CookieName)
		if err != nil {
			writeError(w, operator.ErrInvalidToken)
			return
		}
		if _, err := s.Auth.Verify(c.Value); err != nil {
			writeError(w, err)
			return
		}
		next(w, r)
	}
}

// adminTerminal picks the terminal named by ?terminal=<code>, or the
// operator's own terminal.
func (s *Server) adminTerminal(w http.ResponseWriter, r *http.Request) (*terminals.Terminal, bool) {
	if code := r.URL.Query().Get("terminal"); code != "" {
		t := s.Terminals.ByCode(code)
		if t == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": errTerminalNotFound.Error()})
			return nil, false
		}
		return t, true
	}
	t, err := s.terminal(w, r)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return t, true
}

func roundParam(r *http.Request) (int, error) {
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil || (n != 1 && n != 2) {
		return 0, fmt.Errorf("%w: round %q", scoreboard.ErrUnknownRound, r.PathValue("n"))
	}
	return n, nil
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	fmt.Println("[Handle:AdminLogin] Request Received")
	var body struct {
		Password string `json:"password"`
	}
	if err := readJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	token, err := s.Auth.Login(body.Password)
	if err != nil {
		log.Println("[Operator] Failed login attempt")
		writeError(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     operator.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(operator.TokenTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleAdminLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:   operator.CookieName,
		Path:   "/",
		MaxAge: -1,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type terminalView struct {
	Code    string          `json:"code"`
	Session session.Session `json:"session"`
	Pages   int             `json:"pages"`
}

func viewOf(t *terminals.Terminal) terminalView {
	return terminalView{
		Code:    t.Code,
		Session: t.Session.Snapshot(),
		Pages:   t.Broadcaster.Count() + t.Hub.Count(),
	}
}

func (s *Server) handleAdminTerminal(w http.ResponseWriter, r *http.Request) {
	t, ok := s.adminTerminal(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(t))
}

func (s *Server) handleAdminTerminals(w http.ResponseWriter, r *http.Request) {
	list := s.Terminals.List()
	views := make([]terminalView, 0, len(list))
	for _, t := range list {
		views = append(views, viewOf(t))
	}
	writeJSON(w, http.StatusOK, views)
}

// handleAdminResults lists a team's finished rounds from the SQL history.
func (s *Server) handleAdminResults(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "Round history requires a database connection", http.StatusServiceUnavailable)
		return
	}
	team := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("team")))
	if team == "" {
		writeError(w, fmt.Errorf("%w: team is required", errBadRequest))
		return
	}
	results, err := s.DB.ResultsForTeam(r.Context(), team)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleAdminAccess(w http.ResponseWriter, r *http.Request) {
	t, ok := s.adminTerminal(w, r)
	if !ok {
		return
	}
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := readJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	writeSession(w, t.Panel.SetAccess(body.Enabled), nil)
}

func (s *Server) handleAdminStatus(w http.ResponseWriter, r *http.Request) {
	t, ok := s.adminTerminal(w, r)
	if !ok {
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := readJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	st, err := session.ParseStatus(body.Status)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	sess, err := t.Panel.SetStatus(st)
	writeSession(w, sess, err)
}

func (s *Server) handleAdminBans(w http.ResponseWriter, r *http.Request) {
	t, ok := s.adminTerminal(w, r)
	if !ok {
		return
	}
	names, err := t.Panel.Bans(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleAdminBan(w http.ResponseWriter, r *http.Request) {
	t, ok := s.adminTerminal(w, r)
	if !ok {
		return
	}
	var body struct {
		Name string `json:"name"`
	}
	if err := readJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		writeError(w, fmt.Errorf("%w: name is required", errBadRequest))
		return
	}
	added, err := t.Panel.Ban(r.Context(), body.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"added": added})
}

func (s *Server) handleAdminFlushBans(w http.ResponseWriter, r *http.Request) {
	t, ok := s.adminTerminal(w, r)
	if !ok {
		return
	}
	if err := t.Panel.FlushBans(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminUnban(w http.ResponseWriter, r *http.Request) {
	t, ok := s.adminTerminal(w, r)
	if !ok {
		return
	}
	removed, err := t.Panel.Unban(r.Context(), r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

func (s *Server) handleAdminTeams(w http.ResponseWriter, r *http.Request) {
	t, ok := s.adminTerminal(w, r)
	if !ok {
		return
	}
	round, err := roundParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	teams, err := t.Panel.Teams(r.Context(), round)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, teams)
}

func (s *Server) handleAdminAddTeam(w http.ResponseWriter, r *http.Request) {
	t, ok := s.adminTerminal(w, r)
	if !ok {
		return
	}
	round, err := roundParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		Name string `json:"name"`
	}
	if err := readJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	team, err := t.Panel.AddTeam(r.Context(), round, body.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, team)
}

// handleAdminEditTeam applies a score and/or status edit to one row.
func (s *Server) handleAdminEditTeam(w http.ResponseWriter, r *http.Request) {
	t, ok := s.adminTerminal(w, r)
	if !ok {
		return
	}
	round, err := roundParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, fmt.Errorf("%w: team id", errBadRequest))
		return
	}
	var body struct {
		Score  *int    `json:"score"`
		Status *string `json:"status"`
	}
	if err := readJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Score == nil && body.Status == nil {
		writeError(w, fmt.Errorf("%w: nothing to change", errBadRequest))
		return
	}

	var st session.Status
	if body.Status != nil {
		if st, err = session.ParseStatus(*body.Status); err != nil {
			writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
	}

	var team scoreboard.Team
	if body.Score != nil {
		if team, err = t.Panel.SetTeamScore(r.Context(), round, id, *body.Score); err != nil {
			writeError(w, err)
			return
		}
	}
	if body.Status != nil {
		if team, err = t.Panel.SetTeamStatus(r.Context(), round, id, st); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, team)
}

func (s *Server) handleAdminRemoveTeam(w http.ResponseWriter, r *http.Request) {
	t, ok := s.adminTerminal(w, r)
	if !ok {
		return
	}
	round, err := roundParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, fmt.Errorf("%w: team id", errBadRequest))
		return
	}
	if err := t.Panel.RemoveTeam(r.Context(), round, id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminResetRound(w http.ResponseWriter, r *http.Request) {
	t, ok := s.adminTerminal(w, r)
	if !ok {
		return
	}
	round, err := roundParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := t.Panel.ResetRound(r.Context(), round); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminWipe(w http.ResponseWriter, r *http.Request) {
	fmt.Println("[Handle:AdminWipe] Request Received")
	t, ok := s.adminTerminal(w, r)
	if !ok {
		return
	}
	writeSession(w, t.Panel.Wipe(), nil)
}
