package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"mindbuzzer/internal/config"
	"mindbuzzer/internal/db"
	"mindbuzzer/internal/events"
	"mindbuzzer/internal/kv"
	"mindbuzzer/internal/metrics"
	"mindbuzzer/internal/operator"
	"mindbuzzer/internal/questions"
	"mindbuzzer/internal/rounds"
	"mindbuzzer/internal/sheets"
	"mindbuzzer/internal/terminals"
)

func Run() error {
	appCfg := config.Load()

	bank, err := questions.Load()
	if err != nil {
		return err
	}
	auth, err := operator.NewAuth(appCfg.AdminPassword, appCfg.TokenSecret)
	if err != nil {
		return err
	}

	store, database := openStorage(appCfg)
	defer store.Close()

	bus := events.NewBus()
	termStore := terminals.NewStore(store, bank, bus, terminals.Config{
		Rounds: rounds.Config{
			CodingSecs: appCfg.CodingQuestionSecs,
			ReactSecs:  appCfg.ReactQuestionSecs,
			JavaSecs:   appCfg.JavaQuestionSecs,
			Ratio:      appCfg.QualificationRatio,
			BypassTeam: appCfg.BypassTeamName,
		},
		AccessDefault: appCfg.AccessEnabledDefault,
		TTL:           time.Duration(appCfg.TerminalTTLMinutes) * time.Minute,
	})
	defer termStore.Close()

	srv := &Server{
		Terminals: termStore,
		Questions: bank,
		Auth:      auth,
		Store:     store,
		DB:        database,
		Sheets:    sheets.New(appCfg.SheetWebhookURL),
	}
	go srv.consumeResults(bus)

	addr := "0.0.0.0:" + appCfg.Port
	fmt.Printf("Server listening on http://localhost:%s\n", appCfg.Port)
	return http.ListenAndServe(addr, srv.routes())
}

// openStorage picks the durable backend: PostgreSQL, then SQLite, then
// Redis, then memory. A backend that fails to open is skipped. The SQL
// backends also keep the round history.
func openStorage(cfg config.Config) (kv.Store, *db.DB) {
	if cfg.DatabaseURL != "" {
		database, err := db.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Printf("[DB] Failed to connect: %v\n", err)
		} else if err := database.Migrate(); err != nil {
			log.Printf("[DB] Migration failed: %v\n", err)
			database.Close()
		} else {
			log.Println("[DB] Database connected and migrations applied")
			return database, database
		}
	}

	if cfg.SQLitePath != "" {
		database, err := db.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			log.Printf("[DB] Failed to open SQLite: %v\n", err)
		} else if err := database.Migrate(); err != nil {
			log.Printf("[DB] Migration failed: %v\n", err)
			database.Close()
		} else {
			log.Printf("[DB] SQLite %s ready\n", cfg.SQLitePath)
			return database, database
		}
	}

	if cfg.RedisURL != "" {
		store, err := kv.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Printf("[KV] Failed to connect: %v\n", err)
		} else {
			return store, nil
		}
	}

	log.Println("[KV] No durable storage configured, keeping state in memory")
	return kv.NewMemory(), nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/session", s.handleSession)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/phase", s.handlePhase)
	mux.HandleFunc("POST /api/round2/mode", s.handleMode)
	mux.HandleFunc("POST /api/status/continue", s.handleContinue)
	mux.HandleFunc("POST /api/reset", s.handleReset)
	mux.HandleFunc("GET /api/questions/{round}", s.handleQuestions)
	mux.HandleFunc("POST /api/rounds/{round}/enter", s.handleEnter)
	mux.HandleFunc("POST /api/rounds/{round}/submit", s.handleSubmit)
	mux.HandleFunc("POST /api/rounds/java/select", s.handleSelectJava)
	mux.HandleFunc("POST /api/rounds/leave", s.handleLeave)
	mux.HandleFunc("POST /api/anticheat", s.handleAntiCheat)
	mux.HandleFunc("GET /api/leaderboard", s.handleLeaderboard)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /ws", s.handleWS)

	mux.HandleFunc("POST /admin/login", s.handleAdminLogin)
	mux.HandleFunc("POST /admin/logout", s.handleAdminLogout)
	mux.HandleFunc("GET /admin/terminal", s.requireOperator(s.handleAdminTerminal))
	mux.HandleFunc("GET /admin/terminals", s.requireOperator(s.handleAdminTerminals))
	mux.HandleFunc("GET /admin/results", s.requireOperator(s.handleAdminResults))
	mux.HandleFunc("POST /admin/access", s.requireOperator(s.handleAdminAccess))
	mux.HandleFunc("POST /admin/status", s.requireOperator(s.handleAdminStatus))
	mux.HandleFunc("GET /admin/bans", s.requireOperator(s.handleAdminBans))
	mux.HandleFunc("POST /admin/bans", s.requireOperator(s.handleAdminBan))
	mux.HandleFunc("DELETE /admin/bans", s.requireOperator(s.handleAdminFlushBans))
	mux.HandleFunc("DELETE /admin/bans/{name}", s.requireOperator(s.handleAdminUnban))
	mux.HandleFunc("GET /admin/rounds/{n}/teams", s.requireOperator(s.handleAdminTeams))
	mux.HandleFunc("POST /admin/rounds/{n}/teams", s.requireOperator(s.handleAdminAddTeam))
	mux.HandleFunc("PATCH /admin/rounds/{n}/teams/{id}", s.requireOperator(s.handleAdminEditTeam))
	mux.HandleFunc("DELETE /admin/rounds/{n}/teams/{id}", s.requireOperator(s.handleAdminRemoveTeam))
	mux.HandleFunc("POST /admin/rounds/{n}/reset", s.requireOperator(s.handleAdminResetRound))
	mux.HandleFunc("POST /admin/wipe", s.requireOperator(s.handleAdminWipe))

	return mux
}

// consumeResults stores every finished round and forwards the team's
// totals to the spreadsheet webhook.
func (s *Server) consumeResults(bus *events.Bus) {
	for ev := range bus.RoundsFinished {
		if s.DB != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_, err := s.DB.RecordResult(ctx, db.RoundResult{
				TerminalID: ev.TerminalID,
				TeamName:   ev.TeamName,
				Round:      ev.Round,
				Mode:       ev.Mode,
				Score:      ev.Score,
				Solved:     ev.Solved,
				Total:      ev.Total,
				Status:     ev.Status,
			})
			cancel()
			if err != nil {
				log.Printf("[DB] RecordResult error: %v\n", err)
			}
		}
		s.Sheets.SubmitAsync(sheets.Row{
			TeamName:    ev.TeamName,
			Round1Score: ev.CodingScore,
			Round2Score: ev.ReactScore,
			TotalScore:  ev.CodingScore + ev.ReactScore,
		})
	}
}
