package operator

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mindbuzzer/internal/bans"
	"mindbuzzer/internal/kv"
	"mindbuzzer/internal/questions"
	"mindbuzzer/internal/rounds"
	"mindbuzzer/internal/scoreboard"
	"mindbuzzer/internal/session"
)

func TestAuth(t *testing.T) {
	auth, err := NewAuth("ADMIN", "secret")
	require.NoError(t, err)

	t.Run("wrong password", func(t *testing.T) {
		_, err := auth.Login("admin")
		assert.ErrorIs(t, err, ErrInvalidPassword)
	})

	t.Run("issued token verifies", func(t *testing.T) {
		token, err := auth.Login("ADMIN")
		require.NoError(t, err)
		claims, err := auth.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, "operator", claims.Role)
		assert.WithinDuration(t, time.Now().Add(TokenTTL), claims.ExpiresAt.Time, time.Minute)
	})

	t.Run("expired token is refused", func(t *testing.T) {
		token, err := auth.Login("ADMIN")
		require.NoError(t, err)
		later := *auth
		later.now = func() time.Time { return time.Now().Add(TokenTTL + time.Minute) }
		_, err = later.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("token from another key is refused", func(t *testing.T) {
		other, err := NewAuth("ADMIN", "")
		require.NoError(t, err)
		token, err := other.Login("ADMIN")
		require.NoError(t, err)
		_, err = auth.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unsigned token is refused", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Role: "operator"})
		raw, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = auth.Verify(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

type panelFixture struct {
	panel  *Panel
	runner *rounds.Runner
	ctrl   *session.Controller
	tables *scoreboard.Tables
}

func newPanel(t *testing.T) panelFixture {
	t.Helper()
	return newPanelWith(t, rounds.Config{
		CodingSecs:   180,
		ReactSecs:    600,
		JavaSecs:     300,
		Ratio:        0.6,
		TickInterval: time.Hour,
	})
}

func newPanelWith(t *testing.T, cfg rounds.Config) panelFixture {
	t.Helper()
	ctx := context.Background()
	store := kv.NewMemory()
	bank, err := questions.Load()
	require.NoError(t, err)

	ctrl := session.Open(ctx, store, "terminal-1", true)
	tables := scoreboard.NewTables(store, "terminal-1")
	banList := bans.New(store, "terminal-1")
	runner := rounds.NewRunner("terminal-1", ctrl, tables, banList, bank, nil, cfg)
	t.Cleanup(runner.Close)
	return panelFixture{panel: NewPanel(runner, tables, banList), runner: runner, ctrl: ctrl, tables: tables}
}

func TestPanel_SetStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("promotion needs access closed", func(t *testing.T) {
		f := newPanel(t)
		_, err := f.panel.SetStatus(session.StatusPromoted)
		assert.ErrorIs(t, err, ErrPromoteWhileActive)

		f.panel.SetAccess(false)
		s, err := f.panel.SetStatus(session.StatusPromoted)
		require.NoError(t, err)
		assert.Equal(t, session.StatusPromoted, s.CompetitionStatus)
		assert.True(t, s.ReactUnlocked)
	})

	t.Run("disqualification stops a running round", func(t *testing.T) {
		f := newPanel(t)
		_, err := f.runner.Login(ctx, "ALPHA")
		require.NoError(t, err)
		_, err = f.runner.Enter(rounds.KindCoding)
		require.NoError(t, err)

		s, err := f.panel.SetStatus(session.StatusEliminated)
		require.NoError(t, err)
		assert.Equal(t, session.StatusEliminated, s.CompetitionStatus)
		assert.False(t, s.RoundInProgress)
		assert.False(t, s.TimerActive)
		assert.Equal(t, session.PhaseDashboard, s.Phase)
		_, active := f.runner.Active()
		assert.False(t, active)
	})

	t.Run("cheated sessions stay banned", func(t *testing.T) {
		f := newPanel(t)
		_, err := f.runner.Login(ctx, "ALPHA")
		require.NoError(t, err)
		_, err = f.runner.Enter(rounds.KindCoding)
		require.NoError(t, err)
		require.True(t, f.runner.ReportFocusLoss("blur"))

		s, err := f.panel.SetStatus(session.StatusPlaying)
		assert.ErrorIs(t, err, ErrSessionFlagged)
		assert.Equal(t, session.StatusBanned, s.CompetitionStatus)
	})

	t.Run("unknown status", func(t *testing.T) {
		f := newPanel(t)
		_, err := f.panel.SetStatus(session.Status("winner"))
		assert.Error(t, err)
	})
}

func TestPanel_StatusMidRound(t *testing.T) {
	ctx := context.Background()
	fast := rounds.Config{CodingSecs: 3, ReactSecs: 3, JavaSecs: 3, Ratio: 0.6, TickInterval: 10 * time.Millisecond}

	t.Run("promotion survives the countdown", func(t *testing.T) {
		f := newPanelWith(t, fast)
		_, err := f.runner.Login(ctx, "ALPHA")
		require.NoError(t, err)
		_, err = f.runner.Enter(rounds.KindCoding)
		require.NoError(t, err)

		f.panel.SetAccess(false)
		_, err = f.panel.SetStatus(session.StatusPromoted)
		require.NoError(t, err)
		time.Sleep(150 * time.Millisecond)

		s := f.ctrl.Snapshot()
		assert.Equal(t, session.StatusPromoted, s.CompetitionStatus)
		assert.False(t, s.CodingCompleted)
		assert.False(t, s.RoundInProgress)
		_, active := f.runner.Active()
		assert.False(t, active)
		teams, err := f.tables.List(ctx, 1)
		require.NoError(t, err)
		assert.Empty(t, teams)
	})

	t.Run("waiting stops scoring", func(t *testing.T) {
		f := newPanelWith(t, fast)
		_, err := f.runner.Login(ctx, "ALPHA")
		require.NoError(t, err)
		_, err = f.runner.Enter(rounds.KindCoding)
		require.NoError(t, err)

		_, err = f.panel.SetStatus(session.StatusWaiting)
		require.NoError(t, err)

		q := f.runner.Session().Snapshot().CodingQuestionIndex
		res, err := f.runner.Submit(rounds.KindCoding, rounds.Submission{Question: q, Output: "anything"})
		assert.ErrorIs(t, err, rounds.ErrNotInRound)
		assert.False(t, res.Passed)
		assert.Zero(t, f.ctrl.Snapshot().CodingScore)

		time.Sleep(150 * time.Millisecond)
		assert.Equal(t, session.StatusWaiting, f.ctrl.Snapshot().CompetitionStatus)
		assert.False(t, f.ctrl.Snapshot().CodingCompleted)
	})
}

func TestPanel_TeamStatusSync(t *testing.T) {
	ctx := context.Background()
	f := newPanel(t)
	_, err := f.runner.Login(ctx, "ALPHA")
	require.NoError(t, err)

	mine, err := f.panel.AddTeam(ctx, 1, "alpha")
	require.NoError(t, err)
	other, err := f.panel.AddTeam(ctx, 1, "BRAVO")
	require.NoError(t, err)

	_, err = f.panel.SetTeamStatus(ctx, 1, other.ID, session.StatusEliminated)
	require.NoError(t, err)
	assert.Equal(t, session.StatusPlaying, f.ctrl.Snapshot().CompetitionStatus)

	row, err := f.panel.SetTeamStatus(ctx, 1, mine.ID, session.StatusPromoted)
	require.NoError(t, err)
	assert.Equal(t, session.StatusPromoted, row.Status)
	s := f.ctrl.Snapshot()
	assert.Equal(t, session.StatusPromoted, s.CompetitionStatus)
	assert.True(t, s.ReactUnlocked)

	_, err = f.panel.SetTeamStatus(ctx, 1, 999, session.StatusPromoted)
	assert.ErrorIs(t, err, scoreboard.ErrTeamNotFound)
}

func TestPanel_TablesAndBans(t *testing.T) {
	ctx := context.Background()
	f := newPanel(t)

	team, err := f.panel.AddTeam(ctx, 2, "ALPHA")
	require.NoError(t, err)
	team, err = f.panel.SetTeamScore(ctx, 2, team.ID, 9000)
	require.NoError(t, err)
	assert.Equal(t, 500, team.Score)

	require.NoError(t, f.panel.ResetRound(ctx, 2))
	teams, err := f.panel.Teams(ctx, 2)
	require.NoError(t, err)
	require.Len(t, teams, 1)
	assert.Zero(t, teams[0].Score)

	require.NoError(t, f.panel.RemoveTeam(ctx, 2, team.ID))
	teams, _ = f.panel.Teams(ctx, 2)
	assert.Empty(t, teams)

	added, err := f.panel.Ban(ctx, "eve")
	require.NoError(t, err)
	assert.True(t, added)
	names, err := f.panel.Bans(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"EVE"}, names)

	_, err = f.runner.Login(ctx, "EVE")
	assert.ErrorIs(t, err, rounds.ErrBanned)

	require.NoError(t, f.panel.FlushBans(ctx))
	_, err = f.runner.Login(ctx, "EVE")
	assert.NoError(t, err)
}

func TestPanel_Wipe(t *testing.T) {
	ctx := context.Background()
	f := newPanel(t)
	_, err := f.runner.Login(ctx, "ALPHA")
	require.NoError(t, err)
	_, err = f.panel.AddTeam(ctx, 1, "ALPHA")
	require.NoError(t, err)

	s := f.panel.Wipe()
	assert.Equal(t, session.PhaseLogin, s.Phase)
	assert.Empty(t, s.TeamName)
	teams, err := f.panel.Teams(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, teams)
}
