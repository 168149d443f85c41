package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mindbuzzer/internal/kv"
)

const testNS = "terminal-1"

func newController(t *testing.T) (*Controller, *kv.Memory) {
	t.Helper()
	store := kv.NewMemory()
	return Open(context.Background(), store, testNS, true), store
}

func storedSnapshot(t *testing.T, store kv.Store) (Session, bool) {
	t.Helper()
	raw, err := store.Get(context.Background(), testNS, StorageKey)
	if errors.Is(err, kv.ErrNotFound) {
		return Session{}, false
	}
	require.NoError(t, err)
	s, err := Decode(raw, true)
	require.NoError(t, err)
	return s, true
}

func TestDefault(t *testing.T) {
	c, _ := newController(t)
	s := c.Snapshot()

	assert.Equal(t, Default(true), s)
	assert.Equal(t, PhaseLogin, s.Phase)
	assert.Equal(t, StatusPlaying, s.CompetitionStatus)
	assert.Equal(t, ModeNone, s.Round2Mode)
	assert.True(t, s.CompetitionAccessEnabled)
}

func TestAddScore(t *testing.T) {
	t.Run("coding points go to score and codingScore", func(t *testing.T) {
		for _, p := range []int{0, 1, 10, 100, 250} {
			c, _ := newController(t)
			c.AddScore(7, RoundReact)
			before := c.Snapshot()

			c.AddScore(p, RoundCoding)
			after := c.Snapshot()

			assert.Equal(t, before.Score+p, after.Score)
			assert.Equal(t, before.CodingScore+p, after.CodingScore)
			assert.Equal(t, before.ReactScore, after.ReactScore)
		}
	})

	t.Run("react points go to reactScore", func(t *testing.T) {
		c, _ := newController(t)
		c.AddScore(160, RoundReact)
		s := c.Snapshot()
		assert.Equal(t, 160, s.Score)
		assert.Equal(t, 160, s.ReactScore)
		assert.Equal(t, 0, s.CodingScore)
	})

	t.Run("negative points are ignored", func(t *testing.T) {
		c, _ := newController(t)
		c.AddScore(50, RoundCoding)
		c.AddScore(-20, RoundCoding)
		assert.Equal(t, 50, c.Snapshot().Score)
	})
}

func TestTimer(t *testing.T) {
	t.Run("tick at zero stays at zero and deactivates", func(t *testing.T) {
		c, _ := newController(t)
		c.SetTimer(0)
		c.TickTimer()
		left, expired := c.TickTimer()

		s := c.Snapshot()
		assert.Equal(t, 0, left)
		assert.Equal(t, 0, s.TimeLeft)
		assert.False(t, s.TimerActive)
		assert.False(t, expired, "an already stopped timer cannot expire again")
	})

	t.Run("set timer always activates", func(t *testing.T) {
		c, _ := newController(t)
		c.StopTimer()
		c.SetTimer(300)
		assert.True(t, c.Snapshot().TimerActive)
		assert.Equal(t, 300, c.Snapshot().TimeLeft)

		c.SetTimer(300)
		assert.True(t, c.Snapshot().TimerActive)
	})

	t.Run("expiry is reported once", func(t *testing.T) {
		c, _ := newController(t)
		c.SetTimer(2)

		left, expired := c.TickTimer()
		assert.Equal(t, 1, left)
		assert.False(t, expired)

		left, expired = c.TickTimer()
		assert.Equal(t, 0, left)
		assert.True(t, expired)

		_, expired = c.TickTimer()
		assert.False(t, expired)
	})

	t.Run("stop keeps time left", func(t *testing.T) {
		c, _ := newController(t)
		c.SetTimer(42)
		c.StopTimer()
		s := c.Snapshot()
		assert.Equal(t, 42, s.TimeLeft)
		assert.False(t, s.TimerActive)
	})
}

func TestCheated(t *testing.T) {
	t.Run("cheating bans", func(t *testing.T) {
		for _, st := range []Status{StatusPlaying, StatusWaiting, StatusPromoted, StatusEliminated} {
			c, _ := newController(t)
			c.SetCompetitionStatus(st)
			c.SetCheated(true)
			s := c.Snapshot()
			assert.True(t, s.Cheated)
			assert.Equal(t, StatusBanned, s.CompetitionStatus)
		}
	})

	t.Run("only reset clears it", func(t *testing.T) {
		c, _ := newController(t)
		c.SetCheated(true)

		c.SetCheated(false)
		assert.False(t, c.SetCompetitionStatus(StatusPlaying))
		c.FinalizeRound(RoundCoding, 5, 0.6)
		s := c.Snapshot()
		assert.True(t, s.Cheated)
		assert.Equal(t, StatusBanned, s.CompetitionStatus)

		c.ResetGame()
		s = c.Snapshot()
		assert.False(t, s.Cheated)
		assert.Equal(t, StatusPlaying, s.CompetitionStatus)
	})
}

func TestMarkCodingComplete(t *testing.T) {
	c, _ := newController(t)
	c.SetRoundInProgress(true)
	require.False(t, c.Snapshot().ReactUnlocked)

	c.MarkCodingComplete()
	s := c.Snapshot()
	assert.True(t, s.CodingCompleted)
	assert.True(t, s.ReactUnlocked)
	assert.False(t, s.RoundInProgress)
}

func TestMarkJavaComplete_SharesRoundTwoFlag(t *testing.T) {
	c, _ := newController(t)
	c.SetRound2Mode(ModeJava)
	c.MarkJavaComplete()
	s := c.Snapshot()
	assert.True(t, s.ReactCompleted)
	assert.Equal(t, ModeJava, s.Round2Mode)
}

func TestSetRound2Mode_FirstChoiceSticks(t *testing.T) {
	c, _ := newController(t)
	assert.False(t, c.SetRound2Mode(ModeNone))
	assert.True(t, c.SetRound2Mode(ModeReact))
	assert.False(t, c.SetRound2Mode(ModeJava))
	assert.Equal(t, ModeReact, c.Snapshot().Round2Mode)
}

func TestResetGame(t *testing.T) {
	c, store := newController(t)
	ctx := context.Background()
	c.SetTeamName("ALPHA")
	c.SetPhase(PhaseCoding)
	c.AddScore(90, RoundCoding)
	c.MarkCodingComplete()
	c.SetCompetitionAccess(false)
	require.NoError(t, store.Set(ctx, testNS, "round1_teams", "[]"))
	require.NoError(t, store.Set(ctx, testNS, "banned_users", `["EVE"]`))

	var changes []Change
	c.OnChange(func(ch Change) { changes = append(changes, ch) })

	c.ResetGame()

	assert.Equal(t, Default(true), c.Snapshot())
	_, ok := storedSnapshot(t, store)
	assert.False(t, ok, "no session snapshot may survive a reset")
	keys, err := store.Keys(ctx, testNS)
	require.NoError(t, err)
	assert.Empty(t, keys)

	require.Len(t, changes, 1)
	assert.True(t, changes[0].Reset)

	reopened := Open(ctx, store, testNS, true)
	assert.Equal(t, Default(true), reopened.Snapshot())
}

func TestFinalizeRound(t *testing.T) {
	tests := []struct {
		name   string
		solved int
		want   Status
	}{
		{"three of five qualifies", 3, StatusWaiting},
		{"two of five is eliminated", 2, StatusEliminated},
		{"all solved qualifies", 5, StatusWaiting},
		{"none solved is eliminated", 0, StatusEliminated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newController(t)
			c.SetRoundInProgress(true)
			c.SetTimer(180)
			for i := 0; i < tt.solved; i++ {
				c.IncrementCodingSolved()
			}

			s, ok := c.FinalizeRound(RoundCoding, 5, 0.6)
			require.True(t, ok)
			assert.Equal(t, tt.want, s.CompetitionStatus)
			assert.True(t, s.CodingCompleted)
			assert.True(t, s.ReactUnlocked)
			assert.False(t, s.RoundInProgress)
			assert.False(t, s.TimerActive)
		})
	}

	t.Run("finalizes once", func(t *testing.T) {
		c, _ := newController(t)
		var notified int
		c.OnChange(func(Change) { notified++ })

		_, ok := c.FinalizeRound(RoundReact, 3, 0.6)
		assert.True(t, ok)
		c.SetCompetitionStatus(StatusPromoted)
		notified = 0

		s, ok := c.FinalizeRound(RoundReact, 3, 0.6)
		assert.False(t, ok)
		assert.Equal(t, StatusPromoted, s.CompetitionStatus)
		assert.Zero(t, notified)
	})

	t.Run("java round with one question", func(t *testing.T) {
		c, _ := newController(t)
		s, _ := c.FinalizeRound(RoundReact, 1, 0.6)
		assert.Equal(t, StatusEliminated, s.CompetitionStatus)
	})
}

func TestCompleteRound(t *testing.T) {
	c, _ := newController(t)
	c.SetRoundInProgress(true)
	s, ok := c.CompleteRound(RoundCoding)
	require.True(t, ok)
	assert.Equal(t, StatusWaiting, s.CompetitionStatus)
	assert.True(t, s.ReactUnlocked)

	_, ok = c.CompleteRound(RoundCoding)
	assert.False(t, ok)
}

func TestThreshold(t *testing.T) {
	assert.Equal(t, 3, Threshold(5, 0.6))
	assert.Equal(t, 2, Threshold(3, 0.6))
	assert.Equal(t, 1, Threshold(1, 0.6))
	assert.Equal(t, 0, Threshold(0, 0.6))
	assert.Equal(t, 5, Threshold(5, 1))
}

func TestPersistence(t *testing.T) {
	t.Run("volatile fields do not survive reload", func(t *testing.T) {
		c, store := newController(t)
		c.SetTeamName("ALPHA")
		c.SetPhase(PhaseCoding)
		c.AddScore(40, RoundCoding)
		c.IncrementCodingSolved()
		c.SetRound2Mode(ModeJava)
		c.SetRoundInProgress(true)
		c.SetTimer(120)
		c.TickTimer()

		reopened := Open(context.Background(), store, testNS, true)
		s := reopened.Snapshot()
		assert.Equal(t, "ALPHA", s.TeamName)
		assert.Equal(t, PhaseCoding, s.Phase)
		assert.Equal(t, 40, s.CodingScore)
		assert.Equal(t, 1, s.CodingSolvedCount)
		assert.Equal(t, ModeJava, s.Round2Mode)
		assert.Zero(t, s.TimeLeft)
		assert.False(t, s.TimerActive)
		assert.False(t, s.RoundInProgress)
	})

	t.Run("access key wins over snapshot", func(t *testing.T) {
		c, store := newController(t)
		c.SetCompetitionAccess(false)

		v, err := store.Get(context.Background(), testNS, AccessKey)
		require.NoError(t, err)
		assert.Equal(t, "DISABLED", v)

		require.NoError(t, store.Set(context.Background(), testNS, AccessKey, "ENABLED"))
		reopened := Open(context.Background(), store, testNS, true)
		assert.True(t, reopened.Snapshot().CompetitionAccessEnabled)
	})

	t.Run("corrupt snapshot falls back to defaults", func(t *testing.T) {
		store := kv.NewMemory()
		require.NoError(t, store.Set(context.Background(), testNS, StorageKey, "{not json"))
		c := Open(context.Background(), store, testNS, false)
		assert.Equal(t, Default(false), c.Snapshot())
	})

	t.Run("round 2 mode encodes as null until chosen", func(t *testing.T) {
		c, store := newController(t)
		c.SetTeamName("ALPHA")
		raw, err := store.Get(context.Background(), testNS, StorageKey)
		require.NoError(t, err)
		assert.Contains(t, raw, `"round2Mode":null`)
		assert.NotContains(t, raw, "timeLeft")
	})
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"malformed json", `{"teamName":`},
		{"unknown phase", `{"phase":"lobby"}`},
		{"unknown status", `{"competitionStatus":"winner"}`},
		{"unknown mode", `{"round2Mode":"python"}`},
		{"negative counter", `{"codingSolvedCount":-1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.raw, true)
			assert.ErrorIs(t, err, ErrCorruptSnapshot)
		})
	}

	t.Run("partial snapshot keeps defaults", func(t *testing.T) {
		s, err := Decode(`{"teamName":"ALPHA","codingScore":30,"reactScore":150,"cheated":true}`, true)
		require.NoError(t, err)
		assert.Equal(t, "ALPHA", s.TeamName)
		assert.Equal(t, PhaseLogin, s.Phase)
		assert.Equal(t, 180, s.Score)
		assert.Equal(t, StatusBanned, s.CompetitionStatus)
		assert.True(t, s.CompetitionAccessEnabled)
	})
}

func TestOnChange(t *testing.T) {
	c, _ := newController(t)
	var got []Session
	cancel := c.OnChange(func(ch Change) {
		// Observers may read back without deadlocking
		_ = c.Snapshot()
		got = append(got, ch.Session)
	})

	c.SetTeamName("ALPHA")
	c.SetPhase(PhaseDashboard)
	cancel()
	c.SetPhase(PhaseCoding)

	require.Len(t, got, 2)
	assert.Equal(t, "ALPHA", got[0].TeamName)
	assert.Equal(t, PhaseDashboard, got[1].Phase)
}
