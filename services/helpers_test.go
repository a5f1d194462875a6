package services

import (
	"context"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testEpoch = time.Date(2026, time.March, 14, 12, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, Migrate(db))
	return db
}

// captureNotifier records every notification for assertions.
type captureNotifier struct {
	mu    sync.Mutex
	notes []Notification
}

func (c *captureNotifier) Notify(_ context.Context, n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notes = append(c.notes, n)
}

func (c *captureNotifier) logs(t LogType) []LogLine {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []LogLine
	for _, n := range c.notes {
		if n.Kind == NotifyLog && n.Log.Type == t {
			out = append(out, *n.Log)
		}
	}
	return out
}

func (c *captureNotifier) rounds() []RoundMarker {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []RoundMarker
	for _, n := range c.notes {
		if n.Kind == NotifyRound {
			out = append(out, *n.Round)
		}
	}
	return out
}

type sessionFixture struct {
	s     *Session
	clock *clockwork.FakeClock
	notes *captureNotifier
	ctx   context.Context
}

func newTestSession(t *testing.T, tweak ...func(*Settings)) *sessionFixture {
	t.Helper()
	db := newTestDB(t)
	clock := clockwork.NewFakeClockAt(testEpoch)
	notes := &captureNotifier{}
	st := DefaultSettings()
	st.HostID = "host"
	for _, fn := range tweak {
		fn(&st)
	}
	s, err := NewSession(db, clock, st, notes, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.StartSession(ctx))
	return &sessionFixture{s: s, clock: clock, notes: notes, ctx: ctx}
}

// seat creates viewers and promotes them straight into the arena.
func (f *sessionFixture) seat(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := f.s.Identity.Resolve(f.ctx, id, "Player "+id, id)
		require.NoError(t, err)
		require.NoError(t, f.s.Promote(f.ctx, id))
	}
}

// live starts a qualifying round.
func (f *sessionFixture) live(t *testing.T) {
	t.Helper()
	_, err := f.s.StartRound(f.ctx, RoundQualifying)
	require.NoError(t, err)
}

// credit sets an arena player's score during a live round.
func (f *sessionFixture) credit(t *testing.T, id string, amount int64) {
	t.Helper()
	require.True(t, f.s.Arena.CreditScore(id, amount), "credit %s", id)
}
