package engine

import (
	"context"
	"testing"
	"time"

	"github.com/boubou-paradis/photojet-sub000/go/internal/game/broadcast"
	"github.com/boubou-paradis/photojet-sub000/go/internal/game/store"
	"github.com/boubou-paradis/photojet-sub000/go/internal/models"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type managerFixture struct {
	manager *Manager
	clock   *clockwork.FakeClock
	store   *store.MemoryStore
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()

	clock := clockwork.NewFakeClock()
	st := store.NewMemoryStore()
	dispatcher := broadcast.NewDispatcher(broadcast.NewMemoryTransport(), broadcast.DefaultDispatcherConfig(), clock)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go dispatcher.Run(ctx)

	return &managerFixture{
		manager: NewManager(clock, dispatcher, st),
		clock:   clock,
		store:   st,
	}
}

func TestStartSessionGeneratesJoinCode(t *testing.T) {
	f := newManagerFixture(t)

	session, err := f.manager.StartSession(context.Background(), models.GameTypeQuiz, quizRounds(1))
	require.NoError(t, err)

	code := session.Code()
	assert.Len(t, code, codeLength)
	for _, c := range code {
		assert.Contains(t, codeAlphabet, string(c), "code character outside the readable alphabet")
	}

	got, err := f.manager.Get(code)
	require.NoError(t, err)
	assert.Same(t, session, got)
}

func TestGetUnknownCode(t *testing.T) {
	f := newManagerFixture(t)
	_, err := f.manager.Get("NOPE42")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStartSessionRollsBackOnInvalidRounds(t *testing.T) {
	f := newManagerFixture(t)

	_, err := f.manager.StartSession(context.Background(), models.GameTypeQuiz, nil)
	require.Error(t, err)

	// The failed session must not occupy a code.
	f.manager.mu.RLock()
	defer f.manager.mu.RUnlock()
	assert.Empty(t, f.manager.sessions)
}

func TestNextDeadlinePicksSoonest(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t)

	_, ok := f.manager.NextDeadline()
	assert.False(t, ok, "no deadline without active rounds")

	longRounds := quizRounds(1)
	longRounds[0].TimeLimitMs = 60000
	slow, err := f.manager.StartSession(ctx, models.GameTypeQuiz, longRounds)
	require.NoError(t, err)
	require.NoError(t, slow.OpenRound(ctx))

	fast, err := f.manager.StartSession(ctx, models.GameTypeQuiz, quizRounds(1))
	require.NoError(t, err)
	require.NoError(t, fast.OpenRound(ctx))

	deadline, ok := f.manager.NextDeadline()
	require.True(t, ok)
	fastDeadline, ok := fast.NextDeadline()
	require.True(t, ok)
	assert.Equal(t, fastDeadline, deadline)
}

func TestCloseDueClosesExpiredRounds(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t)

	session, err := f.manager.StartSession(ctx, models.GameTypeQuiz, quizRounds(1))
	require.NoError(t, err)
	require.NoError(t, session.OpenRound(ctx))

	assert.Zero(t, f.manager.CloseDue(ctx, f.clock.Now()))

	f.clock.Advance(21 * time.Second)
	assert.Equal(t, 1, f.manager.CloseDue(ctx, f.clock.Now()))
	assert.Equal(t, models.PhaseRoundLocked, session.Phase())
}

func TestResumeSession(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t)

	session, err := f.manager.StartSession(ctx, models.GameTypeQuiz, quizRounds(2))
	require.NoError(t, err)
	code := session.Code()
	session.Join("p1", "Ana")
	require.NoError(t, session.OpenRound(ctx))
	roundID := session.Snapshot().Round.RoundID

	f.clock.Advance(2 * time.Second)
	_, err = session.Submit(ctx, SubmitRequest{ParticipantID: "p1", RoundID: roundID, ChoiceIndex: 1})
	require.NoError(t, err)
	before := session.Snapshot()

	// Simulate a host restart: forget the live session, reload from the store.
	f.manager.mu.Lock()
	delete(f.manager.sessions, code)
	f.manager.mu.Unlock()

	resumed, err := f.manager.ResumeSession(ctx, code)
	require.NoError(t, err)

	after := resumed.Snapshot()
	assert.Equal(t, before.Phase, after.Phase)
	assert.Equal(t, before.StateVersion, after.StateVersion)
	assert.Equal(t, before.CurrentRoundIndex, after.CurrentRoundIndex)
	require.NotNil(t, after.Round)
	assert.Equal(t, roundID, after.Round.RoundID)
	require.NotNil(t, after.Tally)
	assert.Equal(t, before.Tally.Counts, after.Tally.Counts)

	// The recorded answer survives the restart: no double scoring.
	_, err = resumed.Submit(ctx, SubmitRequest{ParticipantID: "p1", RoundID: roundID, ChoiceIndex: 1})
	assert.ErrorIs(t, err, ErrDuplicateAnswer)

	ranked := resumed.Rank()
	require.Len(t, ranked, 1)
	assert.Equal(t, 10, ranked[0].TotalScore)
}

func TestResumeSessionNotPersisted(t *testing.T) {
	f := newManagerFixture(t)
	_, err := f.manager.ResumeSession(context.Background(), "GHOST1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRemoveDropsSession(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t)

	session, err := f.manager.StartSession(ctx, models.GameTypeQuiz, quizRounds(1))
	require.NoError(t, err)
	code := session.Code()

	f.manager.Remove(code)
	_, err = f.manager.Get(code)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// Removing an unknown code is harmless.
	f.manager.Remove(code)
}
