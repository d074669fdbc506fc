package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"maintbot/internal/timer"
)

const (
	testGuild   = "100000000000000001"
	testChannel = "200000000000000001"
)

// fakeDispatcher records sends and can be programmed to fail.
type fakeDispatcher struct {
	sent []Notification

	unresolvable map[string]bool
	sendErr      map[string]error // timer name -> error
	panicOn      string           // timer name that blows up on send
}

func (d *fakeDispatcher) ResolveChannel(channelID string) error {
	if d.unresolvable[channelID] {
		return ErrChannelNotFound
	}
	return nil
}

func (d *fakeDispatcher) Send(channelID string, n Notification) error {
	if d.panicOn == n.Timer.Name {
		panic("dispatcher exploded")
	}
	if err := d.sendErr[n.Timer.Name]; err != nil {
		return err
	}
	d.sent = append(d.sent, n)
	return nil
}

// fakeStore counts saves.
type fakeStore struct {
	saves int
	err   error
}

func (s *fakeStore) Save(timer.Settings, map[string]map[string]timer.Timer) error {
	s.saves++
	return s.err
}

type fixture struct {
	registry   *timer.Registry
	dispatcher *fakeDispatcher
	store      *fakeStore
	sched      *Scheduler
	now        time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		registry: timer.NewRegistry(timer.Settings{ReminderRepeatDays: 7}, nil),
		dispatcher: &fakeDispatcher{
			unresolvable: map[string]bool{},
			sendErr:      map[string]error{},
		},
		store: &fakeStore{},
		now:   time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC),
	}
	f.registry.WithClock(func() time.Time { return f.now })
	f.sched = New(f.registry, f.store, f.dispatcher, zap.NewNop(), time.Minute)
	f.sched.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) create(t *testing.T, name string, days int) timer.Timer {
	t.Helper()
	created, err := f.registry.Create(timer.CreateParams{
		GuildID:       testGuild,
		Name:          name,
		IntervalValue: days,
		IntervalUnit:  timer.UnitDays,
		Owner:         "@ops",
		Description:   "check the thing",
		ChannelID:     testChannel,
	})
	require.NoError(t, err)
	return created
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func TestTickBeforeDueDoesNothing(t *testing.T) {
	f := newFixture(t)
	f.create(t, "hvac", 1)

	f.advance(time.Hour)
	f.sched.tick()

	assert.Empty(t, f.dispatcher.sent)
	assert.Zero(t, f.store.saves, "a clean tick must not write the data file")
}

func TestTickSendsDueNotificationOnce(t *testing.T) {
	f := newFixture(t)
	f.create(t, "hvac", 1)

	f.advance(24*time.Hour + time.Second)
	f.sched.tick()

	require.Len(t, f.dispatcher.sent, 1)
	n := f.dispatcher.sent[0]
	assert.Equal(t, KindDue, n.Kind)
	assert.Equal(t, testGuild, n.GuildID)
	assert.Equal(t, "hvac", n.Timer.Name)

	got, ok := f.registry.Get(testGuild, "hvac")
	require.True(t, ok)
	assert.True(t, got.IsPending)
	require.NotNil(t, got.LastReminded)
	assert.True(t, got.LastReminded.Equal(f.now))
	assert.Equal(t, 1, f.store.saves)

	// The very next tick is quiet: pending, but the repeat cadence has
	// not elapsed.
	f.advance(time.Minute)
	f.sched.tick()
	assert.Len(t, f.dispatcher.sent, 1)
	assert.Equal(t, 1, f.store.saves)
}

func TestTickSendsRepeatReminderOnCadence(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, "hvac", 1)

	f.advance(24*time.Hour + time.Second)
	f.sched.tick()
	require.Len(t, f.dispatcher.sent, 1)

	f.advance(8 * 24 * time.Hour) // past the 7-day repeat cadence
	f.sched.tick()

	require.Len(t, f.dispatcher.sent, 2)
	n := f.dispatcher.sent[1]
	assert.Equal(t, KindRepeat, n.Kind)
	assert.Equal(t, 7, n.RepeatDays)

	got, ok := f.registry.Get(testGuild, "hvac")
	require.True(t, ok)
	assert.True(t, got.IsPending, "only mark done leaves the pending state")
	assert.True(t, got.LastReminded.Equal(f.now))
	require.NotNil(t, got.NextDue)
	assert.True(t, got.NextDue.Equal(*created.NextDue), "pending timers keep the original due date")
	assert.Equal(t, 2, f.store.saves)
}

func TestMarkDoneAfterPendingResetsCycle(t *testing.T) {
	f := newFixture(t)
	f.create(t, "hvac", 1)

	f.advance(24*time.Hour + time.Second)
	f.sched.tick()

	done, err := f.registry.MarkDone(testGuild, "hvac")
	require.NoError(t, err)
	assert.False(t, done.IsPending)
	assert.Nil(t, done.LastReminded)

	// Back in the scheduled state: nothing fires until the new due date.
	f.advance(time.Minute)
	f.sched.tick()
	assert.Len(t, f.dispatcher.sent, 1)
}

func TestUnresolvableChannelSkipsTimerWithoutMutation(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, "hvac", 1)
	f.dispatcher.unresolvable[testChannel] = true

	f.advance(48 * time.Hour)
	f.sched.tick()

	assert.Empty(t, f.dispatcher.sent)
	got, ok := f.registry.Get(testGuild, "hvac")
	require.True(t, ok)
	assert.Equal(t, created, got, "an unresolvable channel must not change timer state")
	assert.Zero(t, f.store.saves)

	// Channel comes back, the same check finally fires.
	f.dispatcher.unresolvable[testChannel] = false
	f.sched.tick()
	assert.Len(t, f.dispatcher.sent, 1)
}

func TestForbiddenSendLeavesStateForRetry(t *testing.T) {
	f := newFixture(t)
	f.create(t, "hvac", 1)
	f.dispatcher.sendErr["hvac"] = ErrForbidden

	f.advance(48 * time.Hour)
	f.sched.tick()

	got, ok := f.registry.Get(testGuild, "hvac")
	require.True(t, ok)
	assert.False(t, got.IsPending, "a failed send must not count as delivered")
	assert.Zero(t, f.store.saves)

	// Permission restored: next tick retries the same transition.
	delete(f.dispatcher.sendErr, "hvac")
	f.sched.tick()
	require.Len(t, f.dispatcher.sent, 1)
	got, _ = f.registry.Get(testGuild, "hvac")
	assert.True(t, got.IsPending)
}

func TestOneTimerFailureDoesNotHaltTheTick(t *testing.T) {
	f := newFixture(t)
	f.create(t, "aaa-breaks", 1)
	f.create(t, "zzz-works", 1)
	f.dispatcher.panicOn = "aaa-breaks"

	f.advance(48 * time.Hour)
	f.sched.tick()

	require.Len(t, f.dispatcher.sent, 1, "the healthy timer must still be notified")
	assert.Equal(t, "zzz-works", f.dispatcher.sent[0].Timer.Name)

	broken, _ := f.registry.Get(testGuild, "aaa-breaks")
	assert.False(t, broken.IsPending)
	healthy, _ := f.registry.Get(testGuild, "zzz-works")
	assert.True(t, healthy.IsPending)
	assert.Equal(t, 1, f.store.saves, "changes from the surviving timers are still persisted")
}

func TestTimerDeletedMidSnapshotIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.create(t, "hvac", 1)
	f.advance(48 * time.Hour)

	// Delete after the snapshot would have included it: simulate by
	// deleting before the tick runs; the key snapshot inside tick simply
	// no longer finds it.
	require.NoError(t, f.registry.Delete(testGuild, "hvac"))
	f.sched.tick()

	assert.Empty(t, f.dispatcher.sent)
	assert.Zero(t, f.store.saves)
}

func TestTickBatchesAllChangesIntoOneSave(t *testing.T) {
	f := newFixture(t)
	f.create(t, "one", 1)
	f.create(t, "two", 1)
	f.create(t, "three", 1)

	f.advance(48 * time.Hour)
	f.sched.tick()

	assert.Len(t, f.dispatcher.sent, 3)
	assert.Equal(t, 1, f.store.saves)
}

func TestFailedSaveDoesNotLoseMemoryState(t *testing.T) {
	f := newFixture(t)
	f.create(t, "hvac", 1)
	f.store.err = errors.New("disk full")

	f.advance(48 * time.Hour)
	f.sched.tick()

	got, ok := f.registry.Get(testGuild, "hvac")
	require.True(t, ok)
	assert.True(t, got.IsPending, "memory stays authoritative when the save fails")
	assert.Equal(t, 1, f.store.saves)
}
