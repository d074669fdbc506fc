// Package scheduler runs the periodic due-check over all maintenance
// timers. Each tick scans a snapshot of the registry, sends "due" and
// "still pending" notifications through a Dispatcher, and persists the
// batch of state changes once at the end of the tick.
package scheduler

import (
	"context"
	"errors"
	"runtime"
	"time"

	"go.uber.org/zap"

	"maintbot/internal/timer"
)

// Kind distinguishes the two notification flavours.
type Kind int

const (
	// KindDue is the first notification of a cycle, sent when the due
	// instant passes.
	KindDue Kind = iota
	// KindRepeat nags about a timer that is still pending, repeated on
	// the global cadence until someone marks it done.
	KindRepeat
)

// Notification is everything the dispatcher needs to render a reminder.
type Notification struct {
	Kind       Kind
	GuildID    string
	Timer      timer.Timer
	RepeatDays int
	Now        time.Time
}

// Dispatcher delivers notifications to a channel. The bot layer implements
// it on top of the chat platform.
type Dispatcher interface {
	// ResolveChannel reports whether the channel can currently be
	// delivered to. ErrChannelNotFound means the channel is gone or
	// unknown right now; the timer is left alone and retried next tick.
	ResolveChannel(channelID string) error
	// Send delivers one notification. ErrForbidden means the bot lacks
	// permission in that channel.
	Send(channelID string, n Notification) error
}

var (
	ErrChannelNotFound = errors.New("channel not found")
	ErrForbidden       = errors.New("missing permission to send to channel")
)

// Store persists the full state. Satisfied by *store.Store.
type Store interface {
	Save(settings timer.Settings, timers map[string]map[string]timer.Timer) error
}

// Scheduler is the periodic due-check loop.
type Scheduler struct {
	registry   *timer.Registry
	store      Store
	dispatcher Dispatcher
	log        *zap.Logger
	interval   time.Duration

	now func() time.Time
}

func New(registry *timer.Registry, store Store, dispatcher Dispatcher, log *zap.Logger, interval time.Duration) *Scheduler {
	return &Scheduler{
		registry:   registry,
		store:      store,
		dispatcher: dispatcher,
		log:        log,
		interval:   interval,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run executes ticks on the configured period until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("due-check loop started", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("due-check loop stopping")
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick scans every timer once. State is only advanced after a timer's own
// notification went out, so an interrupted or partially failed tick is
// always consistent. All changes from one tick are saved in a single write.
func (s *Scheduler) tick() {
	now := s.now()
	repeatDays := s.registry.ReminderRepeatDays()

	dirty := false
	for _, key := range s.registry.Keys() {
		if s.checkTimer(key, now, repeatDays) {
			dirty = true
		}
	}

	if !dirty {
		return
	}
	settings, timers := s.registry.Export()
	if err := s.store.Save(settings, timers); err != nil {
		// Memory stays authoritative; the next dirty tick retries.
		s.log.Error("failed to persist state after tick", zap.Error(err))
	}
}

// checkTimer evaluates one timer and reports whether its state changed.
// Any failure is contained here: one broken timer never stops the scan.
func (s *Scheduler) checkTimer(key timer.Key, now time.Time, repeatDays int) (changed bool) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			s.log.Error("panic while processing timer",
				zap.String("guild_id", key.GuildID),
				zap.String("timer", key.Name),
				zap.Any("panic", r),
				zap.ByteString("stack", buf[:n]))
			changed = false
		}
	}()

	t, ok := s.registry.Get(key.GuildID, key.Name)
	if !ok {
		// Deleted between snapshot and visit.
		return false
	}

	if err := s.dispatcher.ResolveChannel(t.ChannelID); err != nil {
		s.log.Warn("channel unavailable, skipping timer this tick",
			zap.String("guild_id", key.GuildID),
			zap.String("timer", t.Name),
			zap.String("channel_id", t.ChannelID),
			zap.Error(err))
		return false
	}

	switch {
	case !t.IsPending && t.NextDue != nil && !now.Before(*t.NextDue):
		return s.notify(key, t, Notification{
			Kind:       KindDue,
			GuildID:    key.GuildID,
			Timer:      t,
			RepeatDays: repeatDays,
			Now:        now,
		})

	case t.IsPending && t.LastReminded != nil:
		nextReminder := t.LastReminded.Add(time.Duration(repeatDays) * 24 * time.Hour)
		if now.Before(nextReminder) {
			return false
		}
		return s.notify(key, t, Notification{
			Kind:       KindRepeat,
			GuildID:    key.GuildID,
			Timer:      t,
			RepeatDays: repeatDays,
			Now:        now,
		})
	}
	return false
}

func (s *Scheduler) notify(key timer.Key, t timer.Timer, n Notification) bool {
	if err := s.dispatcher.Send(t.ChannelID, n); err != nil {
		// Not advancing state means the same check fires again next
		// tick, which is the retry mechanism.
		if errors.Is(err, ErrForbidden) {
			s.log.Error("no permission to send reminder",
				zap.String("guild_id", key.GuildID),
				zap.String("timer", t.Name),
				zap.String("channel_id", t.ChannelID))
		} else {
			s.log.Error("failed to send reminder",
				zap.String("guild_id", key.GuildID),
				zap.String("timer", t.Name),
				zap.String("channel_id", t.ChannelID),
				zap.Error(err))
		}
		return false
	}

	switch n.Kind {
	case KindDue:
		s.log.Info("timer due, sent initial reminder",
			zap.String("guild_id", key.GuildID),
			zap.String("timer", t.Name),
			zap.String("channel_id", t.ChannelID))
		return s.registry.MarkPending(key.GuildID, key.Name, n.Now)
	case KindRepeat:
		s.log.Info("timer still pending, sent repeat reminder",
			zap.String("guild_id", key.GuildID),
			zap.String("timer", t.Name),
			zap.String("channel_id", t.ChannelID))
		return s.registry.MarkReminded(key.GuildID, key.Name, n.Now)
	}
	return false
}
