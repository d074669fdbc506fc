package timer

import (
	"sort"
	"sync"
	"time"
)

// Key addresses one timer in the registry.
type Key struct {
	GuildID string
	Name    string
}

// Registry is the authoritative in-memory store of all timers plus the
// global settings, keyed guild -> name. It is the single owner of this
// state; command handlers and the due-check loop both go through it.
//
// Mutating operations only change memory. Durability is the caller's job:
// every successful mutation must be followed by a store save.
type Registry struct {
	mu       sync.RWMutex
	timers   map[string]map[string]*Timer
	settings Settings

	now func() time.Time
}

// NewRegistry builds a registry from previously loaded state. timers may be
// nil (first run).
func NewRegistry(settings Settings, timers map[string]map[string]*Timer) *Registry {
	if timers == nil {
		timers = make(map[string]map[string]*Timer)
	}
	return &Registry{
		timers:   timers,
		settings: settings,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the registry's time source. Tests use it to pin due
// date computations to a fixed clock.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// CreateParams are the fields required to create a timer.
type CreateParams struct {
	GuildID       string
	Name          string
	IntervalValue int
	IntervalUnit  Unit
	Owner         string
	Description   string
	ChannelID     string
}

// Create inserts a new timer with its first due date computed from now.
func (r *Registry) Create(p CreateParams) (Timer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if guild, ok := r.timers[p.GuildID]; ok {
		if _, exists := guild[p.Name]; exists {
			return Timer{}, ErrDuplicateName
		}
	}

	due, err := NextDue(p.IntervalValue, p.IntervalUnit, r.now())
	if err != nil {
		return Timer{}, err
	}

	t := &Timer{
		Name:          p.Name,
		IntervalValue: p.IntervalValue,
		IntervalUnit:  p.IntervalUnit,
		Description:   p.Description,
		Owner:         p.Owner,
		ChannelID:     p.ChannelID,
		NextDue:       &due,
		IsPending:     false,
		LastReminded:  nil,
	}
	if r.timers[p.GuildID] == nil {
		r.timers[p.GuildID] = make(map[string]*Timer)
	}
	r.timers[p.GuildID][p.Name] = t
	return *t, nil
}

// EditParams carries a partial update; nil fields are left untouched.
type EditParams struct {
	IntervalValue *int
	IntervalUnit  *Unit
	Owner         *string
	Description   *string
	ChannelID     *string
}

// Edit applies the supplied fields to an existing timer. Changing the
// interval of a non-pending timer restarts its cycle from now; a pending
// timer keeps its original due date so the overdue marker survives.
func (r *Registry) Edit(guildID, name string, p EditParams) (Timer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.lookup(guildID, name)
	if !ok {
		return Timer{}, ErrNotFound
	}

	value := t.IntervalValue
	unit := t.IntervalUnit
	if p.IntervalValue != nil {
		value = *p.IntervalValue
	}
	if p.IntervalUnit != nil {
		unit = *p.IntervalUnit
	}
	intervalChanged := value != t.IntervalValue || unit != t.IntervalUnit

	if intervalChanged && !t.IsPending {
		due, err := NextDue(value, unit, r.now())
		if err != nil {
			return Timer{}, err
		}
		t.NextDue = &due
	} else if intervalChanged {
		// Still validate, so a pending timer cannot end up with a
		// broken interval for its next recompute.
		if _, err := NextDue(value, unit, r.now()); err != nil {
			return Timer{}, err
		}
	}

	t.IntervalValue = value
	t.IntervalUnit = unit
	if p.Owner != nil {
		t.Owner = *p.Owner
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.ChannelID != nil {
		t.ChannelID = *p.ChannelID
	}
	return *t, nil
}

// MarkDone completes the current cycle of a pending timer: the next due
// date is recomputed from now and the pending markers are reset.
func (r *Registry) MarkDone(guildID, name string) (Timer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.lookup(guildID, name)
	if !ok {
		return Timer{}, ErrNotFound
	}
	if !t.IsPending {
		return Timer{}, ErrNotPending
	}

	due, err := NextDue(t.IntervalValue, t.IntervalUnit, r.now())
	if err != nil {
		return Timer{}, err
	}
	t.NextDue = &due
	t.IsPending = false
	t.LastReminded = nil
	return *t, nil
}

// Delete removes a timer; an emptied guild entry is removed with it.
func (r *Registry) Delete(guildID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.lookup(guildID, name); !ok {
		return ErrNotFound
	}
	delete(r.timers[guildID], name)
	if len(r.timers[guildID]) == 0 {
		delete(r.timers, guildID)
	}
	return nil
}

// List returns copies of a guild's timers ordered by next due date, with
// unset due dates last. Ties break on name for stable output.
func (r *Registry) List(guildID string) []Timer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	guild := r.timers[guildID]
	out := make([]Timer, 0, len(guild))
	for _, t := range guild {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].NextDue, out[j].NextDue
		switch {
		case a == nil && b == nil:
			return out[i].Name < out[j].Name
		case a == nil:
			return false
		case b == nil:
			return true
		case a.Equal(*b):
			return out[i].Name < out[j].Name
		default:
			return a.Before(*b)
		}
	})
	return out
}

// Keys returns a snapshot of every timer key. The due-check loop iterates
// this snapshot and re-checks each key on visit, so timers created or
// deleted mid-scan can never corrupt the iteration.
func (r *Registry) Keys() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]Key, 0, len(r.timers))
	for guildID, guild := range r.timers {
		for name := range guild {
			keys = append(keys, Key{GuildID: guildID, Name: name})
		}
	}
	return keys
}

// Get returns a copy of one timer, reporting whether it still exists.
func (r *Registry) Get(guildID, name string) (Timer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.lookup(guildID, name)
	if !ok {
		return Timer{}, false
	}
	return *t, true
}

// MarkPending flips a timer into the pending state after its "due"
// notification went out. Returns false if the timer vanished in between.
func (r *Registry) MarkPending(guildID, name string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.lookup(guildID, name)
	if !ok {
		return false
	}
	t.IsPending = true
	reminded := now
	t.LastReminded = &reminded
	return true
}

// MarkReminded records a repeat reminder for a timer that stays pending.
// Returns false if the timer vanished in between.
func (r *Registry) MarkReminded(guildID, name string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.lookup(guildID, name)
	if !ok {
		return false
	}
	reminded := now
	t.LastReminded = &reminded
	return true
}

// ReminderRepeatDays returns the global pending-reminder cadence.
func (r *Registry) ReminderRepeatDays() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.settings.ReminderRepeatDays
}

// SetReminderRepeatDays updates the global pending-reminder cadence.
func (r *Registry) SetReminderRepeatDays(days int) error {
	if days <= 0 {
		return ErrInvalidInterval
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings.ReminderRepeatDays = days
	return nil
}

// Export deep-copies the full state for persistence.
func (r *Registry) Export() (Settings, map[string]map[string]Timer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	timers := make(map[string]map[string]Timer, len(r.timers))
	for guildID, guild := range r.timers {
		timers[guildID] = make(map[string]Timer, len(guild))
		for name, t := range guild {
			c := *t
			if t.NextDue != nil {
				due := *t.NextDue
				c.NextDue = &due
			}
			if t.LastReminded != nil {
				reminded := *t.LastReminded
				c.LastReminded = &reminded
			}
			timers[guildID][name] = c
		}
	}
	return r.settings, timers
}

// lookup must be called with the mutex held.
func (r *Registry) lookup(guildID, name string) (*Timer, bool) {
	guild, ok := r.timers[guildID]
	if !ok {
		return nil, false
	}
	t, ok := guild[name]
	return t, ok
}
