// Package store persists the full bot state as a single JSON document.
//
// The whole state is rewritten on every save and fully reloaded at startup;
// there is no incremental persistence. Load never fails outward: every
// malformed piece degrades to a default with a logged warning, so a damaged
// data file can cost individual fields but never the process.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"maintbot/internal/timer"
)

// Store reads and writes the bot data file.
type Store struct {
	path string
	log  *zap.Logger
}

func New(path string, log *zap.Logger) *Store {
	return &Store{path: path, log: log}
}

// Path returns the location of the data file.
func (s *Store) Path() string {
	return s.path
}

type document struct {
	GlobalSettings settingsDoc                    `json:"global_settings"`
	Timers         map[string]map[string]timerDoc `json:"timers"`
}

type settingsDoc struct {
	ReminderRepeatDays int `json:"reminder_repeat_days"`
}

type timerDoc struct {
	Name          string  `json:"name"`
	IntervalValue int     `json:"interval_value"`
	IntervalUnit  string  `json:"interval_unit"`
	Description   string  `json:"description"`
	Owner         string  `json:"owner"`
	ChannelID     string  `json:"channel_id"`
	NextDue       *string `json:"next_due"`
	IsPending     bool    `json:"is_pending"`
	LastReminded  *string `json:"last_reminded"`
}

// Save writes the full state atomically: the document goes to a temp file
// in the same directory, then replaces the data file by rename. A failed
// save leaves the previous file intact; the in-memory state stays the
// source of truth until the next successful write.
func (s *Store) Save(settings timer.Settings, timers map[string]map[string]timer.Timer) error {
	doc := document{
		GlobalSettings: settingsDoc{ReminderRepeatDays: settings.ReminderRepeatDays},
		Timers:         make(map[string]map[string]timerDoc, len(timers)),
	}
	for guildID, guild := range timers {
		doc.Timers[guildID] = make(map[string]timerDoc, len(guild))
		for name, t := range guild {
			doc.Timers[guildID][name] = timerDoc{
				Name:          t.Name,
				IntervalValue: t.IntervalValue,
				IntervalUnit:  string(t.IntervalUnit),
				Description:   t.Description,
				Owner:         t.Owner,
				ChannelID:     t.ChannelID,
				NextDue:       formatTimestamp(t.NextDue),
				IsPending:     t.IsPending,
				LastReminded:  formatTimestamp(t.LastReminded),
			}
		}
	}

	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		s.log.Error("failed to serialize data file", zap.Error(err))
		return fmt.Errorf("serializing state: %w", err)
	}

	if err := s.writeAtomic(data); err != nil {
		s.log.Error("failed to write data file", zap.String("path", s.path), zap.Error(err))
		return fmt.Errorf("writing %s: %w", s.path, err)
	}
	s.log.Debug("data saved", zap.String("path", s.path))
	return nil
}

func (s *Store) writeAtomic(data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// Load reads the data file and returns the settings and timers. It always
// succeeds: a missing file yields the supplied defaults and no timers, an
// unreadable or unparseable file falls back to defaults, a guild block with
// a non-snowflake key is skipped, and an unparseable timestamp becomes an
// unset one.
func (s *Store) Load(defaults timer.Settings) (timer.Settings, map[string]map[string]*timer.Timer) {
	settings := defaults
	timers := make(map[string]map[string]*timer.Timer)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.log.Warn("data file not found, starting with defaults", zap.String("path", s.path))
		} else {
			s.log.Error("failed to read data file, starting with defaults",
				zap.String("path", s.path), zap.Error(err))
		}
		return settings, timers
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.log.Error("data file is malformed, starting with defaults",
			zap.String("path", s.path), zap.Error(err))
		return settings, timers
	}

	if doc.GlobalSettings.ReminderRepeatDays > 0 {
		settings.ReminderRepeatDays = doc.GlobalSettings.ReminderRepeatDays
	}

	for guildID, guild := range doc.Timers {
		if _, err := strconv.ParseUint(guildID, 10, 64); err != nil {
			s.log.Error("invalid guild id in data file, skipping its timers",
				zap.String("guild_id", guildID))
			continue
		}
		timers[guildID] = make(map[string]*timer.Timer, len(guild))
		for name, d := range guild {
			timers[guildID][name] = s.restoreTimer(guildID, name, d)
		}
	}

	s.log.Info("data loaded",
		zap.String("path", s.path),
		zap.Int("guilds", len(timers)),
		zap.Int("reminder_repeat_days", settings.ReminderRepeatDays))
	return settings, timers
}

func (s *Store) restoreTimer(guildID, name string, d timerDoc) *timer.Timer {
	unit, err := timer.ParseUnit(d.IntervalUnit)
	if err != nil {
		s.log.Warn("unknown interval unit in data file, defaulting to days",
			zap.String("guild_id", guildID), zap.String("timer", name),
			zap.String("unit", d.IntervalUnit))
		unit = timer.UnitDays
	}
	t := &timer.Timer{
		Name:          d.Name,
		IntervalValue: d.IntervalValue,
		IntervalUnit:  unit,
		Description:   d.Description,
		Owner:         d.Owner,
		ChannelID:     d.ChannelID,
		IsPending:     d.IsPending,
	}
	if t.Name == "" {
		t.Name = name
	}
	t.NextDue = s.parseTimestamp(guildID, name, "next_due", d.NextDue)
	t.LastReminded = s.parseTimestamp(guildID, name, "last_reminded", d.LastReminded)
	return t
}

func (s *Store) parseTimestamp(guildID, name, field string, raw *string) *time.Time {
	if raw == nil || *raw == "" {
		return nil
	}
	ts, err := time.Parse(time.RFC3339Nano, *raw)
	if err != nil {
		s.log.Warn("unparseable timestamp in data file, treating as unset",
			zap.String("guild_id", guildID), zap.String("timer", name),
			zap.String("field", field), zap.String("value", *raw))
		return nil
	}
	ts = ts.UTC()
	return &ts
}

func formatTimestamp(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := t.UTC().Format(time.RFC3339Nano)
	return &v
}
