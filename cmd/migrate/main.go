// Command migrate converts a data file written by the legacy Python bot
// into the current format: numeric channel ids become strings and naive
// UTC timestamps gain an explicit zone. The output is written through the
// regular store so it is guaranteed to load cleanly.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"maintbot/internal/store"
	"maintbot/internal/timer"
)

type legacyDocument struct {
	GlobalSettings struct {
		ReminderRepeatDays int `json:"reminder_repeat_days"`
	} `json:"global_settings"`
	Timers map[string]map[string]legacyTimer `json:"timers"`
}

type legacyTimer struct {
	Name          string          `json:"name"`
	IntervalValue int             `json:"interval_value"`
	IntervalUnit  string          `json:"interval_unit"`
	Description   string          `json:"description"`
	Owner         string          `json:"owner"`
	ChannelID     json.RawMessage `json:"channel_id"`
	NextDue       *string         `json:"next_due"`
	IsPending     bool            `json:"is_pending"`
	LastReminded  *string         `json:"last_reminded"`
}

func main() {
	in := flag.String("in", "maintenancebot_data.json", "legacy data file to read")
	out := flag.String("out", "data/maintbot_data.json", "data file to write")
	flag.Parse()

	zlog, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zlog.Sync()

	raw, err := os.ReadFile(*in)
	if err != nil {
		zlog.Fatal("failed to read legacy file", zap.String("path", *in), zap.Error(err))
	}
	var doc legacyDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		zlog.Fatal("legacy file is not valid JSON", zap.String("path", *in), zap.Error(err))
	}

	settings := timer.Settings{ReminderRepeatDays: doc.GlobalSettings.ReminderRepeatDays}
	if settings.ReminderRepeatDays <= 0 {
		settings.ReminderRepeatDays = 7
	}

	timers := make(map[string]map[string]timer.Timer, len(doc.Timers))
	for guildID, guild := range doc.Timers {
		timers[guildID] = make(map[string]timer.Timer, len(guild))
		for name, lt := range guild {
			unit, err := timer.ParseUnit(lt.IntervalUnit)
			if err != nil {
				zlog.Warn("unknown interval unit, defaulting to days",
					zap.String("timer", name), zap.String("unit", lt.IntervalUnit))
				unit = timer.UnitDays
			}
			t := timer.Timer{
				Name:          lt.Name,
				IntervalValue: lt.IntervalValue,
				IntervalUnit:  unit,
				Description:   lt.Description,
				Owner:         lt.Owner,
				ChannelID:     channelID(lt.ChannelID),
				NextDue:       parseLegacyTime(zlog, name, lt.NextDue),
				IsPending:     lt.IsPending,
				LastReminded:  parseLegacyTime(zlog, name, lt.LastReminded),
			}
			if t.Name == "" {
				t.Name = name
			}
			timers[guildID][name] = t
		}
	}

	st := store.New(*out, zlog)
	if err := st.Save(settings, timers); err != nil {
		zlog.Fatal("failed to write migrated file", zap.Error(err))
	}
	zlog.Info("migration complete",
		zap.String("in", *in), zap.String("out", *out), zap.Int("guilds", len(timers)))
}

// channelID accepts the legacy numeric form as well as a string.
func channelID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return strings.Trim(string(raw), `"`)
}

// parseLegacyTime handles Python's naive isoformat (no zone, implicitly
// UTC) alongside RFC 3339.
func parseLegacyTime(zlog *zap.Logger, name string, raw *string) *time.Time {
	if raw == nil || *raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, *raw); err == nil {
			utc := ts.UTC()
			return &utc
		}
	}
	zlog.Warn("unparseable timestamp, treating as unset",
		zap.String("timer", name), zap.String("value", *raw))
	return nil
}
