package transform

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/SumanthReddy1234/datalakes/internal/model"
	"github.com/SumanthReddy1234/datalakes/internal/rows"
)

// PlaybackPage is the page value marking a song playback.
const PlaybackPage = "NextSong"

// Causes carried by TimestampError.Err.
var (
	// ErrMissingTimestamp means ts was null or blank.
	ErrMissingTimestamp = errors.New("missing timestamp")
	// ErrBadTimestamp means ts was present but not a finite number.
	ErrBadTimestamp = errors.New("non-numeric timestamp")
)

// TimestampError names the record whose ts could not be converted.
type TimestampError struct {
	Source string
	Line   int
	Value  any
	Err    error
}

func (e *TimestampError) Error() string {
	return fmt.Sprintf("transform: %s:%d: ts=%v: %v", e.Source, e.Line, e.Value, e.Err)
}

func (e *TimestampError) Unwrap() error { return e.Err }

// FilterPlayback keeps the events whose page equals page, in order.
func FilterPlayback(events []model.Event, page string) []model.Event {
	out := make([]model.Event, 0, len(events))
	for _, e := range events {
		if e.Page != nil && *e.Page == page {
			out = append(out, e)
		}
	}
	return out
}

// Users projects playback events onto the users table, one row per event.
// distinct collapses identical rows.
func Users(plays []model.Event, distinct bool) []model.UserRow {
	out := make([]model.UserRow, 0, len(plays))
	for _, e := range plays {
		out = append(out, model.UserRow{
			UserID:    e.UserID,
			FirstName: e.FirstName,
			LastName:  e.LastName,
			Gender:    e.Gender,
			Level:     e.Level,
		})
	}
	if distinct {
		out = rows.Distinct(out, func(r model.UserRow) []any { return r.Values() })
	}
	return out
}

// Play is a playback event with its converted timestamp fields.
type Play struct {
	model.Event
	// EpochSeconds is ts/1000, truncated.
	EpochSeconds int64
	// StartTime is ts as a UTC instant with millisecond precision.
	StartTime time.Time
}

// EpochMillis converts a raw ts value to epoch milliseconds. Integral JSON
// numbers, integral floats and numeric strings are accepted.
func EpochMillis(v any) (int64, error) {
	switch t := v.(type) {
	case nil:
		return 0, ErrMissingTimestamp
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, nil
		}
		f, err := t.Float64()
		if err != nil {
			return 0, ErrBadTimestamp
		}
		return EpochMillis(f)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, ErrMissingTimestamp
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, ErrBadTimestamp
		}
		return EpochMillis(f)
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) || t < math.MinInt64 || t >= math.MaxInt64 {
			return 0, ErrBadTimestamp
		}
		return int64(t), nil
	case int64:
		return t, nil
	default:
		return 0, ErrBadTimestamp
	}
}

// Timestamps converts every play's ts. The first unconvertible ts aborts with
// a *TimestampError.
func Timestamps(plays []model.Event) ([]Play, error) {
	out := make([]Play, 0, len(plays))
	for _, e := range plays {
		ms, err := EpochMillis(e.TS)
		if err != nil {
			return nil, &TimestampError{Source: e.Source, Line: e.Line, Value: e.TS, Err: err}
		}
		out = append(out, Play{
			Event:        e,
			EpochSeconds: ms / 1000,
			StartTime:    time.UnixMilli(ms).UTC(),
		})
	}
	return out, nil
}

// EpochRange returns the smallest and largest EpochSeconds among plays.
// ok is false when plays is empty.
func EpochRange(plays []Play) (lo, hi int64, ok bool) {
	for i, p := range plays {
		if i == 0 || p.EpochSeconds < lo {
			lo = p.EpochSeconds
		}
		if i == 0 || p.EpochSeconds > hi {
			hi = p.EpochSeconds
		}
	}
	return lo, hi, len(plays) > 0
}

// TimeOf decomposes a start time.
func TimeOf(t time.Time) model.TimeRow {
	t = t.UTC()
	_, week := t.ISOWeek()
	return model.TimeRow{
		StartTime: t,
		Hour:      int32(t.Hour()),
		Day:       int32(t.Day()),
		Week:      int32(week),
		Weekday:   int32((t.Weekday() + 6) % 7),
		Year:      int32(t.Year()),
		Month:     int32(t.Month()),
	}
}

// Times builds one time row per distinct start time, in first-seen order.
func Times(plays []Play) []model.TimeRow {
	seen := make(map[int64]struct{}, len(plays))
	out := make([]model.TimeRow, 0, len(plays))
	for _, p := range plays {
		ms := p.StartTime.UnixMilli()
		if _, dup := seen[ms]; dup {
			continue
		}
		seen[ms] = struct{}{}
		out = append(out, TimeOf(p.StartTime))
	}
	return out
}

// JoinStats summarizes the title join.
type JoinStats struct {
	Events  int // plays offered to the join
	Matched int // plays with at least one catalog match
	Dropped int // plays with none
	Rows    int // songplays produced
}

// Songplays inner-joins plays to the catalog on exact title equality. A null
// title never matches. Every catalog song sharing the title yields a row, in
// catalog order. Ids are assigned sequentially from 0 in output order.
func Songplays(plays []Play, catalog []model.Song) ([]model.SongplayRow, JoinStats) {
	byTitle := make(map[string][]*model.Song, len(catalog))
	for i := range catalog {
		s := &catalog[i]
		if s.Title == nil {
			continue
		}
		byTitle[*s.Title] = append(byTitle[*s.Title], s)
	}

	st := JoinStats{Events: len(plays)}
	out := make([]model.SongplayRow, 0, len(plays))
	for _, p := range plays {
		var matches []*model.Song
		if p.Song != nil {
			matches = byTitle[*p.Song]
		}
		if len(matches) == 0 {
			st.Dropped++
			continue
		}
		st.Matched++

		t := TimeOf(p.StartTime)
		for _, s := range matches {
			out = append(out, model.SongplayRow{
				SongplayID: int64(len(out)),
				StartTime:  p.StartTime,
				UserID:     p.UserID,
				Level:      p.Level,
				SongID:     s.SongID,
				SessionID:  p.SessionID,
				Location:   p.Location,
				UserAgent:  p.UserAgent,
				Year:       t.Year,
				Month:      t.Month,
			})
		}
	}
	st.Rows = len(out)
	return out, st
}
