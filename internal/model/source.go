// Package model holds the typed records the ETL moves around: raw catalog and
// event records as read from the source, and one row type per output table.
package model

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/SumanthReddy1234/datalakes/internal/rows"
)

// Logical field names of a song catalog record. They double as the default
// JSON keys.
const (
	SongFieldSongID          = "song_id"
	SongFieldTitle           = "title"
	SongFieldArtistID        = "artist_id"
	SongFieldArtistName      = "artist_name"
	SongFieldArtistLocation  = "artist_location"
	SongFieldArtistLatitude  = "artist_latitude"
	SongFieldArtistLongitude = "artist_longitude"
	SongFieldYear            = "year"
	SongFieldDuration        = "duration"
	SongFieldNumSongs        = "num_songs"
)

// SongFields lists the logical catalog fields in decode order.
var SongFields = []string{
	SongFieldSongID, SongFieldTitle, SongFieldArtistID, SongFieldArtistName,
	SongFieldArtistLocation, SongFieldArtistLatitude, SongFieldArtistLongitude,
	SongFieldYear, SongFieldDuration, SongFieldNumSongs,
}

// Logical field names of an event log record.
const (
	EventFieldArtist        = "artist"
	EventFieldAuth          = "auth"
	EventFieldFirstName     = "firstName"
	EventFieldGender        = "gender"
	EventFieldItemInSession = "itemInSession"
	EventFieldLastName      = "lastName"
	EventFieldLength        = "length"
	EventFieldLevel         = "level"
	EventFieldLocation      = "location"
	EventFieldMethod        = "method"
	EventFieldPage          = "page"
	EventFieldRegistration  = "registration"
	EventFieldSessionID     = "sessionId"
	EventFieldSong          = "song"
	EventFieldStatus        = "status"
	EventFieldTS            = "ts"
	EventFieldUserAgent     = "userAgent"
	EventFieldUserID        = "userId"
)

// EventFields lists the logical event fields in decode order.
var EventFields = []string{
	EventFieldArtist, EventFieldAuth, EventFieldFirstName, EventFieldGender,
	EventFieldItemInSession, EventFieldLastName, EventFieldLength, EventFieldLevel,
	EventFieldLocation, EventFieldMethod, EventFieldPage, EventFieldRegistration,
	EventFieldSessionID, EventFieldSong, EventFieldStatus, EventFieldTS,
	EventFieldUserAgent, EventFieldUserID,
}

// Song is one catalog record. Absent or mistyped fields are nil.
type Song struct {
	SongID          *string
	Title           *string
	ArtistID        *string
	ArtistName      *string
	ArtistLocation  *string
	ArtistLatitude  *float64
	ArtistLongitude *float64
	Year            *int64
	Duration        *float64
	NumSongs        *int64

	Source string
	Line   int
}

// Event is one log record. TS keeps the raw decoded value so the timestamp
// conversion can tell a missing value from a malformed one.
type Event struct {
	Artist        *string
	Auth          *string
	FirstName     *string
	Gender        *string
	ItemInSession *int64
	LastName      *string
	Length        *float64
	Level         *string
	Location      *string
	Method        *string
	Page          *string
	Registration  *float64
	SessionID     *int64
	Song          *string
	Status        *int64
	TS            any
	UserAgent     *string
	UserID        *string

	Source string
	Line   int
}

// SongFromRow decodes a row aligned to SongFields.
func SongFromRow(r *rows.Row) Song {
	v := r.V
	return Song{
		SongID:          AsString(v[0]),
		Title:           AsString(v[1]),
		ArtistID:        AsString(v[2]),
		ArtistName:      AsString(v[3]),
		ArtistLocation:  AsString(v[4]),
		ArtistLatitude:  AsFloat64(v[5]),
		ArtistLongitude: AsFloat64(v[6]),
		Year:            AsInt64(v[7]),
		Duration:        AsFloat64(v[8]),
		NumSongs:        AsInt64(v[9]),
		Source:          r.Source,
		Line:            r.Line,
	}
}

// EventFromRow decodes a row aligned to EventFields.
func EventFromRow(r *rows.Row) Event {
	v := r.V
	return Event{
		Artist:        AsString(v[0]),
		Auth:          AsString(v[1]),
		FirstName:     AsString(v[2]),
		Gender:        AsString(v[3]),
		ItemInSession: AsInt64(v[4]),
		LastName:      AsString(v[5]),
		Length:        AsFloat64(v[6]),
		Level:         AsString(v[7]),
		Location:      AsString(v[8]),
		Method:        AsString(v[9]),
		Page:          AsString(v[10]),
		Registration:  AsFloat64(v[11]),
		SessionID:     AsInt64(v[12]),
		Song:          AsString(v[13]),
		Status:        AsInt64(v[14]),
		TS:            v[15],
		UserAgent:     AsString(v[16]),
		UserID:        AsString(v[17]),
		Source:        r.Source,
		Line:          r.Line,
	}
}

// HeaderMap turns a logical->raw key override map into the raw->column form
// the JSON parser expects. Entries mapping a field to itself are dropped.
func HeaderMap(overrides map[string]string) map[string]string {
	out := make(map[string]string, len(overrides))
	for logical, raw := range overrides {
		if raw == "" || raw == logical {
			continue
		}
		out[raw] = logical
	}
	return out
}

// AsString coerces a decoded JSON value to a string. Numbers keep their
// literal text; objects and arrays are nil.
func AsString(v any) *string {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	case bool:
		s = strconv.FormatBool(t)
	case float64:
		s = strconv.FormatFloat(t, 'g', -1, 64)
	case int64:
		s = strconv.FormatInt(t, 10)
	default:
		return nil
	}
	return &s
}

// AsInt64 coerces numbers and numeric strings. Integral floats are accepted;
// fractional or non-finite values are nil.
func AsInt64(v any) *int64 {
	var n int64
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			n = i
			break
		}
		f, err := t.Float64()
		if err != nil {
			return nil
		}
		return AsInt64(f)
	case string:
		return AsInt64(json.Number(strings.TrimSpace(t)))
	case int64:
		n = t
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) || t != math.Trunc(t) ||
			t < math.MinInt64 || t >= math.MaxInt64 {
			return nil
		}
		n = int64(t)
	default:
		return nil
	}
	return &n
}

// AsFloat64 coerces numbers and numeric strings. Non-finite values are nil.
func AsFloat64(v any) *float64 {
	var f float64
	switch t := v.(type) {
	case json.Number:
		x, err := t.Float64()
		if err != nil {
			return nil
		}
		f = x
	case string:
		x, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil
		}
		f = x
	case float64:
		f = t
	case int64:
		f = float64(t)
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// Str returns *p or "" for nil. Convenience for logs and tests.
func Str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
