package model

import (
	"strconv"
	"time"
)

// Default output table names.
const (
	TableSongs     = "songs"
	TableArtists   = "artists"
	TableUsers     = "users"
	TableTime      = "time"
	TableSongplays = "songplays"
)

// ColumnType is the logical type of an output column. Backends map it to
// their own physical types.
type ColumnType string

const (
	TypeText      ColumnType = "text"
	TypeBigint    ColumnType = "bigint"
	TypeInt       ColumnType = "int"
	TypeDouble    ColumnType = "double"
	TypeTimestamp ColumnType = "timestamp"
)

type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
}

// TableDef describes an output table. Columns are in Values() order: stored
// columns first, then the PartitionBy columns.
type TableDef struct {
	Name        string
	Columns     []Column
	PartitionBy []string
	// NewFile returns a pointer to the struct written to Parquet part files.
	NewFile func() any
}

// StoredColumns returns the columns kept inside the Parquet files.
func (d TableDef) StoredColumns() []Column {
	return d.Columns[:len(d.Columns)-len(d.PartitionBy)]
}

// ColumnNames returns every column name in Values() order.
func (d TableDef) ColumnNames() []string {
	out := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		out[i] = c.Name
	}
	return out
}

// WithName returns a copy of d under another table name.
func (d TableDef) WithName(name string) TableDef {
	if name != "" {
		d.Name = name
	}
	return d
}

// Row is implemented by every output row type.
type Row interface {
	// PartitionValues returns one entry per TableDef.PartitionBy column; nil
	// marks a null partition value.
	PartitionValues() []*string
	// FileRecord returns the value written to Parquet.
	FileRecord() any
	// Values returns every column value, nil for nulls.
	Values() []any
}

// ---- songs ----

var SongsDef = TableDef{
	Name: TableSongs,
	Columns: []Column{
		{"song_id", TypeText, true},
		{"title", TypeText, true},
		{"duration", TypeDouble, true},
		{"year", TypeBigint, true},
		{"artist_id", TypeText, true},
	},
	PartitionBy: []string{"year", "artist_id"},
	NewFile:     func() any { return new(SongFile) },
}

type SongRow struct {
	SongID   *string
	Title    *string
	Duration *float64
	Year     *int64
	ArtistID *string
}

type SongFile struct {
	SongID   *string  `parquet:"name=song_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Title    *string  `parquet:"name=title, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Duration *float64 `parquet:"name=duration, type=DOUBLE, repetitiontype=OPTIONAL"`
}

func (r SongRow) PartitionValues() []*string {
	return []*string{int64Text(r.Year), r.ArtistID}
}

func (r SongRow) FileRecord() any {
	return SongFile{SongID: r.SongID, Title: r.Title, Duration: r.Duration}
}

func (r SongRow) Values() []any {
	return []any{deref(r.SongID), deref(r.Title), deref(r.Duration), deref(r.Year), deref(r.ArtistID)}
}

// ---- artists ----

var ArtistsDef = TableDef{
	Name: TableArtists,
	Columns: []Column{
		{"artist_id", TypeText, true},
		{"name", TypeText, true},
		{"location", TypeText, true},
		{"latitude", TypeDouble, true},
		{"longitude", TypeDouble, true},
	},
	NewFile: func() any { return new(ArtistRow) },
}

type ArtistRow struct {
	ArtistID  *string  `parquet:"name=artist_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Name      *string  `parquet:"name=name, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Location  *string  `parquet:"name=location, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Latitude  *float64 `parquet:"name=latitude, type=DOUBLE, repetitiontype=OPTIONAL"`
	Longitude *float64 `parquet:"name=longitude, type=DOUBLE, repetitiontype=OPTIONAL"`
}

func (r ArtistRow) PartitionValues() []*string { return nil }
func (r ArtistRow) FileRecord() any            { return r }

func (r ArtistRow) Values() []any {
	return []any{deref(r.ArtistID), deref(r.Name), deref(r.Location), deref(r.Latitude), deref(r.Longitude)}
}

// ---- users ----

var UsersDef = TableDef{
	Name: TableUsers,
	Columns: []Column{
		{"user_id", TypeText, true},
		{"first_name", TypeText, true},
		{"last_name", TypeText, true},
		{"gender", TypeText, true},
		{"level", TypeText, true},
	},
	NewFile: func() any { return new(UserRow) },
}

type UserRow struct {
	UserID    *string `parquet:"name=user_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	FirstName *string `parquet:"name=first_name, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	LastName  *string `parquet:"name=last_name, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Gender    *string `parquet:"name=gender, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Level     *string `parquet:"name=level, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
}

func (r UserRow) PartitionValues() []*string { return nil }
func (r UserRow) FileRecord() any            { return r }

func (r UserRow) Values() []any {
	return []any{deref(r.UserID), deref(r.FirstName), deref(r.LastName), deref(r.Gender), deref(r.Level)}
}

// ---- time ----

var TimeDef = TableDef{
	Name: TableTime,
	Columns: []Column{
		{"start_time", TypeTimestamp, false},
		{"hour", TypeInt, false},
		{"day", TypeInt, false},
		{"week", TypeInt, false},
		{"weekday", TypeInt, false},
		{"year", TypeInt, false},
		{"month", TypeInt, false},
	},
	PartitionBy: []string{"year", "month"},
	NewFile:     func() any { return new(TimeFile) },
}

// TimeRow decomposes one playback start time. Weekday runs 0=Monday..6=Sunday
// and Week is the ISO-8601 week number.
type TimeRow struct {
	StartTime time.Time
	Hour      int32
	Day       int32
	Week      int32
	Weekday   int32
	Year      int32
	Month     int32
}

type TimeFile struct {
	StartTime int64 `parquet:"name=start_time, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Hour      int32 `parquet:"name=hour, type=INT32"`
	Day       int32 `parquet:"name=day, type=INT32"`
	Week      int32 `parquet:"name=week, type=INT32"`
	Weekday   int32 `parquet:"name=weekday, type=INT32"`
}

func (r TimeRow) PartitionValues() []*string {
	return []*string{int32Text(r.Year), int32Text(r.Month)}
}

func (r TimeRow) FileRecord() any {
	return TimeFile{
		StartTime: r.StartTime.UnixMilli(),
		Hour:      r.Hour,
		Day:       r.Day,
		Week:      r.Week,
		Weekday:   r.Weekday,
	}
}

func (r TimeRow) Values() []any {
	return []any{r.StartTime, r.Hour, r.Day, r.Week, r.Weekday, r.Year, r.Month}
}

// ---- songplays ----

var SongplaysDef = TableDef{
	Name: TableSongplays,
	Columns: []Column{
		{"songplay_id", TypeBigint, false},
		{"start_time", TypeTimestamp, false},
		{"user_id", TypeText, true},
		{"level", TypeText, true},
		{"song_id", TypeText, true},
		{"session_id", TypeBigint, true},
		{"location", TypeText, true},
		{"user_agent", TypeText, true},
		{"year", TypeInt, false},
		{"month", TypeInt, false},
	},
	PartitionBy: []string{"year", "month"},
	NewFile:     func() any { return new(SongplayFile) },
}

type SongplayRow struct {
	SongplayID int64
	StartTime  time.Time
	UserID     *string
	Level      *string
	SongID     *string
	SessionID  *int64
	Location   *string
	UserAgent  *string
	Year       int32
	Month      int32
}

type SongplayFile struct {
	SongplayID int64   `parquet:"name=songplay_id, type=INT64"`
	StartTime  int64   `parquet:"name=start_time, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	UserID     *string `parquet:"name=user_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Level      *string `parquet:"name=level, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	SongID     *string `parquet:"name=song_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	SessionID  *int64  `parquet:"name=session_id, type=INT64, repetitiontype=OPTIONAL"`
	Location   *string `parquet:"name=location, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	UserAgent  *string `parquet:"name=user_agent, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
}

func (r SongplayRow) PartitionValues() []*string {
	return []*string{int32Text(r.Year), int32Text(r.Month)}
}

func (r SongplayRow) FileRecord() any {
	return SongplayFile{
		SongplayID: r.SongplayID,
		StartTime:  r.StartTime.UnixMilli(),
		UserID:     r.UserID,
		Level:      r.Level,
		SongID:     r.SongID,
		SessionID:  r.SessionID,
		Location:   r.Location,
		UserAgent:  r.UserAgent,
	}
}

func (r SongplayRow) Values() []any {
	return []any{
		r.SongplayID, r.StartTime, deref(r.UserID), deref(r.Level), deref(r.SongID),
		deref(r.SessionID), deref(r.Location), deref(r.UserAgent), r.Year, r.Month,
	}
}

func int64Text(p *int64) *string {
	if p == nil {
		return nil
	}
	s := strconv.FormatInt(*p, 10)
	return &s
}

func int32Text(v int32) *string {
	s := strconv.FormatInt(int64(v), 10)
	return &s
}

func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
