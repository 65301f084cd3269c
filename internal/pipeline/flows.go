package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/SumanthReddy1234/datalakes/internal/metrics"
	"github.com/SumanthReddy1234/datalakes/internal/model"
	"github.com/SumanthReddy1234/datalakes/internal/transform"
)

// catalogFlow loads the song catalog and writes songs and artists. The
// decoded catalog is returned for the songplays join.
func (st *run) catalogFlow(ctx context.Context) ([]model.Song, error) {
	var catalog []model.Song
	err := st.step("load_catalog", func() (string, error) {
		ds, err := st.sess.LoadJSON(ctx, st.cfg.Source.CatalogGlob, model.SongFields, st.loadOptions(st.cfg.Source.CatalogFields))
		if err != nil {
			return "", err
		}
		catalog = make([]model.Song, len(ds.Rows))
		for i, r := range ds.Rows {
			catalog[i] = model.SongFromRow(r)
			r.Free()
		}
		st.res.Catalog = len(catalog)
		st.res.Malformed += ds.Malformed
		metrics.RecordRecords("catalog", len(catalog))
		metrics.RecordRecords("malformed", ds.Malformed)
		return fmt.Sprintf("objects=%d records=%d malformed=%d", ds.Objects, len(catalog), ds.Malformed), nil
	})
	if err != nil {
		return nil, err
	}

	tables := st.cfg.Output.Tables
	if err := st.writeTable(ctx, model.SongsDef.WithName(tables.Songs), asRows(transform.Songs(catalog))); err != nil {
		return nil, err
	}
	artists := transform.Artists(catalog, st.cfg.Runtime.DedupeDimensions)
	if err := st.writeTable(ctx, model.ArtistsDef.WithName(tables.Artists), asRows(artists)); err != nil {
		return nil, err
	}
	return catalog, nil
}

// eventFlow loads the event log, keeps playback events, and writes users,
// time and songplays. catalog is the output of catalogFlow.
func (st *run) eventFlow(ctx context.Context, catalog []model.Song) error {
	var events []model.Event
	err := st.step("load_events", func() (string, error) {
		ds, err := st.sess.LoadJSON(ctx, st.cfg.Source.EventsGlob, model.EventFields, st.loadOptions(st.cfg.Source.EventFields))
		if err != nil {
			return "", err
		}
		events = make([]model.Event, len(ds.Rows))
		for i, r := range ds.Rows {
			events[i] = model.EventFromRow(r)
			r.Free()
		}
		st.res.Events = len(events)
		st.res.Malformed += ds.Malformed
		metrics.RecordRecords("events", len(events))
		metrics.RecordRecords("malformed", ds.Malformed)
		return fmt.Sprintf("objects=%d records=%d malformed=%d", ds.Objects, len(events), ds.Malformed), nil
	})
	if err != nil {
		return err
	}

	playback := transform.FilterPlayback(events, st.cfg.Runtime.PlaybackPage)
	st.res.Playback = len(playback)
	metrics.RecordRecords("playback", len(playback))
	st.verbosef("stage=filter ok page=%s events=%d playback=%d", st.cfg.Runtime.PlaybackPage, len(events), len(playback))

	tables := st.cfg.Output.Tables
	users := transform.Users(playback, st.cfg.Runtime.DedupeDimensions)
	if err := st.writeTable(ctx, model.UsersDef.WithName(tables.Users), asRows(users)); err != nil {
		return err
	}

	var plays []transform.Play
	err = st.step("timestamps", func() (string, error) {
		var err error
		plays, err = transform.Timestamps(playback)
		if err != nil {
			return "", err
		}
		detail := fmt.Sprintf("plays=%d", len(plays))
		if lo, hi, ok := transform.EpochRange(plays); ok {
			detail += fmt.Sprintf(" min_epoch=%d max_epoch=%d", lo, hi)
		}
		return detail, nil
	})
	if err != nil {
		return err
	}

	if err := st.writeTable(ctx, model.TimeDef.WithName(tables.Time), asRows(transform.Times(plays))); err != nil {
		return err
	}

	songplays, js := transform.Songplays(plays, catalog)
	st.res.Join = JoinSummary{Events: js.Events, Matched: js.Matched, Dropped: js.Dropped, Rows: js.Rows}
	if js.Dropped > 0 {
		metrics.IncCounter(metrics.JoinDroppedTotal, float64(js.Dropped), nil)
	}
	st.logf("stage=songplays_join events=%d matched=%d dropped=%d rows=%d", js.Events, js.Matched, js.Dropped, js.Rows)

	return st.writeTable(ctx, model.SongplaysDef.WithName(tables.Songplays), asRows(songplays))
}

// SchemaString renders a table's columns the way they are logged:
// "song_id:text duration:double ... partition_by=year,artist_id".
func SchemaString(def model.TableDef) string {
	var b strings.Builder
	for i, c := range def.Columns {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(c.Name)
		b.WriteByte(':')
		b.WriteString(string(c.Type))
		if !c.Nullable {
			b.WriteString("!")
		}
	}
	if len(def.PartitionBy) > 0 {
		b.WriteString(" partition_by=")
		b.WriteString(strings.Join(def.PartitionBy, ","))
	}
	return b.String()
}
