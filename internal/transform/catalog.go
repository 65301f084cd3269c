// Package transform turns loaded source records into output table rows. The
// functions are pure: no I/O, no logging, deterministic output order.
package transform

import (
	"github.com/SumanthReddy1234/datalakes/internal/model"
	"github.com/SumanthReddy1234/datalakes/internal/rows"
)

// Songs projects the catalog onto the songs table and drops rows that are
// identical across every projected column. First occurrences win.
func Songs(catalog []model.Song) []model.SongRow {
	out := make([]model.SongRow, 0, len(catalog))
	for _, s := range catalog {
		out = append(out, model.SongRow{
			SongID:   s.SongID,
			Title:    s.Title,
			Duration: s.Duration,
			Year:     s.Year,
			ArtistID: s.ArtistID,
		})
	}
	return rows.Distinct(out, func(r model.SongRow) []any { return r.Values() })
}

// Artists projects the catalog onto the artists table, one row per catalog
// record. distinct collapses identical rows.
func Artists(catalog []model.Song, distinct bool) []model.ArtistRow {
	out := make([]model.ArtistRow, 0, len(catalog))
	for _, s := range catalog {
		out = append(out, model.ArtistRow{
			ArtistID:  s.ArtistID,
			Name:      s.ArtistName,
			Location:  s.ArtistLocation,
			Latitude:  s.ArtistLatitude,
			Longitude: s.ArtistLongitude,
		})
	}
	if distinct {
		out = rows.Distinct(out, func(r model.ArtistRow) []any { return r.Values() })
	}
	return out
}
