package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/SumanthReddy1234/datalakes/internal/model"
	"github.com/SumanthReddy1234/datalakes/internal/objstore"
	parserjson "github.com/SumanthReddy1234/datalakes/internal/parser/json"
)

type Severity string

const (
	SeverityError Severity = "error"
	SeverityWarn  Severity = "warn"
)

// Issue is one validation finding. Path is the dotted config key.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string { return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message) }

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate checks cfg without touching any store or database.
func Validate(cfg Config) []Issue {
	var out []Issue
	add := func(sev Severity, path, format string, args ...any) {
		out = append(out, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	checkLocation := func(path, loc string) {
		if strings.TrimSpace(loc) == "" {
			add(SeverityError, path, "must not be empty")
			return
		}
		if _, err := objstore.KindOf(loc); err != nil {
			add(SeverityError, path, "%v", err)
		}
	}
	checkLocation("source.base", cfg.Source.Base)
	checkLocation("output.base", cfg.Output.Base)

	for path, g := range map[string]string{
		"source.catalog_glob": cfg.Source.CatalogGlob,
		"source.events_glob":  cfg.Source.EventsGlob,
	} {
		switch {
		case strings.TrimSpace(g) == "":
			add(SeverityError, path, "must not be empty")
		case !doublestar.ValidatePattern(g):
			add(SeverityError, path, "invalid glob pattern %q", g)
		}
	}

	if _, err := parserjson.LookupCharset(cfg.Source.Encoding); err != nil {
		add(SeverityError, "source.encoding", "%v", err)
	}
	checkFieldMap(add, "source.catalog_fields", cfg.Source.CatalogFields, model.SongFields)
	checkFieldMap(add, "source.event_fields", cfg.Source.EventFields, model.EventFields)

	switch strings.ToLower(cfg.Output.Compression) {
	case "", "snappy", "gzip", "zstd", "none", "uncompressed":
	default:
		add(SeverityError, "output.compression", "unsupported codec %q (snappy, gzip, zstd, none)", cfg.Output.Compression)
	}

	seen := map[string]string{}
	for key, name := range map[string]string{
		"output.tables.songs":     cfg.Output.Tables.Songs,
		"output.tables.artists":   cfg.Output.Tables.Artists,
		"output.tables.users":     cfg.Output.Tables.Users,
		"output.tables.time":      cfg.Output.Tables.Time,
		"output.tables.songplays": cfg.Output.Tables.Songplays,
	} {
		switch {
		case strings.TrimSpace(name) == "":
			add(SeverityError, key, "must not be empty")
		case strings.ContainsAny(name, "/\\*?[{"):
			add(SeverityError, key, "table name %q must be a single path segment", name)
		default:
			if other, dup := seen[name]; dup {
				add(SeverityError, key, "table name %q already used by %s", name, other)
			}
			seen[name] = key
		}
	}

	if cfg.Runtime.ReadWorkers < 0 {
		add(SeverityError, "runtime.read_workers", "must be >= 0 (0 = number of CPUs)")
	}
	if cfg.Runtime.WriteWorkers < 0 {
		add(SeverityError, "runtime.write_workers", "must be >= 0 (0 = number of CPUs)")
	}
	if cfg.Runtime.Preview < 0 {
		add(SeverityError, "runtime.preview", "must be >= 0")
	}
	if strings.TrimSpace(cfg.Runtime.PlaybackPage) == "" {
		add(SeverityError, "runtime.playback_page", "must not be empty")
	}

	switch cfg.Warehouse.Kind {
	case "":
		if cfg.Warehouse.DSN != "" {
			add(SeverityWarn, "warehouse.dsn", "set but warehouse.kind is empty; mirror disabled")
		}
	case "postgres", "sqlite", "mssql":
		if cfg.Warehouse.DSN == "" {
			add(SeverityError, "warehouse.dsn", "required when warehouse.kind=%s", cfg.Warehouse.Kind)
		}
		if cfg.Warehouse.BatchRows <= 0 {
			add(SeverityError, "warehouse.batch_rows", "must be > 0")
		}
	default:
		add(SeverityError, "warehouse.kind", "unsupported kind %q (postgres, sqlite, mssql)", cfg.Warehouse.Kind)
	}

	switch cfg.Metrics.Backend {
	case "", "none", "datadog":
	case "pushgateway":
		if cfg.Metrics.PushgatewayURL == "" {
			add(SeverityError, "metrics.pushgateway_url", "required when metrics.backend=pushgateway")
		}
	default:
		add(SeverityError, "metrics.backend", "unsupported backend %q (none, pushgateway, datadog)", cfg.Metrics.Backend)
	}

	remote := objstore.IsRemote(cfg.Source.Base) || objstore.IsRemote(cfg.Output.Base)
	if !remote && cfg.Storage.Endpoint != "" {
		add(SeverityWarn, "storage.endpoint", "set but no location uses S3")
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func checkFieldMap(add func(Severity, string, string, ...any), path string, m map[string]string, known []string) {
	ok := make(map[string]bool, len(known))
	for _, k := range known {
		ok[k] = true
	}
	for logical := range m {
		if !ok[logical] {
			add(SeverityWarn, path+"."+logical, "unknown field; override ignored")
		}
	}
}
