// Package config defines the job configuration and how it is layered:
// built-in defaults, an optional YAML file, LAKE_* environment variables,
// then command-line flags.
package config

import (
	"time"

	"github.com/SumanthReddy1234/datalakes/internal/model"
	"github.com/SumanthReddy1234/datalakes/internal/objstore"
)

// DefaultCredentialsFile is the well-known dotenv file holding AWS keys.
const DefaultCredentialsFile = "dl.cfg"

// Config is the whole job configuration.
type Config struct {
	Job             string    `koanf:"job"`
	CredentialsFile string    `koanf:"credentials_file"`
	Source          Source    `koanf:"source"`
	Output          Output    `koanf:"output"`
	Storage         Storage   `koanf:"storage"`
	Runtime         Runtime   `koanf:"runtime"`
	Warehouse       Warehouse `koanf:"warehouse"`
	Metrics         Metrics   `koanf:"metrics"`

	// Credentials is resolved by LoadCredentials; never read from YAML.
	Credentials objstore.Credentials `koanf:"-"`
}

// Source locates the raw records.
type Source struct {
	Base        string `koanf:"base"`
	CatalogGlob string `koanf:"catalog_glob"`
	EventsGlob  string `koanf:"events_glob"`
	Encoding    string `koanf:"encoding"`
	// CatalogFields / EventFields override raw JSON keys: logical -> raw.
	CatalogFields      map[string]string `koanf:"catalog_fields"`
	EventFields        map[string]string `koanf:"event_fields"`
	ArrayJoinSeparator string            `koanf:"array_join_separator"`
}

// Output locates the written tables.
type Output struct {
	Base        string `koanf:"base"`
	Compression string `koanf:"compression"`
	Tables      Tables `koanf:"tables"`
}

// Tables names the five output tables (their sub-paths under Output.Base).
type Tables struct {
	Songs     string `koanf:"songs"`
	Artists   string `koanf:"artists"`
	Users     string `koanf:"users"`
	Time      string `koanf:"time"`
	Songplays string `koanf:"songplays"`
}

// Storage configures the S3 connector.
type Storage struct {
	Region          string `koanf:"region"`
	Endpoint        string `koanf:"endpoint"`
	PathStyle       bool   `koanf:"path_style"`
	AccessKeyID     string `koanf:"access_key_id"`
	SecretAccessKey string `koanf:"secret_access_key"`
	SessionToken    string `koanf:"session_token"`
}

// Runtime tunes execution.
type Runtime struct {
	ReadWorkers        int    `koanf:"read_workers"`
	WriteWorkers       int    `koanf:"write_workers"`
	ParquetParallelism int64  `koanf:"parquet_parallelism"`
	TempDir            string `koanf:"temp_dir"`
	PlaybackPage       string `koanf:"playback_page"`
	// DedupeDimensions collapses identical artists/users rows.
	DedupeDimensions bool `koanf:"dedupe_dimensions"`
	// Preview logs up to N sample rows per table after the run.
	Preview int  `koanf:"preview"`
	Verbose bool `koanf:"verbose"`
}

// Warehouse optionally mirrors the tables into a relational database.
type Warehouse struct {
	Kind      string `koanf:"kind"`
	DSN       string `koanf:"dsn"`
	BatchRows int    `koanf:"batch_rows"`
}

// Metrics selects the metrics backend.
type Metrics struct {
	Backend        string        `koanf:"backend"`
	PushgatewayURL string        `koanf:"pushgateway_url"`
	Tags           string        `koanf:"tags"`
	FlushEvery     time.Duration `koanf:"flush_every"`
}

// Default returns the built-in configuration: the public song and log
// datasets as input and a local ./lake directory as output.
func Default() Config {
	return Config{
		Job:             "lakeetl",
		CredentialsFile: DefaultCredentialsFile,
		Source: Source{
			Base:               "s3a://udacity-dend/",
			CatalogGlob:        "song_data/*/*/*/*.json",
			EventsGlob:         "log_data/*/*/*.json",
			ArrayJoinSeparator: ",",
		},
		Output: Output{
			Base:        "./lake",
			Compression: "snappy",
			Tables: Tables{
				Songs:     model.TableSongs,
				Artists:   model.TableArtists,
				Users:     model.TableUsers,
				Time:      model.TableTime,
				Songplays: model.TableSongplays,
			},
		},
		Storage: Storage{
			Region: "us-west-2",
		},
		Runtime: Runtime{
			ParquetParallelism: 4,
			PlaybackPage:       "NextSong",
		},
		Warehouse: Warehouse{
			BatchRows: 500,
		},
		Metrics: Metrics{
			Backend:        "none",
			PushgatewayURL: "http://localhost:9091",
			FlushEvery:     60 * time.Second,
		},
	}
}
