// Package lake is the in-process execution runtime of the ETL: a Session owns
// the source and destination object stores, bounded read/write parallelism
// and the Parquet writer settings, and exposes the two operations every step
// is built from, LoadJSON and WriteTable.
package lake

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/SumanthReddy1234/datalakes/internal/objstore"
)

// Logger is the minimal logging interface used by the runtime.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Config configures a Session.
type Config struct {
	// Input and Output are store locations (s3a://bucket/, ./out, file:///x).
	Input  string
	Output string

	Credentials objstore.Credentials
	Region      string
	Endpoint    string
	PathStyle   bool

	ReadWorkers  int // default runtime.NumCPU()
	WriteWorkers int // default runtime.NumCPU()

	// Compression is the Parquet codec: snappy (default), gzip, zstd, none.
	Compression string
	// ParquetParallelism is the writer's marshal parallelism. Default 4.
	ParquetParallelism int64
	// TempDir holds part files before upload. Default os.TempDir().
	TempDir string

	Logger  Logger
	Verbose bool

	// OpenStore opens a store; defaults to objstore.New.
	OpenStore func(ctx context.Context, cfg objstore.Config) (objstore.Store, error)
}

// Session is one run's handle on the runtime. It is not reused across runs.
type Session struct {
	RunID string
	In    objstore.Store
	Out   objstore.Store

	cfg     Config
	codec   codec
	tempDir string
	logger  Logger
}

// NewSession resolves both locations to stores and prepares the scratch
// directory used for part files. Connector errors are returned wrapped.
func NewSession(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Input == "" {
		return nil, errors.New("lake: missing input location")
	}
	if cfg.Output == "" {
		return nil, errors.New("lake: missing output location")
	}
	c, err := parseCodec(cfg.Compression)
	if err != nil {
		return nil, err
	}
	if cfg.ReadWorkers <= 0 {
		cfg.ReadWorkers = runtime.NumCPU()
	}
	if cfg.WriteWorkers <= 0 {
		cfg.WriteWorkers = runtime.NumCPU()
	}
	if cfg.ParquetParallelism <= 0 {
		cfg.ParquetParallelism = 4
	}
	if cfg.OpenStore == nil {
		cfg.OpenStore = objstore.New
	}

	s := &Session{
		RunID:  uuid.NewString(),
		cfg:    cfg,
		codec:  c,
		logger: cfg.Logger,
	}
	if s.logger == nil {
		s.logger = log.New(discardWriter{}, "", 0)
	}

	start := time.Now()
	s.In, err = cfg.OpenStore(ctx, s.storeConfig(cfg.Input))
	if err != nil {
		return nil, fmt.Errorf("lake: open input %s: %w", cfg.Input, err)
	}
	s.Out, err = cfg.OpenStore(ctx, s.storeConfig(cfg.Output))
	if err != nil {
		_ = s.In.Close()
		return nil, fmt.Errorf("lake: open output %s: %w", cfg.Output, err)
	}

	s.tempDir, err = os.MkdirTemp(cfg.TempDir, "lakeetl-")
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("lake: create scratch dir: %w", err)
	}

	s.logger.Printf("stage=session ok run_id=%s input=%s output=%s read_workers=%d write_workers=%d codec=%s duration=%s",
		s.RunID, s.In.URI(""), s.Out.URI(""), cfg.ReadWorkers, cfg.WriteWorkers, c.name, durMS(start))
	return s, nil
}

func (s *Session) storeConfig(location string) objstore.Config {
	return objstore.Config{
		Location:    location,
		Credentials: s.cfg.Credentials,
		Region:      s.cfg.Region,
		Endpoint:    s.cfg.Endpoint,
		PathStyle:   s.cfg.PathStyle,
	}
}

// Close releases both stores and removes the scratch directory.
func (s *Session) Close() error {
	var errs []error
	if s.tempDir != "" {
		errs = append(errs, os.RemoveAll(s.tempDir))
	}
	if s.In != nil {
		errs = append(errs, s.In.Close())
	}
	if s.Out != nil {
		errs = append(errs, s.Out.Close())
	}
	return errors.Join(errs...)
}

func (s *Session) verbosef(format string, v ...any) {
	if s.cfg.Verbose {
		s.logger.Printf(format, v...)
	}
}

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }

type discardWriter struct{}

func (discardWriter) Write(p []byte) (n int, err error) { return len(p), nil }
