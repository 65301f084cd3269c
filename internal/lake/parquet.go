package lake

import (
	"fmt"
	"strings"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"
)

type codec struct {
	name  string
	codec parquet.CompressionCodec
	ext   string
}

func parseCodec(name string) (codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "snappy":
		return codec{"snappy", parquet.CompressionCodec_SNAPPY, ".snappy.parquet"}, nil
	case "gzip":
		return codec{"gzip", parquet.CompressionCodec_GZIP, ".gz.parquet"}, nil
	case "zstd":
		return codec{"zstd", parquet.CompressionCodec_ZSTD, ".zstd.parquet"}, nil
	case "none", "uncompressed":
		return codec{"none", parquet.CompressionCodec_UNCOMPRESSED, ".parquet"}, nil
	default:
		return codec{}, fmt.Errorf("lake: unsupported parquet compression %q", name)
	}
}

// writeParquetFile writes recs to a local Parquet file. schema is a pointer to
// the tagged struct type every element of recs shares.
func writeParquetFile(path string, schema any, recs []any, c codec, np int64) (err error) {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("lake: create %s: %w", path, err)
	}
	defer func() {
		if cerr := fw.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("lake: close %s: %w", path, cerr)
		}
	}()

	pw, err := writer.NewParquetWriter(fw, schema, np)
	if err != nil {
		return fmt.Errorf("lake: parquet writer for %s: %w", path, err)
	}
	pw.CompressionType = c.codec

	for _, r := range recs {
		if err := pw.Write(r); err != nil {
			return fmt.Errorf("lake: write record to %s: %w", path, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("lake: finalize %s: %w", path, err)
	}
	return nil
}

// ReadParquetFile reads every row of a local Parquet file into T, the tagged
// struct the file was written from.
func ReadParquetFile[T any](path string) ([]T, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("lake: open %s: %w", path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(T), 1)
	if err != nil {
		return nil, fmt.Errorf("lake: parquet reader for %s: %w", path, err)
	}
	defer pr.ReadStop()

	out := make([]T, int(pr.GetNumRows()))
	if len(out) == 0 {
		return out, nil
	}
	if err := pr.Read(&out); err != nil {
		return nil, fmt.Errorf("lake: read %s: %w", path, err)
	}
	return out, nil
}
