// Package objstore gives the ETL a single view over the places source records
// are read from and tables are written to: a local directory tree or an S3
// bucket prefix. Keys are always slash-separated and relative to the root
// location the Store was opened with.
package objstore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"sync"
)

// Credentials are the static keys handed to remote connectors. A zero value
// means "use the provider's default chain".
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// Empty reports whether no static key pair is set.
func (c Credentials) Empty() bool {
	return c.AccessKeyID == "" && c.SecretAccessKey == ""
}

// Config locates a store. Location is a URL (s3://bucket/prefix, file:///dir)
// or a bare filesystem path.
type Config struct {
	Location    string
	Credentials Credentials
	Region      string
	Endpoint    string
	PathStyle   bool
}

// Store is the minimal object-store surface the ETL needs.
type Store interface {
	// Glob returns the keys matching pattern (doublestar syntax), sorted.
	Glob(ctx context.Context, pattern string) ([]string, error)
	// List returns every key under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, r io.Reader) error
	// RemoveAll deletes every key under prefix. A missing prefix is not an error.
	RemoveAll(ctx context.Context, prefix string) error
	// URI renders key as an absolute location usable outside this process.
	URI(key string) string
	Close() error
}

type factory func(ctx context.Context, cfg Config) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a store backend under a kind ("local", "s3").
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("objstore: Register called with empty kind")
	}
	if f == nil {
		panic("objstore: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("objstore: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New opens the store for cfg.Location using the backend its scheme maps to.
func New(ctx context.Context, cfg Config) (Store, error) {
	if strings.TrimSpace(cfg.Location) == "" {
		return nil, fmt.Errorf("objstore: missing location")
	}
	kind, err := KindOf(cfg.Location)
	if err != nil {
		return nil, err
	}

	mu.RLock()
	f := factories[kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("objstore: unsupported store kind=%s for %q", kind, cfg.Location)
	}
	return f(ctx, cfg)
}

// KindOf maps a location to a backend kind. The Hadoop-era s3a and s3n
// schemes are aliases of s3.
func KindOf(location string) (string, error) {
	i := strings.Index(location, "://")
	if i < 0 {
		return "local", nil
	}
	switch scheme := strings.ToLower(location[:i]); scheme {
	case "s3", "s3a", "s3n":
		return "s3", nil
	case "file":
		return "local", nil
	default:
		return "", fmt.Errorf("objstore: unsupported scheme %q in %q", scheme, location)
	}
}

// IsRemote reports whether location needs network credentials.
func IsRemote(location string) bool {
	kind, err := KindOf(location)
	return err == nil && kind != "local"
}

// splitBucket parses s3://bucket/some/prefix into ("bucket", "some/prefix/").
func splitBucket(location string) (bucket, prefix string, err error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", fmt.Errorf("objstore: parse %q: %w", location, err)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("objstore: missing bucket in %q", location)
	}
	return u.Host, dirPrefix(u.Path), nil
}

// dirPrefix normalizes p to "" or "a/b/".
func dirPrefix(p string) string {
	p = strings.Trim(path.Clean("/"+p), "/")
	if p == "" {
		return ""
	}
	return p + "/"
}

// staticPrefix returns the leading part of a glob pattern that contains no
// meta characters, cut back to the last '/'. It bounds remote listings.
func staticPrefix(pattern string) string {
	i := strings.IndexAny(pattern, "*?[{\\")
	if i < 0 {
		return pattern
	}
	if j := strings.LastIndex(pattern[:i], "/"); j >= 0 {
		return pattern[:j+1]
	}
	return ""
}

// Join builds a store key from slash-separated parts.
func Join(parts ...string) string {
	return strings.TrimPrefix(path.Join(parts...), "/")
}
