// Package handle exposes caches through opaque integer handles and integer
// status codes, for callers that cannot hold Go values (for example a cgo or
// plugin boundary).
//
// Code values 0..9 equal the cache.ErrKind values; the handle layer adds its
// own codes above them.
package handle

import (
	"log/slog"
	"sync"

	"github.com/IvanBrykalov/arenacache/cache"
	"github.com/IvanBrykalov/arenacache/config"
)

// Handle identifies a cache created by a Registry. The zero Handle is never issued.
type Handle uint64

// Code is an operation status.
type Code int32

const (
	CodeOK             = Code(cache.KindOK)
	CodeNoShard        = Code(cache.KindNoShard)
	CodeNoSpace        = Code(cache.KindNoSpace)
	CodeInternal       = Code(cache.KindInternal)
	CodeKeyNotFound    = Code(cache.KindKeyNotFound)
	CodeKeyExpired     = Code(cache.KindKeyExpired)
	CodeKeyExists      = Code(cache.KindKeyExists)
	CodeBufferTooSmall = Code(cache.KindBufferTooSmall)
	CodeEmptyValue     = Code(cache.KindEmptyValue)
	CodeClosed         = Code(cache.KindClosed)

	// CodeInvalidHandle means the handle is unknown or already destroyed.
	CodeInvalidHandle Code = 100
	// CodeInvalidConfig means the configuration object could not be parsed.
	CodeInvalidConfig Code = 101
)

func (c Code) String() string {
	switch c {
	case CodeInvalidHandle:
		return "invalid_handle"
	case CodeInvalidConfig:
		return "invalid_config"
	default:
		return cache.ErrKind(c).String()
	}
}

// codeOf maps a cache error to its Code.
func codeOf(err error) Code { return Code(cache.KindOf(err)) }

// Registry owns the caches behind handles.
type Registry struct {
	mu     sync.RWMutex
	next   Handle
	caches map[Handle]cache.Cache

	log      *slog.Logger
	newCache func(config.Config) cache.Cache
}

// NewRegistry returns an empty registry. A nil logger uses slog.Default().
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		caches:   make(map[Handle]cache.Cache),
		log:      log,
		newCache: cache.NewFromConfig,
	}
}

// Create parses a JSONC configuration object and builds a cache from it.
// Empty input uses the default configuration.
func (r *Registry) Create(configJSON []byte) (Handle, Code) {
	cfg, err := config.Parse(configJSON)
	if err != nil {
		r.log.Error("cannot create cache", "error", err)
		return 0, CodeInvalidConfig
	}
	c := r.newCache(cfg)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.caches[r.next] = c
	return r.next, CodeOK
}

// Destroy closes the cache and invalidates its handle.
func (r *Registry) Destroy(h Handle) Code {
	r.mu.Lock()
	c, ok := r.caches[h]
	delete(r.caches, h)
	r.mu.Unlock()

	if !ok {
		return CodeInvalidHandle
	}
	return codeOf(c.Close())
}

func (r *Registry) lookup(h Handle) (cache.Cache, Code) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.caches[h]
	if !ok {
		return nil, CodeInvalidHandle
	}
	return c, CodeOK
}

// Set stores value under key in the cache behind h.
func (r *Registry) Set(h Handle, key string, value []byte) Code {
	c, code := r.lookup(h)
	if code != CodeOK {
		return code
	}
	return codeOf(c.Set(key, value))
}

// Get copies the value of key into buf and returns its length.
func (r *Registry) Get(h Handle, key string, buf []byte) (int, Code) {
	c, code := r.lookup(h)
	if code != CodeOK {
		return 0, code
	}
	n, err := c.Get(key, buf)
	return n, codeOf(err)
}

// Evict removes key from the cache behind h.
func (r *Registry) Evict(h Handle, key string) Code {
	c, code := r.lookup(h)
	if code != CodeOK {
		return code
	}
	return codeOf(c.Evict(key))
}

// Len returns the number of entries in the cache behind h.
func (r *Registry) Len(h Handle) (int, Code) {
	c, code := r.lookup(h)
	if code != CodeOK {
		return 0, code
	}
	return c.Len(), CodeOK
}

// Close destroys every cache in the registry.
func (r *Registry) Close() {
	r.mu.Lock()
	caches := r.caches
	r.caches = make(map[Handle]cache.Cache)
	r.mu.Unlock()

	for _, c := range caches {
		_ = c.Close()
	}
}

var std = NewRegistry(nil)

// Create builds a cache in the process-wide registry.
func Create(configJSON []byte) (Handle, Code) { return std.Create(configJSON) }

// Destroy closes a cache of the process-wide registry.
func Destroy(h Handle) Code { return std.Destroy(h) }

// Set stores a value in a cache of the process-wide registry.
func Set(h Handle, key string, value []byte) Code { return std.Set(h, key, value) }

// Get reads a value from a cache of the process-wide registry.
func Get(h Handle, key string, buf []byte) (int, Code) { return std.Get(h, key, buf) }

// Evict removes a key from a cache of the process-wide registry.
func Evict(h Handle, key string) Code { return std.Evict(h, key) }
