package cache

import (
	"log/slog"
	"time"

	"github.com/IvanBrykalov/arenacache/config"
	"github.com/IvanBrykalov/arenacache/internal/util"
)

// EvictReason explains why an entry was removed.
type EvictReason int

const (
	// EvictExplicit: removed by a client Evict call.
	EvictExplicit EvictReason = iota
	// EvictTTL: collected by the expiration supervisor.
	EvictTTL
	// EvictOverwrite: replaced by a forced Set.
	EvictOverwrite
)

func (r EvictReason) String() string {
	switch r {
	case EvictTTL:
		return "ttl"
	case EvictOverwrite:
		return "overwrite"
	default:
		return "explicit"
	}
}

// SupervisorKind names a background loop.
type SupervisorKind int

const (
	SupervisorExpire SupervisorKind = iota
	SupervisorVacuum
)

func (k SupervisorKind) String() string {
	if k == SupervisorVacuum {
		return "vacuum"
	}
	return "expire"
}

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
// Implementations must be safe for concurrent use; Hit/Miss/Evict/Error are
// called on client goroutines, Cycle and Size from supervisors.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	Error(kind ErrKind)
	// Cycle reports one supervisor tick. skipped is true when the previous
	// cycle overran the period and this tick did no work.
	Cycle(kind SupervisorKind, took time.Duration, skipped bool)
	// Size reports totals across shards after each supervisor cycle.
	Size(entries int, usedBytes, allocatedBytes int64)
}

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

type systemClock struct{}

func (systemClock) NowUnixNano() int64 { return time.Now().UnixNano() }

// VerboseLevel selects how much diagnostic output the cache produces.
// Every level includes the lower ones.
type VerboseLevel int

const (
	VerboseNone      VerboseLevel = config.VerboseNone
	VerboseException VerboseLevel = config.VerboseException
	VerboseError     VerboseLevel = config.VerboseError
	VerboseWarning   VerboseLevel = config.VerboseWarning
	VerboseDebug1    VerboseLevel = config.VerboseDebug1
	VerboseDebug2    VerboseLevel = config.VerboseDebug2
	VerboseDebug3    VerboseLevel = config.VerboseDebug3
)

const (
	// MinShards and MaxShards bound Options.Shards.
	MinShards = 4
	MaxShards = 4096
	// DefaultShards is used when Options.Shards is zero or invalid.
	DefaultShards = config.DefaultShards

	// PagePercent is the size of one arena page relative to the shard size.
	PagePercent = 10

	// MaxSizeAvailFactor is the share of free RAM used when MaxSize <= 0.
	MaxSizeAvailFactor = 0.5
	// DefaultMaxSize is used when MaxSize <= 0 and free RAM is unknown.
	DefaultMaxSize int64 = 10 << 30

	DefaultExpire = config.DefaultExpire
	MinExpire     = time.Second
	DefaultVacuum = config.DefaultVacuum
	MinVacuum     = time.Minute
)

// Options configures the cache. Zero values are safe;
// sane defaults are applied in New():
//   - Shards == 0   => DefaultShards
//   - MaxSize <= 0  => half of the free RAM (or DefaultMaxSize)
//   - Expire == 0   => DefaultExpire
//   - Vacuum == 0   => DefaultVacuum
//   - nil Logger    => text logger on stderr at the level implied by Verbose
//   - nil Metrics   => NoopMetrics
//   - nil Clock     => time.Now()
//
// Non-zero values outside the accepted ranges fall back to the default and
// the fallback is logged as a warning.
type Options struct {
	// Shards is the number of shards; must be a power of two in [MinShards, MaxShards].
	Shards int

	// ForceSet makes Set overwrite existing keys instead of failing with ErrKeyExists.
	ForceSet bool

	// MaxSize is the total payload capacity in bytes, split evenly across shards.
	// Index structures are not counted.
	MaxSize int64

	// Expire is the lifetime of every entry and the expiration supervisor period.
	Expire time.Duration

	// Vacuum is the compaction supervisor period.
	Vacuum time.Duration

	// Verbose picks the log level when Logger is nil.
	Verbose VerboseLevel

	// Observability
	Logger  *slog.Logger
	Metrics Metrics

	// Clock allows overriding time source (tests). Nil => time.Now().
	Clock Clock
}

// OptionsFromConfig converts a parsed configuration object into Options.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Shards:   cfg.Shards,
		ForceSet: cfg.ForceSet,
		MaxSize:  cfg.MaxSize,
		Expire:   cfg.ExpireDuration(),
		Vacuum:   cfg.VacuumDuration(),
		Verbose:  VerboseLevel(cfg.VerboseLevel),
	}
}

// normalize applies defaults and range fallbacks. It returns the logger the
// rest of the cache should use.
func (o *Options) normalize() *slog.Logger {
	if o.Verbose < VerboseNone || o.Verbose > VerboseDebug3 {
		bad := o.Verbose
		o.Verbose = VerboseNone
		if o.Logger != nil {
			o.Logger.Warn("verbosity level out of range, suppress debugging",
				"verbose_lvl", int(bad), "min", int(VerboseNone), "max", int(VerboseDebug3))
		}
	}
	if o.Logger == nil {
		o.Logger = newLogger(o.Verbose, nil)
	}
	log := o.Logger

	if o.Metrics == nil {
		o.Metrics = NoopMetrics{}
	}
	if o.Clock == nil {
		o.Clock = systemClock{}
	}

	switch {
	case o.Shards == 0:
		o.Shards = DefaultShards
	case o.Shards < MinShards || o.Shards > MaxShards:
		log.Warn("shards count out of range, fallback to default",
			"shards", o.Shards, "min", MinShards, "max", MaxShards, "default", DefaultShards)
		o.Shards = DefaultShards
	case !util.IsPowerOfTwo(uint64(o.Shards)):
		log.Warn("shards count isn't a power of two, fallback to default",
			"shards", o.Shards, "default", DefaultShards)
		o.Shards = DefaultShards
	}

	if o.MaxSize <= 0 {
		o.MaxSize = int64(float64(util.AvailableMemory()) * MaxSizeAvailFactor)
		if o.MaxSize <= 0 {
			log.Warn("couldn't determine cache max size, fallback to default", "default", DefaultMaxSize)
			o.MaxSize = DefaultMaxSize
		} else {
			log.Info("cache max size derived from available memory", "max_size", o.MaxSize)
		}
	}

	switch {
	case o.Expire == 0:
		o.Expire = DefaultExpire
	case o.Expire < MinExpire:
		log.Warn("expire time is less than minimum, fallback to default",
			"expire", o.Expire, "min", MinExpire, "default", DefaultExpire)
		o.Expire = DefaultExpire
	}

	switch {
	case o.Vacuum == 0:
		o.Vacuum = DefaultVacuum
	case o.Vacuum < MinVacuum:
		log.Warn("vacuum time is less than minimum, fallback to default",
			"vacuum", o.Vacuum, "min", MinVacuum, "default", DefaultVacuum)
		o.Vacuum = DefaultVacuum
	}
	return log
}
