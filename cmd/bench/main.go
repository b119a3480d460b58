// Command bench runs a synthetic workload against the cache and exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"github.com/IvanBrykalov/arenacache/cache"
	"github.com/IvanBrykalov/arenacache/config"
	pmet "github.com/IvanBrykalov/arenacache/metrics/prom"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// benchOptions holds parsed command line options.
type benchOptions struct {
	cfg config.Config

	workers   int
	duration  time.Duration
	readPct   int
	keys      int
	valueSize int
	preload   int
	rate      float64
	zipfS     float64
	zipfV     float64
	seed      int64

	pprofAddr   string
	metricsAddr string
}

func parseFlags(errOut io.Writer, args []string) (benchOptions, error) {
	flagSet := flag.NewFlagSet("bench", flag.ContinueOnError)
	flagSet.SetOutput(errOut)

	var (
		cfgPath = flagSet.String("config", "", "JSONC config file; flags below override it")
		shards  = flagSet.Int("shards", config.DefaultShards, "number of shards (power of two, 4..4096)")
		maxSize = flagSet.Int64("max-size", 256<<20, "total payload capacity in bytes")
		expire  = flagSet.Duration("expire", config.DefaultExpire, "entry lifetime")
		vacuum  = flagSet.Duration("vacuum", config.DefaultVacuum, "vacuum period")
		force   = flagSet.Bool("force-set", true, "overwrite existing keys on Set")
		verbose = flagSet.IntP("verbose", "v", config.VerboseError, "verbosity level 0..6")
	)

	var o benchOptions
	flagSet.IntVar(&o.workers, "workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
	flagSet.DurationVar(&o.duration, "duration", 10*time.Second, "benchmark duration")
	flagSet.IntVar(&o.readPct, "reads", 80, "read percentage [0..100]")
	flagSet.IntVar(&o.keys, "keys", 1_000_000, "keyspace size")
	flagSet.IntVar(&o.valueSize, "value-size", 256, "value size in bytes")
	flagSet.IntVar(&o.preload, "preload", 0, "preload entries (0 = keys/2)")
	flagSet.Float64Var(&o.rate, "rate", 0, "max operations per second across workers (0 = unlimited)")
	flagSet.Float64Var(&o.zipfS, "zipf-s", 1.1, "Zipf s > 1 (skew)")
	flagSet.Float64Var(&o.zipfV, "zipf-v", 1.0, "Zipf v")
	flagSet.Int64Var(&o.seed, "seed", time.Now().UnixNano(), "random seed")
	flagSet.StringVar(&o.pprofAddr, "pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
	flagSet.StringVar(&o.metricsAddr, "http", "", "serve Prometheus metrics at addr (e.g. :8080); empty = disabled")

	if err := flagSet.Parse(args); err != nil {
		return benchOptions{}, err
	}

	o.cfg = config.Default()
	o.cfg.MaxSize = *maxSize
	if *cfgPath != "" {
		cfg, err := config.Load(*cfgPath)
		if err != nil {
			return benchOptions{}, err
		}
		o.cfg = cfg
	}
	// Explicit flags win over the file; defaults only fill what the file lacks.
	if *cfgPath == "" || flagSet.Changed("shards") {
		o.cfg.Shards = *shards
	}
	if *cfgPath == "" || flagSet.Changed("expire") {
		o.cfg.ExpireNs = int64(*expire)
	}
	if *cfgPath == "" || flagSet.Changed("vacuum") {
		o.cfg.VacuumNs = int64(*vacuum)
	}
	if *cfgPath == "" || flagSet.Changed("force-set") {
		o.cfg.ForceSet = *force
	}
	if *cfgPath == "" || flagSet.Changed("verbose") {
		o.cfg.VerboseLevel = *verbose
	}
	if flagSet.Changed("max-size") || o.cfg.MaxSize == 0 {
		o.cfg.MaxSize = *maxSize
	}

	switch {
	case o.readPct < 0 || o.readPct > 100:
		return benchOptions{}, fmt.Errorf("--reads must be in [0, 100], got %d", o.readPct)
	case o.keys <= 1:
		return benchOptions{}, fmt.Errorf("--keys must be > 1, got %d", o.keys)
	case o.valueSize <= 0:
		return benchOptions{}, fmt.Errorf("--value-size must be > 0, got %d", o.valueSize)
	case o.zipfS <= 1:
		return benchOptions{}, fmt.Errorf("--zipf-s must be > 1, got %v", o.zipfS)
	}
	if o.workers <= 0 {
		o.workers = 1
	}
	if o.preload == 0 {
		o.preload = o.keys / 2
	}
	return o, nil
}

// counters aggregates per-outcome operation counts across workers.
type counters struct {
	total, reads, writes, hits, misses, expired, noSpace, failed atomic.Uint64
}

func run(args []string, out, errOut io.Writer) int {
	o, err := parseFlags(errOut, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(errOut, "error:", err)
		return 2
	}

	// ---- pprof server (on DefaultServeMux) ----
	if o.pprofAddr != "" {
		go func() {
			slog.Info("pprof: serving", "addr", o.pprofAddr)
			slog.Error("pprof server stopped", "error", http.ListenAndServe(o.pprofAddr, nil))
		}()
	}

	// ---- Build cache ----
	opt := cache.OptionsFromConfig(o.cfg)
	if o.metricsAddr != "" {
		opt.Metrics = pmet.New(nil, "arenacache", "bench", nil)
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			slog.Info("metrics: serving", "addr", o.metricsAddr)
			slog.Error("metrics server stopped", "error", http.ListenAndServe(o.metricsAddr, nil))
		}()
	}
	c := cache.New(opt)
	defer func() { _ = c.Close() }()

	value := make([]byte, o.valueSize)
	rand.New(rand.NewSource(o.seed)).Read(value)

	// ---- Preload to get a realistic hit-rate ----
	for i := 0; i < o.preload; i++ {
		if err := c.Set("k:"+strconv.Itoa(i), value); errors.Is(err, cache.ErrNoSpace) {
			fmt.Fprintf(errOut, "preload stopped at %d entries: %v\n", i, err)
			break
		}
	}

	var limiter *rate.Limiter
	if o.rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(o.rate), max(1, int(o.rate/100)))
	}

	// ---- Load generation ----
	var cnt counters
	ctx, cancel := context.WithTimeout(context.Background(), o.duration)
	defer cancel()

	keysMax := uint64(o.keys - 1)
	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(o.workers)
	for w := 0; w < o.workers; w++ {
		go func(id int) {
			defer wg.Done()

			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			localR := rand.New(rand.NewSource(o.seed + int64(id)*9973))
			localZipf := rand.NewZipf(localR, o.zipfS, o.zipfV, keysMax)
			buf := make([]byte, o.valueSize)

			for ctx.Err() == nil {
				if limiter != nil && limiter.Wait(ctx) != nil {
					return
				}
				cnt.total.Add(1)
				k := "k:" + strconv.FormatUint(localZipf.Uint64(), 10)
				if int(localR.Int31n(100)) < o.readPct {
					cnt.reads.Add(1)
					_, err := c.Get(k, buf)
					switch {
					case err == nil:
						cnt.hits.Add(1)
					case errors.Is(err, cache.ErrKeyExpired):
						cnt.expired.Add(1)
						cnt.misses.Add(1)
					case errors.Is(err, cache.ErrKeyNotFound):
						cnt.misses.Add(1)
					default:
						cnt.failed.Add(1)
					}
					continue
				}
				cnt.writes.Add(1)
				switch err := c.Set(k, value); {
				case err == nil, errors.Is(err, cache.ErrKeyExists):
				case errors.Is(err, cache.ErrNoSpace):
					cnt.noSpace.Add(1)
				default:
					cnt.failed.Add(1)
				}
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	report(out, o, c, &cnt, elapsed)
	if cnt.failed.Load() > 0 {
		return 1
	}
	return 0
}

func report(out io.Writer, o benchOptions, c cache.Cache, cnt *counters, elapsed time.Duration) {
	ops := cnt.total.Load()
	reads := cnt.reads.Load()
	hitRate := 0.0
	if reads > 0 {
		hitRate = float64(cnt.hits.Load()) / float64(reads) * 100
	}
	st := c.Stats()

	fmt.Fprintf(out, "shards=%d max=%d workers=%d keys=%d value=%d dur=%v seed=%d\n",
		st.Shards, st.MaxBytes, o.workers, o.keys, o.valueSize, elapsed, o.seed)
	fmt.Fprintf(out, "ops=%d (%.0f ops/s)  reads=%d  writes=%d\n",
		ops, float64(ops)/elapsed.Seconds(), reads, cnt.writes.Load())
	fmt.Fprintf(out, "hits=%d  misses=%d (expired=%d)  hit-rate=%.2f%%  no-space=%d  failed=%d\n",
		cnt.hits.Load(), cnt.misses.Load(), cnt.expired.Load(), hitRate, cnt.noSpace.Load(), cnt.failed.Load())
	fmt.Fprintf(out, "entries=%d  used=%d  free=%d  allocated=%d  pages=%d  free-blocks=%d\n",
		st.Entries, st.UsedBytes, st.FreeBytes, st.AllocatedBytes, st.Pages, st.FreeBlocks)
}
