// Package mare is the public facade: Init/Shutdown a Runtime, then create
// and launch tasks, groups, and SDF graphs through it. It wraps the
// task/scheduler/sdf layers, translating their sentinel errors into
// *mare.UsageError and presenting the operation surface described for the
// original library's init/create_task/create_group/create_sdf_graph calls.
package mare

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"go.lepak.sg/mare/internal/eventlog"
	"go.lepak.sg/mare/scheduler"
	"go.lepak.sg/mare/task"
)

// Config is the optional static configuration a Runtime can be given,
// which LoadConfigFile can read from a TOML file. Every field has a
// working zero value, matching "Init works with zero configuration
// supplied".
type Config struct {
	// Workers is the worker pool size. Zero selects GOMAXPROCS.
	Workers int `toml:"num_execution_contexts"`
	// DefaultCost is not currently read by Runtime itself (tasks set their
	// own Attrs.Cost) but is accepted for forward compatibility with a
	// process-wide default some deployments configure.
	DefaultCost float64 `toml:"default_task_cost"`
	// DequeSoftLimit bounds a worker's local deque before overflowing to
	// the global queue.
	DequeSoftLimit int `toml:"deque_soft_limit"`
	// Logger receives every structured lifecycle event this Runtime emits
	// (task_created, task_running, worker_steal, ...). Nil discards them,
	// the same as eventlog.Nop(). Init still prints the chosen seed to
	// stdout when MARE_RANDOM_SEED is unset, whatever Logger is.
	Logger *zerolog.Logger
}

// LoadConfigFile parses a TOML config file of static pool-sizing knobs.
func LoadConfigFile(path string) (Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, newUsageError(err)
	}
	return cfg, nil
}

// Runtime is one MARE instance: an engine, a worker pool, and the storage
// slots scoped to it. A process may run several independent Runtimes
// (global state is threaded through this value rather than held in
// process statics, per the Go port's explicit design choice).
type Runtime struct {
	engine *task.Engine
	sched  *scheduler.Runtime
	log    *eventlog.Log

	mu      sync.Mutex
	storage map[any]any

	shutdownOnce sync.Once
	shutdownErr  error
}

// Init returns a running Runtime built from cfg. The original's
// process-wide init/shutdown nesting-depth counter has no equivalent here
// since this port threads a *Runtime value through every call instead of
// holding state in process statics (an explicit design choice - see
// DESIGN.md); each Init call simply returns an independent Runtime, and
// Shutdown on it is idempotent.
func Init(cfg Config) (*Runtime, error) {
	seed, fromEnv, err := randomSeed()
	if err != nil {
		return nil, newUsageError(err)
	}

	log := eventlog.Nop()
	if cfg.Logger != nil {
		log = eventlog.New(*cfg.Logger)
	}
	if !fromEnv {
		fmt.Fprintf(os.Stdout, "mare: MARE_RANDOM_SEED not set, using %d\n", seed)
	}
	log.Event("random_seed_chosen", strconv.FormatInt(seed, 10), nil)

	sched := scheduler.New(scheduler.Config{
		Workers:   cfg.Workers,
		SoftLimit: cfg.DequeSoftLimit,
		Log:       log,
		Seed:      seed,
	})
	engine := task.NewEngine(log)
	engine.SetEnqueuer(sched)

	rt := &Runtime{
		engine:  engine,
		sched:   sched,
		log:     log,
		storage: make(map[any]any),
	}
	return rt, nil
}

// randomSeed reads MARE_RANDOM_SEED from the environment, as the public
// surface's environment-variable table requires. An empty or unset value
// falls back to a fixed default rather than a true random source, so a
// Runtime's victim-selection order is reproducible unless a seed is
// explicitly supplied - callers that want real entropy should set the
// variable to a value derived from their own random source. The second
// return reports whether the seed came from the environment; Init prints
// the chosen value whenever it did not, per the empty-variable contract.
func randomSeed() (int64, bool, error) {
	raw := os.Getenv("MARE_RANDOM_SEED")
	if raw == "" {
		return 1, false, nil
	}
	seed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("MARE_RANDOM_SEED: %w", err)
	}
	return seed, true, nil
}

// Shutdown stops the worker pool, waits for every worker goroutine and any
// in-flight blocking/GPU task goroutine to return, then flushes the event
// log. Each worker finishes the task it is running before it exits; tasks
// still queued at that point are not run, and a Launch after Shutdown is
// not rejected (its task is queued but never runs).
func (rt *Runtime) Shutdown() error {
	rt.shutdownOnce.Do(func() {
		rt.shutdownErr = rt.sched.Shutdown()
		rt.log.Close()
	})
	return rt.shutdownErr
}

// Engine exposes the underlying task engine for the task/group/sdf
// facades in this package; application code should not need it directly.
func (rt *Runtime) Engine() *task.Engine { return rt.engine }
