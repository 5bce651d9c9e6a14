package scheduler

import "time"

// Config holds every tunable of a Scheduler. It plays the role the upstream
// library gives a fluent builder: here it is a plain struct with defaults
// applied by New, so callers construct it as a literal the way the rest of
// this codebase configures components from a record.
type Config struct {
	// SchedulerName identifies this process in PickedBy. Defaults to the
	// hostname plus a short random suffix if empty.
	SchedulerName string

	// ExecutorCapacity bounds how many executions this process runs at
	// once. Zero defaults to 10.
	ExecutorCapacity int

	// PollingInterval is the base interval of the due-poll loop. Zero
	// defaults to 10s.
	PollingInterval time.Duration

	// PollingLimit bounds how many due rows a single poll fetches. Zero
	// defaults to 2 * ExecutorCapacity, per the upstream heuristic that a
	// poll should never starve the executors it just woke.
	PollingLimit int

	// HeartbeatInterval is how often a running execution's lease is
	// refreshed. Zero defaults to 5m.
	HeartbeatInterval time.Duration

	// DeadExecutionDetectionInterval is how often the dead-execution
	// detector scans for stale leases. Zero defaults to HeartbeatInterval * 2.
	DeadExecutionDetectionInterval time.Duration

	// StartTasks lists recurring tasks that should have their row
	// auto-inserted on Start if absent, so a recurring task begins firing
	// on its schedule without a separate client.Schedule call. Tasks
	// without a Schedule (one-time tasks) are ignored if included here.
	StartTasks []Task

	// LowerLimitFraction and UpperLimitFraction govern the due-poll loop's
	// adaptive batch size under either poll strategy, as fractions of
	// ExecutorCapacity. Zero defaults to 0.5 and 4.0
	// respectively, matching the upstream library's PollingStrategyConfig
	// defaults for select-for-update.
	LowerLimitFraction float64
	UpperLimitFraction float64

	// EnableImmediateExecution wakes the due-poll loop whenever the client
	// schedules a row for a time at or before now, instead of waiting for
	// the next poll tick.
	EnableImmediateExecution bool

	// Clock overrides time.Now everywhere. Tests supply a fake.
	Clock Clock

	// StatsSink receives lifecycle events. Defaults to NoopStatsSink.
	StatsSink StatsSink

	// Logger receives structured diagnostic output. Defaults to a no-op
	// logger if nil.
	Logger Logger

	// ShutdownMaxWait bounds how long Stop waits for in-flight executions
	// to finish before returning anyway. Zero defaults to 30m, matching the
	// upstream library's SHUTDOWN_WAIT constant.
	ShutdownMaxWait time.Duration
}

const (
	defaultExecutorCapacity   = 10
	defaultPollingInterval    = 10 * time.Second
	defaultHeartbeatInterval  = 5 * time.Minute
	defaultLowerLimitFraction = 0.5
	defaultUpperLimitFraction = 4.0
	defaultShutdownMaxWait    = 30 * time.Minute
)

// withDefaults returns a copy of cfg with every zero-valued field replaced
// by its default.
func (cfg Config) withDefaults() Config {
	if cfg.ExecutorCapacity <= 0 {
		cfg.ExecutorCapacity = defaultExecutorCapacity
	}
	if cfg.PollingInterval <= 0 {
		cfg.PollingInterval = defaultPollingInterval
	}
	if cfg.PollingLimit <= 0 {
		cfg.PollingLimit = 2 * cfg.ExecutorCapacity
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.DeadExecutionDetectionInterval <= 0 {
		cfg.DeadExecutionDetectionInterval = cfg.HeartbeatInterval * 2
	}
	if cfg.LowerLimitFraction <= 0 {
		cfg.LowerLimitFraction = defaultLowerLimitFraction
	}
	if cfg.UpperLimitFraction <= 0 {
		cfg.UpperLimitFraction = defaultUpperLimitFraction
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.StatsSink == nil {
		cfg.StatsSink = NoopStatsSink{}
	}
	if cfg.Logger == nil {
		cfg.Logger = NopLogger()
	}
	if cfg.ShutdownMaxWait <= 0 {
		cfg.ShutdownMaxWait = defaultShutdownMaxWait
	}
	if cfg.SchedulerName == "" {
		cfg.SchedulerName = generateSchedulerName()
	}
	return cfg
}

// deadAfter returns the heartbeat age past which a picked execution is
// considered dead: four missed heartbeat intervals, matching the upstream
// library's getMaxAgeBeforeConsideredDead.
func (cfg Config) deadAfter() time.Duration {
	return cfg.HeartbeatInterval * 4
}
