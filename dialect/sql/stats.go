package sql

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aguaragazu/mate-framework/dialect"
)

// QueryStats holds query execution statistics.
type QueryStats struct {
	// TotalQueries is the total number of row returning queries executed.
	TotalQueries atomic.Int64
	// TotalExecs is the total number of statements executed.
	TotalExecs atomic.Int64
	// TotalDuration is the total time spent executing queries.
	TotalDuration atomic.Int64 // nanoseconds
	// SlowQueries is the count of queries exceeding the slow threshold.
	SlowQueries atomic.Int64
	// Errors is the count of query errors.
	Errors atomic.Int64
}

// Stats returns a snapshot of the current statistics.
func (s *QueryStats) Stats() StatsSnapshot {
	return StatsSnapshot{
		TotalQueries:  s.TotalQueries.Load(),
		TotalExecs:    s.TotalExecs.Load(),
		TotalDuration: time.Duration(s.TotalDuration.Load()),
		SlowQueries:   s.SlowQueries.Load(),
		Errors:        s.Errors.Load(),
	}
}

// Reset resets all statistics to zero.
func (s *QueryStats) Reset() {
	s.TotalQueries.Store(0)
	s.TotalExecs.Store(0)
	s.TotalDuration.Store(0)
	s.SlowQueries.Store(0)
	s.Errors.Store(0)
}

// StatsSnapshot is a point-in-time snapshot of query statistics.
type StatsSnapshot struct {
	TotalQueries  int64
	TotalExecs    int64
	TotalDuration time.Duration
	SlowQueries   int64
	Errors        int64
}

// AvgQueryDuration returns the average query duration.
func (s StatsSnapshot) AvgQueryDuration() time.Duration {
	total := s.TotalQueries + s.TotalExecs
	if total == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(total)
}

// String returns a human-readable summary of the statistics.
func (s StatsSnapshot) String() string {
	return fmt.Sprintf(
		"queries=%d execs=%d duration=%s avg=%s slow=%d errors=%d",
		s.TotalQueries, s.TotalExecs, s.TotalDuration, s.AvgQueryDuration(),
		s.SlowQueries, s.Errors,
	)
}

// SlowQueryHook is a function called when a slow query is detected.
type SlowQueryHook func(ctx context.Context, query string, args []any, duration time.Duration)

// StatsDriver wraps a dialect.Driver with query statistics collection.
type StatsDriver struct {
	dialect.Driver
	stats         *QueryStats
	slowThreshold time.Duration
	slowHook      SlowQueryHook
	mu            sync.RWMutex
}

// StatsOption configures the StatsDriver.
type StatsOption func(*StatsDriver)

// WithSlowThreshold sets the threshold for slow query detection.
// Default is 100ms.
func WithSlowThreshold(d time.Duration) StatsOption {
	return func(s *StatsDriver) {
		s.slowThreshold = d
	}
}

// WithSlowQueryHook sets a callback function for slow queries.
func WithSlowQueryHook(hook SlowQueryHook) StatsOption {
	return func(s *StatsDriver) {
		s.slowHook = hook
	}
}

// WithSlowQueryLog logs slow queries to the default logger.
func WithSlowQueryLog() StatsOption {
	return WithSlowQueryHook(func(_ context.Context, query string, args []any, duration time.Duration) {
		slog.Warn("slow query detected", "duration", duration, "query", query, "args", args)
	})
}

// NewStatsDriver wraps a driver with statistics collection.
//
// Example:
//
//	drv, _ := sql.Open(dialect.MySQL, dsn)
//	stats := sql.NewStatsDriver(drv,
//	    sql.WithSlowThreshold(200*time.Millisecond),
//	    sql.WithSlowQueryLog(),
//	)
//	client := model.NewClient(stats)
//
//	// Later, check statistics:
//	fmt.Println(stats.QueryStats().Stats())
func NewStatsDriver(drv dialect.Driver, opts ...StatsOption) *StatsDriver {
	s := &StatsDriver{
		Driver:        drv,
		stats:         &QueryStats{},
		slowThreshold: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QueryStats returns the underlying QueryStats for reading statistics.
func (d *StatsDriver) QueryStats() *QueryStats {
	return d.stats
}

// SlowThreshold returns the current slow query threshold.
func (d *StatsDriver) SlowThreshold() time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.slowThreshold
}

// SetSlowThreshold updates the slow query threshold.
func (d *StatsDriver) SetSlowThreshold(threshold time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.slowThreshold = threshold
}

// Statement executes a statement and records statistics.
func (d *StatsDriver) Statement(ctx context.Context, query string, args ...any) error {
	start := time.Now()
	err := d.Driver.Statement(ctx, query, args...)
	d.record(ctx, query, args, start, err, false)
	return err
}

// Select executes a query and records statistics.
func (d *StatsDriver) Select(ctx context.Context, query string, args ...any) ([]dialect.Row, error) {
	start := time.Now()
	rows, err := d.Driver.Select(ctx, query, args...)
	d.record(ctx, query, args, start, err, true)
	return rows, err
}

// SelectOne executes a query and records statistics.
func (d *StatsDriver) SelectOne(ctx context.Context, query string, args ...any) (dialect.Row, error) {
	start := time.Now()
	row, err := d.Driver.SelectOne(ctx, query, args...)
	d.record(ctx, query, args, start, err, true)
	return row, err
}

// Insert executes an insert and records statistics.
func (d *StatsDriver) Insert(ctx context.Context, query string, args ...any) error {
	start := time.Now()
	err := d.Driver.Insert(ctx, query, args...)
	d.record(ctx, query, args, start, err, false)
	return err
}

// Update executes an update and records statistics.
func (d *StatsDriver) Update(ctx context.Context, query string, args ...any) (int64, error) {
	start := time.Now()
	n, err := d.Driver.Update(ctx, query, args...)
	d.record(ctx, query, args, start, err, false)
	return n, err
}

// Delete executes a delete and records statistics.
func (d *StatsDriver) Delete(ctx context.Context, query string, args ...any) (int64, error) {
	start := time.Now()
	n, err := d.Driver.Delete(ctx, query, args...)
	d.record(ctx, query, args, start, err, false)
	return n, err
}

// AffectingStatement executes a statement and records statistics.
func (d *StatsDriver) AffectingStatement(ctx context.Context, query string, args ...any) (int64, error) {
	start := time.Now()
	n, err := d.Driver.AffectingStatement(ctx, query, args...)
	d.record(ctx, query, args, start, err, false)
	return n, err
}

func (d *StatsDriver) record(ctx context.Context, query string, args []any, start time.Time, err error, isQuery bool) {
	duration := time.Since(start)
	if isQuery {
		d.stats.TotalQueries.Add(1)
	} else {
		d.stats.TotalExecs.Add(1)
	}
	d.stats.TotalDuration.Add(int64(duration))

	if err != nil {
		d.stats.Errors.Add(1)
	}

	d.mu.RLock()
	threshold := d.slowThreshold
	hook := d.slowHook
	d.mu.RUnlock()

	if duration > threshold {
		d.stats.SlowQueries.Add(1)
		if hook != nil {
			hook(ctx, query, args, duration)
		}
	}
}

// DebugDriver wraps a dialect.Driver with debug logging.
type DebugDriver struct {
	dialect.Driver
	log func(context.Context, ...any)
}

// DebugOption configures the DebugDriver.
type DebugOption func(*DebugDriver)

// DebugWithLog sets a custom log function.
func DebugWithLog(logFunc func(context.Context, ...any)) DebugOption {
	return func(d *DebugDriver) {
		d.log = logFunc
	}
}

// NewDebugDriver wraps a driver with debug logging.
//
// Example:
//
//	drv, _ := sql.Open(dialect.MySQL, dsn)
//	debug := sql.NewDebugDriver(drv, sql.DebugWithLog(func(ctx context.Context, v ...any) {
//	    log.Println(v...)
//	}))
//	client := model.NewClient(debug)
func NewDebugDriver(drv dialect.Driver, opts ...DebugOption) *DebugDriver {
	d := &DebugDriver{
		Driver: drv,
		log: func(_ context.Context, v ...any) {
			slog.Info(fmt.Sprint(v...))
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Statement executes a statement and logs it.
func (d *DebugDriver) Statement(ctx context.Context, query string, args ...any) error {
	d.log(ctx, fmt.Sprintf("statement: %s args: %v", query, args))
	return d.Driver.Statement(ctx, query, args...)
}

// Select executes a query and logs it.
func (d *DebugDriver) Select(ctx context.Context, query string, args ...any) ([]dialect.Row, error) {
	d.log(ctx, fmt.Sprintf("select: %s args: %v", query, args))
	return d.Driver.Select(ctx, query, args...)
}

// SelectOne executes a query and logs it.
func (d *DebugDriver) SelectOne(ctx context.Context, query string, args ...any) (dialect.Row, error) {
	d.log(ctx, fmt.Sprintf("select: %s args: %v", query, args))
	return d.Driver.SelectOne(ctx, query, args...)
}

// Insert executes an insert and logs it.
func (d *DebugDriver) Insert(ctx context.Context, query string, args ...any) error {
	d.log(ctx, fmt.Sprintf("insert: %s args: %v", query, args))
	return d.Driver.Insert(ctx, query, args...)
}

// Update executes an update and logs it.
func (d *DebugDriver) Update(ctx context.Context, query string, args ...any) (int64, error) {
	d.log(ctx, fmt.Sprintf("update: %s args: %v", query, args))
	return d.Driver.Update(ctx, query, args...)
}

// Delete executes a delete and logs it.
func (d *DebugDriver) Delete(ctx context.Context, query string, args ...any) (int64, error) {
	d.log(ctx, fmt.Sprintf("delete: %s args: %v", query, args))
	return d.Driver.Delete(ctx, query, args...)
}

// AffectingStatement executes a statement and logs it.
func (d *DebugDriver) AffectingStatement(ctx context.Context, query string, args ...any) (int64, error) {
	d.log(ctx, fmt.Sprintf("statement: %s args: %v", query, args))
	return d.Driver.AffectingStatement(ctx, query, args...)
}

// BeginTransaction starts a transaction and logs it.
func (d *DebugDriver) BeginTransaction(ctx context.Context) error {
	d.log(ctx, "begin transaction")
	return d.Driver.BeginTransaction(ctx)
}

// Commit commits the transaction and logs it.
func (d *DebugDriver) Commit() error {
	d.log(context.Background(), "commit transaction")
	return d.Driver.Commit()
}

// Rollback rolls back the transaction and logs it.
func (d *DebugDriver) Rollback() error {
	d.log(context.Background(), "rollback transaction")
	return d.Driver.Rollback()
}

// Ensure interfaces are implemented.
var (
	_ dialect.Driver = (*StatsDriver)(nil)
	_ dialect.Driver = (*DebugDriver)(nil)
)

// OpenWithStats opens a database connection with statistics collection enabled.
//
// Example:
//
//	drv, stats, err := sql.OpenWithStats(dialect.Postgres, dsn,
//	    sql.WithSlowThreshold(100*time.Millisecond),
//	    sql.WithSlowQueryLog(),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	prometheus.MustRegister(sql.NewStatsCollector("app", stats))
func OpenWithStats(dialectName, source string, opts ...StatsOption) (*StatsDriver, *QueryStats, error) {
	drv, err := Open(dialectName, source)
	if err != nil {
		return nil, nil, err
	}
	statsDriver := NewStatsDriver(drv, opts...)
	return statsDriver, statsDriver.QueryStats(), nil
}
