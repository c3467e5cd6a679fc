package ratelimit

import (
    "context"
    "math"
    "sync"
    "sync/atomic"
    "time"

    "github.com/sirupsen/logrus"
    "golang.org/x/sync/semaphore"
    "golang.org/x/time/rate"
)

// Strategy selects how the inter-request delay is applied.
type Strategy string

const (
    StrategyFixedDelay         Strategy = "fixed_delay"
    StrategyExponentialBackoff Strategy = "exponential_backoff"
    StrategyTokenBucket        Strategy = "token_bucket"
)

// backoffCap bounds the exponent applied under the exponential strategy so a
// long error streak cannot grow the sleep without limit.
const backoffCap = 5

type Config struct {
    DailyLimit           int
    HourlyLimit          int
    MinuteLimit          int
    DelayBetweenRequests time.Duration
    MaxConcurrent        int
    Strategy             Strategy
    BackoffMultiplier    float64
}

func (c Config) withDefaults() Config {
    if c.DailyLimit <= 0 { c.DailyLimit = 2000 }
    if c.HourlyLimit <= 0 { c.HourlyLimit = 100 }
    if c.MinuteLimit <= 0 { c.MinuteLimit = 10 }
    if c.DelayBetweenRequests <= 0 { c.DelayBetweenRequests = time.Second }
    if c.MaxConcurrent <= 0 { c.MaxConcurrent = 20 }
    if c.Strategy == "" { c.Strategy = StrategyFixedDelay }
    if c.BackoffMultiplier <= 0 { c.BackoffMultiplier = 2.0 }
    return c
}

type window struct {
    kind  string
    count int
    limit int
    start time.Time
}

// Limiter gates every upstream call behind three rolling quota windows
// (minute, hour, day) and a bounded concurrency pool. Windows reset lazily on
// Acquire when the wall clock crosses a boundary; no background timer runs.
type Limiter struct {
    cfg    Config
    sem    *semaphore.Weighted
    bucket *rate.Limiter // token_bucket strategy only
    log    *logrus.Entry

    active atomic.Int64

    mu                sync.Mutex
    minute, hour, day window
    lastRequest       time.Time
    lastError         time.Time
    consecutiveErrors int
    totalRequests     int64
    totalErrors       int64
    totalDelays       int64

    now func() time.Time
}

func New(cfg Config, log *logrus.Entry) *Limiter {
    cfg = cfg.withDefaults()
    l := &Limiter{
        cfg: cfg,
        sem: semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
        log: log,
        now: time.Now,
    }
    if cfg.Strategy == StrategyTokenBucket {
        l.bucket = rate.NewLimiter(rate.Every(cfg.DelayBetweenRequests), 1)
    }
    now := l.now()
    l.minute = window{kind: "minute", limit: cfg.MinuteLimit, start: minuteStart(now)}
    l.hour = window{kind: "hour", limit: cfg.HourlyLimit, start: hourStart(now)}
    l.day = window{kind: "day", limit: cfg.DailyLimit, start: dayStart(now)}
    return l
}

// Window boundaries align to the granularity, not to "now": a counter reset at
// 10:37 starts the new hour window at 10:00.
func minuteStart(t time.Time) time.Time { return t.Truncate(time.Minute) }
func hourStart(t time.Time) time.Time   { return t.Truncate(time.Hour) }
func dayStart(t time.Time) time.Time {
    y, m, d := t.Date()
    return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// resetWindows zeroes any counter whose boundary has been crossed. Callers
// hold l.mu.
func (l *Limiter) resetWindows() {
    now := l.now()
    if s := minuteStart(now); s.After(l.minute.start) {
        l.minute.count = 0
        l.minute.start = s
    }
    if s := hourStart(now); s.After(l.hour.start) {
        l.hour.count = 0
        l.hour.start = s
        l.log.Debug("hourly request counter reset")
    }
    if s := dayStart(now); s.After(l.day.start) {
        l.day.count = 0
        l.day.start = s
        l.log.Info("daily request counter reset")
    }
}

// Acquire gates one upstream request. It returns (false, nil) without blocking
// when any quota window is exhausted: that is backpressure, not an error, and
// the caller must surface it as a rate-limit outcome. Otherwise it blocks
// until a concurrency slot frees up. The only error is context cancellation
// while waiting for a slot.
func (l *Limiter) Acquire(ctx context.Context) (bool, error) {
    l.mu.Lock()
    l.resetWindows()
    for _, w := range []*window{&l.day, &l.hour, &l.minute} {
        if w.count >= w.limit {
            kind, count, limit := w.kind, w.count, w.limit
            l.mu.Unlock()
            l.log.WithFields(logrus.Fields{
                "window": kind,
                "count":  count,
                "limit":  limit,
            }).Warn("quota window exhausted")
            return false, nil
        }
    }
    l.mu.Unlock()

    if err := l.sem.Acquire(ctx, 1); err != nil {
        return false, err
    }
    l.active.Add(1)
    return true, nil
}

// Release frees the concurrency slot taken by a true-returning Acquire. It
// must be called exactly once per permit, on every exit path.
func (l *Limiter) Release() {
    l.active.Add(-1)
    l.sem.Release(1)
}

// pendingDelay computes how long the caller must sleep before the next
// request under the fixed-delay and exponential strategies. Callers hold l.mu.
func (l *Limiter) pendingDelay(now time.Time) time.Duration {
    wait := l.cfg.DelayBetweenRequests - now.Sub(l.lastRequest)
    if wait <= 0 {
        return 0
    }
    if l.cfg.Strategy == StrategyExponentialBackoff && l.consecutiveErrors > 0 {
        exp := min(l.consecutiveErrors, backoffCap)
        wait = time.Duration(float64(wait) * math.Pow(l.cfg.BackoffMultiplier, float64(exp)))
    }
    return wait
}

// WaitIfNeeded enforces the minimum spacing between upstream requests.
func (l *Limiter) WaitIfNeeded(ctx context.Context) error {
    if l.bucket != nil {
        if err := l.bucket.Wait(ctx); err != nil {
            return err
        }
        l.mu.Lock()
        l.lastRequest = l.now()
        l.mu.Unlock()
        return nil
    }

    l.mu.Lock()
    wait := l.pendingDelay(l.now())
    l.mu.Unlock()

    if wait > 0 {
        l.log.WithField("delay", wait.String()).Debug("pacing upstream request")
        t := time.NewTimer(wait)
        defer t.Stop()
        select {
        case <-ctx.Done():
            return ctx.Err()
        case <-t.C:
        }
        l.mu.Lock()
        l.totalDelays++
        l.mu.Unlock()
    }

    l.mu.Lock()
    l.lastRequest = l.now()
    l.mu.Unlock()
    return nil
}

// Record counts one request attempt against every window and feeds the error
// streak that drives backoff and health.
func (l *Limiter) Record(success bool) {
    l.mu.Lock()
    defer l.mu.Unlock()
    l.totalRequests++
    l.minute.count++
    l.hour.count++
    l.day.count++
    if success {
        l.consecutiveErrors = 0
        return
    }
    l.totalErrors++
    l.consecutiveErrors++
    l.lastError = l.now()
}

// Stats is a point-in-time snapshot of the limiter's counters.
type Stats struct {
    TotalRequests     int64    `json:"total_requests"`
    TotalErrors       int64    `json:"total_errors"`
    TotalDelays       int64    `json:"total_delays"`
    DailyRequests     int      `json:"daily_requests"`
    DailyLimit        int      `json:"daily_limit"`
    HourlyRequests    int      `json:"hourly_requests"`
    HourlyLimit       int      `json:"hourly_limit"`
    MinuteRequests    int      `json:"minute_requests"`
    MinuteLimit       int      `json:"minute_limit"`
    ActiveRequests    int64    `json:"active_requests"`
    MaxConcurrent     int      `json:"max_concurrent_requests"`
    ConsecutiveErrors int      `json:"consecutive_errors"`
    Strategy          Strategy `json:"strategy"`
}

func (l *Limiter) Stats() Stats {
    l.mu.Lock()
    defer l.mu.Unlock()
    return Stats{
        TotalRequests:     l.totalRequests,
        TotalErrors:       l.totalErrors,
        TotalDelays:       l.totalDelays,
        DailyRequests:     l.day.count,
        DailyLimit:        l.cfg.DailyLimit,
        HourlyRequests:    l.hour.count,
        HourlyLimit:       l.cfg.HourlyLimit,
        MinuteRequests:    l.minute.count,
        MinuteLimit:       l.cfg.MinuteLimit,
        ActiveRequests:    l.active.Load(),
        MaxConcurrent:     l.cfg.MaxConcurrent,
        ConsecutiveErrors: l.consecutiveErrors,
        Strategy:          l.cfg.Strategy,
    }
}

// Healthy reports false once daily or hourly utilization passes 95% or the
// upstream error streak passes 10.
func (l *Limiter) Healthy() bool {
    l.mu.Lock()
    defer l.mu.Unlock()
    if float64(l.day.count)/float64(l.cfg.DailyLimit) > 0.95 {
        return false
    }
    if float64(l.hour.count)/float64(l.cfg.HourlyLimit) > 0.95 {
        return false
    }
    if l.consecutiveErrors > 10 {
        return false
    }
    return true
}
