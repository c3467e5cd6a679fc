package fetcher

import (
    "context"
    "fmt"
    "strings"
    "sync"
    "time"

    "github.com/sirupsen/logrus"
    "golang.org/x/sync/singleflight"

    "marketfacade/internal/cache"
    "marketfacade/internal/ratelimit"
    "marketfacade/internal/upstream"
)

// quoteSummary module sets per operation.
var (
    fundamentalModules = []string{"summaryDetail", "defaultKeyStatistics", "financialData"}
    companyModules     = []string{"assetProfile", "price", "summaryDetail"}
    statisticsModules  = []string{"summaryDetail", "defaultKeyStatistics", "price"}
)

type Config struct {
    DefaultMarket  string
    MarketSuffixes map[string]string
}

// Orchestrator runs every facade operation through the same pipeline:
// cache lookup, singleflight-coalesced guarded upstream fetch, best-effort
// write-through. Cache problems never fail an operation; quota exhaustion and
// upstream failures do.
type Orchestrator struct {
    client  upstream.Client
    cache   *cache.Cache
    limiter *ratelimit.Limiter
    cfg     Config
    log     *logrus.Entry

    sf singleflight.Group

    mu        sync.Mutex
    total     int64
    succeeded int64
    failed    int64

    now func() time.Time
}

func New(client upstream.Client, c *cache.Cache, l *ratelimit.Limiter, cfg Config, log *logrus.Entry) *Orchestrator {
    if cfg.DefaultMarket == "" {
        cfg.DefaultMarket = "US"
    }
    return &Orchestrator{
        client:  client,
        cache:   c,
        limiter: l,
        cfg:     cfg,
        log:     log,
        now:     time.Now,
    }
}

// providerSymbol adapts a caller symbol for the provider. Indian-market
// symbols get the exchange suffix unless the caller already supplied one.
func (o *Orchestrator) providerSymbol(symbol, market string) string {
    if market == "" {
        market = o.cfg.DefaultMarket
    }
    suffix, ok := o.cfg.MarketSuffixes[market]
    if !ok || suffix == "" {
        return symbol
    }
    if strings.Contains(symbol, ".") {
        return symbol
    }
    return symbol + suffix
}

// guarded runs fn inside a rate-limit permit: acquire, pace, call, record.
// A quota refusal surfaces as ErrRateLimited without touching the provider.
func (o *Orchestrator) guarded(ctx context.Context, op, symbol string, fn func(ctx context.Context) (any, error)) (any, error) {
    ok, err := o.limiter.Acquire(ctx)
    if err != nil {
        return nil, &UpstreamError{Op: op, Symbol: symbol, Err: err}
    }
    if !ok {
        o.countResult(false)
        return nil, ErrRateLimited
    }
    defer o.limiter.Release()

    if err := o.limiter.WaitIfNeeded(ctx); err != nil {
        o.countResult(false)
        return nil, &UpstreamError{Op: op, Symbol: symbol, Err: err}
    }

    v, err := fn(ctx)
    o.limiter.Record(err == nil)
    o.countResult(err == nil)
    if err != nil {
        o.log.WithError(err).WithFields(logrus.Fields{"op": op, "symbol": symbol}).Warn("upstream request failed")
        return nil, &UpstreamError{Op: op, Symbol: symbol, Err: err}
    }
    return v, nil
}

func (o *Orchestrator) countResult(success bool) {
    o.mu.Lock()
    o.total++
    if success {
        o.succeeded++
    } else {
        o.failed++
    }
    o.mu.Unlock()
}

// single coalesces concurrent fetches of the same cache slot into one
// upstream round trip.
func (o *Orchestrator) single(cat cache.Category, id string, fn func() (any, error)) (any, error) {
    v, err, _ := o.sf.Do(string(cat)+":"+id, fn)
    return v, err
}

// Quote returns the real-time quote for a symbol, or (nil, nil) when the
// provider has no usable data for it.
func (o *Orchestrator) Quote(ctx context.Context, symbol, market string, useCache bool) (*Quote, error) {
    if useCache {
        var q Quote
        if o.cache.Get(ctx, cache.CategoryQuote, symbol, &q) {
            return &q, nil
        }
    }
    v, err := o.single(cache.CategoryQuote, symbol, func() (any, error) {
        return o.guarded(ctx, "quote", symbol, func(ctx context.Context) (any, error) {
            f, err := o.client.FetchQuote(ctx, o.providerSymbol(symbol, market))
            if err != nil {
                return nil, err
            }
            return mapQuote(symbol, f, o.now().UTC()), nil
        })
    })
    if err != nil {
        return nil, err
    }
    q, _ := v.(*Quote)
    if q == nil {
        return nil, nil
    }
    if useCache {
        o.cache.Set(ctx, cache.CategoryQuote, symbol, q)
    }
    return q, nil
}

// Historical returns price bars for a symbol over a provider period and
// interval. The cache key carries the period and interval so different ranges
// do not collide.
func (o *Orchestrator) Historical(ctx context.Context, symbol, period, interval, market string, useCache bool) (*Historical, error) {
    if period == "" {
        period = "1y"
    }
    if interval == "" {
        interval = "1d"
    }
    key := fmt.Sprintf("%s_%s_%s", symbol, period, interval)

    if useCache {
        var h Historical
        if o.cache.Get(ctx, cache.CategoryHistorical, key, &h) {
            return &h, nil
        }
    }
    v, err := o.single(cache.CategoryHistorical, key, func() (any, error) {
        return o.guarded(ctx, "historical", symbol, func(ctx context.Context) (any, error) {
            bars, err := o.client.FetchHistory(ctx, o.providerSymbol(symbol, market), period, interval)
            if err != nil {
                return nil, err
            }
            if len(bars) == 0 {
                return (*Historical)(nil), nil
            }
            return &Historical{
                Symbol:      symbol,
                Period:      period,
                Interval:    interval,
                Data:        bars,
                TotalPoints: len(bars),
                Timestamp:   o.now().UTC(),
            }, nil
        })
    })
    if err != nil {
        return nil, err
    }
    h, _ := v.(*Historical)
    if h == nil {
        return nil, nil
    }
    if useCache {
        o.cache.Set(ctx, cache.CategoryHistorical, key, h)
    }
    return h, nil
}

func (o *Orchestrator) Fundamentals(ctx context.Context, symbol, market string, useCache bool) (*Fundamentals, error) {
    if useCache {
        var f Fundamentals
        if o.cache.Get(ctx, cache.CategoryFundamental, symbol, &f) {
            return &f, nil
        }
    }
    v, err := o.single(cache.CategoryFundamental, symbol, func() (any, error) {
        return o.guarded(ctx, "fundamentals", symbol, func(ctx context.Context) (any, error) {
            mods, err := o.client.FetchFundamentals(ctx, o.providerSymbol(symbol, market), fundamentalModules)
            if err != nil {
                return nil, err
            }
            return mapFundamentals(symbol, merged(mods), o.now().UTC()), nil
        })
    })
    if err != nil {
        return nil, err
    }
    f, _ := v.(*Fundamentals)
    if f == nil {
        return nil, nil
    }
    if useCache {
        o.cache.Set(ctx, cache.CategoryFundamental, symbol, f)
    }
    return f, nil
}

func (o *Orchestrator) CompanyInfo(ctx context.Context, symbol, market string, useCache bool) (*CompanyInfo, error) {
    if useCache {
        var c CompanyInfo
        if o.cache.Get(ctx, cache.CategoryCompany, symbol, &c) {
            return &c, nil
        }
    }
    v, err := o.single(cache.CategoryCompany, symbol, func() (any, error) {
        return o.guarded(ctx, "company", symbol, func(ctx context.Context) (any, error) {
            mods, err := o.client.FetchFundamentals(ctx, o.providerSymbol(symbol, market), companyModules)
            if err != nil {
                return nil, err
            }
            return mapCompanyInfo(symbol, merged(mods), o.now().UTC()), nil
        })
    })
    if err != nil {
        return nil, err
    }
    c, _ := v.(*CompanyInfo)
    if c == nil {
        return nil, nil
    }
    if useCache {
        o.cache.Set(ctx, cache.CategoryCompany, symbol, c)
    }
    return c, nil
}

// Statements returns rows of one financial statement kind ("income",
// "balance" or "cashflow").
func (o *Orchestrator) Statements(ctx context.Context, symbol, kind, market string, useCache bool) (*Statements, error) {
    if kind == "" {
        kind = "income"
    }
    key := fmt.Sprintf("%s_%s", symbol, kind)

    if useCache {
        var s Statements
        if o.cache.Get(ctx, cache.CategoryStatement, key, &s) {
            return &s, nil
        }
    }
    v, err := o.single(cache.CategoryStatement, key, func() (any, error) {
        return o.guarded(ctx, "statements", symbol, func(ctx context.Context) (any, error) {
            rows, err := o.client.FetchStatements(ctx, o.providerSymbol(symbol, market), kind)
            if err != nil {
                return nil, err
            }
            if len(rows) == 0 {
                return (*Statements)(nil), nil
            }
            return &Statements{
                Symbol:        symbol,
                StatementType: kind,
                Data:          rows,
                Timestamp:     o.now().UTC(),
            }, nil
        })
    })
    if err != nil {
        return nil, err
    }
    s, _ := v.(*Statements)
    if s == nil {
        return nil, nil
    }
    if useCache {
        o.cache.Set(ctx, cache.CategoryStatement, key, s)
    }
    return s, nil
}

func (o *Orchestrator) MarketStatistics(ctx context.Context, symbol, market string, useCache bool) (*MarketStatistics, error) {
    if useCache {
        var m MarketStatistics
        if o.cache.Get(ctx, cache.CategoryStatistics, symbol, &m) {
            return &m, nil
        }
    }
    v, err := o.single(cache.CategoryStatistics, symbol, func() (any, error) {
        return o.guarded(ctx, "statistics", symbol, func(ctx context.Context) (any, error) {
            mods, err := o.client.FetchFundamentals(ctx, o.providerSymbol(symbol, market), statisticsModules)
            if err != nil {
                return nil, err
            }
            return mapMarketStatistics(symbol, merged(mods), o.now().UTC()), nil
        })
    })
    if err != nil {
        return nil, err
    }
    m, _ := v.(*MarketStatistics)
    if m == nil {
        return nil, nil
    }
    if useCache {
        o.cache.Set(ctx, cache.CategoryStatistics, symbol, m)
    }
    return m, nil
}

// Search looks up symbols by free-text query. Results cache under the query
// and limit so narrower searches do not shadow wider ones.
func (o *Orchestrator) Search(ctx context.Context, query string, limit int, useCache bool) (*SearchResult, error) {
    if limit <= 0 {
        limit = 10
    }
    key := fmt.Sprintf("search_%s_%d", query, limit)

    if useCache {
        var r SearchResult
        if o.cache.Get(ctx, cache.CategorySearch, key, &r) {
            return &r, nil
        }
    }
    v, err := o.single(cache.CategorySearch, key, func() (any, error) {
        return o.guarded(ctx, "search", query, func(ctx context.Context) (any, error) {
            matches, err := o.client.SearchSymbols(ctx, query, limit)
            if err != nil {
                return nil, err
            }
            return &SearchResult{
                Query:     query,
                Matches:   matches,
                Count:     len(matches),
                Timestamp: o.now().UTC(),
            }, nil
        })
    })
    if err != nil {
        return nil, err
    }
    r, _ := v.(*SearchResult)
    if r != nil && useCache {
        o.cache.Set(ctx, cache.CategorySearch, key, r)
    }
    return r, nil
}

// ServiceStats aggregates the counters of the orchestrator and both of its
// collaborators into one report.
type ServiceStats struct {
    Service struct {
        TotalRequests      int64   `json:"total_requests"`
        SuccessfulRequests int64   `json:"successful_requests"`
        FailedRequests     int64   `json:"failed_requests"`
        SuccessRate        float64 `json:"success_rate"`
    } `json:"service"`
    RateLimiting ratelimit.Stats `json:"rate_limiting"`
    Caching      cache.Stats     `json:"caching"`
}

func (o *Orchestrator) Statistics() ServiceStats {
    o.mu.Lock()
    total, ok, failed := o.total, o.succeeded, o.failed
    o.mu.Unlock()

    var s ServiceStats
    s.Service.TotalRequests = total
    s.Service.SuccessfulRequests = ok
    s.Service.FailedRequests = failed
    denom := total
    if denom < 1 {
        denom = 1
    }
    s.Service.SuccessRate = float64(ok) / float64(denom)
    s.RateLimiting = o.limiter.Stats()
    s.Caching = o.cache.Stats()
    return s
}

func (o *Orchestrator) Healthy() bool {
    return o.limiter.Healthy()
}
