package main

import (
    "compress/gzip"
    "context"
    "io"
    "net/http"
    "os"
    "os/signal"
    "strings"
    "sync"
    "syscall"
    "time"

    "github.com/google/uuid"
    "github.com/sirupsen/logrus"

    "marketfacade/internal/batch"
    "marketfacade/internal/cache"
    "marketfacade/internal/config"
    "marketfacade/internal/fetcher"
    "marketfacade/internal/httpx"
    "marketfacade/internal/kvstore"
    "marketfacade/internal/logging"
    "marketfacade/internal/ratelimit"
    "marketfacade/internal/upstream"
)

func main() {
    cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
    if err != nil {
        logrus.Fatalf("config: %v", err)
    }

    log := logging.New(cfg.Logging)
    log.WithField("port", cfg.Server.Port).Info("starting market facade")

    store := openStore(cfg, log)
    defer store.Close()

    cacheLayer := cache.New(store, cache.Config{
        KeyPrefix:  cfg.Cache.KeyPrefix,
        DefaultTTL: time.Duration(cfg.Cache.DefaultTTLSec) * time.Second,
        TTLByCategory: map[cache.Category]time.Duration{
            cache.CategoryQuote:       time.Duration(cfg.Cache.QuoteTTLSec) * time.Second,
            cache.CategoryHistorical:  time.Duration(cfg.Cache.HistoricalTTLSec) * time.Second,
            cache.CategoryFundamental: time.Duration(cfg.Cache.FundamentalTTLSec) * time.Second,
            cache.CategoryStatement:   time.Duration(cfg.Cache.StatementTTLSec) * time.Second,
            cache.CategorySearch:      time.Duration(cfg.Cache.SearchTTLSec) * time.Second,
            // company tracks fundamentals, statistics track quotes
            cache.CategoryCompany:    time.Duration(cfg.Cache.FundamentalTTLSec) * time.Second,
            cache.CategoryStatistics: time.Duration(cfg.Cache.QuoteTTLSec) * time.Second,
        },
    }, logging.Component(log, "cache"))

    limiter := ratelimit.New(ratelimit.Config{
        DailyLimit:           cfg.RateLimit.DailyLimit,
        HourlyLimit:          cfg.RateLimit.HourlyLimit,
        MinuteLimit:          cfg.RateLimit.MinuteLimit,
        DelayBetweenRequests: time.Duration(cfg.RateLimit.DelayBetweenRequestsMS) * time.Millisecond,
        MaxConcurrent:        cfg.RateLimit.MaxConcurrentRequests,
        Strategy:             ratelimit.Strategy(cfg.RateLimit.Strategy),
        BackoffMultiplier:    cfg.RateLimit.BackoffMultiplier,
    }, logging.Component(log, "ratelimit"))

    httpClient := httpx.New(time.Duration(cfg.Upstream.TimeoutSec) * time.Second)
    httpClient.UserAgents = cfg.Upstream.UserAgents

    yahoo := upstream.NewYahoo(httpClient, upstream.YahooConfig{
        QuoteURL:   cfg.Upstream.QuoteURL,
        ChartURL:   cfg.Upstream.ChartURL,
        SummaryURL: cfg.Upstream.SummaryURL,
        SearchURL:  cfg.Upstream.SearchURL,
    }, logging.Component(log, "upstream"))

    orc := fetcher.New(yahoo, cacheLayer, limiter, fetcher.Config{
        DefaultMarket:  cfg.Upstream.DefaultMarket,
        MarketSuffixes: cfg.Upstream.MarketSuffixes,
    }, logging.Component(log, "fetcher"))

    coord := batch.New(orc, contextKeys(cfg), logging.Component(log, "batch"))

    a := &api{
        orc:   orc,
        coord: coord,
        cache: cacheLayer,
        log:   logging.Component(log, "api"),
    }
    mux := http.NewServeMux()
    a.routes(mux)

    srv := &http.Server{
        Addr:              ":" + cfg.Server.Port,
        Handler:           withJSONHeaders(withGzip(recoverPanic(a.log, limitBody(withRequestID(mux))))),
        ReadHeaderTimeout: 5 * time.Second,
        ReadTimeout:       15 * time.Second,
        WriteTimeout:      time.Duration(cfg.Server.RequestTimeoutSec+5) * time.Second,
        IdleTimeout:       60 * time.Second,
    }

    go func() {
        log.Infof("server listening on :%s", cfg.Server.Port)
        if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
            log.Fatalf("server: %v", err)
        }
    }()

    // graceful shutdown
    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer stop()
    <-ctx.Done()
    log.Info("shutting down")
    shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    _ = srv.Shutdown(shutdownCtx)
}

// openStore connects Redis when enabled, falling back to the in-process store
// so a Redis outage degrades cache durability instead of blocking startup.
func openStore(cfg config.Config, log *logrus.Logger) kvstore.Store {
    if !cfg.Redis.Enabled {
        log.Info("redis disabled, using in-memory store")
        return kvstore.NewMemory()
    }
    rds := kvstore.NewRedis(kvstore.RedisConfig{
        Addr:     cfg.Redis.Addr,
        Password: cfg.Redis.Password,
        DB:       cfg.Redis.DB,
    })
    ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
    defer cancel()
    if err := rds.Ping(ctx); err != nil {
        log.WithError(err).Warn("redis unreachable, falling back to in-memory store")
        _ = rds.Close()
        return kvstore.NewMemory()
    }
    log.WithField("addr", cfg.Redis.Addr).Info("connected to redis")
    return rds
}

func contextKeys(cfg config.Config) []batch.KeySpec {
    keys := make([]batch.KeySpec, 0, len(cfg.Context))
    for _, k := range cfg.Context {
        keys = append(keys, batch.KeySpec{
            Symbol:   k.Symbol,
            Key:      k.Key,
            Kind:     batch.KeyKind(k.Kind),
            Critical: k.Critical,
        })
    }
    return keys
}

func withJSONHeaders(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        w.Header().Set("Content-Type", "application/json; charset=utf-8")
        w.Header().Set("Access-Control-Allow-Origin", "*")
        w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
        w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
        if r.Method == http.MethodOptions {
            w.WriteHeader(http.StatusNoContent)
            return
        }
        next.ServeHTTP(w, r)
    })
}

// withRequestID tags every request so log lines from one call correlate.
func withRequestID(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        id := r.Header.Get("X-Request-ID")
        if id == "" {
            id = uuid.NewString()
        }
        w.Header().Set("X-Request-ID", id)
        next.ServeHTTP(w, r)
    })
}

// withGzip compresses responses when the client supports gzip.
func withGzip(next http.Handler) http.Handler {
    var gzPool = sync.Pool{New: func() any {
        w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
        return w
    }}
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
            next.ServeHTTP(w, r)
            return
        }
        gz := gzPool.Get().(*gzip.Writer)
        gz.Reset(w)
        defer func() {
            _ = gz.Close()
            gz.Reset(io.Discard)
            gzPool.Put(gz)
        }()
        w.Header().Set("Content-Encoding", "gzip")
        w.Header().Add("Vary", "Accept-Encoding")
        gw := gzipResponseWriter{ResponseWriter: w, Writer: gz}
        next.ServeHTTP(gw, r)
    })
}

type gzipResponseWriter struct {
    http.ResponseWriter
    Writer io.Writer
}

func (g gzipResponseWriter) Write(b []byte) (int, error) {
    return g.Writer.Write(b)
}

// limitBody caps request body size to avoid memory abuse.
func limitBody(next http.Handler) http.Handler {
    const maxBody = 1 << 20 // 1MB
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if r.Method == http.MethodPost && r.Body != nil {
            r.Body = http.MaxBytesReader(w, r.Body, maxBody)
        }
        next.ServeHTTP(w, r)
    })
}

// recoverPanic protects handlers from panics.
func recoverPanic(log *logrus.Entry, next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        defer func() {
            if rec := recover(); rec != nil {
                log.WithField("panic", rec).Error("handler panicked")
                writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error", nil)
            }
        }()
        next.ServeHTTP(w, r)
    })
}
