package main

import (
    "context"
    "encoding/json"
    "flag"
    "fmt"
    "os"
    "time"

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

// One-shot fetch CLI: runs a single facade operation and prints the JSON
// payload to stdout. Useful for smoke testing without the server.
func main() {
    var (
        op       = flag.String("op", "quote", "operation: quote, historical, fundamentals, company, statements, statistics, search, context")
        symbol   = flag.String("symbol", "", "symbol to fetch")
        market   = flag.String("market", "", "market code (default from config)")
        period   = flag.String("period", "1y", "history period (historical)")
        interval = flag.String("interval", "1d", "history interval (historical)")
        kind     = flag.String("kind", "income", "statement kind: income, balance, cashflow")
        query    = flag.String("query", "", "search query (search)")
        limit    = flag.Int("limit", 10, "max search results")
        cfgPath  = flag.String("config", os.Getenv("CONFIG_FILE"), "path to config.yaml")
        noCache  = flag.Bool("no-cache", false, "bypass the cache")
        timeout  = flag.Duration("timeout", 60*time.Second, "overall timeout")
    )
    flag.Parse()

    cfg, err := config.Load(*cfgPath)
    if err != nil {
        fmt.Fprintf(os.Stderr, "config: %v\n", err)
        os.Exit(1)
    }

    log := logging.Discard()
    entry := log.WithField("component", "fetch")

    httpClient := httpx.New(time.Duration(cfg.Upstream.TimeoutSec) * time.Second)
    httpClient.UserAgents = cfg.Upstream.UserAgents

    yahoo := upstream.NewYahoo(httpClient, upstream.YahooConfig{
        QuoteURL:   cfg.Upstream.QuoteURL,
        ChartURL:   cfg.Upstream.ChartURL,
        SummaryURL: cfg.Upstream.SummaryURL,
        SearchURL:  cfg.Upstream.SearchURL,
    }, entry)

    limiter := ratelimit.New(ratelimit.Config{
        DailyLimit:           cfg.RateLimit.DailyLimit,
        HourlyLimit:          cfg.RateLimit.HourlyLimit,
        MinuteLimit:          cfg.RateLimit.MinuteLimit,
        DelayBetweenRequests: time.Duration(cfg.RateLimit.DelayBetweenRequestsMS) * time.Millisecond,
        MaxConcurrent:        cfg.RateLimit.MaxConcurrentRequests,
        Strategy:             ratelimit.Strategy(cfg.RateLimit.Strategy),
        BackoffMultiplier:    cfg.RateLimit.BackoffMultiplier,
    }, entry)

    // a one-shot run has no use for a remote cache
    cacheLayer := cache.New(kvstore.NewMemory(), cache.Config{KeyPrefix: cfg.Cache.KeyPrefix}, entry)

    orc := fetcher.New(yahoo, cacheLayer, limiter, fetcher.Config{
        DefaultMarket:  cfg.Upstream.DefaultMarket,
        MarketSuffixes: cfg.Upstream.MarketSuffixes,
    }, entry)

    ctx, cancel := context.WithTimeout(context.Background(), *timeout)
    defer cancel()

    useCache := !*noCache
    var out any

    switch *op {
    case "quote":
        out, err = orc.Quote(ctx, requireSymbol(*symbol), *market, useCache)
    case "historical":
        out, err = orc.Historical(ctx, requireSymbol(*symbol), *period, *interval, *market, useCache)
    case "fundamentals":
        out, err = orc.Fundamentals(ctx, requireSymbol(*symbol), *market, useCache)
    case "company":
        out, err = orc.CompanyInfo(ctx, requireSymbol(*symbol), *market, useCache)
    case "statements":
        out, err = orc.Statements(ctx, requireSymbol(*symbol), *kind, *market, useCache)
    case "statistics":
        out, err = orc.MarketStatistics(ctx, requireSymbol(*symbol), *market, useCache)
    case "search":
        if *query == "" {
            fmt.Fprintln(os.Stderr, "-query is required for search")
            os.Exit(2)
        }
        out, err = orc.Search(ctx, *query, *limit, useCache)
    case "context":
        keys := make([]batch.KeySpec, 0, len(cfg.Context))
        for _, k := range cfg.Context {
            keys = append(keys, batch.KeySpec{Symbol: k.Symbol, Key: k.Key, Kind: batch.KeyKind(k.Kind), Critical: k.Critical})
        }
        out, err = batch.New(orc, keys, entry).GlobalContext(ctx)
    default:
        fmt.Fprintf(os.Stderr, "unknown op %q\n", *op)
        os.Exit(2)
    }
    if err != nil {
        fmt.Fprintf(os.Stderr, "%s: %v\n", *op, err)
        os.Exit(1)
    }

    enc := json.NewEncoder(os.Stdout)
    enc.SetIndent("", "  ")
    enc.SetEscapeHTML(false)
    _ = enc.Encode(out)
}

func requireSymbol(s string) string {
    if s == "" {
        fmt.Fprintln(os.Stderr, "-symbol is required")
        os.Exit(2)
    }
    return s
}
