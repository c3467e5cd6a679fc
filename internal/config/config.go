package config

import (
    "errors"
    "fmt"
    "os"
    "strings"

    "github.com/joho/godotenv"
    "gopkg.in/yaml.v3"

    "marketfacade/internal/logging"
)

type Server struct {
    Port              string `yaml:"port"`
    RequestTimeoutSec int    `yaml:"request_timeout_sec"`
}

type Redis struct {
    Enabled  bool   `yaml:"enabled"`
    Addr     string `yaml:"addr"`
    Password string `yaml:"password"`
    DB       int    `yaml:"db"`
}

type RateLimit struct {
    DailyLimit             int     `yaml:"daily_limit"`
    HourlyLimit            int     `yaml:"hourly_limit"`
    MinuteLimit            int     `yaml:"minute_limit"`
    DelayBetweenRequestsMS int     `yaml:"delay_between_requests_ms"`
    MaxConcurrentRequests  int     `yaml:"max_concurrent_requests"`
    Strategy               string  `yaml:"strategy"`
    BackoffMultiplier      float64 `yaml:"backoff_multiplier"`
}

type Cache struct {
    KeyPrefix        string `yaml:"key_prefix"`
    DefaultTTLSec    int    `yaml:"default_ttl_sec"`
    QuoteTTLSec      int    `yaml:"quote_ttl_sec"`
    HistoricalTTLSec int    `yaml:"historical_ttl_sec"`
    FundamentalTTLSec int   `yaml:"fundamental_ttl_sec"`
    StatementTTLSec  int    `yaml:"statement_ttl_sec"`
    SearchTTLSec     int    `yaml:"search_ttl_sec"`
}

type Upstream struct {
    QuoteURL       string            `yaml:"quote_url"`
    ChartURL       string            `yaml:"chart_url"`
    SummaryURL     string            `yaml:"summary_url"`
    SearchURL      string            `yaml:"search_url"`
    TimeoutSec     int               `yaml:"timeout_sec"`
    UserAgents     []string          `yaml:"user_agents"`
    DefaultMarket  string            `yaml:"default_market"`
    MarketSuffixes map[string]string `yaml:"market_suffixes"`
}

// ContextKey declares one logical key of the global market context and which
// provider symbol feeds it. Critical keys fail the whole context call when
// unresolved; the rest are simply omitted.
type ContextKey struct {
    Symbol   string `yaml:"symbol"`
    Key      string `yaml:"key"`
    Kind     string `yaml:"kind"` // index | scalar | rate
    Critical bool   `yaml:"critical"`
}

type Config struct {
    Server    Server         `yaml:"server"`
    Logging   logging.Config `yaml:"logging"`
    Redis     Redis          `yaml:"redis"`
    RateLimit RateLimit      `yaml:"rate_limit"`
    Cache     Cache          `yaml:"cache"`
    Upstream  Upstream       `yaml:"upstream"`
    Context   []ContextKey   `yaml:"context_keys"`
}

func Default() Config {
    return Config{
        Server:  Server{Port: "8014", RequestTimeoutSec: 30},
        Logging: logging.Config{Level: "info"},
        Redis:   Redis{Enabled: true, Addr: "localhost:6379", DB: 2},
        RateLimit: RateLimit{
            DailyLimit:             2000,
            HourlyLimit:            100,
            MinuteLimit:            10,
            DelayBetweenRequestsMS: 1000,
            MaxConcurrentRequests:  20,
            Strategy:               "fixed_delay",
            BackoffMultiplier:      2.0,
        },
        Cache: Cache{
            KeyPrefix:        "market",
            DefaultTTLSec:    1800,
            QuoteTTLSec:      300,
            HistoricalTTLSec: 3600,
            FundamentalTTLSec: 7200,
            StatementTTLSec:  86400,
            SearchTTLSec:     1800,
        },
        Upstream: Upstream{
            QuoteURL:   "https://query1.finance.yahoo.com/v7/finance/quote",
            ChartURL:   "https://query1.finance.yahoo.com/v8/finance/chart",
            SummaryURL: "https://query1.finance.yahoo.com/v10/finance/quoteSummary",
            SearchURL:  "https://query1.finance.yahoo.com/v1/finance/search",
            TimeoutSec: 30,
            UserAgents: []string{
                "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
                "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36",
                "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36",
            },
            DefaultMarket:  "US",
            MarketSuffixes: map[string]string{"IN": ".NS"},
        },
        Context: []ContextKey{
            {Symbol: "^GSPC", Key: "sp500", Kind: "index", Critical: true},
            {Symbol: "^IXIC", Key: "nasdaq", Kind: "index", Critical: true},
            {Symbol: "^DJI", Key: "dow_jones", Kind: "index"},
            {Symbol: "^VIX", Key: "vix", Kind: "scalar", Critical: true},
            {Symbol: "GC=F", Key: "gold", Kind: "index"},
            {Symbol: "USDINR=X", Key: "usd_inr", Kind: "rate"},
            {Symbol: "CL=F", Key: "crude_oil", Kind: "index"},
        },
    }
}

// Load reads YAML config from path. If path is empty or the file does not
// exist, it returns defaults. A .env file (when present) and environment
// variables override select fields.
func Load(path string) (Config, error) {
    _ = godotenv.Load()

    cfg := Default()
    if path == "" {
        if _, err := os.Stat("config.yaml"); err == nil {
            path = "config.yaml"
        }
    }
    if path != "" {
        b, err := os.ReadFile(path)
        if err != nil && !errors.Is(err, os.ErrNotExist) {
            return cfg, fmt.Errorf("read config: %w", err)
        }
        if err == nil {
            if err := yaml.Unmarshal(b, &cfg); err != nil {
                return cfg, fmt.Errorf("parse config: %w", err)
            }
        }
    }
    applyEnv(&cfg)
    if err := cfg.Validate(); err != nil {
        return cfg, err
    }
    return cfg, nil
}

func (c Config) Validate() error {
    if c.Server.Port == "" {
        return fmt.Errorf("config: server port must be set")
    }
    if c.RateLimit.MaxConcurrentRequests <= 0 {
        return fmt.Errorf("config: max_concurrent_requests must be positive")
    }
    switch c.RateLimit.Strategy {
    case "fixed_delay", "exponential_backoff", "token_bucket":
    default:
        return fmt.Errorf("config: unknown rate limit strategy %q", c.RateLimit.Strategy)
    }
    seen := make(map[string]struct{}, len(c.Context))
    for _, k := range c.Context {
        if k.Symbol == "" || k.Key == "" {
            return fmt.Errorf("config: context key needs both symbol and key")
        }
        if _, dup := seen[k.Key]; dup {
            return fmt.Errorf("config: duplicate context key %q", k.Key)
        }
        seen[k.Key] = struct{}{}
        switch k.Kind {
        case "index", "scalar", "rate":
        default:
            return fmt.Errorf("config: context key %q has unknown kind %q", k.Key, k.Kind)
        }
    }
    return nil
}

func applyEnv(cfg *Config) {
    if v := os.Getenv("PORT"); v != "" { cfg.Server.Port = v }
    if v := os.Getenv("REQUEST_TIMEOUT_SEC"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Server.RequestTimeoutSec = x }
    }
    if v := os.Getenv("LOG_LEVEL"); v != "" { cfg.Logging.Level = v }
    if v := os.Getenv("LOG_FILE"); v != "" { cfg.Logging.File = v }

    if v := os.Getenv("REDIS_ENABLED"); v != "" { cfg.Redis.Enabled = parseBool(v, cfg.Redis.Enabled) }
    if v := os.Getenv("REDIS_ADDR"); v != "" { cfg.Redis.Addr = v }
    if v := os.Getenv("REDIS_PASSWORD"); v != "" { cfg.Redis.Password = v }
    if v := os.Getenv("REDIS_DB"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x >= 0 { cfg.Redis.DB = x }
    }

    if v := os.Getenv("RATE_LIMIT_DAILY"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.RateLimit.DailyLimit = x }
    }
    if v := os.Getenv("RATE_LIMIT_HOURLY"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.RateLimit.HourlyLimit = x }
    }
    if v := os.Getenv("RATE_LIMIT_MINUTE"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.RateLimit.MinuteLimit = x }
    }
    if v := os.Getenv("RATE_LIMIT_STRATEGY"); v != "" { cfg.RateLimit.Strategy = strings.ToLower(v) }
    if v := os.Getenv("MAX_CONCURRENT_REQUESTS"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.RateLimit.MaxConcurrentRequests = x }
    }

    if v := os.Getenv("CACHE_KEY_PREFIX"); v != "" { cfg.Cache.KeyPrefix = v }
    if v := os.Getenv("CACHE_TTL"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Cache.DefaultTTLSec = x }
    }
    if v := os.Getenv("QUOTE_CACHE_TTL"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Cache.QuoteTTLSec = x }
    }
    if v := os.Getenv("HISTORICAL_CACHE_TTL"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Cache.HistoricalTTLSec = x }
    }
    if v := os.Getenv("FUNDAMENTAL_CACHE_TTL"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Cache.FundamentalTTLSec = x }
    }
    if v := os.Getenv("STATEMENT_CACHE_TTL"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Cache.StatementTTLSec = x }
    }
    if v := os.Getenv("SEARCH_CACHE_TTL"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Cache.SearchTTLSec = x }
    }

    if v := os.Getenv("UPSTREAM_TIMEOUT_SEC"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Upstream.TimeoutSec = x }
    }
    if v := os.Getenv("DEFAULT_MARKET"); v != "" { cfg.Upstream.DefaultMarket = v }
}

func parseBool(v string, def bool) bool {
    switch strings.ToLower(v) {
    case "1", "true", "yes", "y":
        return true
    case "0", "false", "no", "n":
        return false
    }
    return def
}
