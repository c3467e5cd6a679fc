package upstream

import (
    "context"
    "time"
)

//go:generate mockgen -source upstream.go -destination mockupstream/client.go -package mockupstream

// Fields is a loosely typed provider response section. The provider nests
// values inconsistently (sometimes {"raw": 1.23, "fmt": "1.23"}), so raw maps
// are decoded first and flattened into canonical payloads by the caller.
type Fields map[string]any

// Bar is one interval of price history.
type Bar struct {
    Timestamp time.Time `json:"timestamp"`
    Open      *float64  `json:"open"`
    High      *float64  `json:"high"`
    Low       *float64  `json:"low"`
    Close     *float64  `json:"close"`
    Volume    *int64    `json:"volume"`
}

// StatementRow is one reporting period of a financial statement.
type StatementRow struct {
    Period string              `json:"period"`
    Items  map[string]*float64 `json:"items"`
}

// Match is one symbol search result.
type Match struct {
    Symbol   string `json:"symbol"`
    Name     string `json:"name"`
    Exchange string `json:"exchange"`
    Type     string `json:"type"`
}

// Client fetches raw market data from the upstream provider. Implementations
// return provider-shaped data; normalization into canonical payloads happens
// one layer up.
type Client interface {
    // FetchQuote returns the quote section for one symbol.
    FetchQuote(ctx context.Context, symbol string) (Fields, error)

    // FetchHistory returns price bars for a provider period ("1mo", "1y", ...)
    // and interval ("1d", "1wk", ...).
    FetchHistory(ctx context.Context, symbol, period, interval string) ([]Bar, error)

    // FetchFundamentals returns the named quoteSummary modules keyed by
    // module name.
    FetchFundamentals(ctx context.Context, symbol string, modules []string) (map[string]Fields, error)

    // FetchStatements returns statement rows for kind "income", "balance" or
    // "cashflow".
    FetchStatements(ctx context.Context, symbol, kind string) ([]StatementRow, error)

    // SearchSymbols looks up symbols matching a free-text query.
    SearchSymbols(ctx context.Context, query string, limit int) ([]Match, error)
}
