package main

import (
    "encoding/json"
    "errors"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/sirupsen/logrus"

    "marketfacade/internal/batch"
    "marketfacade/internal/cache"
    "marketfacade/internal/fetcher"
)

const maxBatchSymbols = 1000

type api struct {
    orc   *fetcher.Orchestrator
    coord *batch.Coordinator
    cache *cache.Cache
    log   *logrus.Entry
}

func (a *api) routes(mux *http.ServeMux) {
    mux.HandleFunc("GET /healthz", a.handleHealth)
    mux.HandleFunc("GET /api/v1/quote", a.handleQuote)
    mux.HandleFunc("GET /api/v1/quotes", a.handleQuotes)
    mux.HandleFunc("GET /api/v1/historical", a.handleHistorical)
    mux.HandleFunc("GET /api/v1/fundamentals", a.handleFundamentals)
    mux.HandleFunc("POST /api/v1/fundamentals/batch", a.handleFundamentalsBatch)
    mux.HandleFunc("GET /api/v1/company", a.handleCompany)
    mux.HandleFunc("GET /api/v1/statements", a.handleStatements)
    mux.HandleFunc("GET /api/v1/statistics/market", a.handleMarketStatistics)
    mux.HandleFunc("GET /api/v1/search", a.handleSearch)
    mux.HandleFunc("GET /api/v1/global-context", a.handleGlobalContext)
    mux.HandleFunc("GET /api/v1/statistics", a.handleStatistics)
    mux.HandleFunc("DELETE /api/v1/cache", a.handleCacheDelete)
}

type errorBody struct {
    Code    string `json:"code"`
    Message string `json:"message"`
    Details any    `json:"details,omitempty"`
}

type errorResponse struct {
    Error     errorBody `json:"error"`
    Timestamp string    `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
    w.WriteHeader(status)
    enc := json.NewEncoder(w)
    enc.SetEscapeHTML(false)
    _ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
    writeJSON(w, status, errorResponse{
        Error:     errorBody{Code: code, Message: message, Details: details},
        Timestamp: time.Now().UTC().Format(time.RFC3339),
    })
}

// writeOpError maps the facade error taxonomy onto HTTP statuses.
func (a *api) writeOpError(w http.ResponseWriter, err error) {
    var sve *batch.ServiceUnavailableError
    var ue *fetcher.UpstreamError
    switch {
    case errors.Is(err, fetcher.ErrRateLimited):
        writeError(w, http.StatusTooManyRequests, "YAHOO_RATE_LIMIT_EXCEEDED", "Yahoo Finance rate limit exceeded", nil)
    case errors.As(err, &sve):
        writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Critical market data unavailable", sve)
    case errors.As(err, &ue):
        writeError(w, http.StatusBadGateway, "YAHOO_API_ERROR", ue.Error(), nil)
    default:
        writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error(), nil)
    }
}

func writeNotFound(w http.ResponseWriter, symbol string) {
    writeError(w, http.StatusNotFound, "NOT_FOUND", "no data for "+symbol, nil)
}

// useCache defaults to true unless the caller disables it explicitly.
func useCacheParam(r *http.Request) bool {
    switch strings.ToLower(r.URL.Query().Get("use_cache")) {
    case "0", "false", "no":
        return false
    }
    return true
}

func symbolParam(w http.ResponseWriter, r *http.Request) (string, bool) {
    symbol := strings.TrimSpace(r.URL.Query().Get("symbol"))
    if symbol == "" {
        writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "missing symbol query param", nil)
        return "", false
    }
    return symbol, true
}

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
    status := "healthy"
    if !a.orc.Healthy() {
        status = "unhealthy"
    }
    writeJSON(w, http.StatusOK, map[string]any{
        "status":          status,
        "service":         "market-facade",
        "cache_available": a.cache.Ping(r.Context()) == nil,
        "timestamp":       time.Now().UTC().Format(time.RFC3339),
    })
}

func (a *api) handleQuote(w http.ResponseWriter, r *http.Request) {
    symbol, ok := symbolParam(w, r)
    if !ok {
        return
    }
    q, err := a.orc.Quote(r.Context(), symbol, r.URL.Query().Get("market"), useCacheParam(r))
    if err != nil {
        a.writeOpError(w, err)
        return
    }
    if q == nil {
        writeNotFound(w, symbol)
        return
    }
    writeJSON(w, http.StatusOK, q)
}

func (a *api) handleQuotes(w http.ResponseWriter, r *http.Request) {
    raw := r.URL.Query().Get("symbols")
    symbols := splitCSV(raw)
    if len(symbols) == 0 {
        writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "missing symbols query param", nil)
        return
    }
    if len(symbols) > maxBatchSymbols {
        writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "too many symbols", nil)
        return
    }
    results := a.coord.Quotes(r.Context(), symbols)
    writeJSON(w, http.StatusOK, map[string]any{
        "quotes":    results,
        "timestamp": time.Now().UTC().Format(time.RFC3339),
    })
}

func (a *api) handleHistorical(w http.ResponseWriter, r *http.Request) {
    symbol, ok := symbolParam(w, r)
    if !ok {
        return
    }
    q := r.URL.Query()
    h, err := a.orc.Historical(r.Context(), symbol, q.Get("period"), q.Get("interval"), q.Get("market"), useCacheParam(r))
    if err != nil {
        a.writeOpError(w, err)
        return
    }
    if h == nil {
        writeNotFound(w, symbol)
        return
    }
    writeJSON(w, http.StatusOK, h)
}

func (a *api) handleFundamentals(w http.ResponseWriter, r *http.Request) {
    symbol, ok := symbolParam(w, r)
    if !ok {
        return
    }
    f, err := a.orc.Fundamentals(r.Context(), symbol, r.URL.Query().Get("market"), useCacheParam(r))
    if err != nil {
        a.writeOpError(w, err)
        return
    }
    if f == nil {
        writeNotFound(w, symbol)
        return
    }
    writeJSON(w, http.StatusOK, f)
}

type fundamentalsBatchRequest struct {
    Symbols []string `json:"symbols"`
}

func (a *api) handleFundamentalsBatch(w http.ResponseWriter, r *http.Request) {
    var req fundamentalsBatchRequest
    dec := json.NewDecoder(r.Body)
    dec.DisallowUnknownFields()
    if err := dec.Decode(&req); err != nil {
        writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body", nil)
        return
    }
    if len(req.Symbols) == 0 {
        writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "symbols cannot be empty", nil)
        return
    }
    if len(req.Symbols) > maxBatchSymbols {
        writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "too many symbols", nil)
        return
    }

    out, failed := a.coord.FundamentalsBatch(r.Context(), req.Symbols)
    resp := map[string]any{
        "fundamentals": out,
        "timestamp":    time.Now().UTC().Format(time.RFC3339),
    }
    if len(failed) > 0 {
        resp["failed_symbols"] = failed
    }
    writeJSON(w, http.StatusOK, resp)
}

func (a *api) handleCompany(w http.ResponseWriter, r *http.Request) {
    symbol, ok := symbolParam(w, r)
    if !ok {
        return
    }
    c, err := a.orc.CompanyInfo(r.Context(), symbol, r.URL.Query().Get("market"), useCacheParam(r))
    if err != nil {
        a.writeOpError(w, err)
        return
    }
    if c == nil {
        writeNotFound(w, symbol)
        return
    }
    writeJSON(w, http.StatusOK, c)
}

func (a *api) handleStatements(w http.ResponseWriter, r *http.Request) {
    symbol, ok := symbolParam(w, r)
    if !ok {
        return
    }
    kind := r.URL.Query().Get("type")
    switch kind {
    case "", "income", "balance", "cashflow":
    default:
        writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "type must be income, balance or cashflow", nil)
        return
    }
    s, err := a.orc.Statements(r.Context(), symbol, kind, r.URL.Query().Get("market"), useCacheParam(r))
    if err != nil {
        a.writeOpError(w, err)
        return
    }
    if s == nil {
        writeNotFound(w, symbol)
        return
    }
    writeJSON(w, http.StatusOK, s)
}

func (a *api) handleMarketStatistics(w http.ResponseWriter, r *http.Request) {
    symbol, ok := symbolParam(w, r)
    if !ok {
        return
    }
    m, err := a.orc.MarketStatistics(r.Context(), symbol, r.URL.Query().Get("market"), useCacheParam(r))
    if err != nil {
        a.writeOpError(w, err)
        return
    }
    if m == nil {
        writeNotFound(w, symbol)
        return
    }
    writeJSON(w, http.StatusOK, m)
}

func (a *api) handleSearch(w http.ResponseWriter, r *http.Request) {
    query := strings.TrimSpace(r.URL.Query().Get("q"))
    if query == "" {
        writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "missing q query param", nil)
        return
    }
    limit := 10
    if v := r.URL.Query().Get("limit"); v != "" {
        n, err := strconv.Atoi(v)
        if err != nil || n < 1 || n > 50 {
            writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be 1-50", nil)
            return
        }
        limit = n
    }
    res, err := a.orc.Search(r.Context(), query, limit, useCacheParam(r))
    if err != nil {
        a.writeOpError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, res)
}

func (a *api) handleGlobalContext(w http.ResponseWriter, r *http.Request) {
    snap, err := a.coord.GlobalContext(r.Context())
    if err != nil {
        a.writeOpError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, snap)
}

func (a *api) handleStatistics(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, map[string]any{
        "statistics": a.orc.Statistics(),
        "timestamp":  time.Now().UTC().Format(time.RFC3339),
    })
}

// handleCacheDelete removes entries matching a glob pattern, "*" clears the
// whole namespace.
func (a *api) handleCacheDelete(w http.ResponseWriter, r *http.Request) {
    pattern := strings.TrimSpace(r.URL.Query().Get("pattern"))
    if pattern == "" {
        writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "missing pattern query param", nil)
        return
    }
    n := a.cache.DeleteByPattern(r.Context(), pattern)
    a.log.WithFields(logrus.Fields{"pattern": pattern, "deleted": n}).Info("cache entries deleted")
    writeJSON(w, http.StatusOK, map[string]any{
        "deleted":   n,
        "pattern":   pattern,
        "timestamp": time.Now().UTC().Format(time.RFC3339),
    })
}

func splitCSV(s string) []string {
    parts := strings.Split(s, ",")
    out := make([]string, 0, len(parts))
    for _, p := range parts {
        p = strings.TrimSpace(p)
        if p != "" { out = append(out, p) }
    }
    return out
}
