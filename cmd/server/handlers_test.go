package main

import (
    "encoding/json"
    "errors"
    "io"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "github.com/sirupsen/logrus"
    "github.com/stretchr/testify/require"
    "go.uber.org/mock/gomock"

    "marketfacade/internal/batch"
    "marketfacade/internal/cache"
    "marketfacade/internal/fetcher"
    "marketfacade/internal/kvstore"
    "marketfacade/internal/ratelimit"
    "marketfacade/internal/upstream"
    "marketfacade/internal/upstream/mockupstream"
)

func testServer(t *testing.T, client upstream.Client) *httptest.Server {
    t.Helper()
    log := logrus.New()
    log.SetOutput(io.Discard)
    entry := logrus.NewEntry(log)

    c := cache.New(kvstore.NewMemory(), cache.Config{KeyPrefix: "test"}, entry)
    l := ratelimit.New(ratelimit.Config{
        DailyLimit:           1000,
        HourlyLimit:          1000,
        MinuteLimit:          1000,
        DelayBetweenRequests: time.Nanosecond,
        MaxConcurrent:        10,
    }, entry)
    orc := fetcher.New(client, c, l, fetcher.Config{
        DefaultMarket:  "US",
        MarketSuffixes: map[string]string{"IN": ".NS"},
    }, entry)
    keys := []batch.KeySpec{
        {Symbol: "^GSPC", Key: "sp500", Kind: batch.KindIndex, Critical: true},
        {Symbol: "^VIX", Key: "vix", Kind: batch.KindScalar, Critical: true},
    }
    a := &api{orc: orc, coord: batch.New(orc, keys, entry), cache: c, log: entry}

    mux := http.NewServeMux()
    a.routes(mux)
    srv := httptest.NewServer(withJSONHeaders(recoverPanic(entry, withRequestID(mux))))
    t.Cleanup(srv.Close)
    return srv
}

func quoteFields(price float64) upstream.Fields {
    return upstream.Fields{
        "regularMarketPrice":         price,
        "regularMarketChange":        1.0,
        "regularMarketChangePercent": 0.5,
        "regularMarketOpen":          price,
        "volume":                     float64(100),
    }
}

func get(t *testing.T, srv *httptest.Server, path string) (*http.Response, []byte) {
    t.Helper()
    resp, err := http.Get(srv.URL + path)
    require.NoError(t, err)
    body, err := io.ReadAll(resp.Body)
    require.NoError(t, err)
    resp.Body.Close()
    return resp, body
}

func TestHealthz(t *testing.T) {
    t.Parallel()

    ctrl := gomock.NewController(t)
    srv := testServer(t, mockupstream.NewMockClient(ctrl))

    resp, body := get(t, srv, "/healthz")
    require.Equal(t, http.StatusOK, resp.StatusCode)
    require.NotEmpty(t, resp.Header.Get("X-Request-ID"))

    var h map[string]any
    require.NoError(t, json.Unmarshal(body, &h))
    require.Equal(t, "healthy", h["status"])
    require.Equal(t, true, h["cache_available"])
}

func TestQuoteEndpoint(t *testing.T) {
    t.Parallel()

    ctrl := gomock.NewController(t)
    client := mockupstream.NewMockClient(ctrl)
    client.EXPECT().FetchQuote(gomock.Any(), "AAPL").Return(quoteFields(187.5), nil)
    srv := testServer(t, client)

    resp, body := get(t, srv, "/api/v1/quote?symbol=AAPL")
    require.Equal(t, http.StatusOK, resp.StatusCode)
    require.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))

    var q fetcher.Quote
    require.NoError(t, json.Unmarshal(body, &q))
    require.Equal(t, "AAPL", q.Symbol)
    require.Equal(t, 187.5, *q.Price)
}

func TestQuoteMissingSymbol(t *testing.T) {
    t.Parallel()

    ctrl := gomock.NewController(t)
    srv := testServer(t, mockupstream.NewMockClient(ctrl))

    resp, body := get(t, srv, "/api/v1/quote")
    require.Equal(t, http.StatusBadRequest, resp.StatusCode)

    var e errorResponse
    require.NoError(t, json.Unmarshal(body, &e))
    require.Equal(t, "INVALID_REQUEST", e.Error.Code)
    require.NotEmpty(t, e.Timestamp)
}

func TestQuoteNotFound(t *testing.T) {
    t.Parallel()

    ctrl := gomock.NewController(t)
    client := mockupstream.NewMockClient(ctrl)
    client.EXPECT().FetchQuote(gomock.Any(), "NOPE").Return(upstream.Fields{"symbol": "NOPE"}, nil)
    srv := testServer(t, client)

    resp, _ := get(t, srv, "/api/v1/quote?symbol=NOPE")
    require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestQuoteUpstreamFailureMapsTo502(t *testing.T) {
    t.Parallel()

    ctrl := gomock.NewController(t)
    client := mockupstream.NewMockClient(ctrl)
    client.EXPECT().FetchQuote(gomock.Any(), "AAPL").Return(nil, errors.New("boom"))
    srv := testServer(t, client)

    resp, body := get(t, srv, "/api/v1/quote?symbol=AAPL")
    require.Equal(t, http.StatusBadGateway, resp.StatusCode)

    var e errorResponse
    require.NoError(t, json.Unmarshal(body, &e))
    require.Equal(t, "YAHOO_API_ERROR", e.Error.Code)
}

func TestRateLimitMapsTo429(t *testing.T) {
    t.Parallel()

    ctrl := gomock.NewController(t)
    client := mockupstream.NewMockClient(ctrl)

    log := logrus.New()
    log.SetOutput(io.Discard)
    entry := logrus.NewEntry(log)
    c := cache.New(kvstore.NewMemory(), cache.Config{}, entry)
    l := ratelimit.New(ratelimit.Config{
        MinuteLimit:          1,
        DelayBetweenRequests: time.Nanosecond,
        MaxConcurrent:        5,
    }, entry)
    orc := fetcher.New(client, c, l, fetcher.Config{}, entry)
    a := &api{orc: orc, coord: batch.New(orc, nil, entry), cache: c, log: entry}
    mux := http.NewServeMux()
    a.routes(mux)
    srv := httptest.NewServer(mux)
    t.Cleanup(srv.Close)

    client.EXPECT().FetchQuote(gomock.Any(), "AAPL").Return(quoteFields(1), nil)

    resp, _ := get(t, srv, "/api/v1/quote?symbol=AAPL&use_cache=false")
    require.Equal(t, http.StatusOK, resp.StatusCode)

    resp, body := get(t, srv, "/api/v1/quote?symbol=MSFT&use_cache=false")
    require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

    var e errorResponse
    require.NoError(t, json.Unmarshal(body, &e))
    require.Equal(t, "YAHOO_RATE_LIMIT_EXCEEDED", e.Error.Code)
}

func TestFundamentalsBatchEndpoint(t *testing.T) {
    t.Parallel()

    ctrl := gomock.NewController(t)
    client := mockupstream.NewMockClient(ctrl)
    client.EXPECT().
        FetchFundamentals(gomock.Any(), "AAPL", gomock.Any()).
        Return(map[string]upstream.Fields{"summaryDetail": {"trailingPE": 29.4}}, nil)
    client.EXPECT().
        FetchFundamentals(gomock.Any(), "NOPE", gomock.Any()).
        Return(nil, errors.New("no data"))
    srv := testServer(t, client)

    resp, err := http.Post(srv.URL+"/api/v1/fundamentals/batch", "application/json",
        strings.NewReader(`{"symbols":["AAPL","NOPE"]}`))
    require.NoError(t, err)
    body, _ := io.ReadAll(resp.Body)
    resp.Body.Close()
    require.Equal(t, http.StatusOK, resp.StatusCode)

    var out struct {
        Fundamentals  map[string]*fetcher.Fundamentals `json:"fundamentals"`
        FailedSymbols []string                         `json:"failed_symbols"`
    }
    require.NoError(t, json.Unmarshal(body, &out))
    require.Contains(t, out.Fundamentals, "AAPL")
    require.Equal(t, []string{"NOPE"}, out.FailedSymbols)
}

func TestGlobalContextEndpoint(t *testing.T) {
    t.Parallel()

    ctrl := gomock.NewController(t)
    client := mockupstream.NewMockClient(ctrl)
    client.EXPECT().FetchQuote(gomock.Any(), "^GSPC").Return(quoteFields(5845.2), nil)
    client.EXPECT().FetchQuote(gomock.Any(), "^VIX").Return(quoteFields(13.45), nil)
    srv := testServer(t, client)

    resp, body := get(t, srv, "/api/v1/global-context")
    require.Equal(t, http.StatusOK, resp.StatusCode)

    var flat map[string]json.RawMessage
    require.NoError(t, json.Unmarshal(body, &flat))
    require.Contains(t, flat, "sp500")
    require.Contains(t, flat, "vix")
    require.Contains(t, flat, "timestamp")
}

func TestGlobalContextCriticalMissingMapsTo503(t *testing.T) {
    t.Parallel()

    ctrl := gomock.NewController(t)
    client := mockupstream.NewMockClient(ctrl)
    client.EXPECT().FetchQuote(gomock.Any(), "^GSPC").Return(quoteFields(5845.2), nil)
    client.EXPECT().FetchQuote(gomock.Any(), "^VIX").Return(nil, errors.New("boom"))
    srv := testServer(t, client)

    resp, body := get(t, srv, "/api/v1/global-context")
    require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

    var e errorResponse
    require.NoError(t, json.Unmarshal(body, &e))
    require.Equal(t, "SERVICE_UNAVAILABLE", e.Error.Code)
}

func TestStatisticsEndpoint(t *testing.T) {
    t.Parallel()

    ctrl := gomock.NewController(t)
    client := mockupstream.NewMockClient(ctrl)
    client.EXPECT().FetchQuote(gomock.Any(), "AAPL").Return(quoteFields(1), nil)
    srv := testServer(t, client)

    _, _ = get(t, srv, "/api/v1/quote?symbol=AAPL")

    resp, body := get(t, srv, "/api/v1/statistics")
    require.Equal(t, http.StatusOK, resp.StatusCode)

    var out struct {
        Statistics fetcher.ServiceStats `json:"statistics"`
    }
    require.NoError(t, json.Unmarshal(body, &out))
    require.EqualValues(t, 1, out.Statistics.Service.TotalRequests)
    require.EqualValues(t, 1000, out.Statistics.RateLimiting.MinuteLimit)
}

func TestCacheDeleteEndpoint(t *testing.T) {
    t.Parallel()

    ctrl := gomock.NewController(t)
    client := mockupstream.NewMockClient(ctrl)
    client.EXPECT().FetchQuote(gomock.Any(), "AAPL").Return(quoteFields(1), nil)
    srv := testServer(t, client)

    _, _ = get(t, srv, "/api/v1/quote?symbol=AAPL")

    req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/cache?pattern=quote:*", nil)
    require.NoError(t, err)
    resp, err := http.DefaultClient.Do(req)
    require.NoError(t, err)
    body, _ := io.ReadAll(resp.Body)
    resp.Body.Close()
    require.Equal(t, http.StatusOK, resp.StatusCode)

    var out struct {
        Deleted int `json:"deleted"`
    }
    require.NoError(t, json.Unmarshal(body, &out))
    require.Equal(t, 1, out.Deleted)
}

func TestSearchEndpoint(t *testing.T) {
    t.Parallel()

    ctrl := gomock.NewController(t)
    client := mockupstream.NewMockClient(ctrl)
    client.EXPECT().
        SearchSymbols(gomock.Any(), "apple", 5).
        Return([]upstream.Match{{Symbol: "AAPL", Name: "Apple Inc."}}, nil)
    srv := testServer(t, client)

    resp, body := get(t, srv, "/api/v1/search?q=apple&limit=5")
    require.Equal(t, http.StatusOK, resp.StatusCode)

    var out fetcher.SearchResult
    require.NoError(t, json.Unmarshal(body, &out))
    require.Equal(t, 1, out.Count)
}
