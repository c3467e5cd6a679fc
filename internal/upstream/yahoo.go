package upstream

import (
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "net/url"
    "strings"
    "time"

    "github.com/sirupsen/logrus"

    "marketfacade/internal/httpx"
)

// StatusError is returned when the provider answers with a non-2xx status.
// Callers inspect Code to distinguish provider throttling (429) from outages.
type StatusError struct {
    Code int
    URL  string
}

func (e *StatusError) Error() string {
    return fmt.Sprintf("upstream status %d from %s", e.Code, e.URL)
}

type YahooConfig struct {
    QuoteURL   string
    ChartURL   string
    SummaryURL string
    SearchURL  string
}

// Yahoo talks to the public query1.finance.yahoo.com endpoints.
type Yahoo struct {
    http *httpx.Client
    cfg  YahooConfig
    log  *logrus.Entry
}

func NewYahoo(hc *httpx.Client, cfg YahooConfig, log *logrus.Entry) *Yahoo {
    return &Yahoo{http: hc, cfg: cfg, log: log}
}

var _ Client = (*Yahoo)(nil)

func (y *Yahoo) getJSON(ctx context.Context, rawURL string, out any) error {
    req, err := http.NewRequest(http.MethodGet, rawURL, nil)
    if err != nil {
        return fmt.Errorf("build request: %w", err)
    }
    req.Header.Set("Accept", "application/json")

    resp, err := y.http.Do(ctx, req)
    if err != nil {
        return fmt.Errorf("execute request: %w", err)
    }
    defer resp.Body.Close()

    if resp.StatusCode < 200 || resp.StatusCode > 299 {
        return &StatusError{Code: resp.StatusCode, URL: rawURL}
    }
    if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
        return fmt.Errorf("decode response: %w", err)
    }
    return nil
}

func (y *Yahoo) FetchQuote(ctx context.Context, symbol string) (Fields, error) {
    u := fmt.Sprintf("%s?symbols=%s", y.cfg.QuoteURL, url.QueryEscape(symbol))

    var body struct {
        QuoteResponse struct {
            Result []Fields `json:"result"`
            Error  *struct {
                Code        string `json:"code"`
                Description string `json:"description"`
            } `json:"error"`
        } `json:"quoteResponse"`
    }
    if err := y.getJSON(ctx, u, &body); err != nil {
        return nil, err
    }
    if e := body.QuoteResponse.Error; e != nil {
        return nil, fmt.Errorf("provider error %s: %s", e.Code, e.Description)
    }
    if len(body.QuoteResponse.Result) == 0 {
        return nil, fmt.Errorf("no quote for %s", symbol)
    }
    return body.QuoteResponse.Result[0], nil
}

func (y *Yahoo) FetchHistory(ctx context.Context, symbol, period, interval string) ([]Bar, error) {
    u := fmt.Sprintf("%s/%s?range=%s&interval=%s",
        y.cfg.ChartURL, url.PathEscape(symbol), url.QueryEscape(period), url.QueryEscape(interval))

    var body struct {
        Chart struct {
            Result []struct {
                Timestamp  []int64 `json:"timestamp"`
                Indicators struct {
                    Quote []struct {
                        Open   []*float64 `json:"open"`
                        High   []*float64 `json:"high"`
                        Low    []*float64 `json:"low"`
                        Close  []*float64 `json:"close"`
                        Volume []*int64   `json:"volume"`
                    } `json:"quote"`
                } `json:"indicators"`
            } `json:"result"`
            Error *struct {
                Code        string `json:"code"`
                Description string `json:"description"`
            } `json:"error"`
        } `json:"chart"`
    }
    if err := y.getJSON(ctx, u, &body); err != nil {
        return nil, err
    }
    if e := body.Chart.Error; e != nil {
        return nil, fmt.Errorf("provider error %s: %s", e.Code, e.Description)
    }
    if len(body.Chart.Result) == 0 || len(body.Chart.Result[0].Indicators.Quote) == 0 {
        return nil, fmt.Errorf("no history for %s", symbol)
    }

    res := body.Chart.Result[0]
    q := res.Indicators.Quote[0]
    bars := make([]Bar, 0, len(res.Timestamp))
    for i, ts := range res.Timestamp {
        b := Bar{Timestamp: time.Unix(ts, 0).UTC()}
        if i < len(q.Open) { b.Open = q.Open[i] }
        if i < len(q.High) { b.High = q.High[i] }
        if i < len(q.Low) { b.Low = q.Low[i] }
        if i < len(q.Close) { b.Close = q.Close[i] }
        if i < len(q.Volume) { b.Volume = q.Volume[i] }
        bars = append(bars, b)
    }
    return bars, nil
}

func (y *Yahoo) quoteSummary(ctx context.Context, symbol string, modules []string) (map[string]json.RawMessage, error) {
    u := fmt.Sprintf("%s/%s?modules=%s",
        y.cfg.SummaryURL, url.PathEscape(symbol), url.QueryEscape(strings.Join(modules, ",")))

    var body struct {
        QuoteSummary struct {
            Result []map[string]json.RawMessage `json:"result"`
            Error  *struct {
                Code        string `json:"code"`
                Description string `json:"description"`
            } `json:"error"`
        } `json:"quoteSummary"`
    }
    if err := y.getJSON(ctx, u, &body); err != nil {
        return nil, err
    }
    if e := body.QuoteSummary.Error; e != nil {
        return nil, fmt.Errorf("provider error %s: %s", e.Code, e.Description)
    }
    if len(body.QuoteSummary.Result) == 0 {
        return nil, fmt.Errorf("no summary for %s", symbol)
    }
    return body.QuoteSummary.Result[0], nil
}

func (y *Yahoo) FetchFundamentals(ctx context.Context, symbol string, modules []string) (map[string]Fields, error) {
    raw, err := y.quoteSummary(ctx, symbol, modules)
    if err != nil {
        return nil, err
    }
    out := make(map[string]Fields, len(raw))
    for name, msg := range raw {
        var f Fields
        if err := json.Unmarshal(msg, &f); err != nil {
            y.log.WithError(err).WithField("module", name).Warn("skipping malformed summary module")
            continue
        }
        out[name] = f
    }
    return out, nil
}

// statementModules maps the public statement kinds onto provider module and
// row-list names.
var statementModules = map[string][2]string{
    "income":   {"incomeStatementHistory", "incomeStatementHistory"},
    "balance":  {"balanceSheetHistory", "balanceSheetStatements"},
    "cashflow": {"cashflowStatementHistory", "cashflowStatements"},
}

func (y *Yahoo) FetchStatements(ctx context.Context, symbol, kind string) ([]StatementRow, error) {
    names, ok := statementModules[kind]
    if !ok {
        return nil, fmt.Errorf("unknown statement kind %q", kind)
    }

    raw, err := y.quoteSummary(ctx, symbol, []string{names[0]})
    if err != nil {
        return nil, err
    }
    msg, ok := raw[names[0]]
    if !ok {
        return nil, fmt.Errorf("no %s statements for %s", kind, symbol)
    }

    var section map[string]json.RawMessage
    if err := json.Unmarshal(msg, &section); err != nil {
        return nil, fmt.Errorf("decode %s section: %w", kind, err)
    }
    var periods []map[string]any
    if err := json.Unmarshal(section[names[1]], &periods); err != nil {
        return nil, fmt.Errorf("decode %s rows: %w", kind, err)
    }

    rows := make([]StatementRow, 0, len(periods))
    for _, p := range periods {
        row := StatementRow{Items: make(map[string]*float64)}
        for field, v := range p {
            if field == "endDate" {
                row.Period = rawFmt(v)
                continue
            }
            if n := rawNumber(v); n != nil {
                row.Items[field] = n
            }
        }
        rows = append(rows, row)
    }
    return rows, nil
}

func (y *Yahoo) SearchSymbols(ctx context.Context, query string, limit int) ([]Match, error) {
    u := fmt.Sprintf("%s?q=%s&quotesCount=%d&newsCount=0",
        y.cfg.SearchURL, url.QueryEscape(query), limit)

    var body struct {
        Quotes []struct {
            Symbol    string `json:"symbol"`
            ShortName string `json:"shortname"`
            LongName  string `json:"longname"`
            Exchange  string `json:"exchange"`
            QuoteType string `json:"quoteType"`
        } `json:"quotes"`
    }
    if err := y.getJSON(ctx, u, &body); err != nil {
        return nil, err
    }

    matches := make([]Match, 0, len(body.Quotes))
    for _, q := range body.Quotes {
        if q.Symbol == "" { continue }
        name := q.ShortName
        if name == "" { name = q.LongName }
        matches = append(matches, Match{
            Symbol:   q.Symbol,
            Name:     name,
            Exchange: q.Exchange,
            Type:     q.QuoteType,
        })
        if limit > 0 && len(matches) == limit { break }
    }
    return matches, nil
}

// rawNumber unwraps a provider numeric value, which arrives either as a bare
// number or as {"raw": n, "fmt": "..."}.
func rawNumber(v any) *float64 {
    switch t := v.(type) {
    case float64:
        return &t
    case map[string]any:
        if r, ok := t["raw"].(float64); ok {
            return &r
        }
    }
    return nil
}

// rawFmt extracts the formatted string of a {"raw": ..., "fmt": "..."} value.
func rawFmt(v any) string {
    if m, ok := v.(map[string]any); ok {
        if s, ok := m["fmt"].(string); ok {
            return s
        }
    }
    return ""
}
