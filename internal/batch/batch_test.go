package batch

import (
    "context"
    "encoding/json"
    "errors"
    "io"
    "sync"
    "testing"

    "github.com/sirupsen/logrus"
    "github.com/stretchr/testify/require"

    "marketfacade/internal/fetcher"
)

// stubService answers quotes and fundamentals from fixed tables.
type stubService struct {
    mu           sync.Mutex
    quotes       map[string]*fetcher.Quote
    fundamentals map[string]*fetcher.Fundamentals
    quoteErrs    map[string]error
    calls        []string
}

func (s *stubService) Quote(_ context.Context, symbol, _ string, _ bool) (*fetcher.Quote, error) {
    s.mu.Lock()
    s.calls = append(s.calls, symbol)
    s.mu.Unlock()
    if err := s.quoteErrs[symbol]; err != nil {
        return nil, err
    }
    return s.quotes[symbol], nil
}

func (s *stubService) Fundamentals(_ context.Context, symbol, _ string, _ bool) (*fetcher.Fundamentals, error) {
    if f, ok := s.fundamentals[symbol]; ok {
        return f, nil
    }
    return nil, errors.New("no data")
}

func testCoordinator(t *testing.T, svc Service, keys []KeySpec) *Coordinator {
    t.Helper()
    log := logrus.New()
    log.SetOutput(io.Discard)
    return New(svc, keys, logrus.NewEntry(log))
}

func quote(price, change float64) *fetcher.Quote {
    return &fetcher.Quote{Price: &price, ChangePercent: &change}
}

func TestQuotesPreservesOrderAndSurvivesFailures(t *testing.T) {
    t.Parallel()

    svc := &stubService{
        quotes: map[string]*fetcher.Quote{
            "A": quote(1, 0.1),
            "C": quote(3, 0.3),
        },
        quoteErrs: map[string]error{"B": errors.New("boom")},
    }
    c := testCoordinator(t, svc, nil)

    results := c.Quotes(t.Context(), []string{"A", "B", "C"})
    require.Len(t, results, 3)
    require.Equal(t, "A", results[0].Symbol)
    require.Equal(t, "B", results[1].Symbol)
    require.Equal(t, "C", results[2].Symbol)
    require.NotNil(t, results[0].Quote)
    require.Nil(t, results[1].Quote, "failed symbol yields a nil quote, not an abort")
    require.NotNil(t, results[2].Quote)
}

func TestFundamentalsBatch(t *testing.T) {
    t.Parallel()

    svc := &stubService{
        fundamentals: map[string]*fetcher.Fundamentals{
            "AAPL": {Symbol: "AAPL"},
            "MSFT": {Symbol: "MSFT"},
        },
    }
    c := testCoordinator(t, svc, nil)

    out, failed := c.FundamentalsBatch(t.Context(), []string{"AAPL", "NOPE", "MSFT"})
    require.Len(t, out, 2)
    require.Contains(t, out, "AAPL")
    require.Contains(t, out, "MSFT")
    require.Equal(t, []string{"NOPE"}, failed)
}

func defaultKeys() []KeySpec {
    return []KeySpec{
        {Symbol: "^GSPC", Key: "sp500", Kind: KindIndex, Critical: true},
        {Symbol: "^IXIC", Key: "nasdaq", Kind: KindIndex, Critical: true},
        {Symbol: "^DJI", Key: "dow_jones", Kind: KindIndex},
        {Symbol: "^VIX", Key: "vix", Kind: KindScalar, Critical: true},
        {Symbol: "GC=F", Key: "gold", Kind: KindIndex},
        {Symbol: "USDINR=X", Key: "usd_inr", Kind: KindRate},
        {Symbol: "CL=F", Key: "crude_oil", Kind: KindIndex},
    }
}

func allContextQuotes() map[string]*fetcher.Quote {
    return map[string]*fetcher.Quote{
        "^GSPC":    quote(5845.20, 0.45),
        "^IXIC":    quote(18234.50, 0.62),
        "^DJI":     quote(44320.10, 0.28),
        "^VIX":     quote(13.45, -2.1),
        "GC=F":     quote(2024.30, -0.15),
        "USDINR=X": quote(83.25, 0.08),
        "CL=F":     quote(78.45, 1.20),
    }
}

func TestGlobalContextShapesByKind(t *testing.T) {
    t.Parallel()

    svc := &stubService{quotes: allContextQuotes()}
    c := testCoordinator(t, svc, defaultKeys())

    snap, err := c.GlobalContext(t.Context())
    require.NoError(t, err)
    require.Len(t, snap.Keys, 7)

    sp := snap.Keys["sp500"]
    require.Equal(t, 5845.20, *sp.Price)
    require.Equal(t, 0.45, *sp.ChangePercent)
    require.Nil(t, sp.Value)

    vix := snap.Keys["vix"]
    require.Equal(t, 13.45, *vix.Value)
    require.Nil(t, vix.Price, "scalar keys carry only a value")
    require.Nil(t, vix.ChangePercent)

    inr := snap.Keys["usd_inr"]
    require.Equal(t, 83.25, *inr.Rate)
    require.Equal(t, 0.08, *inr.ChangePercent)
    require.Nil(t, inr.Price)
}

func TestGlobalContextFlatJSON(t *testing.T) {
    t.Parallel()

    svc := &stubService{quotes: allContextQuotes()}
    c := testCoordinator(t, svc, defaultKeys())

    snap, err := c.GlobalContext(t.Context())
    require.NoError(t, err)

    raw, err := json.Marshal(snap)
    require.NoError(t, err)

    var flat map[string]json.RawMessage
    require.NoError(t, json.Unmarshal(raw, &flat))
    require.Contains(t, flat, "sp500")
    require.Contains(t, flat, "timestamp")
    require.NotContains(t, flat, "Keys")
}

func TestGlobalContextMissingChangeDefaultsToZero(t *testing.T) {
    t.Parallel()

    price := 5845.20
    svc := &stubService{quotes: allContextQuotes()}
    svc.quotes["^GSPC"] = &fetcher.Quote{Price: &price} // no change_percent

    c := testCoordinator(t, svc, defaultKeys())
    snap, err := c.GlobalContext(t.Context())
    require.NoError(t, err)
    require.Equal(t, 0.0, *snap.Keys["sp500"].ChangePercent)
}

func TestGlobalContextCriticalMissing(t *testing.T) {
    t.Parallel()

    svc := &stubService{quotes: allContextQuotes()}
    delete(svc.quotes, "^VIX")

    c := testCoordinator(t, svc, defaultKeys())
    _, err := c.GlobalContext(t.Context())

    var sve *ServiceUnavailableError
    require.ErrorAs(t, err, &sve)
    require.Equal(t, []string{"vix"}, sve.Missing)
    require.Equal(t, []string{"^VIX"}, sve.FailedSymbols)
}

func TestGlobalContextNonCriticalMissingIsOmitted(t *testing.T) {
    t.Parallel()

    svc := &stubService{quotes: allContextQuotes()}
    delete(svc.quotes, "GC=F")

    c := testCoordinator(t, svc, defaultKeys())
    snap, err := c.GlobalContext(t.Context())
    require.NoError(t, err)
    require.NotContains(t, snap.Keys, "gold")
    require.Contains(t, snap.Keys, "sp500")
}
