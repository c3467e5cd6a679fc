package batch

import (
    "context"
    "encoding/json"
    "fmt"
    "time"

    "github.com/sirupsen/logrus"
    "golang.org/x/sync/errgroup"

    "marketfacade/internal/fetcher"
)

// Service is the slice of the fetch orchestrator the coordinator needs.
type Service interface {
    Quote(ctx context.Context, symbol, market string, useCache bool) (*fetcher.Quote, error)
    Fundamentals(ctx context.Context, symbol, market string, useCache bool) (*fetcher.Fundamentals, error)
}

// KeyKind selects how a global-context quote is shaped in the snapshot.
type KeyKind string

const (
    KindIndex  KeyKind = "index"  // {price, change_percent}
    KindScalar KeyKind = "scalar" // {value}
    KindRate   KeyKind = "rate"   // {rate, change_percent}
)

// KeySpec declares one symbol of the global market context.
type KeySpec struct {
    Symbol   string
    Key      string
    Kind     KeyKind
    Critical bool
}

// ServiceUnavailableError reports that critical context data could not be
// assembled. Missing lists the absent context keys, FailedSymbols the
// provider symbols that produced no data.
type ServiceUnavailableError struct {
    Missing       []string `json:"missing"`
    FailedSymbols []string `json:"failed_symbols"`
}

func (e *ServiceUnavailableError) Error() string {
    return fmt.Sprintf("critical market data unavailable (missing %v)", e.Missing)
}

// Coordinator fans requests for many symbols out over the orchestrator. A
// failing symbol never aborts a batch; callers get what could be fetched.
type Coordinator struct {
    svc  Service
    keys []KeySpec
    log  *logrus.Entry
    now  func() time.Time
}

func New(svc Service, keys []KeySpec, log *logrus.Entry) *Coordinator {
    return &Coordinator{svc: svc, keys: keys, log: log, now: time.Now}
}

// QuoteResult pairs a requested symbol with its quote. Quote is nil when the
// fetch failed or the provider had nothing.
type QuoteResult struct {
    Symbol string         `json:"symbol"`
    Quote  *fetcher.Quote `json:"quote"`
}

// Quotes fetches all symbols concurrently and returns results in input order.
func (c *Coordinator) Quotes(ctx context.Context, symbols []string) []QuoteResult {
    results := make([]QuoteResult, len(symbols))
    g, ctx := errgroup.WithContext(ctx)
    for i, symbol := range symbols {
        results[i].Symbol = symbol
        g.Go(func() error {
            q, err := c.svc.Quote(ctx, symbol, "US", true)
            if err != nil {
                c.log.WithError(err).WithField("symbol", symbol).Warn("batch quote failed")
                return nil
            }
            results[i].Quote = q
            return nil
        })
    }
    g.Wait()
    return results
}

// FundamentalsBatch fetches fundamentals for all symbols concurrently. The
// returned map holds only symbols that produced data; the slice lists the
// rest.
func (c *Coordinator) FundamentalsBatch(ctx context.Context, symbols []string) (map[string]*fetcher.Fundamentals, []string) {
    type item struct {
        symbol string
        data   *fetcher.Fundamentals
    }
    items := make([]item, len(symbols))

    g, ctx := errgroup.WithContext(ctx)
    for i, symbol := range symbols {
        items[i].symbol = symbol
        g.Go(func() error {
            f, err := c.svc.Fundamentals(ctx, symbol, "US", true)
            if err != nil {
                c.log.WithError(err).WithField("symbol", symbol).Warn("batch fundamentals failed")
                return nil
            }
            items[i].data = f
            return nil
        })
    }
    g.Wait()

    out := make(map[string]*fetcher.Fundamentals, len(symbols))
    var failed []string
    for _, it := range items {
        if it.data == nil {
            failed = append(failed, it.symbol)
            continue
        }
        out[it.symbol] = it.data
    }
    if len(failed) > 0 {
        c.log.WithField("symbols", failed).Warn("fundamentals unavailable for some symbols")
    }
    return out, failed
}

// ContextValue is one key of the global context snapshot, shaped by its kind.
type ContextValue struct {
    Price         *float64 `json:"price,omitempty"`
    Value         *float64 `json:"value,omitempty"`
    Rate          *float64 `json:"rate,omitempty"`
    ChangePercent *float64 `json:"change_percent,omitempty"`
}

// ContextSnapshot is the assembled global market context. It serializes flat,
// with each key at the top level next to the timestamp.
type ContextSnapshot struct {
    Keys      map[string]ContextValue
    Timestamp time.Time
}

func (s *ContextSnapshot) MarshalJSON() ([]byte, error) {
    flat := make(map[string]any, len(s.Keys)+1)
    for k, v := range s.Keys {
        flat[k] = v
    }
    flat["timestamp"] = s.Timestamp.Format(time.RFC3339)
    return json.Marshal(flat)
}

// GlobalContext fetches every configured context symbol concurrently and
// shapes the snapshot. Completeness is judged only after all fetches join, so
// one slow symbol cannot mask another's failure. Missing critical keys fail
// the whole snapshot; missing non-critical keys are simply absent.
func (c *Coordinator) GlobalContext(ctx context.Context) (*ContextSnapshot, error) {
    quotes := make([]*fetcher.Quote, len(c.keys))

    g, gctx := errgroup.WithContext(ctx)
    for i, spec := range c.keys {
        g.Go(func() error {
            q, err := c.svc.Quote(gctx, spec.Symbol, "US", true)
            if err != nil {
                c.log.WithError(err).WithField("symbol", spec.Symbol).Warn("context quote failed")
                return nil
            }
            quotes[i] = q
            return nil
        })
    }
    g.Wait()

    snap := &ContextSnapshot{Keys: make(map[string]ContextValue, len(c.keys)), Timestamp: c.now().UTC()}
    var failedSymbols []string

    for i, spec := range c.keys {
        q := quotes[i]
        if q == nil || q.Price == nil {
            failedSymbols = append(failedSymbols, spec.Symbol)
            continue
        }
        change := 0.0
        if q.ChangePercent != nil {
            change = *q.ChangePercent
        }
        switch spec.Kind {
        case KindScalar:
            snap.Keys[spec.Key] = ContextValue{Value: q.Price}
        case KindRate:
            snap.Keys[spec.Key] = ContextValue{Rate: q.Price, ChangePercent: &change}
        default:
            snap.Keys[spec.Key] = ContextValue{Price: q.Price, ChangePercent: &change}
        }
    }

    var missing, criticalMissing []string
    for _, spec := range c.keys {
        if _, ok := snap.Keys[spec.Key]; ok {
            continue
        }
        missing = append(missing, spec.Key)
        if spec.Critical {
            criticalMissing = append(criticalMissing, spec.Key)
        }
    }
    if len(missing) > 0 {
        c.log.WithFields(logrus.Fields{"missing": missing, "failed_symbols": failedSymbols}).
            Warn("global context incomplete")
        if len(criticalMissing) > 0 {
            return nil, &ServiceUnavailableError{Missing: missing, FailedSymbols: failedSymbols}
        }
    }
    return snap, nil
}
