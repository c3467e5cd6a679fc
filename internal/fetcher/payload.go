package fetcher

import (
    "time"

    "marketfacade/internal/upstream"
)

// Canonical payloads. Every provider-sourced field is a pointer: a field the
// provider did not return stays nil and serializes as JSON null, it never
// degrades to a zero value.

type Quote struct {
    Symbol        string    `json:"symbol"`
    Price         *float64  `json:"price"`
    Change        *float64  `json:"change"`
    ChangePercent *float64  `json:"change_percent"`
    Volume        *int64    `json:"volume"`
    MarketCap     *float64  `json:"market_cap"`
    PERatio       *float64  `json:"pe_ratio"`
    DividendYield *float64  `json:"dividend_yield"`
    High52Week    *float64  `json:"high_52_week"`
    Low52Week     *float64  `json:"low_52_week"`
    Open          *float64  `json:"open"`
    PreviousClose *float64  `json:"previous_close"`
    DayHigh       *float64  `json:"day_high"`
    DayLow        *float64  `json:"day_low"`
    Timestamp     time.Time `json:"timestamp"`
}

type Historical struct {
    Symbol      string         `json:"symbol"`
    Period      string         `json:"period"`
    Interval    string         `json:"interval"`
    Data        []upstream.Bar `json:"data"`
    TotalPoints int            `json:"total_points"`
    Timestamp   time.Time      `json:"timestamp"`
}

type CompanyInfo struct {
    Symbol          string    `json:"symbol"`
    Name            *string   `json:"name"`
    ShortName       *string   `json:"short_name"`
    Sector          *string   `json:"sector"`
    Industry        *string   `json:"industry"`
    Country         *string   `json:"country"`
    Currency        *string   `json:"currency"`
    MarketCap       *float64  `json:"market_cap"`
    EnterpriseValue *float64  `json:"enterprise_value"`
    Description     *string   `json:"description"`
    Website         *string   `json:"website"`
    Employees       *int64    `json:"employees"`
    Timestamp       time.Time `json:"timestamp"`
}

type Fundamentals struct {
    Symbol          string    `json:"symbol"`
    PERatio         *float64  `json:"pe_ratio"`
    PBRatio         *float64  `json:"pb_ratio"`
    PEGRatio        *float64  `json:"peg_ratio"`
    ROE             *float64  `json:"roe"`
    ROA             *float64  `json:"roa"`
    DebtToEquity    *float64  `json:"debt_to_equity"`
    CurrentRatio    *float64  `json:"current_ratio"`
    QuickRatio      *float64  `json:"quick_ratio"`
    DividendYield   *float64  `json:"dividend_yield"`
    PayoutRatio     *float64  `json:"payout_ratio"`
    MarketCap       *float64  `json:"market_cap"`
    EnterpriseValue *float64  `json:"enterprise_value"`
    RevenueGrowth   *float64  `json:"revenue_growth"`
    EarningsGrowth  *float64  `json:"earnings_growth"`
    ProfitMargin    *float64  `json:"profit_margin"`
    OperatingMargin *float64  `json:"operating_margin"`
    GrossMargin     *float64  `json:"gross_margin"`
    BookValue       *float64  `json:"book_value"`
    CashPerShare    *float64  `json:"cash_per_share"`
    Beta            *float64  `json:"beta"`
    ForwardPE       *float64  `json:"forward_pe"`
    PriceToSales    *float64  `json:"price_to_sales"`
    Timestamp       time.Time `json:"timestamp"`
}

type MarketStatistics struct {
    Symbol               string    `json:"symbol"`
    MarketCap            *float64  `json:"market_cap"`
    EnterpriseValue      *float64  `json:"enterprise_value"`
    PERatio              *float64  `json:"pe_ratio"`
    ForwardPE            *float64  `json:"forward_pe"`
    PEGRatio             *float64  `json:"peg_ratio"`
    PriceToBook          *float64  `json:"price_to_book"`
    PriceToSales         *float64  `json:"price_to_sales"`
    DividendYield        *float64  `json:"dividend_yield"`
    Beta                 *float64  `json:"beta"`
    FiftyTwoWeekHigh     *float64  `json:"fifty_two_week_high"`
    FiftyTwoWeekLow      *float64  `json:"fifty_two_week_low"`
    FiftyDayAverage      *float64  `json:"fifty_day_average"`
    TwoHundredDayAverage *float64  `json:"two_hundred_day_average"`
    Timestamp            time.Time `json:"timestamp"`
}

type Statements struct {
    Symbol        string                  `json:"symbol"`
    StatementType string                  `json:"statement_type"`
    Data          []upstream.StatementRow `json:"data"`
    Timestamp     time.Time               `json:"timestamp"`
}

type SearchResult struct {
    Query     string           `json:"query"`
    Matches   []upstream.Match `json:"matches"`
    Count     int              `json:"count"`
    Timestamp time.Time        `json:"timestamp"`
}

// fnum reads the first present numeric field among keys, unwrapping the
// provider's {"raw": n} nesting.
func fnum(f upstream.Fields, keys ...string) *float64 {
    for _, k := range keys {
        v, ok := f[k]
        if !ok || v == nil {
            continue
        }
        switch t := v.(type) {
        case float64:
            return &t
        case map[string]any:
            if r, ok := t["raw"].(float64); ok {
                return &r
            }
        }
    }
    return nil
}

func fint64(f upstream.Fields, keys ...string) *int64 {
    if n := fnum(f, keys...); n != nil {
        v := int64(*n)
        return &v
    }
    return nil
}

func fstr(f upstream.Fields, keys ...string) *string {
    for _, k := range keys {
        if s, ok := f[k].(string); ok && s != "" {
            return &s
        }
    }
    return nil
}

// merged flattens quoteSummary modules into a single field map, mirroring the
// merged view the original service read everything from.
func merged(modules map[string]upstream.Fields) upstream.Fields {
    out := make(upstream.Fields)
    for _, f := range modules {
        for k, v := range f {
            if _, dup := out[k]; !dup {
                out[k] = v
            }
        }
    }
    return out
}

// mapQuote returns nil when the provider payload is too thin to be a real
// quote (delisted or unknown symbols come back with a handful of fields).
func mapQuote(symbol string, f upstream.Fields, now time.Time) *Quote {
    if len(f) < 5 {
        return nil
    }
    return &Quote{
        Symbol:        symbol,
        Price:         fnum(f, "regularMarketPrice"),
        Change:        fnum(f, "regularMarketChange"),
        ChangePercent: fnum(f, "regularMarketChangePercent"),
        Volume:        fint64(f, "volume", "regularMarketVolume"),
        MarketCap:     fnum(f, "marketCap"),
        PERatio:       fnum(f, "trailingPE"),
        DividendYield: fnum(f, "dividendYield", "trailingAnnualDividendYield"),
        High52Week:    fnum(f, "fiftyTwoWeekHigh"),
        Low52Week:     fnum(f, "fiftyTwoWeekLow"),
        Open:          fnum(f, "regularMarketOpen"),
        PreviousClose: fnum(f, "regularMarketPreviousClose"),
        DayHigh:       fnum(f, "dayHigh", "regularMarketDayHigh"),
        DayLow:        fnum(f, "dayLow", "regularMarketDayLow"),
        Timestamp:     now,
    }
}

func mapCompanyInfo(symbol string, f upstream.Fields, now time.Time) *CompanyInfo {
    if len(f) == 0 {
        return nil
    }
    return &CompanyInfo{
        Symbol:          symbol,
        Name:            fstr(f, "longName"),
        ShortName:       fstr(f, "shortName"),
        Sector:          fstr(f, "sector"),
        Industry:        fstr(f, "industry"),
        Country:         fstr(f, "country"),
        Currency:        fstr(f, "currency"),
        MarketCap:       fnum(f, "marketCap"),
        EnterpriseValue: fnum(f, "enterpriseValue"),
        Description:     fstr(f, "longBusinessSummary"),
        Website:         fstr(f, "website"),
        Employees:       fint64(f, "fullTimeEmployees"),
        Timestamp:       now,
    }
}

func mapFundamentals(symbol string, f upstream.Fields, now time.Time) *Fundamentals {
    if len(f) == 0 {
        return nil
    }
    return &Fundamentals{
        Symbol:          symbol,
        PERatio:         fnum(f, "trailingPE"),
        PBRatio:         fnum(f, "priceToBook"),
        PEGRatio:        fnum(f, "pegRatio"),
        ROE:             fnum(f, "returnOnEquity"),
        ROA:             fnum(f, "returnOnAssets"),
        DebtToEquity:    fnum(f, "debtToEquity"),
        CurrentRatio:    fnum(f, "currentRatio"),
        QuickRatio:      fnum(f, "quickRatio"),
        DividendYield:   fnum(f, "dividendYield"),
        PayoutRatio:     fnum(f, "payoutRatio"),
        MarketCap:       fnum(f, "marketCap"),
        EnterpriseValue: fnum(f, "enterpriseValue"),
        RevenueGrowth:   fnum(f, "revenueGrowth"),
        EarningsGrowth:  fnum(f, "earningsGrowth"),
        ProfitMargin:    fnum(f, "profitMargins"),
        OperatingMargin: fnum(f, "operatingMargins"),
        GrossMargin:     fnum(f, "grossMargins"),
        BookValue:       fnum(f, "bookValue"),
        CashPerShare:    fnum(f, "totalCashPerShare"),
        Beta:            fnum(f, "beta"),
        ForwardPE:       fnum(f, "forwardPE"),
        PriceToSales:    fnum(f, "priceToSalesTrailing12Months"),
        Timestamp:       now,
    }
}

func mapMarketStatistics(symbol string, f upstream.Fields, now time.Time) *MarketStatistics {
    if len(f) == 0 {
        return nil
    }
    return &MarketStatistics{
        Symbol:               symbol,
        MarketCap:            fnum(f, "marketCap"),
        EnterpriseValue:      fnum(f, "enterpriseValue"),
        PERatio:              fnum(f, "trailingPE"),
        ForwardPE:            fnum(f, "forwardPE"),
        PEGRatio:             fnum(f, "pegRatio"),
        PriceToBook:          fnum(f, "priceToBook"),
        PriceToSales:         fnum(f, "priceToSalesTrailing12Months"),
        DividendYield:        fnum(f, "dividendYield"),
        Beta:                 fnum(f, "beta"),
        FiftyTwoWeekHigh:     fnum(f, "fiftyTwoWeekHigh"),
        FiftyTwoWeekLow:      fnum(f, "fiftyTwoWeekLow"),
        FiftyDayAverage:      fnum(f, "fiftyDayAverage"),
        TwoHundredDayAverage: fnum(f, "twoHundredDayAverage"),
        Timestamp:            now,
    }
}
