package gateway

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/lattice-q/spotrader/internal/config"
	"github.com/lattice-q/spotrader/internal/model"
	"github.com/lattice-q/spotrader/internal/xerr"
)

// RESTClient implements Client over a REST transport. All cross-cutting
// concerns (rate limiting, circuit breaking, precision) live here; the
// HTTP client itself never appears outside this package.
type RESTClient struct {
	http    *resty.Client
	limiter *rate.Limiter
	brk     breakers
	meta    *marketMetaCache

	apiKey     string
	secret     string
	passphrase string
}

// NewRESTClient builds a client against cfg.BaseURL, authenticating with
// the given credentials. A single rate.Limiter instance is shared across
// every call this client makes, matching the spec's "process-global"
// limiter requirement.
func NewRESTClient(cfg config.GatewayConfig, apiKey, secret, passphrase string) *RESTClient {
	h := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.RequestTimeout)

	return &RESTClient{
		http:       h,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), int(cfg.RateLimitPerSecond)),
		brk:        newBreakers(cfg),
		meta:       newMarketMetaCache(),
		apiKey:     apiKey,
		secret:     secret,
		passphrase: passphrase,
	}
}

// do executes fn after acquiring a rate-limiter token and through the given
// breaker. A breaker-open condition surfaces as a Transient error so the
// scheduler's normal skip-this-symbol policy applies.
func (g *RESTClient) do(ctx context.Context, op string, brk *gobreaker.CircuitBreaker, fn func() (any, error)) (any, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, xerr.Transientf(op, "rate limiter wait: %w", err)
	}
	v, err := brk.Execute(fn)
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, xerr.Transientf(op, "circuit breaker open: %w", err)
		}
		return nil, err
	}
	return v, nil
}

func okxSymbol(symbol model.Symbol) string {
	return fmt.Sprintf("%s-%s", symbol.Base(), symbol.Quote())
}

type okxEnvelope[T any] struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data T      `json:"data"`
}

type tickerData struct {
	InstID  string `json:"instId"`
	Last    string `json:"last"`
	High24h string `json:"high24h"`
	Low24h  string `json:"low24h"`
	Vol24h  string `json:"vol24h"`
	BidPx   string `json:"bidPx"`
	AskPx   string `json:"askPx"`
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func (g *RESTClient) FetchTicker(ctx context.Context, symbol model.Symbol) (model.MarketSnapshot, error) {
	v, err := g.do(ctx, "FetchTicker", g.brk.marketData, func() (any, error) {
		var env okxEnvelope[[]tickerData]
		resp, err := g.http.R().SetContext(ctx).
			SetQueryParam("instId", okxSymbol(symbol)).
			SetResult(&env).
			Get("/api/v5/market/ticker")
		if err != nil {
			return nil, xerr.Transientf("FetchTicker", "http: %w", err)
		}
		if resp.IsError() {
			return nil, xerr.Transientf("FetchTicker", "http status %d", resp.StatusCode())
		}
		if env.Code != "0" || len(env.Data) == 0 {
			return nil, xerr.DataQualityf("FetchTicker", "empty ticker for %s: %s", symbol, env.Msg)
		}
		return env.Data[0], nil
	})
	if err != nil {
		return model.MarketSnapshot{}, err
	}
	t := v.(tickerData)
	snap := model.MarketSnapshot{
		Symbol:    symbol,
		Last:      parseFloat(t.Last),
		High24h:   parseFloat(t.High24h),
		Low24h:    parseFloat(t.Low24h),
		Volume24h: parseFloat(t.Vol24h),
		BestBid:   parseFloat(t.BidPx),
		BestAsk:   parseFloat(t.AskPx),
		FetchedAt: time.Now(),
	}
	if snap.BestAsk < snap.BestBid || snap.BestBid <= 0 {
		return model.MarketSnapshot{}, xerr.DataQualityf("FetchTicker", "malformed book for %s: bid=%f ask=%f", symbol, snap.BestBid, snap.BestAsk)
	}
	return snap, nil
}

type bookData struct {
	Bids [][]string `json:"bids"`
	Asks [][]string `json:"asks"`
}

func (g *RESTClient) FetchOrderBook(ctx context.Context, symbol model.Symbol, depth int) ([]model.PriceLevel, []model.PriceLevel, error) {
	v, err := g.do(ctx, "FetchOrderBook", g.brk.marketData, func() (any, error) {
		var env okxEnvelope[[]bookData]
		resp, err := g.http.R().SetContext(ctx).
			SetQueryParam("instId", okxSymbol(symbol)).
			SetQueryParam("sz", strconv.Itoa(depth)).
			SetResult(&env).
			Get("/api/v5/market/books")
		if err != nil {
			return nil, xerr.Transientf("FetchOrderBook", "http: %w", err)
		}
		if resp.IsError() {
			return nil, xerr.Transientf("FetchOrderBook", "http status %d", resp.StatusCode())
		}
		if env.Code != "0" || len(env.Data) == 0 {
			return nil, xerr.DataQualityf("FetchOrderBook", "empty book for %s: %s", symbol, env.Msg)
		}
		return env.Data[0], nil
	})
	if err != nil {
		return nil, nil, err
	}
	raw := v.(bookData)
	toLevels := func(rows [][]string) []model.PriceLevel {
		out := make([]model.PriceLevel, 0, len(rows))
		for _, r := range rows {
			if len(r) < 2 {
				continue
			}
			out = append(out, model.PriceLevel{Price: parseFloat(r[0]), Size: parseFloat(r[1])})
		}
		return out
	}
	return toLevels(raw.Bids), toLevels(raw.Asks), nil
}

type candleRow = []string

func (g *RESTClient) FetchOHLCV(ctx context.Context, symbol model.Symbol, timeframe string, limit int) ([]model.Candle, error) {
	v, err := g.do(ctx, "FetchOHLCV", g.brk.marketData, func() (any, error) {
		var env okxEnvelope[[]candleRow]
		resp, err := g.http.R().SetContext(ctx).
			SetQueryParam("instId", okxSymbol(symbol)).
			SetQueryParam("bar", timeframe).
			SetQueryParam("limit", strconv.Itoa(limit)).
			SetResult(&env).
			Get("/api/v5/market/candles")
		if err != nil {
			return nil, xerr.Transientf("FetchOHLCV", "http: %w", err)
		}
		if resp.IsError() {
			return nil, xerr.Transientf("FetchOHLCV", "http status %d", resp.StatusCode())
		}
		if env.Code != "0" {
			return nil, xerr.DataQualityf("FetchOHLCV", "candles error for %s %s: %s", symbol, timeframe, env.Msg)
		}
		return env.Data, nil
	})
	if err != nil {
		return nil, err
	}
	rows := v.([]candleRow)
	out := make([]model.Candle, 0, len(rows))
	for _, r := range rows {
		if len(r) < 6 {
			continue
		}
		ms, _ := strconv.ParseInt(r[0], 10, 64)
		c := model.Candle{
			OpenTime: time.UnixMilli(ms),
			Open:     parseFloat(r[1]),
			High:     parseFloat(r[2]),
			Low:      parseFloat(r[3]),
			Close:    parseFloat(r[4]),
			Volume:   parseFloat(r[5]),
		}
		if c.High < c.Low {
			continue // data quality: skip impossible bars rather than fail the whole batch
		}
		out = append(out, c)
	}
	return out, nil
}

type balanceDetail struct {
	Ccy       string `json:"ccy"`
	AvailBal  string `json:"availBal"`
	FrozenBal string `json:"frozenBal"`
}
type balanceData struct {
	Details []balanceDetail `json:"details"`
}

func (g *RESTClient) FetchBalance(ctx context.Context) (map[string]model.Balance, error) {
	v, err := g.do(ctx, "FetchBalance", g.brk.account, func() (any, error) {
		var env okxEnvelope[[]balanceData]
		resp, err := g.authed(ctx, "GET", "/api/v5/account/balance", nil).SetResult(&env).Get("/api/v5/account/balance")
		if err != nil {
			return nil, xerr.Transientf("FetchBalance", "http: %w", err)
		}
		if resp.IsError() {
			return nil, xerr.Transientf("FetchBalance", "http status %d", resp.StatusCode())
		}
		if env.Code != "0" || len(env.Data) == 0 {
			return nil, xerr.DataQualityf("FetchBalance", "empty balance response: %s", env.Msg)
		}
		return env.Data[0].Details, nil
	})
	if err != nil {
		return nil, err
	}
	details := v.([]balanceDetail)
	out := make(map[string]model.Balance, len(details))
	for _, d := range details {
		out[d.Ccy] = model.Balance{Free: parseFloat(d.AvailBal), Locked: parseFloat(d.FrozenBal)}
	}
	return out, nil
}

type orderData struct {
	OrdID   string `json:"ordId"`
	InstID  string `json:"instId"`
	Side    string `json:"side"`
	OrdType string `json:"ordType"`
	Sz      string `json:"sz"`
	Px      string `json:"px"`
	State   string `json:"state"`
	FillSz  string `json:"fillSz"`
}

func symbolFromOKX(instID string) model.Symbol {
	for i := 0; i < len(instID); i++ {
		if instID[i] == '-' {
			return model.Symbol(instID[:i] + "/" + instID[i+1:])
		}
	}
	return model.Symbol(instID)
}

func (g *RESTClient) FetchOpenOrders(ctx context.Context) ([]model.Order, error) {
	v, err := g.do(ctx, "FetchOpenOrders", g.brk.account, func() (any, error) {
		var env okxEnvelope[[]orderData]
		resp, err := g.authed(ctx, "GET", "/api/v5/trade/orders-pending", nil).SetResult(&env).Get("/api/v5/trade/orders-pending")
		if err != nil {
			return nil, xerr.Transientf("FetchOpenOrders", "http: %w", err)
		}
		if resp.IsError() {
			return nil, xerr.Transientf("FetchOpenOrders", "http status %d", resp.StatusCode())
		}
		if env.Code != "0" {
			return nil, xerr.DataQualityf("FetchOpenOrders", "open orders error: %s", env.Msg)
		}
		return env.Data, nil
	})
	if err != nil {
		return nil, err
	}
	rows := v.([]orderData)
	out := make([]model.Order, 0, len(rows))
	for _, r := range rows {
		side := model.OrderSideBuy
		if r.Side == "sell" {
			side = model.OrderSideSell
		}
		typ := model.OrderTypeLimit
		if r.OrdType == "market" {
			typ = model.OrderTypeMarket
		}
		out = append(out, model.Order{
			ID:     r.OrdID,
			Symbol: symbolFromOKX(r.InstID),
			Side:   side,
			Type:   typ,
			Size:   parseFloat(r.Sz),
			Price:  parseFloat(r.Px),
			Status: r.State,
			Filled: parseFloat(r.FillSz),
		})
	}
	return out, nil
}

type algoData struct {
	AlgoID    string `json:"algoId"`
	InstID    string `json:"instId"`
	Side      string `json:"side"`
	Sz        string `json:"sz"`
	TpTrigPx  string `json:"tpTriggerPx"`
	SlTrigPx  string `json:"slTriggerPx"`
	State     string `json:"state"`
}

func (g *RESTClient) FetchAlgoOrders(ctx context.Context, kind string) ([]model.AlgoOrder, error) {
	v, err := g.do(ctx, "FetchAlgoOrders", g.brk.account, func() (any, error) {
		var env okxEnvelope[[]algoData]
		resp, err := g.authed(ctx, "GET", "/api/v5/trade/orders-algo-pending", nil).
			SetQueryParam("ordType", kind).
			SetResult(&env).
			Get("/api/v5/trade/orders-algo-pending")
		if err != nil {
			return nil, xerr.Transientf("FetchAlgoOrders", "http: %w", err)
		}
		if resp.IsError() {
			return nil, xerr.Transientf("FetchAlgoOrders", "http status %d", resp.StatusCode())
		}
		if env.Code != "0" {
			return nil, xerr.DataQualityf("FetchAlgoOrders", "algo orders error: %s", env.Msg)
		}
		return env.Data, nil
	})
	if err != nil {
		return nil, err
	}
	rows := v.([]algoData)
	out := make([]model.AlgoOrder, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.AlgoOrder{
			ID:         r.AlgoID,
			Symbol:     symbolFromOKX(r.InstID),
			Side:       model.OrderSideSell,
			Size:       parseFloat(r.Sz),
			TPTrigger:  parseFloat(r.TpTrigPx),
			SLTrigger:  parseFloat(r.SlTrigPx),
			StatusCode: "0",
		})
	}
	return out, nil
}

func (g *RESTClient) CreateOrder(ctx context.Context, symbol model.Symbol, side model.OrderSide, typ model.OrderType, size, price float64) (model.Order, error) {
	v, err := g.do(ctx, "CreateOrder", g.brk.trading, func() (any, error) {
		body := map[string]any{
			"instId":  okxSymbol(symbol),
			"tdMode":  "cash",
			"side":    string(side),
			"ordType": string(typ),
			"sz":      strconv.FormatFloat(size, 'f', -1, 64),
		}
		if typ == model.OrderTypeLimit {
			body["px"] = strconv.FormatFloat(price, 'f', -1, 64)
		}
		var env okxEnvelope[[]struct {
			OrdID string `json:"ordId"`
			SCode string `json:"sCode"`
			SMsg  string `json:"sMsg"`
		}]
		resp, err := g.authed(ctx, "POST", "/api/v5/trade/order", body).SetResult(&env).Post("/api/v5/trade/order")
		if err != nil {
			return nil, xerr.Transientf("CreateOrder", "http: %w", err)
		}
		if resp.IsError() {
			return nil, xerr.Transientf("CreateOrder", "http status %d", resp.StatusCode())
		}
		if len(env.Data) == 0 {
			return nil, xerr.DataQualityf("CreateOrder", "empty order response: %s", env.Msg)
		}
		d := env.Data[0]
		if d.SCode != "0" {
			return nil, xerr.Rejection("CreateOrder", d.SCode, fmt.Errorf("%s", d.SMsg))
		}
		return model.Order{ID: d.OrdID, Symbol: symbol, Side: side, Type: typ, Size: size, Price: price, Status: "live"}, nil
	})
	if err != nil {
		return model.Order{}, err
	}
	return v.(model.Order), nil
}

// CreateAlgoOrder submits a one-cancels-other sell: take-profit and
// stop-loss triggers that cancel each other on first fill.
func (g *RESTClient) CreateAlgoOrder(ctx context.Context, symbol model.Symbol, size, tpTrigger, slTrigger float64) (model.AlgoOrder, error) {
	v, err := g.do(ctx, "CreateAlgoOrder", g.brk.trading, func() (any, error) {
		body := map[string]any{
			"instId":      okxSymbol(symbol),
			"tdMode":      "cash",
			"side":        "sell",
			"ordType":     "oco",
			"sz":          strconv.FormatFloat(size, 'f', -1, 64),
			"tpTriggerPx": strconv.FormatFloat(tpTrigger, 'f', -1, 64),
			"tpOrdPx":     "-1",
			"slTriggerPx": strconv.FormatFloat(slTrigger, 'f', -1, 64),
			"slOrdPx":     "-1",
		}
		var env okxEnvelope[[]struct {
			AlgoID string `json:"algoId"`
			SCode  string `json:"sCode"`
			SMsg   string `json:"sMsg"`
		}]
		resp, err := g.authed(ctx, "POST", "/api/v5/trade/order-algo", body).SetResult(&env).Post("/api/v5/trade/order-algo")
		if err != nil {
			return nil, xerr.Transientf("CreateAlgoOrder", "http: %w", err)
		}
		if resp.IsError() {
			return nil, xerr.Transientf("CreateAlgoOrder", "http status %d", resp.StatusCode())
		}
		if len(env.Data) == 0 {
			return nil, xerr.DataQualityf("CreateAlgoOrder", "empty algo order response: %s", env.Msg)
		}
		d := env.Data[0]
		if d.SCode != "0" {
			return nil, xerr.Rejection("CreateAlgoOrder", d.SCode, fmt.Errorf("%s", d.SMsg))
		}
		return model.AlgoOrder{
			ID: d.AlgoID, Symbol: symbol, Side: model.OrderSideSell, Size: size,
			TPTrigger: tpTrigger, SLTrigger: slTrigger, StatusCode: d.SCode, StatusMsg: d.SMsg,
		}, nil
	})
	if err != nil {
		return model.AlgoOrder{}, err
	}
	return v.(model.AlgoOrder), nil
}

// CancelAlgoOrder is best-effort: callers tolerate its error.
func (g *RESTClient) CancelAlgoOrder(ctx context.Context, algoID string) error {
	_, err := g.do(ctx, "CancelAlgoOrder", g.brk.trading, func() (any, error) {
		body := []map[string]any{{"algoId": algoID}}
		resp, err := g.authed(ctx, "POST", "/api/v5/trade/cancel-algos", body).Post("/api/v5/trade/cancel-algos")
		if err != nil {
			return nil, xerr.Transientf("CancelAlgoOrder", "http: %w", err)
		}
		if resp.IsError() {
			return nil, xerr.Transientf("CancelAlgoOrder", "http status %d", resp.StatusCode())
		}
		return nil, nil
	})
	return err
}

type instrumentData struct {
	InstID   string `json:"instId"`
	TickSz   string `json:"tickSz"`
	LotSz    string `json:"lotSz"`
	MinSz    string `json:"minSz"`
}

func (g *RESTClient) GetMarket(ctx context.Context, symbol model.Symbol) (model.MarketMeta, error) {
	if m, ok := g.meta.get(symbol); ok {
		return m, nil
	}
	v, err := g.do(ctx, "GetMarket", g.brk.marketData, func() (any, error) {
		var env okxEnvelope[[]instrumentData]
		resp, err := g.http.R().SetContext(ctx).
			SetQueryParam("instId", okxSymbol(symbol)).
			SetQueryParam("instType", "SPOT").
			SetResult(&env).
			Get("/api/v5/public/instruments")
		if err != nil {
			return nil, xerr.Transientf("GetMarket", "http: %w", err)
		}
		if resp.IsError() {
			return nil, xerr.Transientf("GetMarket", "http status %d", resp.StatusCode())
		}
		if env.Code != "0" || len(env.Data) == 0 {
			return nil, xerr.DataQualityf("GetMarket", "no instrument metadata for %s: %s", symbol, env.Msg)
		}
		return env.Data[0], nil
	})
	if err != nil {
		return model.MarketMeta{}, err
	}
	d := v.(instrumentData)
	meta := model.MarketMeta{
		TickSize:        parseFloat(d.TickSz),
		AmountPrecision: decimalsOf(d.LotSz),
		PricePrecision:  decimalsOf(d.TickSz),
		MinNotional:     parseFloat(d.MinSz),
	}
	g.meta.set(symbol, meta)
	return meta, nil
}

func decimalsOf(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return len(s) - i - 1
		}
	}
	return 0
}

func (g *RESTClient) DiscoverLiquidSymbols(ctx context.Context, minVolume float64, limit int) ([]model.Symbol, error) {
	v, err := g.do(ctx, "DiscoverLiquidSymbols", g.brk.marketData, func() (any, error) {
		var env okxEnvelope[[]tickerData]
		resp, err := g.http.R().SetContext(ctx).
			SetQueryParam("instType", "SPOT").
			SetResult(&env).
			Get("/api/v5/market/tickers")
		if err != nil {
			return nil, xerr.Transientf("DiscoverLiquidSymbols", "http: %w", err)
		}
		if resp.IsError() {
			return nil, xerr.Transientf("DiscoverLiquidSymbols", "http status %d", resp.StatusCode())
		}
		if env.Code != "0" {
			return nil, xerr.DataQualityf("DiscoverLiquidSymbols", "tickers error: %s", env.Msg)
		}
		return env.Data, nil
	})
	if err != nil {
		return nil, err
	}
	rows := v.([]tickerData)
	out := make([]model.Symbol, 0, limit)
	for _, r := range rows {
		quoteVol := parseFloat(r.Vol24h) * parseFloat(r.Last)
		if quoteVol < minVolume {
			continue
		}
		out = append(out, symbolFromOKX(r.InstID))
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}
