package trader

import (
	"encoding/json"
	"fmt"
	"sync"

	"trailskim/market"
	"trailskim/notifier"
)

// ---------- 行情桩 ----------

type fakeMarket struct {
	prices     map[string]float64
	priceErrs  map[string]error
	klines     map[string][]market.Kline
	klineErrs  map[string]error
	positions  []PositionInfo
	posErr     error
	orders     map[string][]OpenOrder
	ordersErr  error
	precisions map[string]int
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{
		prices:     make(map[string]float64),
		priceErrs:  make(map[string]error),
		klines:     make(map[string][]market.Kline),
		klineErrs:  make(map[string]error),
		orders:     make(map[string][]OpenOrder),
		precisions: make(map[string]int),
	}
}

func (m *fakeMarket) MidPrice(symbol string) (float64, error) {
	if err := m.priceErrs[symbol]; err != nil {
		return 0, err
	}
	return m.prices[symbol], nil
}

func (m *fakeMarket) Candles(symbol, interval string, limit int) ([]market.Kline, error) {
	if err := m.klineErrs[symbol]; err != nil {
		return nil, err
	}
	return m.klines[symbol], nil
}

func (m *fakeMarket) OpenPositions() ([]PositionInfo, error) {
	return m.positions, m.posErr
}

func (m *fakeMarket) OpenOrders(symbol string) ([]OpenOrder, error) {
	if m.ordersErr != nil {
		return nil, m.ordersErr
	}
	return m.orders[symbol], nil
}

func (m *fakeMarket) SizePrecision(symbol string) (int, error) {
	if p, ok := m.precisions[symbol]; ok {
		return p, nil
	}
	return 0, fmt.Errorf("unknown symbol %s", symbol)
}

// ---------- 订单桩 ----------

type closeCall struct {
	symbol    string
	direction Direction
	size      float64
}

type placeCall struct {
	symbol       string
	direction    Direction
	size         float64
	triggerPrice float64
}

type fakeGateway struct {
	mu sync.Mutex

	closes  []closeCall
	places  []placeCall
	cancels []int64

	closeErr    error
	placeErr    error
	placeFailN  int // 前 N 次 PlaceStopMarket 失败
	cancelErr   error
	fillPrice   float64
	nextOrderID int64
}

func (g *fakeGateway) CancelOrder(symbol string, orderID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancels = append(g.cancels, orderID)
	return g.cancelErr
}

func (g *fakeGateway) PlaceStopMarket(symbol string, direction Direction, size, triggerPrice float64) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.placeErr != nil {
		return 0, g.placeErr
	}
	if g.placeFailN > 0 {
		g.placeFailN--
		return 0, fmt.Errorf("exchange rejected order")
	}
	g.places = append(g.places, placeCall{symbol, direction, size, triggerPrice})
	g.nextOrderID++
	return g.nextOrderID, nil
}

func (g *fakeGateway) MarketClose(symbol string, direction Direction, size float64) (*Fill, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closeErr != nil {
		return nil, g.closeErr
	}
	g.closes = append(g.closes, closeCall{symbol, direction, size})
	g.nextOrderID++
	return &Fill{OrderID: g.nextOrderID, Price: g.fillPrice, Quantity: size}, nil
}

// ---------- 告警桩 ----------

type alert struct {
	message  string
	priority notifier.Priority
}

type fakeNotifier struct {
	mu     sync.Mutex
	alerts []alert
}

func (n *fakeNotifier) Notify(message string, priority notifier.Priority) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert{message, priority})
}

func (n *fakeNotifier) byPriority(p notifier.Priority) []alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []alert
	for _, a := range n.alerts {
		if a.priority == p {
			out = append(out, a)
		}
	}
	return out
}

// ---------- 状态库桩 ----------

type fakeStore struct {
	saved     map[string]json.RawMessage
	saveCount int
	loadData  map[string]json.RawMessage
}

func (s *fakeStore) Load() (map[string]json.RawMessage, error) {
	if s.loadData == nil {
		return map[string]json.RawMessage{}, nil
	}
	return s.loadData, nil
}

func (s *fakeStore) Save(states map[string]json.RawMessage) error {
	s.saved = states
	s.saveCount++
	return nil
}

// ---------- K线构造 ----------

// makeKlines 生成 n 根在 base 附近小幅震荡、带成交量的K线
func makeKlines(n int, base float64) []market.Kline {
	klines := make([]market.Kline, n)
	for i := 0; i < n; i++ {
		wiggle := float64(i%5) * base * 0.001
		close := base + wiggle
		klines[i] = market.Kline{
			OpenTime:  int64(i) * 60_000,
			Open:      close - base*0.0005,
			High:      close + base*0.002,
			Low:       close - base*0.002,
			Close:     close,
			Volume:    1000 + float64(i%7)*50,
			CloseTime: int64(i+1)*60_000 - 1,
		}
	}
	return klines
}
