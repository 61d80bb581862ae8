package trader

import (
	"trailskim/market"
)

// Direction 持仓方向
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// PositionInfo 交易所返回的持仓快照
type PositionInfo struct {
	Symbol     string
	Direction  Direction
	Size       float64
	EntryPrice float64
	MarkPrice  float64
}

// OpenOrder 交易所挂单快照（只取保护单判断所需字段）
type OpenOrder struct {
	OrderID       int64
	Type          string
	Side          string
	StopPrice     float64
	ReduceOnly    bool
	ClosePosition bool
}

// Fill 市价平仓的成交结果
type Fill struct {
	OrderID  int64
	Price    float64
	Quantity float64
}

// MarketData describes the read-only exchange surface the engine needs.
type MarketData interface {
	MidPrice(symbol string) (float64, error)
	Candles(symbol, interval string, limit int) ([]market.Kline, error)
	OpenPositions() ([]PositionInfo, error)
	OpenOrders(symbol string) ([]OpenOrder, error)
	SizePrecision(symbol string) (int, error)
}

// OrderGateway describes the order-mutating exchange surface.
// MarketClose must always be reduce-only: it may shrink a position but never
// reverse or grow it.
type OrderGateway interface {
	CancelOrder(symbol string, orderID int64) error
	PlaceStopMarket(symbol string, direction Direction, size, triggerPrice float64) (int64, error)
	MarketClose(symbol string, direction Direction, size float64) (*Fill, error)
}
