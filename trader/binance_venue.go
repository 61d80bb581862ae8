package trader

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/google/uuid"

	"trailskim/market"
)

const venueRequestTimeout = 10 * time.Second

// BinanceVenue 币安USDT永续接入层：公共行情走免签名REST（可选WebSocket缓存加速），
// 持仓/挂单/下单走签名接口。同一个对象同时实现 MarketData 与 OrderGateway。
type BinanceVenue struct {
	api     *market.APIClient
	futures *futures.Client
	cache   *market.KlineCache

	mu         sync.Mutex
	precisions map[string]int
}

// NewBinanceVenue 创建接入层。cache 可为 nil，此时K线全部走REST。
func NewBinanceVenue(apiKey, secretKey string, cache *market.KlineCache) *BinanceVenue {
	return &BinanceVenue{
		api:        market.NewAPIClient(),
		futures:    binance.NewFuturesClient(apiKey, secretKey),
		cache:      cache,
		precisions: make(map[string]int),
	}
}

func (v *BinanceVenue) MidPrice(symbol string) (float64, error) {
	price, err := v.api.GetCurrentPrice(symbol)
	if err != nil {
		return 0, fmt.Errorf("获取 %s 最新价失败: %w", symbol, err)
	}
	return price, nil
}

// Candles 优先读WebSocket缓存，缓存未就绪或长度不足时回退REST
func (v *BinanceVenue) Candles(symbol, interval string, limit int) ([]market.Kline, error) {
	if v.cache != nil {
		if klines, ok := v.cache.Current(symbol, limit); ok {
			return klines, nil
		}
	}
	klines, err := v.api.GetKlines(symbol, interval, limit)
	if err != nil {
		return nil, fmt.Errorf("获取 %s K线失败: %w", symbol, err)
	}
	return klines, nil
}

// SizePrecision 查询数量精度，结果进程内缓存（交易规则极少变动）
func (v *BinanceVenue) SizePrecision(symbol string) (int, error) {
	v.mu.Lock()
	if p, ok := v.precisions[symbol]; ok {
		v.mu.Unlock()
		return p, nil
	}
	v.mu.Unlock()

	p, err := v.api.GetSizePrecision(symbol)
	if err != nil {
		return 0, err
	}

	v.mu.Lock()
	v.precisions[symbol] = p
	v.mu.Unlock()
	return p, nil
}

// OpenPositions 拉取全部非零持仓
func (v *BinanceVenue) OpenPositions() ([]PositionInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), venueRequestTimeout)
	defer cancel()

	risks, err := v.futures.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取持仓失败: %w", err)
	}

	var positions []PositionInfo
	for _, r := range risks {
		amt, err := strconv.ParseFloat(r.PositionAmt, 64)
		if err != nil || amt == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(r.EntryPrice, 64)
		mark, _ := strconv.ParseFloat(r.MarkPrice, 64)

		direction := DirectionLong
		size := amt
		if amt < 0 {
			direction = DirectionShort
			size = -amt
		}
		positions = append(positions, PositionInfo{
			Symbol:     r.Symbol,
			Direction:  direction,
			Size:       size,
			EntryPrice: entry,
			MarkPrice:  mark,
		})
	}
	return positions, nil
}

func (v *BinanceVenue) OpenOrders(symbol string) ([]OpenOrder, error) {
	ctx, cancel := context.WithTimeout(context.Background(), venueRequestTimeout)
	defer cancel()

	raw, err := v.futures.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取 %s 挂单失败: %w", symbol, err)
	}

	orders := make([]OpenOrder, 0, len(raw))
	for _, o := range raw {
		stopPrice, _ := strconv.ParseFloat(o.StopPrice, 64)
		orders = append(orders, OpenOrder{
			OrderID:       o.OrderID,
			Type:          string(o.Type),
			Side:          string(o.Side),
			StopPrice:     stopPrice,
			ReduceOnly:    o.ReduceOnly,
			ClosePosition: o.ClosePosition,
		})
	}
	return orders, nil
}

func (v *BinanceVenue) CancelOrder(symbol string, orderID int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), venueRequestTimeout)
	defer cancel()

	_, err := v.futures.NewCancelOrderService().Symbol(symbol).OrderID(orderID).Do(ctx)
	if err != nil {
		return fmt.Errorf("撤单 %d 失败: %w", orderID, err)
	}
	return nil
}

// PlaceStopMarket 挂减仓方向的STOP_MARKET单：空单止损是买入，多单止损是卖出
func (v *BinanceVenue) PlaceStopMarket(symbol string, direction Direction, size, triggerPrice float64) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), venueRequestTimeout)
	defer cancel()

	side := futures.SideTypeSell
	if direction == DirectionShort {
		side = futures.SideTypeBuy
	}

	order, err := v.futures.NewCreateOrderService().
		Symbol(symbol).
		Side(side).
		Type(futures.OrderTypeStopMarket).
		StopPrice(market.FormatPrice(triggerPrice)).
		Quantity(strconv.FormatFloat(size, 'f', -1, 64)).
		ReduceOnly(true).
		NewClientOrderID(newClientOrderID()).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("挂止损单失败: %w", err)
	}
	return order.OrderID, nil
}

// MarketClose 市价减仓。reduceOnly 保证只减不反向。
func (v *BinanceVenue) MarketClose(symbol string, direction Direction, size float64) (*Fill, error) {
	ctx, cancel := context.WithTimeout(context.Background(), venueRequestTimeout)
	defer cancel()

	side := futures.SideTypeSell
	if direction == DirectionShort {
		side = futures.SideTypeBuy
	}

	order, err := v.futures.NewCreateOrderService().
		Symbol(symbol).
		Side(side).
		Type(futures.OrderTypeMarket).
		Quantity(strconv.FormatFloat(size, 'f', -1, 64)).
		ReduceOnly(true).
		NewClientOrderID(newClientOrderID()).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("市价平仓失败: %w", err)
	}

	fill := &Fill{OrderID: order.OrderID}
	if p, err := strconv.ParseFloat(order.AvgPrice, 64); err == nil {
		fill.Price = p
	}
	if q, err := strconv.ParseFloat(order.ExecutedQuantity, 64); err == nil {
		fill.Quantity = q
	}
	log.Printf("📉 [下单] %s 市价平仓 %v 已成交 %.8f @ %.4f", symbol, size, fill.Quantity, fill.Price)
	return fill, nil
}

// newClientOrderID 自定义订单号，便于在交易所后台区分本程序的单
func newClientOrderID() string {
	return "ts-" + uuid.New().String()[:18]
}
