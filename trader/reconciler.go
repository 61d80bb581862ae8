package trader

import (
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"trailskim/notifier"
)

const (
	// deadbandRatio 新旧止损相对变化小于 0.1% 时不动挂单，省手续费与限频额度
	deadbandRatio = 0.001
	// placeAttempts 止损挂单重试次数
	placeAttempts = 3
	// placeRetryDelay 重试固定间隔
	placeRetryDelay = 2 * time.Second
)

// Reconciler pushes a computed stop price to the venue: it cancels the
// protective orders that are already resting and places the replacement.
// 先撤后挂，短暂裸奔窗口由应急平仓兜底。
type Reconciler struct {
	market   MarketData
	gateway  OrderGateway
	notifier notifier.Notifier
	sleep    SleepFunc
}

func NewReconciler(m MarketData, g OrderGateway, n notifier.Notifier) *Reconciler {
	return &Reconciler{market: m, gateway: g, notifier: n, sleep: time.Sleep}
}

// Reconcile 把新止损推送到交易所。返回是否真正挂出了新单。
// 价格已越过止损时直接市价全平（挂出去也会立刻触发，不如拿确定成交）。
func (r *Reconciler) Reconcile(st *PositionState, newStop, price float64) (bool, error) {
	// 死区：变化太小不值得动挂单
	if st.CurrentTrailStop != nil {
		prev := *st.CurrentTrailStop
		if prev != 0 && math.Abs(newStop-prev)/math.Abs(prev) < deadbandRatio {
			log.Printf("⏭️ [止损同步] %s 变化 %.4f→%.4f 在死区内，保留原挂单", st.Symbol, prev, newStop)
			return false, nil
		}
	}

	// 应急平仓：止损已被价格穿越
	if stopBreached(st.Direction, newStop, price) {
		log.Printf("🚨 [止损同步] %s 当前价 %.4f 已越过止损 %.4f，市价全平", st.Symbol, price, newStop)
		fill, err := r.gateway.MarketClose(st.Symbol, st.Direction, st.CurrentSize)
		if err != nil {
			r.notifier.Notify(fmt.Sprintf("%s 应急平仓失败（价 %.4f 越过止损 %.4f）: %v",
				st.Symbol, price, newStop, err), notifier.PriorityCritical)
			return false, fmt.Errorf("应急平仓失败: %w", err)
		}
		execPrice := price
		if fill != nil && fill.Price > 0 {
			execPrice = fill.Price
		}
		st.CurrentSize = 0
		r.notifier.Notify(fmt.Sprintf("%s 应急平仓：价 %.4f 越过止损 %.4f，已市价全平 @ %.4f",
			st.Symbol, price, newStop, execPrice), notifier.PriorityCritical)
		return false, nil
	}

	// 撤掉现存保护单。列单失败不阻塞挂新单（宁可多一张保护单也别裸奔）。
	orders, err := r.market.OpenOrders(st.Symbol)
	if err != nil {
		log.Printf("⚠️ [止损同步] %s 查询挂单失败: %v，继续挂新止损", st.Symbol, err)
	} else {
		for _, o := range orders {
			if !isProtectiveOrder(o) {
				continue
			}
			if err := r.gateway.CancelOrder(st.Symbol, o.OrderID); err != nil {
				log.Printf("⚠️ [止损同步] %s 撤单 %d 失败: %v", st.Symbol, o.OrderID, err)
			} else {
				log.Printf("🧹 [止损同步] %s 已撤旧保护单 %d (触发价 %.4f)", st.Symbol, o.OrderID, o.StopPrice)
			}
		}
	}

	err = withRetry(placeAttempts, placeRetryDelay, r.sleep, func() error {
		_, perr := r.gateway.PlaceStopMarket(st.Symbol, st.Direction, st.CurrentSize, newStop)
		return perr
	})
	if err != nil {
		r.notifier.Notify(fmt.Sprintf("%s 止损挂单连续 %d 次失败，仓位暂无保护: %v",
			st.Symbol, placeAttempts, err), notifier.PriorityCritical)
		return false, fmt.Errorf("止损挂单失败: %w", err)
	}

	log.Printf("✅ [止损同步] %s 新止损已挂出 @ %.4f (数量 %.8f)", st.Symbol, newStop, st.CurrentSize)
	return true, nil
}

// isProtectiveOrder 只撤减仓方向的条件单，不碰用户自己的普通挂单
func isProtectiveOrder(o OpenOrder) bool {
	switch strings.ToUpper(o.Type) {
	case "STOP", "STOP_MARKET", "TAKE_PROFIT", "TAKE_PROFIT_MARKET":
		return o.ReduceOnly || o.ClosePosition
	}
	return false
}
