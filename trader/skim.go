package trader

import (
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"trailskim/notifier"
)

// skimFraction 每触发一档平掉当前仓位的比例。
// 按当前仓位计息意味着仓位按 0.67^n 几何衰减，永远留有尾仓吃趋势。
const skimFraction = 0.33

// SkimEngine executes pending profit-skim levels against the venue.
// Pending levels are kept most-favorable-first; when a price gap triggers
// several at once they are executed in that order, each exactly once.
type SkimEngine struct {
	gateway  OrderGateway
	notifier notifier.Notifier
}

func NewSkimEngine(gateway OrderGateway, n notifier.Notifier) *SkimEngine {
	return &SkimEngine{gateway: gateway, notifier: n}
}

// Process 检查并执行已触发的分批止盈档位，返回成交笔数。
// 某一档下单失败时保留该档并中止本轮（下一轮重试），避免跳档。
func (e *SkimEngine) Process(st *PositionState, price float64, precision int) int {
	executed := 0
	remaining := st.SkimsPending[:0:0]

	for i, level := range st.SkimsPending {
		if !skimTriggered(st.Direction, level, price) {
			remaining = append(remaining, level)
			continue
		}

		size := roundSize(st.CurrentSize*skimFraction, precision)
		if size <= 0 {
			// 仓位已小于最小下单粒度，这一档留着等人工处理
			log.Printf("⏭️ [分批止盈] %s 档位 %s 触发但数量过小(%.8f)，跳过",
				st.Symbol, formatLevel(level), st.CurrentSize*skimFraction)
			remaining = append(remaining, level)
			continue
		}

		fill, err := e.gateway.MarketClose(st.Symbol, st.Direction, size)
		if err != nil {
			log.Printf("❌ [分批止盈] %s 档位 %s 平仓失败: %v", st.Symbol, formatLevel(level), err)
			e.notifier.Notify(fmt.Sprintf("%s 分批止盈失败（档位 %s）: %v", st.Symbol, formatLevel(level), err), notifier.PriorityHigh)
			// 失败档位与后续档位都保留，本轮不再继续下单
			remaining = append(remaining, st.SkimsPending[i:]...)
			break
		}

		execPrice := level
		if fill != nil && fill.Price > 0 {
			execPrice = fill.Price
		}

		st.CurrentSize -= size
		if st.CurrentSize < 0 {
			st.CurrentSize = 0
		}
		st.SkimsCompleted = append(st.SkimsCompleted, SkimRecord{
			Level:          level,
			SizeClosed:     size,
			ExecutionPrice: execPrice,
			Timestamp:      time.Now(),
		})
		executed++

		log.Printf("✅ [分批止盈] %s 档位 %s 成交：平 %.8f @ %.4f，剩余 %.8f",
			st.Symbol, formatLevel(level), size, execPrice, st.CurrentSize)
		e.notifier.Notify(fmt.Sprintf("%s 分批止盈成交：档位 %s 平 %v @ %v，剩余 %v",
			st.Symbol, formatLevel(level), size, execPrice, st.CurrentSize), notifier.PriorityHigh)
	}

	st.SkimsPending = remaining
	return executed
}

// skimTriggered 当前价是否已到达（或越过）止盈档位
func skimTriggered(direction Direction, level, price float64) bool {
	if direction == DirectionShort {
		return price <= level
	}
	return price >= level
}

// roundSize 按交易所数量精度截断，避免下超精度的单被拒
func roundSize(size float64, precision int) float64 {
	if precision < 0 {
		precision = 0
	}
	return decimal.NewFromFloat(size).RoundDown(int32(precision)).InexactFloat64()
}

func formatLevel(level float64) string {
	return decimal.NewFromFloat(level).String()
}
