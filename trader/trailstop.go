package trader

import (
	"fmt"
	"strings"

	"trailskim/market"
)

// 追踪止损规则参数。调整步骤有严格顺序，后面的步骤只允许收紧，
// 唯一例外是布林带挤压时的有限放宽。
const (
	// activationProfitPct 浮盈达到该百分比后才开始追踪，且一旦激活不再回退
	activationProfitPct = 1.0
	// baseTrailATRMult 基础止损距离：最优价的不利侧 1.5 ATR
	baseTrailATRMult = 1.5
	// favorableMoveATRMult 单轮顺向波动超过 0.5 ATR 视为强势推进
	favorableMoveATRMult = 0.5
	// favorableBonusATRMult 强势推进时额外收紧 0.5 ATR
	favorableBonusATRMult = 0.5
	// volumeSpikeATRMult 量能激增时收紧 0.25 ATR
	volumeSpikeATRMult = 0.25
	// squeezeWidenATRMult 布林带挤压时放宽 0.25 ATR（预期突破，给足空间）
	squeezeWidenATRMult = 0.25
	// bandEdgeATRMult 价格贴到顺向带边缘时再收紧 0.25 ATR
	bandEdgeATRMult = 0.25
	// squeezeBandwidthPct 带宽低于 3% 判定为挤压
	squeezeBandwidthPct = 3.0
	// bandEdgeZone 带内位置的外侧 10% 视为极端区
	bandEdgeZone = 0.10
)

// TrailCalculator encapsulates the layered trailing-stop rules.
// Calculate is deterministic for identical inputs; it also advances the
// running extrema (BestPrice/LastPrice) because those cannot be re-derived.
type TrailCalculator struct{}

func NewTrailCalculator() *TrailCalculator {
	return &TrailCalculator{}
}

// Calculate returns the next stop price together with a human readable
// explanation. changed=false 表示本轮无需更新（尚未激活追踪）。
func (c *TrailCalculator) Calculate(
	price, atr float64,
	vol *market.VolumeResult,
	boll *market.BollingerResult,
	st *PositionState,
) (stop float64, changed bool, reason string, err error) {
	if st == nil {
		return 0, false, "", fmt.Errorf("持仓状态缺失")
	}
	if price <= 0 {
		return 0, false, "", fmt.Errorf("当前价格无效: %v", price)
	}
	if atr <= 0 {
		return 0, false, "", fmt.Errorf("ATR 无效: %v", atr)
	}

	short := st.Direction == DirectionShort

	// 步骤1：刷新最优价（空单取最低，多单取最高）
	if st.BestPrice == nil {
		v := price
		st.BestPrice = &v
	} else if short && price < *st.BestPrice {
		*st.BestPrice = price
	} else if !short && price > *st.BestPrice {
		*st.BestPrice = price
	}
	best := *st.BestPrice

	// 步骤2：激活检查。浮盈不足 1% 且从未激活时不计算止损，
	// 但 last_price 照常记录，供下一轮衡量顺向推进。
	profitPct := (price - st.EntryPrice) / st.EntryPrice * 100
	if short {
		profitPct = (st.EntryPrice - price) / st.EntryPrice * 100
	}
	if !st.TrailActive {
		if profitPct < activationProfitPct {
			lp := price
			st.LastPrice = &lp
			return 0, false, fmt.Sprintf("浮盈 %.2f%% < %.1f%%，追踪未激活", profitPct, activationProfitPct), nil
		}
		st.TrailActive = true
	}

	var notes []string

	// 步骤3：基础追踪距离
	if short {
		stop = best + baseTrailATRMult*atr
	} else {
		stop = best - baseTrailATRMult*atr
	}
	notes = append(notes, fmt.Sprintf("基础=%.4f（最优价%.4f±%.1fATR）", stop, best, baseTrailATRMult))

	// 步骤4：顺向推进奖励
	if st.LastPrice != nil {
		move := price - *st.LastPrice
		if short {
			move = *st.LastPrice - price
		}
		if move > favorableMoveATRMult*atr {
			stop = tighten(stop, favorableBonusATRMult*atr, short)
			notes = append(notes, fmt.Sprintf("顺向推进%.4f>%.1fATR，收紧%.2fATR", move, favorableMoveATRMult, favorableBonusATRMult))
		}
	}

	// 步骤5：量能激增
	if vol != nil && vol.Spike {
		stop = tighten(stop, volumeSpikeATRMult*atr, short)
		notes = append(notes, fmt.Sprintf("量能激增(ratio=%.2f)，收紧%.2fATR", vol.Ratio, volumeSpikeATRMult))
	}

	// 步骤6/7：布林带。挤压是唯一允许向不利方向移动的步骤。
	squeeze := false
	if boll != nil {
		if boll.BandwidthPct < squeezeBandwidthPct {
			squeeze = true
			stop = widen(stop, squeezeWidenATRMult*atr, short)
			notes = append(notes, fmt.Sprintf("带宽%.2f%%<%.1f%%挤压，放宽%.2fATR", boll.BandwidthPct, squeezeBandwidthPct, squeezeWidenATRMult))
		}
		atFavorableEdge := (short && boll.Position < bandEdgeZone) || (!short && boll.Position > 1-bandEdgeZone)
		if atFavorableEdge {
			stop = tighten(stop, bandEdgeATRMult*atr, short)
			notes = append(notes, fmt.Sprintf("贴近顺向带边(pos=%.2f)，收紧%.2fATR", boll.Position, bandEdgeATRMult))
		}
	}

	// 步骤8：保本夹持。激活后止损不得劣于开仓价。
	if short && stop > st.EntryPrice {
		stop = st.EntryPrice
		notes = append(notes, "夹回开仓价保本")
	} else if !short && stop < st.EntryPrice {
		stop = st.EntryPrice
		notes = append(notes, "夹回开仓价保本")
	}

	// 步骤9：单调约束。相对上一轮止损，只有挤压当轮才允许最多放宽 0.25 ATR，
	// 否则只能收紧或持平。
	if st.CurrentTrailStop != nil {
		prev := *st.CurrentTrailStop
		maxWiden := 0.0
		if squeeze {
			maxWiden = squeezeWidenATRMult * atr
		}
		if short {
			if stop > prev+maxWiden {
				stop = prev + maxWiden
				notes = append(notes, fmt.Sprintf("单调约束：限制在 %.4f", stop))
			}
		} else {
			if stop < prev-maxWiden {
				stop = prev - maxWiden
				notes = append(notes, fmt.Sprintf("单调约束：限制在 %.4f", stop))
			}
		}
	}

	// 步骤10：记录本轮价格
	lp := price
	st.LastPrice = &lp

	changed = st.CurrentTrailStop == nil || !floatsAlmostEqual(stop, *st.CurrentTrailStop)
	reason = fmt.Sprintf("动态止损 %.4f：%s", stop, strings.Join(notes, "；"))
	return stop, changed, reason, nil
}

// tighten 向有利方向移动止损（空单向下，多单向上）
func tighten(stop, delta float64, short bool) float64 {
	if short {
		return stop - delta
	}
	return stop + delta
}

// widen 向不利方向移动止损（空单向上，多单向下）
func widen(stop, delta float64, short bool) float64 {
	if short {
		return stop + delta
	}
	return stop - delta
}

// stopBreached 止损价是否已被当前价触及（挂出去会立即成交）
func stopBreached(direction Direction, stop, price float64) bool {
	if direction == DirectionShort {
		return price >= stop
	}
	return price <= stop
}
