package market

import (
	"fmt"
	"log"
	"math"
)

const (
	// ATRPeriod 追踪止损使用的 ATR 周期
	ATRPeriod = 14
	// VolumeLookback 量能分析回看窗口
	VolumeLookback = 20
	// BollingerPeriod / BollingerK 布林带参数
	BollingerPeriod = 20
	BollingerK      = 2.0

	volumeSpikeRatio    = 2.0
	volumeTrendWindow   = 5
	volumeTrendUpRatio  = 1.2
	volumeTrendDnRatio  = 0.8
	stalePriceWindow    = 5
	stalePriceTolerance = 0.0001
)

// CalculateATR 计算 Wilder 平滑的 ATR。
// 数据不足（K线数 < period+1）时返回错误，调用方必须跳过该币种本轮处理，
// 绝不能用默认值顶替。
func CalculateATR(klines []Kline, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("ATR 周期无效: %d", period)
	}
	if len(klines) <= period {
		return 0, fmt.Errorf("ATR%d 数据不可用: 仅有 %d 根K线，需要至少 %d 根", period, len(klines), period+1)
	}

	trs := make([]float64, len(klines))
	for i := 1; i < len(klines); i++ {
		high := klines[i].High
		low := klines[i].Low
		prevClose := klines[i-1].Close

		tr1 := high - low
		tr2 := math.Abs(high - prevClose)
		tr3 := math.Abs(low - prevClose)

		trs[i] = math.Max(tr1, math.Max(tr2, tr3))
	}

	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += trs[i]
	}
	atr := sum / float64(period)

	for i := period + 1; i < len(klines); i++ {
		atr = (atr*float64(period-1) + trs[i]) / float64(period)
	}

	if atr <= 0 {
		return 0, fmt.Errorf("ATR%d 数据不可用", period)
	}
	return atr, nil
}

// AnalyzeVolume 对最新一根K线做量能分类：
// ratio = 当前量 / 之前 lookback-1 根的均量；spike = ratio ≥ 2.0；
// trend 用最近5根与再前5根的均量对比。
func AnalyzeVolume(klines []Kline, lookback int) (*VolumeResult, error) {
	if lookback <= 1 {
		return nil, fmt.Errorf("量能回看窗口无效: %d", lookback)
	}
	if len(klines) < lookback {
		return nil, fmt.Errorf("量能数据不足: 仅有 %d 根K线，需要 %d 根", len(klines), lookback)
	}

	recent := klines[len(klines)-lookback:]
	current := recent[len(recent)-1].Volume

	sum := 0.0
	for i := 0; i < len(recent)-1; i++ {
		sum += recent[i].Volume
	}
	mean := sum / float64(len(recent)-1)

	ratio := 0.0
	if mean > 0 {
		ratio = current / mean
	}

	trend := VolumeTrendNeutral
	if len(klines) >= 2*volumeTrendWindow {
		last := klines[len(klines)-volumeTrendWindow:]
		prior := klines[len(klines)-2*volumeTrendWindow : len(klines)-volumeTrendWindow]

		lastMean := 0.0
		priorMean := 0.0
		for i := 0; i < volumeTrendWindow; i++ {
			lastMean += last[i].Volume
			priorMean += prior[i].Volume
		}
		lastMean /= float64(volumeTrendWindow)
		priorMean /= float64(volumeTrendWindow)

		if priorMean > 0 {
			r := lastMean / priorMean
			if r >= volumeTrendUpRatio {
				trend = VolumeTrendIncreasing
			} else if r <= volumeTrendDnRatio {
				trend = VolumeTrendDecreasing
			}
		}
	}

	return &VolumeResult{
		Ratio: ratio,
		Trend: trend,
		Spike: ratio >= volumeSpikeRatio,
	}, nil
}

// CalculateBollinger 计算最新收盘价的布林带位置与带宽。
// 数据不足时返回错误，调用方按“无布林带”处理（可降级，不算致命）。
func CalculateBollinger(klines []Kline, period int, k float64) (*BollingerResult, error) {
	if period <= 0 {
		return nil, fmt.Errorf("布林带周期无效: %d", period)
	}
	if len(klines) < period {
		return nil, fmt.Errorf("布林带数据不足: 仅有 %d 根K线，需要 %d 根", len(klines), period)
	}

	window := klines[len(klines)-period:]
	sum := 0.0
	for _, kl := range window {
		sum += kl.Close
	}
	middle := sum / float64(period)

	variance := 0.0
	for _, kl := range window {
		diff := kl.Close - middle
		variance += diff * diff
	}
	stdDev := math.Sqrt(variance / float64(period))

	upper := middle + k*stdDev
	lower := middle - k*stdDev

	bandwidthPct := 0.0
	if middle != 0 {
		bandwidthPct = (upper - lower) / middle * 100
	}

	position := 0.5
	if upper > lower {
		position = (window[len(window)-1].Close - lower) / (upper - lower)
	}
	if position < 0 {
		position = 0
	}
	if position > 1 {
		position = 1
	}

	return &BollingerResult{
		Upper:        upper,
		Middle:       middle,
		Lower:        lower,
		BandwidthPct: bandwidthPct,
		Position:     position,
	}, nil
}

// IsStaleData detects stale data (consecutive price freeze)
// 连续 N 根K线价格完全不动且无成交量，视为数据源异常
func IsStaleData(klines []Kline, symbol string) bool {
	if len(klines) < stalePriceWindow {
		return false
	}

	recentKlines := klines[len(klines)-stalePriceWindow:]
	firstPrice := recentKlines[0].Close
	if firstPrice == 0 {
		return false
	}

	for i := 1; i < len(recentKlines); i++ {
		priceDiff := math.Abs(recentKlines[i].Close-firstPrice) / firstPrice
		if priceDiff > stalePriceTolerance {
			return false
		}
	}

	allVolumeZero := true
	for _, k := range recentKlines {
		if k.Volume > 0 {
			allVolumeZero = false
			break
		}
	}

	if allVolumeZero {
		log.Printf("⚠️  %s stale data confirmed: price freeze + zero volume", symbol)
		return true
	}

	log.Printf("⚠️  %s detected extreme price stability (no fluctuation for %d consecutive periods), but volume is normal", symbol, stalePriceWindow)
	return false
}

// FormatPrice 根据价格区间动态选择精度
// 这样可以完美支持从超低价 meme coin (< 0.0001) 到 BTC/ETH 的所有币种
func FormatPrice(price float64) string {
	switch {
	case price < 0.0001:
		return fmt.Sprintf("%.8f", price)
	case price < 0.01:
		return fmt.Sprintf("%.6f", price)
	case price < 100:
		return fmt.Sprintf("%.4f", price)
	default:
		return fmt.Sprintf("%.2f", price)
	}
}
