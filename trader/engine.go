package trader

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"trailskim/config"
	"trailskim/logger"
	"trailskim/market"
	"trailskim/notifier"
	"trailskim/store"
)

const (
	// defaultSizePrecision 查询精度失败时的兜底值（币安多数合约为3位）
	defaultSizePrecision = 3
	// largeAdjustmentPct 止损单轮移动超过该百分比时额外推送告警
	largeAdjustmentPct = 1.0
)

// Engine 主巡检循环：每轮拉取持仓，逐个币种计算指标、执行分批止盈、
// 重算并同步追踪止损，最后整体持久化状态。
type Engine struct {
	market   MarketData
	gateway  OrderGateway
	notifier notifier.Notifier
	store    store.Store

	tickers map[string]config.TickerConfig
	states  map[string]*PositionState

	calc  *TrailCalculator
	skim  *SkimEngine
	recon *Reconciler

	interval     string
	lookback     int
	pollInterval time.Duration
	dryRun       bool

	cycle int
}

// NewEngine 组装引擎。dryRun 时不落任何真实订单、不写状态库。
func NewEngine(
	m MarketData,
	g OrderGateway,
	n notifier.Notifier,
	st store.Store,
	tickers map[string]config.TickerConfig,
	interval string,
	lookback int,
	pollInterval time.Duration,
	dryRun bool,
) *Engine {
	if dryRun {
		g = &DryRunGateway{}
	}
	return &Engine{
		market:       m,
		gateway:      g,
		notifier:     n,
		store:        st,
		tickers:      tickers,
		states:       make(map[string]*PositionState),
		calc:         NewTrailCalculator(),
		skim:         NewSkimEngine(g, n),
		recon:        NewReconciler(m, g, n),
		interval:     interval,
		lookback:     lookback,
		pollInterval: pollInterval,
		dryRun:       dryRun,
	}
}

// LoadState 从状态库恢复各币种的追踪状态，损坏的记录丢弃并告警
func (e *Engine) LoadState() error {
	raw, err := e.store.Load()
	if err != nil {
		return fmt.Errorf("加载持仓状态失败: %w", err)
	}
	for symbol, payload := range raw {
		var st PositionState
		if err := json.Unmarshal(payload, &st); err != nil {
			log.Printf("⚠️ [状态] %s 状态记录损坏，丢弃: %v", symbol, err)
			continue
		}
		e.states[symbol] = &st
	}
	log.Printf("📥 [状态] 已恢复 %d 个币种的追踪状态", len(e.states))
	return nil
}

// RunCycle 执行一轮完整巡检
func (e *Engine) RunCycle() {
	e.cycle++
	start := time.Now()
	log.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Printf("🔍 [巡检] 第 %d 轮开始 (dry-run=%v)", e.cycle, e.dryRun)

	positions, err := e.market.OpenPositions()
	if err != nil {
		// 拿不到持仓就什么都不动，下一轮再试
		log.Printf("❌ [巡检] 获取持仓失败，本轮跳过: %v", err)
		return
	}

	bySymbol := make(map[string]PositionInfo, len(positions))
	for _, pos := range positions {
		bySymbol[pos.Symbol] = pos
	}

	// 清理已平仓币种的状态
	for symbol := range e.states {
		if _, alive := bySymbol[symbol]; !alive {
			log.Printf("🧹 [巡检] %s 持仓已不存在，清除追踪状态", symbol)
			e.notifier.Notify(fmt.Sprintf("%s 持仓已平，追踪状态清除", symbol), notifier.PriorityMedium)
			delete(e.states, symbol)
		}
	}

	var reports []logger.InstrumentReport
	for _, pos := range positions {
		if _, configured := e.tickers[pos.Symbol]; !configured {
			continue // 未配置的币种不归本程序管
		}
		reports = append(reports, e.safeProcess(pos))
	}

	e.saveState()

	elapsed := time.Since(start)
	logger.LogCycle(e.cycle, reports, elapsed)
	log.Printf("✅ [巡检] 第 %d 轮结束，处理 %d 个持仓，耗时 %v", e.cycle, len(reports), elapsed.Round(time.Millisecond))
	log.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
}

// safeProcess 单币种处理加 recover 隔离，某个币种崩了不影响其余币种
func (e *Engine) safeProcess(pos PositionInfo) (report logger.InstrumentReport) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("❌ [巡检] %s 处理发生panic: %v", pos.Symbol, rec)
			e.notifier.Notify(fmt.Sprintf("%s 处理异常(panic): %v", pos.Symbol, rec), notifier.PriorityCritical)
			report = logger.InstrumentReport{
				Symbol:    pos.Symbol,
				Direction: string(pos.Direction),
				Skipped:   true,
				Err:       fmt.Errorf("panic: %v", rec),
			}
		}
	}()
	return e.processPosition(pos)
}

func (e *Engine) processPosition(pos PositionInfo) logger.InstrumentReport {
	report := logger.InstrumentReport{Symbol: pos.Symbol, Direction: string(pos.Direction)}

	// 行情在前，状态变更在后：任何数据拿不到就原样跳过，不留半截状态
	price, err := e.market.MidPrice(pos.Symbol)
	if err != nil {
		log.Printf("⚠️ [巡检] %s 获取最新价失败，跳过: %v", pos.Symbol, err)
		report.Skipped, report.Err = true, err
		return report
	}
	report.Price = price

	klines, err := e.market.Candles(pos.Symbol, e.interval, e.lookback)
	if err != nil {
		log.Printf("⚠️ [巡检] %s 获取K线失败，跳过: %v", pos.Symbol, err)
		report.Skipped, report.Err = true, err
		return report
	}

	if market.IsStaleData(klines, pos.Symbol) {
		log.Printf("⚠️ [巡检] %s 行情疑似停滞，跳过本轮", pos.Symbol)
		report.Skipped = true
		return report
	}

	atr, err := market.CalculateATR(klines, market.ATRPeriod)
	if err != nil {
		log.Printf("⚠️ [巡检] %s ATR计算失败，跳过: %v", pos.Symbol, err)
		report.Skipped, report.Err = true, err
		return report
	}
	report.ATR = atr

	// 成交量与布林带属于增强信号，失败时降级而不是跳过
	vol, err := market.AnalyzeVolume(klines, market.VolumeLookback)
	if err != nil {
		log.Printf("⚠️ [巡检] %s 成交量分析失败，降级处理: %v", pos.Symbol, err)
		vol = nil
	} else {
		report.VolumeRatio, report.VolumeSpike = vol.Ratio, vol.Spike
	}
	boll, err := market.CalculateBollinger(klines, market.BollingerPeriod, market.BollingerK)
	if err != nil {
		log.Printf("⚠️ [巡检] %s 布林带计算失败，降级处理: %v", pos.Symbol, err)
		boll = nil
	} else {
		report.BandwidthPct = boll.BandwidthPct
	}

	// 状态建档/换仓重置
	st, ok := e.states[pos.Symbol]
	if !ok {
		st = NewPositionState(pos, e.tickers[pos.Symbol])
		e.states[pos.Symbol] = st
		log.Printf("🆕 [巡检] %s 新持仓建档：%s 入场 %s 数量 %.8f",
			pos.Symbol, pos.Direction, market.FormatPrice(pos.EntryPrice), pos.Size)
	} else if !st.Matches(pos) {
		log.Printf("🔄 [巡检] %s 持仓已更换（方向或入场价变化），重置追踪状态", pos.Symbol)
		e.notifier.Notify(fmt.Sprintf("%s 检测到换仓，追踪状态已重置", pos.Symbol), notifier.PriorityMedium)
		st = NewPositionState(pos, e.tickers[pos.Symbol])
		e.states[pos.Symbol] = st
	}
	st.SyncSize(pos.Size)

	precision, err := e.market.SizePrecision(pos.Symbol)
	if err != nil {
		log.Printf("⚠️ [巡检] %s 查询数量精度失败，使用默认 %d 位: %v", pos.Symbol, defaultSizePrecision, err)
		precision = defaultSizePrecision
	}

	// 先止盈后止损：分批减仓会改变止损单应挂的数量
	report.SkimsExecuted = e.skim.Process(st, price, precision)
	report.SkimsPending = len(st.SkimsPending)

	stop, changed, reason, err := e.calc.Calculate(price, atr, vol, boll, st)
	if err != nil {
		log.Printf("⚠️ [巡检] %s 止损计算失败: %v", pos.Symbol, err)
		report.Err = err
		st.LastUpdated = time.Now()
		return report
	}
	if stop == 0 {
		// 追踪尚未激活
		log.Printf("⏭️ [追踪止损] %s %s", pos.Symbol, reason)
		st.LastUpdated = time.Now()
		return report
	}
	report.Stop = stop

	if changed && st.CurrentSize > 0 {
		log.Printf("📊 [追踪止损] %s %s", pos.Symbol, reason)
		var oldStop float64
		if st.CurrentTrailStop != nil {
			oldStop = *st.CurrentTrailStop
		}
		placed, err := e.recon.Reconcile(st, stop, price)
		if err != nil {
			report.Err = err
		}
		if placed {
			report.StopChanged = true
			st.RecordAdjustment(Adjustment{
				OldStop:        oldStop,
				NewStop:        stop,
				Price:          price,
				ATR:            atr,
				VolumeSpike:    vol != nil && vol.Spike,
				BBBandwidthPct: report.BandwidthPct,
				Timestamp:      time.Now(),
			})
			v := stop
			st.CurrentTrailStop = &v
			if oldStop != 0 && math.Abs(stop-oldStop)/oldStop*100 > largeAdjustmentPct {
				e.notifier.Notify(fmt.Sprintf("%s 止损大幅调整 %s → %s",
					pos.Symbol, market.FormatPrice(oldStop), market.FormatPrice(stop)), notifier.PriorityMedium)
			}
		}
	}

	st.LastUpdated = time.Now()
	return report
}

// saveState 整体持久化。失败只告警不中断：状态还在内存里，下一轮还有机会。
func (e *Engine) saveState() {
	if e.dryRun {
		return
	}
	raw := make(map[string]json.RawMessage, len(e.states))
	for symbol, st := range e.states {
		payload, err := json.Marshal(st)
		if err != nil {
			log.Printf("❌ [状态] %s 序列化失败: %v", symbol, err)
			continue
		}
		raw[symbol] = payload
	}
	if err := e.store.Save(raw); err != nil {
		log.Printf("❌ [状态] 持久化失败: %v", err)
		e.notifier.Notify(fmt.Sprintf("状态持久化失败: %v", err), notifier.PriorityLow)
	}
}

// Watch 按固定间隔持续巡检，直到 ctx 取消
func (e *Engine) Watch(ctx context.Context) {
	log.Printf("🚀 [启动] 进入监控模式，间隔 %v", e.pollInterval)
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	e.RunCycle()
	for {
		select {
		case <-ctx.Done():
			log.Printf("🛑 [退出] 收到停止信号，监控结束")
			return
		case <-ticker.C:
			e.RunCycle()
		}
	}
}

// States 返回当前内存状态（status 展示用）
func (e *Engine) States() map[string]*PositionState {
	return e.states
}

// DryRunGateway 演练网关：所有下单动作只打日志，返回成功
type DryRunGateway struct{}

func (DryRunGateway) CancelOrder(symbol string, orderID int64) error {
	log.Printf("🧪 [演练] %s 撤单 %d", symbol, orderID)
	return nil
}

func (DryRunGateway) PlaceStopMarket(symbol string, direction Direction, size, triggerPrice float64) (int64, error) {
	log.Printf("🧪 [演练] %s 挂止损 %s 数量 %.8f @ %s", symbol, strings.ToUpper(string(direction)), size, market.FormatPrice(triggerPrice))
	return time.Now().UnixNano(), nil
}

func (DryRunGateway) MarketClose(symbol string, direction Direction, size float64) (*Fill, error) {
	log.Printf("🧪 [演练] %s 市价平仓 %s 数量 %.8f", symbol, strings.ToUpper(string(direction)), size)
	return &Fill{OrderID: time.Now().UnixNano(), Quantity: size}, nil
}
