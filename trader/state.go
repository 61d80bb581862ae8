package trader

import (
	"sort"
	"time"

	"trailskim/config"
)

// maxAdjustmentHistory 止损调整历史上限，只留最近的记录用于回溯
const maxAdjustmentHistory = 50

// SkimRecord 一次已完成的分批止盈
type SkimRecord struct {
	Level          float64   `json:"level"`
	SizeClosed     float64   `json:"size_closed"`
	ExecutionPrice float64   `json:"execution_price"`
	Timestamp      time.Time `json:"timestamp"`
}

// Adjustment 一次成功推送到交易所的止损调整
type Adjustment struct {
	OldStop        float64   `json:"old_stop"`
	NewStop        float64   `json:"new_stop"`
	Price          float64   `json:"price"`
	ATR            float64   `json:"atr"`
	VolumeSpike    bool      `json:"volume_spike"`
	BBBandwidthPct float64   `json:"bb_bandwidth_pct"`
	Timestamp      time.Time `json:"timestamp"`
}

// PositionState 单个币种的追踪止损/分批止盈状态，按交易对为键持久化。
// BestPrice/LastPrice/CurrentTrailStop 是运行极值，初始为空（JSON null），
// 不用哨兵值表达“尚未追踪”。
type PositionState struct {
	Symbol           string       `json:"symbol"`
	Direction        Direction    `json:"direction"`
	EntryPrice       float64      `json:"entry_price"`
	OriginalSize     float64      `json:"original_size"`
	CurrentSize      float64      `json:"current_size"`
	BestPrice        *float64     `json:"best_price,omitempty"`
	LastPrice        *float64     `json:"last_price,omitempty"`
	TrailActive      bool         `json:"trail_active"`
	CurrentTrailStop *float64     `json:"current_trail_stop,omitempty"`
	SkimsPending     []float64    `json:"skims_pending"`
	SkimsCompleted   []SkimRecord `json:"skims_completed"`
	Adjustments      []Adjustment `json:"adjustments"`
	LastUpdated      time.Time    `json:"last_updated"`
}

// NewPositionState 首次观察到持仓时建档。
// 分批止盈价位按“最有利优先”排序：空单从低到高、多单从高到低，
// 一轮内多档同时触发时按此顺序执行。
func NewPositionState(pos PositionInfo, tc config.TickerConfig) *PositionState {
	pending := append([]float64(nil), tc.SkimLevels...)
	if pos.Direction == DirectionShort {
		sort.Float64s(pending)
	} else {
		sort.Sort(sort.Reverse(sort.Float64Slice(pending)))
	}

	return &PositionState{
		Symbol:       pos.Symbol,
		Direction:    pos.Direction,
		EntryPrice:   pos.EntryPrice,
		OriginalSize: pos.Size,
		CurrentSize:  pos.Size,
		SkimsPending: pending,
		LastUpdated:  time.Now(),
	}
}

// Matches 判断交易所持仓是否仍是建档时那笔仓位。
// 入场价或方向变化视为新仓位，需要重置状态。
func (s *PositionState) Matches(pos PositionInfo) bool {
	if s == nil {
		return false
	}
	return s.Direction == pos.Direction && floatsAlmostEqual(s.EntryPrice, pos.EntryPrice)
}

// SyncSize 用交易所数量刷新当前仓位（分批止盈与人工减仓都会反映在这里）
func (s *PositionState) SyncSize(venueSize float64) {
	if venueSize < 0 {
		venueSize = 0
	}
	if venueSize > s.OriginalSize {
		// 同价加仓极少见（加仓通常会改变开仓均价触发重置），夹回上限保持不变量
		venueSize = s.OriginalSize
	}
	s.CurrentSize = venueSize
}

// RecordAdjustment 追加一条止损调整记录并裁剪历史
func (s *PositionState) RecordAdjustment(adj Adjustment) {
	s.Adjustments = append(s.Adjustments, adj)
	if len(s.Adjustments) > maxAdjustmentHistory {
		s.Adjustments = s.Adjustments[len(s.Adjustments)-maxAdjustmentHistory:]
	}
}
