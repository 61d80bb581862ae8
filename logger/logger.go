// Package logger 提供每轮巡检的结构化报告输出。
// 操作流水仍使用标准 log 输出，这里只负责给运维留一份可检索的逐币种记录。
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Log 全局结构化日志器
var Log zerolog.Logger

func init() {
	Init(false)
}

// Init 初始化结构化日志器；verbose 时输出 debug 级别
func Init(verbose bool) {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	Log = zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

// InstrumentReport 单个币种一轮处理的结构化结果
type InstrumentReport struct {
	Symbol        string
	Direction     string
	Price         float64
	ATR           float64
	VolumeRatio   float64
	VolumeSpike   bool
	BandwidthPct  float64
	Stop          float64
	StopChanged   bool
	SkimsExecuted int
	SkimsPending  int
	Skipped       bool
	Err           error
}

// LogCycle 输出一轮巡检的逐币种报告；无论成败每个币种都有一行
func LogCycle(cycle int, reports []InstrumentReport, elapsed time.Duration) {
	for _, r := range reports {
		event := Log.Info()
		if r.Err != nil {
			event = Log.Error().Err(r.Err)
		}
		event.
			Int("cycle", cycle).
			Str("symbol", r.Symbol).
			Str("direction", r.Direction).
			Float64("price", r.Price).
			Float64("atr", r.ATR).
			Float64("volume_ratio", r.VolumeRatio).
			Bool("volume_spike", r.VolumeSpike).
			Float64("bb_bandwidth_pct", r.BandwidthPct).
			Float64("stop", r.Stop).
			Bool("stop_changed", r.StopChanged).
			Int("skims_executed", r.SkimsExecuted).
			Int("skims_pending", r.SkimsPending).
			Bool("skipped", r.Skipped).
			Msg("position checked")
	}
	Log.Info().Int("cycle", cycle).Int("positions", len(reports)).Dur("elapsed", elapsed).Msg("cycle complete")
}
