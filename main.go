package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"trailskim/config"
	"trailskim/logger"
	"trailskim/market"
	"trailskim/notifier"
	"trailskim/store"
	"trailskim/trader"
)

func main() {
	mode := flag.String("mode", "check", "运行模式: check(演练一轮) | run(真实一轮) | watch(持续监控) | status(查看状态)")
	envPath := flag.String("env", "", ".env 文件路径（默认读取当前目录）")
	interval := flag.String("interval", "", "覆盖K线周期（默认取配置 CANDLE_INTERVAL）")
	verbose := flag.Bool("v", false, "输出调试日志")
	flag.Parse()

	logger.Init(*verbose)

	cfg, err := config.Load(*envPath)
	if err != nil {
		log.Fatalf("❌ 配置加载失败: %v", err)
	}
	if *interval != "" {
		cfg.CandleInterval = *interval
	}

	if *mode == "status" {
		if err := printStatus(cfg); err != nil {
			log.Fatalf("❌ 读取状态失败: %v", err)
		}
		return
	}

	tickers, err := config.LoadTickers(cfg.TickerPath)
	if err != nil {
		log.Fatalf("❌ 币种配置加载失败: %v", err)
	}
	if len(tickers) == 0 {
		log.Fatalf("❌ 币种配置为空，没有可管理的交易对")
	}

	var alerts notifier.Notifier = notifier.LogNotifier{}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		tg, err := notifier.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Printf("⚠️ Telegram 初始化失败，退化为日志告警: %v", err)
		} else {
			alerts = tg
		}
	}

	db, err := store.NewSQLiteStore(cfg.StatePath)
	if err != nil {
		log.Fatalf("❌ 状态库打开失败: %v", err)
	}
	defer db.Close()

	// watch 模式可选启用 WebSocket K线缓存，减少REST调用
	var cache *market.KlineCache
	if *mode == "watch" && cfg.UseKlineCache {
		symbols := make([]string, 0, len(tickers))
		for symbol := range tickers {
			symbols = append(symbols, symbol)
		}
		cache = market.NewKlineCache(symbols, cfg.CandleInterval)
		if err := cache.Start(); err != nil {
			log.Printf("⚠️ K线缓存启动失败，全部走REST: %v", err)
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	venue := trader.NewBinanceVenue(cfg.BinanceAPIKey, cfg.BinanceSecretKey, cache)
	dryRun := *mode == "check"
	engine := trader.NewEngine(venue, venue, alerts, db, tickers,
		cfg.CandleInterval, cfg.CandleLookback, cfg.PollInterval, dryRun)

	if err := engine.LoadState(); err != nil {
		log.Fatalf("❌ %v", err)
	}

	switch *mode {
	case "check", "run":
		engine.RunCycle()
	case "watch":
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		engine.Watch(ctx)
	default:
		log.Fatalf("❌ 未知模式: %s", *mode)
	}
}

// printStatus 只读展示状态库里各币种的追踪进度
func printStatus(cfg *config.Config) error {
	db, err := store.NewSQLiteStore(cfg.StatePath)
	if err != nil {
		return err
	}
	defer db.Close()

	raw, err := db.Load()
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		fmt.Println("状态库为空，当前没有被追踪的持仓")
		return nil
	}

	for symbol, payload := range raw {
		var st trader.PositionState
		if err := json.Unmarshal(payload, &st); err != nil {
			fmt.Printf("%s: 状态记录损坏 (%v)\n", symbol, err)
			continue
		}
		fmt.Printf("━━━ %s (%s) ━━━\n", symbol, st.Direction)
		fmt.Printf("  入场价: %s  仓位: %.8f / %.8f\n",
			market.FormatPrice(st.EntryPrice), st.CurrentSize, st.OriginalSize)
		if st.BestPrice != nil {
			fmt.Printf("  最优价: %s\n", market.FormatPrice(*st.BestPrice))
		}
		fmt.Printf("  追踪激活: %v", st.TrailActive)
		if st.CurrentTrailStop != nil {
			fmt.Printf("  当前止损: %s", market.FormatPrice(*st.CurrentTrailStop))
		}
		fmt.Println()
		fmt.Printf("  待触发止盈: %v  已完成: %d 笔  止损调整: %d 次\n",
			st.SkimsPending, len(st.SkimsCompleted), len(st.Adjustments))
		fmt.Printf("  最近更新: %s\n", st.LastUpdated.Format("2006-01-02 15:04:05"))
	}
	return nil
}
