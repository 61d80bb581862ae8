package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTickers(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tickers.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write tickers: %v", err)
	}
	return path
}

func TestLoadTickers(t *testing.T) {
	path := writeTickers(t, `{
		"btc": {"skim_levels": [83000, 70000], "target": 60000},
		"ETHUSDT": {"skim_levels": [1900], "target": 1800}
	}`)

	tickers, err := LoadTickers(path)
	if err != nil {
		t.Fatalf("LoadTickers failed: %v", err)
	}

	btc, ok := tickers["BTCUSDT"]
	if !ok {
		t.Fatal("expected btc to normalize to BTCUSDT")
	}
	if len(btc.SkimLevels) != 2 || btc.Target != 60000 {
		t.Errorf("unexpected BTC config: %+v", btc)
	}
	if _, ok := tickers["ETHUSDT"]; !ok {
		t.Error("expected ETHUSDT entry")
	}
}

func TestLoadTickersRejectsBadLevels(t *testing.T) {
	path := writeTickers(t, `{"btc": {"skim_levels": [83000, -1], "target": 60000}}`)
	if _, err := LoadTickers(path); err == nil {
		t.Error("expected error for non-positive skim level")
	}

	path = writeTickers(t, `{"btc": {"skim_levels": [83000], "target": 0}}`)
	if _, err := LoadTickers(path); err == nil {
		t.Error("expected error for missing target")
	}
}

func TestLoadTickersMissingFile(t *testing.T) {
	if _, err := LoadTickers(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadValidatesLookback(t *testing.T) {
	t.Setenv("CANDLE_LOOKBACK", "5")
	if _, err := Load(""); err == nil {
		t.Error("expected error when lookback cannot cover the ATR period")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CANDLE_LOOKBACK", "")
	t.Setenv("POLL_INTERVAL_SECONDS", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.CandleInterval != "15m" {
		t.Errorf("expected default interval 15m, got %s", cfg.CandleInterval)
	}
	if cfg.CandleLookback != 120 {
		t.Errorf("expected default lookback 120, got %d", cfg.CandleLookback)
	}
	if !cfg.UseKlineCache {
		t.Error("kline cache should default to enabled")
	}
}
