package market

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	combinedStreamBase = "wss://fstream.binance.com/stream?streams="
	klineCacheLimit    = 200
	wsReconnectDelay   = 5 * time.Second
)

// klineStreamEnvelope 组合流推送的K线消息
type klineStreamEnvelope struct {
	Stream string `json:"stream"`
	Data   struct {
		Symbol string `json:"s"`
		Kline  struct {
			StartTime   int64  `json:"t"`
			CloseTime   int64  `json:"T"`
			Open        string `json:"o"`
			High        string `json:"h"`
			Low         string `json:"l"`
			Close       string `json:"c"`
			Volume      string `json:"v"`
			QuoteVolume string `json:"q"`
			Trades      int    `json:"n"`
		} `json:"k"`
	} `json:"data"`
}

// KlineCache 通过组合流维护各交易对的实时K线缓存。
// 缓存长度不足时调用方应回退到 REST 接口取足量数据。
type KlineCache struct {
	symbols  []string
	interval string

	mu     sync.RWMutex
	klines map[string][]Kline

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewKlineCache 创建指定周期的K线缓存
func NewKlineCache(symbols []string, interval string) *KlineCache {
	return &KlineCache{
		symbols:  symbols,
		interval: interval,
		klines:   make(map[string][]Kline),
		stopCh:   make(chan struct{}),
	}
}

// Start 预热历史数据并启动WebSocket读取goroutine
func (c *KlineCache) Start() error {
	if len(c.symbols) == 0 {
		return fmt.Errorf("K线缓存未配置交易对")
	}

	apiClient := NewAPIClient()
	for _, symbol := range c.symbols {
		klines, err := apiClient.GetKlines(symbol, c.interval, klineCacheLimit)
		if err != nil {
			log.Printf("⚠️  预热 %s 历史K线失败: %v", symbol, err)
			continue
		}
		c.mu.Lock()
		c.klines[symbol] = klines
		c.mu.Unlock()
		log.Printf("📊 已加载 %s 历史K线-%s: %d 条", symbol, c.interval, len(klines))
	}

	c.wg.Add(1)
	go c.run()
	return nil
}

// Close 停止WebSocket读取并等待goroutine退出
func (c *KlineCache) Close() {
	close(c.stopCh)
	c.wg.Wait()
}

// Current 返回某交易对最近 limit 根缓存K线；缓存不足时返回 false
func (c *KlineCache) Current(symbol string, limit int) ([]Kline, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	klines, ok := c.klines[symbol]
	if !ok || len(klines) < limit {
		return nil, false
	}
	out := make([]Kline, limit)
	copy(out, klines[len(klines)-limit:])
	return out, true
}

func (c *KlineCache) streamURL() string {
	streams := make([]string, 0, len(c.symbols))
	for _, symbol := range c.symbols {
		streams = append(streams, fmt.Sprintf("%s@kline_%s", strings.ToLower(symbol), c.interval))
	}
	return combinedStreamBase + strings.Join(streams, "/")
}

// run 维持连接，断线后固定间隔重连
func (c *KlineCache) run() {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.Dial(c.streamURL(), nil)
		if err != nil {
			log.Printf("❌ K线流连接失败: %v，%s后重试", err, wsReconnectDelay)
			if !c.sleep(wsReconnectDelay) {
				return
			}
			continue
		}
		log.Printf("🔌 K线流已连接（%d 个交易对, %s）", len(c.symbols), c.interval)

		c.readLoop(conn)
		conn.Close()

		if !c.sleep(wsReconnectDelay) {
			return
		}
	}
}

func (c *KlineCache) readLoop(conn *websocket.Conn) {
	done := make(chan struct{})
	go func() {
		select {
		case <-c.stopCh:
			conn.Close() // 让阻塞中的 ReadMessage 返回
		case <-done:
		}
	}()
	defer close(done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.stopCh:
			default:
				log.Printf("⚠️  K线流读取中断: %v", err)
			}
			return
		}

		var envelope klineStreamEnvelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			log.Printf("解析K线流消息失败: %v", err)
			continue
		}
		if envelope.Data.Symbol == "" {
			continue
		}
		c.apply(envelope)
	}
}

// apply 将推送的K线合入缓存：同一开盘时间覆盖，新K线追加并滑窗
func (c *KlineCache) apply(envelope klineStreamEnvelope) {
	k := envelope.Data.Kline
	kline := Kline{
		OpenTime:  k.StartTime,
		CloseTime: k.CloseTime,
		Trades:    k.Trades,
	}
	kline.Open, _ = parseFloat(k.Open)
	kline.High, _ = parseFloat(k.High)
	kline.Low, _ = parseFloat(k.Low)
	kline.Close, _ = parseFloat(k.Close)
	kline.Volume, _ = parseFloat(k.Volume)
	kline.QuoteVolume, _ = parseFloat(k.QuoteVolume)

	symbol := envelope.Data.Symbol

	c.mu.Lock()
	defer c.mu.Unlock()

	klines := c.klines[symbol]
	if n := len(klines); n > 0 && klines[n-1].OpenTime == kline.OpenTime {
		klines[n-1] = kline
	} else {
		klines = append(klines, kline)
		if len(klines) > klineCacheLimit {
			klines = klines[1:]
		}
	}
	c.klines[symbol] = klines
}

func (c *KlineCache) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-c.stopCh:
		return false
	}
}
