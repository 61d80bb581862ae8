package market

// Kline K线数据
type Kline struct {
	OpenTime    int64   `json:"openTime"`
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Close       float64 `json:"close"`
	Volume      float64 `json:"volume"`
	CloseTime   int64   `json:"closeTime"`
	QuoteVolume float64 `json:"quoteVolume"`
	Trades      int     `json:"trades"`
}

// Binance API 响应结构
type ExchangeInfo struct {
	Symbols []SymbolInfo `json:"symbols"`
}

type SymbolInfo struct {
	Symbol            string `json:"symbol"`
	Status            string `json:"status"`
	BaseAsset         string `json:"baseAsset"`
	QuoteAsset        string `json:"quoteAsset"`
	ContractType      string `json:"contractType"`
	PricePrecision    int    `json:"pricePrecision"`
	QuantityPrecision int    `json:"quantityPrecision"`
}

type KlineResponse []interface{}

type PriceTicker struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// VolumeTrend 短窗口与长窗口对比得出的量能方向
type VolumeTrend string

const (
	VolumeTrendIncreasing VolumeTrend = "INCREASING"
	VolumeTrendDecreasing VolumeTrend = "DECREASING"
	VolumeTrendNeutral    VolumeTrend = "NEUTRAL"
)

// VolumeResult captures the volume classification for the latest bar.
type VolumeResult struct {
	Ratio float64
	Trend VolumeTrend
	Spike bool
}

// BollingerResult captures the Bollinger Band statistics for the latest close.
type BollingerResult struct {
	Upper        float64
	Middle       float64
	Lower        float64
	BandwidthPct float64
	// Position 当前收盘价在 [lower, upper] 中的归一化位置，已夹在 [0,1]。
	Position float64
}
