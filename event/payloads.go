package event

// Welcome is the server's first frame on a new relay connection.
type Welcome struct {
	SessionID  string `json:"session_id"`
	ServerTime int64  `json:"server_time,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Heartbeat is the server's liveness frame. The relay answers with pong.
type Heartbeat struct {
	ServerTime int64 `json:"server_time,omitempty"`
}

// StatsUpdate summarizes provider fleet health.
type StatsUpdate struct {
	TotalProviders  int     `json:"total_providers"`
	OnlineProviders int     `json:"online_providers"`
	AvgResponseMs   float64 `json:"avg_response_ms"`
	CacheHitRatio   float64 `json:"cache_hit_ratio,omitempty"`
}

// Coin is one market-data row.
type Coin struct {
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name,omitempty"`
	PriceUSD  float64 `json:"price_usd"`
	Change24h float64 `json:"change_24h"`
	MarketCap float64 `json:"market_cap,omitempty"`
	Volume24h float64 `json:"volume_24h,omitempty"`
}

// MarketUpdate carries a full market refresh from a poll cycle.
type MarketUpdate struct {
	Provider       string  `json:"provider"`
	Coins          []Coin  `json:"coins"`
	TotalMarketCap float64 `json:"total_market_cap,omitempty"`
	TotalVolume    float64 `json:"total_volume,omitempty"`
	BTCDominance   float64 `json:"btc_dominance,omitempty"`
	FetchedAt      int64   `json:"fetched_at"`
}

// PriceUpdate carries a single-symbol tick.
type PriceUpdate struct {
	Symbol    string  `json:"symbol"`
	PriceUSD  float64 `json:"price_usd"`
	Change24h float64 `json:"change_24h,omitempty"`
}

// Alert severities.
const (
	AlertInfo     = "info"
	AlertWarning  = "warning"
	AlertCritical = "critical"
)

// Alert flags a provider or pipeline condition worth surfacing.
type Alert struct {
	Level    string `json:"level"`
	Provider string `json:"provider,omitempty"`
	Message  string `json:"message"`
}
