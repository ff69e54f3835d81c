package poller

import (
	"strconv"
	"strings"

	"github.com/nimazasinich/crypto-dt-source-sub009/event"
)

// Snapshot is the latest market fetch for one provider, served by the ops
// API and refreshed by the market loop.
type Snapshot struct {
	Provider  string       `json:"provider"`
	Coins     []event.Coin `json:"coins"`
	FetchedAt int64        `json:"fetched_at"`
	Source    string       `json:"source,omitempty"`
	Warning   string       `json:"warning,omitempty"`
}

const maxCoinsPerSnapshot = 100

// normalizeCoins flattens a provider market payload into coin rows. Market
// APIs disagree on everything: the row list may be the payload itself or
// sit under a wrapper key, prices arrive as numbers or strings, and the
// 24h change hides under a different name per provider. Rows without a
// symbol and a positive price are dropped.
func normalizeCoins(data any) []event.Coin {
	rows := rowsOf(data)
	if len(rows) == 0 {
		return nil
	}

	coins := make([]event.Coin, 0, min(len(rows), maxCoinsPerSnapshot))
	for _, raw := range rows {
		row, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		coin, ok := coinFromRow(row)
		if !ok {
			continue
		}
		coins = append(coins, coin)
		if len(coins) == maxCoinsPerSnapshot {
			break
		}
	}
	return coins
}

// rowsOf finds the coin row list: a bare array, or an array under one of
// the wrapper keys the known providers use.
func rowsOf(data any) []any {
	switch v := data.(type) {
	case []any:
		return v
	case map[string]any:
		for _, key := range []string{"data", "Data", "coins", "tickers", "result"} {
			if rows, ok := v[key].([]any); ok {
				return rows
			}
		}
	}
	return nil
}

// coinFromRow extracts one coin. Nested quote objects (coinpaprika's
// quotes.USD, cryptocompare's RAW.USD) are consulted before the row itself.
func coinFromRow(row map[string]any) (event.Coin, bool) {
	sources := make([]map[string]any, 0, 3)
	if usd := nestedMap(row, "quotes", "USD"); usd != nil {
		sources = append(sources, usd)
	}
	if usd := nestedMap(row, "RAW", "USD"); usd != nil {
		sources = append(sources, usd)
	}
	sources = append(sources, row)

	symbol := firstString(sources, "symbol", "Symbol")
	if symbol == "" {
		if info := nestedMap(row, "CoinInfo"); info != nil {
			symbol = firstString([]map[string]any{info}, "Name")
		}
	}
	if symbol == "" {
		return event.Coin{}, false
	}

	price, ok := firstFloat(sources,
		"price", "PRICE", "current_price", "priceUsd", "price_usd", "lastPrice")
	if !ok || price <= 0 {
		return event.Coin{}, false
	}

	coin := event.Coin{
		Symbol:   strings.ToUpper(symbol),
		PriceUSD: price,
	}

	coin.Name = firstString(sources, "name")
	if coin.Name == "" {
		if info := nestedMap(row, "CoinInfo"); info != nil {
			coin.Name = firstString([]map[string]any{info}, "FullName")
		}
	}

	if change, ok := firstFloat(sources,
		"percent_change_24h", "CHANGEPCT24HOUR", "price_change_percentage_24h",
		"changePercent24Hr", "priceChangePercent", "change_24h"); ok {
		coin.Change24h = change
	}
	if mcap, ok := firstFloat(sources,
		"market_cap", "MKTCAP", "marketCapUsd", "market_cap_usd"); ok {
		coin.MarketCap = mcap
	}
	if vol, ok := firstFloat(sources,
		"volume_24h", "TOTALVOLUME24H", "total_volume", "volumeUsd24Hr", "quoteVolume"); ok {
		coin.Volume24h = vol
	}

	return coin, true
}

func nestedMap(row map[string]any, keys ...string) map[string]any {
	current := row
	for _, key := range keys {
		next, ok := current[key].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return current
}

func firstString(sources []map[string]any, keys ...string) string {
	for _, key := range keys {
		for _, src := range sources {
			if s, ok := src[key].(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func firstFloat(sources []map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		for _, src := range sources {
			v, present := src[key]
			if !present {
				continue
			}
			if f, ok := asFloat(v); ok {
				return f, true
			}
		}
	}
	return 0, false
}

// asFloat coerces the numeric formats providers actually send: JSON
// numbers and numbers-as-strings.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
