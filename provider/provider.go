// Package provider holds the registry of upstream data sources the agent
// polls: market-data APIs, chain explorers, and sentiment feeds. A built-in
// default set covers the public no-key providers; config overlays adjust or
// extend it per deployment.
package provider

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/nimazasinich/crypto-dt-source-sub009/errors"
)

// Provider categories.
const (
	CategoryMarket    = "market"
	CategoryExplorer  = "explorer"
	CategorySentiment = "sentiment"
)

// Endpoints are the provider's probe targets, as paths (optionally with a
// query string) relative to the base URL. Health is required; Market is
// empty for providers that serve no market data.
type Endpoints struct {
	Health string `json:"health"`
	Market string `json:"market,omitempty"`
}

// Provider is one upstream data source.
type Provider struct {
	Name        string    `json:"name"`
	BaseURL     string    `json:"base_url"`
	Category    string    `json:"category"`
	Endpoints   Endpoints `json:"endpoints"`
	RequiresKey bool      `json:"requires_key,omitempty"`
	Enabled     bool      `json:"enabled"`

	// KeyParam is the query parameter carrying the API key, "apikey"
	// when empty. Never serialized; neither is the key itself.
	KeyParam string `json:"-"`
	APIKey   string `json:"-"`
}

// Validate checks the provider is well formed enough to register.
func (p Provider) Validate() error {
	if p.Name == "" || strings.ContainsAny(p.Name, " \t\n") {
		return errors.WrapInvalid(
			fmt.Errorf("provider name %q must be non-empty without whitespace", p.Name),
			"provider", "Validate", "check name")
	}

	u, err := url.Parse(p.BaseURL)
	if err != nil {
		return errors.WrapInvalid(err, "provider", "Validate", "parse base url")
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.WrapInvalid(
			fmt.Errorf("provider %q base url %q must be absolute http(s)", p.Name, p.BaseURL),
			"provider", "Validate", "check base url")
	}

	if p.Endpoints.Health == "" {
		return errors.WrapInvalid(
			fmt.Errorf("provider %q has no health endpoint", p.Name),
			"provider", "Validate", "check endpoints")
	}
	for _, ep := range []string{p.Endpoints.Health, p.Endpoints.Market} {
		if ep == "" {
			continue
		}
		if _, err := url.Parse(ep); err != nil {
			return errors.WrapInvalid(err, "provider", "Validate", "parse endpoint")
		}
	}

	switch p.Category {
	case CategoryMarket, CategoryExplorer, CategorySentiment:
	default:
		return errors.WrapInvalid(
			fmt.Errorf("provider %q has unknown category %q", p.Name, p.Category),
			"provider", "Validate", "check category")
	}

	return nil
}

// HealthURL returns the absolute health-probe URL, with the API key
// attached for key-gated providers.
func (p Provider) HealthURL() string {
	return p.buildURL(p.Endpoints.Health)
}

// MarketURL returns the absolute market-data URL, empty when the provider
// serves none.
func (p Provider) MarketURL() string {
	if p.Endpoints.Market == "" {
		return ""
	}
	return p.buildURL(p.Endpoints.Market)
}

func (p Provider) buildURL(endpoint string) string {
	base, err := url.Parse(p.BaseURL)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}

	full := base.ResolveReference(ref)

	if p.RequiresKey && p.APIKey != "" {
		param := p.KeyParam
		if param == "" {
			param = "apikey"
		}
		q := full.Query()
		q.Set(param, p.APIKey)
		full.RawQuery = q.Encode()
	}

	return full.String()
}

// Defaults returns the built-in provider set. Key-gated providers ship
// disabled; a config overlay supplies the key and flips them on.
func Defaults() []Provider {
	return []Provider{
		{
			Name:     "coingecko",
			BaseURL:  "https://api.coingecko.com",
			Category: CategoryMarket,
			Endpoints: Endpoints{
				Health: "/api/v3/ping",
				Market: "/api/v3/coins/markets?vs_currency=usd&order=market_cap_desc&per_page=50&page=1",
			},
			Enabled: true,
		},
		{
			Name:     "coinpaprika",
			BaseURL:  "https://api.coinpaprika.com",
			Category: CategoryMarket,
			Endpoints: Endpoints{
				Health: "/v1/global",
				Market: "/v1/tickers?limit=50",
			},
			Enabled: true,
		},
		{
			Name:     "coincap",
			BaseURL:  "https://api.coincap.io",
			Category: CategoryMarket,
			Endpoints: Endpoints{
				Health: "/v2/assets?limit=1",
				Market: "/v2/assets?limit=50",
			},
			Enabled: true,
		},
		{
			Name:     "binance",
			BaseURL:  "https://api.binance.com",
			Category: CategoryMarket,
			Endpoints: Endpoints{
				Health: "/api/v3/ping",
				Market: "/api/v3/ticker/24hr",
			},
			Enabled: true,
		},
		{
			Name:     "cryptocompare",
			BaseURL:  "https://min-api.cryptocompare.com",
			Category: CategoryMarket,
			Endpoints: Endpoints{
				Health: "/data/price?fsym=BTC&tsyms=USD",
				Market: "/data/top/mktcapfull?limit=50&tsym=USD",
			},
			RequiresKey: true,
			KeyParam:    "api_key",
			Enabled:     false,
		},
		{
			Name:     "etherscan",
			BaseURL:  "https://api.etherscan.io",
			Category: CategoryExplorer,
			Endpoints: Endpoints{
				Health: "/api?module=stats&action=ethprice",
			},
			RequiresKey: true,
			Enabled:     false,
		},
		{
			Name:     "blockchair",
			BaseURL:  "https://api.blockchair.com",
			Category: CategoryExplorer,
			Endpoints: Endpoints{
				Health: "/stats",
			},
			Enabled: true,
		},
		{
			Name:     "alternative.me",
			BaseURL:  "https://api.alternative.me",
			Category: CategorySentiment,
			Endpoints: Endpoints{
				Health: "/fng/?limit=1",
			},
			Enabled: true,
		},
	}
}
