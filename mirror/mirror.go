// Package mirror maintains the static host-mirror table used by the fetch
// client's fallback tier. When every retry against an upstream host fails,
// the client asks the table to rewrite the request URL against each known
// mirror, in listed order.
//
// A rewrite replaces the host (and optionally the scheme), preserves the
// path and query, and remaps path prefixes where mirrors version their
// APIs differently, e.g. api.coingecko.com/api/v3/ping becomes
// api.coinpaprika.com/v1/ping.
package mirror

import (
	"net"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/nimazasinich/crypto-dt-source-sub009/errors"
)

// Mirror describes one fallback host for an upstream API.
type Mirror struct {
	// Host replaces the upstream host, including any port.
	Host string `yaml:"host" json:"host"`

	// Scheme optionally overrides the request scheme. Empty keeps the
	// original.
	Scheme string `yaml:"scheme,omitempty" json:"scheme,omitempty"`

	// PathPrefixes remaps leading path segments, e.g. "/api/v3" -> "/v1".
	// The longest matching prefix wins. Paths without a match pass
	// through unchanged.
	PathPrefixes map[string]string `yaml:"path_prefixes,omitempty" json:"path_prefixes,omitempty"`
}

// Table maps upstream hosts to their ordered mirrors. Hosts are matched
// by hostname only, so api.example.com:8443 and api.example.com share
// mirrors. All methods are safe for concurrent use.
type Table struct {
	mu      sync.RWMutex
	entries map[string][]Mirror
}

// New returns an empty mirror table.
func New() *Table {
	return &Table{entries: make(map[string][]Mirror)}
}

// Default returns the built-in table for well-known crypto APIs. It is
// used when no mirrors file is configured.
func Default() *Table {
	t := New()
	t.Add("api.coingecko.com",
		Mirror{Host: "api.coinpaprika.com", PathPrefixes: map[string]string{"/api/v3": "/v1"}},
		Mirror{Host: "api.coincap.io", PathPrefixes: map[string]string{"/api/v3": "/v2"}},
	)
	t.Add("api.binance.com",
		Mirror{Host: "api1.binance.com"},
		Mirror{Host: "api2.binance.com"},
		Mirror{Host: "api3.binance.com"},
	)
	return t
}

// tableFile is the on-disk YAML shape.
type tableFile struct {
	Mirrors map[string][]Mirror `yaml:"mirrors"`
}

// Load reads a mirror table from a YAML file:
//
//	mirrors:
//	  api.coingecko.com:
//	    - host: api.coinpaprika.com
//	      path_prefixes:
//	        /api/v3: /v1
//	    - host: api.coincap.io
func Load(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "mirror", "Load", "read mirror table")
	}

	var f tableFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, errors.WrapInvalid(err, "mirror", "Load", "parse mirror table")
	}

	t := New()
	for host, mirrors := range f.Mirrors {
		t.Add(host, mirrors...)
	}
	return t, nil
}

// Add registers mirrors for an upstream host, appending to any already
// present. Mirrors without a host are skipped.
func (t *Table) Add(host string, mirrors ...Mirror) {
	host = normalizeHost(host)
	if host == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range mirrors {
		if m.Host == "" {
			continue
		}
		t.entries[host] = append(t.entries[host], m)
	}
}

// Mirrors returns a copy of the mirrors registered for a host, in order.
func (t *Table) Mirrors(host string) []Mirror {
	t.mu.RLock()
	defer t.mu.RUnlock()

	mirrors := t.entries[normalizeHost(host)]
	if len(mirrors) == 0 {
		return nil
	}
	out := make([]Mirror, len(mirrors))
	copy(out, mirrors)
	return out
}

// Rewrite produces the ordered fallback URLs for a request URL. The
// original URL is not included. Returns nil when the URL does not parse
// or its host has no mirrors.
func (t *Table) Rewrite(rawURL string) []string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil
	}

	t.mu.RLock()
	mirrors := t.entries[strings.ToLower(u.Hostname())]
	t.mu.RUnlock()
	if len(mirrors) == 0 {
		return nil
	}

	out := make([]string, 0, len(mirrors))
	for _, m := range mirrors {
		ru := *u
		ru.Host = m.Host
		if m.Scheme != "" {
			ru.Scheme = m.Scheme
		}
		ru.Path = remapPath(u.Path, m.PathPrefixes)
		ru.RawPath = ""
		out = append(out, ru.String())
	}
	return out
}

// Hosts returns the upstream hosts with registered mirrors, sorted.
func (t *Table) Hosts() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	hosts := make([]string, 0, len(t.entries))
	for h := range t.entries {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}

// Len returns the number of upstream hosts with mirrors.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// remapPath applies the longest matching prefix rewrite to a path.
func remapPath(path string, prefixes map[string]string) string {
	best := ""
	for from := range prefixes {
		if strings.HasPrefix(path, from) && len(from) > len(best) {
			best = from
		}
	}
	if best == "" {
		return path
	}
	return prefixes[best] + strings.TrimPrefix(path, best)
}

// normalizeHost lowercases and strips any port so lookups match by
// hostname alone.
func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}
