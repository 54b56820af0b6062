// Package currency snapshots exchange rates to INR. Rates come from an
// external API and are cached for an hour; when the API is unreachable a
// static fallback table keeps entry creation working with approximate
// figures rather than failing the write.
package currency

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// fallbackRates are the last-resort INR rates, refreshed manually when
// they drift too far.
var fallbackRates = map[string]decimal.Decimal{
	"USD": decimal.RequireFromString("83.50"),
	"EUR": decimal.RequireFromString("90"),
	"GBP": decimal.RequireFromString("105"),
	"AUD": decimal.RequireFromString("55"),
	"CAD": decimal.RequireFromString("62"),
	"INR": decimal.RequireFromString("1"),
}

// RateCache is one snapshot of fetched rates.
type RateCache struct {
	Rates     map[string]decimal.Decimal
	FetchedAt time.Time
}

// IsStale reports whether the snapshot has outlived the TTL.
func (c RateCache) IsStale(now time.Time, ttl time.Duration) bool {
	return c.Rates == nil || now.Sub(c.FetchedAt) > ttl
}

type Config struct {
	APIURL   string
	CacheTTL time.Duration
	Timeout  time.Duration
}

// Converter resolves a currency's rate to INR.
type Converter struct {
	apiURL string
	ttl    time.Duration
	client *http.Client
	logger *slog.Logger

	mu    sync.RWMutex
	cache RateCache
}

func NewConverter(cfg Config, logger *slog.Logger) *Converter {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Converter{
		apiURL: cfg.APIURL,
		ttl:    ttl,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Rate returns the INR rate for a currency: cached value while fresh,
// else a live fetch, else the static fallback. Only an unknown currency
// is an error.
func (c *Converter) Rate(currency string) (decimal.Decimal, error) {
	if currency == "INR" {
		return decimal.NewFromInt(1), nil
	}

	c.mu.RLock()
	cache := c.cache
	c.mu.RUnlock()

	if !cache.IsStale(time.Now(), c.ttl) {
		if rate, ok := cache.Rates[currency]; ok {
			return rate, nil
		}
	}

	if rate, err := c.fetchRate(currency); err == nil {
		c.store(currency, rate)
		return rate, nil
	} else {
		c.logger.Warn("exchange rate fetch failed, using fallback", "currency", currency, "error", err)
	}

	if rate, ok := fallbackRates[currency]; ok {
		return rate, nil
	}
	return decimal.Decimal{}, fmt.Errorf("no exchange rate for currency %s", currency)
}

// Refresh eagerly re-fetches every supported currency. Called by the
// scheduled sweep so interactive requests mostly hit a warm cache.
func (c *Converter) Refresh(currencies []string) {
	fetched := make(map[string]decimal.Decimal, len(currencies))
	for _, currency := range currencies {
		if currency == "INR" {
			fetched[currency] = decimal.NewFromInt(1)
			continue
		}
		rate, err := c.fetchRate(currency)
		if err != nil {
			c.logger.Warn("rate refresh failed", "currency", currency, "error", err)
			continue
		}
		fetched[currency] = rate
	}

	if len(fetched) == 0 {
		return
	}

	c.mu.Lock()
	if c.cache.Rates == nil {
		c.cache.Rates = make(map[string]decimal.Decimal)
	}
	for currency, rate := range fetched {
		c.cache.Rates[currency] = rate
	}
	c.cache.FetchedAt = time.Now()
	c.mu.Unlock()

	c.logger.Info("exchange rates refreshed", "count", len(fetched))
}

type ratesResponse struct {
	Base  string             `json:"base"`
	Rates map[string]float64 `json:"rates"`
}

func (c *Converter) fetchRate(currency string) (decimal.Decimal, error) {
	if c.apiURL == "" {
		return decimal.Decimal{}, fmt.Errorf("no rate API configured")
	}

	resp, err := c.client.Get(fmt.Sprintf("%s/%s", c.apiURL, currency))
	if err != nil {
		return decimal.Decimal{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, fmt.Errorf("rate API returned status %d", resp.StatusCode)
	}

	var body ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Decimal{}, err
	}

	inr, ok := body.Rates["INR"]
	if !ok || inr <= 0 {
		return decimal.Decimal{}, fmt.Errorf("rate API response missing INR rate for %s", currency)
	}
	return decimal.NewFromFloat(inr), nil
}

func (c *Converter) store(currency string, rate decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cache.Rates == nil {
		c.cache.Rates = make(map[string]decimal.Decimal)
	}
	c.cache.Rates[currency] = rate
	c.cache.FetchedAt = time.Now()
}
