package eastmoney

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/aegis-etf/internal/contracts"
	"github.com/wonny/aegis-etf/internal/data"
	"github.com/wonny/aegis-etf/pkg/config"
	"github.com/wonny/aegis-etf/pkg/httputil"
	"github.com/wonny/aegis-etf/pkg/logger"
)

// Client fetches ETF daily klines from the Eastmoney history API
// ⭐ SSOT: Eastmoney API 호출은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
}

// NewClient creates a new Eastmoney client
func NewClient(httpClient *httputil.Client, baseURL string, log *logger.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     log.Component("eastmoney"),
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// NewFromConfig builds a rate-limited client guarded by a circuit breaker
func NewFromConfig(cfg config.FetcherConfig, log *logger.Logger) *Client {
	hc := httputil.New(log, cfg.Timeout).
		WithRateLimit(cfg.RatePerSecond, cfg.Burst).
		WithBreaker("eastmoney", cfg.BreakerTimeout)
	return NewClient(hc, cfg.BaseURL, log)
}

// klineResponse is the JSON envelope of /api/qt/stock/kline/get
type klineResponse struct {
	RC   int `json:"rc"`
	Data *struct {
		Code   string   `json:"code"`
		Market int      `json:"market"`
		Name   string   `json:"name"`
		Klines []string `json:"klines"`
	} `json:"data"`
}

// FetchDaily fetches forward-adjusted daily bars of an instrument
// ("510300.SH") within [from, to].
func (c *Client) FetchDaily(ctx context.Context, instrument string, from, to time.Time) ([]data.Bar, error) {
	secid, err := SecID(instrument)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("secid", secid)
	params.Set("fields1", "f1,f2,f3,f4,f5,f6")
	params.Set("fields2", "f51,f52,f53,f54,f55,f56,f57")
	params.Set("klt", "101") // 일봉
	params.Set("fqt", "1")   // 전복권
	params.Set("beg", from.Format("20060102"))
	params.Set("end", to.Format("20060102"))
	fullURL := fmt.Sprintf("%s/api/qt/stock/kline/get?%s", c.baseURL, params.Encode())

	var resp klineResponse
	if err := c.httpClient.GetJSON(ctx, fullURL, &resp); err != nil {
		return nil, fmt.Errorf("fetch klines %s: %w", instrument, err)
	}
	if resp.RC != 0 {
		return nil, fmt.Errorf("fetch klines %s: api rc=%d", instrument, resp.RC)
	}
	if resp.Data == nil {
		return nil, nil
	}

	bars := make([]data.Bar, 0, len(resp.Data.Klines))
	for _, line := range resp.Data.Klines {
		bar, err := ParseKline(instrument, line)
		if err != nil {
			c.logger.WithFields(map[string]interface{}{
				"instrument": instrument,
				"line":       line,
				"error":      err.Error(),
			}).Warn("Skipping malformed kline")
			continue
		}
		bars = append(bars, bar)
	}

	c.logger.WithFields(map[string]interface{}{
		"instrument": instrument,
		"count":      len(bars),
	}).Debug("Fetched klines")
	return bars, nil
}

// SecID maps "510300.SH" to "1.510300" and "159915.SZ" to "0.159915"
func SecID(instrument string) (string, error) {
	code, market, ok := strings.Cut(instrument, ".")
	if !ok || code == "" {
		return "", fmt.Errorf("invalid instrument %q: want CODE.SH or CODE.SZ", instrument)
	}
	switch strings.ToUpper(market) {
	case "SH":
		return "1." + code, nil
	case "SZ":
		return "0." + code, nil
	default:
		return "", fmt.Errorf("invalid instrument %q: unknown market %q", instrument, market)
	}
}

// ParseKline parses "date,open,close,high,low,volume[,amount...]"
func ParseKline(instrument, line string) (data.Bar, error) {
	parts := strings.Split(line, ",")
	if len(parts) < 6 {
		return data.Bar{}, fmt.Errorf("expected at least 6 fields, got %d", len(parts))
	}

	date, err := time.Parse(contracts.DateLayout, parts[0])
	if err != nil {
		return data.Bar{}, fmt.Errorf("invalid date: %w", err)
	}

	values := make([]float64, 5)
	for i := range values {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i+1]), 64)
		if err != nil {
			return data.Bar{}, fmt.Errorf("invalid field %d: %w", i+1, err)
		}
		values[i] = v
	}

	return data.Bar{
		Date:       date,
		Instrument: instrument,
		Open:       values[0],
		Close:      values[1],
		High:       values[2],
		Low:        values[3],
		Volume:     values[4],
		Factor:     1,
	}, nil
}
