// Package fetch downloads historical candles from the Binance public
// API so backtests can run against real market data.
package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/enriplaso/BackMark/internal/contracts"
	"github.com/enriplaso/BackMark/pkg/config"
	"github.com/enriplaso/BackMark/pkg/httputil"
	"github.com/enriplaso/BackMark/pkg/logger"
)

// klinesPageLimit is the maximum rows Binance returns per request.
const klinesPageLimit = 1000

// Client downloads candles from the Binance klines endpoint. Requests
// are paced by a local token bucket on top of the HTTP client's own
// retry handling.
type Client struct {
	http    *httputil.Client
	limiter *rate.Limiter
	baseURL string
	logger  *logger.Logger
}

// NewClient creates a Binance fetch client.
func NewClient(cfg *config.Config, httpClient *httputil.Client, log *logger.Logger) *Client {
	rps := cfg.Binance.RateLimit
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		baseURL: cfg.Binance.BaseURL,
		logger:  log,
	}
}

// Klines fetches one page of candles, at most klinesPageLimit rows.
func (c *Client) Klines(ctx context.Context, symbol, interval string, start, end time.Time) ([]contracts.Candle, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	params.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	params.Set("limit", strconv.Itoa(klinesPageLimit))

	endpoint := fmt.Sprintf("%s/api/v3/klines?%s", c.baseURL, params.Encode())

	// Each kline row is a mixed array: open time, then prices and
	// volume as strings.
	var rows [][]interface{}
	if err := c.http.GetJSON(ctx, endpoint, &rows); err != nil {
		return nil, fmt.Errorf("klines request failed: %w", err)
	}

	candles := make([]contracts.Candle, 0, len(rows))
	for _, row := range rows {
		candle, err := parseKline(row)
		if err != nil {
			return nil, err
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// Range fetches every candle between start and end, paging through the
// API in timestamp order.
func (c *Client) Range(ctx context.Context, symbol, interval string, start, end time.Time) ([]contracts.Candle, error) {
	step, err := intervalDuration(interval)
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(map[string]interface{}{
		"symbol":   symbol,
		"interval": interval,
		"from":     start.Format(time.RFC3339),
		"to":       end.Format(time.RFC3339),
	}).Info("Fetching candles")

	var all []contracts.Candle
	cursor := start

	for cursor.Before(end) {
		page, err := c.Klines(ctx, symbol, interval, cursor, end)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}

		all = append(all, page...)
		cursor = page[len(page)-1].Time.Add(step)

		if len(page) < klinesPageLimit {
			break
		}
	}

	c.logger.WithField("candles", len(all)).Info("Fetch complete")
	return all, nil
}

func parseKline(row []interface{}) (contracts.Candle, error) {
	if len(row) < 6 {
		return contracts.Candle{}, fmt.Errorf("kline row has %d fields, want at least 6", len(row))
	}

	openTime, ok := row[0].(float64)
	if !ok {
		return contracts.Candle{}, fmt.Errorf("invalid kline open time %v", row[0])
	}

	values := make([]float64, 5)
	for i, field := range row[1:6] {
		s, ok := field.(string)
		if !ok {
			return contracts.Candle{}, fmt.Errorf("invalid kline field %v", field)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return contracts.Candle{}, fmt.Errorf("invalid kline value %q", s)
		}
		values[i] = v
	}

	// Binance order is open, high, low, close, volume.
	return contracts.Candle{
		Time:   time.UnixMilli(int64(openTime)).UTC(),
		Open:   values[0],
		High:   values[1],
		Low:    values[2],
		Close:  values[3],
		Volume: values[4],
	}, nil
}

// intervalDuration maps a Binance interval string to its duration.
func intervalDuration(interval string) (time.Duration, error) {
	if interval == "" {
		return 0, fmt.Errorf("interval is empty")
	}

	unit := interval[len(interval)-1]
	n, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid interval %q", interval)
	}

	switch unit {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("invalid interval %q", interval)
	}
}
