package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	apperrors "gold-scalper/internal/errors"
	"gold-scalper/internal/logging"
	"gold-scalper/internal/models"
	"gold-scalper/internal/resilience"
	"gold-scalper/pkg/utils"
)

// MT5Client talks to the HTTP bridge running next to the MetaTrader 5
// terminal. It is both a Market and a Bridge.
type MT5Client struct {
	baseURL        string
	positionSymbol string
	serverSymbol   string
	client         *http.Client
	actionClient   *http.Client
	retry          utils.RetryConfig
	breaker        *resilience.Breaker
	logger         zerolog.Logger
}

// NewMT5Client creates a bridge client.
func NewMT5Client(cfg Config, logger zerolog.Logger) *MT5Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	actionTimeout := cfg.ActionTimeout
	if actionTimeout <= 0 {
		actionTimeout = 5 * time.Second
	}
	serverSymbol := cfg.ServerSymbol
	if serverSymbol == "" {
		serverSymbol = "XAUUSD"
	}
	logger = logging.WithComponent(logger, "mt5")
	return &MT5Client{
		baseURL:        strings.TrimRight(cfg.BridgeURL, "/"),
		positionSymbol: strings.TrimSpace(cfg.PositionSymbol),
		serverSymbol:   serverSymbol,
		client:         &http.Client{Timeout: timeout},
		actionClient:   &http.Client{Timeout: actionTimeout},
		retry:          utils.DefaultRetryConfig().Attempts(cfg.Retry + 1),
		breaker:        resilience.NewBreaker("mt5_bridge", cfg.Breaker, resilience.WithLogger(logger)),
		logger:         logger,
	}
}

func (c *MT5Client) Name() string { return ProviderRemoteMT5 }

type bridgeCandle struct {
	Time       *int64  `json:"time"`
	TS         string  `json:"ts"`
	Open       float64 `json:"open"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Close      float64 `json:"close"`
	TickVolume int64   `json:"tick_volume"`
	Volume     float64 `json:"volume"`
}

// Candles returns the last count bars, oldest first. Older bridges only
// understand tf/n, so a failed request is retried with those names.
func (c *MT5Client) Candles(ctx context.Context, symbol string, tf models.Timeframe, count int) ([]models.Candle, error) {
	primary := url.Values{"symbol": {symbol}, "timeframe": {string(tf)}, "count": {fmt.Sprint(count)}}
	body, err := c.get(ctx, "/candles", primary)
	if err != nil {
		legacy := url.Values{"symbol": {symbol}, "tf": {string(tf)}, "n": {fmt.Sprint(count)}}
		var lerr error
		body, lerr = c.get(ctx, "/candles", legacy)
		if lerr != nil {
			return nil, apperrors.NewDataUnavailableError("mt5", symbol, "candles "+string(tf), err)
		}
	}

	var payload struct {
		Candles []bridgeCandle `json:"candles"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperrors.NewMalformedResponseError("mt5", string(body), err)
	}

	out := make([]models.Candle, 0, len(payload.Candles))
	for _, bc := range payload.Candles {
		ts, ok := bc.timestamp()
		if !ok {
			continue
		}
		vol := bc.TickVolume
		if vol == 0 {
			vol = int64(bc.Volume)
		}
		out = append(out, models.Candle{
			Timestamp: ts, Open: bc.Open, High: bc.High, Low: bc.Low, Close: bc.Close, Volume: vol,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (bc bridgeCandle) timestamp() (time.Time, bool) {
	if bc.Time != nil && *bc.Time > 0 {
		return time.Unix(*bc.Time, 0).UTC(), true
	}
	if bc.TS != "" {
		if t, err := time.Parse(time.RFC3339, bc.TS); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Spread returns the current spread in points.
func (c *MT5Client) Spread(ctx context.Context, symbol string) (float64, error) {
	body, err := c.get(ctx, "/spread", url.Values{"symbol": {symbol}})
	if err != nil {
		return 0, apperrors.NewDataUnavailableError("mt5", symbol, "spread", err)
	}
	var payload struct {
		SpreadPoints *float64 `json:"spread_points"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, apperrors.NewMalformedResponseError("mt5", string(body), err)
	}
	if payload.SpreadPoints == nil {
		return 0, apperrors.NewDataUnavailableError("mt5", symbol, "spread missing", nil)
	}
	return *payload.SpreadPoints, nil
}

type bridgeTick struct {
	Bid *float64 `json:"bid"`
	Ask *float64 `json:"ask"`
	TS  string   `json:"ts"`
}

// Tick returns the last bid/ask.
func (c *MT5Client) Tick(ctx context.Context, symbol string) (models.Tick, error) {
	t, err := c.tick(ctx, symbol)
	if err != nil {
		return models.Tick{}, err
	}
	if t.Bid == nil || t.Ask == nil {
		return models.Tick{}, apperrors.NewDataUnavailableError("mt5", symbol, "tick without bid/ask", nil)
	}
	tick := models.Tick{Symbol: symbol, Bid: *t.Bid, Ask: *t.Ask}
	if ts, err := time.Parse(time.RFC3339, t.TS); err == nil {
		tick.Timestamp = ts.UTC()
	}
	return tick, nil
}

// ServerTime reads the terminal clock from the last tick, or the local
// clock when the bridge does not stamp it.
func (c *MT5Client) ServerTime(ctx context.Context) (time.Time, error) {
	t, err := c.tick(ctx, c.serverSymbol)
	if err != nil {
		return time.Time{}, err
	}
	if ts, err := time.Parse(time.RFC3339, t.TS); err == nil {
		return ts.UTC(), nil
	}
	return time.Now().UTC(), nil
}

func (c *MT5Client) tick(ctx context.Context, symbol string) (bridgeTick, error) {
	body, err := c.get(ctx, "/tick", url.Values{"symbol": {symbol}})
	if err != nil {
		return bridgeTick{}, apperrors.NewDataUnavailableError("mt5", symbol, "tick", err)
	}
	var t bridgeTick
	if err := json.Unmarshal(body, &t); err != nil {
		return bridgeTick{}, apperrors.NewMalformedResponseError("mt5", string(body), err)
	}
	return t, nil
}

// Health checks that the bridge reaches its terminal.
func (c *MT5Client) Health(ctx context.Context) error {
	_, err := c.get(ctx, "/health", nil)
	return err
}

// Circuit reports the bridge breaker.
func (c *MT5Client) Circuit() resilience.Snapshot {
	return c.breaker.Snapshot()
}

type actionResponse struct {
	OK           bool    `json:"ok"`
	Error        string  `json:"error"`
	Retcode      any     `json:"retcode"`
	VolumeClosed float64 `json:"volume_closed"`
}

// ModifyStopToBreakeven moves the stop of the open position.
func (c *MT5Client) ModifyStopToBreakeven(ctx context.Context, symbol string, newStop float64, dir models.Direction) bool {
	sym := c.actionSymbol(symbol)
	_, err := c.post(ctx, "/position/modify-sl", map[string]any{
		"symbol":    sym,
		"new_sl":    newStop,
		"direction": strings.ToUpper(string(dir)),
	}, "modify-sl", sym)
	if err != nil {
		c.logger.Warn().Err(err).Msg("MT5 modify SL failed")
		return false
	}
	c.logger.Info().Str("symbol", sym).Str("direction", string(dir)).Float64("new_sl", newStop).Msg("MT5 stop moved to break-even")
	return true
}

// ClosePartial closes percent of the open position.
func (c *MT5Client) ClosePartial(ctx context.Context, symbol string, dir models.Direction, percent float64) bool {
	sym := c.actionSymbol(symbol)
	resp, err := c.post(ctx, "/position/close-partial", map[string]any{
		"symbol":    sym,
		"direction": strings.ToUpper(string(dir)),
		"percent":   percent,
	}, "close-partial", sym)
	if err != nil {
		c.logger.Warn().Err(err).Msg("MT5 close partial failed")
		return false
	}
	c.logger.Info().Str("symbol", sym).Float64("percent", percent).Float64("volume", resp.VolumeClosed).Msg("MT5 partial close done")
	return true
}

func (c *MT5Client) actionSymbol(symbol string) string {
	if c.positionSymbol != "" {
		return c.positionSymbol
	}
	return symbol
}

// get runs a read through the breaker and the retry policy.
func (c *MT5Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	return resilience.Call(ctx, c.breaker, func(ctx context.Context) ([]byte, error) {
		return utils.RetryWithResult(ctx, c.retry, func() ([]byte, error) {
			return c.doGet(ctx, path, params)
		})
	})
}

func (c *MT5Client) doGet(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		logging.LogAPICall(c.logger, http.MethodGet, path, time.Since(start), err)
		return nil, fmt.Errorf("%w: %w", apperrors.ErrProviderDown, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err == nil && resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("bridge %s: http %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	logging.LogAPICall(c.logger, http.MethodGet, path, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// post sends a position action once. Actions are not retried: a partial
// close that timed out may still have been executed.
func (c *MT5Client) post(ctx context.Context, path string, payload map[string]any, action, symbol string) (actionResponse, error) {
	var out actionResponse
	data, err := json.Marshal(payload)
	if err != nil {
		return out, apperrors.NewBridgeError(action, symbol, "", "encode", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return out, apperrors.NewBridgeError(action, symbol, "", "request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.actionClient.Do(req)
	logging.LogAPICall(c.logger, http.MethodPost, path, time.Since(start), err)
	if err != nil {
		return out, apperrors.NewBridgeError(action, symbol, "", "transport", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(body, &out); err != nil {
			return out, apperrors.NewBridgeError(action, symbol, "", "decode", err)
		}
	}
	if !out.OK {
		msg := out.Error
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		code := ""
		if out.Retcode != nil {
			code = fmt.Sprint(out.Retcode)
		}
		return out, apperrors.NewBridgeError(action, symbol, code, msg, nil)
	}
	return out, nil
}
