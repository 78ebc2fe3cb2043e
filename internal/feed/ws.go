package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/enriplaso/BackMark/internal/contracts"
	"github.com/enriplaso/BackMark/pkg/config"
	"github.com/enriplaso/BackMark/pkg/logger"
)

const (
	reconnectDelay    = 5 * time.Second
	maxReconnectDelay = 5 * time.Minute

	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second

	tickBuffer = 256
)

// WSFeed streams live trade ticks for one symbol from the Binance
// websocket API. It reconnects with exponential backoff on connection
// loss and satisfies Source, so a paper trading session can run against
// the same engine a backtest does.
type WSFeed struct {
	config *config.Config
	logger *logger.Logger
	symbol string

	conn   *websocket.Conn
	connMu sync.RWMutex

	ticks chan contracts.Tick

	stopCh       chan struct{}
	doneCh       chan struct{}
	stopOnce     sync.Once
	reconnectMu  sync.Mutex
	reconnecting bool
}

// tradeMessage is the Binance trade stream payload.
type tradeMessage struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"`
}

// NewWSFeed creates a live feed for a symbol, e.g. "BTCUSDT".
func NewWSFeed(cfg *config.Config, log *logger.Logger, symbol string) *WSFeed {
	return &WSFeed{
		config: cfg,
		logger: log,
		symbol: symbol,
		ticks:  make(chan contracts.Tick, tickBuffer),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start connects and begins streaming ticks.
func (f *WSFeed) Start(ctx context.Context) error {
	f.logger.WithField("symbol", f.symbol).Info("Starting live feed")

	if err := f.connect(ctx); err != nil {
		return fmt.Errorf("initial connection failed: %w", err)
	}

	go f.readLoop(ctx)
	go f.pingLoop(ctx)

	return nil
}

// Next returns the next live tick. It blocks until a tick arrives, the
// context is cancelled, or the feed is stopped (io.EOF).
func (f *WSFeed) Next(ctx context.Context) (contracts.Tick, error) {
	select {
	case <-ctx.Done():
		return contracts.Tick{}, ctx.Err()
	case tick, ok := <-f.ticks:
		if !ok {
			return contracts.Tick{}, io.EOF
		}
		return tick, nil
	}
}

// Close stops the feed and closes the connection.
func (f *WSFeed) Close() error {
	f.stopOnce.Do(func() {
		close(f.stopCh)

		f.connMu.Lock()
		if f.conn != nil {
			f.conn.Close()
		}
		f.connMu.Unlock()

		<-f.doneCh
	})
	return nil
}

func (f *WSFeed) connect(ctx context.Context) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()

	wsURL := fmt.Sprintf("%s/ws/%s@trade", f.config.Binance.WSBaseURL, strings.ToLower(f.symbol))

	f.logger.WithField("url", wsURL).Debug("Connecting to trade stream")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	f.conn = conn

	f.conn.SetReadDeadline(time.Now().Add(pongWait))
	f.conn.SetPongHandler(func(string) error {
		f.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	f.logger.Info("Connected to trade stream")

	return nil
}

func (f *WSFeed) readLoop(ctx context.Context) {
	defer close(f.doneCh)
	defer close(f.ticks)

	for {
		select {
		case <-ctx.Done():
			return
		case <-f.stopCh:
			return
		default:
		}

		f.connMu.RLock()
		conn := f.conn
		f.connMu.RUnlock()

		if conn == nil {
			time.Sleep(1 * time.Second)
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-f.stopCh:
				return
			default:
			}
			f.logger.WithError(err).Error("Failed to read message")
			f.handleDisconnect(ctx)
			continue
		}

		if err := f.handleMessage(message); err != nil {
			f.logger.WithError(err).Error("Failed to handle message")
		}
	}
}

func (f *WSFeed) handleMessage(message []byte) error {
	var msg tradeMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return fmt.Errorf("unmarshal message: %w", err)
	}

	if msg.EventType != "trade" {
		return nil
	}

	price, err := strconv.ParseFloat(msg.Price, 64)
	if err != nil {
		return fmt.Errorf("invalid price %q", msg.Price)
	}
	quantity, err := strconv.ParseFloat(msg.Quantity, 64)
	if err != nil {
		return fmt.Errorf("invalid quantity %q", msg.Quantity)
	}

	tick := contracts.Tick{
		Time:   time.UnixMilli(msg.TradeTime).UTC(),
		Price:  price,
		Volume: quantity,
	}

	// Drop ticks when the consumer falls behind rather than stalling
	// the read loop.
	select {
	case f.ticks <- tick:
	default:
		f.logger.WithField("symbol", f.symbol).Warn("Tick buffer full, dropping tick")
	}

	return nil
}

func (f *WSFeed) handleDisconnect(ctx context.Context) {
	f.reconnectMu.Lock()
	if f.reconnecting {
		f.reconnectMu.Unlock()
		return
	}
	f.reconnecting = true
	f.reconnectMu.Unlock()

	defer func() {
		f.reconnectMu.Lock()
		f.reconnecting = false
		f.reconnectMu.Unlock()
	}()

	f.logger.Warn("Trade stream disconnected, attempting to reconnect")

	delay := reconnectDelay
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.stopCh:
			return
		case <-time.After(delay):
		}

		if err := f.connect(ctx); err != nil {
			f.logger.WithError(err).WithField("delay", delay).Error("Reconnect failed, retrying")

			delay *= 2
			if delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}
			continue
		}

		f.logger.Info("Reconnected to trade stream")
		return
	}
}

func (f *WSFeed) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-f.stopCh:
			return
		case <-ticker.C:
			f.connMu.RLock()
			conn := f.conn
			f.connMu.RUnlock()

			if conn == nil {
				continue
			}

			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)); err != nil {
				f.logger.WithError(err).Error("Failed to send ping")
			}
		}
	}
}
