package binance

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tradecore/internal/logging"
	"tradecore/internal/model"
)

const (
	wsBaseURL        = "wss://fstream.binance.com"
	wsTestnetBaseURL = "wss://stream.binancefuture.com"

	reconnectBaseDelay = 3 * time.Second
	reconnectMaxDelay  = 30 * time.Second
)

// TickerHandler receives live ticker updates from subscribeTicker.
type TickerHandler func(model.Ticker)

// UserEvent is a normalized account/order/position event from the user
// data stream.
type UserEvent struct {
	Type   string // ACCOUNT_UPDATE, ORDER_TRADE_UPDATE
	Symbol string
	Raw    map[string]interface{}
}

// UserEventHandler receives normalized user data stream events.
type UserEventHandler func(UserEvent)

// listenKeyClient is the subset of Client needed to mint and refresh a
// user data stream listen key.
type listenKeyClient interface {
	getListenKey(ctx context.Context) (string, error)
	keepAliveListenKey(ctx context.Context, listenKey string) error
}

// Stream manages the WebSocket feeds backing subscribeTicker and
// subscribeUserEvents, reconnecting with exponential backoff on drop.
type Stream struct {
	baseURL string

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
}

// NewStream constructs a Stream bound to mainnet or testnet.
func NewStream(testnet bool) *Stream {
	baseURL := wsBaseURL
	if testnet {
		baseURL = wsTestnetBaseURL
	}
	return &Stream{baseURL: baseURL, stopCh: make(chan struct{})}
}

// SubscribeTicker opens the 24h mini-ticker stream for symbol and
// invokes handler for each update, reconnecting on drop until ctx is
// cancelled.
func (s *Stream) SubscribeTicker(ctx context.Context, symbol string, handler TickerHandler) {
	stream := strings.ToLower(symbol) + "@miniTicker"
	url := s.baseURL + "/ws/" + stream
	go s.runWithReconnect(ctx, url, func(msg []byte) {
		var raw struct {
			Symbol       string `json:"s"`
			ClosePrice   string `json:"c"`
			QuoteVolume  string `json:"q"`
		}
		if err := json.Unmarshal(msg, &raw); err != nil {
			return
		}
		handler(model.Ticker{
			Symbol:         raw.Symbol,
			Last:           parseFloat(raw.ClosePrice),
			QuoteVolume24h: parseFloat(raw.QuoteVolume),
		})
	})
}

// SubscribeUserEvents opens the authenticated user data stream and
// invokes handler for every account/order update, transparently
// refreshing the listen key and reconnecting on drop.
func (s *Stream) SubscribeUserEvents(ctx context.Context, client listenKeyClient, handler UserEventHandler) error {
	listenKey, err := client.getListenKey(ctx)
	if err != nil {
		return err
	}

	go s.keepAliveLoop(ctx, client, listenKey)

	url := s.baseURL + "/ws/" + listenKey
	go s.runWithReconnect(ctx, url, func(msg []byte) {
		var envelope struct {
			EventType string `json:"e"`
			Symbol    string `json:"s"`
		}
		var data map[string]interface{}
		if err := json.Unmarshal(msg, &data); err != nil {
			return
		}
		if err := json.Unmarshal(msg, &envelope); err != nil {
			return
		}
		handler(UserEvent{Type: envelope.EventType, Symbol: envelope.Symbol, Raw: data})
	})
	return nil
}

func (s *Stream) keepAliveLoop(ctx context.Context, client listenKeyClient, listenKey string) {
	ticker := time.NewTicker(30 * time.Minute)
	defer ticker.Stop()
	log := logging.Component("exchange-stream")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := client.keepAliveListenKey(ctx, listenKey); err != nil {
				log.Warn().Err(err).Msg("listen key keepalive failed")
			}
		}
	}
}

// runWithReconnect dials url and feeds every text message to onMessage,
// reconnecting with exponential backoff until ctx is cancelled.
func (s *Stream) runWithReconnect(ctx context.Context, url string, onMessage func([]byte)) {
	log := logging.Component("exchange-stream")
	attempt := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			delay := backoff(attempt)
			log.Warn().Err(err).Dur("delay", delay).Msg("websocket dial failed, retrying")
			attempt++
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}
		attempt = 0

		readErr := make(chan error, 1)
		go func() {
			for {
				_, msg, err := conn.ReadMessage()
				if err != nil {
					readErr <- err
					return
				}
				onMessage(msg)
			}
		}()

		select {
		case <-ctx.Done():
			conn.Close()
			return
		case err := <-readErr:
			log.Warn().Err(err).Msg("websocket connection lost, reconnecting")
			conn.Close()
			time.Sleep(reconnectBaseDelay)
		}
	}
}

func backoff(attempt int) time.Duration {
	delay := reconnectBaseDelay * time.Duration(1<<uint(attempt))
	if delay > reconnectMaxDelay {
		delay = reconnectMaxDelay
	}
	return delay
}

func (c *FuturesClientImpl) getListenKey(ctx context.Context) (string, error) {
	body, err := c.signedRequest(ctx, "POST", "/fapi/v1/listenKey", map[string]string{})
	if err != nil {
		return "", err
	}
	var raw struct {
		ListenKey string `json:"listenKey"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", err
	}
	return raw.ListenKey, nil
}

func (c *FuturesClientImpl) keepAliveListenKey(ctx context.Context, listenKey string) error {
	_, err := c.signedRequest(ctx, "PUT", "/fapi/v1/listenKey", map[string]string{"listenKey": listenKey})
	return err
}
