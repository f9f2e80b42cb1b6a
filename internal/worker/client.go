package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

type request struct {
	Id     uint64 `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

type response struct {
	Id     uint64          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("worker rpc error %d: %s", e.Code, e.Message)
}

// Client speaks JSON-RPC to one media-engine process over its control socket.
// A single reader goroutine correlates responses to pending calls by id.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[uint64]chan response
	nextId    uint64
	closed    bool

	onExit func(error)
}

// Dial connects to a worker control socket. onExit is invoked exactly once
// when the socket dies; per the failure model a dead worker is unrecoverable.
func Dial(controlURL string, onExit func(error)) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(controlURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial worker control socket: %w", err)
	}

	c := &Client{
		conn:    conn,
		pending: make(map[uint64]chan response),
		onExit:  onExit,
	}
	go c.readLoop()

	return c, nil
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}

		var resp response
		if err := json.Unmarshal(data, &resp); err != nil {
			// Engine notifications without an id are not requests we issued.
			continue
		}

		c.pendingMu.Lock()
		ch, ok := c.pending[resp.Id]
		if ok {
			delete(c.pending, resp.Id)
		}
		c.pendingMu.Unlock()

		if ok {
			ch <- resp
		}
	}
}

func (c *Client) fail(err error) {
	c.pendingMu.Lock()
	if c.closed {
		c.pendingMu.Unlock()
		return
	}
	c.closed = true
	for id, ch := range c.pending {
		delete(c.pending, id)
		close(ch)
	}
	c.pendingMu.Unlock()

	if c.onExit != nil {
		c.onExit(err)
	}
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	c.pendingMu.Lock()
	if c.closed {
		c.pendingMu.Unlock()
		return fmt.Errorf("worker connection closed")
	}
	c.nextId++
	id := c.nextId
	ch := make(chan response, 1)
	c.pending[id] = ch
	c.pendingMu.Unlock()

	c.writeMu.Lock()
	err := c.conn.WriteJSON(request{Id: id, Method: method, Params: params})
	c.writeMu.Unlock()
	if err != nil {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return fmt.Errorf("failed to write %s request: %w", method, err)
	}

	select {
	case <-ctx.Done():
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			return fmt.Errorf("worker connection closed during %s", method)
		}
		if resp.Error != nil {
			return resp.Error
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("failed to unmarshal %s result: %w", method, err)
			}
		}
		return nil
	}
}

func (c *Client) ResourceUsage(ctx context.Context) (ResourceUsage, error) {
	var usage ResourceUsage
	if err := c.call(ctx, "worker.getResourceUsage", nil, &usage); err != nil {
		return ResourceUsage{}, err
	}

	return usage, nil
}

func (c *Client) CreateRouter(ctx context.Context, codecConfig json.RawMessage) (string, error) {
	var result struct {
		RouterId string `json:"router_id"`
	}
	params := map[string]any{"media_codecs": codecConfig}
	if err := c.call(ctx, "worker.createRouter", params, &result); err != nil {
		return "", err
	}

	return result.RouterId, nil
}

func (c *Client) CloseRouter(ctx context.Context, routerId string) error {
	return c.call(ctx, "router.close", map[string]any{"router_id": routerId}, nil)
}

func (c *Client) RouterRtpCapabilities(ctx context.Context, routerId string) (json.RawMessage, error) {
	var result struct {
		RtpCapabilities json.RawMessage `json:"rtp_capabilities"`
	}
	if err := c.call(ctx, "router.getRtpCapabilities", map[string]any{"router_id": routerId}, &result); err != nil {
		return nil, err
	}

	return result.RtpCapabilities, nil
}

func (c *Client) CreateTransport(ctx context.Context, routerId string) (TransportInfo, error) {
	var info TransportInfo
	if err := c.call(ctx, "router.createWebRtcTransport", map[string]any{"router_id": routerId}, &info); err != nil {
		return TransportInfo{}, err
	}

	return info, nil
}

func (c *Client) ConnectTransport(ctx context.Context, transportId string, dtlsParameters json.RawMessage) error {
	params := map[string]any{
		"transport_id":    transportId,
		"dtls_parameters": dtlsParameters,
	}

	return c.call(ctx, "transport.connect", params, nil)
}

func (c *Client) Produce(ctx context.Context, transportId string, kind string, rtpParameters json.RawMessage) (string, error) {
	var result struct {
		ProducerId string `json:"producer_id"`
	}
	params := map[string]any{
		"transport_id":   transportId,
		"kind":           kind,
		"rtp_parameters": rtpParameters,
	}
	if err := c.call(ctx, "transport.produce", params, &result); err != nil {
		return "", err
	}

	return result.ProducerId, nil
}

func (c *Client) CloseProducer(ctx context.Context, producerId string) error {
	return c.call(ctx, "producer.close", map[string]any{"producer_id": producerId}, nil)
}

func (c *Client) Consume(ctx context.Context, transportId string, producerId string, rtpCapabilities json.RawMessage) (ConsumerInfo, error) {
	var info ConsumerInfo
	params := map[string]any{
		"transport_id":     transportId,
		"producer_id":      producerId,
		"rtp_capabilities": rtpCapabilities,
	}
	if err := c.call(ctx, "transport.consume", params, &info); err != nil {
		return ConsumerInfo{}, err
	}

	return info, nil
}
