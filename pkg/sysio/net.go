package sysio

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/kristofer/scriptvm/pkg/values"
)

// NetTransport routes SendMessage/ReceiveMessage traffic to a peer
// engine process over a websocket connection, giving the "networked
// RPC and inter-client messaging" half of the engine's purpose a
// concrete, testable transport. It is optional: a LocalSystem with no
// NetTransport configured loops messages back to its own inbox, which
// is sufficient for single-process testing.
type NetTransport struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	onRecv func(IncomingMessage)
}

// wireMessage is the JSON envelope exchanged over the websocket
// connection. Values cross the wire as their scalar JSON rendering
// (bool/number/string) rather than as engine Values directly, since a
// peer process has its own gcheap arena and cannot share handles;
// list-shaped payloads are rejected at Send with ErrUnencodableValue
// rather than silently dropped.
type wireMessage struct {
	MsgType string      `json:"msg_type"`
	Values  []wireNamed `json:"values"`
	Targets []string    `json:"targets"`
	Sender  string      `json:"sender"`
}

type wireNamed struct {
	Name string      `json:"name"`
	JSON interface{} `json:"json"`
}

// ErrUnencodableValue is returned by Send when asked to transmit a
// value NetTransport cannot render without an arena witness (List,
// Closure, Entity, Image, Audio, Native).
var ErrUnencodableValue = fmt.Errorf("sysio: value kind not encodable without an arena witness")

// DialNetTransport connects to a peer engine's websocket endpoint and
// starts a read loop delivering inbound messages to onRecv.
func DialNetTransport(url string, onRecv func(IncomingMessage)) (*NetTransport, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("sysio: dial %s: %w", url, err)
	}
	t := &NetTransport{conn: conn, onRecv: onRecv}
	go t.readLoop()
	return t, nil
}

// NewNetTransportFromConn wraps an already-upgraded server-side
// connection. The `serve` CLI path does not accept websocket peers, so
// nothing in this repository calls it.
func NewNetTransportFromConn(conn *websocket.Conn, onRecv func(IncomingMessage)) *NetTransport {
	t := &NetTransport{conn: conn, onRecv: onRecv}
	go t.readLoop()
	return t
}

func (t *NetTransport) readLoop() {
	for {
		var wm wireMessage
		if err := t.conn.ReadJSON(&wm); err != nil {
			return
		}
		if t.onRecv == nil {
			continue
		}
		vals := make([]NamedValue, 0, len(wm.Values))
		for _, wn := range wm.Values {
			vals = append(vals, NamedValue{Name: wn.Name, Value: decodeWireValue(wn.JSON)})
		}
		t.onRecv(IncomingMessage{MsgType: wm.MsgType, Values: vals, Sender: wm.Sender})
	}
}

// Send encodes msgType/vals/targets and writes them as one JSON frame.
func (t *NetTransport) Send(msgType string, vals []NamedValue, targets []string) error {
	wm := wireMessage{MsgType: msgType, Targets: targets}
	for _, nv := range vals {
		enc, err := encodeWireValue(nv.Value)
		if err != nil {
			return err
		}
		wm.Values = append(wm.Values, wireNamed{Name: nv.Name, JSON: enc})
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteJSON(wm)
}

// Close shuts down the underlying connection.
func (t *NetTransport) Close() error {
	return t.conn.Close()
}

func encodeWireValue(v values.Value) (interface{}, error) {
	switch v.Kind() {
	case values.KindBool:
		b, _ := v.AsBool()
		return b, nil
	case values.KindNumber:
		n, _ := v.AsNumber()
		return n.Float(), nil
	case values.KindString:
		s, _ := v.AsString()
		return s, nil
	default:
		return nil, ErrUnencodableValue
	}
}

func decodeWireValue(raw interface{}) values.Value {
	switch x := raw.(type) {
	case bool:
		return values.Bool(x)
	case float64:
		return values.Num(values.MustNumber(x))
	case string:
		return values.Str(x)
	case json.Number:
		f, _ := x.Float64()
		return values.Num(values.MustNumber(f))
	default:
		return values.Str("")
	}
}
