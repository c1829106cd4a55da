package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Remote is a minimal overlay client, used by the CLI to query a running
// instance. It is not safe for concurrent calls.
type Remote struct {
	conn  *websocket.Conn
	hello HelloOK
	next  atomic.Int64
}

// URL returns the overlay WebSocket URL for a locally reachable server.
func URL(host string, port int) string {
	u := url.URL{Scheme: "ws", Host: fmt.Sprintf("%s:%d", host, port), Path: "/ws"}
	return u.String()
}

// Dial connects to an overlay feed and completes the connect handshake.
func Dial(ctx context.Context, wsURL, token string, info ClientInfo) (*Remote, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", wsURL, err)
	}
	r := &Remote{conn: conn}

	if err := r.handshake(ctx, token, info); err != nil {
		conn.Close()
		return nil, err
	}
	return r, nil
}

func (r *Remote) handshake(ctx context.Context, token string, info ClientInfo) error {
	r.deadline(ctx)
	var challenge Frame
	if err := r.conn.ReadJSON(&challenge); err != nil {
		return fmt.Errorf("reading challenge: %w", err)
	}
	if challenge.Type != FrameTypeEvent || challenge.Event != "connect.challenge" {
		return fmt.Errorf("unexpected first frame %s/%s", challenge.Type, challenge.Event)
	}
	return r.Call(ctx, "connect", ConnectParams{Client: info, Auth: &ConnectAuth{Token: token}}, &r.hello)
}

// Hello returns the server's connect response.
func (r *Remote) Hello() HelloOK { return r.hello }

// Call sends a request and decodes the matching response payload into out
// (which may be nil). Events received meanwhile are skipped.
func (r *Remote) Call(ctx context.Context, method string, params, out any) error {
	id := "cli-" + strconv.FormatInt(r.next.Add(1), 10)
	req, err := NewRequest(id, method, params)
	if err != nil {
		return err
	}
	r.deadline(ctx)
	if err := r.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("sending %s: %w", method, err)
	}
	for {
		var f Frame
		if err := r.conn.ReadJSON(&f); err != nil {
			return fmt.Errorf("reading %s response: %w", method, err)
		}
		if f.Type != FrameTypeResponse || f.ID != id {
			continue
		}
		if f.Error != nil {
			return fmt.Errorf("%s: %s: %s", method, f.Error.Code, f.Error.Message)
		}
		if out == nil {
			return nil
		}
		return json.Unmarshal(f.Payload, out)
	}
}

// deadline applies ctx's deadline, or a default, to the socket.
func (r *Remote) deadline(ctx context.Context) {
	d, ok := ctx.Deadline()
	if !ok {
		d = time.Now().Add(10 * time.Second)
	}
	r.conn.SetReadDeadline(d)
	r.conn.SetWriteDeadline(d)
}

// Close closes the connection.
func (r *Remote) Close() error {
	r.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return r.conn.Close()
}
