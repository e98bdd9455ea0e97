package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsIdleTimeout  = 60 * time.Second
	wsPingEvery    = wsIdleTimeout * 9 / 10 // must stay below wsIdleTimeout
	wsMaxRequest   = 512                    // client requests are tiny JSON objects
	wsSendBuffer   = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(*http.Request) bool {
		return true // read-only progress feed
	},
}

// snapshot is the first message on every connection and the reply to a
// client "snapshot" request.
func (s *Server) snapshot() WSMessage {
	return WSMessage{
		Type: "snapshot",
		Data: map[string]interface{}{
			"progress": s.tracker.Progress(),
			"items":    s.tracker.Items(),
		},
	}
}

// wsSession is one upgraded connection and its hub registration.
type wsSession struct {
	srv    *Server
	conn   *websocket.Conn
	client *WSClient
}

// handleWebSocket upgrades the request, queues the current snapshot and
// then streams every tracker event until either side goes away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	sess := &wsSession{
		srv:    s,
		conn:   conn,
		client: &WSClient{hub: s.wsHub, send: make(chan WSMessage, wsSendBuffer)},
	}
	sess.client.send <- s.snapshot()
	if !s.wsHub.Register(sess.client) {
		conn.Close()
		return
	}

	go sess.writeLoop()
	go sess.readLoop()
}

// readLoop answers "ping" and "snapshot" requests. It owns the read side
// and unregisters the client when the connection fails.
func (ws *wsSession) readLoop() {
	defer func() {
		ws.client.hub.Unregister(ws.client)
		ws.conn.Close()
	}()

	extend := func() { _ = ws.conn.SetReadDeadline(time.Now().Add(wsIdleTimeout)) }
	ws.conn.SetReadLimit(wsMaxRequest)
	extend()
	ws.conn.SetPongHandler(func(string) error { extend(); return nil })

	for {
		_, raw, err := ws.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.srv.logger.Debug().Err(err).Msg("websocket read error")
			}
			return
		}

		var req WSMessage
		if json.Unmarshal(raw, &req) != nil {
			continue
		}
		switch req.Type {
		case "ping":
			ws.client.hub.Direct(ws.client, WSMessage{Type: "pong"})
		case "snapshot":
			ws.client.hub.Direct(ws.client, ws.srv.snapshot())
		}
	}
}

// writeLoop owns the write side: queued messages and keepalive pings.
// The hub closes the send channel when it drops the client.
func (ws *wsSession) writeLoop() {
	keepalive := time.NewTicker(wsPingEvery)
	defer keepalive.Stop()
	defer ws.conn.Close()

	for {
		select {
		case msg, open := <-ws.client.send:
			_ = ws.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if !open {
				_ = ws.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if ws.conn.WriteJSON(msg) != nil {
				return
			}
		case <-keepalive.C:
			_ = ws.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if ws.conn.WriteMessage(websocket.PingMessage, nil) != nil {
				return
			}
		}
	}
}
