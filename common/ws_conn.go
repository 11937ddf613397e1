package common

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	WSPingPeriod = wsPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WSConn struct {
	*websocket.Conn
}

func NewWSConn(w http.ResponseWriter, r *http.Request) (*WSConn, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	return &WSConn{conn}, nil
}

func (ws *WSConn) WriteMessage(data []byte) error {
	_ = ws.Conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return ws.Conn.WriteMessage(websocket.TextMessage, data)
}

func (ws *WSConn) Ping() error {
	_ = ws.Conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return ws.Conn.WriteMessage(websocket.PingMessage, nil)
}

func (ws *WSConn) CloseNormal() error {
	_ = ws.Conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	_ = ws.Conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return ws.Conn.Close()
}
