package ws

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"taskflow/common"
)

// TokenValidator checks the token passed in the ?token= query parameter.
type TokenValidator interface {
	ValidateToken(token string) (*common.Claims, error)
}

// HandleWS upgrades authenticated requests and attaches them to the hub.
func HandleWS(hub *Hub, tokens TokenValidator, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, err := tokens.ValidateToken(r.URL.Query().Get("token"))
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := common.NewWSConn(w, r)
		if err != nil {
			log.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := NewClient(claims.UserID, conn)
		if !hub.register(client) {
			_ = conn.CloseNormal()
			return
		}

		go write(client, log)
		go read(hub, client)
	}
}

func read(hub *Hub, c *Client) {
	defer hub.unregister(c)
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			return
		}
	}
}

func write(c *Client, log *zap.Logger) {
	ticker := time.NewTicker(common.WSPingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.Send:
			if !ok {
				_ = c.Conn.CloseNormal()
				return
			}
			if err := c.Conn.WriteMessage(msg); err != nil {
				log.Debug("websocket write failed", zap.Int64("user_id", c.UserID), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.Conn.Ping(); err != nil {
				return
			}
		}
	}
}
