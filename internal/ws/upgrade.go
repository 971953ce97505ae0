package ws

import (
	"context"
	"net/http"
	"time"

	"feeportal/config"
	"feeportal/internal/auth"
	"feeportal/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StatusReader resolves an order reference to its current merged view.
type StatusReader interface {
	GetStatus(ctx context.Context, ref string) (*models.OrderWithStatus, error)
}

// UpgradeTransactionWS streams status updates for /ws/transactions/:id.
// The first frame is the current view; the socket closes after a terminal one.
func UpgradeTransactionWS(cfg *config.JWTConfig, hub *Hub, reader StatusReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token required"})
			return
		}
		claims, err := auth.ParseAccessToken(cfg, token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		view, err := reader.GetStatus(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
			return
		}
		if !claims.CanSeeSchool(view.SchoolID) {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		client := NewClient(view.OrderID, claims.UserID)
		hub.Register(client)
		defer client.Close()
		// re-read so a transition between the first read and Register is not lost
		if latest, err := reader.GetStatus(c.Request.Context(), view.OrderID); err == nil {
			view = latest
		}
		client.trySend(encodeStatus(*view))
		if view.Status.IsTerminal() {
			client.Close()
		}
		go readPump(conn, client)
		writePump(client, conn)
	}
}

// writePump copies messages from client.Send to the connection until Send is closed.
func writePump(c *Client, conn *websocket.Conn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-c.Send:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "final status"))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func readPump(conn *websocket.Conn, c *Client) {
	defer c.Close()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
