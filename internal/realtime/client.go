package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/fincoach/backend/internal/auth"
	"github.com/fincoach/backend/internal/models"
	"github.com/fincoach/backend/pkg/response"
)

const (
	pingInterval   = 30 * time.Second
	pongWait       = 60 * time.Second
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSMessage is the websocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client is one websocket subscriber of a meeting.
type Client struct {
	ID        string
	MeetingID uuid.UUID
	// Viewer is the identity key, empty for anonymous subscribers.
	Viewer string
	hub    *Hub
	conn   *websocket.Conn
	send   chan WSMessage
	logger *zap.Logger
}

// MeetingLookup resolves the meeting a subscriber asks for.
type MeetingLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Meeting, error)
}

// ServeWs handles GET /ws?meeting_id=<id>. A token is optional; it may come
// from the auth middleware or, for browsers, the token query parameter.
func ServeWs(hub *Hub, meetings MeetingLookup, jwt *auth.JWTService, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		meetingID, err := uuid.Parse(c.Query("meeting_id"))
		if err != nil {
			response.BadRequest(c, "meeting_id required")
			return
		}
		if _, err := meetings.GetByID(c.Request.Context(), meetingID); err != nil {
			response.Error(c, err)
			return
		}

		ident := auth.IdentityFrom(c)
		if ident == nil && c.Query("token") != "" && jwt != nil {
			claims, err := jwt.Validate(c.Query("token"))
			if err != nil {
				response.Unauthorized(c, "invalid token")
				return
			}
			ident = claims.Identity()
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		client := &Client{
			ID:        uuid.New().String(),
			MeetingID: meetingID,
			Viewer:    ident.Key(),
			hub:       hub,
			conn:      conn,
			send:      make(chan WSMessage, sendBuffer),
			logger:    logger,
		}
		hub.Register(client)
		go client.writePump()
		client.readPump()
	}
}

// readPump keeps the connection alive and answers pings. Subscribers do not
// publish meeting events.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read failed", zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		switch msg.Event {
		case "ping":
			c.hub.sendTo(c, "pong", map[string]int64{"at": time.Now().Unix()})
		case EventAudienceCount:
			c.hub.sendTo(c, EventAudienceCount, map[string]int{"count": c.hub.AudienceCount(c.MeetingID)})
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
