package handler

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"superfilm-backend/internal/middleware"
	"superfilm-backend/internal/model"
	"superfilm-backend/internal/service"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	wsReadDeadline = 60 * time.Second
	wsSendBuffer   = 256
)

type WSHandler struct {
	hub      *service.Hub
	presence *service.PresenceTracker
	roles    service.RoleSource
	secret   []byte
}

func NewWSHandler(hub *service.Hub, presence *service.PresenceTracker, roles service.RoleSource, jwtSecret string) *WSHandler {
	return &WSHandler{hub: hub, presence: presence, roles: roles, secret: []byte(jwtSecret)}
}

// Upgrade authenticates the connection and hands it to the session loop.
// GET /ws?token=...
func (h *WSHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	token := c.Query("token")
	if token == "" {
		return c.Status(401).JSON(fiber.Map{"error": "token required"})
	}
	userID, username, err := middleware.ParseToken(token, h.secret)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"error": "invalid token"})
	}

	c.Locals("user_id", userID)
	c.Locals("username", username)
	return websocket.New(h.handleConnection)(c)
}

type wsInbound struct {
	Type string `json:"type"`
	Data struct {
		ChannelID string `json:"channel_id"`
	} `json:"data"`
}

func (h *WSHandler) handleConnection(c *websocket.Conn) {
	userID, _ := c.Locals("user_id").(string)

	sub := service.NewSubscriber(userID, uuid.NewString(), wsSendBuffer)
	h.hub.Register(sub)
	defer func() {
		// Dropping the connection releases every presence session it held.
		for _, channelID := range sub.Channels() {
			h.presence.Leave(channelID, sub.SessionKey)
		}
		h.hub.Unregister(sub)
	}()

	// Writer goroutine drains the hub's send queue into the socket.
	go func() {
		defer c.Close()
		for msg := range sub.Send {
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
		c.WriteMessage(websocket.CloseMessage, []byte{})
	}()

	c.SetReadDeadline(time.Now().Add(wsReadDeadline))
	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			return
		}
		c.SetReadDeadline(time.Now().Add(wsReadDeadline))

		var in wsInbound
		if err := json.Unmarshal(raw, &in); err != nil {
			continue
		}

		switch in.Type {
		case "subscribe":
			h.subscribe(sub, in.Data.ChannelID)

		case "unsubscribe":
			if in.Data.ChannelID != "" {
				h.hub.Unsubscribe(sub, in.Data.ChannelID)
				h.presence.Leave(in.Data.ChannelID, sub.SessionKey)
			}

		case "heartbeat":
			// One heartbeat refreshes every channel this session is in.
			for _, channelID := range sub.Channels() {
				h.presence.Heartbeat(channelID, sub.SessionKey)
			}

		case "ping":
			pong, _ := json.Marshal(model.WSEvent{Type: "pong"})
			select {
			case sub.Send <- pong:
			default:
			}

		default:
			log.Printf("[ws] unknown event type %q from %s", in.Type, userID)
		}
	}
}

func (h *WSHandler) subscribe(sub *service.Subscriber, channelID string) {
	if channelID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	role, err := h.roles.RoleInChannel(ctx, channelID, sub.UserID)
	if err != nil || role == model.RoleNone {
		denied, _ := json.Marshal(model.WSEvent{Type: "error", ChannelID: channelID})
		select {
		case sub.Send <- denied:
		default:
		}
		return
	}

	h.hub.Subscribe(sub, channelID)
	h.presence.Join(channelID, sub.SessionKey)
}
