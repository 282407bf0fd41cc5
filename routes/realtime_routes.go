package routes

import (
	"github.com/anjiri1684/tutor_ledger/middleware"
	"github.com/anjiri1684/tutor_ledger/websocket"
	contribws "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

func RealtimeRoutes(app *fiber.App, hub *websocket.Hub, secret string) {
	api := app.Group("/api/v1")

	api.Use("/ws", func(c *fiber.Ctx) error {
		if !contribws.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	})
	api.Get("/ws", middleware.ProtectedWebsocket(secret), middleware.WebsocketIdentity(), contribws.New(hub.Handler()))
}
