package ws

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kollektive-hackathon/coinflip-backend/internal/notify"
	"github.com/kollektive-hackathon/coinflip-backend/internal/pkg/middleware"
	"github.com/kollektive-hackathon/coinflip-backend/internal/pkg/reject"
	"github.com/kollektive-hackathon/coinflip-backend/internal/pkg/ws"
	"github.com/rs/zerolog/log"
)

type wsHandler struct {
	notificationHub *ws.WebSocketNotificationHub
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

func RegisterRoutes(rg *gin.RouterGroup, hub *ws.WebSocketNotificationHub) {
	handler := wsHandler{
		notificationHub: hub,
	}

	routes := rg.Group("/ws")
	routes.GET("/game/:id", middleware.VerifyAuthToken, handler.serveGame)
	routes.GET("/lobby", middleware.VerifyAuthToken, handler.serveLobby)
}

func (wsh *wsHandler) serveGame(c *gin.Context) {
	gameId, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, reject.RequestParamsProblem())
		return
	}
	wsh.serve(c, notify.GameTopic(gameId))
}

func (wsh *wsHandler) serveLobby(c *gin.Context) {
	wsh.serve(c, notify.LobbyTopic)
}

// serve keeps the connection registered until the client goes away. Clients
// only listen, anything they send is discarded.
func (wsh *wsHandler) serve(c *gin.Context, topic string) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	wsh.notificationHub.RegisterListener(topic, conn)
	defer wsh.notificationHub.UnregisterListener(topic, conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			log.Debug().Err(err).Str("topic", topic).Msg("Websocket closed")
			return
		}
	}
}
