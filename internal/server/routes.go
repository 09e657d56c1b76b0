package server

import (
	"log/slog"
	"net/http"

	"github.com/BioHazard786/huddle/internal/rooms"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Origins are checked by OriginFilter before the upgrade.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// RoomResponse is the body of GET /api/rooms/:roomId and POST /api/rooms.
type RoomResponse struct {
	RoomID  string   `json:"roomId"`
	Members []string `json:"members"`
}

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
	JWTSecret      string
	Logger         *slog.Logger
}

// NewRouter serves the relay's HTTP surface.
func NewRouter(hub *Hub, opts RouterOptions) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery(), OriginFilter(opts.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", JWTAuth(opts.JWTSecret), ServeWs(hub, logger))

	api := router.Group("/api")
	{
		api.POST("/rooms", JWTAuth(opts.JWTSecret), createRoom(hub))
		api.GET("/rooms/:roomId", getRoom(hub))
	}
	return router
}

// ServeWs upgrades the request and attaches the connection to the hub.
func ServeWs(hub *Hub, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("failed to upgrade connection", "error", err)
			return
		}

		client := newClient(hub, conn, c.GetString(userIDKey))
		if !hub.submit(hub.register, client) {
			conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()
	}
}

func getRoom(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID := c.Param("roomId")
		members, err := hub.Members(c.Request.Context(), roomID)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		if len(members) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
			return
		}
		c.JSON(http.StatusOK, RoomResponse{RoomID: roomID, Members: members})
	}
}

// createRoom hands out a memorable room id nobody is using.
func createRoom(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		var lookupErr error
		id := rooms.NewID(func(id string) bool {
			taken, err := hub.Exists(ctx, id)
			if err != nil {
				lookupErr = err
				return false
			}
			return taken
		})
		if lookupErr != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": lookupErr.Error()})
			return
		}
		c.JSON(http.StatusCreated, RoomResponse{RoomID: id, Members: []string{}})
	}
}
