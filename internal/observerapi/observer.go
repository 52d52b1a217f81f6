// Package observerapi is the WebSocket progress feed spec.md §6.4
// describes: a client opens one connection per channel (an execution, a
// workflow, or an epic) and receives every internal/eventbus.Event
// published on it, live, for as long as the connection stays open. The
// fan-out and connection bookkeeping live in internal/eventbus's
// WebSocketHub (grounded on the teacher's
// internal/application/observer.WebSocketHub); this package only bridges
// gin's route parameters to the channel name the hub filters on and
// performs the HTTP-to-WebSocket upgrade, grounded on the teacher's
// infrastructure/api/rest websocket handler's use of the same upgrader
// pattern.
package observerapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/flowforge/core/internal/eventbus"
	"github.com/flowforge/core/internal/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin checking belongs to whatever reverse proxy terminates TLS in
	// front of this service; the core itself has no session/identity model
	// to validate against (identity/SSO is out of scope).
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server upgrades HTTP requests to WebSocket connections handed off to an
// eventbus.WebSocketHub.
type Server struct {
	hub *eventbus.WebSocketHub
	log *logger.Logger
}

// New builds an observerapi Server serving connections through hub. hub
// must already be subscribed to the Bus publishing the events this
// service cares about.
func New(hub *eventbus.WebSocketHub, log *logger.Logger) *Server {
	return &Server{hub: hub, log: log}
}

// Register mounts the WebSocket routes onto engine.
func (s *Server) Register(engine *gin.Engine) {
	engine.GET("/api/v1/observe/execution/:execution_id", s.serveChannel(func(c *gin.Context) string {
		return eventbus.ExecutionChannel(c.Param("execution_id"))
	}))
	engine.GET("/api/v1/observe/workflow/:slug", s.serveChannel(func(c *gin.Context) string {
		return eventbus.WorkflowChannel(c.Param("slug"))
	}))
	engine.GET("/api/v1/observe/epic/:epic_id", s.serveChannel(func(c *gin.Context) string {
		return eventbus.EpicChannel(c.Param("epic_id"))
	}))
}

func (s *Server) serveChannel(channelOf func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		channel := channelOf(c)
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			s.log.ErrorContext(c.Request.Context(), "observerapi: websocket upgrade failed", "error", err)
			return
		}
		s.hub.Serve(conn, channel)
	}
}
