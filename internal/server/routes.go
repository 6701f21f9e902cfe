package server

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures and returns a gin engine with all gateway routes.
func SetupRoutes(gw *Gateway) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", gw.HealthHandler)
	r.GET("/ws/draw", gw.WebSocketHandler(gw.draw))
	r.GET("/ws/chat", gw.WebSocketHandler(gw.chat))
	r.GET("/stats", gw.StatsHandler)
	r.GET("/sessions/:channel", gw.SessionsHandler)
	r.GET("/canvases", gw.ListCanvasesHandler)
	r.GET("/canvases/:name", gw.GetCanvasHandler)
	return r
}
