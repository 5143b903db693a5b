// Package devhook is a local stand-in for the chat webhook. It echoes the
// user's message back in any of the response shapes real webhooks produce, so
// the client can be exercised against each of them.
package devhook

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/comigor/chatrelay/internal/config"
	"github.com/comigor/chatrelay/internal/logger"
	"github.com/comigor/chatrelay/internal/transport"
)

// Response shapes, selected with ?shape= or the configured default.
const (
	ShapeSegments = "segments" // {"reply": [segment, ...]}
	ShapeLegacy   = "legacy"   // [{"Respuesta": "..."}]
	ShapeNested   = "nested"   // [{"body": {"Respuesta": "..."}}]
	ShapeReply    = "reply"    // {"reply": "..."}
	ShapeText     = "text"     // {"text": "..."}
	ShapeOutput   = "output"   // {"output": "..."}
	ShapeRaw      = "raw"      // text/plain body
	ShapeEmpty    = "empty"    // 204
	ShapeError    = "error"    // 500
)

// Shapes lists every supported shape.
var Shapes = []string{ShapeSegments, ShapeLegacy, ShapeNested, ShapeReply, ShapeText, ShapeOutput, ShapeRaw, ShapeEmpty, ShapeError}

// InfoURL is the link attached to segment replies.
const InfoURL = "https://example.com/ayuda"

// NewRouter returns the gin engine serving POST /webhook.
func NewRouter(cfg config.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(corsConfig(cfg.DevHook.AllowedOrigins)))

	shape := cfg.DevHook.Shape
	if shape == "" {
		shape = ShapeReply
	}
	r.POST("/webhook", Webhook(shape))
	return r
}

// corsConfig allows the given origins, or any origin when the list is empty.
func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{"POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", transport.RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", transport.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		c.AllowOrigins = nil
		c.AllowAllOrigins = true
	}
	return c
}

// Webhook answers a transport.Request in the shape named by the query, or
// defaultShape when there is none.
func Webhook(defaultShape string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req transport.Request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if id := c.GetHeader(transport.RequestIDHeader); id != "" {
			c.Header(transport.RequestIDHeader, id)
		}

		shape := strings.ToLower(c.DefaultQuery("shape", defaultShape))
		text := fmt.Sprintf("Recibido: %s", strings.TrimSpace(req.Message))
		logger.L.Info("devhook request", "shape", shape, "message", req.Message, "history", len(req.History))

		switch shape {
		case ShapeSegments:
			c.JSON(http.StatusOK, gin.H{"reply": []gin.H{
				{"type": "text", "content": text},
				{"type": "link", "url": InfoURL, "text": "Más información"},
			}})
		case ShapeLegacy:
			c.JSON(http.StatusOK, []gin.H{{"Respuesta": text}})
		case ShapeNested:
			c.JSON(http.StatusOK, []gin.H{{"body": gin.H{"Respuesta": text}}})
		case ShapeReply, ShapeText, ShapeOutput:
			c.JSON(http.StatusOK, gin.H{shape: text})
		case ShapeRaw:
			c.String(http.StatusOK, text)
		case ShapeEmpty:
			c.Status(http.StatusNoContent)
		case ShapeError:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "simulated failure"})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown shape", "shapes": Shapes})
		}
	}
}
