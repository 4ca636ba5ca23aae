package router

import (
	"github.com/gin-gonic/gin"

	"debugiq.app/backend/internal/http/handler"
)

func IssueRouter(rg *gin.RouterGroup, h *handler.IssueHandler, stream *handler.StreamHandler) {
	rg.GET("", h.List)
	rg.GET("/inbox", h.Inbox)
	rg.GET("/attention-needed", h.AttentionNeeded)
	rg.POST("/ingest", h.Ingest)
	rg.GET("/:id", h.Get)
	rg.GET("/:id/status", h.GetStatus)
	rg.GET("/:id/events", stream.Events)
	rg.GET("/:id/watch", stream.Watch)
}
