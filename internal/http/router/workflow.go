package router

import (
	"github.com/gin-gonic/gin"

	"debugiq.app/backend/internal/http/handler"
)

func WorkflowRouter(rg *gin.RouterGroup, h *handler.WorkflowHandler) {
	rg.POST("/run", h.Run)
	rg.POST("/seed", h.Seed)
}
