package router

import (
	"github.com/gin-gonic/gin"

	"debugiq.app/backend/internal/http/handler"
	"debugiq.app/backend/internal/notify"
	"debugiq.app/backend/internal/service"
)

func SetupRoutes(router *gin.Engine, services *service.Services, notifier notify.Notifier) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	issues := services.Issues()

	workflowHandler := handler.NewWorkflowHandler(services.Workflow(), issues)
	WorkflowRouter(router.Group("/workflow"), workflowHandler)

	issueHandler := handler.NewIssueHandler(issues)
	streamHandler := handler.NewStreamHandler(notifier, issues)
	IssueRouter(router.Group("/issues"), issueHandler, streamHandler)
}
