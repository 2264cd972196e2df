package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ninalin0217/docsplit/api/handlers"
	"github.com/ninalin0217/docsplit/api/middleware"
)

// SetupRoutes wires the HTTP surface.
func SetupRoutes(r *gin.Engine, h *handlers.Handlers) {
	r.Use(middleware.CORS())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")

	docs := v1.Group("/documents")
	{
		docs.POST("/process", h.Document.ProcessDocument)
		docs.GET("/status/:documentId", h.Document.GetStatus)
		docs.GET("/download/:documentId", h.Document.DownloadMarkdown)
		docs.GET("/manifest/:documentId", h.Document.GetManifest)
		docs.DELETE("/:documentId", h.Document.CancelDocument)
	}
}
