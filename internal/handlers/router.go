package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/examind/test-engine/internal/questionbank"
	"github.com/examind/test-engine/internal/session"
	"github.com/examind/test-engine/internal/utils"
)

type HandlerManager struct {
	sessionHandler *SessionHandler
	importHandler  *ImportHandler
}

func NewHandlerManager(manager *session.Manager, importer *questionbank.Importer, validator *utils.Validator, logger utils.Logger) *HandlerManager {
	return &HandlerManager{
		sessionHandler: NewSessionHandler(manager, validator, logger),
		importHandler:  NewImportHandler(importer, logger),
	}
}

// SetupRoutes sets up all API routes.
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.GET("/health", HealthCheck)

	v1 := router.Group("/api/v1")
	{
		tests := v1.Group("/tests/:test_id")
		{
			tests.POST("/session", hm.sessionHandler.OpenSession)
			tests.GET("/session", hm.sessionHandler.GetSession)
			tests.GET("/session/question", hm.sessionHandler.GetCurrentQuestion)
			tests.POST("/session/answer", hm.sessionHandler.SelectOption)
			tests.POST("/session/clear", hm.sessionHandler.ClearResponse)
			tests.POST("/session/mark", hm.sessionHandler.MarkForReview)
			tests.POST("/session/navigate", hm.sessionHandler.Navigate)
			tests.POST("/session/visibility", hm.sessionHandler.ReportVisibilityLoss)
			tests.POST("/session/submit", hm.sessionHandler.SubmitSession)
			tests.GET("/result", hm.sessionHandler.GetResult)
		}

		questions := v1.Group("/questions")
		{
			questions.POST("/import", hm.importHandler.ImportQuestions)
		}
	}
}
