package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/examind/test-engine/internal/questionbank"
	"github.com/examind/test-engine/internal/utils"
)

// ImportHandler accepts question bank spreadsheets.
type ImportHandler struct {
	importer *questionbank.Importer
	logger   utils.Logger
}

func NewImportHandler(importer *questionbank.Importer, logger utils.Logger) *ImportHandler {
	return &ImportHandler{importer: importer, logger: logger}
}

// ImportQuestions ingests an xlsx workbook of question records.
// POST /api/v1/questions/import  (multipart form, field "file")
func (h *ImportHandler) ImportQuestions(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "file is required", Code: "bad_request"})
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "could not read upload", Code: "bad_request"})
		return
	}
	defer f.Close()

	result, err := h.importer.Import(c.Request.Context(), f)
	if err != nil {
		h.logger.LogError(err, "Question import failed", "filename", fileHeader.Filename)
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Message: err.Error(), Code: "import_failed"})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{
		Message: "import finished",
		Data:    result,
	})
}
