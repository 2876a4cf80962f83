package questionbank

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"gorm.io/datatypes"

	"github.com/examind/test-engine/internal/models"
	"github.com/examind/test-engine/internal/utils"
)

// QuestionWriter is the storage side of an import.
type QuestionWriter interface {
	SaveQuestions(ctx context.Context, questions []*models.QuestionRecord) error
}

// Importer bulk-loads question records from a spreadsheet. Expected columns,
// first row being a header:
//
//	ID | Subject | Text | Option A | Option B | Option C | Option D | Correct | Explanation
//
// Correct is a zero-based index into the options. Rows with fewer than two
// options or an out-of-range correct index are rejected.
type Importer struct {
	writer QuestionWriter
	logger utils.Logger
}

func NewImporter(writer QuestionWriter, logger utils.Logger) *Importer {
	return &Importer{writer: writer, logger: logger}
}

// ImportResult summarizes one import run.
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// Import parses the workbook's first sheet and persists every valid row.
func (i *Importer) Import(ctx context.Context, r io.Reader) (*ImportResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}

	result := &ImportResult{}
	var questions []*models.QuestionRecord
	for idx, row := range rows {
		if idx == 0 {
			continue // header
		}
		q, err := parseQuestionRow(row)
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", idx+1, err))
			i.logger.Warn("Skipping invalid question row", "row", idx+1, "error", err)
			continue
		}
		questions = append(questions, q)
	}

	if err := i.writer.SaveQuestions(ctx, questions); err != nil {
		return nil, fmt.Errorf("failed to persist imported questions: %w", err)
	}
	result.Imported = len(questions)

	i.logger.Info("Question import finished",
		"imported", result.Imported,
		"skipped", result.Skipped)
	return result, nil
}

func parseQuestionRow(row []string) (*models.QuestionRecord, error) {
	if len(row) < 5 {
		return nil, fmt.Errorf("expected at least 5 columns, got %d", len(row))
	}
	id, err := strconv.Atoi(strings.TrimSpace(row[0]))
	if err != nil {
		return nil, fmt.Errorf("invalid question id %q", row[0])
	}
	subject := strings.TrimSpace(row[1])
	text := strings.TrimSpace(row[2])
	if text == "" {
		return nil, fmt.Errorf("empty question text")
	}

	// Option columns run until the correct-answer column; trailing blanks
	// are dropped so three-option questions import cleanly.
	optEnd := len(row) - 1
	if len(row) >= 9 {
		optEnd = 7
	}
	var options []string
	for _, cell := range row[3:optEnd] {
		if v := strings.TrimSpace(cell); v != "" {
			options = append(options, v)
		}
	}
	if len(options) < 2 {
		return nil, fmt.Errorf("need at least 2 options, got %d", len(options))
	}

	correct, err := strconv.Atoi(strings.TrimSpace(row[optEnd]))
	if err != nil {
		return nil, fmt.Errorf("invalid correct answer index %q", row[optEnd])
	}
	if correct < 0 || correct >= len(options) {
		return nil, fmt.Errorf("correct answer index %d out of range [0,%d)", correct, len(options))
	}

	q := &models.QuestionRecord{
		ID:            id,
		Subject:       subject,
		Text:          text,
		Options:       datatypes.NewJSONSlice(options),
		CorrectAnswer: correct,
	}
	if len(row) > 8 {
		if expl := strings.TrimSpace(row[8]); expl != "" {
			q.Explanation = &expl
		}
	}
	return q, nil
}
