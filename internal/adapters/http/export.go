package httpadapter

import (
	"fmt"
	"net/http"

	"github.com/xuri/excelize/v2"

	"github.com/yuskondo/docquiz/internal/core/domain"
)

const exportSheet = "問題"

func (rt *Router) exportQuizSet(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	set, err := rt.quiz.GetSet(r.Context(), id)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	file, err := quizSetWorkbook(set)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "quiz_"+set.ID+".xlsx"))
	if err := file.Write(w); err != nil {
		rt.logger.Error("write xlsx export", "quiz_set_id", set.ID, "error", err)
	}
}

func quizSetWorkbook(set *domain.QuizSet) (*excelize.File, error) {
	file := excelize.NewFile()
	if err := file.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, fmt.Errorf("rename export sheet: %w", err)
	}

	headers := []string{"番号", "問題文", "答え", "解説", "出典"}
	for i, header := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, fmt.Errorf("header cell: %w", err)
		}
		if err := file.SetCellValue(exportSheet, cell, header); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
	}

	for i, item := range set.Items {
		row := i + 2
		answer := "×"
		if item.AnswerBool {
			answer = "○"
		}
		values := []any{i + 1, item.Statement, answer, item.Explanation, citationSummary(item.Citations)}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return nil, fmt.Errorf("row cell: %w", err)
			}
			if err := file.SetCellValue(exportSheet, cell, value); err != nil {
				return nil, fmt.Errorf("write row %d: %w", row, err)
			}
		}
	}

	_ = file.SetColWidth(exportSheet, "B", "B", 60)
	_ = file.SetColWidth(exportSheet, "D", "E", 40)
	return file, nil
}

func citationSummary(citations []domain.Citation) string {
	out := ""
	for i, c := range citations {
		if i > 0 {
			out += " / "
		}
		out += c.Source
		if c.Page != nil {
			out += fmt.Sprintf(" p.%d", *c.Page)
		}
	}
	return out
}
