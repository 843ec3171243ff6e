package report

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

const deletedUserLabel = "(deleted user)"

type Service struct {
	db *sql.DB
}

type ResultRow struct {
	ID               int64     `json:"id"`
	UserID           int64     `json:"user_id"`
	UserName         string    `json:"user_name"`
	UserEmail        string    `json:"user_email"`
	QuizID           int64     `json:"quiz_id"`
	QuizTitle        string    `json:"quiz_title"`
	Score            float64   `json:"score"`
	CorrectCount     int       `json:"correct_count"`
	TotalQuestions   int       `json:"total_questions"`
	TimeTakenSeconds int64     `json:"time_taken_seconds"`
	SubmittedAt      time.Time `json:"submitted_at"`
}

func NewService(dbConn *sql.DB) *Service {
	return &Service{db: dbConn}
}

// AllResults lists every submission, newest first. Results survive user or
// quiz deletion via the left joins, so label fallbacks fill the gaps.
func (s *Service) AllResults(ctx context.Context) ([]ResultRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.user_id, u.name, u.email, r.quiz_id, q.title,
			r.score, r.correct_count, r.total_questions, r.time_taken_seconds,
			r.submitted_at
		FROM results r
		LEFT JOIN users u ON u.id = r.user_id
		LEFT JOIN quizzes q ON q.id = r.quiz_id
		ORDER BY r.submitted_at DESC, r.id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	out := make([]ResultRow, 0)
	for rows.Next() {
		var row ResultRow
		var userName, userEmail, quizTitle sql.NullString
		if err := rows.Scan(
			&row.ID, &row.UserID, &userName, &userEmail, &row.QuizID, &quizTitle,
			&row.Score, &row.CorrectCount, &row.TotalQuestions, &row.TimeTakenSeconds,
			&row.SubmittedAt,
		); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		row.UserName = stringOr(userName, deletedUserLabel)
		row.UserEmail = stringOr(userEmail, "")
		row.QuizTitle = stringOr(quizTitle, "(deleted quiz)")
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return out, nil
}

func (s *Service) ExportResultsExcel(ctx context.Context) ([]byte, error) {
	items, err := s.AllResults(ctx)
	if err != nil {
		return nil, err
	}
	return buildResultsWorkbook(items)
}

func buildResultsWorkbook(items []ResultRow) ([]byte, error) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	headers := []string{"user_name", "user_email", "quiz_title", "score", "correct_count", "total_questions", "time_taken_seconds", "submitted_at"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for i, it := range items {
		row := i + 2
		values := []any{
			it.UserName,
			it.UserEmail,
			it.QuizTitle,
			it.Score,
			it.CorrectCount,
			it.TotalQuestions,
			it.TimeTakenSeconds,
			it.SubmittedAt.Format("2006-01-02 15:04:05"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	_ = f.SetColWidth(sheet, "A", "H", 22)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}

func stringOr(v sql.NullString, fallback string) string {
	if v.Valid {
		return v.String
	}
	return fallback
}
