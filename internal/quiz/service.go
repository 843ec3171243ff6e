package quiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"quizdesk/internal/db"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrQuizNotFound     = errors.New("quiz not found")
	ErrQuizNotPublished = errors.New("quiz is not published")
	ErrQuestionNotFound = errors.New("question not found")
	ErrAlreadySubmitted = errors.New("quiz already submitted")
)

const defaultQuestionMarks = 2.5

type Service struct {
	db *sql.DB
}

type Quiz struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	TotalMarks      float64   `json:"total_marks"`
	DurationMinutes int       `json:"duration_minutes"`
	TotalQuestions  int       `json:"total_questions"`
	IsPublished     bool      `json:"is_published"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type QuizSummary struct {
	ID              int64   `json:"id"`
	Title           string  `json:"title"`
	DurationMinutes int     `json:"duration_minutes"`
	TotalMarks      float64 `json:"total_marks"`
	QuestionCount   int     `json:"question_count"`
}

type QuizInstructions struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	TotalMarks      float64   `json:"total_marks"`
	DurationMinutes int       `json:"duration_minutes"`
	TotalQuestions  int       `json:"total_questions"`
	IsPublished     bool      `json:"is_published"`
	NegativeMarking bool      `json:"negative_marking"`
	AttemptsAllowed int       `json:"attempts_allowed"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type QuizMeta struct {
	ID              int64   `json:"id"`
	Title           string  `json:"title"`
	DurationMinutes int     `json:"duration_minutes"`
	TotalMarks      float64 `json:"total_marks"`
}

// PlayerQuestion is the player-facing projection: the correct option is
// stripped before it ever leaves the service.
type PlayerQuestion struct {
	ID      int64    `json:"id"`
	Text    string   `json:"text"`
	Options []string `json:"options"`
	Marks   float64  `json:"marks"`
}

type QuestionSet struct {
	Quiz           QuizMeta         `json:"quiz"`
	TotalQuestions int              `json:"total_questions"`
	Questions      []PlayerQuestion `json:"questions"`
}

type Question struct {
	ID            int64    `json:"id"`
	QuizID        int64    `json:"quiz_id"`
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correct_option"`
	Marks         float64  `json:"marks"`
}

type CreateQuizInput struct {
	Title           string
	TotalMarks      float64
	DurationMinutes int
	TotalQuestions  int
}

type QuestionInput struct {
	Text          string
	Options       []string
	CorrectOption int
	Marks         float64
}

type SubmitInput struct {
	QuizID    int64
	UserID    int64
	Answers   []AnswerInput
	StartedAt string
	EndedAt   string
}

func NewService(dbConn *sql.DB) *Service {
	return &Service{db: dbConn}
}

func (s *Service) ListPublished(ctx context.Context) ([]QuizSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT q.id, q.title, q.duration_minutes, q.total_marks, COUNT(qu.id)
		FROM quizzes q
		LEFT JOIN questions qu ON qu.quiz_id = q.id
		WHERE q.is_published = TRUE
		GROUP BY q.id, q.title, q.duration_minutes, q.total_marks
		ORDER BY q.id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query published quizzes: %w", err)
	}
	defer rows.Close()

	out := make([]QuizSummary, 0)
	for rows.Next() {
		var item QuizSummary
		if err := rows.Scan(&item.ID, &item.Title, &item.DurationMinutes, &item.TotalMarks, &item.QuestionCount); err != nil {
			return nil, fmt.Errorf("scan published quiz: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate published quizzes: %w", err)
	}
	return out, nil
}

func (s *Service) Instructions(ctx context.Context, quizID int64) (*QuizInstructions, error) {
	var ins QuizInstructions
	err := s.db.QueryRowContext(ctx, `
		SELECT q.id, q.title, q.total_marks, q.duration_minutes, q.is_published,
			q.created_at, q.updated_at,
			(SELECT COUNT(*) FROM questions qu WHERE qu.quiz_id = q.id)
		FROM quizzes q
		WHERE q.id = $1
	`, quizID).Scan(
		&ins.ID, &ins.Title, &ins.TotalMarks, &ins.DurationMinutes, &ins.IsPublished,
		&ins.CreatedAt, &ins.UpdatedAt, &ins.TotalQuestions,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("query instructions: %w", err)
	}

	// negative_marking is surfaced for the instructions page but the scoring
	// engine never applies a penalty.
	ins.NegativeMarking = false
	ins.AttemptsAllowed = 1
	return &ins, nil
}

// PlayerQuestions returns the ordered question set without correct options.
// With randomize set, the order is Fisher-Yates shuffled per request.
func (s *Service) PlayerQuestions(ctx context.Context, quizID int64, randomize bool) (*QuestionSet, error) {
	var meta QuizMeta
	var isPublished bool
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, duration_minutes, total_marks, is_published
		FROM quizzes
		WHERE id = $1
	`, quizID).Scan(&meta.ID, &meta.Title, &meta.DurationMinutes, &meta.TotalMarks, &isPublished)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("query quiz: %w", err)
	}
	if !isPublished {
		return nil, ErrQuizNotPublished
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, text, options, marks
		FROM questions
		WHERE quiz_id = $1
		ORDER BY id ASC
	`, quizID)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	questions := make([]PlayerQuestion, 0)
	for rows.Next() {
		var q PlayerQuestion
		var optionsRaw []byte
		if err := rows.Scan(&q.ID, &q.Text, &optionsRaw, &q.Marks); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal(optionsRaw, &q.Options); err != nil {
			return nil, fmt.Errorf("decode question options: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}

	if randomize {
		rand.Shuffle(len(questions), func(i, j int) {
			questions[i], questions[j] = questions[j], questions[i]
		})
	}

	return &QuestionSet{
		Quiz:           meta,
		TotalQuestions: len(questions),
		Questions:      questions,
	}, nil
}

// Submit scores the answers against the server-held key set and persists the
// outcome atomically. Exactly one result per (user, quiz) can ever exist; the
// unique constraint on results is the backstop against concurrent submits.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*ScoreSummary, error) {
	var quizExists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM quizzes WHERE id = $1)
	`, in.QuizID).Scan(&quizExists); err != nil {
		return nil, fmt.Errorf("check quiz: %w", err)
	}
	if !quizExists {
		return nil, ErrQuizNotFound
	}

	var alreadySubmitted bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM results WHERE user_id = $1 AND quiz_id = $2)
	`, in.UserID, in.QuizID).Scan(&alreadySubmitted); err != nil {
		return nil, fmt.Errorf("check existing result: %w", err)
	}
	if alreadySubmitted {
		return nil, ErrAlreadySubmitted
	}

	keys, err := s.loadQuestionKeys(ctx, in.QuizID)
	if err != nil {
		return nil, err
	}

	summary, recorded := ScoreAnswers(keys, in.Answers)

	timeTaken, formatted, err := ComputeTimeTaken(in.StartedAt, in.EndedAt)
	if err != nil {
		return nil, err
	}
	summary.TimeTakenSeconds = timeTaken
	summary.TimeTakenFormatted = formatted

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin submit tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, ans := range recorded {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO user_answers (user_id, question_id, selected_option)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id, question_id) DO NOTHING
		`, in.UserID, ans.QuestionID, ans.SelectedOption); err != nil {
			return nil, fmt.Errorf("insert user answer: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO results (
			user_id, quiz_id, score, correct_count, total_questions,
			time_taken_seconds, submitted_at
		) VALUES ($1, $2, $3, $4, $5, $6, now())
	`, in.UserID, in.QuizID, summary.ObtainedMarks, summary.CorrectCount,
		summary.TotalQuestions, summary.TimeTakenSeconds); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrAlreadySubmitted
		}
		return nil, fmt.Errorf("insert result: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrAlreadySubmitted
		}
		return nil, fmt.Errorf("commit submit: %w", err)
	}

	return &summary, nil
}

func (s *Service) loadQuestionKeys(ctx context.Context, quizID int64) ([]QuestionKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, correct_option, marks
		FROM questions
		WHERE quiz_id = $1
		ORDER BY id ASC
	`, quizID)
	if err != nil {
		return nil, fmt.Errorf("query question keys: %w", err)
	}
	defer rows.Close()

	keys := make([]QuestionKey, 0)
	for rows.Next() {
		var k QuestionKey
		if err := rows.Scan(&k.ID, &k.CorrectOption, &k.Marks); err != nil {
			return nil, fmt.Errorf("scan question key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate question keys: %w", err)
	}
	return keys, nil
}

func (s *Service) CreateQuiz(ctx context.Context, in CreateQuizInput) (*Quiz, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" || in.TotalMarks <= 0 || in.DurationMinutes <= 0 || in.TotalQuestions <= 0 {
		return nil, ErrInvalidInput
	}

	q := &Quiz{
		Title:           in.Title,
		TotalMarks:      in.TotalMarks,
		DurationMinutes: in.DurationMinutes,
		TotalQuestions:  in.TotalQuestions,
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO quizzes (
			title, total_marks, duration_minutes, total_questions,
			is_published, created_at, updated_at
		) VALUES ($1, $2, $3, $4, FALSE, now(), now())
		RETURNING id, is_published, created_at, updated_at
	`, in.Title, in.TotalMarks, in.DurationMinutes, in.TotalQuestions).Scan(
		&q.ID, &q.IsPublished, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert quiz: %w", err)
	}
	return q, nil
}

func (s *Service) ListQuizzes(ctx context.Context) ([]QuizSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT q.id, q.title, q.duration_minutes, q.total_marks, COUNT(qu.id)
		FROM quizzes q
		LEFT JOIN questions qu ON qu.quiz_id = q.id
		GROUP BY q.id, q.title, q.duration_minutes, q.total_marks
		ORDER BY q.id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query quizzes: %w", err)
	}
	defer rows.Close()

	out := make([]QuizSummary, 0)
	for rows.Next() {
		var item QuizSummary
		if err := rows.Scan(&item.ID, &item.Title, &item.DurationMinutes, &item.TotalMarks, &item.QuestionCount); err != nil {
			return nil, fmt.Errorf("scan quiz: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quizzes: %w", err)
	}
	return out, nil
}

func (s *Service) TogglePublish(ctx context.Context, quizID int64) (*Quiz, error) {
	q := &Quiz{ID: quizID}
	err := s.db.QueryRowContext(ctx, `
		UPDATE quizzes
		SET is_published = NOT is_published,
			updated_at = now()
		WHERE id = $1
		RETURNING title, total_marks, duration_minutes, total_questions,
			is_published, created_at, updated_at
	`, quizID).Scan(
		&q.Title, &q.TotalMarks, &q.DurationMinutes, &q.TotalQuestions,
		&q.IsPublished, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("toggle publish: %w", err)
	}
	return q, nil
}

// DeleteQuiz removes the quiz; questions and their answers go with it via
// the cascade constraints.
func (s *Service) DeleteQuiz(ctx context.Context, quizID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM quizzes WHERE id = $1`, quizID)
	if err != nil {
		return fmt.Errorf("delete quiz: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete quiz rows affected: %w", err)
	}
	if affected == 0 {
		return ErrQuizNotFound
	}
	return nil
}

func (s *Service) AddQuestion(ctx context.Context, quizID int64, in QuestionInput) (*Question, error) {
	if err := validateQuestionInput(&in); err != nil {
		return nil, err
	}

	var quizExists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM quizzes WHERE id = $1)
	`, quizID).Scan(&quizExists); err != nil {
		return nil, fmt.Errorf("check quiz: %w", err)
	}
	if !quizExists {
		return nil, ErrQuizNotFound
	}

	optionsJSON, err := json.Marshal(in.Options)
	if err != nil {
		return nil, fmt.Errorf("encode options: %w", err)
	}

	q := &Question{
		QuizID:        quizID,
		Text:          in.Text,
		Options:       in.Options,
		CorrectOption: in.CorrectOption,
		Marks:         in.Marks,
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO questions (quiz_id, text, options, correct_option, marks)
		VALUES ($1, $2, $3::jsonb, $4, $5)
		RETURNING id
	`, quizID, in.Text, optionsJSON, in.CorrectOption, in.Marks).Scan(&q.ID)
	if err != nil {
		return nil, fmt.Errorf("insert question: %w", err)
	}
	return q, nil
}

// AdminQuestions returns the full question set including correct options.
// Admin-only; the player path goes through PlayerQuestions.
func (s *Service) AdminQuestions(ctx context.Context, quizID int64) ([]Question, error) {
	var quizExists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM quizzes WHERE id = $1)
	`, quizID).Scan(&quizExists); err != nil {
		return nil, fmt.Errorf("check quiz: %w", err)
	}
	if !quizExists {
		return nil, ErrQuizNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, quiz_id, text, options, correct_option, marks
		FROM questions
		WHERE quiz_id = $1
		ORDER BY id ASC
	`, quizID)
	if err != nil {
		return nil, fmt.Errorf("query admin questions: %w", err)
	}
	defer rows.Close()

	out := make([]Question, 0)
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate admin questions: %w", err)
	}
	return out, nil
}

func (s *Service) GetQuestion(ctx context.Context, questionID int64) (*Question, error) {
	var q Question
	var optionsRaw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, quiz_id, text, options, correct_option, marks
		FROM questions
		WHERE id = $1
	`, questionID).Scan(&q.ID, &q.QuizID, &q.Text, &optionsRaw, &q.CorrectOption, &q.Marks)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("query question: %w", err)
	}
	if err := json.Unmarshal(optionsRaw, &q.Options); err != nil {
		return nil, fmt.Errorf("decode question options: %w", err)
	}
	return &q, nil
}

func (s *Service) UpdateQuestion(ctx context.Context, questionID int64, in QuestionInput) (*Question, error) {
	if err := validateQuestionInput(&in); err != nil {
		return nil, err
	}

	optionsJSON, err := json.Marshal(in.Options)
	if err != nil {
		return nil, fmt.Errorf("encode options: %w", err)
	}

	q := &Question{
		ID:            questionID,
		Text:          in.Text,
		Options:       in.Options,
		CorrectOption: in.CorrectOption,
		Marks:         in.Marks,
	}
	err = s.db.QueryRowContext(ctx, `
		UPDATE questions
		SET text = $2,
			options = $3::jsonb,
			correct_option = $4,
			marks = $5
		WHERE id = $1
		RETURNING quiz_id
	`, questionID, in.Text, optionsJSON, in.CorrectOption, in.Marks).Scan(&q.QuizID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("update question: %w", err)
	}
	return q, nil
}

func (s *Service) DeleteQuestion(ctx context.Context, questionID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM questions WHERE id = $1`, questionID)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete question rows affected: %w", err)
	}
	if affected == 0 {
		return ErrQuestionNotFound
	}
	return nil
}

// validateQuestionInput enforces the option-index invariant at the boundary:
// 0 <= correct_option < len(options), with at least two options.
func validateQuestionInput(in *QuestionInput) error {
	in.Text = strings.TrimSpace(in.Text)
	if in.Text == "" || len(in.Options) < 2 {
		return ErrInvalidInput
	}
	for i, opt := range in.Options {
		in.Options[i] = strings.TrimSpace(opt)
		if in.Options[i] == "" {
			return ErrInvalidInput
		}
	}
	if in.CorrectOption < 0 || in.CorrectOption >= len(in.Options) {
		return ErrInvalidInput
	}
	if in.Marks <= 0 {
		in.Marks = defaultQuestionMarks
	}
	return nil
}

func scanQuestion(rows *sql.Rows) (*Question, error) {
	var q Question
	var optionsRaw []byte
	if err := rows.Scan(&q.ID, &q.QuizID, &q.Text, &optionsRaw, &q.CorrectOption, &q.Marks); err != nil {
		return nil, fmt.Errorf("scan question: %w", err)
	}
	if err := json.Unmarshal(optionsRaw, &q.Options); err != nil {
		return nil, fmt.Errorf("decode question options: %w", err)
	}
	return &q, nil
}
