package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"quizdesk/internal/app/apiresp"
	"quizdesk/internal/auth"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc quizService
}

type quizService interface {
	ListPublished(ctx context.Context) ([]QuizSummary, error)
	Instructions(ctx context.Context, quizID int64) (*QuizInstructions, error)
	PlayerQuestions(ctx context.Context, quizID int64, randomize bool) (*QuestionSet, error)
	Submit(ctx context.Context, in SubmitInput) (*ScoreSummary, error)

	CreateQuiz(ctx context.Context, in CreateQuizInput) (*Quiz, error)
	ListQuizzes(ctx context.Context) ([]QuizSummary, error)
	TogglePublish(ctx context.Context, quizID int64) (*Quiz, error)
	DeleteQuiz(ctx context.Context, quizID int64) error
	AddQuestion(ctx context.Context, quizID int64, in QuestionInput) (*Question, error)
	AdminQuestions(ctx context.Context, quizID int64) ([]Question, error)
	GetQuestion(ctx context.Context, questionID int64) (*Question, error)
	UpdateQuestion(ctx context.Context, questionID int64, in QuestionInput) (*Question, error)
	DeleteQuestion(ctx context.Context, questionID int64) error
}

type apiResponse struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type createQuizRequest struct {
	Title           string  `json:"title"`
	TotalMarks      float64 `json:"total_marks"`
	DurationMinutes int     `json:"duration_minutes"`
	TotalQuestions  int     `json:"total_questions"`
}

type questionRequest struct {
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correct_option"`
	Marks         float64  `json:"marks"`
}

type submitRequest struct {
	Answers   []AnswerInput `json:"answers"`
	StartedAt string        `json:"started_at"`
	EndedAt   string        `json:"ended_at"`
}

func NewHandler(svc quizService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) ListPublished(w http.ResponseWriter, r *http.Request) {
	quizzes, err := h.svc.ListPublished(r.Context())
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: quizzes})
}

func (h *Handler) Instructions(w http.ResponseWriter, r *http.Request) {
	quizID, ok := pathID(w, r, "quizID")
	if !ok {
		return
	}

	ins, err := h.svc.Instructions(r.Context(), quizID)
	if err != nil {
		h.writeQuizError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: ins})
}

func (h *Handler) Questions(w http.ResponseWriter, r *http.Request) {
	quizID, ok := pathID(w, r, "quizID")
	if !ok {
		return
	}
	randomize := r.URL.Query().Get("random") == "true"

	set, err := h.svc.PlayerQuestions(r.Context(), quizID, randomize)
	if err != nil {
		h.writeQuizError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: set})
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.CurrentClaims(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return
	}
	quizID, ok := pathID(w, r, "quizID")
	if !ok {
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}

	summary, err := h.svc.Submit(r.Context(), SubmitInput{
		QuizID:    quizID,
		UserID:    claims.UserID,
		Answers:   req.Answers,
		StartedAt: req.StartedAt,
		EndedAt:   req.EndedAt,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrQuizNotFound):
			writeJSON(w, r, http.StatusNotFound, apiResponse{OK: false, Error: "quiz not found"})
		case errors.Is(err, ErrAlreadySubmitted):
			writeJSON(w, r, http.StatusForbidden, apiResponse{OK: false, Error: "you have already submitted this quiz"})
		case errors.Is(err, ErrInvalidTimeRange):
			writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid started_at/ended_at"})
		default:
			writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		}
		return
	}

	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: summary})
}

func (h *Handler) CreateQuiz(w http.ResponseWriter, r *http.Request) {
	var req createQuizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}

	quiz, err := h.svc.CreateQuiz(r.Context(), CreateQuizInput{
		Title:           req.Title,
		TotalMarks:      req.TotalMarks,
		DurationMinutes: req.DurationMinutes,
		TotalQuestions:  req.TotalQuestions,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "title, total_marks, duration_minutes and total_questions are required"})
			return
		}
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusCreated, apiResponse{OK: true, Data: quiz})
}

func (h *Handler) ListQuizzes(w http.ResponseWriter, r *http.Request) {
	quizzes, err := h.svc.ListQuizzes(r.Context())
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: quizzes})
}

func (h *Handler) TogglePublish(w http.ResponseWriter, r *http.Request) {
	quizID, ok := pathID(w, r, "quizID")
	if !ok {
		return
	}

	quiz, err := h.svc.TogglePublish(r.Context(), quizID)
	if err != nil {
		h.writeQuizError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: quiz})
}

func (h *Handler) DeleteQuiz(w http.ResponseWriter, r *http.Request) {
	quizID, ok := pathID(w, r, "quizID")
	if !ok {
		return
	}

	if err := h.svc.DeleteQuiz(r.Context(), quizID); err != nil {
		h.writeQuizError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: map[string]string{"status": "deleted"}})
}

func (h *Handler) AddQuestion(w http.ResponseWriter, r *http.Request) {
	quizID, ok := pathID(w, r, "quizID")
	if !ok {
		return
	}

	var req questionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}

	question, err := h.svc.AddQuestion(r.Context(), quizID, QuestionInput{
		Text:          req.Text,
		Options:       req.Options,
		CorrectOption: req.CorrectOption,
		Marks:         req.Marks,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "text, at least two options and a valid correct_option are required"})
		case errors.Is(err, ErrQuizNotFound):
			writeJSON(w, r, http.StatusNotFound, apiResponse{OK: false, Error: "quiz not found"})
		default:
			writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, r, http.StatusCreated, apiResponse{OK: true, Data: question})
}

func (h *Handler) AdminQuestions(w http.ResponseWriter, r *http.Request) {
	quizID, ok := pathID(w, r, "quizID")
	if !ok {
		return
	}

	questions, err := h.svc.AdminQuestions(r.Context(), quizID)
	if err != nil {
		h.writeQuizError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: questions})
}

func (h *Handler) GetQuestion(w http.ResponseWriter, r *http.Request) {
	questionID, ok := pathID(w, r, "questionID")
	if !ok {
		return
	}

	question, err := h.svc.GetQuestion(r.Context(), questionID)
	if err != nil {
		h.writeQuestionError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: question})
}

func (h *Handler) UpdateQuestion(w http.ResponseWriter, r *http.Request) {
	questionID, ok := pathID(w, r, "questionID")
	if !ok {
		return
	}

	var req questionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}

	question, err := h.svc.UpdateQuestion(r.Context(), questionID, QuestionInput{
		Text:          req.Text,
		Options:       req.Options,
		CorrectOption: req.CorrectOption,
		Marks:         req.Marks,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "text, at least two options and a valid correct_option are required"})
		case errors.Is(err, ErrQuestionNotFound):
			writeJSON(w, r, http.StatusNotFound, apiResponse{OK: false, Error: "question not found"})
		default:
			writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: question})
}

func (h *Handler) DeleteQuestion(w http.ResponseWriter, r *http.Request) {
	questionID, ok := pathID(w, r, "questionID")
	if !ok {
		return
	}

	if err := h.svc.DeleteQuestion(r.Context(), questionID); err != nil {
		h.writeQuestionError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: map[string]string{"status": "deleted"}})
}

func (h *Handler) writeQuizError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrQuizNotFound):
		writeJSON(w, r, http.StatusNotFound, apiResponse{OK: false, Error: "quiz not found"})
	case errors.Is(err, ErrQuizNotPublished):
		writeJSON(w, r, http.StatusForbidden, apiResponse{OK: false, Error: "quiz is not published"})
	default:
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
	}
}

func (h *Handler) writeQuestionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrQuestionNotFound):
		writeJSON(w, r, http.StatusNotFound, apiResponse{OK: false, Error: "question not found"})
	default:
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
	}
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid id"})
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload apiResponse) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	apiresp.WriteError(w, r, code, payload.Error)
}
