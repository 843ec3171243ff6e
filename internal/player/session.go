package player

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"quizdesk/internal/apiclient"
	"quizdesk/internal/quiz"
)

type SessionState int

const (
	StateLoading SessionState = iota
	StateInProgress
	StateSubmitting
	StateCompleted
)

func (s SessionState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateInProgress:
		return "in_progress"
	case StateSubmitting:
		return "submitting"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

var (
	ErrNotInProgress    = errors.New("session is not in progress")
	ErrAlreadyCompleted = errors.New("session already completed")
)

// quizAPI is the slice of the HTTP client a session needs.
type quizAPI interface {
	QuizQuestions(ctx context.Context, quizID int64, randomize bool) (*quiz.QuestionSet, error)
	SubmitAnswers(ctx context.Context, quizID int64, answers []quiz.AnswerInput, startedAt, endedAt string) (*quiz.ScoreSummary, error)
}

// Session drives one quiz attempt: load the question set, collect answers,
// submit once. The timer's expiry callback and a manual submit can race; only
// one submission ever reaches the server.
type Session struct {
	api    quizAPI
	quizID int64

	mu        sync.Mutex
	state     SessionState
	loading   bool // a Load fetch is in flight
	questions []quiz.PlayerQuestion
	answers   map[int64]*int
	order     []int64
	startedAt time.Time
	summary   *quiz.ScoreSummary
}

func NewSession(api quizAPI, quizID int64) *Session {
	return &Session{
		api:     api,
		quizID:  quizID,
		state:   StateLoading,
		answers: make(map[int64]*int),
	}
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Questions() []quiz.PlayerQuestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]quiz.PlayerQuestion, len(s.questions))
	copy(out, s.questions)
	return out
}

func (s *Session) Summary() *quiz.ScoreSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary
}

// Load fetches the question set and moves the session into progress. The
// attempt clock starts here.
func (s *Session) Load(ctx context.Context, randomize bool) (*quiz.QuestionSet, error) {
	s.mu.Lock()
	if s.state != StateLoading || s.loading {
		state := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("load in state %s", state)
	}
	s.loading = true
	s.mu.Unlock()

	set, err := s.api.QuizQuestions(ctx, s.quizID, randomize)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		return nil, err
	}
	s.questions = set.Questions
	s.startedAt = time.Now().UTC()
	s.state = StateInProgress
	return set, nil
}

// RecordAnswer stores the selection for a question, last write wins. A nil
// selection marks the question skipped.
func (s *Session) RecordAnswer(questionID int64, selectedOption *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInProgress {
		return ErrNotInProgress
	}
	if _, seen := s.answers[questionID]; !seen {
		s.order = append(s.order, questionID)
	}
	s.answers[questionID] = selectedOption
	return nil
}

// Submit sends the collected answers. Safe to call concurrently with
// AutoSubmit; the loser observes the winner's outcome.
func (s *Session) Submit(ctx context.Context) (*quiz.ScoreSummary, error) {
	return s.submit(ctx)
}

// AutoSubmit is the timer-expiry path. An empty answer sheet is still
// submitted so the attempt is recorded.
func (s *Session) AutoSubmit(ctx context.Context) (*quiz.ScoreSummary, error) {
	return s.submit(ctx)
}

func (s *Session) submit(ctx context.Context) (*quiz.ScoreSummary, error) {
	s.mu.Lock()
	switch s.state {
	case StateCompleted:
		summary := s.summary
		s.mu.Unlock()
		if summary != nil {
			return summary, nil
		}
		return nil, ErrAlreadyCompleted
	case StateSubmitting, StateLoading:
		s.mu.Unlock()
		return nil, ErrNotInProgress
	}

	answers := make([]quiz.AnswerInput, 0, len(s.order))
	for _, qID := range s.order {
		answers = append(answers, quiz.AnswerInput{QuestionID: qID, SelectedOption: s.answers[qID]})
	}
	startedAt := s.startedAt.Format(time.RFC3339)
	endedAt := time.Now().UTC().Format(time.RFC3339)
	s.state = StateSubmitting
	s.mu.Unlock()

	summary, err := s.api.SubmitAnswers(ctx, s.quizID, answers, startedAt, endedAt)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusForbidden {
			// The server already holds a result for this attempt.
			s.state = StateCompleted
			return nil, ErrAlreadyCompleted
		}
		s.state = StateInProgress
		return nil, err
	}

	s.summary = summary
	s.state = StateCompleted
	return summary, nil
}
