package player

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"quizdesk/internal/apiclient"
	"quizdesk/internal/quiz"
)

type fakeQuizAPI struct {
	questionsFn func(ctx context.Context, quizID int64, randomize bool) (*quiz.QuestionSet, error)
	submitFn    func(ctx context.Context, quizID int64, answers []quiz.AnswerInput, startedAt, endedAt string) (*quiz.ScoreSummary, error)
}

func (f *fakeQuizAPI) QuizQuestions(ctx context.Context, quizID int64, randomize bool) (*quiz.QuestionSet, error) {
	return f.questionsFn(ctx, quizID, randomize)
}

func (f *fakeQuizAPI) SubmitAnswers(ctx context.Context, quizID int64, answers []quiz.AnswerInput, startedAt, endedAt string) (*quiz.ScoreSummary, error) {
	return f.submitFn(ctx, quizID, answers, startedAt, endedAt)
}

func loadedSession(t *testing.T, api *fakeQuizAPI) *Session {
	t.Helper()
	if api.questionsFn == nil {
		api.questionsFn = func(ctx context.Context, quizID int64, randomize bool) (*quiz.QuestionSet, error) {
			return &quiz.QuestionSet{
				Quiz:           quiz.QuizMeta{ID: quizID, Title: "Go basics"},
				TotalQuestions: 2,
				Questions: []quiz.PlayerQuestion{
					{ID: 1, Text: "q1", Options: []string{"a", "b"}, Marks: 2.5},
					{ID: 2, Text: "q2", Options: []string{"a", "b"}, Marks: 2.5},
				},
			}, nil
		}
	}
	s := NewSession(api, 3)
	if _, err := s.Load(context.Background(), false); err != nil {
		t.Fatalf("load: %v", err)
	}
	return s
}

func intPtr(v int) *int { return &v }

func TestSessionRecordAnswerLastWriteWins(t *testing.T) {
	var gotAnswers []quiz.AnswerInput
	api := &fakeQuizAPI{
		submitFn: func(ctx context.Context, quizID int64, answers []quiz.AnswerInput, startedAt, endedAt string) (*quiz.ScoreSummary, error) {
			gotAnswers = answers
			return &quiz.ScoreSummary{TotalQuestions: 2}, nil
		},
	}
	s := loadedSession(t, api)

	if err := s.RecordAnswer(1, intPtr(0)); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.RecordAnswer(1, intPtr(1)); err != nil {
		t.Fatalf("record overwrite: %v", err)
	}
	if err := s.RecordAnswer(2, nil); err != nil {
		t.Fatalf("record skip: %v", err)
	}

	if _, err := s.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if len(gotAnswers) != 2 {
		t.Fatalf("submitted %d answers, want 2", len(gotAnswers))
	}
	if gotAnswers[0].QuestionID != 1 || gotAnswers[0].SelectedOption == nil || *gotAnswers[0].SelectedOption != 1 {
		t.Fatalf("answer 1 = %+v, want last-written option 1", gotAnswers[0])
	}
	if gotAnswers[1].SelectedOption != nil {
		t.Fatalf("skipped answer carries a selection: %+v", gotAnswers[1])
	}
}

func TestSessionConcurrentLoadFetchesOnce(t *testing.T) {
	var fetches int32
	release := make(chan struct{})
	api := &fakeQuizAPI{
		questionsFn: func(ctx context.Context, quizID int64, randomize bool) (*quiz.QuestionSet, error) {
			atomic.AddInt32(&fetches, 1)
			<-release
			return &quiz.QuestionSet{Quiz: quiz.QuizMeta{ID: quizID}}, nil
		},
	}
	s := NewSession(api, 3)

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := s.Load(context.Background(), false)
			errs <- err
		}()
	}

	// The loser fails while the winner's fetch is still blocked.
	if err := <-errs; err == nil {
		t.Fatal("second concurrent load should fail")
	}
	close(release)
	if err := <-errs; err != nil {
		t.Fatalf("winning load: %v", err)
	}

	if got := atomic.LoadInt32(&fetches); got != 1 {
		t.Fatalf("question set fetched %d times, want 1", got)
	}
	if s.State() != StateInProgress {
		t.Fatalf("state = %s, want in_progress", s.State())
	}
}

func TestSessionRecordAnswerRejectedOutsideProgress(t *testing.T) {
	s := NewSession(&fakeQuizAPI{}, 3)
	if err := s.RecordAnswer(1, intPtr(0)); !errors.Is(err, ErrNotInProgress) {
		t.Fatalf("err = %v, want ErrNotInProgress", err)
	}
}

func TestSessionConcurrentSubmitSingleEffective(t *testing.T) {
	var submits int32
	api := &fakeQuizAPI{
		submitFn: func(ctx context.Context, quizID int64, answers []quiz.AnswerInput, startedAt, endedAt string) (*quiz.ScoreSummary, error) {
			atomic.AddInt32(&submits, 1)
			return &quiz.ScoreSummary{TotalQuestions: 2, ObtainedMarks: 2.5}, nil
		},
	}
	s := loadedSession(t, api)

	const workers = 8
	var wg sync.WaitGroup
	results := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, results[i] = s.Submit(context.Background())
			} else {
				_, results[i] = s.AutoSubmit(context.Background())
			}
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&submits); got != 1 {
		t.Fatalf("server saw %d submissions, want 1", got)
	}
	for i, err := range results {
		if err != nil && !errors.Is(err, ErrNotInProgress) && !errors.Is(err, ErrAlreadyCompleted) {
			t.Fatalf("worker %d unexpected error: %v", i, err)
		}
	}
	if s.State() != StateCompleted {
		t.Fatalf("state = %s, want completed", s.State())
	}
}

func TestSessionAlreadySubmittedOnServerCompletes(t *testing.T) {
	api := &fakeQuizAPI{
		submitFn: func(ctx context.Context, quizID int64, answers []quiz.AnswerInput, startedAt, endedAt string) (*quiz.ScoreSummary, error) {
			return nil, &apiclient.APIError{StatusCode: http.StatusForbidden, Message: "you have already submitted this quiz"}
		},
	}
	s := loadedSession(t, api)

	if _, err := s.Submit(context.Background()); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("err = %v, want ErrAlreadyCompleted", err)
	}
	if s.State() != StateCompleted {
		t.Fatalf("state = %s, want completed", s.State())
	}
}

func TestSessionTransientErrorReturnsToProgress(t *testing.T) {
	calls := 0
	api := &fakeQuizAPI{
		submitFn: func(ctx context.Context, quizID int64, answers []quiz.AnswerInput, startedAt, endedAt string) (*quiz.ScoreSummary, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("connection reset")
			}
			return &quiz.ScoreSummary{TotalQuestions: 2}, nil
		},
	}
	s := loadedSession(t, api)

	if _, err := s.Submit(context.Background()); err == nil {
		t.Fatal("first submit should fail")
	}
	if s.State() != StateInProgress {
		t.Fatalf("state = %s, want in_progress after transient failure", s.State())
	}

	if _, err := s.Submit(context.Background()); err != nil {
		t.Fatalf("retry submit: %v", err)
	}
	if s.State() != StateCompleted {
		t.Fatalf("state = %s, want completed", s.State())
	}
}

func TestSessionAutoSubmitEmptyAnswerSheet(t *testing.T) {
	var gotAnswers []quiz.AnswerInput
	api := &fakeQuizAPI{
		submitFn: func(ctx context.Context, quizID int64, answers []quiz.AnswerInput, startedAt, endedAt string) (*quiz.ScoreSummary, error) {
			gotAnswers = answers
			return &quiz.ScoreSummary{TotalQuestions: 2, SkippedCount: 2}, nil
		},
	}
	s := loadedSession(t, api)

	summary, err := s.AutoSubmit(context.Background())
	if err != nil {
		t.Fatalf("auto submit: %v", err)
	}
	if len(gotAnswers) != 0 {
		t.Fatalf("submitted %d answers, want 0", len(gotAnswers))
	}
	if summary.SkippedCount != 2 {
		t.Fatalf("summary = %+v", summary)
	}
}
