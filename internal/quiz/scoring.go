package quiz

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidTimeRange = errors.New("invalid start/end time")

// skippedSentinel marks a question the player saw but left unanswered.
const skippedSentinel = -1

// AnswerInput is one submitted answer. A nil or negative SelectedOption means
// the question was skipped.
type AnswerInput struct {
	QuestionID     int64 `json:"question_id"`
	SelectedOption *int  `json:"selected_option"`
}

// QuestionKey is the server-held answer key for one question. Client-supplied
// correctness is never trusted; keys are always loaded from storage.
type QuestionKey struct {
	ID            int64
	CorrectOption int
	Marks         float64
}

type ScoreSummary struct {
	TotalQuestions     int     `json:"total_questions"`
	MaxMarks           float64 `json:"max_marks"`
	ObtainedMarks      float64 `json:"obtained_marks"`
	CorrectCount       int     `json:"correct_count"`
	WrongCount         int     `json:"wrong_count"`
	SkippedCount       int     `json:"skipped_count"`
	TimeTakenSeconds   int64   `json:"time_taken_seconds"`
	TimeTakenFormatted string  `json:"time_taken_formatted"`
}

// RecordedAnswer is a row destined for the user_answers table.
type RecordedAnswer struct {
	QuestionID     int64
	SelectedOption int
}

// ScoreAnswers evaluates submitted answers against the key set. Duplicate
// answers for one question collapse last-write-wins, answers referencing
// questions outside the key set are ignored, and marks accumulate as float64
// so fractional weights do not lose precision. Wrong answers never subtract
// marks; the negative-marking flag surfaced on instructions is decorative.
func ScoreAnswers(keys []QuestionKey, answers []AnswerInput) (ScoreSummary, []RecordedAnswer) {
	keyByID := make(map[int64]QuestionKey, len(keys))
	maxMarks := 0.0
	for _, k := range keys {
		keyByID[k.ID] = k
		maxMarks += k.Marks
	}

	selected := make(map[int64]int, len(answers))
	order := make([]int64, 0, len(answers))
	for _, a := range answers {
		if _, known := keyByID[a.QuestionID]; !known {
			continue
		}
		if _, seen := selected[a.QuestionID]; !seen {
			order = append(order, a.QuestionID)
		}
		sel := skippedSentinel
		if a.SelectedOption != nil && *a.SelectedOption >= 0 {
			sel = *a.SelectedOption
		}
		selected[a.QuestionID] = sel
	}

	summary := ScoreSummary{
		TotalQuestions: len(keys),
		MaxMarks:       maxMarks,
	}

	recorded := make([]RecordedAnswer, 0, len(order))
	for _, qID := range order {
		sel := selected[qID]
		recorded = append(recorded, RecordedAnswer{QuestionID: qID, SelectedOption: sel})

		if sel == skippedSentinel {
			continue
		}
		if sel == keyByID[qID].CorrectOption {
			summary.CorrectCount++
			summary.ObtainedMarks += keyByID[qID].Marks
		} else {
			summary.WrongCount++
		}
	}

	// Questions without a usable answer count as skipped, whether the payload
	// carried a sentinel or omitted them entirely.
	summary.SkippedCount = summary.TotalQuestions - summary.CorrectCount - summary.WrongCount

	return summary, recorded
}

// ComputeTimeTaken derives elapsed seconds from the submitted timestamps.
// Both empty means the client did not track time and yields zero; with both
// present, unparseable values or endedAt before startedAt fail.
func ComputeTimeTaken(startedAt, endedAt string) (int64, string, error) {
	startedAt = strings.TrimSpace(startedAt)
	endedAt = strings.TrimSpace(endedAt)
	if startedAt == "" || endedAt == "" {
		return 0, "", nil
	}

	start, err := time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return 0, "", ErrInvalidTimeRange
	}
	end, err := time.Parse(time.RFC3339, endedAt)
	if err != nil {
		return 0, "", ErrInvalidTimeRange
	}
	if end.Before(start) {
		return 0, "", ErrInvalidTimeRange
	}

	seconds := int64(end.Sub(start).Seconds())
	return seconds, formatSeconds(seconds), nil
}

func formatSeconds(seconds int64) string {
	return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
}
