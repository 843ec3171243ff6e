package player

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"quizdesk/internal/apiclient"
	"quizdesk/internal/quiz"
)

const maxInvalidAnswers = 3

type RunConfig struct {
	ServerURL string
	Email     string
	Password  string
	QuizID    int64
	Randomize bool
}

// Run logs in, plays one quiz interactively and prints the score summary.
// When the quiz clock runs out mid-question the collected answers are
// auto-submitted.
func Run(ctx context.Context, in io.Reader, out io.Writer, cfg RunConfig) error {
	if strings.TrimSpace(cfg.Email) == "" || cfg.Password == "" {
		return errors.New("email and password are required")
	}

	creds := apiclient.NewCredentials(cfg.ServerURL, nil)
	user, err := creds.Login(ctx, cfg.Email, cfg.Password)
	if err != nil {
		return describeClientError(err, cfg.ServerURL)
	}
	client := apiclient.NewClientWithCredentials(creds)

	fmt.Fprintf(out, "logged in as %s <%s>\n", user.Name, user.Email)
	reader := bufio.NewReader(in)

	quizID := cfg.QuizID
	if quizID == 0 {
		quizID, err = pickQuiz(ctx, reader, out, client)
		if err != nil {
			return err
		}
		if quizID == 0 {
			return nil
		}
	}

	ins, err := client.Instructions(ctx, quizID)
	if err != nil {
		return describeClientError(err, cfg.ServerURL)
	}
	fmt.Fprintf(out, "\n%s\n", ins.Title)
	fmt.Fprintf(out, "questions: %d  total marks: %s  duration: %d minutes\n",
		ins.TotalQuestions, formatMarks(ins.TotalMarks), ins.DurationMinutes)
	fmt.Fprintln(out, "press enter to start")
	if _, err := reader.ReadString('\n'); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	session := NewSession(client, quizID)
	set, err := session.Load(ctx, cfg.Randomize)
	if err != nil {
		return describeClientError(err, cfg.ServerURL)
	}

	expired := make(chan struct{})
	timer := NewTimer(ins.DurationMinutes*60, func() { close(expired) })
	timer.Start()
	defer timer.Stop()

	for idx, question := range set.Questions {
		select {
		case <-expired:
			return finishExpired(ctx, out, session)
		default:
		}

		fmt.Fprintln(out)
		fmt.Fprintf(out, "Q%d: %s  [%s marks]\n\n", idx+1, question.Text, formatMarks(question.Marks))
		for i, option := range question.Options {
			fmt.Fprintf(out, "%c. %s\n", 'A'+i, option)
		}
		fmt.Fprintf(out, "\ntime left: %s\n", formatClock(timer.SecondsLeft()))

		answerIndex, ok := promptAnswer(reader, out, len(question.Options))
		if !ok {
			fmt.Fprintln(out, "Skipping question.")
			_ = session.RecordAnswer(question.ID, nil)
			continue
		}
		if err := session.RecordAnswer(question.ID, &answerIndex); err != nil {
			if errors.Is(err, ErrNotInProgress) {
				return finishExpired(ctx, out, session)
			}
			return err
		}
	}

	timer.Stop()
	summary, err := session.Submit(ctx)
	if err != nil {
		if errors.Is(err, ErrAlreadyCompleted) {
			fmt.Fprintln(out, "\nyou have already submitted this quiz.")
			return nil
		}
		return describeClientError(err, cfg.ServerURL)
	}

	printSummary(out, summary)
	return nil
}

func finishExpired(ctx context.Context, out io.Writer, session *Session) error {
	fmt.Fprintln(out, "\ntime is up, submitting your answers.")
	summary, err := session.AutoSubmit(ctx)
	if err != nil {
		if errors.Is(err, ErrAlreadyCompleted) {
			fmt.Fprintln(out, "you have already submitted this quiz.")
			return nil
		}
		return err
	}
	printSummary(out, summary)
	return nil
}

func pickQuiz(ctx context.Context, reader *bufio.Reader, out io.Writer, client *apiclient.Client) (int64, error) {
	quizzes, err := client.ListPublished(ctx)
	if err != nil {
		return 0, err
	}
	if len(quizzes) == 0 {
		fmt.Fprintln(out, "no published quizzes.")
		return 0, nil
	}

	fmt.Fprintln(out, "\npublished quizzes:")
	for _, q := range quizzes {
		fmt.Fprintf(out, "  %d. %s (%d questions, %d minutes)\n",
			q.ID, q.Title, q.QuestionCount, q.DurationMinutes)
	}

	for {
		fmt.Fprint(out, "\nquiz id: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return 0, nil
			}
			return 0, err
		}
		var id int64
		if _, err := fmt.Sscanf(strings.TrimSpace(line), "%d", &id); err == nil && id > 0 {
			return id, nil
		}
		fmt.Fprintln(out, "enter a quiz id from the list.")
	}
}

func promptAnswer(reader *bufio.Reader, out io.Writer, optionCount int) (int, bool) {
	if optionCount < 1 {
		return -1, false
	}

	maxLetter := byte('A' + optionCount - 1)
	for attempt := 1; attempt <= maxInvalidAnswers; attempt++ {
		fmt.Fprintf(out, "Your answer (A-%c, enter to skip): ", maxLetter)
		line, err := reader.ReadString('\n')
		if err != nil {
			return -1, false
		}

		answer := strings.ToUpper(strings.TrimSpace(line))
		if answer == "" {
			return -1, false
		}
		if len(answer) == 1 {
			letter := answer[0]
			if letter >= 'A' && letter <= maxLetter {
				return int(letter - 'A'), true
			}
		}

		if attempt < maxInvalidAnswers {
			fmt.Fprintf(out, "Invalid input. Attempts remaining: %d\n", maxInvalidAnswers-attempt)
		}
	}

	return -1, false
}

func printSummary(out io.Writer, summary *quiz.ScoreSummary) {
	if summary == nil {
		return
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "score: %s/%s\n", formatMarks(summary.ObtainedMarks), formatMarks(summary.MaxMarks))
	fmt.Fprintf(out, "correct: %d  wrong: %d  skipped: %d\n",
		summary.CorrectCount, summary.WrongCount, summary.SkippedCount)
	if summary.TimeTakenFormatted != "" {
		fmt.Fprintf(out, "time taken: %s\n", summary.TimeTakenFormatted)
	}
}

func formatMarks(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}

func formatClock(seconds int) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

func describeClientError(err error, serverURL string) error {
	if errors.Is(err, apiclient.ErrServiceUnavailable) {
		return fmt.Errorf("quiz service unavailable at %s", strings.TrimSpace(serverURL))
	}
	return err
}
