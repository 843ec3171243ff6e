package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"quizdesk/internal/player"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	server := flag.String("server", "http://127.0.0.1:8080", "quizdesk server base URL")
	email := flag.String("email", os.Getenv("QUIZDESK_EMAIL"), "account email (required)")
	password := flag.String("password", os.Getenv("QUIZDESK_PASSWORD"), "account password (required)")
	quizID := flag.Int64("quiz", 0, "quiz id to play (0 lists published quizzes)")
	random := flag.Bool("random", false, "shuffle question order")
	flag.Parse()

	if *email == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "error: --email and --password are required")
		os.Exit(1)
	}

	err := player.Run(context.Background(), os.Stdin, os.Stdout, player.RunConfig{
		ServerURL: *server,
		Email:     *email,
		Password:  *password,
		QuizID:    *quizID,
		Randomize: *random,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
