package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"quizdesk/internal/auth"
	"quizdesk/internal/quiz"
)

var ErrServiceUnavailable = errors.New("quiz service unavailable")

const defaultBaseURL = "http://127.0.0.1:8080"

type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if strings.TrimSpace(e.Message) == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return e.Message
}

// CredentialProvider supplies the bearer token and refreshes it when the
// server rejects a request.
type CredentialProvider interface {
	AccessToken() string
	Refresh(ctx context.Context) error
}

type envelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error envelopeError   `json:"error"`
}

// envelopeError arrives either as a bare string (auth endpoints) or as the
// {code, message} object the server's response envelope writes.
type envelopeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *envelopeError) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		return json.Unmarshal(b, &e.Message)
	}
	type plain envelopeError
	return json.Unmarshal(b, (*plain)(e))
}

// Credentials holds the access token and the cookie jar carrying the
// http-only refresh cookie. One instance backs one logged-in session.
type Credentials struct {
	baseURL    string
	httpClient *http.Client

	mu          sync.Mutex
	accessToken string
}

type loginData struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	User         *auth.User `json:"user"`
}

func NewCredentials(baseURL string, httpClient *http.Client) *Credentials {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		jar, _ := cookiejar.New(nil)
		httpClient = &http.Client{Timeout: 10 * time.Second, Jar: jar}
	}
	return &Credentials{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

func (c *Credentials) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

func (c *Credentials) setAccessToken(token string) {
	c.mu.Lock()
	c.accessToken = token
	c.mu.Unlock()
}

// Login authenticates and stores the access token. The refresh token lands in
// the cookie jar, so subsequent Refresh calls need no stored state here.
func (c *Credentials) Login(ctx context.Context, email, password string) (*auth.User, error) {
	body := map[string]string{"email": email, "password": password}
	var data loginData
	if err := doJSON(ctx, c.httpClient, c.baseURL, http.MethodPost, "/api/v1/auth/login", "", body, &data); err != nil {
		return nil, err
	}
	c.setAccessToken(data.AccessToken)
	return data.User, nil
}

func (c *Credentials) Refresh(ctx context.Context) error {
	var data struct {
		AccessToken string `json:"access_token"`
	}
	if err := doJSON(ctx, c.httpClient, c.baseURL, http.MethodPost, "/api/v1/auth/refresh", "", nil, &data); err != nil {
		return err
	}
	c.setAccessToken(data.AccessToken)
	return nil
}

func (c *Credentials) Logout(ctx context.Context) error {
	err := doJSON(ctx, c.httpClient, c.baseURL, http.MethodPost, "/api/v1/auth/logout", "", nil, nil)
	c.setAccessToken("")
	return err
}

// Client wraps the HTTP API. Requests failing with 401 or 403 trigger one
// credential refresh and one retry before the error surfaces.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      CredentialProvider
}

func NewClient(baseURL string, httpClient *http.Client, creds CredentialProvider) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		creds:      creds,
	}
}

// NewClientWithCredentials shares the credentials' HTTP client so the refresh
// cookie jar is reused.
func NewClientWithCredentials(creds *Credentials) *Client {
	return &Client{
		baseURL:    creds.baseURL,
		httpClient: creds.httpClient,
		creds:      creds,
	}
}

func (c *Client) Register(ctx context.Context, name, email, password string) (*auth.User, error) {
	body := map[string]string{"name": name, "email": email, "password": password}
	var data struct {
		User *auth.User `json:"user"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/register", body, &data); err != nil {
		return nil, err
	}
	return data.User, nil
}

func (c *Client) ListPublished(ctx context.Context) ([]quiz.QuizSummary, error) {
	var data []quiz.QuizSummary
	if err := c.do(ctx, http.MethodGet, "/api/v1/quiz/published", nil, &data); err != nil {
		return nil, err
	}
	return data, nil
}

func (c *Client) Instructions(ctx context.Context, quizID int64) (*quiz.QuizInstructions, error) {
	var data quiz.QuizInstructions
	path := fmt.Sprintf("/api/v1/quiz/%d/instructions", quizID)
	if err := c.do(ctx, http.MethodGet, path, nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

func (c *Client) QuizQuestions(ctx context.Context, quizID int64, randomize bool) (*quiz.QuestionSet, error) {
	path := fmt.Sprintf("/api/v1/quiz/%d/questions", quizID)
	if randomize {
		path += "?random=true"
	}
	var data quiz.QuestionSet
	if err := c.do(ctx, http.MethodGet, path, nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

func (c *Client) SubmitAnswers(ctx context.Context, quizID int64, answers []quiz.AnswerInput, startedAt, endedAt string) (*quiz.ScoreSummary, error) {
	body := map[string]interface{}{
		"answers":    answers,
		"started_at": startedAt,
		"ended_at":   endedAt,
	}
	var data quiz.ScoreSummary
	path := fmt.Sprintf("/api/v1/quiz/%d/submit", quizID)
	if err := c.do(ctx, http.MethodPost, path, body, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

func (c *Client) Me(ctx context.Context) (*auth.User, error) {
	var data auth.User
	if err := c.do(ctx, http.MethodGet, "/api/v1/auth/me", nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

func (c *Client) do(ctx context.Context, method, path string, requestBody, responseData any) error {
	token := ""
	if c.creds != nil {
		token = c.creds.AccessToken()
	}

	err := doJSON(ctx, c.httpClient, c.baseURL, method, path, token, requestBody, responseData)
	if err == nil || c.creds == nil {
		return err
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	if apiErr.StatusCode != http.StatusUnauthorized && apiErr.StatusCode != http.StatusForbidden {
		return err
	}

	if refreshErr := c.creds.Refresh(ctx); refreshErr != nil {
		return err
	}
	return doJSON(ctx, c.httpClient, c.baseURL, method, path, c.creds.AccessToken(), requestBody, responseData)
}

func doJSON(ctx context.Context, httpClient *http.Client, baseURL, method, path, bearer string, requestBody, responseData any) error {
	var body io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, baseURL+path, body)
	if err != nil {
		return err
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		request.Header.Set("Authorization", "Bearer "+bearer)
	}

	response, err := httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer response.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(response.Body).Decode(&env)

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		apiErr := APIError{StatusCode: response.StatusCode}
		if decodeErr == nil && strings.TrimSpace(env.Error.Message) != "" {
			apiErr.Message = env.Error.Message
		}
		if apiErr.Message == "" {
			apiErr.Message = response.Status
		}
		return &apiErr
	}

	if decodeErr != nil {
		return decodeErr
	}
	if responseData == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, responseData)
}
