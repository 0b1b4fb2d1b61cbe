package player

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/examprep/examprep-backend/internal/model"
	"github.com/examprep/examprep-backend/internal/response"
	"github.com/google/uuid"
)

// FallbackMessage is shown when a failure carries no server message.
const FallbackMessage = "Something went wrong. Please try again."

// API is the slice of the backend the player talks to.
type API interface {
	GetExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error)
	GetQuestions(ctx context.Context, examID uuid.UUID) ([]model.QuestionForStudent, error)
	StartAttempt(ctx context.Context, examID uuid.UUID) (*model.AttemptView, error)
	GetAttempt(ctx context.Context, attemptID uuid.UUID) (*model.AttemptView, error)
	SaveProgress(ctx context.Context, attemptID uuid.UUID, req model.SaveProgressRequest) (*model.AttemptView, error)
	Finalize(ctx context.Context, attemptID uuid.UUID) (*model.AttemptView, error)
}

// APIError is a failed call. Message is the server's error.message verbatim
// when the body carried one.
type APIError struct {
	Status  int
	Code    response.ErrCode
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return e.Message
}

// UserMessage is the text to show for err.
func UserMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return FallbackMessage
}

// Client calls the exam endpoints over HTTP with a bearer token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a Client for baseURL, e.g. "http://localhost:8080".
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type envelope struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorBody `json:"error"`
}

func (c *Client) GetExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	var out struct {
		Exam *model.Exam `json:"exam"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/exams/"+examID.String(), nil, &out); err != nil {
		return nil, err
	}
	if out.Exam == nil {
		return nil, &APIError{Message: FallbackMessage}
	}
	return out.Exam, nil
}

func (c *Client) GetQuestions(ctx context.Context, examID uuid.UUID) ([]model.QuestionForStudent, error) {
	var out struct {
		Questions []model.QuestionForStudent `json:"questions"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/exams/"+examID.String()+"/questions", nil, &out); err != nil {
		return nil, err
	}
	return out.Questions, nil
}

func (c *Client) StartAttempt(ctx context.Context, examID uuid.UUID) (*model.AttemptView, error) {
	return c.attempt(ctx, http.MethodPost, "/api/exams/"+examID.String()+"/attempts", nil)
}

func (c *Client) GetAttempt(ctx context.Context, attemptID uuid.UUID) (*model.AttemptView, error) {
	return c.attempt(ctx, http.MethodGet, "/api/exams/attempts/"+attemptID.String(), nil)
}

func (c *Client) SaveProgress(ctx context.Context, attemptID uuid.UUID, req model.SaveProgressRequest) (*model.AttemptView, error) {
	return c.attempt(ctx, http.MethodPatch, "/api/exams/attempts/"+attemptID.String(), req)
}

// Finalize submits the attempt. The request has no body.
func (c *Client) Finalize(ctx context.Context, attemptID uuid.UUID) (*model.AttemptView, error) {
	return c.attempt(ctx, http.MethodPost, "/api/exams/attempts/"+attemptID.String(), nil)
}

func (c *Client) attempt(ctx context.Context, method, path string, body any) (*model.AttemptView, error) {
	var out struct {
		Attempt *model.AttemptView `json:"attempt"`
	}
	if err := c.do(ctx, method, path, body, &out); err != nil {
		return nil, err
	}
	if out.Attempt == nil {
		return nil, &APIError{Message: FallbackMessage}
	}
	return out.Attempt, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&env); err != nil {
		return &APIError{Status: resp.StatusCode, Message: FallbackMessage}
	}
	if !env.Success || resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode, Message: FallbackMessage}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			if env.Error.Message != "" {
				apiErr.Message = env.Error.Message
			}
		}
		return apiErr
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
