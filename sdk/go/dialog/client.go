// Package dialog is a Go client for the OpenMCP Dialog REST API.
package dialog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. Chat turns may call a language model twice, so it is
// longer than a typical REST timeout.
const DefaultHTTPTimeout = 90 * time.Second

// Client wraps the HTTP interactions with the dialog service.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// Intent is a detected user goal.
type Intent struct {
	Name       string         `json:"name"`
	Confidence float64        `json:"confidence"`
	Args       map[string]any `json:"args"`
}

// Clarification lists the required fields still missing for an intent.
type Clarification struct {
	Intent  string   `json:"intent"`
	Missing []string `json:"missing"`
}

// Result is the outcome recorded for one intent.
type Result struct {
	Status  string   `json:"status"`
	Intent  string   `json:"intent,omitempty"`
	Message string   `json:"message,omitempty"`
	Missing []string `json:"missing,omitempty"`
	Result  any      `json:"result,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// ConversationState mirrors the per-session state machine record.
type ConversationState struct {
	ActiveIntent   string         `json:"active_intent,omitempty"`
	Status         string         `json:"status"`
	PendingArgs    []string       `json:"pending_args"`
	ProvidedArgs   map[string]any `json:"provided_args"`
	LastIntentType string         `json:"last_intent_type,omitempty"`
	LastCompleted  bool           `json:"last_completed"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Message is a single chat message in a session.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the full in-memory record of a conversation.
type Session struct {
	ID        string            `json:"id"`
	CreatedAt time.Time         `json:"created_at"`
	Messages  []Message         `json:"messages"`
	State     ConversationState `json:"state"`
}

// ChatResponse is returned by a synchronous chat turn.
type ChatResponse struct {
	TraceID           string            `json:"trace_id"`
	SessionID         string            `json:"session_id"`
	Intents           []Intent          `json:"intents"`
	Clarifications    []Clarification   `json:"clarifications"`
	Results           map[string]Result `json:"results"`
	AssistantResponse string            `json:"assistant_response"`
	State             ConversationState `json:"state"`
	History           *Session          `json:"history,omitempty"`
}

// Transcript is one archived turn.
type Transcript struct {
	ID                 int64           `json:"id,omitempty"`
	TraceID            string          `json:"trace_id"`
	SessionID          string          `json:"session_id"`
	UserMessage        string          `json:"user_message"`
	AssistantResponse  string          `json:"assistant_response"`
	ConversationStatus string          `json:"conversation_status"`
	Intents            json.RawMessage `json:"intents,omitempty"`
	Clarifications     json.RawMessage `json:"clarifications,omitempty"`
	Results            json.RawMessage `json:"results,omitempty"`
	CreatedAt          int64           `json:"created_at"`
}

// TurnSubmission queues a message for asynchronous processing. A non-empty ID
// makes the submission idempotent.
type TurnSubmission struct {
	ID        string `json:"id,omitempty"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// TurnOutcome is the stored result of an asynchronous turn.
type TurnOutcome struct {
	TraceID            string            `json:"trace_id"`
	Reply              string            `json:"reply"`
	ConversationStatus string            `json:"conversation_status"`
	Clarifications     []Clarification   `json:"clarifications,omitempty"`
	Results            map[string]Result `json:"results,omitempty"`
}

// Turn is an asynchronous turn job.
type Turn struct {
	ID         string       `json:"id"`
	SessionID  string       `json:"session_id"`
	Message    string       `json:"message"`
	Status     string       `json:"status"`
	Attempts   int          `json:"attempts"`
	MaxRetries int          `json:"max_retries"`
	LastError  string       `json:"last_error,omitempty"`
	ErrorCode  string       `json:"error_code,omitempty"`
	Result     *TurnOutcome `json:"result,omitempty"`
	CreatedAt  int64        `json:"created_at"`
	UpdatedAt  int64        `json:"updated_at"`
}

// Done reports whether the turn reached a terminal status.
func (t Turn) Done() bool {
	return t.Status == "succeeded" || t.Status == "failed"
}

// TurnStats aggregates job counts.
type TurnStats struct {
	Total           int   `json:"total"`
	Pending         int   `json:"pending"`
	Running         int   `json:"running"`
	Succeeded       int   `json:"succeeded"`
	Failed          int   `json:"failed"`
	OldestUpdatedAt int64 `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt int64 `json:"newest_updated_at,omitempty"`
}

// ListTurnsOptions filters ListTurns and TurnStats. Zero values are omitted.
type ListTurnsOptions struct {
	SessionID string
	Statuses  []string
	Query     string
	Limit     int
	Offset    int
}

func (o ListTurnsOptions) values() url.Values {
	values := url.Values{}
	if o.SessionID != "" {
		values.Set("session_id", o.SessionID)
	}
	if len(o.Statuses) > 0 {
		values.Set("status", strings.Join(o.Statuses, ","))
	}
	if o.Query != "" {
		values.Set("q", o.Query)
	}
	if o.Limit > 0 {
		values.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Offset > 0 {
		values.Set("offset", strconv.Itoa(o.Offset))
	}
	return values
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
	TraceID    string `json:"trace_id,omitempty"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("dialog api error (%d)", e.StatusCode)
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Message != "" {
		msg += " - " + e.Message
	}
	if e.TraceID != "" {
		msg += " (trace " + e.TraceID + ")"
	}
	return msg
}

// NewClient instantiates a client for the dialog API. When httpClient is nil, a
// default client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: scheme and host are required", rawURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// Chat runs one synchronous turn.
func (c *Client) Chat(ctx context.Context, sessionID, message string) (ChatResponse, error) {
	var resp ChatResponse
	payload := map[string]string{"session_id": sessionID, "message": message}
	if err := c.send(ctx, http.MethodPost, "/api/v1/chat", nil, payload, &resp); err != nil {
		return ChatResponse{}, err
	}
	return resp, nil
}

// Session fetches a session's history and state.
func (c *Client) Session(ctx context.Context, sessionID string) (Session, error) {
	var sess Session
	if err := c.send(ctx, http.MethodGet, "/api/v1/sessions/"+sessionID, nil, nil, &sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// Transcripts lists archived turns for a session, newest first.
func (c *Client) Transcripts(ctx context.Context, sessionID string, limit int) ([]Transcript, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var records []Transcript
	endpoint := "/api/v1/sessions/" + sessionID + "/transcripts"
	if err := c.send(ctx, http.MethodGet, endpoint, query, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// SubmitTurn queues a turn for asynchronous processing.
func (c *Client) SubmitTurn(ctx context.Context, submission TurnSubmission) (Turn, error) {
	var turn Turn
	if err := c.send(ctx, http.MethodPost, "/api/v1/turns", nil, submission, &turn); err != nil {
		return Turn{}, err
	}
	return turn, nil
}

// GetTurn fetches an asynchronous turn by identifier.
func (c *Client) GetTurn(ctx context.Context, id string) (Turn, error) {
	var turn Turn
	if err := c.send(ctx, http.MethodGet, "/api/v1/turns/"+id, nil, nil, &turn); err != nil {
		return Turn{}, err
	}
	return turn, nil
}

// ListTurns lists asynchronous turns.
func (c *Client) ListTurns(ctx context.Context, opts ListTurnsOptions) ([]Turn, error) {
	var turns []Turn
	if err := c.send(ctx, http.MethodGet, "/api/v1/turns", opts.values(), nil, &turns); err != nil {
		return nil, err
	}
	return turns, nil
}

// TurnStats aggregates asynchronous turn counts.
func (c *Client) TurnStats(ctx context.Context, opts ListTurnsOptions) (TurnStats, error) {
	var stats TurnStats
	if err := c.send(ctx, http.MethodGet, "/api/v1/turns/stats", opts.values(), nil, &stats); err != nil {
		return TurnStats{}, err
	}
	return stats, nil
}

// WaitForTurn polls until the turn is terminal or ctx is done.
func (c *Client) WaitForTurn(ctx context.Context, id string, interval time.Duration) (Turn, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		turn, err := c.GetTurn(ctx, id)
		if err != nil {
			return Turn{}, err
		}
		if turn.Done() {
			return turn, nil
		}
		select {
		case <-ctx.Done():
			return Turn{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Health checks service liveness.
func (c *Client) Health(ctx context.Context) error {
	return c.send(ctx, http.MethodGet, "/health", nil, nil, nil)
}

func (c *Client) send(ctx context.Context, method, endpoint string, query url.Values, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	u := *c.baseURL
	u.Path = path.Join(c.baseURL.Path, endpoint)
	u.RawPath = ""
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &struct {
				Error *APIError `json:"error"`
			}{Error: apiErr})
		}
		if apiErr.Message == "" && apiErr.Code == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// IsNotFound reports whether err is an API error with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
