// Package apiclient is the admin-side client for the survey service API.
// It carries a bearer token and transparently refreshes it once when the
// server reports it expired.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"survey-service/internal/domain"
	"survey-service/internal/viz"
)

// TokenSource provides the current bearer token and a way to obtain a
// fresh one when the server rejects it.
type TokenSource interface {
	Token() string
	Refresh(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource for pre-issued tokens that cannot be
// renewed.
type StaticToken string

func (t StaticToken) Token() string { return string(t) }

func (t StaticToken) Refresh(context.Context) (string, error) {
	return "", domain.ErrAuthExpired
}

type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

func New(baseURL string, tokens TokenSource) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		tokens:  tokens,
	}
}

// Survey loads a full survey definition.
func (c *Client) Survey(ctx context.Context, id int) (*domain.Survey, error) {
	survey := &domain.Survey{}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/admin/surveys/%d", id), nil, survey); err != nil {
		return nil, err
	}
	return survey, nil
}

// Surveys loads the survey index (definitions without fields).
func (c *Client) Surveys(ctx context.Context) ([]*domain.Survey, error) {
	var out struct {
		Surveys []*domain.Survey `json:"surveys"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/admin/surveys", nil, &out); err != nil {
		return nil, err
	}
	return out.Surveys, nil
}

// SaveSurvey creates the survey when it has no id yet, otherwise updates
// it in place. It returns the survey's id.
func (c *Client) SaveSurvey(ctx context.Context, survey *domain.Survey) (int, error) {
	if survey.ID == 0 {
		var created struct {
			ID int `json:"id"`
		}
		if err := c.do(ctx, http.MethodPost, "/api/admin/surveys", survey, &created); err != nil {
			return 0, err
		}
		return created.ID, nil
	}

	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/admin/surveys/%d", survey.ID), survey, nil); err != nil {
		return 0, err
	}
	return survey.ID, nil
}

func (c *Client) DeleteSurvey(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/admin/surveys/%d", id), nil, nil)
}

func (c *Client) Submissions(ctx context.Context, surveyID int) ([]domain.Submission, error) {
	var out struct {
		Submissions []domain.Submission `json:"submissions"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/admin/surveys/%d/submissions", surveyID), nil, &out); err != nil {
		return nil, err
	}
	return out.Submissions, nil
}

// Visualize asks the server to aggregate a survey's submissions for the
// selected fields.
func (c *Client) Visualize(ctx context.Context, surveyID int, sel viz.Selection) ([]viz.Dataset, error) {
	request := struct {
		Fields viz.Selection `json:"fields"`
	}{Fields: sel}
	var out struct {
		Datasets []viz.Dataset `json:"datasets"`
	}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/admin/surveys/%d/visualize", surveyID), request, &out); err != nil {
		return nil, err
	}
	return out.Datasets, nil
}

// do sends one request with the current token. On 401 it refreshes the
// token and retries exactly once; a second rejection is terminal.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	resp, err := c.send(ctx, method, path, raw, c.tokens.Token())
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		token, err := c.tokens.Refresh(ctx)
		if err != nil {
			return fmt.Errorf("%w: refresh failed: %v", domain.ErrAuthExpired, err)
		}
		resp, err = c.send(ctx, method, path, raw, token)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			drain(resp)
			return domain.ErrAuthExpired
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, raw []byte, token string) (*http.Response, error) {
	var body io.Reader
	if raw != nil {
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func responseError(resp *http.Response) error {
	message := strings.TrimSpace(string(readBody(resp)))
	switch resp.StatusCode {
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusBadRequest:
		return domain.Validationf("%s", message)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", domain.ErrVersionConflict, message)
	}
	return &domain.RemoteError{Status: resp.StatusCode, Message: message}
}

func readBody(resp *http.Response) []byte {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return raw
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}
