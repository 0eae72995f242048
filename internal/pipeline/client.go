// Package pipeline is the REST client for the production pipeline
// backend that executes generation jobs. The backend owns all wire
// formats; this package only transports requests and normalizes what
// comes back.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"clipforge/internal/config"
	"clipforge/internal/models"
)

const defaultTimeout = 60 * time.Second

// NetworkError is a transport or backend failure during submission or
// metadata fetch. Detail carries the backend's message verbatim when
// one was supplied.
type NetworkError struct {
	StatusCode int
	Detail     string
	Err        error
}

func (e *NetworkError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backend error (HTTP %d): %s", e.StatusCode, e.Detail)
	}
	if e.Err != nil {
		return fmt.Sprintf("backend request failed: %v", e.Err)
	}
	return fmt.Sprintf("backend error (HTTP %d)", e.StatusCode)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Client talks to the pipeline backend
type Client struct {
	httpClient *http.Client
	baseURL    string
}

func NewClient(cfg config.PipelineConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
}

type submitResponse struct {
	JobID  string `json:"job_id"`
	Detail string `json:"detail,omitempty"`
}

// SubmitGeneration posts one assembled request and returns the backend
// job id. The openai provider path uses the v1 submission endpoint.
func (c *Client) SubmitGeneration(ctx context.Context, req *models.GenerationRequest) (string, error) {
	path := "/api/generate"
	if req.ServerID == string(models.ProviderOpenAI) {
		path = "/api/generate/v1"
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &NetworkError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", decodeError(resp.StatusCode, respBody)
	}

	var submitResp submitResponse
	if err := json.Unmarshal(respBody, &submitResp); err != nil {
		return "", &NetworkError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if submitResp.JobID == "" {
		return "", &NetworkError{StatusCode: resp.StatusCode, Detail: "backend returned no job id"}
	}

	return submitResp.JobID, nil
}

// ServerInfo fetches one ComfyUI server's online state and inventory
func (c *Client) ServerInfo(ctx context.Context, serverID string) (*models.ServerInfo, error) {
	var info models.ServerInfo
	path := fmt.Sprintf("/api/comfyui/servers/%s/info", url.PathEscape(serverID))
	if err := c.getJSON(ctx, path, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ModelPresets fetches the named parameter bundles for a model
func (c *Client) ModelPresets(ctx context.Context, model string) (map[string]models.ModelPreset, error) {
	var resp struct {
		Presets map[string]models.ModelPreset `json:"presets"`
	}
	path := fmt.Sprintf("/api/models/presets/%s", url.PathEscape(model))
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Presets, nil
}

// ModelParameters fetches a model's capability report
func (c *Client) ModelParameters(ctx context.Context, model string) (*models.ModelParameters, error) {
	var resp struct {
		Parameters models.ModelParameters `json:"parameters"`
	}
	path := fmt.Sprintf("/api/models/parameters/%s", url.PathEscape(model))
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp.Parameters, nil
}

type jobStatusResponse struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	Progress *int              `json:"progress,omitempty"`
	Result   *models.JobResult `json:"result,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// JobStatus polls one job's state and normalizes it into a registry
// update
func (c *Client) JobStatus(ctx context.Context, jobID string) (*models.JobStatusUpdate, error) {
	var resp jobStatusResponse
	path := fmt.Sprintf("/api/jobs/%s", url.PathEscape(jobID))
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}

	update := &models.JobStatusUpdate{
		ID:       resp.ID,
		Status:   NormalizeStatus(resp.Status),
		Progress: resp.Progress,
		Result:   resp.Result,
		Error:    resp.Error,
	}
	if update.ID == "" {
		update.ID = jobID
	}
	return update, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &NetworkError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

func decodeError(statusCode int, body []byte) *NetworkError {
	var errResp struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Detail != "" {
		return &NetworkError{StatusCode: statusCode, Detail: errResp.Detail}
	}
	return &NetworkError{StatusCode: statusCode, Detail: strings.TrimSpace(string(body))}
}

// NormalizeStatus maps the status vocabulary different backend
// components use onto the tracked-job states
func NormalizeStatus(status string) models.JobStatus {
	switch strings.ToLower(status) {
	case "pending", "queued", "waiting":
		return models.JobStatusPending
	case "processing", "running", "generating", "in_progress":
		return models.JobStatusProcessing
	case "completed", "success", "succeeded", "done":
		return models.JobStatusCompleted
	case "failed", "error", "fail":
		return models.JobStatusFailed
	case "cancelled", "canceled", "stopped":
		return models.JobStatusCancelled
	}
	return models.JobStatusProcessing
}
