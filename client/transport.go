package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Target types and actions, mirroring the server wire protocol.
const (
	TargetTypeReview  = "review"
	TargetTypeComment = "comment"

	ActionLike   = "like"
	ActionUnlike = "unlike"
)

// ReactionKey builds the "<type>-<id>" key used in batch requests and responses.
func ReactionKey(targetType, targetID string) string {
	return fmt.Sprintf("%s-%s", targetType, targetID)
}

// BatchRequest is the payload of the batch apply endpoint.
type BatchRequest struct {
	ReviewIDs  []string          `json:"reviewIds,omitempty"`
	CommentIDs []string          `json:"commentIds,omitempty"`
	Actions    map[string]string `json:"actions"`
}

// BatchResult is the per-key outcome returned by the server.
type BatchResult struct {
	IsLiked   bool   `json:"isLiked"`
	LikeCount int64  `json:"likeCount"`
	Error     string `json:"error,omitempty"`
}

// BatchSummary aggregates the outcome of one batch request.
type BatchSummary struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Errors  int `json:"errors"`
}

// BatchResponse is the body of a successful batch apply call.
type BatchResponse struct {
	Success bool                   `json:"success"`
	Results map[string]BatchResult `json:"results"`
	Summary *BatchSummary          `json:"summary,omitempty"`
}

// Transport delivers batches to the server. Implementations must return an
// *APIError for application-level rejections and a plain error for transport
// failures (network unreachable, timeout); the two drive different recovery
// paths in the coalescer.
type Transport interface {
	ApplyBatch(ctx context.Context, req *BatchRequest) (*BatchResponse, error)
	// Ping reports whether the server is reachable; used by the replay
	// agent's connectivity probe.
	Ping(ctx context.Context) error
}

// HTTPTransport talks to the batch apply endpoint over HTTP with a bounded
// per-call timeout.
type HTTPTransport struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// DefaultRequestTimeout bounds one batch call; a timeout is treated the same
// as any other transport failure.
const DefaultRequestTimeout = 5 * time.Second

func NewHTTPTransport(baseURL, token string, timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &HTTPTransport{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ApplyBatch posts the batch to /api/v1/likes/batch.
func (t *HTTPTransport) ApplyBatch(ctx context.Context, req *BatchRequest) (*BatchResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/api/v1/likes/batch", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if t.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+t.token)
	}

	httpResp, err := t.httpClient.Do(httpReq)
	if err != nil {
		// Network unreachable or timed out: the offline path handles it
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: httpResp.StatusCode, ErrorType: "UNKNOWN"}
		var envelope struct {
			Error struct {
				ErrorType string `json:"errorType"`
				Message   string `json:"message"`
			} `json:"error"`
		}
		if decodeErr := json.NewDecoder(httpResp.Body).Decode(&envelope); decodeErr == nil {
			if envelope.Error.ErrorType != "" {
				apiErr.ErrorType = envelope.Error.ErrorType
			}
			apiErr.Message = envelope.Error.Message
		}
		return nil, apiErr
	}

	var resp BatchResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &APIError{StatusCode: httpResp.StatusCode, ErrorType: "UNKNOWN", Message: "batch not successful"}
	}
	return &resp, nil
}

// Ping checks the server health endpoint.
func (t *HTTPTransport) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	httpResp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %d", httpResp.StatusCode)
	}
	return nil
}
