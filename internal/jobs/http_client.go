package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultJobServiceTimeout = 10 * time.Second

var _ Client = (*HTTPClient)(nil)

// HTTPClient talks to a managed transform job service over its REST API.
type HTTPClient struct {
	client  *resty.Client
	baseURL string
}

type launchRequest struct {
	JobName    string            `json:"jobName"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

type launchResponse struct {
	JobID string `json:"jobId"`
}

type statusResponse struct {
	State string `json:"state"`
}

func NewHTTPClient(baseURL string) (*HTTPClient, error) {
	client := resty.New()
	client.SetTimeout(defaultJobServiceTimeout)
	client.SetRetryCount(0)

	return NewHTTPClientWithResty(baseURL, client)
}

func NewHTTPClientWithResty(baseURL string, client *resty.Client) (*HTTPClient, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("job service base url is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid job service base url: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultJobServiceTimeout)
	}
	client.SetRetryCount(0)

	return &HTTPClient{
		client:  client,
		baseURL: trimmed,
	}, nil
}

func (c *HTTPClient) Launch(ctx context.Context, jobName string, parameters map[string]string) (string, error) {
	if c == nil || c.client == nil {
		return "", fmt.Errorf("job client is not initialized")
	}
	if strings.TrimSpace(jobName) == "" {
		return "", fmt.Errorf("job name is required")
	}

	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(launchRequest{JobName: jobName, Parameters: parameters}).
		Post(c.baseURL + "/v1/jobs")
	if err != nil {
		return "", &ClientError{
			Message:   "job launch request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	statusCode := response.StatusCode()
	body := strings.TrimSpace(response.String())
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return "", &ClientError{
			StatusCode: statusCode,
			Message:    serviceErrorMessage(statusCode, body),
			Transient:  isTransientHTTPStatus(statusCode),
		}
	}

	var launched launchResponse
	if err := json.Unmarshal(response.Body(), &launched); err != nil {
		return "", &ClientError{
			StatusCode: statusCode,
			Message:    "job service returned an unparseable launch response",
			Cause:      err,
		}
	}
	if strings.TrimSpace(launched.JobID) == "" {
		return "", &ClientError{
			StatusCode: statusCode,
			Message:    "job service returned no job id",
		}
	}

	return launched.JobID, nil
}

func (c *HTTPClient) Status(ctx context.Context, handle string) (JobState, error) {
	if c == nil || c.client == nil {
		return "", fmt.Errorf("job client is not initialized")
	}
	if strings.TrimSpace(handle) == "" {
		return "", fmt.Errorf("job handle is required")
	}

	response, err := c.client.R().
		SetContext(ctx).
		Get(c.baseURL + "/v1/jobs/" + url.PathEscape(handle))
	if err != nil {
		return "", &ClientError{
			Message:   "job status request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	statusCode := response.StatusCode()
	body := strings.TrimSpace(response.String())
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return "", &ClientError{
			StatusCode: statusCode,
			Message:    serviceErrorMessage(statusCode, body),
			Transient:  isTransientHTTPStatus(statusCode),
		}
	}

	var status statusResponse
	if err := json.Unmarshal(response.Body(), &status); err != nil {
		return "", &ClientError{
			StatusCode: statusCode,
			Message:    "job service returned an unparseable status response",
			Cause:      err,
		}
	}

	state := JobState(strings.ToUpper(strings.TrimSpace(status.State)))
	if !state.IsValid() {
		return "", &ClientError{
			StatusCode: statusCode,
			Message:    fmt.Sprintf("job service returned unknown state %q", status.State),
		}
	}

	return state, nil
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func serviceErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("job service returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}
