// Package service talks to the image-processing service that turns an
// uploaded photo into a processed result.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"
)

const (
	// UploadFilename is the filename the service expects for the image part.
	UploadFilename = "photo.jpg"

	DefaultTimeout = 30 * time.Second
)

var ErrMissingImageID = errors.New("upload response has no image_id")

// Client is an HTTP client for the processing service rooted at BaseURL.
type Client struct {
	BaseURL    string
	httpClient *http.Client
}

// UploadRequest is one captured image plus the selected processing option.
type UploadRequest struct {
	Data     []byte
	MIMEType string
	PromptID string
}

// UploadResponse is the body returned by a successful upload.
type UploadResponse struct {
	ImageID string `json:"image_id"`
	Prompt  string `json:"prompt,omitempty"`
	TaskID  string `json:"task_id,omitempty"`
}

// TaskStatus is the state of the server-side processing task.
type TaskStatus struct {
	Status     string         `json:"status"`
	Result     map[string]any `json:"result,omitempty"`
	HTTPStatus int            `json:"-"`
}

// NewClient creates a new processing service client
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Upload sends the image as multipart form data with PUT {base}/upload.
// Any non-2xx status is an error.
func (c *Client) Upload(ctx context.Context, req UploadRequest) (*UploadResponse, error) {
	body, contentType, err := buildUploadBody(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, c.BaseURL+"/upload", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to upload image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("upload returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var uploaded UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return nil, fmt.Errorf("failed to decode upload response: %w", err)
	}
	if uploaded.ImageID == "" {
		return nil, ErrMissingImageID
	}

	return &uploaded, nil
}

func buildUploadBody(req UploadRequest) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	mimeType := req.MIMEType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, UploadFilename))
	header.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create image part: %w", err)
	}
	if _, err := part.Write(req.Data); err != nil {
		return nil, "", fmt.Errorf("failed to write image part: %w", err)
	}

	if req.PromptID != "" {
		if err := writer.WriteField("prompt_id", req.PromptID); err != nil {
			return nil, "", fmt.Errorf("failed to write prompt_id: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart body: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

// ProcessedURL is where the processed image for imageID is served.
func (c *Client) ProcessedURL(imageID string) string {
	return c.BaseURL + "/processed/" + url.PathEscape(imageID)
}

// CheckProcessed reports whether the processed image exists. Only HTTP 200
// counts as ready; every other status means not ready yet.
func (c *Client) CheckProcessed(ctx context.Context, imageID string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ProcessedURL(imageID), nil)
	if err != nil {
		return false, fmt.Errorf("failed to create poll request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to check processed image: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK, nil
}

// Download writes the processed image to w.
func (c *Client) Download(ctx context.Context, imageID string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ProcessedURL(imageID), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to download processed image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("processed image returned status %d", resp.StatusCode)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("failed to read processed image: %w", err)
	}
	return n, nil
}

// TaskStatus asks the service about a processing task. The service answers
// 202 while processing, 200 when completed and 500 when the task failed; all
// three carry a JSON status body.
func (c *Client) TaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/status/"+url.PathEscape(taskID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create status request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch task status: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted, http.StatusInternalServerError:
	default:
		return nil, fmt.Errorf("status endpoint returned status %d", resp.StatusCode)
	}

	var status TaskStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode task status: %w", err)
	}
	status.HTTPStatus = resp.StatusCode

	return &status, nil
}
