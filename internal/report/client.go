// Package report implements the dps.report upload client.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// DefaultURL is the public dps.report upload endpoint.
const DefaultURL = "https://dps.report/uploadContent"

const defaultTimeout = 30 * time.Second

// Response body reads are capped; a valid report response is small.
const maxResponseBytes = 5 * 1024 * 1024

// ErrBadResponse marks a 200 response whose body could not be decoded.
var ErrBadResponse = errors.New("unrecognized response body")

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError is returned for non-200 upload responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upload returned status %d", e.Code)
}

// Response is the success payload of an upload.
type Response struct {
	ID        string            `json:"id"`
	Permalink string            `json:"permalink"`
	UserToken string            `json:"userToken"`
	Encounter Encounter         `json:"encounter"`
	Players   map[string]Player `json:"players"`
}

// Encounter describes the uploaded fight.
type Encounter struct {
	BossID        int    `json:"bossId"`
	Boss          string `json:"boss"`
	JSONAvailable bool   `json:"jsonAvailable"`
	Success       bool   `json:"success"`
}

// Player is one roster entry, keyed by account name in Response.Players.
type Player struct {
	DisplayName   string `json:"display_name"`
	CharacterName string `json:"character_name"`
	Profession    int    `json:"profession"`
	EliteSpec     int    `json:"elite_spec"`
}

// Client uploads combat log files to a report service.
type Client struct {
	client  HTTPClient
	url     string
	timeout time.Duration
}

// New creates a Client posting to the given URL. An empty url selects
// DefaultURL.
func New(client HTTPClient, url string) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{
		client:  client,
		url:     url,
		timeout: defaultTimeout,
	}
}

// Upload posts the log file at path as a multipart request and decodes
// the JSON response. userToken, when non-empty, is sent along so the
// report is attributed to that account.
//
// Non-200 responses yield a *StatusError; a 200 response that does not
// decode yields an error wrapping ErrBadResponse.
func (c *Client) Upload(ctx context.Context, path string, userToken string) (*Response, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	if err := mw.WriteField("json", "1"); err != nil {
		return nil, fmt.Errorf("write json field: %w", err)
	}
	if userToken != "" {
		if err := mw.WriteField("userToken", userToken); err != nil {
			return nil, fmt.Errorf("write userToken field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http post: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	var parsed Response
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if parsed.Permalink == "" && parsed.ID == "" {
		return nil, fmt.Errorf("%w: no report id or permalink", ErrBadResponse)
	}
	return &parsed, nil
}
