package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/mensetsu/internal/models"
)

// client talks to a running mensetsu server.
type client struct {
	baseURL string
	token   string
	http    *http.Client
}

func newClient(baseURL, token string) *client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
}

// do sends the request and decodes a JSON body into out. Non-2xx responses become errors
// carrying the server's message.
func (c *client) do(req *http.Request, out interface{}) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	// A failed upload returns 422 with the record, which is still worth printing.
	if resp.StatusCode == http.StatusUnprocessableEntity && out != nil && json.Unmarshal(body, out) == nil {
		return nil
	}
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *client) Upload(ctx context.Context, path string) (*models.Resume, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("resume", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/resumes", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var rec models.Resume
	if err := c.do(req, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *client) postJSON(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *client) Ask(ctx context.Context, question, resumeID string, topK int) (*models.Answer, error) {
	var answer models.Answer
	if err := c.postJSON(ctx, "/api/v1/ask", models.AskRequest{Question: question, ResumeID: resumeID, TopK: topK}, &answer); err != nil {
		return nil, err
	}
	return &answer, nil
}

// Search returns the chunks the server would ground an answer on.
func (c *client) Search(ctx context.Context, question, resumeID string, topK int) (*models.QueryResult, error) {
	var result models.QueryResult
	if err := c.postJSON(ctx, "/api/v1/search", models.AskRequest{Question: question, ResumeID: resumeID, TopK: topK}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *client) Resumes(ctx context.Context) ([]*models.Resume, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/resumes", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Resumes []*models.Resume `json:"resumes"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out.Resumes, nil
}

func (c *client) Status(ctx context.Context) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/status", nil)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out, nil
}
