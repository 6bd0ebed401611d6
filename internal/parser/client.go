// Package parser 调用外部简历解析服务。
package parser

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

	"craftcv/internal/resume"
)

const parsePath = "/parse"

// ErrEmptyText 表示没有可供解析的文本。
var ErrEmptyText = errors.New("cv text is empty")

// StatusError 表示解析服务返回了非 2xx 状态。
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("parser status %d: %s", e.StatusCode, e.Body)
}

// Retryable 报告该错误是否值得重试。
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Client 是解析服务的 HTTP 客户端。
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient 构造客户端，timeout 为 0 时使用 60 秒。
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type parseRequest struct {
	Text     string `json:"text"`
	Filename string `json:"filename,omitempty"`
}

// Parse 把简历文本发给解析服务并返回结构化结果。
func (c *Client) Parse(ctx context.Context, text, filename string) (resume.Parsed, error) {
	if strings.TrimSpace(text) == "" {
		return resume.Parsed{}, ErrEmptyText
	}
	if c.baseURL == "" {
		return resume.Parsed{}, errors.New("parser base url missing")
	}

	body, err := json.Marshal(parseRequest{Text: text, Filename: filename})
	if err != nil {
		return resume.Parsed{}, fmt.Errorf("encode parse request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+parsePath, bytes.NewReader(body))
	if err != nil {
		return resume.Parsed{}, fmt.Errorf("build parse request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return resume.Parsed{}, fmt.Errorf("request parser: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
		return resume.Parsed{}, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	var parsed resume.Parsed
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return resume.Parsed{}, fmt.Errorf("decode parser response: %w", err)
	}
	return parsed, nil
}
