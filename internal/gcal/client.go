// Package gcal はGoogle Calendar v3 REST APIの最小クライアントを提供する。
// イベントの作成・更新一覧取得・watchチャネルの登録/停止のみを実装する。
package gcal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultBaseURL = "https://www.googleapis.com/calendar/v3"

// primaryCalendarID はユーザーのプライマリカレンダーを指す固定ID。
const primaryCalendarID = "primary"

// Client はGoogle Calendar APIクライアント。
// BaseURLはテスト用にオーバーライド可能。
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option はClientの生成オプション。
type Option func(*Client)

// WithBaseURL はAPIのベースURLを上書きする。テスト用。
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient はHTTPクライアントを差し替える。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient はClientを生成する。
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// InsertEvent はプライマリカレンダーにイベントを作成する。
// sendUpdates=allにより出席者へGoogle側から招待メールが送られる。
func (c *Client) InsertEvent(ctx context.Context, accessToken string, ev *EventRequest) (*Event, error) {
	endpoint := fmt.Sprintf("%s/calendars/%s/events?sendUpdates=all", c.baseURL, primaryCalendarID)

	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	var created Event
	if err := c.do(ctx, http.MethodPost, endpoint, accessToken, bytes.NewReader(body), &created); err != nil {
		return nil, fmt.Errorf("failed to insert event: %w", err)
	}

	if created.ID == "" {
		return nil, fmt.Errorf("event created without ID")
	}

	return &created, nil
}

// ListUpdatedEvents はプライマリカレンダーのうち、since以降に更新された
// イベントを更新時刻順で返す。繰り返しイベントは単一インスタンスに展開し、
// 削除済みイベントは含めない。
func (c *Client) ListUpdatedEvents(ctx context.Context, accessToken string, since time.Time) ([]*Event, error) {
	params := url.Values{
		"updatedMin":   {since.UTC().Format(time.RFC3339)},
		"singleEvents": {"true"},
		"orderBy":      {"updated"},
		"showDeleted":  {"false"},
	}
	endpoint := fmt.Sprintf("%s/calendars/%s/events?%s", c.baseURL, primaryCalendarID, params.Encode())

	var list eventList
	if err := c.do(ctx, http.MethodGet, endpoint, accessToken, nil, &list); err != nil {
		return nil, fmt.Errorf("failed to list updated events: %w", err)
	}

	return list.Items, nil
}

// WatchEvents はプライマリカレンダーのイベント変更に対するプッシュ通知
// チャネルを登録する。addressには外部公開HTTPSのwebhook URLを指定する。
func (c *Client) WatchEvents(ctx context.Context, accessToken, channelID, address string) (*WatchResult, error) {
	endpoint := fmt.Sprintf("%s/calendars/%s/events/watch", c.baseURL, primaryCalendarID)

	reqBody := watchRequest{
		ID:      channelID,
		Type:    "web_hook",
		Address: address,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal watch request: %w", err)
	}

	var resp watchResponse
	if err := c.do(ctx, http.MethodPost, endpoint, accessToken, bytes.NewReader(body), &resp); err != nil {
		return nil, fmt.Errorf("failed to watch events: %w", err)
	}

	result := &WatchResult{
		ChannelID:  resp.ID,
		ResourceID: resp.ResourceID,
	}
	if resp.Expiration != "" {
		// expirationはエポックミリ秒の文字列
		var ms int64
		if _, err := fmt.Sscanf(resp.Expiration, "%d", &ms); err == nil {
			result.Expiry = time.UnixMilli(ms)
		}
	}

	return result, nil
}

// StopChannel はプッシュ通知チャネルを停止する。
// チャネルが既に存在しない場合（404）はエラーとしない。
func (c *Client) StopChannel(ctx context.Context, accessToken, channelID, resourceID string) error {
	endpoint := c.baseURL + "/channels/stop"

	reqBody := stopRequest{
		ID:         channelID,
		ResourceID: resourceID,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal stop request: %w", err)
	}

	err = c.do(ctx, http.MethodPost, endpoint, accessToken, bytes.NewReader(body), nil)
	if err != nil {
		var apiErr *APIStatusError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil
		}
		return fmt.Errorf("failed to stop channel: %w", err)
	}

	return nil
}

// APIStatusError はGoogle APIの非2xxレスポンスを表す。
type APIStatusError struct {
	StatusCode int
	Body       string
}

// Error はerrorインターフェースを実装する。
func (e *APIStatusError) Error() string {
	return fmt.Sprintf("google api returned status %d: %s", e.StatusCode, e.Body)
}

// do はリクエストを実行し、2xxの場合にoutへレスポンスをデコードする。
func (c *Client) do(ctx context.Context, method, endpoint, accessToken string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIStatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}

	return nil
}
