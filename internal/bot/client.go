// Package bot is a thin Telegram Bot API client covering the single call
// the backend needs to notify users: sendMessage. Update handling, commands,
// and the rest of the bot surface live outside this service.
package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SendOptions carries optional message parameters.
type SendOptions struct {
	ParseMode   string          `json:"parse_mode,omitempty"`
	ReplyMarkup json.RawMessage `json:"reply_markup,omitempty"`
}

// WebAppKeyboard marshals a one-button inline keyboard opening a web app URL.
func WebAppKeyboard(text, url string) json.RawMessage {
	raw, _ := json.Marshal(map[string]any{
		"inline_keyboard": [][]map[string]any{
			{{"text": text, "web_app": map[string]string{"url": url}}},
		},
	})
	return raw
}

type apiResponse struct {
	Ok          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

// Client is an HTTP Telegram Bot API client.
type Client struct {
	token   string
	baseURL string
	hc      *http.Client
}

// NewClient builds a Client for the given bot token and API base URL
// (e.g. "https://api.telegram.org").
func NewClient(token, baseURL string) *Client {
	return &Client{
		token:   token,
		baseURL: baseURL,
		hc:      &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) call(ctx context.Context, method string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return err
	}
	if !env.Ok {
		return fmt.Errorf("bot: %s: %s", method, env.Description)
	}
	if out != nil {
		return json.Unmarshal(env.Result, out)
	}
	return nil
}

type message struct {
	MessageID int64 `json:"message_id"`
}

// SendText delivers a text message and returns the message id.
func (c *Client) SendText(ctx context.Context, recipientID int64, text string, opts *SendOptions) (int64, error) {
	body := map[string]any{"chat_id": recipientID, "text": text}
	applyOpts(body, opts)
	var m message
	if err := c.call(ctx, "sendMessage", body, &m); err != nil {
		return 0, err
	}
	return m.MessageID, nil
}

func applyOpts(body map[string]any, opts *SendOptions) {
	if opts == nil {
		return
	}
	if opts.ParseMode != "" {
		body["parse_mode"] = opts.ParseMode
	}
	if len(opts.ReplyMarkup) > 0 {
		body["reply_markup"] = opts.ReplyMarkup
	}
}
