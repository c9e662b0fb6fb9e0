package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/matheus3301/crmsync/internal/model"
	"go.uber.org/zap"
)

const (
	defaultTimeout = 15 * time.Second
	maxErrorBody   = 512
)

// Config addresses one CRM account.
type Config struct {
	BaseURL string
	Account string
	Token   string
	Timeout time.Duration
}

// Client talks to the CRM REST API on behalf of one account.
type Client struct {
	base    string
	account string
	token   string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a REST client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		account: cfg.Account,
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Account returns the account name every request is scoped to.
func (c *Client) Account() string {
	return c.account
}

type chatsResponse struct {
	Chats []model.Chat `json:"chats"`
}

// ListChats returns one page of the chat list.
func (c *Client) ListChats(ctx context.Context, limit, offset int) ([]model.Chat, error) {
	var resp chatsResponse
	q := page(limit, offset)
	if err := c.do(ctx, http.MethodGet, c.accountPath("chats"), q, nil, &resp); err != nil {
		return nil, err
	}
	for i := range resp.Chats {
		if resp.Chats[i].AccountName == "" {
			resp.Chats[i].AccountName = c.account
		}
	}
	return resp.Chats, nil
}

type messagesResponse struct {
	Messages []model.Message `json:"messages"`
}

// ListMessages returns one page of a chat's messages, newest first as the server sends them.
func (c *Client) ListMessages(ctx context.Context, chatID string, limit, offset int) ([]model.Message, error) {
	var resp messagesResponse
	path := c.accountPath("chats", chatID, "messages")
	if err := c.do(ctx, http.MethodGet, path, page(limit, offset), nil, &resp); err != nil {
		return nil, err
	}
	for i := range resp.Messages {
		if resp.Messages[i].ChatID == "" {
			resp.Messages[i].ChatID = chatID
		}
	}
	return resp.Messages, nil
}

type sendRequest struct {
	Text string `json:"text"`
}

type sendResponse struct {
	Message model.Message `json:"message"`
}

// SendText posts a text message and returns the stored message as echoed by the server.
func (c *Client) SendText(ctx context.Context, chatID, text string) (model.Message, error) {
	var resp sendResponse
	path := c.accountPath("chats", chatID, "messages")
	if err := c.do(ctx, http.MethodPost, path, nil, sendRequest{Text: text}, &resp); err != nil {
		return model.Message{}, err
	}
	m := resp.Message
	if m.ChatID == "" {
		m.ChatID = chatID
	}
	if m.Direction == "" {
		m.Direction = model.DirectionOut
	}
	if m.Type == "" {
		m.Type = model.TypeText
	}
	return m, nil
}

// MarkRead tells the CRM the operator has seen the chat.
func (c *Client) MarkRead(ctx context.Context, chatID string) error {
	return c.do(ctx, http.MethodPost, c.accountPath("chats", chatID, "read"), nil, nil, nil)
}

type voiceRequest struct {
	VoiceIDs []string `json:"voice_ids"`
}

type voiceResponse struct {
	VoiceURLs map[string]string `json:"voice_urls"`
}

// ResolveVoiceURLs resolves a batch of voice ids in one request.
func (c *Client) ResolveVoiceURLs(ctx context.Context, account string, voiceIDs []string) (map[string]string, error) {
	if len(voiceIDs) == 0 {
		return map[string]string{}, nil
	}
	if account == "" {
		account = c.account
	}
	var resp voiceResponse
	path := "/api/avito/accounts/" + url.PathEscape(account) + "/voice-files"
	if err := c.do(ctx, http.MethodPost, path, nil, voiceRequest{VoiceIDs: voiceIDs}, &resp); err != nil {
		return nil, err
	}
	if resp.VoiceURLs == nil {
		resp.VoiceURLs = map[string]string{}
	}
	return resp.VoiceURLs, nil
}

type callGroupWire struct {
	PhoneNumber string       `json:"phone_number"`
	Calls       []model.Call `json:"calls"`
}

type callsResponse struct {
	Groups []callGroupWire `json:"groups"`
	Stats  model.CallStats `json:"stats"`
}

// ListCallGroups returns the grouped call history and aggregate stats.
func (c *Client) ListCallGroups(ctx context.Context, pageNum, limit int) (map[string][]model.Call, model.CallStats, error) {
	var resp callsResponse
	q := url.Values{}
	if pageNum > 0 {
		q.Set("page", strconv.Itoa(pageNum))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if err := c.do(ctx, http.MethodGet, "/api/calls/grouped", q, nil, &resp); err != nil {
		return nil, model.CallStats{}, err
	}
	groups := make(map[string][]model.Call, len(resp.Groups))
	for _, g := range resp.Groups {
		for i := range g.Calls {
			if g.Calls[i].PhoneNumber == "" {
				g.Calls[i].PhoneNumber = g.PhoneNumber
			}
		}
		groups[g.PhoneNumber] = append(groups[g.PhoneNumber], g.Calls...)
	}
	return groups, resp.Stats, nil
}

func (c *Client) accountPath(parts ...string) string {
	var b strings.Builder
	b.WriteString("/api/avito/accounts/")
	b.WriteString(url.PathEscape(c.account))
	for _, p := range parts {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(p))
	}
	return b.String()
}

func page(limit, offset int) url.Values {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	return q
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		io.Copy(io.Discard, resp.Body)
		c.logger.Warn("crm rejected credentials", zap.String("path", path), zap.Int("status", resp.StatusCode))
		return ErrSessionExpired
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
