// Package login exchanges a Telegram identity for a backend session token.
package login

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"tgbridge/pkg/logger"
	"tgbridge/pkg/tokenstore"
)

// Failure texts returned in Result.Error.
const (
	ErrMissingIdentity = "missing telegram id"
	ErrRequestFailed   = "network request failed"
	ErrRejected        = "login failed"
	ErrUnexpected      = "login error"
)

// Identity is the Telegram user reported by the embedded client.
type Identity struct {
	ID             string `json:"telegramId"`
	Phone          string `json:"phone"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	ProfilePicture string `json:"profilePicture"`
	Nick           string `json:"nick"`
	Username       string `json:"username"`
}

// Result is the outcome of a login. Failures never carry a token.
type Result struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Error   string `json:"error,omitempty"`
}

type response struct {
	Code  int    `json:"code"`
	Token string `json:"token"`
	Msg   string `json:"msg"`
	Data  *struct {
		Token string `json:"token"`
	} `json:"data"`
}

func (r response) token() string {
	if r.Token != "" {
		return r.Token
	}
	if r.Data != nil {
		return r.Data.Token
	}
	return ""
}

// Client talks to the backend login endpoint.
type Client struct {
	url    string
	http   *http.Client
	tokens *tokenstore.Store
	log    *logger.Logger
}

// NewClient creates a login client posting to baseURL+path.
func NewClient(baseURL, path string, timeout time.Duration, tokens *tokenstore.Store, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewNop()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		url:    strings.TrimRight(baseURL, "/") + path,
		http:   &http.Client{Timeout: timeout},
		tokens: tokens,
		log:    log.Named("login"),
	}
}

// LoginWithIdentity posts id to the backend and persists the returned
// token. It does not retry.
func (c *Client) LoginWithIdentity(ctx context.Context, id Identity) Result {
	if strings.TrimSpace(id.ID) == "" {
		c.log.Warn("Login skipped, identity has no id")
		return Result{Error: ErrMissingIdentity}
	}

	body, err := json.Marshal(id)
	if err != nil {
		c.log.Error("Encoding login request failed", zap.Error(err))
		return Result{Error: ErrUnexpected}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		c.log.Error("Building login request failed", zap.Error(err))
		return Result{Error: ErrUnexpected}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("Login request failed", zap.String("url", c.url), zap.Error(err))
		return Result{Error: ErrUnexpected}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.log.Warn("Login rejected by backend",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(snippet)))
		return Result{Error: ErrRequestFailed}
	}

	var decoded response
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&decoded); err != nil {
		c.log.Warn("Login response is not JSON", zap.Error(err))
		return Result{Error: ErrUnexpected}
	}
	if decoded.Code != 200 {
		c.log.Warn("Login refused",
			zap.Int("code", decoded.Code),
			zap.String("msg", decoded.Msg))
		return Result{Error: ErrRejected}
	}

	token := decoded.token()
	if token == "" {
		c.log.Warn("Login succeeded without a token")
		return Result{Error: ErrRejected}
	}

	if !c.tokens.SaveToken(ctx, token) {
		c.log.Error("Persisting session token failed")
		return Result{Error: fmt.Sprintf("%s: token not saved", ErrUnexpected)}
	}

	c.log.Info("Logged in", zap.String("telegram_id", id.ID))
	return Result{Success: true, Token: token}
}
