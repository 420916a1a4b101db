package broker

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	DefaultBaseURL = "https://openapi.longportapp.com"
	DefaultWSURL   = "wss://openapi-quote.longportapp.com/v2"
)

// Adapter talks to the brokerage OpenAPI: signed REST for account and
// trading, a websocket stream for quote pushes. It implements both
// domain.Broker and domain.MarketData.
type Adapter struct {
	appKey      string
	accessToken string
	appSecret   string
	baseURL     string
	wsURL       string
	client      *http.Client

	wsConn    *websocket.Conn
	wsDone    chan struct{}
	callbacks []func(symbol string, price float64)
	mu        sync.Mutex
}

func NewAdapter(appKey, appSecret, accessToken, baseURL, wsURL string) *Adapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if wsURL == "" {
		wsURL = DefaultWSURL
	}
	return &Adapter{
		appKey:      appKey,
		appSecret:   appSecret,
		accessToken: accessToken,
		baseURL:     baseURL,
		wsURL:       wsURL,
		client:      &http.Client{Timeout: 10 * time.Second},
		wsDone:      make(chan struct{}),
	}
}

func (a *Adapter) sign(method, path string, timestamp int64, body string) string {
	toSign := fmt.Sprintf("%s|%s|%d|%s", method, path, timestamp, body)
	h := hmac.New(sha256.New, []byte(a.appSecret))
	h.Write([]byte(toSign))
	return hex.EncodeToString(h.Sum(nil))
}

func (a *Adapter) sendRequest(ctx context.Context, method, path string, payload map[string]interface{}) ([]byte, error) {
	timestamp := time.Now().UnixMilli()

	var body []byte
	var bodyStr string
	if payload != nil {
		jsonBody, _ := json.Marshal(payload)
		body = jsonBody
		bodyStr = string(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}

	signPath := path
	if idx := strings.Index(path, "?"); idx != -1 {
		signPath = path[:idx]
		bodyStr = path[idx+1:]
	}

	req.Header.Set("X-Api-Key", a.appKey)
	req.Header.Set("Authorization", "Bearer "+a.accessToken)
	req.Header.Set("X-Timestamp", strconv.FormatInt(timestamp, 10))
	req.Header.Set("X-Api-Signature", a.sign(method, signPath, timestamp, bodyStr))
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}
