package funpay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	runnerPath = "/runner/"
	tradePath  = "/orders/trade"

	objectOrdersCounters = "orders_counters"
	objectChatBookmarks  = "chat_bookmarks"
	objectChatNode       = "chat_node"

	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// Client is the account/transport surface the runner consumes.
type Client interface {
	IsAuthenticated() bool
	Poll(ctx context.Context, chatTag, orderTag string) (*PollResponse, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]Order, error)
}

// HTTPClient talks to the marketplace with a golden_key session cookie.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	goldenKey  string
	userAgent  string
	limiter    *rate.Limiter
	logger     *zap.Logger

	mu        sync.RWMutex
	userID    int64
	csrfToken string
	sessionID string
}

func NewClient(baseURL, goldenKey, userAgent string, ratePerSec int, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	transport := &http.Transport{
		MaxIdleConns:       10,
		MaxConnsPerHost:    4,
		IdleConnTimeout:    90 * time.Second,
		DisableCompression: false,
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	if ratePerSec < 1 {
		ratePerSec = 1
	}

	return &HTTPClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		goldenKey: goldenKey,
		userAgent: userAgent,
		limiter:   rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec*2),
		logger:    logger,
	}
}

// Init loads the account page and picks up the user id, csrf token and
// session id. It must succeed before Poll is used.
func (c *HTTPClient) Init(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, body, err := c.do(req)
	if err != nil {
		return err
	}

	data, err := parseAppData(string(body))
	if err != nil {
		return err
	}
	if data.UserID == 0 {
		return ErrNotAuthorized
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = data.UserID
	c.csrfToken = data.CSRFToken
	for _, cookie := range resp.Cookies() {
		if cookie.Name == "PHPSESSID" {
			c.sessionID = cookie.Value
		}
	}

	c.logger.Info("account initialized", zap.Int64("userID", data.UserID))
	return nil
}

func (c *HTTPClient) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID != 0 && c.csrfToken != ""
}

// UserID returns the authenticated account id, or 0 before Init.
func (c *HTTPClient) UserID() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

type runnerObject struct {
	Type string          `json:"type"`
	ID   int64           `json:"id"`
	Tag  string          `json:"tag"`
	Data json.RawMessage `json:"data"`
}

type runnerResponse struct {
	Objects  []runnerObject  `json:"objects"`
	Response json.RawMessage `json:"response"`
}

type chatBookmarksData struct {
	HTML *string `json:"html"`
}

// Poll issues one combined request carrying both sub-queries.
func (c *HTTPClient) Poll(ctx context.Context, chatTag, orderTag string) (*PollResponse, error) {
	if !c.IsAuthenticated() {
		return nil, ErrNotAuthorized
	}

	userID := c.UserID()
	objects := []runnerObject{
		{Type: objectOrdersCounters, ID: userID, Tag: orderTag, Data: json.RawMessage("false")},
		{Type: objectChatBookmarks, ID: userID, Tag: chatTag, Data: json.RawMessage("false")},
	}

	body, err := c.postRunner(ctx, objects, nil)
	if err != nil {
		return nil, err
	}

	var decoded runnerResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("%w: decoding runner response: %v", ErrMalformedResponse, err)
	}

	return decodePoll(decoded.Objects)
}

func decodePoll(objects []runnerObject) (*PollResponse, error) {
	var (
		resp               PollResponse
		haveChat, haveOrds bool
	)

	for _, obj := range objects {
		switch obj.Type {
		case objectChatBookmarks:
			if obj.Tag == "" {
				return nil, fmt.Errorf("%w: chat bookmarks without tag", ErrMalformedResponse)
			}
			resp.ChatTag = obj.Tag
			haveChat = true
			if isFalse(obj.Data) {
				continue
			}
			var data chatBookmarksData
			if err := json.Unmarshal(obj.Data, &data); err != nil || data.HTML == nil {
				return nil, fmt.Errorf("%w: chat bookmarks without markup", ErrMalformedResponse)
			}
			resp.ChatChanged = true
			resp.ChatHTML = *data.HTML

		case objectOrdersCounters:
			if obj.Tag == "" {
				return nil, fmt.Errorf("%w: order counters without tag", ErrMalformedResponse)
			}
			resp.OrderTag = obj.Tag
			haveOrds = true
		}
	}

	if !haveChat || !haveOrds {
		return nil, fmt.Errorf("%w: response is missing a sub-query (chats=%t, orders=%t)",
			ErrMalformedResponse, haveChat, haveOrds)
	}
	return &resp, nil
}

func isFalse(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "false" || s == "null"
}

// ListOrders fetches the seller's trade list and keeps the states the
// filter selects.
func (c *HTTPClient) ListOrders(ctx context.Context, filter OrderFilter) ([]Order, error) {
	if !c.IsAuthenticated() {
		return nil, ErrNotAuthorized
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+tradePath, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	_, body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	all, err := ParseOrders(string(body))
	if err != nil {
		return nil, err
	}

	orders := make([]Order, 0, len(all))
	for _, o := range all {
		if filter.Match(o.Status) {
			orders = append(orders, o)
		}
	}
	return orders, nil
}

type chatMessageRequest struct {
	Action string `json:"action"`
	Data   struct {
		Node        int64  `json:"node"`
		LastMessage int64  `json:"last_message"`
		Content     string `json:"content"`
	} `json:"data"`
}

type sendResponse struct {
	Response *struct {
		Error *string `json:"error"`
	} `json:"response"`
}

// SendMessage posts text into a chat.
func (c *HTTPClient) SendMessage(ctx context.Context, chatID int64, text string) error {
	if !c.IsAuthenticated() {
		return ErrNotAuthorized
	}

	objects := []runnerObject{{
		Type: objectChatNode,
		ID:   chatID,
		Tag:  "00000000",
		Data: json.RawMessage(fmt.Sprintf(`{"node":%d,"last_message":-1,"content":""}`, chatID)),
	}}

	var request chatMessageRequest
	request.Action = "chat_message"
	request.Data.Node = chatID
	request.Data.LastMessage = -1
	request.Data.Content = text

	body, err := c.postRunner(ctx, objects, &request)
	if err != nil {
		return err
	}

	var decoded sendResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return fmt.Errorf("%w: decoding send response: %v", ErrMalformedResponse, err)
	}
	if decoded.Response == nil {
		return fmt.Errorf("%w: send response has no result", ErrMalformedResponse)
	}
	if decoded.Response.Error != nil {
		return fmt.Errorf("sending message to chat %d: %s", chatID, *decoded.Response.Error)
	}
	return nil
}

func (c *HTTPClient) postRunner(ctx context.Context, objects []runnerObject, request any) ([]byte, error) {
	objectsJSON, err := json.Marshal(objects)
	if err != nil {
		return nil, fmt.Errorf("encoding objects: %w", err)
	}
	requestJSON := []byte("false")
	if request != nil {
		if requestJSON, err = json.Marshal(request); err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
	}

	c.mu.RLock()
	csrf := c.csrfToken
	c.mu.RUnlock()

	form := url.Values{}
	form.Set("objects", string(objectsJSON))
	form.Set("request", string(requestJSON))
	form.Set("csrf_token", csrf)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+runnerPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	_, body, err := c.do(req)
	return body, err
}

// do sends the request with session headers and returns the body of a 200
// reply.
func (c *HTTPClient) do(req *http.Request) (*http.Response, []byte, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, nil, fmt.Errorf("rate limiter: %w", err)
	}

	c.mu.RLock()
	sessionID := c.sessionID
	c.mu.RUnlock()

	cookie := "golden_key=" + c.goldenKey
	if sessionID != "" {
		cookie += "; PHPSESSID=" + sessionID
	}
	req.Header.Set("Cookie", cookie)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("User-Agent", c.userAgent)

	c.logger.Debug("requesting", zap.String("method", req.Method), zap.String("url", req.URL.String()))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("executing request: %w", err)
	}

	body, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, nil, fmt.Errorf("reading response: %w", readErr)
	}

	c.logger.Debug("response",
		zap.String("url", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
	)

	if resp.StatusCode != http.StatusOK {
		return nil, nil, &StatusError{Code: resp.StatusCode, URL: req.URL.Path}
	}
	return resp, body, nil
}
