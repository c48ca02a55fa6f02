package memoryapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"memory-filter/internal/domain"
)

const (
	DefaultFetchTimeout = 5 * time.Second
	DefaultPostTimeout  = 10 * time.Second

	maxResponseBytes = 4 << 20
)

var (
	// ErrTransport cubre fallas de red, timeouts y respuestas no 2xx.
	ErrTransport = errors.New("memory service request failed")
	// ErrMalformedResponse indica un body de fetch que no se pudo interpretar.
	ErrMalformedResponse = errors.New("memory service malformed response")
)

// Client define las dos operaciones contra el Memory Service.
type Client interface {
	Fetch(ctx context.Context, userID, excludeChatID string) (string, error)
	Post(ctx context.Context, userID string, pair domain.TurnPair, chatID string) error
}

var defaultHTTPClient = &http.Client{
	Transport: otelhttp.NewTransport(http.DefaultTransport),
}

// HTTPClient implementa Client contra la API HTTP del Memory Service.
type HTTPClient struct {
	baseURL      string
	apiKey       string
	fetchTimeout time.Duration
	postTimeout  time.Duration
	client       *http.Client
	logger       *zap.Logger
}

type Option func(*HTTPClient)

func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) {
		if c != nil {
			h.client = c
		}
	}
}

func WithTimeouts(fetch, post time.Duration) Option {
	return func(h *HTTPClient) {
		if fetch > 0 {
			h.fetchTimeout = fetch
		}
		if post > 0 {
			h.postTimeout = post
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(h *HTTPClient) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHTTPClient construye un cliente apuntando a baseURL. Cada llamada hace
// un único intento acotado por su timeout.
func NewHTTPClient(baseURL, apiKey string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL:      strings.TrimSpace(baseURL),
		apiKey:       strings.TrimSpace(apiKey),
		fetchTimeout: DefaultFetchTimeout,
		postTimeout:  DefaultPostTimeout,
		client:       defaultHTTPClient,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch obtiene la memoria del usuario como bloque XML, excluyendo la
// conversación excludeChatID si se indica. Un body sin campo "xml" es memoria vacía.
func (c *HTTPClient) Fetch(ctx context.Context, userID, excludeChatID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	endpoint := FetchURL(c.baseURL, userID, excludeChatID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("%w: create request: %w", ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %w", ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("memory fetch error status",
			zap.Int("status", resp.StatusCode),
			zap.String("body", snippet(body)),
		)
		return "", fmt.Errorf("%w: status=%d", ErrTransport, resp.StatusCode)
	}

	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("%w: invalid JSON body", ErrMalformedResponse)
	}
	parsed := gjson.ParseBytes(body)
	if !parsed.IsObject() {
		return "", fmt.Errorf("%w: expected JSON object", ErrMalformedResponse)
	}
	xml := parsed.Get("xml")
	switch xml.Type {
	case gjson.String:
		return xml.Str, nil
	case gjson.Null:
		return "", nil
	default:
		return "", fmt.Errorf("%w: field xml is not a string", ErrMalformedResponse)
	}
}

// Post persiste un par usuario/asistente. El body de la respuesta no se inspecciona.
func (c *HTTPClient) Post(ctx context.Context, userID string, pair domain.TurnPair, chatID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.postTimeout)
	defer cancel()

	bodyBytes, err := json.Marshal(domain.NewMemoryRecord(userID, pair, chatID))
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("%w: create request: %w", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.logger.Warn("memory post error status",
			zap.Int("status", resp.StatusCode),
			zap.String("body", snippet(body)),
		)
		return fmt.Errorf("%w: status=%d", ErrTransport, resp.StatusCode)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	return nil
}

func (c *HTTPClient) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// FetchURL arma GET {base}/{userID}?excludeChatId={chatID}; el query se omite
// si no hay chatID.
func FetchURL(baseURL, userID, excludeChatID string) string {
	endpoint := JoinURL(baseURL, url.PathEscape(userID))
	if excludeChatID == "" {
		return endpoint
	}
	q := url.Values{}
	q.Set("excludeChatId", excludeChatID)
	return endpoint + "?" + q.Encode()
}

// JoinURL une base y path con una sola barra entre ambos.
func JoinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

func snippet(b []byte) string {
	const limit = 256
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
