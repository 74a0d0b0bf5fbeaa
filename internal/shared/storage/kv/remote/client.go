package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"resumind/internal/shared/storage/kv"
)

const maxResponseBytes = 8 << 20

// Backend talks to a hosted key-value service over JSON/HTTP.
//
//	GET    {base}/ns/{ns}/keys/{key}               -> {"value": "..."} | 404
//	PUT    {base}/ns/{ns}/keys/{key}  {"value":..} -> 2xx
//	GET    {base}/ns/{ns}/keys?pattern=&expand=    -> ["k", ...] | [{"key":..,"value":..}, ...]
//	DELETE {base}/ns/{ns}                          -> 2xx
type Backend struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New builds a Backend for baseURL. token is sent as a bearer credential when set.
func New(baseURL, token string, timeout time.Duration) (*Backend, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("KV_REMOTE_URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse KV_REMOTE_URL: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Backend{
		baseURL:    baseURL,
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Namespace returns a Store scoped to ns.
func (b *Backend) Namespace(ns string) kv.Store {
	return &Store{backend: b, nsPath: b.baseURL + "/ns/" + url.PathEscape(ns)}
}

// Store implements kv.Store against one remote namespace.
type Store struct {
	backend *Backend
	nsPath  string
}

type valueBody struct {
	Value json.RawMessage `json:"value"`
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	status, body, err := s.backend.do(ctx, http.MethodGet, s.keyURL(key), nil)
	if err != nil {
		return "", false, err
	}
	if status == http.StatusNotFound {
		return "", false, nil
	}
	if status >= 300 {
		return "", false, statusError("get", status, body)
	}

	var parsed valueBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", false, fmt.Errorf("kv remote get decode: %w", err)
	}
	if len(parsed.Value) == 0 || string(parsed.Value) == "null" {
		return "", false, nil
	}
	var str string
	if err := json.Unmarshal(parsed.Value, &str); err == nil {
		return str, true, nil
	}
	// Non-string values are returned in serialized form.
	return string(parsed.Value), true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	payload, err := json.Marshal(map[string]string{"value": value})
	if err != nil {
		return err
	}
	status, body, err := s.backend.do(ctx, http.MethodPut, s.keyURL(key), payload)
	if err != nil {
		return err
	}
	if status >= 300 {
		return statusError("set", status, body)
	}
	return nil
}

func (s *Store) List(ctx context.Context, pattern string, expand bool) (kv.ListResult, error) {
	q := url.Values{}
	q.Set("pattern", pattern)
	q.Set("expand", strconv.FormatBool(expand))
	status, body, err := s.backend.do(ctx, http.MethodGet, s.nsPath+"/keys?"+q.Encode(), nil)
	if err != nil {
		return kv.ListResult{}, err
	}
	if status >= 300 {
		return kv.ListResult{}, statusError("list", status, body)
	}
	return kv.DecodeListResult(body)
}

func (s *Store) Flush(ctx context.Context) error {
	status, body, err := s.backend.do(ctx, http.MethodDelete, s.nsPath, nil)
	if err != nil {
		return err
	}
	if status >= 300 && status != http.StatusNotFound {
		return statusError("flush", status, body)
	}
	return nil
}

func (s *Store) keyURL(key string) string {
	return s.nsPath + "/keys/" + url.PathEscape(key)
}

func (b *Backend) do(ctx context.Context, method, target string, payload []byte) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
			return 0, nil, fmt.Errorf("kv remote request timeout: %w", err)
		}
		return 0, nil, fmt.Errorf("kv remote request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("kv remote read: %w", err)
	}
	return resp.StatusCode, body, nil
}

func statusError(op string, status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return fmt.Errorf("kv remote %s http status %d: %s", op, status, msg)
}

var (
	_ kv.Store      = (*Store)(nil)
	_ kv.Namespaces = (*Backend)(nil)
)
