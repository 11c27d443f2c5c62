// authclient — Go-клиент auth-сервиса с координатором обновления токенов.
//
// Координатор схлопывает N одновременных отказов 401 в ОДИН запрос
// /auth/refresh: первый отказавший запрос становится лидером и выполняет
// refresh, остальные встают в очередь ожидания и получают новый access-токен
// в порядке постановки. Каждый исходный запрос повторяется ровно один раз
// с токеном не старше разблокировавшего его refresh.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ErrNoSession — в хранилище нет refresh-токена; нужен Login.
var ErrNoSession = errors.New("authclient: no stored session")

// ErrAuthLost — refresh отклонён сервером; сессия завершена, хранилище очищено.
var ErrAuthLost = errors.New("authclient: session expired")

// APIError — ошибка из унифицированного конверта сервиса.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("authclient: %s (%d %s)", e.Message, e.Status, e.Code)
}

// User — представление пользователя в ответах auth-эндпойнтов.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	Enabled     bool   `json:"enabled"`
	CreatedAt   int64  `json:"created_at"`
}

// AuthResponse — ответ register/login/refresh.
type AuthResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	User         User   `json:"user"`
}

type refreshResult struct {
	access string
	err    error
}

// Client — HTTP-клиент auth-сервиса.
//
// Потокобезопасен: состояние координатора (refreshing, waiters) защищено
// мьютексом, сам refresh выполняется вне критической секции.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      TokenStore

	// onAuthLost вызывается ровно один раз на каждый терминальный отказ
	// refresh (аналог редиректа на экран логина).
	onAuthLost func()

	mu         sync.Mutex
	refreshing bool
	waiters    []chan refreshResult
}

// Option настраивает Client.
type Option func(*Client)

// WithHTTPClient подменяет низкоуровневый http.Client (таймауты, транспорт).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithOnAuthLost устанавливает обработчик терминальной потери сессии.
func WithOnAuthLost(fn func()) Option {
	return func(c *Client) { c.onAuthLost = fn }
}

// New создает клиент auth-сервиса поверх TokenStore.
func New(baseURL string, store TokenStore, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		store:      store,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Login выполняет вход и сохраняет пару токенов в TokenStore.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	body := map[string]string{"email": email, "password": password}

	var out AuthResponse
	if err := c.postJSON(ctx, "/auth/login", body, &out, ""); err != nil {
		return nil, err
	}

	if err := c.store.Save(out.AccessToken, out.RefreshToken); err != nil {
		return nil, fmt.Errorf("authclient: save tokens: %w", err)
	}

	return &out, nil
}

// Register регистрирует аккаунт по инвайт-коду и сохраняет пару токенов.
func (c *Client) Register(ctx context.Context, email, password, displayName, inviteCode string) (*AuthResponse, error) {
	body := map[string]string{
		"email":        email,
		"password":     password,
		"display_name": displayName,
		"invite_code":  inviteCode,
	}

	var out AuthResponse
	if err := c.postJSON(ctx, "/auth/register", body, &out, ""); err != nil {
		return nil, err
	}

	if err := c.store.Save(out.AccessToken, out.RefreshToken); err != nil {
		return nil, fmt.Errorf("authclient: save tokens: %w", err)
	}

	return &out, nil
}

// Logout отзывает серверные refresh-токены и очищает локальное хранилище.
// Локальное хранилище очищается даже при ошибке серверного вызова.
func (c *Client) Logout(ctx context.Context) error {
	access, _ := c.store.Tokens()

	var callErr error
	if access != "" {
		callErr = c.postJSON(ctx, "/auth/logout", nil, nil, access)
	}

	if err := c.store.Clear(); err != nil {
		return fmt.Errorf("authclient: clear tokens: %w", err)
	}

	return callErr
}

// DoJSON выполняет аутентифицированный запрос к API.
//
// Поведение при 401: запрос проходит через координатор refresh и повторяется
// ровно один раз с новым access-токеном. Тело запроса сериализуется заново
// на каждую попытку, поэтому повтор безопасен.
func (c *Client) DoJSON(ctx context.Context, method, path string, in, out any) error {
	access, _ := c.store.Tokens()

	status, err := c.roundTrip(ctx, method, path, in, out, access)
	if err != nil {
		return err
	}

	if status != http.StatusUnauthorized {
		return nil
	}

	// 401: один refresh на событие истечения, затем одна повторная попытка.
	newAccess, err := c.refreshAccess(ctx)
	if err != nil {
		return err
	}

	status, err = c.roundTrip(ctx, method, path, in, out, newAccess)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized {
		return &APIError{Status: status, Code: "invalid_token", Message: "unauthorized after refresh"}
	}

	return nil
}

// refreshAccess — единственная точка обновления токенов (single-flight).
//
// Лидер выполняет сетевой вызов вне мьютекса; ожидающие получают результат
// через буферизованные каналы в порядке постановки в очередь, так что лидер
// не блокируется на ушедших (отменённых) ожидающих.
func (c *Client) refreshAccess(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.refreshing {
		ch := make(chan refreshResult, 1)
		c.waiters = append(c.waiters, ch)
		c.mu.Unlock()

		select {
		case res := <-ch:
			return res.access, res.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	c.refreshing = true
	c.mu.Unlock()

	access, err := c.doRefresh(ctx)

	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.refreshing = false
	c.mu.Unlock()

	// FIFO: порядок постановки в очередь.
	for _, ch := range waiters {
		ch <- refreshResult{access: access, err: err}
	}

	return access, err
}

// doRefresh выполняет сам вызов /auth/refresh.
//
// Токены сохраняются в TokenStore ДО раздачи результата ожидающим.
// Терминальный отказ сервера (4xx) завершает сессию: хранилище очищается,
// вызывается onAuthLost. Транзиентные ошибки (сеть, 5xx) сессию НЕ трогают.
func (c *Client) doRefresh(ctx context.Context) (string, error) {
	_, refresh := c.store.Tokens()
	if refresh == "" {
		return "", ErrNoSession
	}

	var out AuthResponse
	err := c.postJSON(ctx, "/auth/refresh", map[string]string{"refresh_token": refresh}, &out, "")
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
			_ = c.store.Clear()
			if c.onAuthLost != nil {
				c.onAuthLost()
			}
			return "", fmt.Errorf("%w: %v", ErrAuthLost, err)
		}

		return "", err
	}

	if err := c.store.Save(out.AccessToken, out.RefreshToken); err != nil {
		return "", fmt.Errorf("authclient: save tokens: %w", err)
	}

	return out.AccessToken, nil
}

// postJSON — вызов без участия координатора (login/register/refresh/logout).
func (c *Client) postJSON(ctx context.Context, path string, in, out any, bearer string) error {
	status, err := c.roundTrip(ctx, http.MethodPost, path, in, out, bearer)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		return &APIError{Status: status, Code: "invalid_token", Message: "unauthorized"}
	}
	return nil
}

// roundTrip выполняет одну HTTP-попытку.
// Возвращает (401, nil) вместо ошибки, чтобы вызывающий решил про retry;
// остальные не-2xx статусы приходят как *APIError.
func (c *Client) roundTrip(ctx context.Context, method, path string, in, out any, bearer string) (int, error) {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("authclient: marshal request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("authclient: build request: %w", err)
	}

	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("authclient: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// Дочитываем тело, чтобы соединение вернулось в пул.
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}

	if resp.StatusCode >= 400 {
		return resp.StatusCode, decodeAPIError(resp)
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("authclient: decode response: %w", err)
		}
	}

	return resp.StatusCode, nil
}

func decodeAPIError(resp *http.Response) error {
	var envelope struct {
		Error APIError `json:"error"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil || envelope.Error.Code == "" {
		return &APIError{Status: resp.StatusCode, Code: "internal", Message: http.StatusText(resp.StatusCode)}
	}

	apiErr := envelope.Error
	apiErr.Status = resp.StatusCode
	return &apiErr
}
