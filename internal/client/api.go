package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	stdhttp "net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vovakirdan/kinchat-server/internal/proto"
)

// APIError is a non-2xx REST response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// User is the public part of an account.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Friend is one friendship as listed by the server.
type Friend struct {
	ID             int64  `json:"id"`
	UserID         int64  `json:"user_id"`
	FriendID       int64  `json:"friend_id"`
	Status         string `json:"status"`
	FriendUsername string `json:"friend_username"`
	Online         bool   `json:"online"`
}

type historyMessage struct {
	ID         string    `json:"id"`
	SenderID   int64     `json:"sender_id"`
	ReceiverID int64     `json:"receiver_id"`
	Text       string    `json:"text"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"created_at"`
}

// API talks to the REST side of the server.
type API struct {
	baseURL string
	http    *stdhttp.Client

	mu    sync.RWMutex
	token string
}

// NewAPI builds a REST client for baseURL (for example http://localhost:8080).
// A nil httpClient selects a client with a 10s timeout.
func NewAPI(baseURL string, httpClient *stdhttp.Client) *API {
	if httpClient == nil {
		httpClient = &stdhttp.Client{Timeout: 10 * time.Second}
	}
	return &API{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// SetToken sets the bearer token used for protected routes.
func (a *API) SetToken(token string) {
	a.mu.Lock()
	a.token = token
	a.mu.Unlock()
}

// Token returns the current bearer token.
func (a *API) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

// Register creates an account and keeps the issued token.
func (a *API) Register(ctx context.Context, username, password string) (*AuthResult, error) {
	return a.authenticate(ctx, "/api/register", username, password)
}

// Login signs in and keeps the issued token.
func (a *API) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	return a.authenticate(ctx, "/api/login", username, password)
}

func (a *API) authenticate(ctx context.Context, path, username, password string) (*AuthResult, error) {
	var res AuthResult
	body := map[string]string{"username": username, "password": password}
	if err := a.do(ctx, stdhttp.MethodPost, path, body, &res); err != nil {
		return nil, err
	}
	a.SetToken(res.Token)
	return &res, nil
}

// History fetches the conversation with peerID in creation order. The server
// marks the peer's messages read as a side effect. limit <= 0 uses the server
// default; a zero before fetches the newest page.
func (a *API) History(ctx context.Context, peerID int64, limit int, before time.Time) ([]proto.Message, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if !before.IsZero() {
		q.Set("before", strconv.FormatInt(before.UnixMilli(), 10))
	}
	path := "/api/messages/" + strconv.FormatInt(peerID, 10)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var raw []historyMessage
	if err := a.do(ctx, stdhttp.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	out := make([]proto.Message, 0, len(raw))
	for _, m := range raw {
		out = append(out, proto.Message{
			ID:         m.ID,
			SenderID:   m.SenderID,
			ReceiverID: m.ReceiverID,
			Text:       m.Text,
			Read:       m.Read,
			CreatedAt:  m.CreatedAt.UnixMilli(),
		})
	}
	return out, nil
}

// MarkRead flags a received message as read on the server.
func (a *API) MarkRead(ctx context.Context, messageID string) error {
	return a.do(ctx, stdhttp.MethodPut, "/api/messages/"+url.PathEscape(messageID)+"/read", nil, nil)
}

// Friends lists accepted friendships.
func (a *API) Friends(ctx context.Context) ([]Friend, error) {
	var out []Friend
	if err := a.do(ctx, stdhttp.MethodGet, "/api/friends", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// OnlineFriends returns the IDs of friends connected right now.
func (a *API) OnlineFriends(ctx context.Context) ([]int64, error) {
	var out []int64
	if err := a.do(ctx, stdhttp.MethodGet, "/api/friends/online", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SendFriendRequest asks userID to become a friend.
func (a *API) SendFriendRequest(ctx context.Context, userID int64) error {
	return a.do(ctx, stdhttp.MethodPost, "/api/friends/requests", map[string]int64{"user_id": userID}, nil)
}

// AcceptFriend accepts a pending request from userID.
func (a *API) AcceptFriend(ctx context.Context, userID int64) error {
	return a.do(ctx, stdhttp.MethodPost, "/api/friends/"+strconv.FormatInt(userID, 10)+"/accept", nil, nil)
}

func (a *API) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := stdhttp.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := a.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = stdhttp.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
