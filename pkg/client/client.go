package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"time"

	"github.com/huddlehq/huddle/pkg/domain"
)

// uploadTimeout bounds a single file upload. Uploads that exceed it
// surface as a normal request error, never hang the caller.
const uploadTimeout = 2 * time.Minute

// Client is the Huddle API client.
type Client struct {
	baseURL      string
	token        string
	csrfToken    string
	httpClient   *http.Client
	uploadClient *http.Client
}

// New creates a new API client.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		uploadClient: &http.Client{
			Timeout: uploadTimeout,
		},
	}
}

// SetToken replaces the session token (after login).
func (c *Client) SetToken(token string) {
	c.token = token
}

// SetCSRFToken sets the CSRF token attached to mutating requests.
// The server issues it with the session.
func (c *Client) SetCSRFToken(token string) {
	c.csrfToken = token
}

// BaseURL returns the configured API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// --- Auth ---

// LoginResult is the response from the login and session endpoints.
type LoginResult struct {
	Token     string      `json:"token"`
	CSRFToken string      `json:"csrf_token,omitempty"`
	User      domain.User `json:"user"`
}

// Login authenticates with username and password and returns the session.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	var res LoginResult
	body := map[string]string{"username": username, "password": password}
	if err := c.post(ctx, "/api/login", body, &res); err != nil {
		return nil, fmt.Errorf("client.Login: %w", err)
	}
	return &res, nil
}

// Register creates a new account.
func (c *Client) Register(ctx context.Context, username, password, nickname string) (*LoginResult, error) {
	var res LoginResult
	body := map[string]string{"username": username, "password": password, "nickname": nickname}
	if err := c.post(ctx, "/api/register", body, &res); err != nil {
		return nil, fmt.Errorf("client.Register: %w", err)
	}
	return &res, nil
}

// Logout invalidates the current session.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.post(ctx, "/api/logout", nil, nil); err != nil {
		return fmt.Errorf("client.Logout: %w", err)
	}
	return nil
}

// Session validates the stored token and returns the current user.
func (c *Client) Session(ctx context.Context) (*LoginResult, error) {
	var res LoginResult
	if err := c.get(ctx, "/api/session", &res); err != nil {
		return nil, fmt.Errorf("client.Session: %w", err)
	}
	return &res, nil
}

// --- Rooms ---

// ListRooms returns all rooms the user is a member of, including the
// room-scoped encryption keys.
func (c *Client) ListRooms(ctx context.Context) ([]domain.Room, error) {
	var rooms []domain.Room
	if err := c.get(ctx, "/api/rooms", &rooms); err != nil {
		return nil, fmt.Errorf("client.ListRooms: %w", err)
	}
	return rooms, nil
}

// CreateRoom creates a direct or group room with the given member user IDs.
func (c *Client) CreateRoom(ctx context.Context, roomType, name string, memberIDs []int64) (*domain.Room, error) {
	var room domain.Room
	body := map[string]any{"type": roomType, "name": name, "member_ids": memberIDs}
	if err := c.post(ctx, "/api/rooms", body, &room); err != nil {
		return nil, fmt.Errorf("client.CreateRoom: %w", err)
	}
	return &room, nil
}

// RenameRoom renames a group room.
func (c *Client) RenameRoom(ctx context.Context, roomID int64, name string) error {
	if err := c.doRequest(ctx, http.MethodPut, "/api/rooms/"+itoa(roomID)+"/name", map[string]string{"name": name}, nil); err != nil {
		return fmt.Errorf("client.RenameRoom: %w", err)
	}
	return nil
}

// PinRoom sets or clears the pinned flag on a room.
func (c *Client) PinRoom(ctx context.Context, roomID int64, pinned bool) error {
	if err := c.post(ctx, "/api/rooms/"+itoa(roomID)+"/pin", map[string]bool{"pinned": pinned}, nil); err != nil {
		return fmt.Errorf("client.PinRoom: %w", err)
	}
	return nil
}

// MuteRoom sets or clears the muted flag on a room.
func (c *Client) MuteRoom(ctx context.Context, roomID int64, muted bool) error {
	if err := c.post(ctx, "/api/rooms/"+itoa(roomID)+"/mute", map[string]bool{"muted": muted}, nil); err != nil {
		return fmt.Errorf("client.MuteRoom: %w", err)
	}
	return nil
}

// LeaveRoom removes the current user from a room.
func (c *Client) LeaveRoom(ctx context.Context, roomID int64) error {
	if err := c.post(ctx, "/api/rooms/"+itoa(roomID)+"/leave", nil, nil); err != nil {
		return fmt.Errorf("client.LeaveRoom: %w", err)
	}
	return nil
}

// RoomMembers returns the members of a room.
func (c *Client) RoomMembers(ctx context.Context, roomID int64) ([]domain.User, error) {
	var members []domain.User
	if err := c.get(ctx, "/api/rooms/"+itoa(roomID)+"/members", &members); err != nil {
		return nil, fmt.Errorf("client.RoomMembers: %w", err)
	}
	return members, nil
}

// InviteToRoom adds users to a group room.
func (c *Client) InviteToRoom(ctx context.Context, roomID int64, userIDs []int64) error {
	if err := c.post(ctx, "/api/rooms/"+itoa(roomID)+"/invite", map[string]any{"user_ids": userIDs}, nil); err != nil {
		return fmt.Errorf("client.InviteToRoom: %w", err)
	}
	return nil
}

// --- Messages ---

// messagesResponse wraps the message list endpoint payload.
type messagesResponse struct {
	Messages []domain.Message `json:"messages"`
}

// GetMessages returns messages in a room in ascending id order, newest
// page by default. When beforeID > 0, only messages with id strictly
// below it are returned (cursor pagination for older-message loading).
func (c *Client) GetMessages(ctx context.Context, roomID, beforeID int64, limit int) ([]domain.Message, error) {
	params := url.Values{}
	if beforeID > 0 {
		params.Set("before_id", strconv.FormatInt(beforeID, 10))
	}
	params.Set("limit", strconv.Itoa(limit))

	var res messagesResponse
	if err := c.get(ctx, "/api/rooms/"+itoa(roomID)+"/messages?"+params.Encode(), &res); err != nil {
		return nil, fmt.Errorf("client.GetMessages: %w", err)
	}
	return res.Messages, nil
}

// DeleteMessage deletes a message over HTTP. The realtime delete emit is
// preferred while connected; this is the REST fallback.
func (c *Client) DeleteMessage(ctx context.Context, messageID int64) error {
	if err := c.doRequest(ctx, http.MethodDelete, "/api/messages/"+itoa(messageID), nil, nil); err != nil {
		return fmt.Errorf("client.DeleteMessage: %w", err)
	}
	return nil
}

// ToggleReaction toggles an emoji reaction on a message.
func (c *Client) ToggleReaction(ctx context.Context, messageID int64, emoji string) error {
	if err := c.post(ctx, "/api/messages/"+itoa(messageID)+"/reactions", map[string]string{"emoji": emoji}, nil); err != nil {
		return fmt.Errorf("client.ToggleReaction: %w", err)
	}
	return nil
}

// --- Files ---

// UploadFile uploads a file for a room as multipart/form-data and
// returns the stored path plus a one-time upload token to attach to the
// send_message emit. A dedicated client enforces the upload timeout.
func (c *Client) UploadFile(ctx context.Context, roomID int64, fileName string, content io.Reader) (*domain.UploadResult, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filepath.Base(fileName))
	if err != nil {
		return nil, fmt.Errorf("client.UploadFile: create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("client.UploadFile: read file: %w", err)
	}
	if roomID > 0 {
		if err := w.WriteField("room_id", itoa(roomID)); err != nil {
			return nil, fmt.Errorf("client.UploadFile: write field: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("client.UploadFile: close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload", &buf)
	if err != nil {
		return nil, fmt.Errorf("client.UploadFile: create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	c.setAuthHeaders(req)

	resp, err := c.uploadClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client.UploadFile: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("client.UploadFile: %w", readHTTPError(resp))
	}
	var result domain.UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("client.UploadFile: decode response: %w", err)
	}
	return &result, nil
}

// --- Profile ---

// GetProfile returns the current user's profile.
func (c *Client) GetProfile(ctx context.Context) (*domain.User, error) {
	var u domain.User
	if err := c.get(ctx, "/api/profile", &u); err != nil {
		return nil, fmt.Errorf("client.GetProfile: %w", err)
	}
	return &u, nil
}

// UpdateProfile updates nickname and status message.
func (c *Client) UpdateProfile(ctx context.Context, nickname, statusMessage string) error {
	body := map[string]string{"nickname": nickname, "status_message": statusMessage}
	if err := c.doRequest(ctx, http.MethodPut, "/api/profile", body, nil); err != nil {
		return fmt.Errorf("client.UpdateProfile: %w", err)
	}
	return nil
}

// UploadProfileImage uploads a new profile image and attaches it to the
// profile.
func (c *Client) UploadProfileImage(ctx context.Context, fileName string, content io.Reader) (*domain.UploadResult, error) {
	res, err := c.UploadFile(ctx, 0, fileName, content)
	if err != nil {
		return nil, fmt.Errorf("client.UploadProfileImage: %w", err)
	}
	if err := c.post(ctx, "/api/profile/image", map[string]string{"file_path": res.FilePath}, nil); err != nil {
		return nil, fmt.Errorf("client.UploadProfileImage: %w", err)
	}
	return res, nil
}

// DeleteProfileImage removes the profile image.
func (c *Client) DeleteProfileImage(ctx context.Context) error {
	if err := c.doRequest(ctx, http.MethodDelete, "/api/profile/image", nil, nil); err != nil {
		return fmt.Errorf("client.DeleteProfileImage: %w", err)
	}
	return nil
}

// OnlineUsers returns all users with their online flag set.
func (c *Client) OnlineUsers(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	if err := c.get(ctx, "/api/users/online", &users); err != nil {
		return nil, fmt.Errorf("client.OnlineUsers: %w", err)
	}
	return users, nil
}

// --- plumbing ---

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func (c *Client) setAuthHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.csrfToken != "" && req.Method != http.MethodGet {
		req.Header.Set("X-CSRF-Token", c.csrfToken)
	}
}

func readHTTPError(resp *http.Response) error {
	var path string
	if resp.Request != nil && resp.Request.URL != nil {
		path = resp.Request.URL.Path
	}
	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB max error body
	if readErr != nil {
		return &HTTPError{StatusCode: resp.StatusCode, Path: path, Message: fmt.Sprintf("failed to read body: %v", readErr)}
	}
	var apiErr struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
		return &HTTPError{StatusCode: resp.StatusCode, Path: path, Message: apiErr.Error}
	}
	return &HTTPError{StatusCode: resp.StatusCode, Path: path, Message: string(respBody)}
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	return c.doRequest(ctx, http.MethodPost, path, body, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.doRequest(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode >= 400 {
		return readHTTPError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
