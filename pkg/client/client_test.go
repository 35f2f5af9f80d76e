package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/huddlehq/huddle/pkg/domain"
)

func TestLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/login" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req["username"] != "jkim" || req["password"] != "hunter2" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid credentials"}) //nolint:errcheck
			return
		}
		json.NewEncoder(w).Encode(LoginResult{ //nolint:errcheck
			Token:     "sess-token",
			CSRFToken: "csrf-token",
			User:      domain.User{ID: 7, Username: "jkim", Nickname: "June"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	res, err := c.Login(context.Background(), "jkim", "hunter2")
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if res.Token != "sess-token" {
		t.Errorf("Token = %q, want %q", res.Token, "sess-token")
	}
	if res.User.Nickname != "June" {
		t.Errorf("User.Nickname = %q, want %q", res.User.Nickname, "June")
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid credentials"}) //nolint:errcheck
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	_, err := c.Login(context.Background(), "jkim", "wrong")
	if err == nil {
		t.Fatal("expected error for bad credentials")
	}
	if !IsStatus(err, 401) {
		t.Errorf("IsStatus(err, 401) = false, err = %v", err)
	}
	if got := err.Error(); !strings.Contains(got, "invalid credentials") {
		t.Errorf("error = %q, want it to contain the server message", got)
	}
}

func TestListRooms(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/rooms" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "not authenticated"}) //nolint:errcheck
			return
		}
		rooms := []domain.Room{
			{ID: 1, Type: domain.RoomGroup, Name: "platform-team", EncryptionKey: "k1"},
			{ID: 2, Type: domain.RoomDirect, Partner: &domain.User{Username: "mlee"}},
		}
		json.NewEncoder(w).Encode(rooms) //nolint:errcheck
	}))
	defer srv.Close()

	c := New(srv.URL, "test-token")
	rooms, err := c.ListRooms(context.Background())
	if err != nil {
		t.Fatalf("ListRooms() error: %v", err)
	}
	if len(rooms) != 2 {
		t.Fatalf("got %d rooms, want 2", len(rooms))
	}
	if rooms[0].EncryptionKey != "k1" {
		t.Errorf("rooms[0].EncryptionKey = %q, want %q", rooms[0].EncryptionKey, "k1")
	}
}

func TestGetMessages_CursorParams(t *testing.T) {
	var gotBefore, gotLimit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/rooms/42/messages" {
			http.NotFound(w, r)
			return
		}
		gotBefore = r.URL.Query().Get("before_id")
		gotLimit = r.URL.Query().Get("limit")
		json.NewEncoder(w).Encode(messagesResponse{Messages: []domain.Message{ //nolint:errcheck
			{ID: 98, RoomID: 42, Content: "older"},
			{ID: 99, RoomID: 42, Content: "old"},
		}})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	msgs, err := c.GetMessages(context.Background(), 42, 100, 30)
	if err != nil {
		t.Fatalf("GetMessages() error: %v", err)
	}
	if gotBefore != "100" {
		t.Errorf("before_id param = %q, want %q", gotBefore, "100")
	}
	if gotLimit != "30" {
		t.Errorf("limit param = %q, want %q", gotLimit, "30")
	}
	if len(msgs) != 2 || msgs[0].ID != 98 {
		t.Errorf("unexpected messages: %+v", msgs)
	}
}

func TestGetMessages_NoCursorOmitsBeforeID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("before_id") {
			t.Errorf("before_id should be omitted for the initial load, got %q", r.URL.Query().Get("before_id"))
		}
		json.NewEncoder(w).Encode(messagesResponse{}) //nolint:errcheck
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	if _, err := c.GetMessages(context.Background(), 42, 0, 50); err != nil {
		t.Fatalf("GetMessages() error: %v", err)
	}
}

func TestCSRFTokenOnMutatingRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			if r.Header.Get("X-CSRF-Token") != "" {
				t.Error("GET request should not carry a CSRF token")
			}
			json.NewEncoder(w).Encode([]domain.Room{}) //nolint:errcheck
		default:
			if r.Header.Get("X-CSRF-Token") != "csrf-1" {
				t.Errorf("X-CSRF-Token = %q, want %q", r.Header.Get("X-CSRF-Token"), "csrf-1")
			}
			json.NewEncoder(w).Encode(map[string]bool{"success": true}) //nolint:errcheck
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	c.SetCSRFToken("csrf-1")
	if _, err := c.ListRooms(context.Background()); err != nil {
		t.Fatalf("ListRooms() error: %v", err)
	}
	if err := c.PinRoom(context.Background(), 1, true); err != nil {
		t.Fatalf("PinRoom() error: %v", err)
	}
}

func TestUploadFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/upload" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.FormValue("room_id") != "5" {
			t.Errorf("room_id field = %q, want %q", r.FormValue("room_id"), "5")
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close() //nolint:errcheck
		if hdr.Filename != "notes.txt" {
			t.Errorf("filename = %q, want %q", hdr.Filename, "notes.txt")
		}
		json.NewEncoder(w).Encode(domain.UploadResult{ //nolint:errcheck
			Success:     true,
			FilePath:    "/uploads/notes.txt",
			FileName:    "notes.txt",
			UploadToken: "up-1",
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	res, err := c.UploadFile(context.Background(), 5, "/tmp/some/dir/notes.txt", strings.NewReader("minutes"))
	if err != nil {
		t.Fatalf("UploadFile() error: %v", err)
	}
	if !res.Success || res.UploadToken != "up-1" {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestUploadFile_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		json.NewEncoder(w).Encode(domain.UploadResult{Success: true}) //nolint:errcheck
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	c.uploadClient.Timeout = 50 * time.Millisecond
	_, err := c.UploadFile(context.Background(), 1, "a.txt", strings.NewReader("x"))
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestNonJSONErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>502 Bad Gateway</html>")) //nolint:errcheck
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	_, err := c.ListRooms(context.Background())
	if err == nil {
		t.Fatal("expected error for 502 response")
	}
	if !IsStatus(err, 502) {
		t.Errorf("IsStatus(err, 502) = false, err = %v", err)
	}
	if got := err.Error(); !strings.Contains(got, "502") {
		t.Errorf("error = %q, want it to contain the status code", got)
	}
	if got := err.Error(); !strings.Contains(got, "/api/rooms") {
		t.Errorf("error = %q, want it to name the failing endpoint", got)
	}
}
