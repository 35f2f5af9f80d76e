package domain

import "time"

// User is a registered account, as returned by the profile and
// online-users endpoints.
type User struct {
	ID            int64      `json:"id"`
	Username      string     `json:"username"`
	Nickname      string     `json:"nickname,omitempty"`
	StatusMessage string     `json:"status_message,omitempty"`
	ProfileImage  string     `json:"profile_image,omitempty"`
	Online        bool       `json:"online"`
	LastSeenAt    *time.Time `json:"last_seen_at,omitempty"`
}

// DisplayName returns the nickname, falling back to the username.
func (u User) DisplayName() string {
	if u.Nickname != "" {
		return u.Nickname
	}
	return u.Username
}

// UploadResult is the response from the file upload endpoint.
type UploadResult struct {
	Success     bool   `json:"success"`
	FilePath    string `json:"file_path"`
	FileName    string `json:"file_name"`
	UploadToken string `json:"upload_token,omitempty"`
	ScanStatus  string `json:"scan_status,omitempty"`
}

// PushPayload is an OS-notification payload delivered over the realtime
// channel for messages arriving in rooms the user is not viewing.
type PushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Tag   string `json:"tag,omitempty"`
	URL   string `json:"url,omitempty"`
}
