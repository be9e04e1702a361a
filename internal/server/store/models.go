package store

import "time"

// UserRecord is one entry in the users database. The JSON field names match
// the existing users.json layout, so data written by older deployments loads
// unchanged. Password holds a bcrypt hash, never the raw password.
type UserRecord struct {
	Password string `json:"password"`
	Email    string `json:"email"`
	Mobile   string `json:"mobile"`
}

// FileRecord describes one uploaded blob as it appears in a user's file index.
type FileRecord struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"mimetype"`
	UploadedAt time.Time `json:"uploadedAt"`
	Owner      string    `json:"owner"`
}
