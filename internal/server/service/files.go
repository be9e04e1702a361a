package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"mime"
	"path/filepath"
	"time"

	"filevault/internal/server/store"
	"filevault/internal/server/storage"
)

// Sentinel errors for file operations.
var (
	ErrFileNotFound      = errors.New("file not found")
	ErrDuplicateFile     = errors.New("duplicate file exists")
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrSelfTransfer      = errors.New("cannot transfer to yourself")
	ErrAlreadyOwned      = errors.New("recipient already has this file")
	ErrFileTooLarge      = errors.New("file exceeds maximum allowed size")
)

// FileService implements upload, listing, download, deletion and ownership
// transfer. The per-user index is the sole source of truth for who can act
// on which blob; blobs themselves are shared across indexes after transfers
// and tracked by the reference ledger.
type FileService struct {
	users       *store.UserStore
	index       *store.IndexStore
	blobs       storage.BlobStore
	refs        *storage.RefCounter
	maxFileSize int64
	uploadDelay time.Duration
}

// NewFileService creates a new file service. uploadDelay is applied after an
// upload's metadata is persisted and before returning, purely to pace the
// caller's UI; zero disables it.
func NewFileService(users *store.UserStore, index *store.IndexStore, blobs storage.BlobStore, refs *storage.RefCounter, maxFileSize int64, uploadDelay time.Duration) *FileService {
	return &FileService{
		users:       users,
		index:       index,
		blobs:       blobs,
		refs:        refs,
		maxFileSize: maxFileSize,
		uploadDelay: uploadDelay,
	}
}

// TransferSummary reports the outcome of a bulk transfer.
type TransferSummary struct {
	Transferred int
	Skipped     int
}

// Message renders the summary in the wire format callers expect.
func (t TransferSummary) Message() string {
	return fmt.Sprintf("%d file(s) transferred. %d skipped.", t.Transferred, t.Skipped)
}

// Upload stores a new blob for owner and appends its record to the owner's
// index. An exact (name, size) match against the owner's existing records
// fails with ErrDuplicateFile and discards the stored blob.
func (s *FileService) Upload(ctx context.Context, owner, name, mimeType string, size int64, data io.Reader) (store.FileRecord, error) {
	if s.maxFileSize > 0 && size > s.maxFileSize {
		return store.FileRecord{}, ErrFileTooLarge
	}

	id, err := newFileID(name)
	if err != nil {
		return store.FileRecord{}, err
	}

	written, err := s.blobs.Save(id, data)
	if err != nil {
		return store.FileRecord{}, fmt.Errorf("failed to store blob: %w", err)
	}

	record := store.FileRecord{
		ID:         id,
		Name:       name,
		Size:       written,
		MimeType:   resolveMimeType(mimeType, name),
		UploadedAt: time.Now().UTC(),
		Owner:      owner,
	}

	// The duplicate check runs inside the index update so it is serialized
	// with concurrent uploads by the same owner.
	err = s.index.Update(owner, func(records []store.FileRecord) ([]store.FileRecord, error) {
		for _, r := range records {
			if r.Name == record.Name && r.Size == record.Size {
				return nil, ErrDuplicateFile
			}
		}
		return append(records, record), nil
	})
	if err != nil {
		if delErr := s.blobs.Delete(id); delErr != nil {
			slog.Error("failed to discard rejected blob", "blob_id", id, "error", delErr)
		}
		return store.FileRecord{}, err
	}

	if _, err := s.refs.Retain(id); err != nil {
		slog.Error("failed to record blob reference", "blob_id", id, "error", err)
	}

	slog.Info("upload processed", "owner", owner, "blob_id", id, "name", name, "size", written)

	// Deliberate post-persist pacing for the caller's UI.
	if s.uploadDelay > 0 {
		select {
		case <-time.After(s.uploadDelay):
		case <-ctx.Done():
		}
	}

	return record, nil
}

// List returns the owner's file records in insertion order.
func (s *FileService) List(ctx context.Context, owner string) ([]store.FileRecord, error) {
	return s.index.List(owner)
}

// Open returns the record and a streaming reader for a blob the owner holds.
// Fails with ErrFileNotFound when the record is not in the owner's index or
// the blob is missing on disk. The caller must close the reader.
func (s *FileService) Open(ctx context.Context, owner, id string) (store.FileRecord, io.ReadCloser, error) {
	records, err := s.index.List(owner)
	if err != nil {
		return store.FileRecord{}, nil, err
	}

	record, ok := findRecord(records, id)
	if !ok {
		return store.FileRecord{}, nil, ErrFileNotFound
	}

	rc, err := s.blobs.Open(id)
	if err != nil {
		slog.Error("blob missing for indexed record", "owner", owner, "blob_id", id, "error", err)
		return store.FileRecord{}, nil, ErrFileNotFound
	}
	return record, rc, nil
}

// Delete removes the record from the owner's index and releases the blob
// reference; the blob itself is only unlinked once nothing references it.
func (s *FileService) Delete(ctx context.Context, owner, id string) error {
	record, err := s.index.Remove(owner, id)
	if err != nil {
		if errors.Is(err, store.ErrFileNotFound) {
			return ErrFileNotFound
		}
		return err
	}

	remaining, err := s.refs.Release(id)
	if err != nil {
		return fmt.Errorf("failed to release blob reference: %w", err)
	}
	if remaining > 0 {
		slog.Info("file deleted, blob still referenced", "owner", owner, "blob_id", id, "remaining", remaining)
		return nil
	}

	if err := s.blobs.Delete(id); err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}

	slog.Info("file deleted", "owner", owner, "blob_id", id, "name", record.Name)
	return nil
}

// Transfer copies one file record from sender to the user registered under
// recipientEmail, rewriting the owner field. The sender keeps their copy and
// both records share the same blob. Returns a confirmation naming the file.
func (s *FileService) Transfer(ctx context.Context, sender, fileID, recipientEmail string) (string, error) {
	senderFiles, err := s.index.List(sender)
	if err != nil {
		return "", err
	}
	record, ok := findRecord(senderFiles, fileID)
	if !ok {
		return "", ErrFileNotFound
	}

	recipient, err := s.resolveRecipient(sender, recipientEmail)
	if err != nil {
		return "", err
	}

	err = s.index.Update(recipient, func(records []store.FileRecord) ([]store.FileRecord, error) {
		for _, r := range records {
			if r.ID == record.ID && r.Name == record.Name {
				return nil, ErrAlreadyOwned
			}
		}
		copied := record
		copied.Owner = recipient
		return append(records, copied), nil
	})
	if err != nil {
		return "", err
	}

	if _, err := s.refs.Retain(record.ID); err != nil {
		slog.Error("failed to record blob reference", "blob_id", record.ID, "error", err)
	}

	slog.Info("file transferred", "sender", sender, "recipient", recipient, "blob_id", record.ID)
	return fmt.Sprintf("File %q transferred successfully.", record.Name), nil
}

// TransferBulk copies multiple records to the recipient in one pass. Ids not
// present in the sender's index are skipped silently; records the recipient
// already holds count as skipped. The batch never fails partway: once the
// recipient resolves, the result is always a summary.
func (s *FileService) TransferBulk(ctx context.Context, sender string, fileIDs []string, recipientEmail string) (TransferSummary, error) {
	recipient, err := s.resolveRecipient(sender, recipientEmail)
	if err != nil {
		return TransferSummary{}, err
	}

	senderFiles, err := s.index.List(sender)
	if err != nil {
		return TransferSummary{}, err
	}

	var summary TransferSummary
	var copiedIDs []string

	err = s.index.Update(recipient, func(records []store.FileRecord) ([]store.FileRecord, error) {
		for _, fileID := range fileIDs {
			record, ok := findRecord(senderFiles, fileID)
			if !ok {
				continue
			}
			if hasRecord(records, record.ID, record.Name) {
				summary.Skipped++
				continue
			}
			copied := record
			copied.Owner = recipient
			records = append(records, copied)
			copiedIDs = append(copiedIDs, record.ID)
			summary.Transferred++
		}
		return records, nil
	})
	if err != nil {
		return TransferSummary{}, err
	}

	for _, id := range copiedIDs {
		if _, err := s.refs.Retain(id); err != nil {
			slog.Error("failed to record blob reference", "blob_id", id, "error", err)
		}
	}

	slog.Info("bulk transfer complete",
		"sender", sender,
		"recipient", recipient,
		"transferred", summary.Transferred,
		"skipped", summary.Skipped,
	)
	return summary, nil
}

// resolveRecipient maps an email to a username and rejects self-transfers.
func (s *FileService) resolveRecipient(sender, recipientEmail string) (string, error) {
	recipient, err := s.users.FindUsernameByEmail(recipientEmail)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return "", ErrRecipientNotFound
		}
		return "", err
	}
	if recipient == sender {
		return "", ErrSelfTransfer
	}
	return recipient, nil
}

// newFileID builds an opaque id from the upload time, a random suffix and
// the original extension, e.g. "file-1712345678901-042885371.png". The same
// shape older data files use, so existing blobs keep resolving.
func newFileID(name string) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000_000))
	if err != nil {
		return "", fmt.Errorf("crypto/rand failure: %w", err)
	}
	ext := filepath.Ext(name)
	return fmt.Sprintf("file-%d-%09d%s", time.Now().UnixMilli(), n.Int64(), ext), nil
}

// resolveMimeType prefers the client-declared type, then the extension, then
// the generic fallback.
func resolveMimeType(declared, name string) string {
	if declared != "" {
		return declared
	}
	if byExt := mime.TypeByExtension(filepath.Ext(name)); byExt != "" {
		return byExt
	}
	return "application/octet-stream"
}

func findRecord(records []store.FileRecord, id string) (store.FileRecord, bool) {
	for _, r := range records {
		if r.ID == id {
			return r, true
		}
	}
	return store.FileRecord{}, false
}

func hasRecord(records []store.FileRecord, id, name string) bool {
	for _, r := range records {
		if r.ID == id && r.Name == name {
			return true
		}
	}
	return false
}
