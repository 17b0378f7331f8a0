package drive

import (
	"context"
	"fmt"
)

// MIMEFolder is the Drive type marker for folders.
const MIMEFolder = "application/vnd.google-apps.folder"

// Folder is an opaque reference into the remote folder tree.
// Two folders are the same iff their IDs are equal; Name is a
// cached display name and carries no identity.
type Folder struct {
	ID   string
	Name string
}

// Meta is the metadata of a remote file or folder.
type Meta struct {
	ID     string
	Name   string
	Parent string // empty when the object has no visible parent
}

// UploadResult describes a file created by UploadFile.
type UploadResult struct {
	ID   string
	Name string
	Link string // shareable link, may be empty
}

// ListOptions narrows a ListChildren call.
type ListOptions struct {
	Name        string // exact name filter, empty for all
	FoldersOnly bool
	PageSize    int
}

// Store is the remote object-store boundary. Every call is blocking
// and may fail with *APIError; callers treat such failures as fatal
// to the current operation but never to the process.
type Store interface {
	ListChildren(ctx context.Context, parentID string, opts ListOptions) ([]Folder, error)
	GetMetadata(ctx context.Context, id string) (Meta, error)
	CreateFolder(ctx context.Context, parentID, name string) (Folder, error)
	UploadFile(ctx context.Context, parentID, localPath, mimeType string) (UploadResult, error)
	DeleteFile(ctx context.Context, id string) error
}

// APIError is a failure reported by the remote store.
type APIError struct {
	Op      string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("drive %s: %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("drive %s: %s", e.Op, e.Message)
}
