// Package drivetest provides an in-memory drive.Store for tests.
package drivetest

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/drivedrop/drivedrop/internal/drive"
)

type node struct {
	id     string
	name   string
	parent string
	folder bool
	mime   string
}

// Store is an in-memory folder tree implementing drive.Store.
// Calls can be made to fail per operation via the Fail* fields.
type Store struct {
	mu     sync.Mutex
	nodes  map[string]*node
	order  []string // insertion order, so listings are deterministic
	nextID int

	// Counters for asserting call behavior.
	ListCalls   int
	CreateCalls int
	UploadCalls int

	// LastUploadMIME records the content type of the most recent
	// UploadFile call.
	LastUploadMIME string

	// When set, the matching operation fails with this error.
	FailList   error
	FailGet    error
	FailCreate error
	FailUpload error
}

// NewStore creates a Store containing only the given root folder.
func NewStore(rootID, rootName string) *Store {
	return &Store{
		nodes: map[string]*node{
			rootID: {id: rootID, name: rootName, folder: true},
		},
		order: []string{rootID},
	}
}

// AddFolder inserts a folder under parentID and returns its handle.
func (s *Store) AddFolder(parentID, name string) drive.Folder {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.add(parentID, name, true, drive.MIMEFolder)
	return drive.Folder{ID: n.id, Name: n.name}
}

// Files returns the names of non-folder children of parentID.
func (s *Store) Files(parentID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for _, id := range s.order {
		if n, ok := s.nodes[id]; ok && n.parent == parentID && !n.folder {
			names = append(names, n.name)
		}
	}
	return names
}

// FolderCount returns the number of folders in the tree, root included.
func (s *Store) FolderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, n := range s.nodes {
		if n.folder {
			count++
		}
	}
	return count
}

func (s *Store) ListChildren(_ context.Context, parentID string, opts drive.ListOptions) ([]drive.Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ListCalls++
	if s.FailList != nil {
		return nil, s.FailList
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	var out []drive.Folder
	for _, id := range s.order {
		n, ok := s.nodes[id]
		if !ok {
			continue
		}
		if n.parent != parentID {
			continue
		}
		if opts.FoldersOnly && !n.folder {
			continue
		}
		if opts.Name != "" && n.name != opts.Name {
			continue
		}
		out = append(out, drive.Folder{ID: n.id, Name: n.name})
		if len(out) == pageSize {
			break
		}
	}
	return out, nil
}

func (s *Store) GetMetadata(_ context.Context, id string) (drive.Meta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailGet != nil {
		return drive.Meta{}, s.FailGet
	}
	n, ok := s.nodes[id]
	if !ok {
		return drive.Meta{}, &drive.APIError{Op: "files.get", Status: 404, Message: "not found"}
	}
	return drive.Meta{ID: n.id, Name: n.name, Parent: n.parent}, nil
}

func (s *Store) CreateFolder(_ context.Context, parentID, name string) (drive.Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CreateCalls++
	if s.FailCreate != nil {
		return drive.Folder{}, s.FailCreate
	}
	n := s.add(parentID, name, true, drive.MIMEFolder)
	return drive.Folder{ID: n.id, Name: n.name}, nil
}

func (s *Store) UploadFile(_ context.Context, parentID, localPath, mimeType string) (drive.UploadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UploadCalls++
	s.LastUploadMIME = mimeType
	if s.FailUpload != nil {
		return drive.UploadResult{}, s.FailUpload
	}
	n := s.add(parentID, filepath.Base(localPath), false, mimeType)
	return drive.UploadResult{
		ID:   n.id,
		Name: n.name,
		Link: "https://drive.example/" + n.id,
	}, nil
}

func (s *Store) DeleteFile(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[id]; !ok {
		return &drive.APIError{Op: "files.delete", Status: 404, Message: "not found"}
	}
	delete(s.nodes, id)
	return nil
}

func (s *Store) add(parentID, name string, folder bool, mime string) *node {
	s.nextID++
	n := &node{
		id:     fmt.Sprintf("node-%d", s.nextID),
		name:   name,
		parent: parentID,
		folder: folder,
		mime:   mime,
	}
	s.nodes[n.id] = n
	s.order = append(s.order, n.id)
	return n
}
