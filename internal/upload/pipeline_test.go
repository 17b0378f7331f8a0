package upload_test

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drivedrop/drivedrop/internal/drive"
	"github.com/drivedrop/drivedrop/internal/drive/drivetest"
	"github.com/drivedrop/drivedrop/internal/logging"
	"github.com/drivedrop/drivedrop/internal/session"
	"github.com/drivedrop/drivedrop/internal/upload"
)

// stubFetcher writes canned bytes per file ID and can be told to fail
// individual IDs.
type stubFetcher struct {
	content map[string][]byte
	fail    map[string]error
	fetched []string
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{content: make(map[string][]byte), fail: make(map[string]error)}
}

func (f *stubFetcher) Fetch(_ context.Context, fileID, path string) error {
	f.fetched = append(f.fetched, fileID)
	if err := f.fail[fileID]; err != nil {
		return err
	}
	return os.WriteFile(path, f.content[fileID], 0o600)
}

func textItem(n int) session.FileItem {
	return session.FileItem{FileID: fmt.Sprintf("tg-%d", n), Name: fmt.Sprintf("note%d.txt", n)}
}

func TestRunUploadsEveryItemInOrder(t *testing.T) {
	store := drivetest.NewStore("root", "Root")
	fetcher := newStubFetcher()
	items := []session.FileItem{textItem(1), textItem(2), textItem(3)}
	for _, it := range items {
		fetcher.content[it.FileID] = []byte("hello from " + it.Name)
	}
	p := upload.New(store, fetcher, logging.NewNop(), upload.WithStagingDir(t.TempDir()))

	results := p.Run(context.Background(), items, drive.Folder{ID: "root", Name: "Root"})

	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, items[i].Name, r.Name)
		assert.NoError(t, r.Err)
		assert.NotEmpty(t, r.ID)
		assert.NotEmpty(t, r.Link)
	}
	assert.Equal(t, []string{"note1.txt", "note2.txt", "note3.txt"}, store.Files("root"))
	assert.Equal(t, 3, store.UploadCalls)
}

func TestFetchFailureDoesNotAbortBatch(t *testing.T) {
	store := drivetest.NewStore("root", "Root")
	fetcher := newStubFetcher()
	items := []session.FileItem{textItem(1), textItem(2), textItem(3)}
	for _, it := range items {
		fetcher.content[it.FileID] = []byte("payload")
	}
	fetcher.fail["tg-2"] = fmt.Errorf("telegram: file expired")
	p := upload.New(store, fetcher, logging.NewNop(), upload.WithStagingDir(t.TempDir()))

	results := p.Run(context.Background(), items, drive.Folder{ID: "root"})

	require.Len(t, results, 3, "one result per item, even after a failure")
	assert.NoError(t, results[0].Err)
	require.Error(t, results[1].Err)
	assert.Contains(t, results[1].Err.Error(), "download")
	assert.NoError(t, results[2].Err)
	assert.Equal(t, 2, store.UploadCalls, "the failed item is never sent upstream")
	assert.Equal(t, []string{"note1.txt", "note3.txt"}, store.Files("root"))
}

func TestUploadFailureRecordedPerItem(t *testing.T) {
	store := drivetest.NewStore("root", "Root")
	store.FailUpload = &drive.APIError{Op: "files.create", Status: 403, Message: "quota exceeded"}
	fetcher := newStubFetcher()
	fetcher.content["tg-1"] = []byte("payload")
	p := upload.New(store, fetcher, logging.NewNop(), upload.WithStagingDir(t.TempDir()))

	results := p.Run(context.Background(), []session.FileItem{textItem(1)}, drive.Folder{ID: "root"})

	require.Len(t, results, 1)
	require.Error(t, results[0].Err)
	assert.Contains(t, results[0].Err.Error(), "quota exceeded")
	assert.Empty(t, store.Files("root"))
}

func TestStagingIsCleanedUpOnEveryPath(t *testing.T) {
	staging := t.TempDir()
	store := drivetest.NewStore("root", "Root")
	fetcher := newStubFetcher()
	fetcher.content["tg-1"] = []byte("payload")
	fetcher.fail["tg-2"] = fmt.Errorf("telegram: gone")
	p := upload.New(store, fetcher, logging.NewNop(), upload.WithStagingDir(staging))

	p.Run(context.Background(), []session.FileItem{textItem(1), textItem(2)}, drive.Folder{ID: "root"})

	entries, err := os.ReadDir(staging)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), "drivedrop-"),
			"staging directory %s left behind", e.Name())
	}
}

func TestDetectedContentTypeOverridesHint(t *testing.T) {
	store := drivetest.NewStore("root", "Root")
	fetcher := newStubFetcher()
	fetcher.content["tg-1"] = []byte("plain english text, clearly not a binary blob\n")
	p := upload.New(store, fetcher, logging.NewNop(), upload.WithStagingDir(t.TempDir()))

	item := textItem(1)
	item.MIME = "application/x-wrong-hint"
	p.Run(context.Background(), []session.FileItem{item}, drive.Folder{ID: "root"})

	assert.True(t, strings.HasPrefix(store.LastUploadMIME, "text/plain"),
		"sniffed %q", store.LastUploadMIME)
}

func TestHintUsedWhenSniffingIsInconclusive(t *testing.T) {
	store := drivetest.NewStore("root", "Root")
	fetcher := newStubFetcher()
	// Bytes no registered signature matches.
	fetcher.content["tg-1"] = []byte{0x00, 0x01, 0x02, 0x03, 0xff, 0xfe}
	p := upload.New(store, fetcher, logging.NewNop(), upload.WithStagingDir(t.TempDir()))

	item := session.FileItem{FileID: "tg-1", Name: "blob.bin", MIME: "application/vnd.custom"}
	p.Run(context.Background(), []session.FileItem{item}, drive.Folder{ID: "root"})

	assert.Equal(t, "application/vnd.custom", store.LastUploadMIME)
}

func TestStagingNameIsFlattened(t *testing.T) {
	store := drivetest.NewStore("root", "Root")
	fetcher := newStubFetcher()
	fetcher.content["tg-1"] = []byte("payload")
	p := upload.New(store, fetcher, logging.NewNop(), upload.WithStagingDir(t.TempDir()))

	item := session.FileItem{FileID: "tg-1", Name: "../../etc/passwd"}
	results := p.Run(context.Background(), []session.FileItem{item}, drive.Folder{ID: "root"})

	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Equal(t, []string{"passwd"}, store.Files("root"),
		"path separators in display names must not escape staging")
}
