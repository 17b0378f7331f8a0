package drive_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drivedrop/drivedrop/internal/drive"
)

func TestListChildrenBuildsQuery(t *testing.T) {
	var gotQuery, gotPageSize string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/drive/v3/files", r.URL.Path)
		gotQuery = r.URL.Query().Get("q")
		gotPageSize = r.URL.Query().Get("pageSize")
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"files":[{"id":"f1","name":"Invoices"},{"id":"f2","name":"Photos"}]}`)
	}))
	defer srv.Close()

	client := drive.NewClient(nil, drive.WithBaseURL(srv.URL))
	folders, err := client.ListChildren(context.Background(), "root", drive.ListOptions{
		Name:        "Bob's Files",
		FoldersOnly: true,
		PageSize:    7,
	})
	require.NoError(t, err)

	assert.Equal(t, []drive.Folder{{ID: "f1", Name: "Invoices"}, {ID: "f2", Name: "Photos"}}, folders)
	assert.Contains(t, gotQuery, "'root' in parents")
	assert.Contains(t, gotQuery, "trashed=false")
	assert.Contains(t, gotQuery, "mimeType='application/vnd.google-apps.folder'")
	assert.Contains(t, gotQuery, `name='Bob\'s Files'`)
	assert.Equal(t, "7", gotPageSize)
}

func TestGetMetadataParsesParent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/drive/v3/files/abc", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"abc","name":"Taxes","parents":["root"]}`)
	}))
	defer srv.Close()

	client := drive.NewClient(nil, drive.WithBaseURL(srv.URL))
	meta, err := client.GetMetadata(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, drive.Meta{ID: "abc", Name: "Taxes", Parent: "root"}, meta)
}

func TestCreateFolderSendsMetadata(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/drive/v3/files", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"new1","name":"2025"}`)
	}))
	defer srv.Close()

	client := drive.NewClient(nil, drive.WithBaseURL(srv.URL))
	folder, err := client.CreateFolder(context.Background(), "parent1", "2025")
	require.NoError(t, err)

	assert.Equal(t, drive.Folder{ID: "new1", Name: "2025"}, folder)
	assert.Equal(t, "2025", gotBody["name"])
	assert.Equal(t, drive.MIMEFolder, gotBody["mimeType"])
	assert.Equal(t, []interface{}{"parent1"}, gotBody["parents"])
}

func TestUploadFileResumableTwoStep(t *testing.T) {
	staged := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, os.WriteFile(staged, []byte("%PDF-1.4 fake"), 0o600))

	var sessionOpened bool
	var gotBytes []byte
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/upload/drive/v3/files", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "resumable", r.URL.Query().Get("uploadType"))
		require.Equal(t, "application/pdf", r.Header.Get("X-Upload-Content-Type"))
		sessionOpened = true
		w.Header().Set("Location", srv.URL+"/upload/session/xyz")
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/upload/session/xyz", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "application/pdf", r.Header.Get("Content-Type"))
		var err error
		gotBytes, err = io.ReadAll(r.Body)
		require.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"file9","name":"report.pdf","webViewLink":"https://drive.example/file9"}`)
	})

	client := drive.NewClient(nil, drive.WithBaseURL(srv.URL))
	result, err := client.UploadFile(context.Background(), "dest1", staged, "application/pdf")
	require.NoError(t, err)

	assert.True(t, sessionOpened)
	assert.Equal(t, []byte("%PDF-1.4 fake"), gotBytes)
	assert.Equal(t, drive.UploadResult{ID: "file9", Name: "report.pdf", Link: "https://drive.example/file9"}, result)
}

func TestDeleteFile(t *testing.T) {
	var deleted string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		deleted = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := drive.NewClient(nil, drive.WithBaseURL(srv.URL))
	require.NoError(t, client.DeleteFile(context.Background(), "gone1"))
	assert.Equal(t, "/drive/v3/files/gone1", deleted)
}

func TestRemoteErrorsBecomeAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":{"message":"File not found: nope"}}`)
	}))
	defer srv.Close()

	client := drive.NewClient(nil, drive.WithBaseURL(srv.URL))
	_, err := client.GetMetadata(context.Background(), "nope")
	require.Error(t, err)

	var apiErr *drive.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.Status)
	assert.Equal(t, "File not found: nope", apiErr.Message)
	assert.Equal(t, "files.get", apiErr.Op)
}
