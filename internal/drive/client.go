package drive

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://www.googleapis.com"

// Client implements Store against the Drive v3 REST API.
type Client struct {
	rc      *resty.Client
	limiter *rate.Limiter
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint. Used in tests.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.rc.SetBaseURL(url) }
}

// WithRateLimit caps outbound requests per second. Non-positive
// values leave the client unlimited.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), int(rps)+1)
		}
	}
}

// NewClient creates a Drive client authenticated by src. Requests
// retry transient failures at the transport layer before surfacing
// an *APIError.
func NewClient(src oauth2.TokenSource, opts ...Option) *Client {
	retry := retryablehttp.NewClient()
	retry.RetryMax = 3
	retry.RetryWaitMin = 1 * time.Second
	retry.RetryWaitMax = 30 * time.Second
	retry.Logger = nil

	var transport http.RoundTripper = &retryablehttp.RoundTripper{Client: retry}
	if src != nil {
		transport = &oauth2.Transport{Source: src, Base: transport}
	}

	rc := resty.New().
		SetBaseURL(defaultBaseURL).
		SetTimeout(2 * time.Minute).
		SetHeader("User-Agent", "drivedrop/1.0")
	rc.SetTransport(transport)

	c := &Client{
		rc:      rc,
		limiter: rate.NewLimiter(rate.Inf, 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type fileResource struct {
	ID          string   `json:"id,omitempty"`
	Name        string   `json:"name,omitempty"`
	MimeType    string   `json:"mimeType,omitempty"`
	Parents     []string `json:"parents,omitempty"`
	WebViewLink string   `json:"webViewLink,omitempty"`
}

type fileList struct {
	Files []fileResource `json:"files"`
}

// ListChildren returns the non-trashed children of parentID, in the
// order the store reports them. No ordering is guaranteed.
func (c *Client) ListChildren(ctx context.Context, parentID string, opts ListOptions) ([]Folder, error) {
	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}

	terms := []string{
		fmt.Sprintf("'%s' in parents", escapeQuery(parentID)),
		"trashed=false",
	}
	if opts.FoldersOnly {
		terms = append(terms, fmt.Sprintf("mimeType='%s'", MIMEFolder))
	}
	if opts.Name != "" {
		terms = append(terms, fmt.Sprintf("name='%s'", escapeQuery(opts.Name)))
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	resp, err := req.
		SetQueryParam("q", strings.Join(terms, " and ")).
		SetQueryParam("fields", "files(id,name)").
		SetQueryParam("pageSize", strconv.Itoa(pageSize)).
		Get("/drive/v3/files")
	if err != nil {
		return nil, &APIError{Op: "files.list", Message: err.Error()}
	}
	if resp.IsError() {
		return nil, apiError("files.list", resp)
	}

	var list fileList
	if err := sonic.Unmarshal(resp.Body(), &list); err != nil {
		return nil, &APIError{Op: "files.list", Message: fmt.Sprintf("decode response: %v", err)}
	}

	folders := make([]Folder, 0, len(list.Files))
	for _, f := range list.Files {
		folders = append(folders, Folder{ID: f.ID, Name: f.Name})
	}
	return folders, nil
}

// GetMetadata returns the name and parent of a remote object.
func (c *Client) GetMetadata(ctx context.Context, id string) (Meta, error) {
	req, err := c.request(ctx)
	if err != nil {
		return Meta{}, err
	}

	resp, err := req.
		SetQueryParam("fields", "id,name,parents").
		Get("/drive/v3/files/" + id)
	if err != nil {
		return Meta{}, &APIError{Op: "files.get", Message: err.Error()}
	}
	if resp.IsError() {
		return Meta{}, apiError("files.get", resp)
	}

	var res fileResource
	if err := sonic.Unmarshal(resp.Body(), &res); err != nil {
		return Meta{}, &APIError{Op: "files.get", Message: fmt.Sprintf("decode response: %v", err)}
	}

	meta := Meta{ID: res.ID, Name: res.Name}
	if len(res.Parents) > 0 {
		meta.Parent = res.Parents[0]
	}
	return meta, nil
}

// CreateFolder creates a folder named name under parentID.
func (c *Client) CreateFolder(ctx context.Context, parentID, name string) (Folder, error) {
	req, err := c.request(ctx)
	if err != nil {
		return Folder{}, err
	}

	body, err := sonic.Marshal(fileResource{
		Name:     name,
		MimeType: MIMEFolder,
		Parents:  []string{parentID},
	})
	if err != nil {
		return Folder{}, &APIError{Op: "files.create", Message: err.Error()}
	}

	resp, err := req.
		SetHeader("Content-Type", "application/json").
		SetQueryParam("fields", "id,name").
		SetBody(body).
		Post("/drive/v3/files")
	if err != nil {
		return Folder{}, &APIError{Op: "files.create", Message: err.Error()}
	}
	if resp.IsError() {
		return Folder{}, apiError("files.create", resp)
	}

	var res fileResource
	if err := sonic.Unmarshal(resp.Body(), &res); err != nil {
		return Folder{}, &APIError{Op: "files.create", Message: fmt.Sprintf("decode response: %v", err)}
	}
	return Folder{ID: res.ID, Name: res.Name}, nil
}

// UploadFile uploads the file at localPath into parentID using a
// resumable transfer: one request opens the upload session, a second
// sends the bytes. Partial network failures are retried by the
// transport without restarting the session.
func (c *Client) UploadFile(ctx context.Context, parentID, localPath, mimeType string) (UploadResult, error) {
	req, err := c.request(ctx)
	if err != nil {
		return UploadResult{}, err
	}

	meta, err := sonic.Marshal(fileResource{
		Name:    filepath.Base(localPath),
		Parents: []string{parentID},
	})
	if err != nil {
		return UploadResult{}, &APIError{Op: "files.upload", Message: err.Error()}
	}

	resp, err := req.
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Upload-Content-Type", mimeType).
		SetQueryParam("uploadType", "resumable").
		SetQueryParam("fields", "id,name,webViewLink").
		SetBody(meta).
		Post("/upload/drive/v3/files")
	if err != nil {
		return UploadResult{}, &APIError{Op: "files.upload", Message: err.Error()}
	}
	if resp.IsError() {
		return UploadResult{}, apiError("files.upload", resp)
	}

	location := resp.Header().Get("Location")
	if location == "" {
		return UploadResult{}, &APIError{Op: "files.upload", Message: "no resumable session location"}
	}

	// The transport caps downloads at 20 MB per file, so buffering
	// the staged bytes is bounded.
	data, err := os.ReadFile(localPath)
	if err != nil {
		return UploadResult{}, &APIError{Op: "files.upload", Message: fmt.Sprintf("read staged file: %v", err)}
	}

	req, err = c.request(ctx)
	if err != nil {
		return UploadResult{}, err
	}
	resp, err = req.
		SetHeader("Content-Type", mimeType).
		SetBody(data).
		Put(location)
	if err != nil {
		return UploadResult{}, &APIError{Op: "files.upload", Message: err.Error()}
	}
	if resp.IsError() {
		return UploadResult{}, apiError("files.upload", resp)
	}

	var res fileResource
	if err := sonic.Unmarshal(resp.Body(), &res); err != nil {
		return UploadResult{}, &APIError{Op: "files.upload", Message: fmt.Sprintf("decode response: %v", err)}
	}
	return UploadResult{ID: res.ID, Name: res.Name, Link: res.WebViewLink}, nil
}

// DeleteFile permanently removes a remote object.
func (c *Client) DeleteFile(ctx context.Context, id string) error {
	req, err := c.request(ctx)
	if err != nil {
		return err
	}

	resp, err := req.Delete("/drive/v3/files/" + id)
	if err != nil {
		return &APIError{Op: "files.delete", Message: err.Error()}
	}
	if resp.IsError() {
		return apiError("files.delete", resp)
	}
	return nil
}

// request waits for the rate limiter and prepares a request bound to ctx.
func (c *Client) request(ctx context.Context) (*resty.Request, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &APIError{Op: "rate", Message: err.Error()}
	}
	return c.rc.R().SetContext(ctx), nil
}

// escapeQuery escapes a value for embedding in a Drive q-string.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func apiError(op string, resp *resty.Response) *APIError {
	var body apiErrorBody
	if err := sonic.Unmarshal(resp.Body(), &body); err == nil && body.Error.Message != "" {
		return &APIError{Op: op, Status: resp.StatusCode(), Message: body.Error.Message}
	}
	return &APIError{Op: op, Status: resp.StatusCode(), Message: resp.Status()}
}
