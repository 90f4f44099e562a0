package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrDuplicate is returned when a document with the same name was already
// uploaded.
var ErrDuplicate = errors.New("document already exists")

var uploadTypes = map[string]string{
	".pdf":  "application/pdf",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// UploadTypes lists the file extensions the server accepts.
func UploadTypes() []string {
	return []string{".pdf", ".jpg", ".jpeg", ".png"}
}

type Upload struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	Filename    string `json:"filename"`
	Summary     string `json:"summary"`
	DocumentID  any    `json:"document_id"`
	StoragePath string `json:"storage_path"`
}

// ID returns the document id as text. The server sends it as a number or a
// string depending on the storage backend.
func (u Upload) ID() string {
	switch v := u.DocumentID.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprint(v)
	}
}

// UploadFile sends a document for text extraction and storage.
func (c *Client) UploadFile(ctx context.Context, path string) (Upload, error) {
	ext := strings.ToLower(filepath.Ext(path))
	ctype, ok := uploadTypes[ext]
	if !ok {
		return Upload{}, fmt.Errorf("unsupported file type %q: use one of %s", ext, strings.Join(UploadTypes(), ", "))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Upload{}, err
	}
	return c.upload(ctx, filepath.Base(path), ctype, data)
}

// writeForm writes data as the single "file" part of a multipart form and
// returns the form's content type.
func writeForm(w io.Writer, name, ctype string, data []byte) (string, error) {
	writer := multipart.NewWriter(w)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	h.Set("Content-Type", ctype)
	part, err := writer.CreatePart(h)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("closing form: %w", err)
	}
	return writer.FormDataContentType(), nil
}

func (c *Client) upload(ctx context.Context, name, ctype string, data []byte) (Upload, error) {
	var body bytes.Buffer
	formType, err := writeForm(&body, name, ctype, data)
	if err != nil {
		return Upload{}, err
	}

	resp, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/upload-file",
		body:        &body,
		contentType: formType,
		auth:        true,
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusConflict || strings.Contains(apiErr.Detail, "already exists")) {
			return Upload{}, fmt.Errorf("%s: %w", name, ErrDuplicate)
		}
		return Upload{}, err
	}

	var u Upload
	if err := unmarshal(resp, &u); err != nil {
		return Upload{}, err
	}
	return u, nil
}

type IndexProgress struct {
	DocumentsEmbedded int `json:"documents_embedded"`
	TotalDocuments    int `json:"total_documents"`
}

type IndexResult struct {
	Message         string        `json:"message"`
	LastIndexedTime string        `json:"last_indexed_time"`
	TotalDocuments  int           `json:"total_documents"`
	Progress        IndexProgress `json:"progress_info"`
}

// StartIndexing rebuilds the search index over the user's documents. The
// call blocks until the server finishes.
func (c *Client) StartIndexing(ctx context.Context) (IndexResult, error) {
	var r IndexResult
	err := c.doJSON(ctx, http.MethodPost, "/start-indexing", nil, &r, true)
	return r, err
}

// DownloadDocument saves the original file of a cited document into dir and
// returns its path.
func (c *Client) DownloadDocument(ctx context.Context, id, dir string) (string, error) {
	if id == "" {
		return "", errors.New("empty document id")
	}
	resp, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/download-document/" + url.PathEscape(id),
		auth:   true,
	})
	if err != nil {
		return "", err
	}

	name := attachmentName(resp.Header.Get("Content-Disposition"))
	if name == "" {
		name = "document-" + id
		if exts, _ := mime.ExtensionsByType(resp.Header.Get("Content-Type")); len(exts) > 0 {
			name += exts[0]
		}
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, resp.Body, 0644); err != nil {
		return "", err
	}
	return path, nil
}

func attachmentName(disposition string) string {
	if disposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		// the server does not quote filenames, so spaces break strict parsing
		_, after, ok := strings.Cut(disposition, "filename=")
		if !ok {
			return ""
		}
		params = map[string]string{"filename": strings.Trim(after, `"' `)}
	}
	name := filepath.Base(params["filename"])
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}

// OpenDocument hands a downloaded file to the platform's default viewer.
func OpenDocument(path string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	go cmd.Wait()
	return nil
}

// DeleteDocument removes a document and its stored original.
func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("empty document id")
	}
	return c.doJSON(ctx, http.MethodDelete, "/delete-document/"+url.PathEscape(id), nil, nil, true)
}

type Health struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
	Error    string            `json:"error"`
}

func (h Health) OK() bool { return h.Status == "healthy" }

// Health reports the server's own view of its dependencies. A degraded or
// unhealthy server is not an error; only an unreachable one is.
func (c *Client) Health(ctx context.Context) (Health, error) {
	resp, err := c.do(ctx, request{method: http.MethodGet, path: "/health"})
	var h Health
	if resp != nil {
		if perr := unmarshal(resp, &h); perr == nil {
			return h, nil
		}
	}
	if err != nil {
		return h, err
	}
	return h, fmt.Errorf("/health: unexpected response")
}

func unmarshal(resp *TracedResponse, v any) error {
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return fmt.Errorf("response parse error: %w", err)
	}
	return nil
}
