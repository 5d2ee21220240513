package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"sync/atomic"

	"admissions-portal/internal/uploads"
)

type uploadResponse struct {
	ID        string `json:"id"`
	Path      string `json:"path"`
	URL       string `json:"url"`
	FileName  string `json:"fileName"`
	SizeBytes int64  `json:"sizeBytes"`
	MimeType  string `json:"mimeType"`
}

// Upload streams one file to POST /api/upload/{endpoint} as multipart form
// data and reports progress as bytes leave the client.
func (c *Client) Upload(ctx context.Context, req uploads.UploadRequest) (uploads.RemoteRef, error) {
	endpoint := req.Slot.Endpoint
	if endpoint == "" {
		endpoint = req.Slot.Name
	}
	if req.Body == nil {
		return uploads.RemoteRef{}, errors.New("upload: nil body")
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	counter := &countingReader{r: req.Body, total: req.Size, report: req.Progress}

	go func() {
		pw.CloseWithError(writeMultipart(mw, req.FileName, req.Fields, counter))
	}()

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/api/upload/"+url.PathEscape(endpoint), pr)
	if err != nil {
		pr.CloseWithError(err)
		return uploads.RemoteRef{}, fmt.Errorf("%s: %w", opUpload, err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		pr.CloseWithError(err)
		return uploads.RemoteRef{}, fmt.Errorf("%s: %w", opUpload, err)
	}
	defer resp.Body.Close()
	pr.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return uploads.RemoteRef{}, decodeError(opUpload, resp)
	}
	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return uploads.RemoteRef{}, fmt.Errorf("%s: decode response: %w", opUpload, err)
	}
	if out.ID == "" {
		return uploads.RemoteRef{}, fmt.Errorf("%s: response missing id", opUpload)
	}
	return uploads.RemoteRef{
		DocumentID: out.ID,
		Path:       out.Path,
		URL:        out.URL,
		FileName:   out.FileName,
		SizeBytes:  out.SizeBytes,
	}, nil
}

// Delete removes a stored document. A 404 means it is already gone.
func (c *Client) Delete(ctx context.Context, ref uploads.RemoteRef) error {
	if ref.DocumentID == "" {
		return errors.New("delete: missing document id")
	}
	path := "/api/applications/documents/" + url.PathEscape(ref.DocumentID)
	err := c.doJSON(ctx, opDelete, http.MethodDelete, path, nil, nil)
	if IsStatus(err, http.StatusNotFound) {
		return nil
	}
	return err
}

func writeMultipart(mw *multipart.Writer, fileName string, fields map[string]string, body io.Reader) error {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := mw.WriteField(k, fields[k]); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, body); err != nil {
		return err
	}
	return mw.Close()
}

type countingReader struct {
	r      io.Reader
	total  int64
	sent   atomic.Int64
	report func(sent, total int64)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 && c.report != nil {
		c.report(c.sent.Add(int64(n)), c.total)
	}
	return n, err
}

var _ uploads.Transport = (*Client)(nil)
