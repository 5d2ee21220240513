package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"admissions-portal/internal/shared/telemetry"
	"admissions-portal/internal/uploads"
)

func TestMain(m *testing.M) {
	telemetry.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := New(Options{BaseURL: srv.URL, Token: "tok"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestNewRequiresBaseURLAndIdentity(t *testing.T) {
	t.Parallel()
	if _, err := New(Options{Token: "x"}); err == nil {
		t.Fatalf("expected error without base url")
	}
	if _, err := New(Options{BaseURL: "http://localhost"}); err == nil {
		t.Fatalf("expected error without token or guest id")
	}
	if _, err := New(Options{BaseURL: "http://localhost", GuestID: "g1"}); err != nil {
		t.Fatalf("guest client: %v", err)
	}
}

func TestCreateApplication(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/applications" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization = %q", got)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body["firstName"] != "Ada" {
			t.Errorf("unexpected body %v", body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"app-1","status":"DOCUMENTS_PENDING"}`))
	})

	app, err := client.CreateApplication(context.Background(), map[string]string{"firstName": "Ada"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if app.ID != "app-1" || app.Status != "DOCUMENTS_PENDING" {
		t.Fatalf("unexpected application %+v", app)
	}
}

func TestErrorBodies(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		status  int
		body    string
		message string
		user    string
	}{
		"flat":        {status: 409, body: `{"error":"Vous avez déjà une candidature"}`, message: "Vous avez déjà une candidature", user: "Vous avez déjà une candidature"},
		"nested":      {status: 400, body: `{"error":{"code":"invalid_input","message":"Email invalide"}}`, message: "Email invalide", user: "Email invalide"},
		"empty":       {status: 500, body: ``, message: "", user: MessageCreateFailed},
		"not json":    {status: 502, body: `<html>bad gateway</html>`, message: "", user: MessageCreateFailed},
		"top message": {status: 400, body: `{"message":"nope"}`, message: "nope", user: "nope"},
	}
	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := client.CreateApplication(context.Background(), map[string]string{})
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %v", err)
			}
			if apiErr.Status != tc.status || apiErr.Message != tc.message {
				t.Fatalf("unexpected error %+v", apiErr)
			}
			if apiErr.UserMessage() != tc.user {
				t.Fatalf("user message = %q, want %q", apiErr.UserMessage(), tc.user)
			}
		})
	}
}

func TestUploadStreamsMultipartAndReportsProgress(t *testing.T) {
	t.Parallel()
	payload := bytes.Repeat([]byte("a"), 64*1024)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/upload/cv" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		if r.FormValue("firstName") != "Ada" || r.FormValue("lastName") != "Lovelace" {
			t.Errorf("missing fields: %v", r.MultipartForm.Value)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if header.Filename != "cv.pdf" || len(data) != len(payload) {
			t.Errorf("unexpected file %s (%d bytes)", header.Filename, len(data))
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"doc-1","path":"u/doc-1_cv.pdf","url":"http://files/doc-1","fileName":"cv.pdf","sizeBytes":65536}`))
	})

	var mu sync.Mutex
	var reports []int64
	ref, err := client.Upload(context.Background(), uploads.UploadRequest{
		Slot:     uploads.Slot{Name: "cv", Endpoint: "cv"},
		FileName: "cv.pdf",
		Size:     int64(len(payload)),
		Body:     bytes.NewReader(payload),
		Fields:   map[string]string{"firstName": "Ada", "lastName": "Lovelace"},
		Progress: func(sent, total int64) {
			mu.Lock()
			reports = append(reports, sent)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	want := uploads.RemoteRef{DocumentID: "doc-1", Path: "u/doc-1_cv.pdf", URL: "http://files/doc-1", FileName: "cv.pdf", SizeBytes: 65536}
	if diff := cmp.Diff(want, ref); diff != "" {
		t.Fatalf("ref mismatch (-want +got):\n%s", diff)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(reports) == 0 || reports[len(reports)-1] != int64(len(payload)) {
		t.Fatalf("expected final progress at %d, got %v", len(payload), reports)
	}
	for i := 1; i < len(reports); i++ {
		if reports[i] <= reports[i-1] {
			t.Fatalf("progress not increasing: %v", reports)
		}
	}
}

func TestUploadFailureCarriesServerMessage(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"unsupported_type","message":"Seuls les fichiers PDF sont acceptés"}}`))
	})
	_, err := client.Upload(context.Background(), uploads.UploadRequest{
		Slot:     uploads.Slot{Name: "cv"},
		FileName: "cv.pdf",
		Size:     3,
		Body:     strings.NewReader("abc"),
	})
	var um uploads.UserMessager
	if !errors.As(err, &um) || um.UserMessage() != "Seuls les fichiers PDF sont acceptés" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestDeleteTreatsNotFoundAsSuccess(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		status  int
		wantErr bool
	}{
		"deleted":   {status: http.StatusNoContent},
		"not found": {status: http.StatusNotFound},
		"forbidden": {status: http.StatusForbidden, wantErr: true},
	}
	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodDelete || r.URL.Path != "/api/applications/documents/doc-9" {
					t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
				}
				w.WriteHeader(tc.status)
			})
			err := client.Delete(context.Background(), uploads.RemoteRef{DocumentID: "doc-9"})
			if (err != nil) != tc.wantErr {
				t.Fatalf("Delete err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestAttachDocuments(t *testing.T) {
	t.Parallel()
	var got AttachRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/api/applications/app-1/documents" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"id":"app-1","status":"PENDING"}`))
	})

	req := NewAttachRequest([]string{"cv", "identity"}, map[string][]uploads.RemoteRef{
		"identity": {{DocumentID: "d2", Path: "p2", URL: "u2"}},
	})
	app, err := client.AttachDocuments(context.Background(), "app-1", req)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if app.Status != "PENDING" {
		t.Fatalf("unexpected status %s", app.Status)
	}
	want := AttachRequest{
		IDDocumentURL: "u2",
		Documents:     []AttachedDocument{{Kind: "identity", DocumentID: "d2", Path: "p2", URL: "u2"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("attach body mismatch (-want +got):\n%s", diff)
	}
}

func TestGuestHeader(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Guest-Id") != "g-42" || r.Header.Get("Authorization") != "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"id":"app-1","status":"PENDING","missingDocuments":["cv"]}`))
	}))
	t.Cleanup(srv.Close)

	client, err := New(Options{BaseURL: srv.URL, GuestID: "g-42"})
	if err != nil {
		t.Fatal(err)
	}
	app, err := client.MyApplication(context.Background())
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if diff := cmp.Diff([]string{"cv"}, app.MissingDocuments); diff != "" {
		t.Fatalf("missing mismatch (-want +got):\n%s", diff)
	}
}
