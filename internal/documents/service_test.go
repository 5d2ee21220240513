package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"

	"admissions-portal/internal/shared/storage/object/local"
	"admissions-portal/internal/shared/telemetry"
	"admissions-portal/internal/uploads"
)

func TestMain(m *testing.M) {
	telemetry.SetOutput(io.Discard)
	os.Exit(m.Run())
}

var testSlots = []uploads.Slot{
	{Name: "cv", Endpoint: "cv", Extensions: []string{".pdf"}, MimeTypes: []string{"application/pdf"}, MaxBytes: 64 * 1024, Required: true},
	{Name: "identity", Endpoint: "identity", Extensions: []string{".pdf", ".png"}, MimeTypes: []string{"application/pdf", "image/png"}, MaxBytes: 64 * 1024, Required: true},
}

// minimalPDF builds a one-page PDF with a valid cross-reference table.
func minimalPDF() []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>",
	}
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func newTestService(t *testing.T) (*Service, *MemoryRepo) {
	t.Helper()
	repo := NewMemoryRepo()
	return &Service{
		Store:         local.New(t.TempDir()),
		Repo:          repo,
		Kinds:         NewKinds(testSlots),
		PublicBaseURL: "http://api.test/",
	}, repo
}

func TestUploadStoresPDFWithPageCount(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	doc, err := svc.Upload(ctx, UploadInput{
		UserID:    "user-1",
		Kind:      "cv",
		FileName:  "mon cv.pdf",
		FirstName: "Ada",
		LastName:  "<b>Lovelace</b>",
		Body:      bytes.NewReader(minimalPDF()),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if doc.PageCount != 1 || doc.MimeType != "application/pdf" || doc.Kind != "cv" {
		t.Fatalf("unexpected document %+v", doc)
	}
	if doc.FileName != "CV_Lovelace_Ada.pdf" || doc.OriginalName != "mon cv.pdf" {
		t.Fatalf("unexpected names %q / %q", doc.FileName, doc.OriginalName)
	}
	if got, want := svc.URL(ctx, doc), "http://api.test/api/documents/"+doc.ID+"/file"; got != want {
		t.Fatalf("URL = %q, want %q", got, want)
	}

	_, body, err := svc.Open(ctx, "user-1", "applicant", doc.ID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer body.Close()
	data, _ := io.ReadAll(body)
	if !bytes.Equal(data, minimalPDF()) {
		t.Fatalf("stored content differs")
	}
}

func TestUploadRejections(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		kind    string
		name    string
		body    []byte
		wantErr error
	}{
		"unknown kind":     {kind: "photo", name: "a.pdf", body: minimalPDF(), wantErr: ErrUnknownKind},
		"extension":        {kind: "cv", name: "cv.exe", body: minimalPDF(), wantErr: ErrUnsupportedType},
		"content mismatch": {kind: "cv", name: "cv.pdf", body: pngHeader, wantErr: ErrUnsupportedType},
		"too large":        {kind: "cv", name: "cv.pdf", body: append(minimalPDF(), make([]byte, 64*1024)...), wantErr: ErrTooLarge},
		"unreadable pdf":   {kind: "cv", name: "cv.pdf", body: []byte("%PDF-1.4\nnot really a pdf"), wantErr: ErrUnreadable},
		"traversal":        {kind: "cv", name: "../cv.pdf", body: minimalPDF(), wantErr: ErrInvalidInput},
		"empty body":       {kind: "identity", name: "id.png", body: nil, wantErr: ErrInvalidInput},
		"long extension":   {kind: "cv", name: "cv." + strings.Repeat("x", 200), body: minimalPDF(), wantErr: ErrInvalidInput},
	}
	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			svc, repo := newTestService(t)
			_, err := svc.Upload(context.Background(), UploadInput{
				UserID:   "user-1",
				Kind:     tc.kind,
				FileName: tc.name,
				Body:     bytes.NewReader(tc.body),
			})
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if len(repo.data) != 0 {
				t.Fatalf("rejected upload must not be recorded")
			}
		})
	}
}

func TestUploadAcceptsPNGIdentity(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	doc, err := svc.Upload(context.Background(), UploadInput{
		UserID:   "user-1",
		Kind:     "identity",
		FileName: "id.png",
		Body:     bytes.NewReader(pngHeader),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if doc.MimeType != "image/png" || doc.PageCount != 0 || doc.FileName != "id.png" {
		t.Fatalf("unexpected document %+v", doc)
	}
}

func TestDeleteChecksOwnerAndRemovesObject(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()
	doc, err := svc.Upload(ctx, UploadInput{UserID: "user-1", Kind: "cv", FileName: "cv.pdf", Body: bytes.NewReader(minimalPDF())})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if err := svc.Delete(ctx, "user-2", doc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for another user, got %v", err)
	}
	if err := svc.Delete(ctx, "user-1", doc.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Store.Open(ctx, doc.StorageKey); err == nil {
		t.Fatalf("expected stored object to be removed")
	}
	if err := svc.Delete(ctx, "user-1", doc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestLinkRequiresOwnership(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()
	doc, err := svc.Upload(ctx, UploadInput{UserID: "user-1", Kind: "cv", FileName: "cv.pdf", Body: bytes.NewReader(minimalPDF())})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if _, err := svc.Link(ctx, "user-2", "app-1", []string{doc.ID}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	linked, err := svc.Link(ctx, "user-1", "app-1", []string{doc.ID})
	if err != nil || len(linked) != 1 || linked[0].ApplicationID != "app-1" {
		t.Fatalf("Link = %+v, %v", linked, err)
	}
	docs, err := svc.ForApplication(ctx, "app-1")
	if err != nil || len(docs) != 1 || !strings.EqualFold(docs[0].Kind, "cv") {
		t.Fatalf("ForApplication = %+v, %v", docs, err)
	}
}
