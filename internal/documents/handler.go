package documents

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"admissions-portal/internal/shared/server/middleware"
	"admissions-portal/internal/shared/server/respond"
	"admissions-portal/internal/shared/telemetry"
	"admissions-portal/internal/uploads"
)

// multipartOverhead leaves room for boundaries and text fields.
const multipartOverhead = 1 << 20

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches document routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/upload/:kind", h.upload)
	rg.DELETE("/applications/documents/:id", h.remove)
	rg.GET("/documents/:id/file", h.download)
}

func (h *Handler) upload(c *gin.Context) {
	kind := c.Param("kind")
	slot, ok := h.Svc.Slot(kind)
	if !ok {
		respond.Error(c, http.StatusNotFound, "not_found", "Type de document inconnu", nil)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, slot.MaxBytes+multipartOverhead)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondTooLarge(c, slot)
			return
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", "Aucun fichier reçu", nil)
		return
	}
	if fileHeader.Size > slot.MaxBytes {
		h.Svc.rejected(slot, ErrTooLarge, "too_large")
		respondTooLarge(c, slot)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "Impossible de lire le fichier", nil)
		return
	}
	defer file.Close()

	doc, err := h.Svc.Upload(c.Request.Context(), UploadInput{
		UserID:    middleware.UserIDFromContext(c),
		Kind:      kind,
		FileName:  fileHeader.Filename,
		FirstName: c.PostForm("firstName"),
		LastName:  c.PostForm("lastName"),
		Body:      file,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrTooLarge):
			respondTooLarge(c, slot)
		case errors.Is(err, ErrUnsupportedType):
			respond.Error(c, http.StatusUnsupportedMediaType, "unsupported_type",
				fmt.Sprintf("Format non accepté (%s)", strings.Join(slot.Extensions, ", ")), nil)
		case errors.Is(err, ErrUnreadable):
			respond.Error(c, http.StatusBadRequest, "unreadable_document", "Le fichier PDF est illisible ou corrompu", nil)
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", "Nom de fichier invalide", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "Erreur lors de l'upload", nil)
		}
		return
	}

	c.Set("documentId", doc.ID)
	respond.JSON(c, http.StatusCreated, ToResponse(doc, h.Svc.URL(c.Request.Context(), doc)))
}

func respondTooLarge(c *gin.Context, slot uploads.Slot) {
	respond.Error(c, http.StatusRequestEntityTooLarge, "too_large",
		fmt.Sprintf("Le fichier dépasse la taille maximale de %s", slot.MaxSizeText()), nil)
}

func (h *Handler) remove(c *gin.Context) {
	id := c.Param("id")
	c.Set("documentId", id)
	err := h.Svc.Delete(c.Request.Context(), middleware.UserIDFromContext(c), id)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to delete document", nil)
		}
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) download(c *gin.Context) {
	id := c.Param("id")
	c.Set("documentId", id)
	doc, body, err := h.Svc.Open(c.Request.Context(), middleware.UserIDFromContext(c), middleware.UserRoleFromContext(c), id)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to open document", nil)
		}
		return
	}
	defer body.Close()

	c.Header("Content-Type", doc.MimeType)
	c.Header("Content-Length", strconv.FormatInt(doc.SizeBytes, 10))
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", doc.FileName))
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, body); err != nil {
		telemetry.Warn("documents.download_interrupted", map[string]any{"document_id": id, "error": err.Error()})
	}
}
