package applications

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"admissions-portal/internal/shared/auth"
	"admissions-portal/internal/shared/server/middleware"
	"admissions-portal/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the applications service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches application routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/applications", h.create)
	rg.GET("/applications/me", h.mine)
	rg.PATCH("/applications/:id/documents", h.attach)

	admin := rg.Group("", middleware.RequireRole(auth.RoleAdmin))
	admin.GET("/applications", h.list)
	admin.GET("/applications/:id", h.get)
	admin.PATCH("/applications/:id/status", h.setStatus)
}

func (h *Handler) create(c *gin.Context) {
	var answers map[string]string
	if err := c.ShouldBindJSON(&answers); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "Requête invalide", nil)
		return
	}

	app, err := h.Svc.Create(c.Request.Context(), middleware.UserIDFromContext(c), answers, c.GetString("requestId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Set("applicationId", app.ID)
	c.Set("statusTransition", "->"+string(app.Status))
	respond.JSON(c, http.StatusCreated, toResponse(app))
}

func (h *Handler) attach(c *gin.Context) {
	id := c.Param("id")
	c.Set("applicationId", id)

	var req attachRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "Requête invalide", nil)
		return
	}
	view, err := h.Svc.AttachDocuments(c.Request.Context(), middleware.UserIDFromContext(c), id, req.input(), c.GetString("requestId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Set("statusTransition", "->"+string(view.Status))
	respond.OK(c, viewResponse(c.Request.Context(), h.Svc.Docs, view))
}

func (h *Handler) mine(c *gin.Context) {
	view, err := h.Svc.Mine(c.Request.Context(), middleware.UserIDFromContext(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Set("applicationId", view.ID)
	respond.OK(c, viewResponse(c.Request.Context(), h.Svc.Docs, view))
}

func (h *Handler) get(c *gin.Context) {
	view, err := h.Svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Set("applicationId", view.ID)
	respond.OK(c, viewResponse(c.Request.Context(), h.Svc.Docs, view))
}

func (h *Handler) list(c *gin.Context) {
	filter := ListFilter{Search: c.Query("search")}
	if raw := c.Query("status"); raw != "" {
		status, ok := ParseStatus(raw)
		if !ok {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid status filter", nil)
			return
		}
		filter.Status = status
	}
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			filter.Limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			filter.Offset = parsed
		}
	}
	filter = normalizeFilter(filter)

	apps, total, err := h.Svc.List(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	resp := ListResponse{Applications: make([]ApplicationResponse, 0, len(apps)), Total: total, Limit: filter.Limit, Offset: filter.Offset}
	for _, app := range apps {
		resp.Applications = append(resp.Applications, toResponse(app))
	}
	respond.OK(c, resp)
}

func (h *Handler) setStatus(c *gin.Context) {
	id := c.Param("id")
	c.Set("applicationId", id)

	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "status is required", nil)
		return
	}
	status, ok := ParseStatus(req.Status)
	if !ok {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid status", nil)
		return
	}
	app, err := h.Svc.SetStatus(c.Request.Context(), id, status, c.GetString("requestId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Set("statusTransition", "->"+string(app.Status))
	respond.OK(c, toResponse(app))
}

func (h *Handler) fail(c *gin.Context, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		respond.Error(c, http.StatusBadRequest, "validation_error", verr.First, verr.Fields)
	case errors.Is(err, ErrInvalidStatus):
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid status", nil)
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "Candidature introuvable", nil)
	case errors.Is(err, ErrForbidden):
		respond.Error(c, http.StatusForbidden, "forbidden", "Accès refusé", nil)
	case errors.Is(err, ErrConflict):
		respond.Error(c, http.StatusConflict, "conflict", "Vous avez déjà déposé une candidature", nil)
	case errors.Is(err, ErrAlreadyClosed):
		respond.Error(c, http.StatusConflict, "conflict", "Cette candidature a déjà été traitée", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "Erreur interne", nil)
	}
}
