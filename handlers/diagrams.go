package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/flowdeck/flowdeck/backend/go-services/internal/cache"
	"github.com/flowdeck/flowdeck/backend/go-services/internal/diagram"
	"github.com/flowdeck/flowdeck/backend/go-services/internal/diagram/service"
	"github.com/flowdeck/flowdeck/backend/go-services/internal/export"
	"github.com/flowdeck/flowdeck/backend/go-services/internal/storage"
	"github.com/flowdeck/flowdeck/backend/go-services/pkg/logger"
	"github.com/flowdeck/flowdeck/backend/go-services/pkg/metrics"
)

// DiagramHandler translates the diagram HTTP API onto the service layer.
// It owns no business rules: every write goes through the service, which is
// the sole admission point for version checks.
type DiagramHandler struct {
	svc       *service.Service
	summaries *cache.SummaryCache  // optional
	exports   *storage.MinIOStorage // optional
	exportLog *export.Store         // optional
}

func NewDiagramHandler(svc *service.Service) *DiagramHandler {
	return &DiagramHandler{svc: svc}
}

// WithSummaryCache enables the Redis-backed summary cache.
func (h *DiagramHandler) WithSummaryCache(c *cache.SummaryCache) *DiagramHandler {
	h.summaries = c
	return h
}

// WithExports enables XML export to object storage, with optional metadata
// persistence.
func (h *DiagramHandler) WithExports(s *storage.MinIOStorage, log *export.Store) *DiagramHandler {
	h.exports = s
	h.exportLog = log
	return h
}

// Register mounts the diagram routes. All routes require an identified
// principal, so the auth middleware is applied to the whole group.
func (h *DiagramHandler) Register(r *gin.Engine, auth gin.HandlerFunc) {
	g := r.Group("/api/diagrams")
	if auth != nil {
		g.Use(auth)
	}
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.GET("/:id/summary", h.GetSummary)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
	g.POST("/:id/restore", h.Restore)
	g.GET("/:id/revisions", h.ListRevisions)
	g.GET("/:id/revisions/:rev", h.GetRevision)
	g.PUT("/:id/collaborators/:principalId", h.Share)
	g.DELETE("/:id/collaborators/:principalId", h.Unshare)
	g.POST("/:id/export", h.Export)
	g.GET("/:id/exports", h.ListExports)
}

// principal extracts the verified subject placed in the context by the auth
// middleware. Aborts with 401 when absent.
func principal(c *gin.Context) (string, bool) {
	v, ok := c.Get("claims")
	if ok {
		if cm, ok2 := v.(map[string]interface{}); ok2 {
			if sub, ok3 := cm["sub"].(string); ok3 && sub != "" {
				return sub, true
			}
		}
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
	return "", false
}

// writeError is the single place internal failure kinds become wire shapes.
// Store and stack detail never leaks past here.
func writeError(c *gin.Context, err error) {
	var verr *diagram.ValidationError
	var conflict *diagram.ConflictError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": verr.Violations})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{
			"error":          "version conflict",
			"currentVersion": conflict.CurrentVersion,
			"currentPayload": conflict.CurrentPayload,
			"currentTitle":   conflict.CurrentTitle,
		})
	case errors.Is(err, diagram.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, diagram.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, diagram.ErrRevisionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "revision not found"})
	case errors.Is(err, diagram.ErrTransient):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage temporarily unavailable"})
	default:
		logger.Errorf("diagram handler: internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// bindJSON decodes the body and reports every violated field from the
// binding layer in the same shape the service uses.
func bindJSON(c *gin.Context, v interface{}) bool {
	err := c.ShouldBindJSON(v)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]diagram.FieldViolation, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, diagram.FieldViolation{
				Field:  strings.ToLower(fe.Field()[:1]) + fe.Field()[1:],
				Reason: "failed rule: " + fe.Tag(),
			})
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": fields})
		return false
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": []diagram.FieldViolation{{Field: "body", Reason: err.Error()}}})
	return false
}

type createRequest struct {
	Title         string `json:"title"`
	Payload       string `json:"payload"`
	ProjectID     string `json:"projectId"`
	Visibility    string `json:"visibility" binding:"omitempty,oneof=private public"`
	ChangeMessage string `json:"changeMessage"`
}

func (h *DiagramHandler) Create(c *gin.Context) {
	sub, ok := principal(c)
	if !ok {
		return
	}
	var req createRequest
	if !bindJSON(c, &req) {
		return
	}
	d, err := h.svc.Create(c.Request.Context(), diagram.CreateInput{
		OwnerID:       sub,
		Title:         req.Title,
		Payload:       req.Payload,
		ProjectID:     req.ProjectID,
		Visibility:    diagram.Visibility(req.Visibility),
		ChangeMessage: req.ChangeMessage,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("ETag", cache.Fingerprint(d.ID, d.Version))
	c.JSON(http.StatusCreated, d)
}

func (h *DiagramHandler) Get(c *gin.Context) {
	sub, ok := principal(c)
	if !ok {
		return
	}
	id := c.Param("id")
	includeDeleted := c.Query("includeDeleted") == "true"
	d, err := h.svc.Get(c.Request.Context(), sub, id, includeDeleted)
	if err != nil {
		writeError(c, err)
		return
	}
	etag := cache.Fingerprint(d.ID, d.Version)
	c.Header("ETag", etag)
	if cache.Match(c.GetHeader("If-None-Match"), etag) {
		metrics.ConditionalReads.WithLabelValues("hit").Inc()
		c.Status(http.StatusNotModified)
		return
	}
	metrics.ConditionalReads.WithLabelValues("miss").Inc()
	c.JSON(http.StatusOK, d)
}

// GetSummary serves the payload-free projection, preferring the Redis
// cache keyed by (id, version) when one is configured.
func (h *DiagramHandler) GetSummary(c *gin.Context) {
	sub, ok := principal(c)
	if !ok {
		return
	}
	id := c.Param("id")
	d, err := h.svc.Get(c.Request.Context(), sub, id, false)
	if err != nil {
		writeError(c, err)
		return
	}
	etag := cache.Fingerprint(d.ID, d.Version)
	c.Header("ETag", etag)
	if cache.Match(c.GetHeader("If-None-Match"), etag) {
		metrics.ConditionalReads.WithLabelValues("hit").Inc()
		c.Status(http.StatusNotModified)
		return
	}
	metrics.ConditionalReads.WithLabelValues("miss").Inc()

	if h.summaries != nil {
		if s, err := h.summaries.Get(c.Request.Context(), d.ID, d.Version); err == nil && s != nil {
			c.JSON(http.StatusOK, s)
			return
		}
		s := d.Summary()
		if err := h.summaries.Put(c.Request.Context(), s); err != nil {
			logger.Warnf("summary cache put failed for %s: %v", d.ID, err)
		}
		c.JSON(http.StatusOK, s)
		return
	}
	c.JSON(http.StatusOK, d.Summary())
}

func (h *DiagramHandler) List(c *gin.Context) {
	sub, ok := principal(c)
	if !ok {
		return
	}
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(c, (&diagram.ValidationError{}).Add("limit", "must be an integer"))
			return
		}
		limit = n
	}
	page, err := h.svc.List(c.Request.Context(), sub, diagram.ListFilter{
		OwnerID:        c.Query("ownerId"),
		ProjectID:      c.Query("projectId"),
		Cursor:         c.Query("cursor"),
		Limit:          limit,
		IncludeDeleted: c.Query("includeDeleted") == "true",
	})
	if err != nil {
		writeError(c, err)
		return
	}
	items := make([]gin.H, 0, len(page.Items))
	for _, s := range page.Items {
		items = append(items, gin.H{
			"id":         s.ID,
			"ownerId":    s.OwnerID,
			"projectId":  s.ProjectID,
			"title":      s.Title,
			"version":    s.Version,
			"visibility": s.Visibility,
			"updatedAt":  s.UpdatedAt,
			"etag":       cache.Fingerprint(s.ID, s.Version),
		})
		if h.summaries != nil {
			if err := h.summaries.Put(c.Request.Context(), s); err != nil {
				logger.Debugf("summary cache warm failed for %s: %v", s.ID, err)
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "nextCursor": page.NextCursor})
}

type updateRequest struct {
	Title           *string `json:"title"`
	Payload         *string `json:"payload"`
	Visibility      *string `json:"visibility" binding:"omitempty,oneof=private public"`
	ExpectedVersion int64   `json:"expectedVersion"`
	ChangeMessage   string  `json:"changeMessage"`
}

func (h *DiagramHandler) Update(c *gin.Context) {
	sub, ok := principal(c)
	if !ok {
		return
	}
	var req updateRequest
	if !bindJSON(c, &req) {
		return
	}
	in := diagram.UpdateInput{
		ExpectedVersion: req.ExpectedVersion,
		Title:           req.Title,
		Payload:         req.Payload,
		ChangeMessage:   req.ChangeMessage,
	}
	if req.Visibility != nil {
		vis := diagram.Visibility(*req.Visibility)
		in.Visibility = &vis
	}
	d, err := h.svc.Update(c.Request.Context(), sub, c.Param("id"), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("ETag", cache.Fingerprint(d.ID, d.Version))
	c.JSON(http.StatusOK, d)
}

func (h *DiagramHandler) Delete(c *gin.Context) {
	sub, ok := principal(c)
	if !ok {
		return
	}
	if err := h.svc.SoftDelete(c.Request.Context(), sub, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *DiagramHandler) Restore(c *gin.Context) {
	sub, ok := principal(c)
	if !ok {
		return
	}
	if err := h.svc.Restore(c.Request.Context(), sub, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "restored": true})
}

func (h *DiagramHandler) ListRevisions(c *gin.Context) {
	sub, ok := principal(c)
	if !ok {
		return
	}
	revs, err := h.svc.ListRevisions(c.Request.Context(), sub, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": revs})
}

func (h *DiagramHandler) GetRevision(c *gin.Context) {
	sub, ok := principal(c)
	if !ok {
		return
	}
	rev, err := strconv.ParseInt(c.Param("rev"), 10, 64)
	if err != nil || rev < 1 {
		writeError(c, (&diagram.ValidationError{}).Add("rev", "must be a positive integer"))
		return
	}
	r, err := h.svc.GetRevision(c.Request.Context(), sub, c.Param("id"), rev)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

type shareRequest struct {
	Role string `json:"role" binding:"required,oneof=editor viewer"`
}

func (h *DiagramHandler) Share(c *gin.Context) {
	sub, ok := principal(c)
	if !ok {
		return
	}
	var req shareRequest
	if !bindJSON(c, &req) {
		return
	}
	err := h.svc.Share(c.Request.Context(), sub, c.Param("id"), c.Param("principalId"), diagram.Role(req.Role))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *DiagramHandler) Unshare(c *gin.Context) {
	sub, ok := principal(c)
	if !ok {
		return
	}
	if err := h.svc.Unshare(c.Request.Context(), sub, c.Param("id"), c.Param("principalId")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Export uploads the current payload XML to object storage and returns a
// presigned download URL. Failures after the upload never affect the
// diagram itself; export is strictly a side channel.
func (h *DiagramHandler) Export(c *gin.Context) {
	sub, ok := principal(c)
	if !ok {
		return
	}
	if h.exports == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "export storage not configured"})
		return
	}
	d, err := h.svc.Get(c.Request.Context(), sub, c.Param("id"), false)
	if err != nil {
		writeError(c, err)
		return
	}
	exportID := uuid.NewString()
	key := fmt.Sprintf("diagrams/%s/v%d-%s.bpmn.xml", d.ID, d.Version, exportID)
	body := []byte(d.Payload)
	if err := h.exports.UploadFile(c.Request.Context(), key, bytes.NewReader(body), int64(len(body)), "application/xml"); err != nil {
		logger.Errorf("export upload failed for %s: %v", d.ID, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "export upload failed"})
		return
	}
	if h.exportLog != nil {
		rec := &export.Record{
			ExportID:  exportID,
			DiagramID: d.ID,
			Version:   d.Version,
			AuthorID:  sub,
			ObjectKey: key,
		}
		if err := h.exportLog.Save(c.Request.Context(), rec); err != nil {
			// metadata is best effort; the object is already stored
			logger.Warnf("export metadata save failed for %s: %v", exportID, err)
		}
	}
	url, err := h.exports.GetPresignedURL(c.Request.Context(), key, 15*time.Minute)
	if err != nil {
		logger.Errorf("export presign failed for %s: %v", key, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "export presign failed"})
		return
	}
	metrics.ExportsCreated.Inc()
	c.JSON(http.StatusCreated, gin.H{"exportId": exportID, "version": d.Version, "downloadUrl": url})
}

func (h *DiagramHandler) ListExports(c *gin.Context) {
	sub, ok := principal(c)
	if !ok {
		return
	}
	if h.exportLog == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "export metadata store not configured"})
		return
	}
	d, err := h.svc.Get(c.Request.Context(), sub, c.Param("id"), false)
	if err != nil {
		writeError(c, err)
		return
	}
	recs, err := h.exportLog.ListByDiagram(c.Request.Context(), d.ID)
	if err != nil {
		logger.Errorf("export list failed for %s: %v", d.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": recs})
}
