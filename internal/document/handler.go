package document

import (
	"net/http"
	"strconv"

	"markdown-annotator/internal/errors"
	"markdown-annotator/internal/middleware"
	"markdown-annotator/internal/utils"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type CreateRequest struct {
	Title    string `json:"title" binding:"max=255"`
	Markdown string `json:"markdown"`
}

type SaveRequest struct {
	Markdown string `json:"markdown"`
}

func parseUintParam(c *gin.Context, name, what string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		return 0, errors.NotFound(what+" not found", err)
	}
	return id, nil
}

func (h *Handler) Create(c *gin.Context) {
	var form CreateRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	doc, err := h.service.CreateDocument(c.Request.Context(), middleware.CurrentUser(c), form.Title, form.Markdown)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":          doc.ID,
		"title":       doc.Title,
		"version_seq": doc.VersionSeq,
		"created_at":  doc.CreatedAt,
	})
}

func (h *Handler) Save(c *gin.Context) {
	docID, err := parseUintParam(c, "id", "Document")
	if err != nil {
		c.Error(err)
		return
	}

	var form SaveRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	version, err := h.service.Save(c.Request.Context(), docID, middleware.CurrentUser(c), form.Markdown)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, version)
}

func (h *Handler) Show(c *gin.Context) {
	docID, err := parseUintParam(c, "id", "Document")
	if err != nil {
		c.Error(err)
		return
	}

	view, err := h.service.View(c.Request.Context(), docID, middleware.CurrentUser(c), c.Query("t"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *Handler) ShowVersion(c *gin.Context) {
	docID, err := parseUintParam(c, "id", "Document")
	if err != nil {
		c.Error(err)
		return
	}
	number, err := parseUintParam(c, "number", "Version")
	if err != nil {
		c.Error(err)
		return
	}

	version, err := h.service.Version(c.Request.Context(), docID, number, middleware.CurrentUser(c), c.Query("t"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, version)
}

func (h *Handler) ListVersions(c *gin.Context) {
	docID, err := parseUintParam(c, "id", "Document")
	if err != nil {
		c.Error(err)
		return
	}

	versions, err := h.service.Versions(c.Request.Context(), docID, middleware.CurrentUser(c), c.Query("t"))
	if err != nil {
		c.Error(err)
		return
	}
	if versions == nil {
		versions = []VersionSummary{}
	}

	c.JSON(http.StatusOK, gin.H{"data": versions})
}

func (h *Handler) DeleteVersion(c *gin.Context) {
	docID, err := parseUintParam(c, "id", "Document")
	if err != nil {
		c.Error(err)
		return
	}
	number, err := parseUintParam(c, "number", "Version")
	if err != nil {
		c.Error(err)
		return
	}

	if err := h.service.DeleteVersion(c.Request.Context(), docID, number, middleware.CurrentUser(c)); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "version deleted",
	})
}

func (h *Handler) TogglePublic(c *gin.Context) {
	docID, err := parseUintParam(c, "id", "Document")
	if err != nil {
		c.Error(err)
		return
	}

	isPublic, err := h.service.TogglePublic(c.Request.Context(), docID, middleware.CurrentUser(c))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"is_public": isPublic})
}

func (h *Handler) ShareLink(c *gin.Context) {
	docID, err := parseUintParam(c, "id", "Document")
	if err != nil {
		c.Error(err)
		return
	}

	link, err := h.service.ShareLink(c.Request.Context(), docID, middleware.CurrentUser(c))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": link})
}

func (h *Handler) List(c *gin.Context) {
	page, pageSize := utils.GetPaginationParams(c)

	result, err := h.service.List(c.Request.Context(), middleware.CurrentUser(c), page, pageSize)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) Delete(c *gin.Context) {
	docID, err := parseUintParam(c, "id", "Document")
	if err != nil {
		c.Error(err)
		return
	}

	if err := h.service.Delete(c.Request.Context(), docID, middleware.CurrentUser(c)); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "document deleted",
	})
}
