package annotation

import (
	"net/http"
	"strconv"

	"markdown-annotator/internal/errors"
	"markdown-annotator/internal/middleware"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// CreateRequest carries a highlighted span. Start and End may be omitted or
// null, in which case the anchor text is searched for.
type CreateRequest struct {
	Start  *int   `json:"start"`
	End    *int   `json:"end"`
	Anchor string `json:"anchor"`
	Color  string `json:"color" binding:"max=16"`
	Note   string `json:"note"`
}

type CommentRequest struct {
	Text string `json:"text" binding:"required"`
}

func parseID(c *gin.Context, what string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, errors.NotFound(what+" not found", err)
	}
	return id, nil
}

func offset(v *int) int {
	if v == nil {
		return -1
	}
	return *v
}

func (h *Handler) List(c *gin.Context) {
	docID, err := parseID(c, "Document")
	if err != nil {
		c.Error(err)
		return
	}

	views, err := h.service.List(c.Request.Context(), docID, middleware.CurrentUser(c), c.Query("t"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, views)
}

func (h *Handler) Create(c *gin.Context) {
	docID, err := parseID(c, "Document")
	if err != nil {
		c.Error(err)
		return
	}

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	view, err := h.service.Create(c.Request.Context(), docID, middleware.CurrentUser(c), CreateInput{
		Start:  offset(req.Start),
		End:    offset(req.End),
		Anchor: req.Anchor,
		Color:  req.Color,
		Note:   req.Note,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, view)
}

func (h *Handler) Show(c *gin.Context) {
	id, err := parseID(c, "Annotation")
	if err != nil {
		c.Error(err)
		return
	}

	view, err := h.service.Get(c.Request.Context(), id, middleware.CurrentUser(c), c.Query("t"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *Handler) Delete(c *gin.Context) {
	id, err := parseID(c, "Annotation")
	if err != nil {
		c.Error(err)
		return
	}

	if err := h.service.Delete(c.Request.Context(), id, middleware.CurrentUser(c)); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) AddComment(c *gin.Context) {
	id, err := parseID(c, "Annotation")
	if err != nil {
		c.Error(err)
		return
	}

	var req CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	comment, err := h.service.AddComment(c.Request.Context(), id, middleware.CurrentUser(c), req.Text)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, comment)
}
