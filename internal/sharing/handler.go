package sharing

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

type GrantRequest struct {
	Username string `json:"username" binding:"required,max=80"`
	// Role is not validated here; unknown roles are stored as viewer.
	Role string `json:"role"`
}

func parseDocID(c *gin.Context) (uint64, error) {
	docID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, errors.NotFound("Document not found", err)
	}
	return docID, nil
}

func (h *Handler) Grant(c *gin.Context) {
	docID, err := parseDocID(c)
	if err != nil {
		c.Error(err)
		return
	}

	var req GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	result, err := h.service.Grant(
		c.Request.Context(),
		docID,
		middleware.CurrentUser(c),
		req.Username,
		req.Role,
	)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) List(c *gin.Context) {
	docID, err := parseDocID(c)
	if err != nil {
		c.Error(err)
		return
	}

	result, err := h.service.List(c.Request.Context(), docID, middleware.CurrentUser(c))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) Revoke(c *gin.Context) {
	docID, err := parseDocID(c)
	if err != nil {
		c.Error(err)
		return
	}

	err = h.service.Revoke(c.Request.Context(), docID, middleware.CurrentUser(c), c.Param("username"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "share removed",
	})
}
