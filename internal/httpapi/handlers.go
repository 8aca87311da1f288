package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-content-repository/model"
	"github.com/goliatone/go-content-repository/publish"
	"github.com/goliatone/go-content-repository/request"
	"go.uber.org/zap"
)

type handler struct {
	svc    Services
	logger *zap.Logger
}

type errorBody struct {
	Error  string            `json:"error"`
	Fields validation.Errors `json:"fields,omitempty"`
}

type dataBody struct {
	Data any `json:"data"`
}

// idsBody accepts ids as numbers, numeric strings or nulls.
type idsBody struct {
	IDs []any `json:"ids"`
}

type affectedBody struct {
	Affected int `json:"affected"`
}

func (h *handler) listPublicPosts(c *gin.Context) {
	res, err := h.svc.PublicPostList.Run(c.Request.Context(), c.Request.URL.Query())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) showPost(c *gin.Context) {
	post, err := h.svc.PostDetail.BySlug(c.Request.Context(), c.Param("slug"))
	h.respondPost(c, post, err)
}

func (h *handler) showPostByID(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		notFound(c)
		return
	}
	post, err := h.svc.PostDetail.ByID(c.Request.Context(), id)
	h.respondPost(c, post, err)
}

func (h *handler) respondPost(c *gin.Context, post *model.Post, err error) {
	switch {
	case err != nil:
		h.fail(c, err)
	case post == nil:
		notFound(c)
	default:
		c.JSON(http.StatusOK, dataBody{Data: post})
	}
}

func (h *handler) listPosts(c *gin.Context) {
	values := c.Request.URL.Query()
	if !h.validate(c, h.svc.PostList.Normalizer(), values) {
		return
	}
	res, err := h.svc.PostList.Run(c.Request.Context(), values)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) listCategories(c *gin.Context) {
	values := c.Request.URL.Query()
	if !h.validate(c, h.svc.CategoryList.Normalizer(), values) {
		return
	}
	res, err := h.svc.CategoryList.Run(c.Request.Context(), values)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) listTags(c *gin.Context) {
	values := c.Request.URL.Query()
	if !h.validate(c, h.svc.TagList.Normalizer(), values) {
		return
	}
	res, err := h.svc.TagList.Run(c.Request.Context(), values)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) validate(c *gin.Context, n *request.Normalizer, values url.Values) bool {
	if err := n.Validate(values); err != nil {
		h.fail(c, err)
		return false
	}
	return true
}

type bulkFunc func(ctx context.Context, ids []int64) (int, error)

func (h *handler) bulk(run bulkFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body idsBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, errorBody{Error: "body must be a JSON object with an ids array"})
			return
		}
		n, err := run(c.Request.Context(), request.ParseIDs(body.IDs))
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, affectedBody{Affected: n})
	}
}

type transitionFunc func(ctx context.Context, id int64) (*model.Post, error)

func (h *handler) transition(run transitionFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			notFound(c)
			return
		}
		post, err := run(c.Request.Context(), id)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, dataBody{Data: post})
	}
}

// fail maps err to a status. Unexpected errors are logged and hidden.
func (h *handler) fail(c *gin.Context, err error) {
	var verrs validation.Errors
	switch {
	case errors.As(err, &verrs):
		c.JSON(http.StatusUnprocessableEntity, errorBody{Error: "invalid parameters", Fields: verrs})
	case errors.Is(err, publish.ErrNotFound):
		notFound(c)
	case errors.Is(err, publish.ErrAlreadyPublished), errors.Is(err, publish.ErrAlreadyDraft):
		c.JSON(http.StatusConflict, errorBody{Error: err.Error()})
	default:
		_ = c.Error(err)
		h.logger.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, errorBody{Error: "not found"})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}
