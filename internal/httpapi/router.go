// Package httpapi exposes the content queries and admin operations over
// HTTP with gin.
package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goliatone/go-content-repository/model"
	"github.com/goliatone/go-content-repository/publish"
	"github.com/goliatone/go-content-repository/query"
	"github.com/goliatone/go-content-repository/repository"
	"go.uber.org/zap"
)

// Services are the components the routes call into.
type Services struct {
	// Posts runs the admin bulk operations. Pass the cached repository so
	// its writes are visible to cached reads after invalidation.
	Posts          repository.Repository[model.Post]
	PostList       *query.PostList
	PublicPostList *query.PublicPostList
	PostDetail     *query.PostDetail
	CategoryList   *query.CategoryList
	TagList        *query.TagList
	Publisher      *publish.Publisher
}

// NewRouter registers every route on a fresh gin engine.
func NewRouter(s Services, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(requestLogger(logger), recovery(logger))

	h := &handler{svc: s, logger: logger}

	api := r.Group("/api")
	api.GET("/posts", h.listPublicPosts)
	api.GET("/posts/:slug", h.showPost)
	api.GET("/categories", h.listCategories)
	api.GET("/tags", h.listTags)

	admin := api.Group("/admin/posts")
	admin.GET("", h.listPosts)
	admin.GET("/:id", h.showPostByID)
	admin.POST("/delete", h.bulk(s.Posts.DeleteMany))
	admin.POST("/restore", h.bulk(s.Posts.RestoreMany))
	admin.POST("/force-delete", h.bulk(s.Posts.ForceDeleteMany))
	admin.POST("/:id/publish", h.transition(s.Publisher.Publish))
	admin.POST("/:id/unpublish", h.transition(s.Publisher.Unpublish))

	return r
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		logger.Debug("request", fields...)
	}
}

func recovery(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("handler panicked",
			zap.String("path", c.Request.URL.Path),
			zap.Any("panic", recovered),
		)
		c.AbortWithStatusJSON(500, errorBody{Error: "internal error"})
	})
}
