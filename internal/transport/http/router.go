package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/example/blog-cms/internal/config"
	"github.com/example/blog-cms/internal/service"
	"github.com/example/blog-cms/internal/storage"
	"github.com/example/blog-cms/internal/transport/http/handlers"
)

type Router = *gin.Engine

// Services is everything the routes delegate to.
type Services struct {
	Posts      *service.PostService
	Categories *service.CategoryService
	Auth       handlers.Authenticator
	Storage    *storage.Local
}

func NewRouter(cfg *config.Config, svc Services, logger *slog.Logger) Router {
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), handlers.RequestLogger(logger))

	posts := handlers.NewPostHandler(svc.Posts)
	categories := handlers.NewCategoryHandler(svc.Categories)
	authH := handlers.NewAuthHandler(svc.Auth, cfg.AuthAllowSignUp)

	api := r.Group("/api")
	api.GET("/posts", posts.ListPosts)
	api.GET("/posts/:id", posts.GetPublishedPost)

	authG := api.Group("/auth")
	authG.POST("/signup", authH.SignUp)
	authG.POST("/login", authH.SignIn)
	authG.POST("/logout", authH.RequireSession, authH.SignOut)
	authG.GET("/session", authH.RequireSession, authH.Session)

	admin := api.Group("/admin", authH.RequireSession)
	admin.GET("/posts", posts.ListPosts)
	admin.POST("/posts", posts.CreatePost)
	admin.GET("/posts/:id", posts.GetPost)
	admin.PUT("/posts/:id", posts.UpdatePost)
	admin.DELETE("/posts/:id", posts.DeletePost)

	admin.GET("/categories", categories.List)
	admin.POST("/categories", categories.Create)
	admin.GET("/categories/:id", categories.Get)
	admin.PUT("/categories/:id", categories.Update)
	admin.DELETE("/categories/:id", categories.Delete)

	if svc.Storage != nil {
		thumbs := handlers.NewThumbnailHandler(svc.Storage)
		admin.POST("/thumbnails", thumbs.Upload)
		r.Static("/storage/"+storage.Bucket, svc.Storage.Dir())
	}

	return r
}
