package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/example/blog-cms/internal/service"
)

type PostHandler struct {
	service *service.PostService
}

func NewPostHandler(s *service.PostService) *PostHandler {
	return &PostHandler{service: s}
}

type postReq struct {
	Title             string                `json:"title" binding:"required"`
	Content           string                `json:"content"`
	ThumbnailImageKey string                `json:"thumbnailImageKey"`
	Categories        []service.CategoryRef `json:"categories"`
}

func (h *PostHandler) ListPosts(c *gin.Context) {
	posts, err := h.service.ListPosts(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusOK, "posts": posts})
}

// GetPublishedPost serves the public detail; ?include_related=true adds
// posts sharing a category.
func (h *PostHandler) GetPublishedPost(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if c.Query("include_related") == "true" {
		res, err := h.service.GetPostWithRelated(c.Request.Context(), id)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": statusOK, "post": res.Post, "relatedPosts": res.RelatedPosts})
		return
	}
	post, err := h.service.GetPublishedPost(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusOK, "post": post})
}

func (h *PostHandler) GetPost(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	post, err := h.service.GetPost(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusOK, "post": post})
}

func (h *PostHandler) CreatePost(c *gin.Context) {
	var req postReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	post, err := h.service.CreatePost(c.Request.Context(), service.CreatePostInput{
		Title:             req.Title,
		Content:           req.Content,
		ThumbnailImageKey: req.ThumbnailImageKey,
		Categories:        req.Categories,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": statusOK, "message": "created", "id": post.ID})
}

func (h *PostHandler) UpdatePost(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req postReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	post, err := h.service.UpdatePost(c.Request.Context(), id, service.UpdatePostInput{
		Title:             req.Title,
		Content:           req.Content,
		ThumbnailImageKey: req.ThumbnailImageKey,
		Categories:        req.Categories,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusOK, "post": post})
}

func (h *PostHandler) DeletePost(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.service.DeletePost(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusOK})
}
