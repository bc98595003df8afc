package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/example/blog-cms/internal/auth"
	"github.com/example/blog-cms/internal/models"
)

const sessionKey = "auth.session"

// Authenticator is the auth provider as seen by the HTTP layer.
type Authenticator interface {
	SignUp(ctx context.Context, email, password string) (*models.AdminUser, error)
	SignIn(ctx context.Context, email, password string) (*auth.Session, error)
	Verify(ctx context.Context, token string) (*auth.Session, error)
	SignOut(ctx context.Context, token string) error
}

type AuthHandler struct {
	auth        Authenticator
	allowSignUp bool
}

func NewAuthHandler(a Authenticator, allowSignUp bool) *AuthHandler {
	return &AuthHandler{auth: a, allowSignUp: allowSignUp}
}

type credentialsReq struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RequireSession rejects requests without a valid Authorization token.
func (h *AuthHandler) RequireSession(c *gin.Context) {
	s, err := h.auth.Verify(c.Request.Context(), auth.TokenFromHeader(c.GetHeader("Authorization")))
	if err != nil {
		fail(c, err)
		return
	}
	c.Set(sessionKey, s)
	c.Next()
}

func currentSession(c *gin.Context) *auth.Session {
	if v, ok := c.Get(sessionKey); ok {
		if s, ok := v.(*auth.Session); ok {
			return s
		}
	}
	return nil
}

func (h *AuthHandler) SignUp(c *gin.Context) {
	if !h.allowSignUp {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"status": "sign-up is disabled"})
		return
	}
	var req credentialsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if _, err := h.auth.SignUp(c.Request.Context(), req.Email, req.Password); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": statusOK})
}

func (h *AuthHandler) SignIn(c *gin.Context) {
	var req credentialsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	s, err := h.auth.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusOK, "token": s.Token, "expiresAt": s.ExpiresAt})
}

func (h *AuthHandler) SignOut(c *gin.Context) {
	s := currentSession(c)
	if s == nil {
		fail(c, auth.ErrUnauthorized)
		return
	}
	if err := h.auth.SignOut(c.Request.Context(), s.Token); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusOK})
}

func (h *AuthHandler) Session(c *gin.Context) {
	s := currentSession(c)
	if s == nil {
		fail(c, auth.ErrUnauthorized)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusOK, "email": s.Email, "expiresAt": s.ExpiresAt})
}
