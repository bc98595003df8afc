package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/example/blog-cms/internal/models"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidInput = errors.New("invalid input")
	ErrEmailTaken   = errors.New("email already registered")
)

const minPasswordLen = 6

// Claims are carried by every issued token. ID (jti) names the session row.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Session is a verified, unexpired sign-in.
type Session struct {
	Token     string    `json:"token"`
	UserID    uint      `json:"userId"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Provider issues and verifies bearer tokens for admin users.
type Provider struct {
	db     *gorm.DB
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewProvider(db *gorm.DB, secret string, ttl time.Duration) *Provider {
	return &Provider{db: db, secret: []byte(secret), ttl: ttl, now: time.Now}
}

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

func (p *Provider) SignUp(ctx context.Context, email, password string) (*models.AdminUser, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: email %q", ErrInvalidInput, email)
	}
	if len(password) < minPasswordLen {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	var n int64
	if err := p.db.WithContext(ctx).Model(&models.AdminUser{}).Where("email = ?", email).Count(&n).Error; err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, ErrEmailTaken
	}
	u := &models.AdminUser{Email: email, PasswordHash: string(hash)}
	if err := p.db.WithContext(ctx).Create(u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return u, nil
}

func (p *Provider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	var u models.AdminUser
	err := p.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: invalid email or password", ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, fmt.Errorf("%w: invalid email or password", ErrUnauthorized)
	}

	now := p.now()
	row := models.AuthSession{ID: uuid.NewString(), UserID: u.ID, ExpiresAt: now.Add(p.ttl)}
	if err := p.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, err
	}
	claims := Claims{
		Email: u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        row.ID,
			Subject:   strconv.FormatUint(uint64(u.ID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(row.ExpiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, UserID: u.ID, Email: u.Email, ExpiresAt: row.ExpiresAt}, nil
}

func (p *Provider) parse(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(p.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: token has no session", ErrUnauthorized)
	}
	return claims, nil
}

// Verify checks the token signature and expiry and that its session has not
// been revoked.
func (p *Provider) Verify(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing token", ErrUnauthorized)
	}
	claims, err := p.parse(token)
	if err != nil {
		return nil, err
	}
	var row models.AuthSession
	err = p.db.WithContext(ctx).Where("id = ? AND expires_at > ?", claims.ID, p.now()).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: session revoked or expired", ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, UserID: row.UserID, Email: claims.Email, ExpiresAt: row.ExpiresAt}, nil
}

// SignOut revokes the token's session. Signing out an unknown session is not an error.
func (p *Provider) SignOut(ctx context.Context, token string) error {
	claims, err := p.parse(token)
	if err != nil {
		return err
	}
	return p.db.WithContext(ctx).Where("id = ?", claims.ID).Delete(&models.AuthSession{}).Error
}

// PurgeExpired deletes session rows past their expiry.
func (p *Provider) PurgeExpired(ctx context.Context) (int64, error) {
	res := p.db.WithContext(ctx).Where("expires_at <= ?", p.now()).Delete(&models.AuthSession{})
	return res.RowsAffected, res.Error
}

// TokenFromHeader accepts both "Bearer <token>" and a raw token.
func TokenFromHeader(h string) string {
	h = strings.TrimSpace(h)
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return h
}
