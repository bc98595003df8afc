package service

import (
	"context"
	"log/slog"
	"strings"

	"gorm.io/gorm"

	"github.com/example/blog-cms/internal/db"
	"github.com/example/blog-cms/internal/models"
	"github.com/example/blog-cms/internal/repository"
)

type CategoryService struct {
	db      *db.Database
	repo    *repository.CategoryRepository
	posts   *repository.PostRepository
	// postSvc drops cached post details that embed a renamed or deleted category.
	postSvc *PostService
	log     *slog.Logger
}

func NewCategoryService(database *db.Database, posts *PostService, logger *slog.Logger) *CategoryService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CategoryService{
		db:      database,
		repo:    repository.NewCategoryRepository(database.Gorm),
		posts:   repository.NewPostRepository(database.Gorm),
		postSvc: posts,
		log:     logger.With("component", "category_service"),
	}
}

type CategoryInput struct {
	Name string `json:"name"`
}

func (in CategoryInput) name() (string, error) {
	n := strings.TrimSpace(in.Name)
	if n == "" {
		return "", invalid("name is required")
	}
	return n, nil
}

func (s *CategoryService) List(ctx context.Context) ([]models.Category, error) {
	return s.repo.List(ctx)
}

func (s *CategoryService) Get(ctx context.Context, id uint) (*models.Category, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, translate(err, "category", id)
	}
	return c, nil
}

func (s *CategoryService) Create(ctx context.Context, in CategoryInput) (*models.Category, error) {
	name, err := in.name()
	if err != nil {
		return nil, err
	}
	c := &models.Category{Name: name}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "category created", "category_id", c.ID)
	return c, nil
}

func (s *CategoryService) Update(ctx context.Context, id uint, in CategoryInput) (*models.Category, error) {
	name, err := in.name()
	if err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if _, err := s.repo.UpdateName(ctx, id, name); err != nil {
		return nil, err
	}
	s.invalidateTagged(ctx, s.db.Gorm, id)
	return s.Get(ctx, id)
}

func (s *CategoryService) Delete(ctx context.Context, id uint) error {
	var tagged []uint
	err := s.db.Transaction(ctx, func(tx *gorm.DB) error {
		var err error
		if tagged, err = s.posts.PostIDsForCategory(ctx, tx, id); err != nil {
			return err
		}
		n, err := s.repo.Delete(ctx, tx, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return notFound("category", id)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.InfoContext(ctx, "category deleted", "category_id", id, "untagged_posts", len(tagged))
	if s.postSvc != nil && len(tagged) > 0 {
		s.postSvc.invalidate(ctx, tagged...)
		for _, pid := range tagged {
			if p, err := s.postSvc.GetPost(ctx, pid); err == nil {
				s.postSvc.reindex(ctx, p)
			}
		}
	}
	return nil
}

func (s *CategoryService) invalidateTagged(ctx context.Context, tx *gorm.DB, id uint) {
	if s.postSvc == nil {
		return
	}
	tagged, err := s.posts.PostIDsForCategory(ctx, tx, id)
	if err != nil {
		s.log.WarnContext(ctx, "listing tagged posts failed", "category_id", id, "error", err)
		return
	}
	if len(tagged) > 0 {
		s.postSvc.invalidate(ctx, tagged...)
	}
}
