package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/example/blog-cms/internal/cache"
	"github.com/example/blog-cms/internal/db"
	"github.com/example/blog-cms/internal/models"
	"github.com/example/blog-cms/internal/repository"
	"github.com/example/blog-cms/internal/search"
)

const relatedPostsLimit = 5

// Cache is the read-through store for public post details.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}) error
	Del(ctx context.Context, keys ...string) error
}

// Indexer keeps the post search index in step with the database.
type Indexer interface {
	IndexPost(ctx context.Context, doc search.Document) error
	DeletePost(ctx context.Context, id uint) error
	FindRelatedPosts(ctx context.Context, postID uint, categoryIDs []uint, limit int) ([]search.Document, error)
}

// Thumbnails resolves stored thumbnail keys and removes files no post uses.
type Thumbnails interface {
	PublicURL(key string) string
	Remove(key string) error
}

type PostService struct {
	db     *db.Database
	cache  Cache
	es     Indexer
	files  Thumbnails
	log    *slog.Logger
	repo   *repository.PostRepository
	cats   *repository.CategoryRepository
	detail singleflight.Group

	// gens counts invalidations per post so a read that raced an update
	// does not put its older row back into the cache.
	genMu sync.Mutex
	gens  map[uint]uint64
}

// NewPostService wires the service. cache, es and files may be nil.
func NewPostService(database *db.Database, c Cache, es Indexer, files Thumbnails, logger *slog.Logger) *PostService {
	if c == nil {
		c = noopCache{}
	}
	if es == nil {
		es = noopIndexer{}
	}
	if files == nil {
		files = rawKeys{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostService{
		db:    database,
		cache: c,
		es:    es,
		files: files,
		log:   logger.With("component", "post_service"),
		repo:  repository.NewPostRepository(database.Gorm),
		cats:  repository.NewCategoryRepository(database.Gorm),
		gens:  map[uint]uint64{},
	}
}

// CategoryRef is one submitted association; ID 0 means "no category selected".
type CategoryRef struct {
	ID int64 `json:"id"`
}

type CreatePostInput struct {
	Title             string        `json:"title"`
	Content           string        `json:"content"`
	ThumbnailImageKey string        `json:"thumbnailImageKey"`
	Categories        []CategoryRef `json:"categories"`
}

type UpdatePostInput struct {
	Title             string        `json:"title"`
	Content           string        `json:"content"`
	ThumbnailImageKey string        `json:"thumbnailImageKey"`
	Categories        []CategoryRef `json:"categories"`
}

type PostWithRelated struct {
	*models.Post
	RelatedPosts []search.Document `json:"relatedPosts"`
}

// NormalizeCategoryIDs drops the 0 sentinel and duplicates, keeping the
// first occurrence order. Negative ids are rejected.
func NormalizeCategoryIDs(refs []CategoryRef) ([]uint, error) {
	seen := make(map[int64]struct{}, len(refs))
	ids := make([]uint, 0, len(refs))
	for _, r := range refs {
		switch {
		case r.ID == 0:
			continue
		case r.ID < 0:
			return nil, invalid("category id %d", r.ID)
		}
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		ids = append(ids, uint(r.ID))
	}
	return ids, nil
}

func validateFields(title string) error {
	if strings.TrimSpace(title) == "" {
		return invalid("title is required")
	}
	return nil
}

// checkCategories fails with ErrValidation if any id has no category row.
func (s *PostService) checkCategories(ctx context.Context, tx *gorm.DB, ids []uint) error {
	missing, err := s.cats.Missing(ctx, tx, ids)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return invalid("unknown category ids %v", missing)
	}
	return nil
}

func (s *PostService) decorate(p *models.Post) *models.Post {
	p.ThumbnailImageURL = s.files.PublicURL(p.ThumbnailImageKey)
	return p
}

func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (_ *models.Post, err error) {
	ctx, span := tracer.Start(ctx, "PostService.CreatePost")
	defer func() { endSpan(span, err) }()

	if err := validateFields(in.Title); err != nil {
		return nil, err
	}
	ids, err := NormalizeCategoryIDs(in.Categories)
	if err != nil {
		return nil, err
	}

	var created *models.Post
	err = s.db.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.checkCategories(ctx, tx, ids); err != nil {
			return err
		}
		post := &models.Post{Title: in.Title, Content: in.Content, ThumbnailImageKey: in.ThumbnailImageKey}
		if err := s.repo.Create(ctx, tx, post); err != nil {
			return err
		}
		if _, err := s.repo.ReplaceCategories(ctx, tx, post.ID, ids); err != nil {
			return translate(err, "post", post.ID)
		}
		if err := s.repo.LogActivity(ctx, tx, models.ActionNewPost, post.ID); err != nil {
			return err
		}
		p, err := s.repo.GetByIDTx(ctx, tx, post.ID)
		if err != nil {
			return err
		}
		created = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	associationsWritten.Add(ctx, int64(len(ids)))
	span.SetAttributes(attribute.Int64("post.id", int64(created.ID)))
	s.log.InfoContext(ctx, "post created", "post_id", created.ID, "categories", ids)

	s.reindex(ctx, created)
	return s.decorate(created), nil
}

// UpdatePost rewrites the post's fields and replaces its category set with
// exactly the submitted ids, all in one transaction.
func (s *PostService) UpdatePost(ctx context.Context, id uint, in UpdatePostInput) (_ *models.Post, err error) {
	ctx, span := tracer.Start(ctx, "PostService.UpdatePost", trace.WithAttributes(attribute.Int64("post.id", int64(id))))
	defer func() { endSpan(span, err) }()

	if err := validateFields(in.Title); err != nil {
		return nil, err
	}
	ids, err := NormalizeCategoryIDs(in.Categories)
	if err != nil {
		return nil, err
	}

	var (
		updated *models.Post
		removed int64
		oldKey  string
	)
	err = s.db.Transaction(ctx, func(tx *gorm.DB) error {
		key, ok, err := s.repo.ThumbnailKey(ctx, tx, id)
		if err != nil {
			return err
		}
		if !ok {
			return notFound("post", id)
		}
		oldKey = key
		if err := s.checkCategories(ctx, tx, ids); err != nil {
			return err
		}
		post := &models.Post{ID: id, Title: in.Title, Content: in.Content, ThumbnailImageKey: in.ThumbnailImageKey}
		if err := s.repo.UpdateFields(ctx, tx, post); err != nil {
			return err
		}
		if removed, err = s.repo.ReplaceCategories(ctx, tx, id, ids); err != nil {
			return translate(err, "post", id)
		}
		if err := s.repo.LogActivity(ctx, tx, models.ActionUpdatePost, id); err != nil {
			return err
		}
		p, err := s.repo.GetByIDTx(ctx, tx, id)
		if err != nil {
			return translate(err, "post", id)
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	associationsRemoved.Add(ctx, removed, metric.WithAttributes(attribute.String("op", "update")))
	associationsWritten.Add(ctx, int64(len(ids)), metric.WithAttributes(attribute.String("op", "update")))
	s.log.InfoContext(ctx, "post updated", "post_id", id, "categories", ids, "removed", removed)

	s.invalidate(ctx, id)
	s.reindex(ctx, updated)
	if oldKey != updated.ThumbnailImageKey {
		s.removeThumbnail(ctx, oldKey)
	}
	return s.decorate(updated), nil
}

func (s *PostService) DeletePost(ctx context.Context, id uint) (err error) {
	ctx, span := tracer.Start(ctx, "PostService.DeletePost", trace.WithAttributes(attribute.Int64("post.id", int64(id))))
	defer func() { endSpan(span, err) }()

	var thumb string
	err = s.db.Transaction(ctx, func(tx *gorm.DB) error {
		key, ok, err := s.repo.ThumbnailKey(ctx, tx, id)
		if err != nil {
			return err
		}
		if !ok {
			return notFound("post", id)
		}
		thumb = key
		if _, err := s.repo.ReplaceCategories(ctx, tx, id, nil); err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, tx, id); err != nil {
			return err
		}
		return s.repo.LogActivity(ctx, tx, models.ActionDeletePost, id)
	})
	if err != nil {
		return err
	}
	s.log.InfoContext(ctx, "post deleted", "post_id", id)

	s.invalidate(ctx, id)
	if err := s.es.DeletePost(ctx, id); err != nil {
		s.log.WarnContext(ctx, "search delete failed", "post_id", id, "error", err)
	}
	s.removeThumbnail(ctx, thumb)
	return nil
}

// removeThumbnail deletes the stored file for key once no post refers to it.
// Absolute URLs are external and left alone.
func (s *PostService) removeThumbnail(ctx context.Context, key string) {
	if key == "" || strings.HasPrefix(key, "http://") || strings.HasPrefix(key, "https://") {
		return
	}
	inUse, err := s.repo.ThumbnailInUse(ctx, key)
	if err != nil {
		s.log.WarnContext(ctx, "thumbnail usage check failed", "key", key, "error", err)
		return
	}
	if inUse {
		return
	}
	if err := s.files.Remove(key); err != nil {
		s.log.WarnContext(ctx, "thumbnail remove failed", "key", key, "error", err)
	}
}

func (s *PostService) ListPosts(ctx context.Context) ([]models.Post, error) {
	posts, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range posts {
		s.decorate(&posts[i])
	}
	return posts, nil
}

// GetPost reads without the cache; the admin area uses it.
func (s *PostService) GetPost(ctx context.Context, id uint) (*models.Post, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, translate(err, "post", id)
	}
	return s.decorate(p), nil
}

// GetPublishedPost is the cached public detail read. Concurrent misses for
// the same id share one database read, which is detached from the first
// caller's cancellation. The returned post must not be mutated.
func (s *PostService) GetPublishedPost(ctx context.Context, id uint) (*models.Post, error) {
	key := cache.PostKey(id)
	var post models.Post
	if found, err := s.cache.GetJSON(ctx, key, &post); err == nil && found {
		return &post, nil
	} else if err != nil {
		s.log.WarnContext(ctx, "cache read failed", "key", key, "error", err)
	}

	v, err, _ := s.detail.Do(key, func() (interface{}, error) {
		ctx := context.WithoutCancel(ctx)
		gen := s.generation(id)
		p, err := s.GetPost(ctx, id)
		if err != nil {
			return nil, err
		}
		if s.generation(id) != gen {
			return p, nil
		}
		if err := s.cache.SetJSON(ctx, key, p); err != nil {
			s.log.WarnContext(ctx, "cache write failed", "key", key, "error", err)
		}
		// An invalidation that landed during the write may have run its Del first.
		if s.generation(id) != gen {
			if err := s.cache.Del(ctx, key); err != nil {
				s.log.WarnContext(ctx, "cache invalidation failed", "keys", []string{key}, "error", err)
			}
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Post), nil
}

func (s *PostService) GetPostWithRelated(ctx context.Context, id uint) (*PostWithRelated, error) {
	post, err := s.GetPublishedPost(ctx, id)
	if err != nil {
		return nil, err
	}

	related, err := s.es.FindRelatedPosts(ctx, id, post.CategoryIDs(), relatedPostsLimit)
	if err != nil {
		s.log.WarnContext(ctx, "related posts lookup failed", "post_id", id, "error", err)
		related = []search.Document{}
	}
	return &PostWithRelated{Post: post, RelatedPosts: related}, nil
}

func (s *PostService) generation(id uint) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.gens[id]
}

func (s *PostService) invalidate(ctx context.Context, ids ...uint) {
	s.genMu.Lock()
	for _, id := range ids {
		s.gens[id]++
	}
	s.genMu.Unlock()

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, cache.PostKey(id))
		s.detail.Forget(cache.PostKey(id))
	}
	if err := s.cache.Del(ctx, keys...); err != nil {
		s.log.WarnContext(ctx, "cache invalidation failed", "keys", keys, "error", err)
	}
}

func (s *PostService) reindex(ctx context.Context, p *models.Post) {
	if err := s.es.IndexPost(ctx, search.DocumentFor(p)); err != nil {
		s.log.WarnContext(ctx, "search index failed", "post_id", p.ID, "error", err)
	}
}

type noopCache struct{}

func (noopCache) GetJSON(context.Context, string, interface{}) (bool, error) { return false, nil }
func (noopCache) SetJSON(context.Context, string, interface{}) error         { return nil }
func (noopCache) Del(context.Context, ...string) error                       { return nil }

type noopIndexer struct{}

func (noopIndexer) IndexPost(context.Context, search.Document) error { return nil }
func (noopIndexer) DeletePost(context.Context, uint) error           { return nil }
func (noopIndexer) FindRelatedPosts(context.Context, uint, []uint, int) ([]search.Document, error) {
	return []search.Document{}, nil
}

type rawKeys struct{}

func (rawKeys) PublicURL(key string) string { return key }
func (rawKeys) Remove(string) error         { return nil }
