package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/blog-cms/internal/cache"
	"github.com/example/blog-cms/internal/db"
	"github.com/example/blog-cms/internal/models"
	"github.com/example/blog-cms/internal/search"
)

type fakeIndexer struct {
	mu      sync.Mutex
	docs    map[uint]search.Document
	deleted []uint
	err     error
}

func newFakeIndexer() *fakeIndexer { return &fakeIndexer{docs: map[uint]search.Document{}} }

func (f *fakeIndexer) IndexPost(_ context.Context, doc search.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[doc.ID] = doc
	return f.err
}

func (f *fakeIndexer) DeletePost(_ context.Context, id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, id)
	f.deleted = append(f.deleted, id)
	return f.err
}

func (f *fakeIndexer) FindRelatedPosts(_ context.Context, postID uint, categoryIDs []uint, limit int) ([]search.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	want := map[uint]bool{}
	for _, c := range categoryIDs {
		want[c] = true
	}
	out := []search.Document{}
	for id, d := range f.docs {
		if id == postID {
			continue
		}
		for _, c := range d.CategoryIDs {
			if want[c] {
				out = append(out, d)
				break
			}
		}
	}
	return out, nil
}

type fixture struct {
	db    *db.Database
	posts *PostService
	cats  *CategoryService
	redis *miniredis.Miniredis
	es    *fakeIndexer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	d, err := db.OpenSQLite(filepath.Join(t.TempDir(), "svc.db"), logger.Silent)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	require.NoError(t, d.Migrate())

	mr := miniredis.RunT(t)
	rc := cache.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)
	t.Cleanup(func() { _ = rc.Close() })

	es := newFakeIndexer()
	posts := NewPostService(d, rc, es, nil, nil)
	return &fixture{db: d, posts: posts, cats: NewCategoryService(d, posts, nil), redis: mr, es: es}
}

func (f *fixture) category(t *testing.T, name string) uint {
	t.Helper()
	c, err := f.cats.Create(context.Background(), CategoryInput{Name: name})
	require.NoError(t, err)
	return c.ID
}

func refs(ids ...uint) []CategoryRef {
	out := make([]CategoryRef, 0, len(ids))
	for _, id := range ids {
		out = append(out, CategoryRef{ID: int64(id)})
	}
	return out
}

func (f *fixture) storedCategoryIDs(t *testing.T, postID uint) []uint {
	t.Helper()
	var ids []uint
	require.NoError(t, f.db.Gorm.Model(&models.PostCategory{}).Where("post_id = ?", postID).Order("category_id").Pluck("category_id", &ids).Error)
	return ids
}

func TestNormalizeCategoryIDs(t *testing.T) {
	ids, err := NormalizeCategoryIDs([]CategoryRef{{ID: 3}, {ID: 0}, {ID: 1}, {ID: 3}, {ID: 0}})
	require.NoError(t, err)
	assert.Equal(t, []uint{3, 1}, ids)

	ids, err = NormalizeCategoryIDs(nil)
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = NormalizeCategoryIDs([]CategoryRef{{ID: -2}})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdatePost_ReplacesDisjointSet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, b, c, d := f.category(t, "a"), f.category(t, "b"), f.category(t, "c"), f.category(t, "d")

	p, err := f.posts.CreatePost(ctx, CreatePostInput{Title: "t", Content: "c", Categories: refs(a, b)})
	require.NoError(t, err)
	assert.Equal(t, []uint{a, b}, f.storedCategoryIDs(t, p.ID))

	updated, err := f.posts.UpdatePost(ctx, p.ID, UpdatePostInput{Title: "t2", Content: "c2", ThumbnailImageKey: "private/x.png", Categories: refs(c, d)})
	require.NoError(t, err)
	assert.Equal(t, "t2", updated.Title)
	assert.Equal(t, "private/x.png", updated.ThumbnailImageKey)
	assert.ElementsMatch(t, []uint{c, d}, updated.CategoryIDs())
	assert.Equal(t, []uint{c, d}, f.storedCategoryIDs(t, p.ID))
}

func TestUpdatePost_SentinelAndDuplicatesNeverStored(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.category(t, "a")

	p, err := f.posts.CreatePost(ctx, CreatePostInput{Title: "t", Categories: []CategoryRef{{ID: 0}}})
	require.NoError(t, err)
	assert.Empty(t, f.storedCategoryIDs(t, p.ID))

	_, err = f.posts.UpdatePost(ctx, p.ID, UpdatePostInput{Title: "t", Categories: []CategoryRef{{ID: 0}, {ID: int64(a)}, {ID: int64(a)}}})
	require.NoError(t, err)
	assert.Equal(t, []uint{a}, f.storedCategoryIDs(t, p.ID))

	_, err = f.posts.UpdatePost(ctx, p.ID, UpdatePostInput{Title: "t", Categories: []CategoryRef{{ID: 0}}})
	require.NoError(t, err)
	assert.Empty(t, f.storedCategoryIDs(t, p.ID))

	var zero int64
	require.NoError(t, f.db.Gorm.Model(&models.PostCategory{}).Where("category_id = 0").Count(&zero).Error)
	assert.Zero(t, zero)
}

func TestUpdatePost_UnknownCategoryLeavesPostUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.category(t, "a")

	p, err := f.posts.CreatePost(ctx, CreatePostInput{Title: "before", Categories: refs(a)})
	require.NoError(t, err)

	_, err = f.posts.UpdatePost(ctx, p.ID, UpdatePostInput{Title: "after", Categories: refs(a, 404)})
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "404")

	got, err := f.posts.GetPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "before", got.Title)
	assert.Equal(t, []uint{a}, f.storedCategoryIDs(t, p.ID))
}

func TestUpdatePost_InsertFailureRollsBackEverything(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, b := f.category(t, "a"), f.category(t, "b")

	p, err := f.posts.CreatePost(ctx, CreatePostInput{Title: "before", Categories: refs(a)})
	require.NoError(t, err)

	insertErr := errors.New("association insert failed")
	require.NoError(t, f.db.Gorm.Callback().Create().Before("gorm:create").Register("test:fail_post_categories", func(tx *gorm.DB) {
		if tx.Statement.Table == "post_categories" {
			_ = tx.AddError(insertErr)
		}
	}))
	t.Cleanup(func() { _ = f.db.Gorm.Callback().Create().Remove("test:fail_post_categories") })

	_, err = f.posts.UpdatePost(ctx, p.ID, UpdatePostInput{Title: "after", Categories: refs(b)})
	require.ErrorIs(t, err, insertErr)

	got, err := f.posts.GetPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "before", got.Title)
	assert.Equal(t, []uint{a}, f.storedCategoryIDs(t, p.ID), "old associations must survive a failed update")

	var logs int64
	require.NoError(t, f.db.Gorm.Model(&models.ActivityLog{}).Where("action = ?", models.ActionUpdatePost).Count(&logs).Error)
	assert.Zero(t, logs)
}

func TestUpdatePost_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.posts.UpdatePost(context.Background(), 999, UpdatePostInput{Title: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreatePost_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.posts.CreatePost(ctx, CreatePostInput{Title: "  "})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.posts.CreatePost(ctx, CreatePostInput{Title: "t", Categories: refs(77)})
	assert.ErrorIs(t, err, ErrValidation)

	var n int64
	require.NoError(t, f.db.Gorm.Model(&models.Post{}).Count(&n).Error)
	assert.Zero(t, n, "a rejected create must not leave a post behind")
}

func TestGetPublishedPost_CachesAndInvalidates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	p, err := f.posts.CreatePost(ctx, CreatePostInput{Title: "v1"})
	require.NoError(t, err)

	got, err := f.posts.GetPublishedPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "v1", got.Title)
	assert.True(t, f.redis.Exists(cache.PostKey(p.ID)))

	_, err = f.posts.UpdatePost(ctx, p.ID, UpdatePostInput{Title: "v2"})
	require.NoError(t, err)
	assert.False(t, f.redis.Exists(cache.PostKey(p.ID)))

	got, err = f.posts.GetPublishedPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Title)
}

func TestGetPublishedPost_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.posts.GetPublishedPost(context.Background(), 12)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeletePost(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.category(t, "a")

	p, err := f.posts.CreatePost(ctx, CreatePostInput{Title: "gone", Categories: refs(a)})
	require.NoError(t, err)
	_, err = f.posts.GetPublishedPost(ctx, p.ID)
	require.NoError(t, err)

	require.NoError(t, f.posts.DeletePost(ctx, p.ID))
	assert.Empty(t, f.storedCategoryIDs(t, p.ID))
	assert.Equal(t, []uint{p.ID}, f.es.deleted)

	_, err = f.posts.GetPublishedPost(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, f.posts.DeletePost(ctx, p.ID), ErrNotFound)
}

func TestListPostsIncludesCategories(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.category(t, "Tech")

	_, err := f.posts.CreatePost(ctx, CreatePostInput{Title: "one", Categories: refs(a)})
	require.NoError(t, err)
	_, err = f.posts.CreatePost(ctx, CreatePostInput{Title: "two"})
	require.NoError(t, err)

	list, err := f.posts.ListPosts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "two", list[0].Title)
	require.Len(t, list[1].PostCategories, 1)
	assert.Equal(t, "Tech", list[1].PostCategories[0].Category.Name)
}

func TestGetPostWithRelated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, b := f.category(t, "a"), f.category(t, "b")

	p1, err := f.posts.CreatePost(ctx, CreatePostInput{Title: "p1", Categories: refs(a)})
	require.NoError(t, err)
	p2, err := f.posts.CreatePost(ctx, CreatePostInput{Title: "p2", Categories: refs(a, b)})
	require.NoError(t, err)
	_, err = f.posts.CreatePost(ctx, CreatePostInput{Title: "p3", Categories: refs(b)})
	require.NoError(t, err)

	res, err := f.posts.GetPostWithRelated(ctx, p1.ID)
	require.NoError(t, err)
	require.Len(t, res.RelatedPosts, 1)
	assert.Equal(t, p2.ID, res.RelatedPosts[0].ID)

	f.es.err = errors.New("es down")
	res, err = f.posts.GetPostWithRelated(ctx, p1.ID)
	require.NoError(t, err)
	assert.Empty(t, res.RelatedPosts)
}

func TestSideEffectFailuresAreNotReturned(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.es.err = errors.New("es down")
	dead := cache.New(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1}), time.Minute)
	t.Cleanup(func() { _ = dead.Close() })
	posts := NewPostService(f.db, dead, f.es, nil, nil)

	p, err := posts.CreatePost(ctx, CreatePostInput{Title: "t"})
	require.NoError(t, err)
	_, err = posts.UpdatePost(ctx, p.ID, UpdatePostInput{Title: "t2"})
	require.NoError(t, err)

	got, err := posts.GetPublishedPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "t2", got.Title)
}

func TestConcurrentPublishedReadsAgree(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p, err := f.posts.CreatePost(ctx, CreatePostInput{Title: "shared"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	titles := make([]string, 8)
	for i := range titles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := f.posts.GetPublishedPost(ctx, p.ID)
			if err == nil {
				titles[i] = got.Title
			}
		}(i)
	}
	wg.Wait()
	for _, title := range titles {
		assert.Equal(t, "shared", title)
	}
}

// gatedCache holds the first SetJSON until release is closed.
type gatedCache struct {
	Cache
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedCache) SetJSON(ctx context.Context, key string, value interface{}) error {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.Cache.SetJSON(ctx, key, value)
}

func TestGetPublishedPost_RacingUpdateDoesNotRecacheOldRow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c1, c2 := f.category(t, "c1"), f.category(t, "c2")

	rc := cache.New(redis.NewClient(&redis.Options{Addr: f.redis.Addr()}), time.Minute)
	t.Cleanup(func() { _ = rc.Close() })
	gated := &gatedCache{Cache: rc, entered: make(chan struct{}), release: make(chan struct{})}
	posts := NewPostService(f.db, gated, f.es, nil, nil)

	p, err := posts.CreatePost(ctx, CreatePostInput{Title: "t", Categories: refs(c1)})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = posts.GetPublishedPost(ctx, p.ID)
	}()
	select {
	case <-gated.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("cache write never started")
	}

	_, err = posts.UpdatePost(ctx, p.ID, UpdatePostInput{Title: "t2", Categories: refs(c2)})
	require.NoError(t, err)
	close(gated.release)
	<-done

	got, err := posts.GetPublishedPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "t2", got.Title)
	assert.Equal(t, []uint{c2}, got.CategoryIDs())
}

func TestGetPublishedPost_SharedReadIgnoresCallerCancel(t *testing.T) {
	f := newFixture(t)
	posts := NewPostService(f.db, nil, f.es, nil, nil)
	p, err := posts.CreatePost(context.Background(), CreatePostInput{Title: "t"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got, err := posts.GetPublishedPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "t", got.Title)
}

type fakeFiles struct {
	mu      sync.Mutex
	removed []string
}

func (f *fakeFiles) PublicURL(key string) string { return "https://cdn.test/" + key }

func (f *fakeFiles) Remove(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, key)
	return nil
}

func TestThumbnailsAreRemovedWhenUnused(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	files := &fakeFiles{}
	posts := NewPostService(f.db, nil, f.es, files, nil)

	p, err := posts.CreatePost(ctx, CreatePostInput{Title: "t", ThumbnailImageKey: "private/a.png"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/private/a.png", p.ThumbnailImageURL)
	other, err := posts.CreatePost(ctx, CreatePostInput{Title: "o", ThumbnailImageKey: "private/shared.png"})
	require.NoError(t, err)

	_, err = posts.UpdatePost(ctx, p.ID, UpdatePostInput{Title: "t", ThumbnailImageKey: "private/a.png"})
	require.NoError(t, err)
	assert.Empty(t, files.removed, "unchanged key keeps its file")

	_, err = posts.UpdatePost(ctx, p.ID, UpdatePostInput{Title: "t", ThumbnailImageKey: "private/shared.png"})
	require.NoError(t, err)
	assert.Equal(t, []string{"private/a.png"}, files.removed)

	require.NoError(t, posts.DeletePost(ctx, other.ID))
	assert.Equal(t, []string{"private/a.png"}, files.removed, "a key still referenced by another post is kept")

	require.NoError(t, posts.DeletePost(ctx, p.ID))
	assert.Equal(t, []string{"private/a.png", "private/shared.png"}, files.removed)

	q, err := posts.CreatePost(ctx, CreatePostInput{Title: "ext", ThumbnailImageKey: "https://img.test/x.png"})
	require.NoError(t, err)
	require.NoError(t, posts.DeletePost(ctx, q.ID))
	assert.Len(t, files.removed, 2, "external URLs are not stored files")
}
