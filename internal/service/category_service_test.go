package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/blog-cms/internal/cache"
)

func TestCategoryLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	c, err := f.cats.Create(ctx, CategoryInput{Name: " Tech "})
	require.NoError(t, err)
	assert.NotZero(t, c.ID)
	assert.Equal(t, "Tech", c.Name)

	updated, err := f.cats.Update(ctx, c.ID, CategoryInput{Name: "Technology"})
	require.NoError(t, err)
	assert.Equal(t, "Technology", updated.Name)

	got, err := f.cats.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Technology", got.Name)

	require.NoError(t, f.cats.Delete(ctx, c.ID))
	_, err = f.cats.Get(ctx, c.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, f.cats.Delete(ctx, c.ID), ErrNotFound)
}

func TestCategoryValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.cats.Create(ctx, CategoryInput{Name: ""})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.cats.Update(ctx, 5, CategoryInput{Name: "x"})
	assert.ErrorIs(t, err, ErrNotFound)

	c, err := f.cats.Create(ctx, CategoryInput{Name: "x"})
	require.NoError(t, err)
	_, err = f.cats.Update(ctx, c.ID, CategoryInput{Name: "   "})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCategoryListNewestFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.category(t, "old")
	f.category(t, "new")

	list, err := f.cats.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].Name)
}

func TestCategoryChangesInvalidateTaggedPosts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.category(t, "Go")

	p, err := f.posts.CreatePost(ctx, CreatePostInput{Title: "t", Categories: refs(a)})
	require.NoError(t, err)
	_, err = f.posts.GetPublishedPost(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, f.redis.Exists(cache.PostKey(p.ID)))

	_, err = f.cats.Update(ctx, a, CategoryInput{Name: "Golang"})
	require.NoError(t, err)
	assert.False(t, f.redis.Exists(cache.PostKey(p.ID)))

	got, err := f.posts.GetPublishedPost(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got.PostCategories, 1)
	assert.Equal(t, "Golang", got.PostCategories[0].Category.Name)

	require.NoError(t, f.cats.Delete(ctx, a))
	assert.False(t, f.redis.Exists(cache.PostKey(p.ID)))
	got, err = f.posts.GetPublishedPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, got.PostCategories)
	assert.Empty(t, f.es.docs[p.ID].CategoryIDs)
}
