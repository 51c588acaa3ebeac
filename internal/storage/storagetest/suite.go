// Package storagetest содержит общий набор проверок для реализаций storage.Storage.
package storagetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/UkralStul/yatube/internal/domain"
	"github.com/UkralStul/yatube/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory создает пустое хранилище для одного теста.
type Factory func(t *testing.T) storage.Storage

// Run прогоняет все проверки контракта Storage.
func Run(t *testing.T, newStore Factory) {
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("UserPassword", func(t *testing.T) { testUserPassword(t, newStore(t)) })
	t.Run("Groups", func(t *testing.T) { testGroups(t, newStore(t)) })
	t.Run("Posts", func(t *testing.T) { testPosts(t, newStore(t)) })
	t.Run("PostFilters", func(t *testing.T) { testPostFilters(t, newStore(t)) })
	t.Run("UpdatePost", func(t *testing.T) { testUpdatePost(t, newStore(t)) })
	t.Run("Comments", func(t *testing.T) { testComments(t, newStore(t)) })
	t.Run("Follows", func(t *testing.T) { testFollows(t, newStore(t)) })
	t.Run("CascadeDeletes", func(t *testing.T) { testCascadeDeletes(t, newStore(t)) })
	t.Run("Batches", func(t *testing.T) { testBatches(t, newStore(t)) })
}

// MustUser создает пользователя или роняет тест.
func MustUser(t *testing.T, s storage.Storage, username string) *domain.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), &domain.User{Username: username, PasswordHash: "x"})
	require.NoError(t, err)
	return u
}

// MustGroup создает группу или роняет тест.
func MustGroup(t *testing.T, s storage.Storage, slug string) *domain.Group {
	t.Helper()
	g, err := s.CreateGroup(context.Background(), &domain.Group{
		Title:       "Группа " + slug,
		Slug:        slug,
		Description: "Тестовое описание",
	})
	require.NoError(t, err)
	return g
}

// MustPost создает пост или роняет тест.
func MustPost(t *testing.T, s storage.Storage, author *domain.User, group *domain.Group, text string) *domain.Post {
	t.Helper()
	post := &domain.Post{Text: text, AuthorID: author.ID}
	if group != nil {
		post.GroupID = &group.ID
	}
	p, err := s.CreatePost(context.Background(), post)
	require.NoError(t, err)
	return p
}

func testUsers(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	u := MustUser(t, s, "leo")
	assert.NotEmpty(t, u.ID)
	assert.False(t, u.CreatedAt.IsZero())

	byID, err := s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "leo", byID.Username)

	byName, err := s.GetUserByUsername(ctx, "leo")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byName.ID)

	_, err = s.CreateUser(ctx, &domain.User{Username: "leo", PasswordHash: "y"})
	assert.ErrorIs(t, err, storage.ErrConflict)

	_, err = s.GetUserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testUserPassword(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	u := MustUser(t, s, "leo")
	other := MustUser(t, s, "kitty")

	require.NoError(t, s.UpdateUserPassword(ctx, u.ID, "new-hash"))

	got, err := s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)
	assert.Equal(t, "leo", got.Username)

	untouched, err := s.GetUserByID(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, "x", untouched.PasswordHash)

	err = s.UpdateUserPassword(ctx, "00000000-0000-0000-0000-000000000000", "h")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testGroups(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	g := MustGroup(t, s, "cats")
	MustGroup(t, s, "arts")

	bySlug, err := s.GetGroupBySlug(ctx, "cats")
	require.NoError(t, err)
	assert.Equal(t, g.ID, bySlug.ID)
	assert.Equal(t, "Группа cats", bySlug.Title)

	byID, err := s.GetGroupByID(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "cats", byID.Slug)

	_, err = s.CreateGroup(ctx, &domain.Group{Title: "Дубль", Slug: "cats", Description: "-"})
	assert.ErrorIs(t, err, storage.ErrConflict)

	_, err = s.CreateGroup(ctx, &domain.Group{Title: "Плохой слаг", Slug: "два слова", Description: "-"})
	assert.ErrorIs(t, err, storage.ErrInvalid)

	groups, err := s.ListGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "arts", groups[0].Slug)

	_, err = s.GetGroupBySlug(ctx, "dogs")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testPosts(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	author := MustUser(t, s, "author")
	group := MustGroup(t, s, "test-slug")

	first := MustPost(t, s, author, group, "Первый пост")
	second := MustPost(t, s, author, nil, "Второй пост")
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.CreatedAt.IsZero())

	got, err := s.GetPostByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Первый пост", got.Text)
	require.NotNil(t, got.GroupID)
	assert.Equal(t, group.ID, *got.GroupID)

	posts, err := s.ListPosts(ctx, storage.PostFilter{}, storage.PageArgs{Limit: 10})
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, second.ID, posts[0].ID, "newest first")
	assert.Equal(t, first.ID, posts[1].ID)

	_, err = s.CreatePost(ctx, &domain.Post{Text: "   ", AuthorID: author.ID})
	assert.ErrorIs(t, err, storage.ErrInvalid)

	_, err = s.GetPostByID(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testPostFilters(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	author := MustUser(t, s, "author")
	other := MustUser(t, s, "other")
	reader := MustUser(t, s, "reader")
	group := MustGroup(t, s, "test-slug")

	for i := 0; i < 13; i++ {
		MustPost(t, s, author, group, fmt.Sprintf("Тест пост #%d", i+1))
	}
	MustPost(t, s, other, nil, "Чужой пост")

	total, err := s.CountPosts(ctx, storage.PostFilter{})
	require.NoError(t, err)
	assert.Equal(t, 14, total)

	byGroup, err := s.CountPosts(ctx, storage.PostFilter{GroupID: group.ID})
	require.NoError(t, err)
	assert.Equal(t, 13, byGroup)

	byAuthor, err := s.CountPosts(ctx, storage.PostFilter{AuthorID: other.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, byAuthor)

	page2, err := s.ListPosts(ctx, storage.PostFilter{GroupID: group.ID}, storage.PageArgs{Limit: 10, Offset: 10})
	require.NoError(t, err)
	require.Len(t, page2, 3)
	assert.Equal(t, "Тест пост #1", page2[2].Text)

	feed, err := s.ListPosts(ctx, storage.PostFilter{FollowerID: reader.ID}, storage.PageArgs{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, feed)

	_, _, err = s.CreateFollow(ctx, reader.ID, other.ID)
	require.NoError(t, err)
	feed, err = s.ListPosts(ctx, storage.PostFilter{FollowerID: reader.ID}, storage.PageArgs{Limit: 10})
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, "Чужой пост", feed[0].Text)
}

func testUpdatePost(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	author := MustUser(t, s, "author")
	group := MustGroup(t, s, "test-slug")
	newGroup := MustGroup(t, s, "new-slug")
	post := MustPost(t, s, author, group, "Тестовое содержание поста")

	image := "posts/small_new.gif"
	updated, err := s.UpdatePost(ctx, post.ID, storage.PostUpdate{
		Text:    "Отредактированный пост",
		GroupID: &newGroup.ID,
		Image:   &image,
	})
	require.NoError(t, err)
	assert.Equal(t, "Отредактированный пост", updated.Text)

	got, err := s.GetPostByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "Отредактированный пост", got.Text)
	require.NotNil(t, got.GroupID)
	assert.Equal(t, newGroup.ID, *got.GroupID)
	assert.Equal(t, "posts/small_new.gif", got.Image)
	assert.Equal(t, post.AuthorID, got.AuthorID)

	// Без картинки в обновлении старая сохраняется, группу можно снять.
	_, err = s.UpdatePost(ctx, post.ID, storage.PostUpdate{Text: "Ещё раз"})
	require.NoError(t, err)
	got, err = s.GetPostByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Nil(t, got.GroupID)
	assert.Equal(t, "posts/small_new.gif", got.Image)

	_, err = s.UpdatePost(ctx, post.ID, storage.PostUpdate{Text: ""})
	assert.ErrorIs(t, err, storage.ErrInvalid)
}

func testComments(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	author := MustUser(t, s, "author")
	post := MustPost(t, s, author, nil, "Пост")

	first, err := s.CreateComment(ctx, &domain.Comment{PostID: post.ID, AuthorID: author.ID, Text: "первый"})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	_, err = s.CreateComment(ctx, &domain.Comment{PostID: post.ID, AuthorID: author.ID, Text: "второй"})
	require.NoError(t, err)

	comments, err := s.GetCommentsByPostID(ctx, post.ID)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "второй", comments[0].Text, "newest first")

	_, err = s.CreateComment(ctx, &domain.Comment{PostID: post.ID, AuthorID: author.ID, Text: "  "})
	assert.ErrorIs(t, err, storage.ErrInvalid)

	_, err = s.CreateComment(ctx, &domain.Comment{PostID: "00000000-0000-0000-0000-000000000000", AuthorID: author.ID, Text: "в пустоту"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testFollows(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	author := MustUser(t, s, "author")
	follower := MustUser(t, s, "follower")

	f, created, err := s.CreateFollow(ctx, follower.ID, author.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, follower.ID, f.UserID)

	again, created, err := s.CreateFollow(ctx, follower.ID, author.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, f.ID, again.ID)

	ok, err := s.IsFollowing(ctx, follower.ID, author.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.IsFollowing(ctx, author.ID, follower.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.CountFollowers(ctx, author.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.CountFollowing(ctx, follower.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.DeleteFollow(ctx, follower.ID, author.ID))
	require.NoError(t, s.DeleteFollow(ctx, follower.ID, author.ID), "unfollow is idempotent")
	n, err = s.CountFollowers(ctx, author.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func testCascadeDeletes(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	author := MustUser(t, s, "author")
	reader := MustUser(t, s, "reader")
	group := MustGroup(t, s, "test-slug")
	post := MustPost(t, s, author, group, "Пост автора")
	readerPost := MustPost(t, s, reader, group, "Пост читателя")
	_, err := s.CreateComment(ctx, &domain.Comment{PostID: readerPost.ID, AuthorID: author.ID, Text: "от автора"})
	require.NoError(t, err)
	_, err = s.CreateComment(ctx, &domain.Comment{PostID: post.ID, AuthorID: reader.ID, Text: "от читателя"})
	require.NoError(t, err)
	_, _, err = s.CreateFollow(ctx, reader.ID, author.ID)
	require.NoError(t, err)

	// Удаление группы отвязывает посты.
	require.NoError(t, s.DeleteGroup(ctx, group.ID))
	got, err := s.GetPostByID(ctx, readerPost.ID)
	require.NoError(t, err)
	assert.Nil(t, got.GroupID)

	// Удаление пользователя удаляет его посты, комментарии и подписки.
	require.NoError(t, s.DeleteUser(ctx, author.ID))
	_, err = s.GetPostByID(ctx, post.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	comments, err := s.GetCommentsByPostID(ctx, readerPost.ID)
	require.NoError(t, err)
	assert.Empty(t, comments)
	n, err := s.CountFollowing(ctx, reader.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Удаление поста удаляет его комментарии.
	_, err = s.CreateComment(ctx, &domain.Comment{PostID: readerPost.ID, AuthorID: reader.ID, Text: "сам себе"})
	require.NoError(t, err)
	require.NoError(t, s.DeletePost(ctx, readerPost.ID))
	comments, err = s.GetCommentsByPostID(ctx, readerPost.ID)
	require.NoError(t, err)
	assert.Empty(t, comments)
	assert.ErrorIs(t, s.DeletePost(ctx, readerPost.ID), storage.ErrNotFound)
}

func testBatches(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	a := MustUser(t, s, "a")
	b := MustUser(t, s, "b")
	g := MustGroup(t, s, "g")

	users, err := s.GetUsersByIDs(ctx, []string{a.ID, b.ID, "00000000-0000-0000-0000-000000000000"})
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.Equal(t, "b", users[b.ID].Username)

	groups, err := s.GetGroupsByIDs(ctx, []string{g.ID})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "g", groups[g.ID].Slug)
}
