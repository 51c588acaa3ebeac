package storage

import (
	"context"

	"github.com/UkralStul/yatube/internal/domain"
)

// PageArgs - аргументы для постраничной выборки.
type PageArgs struct {
	Limit  int
	Offset int
}

// PostFilter ограничивает выборку постов. Пустые поля не участвуют в фильтрации.
type PostFilter struct {
	AuthorID string
	GroupID  string
	// FollowerID - только посты авторов, на которых подписан этот пользователь.
	FollowerID string
}

// PostUpdate - изменяемые поля поста. Image == nil означает "не менять картинку".
type PostUpdate struct {
	Text    string
	GroupID *string
	Image   *string
}

// Storage определяет контракт для хранилищ.
type Storage interface {
	CreateUser(ctx context.Context, user *domain.User) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error
	DeleteUser(ctx context.Context, id string) error

	CreateGroup(ctx context.Context, group *domain.Group) (*domain.Group, error)
	GetGroupByID(ctx context.Context, id string) (*domain.Group, error)
	GetGroupBySlug(ctx context.Context, slug string) (*domain.Group, error)
	ListGroups(ctx context.Context) ([]*domain.Group, error)
	DeleteGroup(ctx context.Context, id string) error

	CreatePost(ctx context.Context, post *domain.Post) (*domain.Post, error)
	GetPostByID(ctx context.Context, id string) (*domain.Post, error)
	UpdatePost(ctx context.Context, id string, upd PostUpdate) (*domain.Post, error)
	DeletePost(ctx context.Context, id string) error
	ListPosts(ctx context.Context, filter PostFilter, args PageArgs) ([]*domain.Post, error)
	CountPosts(ctx context.Context, filter PostFilter) (int, error)

	CreateComment(ctx context.Context, comment *domain.Comment) (*domain.Comment, error)
	GetCommentsByPostID(ctx context.Context, postID string) ([]*domain.Comment, error)

	// CreateFollow работает как get-or-create: повторная подписка не создаёт дубликат.
	CreateFollow(ctx context.Context, userID, authorID string) (*domain.Follow, bool, error)
	DeleteFollow(ctx context.Context, userID, authorID string) error
	IsFollowing(ctx context.Context, userID, authorID string) (bool, error)
	CountFollowers(ctx context.Context, authorID string) (int, error)
	CountFollowing(ctx context.Context, userID string) (int, error)

	// Методы для Dataloader'ов
	GetUsersByIDs(ctx context.Context, ids []string) (map[string]*domain.User, error)
	GetGroupsByIDs(ctx context.Context, ids []string) (map[string]*domain.Group, error)
}
