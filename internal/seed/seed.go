// Package seed заполняет хранилище тестовыми данными из YAML.
package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/UkralStul/yatube/internal/auth"
	"github.com/UkralStul/yatube/internal/domain"
	"github.com/UkralStul/yatube/internal/storage"
	"gopkg.in/yaml.v3"
)

//go:embed fixtures.yaml
var defaultFixtures []byte

// Fixtures - содержимое файла с данными.
type Fixtures struct {
	Users    []UserFixture    `yaml:"users"`
	Groups   []GroupFixture   `yaml:"groups"`
	Posts    []PostFixture    `yaml:"posts"`
	Comments []CommentFixture `yaml:"comments"`
	Follows  []FollowFixture  `yaml:"follows"`
}

type UserFixture struct {
	Username  string `yaml:"username"`
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
	Password  string `yaml:"password"`
}

type GroupFixture struct {
	Title       string `yaml:"title"`
	Slug        string `yaml:"slug"`
	Description string `yaml:"description"`
}

// PostFixture ссылается на автора по username и на группу по slug.
// Key нужен, чтобы комментарии могли сослаться на пост.
type PostFixture struct {
	Key    string `yaml:"key"`
	Author string `yaml:"author"`
	Group  string `yaml:"group"`
	Text   string `yaml:"text"`
}

type CommentFixture struct {
	Post   string `yaml:"post"`
	Author string `yaml:"author"`
	Text   string `yaml:"text"`
}

type FollowFixture struct {
	User   string `yaml:"user"`
	Author string `yaml:"author"`
}

// Result - сколько записей создано.
type Result struct {
	Users    int
	Groups   int
	Posts    int
	Comments int
	Follows  int
}

// Default возвращает встроенный набор данных.
func Default() (*Fixtures, error) {
	return Parse(defaultFixtures)
}

// LoadFile читает фикстуры из файла.
func LoadFile(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures file: %w", err)
	}
	return Parse(data)
}

// Parse разбирает YAML.
func Parse(data []byte) (*Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	return &f, nil
}

// Apply записывает фикстуры в хранилище. Повторный запуск ничего не
// дублирует: пользователи и группы ищутся по username и slug, пост считается
// существующим, если у автора уже есть пост с тем же текстом и группой,
// комментарий - если у поста уже есть такой же текст от того же автора.
func Apply(ctx context.Context, s storage.Storage, f *Fixtures) (Result, error) {
	var res Result
	users := make(map[string]*domain.User, len(f.Users))
	groups := make(map[string]*domain.Group, len(f.Groups))
	posts := make(map[string]*domain.Post, len(f.Posts))

	for _, u := range f.Users {
		existing, err := s.GetUserByUsername(ctx, u.Username)
		if err == nil {
			users[u.Username] = existing
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return res, fmt.Errorf("lookup user %q: %w", u.Username, err)
		}
		hash, err := auth.HashPassword(u.Password)
		if err != nil {
			return res, fmt.Errorf("user %q: %w", u.Username, err)
		}
		created, err := s.CreateUser(ctx, &domain.User{
			Username:     u.Username,
			FirstName:    u.FirstName,
			LastName:     u.LastName,
			PasswordHash: hash,
		})
		if err != nil {
			return res, fmt.Errorf("create user %q: %w", u.Username, err)
		}
		users[u.Username] = created
		res.Users++
	}

	for _, g := range f.Groups {
		existing, err := s.GetGroupBySlug(ctx, g.Slug)
		if err == nil {
			groups[g.Slug] = existing
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return res, fmt.Errorf("lookup group %q: %w", g.Slug, err)
		}
		created, err := s.CreateGroup(ctx, &domain.Group{Title: g.Title, Slug: g.Slug, Description: g.Description})
		if err != nil {
			return res, fmt.Errorf("create group %q: %w", g.Slug, err)
		}
		groups[g.Slug] = created
		res.Groups++
	}

	for i, p := range f.Posts {
		author, err := lookupUser(ctx, s, users, p.Author)
		if err != nil {
			return res, fmt.Errorf("post #%d: %w", i+1, err)
		}
		post := &domain.Post{Text: p.Text, AuthorID: author.ID}
		if p.Group != "" {
			g, ok := groups[p.Group]
			if !ok {
				if g, err = s.GetGroupBySlug(ctx, p.Group); err != nil {
					return res, fmt.Errorf("post #%d: group %q: %w", i+1, p.Group, err)
				}
			}
			post.GroupID = &g.ID
		}
		existing, err := findPost(ctx, s, post)
		if err != nil {
			return res, fmt.Errorf("post #%d: %w", i+1, err)
		}
		if existing != nil {
			if p.Key != "" {
				posts[p.Key] = existing
			}
			continue
		}
		created, err := s.CreatePost(ctx, post)
		if err != nil {
			return res, fmt.Errorf("create post #%d: %w", i+1, err)
		}
		if p.Key != "" {
			posts[p.Key] = created
		}
		res.Posts++
	}

	for i, c := range f.Comments {
		post, ok := posts[c.Post]
		if !ok {
			return res, fmt.Errorf("comment #%d: unknown post key %q", i+1, c.Post)
		}
		author, err := lookupUser(ctx, s, users, c.Author)
		if err != nil {
			return res, fmt.Errorf("comment #%d: %w", i+1, err)
		}
		exists, err := hasComment(ctx, s, post.ID, author.ID, c.Text)
		if err != nil {
			return res, fmt.Errorf("comment #%d: %w", i+1, err)
		}
		if exists {
			continue
		}
		if _, err := s.CreateComment(ctx, &domain.Comment{PostID: post.ID, AuthorID: author.ID, Text: c.Text}); err != nil {
			return res, fmt.Errorf("create comment #%d: %w", i+1, err)
		}
		res.Comments++
	}

	for _, fl := range f.Follows {
		if fl.User == fl.Author {
			slog.Warn("skipping self-follow in fixtures", slog.String("user", fl.User))
			continue
		}
		user, err := lookupUser(ctx, s, users, fl.User)
		if err != nil {
			return res, fmt.Errorf("follow: %w", err)
		}
		author, err := lookupUser(ctx, s, users, fl.Author)
		if err != nil {
			return res, fmt.Errorf("follow: %w", err)
		}
		_, created, err := s.CreateFollow(ctx, user.ID, author.ID)
		if err != nil {
			return res, fmt.Errorf("create follow %s -> %s: %w", fl.User, fl.Author, err)
		}
		if created {
			res.Follows++
		}
	}

	return res, nil
}

// findPost ищет у автора пост с тем же текстом и группой.
func findPost(ctx context.Context, s storage.Storage, post *domain.Post) (*domain.Post, error) {
	filter := storage.PostFilter{AuthorID: post.AuthorID}
	total, err := s.CountPosts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("count posts: %w", err)
	}
	if total == 0 {
		return nil, nil
	}
	list, err := s.ListPosts(ctx, filter, storage.PageArgs{Limit: total})
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	for _, p := range list {
		if p.Text == post.Text && sameGroup(p.GroupID, post.GroupID) {
			return p, nil
		}
	}
	return nil, nil
}

func sameGroup(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func hasComment(ctx context.Context, s storage.Storage, postID, authorID, text string) (bool, error) {
	comments, err := s.GetCommentsByPostID(ctx, postID)
	if err != nil {
		return false, fmt.Errorf("list comments: %w", err)
	}
	for _, c := range comments {
		if c.AuthorID == authorID && c.Text == text {
			return true, nil
		}
	}
	return false, nil
}

func lookupUser(ctx context.Context, s storage.Storage, cache map[string]*domain.User, username string) (*domain.User, error) {
	if u, ok := cache[username]; ok {
		return u, nil
	}
	u, err := s.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("user %q: %w", username, err)
	}
	cache[username] = u
	return u, nil
}
