package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/UkralStul/yatube/internal/domain"
	"github.com/UkralStul/yatube/internal/storage"
	"github.com/google/uuid"
)

// Store реализует интерфейс Storage в памяти.
type Store struct {
	mu       sync.RWMutex
	users    map[string]*domain.User
	groups   map[string]*domain.Group
	posts    map[string]*domain.Post
	comments map[string]*domain.Comment
	follows  map[followKey]*domain.Follow

	usersByName    map[string]string   // map[username]userID
	groupsBySlug   map[string]string   // map[slug]groupID
	commentsByPost map[string][]string // map[postID][]commentID

	// last - время последней созданной записи, см. tick.
	last time.Time
}

type followKey struct {
	userID   string
	authorID string
}

// New создает новый экземпляр in-memory хранилища.
func New() *Store {
	return &Store{
		users:          make(map[string]*domain.User),
		groups:         make(map[string]*domain.Group),
		posts:          make(map[string]*domain.Post),
		comments:       make(map[string]*domain.Comment),
		follows:        make(map[followKey]*domain.Follow),
		usersByName:    make(map[string]string),
		groupsBySlug:   make(map[string]string),
		commentsByPost: make(map[string][]string),
	}
}

// tick возвращает строго возрастающее время создания, чтобы порядок
// записей, созданных в одну наносекунду, оставался детерминированным.
func (s *Store) tick() time.Time {
	now := time.Now().UTC()
	if !now.After(s.last) {
		now = s.last.Add(time.Microsecond)
	}
	s.last = now
	return now
}

// === User Methods ===

func (s *Store) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" {
		return nil, fmt.Errorf("%w: username cannot be empty", storage.ErrInvalid)
	}
	if _, ok := s.usersByName[user.Username]; ok {
		return nil, fmt.Errorf("user %q: %w", user.Username, storage.ErrConflict)
	}
	user.ID = uuid.NewString()
	user.CreatedAt = s.tick()
	stored := *user
	s.users[user.ID] = &stored
	s.usersByName[user.Username] = user.ID
	return user, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user with id %s: %w", id, storage.ErrNotFound)
	}
	cp := *user
	return &cp, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByName[username]
	if !ok {
		return nil, fmt.Errorf("user %q: %w", username, storage.ErrNotFound)
	}
	cp := *s.users[id]
	return &cp, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return fmt.Errorf("user with id %s: %w", id, storage.ErrNotFound)
	}
	user.PasswordHash = passwordHash
	return nil
}

// DeleteUser удаляет пользователя вместе с его постами, комментариями и подписками.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return fmt.Errorf("user with id %s: %w", id, storage.ErrNotFound)
	}
	for postID, p := range s.posts {
		if p.AuthorID == id {
			s.deletePostLocked(postID)
		}
	}
	for commentID, c := range s.comments {
		if c.AuthorID == id {
			s.deleteCommentLocked(commentID)
		}
	}
	for key := range s.follows {
		if key.userID == id || key.authorID == id {
			delete(s.follows, key)
		}
	}
	delete(s.usersByName, user.Username)
	delete(s.users, id)
	return nil
}

// === Group Methods ===

func (s *Store) CreateGroup(ctx context.Context, group *domain.Group) (*domain.Group, error) {
	if err := storage.ValidateGroup(group.Title, group.Slug); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groupsBySlug[group.Slug]; ok {
		return nil, fmt.Errorf("group %q: %w", group.Slug, storage.ErrConflict)
	}
	group.ID = uuid.NewString()
	stored := *group
	s.groups[group.ID] = &stored
	s.groupsBySlug[group.Slug] = group.ID
	return group, nil
}

func (s *Store) GetGroupByID(ctx context.Context, id string) (*domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	group, ok := s.groups[id]
	if !ok {
		return nil, fmt.Errorf("group with id %s: %w", id, storage.ErrNotFound)
	}
	cp := *group
	return &cp, nil
}

func (s *Store) GetGroupBySlug(ctx context.Context, slug string) (*domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.groupsBySlug[slug]
	if !ok {
		return nil, fmt.Errorf("group %q: %w", slug, storage.ErrNotFound)
	}
	cp := *s.groups[id]
	return &cp, nil
}

func (s *Store) ListGroups(ctx context.Context) ([]*domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	groups := make([]*domain.Group, 0, len(s.groups))
	for _, g := range s.groups {
		cp := *g
		groups = append(groups, &cp)
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Title < groups[j].Title
	})
	return groups, nil
}

// DeleteGroup удаляет группу, посты группы остаются без группы.
func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, ok := s.groups[id]
	if !ok {
		return fmt.Errorf("group with id %s: %w", id, storage.ErrNotFound)
	}
	for _, p := range s.posts {
		if p.GroupID != nil && *p.GroupID == id {
			p.GroupID = nil
		}
	}
	delete(s.groupsBySlug, group.Slug)
	delete(s.groups, id)
	return nil
}

// === Post Methods ===

func (s *Store) CreatePost(ctx context.Context, post *domain.Post) (*domain.Post, error) {
	if err := storage.ValidatePostText(post.Text); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[post.AuthorID]; !ok {
		return nil, fmt.Errorf("author with id %s: %w", post.AuthorID, storage.ErrNotFound)
	}
	if post.GroupID != nil {
		if _, ok := s.groups[*post.GroupID]; !ok {
			return nil, fmt.Errorf("group with id %s: %w", *post.GroupID, storage.ErrNotFound)
		}
	}
	post.ID = uuid.NewString()
	post.CreatedAt = s.tick()
	stored := *post
	s.posts[post.ID] = &stored
	return post, nil
}

func (s *Store) GetPostByID(ctx context.Context, id string) (*domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	post, ok := s.posts[id]
	if !ok {
		return nil, fmt.Errorf("post with id %s: %w", id, storage.ErrNotFound)
	}
	cp := *post
	return &cp, nil
}

func (s *Store) UpdatePost(ctx context.Context, id string, upd storage.PostUpdate) (*domain.Post, error) {
	if err := storage.ValidatePostText(upd.Text); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[id]
	if !ok {
		return nil, fmt.Errorf("post with id %s: %w", id, storage.ErrNotFound)
	}
	if upd.GroupID != nil {
		if _, ok := s.groups[*upd.GroupID]; !ok {
			return nil, fmt.Errorf("group with id %s: %w", *upd.GroupID, storage.ErrNotFound)
		}
	}
	post.Text = upd.Text
	post.GroupID = upd.GroupID
	if upd.Image != nil {
		post.Image = *upd.Image
	}
	cp := *post
	return &cp, nil
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[id]; !ok {
		return fmt.Errorf("post with id %s: %w", id, storage.ErrNotFound)
	}
	s.deletePostLocked(id)
	return nil
}

// deletePostLocked удаляет пост и его комментарии. Вызывающий держит s.mu.
func (s *Store) deletePostLocked(id string) {
	for _, commentID := range s.commentsByPost[id] {
		delete(s.comments, commentID)
	}
	delete(s.commentsByPost, id)
	delete(s.posts, id)
}

func (s *Store) deleteCommentLocked(id string) {
	c, ok := s.comments[id]
	if !ok {
		return
	}
	ids := s.commentsByPost[c.PostID]
	for i, cid := range ids {
		if cid == id {
			s.commentsByPost[c.PostID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	delete(s.comments, id)
}

func (s *Store) ListPosts(ctx context.Context, filter storage.PostFilter, args storage.PageArgs) ([]*domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	allPosts := s.filterPostsLocked(filter)

	sort.Slice(allPosts, func(i, j int) bool {
		return allPosts[i].CreatedAt.After(allPosts[j].CreatedAt)
	})

	start := args.Offset
	if start >= len(allPosts) {
		return []*domain.Post{}, nil
	}
	end := start + args.Limit
	if args.Limit <= 0 || end > len(allPosts) {
		end = len(allPosts)
	}
	return allPosts[start:end], nil
}

func (s *Store) CountPosts(ctx context.Context, filter storage.PostFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.filterPostsLocked(filter)), nil
}

func (s *Store) filterPostsLocked(filter storage.PostFilter) []*domain.Post {
	posts := make([]*domain.Post, 0, len(s.posts))
	for _, p := range s.posts {
		if filter.AuthorID != "" && p.AuthorID != filter.AuthorID {
			continue
		}
		if filter.GroupID != "" && (p.GroupID == nil || *p.GroupID != filter.GroupID) {
			continue
		}
		if filter.FollowerID != "" {
			if _, ok := s.follows[followKey{userID: filter.FollowerID, authorID: p.AuthorID}]; !ok {
				continue
			}
		}
		cp := *p
		posts = append(posts, &cp)
	}
	return posts
}

// === Comment Methods ===

func (s *Store) CreateComment(ctx context.Context, comment *domain.Comment) (*domain.Comment, error) {
	if err := storage.ValidateCommentText(comment.Text); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Проверка поста
	if _, ok := s.posts[comment.PostID]; !ok {
		return nil, fmt.Errorf("post with id %s: %w", comment.PostID, storage.ErrNotFound)
	}
	if _, ok := s.users[comment.AuthorID]; !ok {
		return nil, fmt.Errorf("author with id %s: %w", comment.AuthorID, storage.ErrNotFound)
	}

	comment.ID = uuid.NewString()
	comment.CreatedAt = s.tick()
	stored := *comment
	s.comments[comment.ID] = &stored
	s.commentsByPost[comment.PostID] = append(s.commentsByPost[comment.PostID], comment.ID)

	return comment, nil
}

func (s *Store) GetCommentsByPostID(ctx context.Context, postID string) ([]*domain.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.commentsByPost[postID]
	comments := make([]*domain.Comment, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.comments[id]; ok {
			cp := *c
			comments = append(comments, &cp)
		}
	}
	// Новые комментарии первыми
	sort.SliceStable(comments, func(i, j int) bool {
		return comments[i].CreatedAt.After(comments[j].CreatedAt)
	})
	return comments, nil
}

// === Follow Methods ===

func (s *Store) CreateFollow(ctx context.Context, userID, authorID string) (*domain.Follow, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return nil, false, fmt.Errorf("user with id %s: %w", userID, storage.ErrNotFound)
	}
	if _, ok := s.users[authorID]; !ok {
		return nil, false, fmt.Errorf("author with id %s: %w", authorID, storage.ErrNotFound)
	}

	key := followKey{userID: userID, authorID: authorID}
	if f, ok := s.follows[key]; ok {
		return f, false, nil
	}
	f := &domain.Follow{ID: uuid.NewString(), UserID: userID, AuthorID: authorID}
	s.follows[key] = f
	return f, true, nil
}

func (s *Store) DeleteFollow(ctx context.Context, userID, authorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.follows, followKey{userID: userID, authorID: authorID})
	return nil
}

func (s *Store) IsFollowing(ctx context.Context, userID, authorID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.follows[followKey{userID: userID, authorID: authorID}]
	return ok, nil
}

func (s *Store) CountFollowers(ctx context.Context, authorID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for key := range s.follows {
		if key.authorID == authorID {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountFollowing(ctx context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for key := range s.follows {
		if key.userID == userID {
			n++
		}
	}
	return n, nil
}

// === Dataloader Methods ===

func (s *Store) GetUsersByIDs(ctx context.Context, ids []string) (map[string]*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]*domain.User, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			cp := *u
			result[id] = &cp
		}
	}
	return result, nil
}

func (s *Store) GetGroupsByIDs(ctx context.Context, ids []string) (map[string]*domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]*domain.Group, len(ids))
	for _, id := range ids {
		if g, ok := s.groups[id]; ok {
			cp := *g
			result[id] = &cp
		}
	}
	return result, nil
}
