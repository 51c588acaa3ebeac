// Package sqlite provides a SQLite-backed yatube storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/UkralStul/yatube/internal/domain"
	"github.com/UkralStul/yatube/internal/storage"
	"github.com/UkralStul/yatube/internal/storage/sqlite/migrations"
	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists yatube state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toNanos(value time.Time) int64 {
	return value.UTC().UnixNano()
}

func fromNanos(value int64) time.Time {
	return time.Unix(0, value).UTC()
}

// Open opens a SQLite store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := "file:" + cleanPath +
		"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func isForeignKeyViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "foreign key constraint failed")
}

// rowScanner покрывает *sql.Row и *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// === Users ===

const userColumns = `id, username, first_name, last_name, password_hash, created_at`

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u         domain.User
		createdAt int64
	)
	if err := row.Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.PasswordHash, &createdAt); err != nil {
		return nil, err
	}
	u.CreatedAt = fromNanos(createdAt)
	return &u, nil
}

// CreateUser inserts a user and fills its ID and creation time.
func (s *Store) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	if strings.TrimSpace(user.Username) == "" {
		return nil, fmt.Errorf("%w: username cannot be empty", storage.ErrInvalid)
	}
	id := uuid.NewString()
	createdAt := time.Now().UTC()
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		id, user.Username, user.FirstName, user.LastName, user.PasswordHash, toNanos(createdAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("user %q: %w", user.Username, storage.ErrConflict)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	user.ID = id
	user.CreatedAt = fromNanos(toNanos(createdAt))
	return user, nil
}

// GetUserByID returns one user.
func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err != nil {
		return nil, notFound(err, "user with id "+id)
	}
	return u, nil
}

// GetUserByUsername returns one user by unique username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	u, err := scanUser(row)
	if err != nil {
		return nil, notFound(err, "user "+username)
	}
	return u, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	res, err := s.sqlDB.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, passwordHash, id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user with id %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// DeleteUser removes a user; foreign keys cascade to posts, comments and follows.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "users", id, "user")
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	return fmt.Errorf("get %s: %w", what, err)
}

func (s *Store) deleteByID(ctx context.Context, table, id, what string) error {
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s with id %s: %w", what, id, storage.ErrNotFound)
	}
	return nil
}

// === Groups ===

const groupColumns = `id, title, slug, description`

func scanGroup(row rowScanner) (*domain.Group, error) {
	var g domain.Group
	if err := row.Scan(&g.ID, &g.Title, &g.Slug, &g.Description); err != nil {
		return nil, err
	}
	return &g, nil
}

// CreateGroup inserts a group with a unique slug.
func (s *Store) CreateGroup(ctx context.Context, group *domain.Group) (*domain.Group, error) {
	if err := storage.ValidateGroup(group.Title, group.Slug); err != nil {
		return nil, err
	}
	id := uuid.NewString()
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO post_groups (`+groupColumns+`) VALUES (?, ?, ?, ?)`,
		id, group.Title, group.Slug, group.Description,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("group %q: %w", group.Slug, storage.ErrConflict)
		}
		return nil, fmt.Errorf("create group: %w", err)
	}
	group.ID = id
	return group, nil
}

// GetGroupByID returns one group.
func (s *Store) GetGroupByID(ctx context.Context, id string) (*domain.Group, error) {
	g, err := scanGroup(s.sqlDB.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM post_groups WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "group with id "+id)
	}
	return g, nil
}

// GetGroupBySlug returns one group by slug.
func (s *Store) GetGroupBySlug(ctx context.Context, slug string) (*domain.Group, error) {
	g, err := scanGroup(s.sqlDB.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM post_groups WHERE slug = ?`, slug))
	if err != nil {
		return nil, notFound(err, "group "+slug)
	}
	return g, nil
}

// ListGroups returns all groups ordered by title.
func (s *Store) ListGroups(ctx context.Context) ([]*domain.Group, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT `+groupColumns+` FROM post_groups ORDER BY title ASC`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	groups := []*domain.Group{}
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("list groups: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return groups, nil
}

// DeleteGroup removes a group; posts keep existing with a NULL group.
func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "post_groups", id, "group")
}

// === Posts ===

const postColumns = `id, text, created_at, author_id, group_id, image`

func scanPost(row rowScanner) (*domain.Post, error) {
	var (
		p         domain.Post
		createdAt int64
		groupID   sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Text, &createdAt, &p.AuthorID, &groupID, &p.Image); err != nil {
		return nil, err
	}
	p.CreatedAt = fromNanos(createdAt)
	if groupID.Valid {
		p.GroupID = &groupID.String
	}
	return &p, nil
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// CreatePost inserts a post. Unknown author or group yields ErrNotFound.
func (s *Store) CreatePost(ctx context.Context, post *domain.Post) (*domain.Post, error) {
	if err := storage.ValidatePostText(post.Text); err != nil {
		return nil, err
	}
	id := uuid.NewString()
	createdAt := time.Now().UTC()
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO posts (`+postColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		id, post.Text, toNanos(createdAt), post.AuthorID, nullable(post.GroupID), post.Image,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("post author or group: %w", storage.ErrNotFound)
		}
		return nil, fmt.Errorf("create post: %w", err)
	}
	post.ID = id
	post.CreatedAt = fromNanos(toNanos(createdAt))
	return post, nil
}

// GetPostByID returns one post.
func (s *Store) GetPostByID(ctx context.Context, id string) (*domain.Post, error) {
	p, err := scanPost(s.sqlDB.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "post with id "+id)
	}
	return p, nil
}

// UpdatePost replaces text and group, and the image when one is given.
func (s *Store) UpdatePost(ctx context.Context, id string, upd storage.PostUpdate) (*domain.Post, error) {
	if err := storage.ValidatePostText(upd.Text); err != nil {
		return nil, err
	}
	var (
		res sql.Result
		err error
	)
	if upd.Image != nil {
		res, err = s.sqlDB.ExecContext(ctx,
			`UPDATE posts SET text = ?, group_id = ?, image = ? WHERE id = ?`,
			upd.Text, nullable(upd.GroupID), *upd.Image, id,
		)
	} else {
		res, err = s.sqlDB.ExecContext(ctx,
			`UPDATE posts SET text = ?, group_id = ? WHERE id = ?`,
			upd.Text, nullable(upd.GroupID), id,
		)
	}
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("post group: %w", storage.ErrNotFound)
		}
		return nil, fmt.Errorf("update post: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("post with id %s: %w", id, storage.ErrNotFound)
	}
	return s.GetPostByID(ctx, id)
}

// DeletePost removes a post; comments cascade.
func (s *Store) DeletePost(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "posts", id, "post")
}

// postsWhere builds the WHERE clause for a filter.
func postsWhere(filter storage.PostFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if filter.AuthorID != "" {
		conds = append(conds, "author_id = ?")
		args = append(args, filter.AuthorID)
	}
	if filter.GroupID != "" {
		conds = append(conds, "group_id = ?")
		args = append(args, filter.GroupID)
	}
	if filter.FollowerID != "" {
		conds = append(conds, "author_id IN (SELECT author_id FROM follows WHERE user_id = ?)")
		args = append(args, filter.FollowerID)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListPosts returns one page of posts, newest first.
func (s *Store) ListPosts(ctx context.Context, filter storage.PostFilter, page storage.PageArgs) ([]*domain.Post, error) {
	where, args := postsWhere(filter)
	limit := page.Limit
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit, page.Offset)
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+postColumns+` FROM posts`+where+` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	posts := []*domain.Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("list posts: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

// CountPosts counts posts matching the filter.
func (s *Store) CountPosts(ctx context.Context, filter storage.PostFilter) (int, error) {
	where, args := postsWhere(filter)
	var n int
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return n, nil
}

// === Comments ===

// CreateComment inserts a comment on an existing post.
func (s *Store) CreateComment(ctx context.Context, comment *domain.Comment) (*domain.Comment, error) {
	if err := storage.ValidateCommentText(comment.Text); err != nil {
		return nil, err
	}
	id := uuid.NewString()
	createdAt := time.Now().UTC()
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO comments (id, post_id, author_id, text, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, comment.PostID, comment.AuthorID, comment.Text, toNanos(createdAt),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("comment post or author: %w", storage.ErrNotFound)
		}
		return nil, fmt.Errorf("create comment: %w", err)
	}
	comment.ID = id
	comment.CreatedAt = fromNanos(toNanos(createdAt))
	return comment, nil
}

// GetCommentsByPostID returns the comments of a post, newest first.
func (s *Store) GetCommentsByPostID(ctx context.Context, postID string) ([]*domain.Comment, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, post_id, author_id, text, created_at
		   FROM comments
		  WHERE post_id = ?
		  ORDER BY created_at DESC, rowid DESC`,
		postID,
	)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	comments := []*domain.Comment{}
	for rows.Next() {
		var (
			c         domain.Comment
			createdAt int64
		)
		if err := rows.Scan(&c.ID, &c.PostID, &c.AuthorID, &c.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("list comments: %w", err)
		}
		c.CreatedAt = fromNanos(createdAt)
		comments = append(comments, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}

// === Follows ===

// CreateFollow returns the existing follow or inserts a new one.
func (s *Store) CreateFollow(ctx context.Context, userID, authorID string) (*domain.Follow, bool, error) {
	id := uuid.NewString()
	res, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO follows (id, user_id, author_id) VALUES (?, ?, ?)
		 ON CONFLICT (user_id, author_id) DO NOTHING`,
		id, userID, authorID,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, false, fmt.Errorf("follow user or author: %w", storage.ErrNotFound)
		}
		return nil, false, fmt.Errorf("create follow: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("create follow: %w", err)
	}
	if n == 1 {
		return &domain.Follow{ID: id, UserID: userID, AuthorID: authorID}, true, nil
	}

	f := domain.Follow{UserID: userID, AuthorID: authorID}
	err = s.sqlDB.QueryRowContext(ctx,
		`SELECT id FROM follows WHERE user_id = ? AND author_id = ?`, userID, authorID,
	).Scan(&f.ID)
	if err != nil {
		return nil, false, fmt.Errorf("get follow: %w", err)
	}
	return &f, false, nil
}

// DeleteFollow removes a follow if present.
func (s *Store) DeleteFollow(ctx context.Context, userID, authorID string) error {
	if _, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM follows WHERE user_id = ? AND author_id = ?`, userID, authorID,
	); err != nil {
		return fmt.Errorf("delete follow: %w", err)
	}
	return nil
}

// IsFollowing reports whether userID follows authorID.
func (s *Store) IsFollowing(ctx context.Context, userID, authorID string) (bool, error) {
	var found int
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT 1 FROM follows WHERE user_id = ? AND author_id = ?`, userID, authorID,
	).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check follow: %w", err)
	}
	return true, nil
}

// CountFollowers counts users following authorID.
func (s *Store) CountFollowers(ctx context.Context, authorID string) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM follows WHERE author_id = ?`, authorID)
}

// CountFollowing counts authors userID follows.
func (s *Store) CountFollowing(ctx context.Context, userID string) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM follows WHERE user_id = ?`, userID)
}

func (s *Store) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := s.sqlDB.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// === Batches ===

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func anySlice(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

// GetUsersByIDs loads users for the given IDs in one query.
func (s *Store) GetUsersByIDs(ctx context.Context, ids []string) (map[string]*domain.User, error) {
	result := make(map[string]*domain.User, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id IN (`+placeholders(len(ids))+`)`,
		anySlice(ids)...,
	)
	if err != nil {
		return nil, fmt.Errorf("batch users: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("batch users: %w", err)
		}
		result[u.ID] = u
	}
	return result, rows.Err()
}

// GetGroupsByIDs loads groups for the given IDs in one query.
func (s *Store) GetGroupsByIDs(ctx context.Context, ids []string) (map[string]*domain.Group, error) {
	result := make(map[string]*domain.Group, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+groupColumns+` FROM post_groups WHERE id IN (`+placeholders(len(ids))+`)`,
		anySlice(ids)...,
	)
	if err != nil {
		return nil, fmt.Errorf("batch groups: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("batch groups: %w", err)
		}
		result[g.ID] = g
	}
	return result, rows.Err()
}

var _ storage.Storage = (*Store)(nil)
