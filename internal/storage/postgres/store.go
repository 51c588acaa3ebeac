package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/UkralStul/yatube/internal/domain"
	"github.com/UkralStul/yatube/internal/storage"
	"github.com/google/uuid"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store реализует интерфейс Storage с использованием PostgreSQL.
type Store struct {
	db *gorm.DB
}

// New создает новый экземпляр хранилища PostgreSQL и мигрирует схему.
// debug включает логирование SQL-запросов.
func New(dsn string, debug bool) (*Store, error) {
	level := logger.Warn
	if debug {
		level = logger.Info
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true, // нарушение уникальности -> gorm.ErrDuplicatedKey
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Выполняем миграцию схемы
	if err := db.AutoMigrate(&domain.User{}, &domain.Group{}, &domain.Post{}, &domain.Comment{}, &domain.Follow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close закрывает пул соединений.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// validID отсекает строки, которые PostgreSQL не примет как uuid:
// для хранилища это просто несуществующая запись.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// translate приводит ошибки gorm к общим ошибкам хранилища.
func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", what, storage.ErrConflict)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// === User Methods ===

func (s *Store) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	if user.Username == "" {
		return nil, fmt.Errorf("%w: username cannot be empty", storage.ErrInvalid)
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, translate(err, "user "+user.Username)
	}
	// GORM автоматически заполнит ID и CreatedAt после создания
	return user, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	if !validID(id) {
		return nil, fmt.Errorf("user with id %s: %w", id, storage.ErrNotFound)
	}
	var user domain.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, translate(err, "user with id "+id)
	}
	return &user, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	var user domain.User
	if err := s.db.WithContext(ctx).First(&user, "username = ?", username).Error; err != nil {
		return nil, translate(err, "user "+username)
	}
	return &user, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	if !validID(id) {
		return fmt.Errorf("user with id %s: %w", id, storage.ErrNotFound)
	}
	res := s.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Update("password_hash", passwordHash)
	if res.Error != nil {
		return fmt.Errorf("update password: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user with id %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// DeleteUser удаляет пользователя вместе с постами, комментариями и подписками.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	if !validID(id) {
		return fmt.Errorf("user with id %s: %w", id, storage.ErrNotFound)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ownPosts := tx.Model(&domain.Post{}).Select("id").Where("author_id = ?", id)
		if err := tx.Where("post_id IN (?) OR author_id = ?", ownPosts, id).Delete(&domain.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("author_id = ?", id).Delete(&domain.Post{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ? OR author_id = ?", id, id).Delete(&domain.Follow{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&domain.User{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("user with id %s: %w", id, storage.ErrNotFound)
		}
		return nil
	})
}

// === Group Methods ===

func (s *Store) CreateGroup(ctx context.Context, group *domain.Group) (*domain.Group, error) {
	if err := storage.ValidateGroup(group.Title, group.Slug); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(group).Error; err != nil {
		return nil, translate(err, "group "+group.Slug)
	}
	return group, nil
}

func (s *Store) GetGroupByID(ctx context.Context, id string) (*domain.Group, error) {
	if !validID(id) {
		return nil, fmt.Errorf("group with id %s: %w", id, storage.ErrNotFound)
	}
	var group domain.Group
	if err := s.db.WithContext(ctx).First(&group, "id = ?", id).Error; err != nil {
		return nil, translate(err, "group with id "+id)
	}
	return &group, nil
}

func (s *Store) GetGroupBySlug(ctx context.Context, slug string) (*domain.Group, error) {
	var group domain.Group
	if err := s.db.WithContext(ctx).First(&group, "slug = ?", slug).Error; err != nil {
		return nil, translate(err, "group "+slug)
	}
	return &group, nil
}

func (s *Store) ListGroups(ctx context.Context) ([]*domain.Group, error) {
	var groups []*domain.Group
	err := s.db.WithContext(ctx).Order("title ASC").Find(&groups).Error
	return groups, err
}

// DeleteGroup удаляет группу, посты остаются без группы.
func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	if !validID(id) {
		return fmt.Errorf("group with id %s: %w", id, storage.ErrNotFound)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.Post{}).Where("group_id = ?", id).Update("group_id", nil).Error; err != nil {
			return err
		}
		res := tx.Delete(&domain.Group{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("group with id %s: %w", id, storage.ErrNotFound)
		}
		return nil
	})
}

// === Post Methods ===

func (s *Store) CreatePost(ctx context.Context, post *domain.Post) (*domain.Post, error) {
	if err := storage.ValidatePostText(post.Text); err != nil {
		return nil, err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkExists(tx, &domain.User{}, post.AuthorID, "author"); err != nil {
			return err
		}
		if post.GroupID != nil {
			if err := checkExists(tx, &domain.Group{}, *post.GroupID, "group"); err != nil {
				return err
			}
		}
		return tx.Create(post).Error
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

// checkExists проверяет наличие записи model с данным id внутри транзакции.
func checkExists(tx *gorm.DB, model any, id, what string) error {
	if !validID(id) {
		return fmt.Errorf("%s with id %s: %w", what, id, storage.ErrNotFound)
	}
	var count int64
	if err := tx.Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%s with id %s: %w", what, id, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) GetPostByID(ctx context.Context, id string) (*domain.Post, error) {
	if !validID(id) {
		return nil, fmt.Errorf("post with id %s: %w", id, storage.ErrNotFound)
	}
	var post domain.Post
	if err := s.db.WithContext(ctx).First(&post, "id = ?", id).Error; err != nil {
		// GORM возвращает gorm.ErrRecordNotFound, если запись не найдена
		return nil, translate(err, "post with id "+id)
	}
	return &post, nil
}

func (s *Store) UpdatePost(ctx context.Context, id string, upd storage.PostUpdate) (*domain.Post, error) {
	if err := storage.ValidatePostText(upd.Text); err != nil {
		return nil, err
	}
	if !validID(id) {
		return nil, fmt.Errorf("post with id %s: %w", id, storage.ErrNotFound)
	}
	var post domain.Post
	// Используем транзакцию для атомарности операции чтения-записи
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&post, "id = ?", id).Error; err != nil {
			return translate(err, "post with id "+id)
		}
		if upd.GroupID != nil {
			if err := checkExists(tx, &domain.Group{}, *upd.GroupID, "group"); err != nil {
				return err
			}
		}
		fields := map[string]any{"text": upd.Text, "group_id": upd.GroupID}
		if upd.Image != nil {
			fields["image"] = *upd.Image
		}
		if err := tx.Model(&post).Updates(fields).Error; err != nil {
			return err
		}
		return tx.First(&post, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	if !validID(id) {
		return fmt.Errorf("post with id %s: %w", id, storage.ErrNotFound)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&domain.Comment{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&domain.Post{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("post with id %s: %w", id, storage.ErrNotFound)
		}
		return nil
	})
}

func (s *Store) ListPosts(ctx context.Context, filter storage.PostFilter, args storage.PageArgs) ([]*domain.Post, error) {
	posts := []*domain.Post{}
	query, ok := s.postsQuery(ctx, filter)
	if !ok {
		return posts, nil
	}
	query = query.Order("created_at DESC").Offset(args.Offset)
	if args.Limit > 0 {
		query = query.Limit(args.Limit)
	}
	err := query.Find(&posts).Error
	return posts, err
}

func (s *Store) CountPosts(ctx context.Context, filter storage.PostFilter) (int, error) {
	query, ok := s.postsQuery(ctx, filter)
	if !ok {
		return 0, nil
	}
	var count int64
	err := query.Count(&count).Error
	return int(count), err
}

// postsQuery строит выборку постов по фильтру. ok == false означает,
// что фильтр заведомо ничего не найдет.
func (s *Store) postsQuery(ctx context.Context, filter storage.PostFilter) (*gorm.DB, bool) {
	query := s.db.WithContext(ctx).Model(&domain.Post{})
	if filter.AuthorID != "" {
		if !validID(filter.AuthorID) {
			return nil, false
		}
		query = query.Where("author_id = ?", filter.AuthorID)
	}
	if filter.GroupID != "" {
		if !validID(filter.GroupID) {
			return nil, false
		}
		query = query.Where("group_id = ?", filter.GroupID)
	}
	if filter.FollowerID != "" {
		if !validID(filter.FollowerID) {
			return nil, false
		}
		following := s.db.Model(&domain.Follow{}).Select("author_id").Where("user_id = ?", filter.FollowerID)
		query = query.Where("author_id IN (?)", following)
	}
	return query, true
}

// === Comment Methods ===

func (s *Store) CreateComment(ctx context.Context, comment *domain.Comment) (*domain.Comment, error) {
	// Валидация
	if err := storage.ValidateCommentText(comment.Text); err != nil {
		return nil, err
	}

	// Проверяем существование поста и автора в одной транзакции
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkExists(tx, &domain.Post{}, comment.PostID, "post"); err != nil {
			return err
		}
		if err := checkExists(tx, &domain.User{}, comment.AuthorID, "author"); err != nil {
			return err
		}
		return tx.Create(comment).Error
	})
	if err != nil {
		return nil, err
	}
	return comment, nil
}

func (s *Store) GetCommentsByPostID(ctx context.Context, postID string) ([]*domain.Comment, error) {
	comments := []*domain.Comment{}
	if !validID(postID) {
		return comments, nil
	}
	err := s.db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("created_at DESC").
		Find(&comments).Error
	return comments, err
}

// === Follow Methods ===

func (s *Store) CreateFollow(ctx context.Context, userID, authorID string) (*domain.Follow, bool, error) {
	var (
		follow  domain.Follow
		created bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkExists(tx, &domain.User{}, userID, "user"); err != nil {
			return err
		}
		if err := checkExists(tx, &domain.User{}, authorID, "author"); err != nil {
			return err
		}
		err := tx.Where("user_id = ? AND author_id = ?", userID, authorID).First(&follow).Error
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		follow = domain.Follow{UserID: userID, AuthorID: authorID}
		if err := tx.Create(&follow).Error; err != nil {
			return translate(err, "follow")
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &follow, created, nil
}

func (s *Store) DeleteFollow(ctx context.Context, userID, authorID string) error {
	if !validID(userID) || !validID(authorID) {
		return nil
	}
	return s.db.WithContext(ctx).
		Where("user_id = ? AND author_id = ?", userID, authorID).
		Delete(&domain.Follow{}).Error
}

func (s *Store) IsFollowing(ctx context.Context, userID, authorID string) (bool, error) {
	if !validID(userID) || !validID(authorID) {
		return false, nil
	}
	var count int64
	err := s.db.WithContext(ctx).Model(&domain.Follow{}).
		Where("user_id = ? AND author_id = ?", userID, authorID).
		Count(&count).Error
	return count > 0, err
}

func (s *Store) CountFollowers(ctx context.Context, authorID string) (int, error) {
	return s.countFollows(ctx, "author_id", authorID)
}

func (s *Store) CountFollowing(ctx context.Context, userID string) (int, error) {
	return s.countFollows(ctx, "user_id", userID)
}

func (s *Store) countFollows(ctx context.Context, column, id string) (int, error) {
	if !validID(id) {
		return 0, nil
	}
	var count int64
	err := s.db.WithContext(ctx).Model(&domain.Follow{}).Where(column+" = ?", id).Count(&count).Error
	return int(count), err
}

// === Dataloader Methods ===

func (s *Store) GetUsersByIDs(ctx context.Context, ids []string) (map[string]*domain.User, error) {
	var users []*domain.User
	// Загружаем всех пользователей одним запросом
	if err := s.db.WithContext(ctx).Where("id IN ?", onlyValid(ids)).Find(&users).Error; err != nil {
		return nil, err
	}
	result := make(map[string]*domain.User, len(users))
	for _, u := range users {
		result[u.ID] = u
	}
	return result, nil
}

func (s *Store) GetGroupsByIDs(ctx context.Context, ids []string) (map[string]*domain.Group, error) {
	var groups []*domain.Group
	if err := s.db.WithContext(ctx).Where("id IN ?", onlyValid(ids)).Find(&groups).Error; err != nil {
		return nil, err
	}
	result := make(map[string]*domain.Group, len(groups))
	for _, g := range groups {
		result[g.ID] = g
	}
	return result, nil
}

func onlyValid(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if validID(id) {
			out = append(out, id)
		}
	}
	return out
}
