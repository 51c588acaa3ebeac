package dataloader

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/UkralStul/yatube/internal/domain"
	"github.com/UkralStul/yatube/internal/storage"
	"github.com/graph-gophers/dataloader"
)

// batchWait - сколько лоадер копит ключи перед походом в хранилище.
var batchWait = time.Millisecond * 1

type contextKey string

const key = contextKey("dataloaders")

// Loaders содержит все дата-лоадеры приложения.
type Loaders struct {
	UserByID  *dataloader.Loader
	GroupByID *dataloader.Loader
}

// New создает свежий набор лоадеров. Лоадеры кешируют результаты,
// поэтому живут не дольше одного запроса.
func New(store storage.Storage) *Loaders {
	usersFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		// Вызываем метод хранилища, который делает ОДИН запрос к БД
		users, err := store.GetUsersByIDs(ctx, keys.Keys())
		if err != nil {
			return errorResults(len(keys), err)
		}
		// Формируем результат в том же порядке, что и ключи
		results := make([]*dataloader.Result, len(keys))
		for i, k := range keys {
			if u, ok := users[k.String()]; ok {
				results[i] = &dataloader.Result{Data: u}
			} else {
				results[i] = &dataloader.Result{Error: fmt.Errorf("user with id %s: %w", k.String(), storage.ErrNotFound)}
			}
		}
		return results
	}

	groupsFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		groups, err := store.GetGroupsByIDs(ctx, keys.Keys())
		if err != nil {
			return errorResults(len(keys), err)
		}
		results := make([]*dataloader.Result, len(keys))
		for i, k := range keys {
			if g, ok := groups[k.String()]; ok {
				results[i] = &dataloader.Result{Data: g}
			} else {
				results[i] = &dataloader.Result{Error: fmt.Errorf("group with id %s: %w", k.String(), storage.ErrNotFound)}
			}
		}
		return results
	}

	return &Loaders{
		UserByID:  dataloader.NewBatchedLoader(usersFn, dataloader.WithWait(batchWait)),
		GroupByID: dataloader.NewBatchedLoader(groupsFn, dataloader.WithWait(batchWait)),
	}
}

// В случае ошибки возвращаем ее для всех ключей
func errorResults(n int, err error) []*dataloader.Result {
	results := make([]*dataloader.Result, n)
	for i := range results {
		results[i] = &dataloader.Result{Error: err}
	}
	return results
}

// Middleware для внедрения лоадеров в контекст запроса.
func Middleware(store storage.Storage) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), key, New(store))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// For извлекает лоадеры из контекста. Вне Middleware возвращает nil.
func For(ctx context.Context) *Loaders {
	loaders, _ := ctx.Value(key).(*Loaders)
	return loaders
}

// User загружает одного пользователя через батч.
func (l *Loaders) User(ctx context.Context, id string) (*domain.User, error) {
	v, err := l.UserByID.Load(ctx, dataloader.StringKey(id))()
	if err != nil {
		return nil, err
	}
	return v.(*domain.User), nil
}

// HydratePosts заполняет Author и Group у постов. Все ключи ставятся в очередь
// до ожидания первого результата, так что на страницу уходит по одному запросу
// за пользователями и группами.
func (l *Loaders) HydratePosts(ctx context.Context, posts []*domain.Post) error {
	authors := make([]dataloader.Thunk, len(posts))
	groups := make([]dataloader.Thunk, len(posts))
	for i, p := range posts {
		authors[i] = l.UserByID.Load(ctx, dataloader.StringKey(p.AuthorID))
		if p.GroupID != nil {
			groups[i] = l.GroupByID.Load(ctx, dataloader.StringKey(*p.GroupID))
		}
	}
	for i, p := range posts {
		v, err := authors[i]()
		if err != nil {
			return fmt.Errorf("load author of post %s: %w", p.ID, err)
		}
		p.Author = v.(*domain.User)
		if groups[i] == nil {
			continue
		}
		v, err = groups[i]()
		if err != nil {
			return fmt.Errorf("load group of post %s: %w", p.ID, err)
		}
		p.Group = v.(*domain.Group)
	}
	return nil
}

// HydrateComments заполняет Author у комментариев.
func (l *Loaders) HydrateComments(ctx context.Context, comments []*domain.Comment) error {
	thunks := make([]dataloader.Thunk, len(comments))
	for i, c := range comments {
		thunks[i] = l.UserByID.Load(ctx, dataloader.StringKey(c.AuthorID))
	}
	for i, c := range comments {
		v, err := thunks[i]()
		if err != nil {
			return fmt.Errorf("load author of comment %s: %w", c.ID, err)
		}
		c.Author = v.(*domain.User)
	}
	return nil
}
