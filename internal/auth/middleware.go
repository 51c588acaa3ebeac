package auth

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/UkralStul/yatube/internal/domain"
)

// LoginPath - страница входа, куда отправляются анонимные пользователи.
const LoginPath = "/auth/login/"

// UserGetter - то, что middleware нужно от хранилища.
type UserGetter interface {
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
}

type contextKey string

const userKey = contextKey("user")

// WithUser кладет текущего пользователя в контекст.
func WithUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFrom возвращает текущего пользователя или nil для анонима.
func UserFrom(ctx context.Context) *domain.User {
	user, _ := ctx.Value(userKey).(*domain.User)
	return user
}

// Middleware загружает пользователя по cookie сессии. Недействительная
// сессия (пользователь удален, подпись не сходится) очищается.
func Middleware(sessions *Sessions, users UserGetter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := sessions.UserID(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			user, err := users.GetUserByID(r.Context(), id)
			if err != nil {
				slog.Debug("dropping session", slog.String("user_id", id), slog.String("error", err.Error()))
				sessions.Clear(w)
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// RequireLogin перенаправляет анонимов на страницу входа с параметром next.
func RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserFrom(r.Context()) == nil {
			http.Redirect(w, r, LoginURL(r.URL.RequestURI()), http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// LoginURL строит адрес страницы входа с возвратом на next.
func LoginURL(next string) string {
	return LoginPath + "?" + url.Values{"next": {next}}.Encode()
}

// SafeNext оставляет только локальные пути, чтобы ?next= не уводил на чужой сайт.
func SafeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}
