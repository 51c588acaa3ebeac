package web

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/UkralStul/yatube/internal/auth"
	"github.com/UkralStul/yatube/internal/domain"
	"github.com/UkralStul/yatube/internal/storage"
)

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	form := &SignupForm{Errors: FieldErrors{}}
	if r.Method != http.MethodPost {
		s.render(w, r, http.StatusOK, "users/signup.html", Context{"form": form})
		return
	}
	if err := form.bind(r); err != nil {
		s.serverError(w, r, err)
		return
	}
	if len(form.Errors) > 0 {
		s.render(w, r, http.StatusOK, "users/signup.html", Context{"form": form})
		return
	}

	hash, err := auth.HashPassword(form.password)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	user, err := s.store.CreateUser(r.Context(), &domain.User{
		Username:     form.Username,
		FirstName:    form.FirstName,
		LastName:     form.LastName,
		PasswordHash: hash,
	})
	if errors.Is(err, storage.ErrConflict) {
		form.Errors["username"] = "Пользователь с таким именем уже существует."
		s.render(w, r, http.StatusOK, "users/signup.html", Context{"form": form})
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	slog.Info("user signed up", slog.String("username", user.Username))

	if err := s.sessions.Issue(w, user.ID); err != nil {
		s.serverError(w, r, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	form := &LoginForm{Next: r.URL.Query().Get("next"), Errors: FieldErrors{}}
	if r.Method != http.MethodPost {
		s.render(w, r, http.StatusOK, "users/login.html", Context{"form": form})
		return
	}
	if err := form.bind(r); err != nil {
		s.serverError(w, r, err)
		return
	}

	user, err := s.store.GetUserByUsername(r.Context(), form.Username)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.serverError(w, r, err)
		return
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, form.password) {
		form.Errors["all"] = "Пожалуйста, введите правильные имя пользователя и пароль."
		s.render(w, r, http.StatusOK, "users/login.html", Context{"form": form})
		return
	}

	if err := s.sessions.Issue(w, user.ID); err != nil {
		s.serverError(w, r, err)
		return
	}
	http.Redirect(w, r, auth.SafeNext(form.Next), http.StatusFound)
}

// passwordChange меняет пароль после проверки старого. Сессия остается.
func (s *Server) passwordChange(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	form := &PasswordChangeForm{Errors: FieldErrors{}}
	if r.Method != http.MethodPost {
		s.render(w, r, http.StatusOK, "users/password_change_form.html", Context{"form": form})
		return
	}
	if err := form.bind(r); err != nil {
		s.serverError(w, r, err)
		return
	}
	if _, ok := form.Errors["old_password"]; !ok && !auth.CheckPassword(user.PasswordHash, form.oldPassword) {
		form.Errors["old_password"] = "Ваш старый пароль введен неправильно. Пожалуйста, введите его снова."
	}
	if len(form.Errors) > 0 {
		s.render(w, r, http.StatusOK, "users/password_change_form.html", Context{"form": form})
		return
	}

	hash, err := auth.HashPassword(form.newPassword)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	if err := s.store.UpdateUserPassword(r.Context(), user.ID, hash); err != nil {
		s.fail(w, r, err)
		return
	}
	slog.Info("password changed", slog.String("username", user.Username))
	http.Redirect(w, r, "/auth/password_change/done/", http.StatusFound)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Clear(w)
	// Шапка страницы уже не должна показывать пользователя.
	r = r.WithContext(auth.WithUser(r.Context(), nil))
	s.render(w, r, http.StatusOK, "users/logged_out.html", nil)
}
