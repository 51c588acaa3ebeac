package web

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/UkralStul/yatube/internal/auth"
	"github.com/UkralStul/yatube/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sessionCookie(rec *http.Response) *http.Cookie {
	for _, c := range rec.Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	return nil
}

func TestSignup(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get(t, "/auth/signup/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "users/signup.html", env.renderer.last(t).Name)

	rec = env.postForm(t, "/auth/signup/", nil, url.Values{
		"first_name": {"Лев"},
		"last_name":  {"Толстой"},
		"username":   {"leo"},
		"password1":  {"war-and-peace"},
		"password2":  {"war-and-peace"},
	})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	cookie := sessionCookie(rec.Result())
	require.NotNil(t, cookie)
	user, err := env.store.GetUserByUsername(context.Background(), "leo")
	require.NoError(t, err)
	id, err := env.sessions.Parse(cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, user.ID, id)
	assert.Equal(t, "Лев Толстой", user.FullName())
	assert.True(t, auth.CheckPassword(user.PasswordHash, "war-and-peace"))
}

func TestSignup_Errors(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.store.CreateUser(context.Background(), &domain.User{Username: "taken", PasswordHash: "x"})
	require.NoError(t, err)

	tests := []struct {
		name  string
		form  url.Values
		field string
	}{
		{"no username", url.Values{"password1": {"long-enough"}, "password2": {"long-enough"}}, "username"},
		{"bad username", url.Values{"username": {"bad name!"}, "password1": {"long-enough"}, "password2": {"long-enough"}}, "username"},
		{"taken username", url.Values{"username": {"taken"}, "password1": {"long-enough"}, "password2": {"long-enough"}}, "username"},
		{"short password", url.Values{"username": {"bob"}, "password1": {"short"}, "password2": {"short"}}, "password1"},
		{"mismatch", url.Values{"username": {"bob"}, "password1": {"long-enough"}, "password2": {"different!"}}, "password2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.postForm(t, "/auth/signup/", nil, tt.form)
			require.Equal(t, http.StatusOK, rec.Code)
			call := env.renderer.last(t)
			assert.Equal(t, "users/signup.html", call.Name)
			assert.Contains(t, call.Data["form"].(*SignupForm).Errors, tt.field)
		})
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	hash, err := auth.HashPassword("correct horse")
	require.NoError(t, err)
	user, err := env.store.CreateUser(context.Background(), &domain.User{Username: "leo", PasswordHash: hash})
	require.NoError(t, err)

	rec := env.get(t, auth.LoginURL("/follow/"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/follow/", env.renderer.last(t).Data["form"].(*LoginForm).Next)

	rec = env.postForm(t, "/auth/login/?next=%2Ffollow%2F", nil, url.Values{"username": {"leo"}, "password": {"wrong password"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, env.renderer.last(t).Data["form"].(*LoginForm).Errors, "all")
	assert.Nil(t, sessionCookie(rec.Result()))

	rec = env.postForm(t, "/auth/login/?next=%2Ffollow%2F", nil, url.Values{"username": {"leo"}, "password": {"correct horse"}})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/follow/", rec.Header().Get("Location"))
	cookie := sessionCookie(rec.Result())
	require.NotNil(t, cookie)
	id, err := env.sessions.Parse(cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, user.ID, id)
}

func TestLogin_ForeignNextIsIgnored(t *testing.T) {
	env := newTestEnv(t)
	hash, err := auth.HashPassword("correct horse")
	require.NoError(t, err)
	_, err = env.store.CreateUser(context.Background(), &domain.User{Username: "leo", PasswordHash: hash})
	require.NoError(t, err)

	rec := env.postForm(t, "/auth/login/", nil, url.Values{
		"username": {"leo"},
		"password": {"correct horse"},
		"next":     {"https://evil.example/"},
	})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	user, err := env.store.CreateUser(context.Background(), &domain.User{Username: "leo", PasswordHash: "x"})
	require.NoError(t, err)

	rec := env.get(t, "/auth/logout/", user)
	require.Equal(t, http.StatusOK, rec.Code)
	call := env.renderer.last(t)
	assert.Equal(t, "users/logged_out.html", call.Name)
	assert.NotContains(t, call.Data, "user")

	cookie := sessionCookie(rec.Result())
	require.NotNil(t, cookie)
	assert.Equal(t, -1, cookie.MaxAge)
}

func TestPasswordChange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	hash, err := auth.HashPassword("old password")
	require.NoError(t, err)
	user, err := env.store.CreateUser(ctx, &domain.User{Username: "leo", PasswordHash: hash})
	require.NoError(t, err)

	rec := env.get(t, "/auth/password_change/", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, auth.LoginURL("/auth/password_change/"), rec.Header().Get("Location"))

	rec = env.get(t, "/auth/password_change/", user)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "users/password_change_form.html", env.renderer.last(t).Name)

	rec = env.postForm(t, "/auth/password_change/", user, url.Values{
		"old_password":  {"old password"},
		"new_password1": {"brand new secret"},
		"new_password2": {"brand new secret"},
	})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth/password_change/done/", rec.Header().Get("Location"))

	stored, err := env.store.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, auth.CheckPassword(stored.PasswordHash, "brand new secret"))
	assert.False(t, auth.CheckPassword(stored.PasswordHash, "old password"))

	rec = env.get(t, "/auth/password_change/done/", user)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "users/password_change_done.html", env.renderer.last(t).Name)

	rec = env.postForm(t, "/auth/login/", nil, url.Values{"username": {"leo"}, "password": {"brand new secret"}})
	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestPasswordChange_Errors(t *testing.T) {
	env := newTestEnv(t)
	hash, err := auth.HashPassword("old password")
	require.NoError(t, err)
	user, err := env.store.CreateUser(context.Background(), &domain.User{Username: "leo", PasswordHash: hash})
	require.NoError(t, err)

	tests := []struct {
		name  string
		form  url.Values
		field string
	}{
		{"wrong old", url.Values{"old_password": {"not it at all"}, "new_password1": {"long-enough"}, "new_password2": {"long-enough"}}, "old_password"},
		{"missing old", url.Values{"new_password1": {"long-enough"}, "new_password2": {"long-enough"}}, "old_password"},
		{"short new", url.Values{"old_password": {"old password"}, "new_password1": {"short"}, "new_password2": {"short"}}, "new_password1"},
		{"mismatch", url.Values{"old_password": {"old password"}, "new_password1": {"long-enough"}, "new_password2": {"different!"}}, "new_password2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.postForm(t, "/auth/password_change/", user, tt.form)
			require.Equal(t, http.StatusOK, rec.Code)
			call := env.renderer.last(t)
			assert.Equal(t, "users/password_change_form.html", call.Name)
			assert.Contains(t, call.Data["form"].(*PasswordChangeForm).Errors, tt.field)

			stored, err := env.store.GetUserByID(context.Background(), user.ID)
			require.NoError(t, err)
			assert.True(t, auth.CheckPassword(stored.PasswordHash, "old password"))
		})
	}
}
