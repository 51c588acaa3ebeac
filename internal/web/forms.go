package web

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/UkralStul/yatube/internal/auth"
	"github.com/UkralStul/yatube/internal/domain"
	"github.com/UkralStul/yatube/internal/media"
	"github.com/UkralStul/yatube/internal/storage"
)

const (
	msgRequired      = "Обязательное поле."
	msgInvalidChoice = "Выберите корректный вариант. Вашего варианта нет среди допустимых значений."
)

// maxFormMemory - сколько multipart-формы держится в памяти.
const maxFormMemory = media.MaxImageSize + 1<<20

// FieldErrors - ошибки по именам полей формы.
type FieldErrors map[string]string

// PostForm - форма создания и редактирования поста.
type PostForm struct {
	Text    string
	GroupID string
	// Image - текущая картинка поста, пустая для нового.
	Image string

	Groups []*domain.Group
	Errors FieldErrors

	clearImage bool
	upload     *upload
}

type upload struct {
	name string
	file multipart.File
}

// newPostForm - пустая форма, initial заполняется из post, если он есть.
func newPostForm(groups []*domain.Group, post *domain.Post) *PostForm {
	f := &PostForm{Groups: groups, Errors: FieldErrors{}}
	if post != nil {
		f.Text = post.Text
		f.Image = post.Image
		if post.GroupID != nil {
			f.GroupID = *post.GroupID
		}
	}
	return f
}

// parseForm разбирает тело запроса, обычное или multipart.
func parseForm(r *http.Request) error {
	err := r.ParseMultipartForm(maxFormMemory)
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return err
	}
	return nil
}

// bind заполняет форму из запроса и проверяет поля. Картинка только
// открывается; на диск она пишется в save, когда остальные поля верны.
func (f *PostForm) bind(ctx context.Context, r *http.Request, store storage.Storage) error {
	if err := parseForm(r); err != nil {
		return err
	}
	f.Text = r.PostFormValue("text")
	f.GroupID = strings.TrimSpace(r.PostFormValue("group"))
	f.clearImage = r.PostFormValue("image-clear") != ""

	if err := storage.ValidatePostText(f.Text); err != nil {
		f.Errors["text"] = msgRequired
	}
	if f.GroupID != "" {
		if _, err := store.GetGroupByID(ctx, f.GroupID); err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				return err
			}
			f.Errors["group"] = msgInvalidChoice
		}
	}

	file, header, err := r.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	case err != nil:
		return err
	default:
		f.upload = &upload{name: header.Filename, file: file}
	}
	return nil
}

// Valid - форма без ошибок.
func (f *PostForm) Valid() bool { return len(f.Errors) == 0 }

// save сохраняет загруженную картинку и возвращает новое значение Image:
// nil - не менять.
func (f *PostForm) save(m *media.Store) (*string, error) {
	if f.upload == nil {
		if f.clearImage {
			empty := ""
			return &empty, nil
		}
		return nil, nil
	}
	if m == nil {
		return nil, errors.New("media storage is not configured")
	}
	name, err := m.SavePostImage(f.upload.name, f.upload.file)
	if errors.Is(err, media.ErrNotImage) || errors.Is(err, media.ErrImageTooBig) {
		f.Errors["image"] = err.Error()
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	f.Image = name
	return &name, nil
}

// close освобождает открытый файл загрузки.
func (f *PostForm) close() {
	if f.upload != nil {
		_ = f.upload.file.Close()
	}
}

func (f *PostForm) group() *string {
	if f.GroupID == "" {
		return nil
	}
	id := f.GroupID
	return &id
}

// CommentForm - форма комментария.
type CommentForm struct {
	Text   string
	Errors FieldErrors
}

func (f *CommentForm) bind(r *http.Request) error {
	f.Errors = FieldErrors{}
	if err := parseForm(r); err != nil {
		return err
	}
	f.Text = r.PostFormValue("text")
	if err := storage.ValidateCommentText(f.Text); err != nil {
		f.Errors["text"] = msgRequired
	}
	return nil
}

// SignupForm - регистрация пользователя.
type SignupForm struct {
	FirstName string
	LastName  string
	Username  string
	Errors    FieldErrors

	password string
}

// MaxUsernameLength совпадает с размером колонки users.username.
const MaxUsernameLength = 150

func (f *SignupForm) bind(r *http.Request) error {
	f.Errors = FieldErrors{}
	if err := parseForm(r); err != nil {
		return err
	}
	f.FirstName = strings.TrimSpace(r.PostFormValue("first_name"))
	f.LastName = strings.TrimSpace(r.PostFormValue("last_name"))
	f.Username = strings.TrimSpace(r.PostFormValue("username"))
	f.password = r.PostFormValue("password1")

	switch {
	case f.Username == "":
		f.Errors["username"] = msgRequired
	case utf8.RuneCountInString(f.Username) > MaxUsernameLength || !validUsername(f.Username):
		f.Errors["username"] = "Введите правильное имя пользователя. Оно может содержать только буквы, цифры и знаки @/./+/-/_."
	}
	switch {
	case f.password == "":
		f.Errors["password1"] = msgRequired
	case utf8.RuneCountInString(f.password) < auth.MinPasswordLength:
		f.Errors["password1"] = "Пароль слишком короткий."
	}
	if f.password != r.PostFormValue("password2") {
		f.Errors["password2"] = "Введенные пароли не совпадают."
	}
	return nil
}

// validUsername - буквы, цифры и @ . + - _.
func validUsername(s string) bool {
	for _, r := range s {
		switch {
		case strings.ContainsRune("@.+-_", r):
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= 'а' && r <= 'я', r >= 'А' && r <= 'Я', r == 'ё', r == 'Ё':
		default:
			return false
		}
	}
	return true
}

// PasswordChangeForm - смена пароля вошедшим пользователем.
type PasswordChangeForm struct {
	Errors FieldErrors

	oldPassword string
	newPassword string
}

func (f *PasswordChangeForm) bind(r *http.Request) error {
	f.Errors = FieldErrors{}
	if err := parseForm(r); err != nil {
		return err
	}
	f.oldPassword = r.PostFormValue("old_password")
	f.newPassword = r.PostFormValue("new_password1")

	if f.oldPassword == "" {
		f.Errors["old_password"] = msgRequired
	}
	switch {
	case f.newPassword == "":
		f.Errors["new_password1"] = msgRequired
	case utf8.RuneCountInString(f.newPassword) < auth.MinPasswordLength:
		f.Errors["new_password1"] = "Пароль слишком короткий."
	}
	if f.newPassword != r.PostFormValue("new_password2") {
		f.Errors["new_password2"] = "Введенные пароли не совпадают."
	}
	return nil
}

// LoginForm - вход по имени и паролю.
type LoginForm struct {
	Username string
	Next     string
	Errors   FieldErrors

	password string
}

func (f *LoginForm) bind(r *http.Request) error {
	f.Errors = FieldErrors{}
	if err := parseForm(r); err != nil {
		return err
	}
	f.Username = strings.TrimSpace(r.PostFormValue("username"))
	f.password = r.PostFormValue("password")
	f.Next = r.PostFormValue("next")
	if f.Next == "" {
		f.Next = r.URL.Query().Get("next")
	}
	return nil
}
