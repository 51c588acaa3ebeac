// Package media хранит загруженные картинки постов на диске.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// PostsDir - подкаталог для картинок постов.
const PostsDir = "posts"

// MaxImageSize ограничивает размер одной картинки.
const MaxImageSize = 5 << 20

var (
	ErrNotImage    = errors.New("upload a valid image: the file is not an image or is corrupted")
	ErrImageTooBig = fmt.Errorf("image must be at most %d bytes", MaxImageSize)
)

// Store сохраняет файлы под root.
type Store struct {
	root string
}

// New создает каталог root/posts, если его нет.
func New(root string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("media root is required")
	}
	if err := os.MkdirAll(filepath.Join(root, PostsDir), 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &Store{root: root}, nil
}

// SavePostImage проверяет, что src - картинка GIF/PNG/JPEG, и сохраняет ее.
// Возвращает путь относительно root, например "posts/small.gif".
func (s *Store) SavePostImage(filename string, src io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(src, MaxImageSize+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if len(data) > MaxImageSize {
		return "", ErrImageTooBig
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return "", ErrNotImage
	}

	name := cleanName(filename)
	dst := filepath.Join(s.root, PostsDir, name)
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		// Имя занято - добавляем короткий случайный суффикс.
		ext := filepath.Ext(name)
		name = strings.TrimSuffix(name, ext) + "_" + uuid.NewString()[:7] + ext
		dst = filepath.Join(s.root, PostsDir, name)
		f, err = os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	}
	if err != nil {
		return "", fmt.Errorf("create image file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write image file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close image file: %w", err)
	}
	return path.Join(PostsDir, name), nil
}

// cleanName оставляет от имени файла безопасные символы.
func cleanName(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	name := strings.TrimLeft(b.String(), ".")
	if name == "" {
		name = "image"
	}
	return name
}

// Handler отдает сохраненные файлы; монтируется под /media/.
// Каталоги не отдаются: на них 404, а не листинг.
func (s *Store) Handler(prefix string) http.Handler {
	return http.StripPrefix(prefix, http.FileServer(filesOnly{http.Dir(s.root)}))
}

// filesOnly прячет каталоги, как будто их нет.
type filesOnly struct {
	fs http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, os.ErrNotExist
	}
	return file, nil
}
