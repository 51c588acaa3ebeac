package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"strings"
	"time"
)

//go:embed templates
var templatesFS embed.FS

// Context - данные, которые обработчик передает в шаблон.
type Context map[string]any

// Renderer рисует страницу name с данными data.
type Renderer interface {
	Render(w io.Writer, name string, data Context) error
}

// HTMLRenderer рендерит встроенные шаблоны html/template. Каждая страница
// собирается из base.html, includes/*.html и своего файла.
type HTMLRenderer struct {
	pages map[string]*template.Template
}

var funcs = template.FuncMap{
	"date":       func(t time.Time) string { return t.Format("02.01.2006 15:04") },
	"media":      func(p string) string { return "/media/" + p },
	"postURL":    postURL,
	"profileURL": profileURL,
	"groupURL":   groupURL,
}

// NewHTMLRenderer разбирает все страницы из templates/.
func NewHTMLRenderer() (*HTMLRenderer, error) {
	root, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		return nil, err
	}
	base, err := template.New("base.html").Funcs(funcs).ParseFS(root, "base.html", "includes/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	r := &HTMLRenderer{pages: make(map[string]*template.Template)}
	err = fs.WalkDir(root, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path.Ext(name) != ".html" || name == "base.html" || strings.HasPrefix(name, "includes/") {
			return nil
		}
		page, err := base.Clone()
		if err != nil {
			return err
		}
		if _, err := page.ParseFS(root, name); err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
		r.pages[name] = page
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Render выполняет страницу name.
func (r *HTMLRenderer) Render(w io.Writer, name string, data Context) error {
	page, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("template %q not found", name)
	}
	return page.ExecuteTemplate(w, "base.html", data)
}

// Has сообщает, есть ли страница с таким именем.
func (r *HTMLRenderer) Has(name string) bool {
	_, ok := r.pages[name]
	return ok
}
