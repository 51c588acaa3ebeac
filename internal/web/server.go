// Package web - HTTP-интерфейс сайта: маршруты, обработчики, формы и шаблоны.
package web

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/UkralStul/yatube/internal/auth"
	"github.com/UkralStul/yatube/internal/dataloader"
	"github.com/UkralStul/yatube/internal/live"
	"github.com/UkralStul/yatube/internal/media"
	"github.com/UkralStul/yatube/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultIndexCacheTTL - сколько живет закешированная главная страница.
const DefaultIndexCacheTTL = 20 * time.Second

// Options - зависимости сервера. Обязательно только Store.
type Options struct {
	Store    storage.Storage
	Sessions *auth.Sessions
	Media    *media.Store
	Observer *live.CommentObserver
	// Renderer по умолчанию - встроенные html-шаблоны.
	Renderer Renderer
	// Registry по умолчанию - новый реестр без метрик рантайма.
	Registry *prometheus.Registry
	// IndexCacheTTL < 0 выключает кеш главной, 0 - DefaultIndexCacheTTL.
	IndexCacheTTL time.Duration
}

// Server обслуживает сайт.
type Server struct {
	store    storage.Storage
	sessions *auth.Sessions
	media    *media.Store
	observer *live.CommentObserver
	renderer Renderer
	registry *prometheus.Registry
	metrics  *Metrics
	cache    *pageCache
	router   chi.Router
}

// New собирает сервер и его маршруты.
func New(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, errors.New("web: store is required")
	}
	s := &Server{
		store:    opts.Store,
		sessions: opts.Sessions,
		media:    opts.Media,
		observer: opts.Observer,
		renderer: opts.Renderer,
		registry: opts.Registry,
	}
	if s.sessions == nil {
		sessions, err := auth.NewSessions(nil, 14*24*time.Hour, false)
		if err != nil {
			return nil, err
		}
		s.sessions = sessions
	}
	if s.observer == nil {
		s.observer = live.NewCommentObserver()
	}
	if s.renderer == nil {
		r, err := NewHTMLRenderer()
		if err != nil {
			return nil, fmt.Errorf("load templates: %w", err)
		}
		s.renderer = r
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	s.metrics = NewMetrics(s.registry)

	ttl := opts.IndexCacheTTL
	if ttl == 0 {
		ttl = DefaultIndexCacheTTL
	}
	s.cache = newPageCache(ttl)

	s.router = s.routes()
	return s, nil
}

// ServeHTTP реализует http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// PurgeCache сбрасывает кеш страниц.
func (s *Server) PurgeCache() { s.cache.purge() }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.Middleware)
	r.Use(s.sameOrigin)
	r.Use(auth.Middleware(s.sessions, s.store))
	r.Use(dataloader.Middleware(s.store))

	r.NotFound(s.notFound)

	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	if s.media != nil {
		r.Handle("/media/*", s.media.Handler("/media/"))
	}

	r.Get("/", s.index)
	r.Get("/group/{slug}/", s.groupPosts)
	r.Get("/profile/{username}/", s.profile)
	r.Get("/posts/{postID}/", s.postDetail)
	r.Get("/posts/{postID}/comments/live", s.liveComments)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireLogin)
		r.Get("/create/", s.postCreate)
		r.Post("/create/", s.postCreate)
		r.Get("/posts/{postID}/edit/", s.postEdit)
		r.Post("/posts/{postID}/edit/", s.postEdit)
		r.Post("/posts/{postID}/delete/", s.postDelete)
		r.Get("/posts/{postID}/comment/", s.addComment)
		r.Post("/posts/{postID}/comment/", s.addComment)
		r.Get("/follow/", s.followIndex)
		r.Get("/profile/{username}/follow/", s.profileFollow)
		r.Get("/profile/{username}/unfollow/", s.profileUnfollow)
	})

	r.Route("/auth", func(r chi.Router) {
		r.Get("/signup/", s.signup)
		r.Post("/signup/", s.signup)
		r.Get("/login/", s.login)
		r.Post("/login/", s.login)
		r.Get("/logout/", s.logout)
		r.Post("/logout/", s.logout)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireLogin)
			r.Get("/password_change/", s.passwordChange)
			r.Post("/password_change/", s.passwordChange)
			r.Get("/password_change/done/", s.staticPage("users/password_change_done.html"))
		})
	})

	r.Get("/about/author/", s.staticPage("about/author.html"))
	r.Get("/about/tech/", s.staticPage("about/tech.html"))

	return r
}

// render рисует страницу в буфер и отправляет ее со статусом status.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data Context) {
	body, err := s.renderPage(r, name, data)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	writeHTML(w, status, body)
}

func (s *Server) renderPage(r *http.Request, name string, data Context) ([]byte, error) {
	if data == nil {
		data = Context{}
	}
	if u := auth.UserFrom(r.Context()); u != nil {
		data["user"] = u
	}
	var buf bytes.Buffer
	if err := s.renderer.Render(&buf, name, data); err != nil {
		return nil, fmt.Errorf("render %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

func writeHTML(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusNotFound, "core/404.html", Context{"path": r.URL.Path})
}

func (s *Server) forbidden(w http.ResponseWriter, r *http.Request, reason string) {
	s.render(w, r, http.StatusForbidden, "core/403csrf.html", Context{"reason": reason})
}

// serverError пишет ошибку в лог и отвечает страницей 500. Если не
// удалась и она, отвечает простым текстом.
func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("request failed",
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	var buf bytes.Buffer
	if rerr := s.renderer.Render(&buf, "core/500.html", Context{}); rerr != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	writeHTML(w, http.StatusInternalServerError, buf.Bytes())
}

// fail переводит ошибку хранилища в ответ: ErrNotFound - 404, остальное - 500.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		s.notFound(w, r)
		return
	}
	s.serverError(w, r, err)
}

func (s *Server) staticPage(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.render(w, r, http.StatusOK, name, nil)
	}
}

// sameOrigin отклоняет изменяющие запросы с чужого сайта. Браузеры
// присылают Sec-Fetch-Site или Origin; запросы без них (curl, тесты) проходят.
func (s *Server) sameOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		if site := r.Header.Get("Sec-Fetch-Site"); site != "" {
			if site != "same-origin" && site != "none" {
				s.forbidden(w, r, "CSRF verification failed: cross-site request.")
				return
			}
			next.ServeHTTP(w, r)
			return
		}
		if origin := r.Header.Get("Origin"); origin != "" {
			u, err := url.Parse(origin)
			if err != nil || u.Host != r.Host {
				s.forbidden(w, r, "CSRF verification failed: origin does not match.")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func postURL(id string) string      { return "/posts/" + url.PathEscape(id) + "/" }
func profileURL(name string) string { return "/profile/" + url.PathEscape(name) + "/" }
func groupURL(slug string) string   { return "/group/" + url.PathEscape(slug) + "/" }
