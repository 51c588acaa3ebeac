package web

import (
	"context"
	"net/http"

	"github.com/UkralStul/yatube/internal/auth"
	"github.com/UkralStul/yatube/internal/dataloader"
	"github.com/UkralStul/yatube/internal/domain"
	"github.com/UkralStul/yatube/internal/paginator"
	"github.com/UkralStul/yatube/internal/storage"
	"github.com/go-chi/chi/v5"
)

// PostPage - страница ленты: номер страницы и ее посты.
type PostPage struct {
	paginator.Page
	Posts []*domain.Post
}

// Len - число постов на странице.
func (p *PostPage) Len() int { return len(p.Posts) }

// loaders возвращает лоадеры запроса или новые, если middleware не подключен.
func (s *Server) loaders(ctx context.Context) *dataloader.Loaders {
	if l := dataloader.For(ctx); l != nil {
		return l
	}
	return dataloader.New(s.store)
}

// postPage выбирает страницу ?page= постов по фильтру и подгружает
// авторов и группы.
func (s *Server) postPage(r *http.Request, filter storage.PostFilter) (*PostPage, error) {
	ctx := r.Context()
	total, err := s.store.CountPosts(ctx, filter)
	if err != nil {
		return nil, err
	}
	page := paginator.New(total, paginator.PostsPerPage, r.URL.Query().Get("page"))
	posts, err := s.store.ListPosts(ctx, filter, storage.PageArgs{Limit: page.Limit(), Offset: page.Offset()})
	if err != nil {
		return nil, err
	}
	if err := s.loaders(ctx).HydratePosts(ctx, posts); err != nil {
		return nil, err
	}
	return &PostPage{Page: page, Posts: posts}, nil
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	key := pageKey(r)
	if body, ok := s.cache.get(key); ok {
		writeHTML(w, http.StatusOK, body)
		return
	}
	page, err := s.postPage(r, storage.PostFilter{})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	body, err := s.renderPage(r, "posts/index.html", Context{"page_obj": page})
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.cache.add(key, body)
	writeHTML(w, http.StatusOK, body)
}

func (s *Server) groupPosts(w http.ResponseWriter, r *http.Request) {
	group, err := s.store.GetGroupBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page, err := s.postPage(r, storage.PostFilter{GroupID: group.ID})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "posts/group_list.html", Context{"group": group, "page_obj": page})
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	author, err := s.store.GetUserByUsername(ctx, chi.URLParam(r, "username"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page, err := s.postPage(r, storage.PostFilter{AuthorID: author.ID})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	following := false
	if viewer := auth.UserFrom(ctx); viewer != nil {
		if following, err = s.store.IsFollowing(ctx, viewer.ID, author.ID); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	followers, err := s.store.CountFollowers(ctx, author.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	followingCount, err := s.store.CountFollowing(ctx, author.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "posts/profile.html", Context{
		"author":          author,
		"page_obj":        page,
		"following":       following,
		"post_count":      page.Total,
		"followers_count": followers,
		"following_count": followingCount,
	})
}

// loadPost читает пост из URL вместе с автором и группой.
func (s *Server) loadPost(r *http.Request) (*domain.Post, error) {
	ctx := r.Context()
	post, err := s.store.GetPostByID(ctx, chi.URLParam(r, "postID"))
	if err != nil {
		return nil, err
	}
	if err := s.loaders(ctx).HydratePosts(ctx, []*domain.Post{post}); err != nil {
		return nil, err
	}
	return post, nil
}

func (s *Server) postDetail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	post, err := s.loadPost(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	comments, err := s.store.GetCommentsByPostID(ctx, post.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.loaders(ctx).HydrateComments(ctx, comments); err != nil {
		s.fail(w, r, err)
		return
	}
	postCount, err := s.store.CountPosts(ctx, storage.PostFilter{AuthorID: post.AuthorID})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	viewer := auth.UserFrom(ctx)
	s.render(w, r, http.StatusOK, "posts/post_detail.html", Context{
		"post":       post,
		"comments":   comments,
		"form":       &CommentForm{Errors: FieldErrors{}},
		"post_count": postCount,
		"is_author":  viewer != nil && viewer.ID == post.AuthorID,
	})
}

func (s *Server) postCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	viewer := auth.UserFrom(ctx)
	groups, err := s.store.ListGroups(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	form := newPostForm(groups, nil)
	if r.Method != http.MethodPost {
		s.render(w, r, http.StatusOK, "posts/create_post.html", Context{"form": form})
		return
	}

	defer form.close()
	if err := form.bind(ctx, r, s.store); err != nil {
		s.serverError(w, r, err)
		return
	}
	var image *string
	if form.Valid() {
		if image, err = form.save(s.media); err != nil {
			s.serverError(w, r, err)
			return
		}
	}
	if !form.Valid() {
		s.render(w, r, http.StatusOK, "posts/create_post.html", Context{"form": form})
		return
	}

	post := &domain.Post{Text: form.Text, AuthorID: viewer.ID, GroupID: form.group()}
	if image != nil {
		post.Image = *image
	}
	if _, err := s.store.CreatePost(ctx, post); err != nil {
		s.fail(w, r, err)
		return
	}
	s.metrics.postsCreated.Inc()
	http.Redirect(w, r, profileURL(viewer.Username), http.StatusFound)
}

func (s *Server) postEdit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	post, err := s.store.GetPostByID(ctx, chi.URLParam(r, "postID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if auth.UserFrom(ctx).ID != post.AuthorID {
		http.Redirect(w, r, postURL(post.ID), http.StatusFound)
		return
	}
	groups, err := s.store.ListGroups(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	form := newPostForm(groups, post)
	data := Context{"form": form, "is_edit": true, "post": post}
	if r.Method != http.MethodPost {
		s.render(w, r, http.StatusOK, "posts/create_post.html", data)
		return
	}

	defer form.close()
	if err := form.bind(ctx, r, s.store); err != nil {
		s.serverError(w, r, err)
		return
	}
	var image *string
	if form.Valid() {
		if image, err = form.save(s.media); err != nil {
			s.serverError(w, r, err)
			return
		}
	}
	if !form.Valid() {
		s.render(w, r, http.StatusOK, "posts/create_post.html", data)
		return
	}

	_, err = s.store.UpdatePost(ctx, post.ID, storage.PostUpdate{
		Text:    form.Text,
		GroupID: form.group(),
		Image:   image,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	http.Redirect(w, r, postURL(post.ID), http.StatusFound)
}

func (s *Server) postDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	viewer := auth.UserFrom(ctx)
	post, err := s.store.GetPostByID(ctx, chi.URLParam(r, "postID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if viewer.ID != post.AuthorID {
		s.forbidden(w, r, "Удалять пост может только его автор.")
		return
	}
	if err := s.store.DeletePost(ctx, post.ID); err != nil {
		s.fail(w, r, err)
		return
	}
	http.Redirect(w, r, profileURL(viewer.Username), http.StatusFound)
}

// addComment сохраняет комментарий. Невалидная форма молча игнорируется:
// пользователь в любом случае возвращается на страницу поста.
func (s *Server) addComment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	postID := chi.URLParam(r, "postID")
	var form CommentForm
	if r.Method == http.MethodPost {
		if err := form.bind(r); err != nil {
			s.serverError(w, r, err)
			return
		}
	} else {
		form.Errors = FieldErrors{"text": msgRequired}
	}
	if len(form.Errors) == 0 {
		viewer := auth.UserFrom(ctx)
		comment, err := s.store.CreateComment(ctx, &domain.Comment{
			PostID:   postID,
			AuthorID: viewer.ID,
			Text:     form.Text,
		})
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.metrics.commentsCreated.Inc()
		comment.Author = viewer
		s.observer.Publish(comment)
	}
	http.Redirect(w, r, postURL(postID), http.StatusFound)
}

func (s *Server) liveComments(w http.ResponseWriter, r *http.Request) {
	post, err := s.store.GetPostByID(r.Context(), chi.URLParam(r, "postID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.observer.Stream(w, r, post.ID)
}

func (s *Server) followIndex(w http.ResponseWriter, r *http.Request) {
	viewer := auth.UserFrom(r.Context())
	page, err := s.postPage(r, storage.PostFilter{FollowerID: viewer.ID})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "posts/follow.html", Context{"page_obj": page})
}

// profileFollow подписывает на автора. На себя подписаться нельзя,
// повторная подписка ничего не меняет.
func (s *Server) profileFollow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	viewer := auth.UserFrom(ctx)
	author, err := s.store.GetUserByUsername(ctx, chi.URLParam(r, "username"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if viewer.ID != author.ID {
		_, created, err := s.store.CreateFollow(ctx, viewer.ID, author.ID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if created {
			s.metrics.followsCreated.Inc()
		}
	}
	http.Redirect(w, r, profileURL(author.Username), http.StatusFound)
}

func (s *Server) profileUnfollow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	viewer := auth.UserFrom(ctx)
	author, err := s.store.GetUserByUsername(ctx, chi.URLParam(r, "username"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.store.DeleteFollow(ctx, viewer.ID, author.ID); err != nil {
		s.fail(w, r, err)
		return
	}
	http.Redirect(w, r, profileURL(author.Username), http.StatusFound)
}
