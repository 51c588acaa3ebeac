package web

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/UkralStul/yatube/internal/auth"
	"github.com/UkralStul/yatube/internal/domain"
	"github.com/UkralStul/yatube/internal/paginator"
	"github.com/UkralStul/yatube/internal/storage"
	"github.com/UkralStul/yatube/internal/storage/storagetest"
	"github.com/gorilla/websocket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixture - автор с постом в группе и посторонний пользователь.
type fixture struct {
	*testEnv
	author *domain.User
	user   *domain.User
	group  *domain.Group
	post   *domain.Post
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	env := newTestEnv(t)
	f := &fixture{testEnv: env}
	f.author = storagetest.MustUser(t, env.store, "Author")
	f.user = storagetest.MustUser(t, env.store, "user")
	f.group = storagetest.MustGroup(t, env.store, "Test_slug")
	f.post = storagetest.MustPost(t, env.store, f.author, f.group, "Тестовый пост")
	return f
}

func TestURLs(t *testing.T) {
	f := newFixture(t)
	detail := postURL(f.post.ID)
	profile := profileURL(f.author.Username)

	tests := []struct {
		name     string
		url      string
		client   *domain.User
		status   int
		template string
		location string
	}{
		{"index guest", "/", nil, http.StatusOK, "posts/index.html", ""},
		{"group guest", groupURL(f.group.Slug), nil, http.StatusOK, "posts/group_list.html", ""},
		{"profile guest", profile, nil, http.StatusOK, "posts/profile.html", ""},
		{"detail guest", detail, nil, http.StatusOK, "posts/post_detail.html", ""},
		{"unknown group", "/group/missing/", nil, http.StatusNotFound, "core/404.html", ""},
		{"unknown profile", "/profile/nobody/", nil, http.StatusNotFound, "core/404.html", ""},
		{"unknown post", "/posts/00000000-0000-0000-0000-000000000000/", nil, http.StatusNotFound, "core/404.html", ""},

		{"create guest", "/create/", nil, http.StatusFound, "", auth.LoginURL("/create/")},
		{"edit guest", detail + "edit/", nil, http.StatusFound, "", auth.LoginURL(detail + "edit/")},
		{"comment guest", detail + "comment/", nil, http.StatusFound, "", auth.LoginURL(detail + "comment/")},
		{"follow index guest", "/follow/", nil, http.StatusFound, "", auth.LoginURL("/follow/")},
		{"follow guest", profile + "follow/", nil, http.StatusFound, "", auth.LoginURL(profile + "follow/")},
		{"unfollow guest", profile + "unfollow/", nil, http.StatusFound, "", auth.LoginURL(profile + "unfollow/")},

		{"create user", "/create/", f.user, http.StatusOK, "posts/create_post.html", ""},
		{"follow index user", "/follow/", f.user, http.StatusOK, "posts/follow.html", ""},
		{"edit not author", detail + "edit/", f.user, http.StatusFound, "", detail},
		{"comment get", detail + "comment/", f.user, http.StatusFound, "", detail},
		{"follow user", profile + "follow/", f.user, http.StatusFound, "", profile},
		{"unfollow user", profile + "unfollow/", f.user, http.StatusFound, "", profile},

		{"edit author", detail + "edit/", f.author, http.StatusOK, "posts/create_post.html", ""},
		{"comment author", detail + "comment/", f.author, http.StatusFound, "", detail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.server.PurgeCache()
			rec := f.get(t, tt.url, tt.client)
			require.Equal(t, tt.status, rec.Code)
			if tt.template != "" {
				assert.Equal(t, tt.template, f.renderer.last(t).Name)
			}
			if tt.location != "" {
				assert.Equal(t, tt.location, rec.Header().Get("Location"))
			}
		})
	}
}

func TestLoginRedirectKeepsNext(t *testing.T) {
	f := newFixture(t)
	rec := f.get(t, "/create/", nil)
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, auth.LoginPath, loc.Path)
	assert.Equal(t, "/create/", loc.Query().Get("next"))
}

func TestPagesContext(t *testing.T) {
	f := newFixture(t)
	other := storagetest.MustUser(t, f.store, "other")
	noGroup := storagetest.MustPost(t, f.store, f.author, nil, "Пост без группы")
	foreign := storagetest.MustPost(t, f.store, other, nil, "Чужой пост")

	ids := func(page *PostPage) []string {
		out := make([]string, 0, page.Len())
		for _, p := range page.Posts {
			out = append(out, p.ID)
		}
		return out
	}

	f.get(t, "/", nil)
	page := f.renderer.last(t).Data["page_obj"].(*PostPage)
	assert.Equal(t, []string{foreign.ID, noGroup.ID, f.post.ID}, ids(page))
	require.NotNil(t, page.Posts[2].Author)
	assert.Equal(t, "Author", page.Posts[2].Author.Username)
	require.NotNil(t, page.Posts[2].Group)
	assert.Equal(t, f.group.Title, page.Posts[2].Group.Title)

	f.get(t, groupURL(f.group.Slug), nil)
	data := f.renderer.last(t).Data
	assert.Equal(t, []string{f.post.ID}, ids(data["page_obj"].(*PostPage)))
	assert.Equal(t, f.group.ID, data["group"].(*domain.Group).ID)

	f.get(t, profileURL(f.author.Username), nil)
	data = f.renderer.last(t).Data
	assert.Equal(t, []string{noGroup.ID, f.post.ID}, ids(data["page_obj"].(*PostPage)))
	assert.Equal(t, f.author.ID, data["author"].(*domain.User).ID)
	assert.Equal(t, 2, data["post_count"])
	assert.Equal(t, false, data["following"])

	f.get(t, postURL(f.post.ID), nil)
	data = f.renderer.last(t).Data
	assert.Equal(t, f.post.ID, data["post"].(*domain.Post).ID)
	assert.Contains(t, data, "comments")
	assert.Contains(t, data, "form")
	assert.Equal(t, false, data["is_author"])
}

func TestPagination(t *testing.T) {
	env := newTestEnv(t)
	author := storagetest.MustUser(t, env.store, "Author")
	group := storagetest.MustGroup(t, env.store, "test-slug")
	for i := 0; i < paginator.PostsPerPage+3; i++ {
		storagetest.MustPost(t, env.store, author, group, fmt.Sprintf("Тест пост #%d", i+1))
	}

	for _, u := range []string{"/", groupURL(group.Slug), profileURL(author.Username)} {
		t.Run(u, func(t *testing.T) {
			env.server.PurgeCache()
			env.get(t, u, nil)
			assert.Equal(t, paginator.PostsPerPage, env.renderer.last(t).Data["page_obj"].(*PostPage).Len())

			env.get(t, u+"?page=2", nil)
			page := env.renderer.last(t).Data["page_obj"].(*PostPage)
			assert.Equal(t, 3, page.Len())
			assert.Equal(t, 2, page.Number)
			assert.False(t, page.HasNext())
		})
	}
}

func TestCreatePost(t *testing.T) {
	f := newFixture(t)
	before := f.countPosts(t)

	rec := f.postMultipart(t, "/create/", f.author, map[string]string{
		"text":  "Формы текст",
		"group": f.group.ID,
	}, "small.gif", smallGIF)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, profileURL(f.author.Username), rec.Header().Get("Location"))
	assert.Equal(t, before+1, f.countPosts(t))

	posts, err := f.store.ListPosts(context.Background(), storage.PostFilter{GroupID: f.group.ID}, storage.PageArgs{Limit: 1})
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "Формы текст", posts[0].Text)
	assert.Equal(t, "posts/small.gif", posts[0].Image)
	assert.FileExists(t, filepath.Join(f.media, "posts", "small.gif"))
}

func TestCreatePost_FormErrors(t *testing.T) {
	f := newFixture(t)
	before := f.countPosts(t)

	tests := []struct {
		name   string
		fields map[string]string
		image  []byte
		field  string
	}{
		{"empty text", map[string]string{"text": "  "}, nil, "text"},
		{"unknown group", map[string]string{"text": "текст", "group": "00000000-0000-0000-0000-000000000000"}, nil, "group"},
		{"not an image", map[string]string{"text": "текст"}, []byte("definitely not a gif"), "image"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.postMultipart(t, "/create/", f.author, tt.fields, "file.gif", tt.image)
			require.Equal(t, http.StatusOK, rec.Code)
			call := f.renderer.last(t)
			assert.Equal(t, "posts/create_post.html", call.Name)
			form := call.Data["form"].(*PostForm)
			assert.Contains(t, form.Errors, tt.field)
		})
	}
	assert.Equal(t, before, f.countPosts(t))
}

func TestEditPost(t *testing.T) {
	f := newFixture(t)
	detail := postURL(f.post.ID)

	f.get(t, detail+"edit/", f.author)
	call := f.renderer.last(t)
	assert.Equal(t, true, call.Data["is_edit"])
	form := call.Data["form"].(*PostForm)
	assert.Equal(t, f.post.Text, form.Text)
	assert.Equal(t, f.group.ID, form.GroupID)
	assert.Len(t, form.Groups, 1)

	rec := f.postMultipart(t, detail+"edit/", f.author, map[string]string{"text": "Измененный текст"}, "new.gif", smallGIF)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, detail, rec.Header().Get("Location"))

	post, err := f.store.GetPostByID(context.Background(), f.post.ID)
	require.NoError(t, err)
	assert.Equal(t, "Измененный текст", post.Text)
	assert.Nil(t, post.GroupID)
	assert.Equal(t, "posts/new.gif", post.Image)

	// Без новой картинки старая остается.
	rec = f.postForm(t, detail+"edit/", f.author, url.Values{"text": {"Еще раз"}, "group": {f.group.ID}})
	require.Equal(t, http.StatusFound, rec.Code)
	post, err = f.store.GetPostByID(context.Background(), f.post.ID)
	require.NoError(t, err)
	assert.Equal(t, "posts/new.gif", post.Image)
	require.NotNil(t, post.GroupID)
	assert.Equal(t, f.group.ID, *post.GroupID)

	rec = f.postForm(t, detail+"edit/", f.author, url.Values{"text": {"Без картинки"}, "image-clear": {"on"}})
	require.Equal(t, http.StatusFound, rec.Code)
	post, err = f.store.GetPostByID(context.Background(), f.post.ID)
	require.NoError(t, err)
	assert.Empty(t, post.Image)
}

func TestEditPost_InvalidFormKeepsEditMode(t *testing.T) {
	f := newFixture(t)
	rec := f.postForm(t, postURL(f.post.ID)+"edit/", f.author, url.Values{"text": {""}})
	require.Equal(t, http.StatusOK, rec.Code)
	call := f.renderer.last(t)
	assert.Equal(t, "posts/create_post.html", call.Name)
	assert.Equal(t, true, call.Data["is_edit"])
}

func TestEditPost_NotAuthor(t *testing.T) {
	f := newFixture(t)
	rec := f.postForm(t, postURL(f.post.ID)+"edit/", f.user, url.Values{"text": {"взлом"}})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, postURL(f.post.ID), rec.Header().Get("Location"))

	post, err := f.store.GetPostByID(context.Background(), f.post.ID)
	require.NoError(t, err)
	assert.Equal(t, "Тестовый пост", post.Text)
}

func TestDeletePost(t *testing.T) {
	f := newFixture(t)
	target := postURL(f.post.ID) + "delete/"

	rec := f.postForm(t, target, f.user, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "core/403csrf.html", f.renderer.last(t).Name)

	rec = f.postForm(t, target, f.author, nil)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, profileURL(f.author.Username), rec.Header().Get("Location"))
	_, err := f.store.GetPostByID(context.Background(), f.post.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAddComment(t *testing.T) {
	f := newFixture(t)
	target := postURL(f.post.ID) + "comment/"
	comments := func() []*domain.Comment {
		c, err := f.store.GetCommentsByPostID(context.Background(), f.post.ID)
		require.NoError(t, err)
		return c
	}

	rec := f.postForm(t, target, nil, url.Values{"text": {"Комментарий гостя"}})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, auth.LoginURL(target), rec.Header().Get("Location"))
	assert.Empty(t, comments())

	rec = f.postForm(t, target, f.user, url.Values{"text": {""}})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Empty(t, comments())

	rec = f.postForm(t, target, f.user, url.Values{"text": {"comment_from_user"}})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, postURL(f.post.ID), rec.Header().Get("Location"))
	got := comments()
	require.Len(t, got, 1)
	assert.Equal(t, "comment_from_user", got[0].Text)
	assert.Equal(t, f.user.ID, got[0].AuthorID)

	f.get(t, postURL(f.post.ID), nil)
	shown := f.renderer.last(t).Data["comments"].([]*domain.Comment)
	require.Len(t, shown, 1)
	assert.Equal(t, "user", shown[0].Author.Username)
}

func TestAddComment_UnknownPost(t *testing.T) {
	f := newFixture(t)
	rec := f.postForm(t, "/posts/00000000-0000-0000-0000-000000000000/comment/", f.user, url.Values{"text": {"куда?"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFollowAndUnfollow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	profile := profileURL(f.author.Username)
	followers := func() int {
		n, err := f.store.CountFollowers(ctx, f.author.ID)
		require.NoError(t, err)
		return n
	}

	f.get(t, profile+"follow/", f.user)
	assert.Equal(t, 1, followers())
	f.get(t, profile+"follow/", f.user)
	assert.Equal(t, 1, followers(), "repeated follow must not duplicate")

	f.get(t, profile, f.user)
	data := f.renderer.last(t).Data
	assert.Equal(t, true, data["following"])
	assert.Equal(t, 1, data["followers_count"])

	f.get(t, profile+"unfollow/", f.user)
	assert.Equal(t, 0, followers())

	f.get(t, profile+"follow/", f.author)
	assert.Equal(t, 0, followers(), "self follow must be ignored")
}

func TestFollowIndex(t *testing.T) {
	f := newFixture(t)
	follower := storagetest.MustUser(t, f.store, "follower")
	f.get(t, profileURL(f.author.Username)+"follow/", follower)

	f.get(t, "/follow/", follower)
	page := f.renderer.last(t).Data["page_obj"].(*PostPage)
	require.Equal(t, 1, page.Len())
	assert.Equal(t, f.post.ID, page.Posts[0].ID)

	f.get(t, "/follow/", f.user)
	assert.Equal(t, 0, f.renderer.last(t).Data["page_obj"].(*PostPage).Len())
}

func TestIndexCache(t *testing.T) {
	env := newTestEnvWith(t, nil)
	author := storagetest.MustUser(t, env.store, "Author")
	post := storagetest.MustPost(t, env.store, author, nil, "Пост для кеша")

	first := env.get(t, "/", nil)
	require.Equal(t, http.StatusOK, first.Code)
	require.Contains(t, first.Body.String(), "Пост для кеша")

	require.NoError(t, env.store.DeletePost(context.Background(), post.ID))
	second := env.get(t, "/", nil)
	assert.Equal(t, first.Body.String(), second.Body.String())

	env.server.PurgeCache()
	third := env.get(t, "/", nil)
	assert.NotEqual(t, first.Body.String(), third.Body.String())
	assert.NotContains(t, third.Body.String(), "Пост для кеша")
}

func TestMetrics(t *testing.T) {
	f := newFixture(t)
	f.postForm(t, "/create/", f.author, url.Values{"text": {"для метрик"}})
	f.get(t, profileURL(f.author.Username)+"follow/", f.user)

	rec := f.get(t, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "yatube_posts_created_total 1")
	assert.Contains(t, body, "yatube_follows_created_total 1")
	assert.Contains(t, body, `route="/create"`)
	assert.Contains(t, body, `route="/profile/{username}/follow"`)
}

func TestLiveComments(t *testing.T) {
	f := newFixture(t)
	srv := newHTTPServer(t, f.server)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + postURL(f.post.ID) + "comments/live"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return f.observer.Subscribers(f.post.ID) == 1 }, time.Second, 10*time.Millisecond)

	f.postForm(t, postURL(f.post.ID)+"comment/", f.user, url.Values{"text": {"в прямом эфире"}})

	var msg struct {
		Author string `json:"author"`
		Text   string `json:"text"`
	}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "user", msg.Author)
	assert.Equal(t, "в прямом эфире", msg.Text)
}

func TestLiveComments_UnknownPost(t *testing.T) {
	f := newFixture(t)
	rec := f.get(t, "/posts/00000000-0000-0000-0000-000000000000/comments/live", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMediaServed(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.media, "posts", "pic.gif"), smallGIF, 0o644))
	rec := f.get(t, "/media/posts/pic.gif", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, smallGIF, rec.Body.Bytes())

	listing := f.get(t, "/media/posts/", nil)
	assert.Equal(t, http.StatusNotFound, listing.Code)
	assert.NotContains(t, listing.Body.String(), "pic.gif")
}
