package live

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/UkralStul/yatube/internal/domain"
	"github.com/gorilla/websocket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserver_PublishToPostSubscribers(t *testing.T) {
	o := NewCommentObserver()
	ch, cancel := o.Subscribe("post-1")
	defer cancel()
	other, cancelOther := o.Subscribe("post-2")
	defer cancelOther()

	o.Publish(&domain.Comment{ID: "c1", PostID: "post-1", Text: "привет"})

	select {
	case c := <-ch:
		assert.Equal(t, "c1", c.ID)
	case <-time.After(time.Second):
		t.Fatal("comment was not delivered")
	}
	select {
	case c := <-other:
		t.Fatalf("unexpected comment %v for another post", c)
	default:
	}
}

func TestObserver_SlowSubscriberDoesNotBlock(t *testing.T) {
	o := NewCommentObserver()
	_, cancel := o.Subscribe("post-1")
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			o.Publish(&domain.Comment{PostID: "post-1"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestObserver_CancelUnsubscribes(t *testing.T) {
	o := NewCommentObserver()
	ch, cancel := o.Subscribe("post-1")
	assert.Equal(t, 1, o.Subscribers("post-1"))

	cancel()
	cancel()
	assert.Equal(t, 0, o.Subscribers("post-1"))
	_, ok := <-ch
	assert.False(t, ok)
}

func TestStream_DeliversComments(t *testing.T) {
	o := NewCommentObserver()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		o.Stream(w, r, "post-1")
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return o.Subscribers("post-1") == 1 }, time.Second, 10*time.Millisecond)
	o.Publish(&domain.Comment{ID: "c1", PostID: "post-1", Text: "живой", Author: &domain.User{Username: "leo"}})

	var msg Message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "c1", msg.ID)
	assert.Equal(t, "leo", msg.Author)
	assert.Equal(t, "живой", msg.Text)
}
