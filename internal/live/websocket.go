package live

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/UkralStul/yatube/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 10 * time.Second
)

// Message - то, что клиент получает по websocket о новом комментарии.
type Message struct {
	ID        string    `json:"id"`
	PostID    string    `json:"postId"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

func newMessage(c *domain.Comment) Message {
	m := Message{ID: c.ID, PostID: c.PostID, Text: c.Text, CreatedAt: c.CreatedAt}
	if c.Author != nil {
		m.Author = c.Author.Username
	}
	return m
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Stream переводит соединение в websocket и пишет в него новые комментарии
// поста postID, пока клиент не отключится.
func (o *CommentObserver) Stream(w http.ResponseWriter, r *http.Request, postID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже ответил клиенту ошибкой.
		slog.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	comments, cancel := o.Subscribe(postID)
	defer cancel()

	// Читаем входящие фреймы только ради close/pong: так узнаем об отключении.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case c, ok := <-comments:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(newMessage(c)); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
