// Package live рассылает новые комментарии подписчикам поста.
package live

import (
	"sync"

	"github.com/UkralStul/yatube/internal/domain"
	"github.com/google/uuid"
)

// CommentObserver раздает новые комментарии подписчикам, сгруппированным по постам.
type CommentObserver struct {
	mu sync.RWMutex
	//          map[postID] map[subscriberID] channel
	subs map[string]map[string]chan *domain.Comment
}

// NewCommentObserver создает наблюдателя без подписчиков.
func NewCommentObserver() *CommentObserver {
	return &CommentObserver{
		subs: make(map[string]map[string]chan *domain.Comment),
	}
}

// Subscribe подписывает на комментарии поста. cancel отписывает и закрывает канал.
func (o *CommentObserver) Subscribe(postID string) (<-chan *domain.Comment, func()) {
	ch := make(chan *domain.Comment, 1)
	subID := uuid.NewString()

	o.mu.Lock()
	if o.subs[postID] == nil {
		o.subs[postID] = make(map[string]chan *domain.Comment)
	}
	o.subs[postID][subID] = ch
	o.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			if postSubs, ok := o.subs[postID]; ok {
				delete(postSubs, subID)
				if len(postSubs) == 0 {
					delete(o.subs, postID)
				}
			}
			close(ch)
		})
	}
	return ch, cancel
}

// Publish уведомляет подписчиков поста. Не блокируется: если подписчик
// не успевает читать, комментарий для него пропускается.
func (o *CommentObserver) Publish(c *domain.Comment) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, ch := range o.subs[c.PostID] {
		select {
		case ch <- c:
		default:
		}
	}
}

// Subscribers возвращает число подписчиков поста.
func (o *CommentObserver) Subscribers(postID string) int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.subs[postID])
}
