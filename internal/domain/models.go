package domain

import "time"

// PostPreviewLength - сколько символов текста поста попадает в его строковое представление.
const PostPreviewLength = 15

// User представляет зарегистрированного пользователя.
type User struct {
	ID           string    `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Username     string    `json:"username" gorm:"type:varchar(150);not null;uniqueIndex"`
	FirstName    string    `json:"firstName" gorm:"type:varchar(150);not null;default:''"`
	LastName     string    `json:"lastName" gorm:"type:varchar(150);not null;default:''"`
	PasswordHash string    `json:"-" gorm:"type:varchar(255);not null"`
	CreatedAt    time.Time `json:"createdAt" gorm:"not null;default:now()"`
}

// FullName возвращает имя и фамилию, а если они не заполнены - username.
func (u *User) FullName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.LastName != "":
		return u.LastName
	}
	return u.Username
}

func (u *User) String() string { return u.Username }

// Group - сообщество, к которому можно отнести пост.
type Group struct {
	ID          string `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Title       string `json:"title" gorm:"type:varchar(200);not null"`
	Slug        string `json:"slug" gorm:"type:varchar(50);not null;uniqueIndex"`
	Description string `json:"description" gorm:"type:text;not null"`
}

func (g *Group) String() string { return g.Title }

// Post представляет пост в системе.
type Post struct {
	ID        string    `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Text      string    `json:"text" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null;default:now();index"`
	AuthorID  string    `json:"authorId" gorm:"type:uuid;not null;index"`
	GroupID   *string   `json:"groupId,omitempty" gorm:"type:uuid;index"`
	Image     string    `json:"image,omitempty" gorm:"type:varchar(255);not null;default:''"`

	// Заполняются dataloader'ами при рендеринге, в БД не хранятся.
	Author *User  `json:"-" gorm:"-"`
	Group  *Group `json:"-" gorm:"-"`
}

// String возвращает первые PostPreviewLength символов текста.
func (p *Post) String() string {
	runes := []rune(p.Text)
	if len(runes) <= PostPreviewLength {
		return p.Text
	}
	return string(runes[:PostPreviewLength])
}

// Comment представляет комментарий к посту.
type Comment struct {
	ID        string    `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	PostID    string    `json:"postId" gorm:"type:uuid;not null;index"`
	AuthorID  string    `json:"authorId" gorm:"type:uuid;not null;index"`
	Text      string    `json:"text" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null;default:now()"`

	Author *User `json:"-" gorm:"-"`
}

func (c *Comment) String() string { return c.Text }

// Follow - подписка пользователя UserID на автора AuthorID.
type Follow struct {
	ID       string `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID   string `json:"userId" gorm:"type:uuid;not null;uniqueIndex:idx_follow_user_author"`
	AuthorID string `json:"authorId" gorm:"type:uuid;not null;uniqueIndex:idx_follow_user_author;index"`
}
