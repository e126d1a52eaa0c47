package models

import "time"

// LoginUserView is the redacted identity returned to the logged-in user.
type LoginUserView struct {
	ID          uint      `json:"id"`
	UserAccount string    `json:"userAccount"`
	UserName    string    `json:"userName"`
	UserAvatar  string    `json:"userAvatar"`
	UserProfile string    `json:"userProfile"`
	UserRole    UserRole  `json:"userRole"`
	CreateTime  time.Time `json:"createTime"`
	UpdateTime  time.Time `json:"updateTime"`
}

// UserView is the redacted public form of a user.
type UserView struct {
	ID          uint      `json:"id"`
	UserAccount string    `json:"userAccount"`
	UserName    string    `json:"userName"`
	UserAvatar  string    `json:"userAvatar"`
	UserProfile string    `json:"userProfile"`
	UserRole    UserRole  `json:"userRole"`
	CreateTime  time.Time `json:"createTime"`
}

// AppView is an app together with its owner's public profile.
type AppView struct {
	ID           uint        `json:"id"`
	AppName      string      `json:"appName"`
	Cover        string      `json:"cover"`
	InitPrompt   string      `json:"initPrompt"`
	CodeGenType  CodeGenType `json:"codeGenType"`
	DeployKey    *string     `json:"deployKey,omitempty"`
	DeployedTime *time.Time  `json:"deployedTime,omitempty"`
	Priority     int         `json:"priority"`
	UserID       uint        `json:"userId"`
	CreateTime   time.Time   `json:"createTime"`
	UpdateTime   time.Time   `json:"updateTime"`
	User         *UserView   `json:"user,omitempty"`
}

// ToLoginView strips the password verifier.
func (u *User) ToLoginView() *LoginUserView {
	if u == nil {
		return nil
	}
	return &LoginUserView{
		ID:          u.ID,
		UserAccount: u.UserAccount,
		UserName:    u.UserName,
		UserAvatar:  u.UserAvatar,
		UserProfile: u.UserProfile,
		UserRole:    u.UserRole,
		CreateTime:  u.CreateTime,
		UpdateTime:  u.UpdateTime,
	}
}

// ToView strips the password verifier and audit fields.
func (u *User) ToView() *UserView {
	if u == nil {
		return nil
	}
	return &UserView{
		ID:          u.ID,
		UserAccount: u.UserAccount,
		UserName:    u.UserName,
		UserAvatar:  u.UserAvatar,
		UserProfile: u.UserProfile,
		UserRole:    u.UserRole,
		CreateTime:  u.CreateTime,
	}
}

// UserViews maps a slice of users to their public views.
func UserViews(users []User) []UserView {
	views := make([]UserView, 0, len(users))
	for i := range users {
		views = append(views, *users[i].ToView())
	}
	return views
}

// ToView pairs the app with the given owner view, which may be nil.
func (a *App) ToView(owner *UserView) *AppView {
	if a == nil {
		return nil
	}
	return &AppView{
		ID:           a.ID,
		AppName:      a.AppName,
		Cover:        a.Cover,
		InitPrompt:   a.InitPrompt,
		CodeGenType:  a.CodeGenType,
		DeployKey:    a.DeployKey,
		DeployedTime: a.DeployedTime,
		Priority:     a.Priority,
		UserID:       a.UserID,
		CreateTime:   a.CreateTime,
		UpdateTime:   a.UpdateTime,
		User:         owner,
	}
}

// Page is one page of a listing along with its totals.
type Page[T any] struct {
	Records []T   `json:"records"`
	Total   int64 `json:"total"`
	Size    int   `json:"size"`
	Current int   `json:"current"`
	Pages   int   `json:"pages"`
}

// NewPage builds a page and derives the page count from total and size.
func NewPage[T any](records []T, total int64, current, size int) Page[T] {
	if records == nil {
		records = []T{}
	}
	pages := 0
	if size > 0 {
		pages = int((total + int64(size) - 1) / int64(size))
	}
	return Page[T]{Records: records, Total: total, Size: size, Current: current, Pages: pages}
}

// MapPage converts the records of a page while keeping its totals.
func MapPage[T, U any](p Page[T], fn func(T) U) Page[U] {
	out := make([]U, 0, len(p.Records))
	for _, r := range p.Records {
		out = append(out, fn(r))
	}
	return Page[U]{Records: out, Total: p.Total, Size: p.Size, Current: p.Current, Pages: p.Pages}
}
