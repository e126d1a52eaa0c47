// Package models contains the persisted entities, their constraints and the views handed to callers.
package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

// now is swapped in tests to pin creation timestamps.
var now = time.Now

// User is an account on the platform.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserAccount  string    `gorm:"column:user_account;size:256;not null;uniqueIndex:uk_user_account,where:is_delete = 0" json:"userAccount"`
	UserPassword string    `gorm:"column:user_password;size:512;not null" json:"-"`
	UserName     string    `gorm:"column:user_name;size:256;index:idx_user_name" json:"userName"`
	UserAvatar   string    `gorm:"column:user_avatar;size:1024" json:"userAvatar"`
	UserProfile  string    `gorm:"column:user_profile;size:512" json:"userProfile"`
	UserRole     UserRole  `gorm:"column:user_role;size:256;not null;default:user;index:idx_user_role" json:"userRole"`
	EditTime     time.Time `gorm:"column:edit_time;not null" json:"editTime"`
	CreateTime   time.Time `gorm:"column:create_time;not null;autoCreateTime;<-:create" json:"createTime"`
	UpdateTime   time.Time `gorm:"column:update_time;not null;autoUpdateTime" json:"updateTime"`
	IsDelete     int8      `gorm:"column:is_delete;not null;default:0" json:"-"`
}

// TableName pins the singular table name.
func (User) TableName() string {
	return "user"
}

// NewUser returns a copy of in with creation defaults applied: edit time, live flag and role.
func NewUser(in User) *User {
	u := in
	if u.EditTime.IsZero() {
		u.EditTime = now()
	}
	u.IsDelete = NotDeleted
	if strings.TrimSpace(string(u.UserRole)) == "" {
		u.UserRole = RoleUser
	}
	return &u
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.UserRole == RoleAdmin
}

// Validate enforces the field constraints of the user table.
func (u *User) Validate() error {
	if err := u.ValidateProfile(); err != nil {
		return err
	}
	if strings.TrimSpace(u.UserPassword) == "" {
		return NewParamsError("password must not be blank")
	}
	return maxLen("password", u.UserPassword, 512)
}

// ValidateProfile checks every constraint except the password verifier, for
// updates that leave the password untouched.
func (u *User) ValidateProfile() error {
	if strings.TrimSpace(u.UserAccount) == "" {
		return NewParamsError("user account must not be blank")
	}
	if err := maxLen("user account", u.UserAccount, 256); err != nil {
		return err
	}
	if err := maxLen("user name", u.UserName, 256); err != nil {
		return err
	}
	if err := maxLen("avatar URL", u.UserAvatar, 1024); err != nil {
		return err
	}
	if err := maxLen("user profile", u.UserProfile, 512); err != nil {
		return err
	}
	if strings.TrimSpace(string(u.UserRole)) == "" {
		return NewParamsError("user role must not be blank")
	}
	if !u.UserRole.Valid() {
		return NewParamsError("user role must be user or admin")
	}
	return nil
}

func maxLen(field, value string, limit int) error {
	if utf8.RuneCountInString(value) > limit {
		return NewParamsError(field + " is too long")
	}
	return nil
}
