package models

import (
	"strings"
	"time"
)

// ChatHistory is one message exchanged while building an app.
type ChatHistory struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	Message     string      `gorm:"column:message;type:text;not null" json:"message"`
	MessageType MessageType `gorm:"column:message_type;size:32;not null" json:"messageType"`
	AppID       uint        `gorm:"column:app_id;not null;index:idx_chat_app_id;index:idx_chat_app_time,priority:1" json:"appId"`
	App         *App        `gorm:"foreignKey:AppID;constraint:OnUpdate:RESTRICT,OnDelete:RESTRICT" json:"-"`
	UserID      uint        `gorm:"column:user_id;not null;index:idx_chat_user_id" json:"userId"`
	User        *User       `gorm:"foreignKey:UserID;constraint:OnUpdate:RESTRICT,OnDelete:RESTRICT" json:"-"`
	CreateTime  time.Time   `gorm:"column:create_time;not null;autoCreateTime;<-:create;index:idx_chat_create_time;index:idx_chat_app_time,priority:2" json:"createTime"`
	UpdateTime  time.Time   `gorm:"column:update_time;not null;autoUpdateTime" json:"updateTime"`
	IsDelete    int8        `gorm:"column:is_delete;not null;default:0" json:"-"`
}

// TableName pins the table name.
func (ChatHistory) TableName() string {
	return "chat_history"
}

// NewChatHistory returns a copy of in with creation defaults applied.
func NewChatHistory(in ChatHistory) *ChatHistory {
	h := in
	h.IsDelete = NotDeleted
	h.App = nil
	h.User = nil
	return &h
}

// Validate enforces the field constraints of the chat_history table.
func (h *ChatHistory) Validate() error {
	if strings.TrimSpace(h.Message) == "" {
		return NewParamsError("message must not be blank")
	}
	if strings.TrimSpace(string(h.MessageType)) == "" {
		return NewParamsError("message type must not be blank")
	}
	if !h.MessageType.Valid() {
		return NewParamsError("message type must be user or ai")
	}
	if h.AppID == 0 {
		return NewParamsError("app id is required")
	}
	if h.UserID == 0 {
		return NewParamsError("user id is required")
	}
	return nil
}
