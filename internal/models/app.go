package models

import (
	"time"
)

// App is a generated application owned by a user.
type App struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	AppName      string      `gorm:"column:app_name;size:256;index:idx_app_name" json:"appName"`
	Cover        string      `gorm:"column:cover;size:512" json:"cover"`
	InitPrompt   string      `gorm:"column:init_prompt;type:text" json:"initPrompt"`
	CodeGenType  CodeGenType `gorm:"column:code_gen_type;size:64;index:idx_app_code_gen_type" json:"codeGenType"`
	DeployKey    *string     `gorm:"column:deploy_key;size:64;uniqueIndex:uk_app_deploy_key,where:is_delete = 0" json:"deployKey,omitempty"`
	DeployedTime *time.Time  `gorm:"column:deployed_time" json:"deployedTime,omitempty"`
	Priority     int         `gorm:"column:priority;not null;default:0;index:idx_app_priority" json:"priority"`
	UserID       uint        `gorm:"column:user_id;not null;index:idx_app_user_id" json:"userId"`
	User         *User       `gorm:"foreignKey:UserID;constraint:OnUpdate:RESTRICT,OnDelete:RESTRICT" json:"-"`
	EditTime     time.Time   `gorm:"column:edit_time;not null" json:"editTime"`
	CreateTime   time.Time   `gorm:"column:create_time;not null;autoCreateTime;<-:create;index:idx_app_create_time" json:"createTime"`
	UpdateTime   time.Time   `gorm:"column:update_time;not null;autoUpdateTime" json:"updateTime"`
	IsDelete     int8        `gorm:"column:is_delete;not null;default:0" json:"-"`
}

// TableName pins the singular table name.
func (App) TableName() string {
	return "app"
}

// NewApp returns a copy of in with creation defaults applied. Priority keeps
// its zero value unless set.
func NewApp(in App) *App {
	a := in
	if a.EditTime.IsZero() {
		a.EditTime = now()
	}
	a.IsDelete = NotDeleted
	a.User = nil
	return &a
}

// IsDeployed reports whether the app has been published under a deploy key.
func (a *App) IsDeployed() bool {
	return a.DeployKey != nil && *a.DeployKey != ""
}

// Validate enforces the field constraints of the app table.
func (a *App) Validate() error {
	if err := maxLen("app name", a.AppName, 256); err != nil {
		return err
	}
	if err := maxLen("cover URL", a.Cover, 512); err != nil {
		return err
	}
	if err := maxLen("code generation type", string(a.CodeGenType), 64); err != nil {
		return err
	}
	if a.CodeGenType != "" && !a.CodeGenType.Valid() {
		return NewParamsError("unsupported code generation type")
	}
	if a.Priority < 0 {
		return NewParamsError("priority must not be negative")
	}
	if a.DeployKey != nil {
		if err := maxLen("deploy key", *a.DeployKey, 64); err != nil {
			return err
		}
	}
	if a.UserID == 0 {
		return NewParamsError("owning user id is required")
	}
	return nil
}
