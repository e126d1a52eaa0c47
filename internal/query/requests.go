package query

import (
	"strings"
	"time"

	"appforge/internal/models"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// PageRequest carries pagination and ordering inputs. They are opaque to the
// filter builder and passed through to storage.
type PageRequest struct {
	Current   int    `json:"current"`
	PageSize  int    `json:"pageSize"`
	SortField string `json:"sortField"`
	SortOrder string `json:"sortOrder"`
}

// Normalize clamps the page to current >= 1 and 1 <= pageSize <= maxSize.
func (p PageRequest) Normalize(maxSize int) PageRequest {
	if maxSize <= 0 {
		maxSize = MaxPageSize
	}
	if p.Current < 1 {
		p.Current = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > maxSize {
		p.PageSize = maxSize
	}
	return p
}

// Limit is the page size.
func (p PageRequest) Limit() int {
	return p.PageSize
}

// Offset is the number of rows skipped before the page.
func (p PageRequest) Offset() int {
	if p.Current < 1 {
		return 0
	}
	return (p.Current - 1) * p.PageSize
}

// UserFields is the filter and sort allow-list for users.
var UserFields = Fields{
	"id":          "id",
	"userAccount": "user_account",
	"userName":    "user_name",
	"userProfile": "user_profile",
	"userRole":    "user_role",
	"createTime":  "create_time",
	"updateTime":  "update_time",
	"editTime":    "edit_time",
}

// AppFields is the filter and sort allow-list for apps.
var AppFields = Fields{
	"id":           "id",
	"appName":      "app_name",
	"cover":        "cover",
	"initPrompt":   "init_prompt",
	"codeGenType":  "code_gen_type",
	"deployKey":    "deploy_key",
	"deployedTime": "deployed_time",
	"priority":     "priority",
	"userId":       "user_id",
	"createTime":   "create_time",
	"updateTime":   "update_time",
	"editTime":     "edit_time",
}

// ChatHistoryFields is the filter and sort allow-list for chat histories.
var ChatHistoryFields = Fields{
	"id":          "id",
	"message":     "message",
	"messageType": "message_type",
	"appId":       "app_id",
	"userId":      "user_id",
	"createTime":  "create_time",
	"updateTime":  "update_time",
}

// UserQueryRequest is a sparse user filter.
type UserQueryRequest struct {
	PageRequest
	ID          uint   `json:"id"`
	UserAccount string `json:"userAccount"`
	UserName    string `json:"userName"`
	UserProfile string `json:"userProfile"`
	UserRole    string `json:"userRole"`
}

// BuildUserFilter translates req into a conjunction over its populated fields.
// A nil request is a caller error; an empty one matches every live user.
func BuildUserFilter(req *UserQueryRequest) (Filter, error) {
	if req == nil {
		return nil, models.NewParamsError("query request is required")
	}
	var f Filter
	if req.ID != 0 {
		f = f.Eq("id", req.ID)
	}
	if notBlank(req.UserRole) {
		f = f.Eq("userRole", req.UserRole)
	}
	if notBlank(req.UserAccount) {
		f = f.Contains("userAccount", req.UserAccount)
	}
	if notBlank(req.UserName) {
		f = f.Contains("userName", req.UserName)
	}
	if notBlank(req.UserProfile) {
		f = f.Contains("userProfile", req.UserProfile)
	}
	return f, nil
}

// ResolveUserSort resolves the ordering of a user listing.
func ResolveUserSort(req *UserQueryRequest) (Sort, error) {
	if req == nil {
		return DefaultSort(), nil
	}
	return ResolveSort(req.SortField, req.SortOrder, UserFields)
}

// AppQueryRequest is a sparse app filter.
type AppQueryRequest struct {
	PageRequest
	ID          uint   `json:"id"`
	AppName     string `json:"appName"`
	Cover       string `json:"cover"`
	InitPrompt  string `json:"initPrompt"`
	CodeGenType string `json:"codeGenType"`
	DeployKey   string `json:"deployKey"`
	Priority    *int   `json:"priority"`
	UserID      uint   `json:"userId"`
}

// BuildAppFilter translates req into a conjunction over its populated fields.
func BuildAppFilter(req *AppQueryRequest) (Filter, error) {
	if req == nil {
		return nil, models.NewParamsError("query request is required")
	}
	var f Filter
	if req.ID != 0 {
		f = f.Eq("id", req.ID)
	}
	if notBlank(req.AppName) {
		f = f.Contains("appName", req.AppName)
	}
	if notBlank(req.Cover) {
		f = f.Contains("cover", req.Cover)
	}
	if notBlank(req.InitPrompt) {
		f = f.Contains("initPrompt", req.InitPrompt)
	}
	if notBlank(req.CodeGenType) {
		f = f.Eq("codeGenType", req.CodeGenType)
	}
	if notBlank(req.DeployKey) {
		f = f.Eq("deployKey", req.DeployKey)
	}
	if req.Priority != nil {
		f = f.Eq("priority", *req.Priority)
	}
	if req.UserID != 0 {
		f = f.Eq("userId", req.UserID)
	}
	return f, nil
}

// ResolveAppSort resolves the ordering of an app listing.
func ResolveAppSort(req *AppQueryRequest) (Sort, error) {
	if req == nil {
		return DefaultSort(), nil
	}
	return ResolveSort(req.SortField, req.SortOrder, AppFields)
}

// ChatHistoryQueryRequest is a sparse chat history filter. LastCreateTime is a
// cursor: only messages strictly older than it match.
type ChatHistoryQueryRequest struct {
	PageRequest
	ID             uint       `json:"id"`
	Message        string     `json:"message"`
	MessageType    string     `json:"messageType"`
	AppID          uint       `json:"appId"`
	UserID         uint       `json:"userId"`
	LastCreateTime *time.Time `json:"lastCreateTime"`
}

// BuildChatHistoryFilter translates req into a conjunction over its populated fields.
func BuildChatHistoryFilter(req *ChatHistoryQueryRequest) (Filter, error) {
	if req == nil {
		return nil, models.NewParamsError("query request is required")
	}
	var f Filter
	if req.ID != 0 {
		f = f.Eq("id", req.ID)
	}
	if notBlank(req.Message) {
		f = f.Contains("message", req.Message)
	}
	if notBlank(req.MessageType) {
		f = f.Eq("messageType", req.MessageType)
	}
	if req.AppID != 0 {
		f = f.Eq("appId", req.AppID)
	}
	if req.UserID != 0 {
		f = f.Eq("userId", req.UserID)
	}
	if t, ok := timeValue(req.LastCreateTime); ok {
		f = f.Lt("createTime", t)
	}
	return f, nil
}

// ResolveChatHistorySort resolves the ordering of a chat history listing.
func ResolveChatHistorySort(req *ChatHistoryQueryRequest) (Sort, error) {
	if req == nil {
		return DefaultSort(), nil
	}
	return ResolveSort(req.SortField, req.SortOrder, ChatHistoryFields)
}

func notBlank(s string) bool {
	return strings.TrimSpace(s) != ""
}
