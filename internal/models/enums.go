package models

// UserRole is the authorization role of a user.
type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// CodeGenType selects how an app's code is generated.
type CodeGenType string

const (
	CodeGenHTML       CodeGenType = "html"
	CodeGenMultiFile  CodeGenType = "multi_file"
	CodeGenVueProject CodeGenType = "vue_project"
)

// Valid reports whether t is a known generation type.
func (t CodeGenType) Valid() bool {
	switch t {
	case CodeGenHTML, CodeGenMultiFile, CodeGenVueProject:
		return true
	}
	return false
}

// MessageType distinguishes user prompts from AI replies in a chat history.
type MessageType string

const (
	MessageUser MessageType = "user"
	MessageAI   MessageType = "ai"
)

// Valid reports whether t is exactly "user" or "ai".
func (t MessageType) Valid() bool {
	return t == MessageUser || t == MessageAI
}

// Soft-delete flag values shared by every table.
const (
	NotDeleted int8 = 0
	Deleted    int8 = 1
)
