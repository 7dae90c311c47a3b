// Package models defines shared data types for the application.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// RootDirectoryID is the well-known id of the categories root that
// end-user browsing starts from.
const RootDirectoryID int64 = 1

// AdminList holds the user ids of a chat's administrators. It is stored
// as a JSON text column so the same model works on Postgres and SQLite.
type AdminList []int64

// Value implements driver.Valuer.
func (a AdminList) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal admin list: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (a *AdminList) Scan(src any) error {
	if src == nil {
		*a = nil
		return nil
	}
	var b []byte
	switch v := src.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported admin list source type %T", src)
	}
	if len(b) == 0 {
		*a = nil
		return nil
	}
	return json.Unmarshal(b, a)
}

// GormDataType tells GORM which column type to migrate to.
func (AdminList) GormDataType() string { return "text" }

// Contains reports whether the given user administers the chat.
func (a AdminList) Contains(userID int64) bool {
	for _, id := range a {
		if id == userID {
			return true
		}
	}
	return false
}

// Directory is one node of the category tree. The parent relation forms
// a forest; a node with a nil ParentID is a root.
type Directory struct {
	ID        int64     `gorm:"column:id;primaryKey"`
	NameEN    *string   `gorm:"column:i18n_en_name;size:255"`
	NameIT    *string   `gorm:"column:i18n_it_name;size:255"`
	ParentID  *int64    `gorm:"column:parent_id"`
	HiddenBy  *int64    `gorm:"column:hidden_by"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName implements the GORM table naming convention override.
func (Directory) TableName() string { return "directory" }

// LocalName returns the display name for the given language code, or nil
// when no name is set for it.
func (d *Directory) LocalName(langCode string) *string {
	switch langCode {
	case "it":
		return d.NameIT
	default:
		return d.NameEN
	}
}

// Hidden reports whether the node is currently hidden from browsing.
func (d *Directory) Hidden() bool { return d.HiddenBy != nil }

// Chat is a group chat the bot knows about, optionally filed under a
// directory for discovery.
type Chat struct {
	ID                 int64     `gorm:"column:chat_id;primaryKey"`
	Title              string    `gorm:"column:title;size:128"`
	InviteLink         *string   `gorm:"column:invite_link;size:128"`
	CustomLink         *string   `gorm:"column:custom_link;size:128"`
	Admins             AdminList `gorm:"column:chat_admins"`
	OwnerID            *int64    `gorm:"column:owner_id"`
	DirectoryID        *int64    `gorm:"column:directory_id"`
	HiddenBy           *int64    `gorm:"column:hidden_by"`
	MissingPermissions bool      `gorm:"column:missing_permissions"`
	CreatedAt          time.Time `gorm:"column:created_at"`
	UpdatedAt          time.Time `gorm:"column:updated_at"`
}

// TableName implements the GORM table naming convention override.
func (Chat) TableName() string { return "chat" }

// Indexed reports whether the chat is filed under a category.
func (c *Chat) Indexed() bool { return c.DirectoryID != nil }

// Counted reports whether the chat contributes to aggregate category
// counts: it must be visible and permission-valid.
func (c *Chat) Counted() bool { return c.HiddenBy == nil && !c.MissingPermissions }

// JoinLink returns the link users should follow to join the chat. A
// curator-supplied custom link wins over the platform-issued one.
func (c *Chat) JoinLink() string {
	if c.CustomLink != nil && *c.CustomLink != "" {
		return *c.CustomLink
	}
	if c.InviteLink != nil && *c.InviteLink != "" {
		return *c.InviteLink
	}
	return ""
}

// Account holds per-user state and permission flags.
type Account struct {
	ID              int64     `gorm:"column:chat_id;primaryKey"`
	PrefLangCode    *string   `gorm:"column:pref_lang_code;size:4"`
	IsAdmin         bool      `gorm:"column:is_admin"`
	IsOwner         bool      `gorm:"column:is_owner"`
	CanViewGroups   bool      `gorm:"column:can_view_groups"`
	CanAddGroups    bool      `gorm:"column:can_add_groups"`
	CanModifyGroups bool      `gorm:"column:can_modify_groups"`
	CreatedAt       time.Time `gorm:"column:created_at"`
}

// TableName implements the GORM table naming convention override.
func (Account) TableName() string { return "account" }

// Session is the persisted mirror of a user's active menu screen, kept
// so stale screens can still be expired after a restart.
type Session struct {
	ChatID        int64     `gorm:"column:chat_id;primaryKey"`
	MenuMessageID int64     `gorm:"column:menu_message_id"`
	CreatedAt     time.Time `gorm:"column:created_at"`
}

// TableName implements the GORM table naming convention override.
func (Session) TableName() string { return "session" }

// PersistentVar is a generic key/value row used for job watermarks.
type PersistentVar struct {
	Key       string    `gorm:"column:key;primaryKey"`
	Value     string    `gorm:"column:value"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName implements the GORM table naming convention override.
func (PersistentVar) TableName() string { return "persistent_vars" }
