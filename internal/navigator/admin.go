package navigator

import (
	"errors"
	"strconv"
	"strings"

	"github.com/blockedby/groupindex/internal/i18n"
	"github.com/blockedby/groupindex/internal/models"
	"github.com/blockedby/groupindex/internal/store"
)

// Text-command curator operations. Callback menus cover browsing and
// visibility; anything needing free-form input (names, ids typed by the
// curator) comes in as a bot command and lands here. Every method
// returns the localized reply to send back.

// adminContext loads the caller's account and verifies curator rights.
func (e *Engine) adminContext(userID int64, langCode string) (*models.Account, *i18n.Locale, string) {
	loc := e.locales.Locale(langCode)
	account, err := e.accounts.Get(userID)
	if err != nil {
		return nil, loc, loc.GetString("admin.db_error")
	}
	loc = e.locales.Locale(e.userLang(account, langCode))
	if !account.IsAdmin && !account.IsOwner {
		return nil, loc, loc.GetString("admin.not_allowed")
	}
	return account, loc, ""
}

// CreateCategory creates a sub-category under parentID.
func (e *Engine) CreateCategory(userID int64, langCode string, parentID int64, nameEN, nameIT *string) string {
	_, loc, deny := e.adminContext(userID, langCode)
	if deny != "" {
		return deny
	}
	if nameEN == nil && nameIT == nil {
		return loc.GetString("admin.bad_args")
	}

	if _, err := e.dirs.GetNode(parentID); err != nil {
		return e.adminStoreError(loc, err)
	}

	id, err := e.dirs.CreateNode(nameEN, nameIT, nil, &parentID)
	if err != nil {
		e.log.Error().Err(err).Int64("parent_id", parentID).Msg("failed to create category")
		return loc.GetString("admin.db_error")
	}

	reply := strings.ReplaceAll(loc.GetString("admin.created_category"),
		"[id]", strconv.FormatInt(id, 10))
	return strings.ReplaceAll(reply, "[parent]", strconv.FormatInt(parentID, 10))
}

// RenameCategory replaces the localized names of a category. A nil name
// clears that language's label.
func (e *Engine) RenameCategory(userID int64, langCode string, id int64, nameEN, nameIT *string) string {
	_, loc, deny := e.adminContext(userID, langCode)
	if deny != "" {
		return deny
	}
	if nameEN == nil && nameIT == nil {
		return loc.GetString("admin.bad_args")
	}

	if err := e.dirs.RenameNode(id, nameEN, nameIT); err != nil {
		return e.adminStoreError(loc, err)
	}
	return strings.ReplaceAll(loc.GetString("admin.renamed_category"),
		"[id]", strconv.FormatInt(id, 10))
}

// MoveCategory re-parents a category, refusing moves that would make
// the tree cyclic.
func (e *Engine) MoveCategory(userID int64, langCode string, id, newParentID int64) string {
	_, loc, deny := e.adminContext(userID, langCode)
	if deny != "" {
		return deny
	}
	if id == models.RootDirectoryID {
		return loc.GetString("admin.not_allowed")
	}

	node, err := e.dirs.GetNode(id)
	if err != nil {
		return e.adminStoreError(loc, err)
	}
	oldParent := node.ParentID

	if err := e.dirs.MoveNode(id, &newParentID); err != nil {
		if errors.Is(err, store.ErrCycle) {
			return loc.GetString("admin.cycle")
		}
		return e.adminStoreError(loc, err)
	}

	// the subtree's chats now count toward a different ancestor chain
	e.refreshAncestorCounts(oldParent)
	e.refreshAncestorCounts(&newParentID)

	reply := strings.ReplaceAll(loc.GetString("admin.moved_category"),
		"[id]", strconv.FormatInt(id, 10))
	return strings.ReplaceAll(reply, "[parent]", strconv.FormatInt(newParentID, 10))
}

// DeleteCategory removes an empty category. The browsing root stays.
func (e *Engine) DeleteCategory(userID int64, langCode string, id int64) string {
	_, loc, deny := e.adminContext(userID, langCode)
	if deny != "" {
		return deny
	}
	if id == models.RootDirectoryID {
		return loc.GetString("admin.not_allowed")
	}

	if err := e.dirs.DeleteNode(id); err != nil {
		if errors.Is(err, store.ErrNotEmpty) {
			return loc.GetString("admin.not_empty")
		}
		return e.adminStoreError(loc, err)
	}
	return strings.ReplaceAll(loc.GetString("admin.deleted_category"),
		"[id]", strconv.FormatInt(id, 10))
}

// MoveChat files any known chat under a category, regardless of who
// administers it.
func (e *Engine) MoveChat(userID int64, langCode string, chatID, categoryID int64) string {
	_, loc, deny := e.adminContext(userID, langCode)
	if deny != "" {
		return deny
	}

	chat, err := e.chats.Get(chatID)
	if err != nil {
		return e.adminStoreError(loc, err)
	}
	if _, err := e.dirs.GetNode(categoryID); err != nil {
		return e.adminStoreError(loc, err)
	}

	if err := e.recategorize(chat, &categoryID); err != nil {
		return e.adminStoreError(loc, err)
	}

	reply := strings.ReplaceAll(loc.GetString("admin.moved_chat"),
		"[chat]", strconv.FormatInt(chatID, 10))
	return strings.ReplaceAll(reply, "[id]", strconv.FormatInt(categoryID, 10))
}

// SetPermission toggles one permission flag on a user. Granting or
// revoking curator rights is reserved to the bot owner.
func (e *Engine) SetPermission(userID int64, langCode string, targetID int64, flag string, value bool) string {
	account, loc, deny := e.adminContext(userID, langCode)
	if deny != "" {
		return deny
	}

	permFlag := store.PermissionFlag(flag)
	switch permFlag {
	case store.FlagBotAdmin:
		if !account.IsOwner {
			return loc.GetString("admin.not_allowed")
		}
	case store.FlagViewGroups, store.FlagAddGroups, store.FlagModifyGroups:
	default:
		return loc.GetString("admin.bad_args")
	}

	// ensure the row exists before the targeted update
	if _, err := e.accounts.Get(targetID); err != nil {
		return loc.GetString("admin.db_error")
	}
	if err := e.accounts.SetFlag(targetID, permFlag, value); err != nil {
		return e.adminStoreError(loc, err)
	}
	return strings.ReplaceAll(loc.GetString("admin.perm_updated"),
		"[user]", strconv.FormatInt(targetID, 10))
}

func (e *Engine) adminStoreError(loc *i18n.Locale, err error) string {
	if errors.Is(err, store.ErrNotFound) {
		return loc.GetString("admin.not_found")
	}
	e.log.Error().Err(err).Msg("curator operation failed")
	return loc.GetString("admin.db_error")
}
