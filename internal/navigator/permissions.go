package navigator

import "github.com/blockedby/groupindex/internal/models"

// requirement is the permission a command family demands. Checked once
// in Handle, never re-derived per branch.
type requirement int

const (
	reqNone requirement = iota
	reqViewGroups
	reqAddGroups
	reqModifyGroups
	reqBotAdmin
	reqBotOwner
)

// commandRequirements keys every known command family to the permission
// it needs. Families missing from this table are routed home.
var commandRequirements = map[string]requirement{
	"main_menu":                   reqNone,
	"refresh_session":             reqNone,
	"about_menu":                  reqNone,
	"wip_alert":                   reqNone,
	"expired_session_about_alert": reqNone,

	"explore_categories": reqViewGroups,
	"cd":                 reqViewGroups,

	"mychats": reqAddGroups,
	"selcat":  reqAddGroups,
	"idx":     reqAddGroups,

	"unidx": reqModifyGroups,

	"mkdir":    reqBotAdmin,
	"rename":   reqBotAdmin,
	"hidecat":  reqBotAdmin,
	"showcat":  reqBotAdmin,
	"rmdir":    reqBotAdmin,
	"rmdir!":   reqBotAdmin,
	"hidechat": reqBotAdmin,
	"showchat": reqBotAdmin,
}

// allowed checks an account against a requirement. The flags are plain
// attributes, not a role hierarchy; only ownership implies the rest.
func allowed(account *models.Account, req requirement) bool {
	if account.IsOwner {
		return true
	}

	switch req {
	case reqNone:
		return true
	case reqViewGroups:
		return account.CanViewGroups || account.IsAdmin
	case reqAddGroups:
		return account.CanAddGroups || account.IsAdmin
	case reqModifyGroups:
		return account.CanModifyGroups || account.IsAdmin
	case reqBotAdmin:
		return account.IsAdmin
	case reqBotOwner:
		return false
	default:
		return false
	}
}
