package bot

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	"github.com/mymmrac/telego/telegoapi"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/blockedby/groupindex/internal/refresher"
)

// chatAPI adapts the Bot API client to the refresher's ChatAPI surface,
// translating transport errors into the refresher's signal types.
type chatAPI struct {
	api    *telego.Bot
	selfID int64
}

// NewChatAPI wraps the client for the refresher. selfID is the bot's
// own user id, needed to find its admin entry in member lists.
func NewChatAPI(api *telego.Bot, selfID int64) refresher.ChatAPI {
	return &chatAPI{api: api, selfID: selfID}
}

func (c *chatAPI) FetchChat(_ context.Context, chatID int64) (*refresher.ChatInfo, error) {
	chat, err := c.api.GetChat(&telego.GetChatParams{ChatID: tu.ID(chatID)})
	if err != nil {
		return nil, translateAPIError(err)
	}

	admins, err := c.api.GetChatAdministrators(&telego.GetChatAdministratorsParams{ChatID: tu.ID(chatID)})
	if err != nil {
		return nil, translateAPIError(err)
	}

	info := &refresher.ChatInfo{ID: chat.ID, Title: chat.Title}
	if chat.InviteLink != "" {
		link := chat.InviteLink
		info.InviteLink = &link
	}

	for _, member := range admins {
		user := member.MemberUser()

		if user.ID == c.selfID {
			if admin, ok := member.(*telego.ChatMemberAdministrator); ok {
				info.CanInvite = admin.CanInviteUsers
			}
			continue
		}
		if user.IsBot {
			continue
		}

		info.Admins = append(info.Admins, user.ID)
		if member.MemberStatus() == telego.MemberStatusCreator {
			owner := user.ID
			info.OwnerID = &owner
		}
	}

	return info, nil
}

// translateAPIError maps Bot API failures onto the refresher's signal
// errors. Anything unrecognized passes through untouched.
func translateAPIError(err error) error {
	var apiErr *telegoapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}

	if apiErr.Parameters != nil {
		if apiErr.Parameters.MigrateToChatID != 0 {
			return &refresher.MigratedError{NewChatID: apiErr.Parameters.MigrateToChatID}
		}
		if apiErr.Parameters.RetryAfter > 0 {
			return &refresher.RetryAfterError{
				Delay: time.Duration(apiErr.Parameters.RetryAfter) * time.Second,
			}
		}
	}

	if apiErr.ErrorCode == 403 {
		return refresher.ErrForbidden
	}
	if apiErr.ErrorCode == 400 {
		desc := strings.ToLower(apiErr.Description)
		if strings.Contains(desc, "chat not found") || strings.Contains(desc, "kicked") {
			return refresher.ErrForbidden
		}
	}

	return err
}
