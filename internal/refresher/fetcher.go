// Package refresher keeps stored chat records in step with the live
// platform state: titles, invite links, admin lists, permission health
// and chat id migrations.
package refresher

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/blockedby/groupindex/internal/logger"
	"github.com/blockedby/groupindex/internal/models"
	"github.com/blockedby/groupindex/internal/store"
)

// ChatAPI is the narrow platform surface the refresher needs. The
// transport layer adapts its client errors into the signal types below.
type ChatAPI interface {
	FetchChat(ctx context.Context, chatID int64) (*ChatInfo, error)
}

// ChatInfo is one observation of a live chat.
type ChatInfo struct {
	ID         int64
	Title      string
	InviteLink *string
	Admins     []int64
	OwnerID    *int64
	// CanInvite reports whether the bot holds the invite-users right;
	// without it the chat cannot be listed.
	CanInvite bool
}

// MigratedError signals that the chat now lives under a new id.
type MigratedError struct {
	NewChatID int64
}

func (e *MigratedError) Error() string {
	return fmt.Sprintf("chat migrated to %d", e.NewChatID)
}

// RetryAfterError signals platform rate limiting.
type RetryAfterError struct {
	Delay time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.Delay)
}

// ErrForbidden signals the bot was removed from the chat entirely.
var ErrForbidden = errors.New("bot is no longer a member of the chat")

// Fetcher reconciles single chats against the live platform.
type Fetcher struct {
	api     ChatAPI
	chats   *store.ChatStore
	dirs    *store.DirectoryStore
	log     *logger.Logger
	maxHops int

	// sleep is swappable for tests
	sleep func(time.Duration)
}

func NewFetcher(api ChatAPI, chats *store.ChatStore, dirs *store.DirectoryStore, maxHops int, log *logger.Logger) *Fetcher {
	return &Fetcher{
		api:     api,
		chats:   chats,
		dirs:    dirs,
		log:     log,
		maxHops: maxHops,
		sleep:   time.Sleep,
	}
}

// SyncChat fetches the live state of one chat and reconciles the stored
// record. Migrations are followed up to maxHops, carrying the old ids
// forward so curator-managed fields survive the move; a forbidden
// answer removes the record instead.
func (f *Fetcher) SyncChat(ctx context.Context, chatID int64) error {
	current := chatID
	var carried []int64

	for hop := 0; hop <= f.maxHops; hop++ {
		info, err := f.fetchWithRetry(ctx, current)

		var migrated *MigratedError
		switch {
		case err == nil:
			if _, err := f.chats.ApplySync(info.ID, info.Title, info.InviteLink,
				models.AdminList(info.Admins), info.OwnerID, !info.CanInvite); err != nil {
				return fmt.Errorf("apply sync for chat %d: %w", info.ID, err)
			}
			return f.settleCarried(carried, info.ID)

		case errors.As(err, &migrated):
			f.log.Info().
				Int64("chat_id", current).
				Int64("new_chat_id", migrated.NewChatID).
				Msg("chat id migration observed")
			carried = append(carried, current)
			current = migrated.NewChatID

		case errors.Is(err, ErrForbidden):
			for _, id := range append(carried, current) {
				if err := f.RemoveChat(id); err != nil {
					return err
				}
			}
			return nil

		default:
			return fmt.Errorf("fetch chat %d: %w", current, err)
		}
	}

	return fmt.Errorf("chat %d: migration chain longer than %d hops", chatID, f.maxHops)
}

// settleCarried migrates every id observed along a migration chain onto
// the final record. Intermediate ids usually have no stored record;
// those misses are expected.
func (f *Fetcher) settleCarried(carried []int64, finalID int64) error {
	for _, old := range carried {
		if old == finalID {
			continue
		}
		err := f.chats.Migrate(old, finalID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("migrate chat %d to %d: %w", old, finalID, err)
		}
	}
	return nil
}

// RemoveChat deletes a chat record, keeping warm category counts in
// step when the removed chat was contributing to them.
func (f *Fetcher) RemoveChat(chatID int64) error {
	chat, err := f.chats.Get(chatID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := f.chats.Remove(chatID); err != nil {
		return err
	}
	if chat.DirectoryID != nil && chat.Counted() {
		f.dirs.IncrementChatCount(*chat.DirectoryID, -1)
	}

	f.log.Info().Int64("chat_id", chatID).Msg("chat removed, bot no longer a member")
	return nil
}

// fetchWithRetry performs one fetch, honoring a single rate-limit
// answer by sleeping out the told-off period plus a small jitter.
func (f *Fetcher) fetchWithRetry(ctx context.Context, chatID int64) (*ChatInfo, error) {
	info, err := f.api.FetchChat(ctx, chatID)

	var retry *RetryAfterError
	if !errors.As(err, &retry) {
		return info, err
	}

	jitter := time.Duration((1 + rand.Float64()) * float64(time.Second))
	f.log.Warn().
		Int64("chat_id", chatID).
		Dur("delay", retry.Delay+jitter).
		Msg("rate limited, backing off")
	f.sleep(retry.Delay + jitter)

	return f.api.FetchChat(ctx, chatID)
}
