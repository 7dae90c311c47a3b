package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/groupindex/internal/models"
)

func TestDirectoryStore_GetNode_NotFound(t *testing.T) {
	dirs, _ := newTestStores(t)

	_, err := dirs.GetNode(99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDirectoryStore_CreateNode_ExplicitID(t *testing.T) {
	dirs, _ := newTestStores(t)

	id, err := dirs.CreateNode(ptr("Groups"), ptr("Gruppi"), ptr(models.RootDirectoryID), nil)
	require.NoError(t, err)
	assert.Equal(t, models.RootDirectoryID, id)

	node, err := dirs.GetNode(id)
	require.NoError(t, err)
	assert.Equal(t, "Groups", *node.NameEN)
	assert.Nil(t, node.ParentID)
}

func TestDirectoryStore_GetChildren_EmptyMapNotError(t *testing.T) {
	dirs, _ := newTestStores(t)

	root, err := dirs.CreateNode(ptr("Groups"), nil, ptr(models.RootDirectoryID), nil)
	require.NoError(t, err)

	children, err := dirs.GetChildren(root)
	require.NoError(t, err)
	assert.NotNil(t, children)
	assert.Empty(t, children)
}

func TestDirectoryStore_CreateNode_UpdatesWarmChildrenCache(t *testing.T) {
	dirs, _ := newTestStores(t)

	root, err := dirs.CreateNode(ptr("Groups"), nil, ptr(models.RootDirectoryID), nil)
	require.NoError(t, err)

	// warm the children cache first
	_, err = dirs.GetChildren(root)
	require.NoError(t, err)

	child, err := dirs.CreateNode(ptr("Science"), ptr("Scienze"), nil, &root)
	require.NoError(t, err)

	children, err := dirs.GetChildren(root)
	require.NoError(t, err)
	require.Contains(t, children, child)
	assert.Equal(t, "Science", *children[child].NameEN)
}

func TestDirectoryStore_RenameNode(t *testing.T) {
	dirs, _ := newTestStores(t)

	id, err := dirs.CreateNode(ptr("Old"), nil, nil, nil)
	require.NoError(t, err)

	require.NoError(t, dirs.RenameNode(id, ptr("New"), ptr("Nuovo")))

	node, err := dirs.GetNode(id)
	require.NoError(t, err)
	assert.Equal(t, "New", *node.NameEN)
	assert.Equal(t, "Nuovo", *node.NameIT)
}

func TestDirectoryStore_MoveNode_RejectsCycles(t *testing.T) {
	dirs, _ := newTestStores(t)

	a, err := dirs.CreateNode(ptr("A"), nil, nil, nil)
	require.NoError(t, err)
	b, err := dirs.CreateNode(ptr("B"), nil, nil, &a)
	require.NoError(t, err)
	c, err := dirs.CreateNode(ptr("C"), nil, nil, &b)
	require.NoError(t, err)

	// a under its own grandchild
	assert.ErrorIs(t, dirs.MoveNode(a, &c), ErrCycle)
	// a under itself
	assert.ErrorIs(t, dirs.MoveNode(a, &a), ErrCycle)

	// tree unchanged
	node, err := dirs.GetNode(a)
	require.NoError(t, err)
	assert.Nil(t, node.ParentID)

	// a legal move still works
	require.NoError(t, dirs.MoveNode(c, &a))
	node, err = dirs.GetNode(c)
	require.NoError(t, err)
	assert.Equal(t, a, *node.ParentID)
}

func TestDirectoryStore_DeleteNode_Preconditions(t *testing.T) {
	dirs, chats := newTestStores(t)
	_ = chats

	parent, err := dirs.CreateNode(ptr("Parent"), nil, nil, nil)
	require.NoError(t, err)
	child, err := dirs.CreateNode(ptr("Child"), nil, nil, &parent)
	require.NoError(t, err)

	// delete with a child category fails and leaves the tree unchanged
	assert.ErrorIs(t, dirs.DeleteNode(parent), ErrNotEmpty)
	_, err = dirs.GetNode(parent)
	require.NoError(t, err)

	// after removing the child, the same delete succeeds
	require.NoError(t, dirs.DeleteNode(child))
	require.NoError(t, dirs.DeleteNode(parent))

	_, err = dirs.GetNode(parent)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDirectoryStore_DeleteNode_BlockedByChat(t *testing.T) {
	dirs, chats := newTestStores(t)

	id, err := dirs.CreateNode(ptr("Cat"), nil, nil, nil)
	require.NoError(t, err)

	seedChat(t, chats.db, models.Chat{ID: -100, Title: "A", DirectoryID: &id})

	assert.ErrorIs(t, dirs.DeleteNode(id), ErrNotEmpty)

	// hidden chats still block deletion: emptiness is structural
	require.NoError(t, chats.SetHidden(-100, ptr(int64(7))))
	assert.ErrorIs(t, dirs.DeleteNode(id), ErrNotEmpty)
}

func TestDirectoryStore_IsEmpty_IgnoresVisibility(t *testing.T) {
	dirs, chats := newTestStores(t)

	id, err := dirs.CreateNode(ptr("Cat"), nil, nil, nil)
	require.NoError(t, err)

	empty, err := dirs.IsEmpty(id)
	require.NoError(t, err)
	assert.True(t, empty)

	seedChat(t, chats.db, models.Chat{ID: -100, Title: "A", DirectoryID: &id, HiddenBy: ptr(int64(7))})

	empty, err = dirs.IsEmpty(id)
	require.NoError(t, err)
	assert.False(t, empty)
}

func TestDirectoryStore_GetNode_ReturnsCopy(t *testing.T) {
	dirs, _ := newTestStores(t)

	id, err := dirs.CreateNode(ptr("Science"), nil, nil, nil)
	require.NoError(t, err)

	before, err := dirs.GetNode(id)
	require.NoError(t, err)

	require.NoError(t, dirs.RenameNode(id, ptr("Physics"), nil))

	// the struct handed out earlier is untouched by the rename
	assert.Equal(t, "Science", *before.NameEN)

	after, err := dirs.GetNode(id)
	require.NoError(t, err)
	assert.Equal(t, "Physics", *after.NameEN)
}

func TestDirectoryStore_GetChildren_ReturnsCopies(t *testing.T) {
	dirs, _ := newTestStores(t)

	root, err := dirs.CreateNode(ptr("Groups"), nil, ptr(models.RootDirectoryID), nil)
	require.NoError(t, err)
	child, err := dirs.CreateNode(ptr("Science"), nil, nil, &root)
	require.NoError(t, err)

	first, err := dirs.GetChildren(root)
	require.NoError(t, err)
	require.Contains(t, first, child)

	// scribbling on the returned map and node leaves the cache alone
	first[child].NameEN = ptr("Scrambled")
	delete(first, child)

	second, err := dirs.GetChildren(root)
	require.NoError(t, err)
	require.Contains(t, second, child)
	assert.Equal(t, "Science", *second[child].NameEN)
}

func TestDirectoryStore_GetChatCount_Recursive(t *testing.T) {
	dirs, chats := newTestStores(t)

	root, err := dirs.CreateNode(ptr("Groups"), ptr("Gruppi"), ptr(models.RootDirectoryID), nil)
	require.NoError(t, err)
	child, err := dirs.CreateNode(ptr("Science"), nil, nil, &root)
	require.NoError(t, err)

	seedChat(t, chats.db, models.Chat{ID: -100, Title: "A", DirectoryID: &child})
	seedChat(t, chats.db, models.Chat{ID: -101, Title: "B", DirectoryID: &root})
	// hidden and permission-less chats never count
	seedChat(t, chats.db, models.Chat{ID: -102, Title: "C", DirectoryID: &child, HiddenBy: ptr(int64(7))})
	seedChat(t, chats.db, models.Chat{ID: -103, Title: "D", DirectoryID: &child, MissingPermissions: true})

	count, err := dirs.GetChatCount(root, false, true)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = dirs.GetChatCount(child, false, true)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDirectoryStore_GetChatCount_SkipsHiddenDescendants(t *testing.T) {
	dirs, chats := newTestStores(t)

	root, err := dirs.CreateNode(ptr("Groups"), nil, ptr(models.RootDirectoryID), nil)
	require.NoError(t, err)
	hidden, err := dirs.CreateNode(ptr("Hidden"), nil, nil, &root)
	require.NoError(t, err)
	require.NoError(t, dirs.SetHidden(hidden, ptr(int64(7))))

	seedChat(t, chats.db, models.Chat{ID: -100, Title: "A", DirectoryID: &hidden})

	count, err := dirs.GetChatCount(root, true, true)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	count, err = dirs.GetChatCount(root, false, true)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDirectoryStore_GetChatCount_InclusiveVariantNotCached(t *testing.T) {
	dirs, chats := newTestStores(t)

	root, err := dirs.CreateNode(ptr("Groups"), nil, ptr(models.RootDirectoryID), nil)
	require.NoError(t, err)
	hidden, err := dirs.CreateNode(ptr("Hidden"), nil, nil, &root)
	require.NoError(t, err)
	require.NoError(t, dirs.SetHidden(hidden, ptr(int64(7))))

	seedChat(t, chats.db, models.Chat{ID: -100, Title: "A", DirectoryID: &hidden})

	// warm the visible total
	count, err := dirs.GetChatCount(root, true, false)
	require.NoError(t, err)
	require.Equal(t, 0, count)

	// a forced recount descending into hidden subtrees sees the chat
	count, err = dirs.GetChatCount(root, false, true)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	// without displacing the cached visible total
	count, err = dirs.GetChatCount(root, true, false)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestDirectoryStore_IncrementChatCount_WarmOnly(t *testing.T) {
	dirs, chats := newTestStores(t)

	root, err := dirs.CreateNode(ptr("Groups"), nil, ptr(models.RootDirectoryID), nil)
	require.NoError(t, err)
	child, err := dirs.CreateNode(ptr("Science"), nil, nil, &root)
	require.NoError(t, err)

	seedChat(t, chats.db, models.Chat{ID: -100, Title: "A", DirectoryID: &child})

	// warm only the root entry
	count, err := dirs.GetChatCount(root, true, false)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	dirs.IncrementChatCount(child, +1)

	// warm ancestor adjusted in place
	count, err = dirs.GetChatCount(root, true, false)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// the cold child entry was left absent and recomputes from storage
	count, err = dirs.GetChatCount(child, true, false)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDirectoryStore_GetFullPathName(t *testing.T) {
	dirs, _ := newTestStores(t)

	root, err := dirs.CreateNode(ptr("Groups"), ptr("Gruppi"), ptr(models.RootDirectoryID), nil)
	require.NoError(t, err)
	// no Italian name: falls back to the default-language name
	sci, err := dirs.CreateNode(ptr("Science"), nil, nil, &root)
	require.NoError(t, err)
	// no name at all: falls back to the raw id
	leaf, err := dirs.CreateNode(nil, nil, nil, &sci)
	require.NoError(t, err)

	path, err := dirs.GetFullPathName("it", "en", leaf)
	require.NoError(t, err)
	assert.Equal(t, "Gruppi » Science » 3", path)

	path, err = dirs.GetFullPathName("en", "en", sci)
	require.NoError(t, err)
	assert.Equal(t, "Groups » Science", path)
}
