package store

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"gorm.io/gorm"

	"github.com/blockedby/groupindex/internal/logger"
	"github.com/blockedby/groupindex/internal/models"
)

// PathSeparator joins the segments of a full category path, most
// significant segment first.
const PathSeparator = " » "

// DirectoryStore is a cached read-through store over the category tree.
// Nodes live in flat id-keyed maps; parent/child relationships are id
// references, never embedded pointers.
type DirectoryStore struct {
	db  *gorm.DB
	log *logger.Logger

	mu       sync.Mutex
	nodes    map[int64]*models.Directory
	children map[int64]map[int64]*models.Directory
	counts   map[int64]int
}

// NewDirectoryStore creates a directory store with cold caches.
func NewDirectoryStore(db *gorm.DB, log *logger.Logger) *DirectoryStore {
	return &DirectoryStore{
		db:       db,
		log:      log,
		nodes:    make(map[int64]*models.Directory),
		children: make(map[int64]map[int64]*models.Directory),
		counts:   make(map[int64]int),
	}
}

// GetNode returns the category node with the given id, reading through
// to storage and warming the node cache. Returns ErrNotFound when the
// node does not exist. The returned struct is a copy: handlers read it
// on their own goroutines, so the cached original stays private to the
// store and is only mutated under the store mutex.
func (s *DirectoryStore) GetNode(id int64) (*models.Directory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, err := s.getNodeLocked(id)
	if err != nil {
		return nil, err
	}
	copied := *node
	return &copied, nil
}

func (s *DirectoryStore) getNodeLocked(id int64) (*models.Directory, error) {
	if node, ok := s.nodes[id]; ok {
		return node, nil
	}

	var node models.Directory
	if err := s.db.First(&node, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get directory %d: %w", id, err)
	}

	s.nodes[id] = &node
	return &node, nil
}

// GetChildren returns the direct sub-categories of parentID keyed by id.
// A parent without children yields an empty map, not an error. Both the
// map and the nodes are copies, as with GetNode.
func (s *DirectoryStore) GetChildren(parentID int64) (map[int64]*models.Directory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	children, err := s.getChildrenLocked(parentID)
	if err != nil {
		return nil, err
	}

	out := make(map[int64]*models.Directory, len(children))
	for id, node := range children {
		copied := *node
		out[id] = &copied
	}
	return out, nil
}

func (s *DirectoryStore) getChildrenLocked(parentID int64) (map[int64]*models.Directory, error) {
	if children, ok := s.children[parentID]; ok {
		return children, nil
	}

	var rows []models.Directory
	if err := s.db.Where("parent_id = ?", parentID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get sub-directories of %d: %w", parentID, err)
	}

	children := make(map[int64]*models.Directory, len(rows))
	for i := range rows {
		node := rows[i]
		// keep one pointer per node so in-place cache updates stay coherent
		if cached, ok := s.nodes[node.ID]; ok {
			children[node.ID] = cached
			continue
		}
		children[node.ID] = &node
		s.nodes[node.ID] = &node
	}

	s.children[parentID] = children
	return children, nil
}

// CreateNode inserts a new category. When explicitID is non-nil it is
// used as-is (seeding the well-known root); otherwise storage assigns
// the id. A warm children cache of the parent is updated in place.
func (s *DirectoryStore) CreateNode(nameEN, nameIT *string, explicitID, parentID *int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	node := &models.Directory{
		NameEN:   nameEN,
		NameIT:   nameIT,
		ParentID: parentID,
	}
	if explicitID != nil {
		node.ID = *explicitID
	}

	if err := s.db.Create(node).Error; err != nil {
		return 0, fmt.Errorf("create directory: %w", err)
	}

	s.nodes[node.ID] = node
	if parentID != nil {
		if children, ok := s.children[*parentID]; ok {
			children[node.ID] = node
		}
	}

	s.log.Debug().
		Int64("id", node.ID).
		Msg("directory created")

	return node.ID, nil
}

// RenameNode updates the localized display names of a category.
func (s *DirectoryStore) RenameNode(id int64, nameEN, nameIT *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, err := s.getNodeLocked(id)
	if err != nil {
		return err
	}

	updates := map[string]any{"i18n_en_name": nameEN, "i18n_it_name": nameIT}
	if err := s.db.Model(&models.Directory{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("rename directory %d: %w", id, err)
	}

	node.NameEN = nameEN
	node.NameIT = nameIT
	return nil
}

// MoveNode re-parents a category. A move under the node itself or one of
// its descendants is rejected with ErrCycle. Aggregate chat counts are
// deliberately untouched: moving a category moves its counted chats with
// it, so no ancestor total outside the moved subtree changes that the
// caller is not already accounting for.
func (s *DirectoryStore) MoveNode(id int64, newParentID *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, err := s.getNodeLocked(id)
	if err != nil {
		return err
	}

	if newParentID != nil {
		if *newParentID == id {
			return ErrCycle
		}
		ancestor, err := s.getNodeLocked(*newParentID)
		if err != nil {
			return err
		}
		for ancestor.ParentID != nil {
			if *ancestor.ParentID == id {
				return ErrCycle
			}
			ancestor, err = s.getNodeLocked(*ancestor.ParentID)
			if err != nil {
				return err
			}
		}
	}

	if err := s.db.Model(&models.Directory{}).Where("id = ?", id).
		Update("parent_id", newParentID).Error; err != nil {
		return fmt.Errorf("move directory %d: %w", id, err)
	}

	if node.ParentID != nil {
		if children, ok := s.children[*node.ParentID]; ok {
			delete(children, id)
		}
	}
	node.ParentID = newParentID
	if newParentID != nil {
		if children, ok := s.children[*newParentID]; ok {
			children[id] = node
		}
	}

	return nil
}

// SetHidden toggles the visibility marker of a category. hiddenBy holds
// the admin who hid it, nil makes the category visible again.
func (s *DirectoryStore) SetHidden(id int64, hiddenBy *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, err := s.getNodeLocked(id)
	if err != nil {
		return err
	}

	if err := s.db.Model(&models.Directory{}).Where("id = ?", id).
		Update("hidden_by", hiddenBy).Error; err != nil {
		return fmt.Errorf("set directory %d visibility: %w", id, err)
	}

	node.HiddenBy = hiddenBy
	return nil
}

// DeleteNode hard-deletes a category. It fails with ErrNotEmpty unless
// the node has no sub-categories and no chats filed under it. Root-node
// deletion is additionally gated by the caller on parentlessness.
func (s *DirectoryStore) DeleteNode(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, err := s.getNodeLocked(id)
	if err != nil {
		return err
	}

	empty, err := s.isEmptyLocked(id)
	if err != nil {
		return err
	}
	if !empty {
		return ErrNotEmpty
	}

	if err := s.db.Delete(&models.Directory{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("delete directory %d: %w", id, err)
	}

	delete(s.nodes, id)
	delete(s.children, id)
	delete(s.counts, id)
	if node.ParentID != nil {
		if children, ok := s.children[*node.ParentID]; ok {
			delete(children, id)
		}
	}

	s.log.Debug().Int64("id", id).Msg("directory deleted")
	return nil
}

// GetChatCount returns the number of visible, permission-valid chats
// filed under the category or any of its descendants. ignoreCache
// forces a recompute. When ignoreHiddenDescendants is true the
// traversal does not descend into hidden sub-categories (the starting
// node itself is always counted). Only that variant is cached: the
// warm entries IncrementChatCount adjusts track the visible total, so
// a count that descends into hidden subtrees is recomputed every call
// and never written back.
func (s *DirectoryStore) GetChatCount(id int64, ignoreHiddenDescendants, ignoreCache bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !ignoreCache && ignoreHiddenDescendants {
		if count, ok := s.counts[id]; ok {
			return count, nil
		}
	}

	descend := ""
	if ignoreHiddenDescendants {
		descend = " AND directory.hidden_by IS NULL"
	}

	query := `
		WITH RECURSIVE subdirectories AS (
			SELECT id FROM directory WHERE id = ?
			UNION
			SELECT directory.id FROM directory
			JOIN subdirectories ON directory.parent_id = subdirectories.id` + descend + `
		)
		SELECT COUNT(chat.chat_id)
		FROM subdirectories
		JOIN chat ON subdirectories.id = chat.directory_id
			AND chat.hidden_by IS NULL
			AND chat.missing_permissions = FALSE`

	var count int
	if err := s.db.Raw(query, id).Scan(&count).Error; err != nil {
		return -1, fmt.Errorf("count chats under directory %d: %w", id, err)
	}

	if ignoreHiddenDescendants {
		s.counts[id] = count
	}
	return count, nil
}

// IncrementChatCount walks from id up through every ancestor, adding
// delta to each warm cached count. Cold entries are intentionally left
// absent: they will be recomputed from scratch on next access, so
// touching them here would only cost storage reads on the hot path.
func (s *DirectoryStore) IncrementChatCount(id int64, delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.counts) == 0 {
		return
	}

	curr := id
	for {
		if _, ok := s.counts[curr]; ok {
			s.counts[curr] += delta
		}

		node, err := s.getNodeLocked(curr)
		if err != nil || node.ParentID == nil {
			return
		}
		curr = *node.ParentID
	}
}

// GetFullPathName walks from id to the root and joins the
// locale-appropriate display name of every segment, most significant
// first. Missing names fall back to the default locale, then to the raw
// id.
func (s *DirectoryStore) GetFullPathName(langCode, defaultLangCode string, id int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var segments []string

	curr := id
	for {
		node, err := s.getNodeLocked(curr)
		if err != nil {
			return "", err
		}

		segments = append([]string{nodeName(node, langCode, defaultLangCode)}, segments...)

		if node.ParentID == nil {
			break
		}
		curr = *node.ParentID
	}

	return strings.Join(segments, PathSeparator), nil
}

// IsEmpty reports whether a category has zero sub-categories and zero
// chats filed directly under it. Emptiness is structural: hidden
// children and hidden chats still count.
func (s *DirectoryStore) IsEmpty(id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.isEmptyLocked(id)
}

func (s *DirectoryStore) isEmptyLocked(id int64) (bool, error) {
	var childCount int64
	if err := s.db.Model(&models.Directory{}).Where("parent_id = ?", id).
		Count(&childCount).Error; err != nil {
		return false, fmt.Errorf("count sub-directories of %d: %w", id, err)
	}
	if childCount > 0 {
		return false, nil
	}

	var chatCount int64
	if err := s.db.Model(&models.Chat{}).Where("directory_id = ?", id).
		Count(&chatCount).Error; err != nil {
		return false, fmt.Errorf("count chats in directory %d: %w", id, err)
	}

	return chatCount == 0, nil
}

// NodeName resolves the display name of a node for the given language,
// falling back to the default language, then to the raw id.
func NodeName(node *models.Directory, langCode, defaultLangCode string) string {
	return nodeName(node, langCode, defaultLangCode)
}

func nodeName(node *models.Directory, langCode, defaultLangCode string) string {
	if name := node.LocalName(langCode); name != nil && *name != "" {
		return *name
	}
	if name := node.LocalName(defaultLangCode); name != nil && *name != "" {
		return *name
	}
	return strconv.FormatInt(node.ID, 10)
}
