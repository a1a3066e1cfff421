package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/marvil07/versioncontrol/internal/models"
)

// successorPriority ranks the edges a successor walk may follow.
var successorPriority = map[models.Action]int{
	models.ActionMoved:    10,
	models.ActionModified: 10,
	models.ActionMerged:   9,
	models.ActionCopied:   8,
	models.ActionOther:    1,
	models.ActionDeleted:  1,
	models.ActionAdded:    0,
	models.ActionReplaced: 0,
}

// HistoryLimits bounds the walk in each direction. Nil means unlimited;
// negative values count as zero.
type HistoryLimits struct {
	Successors *int
	Sources    *int
}

func Limit(n int) *int { return &n }

// History returns the revisions of item, newest first: successors, the item
// itself, then its sources. It returns nil when the item has no revision or
// is not in the store.
func (s *ItemStore) History(ctx context.Context, item *models.Item, limits HistoryLimits) (history []*models.Item, err error) {
	ctx, span := startSpan(ctx, "catalog.item.history",
		attribute.Int64("repo_id", item.RepoID), attribute.String("path", item.Path))
	defer func() { endSpan(span, err) }()

	if item.Revision == "" {
		return nil, nil
	}
	ok, err := s.resolveID(ctx, item)
	if err != nil {
		return nil, storageErr("resolve item", err)
	}
	if !ok {
		return nil, nil
	}

	visited := map[int64]bool{item.ID: true}
	visit := func(it *models.Item) error {
		if visited[it.ID] {
			return fmt.Errorf("item revision %d reached twice: %w", it.ID, ErrLineageCycle)
		}
		visited[it.ID] = true
		return nil
	}

	var successors []*models.Item
	current := item
	for remaining := clampLimit(limits.Successors); remaining == nil || *remaining > 0; {
		if err := s.LoadSuccessorItems(ctx, []*models.Item{current}); err != nil {
			return nil, storageErr("load successors", err)
		}
		next := pickSuccessor(current.SuccessorItems)
		if next == nil {
			break
		}
		if err := visit(next); err != nil {
			return nil, err
		}
		successors = append(successors, next)
		current = next
		if remaining != nil {
			*remaining--
		}
	}

	var sources []*models.Item
	current = item
	for remaining := clampLimit(limits.Sources); remaining == nil || *remaining > 0; {
		if err := s.LoadSourceItems(ctx, []*models.Item{current}); err != nil {
			return nil, storageErr("load sources", err)
		}
		prev := pickSource(current)
		if prev == nil {
			break
		}
		if err := visit(prev); err != nil {
			return nil, err
		}
		sources = append(sources, prev)
		current = prev
		if remaining != nil {
			*remaining--
		}
	}

	history = make([]*models.Item, 0, len(successors)+1+len(sources))
	for i := len(successors) - 1; i >= 0; i-- {
		history = append(history, successors[i])
	}
	history = append(history, item)
	history = append(history, sources...)

	seen := make(map[string]int64, len(history))
	for _, it := range history {
		if other, dup := seen[it.Revision]; dup {
			return nil, fmt.Errorf("revision %q held by item revisions %d and %d: %w", it.Revision, other, it.ID, ErrHistoryCollision)
		}
		seen[it.Revision] = it.ID
	}
	return history, nil
}

func clampLimit(limit *int) *int {
	if limit == nil {
		return nil
	}
	n := max(*limit, 0)
	return &n
}

// pickSuccessor takes the first candidate and replaces it only with a
// strictly higher priority one.
func pickSuccessor(candidates []*models.Item) *models.Item {
	var best *models.Item
	bestPriority := 0
	for _, c := range candidates {
		p := successorPriority[c.Action]
		if best == nil || p > bestPriority {
			best, bestPriority = c, p
		}
	}
	return best
}

// pickSource prefers, for merges, the source on the same path.
func pickSource(it *models.Item) *models.Item {
	if len(it.SourceItems) == 0 {
		return nil
	}
	if it.Action == models.ActionMerged {
		for _, src := range it.SourceItems {
			if src.Path == it.Path {
				return src
			}
		}
	}
	return it.SourceItems[0]
}
