package service

import (
	"context"

	"github.com/marvil07/versioncontrol/internal/backend"
	"github.com/marvil07/versioncontrol/internal/models"
)

// LabelResolver works out which branch or tag an item is viewed on. The
// answer is computed once per item object and memoized on it.
type LabelResolver struct {
	c *Catalog
}

// Resolve returns the item's selected label, or nil when none applies or
// the backend cannot tell.
func (r *LabelResolver) Resolve(ctx context.Context, repo *models.Repository, item *models.Item) (*models.Label, error) {
	sel := item.SelectedLabel()
	if label, done := sel.Get(); done {
		return label, nil
	}
	src, ok := sel.Source()
	if !ok {
		sel.Resolve(nil)
		return nil, nil
	}
	selector, ok := backend.As[backend.LabelSelector](r.c.backends, repo.VCS)
	if !ok {
		sel.Resolve(nil)
		return nil, nil
	}

	var label *models.Label
	switch src.Kind {
	case models.LabelFromOperation:
		op, err := r.c.Operations.Get(ctx, src.OperationID)
		if err != nil {
			return nil, err
		}
		if label, err = selector.LabelFromOperation(ctx, repo, op, item); err != nil {
			return nil, err
		}
	case models.LabelFromOtherItem:
		other := src.OtherItem
		var err error
		if other == nil {
			if other, err = r.c.db.GetItemRevisionByID(ctx, src.OtherItemID); err != nil {
				return nil, storageErr("load related item", notFound(err, "related item"))
			}
		}
		otherLabel := src.OtherLabel
		if !src.OtherLabelResolved && src.OtherItem != nil {
			if otherLabel, err = r.Resolve(ctx, repo, src.OtherItem); err != nil {
				return nil, err
			}
		}
		if label, err = selector.LabelFromOtherItem(ctx, repo, item, other, otherLabel, src.Tags); err != nil {
			return nil, err
		}
	}

	if label != nil {
		label.RepoID = repo.ID
		if err := r.c.Labels.ensure(ctx, r.c.db.Queries, label); err != nil {
			return nil, err
		}
	}
	sel.Resolve(label)
	resolved, _ := sel.Get()
	return resolved, nil
}

// adoptLabel marks item as resolved to the label a backend reported with it.
func adoptLabel(li backend.LabeledItem) *models.Item {
	li.Item.SelectedLabel().Resolve(li.Label)
	return li.Item
}
