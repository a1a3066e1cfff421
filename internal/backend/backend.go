// Package backend describes the VCS adapters the catalog delegates to. A
// backend declares static capabilities and implements any subset of the
// optional operation interfaces below; the Registry records which ones at
// registration time.
package backend

import (
	"context"

	"github.com/marvil07/versioncontrol/internal/models"
)

type Capability uint

const (
	// AtomicCommits means a revision identifies one whole commit, so commit
	// operations can be found by revision.
	AtomicCommits Capability = 1 << iota
	// DirectoryRevisions means directories carry their own revisions.
	DirectoryRevisions
	// AuthorizationCheck means write access checks include backend policy.
	AuthorizationCheck
)

// Info is the static description of a backend.
type Info struct {
	Name         string
	Description  string
	Capabilities Capability
}

func (i Info) Has(c Capability) bool { return i.Capabilities&c == c }

// Backend is the minimum a VCS adapter implements.
type Backend interface {
	VCS() string
	Info() Info
}

type FileExporter interface {
	ExportFile(ctx context.Context, repo *models.Repository, item *models.Item, dst string) error
}

type DirectoryExporter interface {
	ExportDirectory(ctx context.Context, repo *models.Repository, item *models.Item, dst string) error
}

// LabeledItem is an item reported by a backend together with the label it
// was found on. A nil Label means the item is on no branch or tag.
type LabeledItem struct {
	Item  *models.Item
	Label *models.Label
}

type DirectoryLister interface {
	// DirectoryContents lists dir itself plus its children, recursively when asked.
	DirectoryContents(ctx context.Context, repo *models.Repository, dir *models.Item, recursive bool) ([]LabeledItem, error)
}

// AnnotatedLine is one line of a blame view.
type AnnotatedLine struct {
	Line     int
	Revision string
	Username string
	Text     string
}

type Annotator interface {
	Annotate(ctx context.Context, repo *models.Repository, item *models.Item) ([]AnnotatedLine, error)
}

type ParallelItemFinder interface {
	// ParallelItems returns the same item as it exists on other labels.
	ParallelItems(ctx context.Context, repo *models.Repository, item *models.Item, kind *models.LabelKind) ([]LabeledItem, error)
}

type ItemGetter interface {
	// GetItem looks up path at the revision or label given in constraints
	// ("revision", "label_id").
	GetItem(ctx context.Context, repo *models.Repository, path string, constraints map[string]any) (*LabeledItem, error)
}

// LabelSelector derives the label an item is viewed on.
type LabelSelector interface {
	LabelFromOperation(ctx context.Context, repo *models.Repository, op *models.Operation, item *models.Item) (*models.Label, error)
	LabelFromOtherItem(ctx context.Context, repo *models.Repository, item, other *models.Item, otherLabel *models.Label, tags []string) (*models.Label, error)
}

// OperationObserver is told about operation writes before event sinks are.
type OperationObserver interface {
	OperationInserted(ctx context.Context, op *models.Operation, items []*models.Item) error
	OperationDeleted(ctx context.Context, op *models.Operation) error
}

type UsernamePolicy interface {
	SuggestUsername(repo *models.Repository, user models.User) string
	ValidUsername(repo *models.Repository, username string) bool
}

type RevisionFormatter interface {
	FormatRevision(repo *models.Repository, revision, format string) string
}

// Authorizer adds backend-specific write access checks. It returns one
// reason per failed check.
type Authorizer interface {
	CheckWriteAccess(ctx context.Context, repo *models.Repository, op *models.Operation) []string
}
