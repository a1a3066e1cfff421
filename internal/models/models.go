package models

import (
	"path"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

type OperationKind int

const (
	OperationCommit OperationKind = 1
	OperationBranch OperationKind = 2
	OperationTag    OperationKind = 3
)

func (k OperationKind) String() string {
	switch k {
	case OperationCommit:
		return "commit"
	case OperationBranch:
		return "branch"
	case OperationTag:
		return "tag"
	default:
		return "unknown"
	}
}

// LabelKind shares its values with the matching OperationKind.
type LabelKind int

const (
	LabelBranch LabelKind = 2
	LabelTag    LabelKind = 3
)

func (k LabelKind) String() string {
	switch k {
	case LabelBranch:
		return "branch"
	case LabelTag:
		return "tag"
	default:
		return "unknown"
	}
}

type ItemKind int

const (
	ItemFile             ItemKind = 1
	ItemDirectory        ItemKind = 2
	ItemFileDeleted      ItemKind = 3
	ItemDirectoryDeleted ItemKind = 4
)

func (k ItemKind) String() string {
	switch k {
	case ItemFile:
		return "file"
	case ItemDirectory:
		return "directory"
	case ItemFileDeleted:
		return "file-deleted"
	case ItemDirectoryDeleted:
		return "directory-deleted"
	default:
		return "unknown"
	}
}

// Deleted returns the deleted variant of k.
func (k ItemKind) Deleted() ItemKind {
	switch k {
	case ItemFile:
		return ItemFileDeleted
	case ItemDirectory:
		return ItemDirectoryDeleted
	default:
		return k
	}
}

// Action describes how an item or label changed in an operation.
type Action int

const (
	ActionNone     Action = 0
	ActionAdded    Action = 1
	ActionModified Action = 2
	ActionMoved    Action = 3
	ActionCopied   Action = 4
	ActionMerged   Action = 5
	ActionDeleted  Action = 6
	ActionReplaced Action = 7
	ActionOther    Action = 8
)

func (a Action) String() string {
	switch a {
	case ActionAdded:
		return "added"
	case ActionModified:
		return "modified"
	case ActionMoved:
		return "moved"
	case ActionCopied:
		return "copied"
	case ActionMerged:
		return "merged"
	case ActionDeleted:
		return "deleted"
	case ActionReplaced:
		return "replaced"
	case ActionOther:
		return "other"
	default:
		return "none"
	}
}

// Membership distinguishes real operation members from path-search cache rows.
type Membership int

const (
	MemberItem         Membership = 1
	CachedAffectedItem Membership = 2
)

type Repository struct {
	ID                  int64             `json:"repo_id"`
	Name                string            `json:"name"`
	VCS                 string            `json:"vcs"`
	Root                string            `json:"root"`
	AuthorizationMethod string            `json:"authorization_method"`
	URLs                map[string]string `json:"urls,omitempty"`
	Data                map[string]any    `json:"data,omitempty"`
}

// AllowsUnauthorizedAccess reports whether write checks skip committer authorization.
func (r *Repository) AllowsUnauthorizedAccess() bool {
	if r == nil || r.Data == nil {
		return false
	}
	v, _ := r.Data["allow_unauthorized_access"].(bool)
	return v
}

type Label struct {
	ID     int64     `json:"label_id"`
	RepoID int64     `json:"repo_id"`
	Name   string    `json:"name"`
	Kind   LabelKind `json:"type"`
	// Action is only meaningful in the context of one operation.
	Action Action `json:"action,omitempty"`
}

type LineChanges struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
}

type Operation struct {
	ID        int64             `json:"vc_op_id"`
	RepoID    int64             `json:"repo_id"`
	Kind      OperationKind     `json:"type"`
	Committer string            `json:"committer"`
	Author    string            `json:"author"`
	Date      time.Time         `json:"date"`
	Revision  string            `json:"revision"`
	Message   string            `json:"message"`
	UserID    int64             `json:"uid"`
	Extra     map[string]string `json:"extra,omitempty"`
	Labels    []Label           `json:"labels"`

	Repository *Repository `json:"-"`
}

type Account struct {
	RepoID   int64  `json:"repo_id"`
	UserID   int64  `json:"uid"`
	Username string `json:"username"`

	Repository *Repository `json:"-"`
}

// User is the platform identity an account maps onto.
type User struct {
	ID   int64
	Name string
}

// OperationStats aggregates a set of operations. Dates are the Unix epoch when
// no operation matched.
type OperationStats struct {
	Total     int64     `json:"total_operations"`
	FirstDate time.Time `json:"first_operation_date"`
	LastDate  time.Time `json:"last_operation_date"`
}

type GroupedStats struct {
	Key    string            `json:"key"`
	Values map[string]string `json:"values"`
	OperationStats
}

// Item is one revision of a file or directory.
type Item struct {
	ID          int64        `json:"item_revision_id,omitempty"`
	RepoID      int64        `json:"repo_id"`
	Path        string       `json:"path"`
	Revision    string       `json:"revision"`
	Kind        ItemKind     `json:"type"`
	Action      Action       `json:"action,omitempty"`
	LineChanges *LineChanges `json:"line_changes,omitempty"`

	SourceItems    []*Item `json:"source_items,omitempty"`
	SuccessorItems []*Item `json:"successor_items,omitempty"`
	ReplacedItem   *Item   `json:"replaced_item,omitempty"`

	CommitOperation *Operation `json:"-"`

	selected SelectedLabel
}

func (i *Item) IsFile() bool {
	return i.Kind == ItemFile || i.Kind == ItemFileDeleted
}

func (i *Item) IsDirectory() bool {
	return i.Kind == ItemDirectory || i.Kind == ItemDirectoryDeleted
}

func (i *Item) IsDeleted() bool {
	return i.Kind == ItemFileDeleted || i.Kind == ItemDirectoryDeleted
}

// MatchPath reports whether the glob pattern matches the item path. Directory
// paths other than the root also match with a trailing slash.
func (i *Item) MatchPath(pattern string) (bool, error) {
	p := i.Path
	if i.IsDirectory() && p != "/" && !strings.HasSuffix(p, "/") {
		if ok, err := doublestar.Match(pattern, p+"/"); err != nil || ok {
			return ok, err
		}
	}
	return doublestar.Match(pattern, p)
}

// ParentPath returns the directory containing the item, or the path itself for the root.
func (i *Item) ParentPath() string {
	if i.Path == "/" || i.Path == "" {
		return "/"
	}
	return path.Dir(strings.TrimSuffix(i.Path, "/"))
}

// SelectedLabel returns the item's selected-label state.
func (i *Item) SelectedLabel() *SelectedLabel {
	return &i.selected
}
