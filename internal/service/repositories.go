package service

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/marvil07/versioncontrol/internal/backend"
	"github.com/marvil07/versioncontrol/internal/database"
	"github.com/marvil07/versioncontrol/internal/events"
	"github.com/marvil07/versioncontrol/internal/models"
)

// RepositoryRegistry is the catalog of tracked repositories and their
// backend bindings.
type RepositoryRegistry struct {
	c *Catalog

	cacheEnabled bool
	group        singleflight.Group
	mu           sync.Mutex
	generation   uint64
	cache        map[string][]models.Repository
}

// RepositoryConstraints filters List. A nil field does not filter; a non-nil
// empty one matches nothing.
type RepositoryConstraints struct {
	IDs   []int64
	VCS   []string
	Names []string
}

// RepositoryDeleteEvent is the payload of a repository delete event.
type RepositoryDeleteEvent struct {
	Repository models.Repository `json:"repository"`
	Operations int64             `json:"operations"`
	Labels     int64             `json:"labels"`
	Items      int64             `json:"items"`
	Accounts   int               `json:"accounts"`
}

func newRepositoryRegistry(c *Catalog, cache bool) *RepositoryRegistry {
	return &RepositoryRegistry{c: c, cacheEnabled: cache, cache: make(map[string][]models.Repository)}
}

func (rc RepositoryConstraints) matchesNothing() bool {
	return (rc.IDs != nil && len(rc.IDs) == 0) ||
		(rc.VCS != nil && len(rc.VCS) == 0) ||
		(rc.Names != nil && len(rc.Names) == 0)
}

// cacheKey normalizes rc so that equivalent constraint sets share an entry.
func (rc RepositoryConstraints) cacheKey() string {
	var b strings.Builder
	b.WriteString("ids=")
	if rc.IDs == nil {
		b.WriteString("*")
	} else {
		ids := slices.Clone(rc.IDs)
		slices.Sort(ids)
		for i, id := range slices.Compact(ids) {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.FormatInt(id, 10))
		}
	}
	writeStrings := func(name string, values []string) {
		b.WriteString(";" + name + "=")
		if values == nil {
			b.WriteString("*")
			return
		}
		v := slices.Clone(values)
		slices.Sort(v)
		b.WriteString(strconv.Quote(strings.Join(slices.Compact(v), "\x00")))
	}
	writeStrings("vcs", rc.VCS)
	writeStrings("names", rc.Names)
	return b.String()
}

func cloneRepository(r models.Repository) models.Repository {
	r.URLs = maps.Clone(r.URLs)
	r.Data = maps.Clone(r.Data)
	return r
}

func cloneRepositories(repos []models.Repository) []models.Repository {
	out := make([]models.Repository, len(repos))
	for i, r := range repos {
		out[i] = cloneRepository(r)
	}
	return out
}

// invalidate drops every cached lookup. Loads that started before the call
// do not repopulate the cache.
func (s *RepositoryRegistry) invalidate() {
	s.mu.Lock()
	s.generation++
	clear(s.cache)
	s.mu.Unlock()
}

// List returns the repositories matching rc ordered by id.
func (s *RepositoryRegistry) List(ctx context.Context, rc RepositoryConstraints) ([]models.Repository, error) {
	if rc.matchesNothing() {
		return nil, nil
	}
	if !s.cacheEnabled {
		return s.load(ctx, rc)
	}

	key := rc.cacheKey()
	s.mu.Lock()
	if repos, ok := s.cache[key]; ok {
		s.mu.Unlock()
		return cloneRepositories(repos), nil
	}
	gen := s.generation
	s.mu.Unlock()

	v, err, _ := s.group.Do(key+"@"+strconv.FormatUint(gen, 10), func() (any, error) {
		repos, err := s.load(ctx, rc)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		if s.generation == gen {
			s.cache[key] = repos
		}
		s.mu.Unlock()
		return repos, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneRepositories(v.([]models.Repository)), nil
}

func (s *RepositoryRegistry) load(ctx context.Context, rc RepositoryConstraints) ([]models.Repository, error) {
	repos, err := s.c.db.ListRepositories(ctx, database.RepositoryFilter{IDs: rc.IDs, VCS: rc.VCS, Names: rc.Names})
	if err != nil {
		return nil, storageErr("list repositories", err)
	}
	return repos, nil
}

func (s *RepositoryRegistry) Get(ctx context.Context, id int64) (*models.Repository, error) {
	repos, err := s.List(ctx, RepositoryConstraints{IDs: []int64{id}})
	if err != nil {
		return nil, err
	}
	if len(repos) == 0 {
		return nil, fmt.Errorf("repository %d: %w", id, ErrNotFound)
	}
	return &repos[0], nil
}

// Create stores a new repository and sets r.ID.
func (s *RepositoryRegistry) Create(ctx context.Context, r *models.Repository) error {
	if r.VCS == "" {
		return fmt.Errorf("create repository %q: missing backend", r.Name)
	}
	if _, ok := s.c.backends.Get(r.VCS); !ok {
		s.c.logger.WarnContext(ctx, "repository uses an unregistered backend", "name", r.Name, "vcs", r.VCS)
	}
	defer s.invalidate()
	if err := s.c.db.CreateRepository(ctx, r); err != nil {
		return storageErr("create repository", err)
	}
	s.c.emit(ctx, events.EntityRepository, events.ActionInsert, r.ID, cloneRepository(*r))
	return nil
}

// Update rewrites the mutable fields of r. The backend may not change.
func (s *RepositoryRegistry) Update(ctx context.Context, r *models.Repository) error {
	defer s.invalidate()
	err := s.c.db.WithTx(ctx, func(q *database.Queries) error {
		current, err := q.GetRepository(ctx, r.ID)
		if err != nil {
			return storageErr("load repository", notFound(err, fmt.Sprintf("repository %d", r.ID)))
		}
		if current.VCS != r.VCS {
			return fmt.Errorf("repository %d from %q to %q: %w", r.ID, current.VCS, r.VCS, ErrImmutableBackend)
		}
		return storageErr("update repository", q.UpdateRepository(ctx, r))
	})
	if err != nil {
		return err
	}
	s.c.emit(ctx, events.EntityRepository, events.ActionUpdate, r.ID, cloneRepository(*r))
	return nil
}

// Delete removes the repository and everything recorded for it in one
// transaction.
func (s *RepositoryRegistry) Delete(ctx context.Context, id int64) (err error) {
	ctx, span := startSpan(ctx, "catalog.repository.delete", attribute.Int64("repo_id", id))
	defer func() { endSpan(span, err) }()

	repo, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	defer s.invalidate()

	ev := RepositoryDeleteEvent{Repository: *repo}
	var accounts []models.Account
	err = s.c.db.WithTx(ctx, func(q *database.Queries) error {
		var err error
		if ev.Operations, err = q.DeleteRepositoryOperations(ctx, id); err != nil {
			return storageErr("delete repository operations", err)
		}
		if ev.Labels, err = q.DeleteRepositoryLabels(ctx, id); err != nil {
			return storageErr("delete repository labels", err)
		}
		if ev.Items, err = q.DeleteRepositoryItems(ctx, id); err != nil {
			return storageErr("delete repository items", err)
		}
		if accounts, err = q.DeleteRepositoryAccounts(ctx, id); err != nil {
			return storageErr("delete repository accounts", err)
		}
		return storageErr("delete repository", q.DeleteRepository(ctx, id))
	})
	if err != nil {
		return err
	}

	ev.Accounts = len(accounts)
	for _, a := range accounts {
		s.c.emit(ctx, events.EntityAccount, events.ActionDelete, id, AccountEvent{Account: a})
	}
	s.c.emit(ctx, events.EntityRepository, events.ActionDelete, id, ev)
	s.c.logger.InfoContext(ctx, "repository deleted",
		"repo_id", id, "operations", ev.Operations, "labels", ev.Labels, "items", ev.Items, "accounts", ev.Accounts)
	return nil
}

// Labels lists the labels of a repository.
func (s *RepositoryRegistry) Labels(ctx context.Context, repoID int64, lc LabelConstraints) ([]models.Label, error) {
	return s.c.Labels.Find(ctx, repoID, lc)
}

// FormatRevision renders a revision for display, in the backend's own format
// when it has one.
func (s *RepositoryRegistry) FormatRevision(repo *models.Repository, revision, format string) string {
	if f, ok := backend.As[backend.RevisionFormatter](s.c.backends, repo.VCS); ok {
		return f.FormatRevision(repo, revision, format)
	}
	return revision
}

// Item asks the backend for path at the revision or label in constraints.
// It returns nil when the backend knows no such item.
func (s *RepositoryRegistry) Item(ctx context.Context, repo *models.Repository, path string, constraints map[string]any) (*models.Item, error) {
	getter, ok := backend.As[backend.ItemGetter](s.c.backends, repo.VCS)
	if !ok {
		return nil, fmt.Errorf("get item for %s: %w", repo.VCS, ErrUnsupported)
	}
	li, err := getter.GetItem(ctx, repo, path, constraints)
	if err != nil || li == nil || li.Item == nil {
		return nil, err
	}
	return adoptLabel(*li), nil
}
