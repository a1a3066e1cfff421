package service

import (
	"context"
	"log/slog"

	"github.com/marvil07/versioncontrol/internal/backend"
	"github.com/marvil07/versioncontrol/internal/constraint"
	"github.com/marvil07/versioncontrol/internal/database"
	"github.com/marvil07/versioncontrol/internal/events"
	"github.com/marvil07/versioncontrol/internal/models"
)

// Authorizer is the platform policy deciding whether a user may act on a repository.
type Authorizer interface {
	IsAuthorized(ctx context.Context, repo *models.Repository, uid int64) bool
}

type AuthorizerFunc func(ctx context.Context, repo *models.Repository, uid int64) bool

func (f AuthorizerFunc) IsAuthorized(ctx context.Context, repo *models.Repository, uid int64) bool {
	return f(ctx, repo, uid)
}

// allowAll authorizes every non-zero user id.
var allowAll = AuthorizerFunc(func(context.Context, *models.Repository, int64) bool { return true })

// WritePolicy is an extra write access check. It returns one message per
// failed check, or nothing when the operation may be recorded.
type WritePolicy func(ctx context.Context, repo *models.Repository, op *models.Operation) []string

type Options struct {
	Backends      *backend.Registry
	Constraints   *constraint.Registry
	Events        events.Sink
	Authorizer    Authorizer
	WritePolicies []WritePolicy
	// CacheRepositories keeps repository lookups in memory until the next
	// repository write.
	CacheRepositories bool
	Logger            *slog.Logger
}

// Catalog wires the stores that make up the version control catalog.
type Catalog struct {
	db          *database.DB
	backends    *backend.Registry
	constraints *constraint.Registry
	sink        events.Sink
	authz       Authorizer
	policies    []WritePolicy
	logger      *slog.Logger
	metrics     *catalogMetrics

	Labels       *LabelStore
	Items        *ItemStore
	Resolver     *LabelResolver
	Operations   *OperationStore
	Accounts     *AccountStore
	Repositories *RepositoryRegistry
}

func New(db *database.DB, opts Options) *Catalog {
	c := &Catalog{
		db:          db,
		backends:    opts.Backends,
		constraints: opts.Constraints,
		sink:        opts.Events,
		authz:       opts.Authorizer,
		policies:    opts.WritePolicies,
		logger:      opts.Logger,
		metrics:     getDefaultMetrics(),
	}
	if c.backends == nil {
		c.backends, _ = backend.NewRegistry()
	}
	if c.constraints == nil {
		c.constraints = constraint.NewDefaultRegistry()
	}
	if c.sink == nil {
		c.sink = events.Discard
	}
	if c.authz == nil {
		c.authz = allowAll
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	c.Labels = &LabelStore{c: c}
	c.Items = &ItemStore{c: c}
	c.Resolver = &LabelResolver{c: c}
	c.Operations = &OperationStore{c: c}
	c.Accounts = &AccountStore{c: c}
	c.Repositories = newRepositoryRegistry(c, opts.CacheRepositories)
	return c
}

func (c *Catalog) DB() *database.DB { return c.db }

func (c *Catalog) Backends() *backend.Registry { return c.backends }

func (c *Catalog) Constraints() *constraint.Registry { return c.constraints }

func (c *Catalog) emit(ctx context.Context, entity events.Entity, action events.Action, repoID int64, payload any) {
	c.sink.Emit(ctx, events.New(entity, action, repoID, payload))
}

// buildQuery resolves a constraint set, logging why it matches nothing.
func (c *Catalog) buildQuery(ctx context.Context, set constraint.Set, extra ...func(*constraint.Builder)) (constraint.Query, bool) {
	q, err := c.constraints.Build(set, extra...)
	if err != nil {
		key, reason := "", err.Error()
		if ce, ok := err.(*constraint.Error); ok {
			key, reason = ce.Key, ce.Reason
		}
		c.metrics.constraintRejected.WithLabelValues(key, reason).Inc()
		c.logger.DebugContext(ctx, "constraint set matches nothing", "key", key, "reason", reason)
		return constraint.Query{}, false
	}
	return q, true
}
