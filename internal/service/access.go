package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/marvil07/versioncontrol/internal/backend"
	"github.com/marvil07/versioncontrol/internal/models"
)

// CheckWriteAccess decides whether op may be recorded. Every check runs;
// a rejection carries one reason per failed check. op is not modified.
func (s *OperationStore) CheckWriteAccess(ctx context.Context, op *models.Operation) error {
	var reasons []string

	repo, err := s.c.Repositories.Get(ctx, op.RepoID)
	switch {
	case errors.Is(err, ErrNotFound):
		return &AuthorizationError{Reasons: []string{fmt.Sprintf("repository %d does not exist", op.RepoID)}}
	case err != nil:
		return err
	}

	if !repo.AllowsUnauthorizedAccess() {
		acct, err := s.c.db.AccountByUsername(ctx, repo.ID, op.Committer)
		switch {
		case err == nil && s.c.Accounts.IsAccountAuthorized(ctx, repo, acct.UserID):
		case err == nil:
			reasons = append(reasons, fmt.Sprintf("account %q is not authorized to commit to %s", op.Committer, repo.Name))
		case errors.Is(notFound(err, "account"), ErrNotFound):
			reasons = append(reasons, fmt.Sprintf("%q is not associated with a user account in %s", op.Committer, repo.Name))
		default:
			return storageErr("lookup committer account", err)
		}
	}

	if strings.TrimSpace(op.Message) == "" {
		reasons = append(reasons, "a log message is required")
	}

	if s.c.backends.Supports(repo.VCS, backend.AuthorizationCheck) {
		if authz, ok := backend.As[backend.Authorizer](s.c.backends, repo.VCS); ok {
			reasons = append(reasons, authz.CheckWriteAccess(ctx, repo, op)...)
		}
	}
	for _, policy := range s.c.policies {
		reasons = append(reasons, policy(ctx, repo, op)...)
	}

	if len(reasons) > 0 {
		return &AuthorizationError{Reasons: reasons}
	}
	return nil
}
