package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/marvil07/versioncontrol/internal/backend"
	"github.com/marvil07/versioncontrol/internal/database"
	"github.com/marvil07/versioncontrol/internal/events"
	"github.com/marvil07/versioncontrol/internal/models"
)

// AccountStore maps VCS usernames to platform users per repository and keeps
// the user attribution of recorded operations in step with it.
type AccountStore struct {
	c *Catalog
}

// AccountConstraints filters Find. A nil field does not filter; a non-nil
// empty one matches nothing.
type AccountConstraints struct {
	UserIDs         []int64
	RepoIDs         []int64
	Usernames       []string
	UsernamesByRepo map[int64][]string
}

func (ac AccountConstraints) matchesNothing() bool {
	return (ac.UserIDs != nil && len(ac.UserIDs) == 0) ||
		(ac.RepoIDs != nil && len(ac.RepoIDs) == 0) ||
		(ac.Usernames != nil && len(ac.Usernames) == 0) ||
		(ac.UsernamesByRepo != nil && len(ac.UsernamesByRepo) == 0)
}

// AccountEvent is the payload of account events.
type AccountEvent struct {
	Account  models.Account `json:"account"`
	Previous string         `json:"previous_username,omitempty"`
}

var defaultUsernamePattern = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

// Find returns accounts keyed by user id, then repository id. Accounts the
// authorization policy rejects are left out unless includeUnauthorized is set.
func (s *AccountStore) Find(ctx context.Context, ac AccountConstraints, includeUnauthorized bool) (map[int64]map[int64]models.Account, error) {
	out := make(map[int64]map[int64]models.Account)
	if ac.matchesNothing() {
		return out, nil
	}
	accounts, err := s.c.db.ListAccounts(ctx, database.AccountFilter{
		UserIDs:         ac.UserIDs,
		RepoIDs:         ac.RepoIDs,
		Usernames:       ac.Usernames,
		UsernamesByRepo: ac.UsernamesByRepo,
	})
	if err != nil {
		return nil, storageErr("list accounts", err)
	}
	if len(accounts) == 0 {
		return out, nil
	}

	repoIDs := make([]int64, 0)
	seen := make(map[int64]bool)
	for _, a := range accounts {
		if !seen[a.RepoID] {
			seen[a.RepoID] = true
			repoIDs = append(repoIDs, a.RepoID)
		}
	}
	repos, err := s.c.Repositories.List(ctx, RepositoryConstraints{IDs: repoIDs})
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*models.Repository, len(repos))
	for i := range repos {
		byID[repos[i].ID] = &repos[i]
	}

	for _, a := range accounts {
		repo := byID[a.RepoID]
		if repo == nil {
			continue
		}
		if !includeUnauthorized && !s.IsAccountAuthorized(ctx, repo, a.UserID) {
			continue
		}
		a.Repository = repo
		if out[a.UserID] == nil {
			out[a.UserID] = make(map[int64]models.Account)
		}
		out[a.UserID][a.RepoID] = a
	}
	return out, nil
}

// IsAccountAuthorized asks the authorization policy about uid. The anonymous
// user id 0 is never authorized.
func (s *AccountStore) IsAccountAuthorized(ctx context.Context, repo *models.Repository, uid int64) bool {
	if uid == 0 {
		return false
	}
	return s.c.authz.IsAuthorized(ctx, repo, uid)
}

// UsernameSuggestion proposes a VCS username for user in repo.
func (s *AccountStore) UsernameSuggestion(repo *models.Repository, user models.User) string {
	if policy, ok := backend.As[backend.UsernamePolicy](s.c.backends, repo.VCS); ok {
		return policy.SuggestUsername(repo, user)
	}
	return strings.NewReplacer(" ", "", "@", "", ".", "", "-", "", "_", "").Replace(strings.ToLower(user.Name))
}

func (s *AccountStore) ValidUsername(repo *models.Repository, username string) bool {
	if policy, ok := backend.As[backend.UsernamePolicy](s.c.backends, repo.VCS); ok {
		return policy.ValidUsername(repo, username)
	}
	return defaultUsernamePattern.MatchString(username)
}

func (s *AccountStore) checkUsername(ctx context.Context, repoID int64, username string) (*models.Repository, error) {
	repo, err := s.c.Repositories.Get(ctx, repoID)
	if err != nil {
		return nil, err
	}
	if !s.ValidUsername(repo, username) {
		return nil, fmt.Errorf("%q in %s: %w", username, repo.Name, ErrInvalidUsername)
	}
	return repo, nil
}

// Insert creates the account and attributes the operations already
// committed under its username to it.
func (s *AccountStore) Insert(ctx context.Context, a models.Account) error {
	if _, err := s.checkUsername(ctx, a.RepoID, a.Username); err != nil {
		return err
	}
	err := s.c.db.WithTx(ctx, func(q *database.Queries) error {
		if err := q.CreateAccount(ctx, &a); err != nil {
			return storageErr("create account", err)
		}
		_, err := q.AssignOperationUser(ctx, a.RepoID, a.Username, a.UserID)
		return storageErr("attribute operations", err)
	})
	if err != nil {
		return err
	}
	s.c.emit(ctx, events.EntityAccount, events.ActionInsert, a.RepoID, AccountEvent{Account: a})
	return nil
}

// Update renames the account. Operations attributed to the old name are
// detached, then those committed under the new name are attributed.
func (s *AccountStore) Update(ctx context.Context, a models.Account) error {
	if _, err := s.checkUsername(ctx, a.RepoID, a.Username); err != nil {
		return err
	}
	var previous string
	err := s.c.db.WithTx(ctx, func(q *database.Queries) error {
		old, err := q.GetAccount(ctx, a.RepoID, a.UserID)
		if err != nil {
			return storageErr("load account", notFound(err, fmt.Sprintf("account %d/%d", a.RepoID, a.UserID)))
		}
		previous = old.Username
		if err := q.UpdateAccountUsername(ctx, a.RepoID, a.UserID, a.Username); err != nil {
			return storageErr("update account", err)
		}
		if _, err := q.ClearOperationUser(ctx, a.RepoID, a.UserID); err != nil {
			return storageErr("detach operations", err)
		}
		_, err = q.AssignOperationUser(ctx, a.RepoID, a.Username, a.UserID)
		return storageErr("attribute operations", err)
	})
	if err != nil {
		return err
	}
	s.c.emit(ctx, events.EntityAccount, events.ActionUpdate, a.RepoID, AccountEvent{Account: a, Previous: previous})
	return nil
}

// Delete removes the account and detaches its operations.
func (s *AccountStore) Delete(ctx context.Context, a models.Account) error {
	err := s.c.db.WithTx(ctx, func(q *database.Queries) error {
		if _, err := q.ClearOperationUser(ctx, a.RepoID, a.UserID); err != nil {
			return storageErr("detach operations", err)
		}
		return storageErr("delete account", q.DeleteAccount(ctx, a.RepoID, a.UserID))
	})
	if err != nil {
		return err
	}
	s.c.emit(ctx, events.EntityAccount, events.ActionDelete, a.RepoID, AccountEvent{Account: a})
	return nil
}
