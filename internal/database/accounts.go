package database

import (
	"context"
	"sort"
	"strings"

	"github.com/marvil07/versioncontrol/internal/models"
)

// AccountFilter narrows ListAccounts. Nil fields do not filter. Filters
// combine with AND; UsernamesByRepo entries combine with OR.
type AccountFilter struct {
	UserIDs         []int64
	RepoIDs         []int64
	Usernames       []string
	UsernamesByRepo map[int64][]string
}

func (q *Queries) ListAccounts(ctx context.Context, f AccountFilter) ([]models.Account, error) {
	var where []string
	var args []any
	if f.UserIDs != nil {
		where = append(where, "uid IN ("+placeholders(len(f.UserIDs))+")")
		args = append(args, int64Args(f.UserIDs)...)
	}
	if f.RepoIDs != nil {
		where = append(where, "repo_id IN ("+placeholders(len(f.RepoIDs))+")")
		args = append(args, int64Args(f.RepoIDs)...)
	}
	if f.Usernames != nil {
		where = append(where, "username IN ("+placeholders(len(f.Usernames))+")")
		args = append(args, stringArgs(f.Usernames)...)
	}
	if f.UsernamesByRepo != nil {
		repoIDs := make([]int64, 0, len(f.UsernamesByRepo))
		for id := range f.UsernamesByRepo {
			repoIDs = append(repoIDs, id)
		}
		sort.Slice(repoIDs, func(i, j int) bool { return repoIDs[i] < repoIDs[j] })
		var ors []string
		for _, id := range repoIDs {
			names := f.UsernamesByRepo[id]
			if len(names) == 0 {
				continue
			}
			ors = append(ors, "(repo_id = ? AND username IN ("+placeholders(len(names))+"))")
			args = append(args, id)
			args = append(args, stringArgs(names)...)
		}
		if len(ors) == 0 {
			return nil, nil
		}
		where = append(where, "("+strings.Join(ors, " OR ")+")")
	}
	query := `SELECT repo_id, uid, username FROM accounts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY uid, repo_id"

	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []models.Account
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.RepoID, &a.UserID, &a.Username); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (q *Queries) GetAccount(ctx context.Context, repoID, uid int64) (*models.Account, error) {
	a := &models.Account{}
	err := q.queryRow(ctx, `SELECT repo_id, uid, username FROM accounts WHERE repo_id = ? AND uid = ?`, repoID, uid).
		Scan(&a.RepoID, &a.UserID, &a.Username)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// AccountByUsername returns the lowest-uid account of repoID named username.
func (q *Queries) AccountByUsername(ctx context.Context, repoID int64, username string) (*models.Account, error) {
	a := &models.Account{}
	err := q.queryRow(ctx,
		`SELECT repo_id, uid, username FROM accounts WHERE repo_id = ? AND username = ? ORDER BY uid LIMIT 1`,
		repoID, username).Scan(&a.RepoID, &a.UserID, &a.Username)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (q *Queries) CreateAccount(ctx context.Context, a *models.Account) error {
	_, err := q.exec(ctx, `INSERT INTO accounts (repo_id, uid, username) VALUES (?, ?, ?)`, a.RepoID, a.UserID, a.Username)
	return err
}

func (q *Queries) UpdateAccountUsername(ctx context.Context, repoID, uid int64, username string) error {
	_, err := q.exec(ctx, `UPDATE accounts SET username = ? WHERE repo_id = ? AND uid = ?`, username, repoID, uid)
	return err
}

func (q *Queries) DeleteAccount(ctx context.Context, repoID, uid int64) error {
	_, err := q.exec(ctx, `DELETE FROM accounts WHERE repo_id = ? AND uid = ?`, repoID, uid)
	return err
}

func (q *Queries) DeleteRepositoryAccounts(ctx context.Context, repoID int64) ([]models.Account, error) {
	accounts, err := q.ListAccounts(ctx, AccountFilter{RepoIDs: []int64{repoID}})
	if err != nil {
		return nil, err
	}
	if _, err := q.exec(ctx, `DELETE FROM accounts WHERE repo_id = ?`, repoID); err != nil {
		return nil, err
	}
	return accounts, nil
}
