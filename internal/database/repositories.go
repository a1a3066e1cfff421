package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/marvil07/versioncontrol/internal/models"
)

// RepositoryFilter narrows ListRepositories. Nil slices do not filter.
type RepositoryFilter struct {
	IDs   []int64
	VCS   []string
	Names []string
}

const repositoryColumns = `repo_id, name, vcs, root, authorization_method, urls, data`

func (q *Queries) CreateRepository(ctx context.Context, r *models.Repository) error {
	urls, data, err := encodeRepositoryBlobs(r)
	if err != nil {
		return err
	}
	id, err := q.insert(ctx, "repo_id",
		`INSERT INTO repositories (name, vcs, root, authorization_method, urls, data) VALUES (?, ?, ?, ?, ?, ?)`,
		r.Name, r.VCS, r.Root, r.AuthorizationMethod, urls, data)
	if err != nil {
		return err
	}
	r.ID = id
	return nil
}

// UpdateRepository rewrites the mutable repository fields. vcs is never updated.
func (q *Queries) UpdateRepository(ctx context.Context, r *models.Repository) error {
	urls, data, err := encodeRepositoryBlobs(r)
	if err != nil {
		return err
	}
	res, err := q.exec(ctx,
		`UPDATE repositories SET name = ?, root = ?, authorization_method = ?, urls = ?, data = ? WHERE repo_id = ?`,
		r.Name, r.Root, r.AuthorizationMethod, urls, data, r.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (q *Queries) GetRepository(ctx context.Context, id int64) (*models.Repository, error) {
	row := q.queryRow(ctx, `SELECT `+repositoryColumns+` FROM repositories WHERE repo_id = ?`, id)
	return scanRepository(row)
}

func (q *Queries) ListRepositories(ctx context.Context, f RepositoryFilter) ([]models.Repository, error) {
	var where []string
	var args []any
	if f.IDs != nil {
		where = append(where, "repo_id IN ("+placeholders(len(f.IDs))+")")
		args = append(args, int64Args(f.IDs)...)
	}
	if f.VCS != nil {
		where = append(where, "vcs IN ("+placeholders(len(f.VCS))+")")
		args = append(args, stringArgs(f.VCS)...)
	}
	if f.Names != nil {
		where = append(where, "name IN ("+placeholders(len(f.Names))+")")
		args = append(args, stringArgs(f.Names)...)
	}
	query := `SELECT ` + repositoryColumns + ` FROM repositories`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY repo_id"

	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var repos []models.Repository
	for rows.Next() {
		r, err := scanRepository(rows)
		if err != nil {
			return nil, err
		}
		repos = append(repos, *r)
	}
	return repos, rows.Err()
}

func (q *Queries) DeleteRepository(ctx context.Context, id int64) error {
	_, err := q.exec(ctx, `DELETE FROM repositories WHERE repo_id = ?`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRepository(row rowScanner) (*models.Repository, error) {
	r := &models.Repository{}
	var urls, data string
	if err := row.Scan(&r.ID, &r.Name, &r.VCS, &r.Root, &r.AuthorizationMethod, &urls, &data); err != nil {
		return nil, err
	}
	if urls != "" {
		if err := json.Unmarshal([]byte(urls), &r.URLs); err != nil {
			return nil, fmt.Errorf("decode repository %d urls: %w", r.ID, err)
		}
	}
	if data != "" {
		if err := json.Unmarshal([]byte(data), &r.Data); err != nil {
			return nil, fmt.Errorf("decode repository %d data: %w", r.ID, err)
		}
	}
	return r, nil
}

func encodeRepositoryBlobs(r *models.Repository) (string, string, error) {
	urls, err := encodeJSON(r.URLs)
	if err != nil {
		return "", "", fmt.Errorf("encode repository urls: %w", err)
	}
	data, err := encodeJSON(r.Data)
	if err != nil {
		return "", "", fmt.Errorf("encode repository data: %w", err)
	}
	return urls, data, nil
}

func encodeJSON[T any](v map[string]T) (string, error) {
	if len(v) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
