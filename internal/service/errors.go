package service

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/marvil07/versioncontrol/internal/constraint"
	"github.com/marvil07/versioncontrol/internal/models"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrConstraint       = constraint.ErrInvalid
	ErrUnsupported      = errors.New("operation not supported by backend")
	ErrLineageCycle     = errors.New("lineage cycle detected")
	ErrHistoryCollision = errors.New("history revision collision")
	ErrImmutableBackend = errors.New("repository backend cannot change")
	ErrInvalidUsername  = errors.New("invalid vcs username")
	ErrItemKind         = errors.New("item kind not specified")
)

// AuthorizationError lists every failed write access check.
type AuthorizationError struct {
	Reasons []string
}

func (e *AuthorizationError) Error() string {
	return "write access denied: " + strings.Join(e.Reasons, "; ")
}

// StorageError wraps a persistence failure in a write path.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

// ConsistencyWarning is an anomaly that sanitize corrected before storing an item.
type ConsistencyWarning struct {
	Item    *models.Item
	Reason  string
	Message string
}

func (w ConsistencyWarning) String() string {
	return fmt.Sprintf("%s@%s: %s", w.Item.Path, w.Item.Revision, w.Message)
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	var ae *AuthorizationError
	if errors.As(err, &se) || errors.As(err, &ae) || errors.Is(err, ErrNotFound) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}
