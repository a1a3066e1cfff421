package constraint

import (
	"errors"
	"reflect"
	"strings"
	"time"
)

// Built-in constraint keys.
const (
	KeyOperationIDs    = "vc_op_ids"
	KeyRepoIDs         = "repo_ids"
	KeyVCS             = "vcs"
	KeyTypes           = "types"
	KeyBranches        = "branches"
	KeyTags            = "tags"
	KeyLabels          = "labels"
	KeyLabelIDs        = "label_ids"
	KeyRevisions       = "revisions"
	KeyPaths           = "paths"
	KeyMessage         = "message"
	KeyItemRevisionIDs = "item_revision_ids"
	KeyItemRevisions   = "item_revisions"
	KeyDateLower       = "date_lower"
	KeyDateUpper       = "date_upper"
	KeyUserIDs         = "uids"
	KeyUsernames       = "usernames"
	KeyUserRelation    = "user_relation"
)

// User relation values.
const (
	RelationAssociated   = "associated"
	RelationUnassociated = "unassociated"
)

const (
	labelBranch = 2
	labelTag    = 3
)

// NewDefaultRegistry returns a registry holding the built-in operation constraints.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for key, info := range builtins() {
		if err := r.Register(key, info); err != nil {
			panic(err)
		}
	}
	return r
}

func joinRepositories(b *Builder) {
	b.Join("repositories", "r", "r.repo_id = op.repo_id")
}

func joinOperationLabels(b *Builder) {
	b.Join("operation_labels", "ol", "ol.vc_op_id = op.vc_op_id")
}

func joinLabels(b *Builder) {
	joinOperationLabels(b)
	b.Join("labels", "label", "label.label_id = ol.label_id")
}

func joinOperationItems(b *Builder) {
	b.Join("operation_items", "oi", "oi.vc_op_id = op.vc_op_id")
}

func joinItems(b *Builder) {
	joinOperationItems(b)
	b.Join("item_revisions", "ir", "ir.item_revision_id = oi.item_revision_id")
}

func builtins() map[string]Info {
	intIn := func(column string) func(*Builder, []any) error {
		return func(b *Builder, values []any) error {
			ids, err := Ints(values)
			if err != nil {
				return err
			}
			b.WhereIn(column, ids)
			return nil
		}
	}
	strIn := func(column string) func(*Builder, []any) error {
		return func(b *Builder, values []any) error {
			s, err := Strings(values)
			if err != nil {
				return err
			}
			b.WhereIn(column, s)
			return nil
		}
	}
	labelsNamed := func(kind int) func(*Builder, []any) error {
		return func(b *Builder, values []any) error {
			names, err := Strings(values)
			if err != nil {
				return err
			}
			cond := inList("sl.name", len(names))
			args := names
			if kind != 0 {
				cond = "sl.type = ? AND " + cond
				args = append([]any{kind}, names...)
			}
			b.Where("EXISTS (SELECT 1 FROM operation_labels sol INNER JOIN labels sl ON sl.label_id = sol.label_id"+
				" WHERE sol.vc_op_id = op.vc_op_id AND "+cond+")", args...)
			return nil
		}
	}

	return map[string]Info{
		KeyOperationIDs: {Cardinality: Multiple, Apply: intIn("op.vc_op_id")},
		KeyRepoIDs:      {Cardinality: Multiple, Apply: intIn("op.repo_id")},
		KeyTypes:        {Cardinality: Multiple, Apply: intIn("op.type")},
		KeyUserIDs:      {Cardinality: Multiple, Apply: intIn("op.uid")},
		KeyRevisions:    {Cardinality: Multiple, Apply: strIn("op.revision")},
		KeyUsernames:    {Cardinality: Multiple, Apply: strIn("op.committer")},
		KeyVCS:          {Cardinality: Multiple, Join: joinRepositories, Apply: strIn("r.vcs")},
		KeyLabels:       {Cardinality: Multiple, Apply: labelsNamed(0)},
		KeyBranches:     {Cardinality: Multiple, Apply: labelsNamed(labelBranch)},
		KeyTags:         {Cardinality: Multiple, Apply: labelsNamed(labelTag)},
		KeyLabelIDs: {
			Cardinality: Multiple,
			Apply: func(b *Builder, values []any) error {
				ids, err := Ints(values)
				if err != nil {
					return err
				}
				b.Where("EXISTS (SELECT 1 FROM operation_labels sol"+
					" WHERE sol.vc_op_id = op.vc_op_id AND "+inList("sol.label_id", len(ids))+")", ids...)
				return nil
			},
		},
		KeyItemRevisionIDs: {
			Cardinality: Multiple,
			Join:        joinOperationItems,
			Apply:       intIn("oi.item_revision_id"),
		},
		KeyItemRevisions: {
			Cardinality: Multiple,
			Join:        joinItems,
			Apply:       strIn("ir.revision"),
		},
		KeyPaths: {
			Cardinality: Multiple,
			Join:        joinItems,
			Apply: func(b *Builder, values []any) error {
				paths, err := Strings(values)
				if err != nil {
					return err
				}
				frags := make([]string, 0, 2*len(paths))
				args := make([]any, 0, 2*len(paths))
				for _, p := range paths {
					s := p.(string)
					frags = append(frags, "ir.path = ?", `ir.path LIKE ? ESCAPE '\'`)
					args = append(args, s, escapeLike(strings.TrimSuffix(s, "/"))+"/%")
				}
				b.WhereAny(frags, args)
				return nil
			},
		},
		KeyMessage: {
			Cardinality: SingleOrMultiple,
			Apply: func(b *Builder, values []any) error {
				words, err := Strings(values)
				if err != nil {
					return err
				}
				frags := make([]string, len(words))
				args := make([]any, len(words))
				for i, w := range words {
					frags[i] = "op.message LIKE ?"
					args[i] = "%" + w.(string) + "%"
				}
				b.WhereAny(frags, args)
				return nil
			},
		},
		KeyDateLower: {
			Cardinality: Single,
			Apply: func(b *Builder, values []any) error {
				ts, err := Timestamp(values[0])
				if err != nil {
					return err
				}
				b.Where("op.date >= ?", ts)
				return nil
			},
		},
		KeyDateUpper: {
			Cardinality: Single,
			Apply: func(b *Builder, values []any) error {
				ts, err := Timestamp(values[0])
				if err != nil {
					return err
				}
				b.Where("op.date <= ?", ts)
				return nil
			},
		},
		KeyUserRelation: {
			Cardinality: Single,
			Apply: func(b *Builder, values []any) error {
				switch values[0] {
				case RelationAssociated:
					b.Where("op.uid <> 0")
				case RelationUnassociated:
					b.Where("op.uid = 0")
				default:
					return errors.New(ReasonType)
				}
				return nil
			},
		},
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike quotes the LIKE wildcards in s for use with ESCAPE '\'.
func escapeLike(s string) string { return likeEscaper.Replace(s) }

// Ints converts integer values of any width, including named integer
// types, to int64.
func Ints(values []any) ([]any, error) {
	out := make([]any, len(values))
	for i, v := range values {
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			out[i] = rv.Int()
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			out[i] = int64(rv.Uint())
		default:
			return nil, errors.New(ReasonType)
		}
	}
	return out, nil
}

func Strings(values []any) ([]any, error) {
	out := make([]any, len(values))
	for i, v := range values {
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.String {
			return nil, errors.New(ReasonType)
		}
		out[i] = rv.String()
	}
	return out, nil
}

// Timestamp accepts a time.Time or a unix timestamp.
func Timestamp(v any) (int64, error) {
	if t, ok := v.(time.Time); ok {
		return t.Unix(), nil
	}
	ints, err := Ints([]any{v})
	if err != nil {
		return 0, err
	}
	return ints[0].(int64), nil
}
