package constraint

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

type opKind int

func TestBuildEmptySetHasNoWhere(t *testing.T) {
	q, err := NewDefaultRegistry().Build(Set{})
	if err != nil {
		t.Fatal(err)
	}
	if q.From != "operations op" {
		t.Fatalf("unexpected from: %q", q.From)
	}
	if q.WhereClause() != "" {
		t.Fatalf("expected no where clause, got %q", q.WhereClause())
	}
}

func TestBuildRejectsUnknownKey(t *testing.T) {
	_, err := NewDefaultRegistry().Build(Set{"repo_ids": []int64{1}, "bogus": "x"})
	var ce *Error
	if !errors.As(err, &ce) {
		t.Fatalf("expected constraint error, got %v", err)
	}
	if ce.Key != "bogus" || ce.Reason != ReasonUnknown {
		t.Fatalf("unexpected error: %+v", ce)
	}
	if !errors.Is(err, ErrInvalid) {
		t.Fatal("expected error to wrap ErrInvalid")
	}
}

func TestBuildRejectsEmptyList(t *testing.T) {
	reg := NewDefaultRegistry()
	for _, set := range []Set{
		{"repo_ids": []int64{}},
		{"usernames": []string{}, "repo_ids": []int64{1}},
		{"message": []string{}},
	} {
		_, err := reg.Build(set)
		var ce *Error
		if !errors.As(err, &ce) || ce.Reason != ReasonEmpty {
			t.Fatalf("expected empty-list rejection for %v, got %v", set, err)
		}
	}
}

func TestBuildCardinality(t *testing.T) {
	reg := NewDefaultRegistry()
	if _, err := reg.Build(Set{"repo_ids": int64(1)}); err == nil {
		t.Fatal("expected scalar for multiple-value constraint to fail")
	}
	if _, err := reg.Build(Set{"date_lower": []int64{1, 2}}); err == nil {
		t.Fatal("expected list for single-value constraint to fail")
	}
	if _, err := reg.Build(Set{"message": "fix"}); err != nil {
		t.Fatalf("scalar message should be accepted: %v", err)
	}
	if _, err := reg.Build(Set{"message": []string{"fix", "typo"}}); err != nil {
		t.Fatalf("list message should be accepted: %v", err)
	}
}

func TestBuildConvertsNamedIntegers(t *testing.T) {
	q, err := NewDefaultRegistry().Build(Set{"types": []opKind{1, 3}})
	if err != nil {
		t.Fatal(err)
	}
	if len(q.Args) != 2 || q.Args[0] != int64(1) || q.Args[1] != int64(3) {
		t.Fatalf("unexpected args: %#v", q.Args)
	}
	if _, err := NewDefaultRegistry().Build(Set{"types": []string{"commit"}}); err == nil {
		t.Fatal("expected type error for string operation types")
	}
}

func TestBuildJoinsTablesOnce(t *testing.T) {
	q, err := NewDefaultRegistry().Build(Set{
		"branches": []string{"main"},
		"labels":   []string{"main"},
		"paths":    []string{"/src"},
		"vcs":      []string{"git"},
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, alias := range []string{" oi ON", " ir ON", " r ON"} {
		if n := strings.Count(q.From, alias); n != 1 {
			t.Fatalf("expected %q joined once, got %d in %q", alias, n, q.From)
		}
	}
	if strings.Contains(q.From, "operation_labels") {
		t.Fatalf("label filters must not join labels into the outer query: %q", q.From)
	}
	if !strings.Contains(q.Where, "ir.path LIKE ?") {
		t.Fatalf("expected path prefix predicate in %q", q.Where)
	}
	found := false
	for _, a := range q.Args {
		if a == "/src/%" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected directory prefix arg, got %#v", q.Args)
	}
}

func TestBuildDates(t *testing.T) {
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	q, err := NewDefaultRegistry().Build(Set{"date_lower": at, "date_upper": at.Unix() + 60})
	if err != nil {
		t.Fatal(err)
	}
	if len(q.Args) != 2 || q.Args[0] != at.Unix() || q.Args[1] != at.Unix()+60 {
		t.Fatalf("unexpected args: %#v", q.Args)
	}
}

func TestBuildUserRelation(t *testing.T) {
	reg := NewDefaultRegistry()
	q, err := reg.Build(Set{"user_relation": RelationUnassociated})
	if err != nil {
		t.Fatal(err)
	}
	if q.Where != "(op.uid = 0)" {
		t.Fatalf("unexpected where: %q", q.Where)
	}
	if _, err := reg.Build(Set{"user_relation": "sometimes"}); err == nil {
		t.Fatal("expected invalid relation to fail")
	}
}

func TestRegisterCustomConstraint(t *testing.T) {
	reg := NewDefaultRegistry()
	err := reg.Register("svn_only", Info{
		Cardinality: Single,
		Join:        func(b *Builder) { b.Join("repositories", "r", "r.repo_id = op.repo_id") },
		Apply: func(b *Builder, values []any) error {
			b.Where("r.vcs = ?", "svn")
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := reg.Register("svn_only", Info{Apply: func(*Builder, []any) error { return nil }}); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
	q, err := reg.Build(Set{"svn_only": true, "vcs": []string{"git"}})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(q.From, " r ON") != 1 {
		t.Fatalf("expected a single repositories join, got %q", q.From)
	}
}

func TestPages(t *testing.T) {
	if All().Limited() {
		t.Fatal("All should be unrestricted")
	}
	if p := Range(-5, -1); p.Offset != 0 || p.Limit != 0 || !p.Limited() {
		t.Fatalf("unexpected clamped range: %+v", p)
	}
	if p := Pager(2, 25); p.Offset != 50 || p.Limit != 25 {
		t.Fatalf("unexpected pager: %+v", p)
	}
}

func TestLabelConstraintsAreIndependent(t *testing.T) {
	q, err := NewDefaultRegistry().Build(Set{
		"branches":  []string{"main"},
		"tags":      []string{"v1", "v2"},
		"label_ids": []int64{7},
	})
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(q.Where, "EXISTS (SELECT 1 FROM operation_labels sol"); n != 3 {
		t.Fatalf("expected one subquery per label constraint, got %d in %q", n, q.Where)
	}
	if !strings.Contains(q.Where, "sl.type = ? AND sl.name = ?") || !strings.Contains(q.Where, "sl.type = ? AND sl.name IN (?, ?)") {
		t.Fatalf("unexpected label predicates: %q", q.Where)
	}
	if q.From != "operations op" {
		t.Fatalf("unexpected joins: %q", q.From)
	}
}

func TestPathPrefixEscapesWildcards(t *testing.T) {
	q, err := NewDefaultRegistry().Build(Set{"paths": []string{`/a_b%c\d/`}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(q.Where, `ir.path LIKE ? ESCAPE '\'`) {
		t.Fatalf("missing ESCAPE clause in %q", q.Where)
	}
	want := []any{`/a_b%c\d/`, `/a\_b\%c\\d/%`}
	if !reflect.DeepEqual(q.Args, want) {
		t.Fatalf("args = %#v, want %#v", q.Args, want)
	}
}
