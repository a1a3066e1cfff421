package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/marvil07/versioncontrol/internal/constraint"
	"github.com/marvil07/versioncontrol/internal/models"
)

func userOps(t *testing.T, env *testEnv, uid int64) int {
	t.Helper()
	ops, err := env.cat.Operations.Query(context.Background(), constraint.Set{
		constraint.KeyRepoIDs: []int64{env.repo.ID},
		constraint.KeyUserIDs: []int64{uid},
	}, constraint.All())
	if err != nil {
		t.Fatal(err)
	}
	return len(ops)
}

func TestAccountRenamePropagatesToOperations(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()

	for i, rev := range []string{"a1", "a2", "a3", "a4", "a5"} {
		env.commit(t, rev, i, "alice", file("/a", rev, models.ActionModified))
	}
	env.commit(t, "b1", 6, "bob", file("/b", "b1", models.ActionAdded))
	env.commit(t, "n1", 7, "alice2", file("/n", "n1", models.ActionAdded))

	if err := env.cat.Accounts.Insert(ctx, models.Account{RepoID: env.repo.ID, UserID: 10, Username: "alice"}); err != nil {
		t.Fatal(err)
	}
	if err := env.cat.Accounts.Insert(ctx, models.Account{RepoID: env.repo.ID, UserID: 20, Username: "bob"}); err != nil {
		t.Fatal(err)
	}
	if got := userOps(t, env, 10); got != 5 {
		t.Fatalf("alice owns %d operations after insert", got)
	}

	if err := env.cat.Accounts.Update(ctx, models.Account{RepoID: env.repo.ID, UserID: 10, Username: "alice2"}); err != nil {
		t.Fatal(err)
	}
	if got := userOps(t, env, 10); got != 1 {
		t.Fatalf("renamed account owns %d operations, want the single alice2 commit", got)
	}
	if got := userOps(t, env, 0); got != 5 {
		t.Fatalf("%d unattributed operations, want 5", got)
	}
	if got := userOps(t, env, 20); got != 1 {
		t.Fatalf("bob's attribution changed: %d", got)
	}

	if err := env.cat.Accounts.Delete(ctx, models.Account{RepoID: env.repo.ID, UserID: 10}); err != nil {
		t.Fatal(err)
	}
	if got := userOps(t, env, 10); got != 0 {
		t.Fatalf("deleted account still owns %d operations", got)
	}

	// Operations recorded after an account exists are attributed on insert.
	op := env.commit(t, "b2", 8, "bob", file("/b", "b2", models.ActionModified))
	if op.UserID != 20 {
		t.Fatalf("new operation uid = %d", op.UserID)
	}

	names := env.sink.names()
	var accountEvents []string
	for _, n := range names {
		if strings.HasPrefix(n, "account.") {
			accountEvents = append(accountEvents, n)
		}
	}
	want := []string{"account.insert", "account.insert", "account.update", "account.delete"}
	if len(accountEvents) != len(want) {
		t.Fatalf("account events = %v", accountEvents)
	}
	for i := range want {
		if accountEvents[i] != want[i] {
			t.Fatalf("account events = %v", accountEvents)
		}
	}
}

func TestAccountUsernameValidation(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()

	err := env.cat.Accounts.Insert(ctx, models.Account{RepoID: env.repo.ID, UserID: 1, Username: "not valid!"})
	if !errors.Is(err, ErrInvalidUsername) {
		t.Fatalf("expected ErrInvalidUsername, got %v", err)
	}
	if got := env.cat.Accounts.UsernameSuggestion(env.repo, models.User{ID: 1, Name: "Jane.Doe-Smith@Example"}); got != "janedoesmithexample" {
		t.Fatalf("suggestion = %q", got)
	}
}

func TestAccountFind(t *testing.T) {
	env := newTestEnv(t, Options{
		Authorizer: AuthorizerFunc(func(_ context.Context, _ *models.Repository, uid int64) bool { return uid != 3 }),
	})
	ctx := context.Background()
	other := &models.Repository{Name: "docs", VCS: "git"}
	if err := env.cat.Repositories.Create(ctx, other); err != nil {
		t.Fatal(err)
	}
	for _, a := range []models.Account{
		{RepoID: env.repo.ID, UserID: 1, Username: "ann"},
		{RepoID: other.ID, UserID: 1, Username: "annie"},
		{RepoID: env.repo.ID, UserID: 2, Username: "ben"},
		{RepoID: env.repo.ID, UserID: 3, Username: "cat"},
	} {
		if err := env.cat.Accounts.Insert(ctx, a); err != nil {
			t.Fatal(err)
		}
	}

	all, err := env.cat.Accounts.Find(ctx, AccountConstraints{}, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || len(all[1]) != 2 || all[1][other.ID].Username != "annie" {
		t.Fatalf("authorized accounts = %+v", all)
	}
	withHidden, err := env.cat.Accounts.Find(ctx, AccountConstraints{}, true)
	if err != nil || len(withHidden) != 3 {
		t.Fatalf("all accounts = %+v, %v", withHidden, err)
	}

	byRepo, err := env.cat.Accounts.Find(ctx, AccountConstraints{
		UsernamesByRepo: map[int64][]string{env.repo.ID: {"ben"}, other.ID: {"annie"}},
	}, false)
	if err != nil || len(byRepo) != 2 || byRepo[2][env.repo.ID].Username != "ben" {
		t.Fatalf("by repo = %+v, %v", byRepo, err)
	}

	none, err := env.cat.Accounts.Find(ctx, AccountConstraints{Usernames: []string{}}, true)
	if err != nil || len(none) != 0 {
		t.Fatalf("empty username list = %+v, %v", none, err)
	}
	if env.cat.Accounts.IsAccountAuthorized(ctx, env.repo, 0) {
		t.Fatal("uid 0 must never be authorized")
	}
}
