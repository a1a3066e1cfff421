package models

import "testing"

func TestItemKindPredicates(t *testing.T) {
	tests := []struct {
		kind                 ItemKind
		file, dir, isDeleted bool
	}{
		{kind: ItemFile, file: true},
		{kind: ItemDirectory, dir: true},
		{kind: ItemFileDeleted, file: true, isDeleted: true},
		{kind: ItemDirectoryDeleted, dir: true, isDeleted: true},
	}

	for _, tc := range tests {
		t.Run(tc.kind.String(), func(t *testing.T) {
			it := &Item{Kind: tc.kind}
			if it.IsFile() != tc.file || it.IsDirectory() != tc.dir || it.IsDeleted() != tc.isDeleted {
				t.Fatalf("%s: file=%v dir=%v deleted=%v", tc.kind, it.IsFile(), it.IsDirectory(), it.IsDeleted())
			}
		})
	}
	if ItemFile.Deleted() != ItemFileDeleted || ItemDirectoryDeleted.Deleted() != ItemDirectoryDeleted {
		t.Fatal("Deleted() returned the wrong variant")
	}
}

func TestItemMatchPath(t *testing.T) {
	tests := []struct {
		name    string
		item    Item
		pattern string
		want    bool
	}{
		{name: "file glob", item: Item{Path: "/src/main.go", Kind: ItemFile}, pattern: "/src/*.go", want: true},
		{name: "recursive glob", item: Item{Path: "/src/a/b/c.go", Kind: ItemFile}, pattern: "/src/**/*.go", want: true},
		{name: "directory trailing slash", item: Item{Path: "/docs", Kind: ItemDirectory}, pattern: "/*/", want: true},
		{name: "file never gets a trailing slash", item: Item{Path: "/docs", Kind: ItemFile}, pattern: "/*/", want: false},
		{name: "directory without slash", item: Item{Path: "/docs", Kind: ItemDirectory}, pattern: "/docs", want: true},
		{name: "no match", item: Item{Path: "/README", Kind: ItemFile}, pattern: "/src/*", want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.item.MatchPath(tc.pattern)
			if err != nil {
				t.Fatalf("MatchPath(%q): %v", tc.pattern, err)
			}
			if got != tc.want {
				t.Fatalf("MatchPath(%q) on %s = %v, want %v", tc.pattern, tc.item.Path, got, tc.want)
			}
		})
	}
}

func TestItemParentPath(t *testing.T) {
	for path, want := range map[string]string{
		"/":          "/",
		"/a":         "/",
		"/a/b/c.txt": "/a/b",
		"/a/b/":      "/a",
	} {
		if got := (&Item{Path: path}).ParentPath(); got != want {
			t.Fatalf("ParentPath(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestSelectedLabelResolvesOnce(t *testing.T) {
	var it Item
	sel := it.SelectedLabel()
	if _, ok := sel.Source(); ok {
		t.Fatal("new item should have no recipe")
	}

	sel.SetSource(FromOperation(7))
	src, ok := sel.Source()
	if !ok || src.Kind != LabelFromOperation || src.OperationID != 7 {
		t.Fatalf("recipe = %+v, %v", src, ok)
	}

	main := &Label{ID: 1, Name: "main", Kind: LabelBranch, Action: ActionModified}
	sel.Resolve(main)
	got, resolved := sel.Get()
	if !resolved || got == nil || got.Name != "main" || got.Action != ActionNone {
		t.Fatalf("resolved label = %+v, %v", got, resolved)
	}
	if _, ok := sel.Source(); ok {
		t.Fatal("recipe kept after resolution")
	}

	sel.Resolve(&Label{Name: "other"})
	sel.SetSource(FromOperation(9))
	if got, _ := sel.Get(); got.Name != "main" {
		t.Fatalf("resolution was overwritten: %+v", got)
	}
	main.Name = "changed"
	if got, _ := sel.Get(); got.Name != "main" {
		t.Fatal("resolved label aliases the caller's value")
	}
}

func TestFromOtherItemCopiesResolvedLabel(t *testing.T) {
	other := &Item{ID: 3, Path: "/a"}
	pending := FromOtherItem(other, TagSuccessorItem)
	if pending.OtherLabelResolved || pending.OtherItemID != 3 || pending.OtherItem != other {
		t.Fatalf("unresolved recipe = %+v", pending)
	}

	other.SelectedLabel().Resolve(&Label{Name: "v1", Kind: LabelTag})
	src := FromOtherItem(other, TagSourceItem)
	if !src.OtherLabelResolved || src.OtherLabel == nil || src.OtherLabel.Name != "v1" {
		t.Fatalf("resolved recipe = %+v", src)
	}
	if src.Tags[0] != TagSourceItem {
		t.Fatalf("tags = %v", src.Tags)
	}

	if empty := FromOtherItem(nil); empty.Kind != LabelFromNowhere {
		t.Fatalf("nil other item produced %+v", empty)
	}
}

func TestRepositoryAllowsUnauthorizedAccess(t *testing.T) {
	var nilRepo *Repository
	if nilRepo.AllowsUnauthorizedAccess() {
		t.Fatal("nil repository allowed unauthorized access")
	}
	if (&Repository{Data: map[string]any{"allow_unauthorized_access": "yes"}}).AllowsUnauthorizedAccess() {
		t.Fatal("non-bool flag allowed unauthorized access")
	}
	if !(&Repository{Data: map[string]any{"allow_unauthorized_access": true}}).AllowsUnauthorizedAccess() {
		t.Fatal("flag ignored")
	}
}
