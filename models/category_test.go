package models

import "testing"

func TestCategoryTreeLink(t *testing.T) {
	tree := NewCategoryTree()
	root, _ := tree.Add("أنظمة")
	child, _ := tree.Add("نظام العمل")

	if err := tree.Link(child, root); err != nil {
		t.Fatalf("unexpected error linking child under root: %v", err)
	}
	got := tree.Children(root)
	if len(got) != 1 || got[0] != child {
		t.Errorf("expected children [%d], got %v", child, got)
	}
}

func TestCategoryTreeRejectsCycles(t *testing.T) {
	tree := NewCategoryTree()
	a, _ := tree.Add("a")
	b, _ := tree.Add("b")
	c, _ := tree.Add("c")

	if err := tree.Link(b, a); err != nil {
		t.Fatalf("link b under a: %v", err)
	}
	if err := tree.Link(c, b); err != nil {
		t.Fatalf("link c under b: %v", err)
	}

	if err := tree.Link(a, a); err == nil {
		t.Error("expected self-link to be rejected")
	}
	if err := tree.Link(a, c); err == nil {
		t.Error("expected a -> c link to be rejected as a cycle")
	}
	// the tree is unchanged after the rejected link
	if tree.Get(a).ParentID != nil {
		t.Error("rejected link must not mutate the tree")
	}
}

func TestCategoryTreeAddEmptyName(t *testing.T) {
	tree := NewCategoryTree()
	if _, err := tree.Add(""); err == nil {
		t.Error("expected error for empty category name")
	}
}

func TestCategoryTreeLinkUnknownIDs(t *testing.T) {
	tree := NewCategoryTree()
	id, _ := tree.Add("root")
	if err := tree.Link(id, 42); err == nil {
		t.Error("expected error for unknown parent")
	}
	if err := tree.Link(42, id); err == nil {
		t.Error("expected error for unknown child")
	}
}
