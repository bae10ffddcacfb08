package structure

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/vanderheijden86/espalier/pkg/model"
)

func fsFixture(t *testing.T) (string, *FSProvider) {
	t.Helper()
	dir := t.TempDir()
	for _, sub := range []string{"src", "docs", ".git"} {
		if err := os.Mkdir(filepath.Join(dir, sub), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	for _, name := range []string{"README.md", "src/main.go", ".hidden"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	p, err := NewFSProvider(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, p
}

func TestFSProviderChildrenDirsFirst(t *testing.T) {
	dir, p := fsFixture(t)
	children, err := p.Children(p.Root())
	if err != nil {
		t.Fatalf("Children failed: %v", err)
	}
	want := []model.NodeID{
		model.NodeID(filepath.Join(dir, "docs")),
		model.NodeID(filepath.Join(dir, "src")),
		model.NodeID(filepath.Join(dir, "README.md")),
	}
	if len(children) != len(want) {
		t.Fatalf("expected %v, got %v", want, children)
	}
	for i := range want {
		if children[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, children)
		}
	}
}

func TestFSProviderShowHidden(t *testing.T) {
	dir, p := fsFixture(t)
	p.ShowHidden = true
	children, err := p.Children(p.Root())
	if err != nil {
		t.Fatalf("Children failed: %v", err)
	}
	hidden := model.NodeID(filepath.Join(dir, ".hidden"))
	found := false
	for _, child := range children {
		if child == hidden {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %s in %v", hidden, children)
	}
}

func TestFSProviderDescribe(t *testing.T) {
	dir, p := fsFixture(t)

	file := model.NodeID(filepath.Join(dir, "README.md"))
	payload, err := p.Describe(file)
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if payload.Name != "README.md" || !payload.Leaf {
		t.Errorf("unexpected file payload %+v", payload)
	}
	if payload.File != string(file) {
		t.Errorf("expected backing file %q, got %q", file, payload.File)
	}

	sub, err := p.Describe(model.NodeID(filepath.Join(dir, "src")))
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if sub.Leaf {
		t.Error("directories must not be leaves")
	}
}

func TestFSProviderVersionTracksContent(t *testing.T) {
	dir, p := fsFixture(t)
	file := model.NodeID(filepath.Join(dir, "README.md"))
	before, err := p.Describe(file)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(string(file), []byte("different content"), 0o644); err != nil {
		t.Fatal(err)
	}
	after, err := p.Describe(file)
	if err != nil {
		t.Fatal(err)
	}
	if after.Version == before.Version {
		t.Error("expected version change after rewrite with a different size")
	}
}

func TestFSProviderGone(t *testing.T) {
	dir, p := fsFixture(t)
	missing := model.NodeID(filepath.Join(dir, "nope"))
	if _, err := p.Children(missing); !errors.Is(err, ErrNodeGone) {
		t.Errorf("expected ErrNodeGone, got %v", err)
	}
	if _, err := p.Describe(missing); !errors.Is(err, ErrNodeGone) {
		t.Errorf("expected ErrNodeGone, got %v", err)
	}
}

func TestFSProviderFileHasNoChildren(t *testing.T) {
	dir, p := fsFixture(t)
	children, err := p.Children(model.NodeID(filepath.Join(dir, "README.md")))
	if err != nil {
		t.Fatalf("Children failed: %v", err)
	}
	if len(children) != 0 {
		t.Errorf("expected no children for a file, got %v", children)
	}
}
