package trigger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/karrick/godirwalk"
)

// MockFileSystemWalker implements FileSystemWalker for testing
type MockFileSystemWalker struct {
	WalkFunc func(root string, options *godirwalk.Options) error
}

func (m *MockFileSystemWalker) Walk(root string, options *godirwalk.Options) error {
	if m.WalkFunc != nil {
		return m.WalkFunc(root, options)
	}
	return nil
}

// MockFileReader implements FileReader for testing
type MockFileReader struct {
	Files map[string]string
}

func (m *MockFileReader) ReadFile(filename string) ([]byte, error) {
	if s, ok := m.Files[filename]; ok {
		return []byte(s), nil
	}
	return nil, errors.New("file not found")
}

func TestDirSource_Mocked(t *testing.T) {
	root, _ := filepath.Abs("/docs")
	paths := []string{
		filepath.Join(root, "b.md"),
		filepath.Join(root, "a.txt"),
		filepath.Join(root, "image.png"),
		filepath.Join(root, "missing.md"),
	}
	d := &DirSource{
		Root: root,
		Walker: &MockFileSystemWalker{WalkFunc: func(r string, opts *godirwalk.Options) error {
			for _, p := range paths {
				if err := opts.Callback(p, nil); err != nil {
					return err
				}
			}
			return nil
		}},
		FileReader: &MockFileReader{Files: map[string]string{
			paths[0]: "# B",
			paths[1]: "a text",
			paths[2]: "binary",
		}},
	}

	docs, err := d.Documents(context.Background())
	if err != nil {
		t.Fatalf("Documents() error: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("len(docs) = %d, want 2: %+v", len(docs), docs)
	}
	if !strings.HasSuffix(docs[0].URL, "/a.txt") || docs[0].Text != "a text" {
		t.Errorf("docs[0] = %+v", docs[0])
	}
	if !strings.HasSuffix(docs[1].URL, "/b.md") {
		t.Errorf("docs[1] = %+v", docs[1])
	}
	for _, doc := range docs {
		if DomainOf(doc.URL) != "localhost" {
			t.Errorf("DomainOf(%q) = %q, want localhost", doc.URL, DomainOf(doc.URL))
		}
	}
}

func TestDirSource_WalkError(t *testing.T) {
	d := &DirSource{
		Root:       "/docs",
		Walker:     &MockFileSystemWalker{WalkFunc: func(string, *godirwalk.Options) error { return errors.New("boom") }},
		FileReader: &MockFileReader{},
	}
	if _, err := d.Documents(context.Background()); err == nil {
		t.Fatal("expected walk error")
	}
}

func TestDirSource_RealFiles(t *testing.T) {
	root := t.TempDir()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(os.MkdirAll(filepath.Join(root, "guide"), 0o755))
	must(os.MkdirAll(filepath.Join(root, ".git"), 0o755))
	must(os.WriteFile(filepath.Join(root, "guide", "intro.md"), []byte("## Intro\nhello"), 0o644))
	must(os.WriteFile(filepath.Join(root, "notes.txt"), []byte("notes"), 0o644))
	must(os.WriteFile(filepath.Join(root, ".git", "HEAD.md"), []byte("skip"), 0o644))
	must(os.WriteFile(filepath.Join(root, "main.go"), []byte("package main"), 0o644))

	docs, err := NewDirSource(root).Documents(context.Background())
	if err != nil {
		t.Fatalf("Documents() error: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("len(docs) = %d, want 2: %+v", len(docs), docs)
	}
	if !strings.HasPrefix(docs[0].URL, "file://localhost/") {
		t.Errorf("URL = %q, want file://localhost/ prefix", docs[0].URL)
	}
}
