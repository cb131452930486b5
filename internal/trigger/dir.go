package trigger

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog/log"
)

// FileSystemWalker defines the interface for walking directories
type FileSystemWalker interface {
	Walk(root string, options *godirwalk.Options) error
}

// FileReader defines the interface for reading files
type FileReader interface {
	ReadFile(filename string) ([]byte, error)
}

// DefaultFileSystemWalker implements FileSystemWalker using godirwalk
type DefaultFileSystemWalker struct{}

func (d *DefaultFileSystemWalker) Walk(root string, options *godirwalk.Options) error {
	return godirwalk.Walk(root, options)
}

// DefaultFileReader implements FileReader using os
type DefaultFileReader struct{}

func (d *DefaultFileReader) ReadFile(filename string) ([]byte, error) {
	return os.ReadFile(filename)
}

// textExtensions are the files a directory run picks up.
var textExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
	".text":     true,
	".rst":      true,
}

// DirSource produces documents from the text and markdown files under Root,
// standing in for the remote workflow on local runs. Each document's url is
// the file:// url of its absolute path.
type DirSource struct {
	Root       string
	Walker     FileSystemWalker
	FileReader FileReader
}

func NewDirSource(root string) *DirSource {
	return &DirSource{Root: root, Walker: &DefaultFileSystemWalker{}, FileReader: &DefaultFileReader{}}
}

// Documents walks Root and returns one document per readable text file,
// ordered by path.
func (d *DirSource) Documents(ctx context.Context) ([]Document, error) {
	root, err := filepath.Abs(d.Root)
	if err != nil {
		return nil, err
	}

	var docs []Document
	err = d.Walker.Walk(root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if de != nil && de.IsDir() {
				if shouldSkipDir(path, root) {
					return godirwalk.SkipThis
				}
				return nil
			}
			if !textExtensions[strings.ToLower(filepath.Ext(path))] {
				return nil
			}
			b, err := d.FileReader.ReadFile(path)
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("failed to read file")
				return nil
			}
			docs = append(docs, Document{URL: fileURL(path), Text: string(b)})
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].URL < docs[j].URL })
	log.Info().Str("root", root).Int("documents", len(docs)).Msg("collected local documents")
	return docs, nil
}

func shouldSkipDir(path, root string) bool {
	if path == root {
		return false
	}
	switch filepath.Base(path) {
	case ".git", "node_modules", "vendor", ".venv", "venv", "__pycache__", ".cache", ".idea":
		return true
	}
	return false
}

// fileURL gives local files a domain of "localhost" once DomainOf runs.
func fileURL(path string) string {
	u := url.URL{Scheme: "file", Host: "localhost", Path: filepath.ToSlash(path)}
	return u.String()
}
