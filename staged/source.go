package staged

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/boyter/gocodewalker"
)

// Kind tells node files from relationship files.
type Kind int

// File kinds.
const (
	KindNodes Kind = iota
	KindRelationships
)

func (k Kind) String() string {
	if k == KindRelationships {
		return RelationshipsDir
	}

	return NodesDir
}

// File is a staged file found by a Source.
type File struct {
	Kind Kind

	// Name is the base name of the file; it becomes the group name.
	Name string

	// Location is the source-specific path used to open the file.
	Location string
}

// Source lists and opens staged files.
type Source interface {
	// Files lists the staged files of the given kind.
	Files(ctx context.Context, kind Kind) ([]File, error)

	// Open opens a file returned by Files.
	Open(ctx context.Context, f File) (io.ReadCloser, error)
}

// DirSource reads a stage from a local directory. .gitignore and .ignore
// files below the directory are honoured.
type DirSource struct {
	Root string
}

var _ Source = (*DirSource)(nil)

// Files implements Source. A missing subdirectory yields no files.
func (s *DirSource) Files(_ context.Context, kind Kind) ([]File, error) {
	root := filepath.Join(s.Root, kind.String())

	info, err := os.Stat(root)
	if os.IsNotExist(err) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("staged: %w", err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("staged: %s is not a directory", root)
	}

	queue := make(chan *gocodewalker.File, 100)

	walker := gocodewalker.NewFileWalker(root, queue)
	walker.AllowListExtensions = []string{"csv"}

	// The walker reports errors from its directory goroutines; keep the first.
	var (
		walkErr error
		errMu   sync.Mutex
	)

	walker.SetErrorHandler(func(e error) bool {
		errMu.Lock()
		defer errMu.Unlock()

		if walkErr == nil {
			walkErr = e
		}

		return true
	})

	var (
		files []File
		wg    sync.WaitGroup
	)

	wg.Add(1)

	go func() {
		defer wg.Done()

		for f := range queue {
			files = append(files, File{Kind: kind, Name: f.Filename, Location: f.Location})
		}
	}()

	if err := walker.Start(); err != nil {
		return nil, fmt.Errorf("staged: walking %s: %w", root, err)
	}

	wg.Wait()

	errMu.Lock()
	defer errMu.Unlock()

	if walkErr != nil {
		return nil, fmt.Errorf("staged: walking %s: %w", root, walkErr)
	}

	return files, nil
}

// Open implements Source.
func (s *DirSource) Open(_ context.Context, f File) (io.ReadCloser, error) {
	return os.Open(f.Location)
}
