package resolver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	v1alpha1 "stagehand/pkg/apis/stagehand/v1alpha1"
)

// ErrReferenceNotFound reports that a repository, path or ref does not
// exist. This is a configuration error: the caller surfaces it immediately
// instead of retrying.
var ErrReferenceNotFound = errors.New("source reference not found")

// FetchResult is what a Fetcher learned about a source reference.
type FetchResult struct {
	// Rev is the commit the reference resolved to.
	Rev string

	// Manifest is the parsed dependency manifest found at the source path,
	// or nil if the tree carries none.
	Manifest *Manifest
}

// Fetcher provides read-only repository access: confirm a source reference
// exists, resolve its revision and read any nested dependency manifest.
// Implementations must be safe for concurrent use.
type Fetcher interface {
	Fetch(ctx context.Context, src v1alpha1.SourceReference) (*FetchResult, error)
}

// LocalFetcher resolves source references against a directory tree on the
// local filesystem, mapping a repository URL to a subdirectory by its last
// path element. Used for local development and tests; real repository
// access is an external collaborator behind the same interface.
type LocalFetcher struct {
	// Root is the directory holding one subdirectory per repository.
	Root string
}

// NewLocalFetcher returns a fetcher rooted at dir.
func NewLocalFetcher(dir string) *LocalFetcher {
	return &LocalFetcher{Root: dir}
}

// Fetch implements Fetcher against the local tree. The revision is a
// content hash of the manifest (or of the source locator when no manifest
// exists), so a changed tree yields a changed rev.
func (f *LocalFetcher) Fetch(ctx context.Context, src v1alpha1.SourceReference) (*FetchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir := filepath.Join(f.Root, filepath.Base(src.Repo), src.Path)
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s path %q", ErrReferenceNotFound, src.Repo, src.Path)
		}
		return nil, fmt.Errorf("fetching %s: %w", src.Repo, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s path %q is not a directory", ErrReferenceNotFound, src.Repo, src.Path)
	}

	result := &FetchResult{}

	data, err := os.ReadFile(filepath.Join(dir, ManifestFileName))
	switch {
	case err == nil:
		manifest, err := ParseManifest(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", src.Repo, err)
		}
		result.Manifest = manifest
		result.Rev = contentRev(data)
	case os.IsNotExist(err):
		result.Rev = contentRev([]byte(src.Repo + "\x00" + src.Path + "\x00" + src.Ref))
	default:
		return nil, fmt.Errorf("fetching %s: %w", src.Repo, err)
	}

	return result, nil
}

func contentRev(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:12]
}
