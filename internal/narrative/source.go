package narrative

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/user/sinergia/internal/interfaces"
	"github.com/user/sinergia/internal/types"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// FileSource reads trees from <dir>/<treeID>.{json,yaml,yml}
type FileSource struct {
	dir string
}

// NewFileSource creates a file source rooted at dir
func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

var fileExtensions = []string{".json", ".yaml", ".yml"}

// FetchTree reads and decodes the tree file for treeID
func (fs *FileSource) FetchTree(ctx context.Context, treeID string) (*types.NarrativeTree, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateTreeID(treeID); err != nil {
		return nil, err
	}

	for _, ext := range fileExtensions {
		path := filepath.Join(fs.dir, treeID+ext)
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read tree file: %w", err)
		}
		return DecodeTree(treeID, data, FormatFromPath(path))
	}
	return nil, fmt.Errorf("%w: %s in %s", ErrTreeNotFound, treeID, fs.dir)
}

// DefaultMaxTreeBytes caps the size of a downloaded tree document
const DefaultMaxTreeBytes int64 = 8 << 20

// HTTPSource fetches trees as JSON from <baseURL>/<treeID>.json
type HTTPSource struct {
	baseURL  string
	client   *http.Client
	maxBytes int64
}

// NewHTTPSource creates an HTTP source; a nil client gets a timeout-bound default
func NewHTTPSource(baseURL string, client *http.Client) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSource{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   client,
		maxBytes: DefaultMaxTreeBytes,
	}
}

// FetchTree downloads and decodes the tree for treeID
func (hs *HTTPSource) FetchTree(ctx context.Context, treeID string) (*types.NarrativeTree, error) {
	if err := validateTreeID(treeID); err != nil {
		return nil, err
	}

	endpoint := hs.baseURL + "/" + url.PathEscape(treeID) + ".json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := hs.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrTreeNotFound, endpoint)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to fetch %s: %s", endpoint, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, hs.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > hs.maxBytes {
		return nil, fmt.Errorf("tree %s exceeds %d bytes", endpoint, hs.maxBytes)
	}
	return DecodeTree(treeID, data, FormatJSON)
}

// StaticSource serves trees from memory
type StaticSource map[string]*types.NarrativeTree

// FetchTree returns the tree registered under treeID
func (ss StaticSource) FetchTree(ctx context.Context, treeID string) (*types.NarrativeTree, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tree, ok := ss[treeID]
	if !ok || tree == nil {
		return nil, fmt.Errorf("%w: %s", ErrTreeNotFound, treeID)
	}
	return tree, nil
}

// CachedSource memoizes trees by id. Concurrent fetches of the same id share
// one call to the wrapped source.
type CachedSource struct {
	inner  interfaces.TreeSource
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[string]*types.NarrativeTree
	group singleflight.Group
}

// NewCachedSource wraps inner with a cache
func NewCachedSource(inner interfaces.TreeSource, logger *zap.Logger) *CachedSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedSource{
		inner:  inner,
		logger: logger,
		cache:  make(map[string]*types.NarrativeTree),
	}
}

// FetchTree returns the cached tree or fetches it once. The shared fetch is
// detached from any single caller's cancellation; each caller stops waiting
// when its own ctx is done.
func (cs *CachedSource) FetchTree(ctx context.Context, treeID string) (*types.NarrativeTree, error) {
	cs.mu.RLock()
	tree, ok := cs.cache[treeID]
	cs.mu.RUnlock()
	if ok {
		return tree, nil
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := cs.group.DoChan(treeID, func() (interface{}, error) {
		tree, err := cs.inner.FetchTree(fetchCtx, treeID)
		if err != nil {
			return nil, err
		}
		cs.mu.Lock()
		cs.cache[treeID] = tree
		cs.mu.Unlock()
		return tree, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		cs.logger.Debug("Fetched narrative tree",
			zap.String("tree_id", treeID),
			zap.Bool("shared", res.Shared))
		return res.Val.(*types.NarrativeTree), nil
	}
}

// Clear drops every cached tree
func (cs *CachedSource) Clear() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.cache = make(map[string]*types.NarrativeTree)
}

// Len returns the number of cached trees
func (cs *CachedSource) Len() int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return len(cs.cache)
}

func validateTreeID(treeID string) error {
	if strings.TrimSpace(treeID) == "" {
		return errors.New("tree id is required")
	}
	if strings.ContainsAny(treeID, `/\`) || strings.Contains(treeID, "..") {
		return fmt.Errorf("invalid tree id %q", treeID)
	}
	return nil
}
