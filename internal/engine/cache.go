package engine

import (
	"context"
	"gitops-replacer/internal/repository"
	"sync"

	"golang.org/x/sync/singleflight"
)

// fileCache holds the files read during one run, keyed by repository.Ref.Key.
// A file is read from the client at most once; failed reads are not cached.
type fileCache struct {
	client repository.Client
	group  singleflight.Group

	mu    sync.Mutex
	files map[string]repository.File
}

func newFileCache(client repository.Client) *fileCache {
	return &fileCache{
		client: client,
		files:  make(map[string]repository.File),
	}
}

func (c *fileCache) get(ctx context.Context, ref repository.Ref) (repository.File, error) {
	key := ref.Key()
	if f, ok := c.lookup(key); ok {
		return f, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if f, ok := c.lookup(key); ok {
			return f, nil
		}
		f, err := c.client.GetFileContent(ctx, ref)
		if err != nil {
			return nil, err
		}
		c.store(key, f)
		return f, nil
	})
	if err != nil {
		return repository.File{}, err
	}
	return v.(repository.File), nil
}

func (c *fileCache) lookup(key string) (repository.File, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.files[key]
	return f, ok
}

// store replaces the cached file. After a write the engine stores the written
// content so later targets in the same file patch on top of it.
func (c *fileCache) store(key string, f repository.File) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files[key] = f
}

// forget drops a cached file so the next get reads it again.
func (c *fileCache) forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.files, key)
}
