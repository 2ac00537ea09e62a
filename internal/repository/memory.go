package repository

import (
	"context"
	"sync"
)

// Memory is an in-process Client that keeps files in a map and enforces the
// same optimistic-concurrency rule as GitHub: a write must name the blob SHA
// of the current content.
type Memory struct {
	mu     sync.Mutex
	files  map[string][]byte
	denied map[string]error

	Gets []Ref
	Puts []Ref
}

func NewMemory() *Memory {
	return &Memory{
		files:  make(map[string][]byte),
		denied: make(map[string]error),
	}
}

// Set stores content under ref.
func (m *Memory) Set(ref Ref, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[ref.Key()] = []byte(content)
}

// Fail makes every operation on ref return err.
func (m *Memory) Fail(ref Ref, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.denied[ref.Key()] = err
}

// Content returns the current content of ref.
func (m *Memory) Content(ref Ref) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.files[ref.Key()]
	return string(b), ok
}

func (m *Memory) GetFileContent(ctx context.Context, ref Ref) (File, error) {
	if err := ctx.Err(); err != nil {
		return File{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Gets = append(m.Gets, ref)

	if err := m.denied[ref.Key()]; err != nil {
		return File{}, err
	}
	b, ok := m.files[ref.Key()]
	if !ok {
		return File{}, ErrNotFound
	}
	out := append([]byte(nil), b...)
	return File{Content: out, SHA: BlobSHA(out)}, nil
}

func (m *Memory) PutFileContent(ctx context.Context, ref Ref, commit Commit) (WriteResult, error) {
	if err := ctx.Err(); err != nil {
		return WriteResult{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Puts = append(m.Puts, ref)

	if err := m.denied[ref.Key()]; err != nil {
		return WriteResult{}, err
	}
	cur, ok := m.files[ref.Key()]
	if !ok {
		return WriteResult{}, ErrNotFound
	}
	if BlobSHA(cur) != commit.ExpectedSHA {
		return WriteResult{}, ErrConflict
	}
	m.files[ref.Key()] = append([]byte(nil), commit.Content...)
	return WriteResult{ContentSHA: BlobSHA(commit.Content)}, nil
}
