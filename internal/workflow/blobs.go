package workflow

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// BlobPrefix is the path under which ephemeral blobs are served.
const BlobPrefix = "/blobs/"

// Blob is captured audio held in process memory.
type Blob struct {
	Data        []byte
	ContentType string
}

// BlobStore holds ephemeral playback blobs until they are released.
type BlobStore struct {
	mu    sync.RWMutex
	blobs map[uuid.UUID]Blob
}

// NewBlobStore creates an empty store.
func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[uuid.UUID]Blob)}
}

// Put stores b and returns its reference.
func (s *BlobStore) Put(b Blob) string {
	id := uuid.New()
	s.mu.Lock()
	s.blobs[id] = b
	s.mu.Unlock()
	return BlobPrefix + id.String()
}

// Get returns the blob stored under id.
func (s *BlobStore) Get(id uuid.UUID) (Blob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[id]
	return b, ok
}

// Resolve returns the blob behind ref when ref is one of ours.
func (s *BlobStore) Resolve(ref string) (Blob, bool) {
	id, ok := parseRef(ref)
	if !ok {
		return Blob{}, false
	}
	return s.Get(id)
}

// IsRef reports whether ref names an ephemeral blob (live or released).
func IsRef(ref string) bool {
	_, ok := parseRef(ref)
	return ok
}

// Release frees the blob behind ref. Unknown refs are ignored.
func (s *BlobStore) Release(ref string) {
	id, ok := parseRef(ref)
	if !ok {
		return
	}
	s.mu.Lock()
	delete(s.blobs, id)
	s.mu.Unlock()
}

// Len returns the number of live blobs.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

func parseRef(ref string) (uuid.UUID, bool) {
	rest, ok := strings.CutPrefix(ref, BlobPrefix)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(rest)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
