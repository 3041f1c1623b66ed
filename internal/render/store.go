package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/cabinet-quote/internal/quote"
)

// StoredDocument is a rendered document and its metadata.
type StoredDocument struct {
	Meta      quote.Document `json:"meta"`
	Reference string         `json:"reference"`
	Content   []byte         `json:"-"`
}

// DocumentStore keeps rendered documents for a bounded time. Get returns
// quote.ErrDocumentNotFound for unknown or expired ids.
type DocumentStore interface {
	Put(ctx context.Context, doc StoredDocument, ttl time.Duration) error
	Get(ctx context.Context, id string) (StoredDocument, error)
}

// MemoryDocumentStore keeps documents in process memory.
type MemoryDocumentStore struct {
	mu   sync.Mutex
	docs map[string]memoryDoc
	now  func() time.Time
}

type memoryDoc struct {
	doc     StoredDocument
	expires time.Time
}

// NewMemoryDocumentStore constructs an empty in-memory store.
func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{docs: make(map[string]memoryDoc), now: time.Now}
}

// Put stores doc until ttl elapses. Expired entries are swept on write.
func (s *MemoryDocumentStore) Put(_ context.Context, doc StoredDocument, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, d := range s.docs {
		if !now.Before(d.expires) {
			delete(s.docs, id)
		}
	}
	s.docs[doc.Meta.ID] = memoryDoc{doc: doc, expires: now.Add(ttl)}
	return nil
}

// Get returns a live document.
func (s *MemoryDocumentStore) Get(_ context.Context, id string) (StoredDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok || !s.now().Before(d.expires) {
		delete(s.docs, id)
		return StoredDocument{}, quote.ErrDocumentNotFound
	}
	return d.doc, nil
}

// RedisDocumentStore keeps documents in Redis hashes that expire with the TTL.
type RedisDocumentStore struct {
	Client *redis.Client
	Prefix string
}

const (
	fieldMeta    = "meta"
	fieldContent = "content"
)

func (s RedisDocumentStore) key(id string) string {
	prefix := s.Prefix
	if prefix == "" {
		prefix = "quote:pdf"
	}
	return prefix + ":" + id
}

// Put stores doc atomically with its expiry.
func (s RedisDocumentStore) Put(ctx context.Context, doc StoredDocument, ttl time.Duration) error {
	meta, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("render: encode document meta: %w", err)
	}
	key := s.key(doc.Meta.ID)
	pipe := s.Client.TxPipeline()
	pipe.HSet(ctx, key, fieldMeta, meta, fieldContent, doc.Content)
	pipe.PExpire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("render: store document %s: %w", doc.Meta.ID, err)
	}
	return nil
}

// Get loads a document.
func (s RedisDocumentStore) Get(ctx context.Context, id string) (StoredDocument, error) {
	vals, err := s.Client.HMGet(ctx, s.key(id), fieldMeta, fieldContent).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return StoredDocument{}, fmt.Errorf("render: load document %s: %w", id, err)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return StoredDocument{}, quote.ErrDocumentNotFound
	}
	meta, _ := vals[0].(string)
	content, _ := vals[1].(string)
	var doc StoredDocument
	if err := json.Unmarshal([]byte(meta), &doc); err != nil {
		return StoredDocument{}, fmt.Errorf("render: decode document %s: %w", id, err)
	}
	doc.Content = []byte(content)
	return doc, nil
}
