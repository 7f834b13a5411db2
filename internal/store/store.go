package store

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/zombar/litmatrix/internal/models"
	"github.com/zombar/litmatrix/internal/normalizer"
)

// Entry names
const (
	KeyDraft      = "draft"
	KeyResult     = "analysis_result"
	KeyCredential = "api_key"
	KeyExpertMode = "expert_mode"
)

// KV is a namespaced string key-value backend
type KV interface {
	Get(namespace, key string) (string, bool, error)
	Set(namespace, key, value string) error
	Delete(namespace, key string) error
	DeleteNamespace(namespace string) error
}

// Store is the persistence surface of one session.
// Reads degrade to "absent" and writes never fail the caller; backend errors are logged.
type Store struct {
	kv        KV
	namespace string
	logger    *slog.Logger
}

// New scopes kv to namespace
func New(kv KV, namespace string) *Store {
	return &Store{
		kv:        kv,
		namespace: namespace,
		logger:    slog.Default().With("component", "store", "namespace", namespace),
	}
}

// Namespace returns the scope this store writes to
func (s *Store) Namespace() string {
	return s.namespace
}

// Get returns the raw value for key
func (s *Store) Get(key string) (string, bool) {
	value, ok, err := s.kv.Get(s.namespace, key)
	if err != nil {
		s.logger.Warn("failed to read entry", "key", key, "error", err)
		return "", false
	}
	return value, ok
}

// Set writes key, logging failures
func (s *Store) Set(key, value string) {
	if err := s.kv.Set(s.namespace, key, value); err != nil {
		s.logger.Warn("failed to write entry", "key", key, "error", err)
	}
}

// Remove deletes key, logging failures
func (s *Store) Remove(key string) {
	if err := s.kv.Delete(s.namespace, key); err != nil {
		s.logger.Warn("failed to remove entry", "key", key, "error", err)
	}
}

// ClearAll removes every entry of this namespace
func (s *Store) ClearAll() {
	if err := s.kv.DeleteNamespace(s.namespace); err != nil {
		s.logger.Warn("failed to clear namespace", "error", err)
	}
}

// GetJSON decodes key into v. A blob that fails to decode is discarded and reported absent.
func (s *Store) GetJSON(key string, v any) bool {
	raw, ok := s.Get(key)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		s.logger.Warn("discarding corrupt entry", "key", key, "error", err)
		s.Remove(key)
		return false
	}
	return true
}

// SetJSON encodes v under key
func (s *Store) SetJSON(key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("failed to encode entry", "key", key, "error", err)
		return
	}
	s.Set(key, string(data))
}

// Draft returns the saved draft, or an empty one
func (s *Store) Draft() models.Draft {
	var d models.Draft
	if !s.GetJSON(KeyDraft, &d) {
		return models.Draft{Evidence: []models.EvidenceItem{}}
	}
	if d.Evidence == nil {
		d.Evidence = []models.EvidenceItem{}
	}
	return d
}

// SaveDraft persists the draft
func (s *Store) SaveDraft(d models.Draft) {
	s.SetJSON(KeyDraft, d)
}

// Result returns the last persisted analysis, re-normalized so older shapes stay complete
func (s *Store) Result() (*models.AnalysisResult, bool) {
	raw, ok := s.Get(KeyResult)
	if !ok {
		return nil, false
	}
	result, err := normalizer.Normalize(raw)
	if err != nil {
		s.logger.Warn("discarding corrupt entry", "key", KeyResult, "error", err)
		s.Remove(KeyResult)
		return nil, false
	}
	return result, true
}

// SaveResult persists r
func (s *Store) SaveResult(r *models.AnalysisResult) {
	s.SetJSON(KeyResult, r)
}

// RemoveResult forgets the persisted analysis
func (s *Store) RemoveResult() {
	s.Remove(KeyResult)
}

// Credential returns the user supplied API key, if any
func (s *Store) Credential() string {
	key, _ := s.Get(KeyCredential)
	return key
}

// SetCredential stores key; an empty key clears it
func (s *Store) SetCredential(key string) {
	if key == "" {
		s.Remove(KeyCredential)
		return
	}
	s.Set(KeyCredential, key)
}

// ExpertMode reports the stored expert flag
func (s *Store) ExpertMode() bool {
	v, _ := s.Get(KeyExpertMode)
	return v == "true"
}

// SetExpertMode stores the expert flag
func (s *Store) SetExpertMode(on bool) {
	if on {
		s.Set(KeyExpertMode, "true")
		return
	}
	s.Set(KeyExpertMode, "false")
}

// MemoryKV is an in-process KV
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string]map[string]string
}

// NewMemoryKV creates an empty in-memory KV
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]map[string]string)}
}

func (m *MemoryKV) Get(namespace, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[namespace][key]
	return v, ok, nil
}

func (m *MemoryKV) Set(namespace, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.data[namespace]
	if !ok {
		ns = make(map[string]string)
		m.data[namespace] = ns
	}
	ns[key] = value
	return nil
}

func (m *MemoryKV) Delete(namespace, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data[namespace], key)
	return nil
}

func (m *MemoryKV) DeleteNamespace(namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, namespace)
	return nil
}
