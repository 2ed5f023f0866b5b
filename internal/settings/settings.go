// Package settings holds the user-facing application settings and their
// persistence lifecycle.
package settings

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jwulff/debate/internal/logging"
)

// StorageKey is the key the settings record is persisted under.
const StorageKey = "ai-debate-settings"

// Enumerated setting values.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"

	ProviderOpenAI   = "openai"
	ProviderCerebras = "cerebras"
)

// Themes, Providers and Voices list the accepted values in display order.
var (
	Themes    = []string{ThemeLight, ThemeDark}
	Providers = []string{ProviderOpenAI, ProviderCerebras}
	Voices    = []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"}
)

// Numeric bounds enforced by Clamp.
const (
	MinTemperature = 0.0
	MaxTemperature = 2.0
	MinMaxTokens   = 50
	MaxMaxTokens   = 4000
)

// AppSettings is the flat settings record.
type AppSettings struct {
	Theme             string  `json:"theme"`
	AIProvider        string  `json:"aiProvider"`
	OpenAIModel       string  `json:"openaiModel"`
	CerebrasModel     string  `json:"cerebrasModel"`
	Temperature       float64 `json:"temperature"`
	MaxTokens         int     `json:"maxTokens"`
	Voice             string  `json:"voice"`
	AutoSave          bool    `json:"autoSave"`
	MarkdownEnabled   bool    `json:"markdownEnabled"`
	ShowCitations     bool    `json:"showCitations"`
	ShowTranscription bool    `json:"showTranscription"`
	RedisEnabled      bool    `json:"redisEnabled"`
}

// Defaults returns the default settings.
func Defaults() AppSettings {
	return AppSettings{
		Theme:             ThemeDark,
		AIProvider:        ProviderOpenAI,
		OpenAIModel:       "gpt-3.5-turbo",
		CerebrasModel:     "llama3.1-8b",
		Temperature:       0.7,
		MaxTokens:         500,
		Voice:             "alloy",
		AutoSave:          true,
		MarkdownEnabled:   true,
		ShowCitations:     true,
		ShowTranscription: true,
		RedisEnabled:      false,
	}
}

// Model returns the model name for the selected provider.
func (s AppSettings) Model() string {
	if s.AIProvider == ProviderCerebras {
		return s.CerebrasModel
	}
	return s.OpenAIModel
}

// Clamp returns s with numeric fields forced into their accepted ranges.
func (s AppSettings) Clamp() AppSettings {
	s.Temperature = min(max(s.Temperature, MinTemperature), MaxTemperature)
	s.MaxTokens = min(max(s.MaxTokens, MinMaxTokens), MaxMaxTokens)
	return s
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Theme             *string
	AIProvider        *string
	OpenAIModel       *string
	CerebrasModel     *string
	Temperature       *float64
	MaxTokens         *int
	Voice             *string
	AutoSave          *bool
	MarkdownEnabled   *bool
	ShowCitations     *bool
	ShowTranscription *bool
	RedisEnabled      *bool
}

// Apply returns s with the non-nil fields of p merged in.
func (p Patch) Apply(s AppSettings) AppSettings {
	if p.Theme != nil {
		s.Theme = *p.Theme
	}
	if p.AIProvider != nil {
		s.AIProvider = *p.AIProvider
	}
	if p.OpenAIModel != nil {
		s.OpenAIModel = *p.OpenAIModel
	}
	if p.CerebrasModel != nil {
		s.CerebrasModel = *p.CerebrasModel
	}
	if p.Temperature != nil {
		s.Temperature = *p.Temperature
	}
	if p.MaxTokens != nil {
		s.MaxTokens = *p.MaxTokens
	}
	if p.Voice != nil {
		s.Voice = *p.Voice
	}
	if p.AutoSave != nil {
		s.AutoSave = *p.AutoSave
	}
	if p.MarkdownEnabled != nil {
		s.MarkdownEnabled = *p.MarkdownEnabled
	}
	if p.ShowCitations != nil {
		s.ShowCitations = *p.ShowCitations
	}
	if p.ShowTranscription != nil {
		s.ShowTranscription = *p.ShowTranscription
	}
	if p.RedisEnabled != nil {
		s.RedisEnabled = *p.RedisEnabled
	}
	return s
}

// Ptr returns a pointer to v. Convenience for building patches.
func Ptr[T any](v T) *T { return &v }

// Storage is the persistence backend for the settings record.
type Storage interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// Store owns the current settings and the dirty flag.
type Store struct {
	mu       sync.RWMutex
	storage  Storage
	settings AppSettings
	dirty    bool
}

// Load reads persisted settings from storage, merging them over the defaults.
// Missing or unparseable data yields the defaults; only a storage read error
// is returned.
func Load(storage Storage) (*Store, error) {
	s := &Store{storage: storage, settings: Defaults()}

	raw, ok, err := storage.Get(StorageKey)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if !ok {
		return s, nil
	}

	merged := Defaults()
	if err := json.Unmarshal([]byte(raw), &merged); err != nil {
		logger := logging.WithComponent("settings")
		logger.Warn().Err(err).Msg("discarding unparseable settings")
		return s, nil
	}
	s.settings = merged
	return s, nil
}

// Settings returns a copy of the current settings.
func (s *Store) Settings() AppSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Dirty reports whether there are changes not yet persisted.
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// Update merges p into the current settings. With auto-save on, the result is
// persisted immediately; otherwise the store is marked dirty.
func (s *Store) Update(p Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings = p.Apply(s.settings).Clamp()
	return s.changedLocked()
}

// Save persists the current settings and clears the dirty flag.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

// Reset restores and persists the defaults.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings = Defaults()
	return s.persistLocked()
}

func (s *Store) changedLocked() error {
	if s.settings.AutoSave {
		return s.persistLocked()
	}
	s.dirty = true
	return nil
}

func (s *Store) persistLocked() error {
	data, err := json.Marshal(s.settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := s.storage.Set(StorageKey, string(data)); err != nil {
		s.dirty = true
		return fmt.Errorf("save settings: %w", err)
	}
	s.dirty = false
	return nil
}

// MemoryStorage is an in-process Storage, used when no database is available.
type MemoryStorage struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

// Get implements Storage.
func (m *MemoryStorage) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

// Set implements Storage.
func (m *MemoryStorage) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}
