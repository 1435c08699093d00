package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/prompt"
)

const schemaVersion = 1

const (
	TransportHTTP = "http"
	TransportSDK  = "sdk"

	DefaultModelID      = "gemini-pro"
	DefaultVariantCount = 1
	MaxVariantCount     = 10
)

type Settings struct {
	SchemaVersion       int         `json:"schema_version"`
	DefaultTone         prompt.Tone `json:"default_tone"`
	DefaultVariantCount int         `json:"default_variant_count"`
	ModelID             string      `json:"model_id"`
	Transport           string      `json:"transport"`
	BaseURL             string      `json:"base_url,omitempty"`
}

type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Load() (*Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, err
	}
	backfillSettings(&settings)
	return &settings, nil
}

func (s *Store) Save(settings *Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	backfillSettings(settings)
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

func (s *Store) Update(fn func(*Settings)) (*Settings, error) {
	settings, err := s.Load()
	if err != nil {
		return nil, err
	}
	fn(settings)
	return settings, s.Save(settings)
}

func Default() *Settings {
	return &Settings{
		SchemaVersion:       schemaVersion,
		DefaultTone:         prompt.DefaultTone,
		DefaultVariantCount: DefaultVariantCount,
		ModelID:             DefaultModelID,
		Transport:           TransportHTTP,
	}
}

func backfillSettings(settings *Settings) {
	if settings.SchemaVersion == 0 {
		settings.SchemaVersion = schemaVersion
	}
	tone, err := prompt.ParseTone(string(settings.DefaultTone))
	if err != nil {
		tone = prompt.DefaultTone
	}
	settings.DefaultTone = tone
	if settings.DefaultVariantCount < 1 {
		settings.DefaultVariantCount = DefaultVariantCount
	}
	if settings.DefaultVariantCount > MaxVariantCount {
		settings.DefaultVariantCount = MaxVariantCount
	}
	settings.ModelID = strings.TrimSpace(settings.ModelID)
	if settings.ModelID == "" {
		settings.ModelID = DefaultModelID
	}
	settings.Transport = normalizeTransport(settings.Transport)
	settings.BaseURL = strings.TrimRight(strings.TrimSpace(settings.BaseURL), "/")
}

func normalizeTransport(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case TransportSDK:
		return TransportSDK
	default:
		return TransportHTTP
	}
}
