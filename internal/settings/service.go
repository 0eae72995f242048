// Package settings owns persistence of the last-used generation
// configuration, globally and per model. Storage failures degrade to
// in-memory behavior for the session; they never surface as generation
// failures.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"clipforge/internal/models"
	"clipforge/internal/storage"
	"clipforge/pkg/logger"
)

const (
	keyGenerationSettings = "settings:generation"
	keyModelPrefix        = "settings:model:"
)

// StorageError reports a persistence read/write failure. Callers log
// and continue; the in-memory copy stays authoritative for the session.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("settings storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Service is the settings store. A nil KV runs the service purely in
// memory, which is also the fallback when the backend errors mid-session.
type Service struct {
	kv storage.KV

	mu       sync.RWMutex
	global   *models.GenerationSettings
	perModel map[string]models.ModelSettings
}

func NewService(kv storage.KV) *Service {
	return &Service{
		kv:       kv,
		perModel: make(map[string]models.ModelSettings),
	}
}

// Load returns the last-used settings, falling back to the session
// copy and then to documented defaults. Never fails.
func (s *Service) Load(ctx context.Context) models.GenerationSettings {
	s.mu.RLock()
	cached := s.global
	s.mu.RUnlock()
	if cached != nil {
		return cloneSettings(*cached)
	}

	if s.kv != nil {
		data, err := s.kv.Get(ctx, keyGenerationSettings)
		switch {
		case err == nil:
			var loaded models.GenerationSettings
			if jsonErr := json.Unmarshal(data, &loaded); jsonErr != nil {
				logger.Log.Warn("stored generation settings unreadable, using defaults",
					zap.Error(jsonErr))
				break
			}
			s.mu.Lock()
			copied := cloneSettings(loaded)
			s.global = &copied
			s.mu.Unlock()
			return cloneSettings(loaded)
		case err == storage.ErrNotFound:
			// First run, defaults apply
		default:
			logger.Log.Warn("settings storage unavailable, continuing in memory",
				zap.Error(err))
		}
	}

	return models.DefaultGenerationSettings()
}

// Save persists the full settings object, last write wins. The session
// copy is updated before the write so a storage failure never loses
// the caller's state.
func (s *Service) Save(ctx context.Context, settings models.GenerationSettings) error {
	s.mu.Lock()
	copied := cloneSettings(settings)
	s.global = &copied
	s.mu.Unlock()

	if s.kv == nil {
		return nil
	}

	data, err := json.Marshal(settings)
	if err != nil {
		return &StorageError{Op: "marshal", Err: err}
	}
	if err := s.kv.Set(ctx, keyGenerationSettings, data); err != nil {
		logger.Log.Warn("failed to persist generation settings", zap.Error(err))
		return &StorageError{Op: "write", Err: err}
	}
	return nil
}

// ModelSettings returns the saved per-model override, or nil when the
// model has no record
func (s *Service) ModelSettings(ctx context.Context, model string) (*models.ModelSettings, error) {
	s.mu.RLock()
	cached, ok := s.perModel[model]
	s.mu.RUnlock()
	if ok {
		copied := cloneModelSettings(cached)
		return &copied, nil
	}

	if s.kv == nil {
		return nil, nil
	}

	data, err := s.kv.Get(ctx, keyModelPrefix+model)
	if err == storage.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		logger.Log.Warn("failed to read model settings",
			zap.String("model", model), zap.Error(err))
		return nil, &StorageError{Op: "read", Err: err}
	}

	var loaded models.ModelSettings
	if err := json.Unmarshal(data, &loaded); err != nil {
		logger.Log.Warn("stored model settings unreadable",
			zap.String("model", model), zap.Error(err))
		return nil, nil
	}

	s.mu.Lock()
	s.perModel[model] = cloneModelSettings(loaded)
	s.mu.Unlock()

	return &loaded, nil
}

// SaveModelSettings upserts one model's override record. Other models'
// records are never touched.
func (s *Service) SaveModelSettings(ctx context.Context, model string, ms models.ModelSettings) error {
	s.mu.Lock()
	s.perModel[model] = cloneModelSettings(ms)
	s.mu.Unlock()

	if s.kv == nil {
		return nil
	}

	data, err := json.Marshal(ms)
	if err != nil {
		return &StorageError{Op: "marshal", Err: err}
	}
	if err := s.kv.Set(ctx, keyModelPrefix+model, data); err != nil {
		logger.Log.Warn("failed to persist model settings",
			zap.String("model", model), zap.Error(err))
		return &StorageError{Op: "write", Err: err}
	}
	return nil
}

// ApplyModelSettings merges a model's override onto the current
// settings. Only preset, params and LoRAs move; server and provider
// stay untouched.
func ApplyModelSettings(settings models.GenerationSettings, ms models.ModelSettings) models.GenerationSettings {
	merged := cloneSettings(settings)
	if ms.SelectedPreset != "" {
		merged.SelectedPreset = ms.SelectedPreset
	}
	merged.GenerationParams = ms.GenerationParams
	merged.AdvancedParams = ms.AdvancedParams
	merged.LoRAs = append([]models.LoRASelection(nil), ms.LoRAs...)
	return merged
}

func cloneSettings(s models.GenerationSettings) models.GenerationSettings {
	copied := s
	copied.SelectedModels = append([]string(nil), s.SelectedModels...)
	copied.LoRAs = append([]models.LoRASelection(nil), s.LoRAs...)
	return copied
}

func cloneModelSettings(ms models.ModelSettings) models.ModelSettings {
	copied := ms
	copied.LoRAs = append([]models.LoRASelection(nil), ms.LoRAs...)
	return copied
}
