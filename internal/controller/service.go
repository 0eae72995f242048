// Package controller orchestrates generation submissions: it loads and
// merges settings, resolves server state, builds requests, submits
// them to the pipeline backend and registers the resulting jobs.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"clipforge/internal/generation"
	"clipforge/internal/infra"
	"clipforge/internal/models"
	"clipforge/internal/pipeline"
	"clipforge/internal/settings"
	"clipforge/internal/tracker"
	"clipforge/internal/validate"
	"clipforge/pkg/logger"
)

// ErrSubmissionInFlight gates duplicate submissions for the same clip
// while one is still being transported
var ErrSubmissionInFlight = errors.New("a submission for this clip is already in flight")

const displayPromptLimit = 120

// SubmitInput is one generate action from the dialog
type SubmitInput struct {
	ClipID            string `json:"clip_id"`
	Prompt            string `json:"prompt"`
	NegativePrompt    string `json:"negative_prompt"`
	InputReferenceURL string `json:"input_reference_url,omitempty"`
}

// SubmittedJob pairs a backend job id with the model that produced it
type SubmittedJob struct {
	JobID string `json:"job_id"`
	Model string `json:"model"`
}

// SubmitResult lists the jobs registered for one submission; multi
// model mode yields one per selected model
type SubmitResult struct {
	Jobs []SubmittedJob `json:"jobs"`
}

// GenerationService wires the settings store, builder, pipeline client,
// server monitor and job registry together
type GenerationService struct {
	settings *settings.Service
	client   *pipeline.Client
	builder  *generation.Builder
	registry *tracker.Registry
	monitor  *infra.ServerMonitor
	poller   *tracker.Poller

	inflight sync.Map // clip id -> struct{}
}

func NewGenerationService(
	settingsService *settings.Service,
	client *pipeline.Client,
	registry *tracker.Registry,
	monitor *infra.ServerMonitor,
	poller *tracker.Poller,
) *GenerationService {
	return &GenerationService{
		settings: settingsService,
		client:   client,
		builder:  generation.NewBuilder(),
		registry: registry,
		monitor:  monitor,
		poller:   poller,
	}
}

// Submit validates, builds and submits generation requests for the
// clip, one per selected model. Validation failures are returned
// before any network call; a submission without a returned job id is a
// synchronous failure, never a dangling pending entry.
func (s *GenerationService) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	if _, busy := s.inflight.LoadOrStore(in.ClipID, struct{}{}); busy {
		return nil, ErrSubmissionInFlight
	}
	defer s.inflight.Delete(in.ClipID)

	// Cheap checks first so an empty prompt never costs a backend call
	if validate.SanitizeInput(in.Prompt) == "" {
		return nil, &validate.ValidationError{Field: "prompt", Message: "prompt must not be empty"}
	}
	if !validate.IsValidUUID(in.ClipID) {
		return nil, &validate.ValidationError{Field: "clip_id", Message: "must be a valid UUID"}
	}

	current := s.settings.Load(ctx)

	modelList, err := resolveModels(current)
	if err != nil {
		return nil, err
	}

	serverOnline, err := s.resolveServerOnline(ctx, current)
	if err != nil {
		return nil, err
	}

	// Build everything before submitting anything; one bad model
	// aborts the whole batch with no requests sent
	type prepared struct {
		model    string
		request  *models.GenerationRequest
		settings models.GenerationSettings
	}
	batch := make([]prepared, 0, len(modelList))
	for _, model := range modelList {
		effective := current
		if ms, msErr := s.settings.ModelSettings(ctx, model); msErr == nil && ms != nil {
			effective = settings.ApplyModelSettings(current, *ms)
		}

		req, buildErr := s.builder.Build(generation.BuildInput{
			Settings:          effective,
			ClipID:            in.ClipID,
			Prompt:            in.Prompt,
			NegativePrompt:    in.NegativePrompt,
			Model:             model,
			ServerOnline:      serverOnline,
			InputReferenceURL: in.InputReferenceURL,
		})
		if buildErr != nil {
			return nil, buildErr
		}
		batch = append(batch, prepared{model: model, request: req, settings: effective})
	}

	result := &SubmitResult{Jobs: make([]SubmittedJob, 0, len(batch))}
	for _, p := range batch {
		jobID, submitErr := s.client.SubmitGeneration(ctx, p.request)
		if submitErr != nil {
			if len(result.Jobs) > 0 {
				// Earlier models in the batch are already running
				return result, fmt.Errorf("model %s: %w", p.model, submitErr)
			}
			return nil, submitErr
		}

		s.registry.Add(models.TrackedJob{
			ID:             jobID,
			ClipID:         in.ClipID,
			GenerationType: p.request.GenerationType,
			Status:         models.JobStatusPending,
			Params: models.TrackedJobParams{
				Model:  p.model,
				Prompt: truncatePrompt(p.request.Prompt),
				Width:  p.settings.GenerationParams.Width,
				Height: p.settings.GenerationParams.Height,
			},
		})
		if s.poller != nil {
			s.poller.Track(jobID)
		}

		logger.Log.Info("generation job submitted",
			zap.String("job_id", jobID),
			zap.String("clip_id", in.ClipID),
			zap.String("model", p.model),
			zap.String("provider", string(p.settings.Provider)))

		result.Jobs = append(result.Jobs, SubmittedJob{JobID: jobID, Model: p.model})
	}

	return result, nil
}

// SelectModel switches the active model: saved per-model settings are
// merged in, the model's preset and capability metadata are fetched
// and applied, and the result is persisted
func (s *GenerationService) SelectModel(ctx context.Context, model string) (*models.GenerationSettings, error) {
	if model == "" {
		return nil, &validate.ValidationError{Field: "model", Message: "model name must not be empty"}
	}

	current := s.settings.Load(ctx)

	if ms, err := s.settings.ModelSettings(ctx, model); err == nil && ms != nil {
		current = settings.ApplyModelSettings(current, *ms)
	}
	current.SelectedModel = model
	current.UseMultipleModels = false
	current.SelectedModels = nil

	presets, err := s.client.ModelPresets(ctx, model)
	if err != nil {
		return nil, err
	}
	if preset, ok := presets[current.SelectedPreset]; ok {
		applyPreset(&current.GenerationParams, preset)
	}

	params, err := s.client.ModelParameters(ctx, model)
	if err != nil {
		return nil, err
	}
	clampToCapabilities(&current, params)

	if err := s.settings.Save(ctx, current); err != nil {
		logger.Log.Warn("model selection not persisted", zap.Error(err))
	}

	return &current, nil
}

// UpdateSettings range-checks and persists the full settings object.
// While a model is selected its override record is updated too.
// Storage failures degrade silently.
func (s *GenerationService) UpdateSettings(ctx context.Context, newSettings models.GenerationSettings) error {
	if err := validate.GenerationParams(newSettings.GenerationParams); err != nil {
		return err
	}
	if err := validate.AdvancedParams(newSettings.AdvancedParams); err != nil {
		return err
	}
	if err := validate.LoRAs(newSettings.LoRAs); err != nil {
		return err
	}

	if err := s.settings.Save(ctx, newSettings); err != nil {
		logger.Log.Warn("settings not persisted", zap.Error(err))
	}

	if !newSettings.UseMultipleModels && newSettings.SelectedModel != "" {
		err := s.settings.SaveModelSettings(ctx, newSettings.SelectedModel, models.ModelSettings{
			SelectedPreset:   newSettings.SelectedPreset,
			GenerationParams: newSettings.GenerationParams,
			AdvancedParams:   newSettings.AdvancedParams,
			LoRAs:            newSettings.LoRAs,
		})
		if err != nil {
			logger.Log.Warn("model settings not persisted",
				zap.String("model", newSettings.SelectedModel), zap.Error(err))
		}
	}

	return nil
}

// Settings returns the current settings
func (s *GenerationService) Settings(ctx context.Context) models.GenerationSettings {
	return s.settings.Load(ctx)
}

func (s *GenerationService) resolveServerOnline(ctx context.Context, current models.GenerationSettings) (bool, error) {
	if current.Provider != models.ProviderComfyUI {
		return true, nil
	}
	// Builder-level validation reports bad server ids; only resolve
	// the flag for a plausible selection
	if !validate.IsValidUUID(current.SelectedServer) {
		return false, nil
	}
	online, err := s.monitor.IsOnline(ctx, current.SelectedServer)
	if err != nil {
		return false, err
	}
	return online, nil
}

func resolveModels(current models.GenerationSettings) ([]string, error) {
	if current.UseMultipleModels {
		if len(current.SelectedModels) == 0 {
			return nil, &validate.ValidationError{Field: "models", Message: "no models selected"}
		}
		return current.SelectedModels, nil
	}
	return []string{current.SelectedModel}, nil
}

func applyPreset(params *models.GenerationParams, preset models.ModelPreset) {
	if preset.Steps > 0 {
		params.Steps = preset.Steps
	}
	if preset.Cfg > 0 {
		params.CfgScale = preset.Cfg
	}
	if preset.Width > 0 {
		params.Width = preset.Width
	}
	if preset.Height > 0 {
		params.Height = preset.Height
	}
	if preset.Sampler != "" {
		params.Sampler = preset.Sampler
	}
	if preset.Scheduler != "" {
		params.Scheduler = preset.Scheduler
	}
	if preset.VideoFPS > 0 {
		params.VideoFPS = preset.VideoFPS
	}
	if preset.VideoFrames > 0 {
		params.VideoFrames = preset.VideoFrames
	}
}

func clampToCapabilities(current *models.GenerationSettings, params *models.ModelParameters) {
	if params == nil {
		return
	}
	if !params.SupportsLoRA {
		current.LoRAs = []models.LoRASelection{}
		return
	}
	if params.MaxLoRAs > 0 && len(current.LoRAs) > params.MaxLoRAs {
		current.LoRAs = current.LoRAs[:params.MaxLoRAs]
	}
}

func truncatePrompt(prompt string) string {
	runes := []rune(prompt)
	if len(runes) <= displayPromptLimit {
		return prompt
	}
	return string(runes[:displayPromptLimit]) + "..."
}
