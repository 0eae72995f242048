// Package generation assembles provider-specific generation requests
// from validated inputs plus the persisted settings. A request returned
// by the builder has passed every validator; callers only transport it.
package generation

import (
	"fmt"
	"math/rand"

	"clipforge/internal/models"
	"clipforge/internal/validate"
)

// seedRange bounds the random seed drawn when the configured seed is -1
const seedRange = 1_000_000

// ServerOfflineError blocks submission when the selected ComfyUI
// server reports not-online. Not a network failure.
type ServerOfflineError struct {
	ServerID string
}

func (e *ServerOfflineError) Error() string {
	return fmt.Sprintf("server %s is offline", e.ServerID)
}

// BuildInput is everything one submission needs. Model is the single
// model this request targets; multi-model submissions call Build once
// per model. ServerOnline is supplied by the server monitor.
type BuildInput struct {
	Settings          models.GenerationSettings
	ClipID            string
	Prompt            string
	NegativePrompt    string
	Model             string
	ServerOnline      bool
	InputReferenceURL string
}

// Adapter applies one provider's request policy after the shared
// validation core has run. Registering a new Adapter is all it takes
// to add a provider.
type Adapter interface {
	Provider() models.Provider
	Apply(in BuildInput, req *models.GenerationRequest) error
}

// Builder composes GenerationRequests through registered provider
// adapters
type Builder struct {
	adapters map[models.Provider]Adapter
	randInt  func(n int64) int64
}

// NewBuilder returns a builder with the comfyui and openai adapters
// registered
func NewBuilder() *Builder {
	b := &Builder{
		adapters: make(map[models.Provider]Adapter),
		randInt:  rand.Int63n,
	}
	b.Register(&comfyUIAdapter{})
	b.Register(&openAIAdapter{})
	return b
}

func (b *Builder) Register(a Adapter) {
	b.adapters[a.Provider()] = a
}

// Build runs the shared validation core, resolves the seed, filters
// LoRA slots and hands the request to the provider adapter
func (b *Builder) Build(in BuildInput) (*models.GenerationRequest, error) {
	prompt := validate.SanitizeInput(in.Prompt)
	if prompt == "" {
		return nil, &validate.ValidationError{Field: "prompt", Message: "prompt must not be empty"}
	}
	negativePrompt := validate.SanitizeInput(in.NegativePrompt)

	if err := validate.PromptLength("prompt", prompt); err != nil {
		return nil, err
	}
	if err := validate.PromptLength("negative_prompt", negativePrompt); err != nil {
		return nil, err
	}
	if !validate.IsValidUUID(in.ClipID) {
		return nil, &validate.ValidationError{Field: "clip_id", Message: "must be a valid UUID"}
	}
	if err := validate.GenerationParams(in.Settings.GenerationParams); err != nil {
		return nil, err
	}
	if err := validate.AdvancedParams(in.Settings.AdvancedParams); err != nil {
		return nil, err
	}
	if err := validate.LoRAs(in.Settings.LoRAs); err != nil {
		return nil, err
	}

	adapter, ok := b.adapters[in.Settings.Provider]
	if !ok {
		return nil, &validate.ValidationError{
			Field:   "provider",
			Message: fmt.Sprintf("unknown provider %q", in.Settings.Provider),
		}
	}

	// A seed of -1 is resolved per submission and never written back
	seed := in.Settings.GenerationParams.Seed
	if seed == -1 {
		seed = b.randInt(seedRange)
	}

	req := &models.GenerationRequest{
		ClipID:         in.ClipID,
		Prompt:         prompt,
		NegativePrompt: negativePrompt,
		Model:          in.Model,
		LoRAs:          filterLoRAs(in.Settings.LoRAs),
		GenerationType: in.Settings.ActiveTab,
		Params:         mergeParams(in.Settings, seed),
	}

	if err := adapter.Apply(in, req); err != nil {
		return nil, err
	}

	return req, nil
}

// filterLoRAs drops unused slots while preserving order and values
func filterLoRAs(selections []models.LoRASelection) []models.LoRASelection {
	filtered := make([]models.LoRASelection, 0, len(selections))
	for _, sel := range selections {
		if sel.Name == models.LoRANone || sel.Name == "" {
			continue
		}
		filtered = append(filtered, sel)
	}
	return filtered
}

// mergeParams unions the generation and advanced params with the
// resolved seed layered on top
func mergeParams(settings models.GenerationSettings, seed int64) map[string]interface{} {
	gp := settings.GenerationParams
	ap := settings.AdvancedParams

	params := map[string]interface{}{
		"steps":     gp.Steps,
		"cfg_scale": gp.CfgScale,
		"width":     gp.Width,
		"height":    gp.Height,
		"seed":      seed,
		"sampler":   gp.Sampler,
		"scheduler": gp.Scheduler,
	}

	if settings.ActiveTab == models.GenerationTypeVideo {
		params["video_fps"] = gp.VideoFPS
		params["video_frames"] = gp.VideoFrames
		params["motion_bucket_id"] = gp.MotionBucketID
	}

	if ap.RefinerEnabled {
		params["refiner_enabled"] = true
		params["refiner_model"] = ap.RefinerModel
		params["refiner_switch"] = ap.RefinerSwitch
	}
	if ap.FaceSwapEnabled {
		params["face_swap_enabled"] = true
		params["face_swap_image_url"] = ap.FaceSwapImageURL
	}
	if ap.UpscaleEnabled {
		params["upscale_enabled"] = true
		params["upscale_factor"] = ap.UpscaleFactor
		params["upscale_model"] = ap.UpscaleModel
	}
	if ap.CustomWorkflowEnabled {
		params["custom_workflow"] = ap.CustomWorkflowJSON
	}
	if ap.ClipSkip > 0 {
		params["clip_skip"] = ap.ClipSkip
	}
	if ap.PAGScale > 0 {
		params["pag_scale"] = ap.PAGScale
	}

	return params
}
