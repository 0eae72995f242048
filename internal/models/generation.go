package models

// GenerationType selects the media kind a request produces
type GenerationType string

const (
	GenerationTypeImage GenerationType = "image"
	GenerationTypeVideo GenerationType = "video"
)

// Provider identifies the backend generation engine target
type Provider string

const (
	ProviderComfyUI Provider = "comfyui"
	ProviderOpenAI  Provider = "openai"
)

// Preset keys supplied by the backend per model; "fast" and "quality"
// are always present, models may define more
const (
	PresetFast    = "fast"
	PresetQuality = "quality"
)

// LoRANone marks an unused LoRA slot; filtered out of every request
const LoRANone = "none"

// LoRASelection is one ordered LoRA slot with its applied weight
type LoRASelection struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight" validate:"min=0,max=2"`
}

// GenerationParams are the numeric/enum generation knobs. A seed of -1
// means "randomize at submit time"; it is never persisted resolved.
type GenerationParams struct {
	Steps     int     `json:"steps" validate:"min=1"`
	CfgScale  float64 `json:"cfg_scale" validate:"min=1,max=30"`
	Width     int     `json:"width" validate:"min=64"`
	Height    int     `json:"height" validate:"min=64"`
	Seed      int64   `json:"seed" validate:"min=-1"`
	Sampler   string  `json:"sampler"`
	Scheduler string  `json:"scheduler"`

	// Video-only fields, zero when the image tab is active
	VideoFPS       int `json:"video_fps" validate:"omitempty,min=1"`
	VideoFrames    int `json:"video_frames" validate:"omitempty,min=1"`
	MotionBucketID int `json:"motion_bucket_id" validate:"omitempty,min=1,max=255"`
}

// AdvancedParams are the optional pipeline stages layered on top of the
// base generation pass
type AdvancedParams struct {
	RefinerEnabled bool    `json:"refiner_enabled"`
	RefinerModel   string  `json:"refiner_model"`
	RefinerSwitch  float64 `json:"refiner_switch" validate:"omitempty,min=0,max=1"`

	FaceSwapEnabled  bool   `json:"face_swap_enabled"`
	FaceSwapImageURL string `json:"face_swap_image_url"`

	UpscaleEnabled bool    `json:"upscale_enabled"`
	UpscaleFactor  float64 `json:"upscale_factor" validate:"omitempty,gt=1,max=8"`
	UpscaleModel   string  `json:"upscale_model"`

	CustomWorkflowEnabled bool   `json:"custom_workflow_enabled"`
	CustomWorkflowJSON    string `json:"custom_workflow_json"`

	ClipSkip int     `json:"clip_skip" validate:"omitempty,min=1"`
	PAGScale float64 `json:"pag_scale" validate:"omitempty,min=0"`
}

// GenerationSettings is the persisted last-used configuration. Exactly
// one of SelectedModel/SelectedModels is authoritative, gated by
// UseMultipleModels.
type GenerationSettings struct {
	ActiveTab         GenerationType   `json:"active_tab"`
	Provider          Provider         `json:"provider"`
	SelectedServer    string           `json:"selected_server"`
	SelectedModel     string           `json:"selected_model"`
	SelectedModels    []string         `json:"selected_models"`
	UseMultipleModels bool             `json:"use_multiple_models"`
	SelectedPreset    string           `json:"selected_preset"`
	GenerationParams  GenerationParams `json:"generation_params"`
	AdvancedParams    AdvancedParams   `json:"advanced_params"`
	LoRAs             []LoRASelection  `json:"loras"`
}

// ModelSettings is the per-model override subset, keyed by model name.
// Server and provider are not part of it; applying a model's settings
// never changes where requests are sent.
type ModelSettings struct {
	SelectedPreset   string           `json:"selected_preset"`
	GenerationParams GenerationParams `json:"generation_params"`
	AdvancedParams   AdvancedParams   `json:"advanced_params"`
	LoRAs            []LoRASelection  `json:"loras"`
}

// GenerationRequest is the assembled per-submission payload sent to the
// pipeline backend. Instances are produced only by the request builder
// and have passed every validator.
type GenerationRequest struct {
	ClipID            string                 `json:"clip_id"`
	ServerID          string                 `json:"server_id"`
	Prompt            string                 `json:"prompt"`
	NegativePrompt    string                 `json:"negative_prompt"`
	Model             string                 `json:"model"`
	LoRAs             []LoRASelection        `json:"loras"`
	GenerationType    GenerationType         `json:"generation_type"`
	Params            map[string]interface{} `json:"params"`
	InputReferenceURL string                 `json:"input_reference_url,omitempty"`
}

// DefaultGenerationSettings returns the documented defaults used when
// the store is empty or unreadable
func DefaultGenerationSettings() GenerationSettings {
	return GenerationSettings{
		ActiveTab:      GenerationTypeImage,
		Provider:       ProviderComfyUI,
		SelectedPreset: PresetFast,
		GenerationParams: GenerationParams{
			Steps:          30,
			CfgScale:       7.0,
			Width:          1024,
			Height:         1024,
			Seed:           -1,
			Sampler:        "euler",
			Scheduler:      "normal",
			VideoFPS:       24,
			VideoFrames:    81,
			MotionBucketID: 127,
		},
		AdvancedParams: AdvancedParams{
			RefinerSwitch: 0.8,
			UpscaleFactor: 2.0,
			ClipSkip:      1,
			PAGScale:      3.0,
		},
		LoRAs: []LoRASelection{},
	}
}
