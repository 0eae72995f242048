package models

// ServerInfo is the backend's report for one ComfyUI-compatible server
type ServerInfo struct {
	IsOnline bool     `json:"is_online"`
	Models   []string `json:"models"`
	LoRAs    []string `json:"loras"`
}

// ModelPreset is one named parameter bundle supplied by the backend
type ModelPreset struct {
	Steps       int     `json:"steps"`
	Cfg         float64 `json:"cfg"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Sampler     string  `json:"sampler"`
	Scheduler   string  `json:"scheduler"`
	VideoFPS    int     `json:"video_fps,omitempty"`
	VideoFrames int     `json:"video_frames,omitempty"`
}

// ModelParameters describes a model's capabilities as reported by the
// backend
type ModelParameters struct {
	SpecializesIn string `json:"specializes_in"`
	SupportsLoRA  bool   `json:"supports_lora"`
	MaxLoRAs      int    `json:"max_loras"`
}
