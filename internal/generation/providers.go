package generation

import (
	"clipforge/internal/models"
	"clipforge/internal/validate"
)

// comfyUIAdapter targets a server from the ComfyUI pool. The server id
// must be a real backend UUID and the server must currently report
// itself online.
type comfyUIAdapter struct{}

func (a *comfyUIAdapter) Provider() models.Provider {
	return models.ProviderComfyUI
}

func (a *comfyUIAdapter) Apply(in BuildInput, req *models.GenerationRequest) error {
	if in.Settings.SelectedServer == "" {
		return &validate.ValidationError{Field: "server_id", Message: "no server selected"}
	}
	if !validate.IsValidUUID(in.Settings.SelectedServer) {
		return &validate.ValidationError{Field: "server_id", Message: "must be a valid UUID"}
	}
	if in.Model == "" {
		return &validate.ValidationError{Field: "model", Message: "no model selected"}
	}
	if !in.ServerOnline {
		return &ServerOfflineError{ServerID: in.Settings.SelectedServer}
	}

	req.ServerID = in.Settings.SelectedServer
	return nil
}

// openAIAdapter targets the hosted video model. The provider only
// produces video, so the generation type is forced regardless of the
// active tab; the server id is the provider tag, not a UUID; LoRAs do
// not apply.
type openAIAdapter struct{}

func (a *openAIAdapter) Provider() models.Provider {
	return models.ProviderOpenAI
}

func (a *openAIAdapter) Apply(in BuildInput, req *models.GenerationRequest) error {
	req.ServerID = string(models.ProviderOpenAI)
	req.GenerationType = models.GenerationTypeVideo
	req.LoRAs = []models.LoRASelection{}
	if in.InputReferenceURL != "" {
		req.InputReferenceURL = in.InputReferenceURL
	}
	return nil
}
