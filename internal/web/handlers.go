package web

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"clipforge/internal/assist"
	"clipforge/internal/config"
	"clipforge/internal/controller"
	"clipforge/internal/generation"
	"clipforge/internal/infra"
	"clipforge/internal/models"
	"clipforge/internal/pipeline"
	"clipforge/internal/settings"
	"clipforge/internal/storage"
	"clipforge/internal/tracker"
	"clipforge/internal/validate"
	"clipforge/pkg/logger"
)

// Reference uploads above this size are rejected
const maxUploadSize = 20 << 20

// WebSocket upgrader configuration
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// Options collects the dependencies the HTTP layer serves. History,
// Uploads and Enhancer may be nil; their endpoints then answer 503.
type Options struct {
	Config   *config.Config
	Hub      *JobHub
	Service  *controller.GenerationService
	Settings *settings.Service
	Registry *tracker.Registry
	Pipeline *pipeline.Client
	Monitor  *infra.ServerMonitor
	History  *storage.MySQLStore
	Uploads  *storage.UploadStore
	Enhancer *assist.Enhancer
}

type Handlers struct {
	config   *config.Config
	hub      *JobHub
	service  *controller.GenerationService
	settings *settings.Service
	registry *tracker.Registry
	pipeline *pipeline.Client
	monitor  *infra.ServerMonitor
	history  *storage.MySQLStore
	uploads  *storage.UploadStore
	enhancer *assist.Enhancer
}

func NewHandlers(opts Options) *Handlers {
	return &Handlers{
		config:   opts.Config,
		hub:      opts.Hub,
		service:  opts.Service,
		settings: opts.Settings,
		registry: opts.Registry,
		pipeline: opts.Pipeline,
		monitor:  opts.Monitor,
		history:  opts.History,
		uploads:  opts.Uploads,
		enhancer: opts.Enhancer,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "clipforge",
	})
}

// CORS middleware
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Max-Age", "300")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Request logging middleware
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)))
	})
}

func NewRouter(opts Options) *chi.Mux {
	r := chi.NewRouter()

	r.Use(requestLogger)
	r.Use(corsMiddleware)

	h := NewHandlers(opts)

	// Public routes
	r.Get("/health", h.HealthCheck)
	r.Get("/uploads/{name}", h.ServeUpload)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Settings endpoints
		r.Route("/settings", func(r chi.Router) {
			r.Get("/", h.GetSettings)
			r.Put("/", h.UpdateSettings)
			r.Get("/models/{model}", h.GetModelSettings)
			r.Put("/models/{model}", h.PutModelSettings)
		})

		// Model endpoints
		r.Route("/models/{model}", func(r chi.Router) {
			r.Post("/select", h.SelectModel)
			r.Get("/presets", h.GetModelPresets)
			r.Get("/parameters", h.GetModelParameters)
		})

		// Server endpoints
		r.Get("/servers/{server_id}/info", h.GetServerInfo)

		// Generation endpoints
		r.Post("/generate", h.Generate)

		// Job endpoints
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", h.ListJobs)
			r.Get("/history", h.JobHistory)
			r.Get("/stream", h.GetJobStream)
			r.Post("/updates", h.JobUpdates)
			r.Delete("/completed", h.DismissCompleted)
			r.Delete("/{job_id}", h.DismissJob)
		})

		// Prompt assist endpoints
		r.Post("/prompt/enhance", h.EnhancePrompt)

		// Upload endpoints
		r.Post("/uploads/reference", h.UploadReference)
	})

	return r
}

// Settings endpoints

func (h *Handlers) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Settings(r.Context()))
}

func (h *Handlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req models.GenerationSettings
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.service.UpdateSettings(r.Context(), req); err != nil {
		var vErr *validate.ValidationError
		if errors.As(err, &vErr) {
			writeError(w, http.StatusBadRequest, vErr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, h.service.Settings(r.Context()))
}

func (h *Handlers) GetModelSettings(w http.ResponseWriter, r *http.Request) {
	model := chi.URLParam(r, "model")

	ms, err := h.settings.ModelSettings(r.Context(), model)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if ms == nil {
		writeError(w, http.StatusNotFound, "no saved settings for model")
		return
	}

	writeJSON(w, http.StatusOK, ms)
}

func (h *Handlers) PutModelSettings(w http.ResponseWriter, r *http.Request) {
	model := chi.URLParam(r, "model")

	var ms models.ModelSettings
	if err := json.NewDecoder(r.Body).Decode(&ms); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := validate.GenerationParams(ms.GenerationParams); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validate.AdvancedParams(ms.AdvancedParams); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validate.LoRAs(ms.LoRAs); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.settings.SaveModelSettings(r.Context(), model, ms); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"model":   model,
	})
}

// Model endpoints

func (h *Handlers) SelectModel(w http.ResponseWriter, r *http.Request) {
	model := chi.URLParam(r, "model")
	if model == "" {
		writeError(w, http.StatusBadRequest, "model is required")
		return
	}

	updated, err := h.service.SelectModel(r.Context(), model)
	if err != nil {
		var netErr *pipeline.NetworkError
		if errors.As(err, &netErr) {
			writeError(w, http.StatusBadGateway, netErr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *Handlers) GetModelPresets(w http.ResponseWriter, r *http.Request) {
	model := chi.URLParam(r, "model")

	presets, err := h.pipeline.ModelPresets(r.Context(), model)
	if err != nil {
		var netErr *pipeline.NetworkError
		if errors.As(err, &netErr) {
			writeError(w, http.StatusBadGateway, netErr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"presets": presets})
}

func (h *Handlers) GetModelParameters(w http.ResponseWriter, r *http.Request) {
	model := chi.URLParam(r, "model")

	params, err := h.pipeline.ModelParameters(r.Context(), model)
	if err != nil {
		var netErr *pipeline.NetworkError
		if errors.As(err, &netErr) {
			writeError(w, http.StatusBadGateway, netErr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"parameters": params})
}

// Server endpoints

func (h *Handlers) GetServerInfo(w http.ResponseWriter, r *http.Request) {
	serverID := chi.URLParam(r, "server_id")
	if !validate.IsValidUUID(serverID) {
		writeError(w, http.StatusBadRequest, "server_id must be a valid UUID")
		return
	}

	info, err := h.monitor.Info(r.Context(), serverID)
	if err != nil {
		var netErr *pipeline.NetworkError
		if errors.As(err, &netErr) {
			writeError(w, http.StatusBadGateway, netErr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, info)
}

// Generation endpoints

// GenerateResponse reports the jobs registered for one submission.
// A partial batch failure carries both the jobs that started and the error.
type GenerateResponse struct {
	Success bool                      `json:"success"`
	Jobs    []controller.SubmittedJob `json:"jobs,omitempty"`
	Error   string                    `json:"error,omitempty"`
}

func (h *Handlers) Generate(w http.ResponseWriter, r *http.Request) {
	var req controller.SubmitInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.service.Submit(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		var vErr *validate.ValidationError
		var offErr *generation.ServerOfflineError
		var netErr *pipeline.NetworkError
		switch {
		case errors.Is(err, controller.ErrSubmissionInFlight):
			status = http.StatusConflict
		case errors.As(err, &vErr):
			status = http.StatusBadRequest
		case errors.As(err, &offErr):
			status = http.StatusServiceUnavailable
		case errors.As(err, &netErr):
			status = http.StatusBadGateway
		}

		resp := GenerateResponse{Success: false, Error: err.Error()}
		if result != nil {
			resp.Jobs = result.Jobs
		}
		writeJSON(w, status, resp)
		return
	}

	writeJSON(w, http.StatusOK, GenerateResponse{Success: true, Jobs: result.Jobs})
}

// Job endpoints

// jobView adds the derived display progress to a tracked job
type jobView struct {
	models.TrackedJob
	DisplayProgress int `json:"display_progress"`
}

func viewJobs(jobs []models.TrackedJob) []jobView {
	views := make([]jobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, jobView{TrackedJob: job, DisplayProgress: job.DisplayProgress()})
	}
	return views
}

func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	var jobs []models.TrackedJob
	switch r.URL.Query().Get("scope") {
	case "active":
		jobs = h.registry.Active()
	case "completed":
		jobs = h.registry.Completed()
	default:
		jobs = h.registry.Snapshot()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": viewJobs(jobs)})
}

func (h *Handlers) DismissJob(w http.ResponseWriter, r *http.Request) {
	h.registry.Dismiss(chi.URLParam(r, "job_id"))
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handlers) DismissCompleted(w http.ResponseWriter, r *http.Request) {
	h.registry.DismissAll()
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handlers) JobHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusServiceUnavailable, "Job history not available")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	var records []models.JobRecord
	var err error
	if clipID := r.URL.Query().Get("clip_id"); clipID != "" {
		records, err = h.history.ListJobRecordsByClip(r.Context(), clipID, limit)
	} else {
		records, err = h.history.ListJobRecords(r.Context(), limit, offset)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": records})
}

func (h *Handlers) GetJobStream(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "Job stream not available")
		return
	}

	// Upgrade HTTP connection to WebSocket
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	clientID := generateClientID()
	client := &Client{
		ID:     clientID,
		Conn:   conn,
		Send:   make(chan []byte, 256),
		Hub:    h.hub,
		closed: false,
	}

	h.hub.register <- client

	// Send welcome message
	welcomeData, _ := json.Marshal(map[string]interface{}{
		"type": "connected",
		"id":   clientID,
		"msg":  "Connected to job stream",
		"time": time.Now().Unix(),
	})
	select {
	case client.Send <- welcomeData:
	default:
	}

	// Seed the new client with the current job list
	if snapshot := h.registry.Snapshot(); len(snapshot) > 0 {
		snapData, err := json.Marshal(map[string]interface{}{
			"type": "snapshot",
			"jobs": viewJobs(snapshot),
			"time": time.Now().Unix(),
		})
		if err == nil {
			select {
			case client.Send <- snapData:
			default:
			}
		}
	}

	// Start client read pump
	go client.readPump()
}

// jobUpdatePayload is the webhook body pushed by the generation backend.
// Both "id" and "job_id" are accepted for the job identifier.
type jobUpdatePayload struct {
	ID       string            `json:"id"`
	JobID    string            `json:"job_id"`
	Status   string            `json:"status"`
	Progress *int              `json:"progress,omitempty"`
	Result   *models.JobResult `json:"result,omitempty"`
	Error    string            `json:"error,omitempty"`
}

func (h *Handlers) JobUpdates(w http.ResponseWriter, r *http.Request) {
	var payload jobUpdatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	id := payload.ID
	if id == "" {
		id = payload.JobID
	}
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	if payload.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}

	// Updates for ids the registry does not know are ignored
	h.registry.ApplyStatusUpdate(models.JobStatusUpdate{
		ID:       id,
		Status:   pipeline.NormalizeStatus(payload.Status),
		Progress: payload.Progress,
		Result:   payload.Result,
		Error:    payload.Error,
	})

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Prompt assist endpoints

type enhanceRequest struct {
	Prompt         string `json:"prompt"`
	GenerationType string `json:"generation_type,omitempty"`
	Model          string `json:"model,omitempty"`
}

type enhanceResponse struct {
	Success bool   `json:"success"`
	Prompt  string `json:"prompt,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (h *Handlers) EnhancePrompt(w http.ResponseWriter, r *http.Request) {
	if h.enhancer == nil {
		writeError(w, http.StatusServiceUnavailable, "Prompt enhancement not configured")
		return
	}

	var req enhanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	generationType := models.GenerationType(req.GenerationType)
	if generationType == "" {
		generationType = models.GenerationTypeImage
	}

	enhanced, err := h.enhancer.EnhancePrompt(r.Context(), prompt, generationType, req.Model)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, enhanceResponse{Success: false, Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, enhanceResponse{Success: true, Prompt: enhanced})
}

// Upload endpoints

func (h *Handlers) UploadReference(w http.ResponseWriter, r *http.Request) {
	if h.uploads == nil {
		writeError(w, http.StatusServiceUnavailable, "Uploads not available")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "upload too large or unreadable")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "empty upload")
		return
	}

	name, err := h.uploads.SaveReference(data, r.Header.Get("Content-Type"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"name": name,
		"url":  "/uploads/" + name,
	})
}

func (h *Handlers) ServeUpload(w http.ResponseWriter, r *http.Request) {
	if h.uploads == nil {
		writeError(w, http.StatusServiceUnavailable, "Uploads not available")
		return
	}

	name := chi.URLParam(r, "name")
	f, err := h.uploads.Open(name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "upload not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	http.ServeContent(w, r, name, stat.ModTime(), f)
}

// generateClientID generates a unique client ID
func generateClientID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return hex.EncodeToString([]byte(time.Now().String()))[:16]
	}
	return hex.EncodeToString(b)
}
