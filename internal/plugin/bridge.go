package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/errinfo"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/extract"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/logging"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/prompt"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/rpc"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/settings"
)

const APIVersion = "1"

var EngineVersion = "0.1.0"

type KeyStore interface {
	KeySource
	SetGoogleKey(key string) error
	ClearGoogleKey() error
	HasGoogleKey() bool
}

type SettingsStore interface {
	SettingsSource
	Update(fn func(*settings.Settings)) (*settings.Settings, error)
}

type Validator interface {
	ValidateKey(ctx context.Context, apiKey string) error
}

type BridgeConfig struct {
	Keys      KeyStore
	Settings  SettingsStore
	Validator Validator
	EnvKey    string
	ModelID   string
	Transport string
	Logger    *slog.Logger
}

// Bridge exposes the controller as JSON-RPC methods and relays its events
// as notifications.
type Bridge struct {
	ctrl     *Controller
	commands chan Command
	cfg      BridgeConfig
	logger   *slog.Logger
}

func NewBridge(ctrl *Controller, cfg BridgeConfig) *Bridge {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &Bridge{
		ctrl:     ctrl,
		commands: make(chan Command),
		cfg:      cfg,
		logger:   logger.With("component", "bridge"),
	}
}

// Commands is the channel to hand to Controller.Run.
func (b *Bridge) Commands() <-chan Command { return b.commands }

type Registrar interface {
	Register(method string, handler rpc.Handler)
}

func (b *Bridge) Register(r Registrar) {
	r.Register("EngineGetInfo", b.EngineGetInfo)
	r.Register("TextNodesGet", b.TextNodesGet)
	r.Register("HostSelectionChanged", b.HostSelectionChanged)
	r.Register("CopyGenerate", b.CopyGenerate)
	r.Register("PluginCancel", b.PluginCancel)
	r.Register("ProvidersSetApiKey", b.ProvidersSetApiKey)
	r.Register("ProvidersClearApiKey", b.ProvidersClearApiKey)
	r.Register("ProvidersValidate", b.ProvidersValidate)
	r.Register("SettingsGet", b.SettingsGet)
	r.Register("SettingsUpdate", b.SettingsUpdate)
}

// Forward relays events to notify until the controller stops.
func (b *Bridge) Forward(notify func(method string, params any)) {
	for ev := range b.ctrl.Events() {
		notify(ev.Method(), ev)
	}
}

func (b *Bridge) send(ctx context.Context, cmd Command) *errinfo.ErrorInfo {
	select {
	case b.commands <- cmd:
		return nil
	case <-b.ctrl.Done():
		return errinfo.UserCanceled("", "plugin closed")
	case <-ctx.Done():
		return errinfo.UserCanceled("", ctx.Err().Error())
	}
}

func decodeParams(params json.RawMessage, phase string, out any) *errinfo.ErrorInfo {
	if len(params) == 0 || string(params) == "null" {
		return nil
	}
	if err := json.Unmarshal(params, out); err != nil {
		return errinfo.ValidationFailed(phase, "invalid params")
	}
	return nil
}

func (b *Bridge) EngineGetInfo(ctx context.Context, _ json.RawMessage) (any, *errinfo.ErrorInfo) {
	return map[string]any{
		"engine_version": EngineVersion,
		"api_version":    APIVersion,
		"provider_id":    ProviderID,
		"model_id":       b.cfg.ModelID,
		"transport":      b.cfg.Transport,
	}, nil
}

func (b *Bridge) TextNodesGet(ctx context.Context, _ json.RawMessage) (any, *errinfo.ErrorInfo) {
	snap := b.ctrl.Snapshot()
	return TextNodesUpdated{
		Version:         snap.Version,
		Segments:        snap.Segments,
		SelectedIndices: extract.AllIndices(snap.Segments),
	}, nil
}

func (b *Bridge) HostSelectionChanged(ctx context.Context, _ json.RawMessage) (any, *errinfo.ErrorInfo) {
	if info := b.send(ctx, SelectionChanged{}); info != nil {
		return nil, info
	}
	return map[string]any{}, nil
}

func (b *Bridge) CopyGenerate(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		RequestID       string `json:"request_id"`
		APIKey          string `json:"api_key"`
		Tone            string `json:"tone"`
		VariantCount    int    `json:"variant_count"`
		Instructions    string `json:"instructions"`
		CombinedText    string `json:"combined_text"`
		SelectedIndices []int  `json:"selected_indices"`
	}
	if info := decodeParams(params, errinfo.PhaseGenerate, &req); info != nil {
		return nil, info
	}
	id := strings.TrimSpace(req.RequestID)
	if id == "" {
		id = uuid.NewString()
	}
	replies := make(chan *errinfo.ErrorInfo, 1)
	cmd := Generate{
		RequestID:       id,
		APIKey:          req.APIKey,
		Tone:            req.Tone,
		VariantCount:    req.VariantCount,
		Instructions:    req.Instructions,
		CombinedText:    req.CombinedText,
		SelectedIndices: req.SelectedIndices,
		Reply:           replies,
	}
	if info := b.send(ctx, cmd); info != nil {
		return nil, info
	}
	select {
	case info := <-replies:
		if info != nil {
			return nil, info
		}
	case <-b.ctrl.Done():
		return nil, errinfo.UserCanceled(errinfo.PhaseGenerate, "plugin closed")
	case <-ctx.Done():
		return nil, errinfo.UserCanceled(errinfo.PhaseGenerate, ctx.Err().Error())
	}
	return map[string]any{"request_id": id, "accepted": true}, nil
}

func (b *Bridge) PluginCancel(ctx context.Context, _ json.RawMessage) (any, *errinfo.ErrorInfo) {
	if info := b.send(ctx, Cancel{}); info != nil {
		return nil, info
	}
	return map[string]any{}, nil
}

func (b *Bridge) ProvidersSetApiKey(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		APIKey string `json:"api_key"`
	}
	if info := decodeParams(params, errinfo.PhaseSettings, &req); info != nil {
		return nil, info
	}
	b.logger.Debug("providers.set_api_key", "api_key", logging.RedactValue(req.APIKey))
	if strings.TrimSpace(req.APIKey) == "" {
		return nil, errinfo.ValidationFailed(errinfo.PhaseSettings, "api_key is required")
	}
	if b.cfg.Keys == nil {
		return nil, errinfo.FileWriteFailed(errinfo.PhaseSettings, "secret store unavailable")
	}
	if err := b.cfg.Keys.SetGoogleKey(req.APIKey); err != nil {
		return nil, errinfo.FileWriteFailed(errinfo.PhaseSettings, err.Error())
	}
	return map[string]any{}, nil
}

func (b *Bridge) ProvidersClearApiKey(ctx context.Context, _ json.RawMessage) (any, *errinfo.ErrorInfo) {
	if b.cfg.Keys == nil {
		return nil, errinfo.FileWriteFailed(errinfo.PhaseSettings, "secret store unavailable")
	}
	if err := b.cfg.Keys.ClearGoogleKey(); err != nil {
		return nil, errinfo.FileWriteFailed(errinfo.PhaseSettings, err.Error())
	}
	return map[string]any{}, nil
}

func (b *Bridge) ProvidersValidate(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		APIKey string `json:"api_key"`
	}
	if info := decodeParams(params, errinfo.PhaseSettings, &req); info != nil {
		return nil, info
	}
	key := strings.TrimSpace(req.APIKey)
	if key == "" && b.cfg.Keys != nil {
		stored, err := b.cfg.Keys.GetGoogleKey()
		if err != nil {
			return nil, errinfo.FileReadFailed(errinfo.PhaseSettings, err.Error())
		}
		key = strings.TrimSpace(stored)
	}
	if key == "" {
		key = b.cfg.EnvKey
	}
	if key == "" {
		return nil, errinfo.ProviderNotConfigured(errinfo.PhaseSettings)
	}
	if b.cfg.Validator == nil {
		return nil, errinfo.ProviderUnavailable(errinfo.PhaseSettings, "validator unavailable")
	}
	if err := b.cfg.Validator.ValidateKey(ctx, key); err != nil {
		info := mapError(errinfo.PhaseSettings, errinfo.SubphaseProvider, err)
		info.ModelID = b.cfg.ModelID
		return nil, info
	}
	return map[string]any{"valid": true}, nil
}

type settingsPayload struct {
	*settings.Settings
	HasAPIKey       bool          `json:"has_api_key"`
	Tones           []prompt.Tone `json:"tones"`
	MaxVariantCount int           `json:"max_variant_count"`
}

func (b *Bridge) payload(s *settings.Settings) settingsPayload {
	hasKey := b.cfg.EnvKey != ""
	if b.cfg.Keys != nil && b.cfg.Keys.HasGoogleKey() {
		hasKey = true
	}
	return settingsPayload{
		Settings:        s,
		HasAPIKey:       hasKey,
		Tones:           prompt.Tones(),
		MaxVariantCount: settings.MaxVariantCount,
	}
}

func (b *Bridge) SettingsGet(ctx context.Context, _ json.RawMessage) (any, *errinfo.ErrorInfo) {
	if b.cfg.Settings == nil {
		return b.payload(settings.Default()), nil
	}
	s, err := b.cfg.Settings.Load()
	if err != nil {
		return nil, errinfo.FileReadFailed(errinfo.PhaseSettings, err.Error())
	}
	return b.payload(s), nil
}

// SettingsUpdate changes defaults immediately; model, transport and base URL
// take effect on the next start.
func (b *Bridge) SettingsUpdate(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		DefaultTone         *string `json:"default_tone"`
		DefaultVariantCount *int    `json:"default_variant_count"`
		ModelID             *string `json:"model_id"`
		Transport           *string `json:"transport"`
		BaseURL             *string `json:"base_url"`
	}
	if info := decodeParams(params, errinfo.PhaseSettings, &req); info != nil {
		return nil, info
	}
	var tone prompt.Tone
	if req.DefaultTone != nil {
		parsed, err := prompt.ParseTone(*req.DefaultTone)
		if err != nil {
			return nil, errinfo.ValidationFailed(errinfo.PhaseSettings, err.Error())
		}
		tone = parsed
	}
	if req.DefaultVariantCount != nil {
		if n := *req.DefaultVariantCount; n < 1 || n > settings.MaxVariantCount {
			return nil, errinfo.ValidationFailed(errinfo.PhaseSettings, fmt.Sprintf("default_variant_count must be between 1 and %d", settings.MaxVariantCount))
		}
	}
	if req.Transport != nil {
		switch strings.ToLower(strings.TrimSpace(*req.Transport)) {
		case settings.TransportHTTP, settings.TransportSDK:
		default:
			return nil, errinfo.ValidationFailed(errinfo.PhaseSettings, fmt.Sprintf("unknown transport %q", *req.Transport))
		}
	}
	if b.cfg.Settings == nil {
		return nil, errinfo.FileWriteFailed(errinfo.PhaseSettings, "settings store unavailable")
	}
	updated, err := b.cfg.Settings.Update(func(s *settings.Settings) {
		if req.DefaultTone != nil {
			s.DefaultTone = tone
		}
		if req.DefaultVariantCount != nil {
			s.DefaultVariantCount = *req.DefaultVariantCount
		}
		if req.ModelID != nil {
			s.ModelID = *req.ModelID
		}
		if req.Transport != nil {
			s.Transport = *req.Transport
		}
		if req.BaseURL != nil {
			s.BaseURL = *req.BaseURL
		}
	})
	if err != nil {
		return nil, errinfo.FileWriteFailed(errinfo.PhaseSettings, err.Error())
	}
	return b.payload(updated), nil
}
