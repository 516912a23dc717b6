package gemini

import (
	"cmp"

	"github.com/rhuss/datagem/pkg/provider"
	"github.com/rhuss/datagem/pkg/provider/openaicompat"
)

// Provider talks to Gemini through the embedded Chat Completions client,
// which supplies Complete, Stream, ListModels and Close. The API key comes
// with each request, so a single Provider serves every credential slot.
type Provider struct {
	*openaicompat.Client
}

var _ provider.Provider = (*Provider)(nil)

// New builds a Provider. Unset fields fall back to DefaultConfig.
func New(cfg Config) (*Provider, error) {
	def := DefaultConfig()
	chat, models := openaicompat.DefaultChatPath, openaicompat.DefaultModelsPath
	if cfg.BaseURL == "" || cfg.BaseURL == def.BaseURL {
		cfg.BaseURL = def.BaseURL
		chat, models = "/chat/completions", "/models"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	c := openaicompat.NewClient(cfg.BaseURL, "", cfg.Timeout)
	c.ChatPath = cmp.Or(cfg.ChatPath, chat)
	c.ModelsPath = cmp.Or(cfg.ModelsPath, models)
	if m := cfg.ModelMapping; len(m) > 0 {
		c.ModelMapper = func(model string) string {
			return cmp.Or(m[model], model)
		}
	}
	return &Provider{Client: c}, nil
}

func (p *Provider) Name() string { return "gemini" }

// Capabilities reports streaming and tool calling with the 1M token window
// of the 2.5 models.
func (p *Provider) Capabilities() provider.ProviderCapabilities {
	return provider.ProviderCapabilities{
		Streaming:        true,
		ToolCalling:      true,
		MaxContextWindow: 1 << 20,
	}
}
