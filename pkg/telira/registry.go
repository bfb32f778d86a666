package telira

import (
	"fmt"
	"strings"

	"github.com/harunnryd/telira/pkg/captions"
	"github.com/harunnryd/telira/pkg/signaling"
)

type LinkFactoryBuilder func(cfg Config) (captions.LinkFactory, error)
type UserAgentFactory func(cfg Config) (signaling.UserAgent, error)

// Registry maps provider names from the config to concrete signaling
// gateways and caption links.
type Registry struct {
	links  map[string]LinkFactoryBuilder
	agents map[string]UserAgentFactory
}

func NewRegistry() *Registry {
	return &Registry{
		links:  make(map[string]LinkFactoryBuilder),
		agents: make(map[string]UserAgentFactory),
	}
}

func (r *Registry) RegisterLink(name string, builder LinkFactoryBuilder) {
	r.links[strings.ToLower(strings.TrimSpace(name))] = builder
}

func (r *Registry) RegisterUserAgent(name string, factory UserAgentFactory) {
	r.agents[strings.ToLower(strings.TrimSpace(name))] = factory
}

func (r *Registry) BuildLinkFactory(provider string, cfg Config) (captions.LinkFactory, error) {
	fn := r.links[strings.ToLower(strings.TrimSpace(provider))]
	if fn == nil {
		return nil, fmt.Errorf("caption provider not registered: %s", provider)
	}
	return fn(cfg)
}

func (r *Registry) BuildUserAgent(provider string, cfg Config) (signaling.UserAgent, error) {
	fn := r.agents[strings.ToLower(strings.TrimSpace(provider))]
	if fn == nil {
		return nil, fmt.Errorf("signaling provider not registered: %s", provider)
	}
	return fn(cfg)
}
