package provider

import (
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/config"
	"github.com/sells-group/leadgen-cli/internal/icp"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/resilience"
	"github.com/sells-group/leadgen-cli/pkg/anthropic"
	"github.com/sells-group/leadgen-cli/pkg/apollo"
	"github.com/sells-group/leadgen-cli/pkg/hunter"
)

// New builds the provider set selected by cfg. profile supplies the default
// Hunter title filter.
func New(cfg *config.Config, profile icp.Profile) (*Set, error) {
	set := &Set{Gates: NewGates(cfg)}

	var fixture *Fixture
	loadFixture := func() (*Fixture, error) {
		if fixture != nil {
			return fixture, nil
		}
		if cfg.Providers.FixturePath == "" {
			return nil, model.NewConfigurationError("providers.fixture_path is required for the fixture backend")
		}
		fx, err := LoadFixture(cfg.Providers.FixturePath)
		if err != nil {
			return nil, err
		}
		fixture = fx
		return fx, nil
	}

	var hunterClient hunter.Client
	hunterAPI := func() hunter.Client {
		if hunterClient == nil {
			var opts []hunter.Option
			if cfg.Hunter.BaseURL != "" {
				opts = append(opts, hunter.WithBaseURL(cfg.Hunter.BaseURL))
			}
			hunterClient = hunter.NewClient(cfg.Hunter.Key, opts...)
		}
		return hunterClient
	}

	switch cfg.Providers.Discovery.Backend {
	case config.BackendHunter:
		titles := cfg.Hunter.TitleFilter
		if len(titles) == 0 {
			titles = profile.TargetTitles
		}
		set.Discoverer = NewHunterDiscoverer(hunterAPI(), titles)
	case config.BackendFixture:
		fx, err := loadFixture()
		if err != nil {
			return nil, err
		}
		set.Discoverer = fx
	default:
		return nil, model.NewConfigurationError("unknown discovery backend " + cfg.Providers.Discovery.Backend)
	}

	switch cfg.Providers.Enrichment.Backend {
	case config.BackendApollo:
		var opts []apollo.Option
		if cfg.Apollo.BaseURL != "" {
			opts = append(opts, apollo.WithBaseURL(cfg.Apollo.BaseURL))
		}
		var verifier *HunterVerifier
		if cfg.Hunter.Key != "" {
			verifier = NewHunterVerifier(hunterAPI())
		}
		ttl := time.Duration(cfg.Apollo.CacheTTLMins) * time.Minute
		set.Enricher = NewApolloEnricher(apollo.NewClient(cfg.Apollo.Key, opts...), verifier, ttl)
	case config.BackendFixture:
		fx, err := loadFixture()
		if err != nil {
			return nil, err
		}
		set.Enricher = fx
	default:
		return nil, model.NewConfigurationError("unknown enrichment backend " + cfg.Providers.Enrichment.Backend)
	}

	switch cfg.Providers.Drafting.Backend {
	case config.BackendAnthropic:
		if cfg.Anthropic.Key == "" {
			return nil, model.NewConfigurationError("anthropic.key is required")
		}
		client := anthropic.NewClient(cfg.Anthropic.Key, option.WithRequestTimeout(cfg.Pipeline.CallTimeout()))
		set.Drafter = NewAnthropicDrafter(client, AnthropicConfig{
			Model:       cfg.Anthropic.Model,
			MaxTokens:   int64(cfg.Anthropic.MaxTokens),
			Temperature: cfg.Anthropic.Temperature,
			Offer:       cfg.Anthropic.Offer,
		})
	case config.BackendTemplate:
		set.Drafter = NewTemplateDrafter(cfg.Anthropic.Offer)
	default:
		return nil, model.NewConfigurationError("unknown drafting backend " + cfg.Providers.Drafting.Backend)
	}

	zap.L().Info("provider: backends ready",
		zap.String("discovery", set.Discoverer.Name()),
		zap.String("enrichment", set.Enricher.Name()),
		zap.String("drafting", set.Drafter.Name()),
	)
	return set, nil
}

// NewGates builds one gate per provider category from cfg. Gates are shared
// by every job the process runs.
func NewGates(cfg *config.Config) Gates {
	build := func(category string, pc config.ProviderConfig) *resilience.Gate {
		name := category + ":" + pc.Backend
		gc := resilience.GateConfig{
			MaxConcurrency: pc.MaxConcurrency,
			RatePerSec:     pc.RatePerSec,
			Burst:          pc.Burst,
			Timeout:        cfg.Pipeline.CallTimeout(),
		}
		if bc := resilience.FromBreakerConfig(cfg.Pipeline.Circuit.FailureThreshold, cfg.Pipeline.Circuit.ResetTimeoutSecs); bc != nil {
			gc.Breaker = resilience.NewBreaker(name, *bc)
		}
		return resilience.NewGate(name, gc)
	}
	return Gates{
		Discovery:  build("discovery", cfg.Providers.Discovery),
		Enrichment: build("enrichment", cfg.Providers.Enrichment),
		Drafting:   build("drafting", cfg.Providers.Drafting),
	}
}

// ErrNoBackend is returned when a set is missing a category.
var ErrNoBackend = eris.New("provider: backend not configured")

// Check reports ErrNoBackend if any category is unset.
func (s *Set) Check() error {
	if s == nil || s.Discoverer == nil || s.Enricher == nil || s.Drafter == nil {
		return ErrNoBackend
	}
	if s.Gates.Discovery == nil || s.Gates.Enrichment == nil || s.Gates.Drafting == nil {
		return eris.Wrap(ErrNoBackend, "gates")
	}
	return nil
}
