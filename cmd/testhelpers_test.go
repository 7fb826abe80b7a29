//go:build !integration

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/internal/config"
)

const testFixture = `
domains:
  acme.com:
    company:
      name: Acme
      industry: B2B SaaS
      employees: 120
      funding_stage: Series B
      hq_location: Austin, United States
      tech_stack: [HubSpot, Salesforce]
    contacts:
      - name: Jane Doe
        title: VP of Sales
        email: jane@acme.com
        verified: true
      - name: Bob Roe
        title: Sales Representative
        email: bob@acme.com
  globex.io:
    company:
      name: Globex
      industry: Retail
      employees: 5000
      funding_stage: Seed
      hq_location: Berlin, Germany
    contacts:
      - name: Hank Scorpio
        title: CTO
        email: hank@globex.io
  flaky.io:
    fail:
      discovery: permanent
`

// testConfig points every backend at an offline fixture and a SQLite file
// in a temp dir, and installs it as the command config.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	fixture := filepath.Join(dir, "fixture.yaml")
	require.NoError(t, os.WriteFile(fixture, []byte(testFixture), 0o600))

	provider := func(backend string) config.ProviderConfig {
		return config.ProviderConfig{Backend: backend, MaxConcurrency: 5}
	}
	cfg = &config.Config{
		Store: config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(dir, "leadgen.db")},
		Log:   config.LogConfig{Level: "error", Format: "console"},
		Server: config.ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"https://app.example.com"},
		},
		Pipeline: config.PipelineConfig{
			MaxConcurrentDomains: 4,
			MaxLeadsPerDomain:    5,
			LeadConcurrency:      2,
			CallTimeoutSecs:      5,
			Retry: config.RetryConfig{
				MaxAttempts:      2,
				InitialBackoffMs: 1,
				MaxBackoffMs:     2,
				Multiplier:       2,
			},
		},
		Providers: config.ProvidersConfig{
			Discovery:   provider(config.BackendFixture),
			Enrichment:  provider(config.BackendFixture),
			Drafting:    provider(config.BackendTemplate),
			FixturePath: fixture,
		},
		Anthropic: config.AnthropicConfig{Offer: "We book qualified meetings."},
		Export:    config.ExportConfig{Dir: filepath.Join(dir, "exports"), Format: "csv"},
	}
	return cfg
}

// testEnv builds a full pipeline environment over testConfig.
func testEnv(t *testing.T) *pipelineEnv {
	t.Helper()
	testConfig(t)
	env, err := initPipeline(context.Background(), "run")
	require.NoError(t, err)
	t.Cleanup(env.Close)
	return env
}
