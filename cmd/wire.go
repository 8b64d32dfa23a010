package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	chainsource "github.com/bnema/parley/internal/adapters/credentials/chain"
	statusadapter "github.com/bnema/parley/internal/adapters/render/status"
	anthropictransport "github.com/bnema/parley/internal/adapters/transport/anthropic"
	geminitransport "github.com/bnema/parley/internal/adapters/transport/gemini"
	openaitransport "github.com/bnema/parley/internal/adapters/transport/openai"
	"github.com/bnema/parley/internal/adapters/transport/router"
	"github.com/bnema/parley/internal/adapters/transport/scripted"
	"github.com/bnema/parley/internal/application"
	"github.com/bnema/parley/internal/config"
	"github.com/bnema/parley/internal/domain"
	"github.com/bnema/parley/internal/logger"
	"github.com/bnema/parley/internal/ports"
	"github.com/bnema/parley/internal/telemetry"
	"github.com/bnema/parley/internal/version"
)

const serviceName = "parley"

type app struct {
	cfg         config.Config
	logger      *log.Logger
	credentials ports.CredentialSource
	render      func(application.Snapshot, statusadapter.RenderOptions) (string, error)
	clock       ports.Clock
	shutdown    telemetry.Shutdown
}

func (a *app) wire(ctx context.Context, configPath, logLevel string, stderr io.Writer) error {
	cfg, err := config.Load(viper.New(), configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	credentialDir, err := resolveCredentialDir(cfg.Credentials.Dir)
	if err != nil {
		return err
	}
	credentials, err := chainsource.NewDefault(credentialDir)
	if err != nil {
		return fmt.Errorf("wire credential chain: %w", err)
	}

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry.Endpoint, serviceName, version.Version, cfg.Telemetry.Insecure)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	a.cfg = cfg
	a.logger = logger.New(stderr, cfg.LogLevel)
	a.credentials = credentials
	a.render = statusadapter.Render
	a.clock = ports.SystemClock{}
	a.shutdown = shutdown
	return nil
}

func (a *app) close(ctx context.Context) error {
	if a.shutdown == nil {
		return nil
	}
	return a.shutdown(ctx)
}

// resolveCredentialDir defaults to ~/.config/parley/credentials.
func resolveCredentialDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config directory: %w", err)
	}
	return filepath.Join(configDir, serviceName, "credentials"), nil
}

// newRouter registers the scripted transport plus every provider whose API
// key can be found.
func (a *app) newRouter(ctx context.Context, lines map[domain.AgentID][]string) (*router.Router, error) {
	r := router.New(domain.LLMType(a.cfg.Transport.Default), a.logger)
	r.Register(domain.LLMTypeScripted, scripted.New(a.cfg.Transport.Latency, lines))

	for _, llmType := range domain.KnownLLMTypes() {
		if llmType == domain.LLMTypeScripted {
			continue
		}

		key, err := a.credentials.Lookup(ctx, string(llmType)+"/api_key")
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if errors.Is(err, domain.ErrCredentialNotFound) {
				a.logger.Debug("provider not configured", "type", llmType)
			} else {
				a.logger.Warn("provider credential lookup failed", "type", llmType, "err", err)
			}
			continue
		}

		t, err := a.providerTransport(ctx, llmType, strings.TrimSpace(key))
		if err != nil {
			return nil, err
		}
		r.Register(llmType, t)
		a.logger.Info("provider registered", "type", llmType)
	}

	return r, nil
}

func (a *app) providerTransport(ctx context.Context, llmType domain.LLMType, key string) (ports.Transport, error) {
	tc := a.cfg.Transport
	maxTokens := int(tc.MaxTokens)

	switch llmType {
	case domain.LLMTypeOpenAI:
		return openaitransport.New(key,
			openaitransport.WithModel(tc.OpenAIModel),
			openaitransport.WithMaxTokens(maxTokens),
			openaitransport.WithLogger(a.logger),
		), nil
	case domain.LLMTypeAnthropic:
		return anthropictransport.New(key,
			anthropictransport.WithModel(tc.AnthropicModel),
			anthropictransport.WithMaxTokens(maxTokens),
			anthropictransport.WithLogger(a.logger),
		), nil
	case domain.LLMTypeGemini:
		client, err := geminitransport.New(ctx, key,
			geminitransport.WithModel(tc.GeminiModel),
			geminitransport.WithMaxTokens(maxTokens),
			geminitransport.WithLogger(a.logger),
		)
		if err != nil {
			return nil, fmt.Errorf("wire gemini transport: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("wire %q transport: %w", llmType, domain.ErrUnknownLLMType)
	}
}

func (a *app) settings() application.Settings {
	c := a.cfg
	return application.Settings{
		RateCapacity: c.Rate.Capacity,
		RateWindow:   c.Rate.Window,
		HearingRange: c.Conversation.HearingRange,
		Turn: application.TurnConfig{
			SpeechRate:   c.Conversation.SpeechRate,
			PrefetchLead: c.Conversation.PrefetchLead,
		},
		Social: application.SocialConfig{
			CrowdThreshold:   c.Social.CrowdThreshold,
			AttractThreshold: c.Social.AttractThreshold,
			RepelThreshold:   c.Social.RepelThreshold,
			Magnitude:        c.Social.ForceMagnitude,
		},
	}
}
