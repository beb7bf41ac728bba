package main

import (
	"context"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/baker-street/brain/pkg/agent"
	"github.com/baker-street/brain/pkg/api"
	"github.com/baker-street/brain/pkg/brain"
	"github.com/baker-street/brain/pkg/bus"
	"github.com/baker-street/brain/pkg/channel"
	"github.com/baker-street/brain/pkg/config"
	"github.com/baker-street/brain/pkg/dispatcher"
	"github.com/baker-street/brain/pkg/door"
	"github.com/baker-street/brain/pkg/logger"
	"github.com/baker-street/brain/pkg/memory"
	"github.com/baker-street/brain/pkg/metrics"
	"github.com/baker-street/brain/pkg/registry"
	"github.com/baker-street/brain/pkg/registry/plugins"
	"github.com/baker-street/brain/pkg/registry/skills"
	"github.com/baker-street/brain/pkg/router"
	"github.com/baker-street/brain/pkg/router/anthropic"
	"github.com/baker-street/brain/pkg/router/openaicompat"
	"github.com/baker-street/brain/pkg/scheduler"
	"github.com/baker-street/brain/pkg/store"
	"github.com/baker-street/brain/pkg/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the brain's HTTP API and worker fabric",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(parentCtx context.Context) error {
	ctx, stop := signal.NotifyContext(parentCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	st, err := store.Open(ctx, filepath.Join(cfg.DataDir, "bakerst.db"))
	if err != nil {
		return errors.Wrap(err, "failed to open store")
	}
	defer st.Close()

	b, err := bus.Connect(ctx, cfg.NATSURL)
	if err != nil {
		return errors.Wrap(err, "failed to connect to message bus")
	}
	defer b.Close()

	rt := buildRouter(cfg)
	usageTracker := api.NewUsageTracker()
	rt.SetOnAPICall(usageTracker.Record)

	skillRegistry := skills.New(st)
	if err := skillRegistry.Refresh(ctx); err != nil {
		logger.G(ctx).WithError(err).Warn("failed to connect one or more skills on startup")
	}
	pluginRegistry := plugins.New(
		plugins.NewUtilTimeTool(),
		plugins.NewHTTPFetchTool(),
		plugins.NewCommandTool(cfg.TaskAllowedPaths),
	)
	tools := registry.New(skillRegistry, pluginRegistry)

	longTerm := buildRetriever(ctx, cfg)

	ag := agent.New(st, rt, tools, longTerm, agent.Config{
		SystemPrompt: "You are Baker Street, a personal AI assistant.",
	})

	d := dispatcher.New(st, b)
	sch := scheduler.New(st, d)
	if err := sch.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start scheduler")
	}
	defer sch.Stop()

	br := brain.New(st, b, cfg.BrainVersion, cfg.BrainTransferEnabled)
	ag.SetTurnTracker(br)
	role := brain.RoleActive
	if cfg.BrainRole == string(brain.RolePending) {
		role = brain.RolePending
	}
	if err := br.Start(ctx, role); err != nil {
		return errors.Wrap(err, "failed to start brain lifecycle")
	}

	w := worker.New(b, rt, worker.Config{WorkerID: cfg.AgentName + "-worker"})
	go func() {
		if err := w.Run(ctx); err != nil && ctx.Err() == nil {
			logger.G(ctx).WithError(err).Error("worker loop exited")
		}
	}()

	tracker := worker.NewStatusTracker(st, b)
	statusSub, err := tracker.Start(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to start status tracker")
	}
	defer statusSub.Unsubscribe()

	var registryProxy *api.RegistryProxy
	if cfg.MCPRegistryURL != "" {
		registryProxy = api.NewRegistryProxy(cfg.MCPRegistryURL)
	}

	srv := api.New(st, ag, d, sch, br, cfg.BrainVersion, api.Config{
		AuthToken:   cfg.AuthToken,
		AgentName:   cfg.AgentName,
		CORSOrigins: cfg.CORSOrigins,
		StartedAt:   time.Now(),
		MCPRegistry: registryProxy,
		Usage:       usageTracker,
	})

	mux := http.NewServeMux()
	mux.Handle("/", srv.Handler())
	mux.Handle("/metrics", metrics.Handler())

	httpServer := &http.Server{Addr: ":" + cfg.Port, Handler: mux}

	if cfg.DiscordBotToken != "" {
		doorPolicy := door.New(st, door.Mode(cfg.DoorMode))
		discordChannel, err := channel.NewDiscord(channel.DiscordConfig{BotToken: cfg.DiscordBotToken}, ag, doorPolicy)
		if err != nil {
			logger.G(ctx).WithError(err).Warn("failed to construct discord channel, continuing without it")
		} else {
			go func() {
				if err := discordChannel.Start(ctx); err != nil && ctx.Err() == nil {
					logger.G(ctx).WithError(err).Error("discord channel stopped")
				}
			}()
		}
	}

	go func() {
		<-br.ShutdownSignal()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.G(ctx).WithField("port", cfg.Port).Info("brain serving")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "http server failed")
	}
	return nil
}

func buildRouter(cfg config.Config) *router.Router {
	providers := map[string]router.ProviderConfig{
		"anthropic": {Kind: router.ProviderAnthropicNative, APIKey: cfg.AnthropicAPIKey, OAuthToken: cfg.AnthropicOAuthToken},
	}
	if cfg.OpenRouterAPIKey != "" {
		providers["openrouter"] = router.ProviderConfig{Kind: router.ProviderOpenAICompat, APIKey: cfg.OpenRouterAPIKey, BaseURL: "https://openrouter.ai/api/v1"}
	}

	defaultModel := cfg.DefaultModel
	if defaultModel == "" {
		defaultModel = "claude-default"
	}
	observerModel := cfg.ObserverModel
	if observerModel == "" {
		observerModel = defaultModel
	}

	rcfg := router.Config{
		Providers: providers,
		Models: []router.ModelConfig{
			{
				ID: "claude-default", ModelName: "claude-sonnet-4-5", Provider: "anthropic", MaxTokens: 8192,
				CostPer1MInput: 3.0, CostPer1MOutput: 15.0,
			},
		},
		Roles: map[string]string{
			"agent":    defaultModel,
			"observer": observerModel,
			"worker":   defaultModel,
		},
	}

	factories := map[router.ProviderKind]router.AdapterFactory{
		router.ProviderAnthropicNative: func(p router.ProviderConfig) router.Adapter {
			token := p.APIKey
			if p.OAuthToken != "" {
				token = p.OAuthToken
			}
			return anthropic.New(token, p.BaseURL, p.OAuthToken != "")
		},
		router.ProviderOpenAICompat: func(p router.ProviderConfig) router.Adapter {
			return openaicompat.New(p.APIKey, p.BaseURL)
		},
	}
	return router.New(rcfg, factories)
}

func buildRetriever(ctx context.Context, cfg config.Config) memory.Retriever {
	if cfg.QdrantHost == "" {
		return memory.NoopRetriever{}
	}
	retriever, err := memory.NewQdrantRetriever(cfg.QdrantHost, cfg.QdrantPort, cfg.QdrantCollection)
	if err != nil {
		logger.G(ctx).WithError(err).Warn("failed to connect to qdrant, continuing without long-term memory retrieval")
		return memory.NoopRetriever{}
	}
	return retriever
}
