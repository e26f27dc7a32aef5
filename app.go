package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"auto_social_publisher/chat"
	"auto_social_publisher/compose"
	"auto_social_publisher/config"
	"auto_social_publisher/generator"
	"auto_social_publisher/journal"
	"auto_social_publisher/logging"
	"auto_social_publisher/mailing"
	"auto_social_publisher/menu"
	"auto_social_publisher/metrics"
	"auto_social_publisher/publisher"
	"auto_social_publisher/server"
	"auto_social_publisher/telegram"
)

const (
	labelPost  = "Publier sur Facebook"
	labelEmail = "Mass Mailing"
)

// runBot wires every collaborator once and runs the menu. Polling and the
// HTTP server stop when the menu ends.
func runBot(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if err := cfg.ValidateBot(); err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	gen, transcriber, err := buildGenerator(cfg, logger)
	if err != nil {
		return err
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	transport, err := telegram.NewTransport(bot, cfg.Telegram.OperatorID, logging.Component(logger, "telegram"))
	if err != nil {
		return err
	}
	gw, err := chat.NewGateway(transport, transcriber, cfg.Telegram.OperatorID, logging.Component(logger, "chat"))
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}

	engineOpts := []compose.Option{
		compose.WithLocation(loc),
		compose.WithLogger(logging.Component(logger, "compose")),
		compose.WithObserver(m),
	}
	var serverOpts []server.Option
	if cfg.Journal.Path != "" {
		store, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		engineOpts = append(engineOpts, compose.WithRecorder(store))
		serverOpts = append(serverOpts, server.WithDeliveries(store, cfg.Server.APIToken))
	}
	engine, err := compose.NewEngine(gw, gen, cfg.Flow.Timeout, engineOpts...)
	if err != nil {
		return err
	}
	mn, err := menu.New(gw, engine, cfg.Flow.MenuTimeout, flowEntries(cfg, gen, loc, logger),
		menu.WithChoiceCounter(m.MenuChoice),
		menu.WithLogger(logging.Component(logger, "menu")),
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	tgLogger := logging.Component(logger, "telegram")
	if cfg.Telegram.Mode == "webhook" {
		if err := telegram.RegisterWebhook(bot, cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret); err != nil {
			return err
		}
		serverOpts = append(serverOpts, server.WithWebhook(telegram.WebhookHandler(ctx, gw, cfg.Telegram.WebhookSecret, tgLogger)))
	} else {
		g.Go(func() error { return telegram.Poll(ctx, bot, gw, tgLogger) })
	}
	if cfg.Server.Addr != "" {
		srv, err := server.New(reg, logging.Component(logger, "server"), serverOpts...)
		if err != nil {
			return err
		}
		g.Go(func() error { return srv.ListenAndServe(ctx, cfg.Server.Addr) })
	}
	g.Go(func() error {
		defer cancel()
		logger.Info("assistant ready", "operator", cfg.Telegram.OperatorID, "mode", cfg.Telegram.Mode, "timezone", loc.String())
		return mn.Run(ctx)
	})
	return g.Wait()
}

// flowEntries builds each sink when its entry is picked, so missing
// credentials only block the flow that needs them.
func flowEntries(cfg *config.Config, gen *generator.Generator, loc *time.Location, logger *slog.Logger) []menu.Entry {
	return []menu.Entry{
		{
			Label: labelPost,
			Build: func() (*compose.Policy, error) {
				fb, err := publisher.New(cfg.Facebook, nil, logging.Component(logger, "facebook"))
				if err != nil {
					return nil, err
				}
				return compose.PostPolicy(gen, fb, compose.PostConfig{
					Styles: cfg.Flow.Styles,
					Groups: fb.Groups(),
				}), nil
			},
		},
		{
			Label: labelEmail,
			Build: func() (*compose.Policy, error) {
				odoo, err := mailing.New(cfg.Odoo, logging.Component(logger, "odoo"))
				if err != nil {
					return nil, err
				}
				return compose.EmailPolicy(gen, odoo, compose.EmailConfig{
					Lists: odoo.Lists(),
					Footer: compose.Footer{
						Homepage:    compose.Link(cfg.Odoo.Homepage),
						Unsubscribe: cfg.Odoo.UnsubscribeText,
					},
					Location: loc,
				}), nil
			},
		},
	}
}

// buildGenerator picks the model provider. deepseek and other gateways speak
// the OpenAI API and only need a base_url.
func buildGenerator(cfg *config.Config, logger *slog.Logger) (*generator.Generator, chat.Transcriber, error) {
	genLogger := logging.Component(logger, "generator")
	var (
		llm         generator.LLMClient
		images      generator.ImageClient
		transcriber chat.Transcriber
	)
	switch cfg.LLM.Provider {
	case "mock":
		llm, images, transcriber = generator.MockLLM{}, generator.MockImages{}, generator.MockTranscriber{}
	case "openai", "deepseek":
		// DeepSeek 提供 OpenAI 兼容接口，需填写 base_url。
		if cfg.LLM.Provider == "deepseek" && cfg.LLM.BaseURL == "" {
			return nil, nil, &config.Error{Field: "llm.base_url", Msg: "required for provider deepseek (OpenAI-compatible endpoint)"}
		}
		settings := &generator.LLMSettings{
			Provider:        cfg.LLM.Provider,
			Model:           cfg.LLM.Model,
			ImageModel:      cfg.LLM.ImageModel,
			TranscribeModel: cfg.LLM.TranscribeModel,
			APIKey:          cfg.LLM.APIKey,
			BaseURL:         cfg.LLM.BaseURL,
		}
		l, err := generator.NewOpenAILLMFromConfig(settings)
		if err != nil {
			return nil, nil, err
		}
		img, err := generator.NewOpenAIImagesFromConfig(settings)
		if err != nil {
			return nil, nil, err
		}
		tr, err := generator.NewOpenAITranscriberFromConfig(settings, genLogger)
		if err != nil {
			return nil, nil, err
		}
		llm, images, transcriber = l, img, tr
	default:
		return nil, nil, &config.Error{Field: "llm.provider", Msg: fmt.Sprintf("provider %q not supported", cfg.LLM.Provider)}
	}
	gen, err := generator.NewGenerator(llm, images, genLogger)
	if err != nil {
		return nil, nil, err
	}
	return gen, transcriber, nil
}
