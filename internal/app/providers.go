package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"contentgen/internal/approval"
	"contentgen/internal/cache"
	"contentgen/internal/diversity"
	"contentgen/internal/domain"
	"contentgen/internal/infra"
	"contentgen/internal/infra/credentials"
	"contentgen/internal/providers/genai"
	"contentgen/internal/providers/image"
	"contentgen/internal/providers/quality"
	"contentgen/internal/providers/reasoning"
	"contentgen/internal/selection"
	"contentgen/internal/storage"
)

const (
	variationCacheKey = "contentgen:config:variation"
	selectionCacheKey = "contentgen:config:selection"
)

type providerSet struct {
	reasoning reasoning.Provider
	images    image.Generator
	quality   quality.Evaluator
	approval  approval.Channel
	publisher storage.Publisher
}

func (c *Container) buildCaches(ctx context.Context) error {
	cfg := c.Config
	var (
		variationCache cache.Cache[domain.VariationConfig]
		selectionCache cache.Cache[selection.Config]
	)
	switch cfg.Cache.Driver {
	case "redis":
		client, err := infra.NewRedisClient(ctx, cfg)
		if err != nil {
			return err
		}
		c.closers = append(c.closers, client.Close)
		c.checks["redis"] = redisPinger{client: client}
		variationCache = cache.NewRedis[domain.VariationConfig](client, variationCacheKey, cfg.Cache.TTL, c.Logger)
		selectionCache = cache.NewRedis[selection.Config](client, selectionCacheKey, cfg.Cache.TTL, c.Logger)
	case "memory", "":
		variationCache = cache.NewMemory[domain.VariationConfig](cfg.Cache.TTL, nil)
		selectionCache = cache.NewMemory[selection.Config](cfg.Cache.TTL, nil)
	default:
		return fmt.Errorf("unknown CACHE_DRIVER %q", cfg.Cache.Driver)
	}

	c.Resolver = diversity.NewResolver(c.Repos.History, c.Repos.Configs, variationCache, variationDefaults(cfg.Diversity), c.Logger)
	engine, err := selection.NewEngine(selection.NewConfigSource(c.Repos.Configs, selectionCache, c.Logger), c.Repos.Audit, c.Logger)
	if err != nil {
		return fmt.Errorf("selection engine: %w", err)
	}
	c.Engine = engine
	return nil
}

// resolveKey prefers the environment and falls back to a token stored in the
// database by cmd/providerkey.
func (c *Container) resolveKey(ctx context.Context, provider, configured string) string {
	key, err := c.creds.Resolve(ctx, provider, configured)
	if err != nil {
		c.Logger.Warn().Err(err).Str("provider", provider).Msg("failed to load stored credential")
		return configured
	}
	return key
}

func (c *Container) buildProviders(ctx context.Context) (*providerSet, error) {
	cfg := c.Config.Providers
	logger := c.Logger
	set := &providerSet{}

	client, err := genai.NewClient(genai.Options{
		APIKey:     c.resolveKey(ctx, credentials.ProviderGemini, cfg.GeminiAPIKey),
		BaseURL:    cfg.GeminiBaseURL,
		TextModel:  cfg.GeminiTextModel,
		ImageModel: cfg.GeminiImageModel,
		HTTPClient: &http.Client{Timeout: 120 * time.Second},
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	if client.Offline() {
		logger.Warn().Str("model", client.ImageModel()).Msg("gemini api key missing, rendering synthetic images")
	}

	pricing := reasoning.Pricing{InputPerKTok: cfg.CostPerInputKTok, OutputPerKTok: cfg.CostPerOutputKTok}
	set.reasoning, err = c.buildReasoning(ctx, client, pricing)
	if err != nil {
		return nil, err
	}

	set.images, err = image.NewGeminiGenerator(client, cfg.CostPerImage, logger)
	if err != nil {
		return nil, err
	}

	switch {
	case cfg.Quality == "static" || client.Offline():
		if cfg.Quality != "static" {
			logger.Warn().Msg("quality provider offline, using static evaluator")
		}
		set.quality = quality.NewStaticEvaluator(0)
	case cfg.Quality == "gemini":
		set.quality, err = quality.NewGeminiEvaluator(client, cfg.CostPerEvaluation, logger)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown QUALITY_PROVIDER %q", cfg.Quality)
	}

	set.approval, err = c.buildApproval(ctx)
	if err != nil {
		return nil, err
	}
	set.publisher, err = c.buildPublisher(ctx)
	if err != nil {
		return nil, err
	}
	return set, nil
}

// buildReasoning falls back to Gemini and then to the static provider when the
// configured one has no credentials, so local runs still complete.
func (c *Container) buildReasoning(ctx context.Context, client *genai.Client, pricing reasoning.Pricing) (reasoning.Provider, error) {
	cfg := c.Config.Providers
	logger := c.Logger
	switch cfg.Reasoning {
	case "openai":
		key := c.resolveKey(ctx, credentials.ProviderOpenAI, cfg.OpenAIAPIKey)
		if key != "" {
			return reasoning.NewOpenAIProvider(reasoning.OpenAIOptions{
				APIKey:     key,
				Model:      cfg.OpenAIModel,
				BaseURL:    cfg.OpenAIBaseURL,
				MaxRetries: 2,
				Pricing:    pricing,
				Logger:     logger,
			})
		}
		logger.Warn().Msg("openai api key missing, falling back to gemini reasoning")
		fallthrough
	case "gemini":
		if !client.Offline() {
			return reasoning.NewGeminiProvider(reasoning.GeminiOptions{Client: client, Pricing: pricing, Logger: logger})
		}
		logger.Warn().Msg("gemini api key missing, using static reasoning")
		return reasoning.NewStaticProvider(), nil
	case "static":
		return reasoning.NewStaticProvider(), nil
	}
	return nil, fmt.Errorf("unknown REASONING_PROVIDER %q", cfg.Reasoning)
}

func (c *Container) buildApproval(ctx context.Context) (approval.Channel, error) {
	cfg := c.Config.Approval
	if cfg.WebhookURL == "" {
		c.Logger.Warn().Msg("APPROVAL_WEBHOOK_URL not set, approval requests are only logged")
		return approval.NewLogChannel(c.Logger), nil
	}
	token := c.resolveKey(ctx, credentials.ProviderApproval, cfg.WebhookToken)
	return approval.NewWebhookChannel(cfg.WebhookURL, token, &http.Client{Timeout: cfg.Timeout}, c.Logger)
}

func (c *Container) buildPublisher(ctx context.Context) (storage.Publisher, error) {
	cfg := c.Config.Storage
	switch cfg.Driver {
	case "gcs":
		store, err := storage.NewGCSStore(ctx, storage.GCSOptions{
			Bucket:         cfg.GCSBucket,
			PublicBaseURL:  cfg.GCSPublicBaseURL,
			CredentialFile: cfg.GCSCredentialFile,
		})
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, store.Close)
		return store, nil
	case "filesystem", "":
		return storage.NewFileStore(cfg.Dir, cfg.BaseURL)
	}
	return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.Driver)
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
