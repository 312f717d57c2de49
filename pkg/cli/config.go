package cli

import (
	"context"
	"os"
	"time"

	"github.com/m-mizutani/concierge/pkg/adapter"
	"github.com/m-mizutani/concierge/pkg/interfaces"
	"github.com/m-mizutani/concierge/pkg/model"
	"github.com/m-mizutani/concierge/pkg/policy"
	"github.com/m-mizutani/concierge/pkg/repository"
	"github.com/m-mizutani/concierge/pkg/usecase/agent"
	"github.com/m-mizutani/concierge/pkg/usecase/analytics"
	"github.com/m-mizutani/concierge/pkg/usecase/chat"
	"github.com/m-mizutani/concierge/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

// config holds configuration values
type config struct {
	logLevel string

	// Repository
	backend       string
	project       string
	database      string
	redisAddr     string
	redisPassword string
	redisDB       int64
	stateTTL      time.Duration

	// LLM
	llm             string
	geminiProject   string
	geminiLocation  string
	geminiModel     string
	anthropicAPIKey string
	claudeModel     string

	// Agent
	policyPath       string
	dictionaryPath   string
	recordVisitor    bool
	transcriptBucket string
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("CONCIERGE_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "backend",
			Aliases:     []string{"b"},
			Usage:       "State and analytics backend (memory, firestore, redis)",
			Value:       "firestore",
			Sources:     cli.EnvVars("CONCIERGE_BACKEND"),
			Destination: &cfg.backend,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
		&cli.StringFlag{
			Name:        "redis-addr",
			Usage:       "Redis address (host:port)",
			Value:       "localhost:6379",
			Sources:     cli.EnvVars("CONCIERGE_REDIS_ADDR"),
			Destination: &cfg.redisAddr,
		},
		&cli.StringFlag{
			Name:        "redis-password",
			Usage:       "Redis password",
			Sources:     cli.EnvVars("CONCIERGE_REDIS_PASSWORD"),
			Destination: &cfg.redisPassword,
		},
		&cli.IntFlag{
			Name:        "redis-db",
			Usage:       "Redis database number",
			Sources:     cli.EnvVars("CONCIERGE_REDIS_DB"),
			Destination: &cfg.redisDB,
		},
		&cli.DurationFlag{
			Name:        "state-ttl",
			Usage:       "Expire idle session state after this duration (redis only, 0 keeps forever)",
			Sources:     cli.EnvVars("CONCIERGE_STATE_TTL"),
			Destination: &cfg.stateTTL,
		},
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "llm",
			Usage:       "LLM used to answer visitors (gemini, claude)",
			Value:       "gemini",
			Sources:     cli.EnvVars("CONCIERGE_LLM"),
			Destination: &cfg.llm,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini model name",
			Value:       "gemini-2.5-flash",
			Sources:     cli.EnvVars("GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
		&cli.StringFlag{
			Name:        "anthropic-api-key",
			Usage:       "Anthropic API key",
			Sources:     cli.EnvVars("ANTHROPIC_API_KEY"),
			Destination: &cfg.anthropicAPIKey,
		},
		&cli.StringFlag{
			Name:        "claude-model",
			Usage:       "Claude model name",
			Value:       "claude-sonnet-4-5",
			Sources:     cli.EnvVars("CLAUDE_MODEL"),
			Destination: &cfg.claudeModel,
		},
	}
}

// agentFlags returns flags for the reducer, analytics and transcripts
func agentFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "policy",
			Usage:       "Rego file or directory deriving next actions from qualification updates",
			Sources:     cli.EnvVars("CONCIERGE_POLICY"),
			Destination: &cfg.policyPath,
		},
		&cli.StringFlag{
			Name:        "dictionary",
			Usage:       "YAML keyword dictionary for engagement analytics",
			Sources:     cli.EnvVars("CONCIERGE_DICTIONARY"),
			Destination: &cfg.dictionaryPath,
		},
		&cli.BoolFlag{
			Name:        "record-visitor-messages",
			Usage:       "Store visitor messages in the conversation history next to agent replies",
			Value:       true,
			Sources:     cli.EnvVars("CONCIERGE_RECORD_VISITOR_MESSAGES"),
			Destination: &cfg.recordVisitor,
		},
		&cli.StringFlag{
			Name:        "transcript-bucket",
			Usage:       "Cloud Storage bucket for conversation transcripts (disabled if empty)",
			Sources:     cli.EnvVars("CONCIERGE_TRANSCRIPT_BUCKET"),
			Destination: &cfg.transcriptBucket,
		},
	}
}

// setupLogger attaches a logger configured by --log-level to ctx
func (cfg *config) setupLogger(ctx context.Context) (context.Context, error) {
	level, err := logging.ParseLevel(cfg.logLevel)
	if err != nil {
		return ctx, err
	}
	logger := logging.New(level, os.Stderr)
	logging.SetDefault(logger)
	return logging.With(ctx, logger), nil
}

// newRepository creates the repository selected by --backend
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, error) {
	switch cfg.backend {
	case "memory":
		logging.From(ctx).Warn("memory backend keeps state only for this process")
		return repository.NewMemory(), nil

	case "firestore", "":
		if cfg.project == "" {
			return nil, goerr.New("project is required for firestore backend")
		}
		if cfg.database == "" {
			return nil, goerr.New("database is required for firestore backend")
		}
		repo, err := repository.New(cfg.project, cfg.database)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create repository")
		}
		return repo, nil

	case "redis":
		repo, err := repository.NewRedis(ctx, repository.RedisConfig{
			Addr:     cfg.redisAddr,
			Password: cfg.redisPassword,
			DB:       int(cfg.redisDB),
			StateTTL: cfg.stateTTL,
		})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create repository")
		}
		return repo, nil

	default:
		return nil, goerr.New("unsupported backend",
			goerr.V("backend", cfg.backend),
			goerr.V("supported", []string{"memory", "firestore", "redis"}))
	}
}

// newResponder creates the responder selected by --llm
func (cfg *config) newResponder(ctx context.Context) (interfaces.Responder, error) {
	switch cfg.llm {
	case "gemini", "":
		if cfg.geminiProject == "" {
			return nil, goerr.New("gemini-project is required")
		}
		if cfg.geminiLocation == "" {
			return nil, goerr.New("gemini-location is required")
		}
		gemini, err := adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation,
			adapter.WithGenerativeModel(cfg.geminiModel))
		if err != nil {
			return nil, err
		}
		return chat.NewGeminiResponder(gemini), nil

	case "claude":
		if cfg.anthropicAPIKey == "" {
			return nil, goerr.New("anthropic-api-key is required")
		}
		return chat.NewClaudeResponder(adapter.NewClaude(cfg.anthropicAPIKey,
			adapter.WithClaudeModel(cfg.claudeModel))), nil

	default:
		return nil, goerr.New("unsupported llm",
			goerr.V("llm", cfg.llm),
			goerr.V("supported", []string{"gemini", "claude"}))
	}
}

// newExecutor creates an Executor with the reducer policy from --policy
func (cfg *config) newExecutor(ctx context.Context, store interfaces.StateStore) (*agent.Executor, error) {
	var reducerOpts []agent.ReducerOption
	if cfg.policyPath != "" {
		p, err := policy.Load(ctx, cfg.policyPath)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to load next action policy")
		}
		reducerOpts = append(reducerOpts, agent.WithPolicy(p))
	}

	var opts []agent.ExecutorOption
	if cfg.recordVisitor {
		opts = append(opts, agent.WithVisitorMessageRecording())
	}

	return agent.NewExecutor(store, agent.NewReducer(reducerOpts...), opts...), nil
}

// newAggregator creates an Aggregator with the dictionary from --dictionary
func (cfg *config) newAggregator(store interfaces.AnalyticsStore) (*analytics.Aggregator, error) {
	if cfg.dictionaryPath == "" {
		return analytics.NewAggregator(store), nil
	}

	dict, err := analytics.LoadDictionary(cfg.dictionaryPath)
	if err != nil {
		return nil, err
	}
	return analytics.NewAggregator(store, analytics.WithDictionary(dict)), nil
}

// newStorage creates the transcript archive. It returns nil when
// --transcript-bucket is not set.
func (cfg *config) newStorage(ctx context.Context) (adapter.Storage, error) {
	if cfg.transcriptBucket == "" {
		return nil, nil
	}

	storage, err := adapter.NewStorage(ctx, cfg.transcriptBucket)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage")
	}
	return storage, nil
}

// openSession wires every component needed to handle visitor turns
func (cfg *config) openSession(ctx context.Context, repo repository.Repository, sessionID string) (*chat.Session, error) {
	responder, err := cfg.newResponder(ctx)
	if err != nil {
		return nil, err
	}

	executor, err := cfg.newExecutor(ctx, repo)
	if err != nil {
		return nil, err
	}

	aggregator, err := cfg.newAggregator(repo)
	if err != nil {
		return nil, err
	}

	storage, err := cfg.newStorage(ctx)
	if err != nil {
		return nil, err
	}

	input := chat.OpenInput{
		Store:      repo,
		Executor:   executor,
		Responder:  responder,
		Aggregator: aggregator,
		SessionID:  model.SessionID(sessionID),
	}
	if storage != nil {
		input.Storage = storage
	}

	session, err := chat.Open(ctx, input)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open session")
	}
	return session, nil
}
