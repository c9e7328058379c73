package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Datadog    DatadogConfig    `yaml:"datadog"`
	Reasoning  ReasoningConfig  `yaml:"reasoning"`
	ServiceNow ServiceNowConfig `yaml:"servicenow"`
	Workflow   WorkflowConfig   `yaml:"workflow"`
	NATS       NATSConfig       `yaml:"nats"`
	Store      StoreConfig      `yaml:"store"`
	Web        WebConfig        `yaml:"web"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Telegram   TelegramConfig   `yaml:"telegram"`
}

type DatadogConfig struct {
	Site    string        `yaml:"site"`
	APIKey  string        `yaml:"api_key"`
	AppKey  string        `yaml:"app_key"`
	Query   string        `yaml:"query"`
	Limit   int           `yaml:"limit"`
	Timeout time.Duration `yaml:"timeout"`
}

type ReasoningConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

type ServiceNowConfig struct {
	InstanceURL string        `yaml:"instance_url"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	Timeout     time.Duration `yaml:"timeout"`
}

type WorkflowConfig struct {
	WindowFrom       string        `yaml:"window_from"`
	WindowTo         string        `yaml:"window_to"`
	MaxWorkers       int           `yaml:"max_workers"`
	MaxIterations    int           `yaml:"max_iterations"`
	MaxHandoffs      int           `yaml:"max_handoffs"`
	ExecutionTimeout time.Duration `yaml:"execution_timeout"`
	NodeTimeout      time.Duration `yaml:"node_timeout"`
	RunTimeout       time.Duration `yaml:"run_timeout"`
	TicketSeverity   string        `yaml:"ticket_severity"`
}

type NATSConfig struct {
	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Auth    string `yaml:"auth"`
}

type SchedulerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
}

type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

func defaults() Config {
	return Config{
		Datadog: DatadogConfig{
			Site:    "us5",
			Query:   "status:(error OR warn)",
			Limit:   50,
			Timeout: 30 * time.Second,
		},
		Reasoning: ReasoningConfig{
			Timeout: 2 * time.Minute,
		},
		ServiceNow: ServiceNowConfig{
			Timeout: 30 * time.Second,
		},
		Workflow: WorkflowConfig{
			WindowFrom:       "now-1d",
			WindowTo:         "now",
			MaxWorkers:       50,
			MaxIterations:    20,
			MaxHandoffs:      15,
			ExecutionTimeout: 15 * time.Minute,
			NodeTimeout:      5 * time.Minute,
			RunTimeout:       30 * time.Minute,
			TicketSeverity:   "medium",
		},
		NATS: NATSConfig{
			Port:    4222,
			DataDir: "data/nats",
		},
		Store: StoreConfig{
			Path: "data/vigla.db",
		},
		Web: WebConfig{
			Enabled: true,
			Port:    8080,
		},
		Scheduler: SchedulerConfig{
			Enabled:  true,
			Schedule: "0 8 * * *",
		},
	}
}

func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("VIGLA_CONFIG")
	if path == "" {
		path = "config/vigla.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults + env
	} else {
		// Expand environment variables in YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	applyEnv(&cfg)

	return &cfg, nil
}

// ResolveSecrets rewrites credential fields of the form "secret:NAME"
// using the provided lookup (backed by the vault-encrypted secret store).
// Unresolvable references are cleared so a stale name never reaches a
// collaborator as a literal credential.
func (c *Config) ResolveSecrets(lookup func(name string) (string, bool)) {
	fields := []*string{
		&c.Datadog.APIKey,
		&c.Datadog.AppKey,
		&c.Reasoning.APIKey,
		&c.ServiceNow.Password,
		&c.Telegram.Token,
	}
	for _, f := range fields {
		if !strings.HasPrefix(*f, "secret:") {
			continue
		}
		name := strings.TrimPrefix(*f, "secret:")
		if v, found := lookup(name); found {
			*f = v
		} else {
			*f = ""
		}
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DATADOG_API_KEY"); v != "" {
		cfg.Datadog.APIKey = v
	}
	if v := os.Getenv("DATADOG_APP_KEY"); v != "" {
		cfg.Datadog.AppKey = v
	}
	if v := os.Getenv("VIGLA_REASONING_URL"); v != "" {
		cfg.Reasoning.URL = v
	}
	if v := os.Getenv("VIGLA_REASONING_API_KEY"); v != "" {
		cfg.Reasoning.APIKey = v
	}
	if v := os.Getenv("SERVICENOW_INSTANCE_URL"); v != "" {
		cfg.ServiceNow.InstanceURL = v
	}
	if v := os.Getenv("SERVICENOW_USERNAME"); v != "" {
		cfg.ServiceNow.Username = v
	}
	if v := os.Getenv("SERVICENOW_PASSWORD"); v != "" {
		cfg.ServiceNow.Password = v
	}
	if v := os.Getenv("VIGLA_TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("VIGLA_WEB_PASSWORD"); v != "" {
		cfg.Web.Auth = v
	}
	if v := os.Getenv("VIGLA_WEB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Web.Port = port
		}
	}
	if v := os.Getenv("VIGLA_NATS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.NATS.Port = port
		}
	}
	if v := os.Getenv("VIGLA_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("VIGLA_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Workflow.MaxWorkers = n
		}
	}
	if v := os.Getenv("VIGLA_SCHEDULE"); v != "" {
		cfg.Scheduler.Schedule = v
	}
}
