package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// fluxrelayYAMLConfig represents the complete fluxrelay.yaml file structure.
// Every section is a pointer so the loader can tell "absent" apart from
// "present but zero-valued" while merging onto built-in defaults.
type fluxrelayYAMLConfig struct {
	Server   *ServerConfig    `yaml:"server"`
	Database *DatabaseConfig  `yaml:"database"`
	Gateway  *GatewayConfig   `yaml:"gateway"`
	Channels *ChannelsConfig  `yaml:"channels"`
	Holder   *HolderDefaults  `yaml:"holder"`
	Trigger  *TriggerConfig   `yaml:"trigger"`
	Workflow *WorkflowConfig  `yaml:"workflow"`
}

// Initialize loads, validates, and returns ready-to-use configuration. This
// is the primary entry point called from cmd/server and cmd/runner.
//
// Steps performed:
//  1. Load a .env file from configDir, if present (missing is not fatal)
//  2. Load fluxrelay.yaml from configDir
//  3. Expand environment variables in the YAML text
//  4. Parse YAML into structs
//  5. Merge built-in defaults with user-provided values
//  6. Validate everything, including that referenced secret env vars are set
//  7. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("initializing configuration")

	envPath := filepath.Join(configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Warn("no .env file loaded, continuing with existing environment", "path", envPath, "error", err)
	}

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("configuration initialized",
		"gateway_upstreams", stats.GatewayUpstreams,
		"channels_enabled", stats.ChannelsEnabled)

	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	yamlCfg, err := loader.loadFluxrelayYAML()
	if err != nil {
		return nil, NewLoadError("fluxrelay.yaml", err)
	}

	server := DefaultServerConfig()
	if yamlCfg.Server != nil {
		if err := mergo.Merge(server, yamlCfg.Server, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merge server config: %w", err)
		}
	}

	database := DefaultDatabaseConfig()
	if yamlCfg.Database != nil {
		if err := mergo.Merge(database, yamlCfg.Database, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merge database config: %w", err)
		}
	}

	gateway := DefaultGatewayConfig()
	if yamlCfg.Gateway != nil {
		if yamlCfg.Gateway.HTTPAddr != "" {
			gateway.HTTPAddr = yamlCfg.Gateway.HTTPAddr
		}
		if yamlCfg.Gateway.JWTSecretEnv != "" {
			gateway.JWTSecretEnv = yamlCfg.Gateway.JWTSecretEnv
		}
		gateway.Upstreams = mergeGatewayUpstreams(gateway.Upstreams, yamlCfg.Gateway.Upstreams)
	}

	channels := &ChannelsConfig{}
	if yamlCfg.Channels != nil {
		channels = yamlCfg.Channels
	}

	holder, err := mergeHolderDefaults(DefaultHolderDefaults(), yamlCfg.Holder)
	if err != nil {
		return nil, fmt.Errorf("merge holder config: %w", err)
	}

	trigger := DefaultTriggerConfig()
	if yamlCfg.Trigger != nil {
		if err := mergo.Merge(trigger, yamlCfg.Trigger, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merge trigger config: %w", err)
		}
	}

	workflow := DefaultWorkflowConfig()
	if yamlCfg.Workflow != nil {
		if err := mergo.Merge(workflow, yamlCfg.Workflow, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merge workflow config: %w", err)
		}
	}

	return &Config{
		configDir: configDir,
		Server:    server,
		Database:  database,
		Gateway:   gateway,
		Channels:  channels,
		Holder:    holder,
		Trigger:   trigger,
		Workflow:  workflow,
	}, nil
}

func validate(cfg *Config) error {
	validator := NewValidator(cfg)
	return validator.ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return nil
}

func (l *configLoader) loadFluxrelayYAML() (*fluxrelayYAMLConfig, error) {
	var cfg fluxrelayYAMLConfig
	if err := l.loadYAML("fluxrelay.yaml", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
