package config

import (
	"fmt"
	"net/url"
	"os"
)

// Validator validates configuration comprehensively with clear error messages.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast — stops at first error).
func (v *Validator) ValidateAll() error {
	if err := v.validateServer(); err != nil {
		return fmt.Errorf("server validation failed: %w", err)
	}
	if err := v.validateDatabase(); err != nil {
		return fmt.Errorf("database validation failed: %w", err)
	}
	if err := v.validateGateway(); err != nil {
		return fmt.Errorf("gateway validation failed: %w", err)
	}
	if err := v.validateChannels(); err != nil {
		return fmt.Errorf("channels validation failed: %w", err)
	}
	if err := v.validateHolder(); err != nil {
		return fmt.Errorf("holder validation failed: %w", err)
	}
	if err := v.validateTrigger(); err != nil {
		return fmt.Errorf("trigger validation failed: %w", err)
	}
	return nil
}

func (v *Validator) validateServer() error {
	s := v.cfg.Server
	if s.HTTPAddr == "" {
		return NewValidationError("server", "http_addr", "", ErrMissingRequiredField)
	}
	if s.MaxHolderInboxDepth < 0 {
		return NewValidationError("server", "max_holder_inbox_depth", "", ErrInvalidValue)
	}
	return nil
}

func (v *Validator) validateDatabase() error {
	d := v.cfg.Database
	if d.DSNEnv == "" {
		return NewValidationError("database", "dsn_env", "", ErrMissingRequiredField)
	}
	if os.Getenv(d.DSNEnv) == "" {
		return NewValidationError("database", d.DSNEnv, "", fmt.Errorf("%w: environment variable not set", ErrMissingRequiredField))
	}
	return nil
}

func (v *Validator) validateGateway() error {
	g := v.cfg.Gateway
	seen := make(map[string]bool, len(g.Upstreams))
	for _, up := range g.Upstreams {
		if up.Prefix == "" {
			return NewValidationError("gateway", "upstream", "prefix", ErrMissingRequiredField)
		}
		if seen[up.Prefix] {
			return NewValidationError("gateway", up.Prefix, "prefix", fmt.Errorf("%w: duplicate upstream prefix", ErrInvalidValue))
		}
		seen[up.Prefix] = true
		if _, err := url.Parse(up.Target); err != nil || up.Target == "" {
			return NewValidationError("gateway", up.Prefix, "target", fmt.Errorf("%w: %v", ErrInvalidValue, err))
		}
	}
	return nil
}

func (v *Validator) validateChannels() error {
	c := v.cfg.Channels
	if c.Slack.Enabled {
		if err := requireEnv("slack", c.Slack.BotTokenEnv, "bot_token_env"); err != nil {
			return err
		}
		if err := requireEnv("slack", c.Slack.SigningSecretEnv, "signing_secret_env"); err != nil {
			return err
		}
	}
	if c.GitHub.Enabled {
		if err := requireEnv("github", c.GitHub.TokenEnv, "token_env"); err != nil {
			return err
		}
		if err := requireEnv("github", c.GitHub.WebhookSecretEnv, "webhook_secret_env"); err != nil {
			return err
		}
	}
	if c.Telegram.Enabled {
		if err := requireEnv("telegram", c.Telegram.BotTokenEnv, "bot_token_env"); err != nil {
			return err
		}
		if err := requireEnv("telegram", c.Telegram.WebhookSecretEnv, "webhook_secret_env"); err != nil {
			return err
		}
	}
	if c.API.Enabled {
		if err := requireEnv("api", c.API.SigningKeyEnv, "signing_key_env"); err != nil {
			return err
		}
	}
	return nil
}

// requireEnv validates that an enabled channel names and sets the
// environment variable its secret lives in. The YAML config carries only
// the variable name, never the secret value itself.
func requireEnv(component, envVar, field string) error {
	if envVar == "" {
		return NewValidationError(component, field, "", ErrMissingRequiredField)
	}
	if os.Getenv(envVar) == "" {
		return NewValidationError(component, envVar, field, fmt.Errorf("%w: environment variable not set", ErrMissingRequiredField))
	}
	return nil
}

func (v *Validator) validateHolder() error {
	h := v.cfg.Holder
	if h.MaxCollectDebounceMs < 0 || h.MaxCollectDebounceMs > 10000 {
		return NewValidationError("holder", "max_collect_debounce_ms", "", ErrInvalidValue)
	}
	return nil
}

func (v *Validator) validateTrigger() error {
	t := v.cfg.Trigger
	if t.MaxConcurrentRuns < 0 {
		return NewValidationError("trigger", "max_concurrent_runs", "", ErrInvalidValue)
	}
	return nil
}
