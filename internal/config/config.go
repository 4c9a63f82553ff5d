package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration required by the relay process.
// All values must come from env (or an env-file loaded before startup).
// No business logic should depend on raw environment variables.
type Config struct {
	App        AppConfig
	Twilio     TwilioConfig
	VoiceAgent VoiceAgentConfig
	Store      StoreConfig
}

type AppConfig struct {
	Env  string
	Port int

	// PublicBaseURL is the externally reachable base URL of this relay.
	// Twilio posts status callbacks to it, so it must be routable from the
	// public internet in any deployed environment.
	PublicBaseURL string
}

type TwilioConfig struct {
	AccountSID  string
	AuthToken   string
	PhoneNumber string
}

// VoiceAgentConfig points at the voice-memory provider that hosts the
// benefits-verification agent.
type VoiceAgentConfig struct {
	BaseURL string
	AgentID string
	APIKey  string
}

// StoreConfig selects the call-record store backend.
// "memory" is the default and is correct for a single relay instance.
// "redis" shares records across instances.
type StoreConfig struct {
	Backend   string
	RedisHost string
	RedisPort int
}

const (
	StoreBackendMemory = "memory"
	StoreBackendRedis  = "redis"
)

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}
	c.App.PublicBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL")), "/")

	c.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.PhoneNumber = strings.TrimSpace(os.Getenv("TWILIO_PHONE_NUMBER"))

	c.VoiceAgent.BaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("VOICE_AGENT_BASE_URL")), "/")
	c.VoiceAgent.AgentID = strings.TrimSpace(os.Getenv("VOICE_AGENT_ID"))
	c.VoiceAgent.APIKey = os.Getenv("VOICE_AGENT_API_KEY")

	c.Store.Backend = strings.TrimSpace(os.Getenv("CALL_STORE"))
	if c.Store.Backend == "" {
		c.Store.Backend = StoreBackendMemory
	}
	if c.Store.Backend == StoreBackendRedis {
		c.Store.RedisHost = strings.TrimSpace(os.Getenv("REDIS_HOST"))
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Store.RedisPort = n
	}

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.PublicBaseURL == "" {
		errs = append(errs, errors.New("PUBLIC_BASE_URL is required"))
	} else if u, err := url.Parse(c.App.PublicBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("PUBLIC_BASE_URL must be an absolute URL, got %q", c.App.PublicBaseURL))
	}

	if c.Twilio.AccountSID == "" {
		errs = append(errs, errors.New("TWILIO_ACCOUNT_SID is required"))
	}
	if c.Twilio.AuthToken == "" {
		errs = append(errs, errors.New("TWILIO_AUTH_TOKEN is required"))
	}
	if c.Twilio.PhoneNumber == "" {
		errs = append(errs, errors.New("TWILIO_PHONE_NUMBER is required"))
	}

	if c.VoiceAgent.BaseURL == "" {
		errs = append(errs, errors.New("VOICE_AGENT_BASE_URL is required"))
	}
	if c.VoiceAgent.AgentID == "" {
		errs = append(errs, errors.New("VOICE_AGENT_ID is required"))
	}
	if c.VoiceAgent.APIKey == "" {
		errs = append(errs, errors.New("VOICE_AGENT_API_KEY is required"))
	}

	switch c.Store.Backend {
	case StoreBackendMemory:
	case StoreBackendRedis:
		if c.Store.RedisHost == "" {
			errs = append(errs, errors.New("REDIS_HOST is required when CALL_STORE=redis"))
		}
		if c.Store.RedisPort <= 0 || c.Store.RedisPort > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Store.RedisPort))
		}
	default:
		errs = append(errs, fmt.Errorf("CALL_STORE must be one of memory, redis, got %q", c.Store.Backend))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Store.RedisHost, c.Store.RedisPort)
}

// StatusCallbackURL is where Twilio delivers call progress events.
func (c Config) StatusCallbackURL() string {
	return c.App.PublicBaseURL + "/voice-agent/status"
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
