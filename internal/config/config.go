package config

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the full service configuration, loaded once at boot and passed
// by reference. There is no mutable global; components receive the groups
// they need through their constructors.
type Config struct {
	App            App            `mapstructure:"app"`
	Server         Server         `mapstructure:"server"`
	Scheduler      Scheduler      `mapstructure:"scheduler"`
	PseudonymAPI   PseudonymAPI   `mapstructure:"pseudonym_api"`
	ReferralAPI    ReferralAPI    `mapstructure:"referral_api"`
	MetadataAPI    Endpoint       `mapstructure:"metadata_api"`
	OAuthAPI       OAuthAPI       `mapstructure:"oauth_api"`
	OtvAPI         OtvAPI         `mapstructure:"otv_api"`
	LMRCrypto      LMRCrypto      `mapstructure:"lmr_crypto"`
	NviFhirSystems NviFhirSystems `mapstructure:"nvi_fhir_systems"`
}

type App struct {
	Environment             string   `mapstructure:"environment"`
	LogLevel                string   `mapstructure:"loglevel"`
	ProviderID              string   `mapstructure:"provider_id"`
	UraNumber               string   `mapstructure:"ura_number"`
	DataDomains             []string `mapstructure:"data_domains"`
	DefaultOrganizationType string   `mapstructure:"default_organization_type"`
}

type Server struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	RequestTimeout int    `mapstructure:"request_timeout"`
	SwaggerEnabled bool   `mapstructure:"swagger_enabled"`
	SSLCert        string `mapstructure:"ssl_cert"`
	SSLKey         string `mapstructure:"ssl_key"`
}

type Scheduler struct {
	ScheduledDelay            int  `mapstructure:"scheduled_delay"`
	AutomaticBackgroundUpdate bool `mapstructure:"automatic_background_update"`
}

// Endpoint holds the connection settings shared by every southbound API.
// VerifyCA is either a path to a CA bundle, "true" (system roots) or
// "false" (skip verification; development only).
type Endpoint struct {
	Endpoint string `mapstructure:"endpoint"`
	Timeout  int    `mapstructure:"timeout"`
	MTLSCert string `mapstructure:"mtls_cert"`
	MTLSKey  string `mapstructure:"mtls_key"`
	VerifyCA string `mapstructure:"verify_ca"`
	Mock     bool   `mapstructure:"mock"`
}

type PseudonymAPI struct {
	Endpoint          `mapstructure:",squash"`
	UseLegacyRegister bool `mapstructure:"use_legacy_register"`
}

type ReferralAPI struct {
	Endpoint     `mapstructure:",squash"`
	NviUraNumber string `mapstructure:"nvi_ura_number"`
}

type OAuthAPI struct {
	Endpoint       `mapstructure:",squash"`
	JWTSigningCert string `mapstructure:"jwt_signing_cert"`
	JWTSigningKey  string `mapstructure:"jwt_signing_key"`
	IncludeX5C     bool   `mapstructure:"include_x5c"`
}

type OtvAPI struct {
	Endpoint    `mapstructure:",squash"`
	UraOverride string `mapstructure:"ura_override"`
}

type LMRCrypto struct {
	AESKey string `mapstructure:"aes_key"`
}

type NviFhirSystems struct {
	PseudonymSystem        string `mapstructure:"pseudonym_system"`
	SourceSystem           string `mapstructure:"source_system"`
	OrganizationTypeSystem string `mapstructure:"organization_type_system"`
	CareContextSystem      string `mapstructure:"care_context_system"`
}

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true,
	"warn": true, "error": true, "fatal": true,
}

// Load reads the configuration from the given file (YAML) and from
// NVI_-prefixed environment variables; env vars win. An empty path falls
// back to ./config.yaml when present.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NVI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		// A missing default config file is fine; env vars may carry everything.
		_ = v.ReadInConfig()
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// data_domains may arrive as a comma-separated string from env; viper
	// splits on the comma but keeps surrounding whitespace.
	cfg.App.DataDomains = splitAndTrim(cfg.App.DataDomains)

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.loglevel", "info")
	v.SetDefault("app.provider_id", "")
	v.SetDefault("app.ura_number", "")
	v.SetDefault("app.data_domains", []string{})
	v.SetDefault("app.default_organization_type", "hospital")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8501)
	v.SetDefault("server.request_timeout", 60)
	v.SetDefault("server.swagger_enabled", false)
	v.SetDefault("server.ssl_cert", "")
	v.SetDefault("server.ssl_key", "")

	v.SetDefault("scheduler.scheduled_delay", 30)
	v.SetDefault("scheduler.automatic_background_update", false)

	for _, group := range []string{"pseudonym_api", "referral_api", "metadata_api", "oauth_api", "otv_api"} {
		v.SetDefault(group+".endpoint", "")
		v.SetDefault(group+".timeout", 30)
		v.SetDefault(group+".mtls_cert", "")
		v.SetDefault(group+".mtls_key", "")
		v.SetDefault(group+".verify_ca", "true")
		v.SetDefault(group+".mock", false)
	}
	v.SetDefault("pseudonym_api.use_legacy_register", false)
	v.SetDefault("referral_api.nvi_ura_number", "")
	v.SetDefault("oauth_api.jwt_signing_cert", "")
	v.SetDefault("oauth_api.jwt_signing_key", "")
	v.SetDefault("oauth_api.include_x5c", false)
	v.SetDefault("otv_api.ura_override", "")

	v.SetDefault("lmr_crypto.aes_key", "")

	v.SetDefault("nvi_fhir_systems.pseudonym_system", "http://fhir.nl/fhir/NamingSystem/pseudonym")
	v.SetDefault("nvi_fhir_systems.source_system", "http://fhir.nl/fhir/NamingSystem/ura")
	v.SetDefault("nvi_fhir_systems.organization_type_system", "http://nuts.nl/fhir/NamingSystem/organization-type")
	v.SetDefault("nvi_fhir_systems.care_context_system", "http://nuts.nl/fhir/NamingSystem/care-context")
}

func splitAndTrim(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.App.Environment == "development"
}

// Validate checks that the configuration can carry a running service.
// It is called once at boot; any error here is fatal.
func (c *Config) Validate() error {
	if !validLogLevels[c.App.LogLevel] {
		return fmt.Errorf("app.loglevel must be one of trace, debug, info, warn, error, fatal; got %q", c.App.LogLevel)
	}
	if len(c.App.DataDomains) == 0 {
		return fmt.Errorf("app.data_domains must name at least one data domain")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if (c.Server.SSLCert == "") != (c.Server.SSLKey == "") {
		return fmt.Errorf("server.ssl_cert and server.ssl_key must be set together")
	}
	if c.Scheduler.ScheduledDelay <= 0 {
		return fmt.Errorf("scheduler.scheduled_delay must be positive, got %d", c.Scheduler.ScheduledDelay)
	}

	endpoints := map[string]Endpoint{
		"pseudonym_api": c.PseudonymAPI.Endpoint,
		"referral_api":  c.ReferralAPI.Endpoint,
		"metadata_api":  c.MetadataAPI,
		"oauth_api":     c.OAuthAPI.Endpoint,
		"otv_api":       c.OtvAPI.Endpoint,
	}
	for name, ep := range endpoints {
		if ep.Timeout <= 0 {
			return fmt.Errorf("%s.timeout must be positive, got %d", name, ep.Timeout)
		}
		if !ep.Mock && ep.Endpoint == "" {
			return fmt.Errorf("%s.endpoint is required unless %s.mock is true", name, name)
		}
		if (ep.MTLSCert == "") != (ep.MTLSKey == "") {
			return fmt.Errorf("%s.mtls_cert and %s.mtls_key must be set together", name, name)
		}
	}

	if c.OAuthAPI.JWTSigningCert != "" {
		if c.OAuthAPI.JWTSigningKey == "" {
			return fmt.Errorf("oauth_api.jwt_signing_key is required when oauth_api.jwt_signing_cert is set")
		}
		if c.OAuthAPI.MTLSCert == "" {
			return fmt.Errorf("oauth_api.mtls_cert is required when oauth_api.jwt_signing_cert is set")
		}
	}

	if !c.OtvAPI.Mock && c.OtvAPI.MTLSCert == "" && c.OtvAPI.UraOverride == "" {
		return fmt.Errorf("otv_api needs mtls_cert or ura_override unless otv_api.mock is true")
	}

	if c.LMRCrypto.AESKey != "" {
		key, err := base64.URLEncoding.DecodeString(c.LMRCrypto.AESKey)
		if err != nil {
			return fmt.Errorf("lmr_crypto.aes_key is not valid base64url: %w", err)
		}
		switch len(key) {
		case 16, 24, 32:
		default:
			return fmt.Errorf("lmr_crypto.aes_key must decode to 16, 24 or 32 bytes, got %d", len(key))
		}
	}

	return nil
}
