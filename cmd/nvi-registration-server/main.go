package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/config"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/domain/authz"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/domain/identity"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/domain/metadata"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/domain/nvi"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/domain/oauth"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/domain/pseudonym"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/domain/registration"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/domain/status"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/domain/synchronizer"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/platform/httpclient"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/platform/middleware"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/platform/openapi"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/platform/scheduler"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/platform/sealbox"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/platform/uzi"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "nvi-registration-server",
		Short: "National Referral Index registration service",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the registration server",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			return runServer(configPath)
		},
	}
	cmd.Flags().String("config", "", "Path to the configuration file (default ./config.yaml)")
	return cmd
}

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one synchronization pass and print the update schemes",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			domainName, _ := cmd.Flags().GetString("data-domain")
			return runSync(configPath, domainName)
		},
	}
	cmd.Flags().String("config", "", "Path to the configuration file (default ./config.yaml)")
	cmd.Flags().String("data-domain", "", "Synchronize a single data domain instead of all configured domains")
	return cmd
}

func versionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			info, err := status.ReadVersionFile(path)
			if err != nil {
				fmt.Println("No version information found")
				return nil
			}
			fmt.Printf("Version: %s\nCommit: %s\n", info.Version, info.GitRef)
			return nil
		},
	}
	cmd.Flags().String("file", "version.json", "Path to the version file")
	return cmd
}

// pipeline holds the southbound clients and core services shared by the
// serve and sync commands.
type pipeline struct {
	clientURA  identity.UraNumber
	pseudonyms *pseudonym.Client
	nvi        *nvi.Client
	metadata   *metadata.Client
	bootstrap  *pseudonym.Bootstrap
	referrals  *registration.Service
	sync       *synchronizer.Service
}

// buildPipeline wires the southbound clients the way the config names
// them: one OAuth token cache shared by the pseudonym and referral index
// clients, plain mTLS for the metadata repository.
func buildPipeline(cfg *config.Config, logger zerolog.Logger) (*pipeline, error) {
	clientURA, err := uzi.ResolveClientURA(cfg)
	if err != nil {
		return nil, fmt.Errorf("resolve own ura number: %w", err)
	}
	nviURA, err := identity.ParseUraNumber(cfg.ReferralAPI.NviUraNumber)
	if err != nil {
		return nil, fmt.Errorf("referral_api.nvi_ura_number: %w", err)
	}
	domains, err := parseDataDomains(cfg.App.DataDomains)
	if err != nil {
		return nil, fmt.Errorf("app.data_domains: %w", err)
	}

	oauthHTTP, err := httpclient.New(cfg.OAuthAPI.Endpoint, logger)
	if err != nil {
		return nil, fmt.Errorf("oauth http client: %w", err)
	}
	var assertions *oauth.AssertionBuilder
	if cfg.OAuthAPI.JWTSigningCert != "" {
		assertions, err = oauth.NewAssertionBuilder(cfg.OAuthAPI, clientURA)
		if err != nil {
			return nil, fmt.Errorf("client assertion material: %w", err)
		}
	}
	tokens := oauth.NewService(oauthHTTP, assertions, cfg.OAuthAPI.Mock, logger)

	pseudonymClient, err := pseudonym.NewClient(cfg.PseudonymAPI, cfg.App.ProviderID, tokens, logger)
	if err != nil {
		return nil, fmt.Errorf("pseudonym client: %w", err)
	}
	nviClient, err := nvi.NewClient(cfg.ReferralAPI, nvi.NewMapper(cfg.NviFhirSystems), tokens, logger)
	if err != nil {
		return nil, fmt.Errorf("referral index client: %w", err)
	}
	metadataClient, err := metadata.NewClient(cfg.MetadataAPI, logger)
	if err != nil {
		return nil, fmt.Errorf("metadata client: %w", err)
	}
	bootstrap, err := pseudonym.NewBootstrap(cfg.PseudonymAPI, clientURA, logger)
	if err != nil {
		return nil, fmt.Errorf("prs registration client: %w", err)
	}

	referrals := registration.NewService(
		nviClient,
		pseudonymClient,
		clientURA,
		nviURA,
		cfg.App.DefaultOrganizationType,
		cfg.PseudonymAPI.UseLegacyRegister,
		logger,
	)
	syncSvc := synchronizer.NewService(referrals, metadataClient, synchronizer.NewDomainsMap(domains), logger)

	return &pipeline{
		clientURA:  clientURA,
		pseudonyms: pseudonymClient,
		nvi:        nviClient,
		metadata:   metadataClient,
		bootstrap:  bootstrap,
		referrals:  referrals,
		sync:       syncSvc,
	}, nil
}

func runServer(configPath string) error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Config
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	logger = newLogger(cfg, os.Stdout)

	p, err := buildPipeline(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build service container")
	}

	// The service cannot hand out pseudonyms before the PRS knows its
	// organization and transport certificate.
	if err := p.bootstrap.EnsureRegistered(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("prs registration failed")
	}

	bundles := registration.NewBundleService(p.referrals, logger)

	sched := scheduler.New(func() error {
		_, err := p.sync.SynchronizeAllDomains(context.Background())
		return err
	}, time.Duration(cfg.Scheduler.ScheduledDelay)*time.Second, logger)
	if cfg.Scheduler.AutomaticBackgroundUpdate {
		sched.Start()
	}
	defer sched.Stop()

	// Permission checks. Without an LMR key the crypter stays nil and the
	// authz service rejects every request.
	var crypter *sealbox.Sealbox
	if cfg.LMRCrypto.AESKey != "" {
		crypter, err = sealbox.FromEncodedKey(cfg.LMRCrypto.AESKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("lmr_crypto.aes_key is invalid")
		}
	}
	otv, err := authz.NewOtvClient(cfg.OtvAPI, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build otv client")
	}
	permissions := authz.NewService(crypter, p.metadata, p.pseudonyms, otv, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.RequestTimeout(time.Duration(cfg.Server.RequestTimeout) * time.Second))

	registration.NewHandler(bundles).RegisterRoutes(e)
	synchronizer.NewHandler(p.sync, sched).RegisterRoutes(e)
	authz.NewHandler(permissions).RegisterRoutes(e)
	status.NewHandler(
		p.pseudonyms.ServerHealthy,
		p.nvi.ServerHealthy,
		p.metadata.ServerHealthy,
		"",
		logger,
	).RegisterRoutes(e)

	if cfg.Server.SwaggerEnabled {
		version := "unknown"
		if info, err := status.ReadVersionFile("version.json"); err == nil {
			version = info.Version
		}
		openapi.NewGenerator(version, cfg.App.DataDomains).RegisterRoutes(e)
	}

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		logger.Info().Str("addr", addr).Str("ura_number", p.clientURA.String()).Msg("starting server")
		var err error
		if cfg.Server.SSLCert != "" {
			err = e.StartTLS(addr, cfg.Server.SSLCert, cfg.Server.SSLKey)
		} else {
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// runSync performs one synchronization pass outside the server and prints
// the resulting update schemes as JSON. Logs go to stderr so stdout stays
// machine-readable.
func runSync(configPath, domainName string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger := newLogger(cfg, os.Stderr)

	p, err := buildPipeline(cfg, logger)
	if err != nil {
		return err
	}
	ctx := context.Background()
	if err := p.bootstrap.EnsureRegistered(ctx); err != nil {
		return err
	}

	var schemes map[string][]synchronizer.UpdateScheme
	if domainName != "" {
		domain, err := identity.NewDataDomain(domainName)
		if err != nil {
			return err
		}
		schemes, err = p.sync.SynchronizeDomain(ctx, domain)
		if err != nil {
			return err
		}
	} else {
		schemes, err = p.sync.SynchronizeAllDomains(ctx)
		if err != nil {
			return err
		}
	}

	out, err := json.MarshalIndent(schemes, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// newLogger builds the process logger from the validated config: the
// configured level everywhere, human-readable output in development.
func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.App.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger().Level(level)
	}
	return zerolog.New(out).With().Timestamp().Logger().Level(level)
}

// parseDataDomains converts the configured domain names, rejecting blank
// entries.
func parseDataDomains(names []string) ([]identity.DataDomain, error) {
	domains := make([]identity.DataDomain, 0, len(names))
	for _, name := range names {
		domain, err := identity.NewDataDomain(name)
		if err != nil {
			return nil, err
		}
		domains = append(domains, domain)
	}
	return domains, nil
}
