package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/appdirs"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/egress"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/envfile"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/envutil"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/gemini"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/logging"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/secrets"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/settings"
)

const envKeyName = "COPYWRITER_GOOGLE_API_KEY"

var (
	// Global flags
	verbose      bool
	documentPath string
)

var rootCmd = &cobra.Command{
	Use:   "copywriter-engine",
	Short: "Copy variation engine for design documents",
	Long: `copywriter-engine extracts the text of a selected frame, asks Gemini for
rewritten variants and applies them to duplicated frames.

Run "serve" to speak JSON-RPC over stdio with the plugin UI, or "generate" for
a one-shot run against a document file.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&documentPath, "document", "d", "", "Path to the YAML document")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runtimeEnv is what every command shares after startup.
type runtimeEnv struct {
	logger   *slog.Logger
	close    func() error
	settings *settings.Store
	secrets  *secrets.Store
	envKey   string
}

// bootstrap loads .env, opens the log sink and the on-disk stores. serve logs
// to a file because stdout carries RPC; one-shot commands log to stderr.
func bootstrap(toFile bool) (*runtimeEnv, error) {
	envResult := envfile.Load()
	debug := verbose || envutil.Bool("COPYWRITER_DEBUG")
	dataDir, err := appdirs.DataDir()
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}

	env := &runtimeEnv{close: func() error { return nil }}
	var logErr error
	if toFile {
		logSetup, setupErr := logging.NewFileLogger(dataDir, debug)
		logErr = setupErr
		env.logger = logSetup.Logger
		if logSetup.Close != nil {
			env.close = logSetup.Close
		}
		if env.logger == nil {
			env.logger = logging.Nop()
		}
		env.logger = env.logger.With("component", "engine")
		if logSetup.Enabled {
			env.logger.Info("engine.logging_enabled", "path", logSetup.Path)
		}
	} else {
		env.logger = logging.NewStderrLogger(debug).With("component", "engine")
	}
	if envResult.Loaded {
		env.logger.Debug("engine.env_loaded", "path", envResult.Path, "keys", envResult.Keys)
	}
	if envResult.Err != nil {
		env.logger.Warn("engine.env_load_failed", "path", envResult.Path, "error", envResult.Err.Error())
	}
	if logErr != nil {
		env.logger.Warn("engine.log_setup_failed", "error", logErr.Error())
	}

	env.settings = settings.NewStore(appdirs.SettingsPath(dataDir))
	env.secrets = secrets.NewStore(appdirs.SecretsPath(dataDir), appdirs.MasterKeyPath(dataDir))
	env.envKey = envutil.String(envKeyName, "")
	return env, nil
}

func (e *runtimeEnv) loadSettings() *settings.Settings {
	current, err := e.settings.Load()
	if err != nil {
		e.logger.Warn("engine.settings_load_failed", "error", err.Error())
		return settings.Default()
	}
	return current
}

// newGeminiClient builds the client the settings describe. A custom base URL
// adds its host to the egress allowlist; HTTPS is still required.
func (e *runtimeEnv) newGeminiClient(s *settings.Settings, model string) *gemini.Client {
	if model == "" {
		model = s.ModelID
	}
	httpClient := httpClientFor(s.BaseURL)
	var transport gemini.Transport
	switch s.Transport {
	case settings.TransportSDK:
		transport = gemini.NewSDKTransport(s.BaseURL, httpClient, e.logger)
	default:
		transport = gemini.NewHTTPTransport(s.BaseURL, httpClient, e.logger)
	}
	e.logger.Info("engine.provider_ready", "transport", s.Transport, "model", model, "base_url", logging.RedactURL(s.BaseURL))
	return gemini.NewClient(
		gemini.WithTransport(transport),
		gemini.WithModel(model),
		gemini.WithRetry(
			envutil.Int("COPYWRITER_RETRY_ATTEMPTS", gemini.DefaultAttempts),
			gemini.DefaultDelay,
		),
		gemini.WithLogger(e.logger),
	)
}

func httpClientFor(baseURL string) *http.Client {
	client := gemini.DefaultHTTPClient()
	if baseURL == "" {
		return client
	}
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Hostname() == "" {
		return client
	}
	client.Transport = egress.NewAllowlistRoundTripper(http.DefaultTransport, []string{gemini.APIHost, parsed.Hostname()})
	return client
}

func requireDocument() error {
	if documentPath == "" {
		return fmt.Errorf("--document is required")
	}
	return nil
}
