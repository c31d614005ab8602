package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"convo-search/internal/llm"
	"convo-search/internal/repository"
	"convo-search/internal/service"
)

type cliOptions struct {
	apiKey  string
	model   string
	baseURL string
	ttl     time.Duration
	timeout time.Duration
	verbose bool
}

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := cliOptions{}
	cmd := &cobra.Command{
		Use:   "cli_search [query]",
		Short: "Búsqueda conversacional en la terminal",
		Long: "Abre una sesión de búsqueda con Gemini y Google Search. " +
			"Cada línea es una pregunta de seguimiento; /new inicia otra sesión y exit termina.",
		Args:         cobra.ArbitraryArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.apiKey == "" {
				opts.apiKey = os.Getenv("GEMINI_API_KEY")
			}
			if _, err := service.ValidateCredential(opts.apiKey); err != nil {
				return fmt.Errorf("se necesita una API key (--api-key o GEMINI_API_KEY): %w", err)
			}

			logger := zap.NewNop()
			if opts.verbose {
				logger, _ = zap.NewDevelopment()
			}
			defer logger.Sync()

			store := repository.NewMemorySessionStore(repository.WithTTL(opts.ttl))
			provider := llm.NewGeminiClient(logger, llm.WithModel(opts.model), llm.WithBaseURL(opts.baseURL))
			svc := service.NewSearchService(logger, store, provider, opts.timeout)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			r := &repl{
				svc:    svc,
				apiKey: opts.apiKey,
				in:     cmd.InOrStdin(),
				out:    cmd.OutOrStdout(),
			}
			return r.run(ctx, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVar(&opts.apiKey, "api-key", "", "API key de Gemini (por defecto GEMINI_API_KEY)")
	cmd.Flags().StringVar(&opts.model, "model", "gemini-2.0-flash", "modelo de Gemini")
	cmd.Flags().StringVar(&opts.baseURL, "base-url", "", "endpoint alternativo de Gemini")
	cmd.Flags().DurationVar(&opts.ttl, "ttl", 30*time.Minute, "vida de una sesión sin actividad")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 45*time.Second, "timeout por consulta al proveedor")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "logs de desarrollo en stderr")
	return cmd
}
