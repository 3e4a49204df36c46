// Command capsolver provides a CLI for the CapSolver Cloudflare tasks.
//
// Usage:
//
//	capsolver solve cloudflare <url> -X host:port:user:pass
//	capsolver solve turnstile <url> <sitekey>
//	capsolver solve turnstile <url> --html-file page.html
//	capsolver inspect page.html
//	capsolver balance
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	capsolver "github.com/cloudflyer-project/capsolver-golang-sdk"
)

type app struct {
	v          *viper.Viper
	cfg        Config
	configFile string

	out    io.Writer
	errOut io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, out, errOut io.Writer) int {
	a := &app{v: newViper(), out: out, errOut: errOut}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)

	if err := root.ExecuteContext(ctx); err != nil {
		if a.cfg.JSON {
			a.printJSON(map[string]interface{}{"success": false, "error": err.Error()})
		} else {
			color.New(color.FgRed).Fprintf(errOut, "[x] Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "capsolver",
		Short:         "Solve Cloudflare challenges and Turnstile widgets with CapSolver",
		Version:       capsolver.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(a.v, cmd.Flags(), a.configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a.cfg = cfg
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "Config file (default ./capsolver.yaml or $HOME/.config/capsolver/capsolver.yaml)")
	flags.StringP("api-key", "K", "", "API key (or set CAPSOLVER_API_KEY env var)")
	flags.StringP("api-base", "B", capsolver.DefaultAPIBase, "API base URL")
	flags.String("api-proxy", "", "Proxy for API calls (scheme://host:port)")
	flags.String("app-id", "", "Developer appId sent with createTask")
	flags.DurationP("timeout", "T", 30*time.Second, "Timeout of a single API request")
	flags.BoolP("verbose", "v", false, "Enable verbose output")
	flags.Bool("json", false, "Output result as JSON")

	root.AddCommand(a.solveCmd())
	root.AddCommand(a.inspectCmd())
	root.AddCommand(a.balanceCmd())

	return root
}

func (a *app) logger() zerolog.Logger {
	level := zerolog.WarnLevel
	if a.cfg.Verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: a.errOut, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().
		Logger()
}

func (a *app) newClient(extra ...capsolver.Option) (*capsolver.Client, error) {
	if a.cfg.APIKey == "" {
		return nil, fmt.Errorf("API key required. Use -K/--api-key or set %s_API_KEY environment variable", envPrefix)
	}

	opts := []capsolver.Option{
		capsolver.WithAPIBase(a.cfg.APIBase),
		capsolver.WithTimeout(a.cfg.Timeout),
		capsolver.WithLogger(a.logger()),
	}
	if a.cfg.AppID != "" {
		opts = append(opts, capsolver.WithAppID(a.cfg.AppID))
	}
	if a.cfg.APIProxy != "" {
		opts = append(opts, capsolver.WithAPIProxy(a.cfg.APIProxy))
	}
	return capsolver.New(a.cfg.APIKey, append(opts, extra...)...), nil
}

// polling returns the --interval and --max-attempts overrides on top of the
// task type's default cadence.
func (a *app) polling(taskType capsolver.TaskType) []capsolver.Option {
	if a.cfg.Interval <= 0 && a.cfg.MaxAttempts <= 0 {
		return nil
	}
	policy := taskType.DefaultPolicy()
	if a.cfg.Interval > 0 {
		policy.Interval = a.cfg.Interval
	}
	if a.cfg.MaxAttempts > 0 {
		policy.MaxAttempts = a.cfg.MaxAttempts
	}
	return []capsolver.Option{capsolver.WithPolling(policy.Interval, policy.MaxAttempts)}
}

func (a *app) solveCmd() *cobra.Command {
	solveCmd := &cobra.Command{
		Use:   "solve",
		Short: "Solve a Cloudflare challenge or Turnstile widget",
	}

	flags := solveCmd.PersistentFlags()
	flags.Duration("interval", 0, "Override the poll interval (default per task type)")
	flags.Int("max-attempts", 0, "Override the number of result checks (default per task type)")

	solveCmd.AddCommand(a.solveCloudflareCmd())
	solveCmd.AddCommand(a.solveTurnstileCmd())

	return solveCmd
}

func (a *app) solveCloudflareCmd() *cobra.Command {
	var (
		userAgent string
		htmlFile  string
	)

	cmd := &cobra.Command{
		Use:   "cloudflare <url>",
		Short: "Solve the Cloudflare challenge page for a URL",
		Long: `Solve the Cloudflare challenge page for a URL.

The solver reaches the site through the given proxy, and the returned
cf_clearance cookie only works from that proxy's IP with the returned
User-Agent.

Example:
    capsolver solve cloudflare https://protected-site.com -X 1.2.3.4:8080:user:pass`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.newClient(a.polling(capsolver.TaskTypeCloudflare)...)
			if err != nil {
				return err
			}

			opts := []capsolver.TaskOption{capsolver.WithTaskUserAgent(userAgent)}
			if htmlFile != "" {
				html, err := os.ReadFile(htmlFile)
				if err != nil {
					return err
				}
				opts = append(opts, capsolver.WithTaskHTML(string(html)))
			}

			url := args[0]
			if a.cfg.Verbose {
				fmt.Fprintf(a.out, "Solving Cloudflare challenge for: %s\n", url)
			}

			solution, err := client.SolveCloudflare(cmd.Context(), url, a.cfg.Proxy, opts...)
			if err != nil {
				return err
			}

			if a.cfg.JSON {
				a.printJSON(map[string]interface{}{
					"success":    true,
					"url":        url,
					"cookies":    solution.Cookies(),
					"user_agent": solution.UserAgent(),
					"token":      solution.Token(),
				})
				return nil
			}

			a.success("Challenge solved successfully!")
			fmt.Fprintf(a.out, "    User-Agent: %s\n", solution.UserAgent())
			fmt.Fprintf(a.out, "    Cookie: %s\n", solution.CookieHeader())
			return nil
		},
	}

	cmd.Flags().StringP("proxy", "X", "", "Proxy the solver uses (host:port:user:pass or scheme://...)")
	cmd.Flags().StringVarP(&userAgent, "user-agent", "U", "", "User-Agent to solve with")
	cmd.Flags().StringVar(&htmlFile, "html-file", "", "Challenge page snapshot to send with the task")

	return cmd
}

func (a *app) solveTurnstileCmd() *cobra.Command {
	var (
		action   string
		cdata    string
		htmlFile string
	)

	cmd := &cobra.Command{
		Use:   "turnstile <url> [sitekey]",
		Short: "Solve a Turnstile widget and print the token",
		Long: `Solve a Turnstile widget and print the token.

The sitekey, data-action and data-cdata can be read from a saved copy of
the page with --html-file. Values passed explicitly take precedence.

Example:
    capsolver solve turnstile https://example.com/login 0x4AAAAAAABkMYinukE8nzY
    capsolver solve turnstile https://example.com/login --html-file login.html`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.newClient(a.polling(capsolver.TaskTypeTurnstile)...)
			if err != nil {
				return err
			}

			url := args[0]
			params := capsolver.TurnstileParams{Action: action, CData: cdata}
			if len(args) == 2 {
				params.WebsiteKey = args[1]
			}
			if htmlFile != "" {
				html, err := os.ReadFile(htmlFile)
				if err != nil {
					return err
				}
				found, err := capsolver.ExtractTurnstile(string(html))
				if err != nil {
					return fmt.Errorf("%s: %w", htmlFile, err)
				}
				params = params.WithDefaults(found)
			}
			if params.WebsiteKey == "" {
				return fmt.Errorf("sitekey required. Pass it as an argument or use --html-file")
			}

			if a.cfg.Verbose {
				fmt.Fprintf(a.out, "Solving Turnstile challenge for: %s\n", url)
				fmt.Fprintf(a.out, "Site key: %s\n", params.WebsiteKey)
			}

			solution, err := client.SolveTurnstile(cmd.Context(), url, params.WebsiteKey, params.TaskOptions()...)
			if err != nil {
				return err
			}

			token := solution.Token()
			if a.cfg.JSON {
				a.printJSON(map[string]interface{}{
					"success":    true,
					"url":        url,
					"sitekey":    params.WebsiteKey,
					"token":      token,
					"user_agent": solution.UserAgent(),
				})
				return nil
			}

			a.success("Turnstile solved successfully!")
			tokenPreview := token
			if len(token) > 80 {
				tokenPreview = token[:80] + "..."
			}
			fmt.Fprintf(a.out, "    Token: %s\n", tokenPreview)
			fmt.Fprintf(a.out, "    Token length: %d\n", len(token))
			return nil
		},
	}

	cmd.Flags().StringVar(&action, "action", "", "Widget data-action")
	cmd.Flags().StringVar(&cdata, "cdata", "", "Widget data-cdata")
	cmd.Flags().StringVar(&htmlFile, "html-file", "", "Saved page to read the widget parameters from")

	return cmd
}

func (a *app) inspectCmd() *cobra.Command {
	var status int

	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Detect a Cloudflare challenge or Turnstile widget in a saved page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			html, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			challenge := capsolver.LooksLikeChallenge(string(html))
			if cmd.Flags().Changed("status") {
				challenge = capsolver.IsChallengePage(status, string(html))
			}
			params, err := capsolver.ExtractTurnstile(string(html))
			turnstile := err == nil

			if a.cfg.JSON {
				result := map[string]interface{}{
					"file":      args[0],
					"challenge": challenge,
					"turnstile": turnstile,
				}
				if turnstile {
					result["sitekey"] = params.WebsiteKey
					result["action"] = params.Action
					result["cdata"] = params.CData
				}
				a.printJSON(result)
				return nil
			}

			if challenge {
				a.success("Cloudflare challenge page detected")
			} else {
				fmt.Fprintln(a.out, "[-] No Cloudflare challenge page detected")
			}
			if turnstile {
				a.success("Turnstile widget found")
				fmt.Fprintf(a.out, "    Sitekey: %s\n", params.WebsiteKey)
				if params.Action != "" {
					fmt.Fprintf(a.out, "    Action: %s\n", params.Action)
				}
				if params.CData != "" {
					fmt.Fprintf(a.out, "    CData: %s\n", params.CData)
				}
			} else {
				fmt.Fprintln(a.out, "[-] No Turnstile widget found")
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&status, "status", "s", 0, "HTTP status the page was served with")

	return cmd
}

func (a *app) balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Check account balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.newClient()
			if err != nil {
				return err
			}

			balance, err := client.Balance(cmd.Context())
			if err != nil {
				return err
			}

			if a.cfg.JSON {
				a.printJSON(map[string]interface{}{"success": true, "balance": balance})
				return nil
			}
			a.success(fmt.Sprintf("Balance: $%.4f", balance))
			return nil
		},
	}
}

func (a *app) success(msg string) {
	color.New(color.FgGreen).Fprintf(a.out, "[+] %s\n", msg)
}

func (a *app) printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(a.out, string(data))
}
