package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/bnema/proxied/internal/adapters/in/cli/ui/styles"
	"github.com/bnema/proxied/internal/boundaries/in"
	"github.com/bnema/proxied/internal/domain"
)

// Output formats for route listings.
const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

// newRoutesCmd creates the routes command group.
func newRoutesCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "routes",
		Short: "Manage routes",
		Long: `Manage routes. A route maps a set of domains to a set of upstreams.

Changes are only recorded here. The next build pass, run by 'proxied serve'
or 'proxied build', renders them and reloads nginx.`,
		Aliases: []string{"route"},
	}

	cmd.AddCommand(newRoutesAddCmd(opts))
	cmd.AddCommand(newRoutesListCmd(opts))
	cmd.AddCommand(newRoutesShowCmd(opts))
	cmd.AddCommand(newRoutesUpdateCmd(opts))
	cmd.AddCommand(newRoutesRemoveCmd(opts))
	cmd.AddCommand(newRoutesRebuildCmd(opts))
	cmd.AddCommand(newRoutesImportCmd(opts))
	cmd.AddCommand(newRoutesResetCmd(opts))

	return cmd
}

// routeFlags holds the flags shared by add and update.
type routeFlags struct {
	name        string
	label       string
	domains     []string
	upstreams   []string
	sslType     string
	letsencrypt bool
	forceSSL    bool
	disabled    bool
}

func (f *routeFlags) register(fs *pflag.FlagSet, withName bool) {
	if withName {
		fs.StringVar(&f.name, "name", "", "Route name (defaults to a generated id)")
	}
	fs.StringVar(&f.label, "label", "", "Free-form label")
	fs.StringSliceVarP(&f.domains, "domain", "d", nil, "Domain served by the route (repeatable)")
	fs.StringSliceVarP(&f.upstreams, "upstream", "u", nil, "Upstream address ip[:port] (repeatable)")
	fs.StringVar(&f.sslType, "ssl", "", "Certificate source: letsencrypt, manual, selfsigned or none")
	fs.BoolVar(&f.letsencrypt, "letsencrypt", false, "Shorthand for --ssl letsencrypt")
	fs.BoolVar(&f.forceSSL, "force-ssl", false, "Redirect plain HTTP to HTTPS")
	fs.BoolVar(&f.disabled, "disabled", false, "Keep the route out of nginx")
}

// input converts the flags into a route input. On update only the flags
// set on the command line are carried.
func (f *routeFlags) input(fs *pflag.FlagSet) (in.RouteInput, error) {
	var input in.RouteInput

	if fs.Changed("name") {
		input.Name = &f.name
	}
	if fs.Changed("label") {
		input.Label = &f.label
	}
	if fs.Changed("disabled") {
		enabled := !f.disabled
		input.Enabled = &enabled
	}
	if fs.Changed("force-ssl") {
		input.ForceSSL = &f.forceSSL
	}

	switch {
	case fs.Changed("letsencrypt") && fs.Changed("ssl"):
		return input, errors.New("--letsencrypt and --ssl are mutually exclusive")
	case fs.Changed("letsencrypt"):
		if f.letsencrypt {
			t := domain.SSLLetsEncrypt
			input.SSLType = &t
		}
	case fs.Changed("ssl"):
		t := parseSSLType(f.sslType)
		input.SSLType = &t
	}

	if fs.Changed("domain") {
		input.Domains = f.domains
	}
	if fs.Changed("upstream") {
		ups, err := parseUpstreams(f.upstreams)
		if err != nil {
			return input, err
		}
		input.Upstreams = ups
	}
	return input, nil
}

func parseSSLType(s string) domain.SSLType {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "none" || s == "off" {
		return domain.SSLNone
	}
	return domain.SSLType(s)
}

// parseUpstreams accepts ip, ip:port, bare IPv6 and [ipv6]:port forms.
// A missing port is left zero and later defaults to 80.
func parseUpstreams(raw []string) ([]in.UpstreamInput, error) {
	ups := make([]in.UpstreamInput, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		host, portStr, err := net.SplitHostPort(r)
		if err != nil {
			// no port, or a bare ipv6 literal
			ups = append(ups, in.UpstreamInput{IP: strings.Trim(r, "[]")})
			continue
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("upstream %q: invalid port %q", r, portStr)
		}
		ups = append(ups, in.UpstreamInput{IP: host, Port: port})
	}
	return ups, nil
}

func newRoutesAddCmd(opts *options) *cobra.Command {
	var flags routeFlags

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a route",
		Example: `  proxied routes add --name app -d app.example.com -d www.app.example.com -u 10.0.0.5:3000
  proxied routes add -d api.example.com -u 10.0.0.6:8080 -u 10.0.0.7:8080 --letsencrypt --force-ssl`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := flags.input(cmd.Flags())
			if err != nil {
				return err
			}
			return opts.withController(cmd, func(ctx context.Context, c controller) error {
				route, err := c.Routes().Add(ctx, input)
				if err != nil {
					return err
				}
				return cliWriteLine(cmd.OutOrStdout(), styles.RenderSuccess(fmt.Sprintf("route %s added (id %d)", route.Name, route.ID)))
			})
		},
	}
	flags.register(cmd.Flags(), true)
	return cmd
}

func newRoutesListCmd(opts *options) *cobra.Command {
	var (
		changed bool
		output  string
	)

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List routes",
		Aliases: []string{"ls"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withController(cmd, func(ctx context.Context, c controller) error {
				routes, err := c.Routes().List(ctx, domain.RouteFilter{OnlyChanged: changed})
				if err != nil {
					return fmt.Errorf("list routes: %w", err)
				}
				return writeRoutes(cmd.OutOrStdout(), routes, output)
			})
		},
	}
	cmd.Flags().BoolVar(&changed, "changed", false, "Only routes waiting for a build")
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "Output format: table, json or yaml")
	return cmd
}

func writeRoutes(w io.Writer, routes []*domain.Route, output string) error {
	switch output {
	case outputTable, "":
		if len(routes) == 0 {
			return cliWriteLine(w, cliRenderMuted("No routes configured"))
		}
		return cliWriteLine(w, renderRouteTable(routes))
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(routeViews(routes))
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(routeViews(routes)); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", output)
	}
}

func newRoutesShowCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id|name>",
		Short: "Show one route",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withController(cmd, func(ctx context.Context, c controller) error {
				route, err := c.Routes().Get(ctx, args[0])
				if err != nil {
					return err
				}
				return renderRouteDetail(cmd.OutOrStdout(), route)
			})
		},
	}
}

func newRoutesUpdateCmd(opts *options) *cobra.Command {
	var flags routeFlags

	cmd := &cobra.Command{
		Use:   "update <id|name>",
		Short: "Update a route",
		Long: `Update a route. Only the flags given are changed. --domain and --upstream
replace the whole list. The route name cannot be changed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := flags.input(cmd.Flags())
			if err != nil {
				return err
			}
			return opts.withController(cmd, func(ctx context.Context, c controller) error {
				route, err := c.Routes().Update(ctx, args[0], input)
				if err != nil {
					return err
				}
				return cliWriteLine(cmd.OutOrStdout(), styles.RenderSuccess("route "+route.Name+" updated"))
			})
		},
	}
	flags.register(cmd.Flags(), false)
	return cmd
}

func newRoutesRemoveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id|name>",
		Short:   "Mark a route for removal",
		Aliases: []string{"rm"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withController(cmd, func(ctx context.Context, c controller) error {
				route, err := c.Routes().Remove(ctx, args[0])
				if err != nil {
					return err
				}
				return cliWriteLine(cmd.OutOrStdout(), styles.RenderSuccess("route "+route.Name+" will be removed on the next build"))
			})
		},
	}
}

func newRoutesRebuildCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild <id|name>...",
		Short: "Flag routes for regeneration",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withController(cmd, func(ctx context.Context, c controller) error {
				for _, ref := range args {
					route, err := c.Routes().Rebuild(ctx, ref)
					if err != nil {
						return err
					}
					if err := cliWriteLine(cmd.OutOrStdout(), styles.RenderSuccess("route "+route.Name+" flagged for rebuild")); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

// importFile is the document read by routes import.
type importFile struct {
	Routes []in.RouteInput `yaml:"routes"`
}

func readImportFile(path string) ([]in.RouteInput, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var doc importFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc.Routes, nil
}

func newRoutesImportCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|->",
		Short: "Add routes from a YAML file",
		Long: `Add every route listed under the top-level "routes" key of a YAML (or JSON)
document. Invalid entries are reported and skipped.`,
		Example: `  routes:
    - name: app
      domains: [app.example.com]
      upstreams:
        - {ip: 10.0.0.5, port: 3000}
      ssl_type: letsencrypt
      force_ssl: true`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := readImportFile(args[0])
			if err != nil {
				return err
			}
			return opts.withController(cmd, func(ctx context.Context, c controller) error {
				return importRoutes(ctx, cmd.OutOrStdout(), c.Routes(), inputs)
			})
		},
	}
}

func importRoutes(ctx context.Context, w io.Writer, svc in.RouteService, inputs []in.RouteInput) error {
	if len(inputs) == 0 {
		return cliWriteLine(w, cliRenderMuted("No routes to import"))
	}

	var failed int
	for i, input := range inputs {
		route, err := svc.Add(ctx, input)
		var line string
		if err != nil {
			failed++
			line = styles.RenderError(fmt.Sprintf("routes[%d]: %v", i, err))
		} else {
			line = styles.RenderSuccess(fmt.Sprintf("route %s added (id %d)", route.Name, route.ID))
		}
		if err := cliWriteLine(w, line); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d route(s) not imported", failed, len(inputs))
	}
	return nil
}

func newRoutesResetCmd(opts *options) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every route from the database",
		Long: `Delete every route from the database. Rendered configuration stays on disk
until the next reconcile pass removes it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to reset without --yes")
			}
			return opts.withController(cmd, func(ctx context.Context, c controller) error {
				if err := c.Routes().Reset(ctx); err != nil {
					return err
				}
				return cliWriteLine(cmd.OutOrStdout(), styles.RenderWarning("all routes removed"))
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm the reset")
	return cmd
}
