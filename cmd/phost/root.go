package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/chiwei-platform/phost/internal/client"
	"github.com/chiwei-platform/phost/internal/domain"
	"github.com/spf13/cobra"
)

// app carries what every subcommand needs once the persistent flags are parsed.
type app struct {
	configPath string
	lookup     string

	cfg    *client.Config
	client *client.Client
}

var headerStyle = lipgloss.NewStyle().Bold(true)

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "phost",
		Short:         "Manage static site deployments and proxy routes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ~/.phost/config.yaml)")
	root.PersistentFlags().StringVarP(&a.lookup, "lookup", "l", "subdomain", "field used to find deployments and routes: id, name or subdomain")

	root.AddCommand(
		newListCmd(a),
		newShowCmd(a),
		newCreateCmd(a),
		newUpdateCmd(a),
		newActivateCmd(a),
		newDeleteCmd(a),
		newProxyCmd(a),
	)
	return root
}

func (a *app) init(ctx context.Context) error {
	if a.configPath == "" {
		p, err := client.DefaultConfigPath()
		if err != nil {
			return err
		}
		a.configPath = p
	}
	cfg, err := client.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.client = client.New(cfg.APIServerURL, cfg.APIKey)
	if cfg.APIKey == "" && cfg.Username != "" {
		if ctx == nil {
			ctx = context.Background()
		}
		if err := a.client.Login(ctx, cfg.Username, cfg.Password); err != nil {
			return fmt.Errorf("login: %w", err)
		}
	}
	return nil
}

func (a *app) ref(value string) (domain.Ref, error) {
	field, err := domain.ParseLookupField(a.lookup)
	if err != nil {
		return domain.Ref{}, err
	}
	return domain.Ref{Field: field, Value: value}, nil
}

func (a *app) siteURL(subdomain string) string {
	return fmt.Sprintf("%s://%s.%s/", a.cfg.HostingProtocol, subdomain, a.cfg.HostingBaseURL)
}

func printTable(headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.HiddenBorder()).
		BorderHeader(false).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := lipgloss.NewStyle().PaddingRight(3)
			if row == table.HeaderRow {
				return s.Inherit(headerStyle)
			}
			return s
		})
	fmt.Fprintln(os.Stdout, t.Render())
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
