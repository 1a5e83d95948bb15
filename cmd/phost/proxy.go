package main

import (
	"fmt"
	"strconv"

	"github.com/chiwei-platform/phost/internal/client"
	"github.com/spf13/cobra"
)

func newProxyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Manage reverse proxy routes",
	}
	cmd.AddCommand(newProxyListCmd(a), newProxyCreateCmd(a), newProxyDeleteCmd(a))
	return cmd
}

func newProxyListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List proxy routes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			routes, err := a.client.ListProxyRoutes(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(routes))
			for _, r := range routes {
				rows = append(rows, []string{r.Name, a.siteURL(r.Subdomain), r.DestinationAddress, strconv.FormatBool(r.UseCORSHeaders)})
			}
			printTable([]string{"NAME", "URL", "DESTINATION", "CORS"}, rows)
			return nil
		},
	}
}

func newProxyCreateCmd(a *app) *cobra.Command {
	var cors bool
	cmd := &cobra.Command{
		Use:   "create <name> <subdomain> <destination>",
		Short: "Proxy a subdomain to an upstream address",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			route, err := a.client.CreateProxyRoute(cmd.Context(), client.CreateProxyRouteParams{
				Name:               args[0],
				Subdomain:          args[1],
				DestinationAddress: args[2],
				UseCORSHeaders:     cors,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Proxy route created: %s -> %s\n", a.siteURL(route.Subdomain), route.DestinationAddress)
			return nil
		},
	}
	cmd.Flags().BoolVar(&cors, "cors", false, "add permissive CORS headers to proxied responses")
	return cmd
}

func newProxyDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <route>",
		Aliases: []string{"rm"},
		Short:   "Delete a proxy route",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := a.ref(args[0])
			if err != nil {
				return err
			}
			if err := a.client.DeleteProxyRoute(cmd.Context(), ref); err != nil {
				return err
			}
			fmt.Printf("Proxy route %s deleted\n", args[0])
			return nil
		},
	}
}
