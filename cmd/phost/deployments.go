package main

import (
	"fmt"

	"github.com/chiwei-platform/phost/internal/client"
	"github.com/spf13/cobra"
)

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List deployments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deployments, err := a.client.ListDeployments(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(deployments))
			for _, d := range deployments {
				active := "-"
				if v, ok := d.ActiveVersion(); ok {
					active = v.Version
				}
				rows = append(rows, []string{d.Name, a.siteURL(d.Subdomain), active, d.CreatedOn.Format("2006-01-02")})
			}
			printTable([]string{"NAME", "URL", "ACTIVE", "CREATED"}, rows)
			return nil
		},
	}
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <deployment>",
		Short: "Show a deployment and its versions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := a.ref(args[0])
			if err != nil {
				return err
			}
			d, err := a.client.GetDeployment(cmd.Context(), ref)
			if err != nil {
				return err
			}
			fmt.Printf("%s  %s\n", headerStyle.Render(d.Name), a.siteURL(d.Subdomain))
			fmt.Printf("id: %s\ncategories: %v\n", d.ID, d.Categories)
			if d.NotFoundDocument != "" {
				fmt.Printf("not found document: %s\n", d.NotFoundDocument)
			}
			rows := make([][]string, 0, len(d.Versions))
			for _, v := range d.Versions {
				marker := ""
				if v.Active {
					marker = "*"
				}
				rows = append(rows, []string{marker, v.Version, v.CreatedOn.Format("2006-01-02 15:04")})
			}
			printTable([]string{"", "VERSION", "CREATED"}, rows)
			return nil
		},
	}
}

func newCreateCmd(a *app) *cobra.Command {
	var (
		version          string
		categories       string
		randomSubdomain  bool
		spa              bool
		notFoundDocument string
	)
	cmd := &cobra.Command{
		Use:   "create <name> <subdomain> <directory>",
		Short: "Create a deployment from a directory",
		Long: `Packs the directory into a tar.gz archive and creates a new deployment
serving it. With --random-subdomain (or --private) the subdomain argument may be
omitted and an unguessable one is generated.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, subdomain, dir := args[0], "", ""
			switch {
			case randomSubdomain && len(args) == 2:
				dir = args[1]
			case len(args) == 3:
				subdomain, dir = args[1], args[2]
			default:
				return fmt.Errorf("expected <name> <subdomain> <directory>")
			}
			if randomSubdomain {
				subdomain = client.RandomSubdomain()
			}
			if spa && notFoundDocument == "" {
				notFoundDocument = "index.html"
			}
			archive, err := client.PackDir(dir)
			if err != nil {
				return err
			}
			d, err := a.client.CreateDeployment(cmd.Context(), client.CreateDeploymentParams{
				Name:             name,
				Subdomain:        subdomain,
				Version:          version,
				Categories:       splitList(categories),
				NotFoundDocument: notFoundDocument,
			}, archive)
			if err != nil {
				return err
			}
			fmt.Printf("Deployment successfully created: %s\n", a.siteURL(d.Subdomain))
			return nil
		},
	}
	cmd.Flags().StringVarP(&version, "version", "v", "0.1.0", "version label of the initial upload")
	cmd.Flags().StringVarP(&categories, "categories", "c", "", "comma separated categories")
	cmd.Flags().BoolVar(&randomSubdomain, "random-subdomain", false, "generate a random subdomain")
	cmd.Flags().BoolVar(&randomSubdomain, "private", false, "alias of --random-subdomain")
	cmd.Flags().BoolVar(&spa, "spa", false, "serve index.html for unknown paths (single page app)")
	cmd.Flags().StringVar(&notFoundDocument, "not-found-document", "", "document served for missing paths, relative to the site root")
	return cmd
}

func newUpdateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "update <deployment> <version> <directory>",
		Short: "Upload a new version and make it active",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := a.ref(args[0])
			if err != nil {
				return err
			}
			archive, err := client.PackDir(args[2])
			if err != nil {
				return err
			}
			v, err := a.client.AddVersion(cmd.Context(), ref, args[1], archive)
			if err != nil {
				return err
			}
			fmt.Printf("Version %s is now active\n", v.Version)
			return nil
		},
	}
}

func newActivateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "activate <deployment> <version>",
		Short: "Make an existing version active",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := a.ref(args[0])
			if err != nil {
				return err
			}
			v, err := a.client.ActivateVersion(cmd.Context(), ref, args[1])
			if err != nil {
				return err
			}
			fmt.Printf("Version %s is now active\n", v.Version)
			return nil
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	var version string
	cmd := &cobra.Command{
		Use:     "delete <deployment>",
		Aliases: []string{"rm"},
		Short:   "Delete a deployment or a single version of it",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := a.ref(args[0])
			if err != nil {
				return err
			}
			if version == "" {
				if err := a.client.DeleteDeployment(cmd.Context(), ref); err != nil {
					return err
				}
				fmt.Printf("Deployment %s deleted\n", args[0])
				return nil
			}
			deploymentDeleted, err := a.client.DeleteVersion(cmd.Context(), ref, version)
			if err != nil {
				return err
			}
			fmt.Printf("Version %s deleted\n", version)
			if deploymentDeleted {
				fmt.Printf("It was the last version; deployment %s deleted\n", args[0])
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&version, "version", "v", "", "only delete this version")
	return cmd
}
