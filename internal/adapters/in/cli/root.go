// Package cli implements the CLI adapter for courseimages.
// This package provides Cobra commands that delegate to the images service.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/bnema/courseimages/internal/adapters/in/cli/ui/styles"
	"github.com/bnema/courseimages/internal/app"
	"github.com/bnema/courseimages/internal/boundaries/in"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// session is what a command needs for one run: a logger-carrying context,
// the images service and the registry host for pull names.
type session struct {
	ctx    context.Context
	images in.ImageService
	host   string
	ping   func(context.Context) error
	close  func()
}

// opener builds a session from the --config flag.
type opener func(ctx context.Context, configPath string) (*session, error)

func openApp(ctx context.Context, configPath string) (*session, error) {
	a, err := app.New(ctx, afero.NewOsFs(), configPath, Version)
	if err != nil {
		return nil, err
	}
	return &session{
		ctx:    a.Context(ctx),
		images: a.Images,
		host:   a.Config.Registry.Host,
		ping:   a.Ping,
		close:  a.Close,
	}, nil
}

// NewRootCmd creates the root command for the courseimages CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(openApp)
}

func newRootCmd(open opener) *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "courseimages",
		Short: "Manage course images in a Docker registry",
		Long: `courseimages lists, promotes and deletes the course images built by
repo2docker and pushed to a Docker Registry v2.

The registry is the only source of truth: every listing is derived from
image labels, and deletions only remove blobs no other image references.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	withSession := func(cmd *cobra.Command, fn func(s *session) error) error {
		s, err := open(cmd.Context(), configPath)
		if err != nil {
			return err
		}
		defer s.close()
		return fn(s)
	}

	rootCmd.AddCommand(newImagesCmd(withSession))
	rootCmd.AddCommand(newPingCmd(withSession))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newPingCmd(withSession func(*cobra.Command, func(*session) error) error) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the registry is reachable and accepts the credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, func(s *session) error {
				if err := s.ping(s.ctx); err != nil {
					return fmt.Errorf("registry %s: %w", s.host, err)
				}
				cmd.Println(styles.Status(styles.Success, "Registry "+s.host+" is reachable"))
				return nil
			})
		},
	}
}

// newVersionCmd creates the version command.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("courseimages %s\n", Version)
			cmd.Printf("Commit: %s\n", Commit)
			cmd.Printf("Build Date: %s\n", BuildDate)
		},
	}
}

// SetVersionInfo sets the version information for the CLI.
func SetVersionInfo(version, commit, date string) {
	Version = version
	Commit = commit
	BuildDate = date
}

// Execute runs the root command and prints a failure to stderr.
func Execute() error {
	cmd := NewRootCmd()
	err := cmd.ExecuteContext(context.Background())
	if err != nil {
		cmd.PrintErrln(styles.Status(styles.Error, err.Error()))
	}
	return err
}
