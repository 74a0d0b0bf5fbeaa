package cli

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"

	"resumind/internal/resumes"
)

type serviceKeyType struct{}

var serviceKey = serviceKeyType{}

var confirmPrompt confirmFunc = promptConfirm

var errNoService = errors.New("resume service not found in context")

// Options are the flags shared by every subcommand.
type Options struct {
	User string
	JSON bool
}

// NewRootCommand builds the resumectl command tree.
func NewRootCommand(opts *Options) *cobra.Command {
	root := &cobra.Command{
		Use:           "resumectl",
		Short:         "Submit, inspect and wipe resume reviews from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.User, "user", "u", defaultUser(), "owner id whose records are used")
	root.PersistentFlags().BoolVar(&opts.JSON, "json", false, "print machine-readable JSON")

	root.AddCommand(
		newSubmitCommand(opts),
		newListCommand(opts),
		newShowCommand(opts),
		newWipeCommand(opts, confirmPrompt),
	)
	return root
}

// Execute runs the command tree against svc.
func Execute(ctx context.Context, svc *resumes.Service, args []string, out io.Writer) error {
	var opts Options
	root := NewRootCommand(&opts)
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(out)
	root.SetContext(context.WithValue(ctx, serviceKey, svc))
	return root.Execute()
}

func serviceFromContext(ctx context.Context) (*resumes.Service, error) {
	if svc, ok := ctx.Value(serviceKey).(*resumes.Service); ok && svc != nil {
		return svc, nil
	}
	return nil, errNoService
}

func defaultUser() string {
	if u := os.Getenv("RESUMIND_USER"); u != "" {
		return u
	}
	return "cli:local"
}
