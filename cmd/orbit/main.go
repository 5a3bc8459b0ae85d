package main

import (
	"errors"
	"fmt"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"io"
	"os"
)

var (
	infoString  = color.New(color.FgHiCyan).SprintfFunc()
	errorString = color.New(color.FgHiRed).SprintfFunc()
	debugString = color.New(color.FgHiWhite).SprintfFunc()
)

type options struct {
	url   string
	token string
	debug bool
}

func main() {
	cmd, opts := newRootCmd()
	if err := cmd.Execute(); err != nil {
		printError(os.Stderr, err, opts.debug)
		os.Exit(1)
	}
}

func newRootCmd() (*cobra.Command, *options) {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "orbit",
		Short:         "Trigger Orbit deploys from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.url == "" {
				return fmt.Errorf("the server URL is required, use --url or ORBIT_URL")
			}
			if opts.token == "" {
				return fmt.Errorf("the token is required, use --token or ORBIT_TOKEN")
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.url, "url", "u", os.Getenv("ORBIT_URL"), "URL of the Orbit instance")
	cmd.PersistentFlags().StringVarP(&opts.token, "token", "t", os.Getenv("ORBIT_TOKEN"), "Orbit authentication token")
	cmd.PersistentFlags().BoolVarP(&opts.debug, "debug", "D", false, "enable debug output")
	cmd.AddCommand(newDeployCmd(opts))
	return cmd, opts
}

// printError reports the failure of a command. In debug mode every error of the chain is printed.
func printError(w io.Writer, err error, debug bool) {
	fmt.Fprintln(w, errorString("error")+": "+err.Error())
	if !debug {
		return
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		fmt.Fprintf(w, "%s: %T: %v\n", debugString("debug"), e, e)
	}
}
