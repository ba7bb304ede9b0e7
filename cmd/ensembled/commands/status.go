package commands

import (
	"fmt"
	"time"

	"github.com/concave-dev/ensemble/cmd/ensembled/client"
	"github.com/concave-dev/ensemble/cmd/ensembled/utils"
	"github.com/concave-dev/ensemble/internal/logging"
	"github.com/concave-dev/ensemble/internal/validate"
	"github.com/spf13/cobra"
)

var statusOpts client.Options

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of a running embedded node",
	Example: `  ensembled status --addr=127.0.0.1:2181
  ensembled status --addr=127.0.0.1:2288 --cacert=ca.pem --cert=client.pem --key=client-key.pem`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	// Skip the daemon banner
	PersistentPreRun: func(cmd *cobra.Command, args []string) {},
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if _, err := validate.ParseHostPort(statusOpts.Addr); err != nil {
			return fmt.Errorf("invalid --addr: %w", err)
		}
		if (statusOpts.Cert == "") != (statusOpts.Key == "") {
			return fmt.Errorf("--cert and --key must be set together")
		}
		return validate.ValidatePositiveTimeout(statusOpts.Timeout, "timeout")
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client.New(statusOpts)
		if err != nil {
			return err
		}
		status, err := c.Status()
		if err != nil {
			logging.Error("%v", err)
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), utils.FormatStatus(status))
		return nil
	},
}

func setupStatusCommand(root *cobra.Command) {
	statusCmd.Flags().StringVar(&statusOpts.Addr, "addr", "127.0.0.1:2181",
		"Client API address of the node")
	statusCmd.Flags().DurationVar(&statusOpts.Timeout, "timeout", 5*time.Second,
		"Request timeout")
	statusCmd.Flags().StringVar(&statusOpts.CACert, "cacert", "",
		"CA certificate for a secure client port (enables https)")
	statusCmd.Flags().StringVar(&statusOpts.Cert, "cert", "",
		"Client certificate for mutual TLS")
	statusCmd.Flags().StringVar(&statusOpts.Key, "key", "",
		"Client private key for mutual TLS")
	root.AddCommand(statusCmd)
}
