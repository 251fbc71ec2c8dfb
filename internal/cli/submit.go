package cli

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newSubmitCmd() *cobra.Command {
	var server, branch string

	cmd := &cobra.Command{
		Use:   "submit <pipeline.yaml>",
		Short: "Submit a pipeline to a conveyor server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return errors.Wrapf(err, "read pipeline %s", args[0])
			}

			endpoint := server + "/api/pipelines"
			if branch != "" {
				endpoint += "?branch=" + url.QueryEscape(branch)
			}

			client := &http.Client{Timeout: 30 * time.Second}
			resp, err := client.Post(endpoint, "application/x-yaml", bytes.NewReader(data))
			if err != nil {
				return errors.Wrap(err, "submit pipeline")
			}
			defer resp.Body.Close()

			body, _ := io.ReadAll(resp.Body)
			if resp.StatusCode >= 300 {
				return errors.Errorf("server rejected pipeline (%d): %s", resp.StatusCode, bytes.TrimSpace(body))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s", body)
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "conveyor server base URL")
	cmd.Flags().StringVar(&branch, "branch", "", "branch to run as")
	return cmd
}
