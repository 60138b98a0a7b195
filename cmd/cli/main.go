package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	version    = "dev"
	serverURL  string
	configFile string
	verbose    bool
	rootCmd    = &cobra.Command{
		Use:           "ytdlw",
		Short:         "ytdlw - a supervised front-end for yt-dlp",
		Long:          `List the formats a URL offers and download it with yt-dlp, with live progress and clean cancellation.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show yt-dlp output and debug logs")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL for remote commands")

	rootCmd.AddCommand(formatsCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(slotsCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

var slotsCmd = &cobra.Command{
	Use:   "slots",
	Short: "Show what a running server is doing",
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := callServer(http.MethodGet, "/api/v1/slots")
		if err != nil {
			return err
		}

		var result struct {
			Slots []struct {
				Slot        string `json:"slot"`
				Busy        bool   `json:"busy"`
				OperationID string `json:"operation_id"`
				Process     *struct {
					Phase string `json:"phase"`
				} `json:"process"`
			} `json:"slots"`
		}
		if err := json.Unmarshal(body, &result); err != nil {
			return fmt.Errorf("unexpected response: %w", err)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SLOT\tSTATE\tOPERATION")
		for _, s := range result.Slots {
			state := "idle"
			if s.Busy {
				state = "starting"
				if s.Process != nil {
					state = s.Process.Phase
				}
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", s.Slot, state, s.OperationID)
		}
		return w.Flush()
	},
}

var cancelCmd = &cobra.Command{
	Use:       "cancel [fetch|download]",
	Short:     "Cancel the operation running in a server slot",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"fetch", "download"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := callServer(http.MethodPost, "/api/v1/slots/"+args[0]+"/cancel"); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Cancel requested")
		return nil
	},
}

// callServer performs a request against the server and returns the body of
// a 2xx response
func callServer(method, path string) ([]byte, error) {
	req, err := http.NewRequest(method, serverURL+path, nil)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("server not reachable at %s: %w", serverURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}
