package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// runForceReconnect hits a running instance's protected force-reconnect route
// (spec §4.B/§4.K): cache invalidation for every symbol happens on the server
// side before Ingest is told to reconnect.
func runForceReconnect(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	token, _ := cmd.Flags().GetString("token")

	req, err := http.NewRequest(http.MethodPost, addr+"/api/diagnostics/force-reconnect", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("force-reconnect request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("force-reconnect returned %s", resp.Status)
	}
	fmt.Println("reconnect requested")
	return nil
}
