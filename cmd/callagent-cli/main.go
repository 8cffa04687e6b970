package main

import (
	"bytes"
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
	apiHost string
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "callagent-cli",
		Short: "CLI for the callagent service",
		Long:  `A command line tool to place calls and inspect call status against a running callagent instance.`,
	}

	rootCmd.PersistentFlags().StringVar(&apiHost, "host", "http://localhost:8080", "Base URL of the API (e.g. http://10.0.0.5:8080)")

	var callCmd = &cobra.Command{
		Use:   "call [number...]",
		Short: "Dispatch one or more outbound calls",
		Args:  cobra.MinimumNArgs(1),
		Run:   runCall,
	}

	var statusCmd = &cobra.Command{
		Use:   "status [call-id]",
		Short: "Get the current status of a call",
		Args:  cobra.ExactArgs(1),
		Run:   runStatus,
	}

	var setStatusCmd = &cobra.Command{
		Use:   "set-status [call-id] [status]",
		Short: "Manually override the status of a call",
		Long:  `Valid statuses are connecting, connected and disconnected.`,
		Args:  cobra.ExactArgs(2),
		Run:   runSetStatus,
	}

	var listCmd = &cobra.Command{
		Use:   "list",
		Short: "List all tracked calls",
		Run:   runList,
	}

	rootCmd.AddCommand(callCmd, statusCmd, setStatusCmd, listCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// --- HANDLERS ---

func runCall(cmd *cobra.Command, args []string) {
	start := time.Now()

	if len(args) == 1 {
		sendPost(fmt.Sprintf("%s/makeCall", apiHost), map[string]interface{}{
			"phone_number": args[0],
		})
	} else {
		sendPost(fmt.Sprintf("%s/makeBulkCalls", apiHost), map[string]interface{}{
			"phone_numbers": args,
		})
	}

	fmt.Printf("Elapsed: %v\n", time.Since(start))
}

func runStatus(cmd *cobra.Command, args []string) {
	url := fmt.Sprintf("%s/callStatus/%s", apiHost, args[0])
	resp, err := http.Get(url)
	if err != nil {
		fmt.Printf("Error connecting to API: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var body map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&body)

	if resp.StatusCode != 200 {
		fmt.Printf("Error API: %s (%v)\n", resp.Status, body["error"])
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "CALL ID\tSTATUS\tNUMBER\tSESSION\tUPDATED")
	fmt.Fprintln(w, "-------\t------\t------\t-------\t-------")
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
		body["call_id"], body["status"], body["phone_number"], body["session_name"], body["last_updated"])
	w.Flush()
}

func runSetStatus(cmd *cobra.Command, args []string) {
	sendPost(fmt.Sprintf("%s/updateCallStatus/%s", apiHost, args[0]), map[string]interface{}{
		"status": args[1],
	})
}

func runList(cmd *cobra.Command, args []string) {
	url := fmt.Sprintf("%s/calls", apiHost)
	resp, err := http.Get(url)
	if err != nil {
		fmt.Printf("Error connecting to API: %v\n", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		fmt.Printf("Error API: %s\n", resp.Status)
		return
	}

	var body struct {
		Calls []map[string]interface{} `json:"calls"`
	}
	json.NewDecoder(resp.Body).Decode(&body)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "CALL ID\tSTATUS\tNUMBER\tSESSION")
	fmt.Fprintln(w, "-------\t------\t------\t-------")
	for _, c := range body.Calls {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			c["call_id"], c["status"], c["phone_number"], c["session_name"])
	}
	w.Flush()
}

// --- HELPERS ---

func sendPost(url string, body map[string]interface{}) {
	data, _ := json.Marshal(body)

	resp, err := http.Post(url, "application/json", bytes.NewBuffer(data))
	if err != nil {
		fmt.Printf("Error connecting to API: %v\n", err)
		return
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		fmt.Println(string(raw))
		return
	}

	if resp.StatusCode != 200 {
		fmt.Printf("Error API: %s\n", resp.Status)
	}
	fmt.Println(pretty.String())
}
