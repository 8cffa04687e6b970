package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"callagent/internal/api"
	"callagent/internal/call"
	"callagent/internal/config"
	"callagent/internal/database"
	"callagent/internal/dialer"
	"callagent/internal/livekit"
	"callagent/internal/websocket"
)

const defaultConfigPath = "/etc/callagent/callagent.yaml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "start":
		cmdStart()
	case "call":
		cmdCall()
	case "status":
		cmdStatus()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Callagent - Outbound Call Dispatch Service")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  callagent start                    Start the full service")
	fmt.Println("  callagent call <number> [...]      Dispatch one or more calls and print results")
	fmt.Println("  callagent status                   Query the health of a running instance")
	fmt.Println("  callagent help                     Show this help")
	fmt.Println()
	fmt.Println("The config file path is taken from CALLAGENT_CONFIG, defaulting to")
	fmt.Println("  " + defaultConfigPath)
	fmt.Println()
}

func loadConfig() *config.Config {
	configPath := os.Getenv("CALLAGENT_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("[Main] Error loading configuration: %v", err)
	}
	return cfg
}

// cmdStart wires every component and runs until a termination signal
func cmdStart() {
	log.Println("[Main] Callagent Service v1.0")
	log.Println("[Main] Starting services...")

	cfg := loadConfig()

	manager, hub, cleanup := buildManager(cfg, true)
	defer cleanup()

	server := api.NewServer(cfg, manager, hub)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()
	log.Printf("[Main] ✓ API server listening on %s", cfg.API.Address())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("[Main] Received %v, shutting down", sig)
	case err := <-errCh:
		log.Printf("[Main] API server stopped: %v", err)
	}
}

// cmdCall places calls from the command line without starting the API.
// Useful for smoke-testing credentials and agent availability.
func cmdCall() {
	numbers := os.Args[2:]
	if len(numbers) == 0 {
		fmt.Println("Usage: callagent call <number> [number...]")
		os.Exit(1)
	}

	cfg := loadConfig()

	manager, _, cleanup := buildManager(cfg, false)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	results := manager.PlaceBulkCalls(ctx, numbers)

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "NUMBER\tOK\tCALL ID\tSESSION\tERROR")
	succeeded := 0
	for _, res := range results {
		if res.Success {
			succeeded++
		}
		fmt.Fprintf(w, "%s\t%t\t%s\t%s\t%s\n",
			res.PhoneNumber, res.Success, res.CallID, res.SessionName, res.Error)
	}
	w.Flush()
	fmt.Printf("\n%d/%d calls dispatched\n", succeeded, len(results))

	if succeeded < len(results) {
		os.Exit(1)
	}
}

// cmdStatus queries the health endpoint of the configured instance
func cmdStatus() {
	cfg := loadConfig()

	url := fmt.Sprintf("http://%s/health", cfg.API.Address())
	resp, err := http.Get(url)
	if err != nil {
		fmt.Printf("Service unreachable at %s: %v\n", url, err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var health map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		fmt.Printf("Unexpected response from %s: %v\n", url, err)
		os.Exit(1)
	}

	fmt.Println("Callagent Service Status")
	fmt.Println("========================")
	fmt.Printf("Endpoint:     %s\n", url)
	fmt.Printf("Status:       %v\n", health["status"])
	fmt.Printf("Active calls: %v\n", health["active_calls"])
	if clients, ok := health["ws_clients"]; ok {
		fmt.Printf("WS clients:   %v\n", clients)
	}
}

// buildManager assembles the dialing pipeline. withEvents controls whether
// the websocket hub and database recorder are attached; one-shot CLI calls
// skip both.
func buildManager(cfg *config.Config, withEvents bool) (*dialer.Manager, *websocket.Hub, func()) {
	client := livekit.NewClient(cfg.LiveKit, cfg.Dispatch)
	dispatcher := dialer.NewDispatcher(client, cfg.Dispatch.SessionPrefix)
	registry := call.NewRegistry()

	manager := dialer.NewManager(dispatcher, registry, client, cfg.Dispatch.PresenceQueryTimeout())

	cleanup := func() {}
	if !withEvents {
		return manager, nil, cleanup
	}

	hub := websocket.NewHub()
	go hub.Run()
	manager.SetHub(hub)

	if cfg.Database.Enabled {
		conn, err := database.NewConnection(cfg.Database)
		if err != nil {
			log.Fatalf("[Main] Error connecting to database: %v", err)
		}
		if err := conn.EnsureSchema(); err != nil {
			log.Fatalf("[Main] Error preparing schema: %v", err)
		}

		recorder := database.NewRecorder(conn)
		recorder.Start()
		manager.SetHistory(recorder)
		log.Println("[Main] ✓ Database connected, call history enabled")

		cleanup = func() {
			recorder.Stop()
			conn.Close()
		}
	} else {
		log.Println("[Main] Database disabled, skipping call history")
	}

	return manager, hub, cleanup
}
