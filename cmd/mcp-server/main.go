// Grokipedia MCP server.
// Stdio for local agent integrations, HTTP for remote clients.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/atharv/grokipedia-mcp/internal/cache"
	"github.com/atharv/grokipedia-mcp/internal/dispatch"
	"github.com/atharv/grokipedia-mcp/internal/grokipedia"
	"github.com/atharv/grokipedia-mcp/internal/policy"
	"github.com/atharv/grokipedia-mcp/internal/tools/grok"
)

// Version is set by -ldflags at build time.
var Version = "dev"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Println("grokipedia-mcp " + Version)
			return
		}
	}

	// Load config
	tmpLogger := log.New(os.Stderr, "[grokipedia-mcp] ", log.LstdFlags|log.Lshortfile)
	cfg, configPath := loadConfig(tmpLogger)
	pol := policy.New(cfg)

	// Set up logging
	logger := setupLogger(pol.LogFile())
	logger.Println("Starting Grokipedia MCP server...")
	logger.Printf("Log file: %s", pol.LogFile())
	up := pol.Upstream()
	logger.Printf("Upstream: search=%s content=%s timeout=%ds", up.SearchBaseURL, up.ContentBaseURL, up.TimeoutSeconds)

	// Upstream client reads its settings through the policy so that config
	// hot-reloads take effect without a restart.
	client := grokipedia.NewDynamicClient(func() grokipedia.Config {
		u := pol.Upstream()
		return grokipedia.Config{
			SearchBaseURL:  u.SearchBaseURL,
			ContentBaseURL: u.ContentBaseURL,
			Timeout:        pol.UpstreamTimeout(),
		}
	}, nil)

	// Optional response cache in front of the client.
	var src dispatch.Source = client
	var cacheStore *cache.Store
	if cc := pol.CacheConfig(); cc != nil {
		var err error
		cacheStore, err = cache.Open(cc.Path, time.Duration(cc.TTLSeconds)*time.Second)
		if err != nil {
			logger.Printf("Warning: cache init failed: %v (feature disabled)", err)
		} else {
			src = cache.NewSource(client, cacheStore, logger)
			logger.Printf("Response cache enabled (ttl=%ds, db=%s)", cc.TTLSeconds, cc.Path)
		}
	}

	dispatcher := dispatch.New(src, logger, dispatch.WithLimitFunc(pol.Limits))

	// Build the MCPServer
	hooks := &server.Hooks{}
	hooks.AddAfterCallTool(func(ctx context.Context, id any, message *mcp.CallToolRequest, result *mcp.CallToolResult) {
		if message != nil {
			logger.Printf("Calling tool: %s", message.Params.Name)
		}
	})

	mcpServer := server.NewMCPServer(
		"grokipedia-mcp",
		Version,
		server.WithInstructions(grok.InstructionsText()),
		server.WithHooks(hooks),
	)
	grok.Register(mcpServer, dispatcher, logger)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ignore SIGHUP so the server keeps running when daemonized (nohup, launchd, etc.)
	signal.Ignore(syscall.SIGHUP)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	// Hot-reload upstream settings when the config file changes.
	if configPath != "" {
		watcher := policy.NewWatcher(configPath, pol, logger)
		go func() {
			if err := watcher.Start(ctx); err != nil {
				logger.Printf("Config watcher failed: %v", err)
			}
		}()
	}

	// Start HTTP server in background (for remote clients)
	httpShutdown := startHTTPServer(pol, mcpServer, logger)

	// Run stdio server in foreground (for local agent integrations)
	logger.Println("Stdio ready")
	stdioSrv := server.NewStdioServer(mcpServer)
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil {
		logger.Printf("Stdio server stopped: %v", err)
	}

	// Client disconnected -- shut everything down
	cancel()
	httpShutdown()

	if cacheStore != nil {
		if err := cacheStore.Close(); err != nil {
			logger.Printf("Warning: close cache: %v", err)
		}
	}

	logger.Println("Server stopped")
}

// startHTTPServer starts the HTTP server in the background. Returns a
// shutdown function. Uses net.Listen to support port 0 (auto-assign) for
// running multiple instances.
func startHTTPServer(pol *policy.Policy, mcpServer *server.MCPServer, logger *log.Logger) func() {
	ln, err := net.Listen("tcp", pol.ListenAddr())
	if err != nil {
		logger.Fatalf("HTTP listen: %v", err)
	}
	actualAddr := ln.Addr().String()
	baseURL := "http://" + actualAddr
	endpoint := pol.EndpointPath()

	logger.Printf("HTTP server on %s", actualAddr)
	logger.Printf("  MCP endpoint: %s%s", baseURL, endpoint)

	sseSrv := server.NewSSEServer(mcpServer, server.WithBaseURL(baseURL))
	streamSrv := server.NewStreamableHTTPServer(mcpServer,
		server.WithEndpointPath(endpoint),
	)

	mux := http.NewServeMux()
	mux.Handle("/sse", sseSrv)
	mux.Handle("/sse/", sseSrv)
	mux.Handle("/message", sseSrv)
	mux.Handle(endpoint, streamSrv)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","addr":%q}`, actualAddr)
	})

	httpServer := &http.Server{Handler: mux}

	go func() {
		if err := httpServer.Serve(ln); err != http.ErrServerClosed {
			logger.Fatalf("HTTP server error: %v", err)
		}
	}()

	return func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("HTTP shutdown error: %v", err)
		}
	}
}

// setupLogger creates a logger that writes to a log file and optionally stderr.
// When stderr is a terminal (interactive use), logs go to both stderr and the file.
// When stderr is redirected (daemon mode via nohup), logs go only to the file
// to avoid duplicate lines since nohup already redirects stderr to the log file.
// Stdout is never used: it carries the MCP stdio protocol.
func setupLogger(logFilePath string) *log.Logger {
	var writers []io.Writer

	stderrIsTerminal := false
	if info, err := os.Stderr.Stat(); err == nil {
		stderrIsTerminal = (info.Mode() & os.ModeCharDevice) != 0
	}

	hasLogFile := false
	lower := strings.ToLower(logFilePath)
	if lower != "none" && lower != "off" && logFilePath != "" {
		if err := os.MkdirAll(filepath.Dir(logFilePath), 0o755); err == nil {
			f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err == nil {
				writers = append(writers, f)
				hasLogFile = true
			} else {
				fmt.Fprintf(os.Stderr, "[grokipedia-mcp] Warning: cannot open log file %s: %v\n", logFilePath, err)
			}
		} else {
			fmt.Fprintf(os.Stderr, "[grokipedia-mcp] Warning: cannot create log dir %s: %v\n", filepath.Dir(logFilePath), err)
		}
	}

	if stderrIsTerminal || !hasLogFile {
		writers = append(writers, os.Stderr)
	}

	return log.New(io.MultiWriter(writers...), "[grokipedia-mcp] ", log.LstdFlags|log.Lshortfile)
}

// loadConfig loads configuration from GROKIPEDIA_MCP_CONFIG or defaults, and
// returns the config path (empty when running on defaults) for the watcher.
func loadConfig(logger *log.Logger) (*policy.Config, string) {
	cfg := policy.DefaultConfig()
	configPath := os.Getenv("GROKIPEDIA_MCP_CONFIG")
	if configPath != "" {
		var err error
		cfg, err = policy.LoadConfig(configPath)
		if err != nil {
			logger.Printf("Warning: failed to load config %s: %v, using defaults", configPath, err)
			cfg = policy.DefaultConfig()
			configPath = ""
		}
	}
	cfg.ApplyEnv()
	return cfg, configPath
}
