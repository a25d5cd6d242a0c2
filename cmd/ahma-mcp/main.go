// ahma-mcp is the gateway's single executable. It runs in one of two modes:
//
//	--mode stdio   one tool-execution MCP server, sandboxed to one scope root,
//	               talking JSON-RPC over stdin/stdout — used directly by an
//	               IDE/agent that spawns its own subprocess, and used
//	               internally as the per-session child the HTTP bridge spawns.
//	--mode http    a browser/IDE-facing HTTP+SSE bridge that multiplexes many
//	               concurrent sessions, each proxied to its own stdio child.
//
// Usage:
//
//	ahma-mcp --mode stdio --sandbox-scope /path/to/workspace --tools-dir ./tools
//	ahma-mcp --mode http --tools-dir ./tools --http-port 0
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ahma/mcp-gateway/internal/adapter"
	"github.com/ahma/mcp-gateway/internal/httpbridge"
	"github.com/ahma/mcp-gateway/internal/mcpservice"
	"github.com/ahma/mcp-gateway/internal/operation"
	"github.com/ahma/mcp-gateway/internal/sandbox"
	"github.com/ahma/mcp-gateway/internal/session"
	"github.com/ahma/mcp-gateway/internal/shellpool"
	"github.com/ahma/mcp-gateway/internal/toolconfig"
)

const shellPoolSize = 4

func main() {
	mode := flag.String("mode", "stdio", "gateway mode: stdio or http")
	httpPort := flag.Int("http-port", 0, "TCP port for --mode http (0 = kernel-assigned)")
	toolsDir := flag.String("tools-dir", envOr("AHMA_TOOLS_DIR", "./tools"), "directory of MTDF tool definitions")
	sandboxScope := flag.String("sandbox-scope", os.Getenv("AHMA_SANDBOX_SCOPE"), "workspace root to confine shell execution to (required for --mode stdio)")
	sync := flag.Bool("sync", false, "force every tool call to run synchronously regardless of its definition")
	logToStderr := flag.Bool("log-to-stderr", true, "write diagnostics to stderr (stdout is reserved for JSON-RPC in stdio mode)")
	debug := flag.Bool("debug", false, "verbose logging")
	noSandbox := flag.Bool("no-sandbox", os.Getenv("AHMA_NO_SANDBOX") == "1", "disable OS-level sandbox confinement (test/diagnostic only)")
	flag.Parse()

	if *logToStderr {
		log.SetOutput(os.Stderr)
	} else {
		log.SetOutput(io.Discard)
	}
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	switch *mode {
	case "stdio":
		if *sandboxScope == "" {
			log.Fatal("ahma-mcp: --sandbox-scope (or AHMA_SANDBOX_SCOPE) is required in --mode stdio")
		}
		if err := runStdio(*sandboxScope, *toolsDir, *sync, *noSandbox, *debug); err != nil {
			log.Fatalf("ahma-mcp: %v", err)
		}
	case "http":
		if err := runHTTP(*httpPort, *toolsDir, *sync, *noSandbox, *debug); err != nil {
			log.Fatalf("ahma-mcp: %v", err)
		}
	default:
		log.Fatalf("ahma-mcp: unknown --mode %q (want stdio or http)", *mode)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// runStdio wires C1-C7 directly and serves one MCP server over stdio. This
// is both the gateway's direct-spawn mode and the per-session child the HTTP
// bridge (C8/C9) spawns once a session's workspace root is known.
func runStdio(scopeRoot, toolsDir string, forceSync, noSandbox, debug bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scope := sandbox.NewScope()
	if err := scope.Lock(scopeRoot, noSandbox); err != nil {
		return fmt.Errorf("locking sandbox scope: %w", err)
	}

	catalog := toolconfig.NewCatalog()
	if err := catalog.LoadDir(toolsDir); err != nil {
		return fmt.Errorf("loading tool catalog from %s: %w", toolsDir, err)
	}
	watcher, err := toolconfig.NewWatcher(toolsDir, catalog)
	if err != nil {
		return fmt.Errorf("starting catalog watcher: %w", err)
	}
	watcher.Start()
	defer watcher.Stop()

	poolCfg, err := adapter.BuildPoolConfig(scope, shellPoolSize, nil)
	if err != nil {
		return fmt.Errorf("building sandboxed shell pool: %w", err)
	}
	pool, err := shellpool.New(poolCfg)
	if err != nil {
		return fmt.Errorf("starting shell pool: %w", err)
	}
	defer pool.Close()

	ops := operation.NewMonitor(nil)
	ad := adapter.New(catalog, scope, pool, ops)
	if forceSync {
		ad = ad.WithForcedSync()
	}

	server := mcpservice.Build(catalog, ad, ops)
	if debug {
		log.Printf("ahma-mcp: stdio mode serving %d tools rooted at %s", len(catalog.List()), scope.Root())
	}
	return server.Run(ctx, &gomcp.StdioTransport{})
}

// runHTTP wires C8 (Session Manager) and C9 (HTTP Bridge): the process never
// runs the Adapter/Shell Pool/Sandbox Scope itself, only spawns and proxies
// to one stdio child (this same binary, re-invoked) per session.
func runHTTP(port int, toolsDir string, forceSync, noSandbox, debug bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving own executable path: %w", err)
	}

	mgr := session.NewManager(session.ChildSpec{
		Command:      self,
		ToolsDir:     toolsDir,
		ForceSync:    forceSync,
		NoSandbox:    noSandbox,
		Debug:        debug,
		HandshakeTTL: 60 * time.Second,
	})
	defer mgr.Shutdown()

	bridge := httpbridge.New(mgr)

	listener, actualPort, err := httpbridge.Listen(port)
	if err != nil {
		return fmt.Errorf("binding http listener: %w", err)
	}
	fmt.Fprintf(os.Stderr, "AHMA_BOUND_PORT=%d\n", actualPort)

	return bridge.Serve(ctx, listener)
}
