/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the lending engine simulation server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Optionally open the SQLite journal archive
  3. Create API handler with a fresh simulation
  4. Configure HTTP router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port      HTTP server port (default: 8080)
  -db        SQLite archive path; empty disables archiving.
             Use ":memory:" for an in-memory database.
  -start     Virtual clock start, RFC 3339 (default: now)
  -autoclock Advance one virtual day per -tick of real time
  -tick      Real-time interval per virtual day (default: 1m)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the clock runner
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close the archive
  5. Exit

EXAMPLES:
  # Run with persistent archive
  ./server -db="./data/loans.db"

  # Run a self-advancing demo, one virtual day every 10 seconds
  ./server -autoclock -tick=10s

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Archive implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/lending-engine/api"
	"github.com/warp/lending-engine/store/sqlite"
)

func main() {
	var (
		port      = flag.Int("port", 8080, "HTTP server port")
		dbPath    = flag.String("db", "", "SQLite archive path (empty disables archiving)")
		startStr  = flag.String("start", "", "virtual clock start, RFC 3339 (default: now)")
		autoclock = flag.Bool("autoclock", false, "advance one virtual day per tick")
		tick      = flag.Duration("tick", time.Minute, "real-time interval per virtual day")
	)
	flag.Parse()

	start := time.Now().UTC()
	if *startStr != "" {
		parsed, err := time.Parse(time.RFC3339, *startStr)
		if err != nil {
			log.Fatalf("invalid -start: %v", err)
		}
		start = parsed
	}

	handler := api.NewHandler(start)

	if *dbPath != "" {
		archive, err := sqlite.New(*dbPath)
		if err != nil {
			log.Fatalf("failed to open archive: %v", err)
		}
		defer archive.Close()
		handler.Simulator.Archive(archive)
		log.Printf("archiving journal to %s", *dbPath)
	}

	runner := api.NewClockRunner(handler)
	runner.TickInterval = *tick
	runner.Enabled = *autoclock
	runner.Start()
	defer runner.Stop()

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: api.NewRouter(handler),
	}

	go func() {
		log.Printf("lending engine listening on :%d (virtual time %s)", *port, start.Format(time.RFC3339))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("forced shutdown: %v", err)
	}
}
