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

	"github.com/adfharrison1/go-dirdb/pkg/engine"
	"github.com/adfharrison1/go-dirdb/pkg/kv"
	"github.com/adfharrison1/go-dirdb/pkg/schema"
	"github.com/adfharrison1/go-dirdb/pkg/server"
)

func main() {
	// Command line flags
	var (
		port         = flag.String("port", "8080", "Server port")
		dataDir      = flag.String("data-dir", "./go-dirdb_data", "Data directory for the pebble store")
		guidAttr     = flag.String("guid-attr", "", "Attribute carrying the 16-byte entry GUID (enables GUID mode)")
		oneLevel     = flag.Bool("one-level-indexes", false, "Maintain the parent->children index")
		maxKeyLength = flag.Int("max-key-length", 0, "Maximum storage key length (0 = unlimited)")
		readOnly     = flag.Bool("read-only", false, "Open the database read-only")
		showHelp     = flag.Bool("help", false, "Show help message")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\ngo-dirdb is a directory-style key/value database with secondary indexes.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                                     # Start with defaults\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -guid-attr objectGUID               # GUID-keyed records\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -one-level-indexes -port 9090       # One-level index, custom port\n", os.Args[0])
	}

	flag.Parse()

	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}

	store, err := kv.OpenPebble(*dataDir)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	log.Printf("INFO: Using data directory: %s", *dataDir)

	sch := schema.New()
	var options []engine.Option
	if *guidAttr != "" {
		sch.Declare(*guidAttr, schema.SyntaxGUID, 0)
		options = append(options, engine.WithGUIDAttribute(*guidAttr))
		log.Printf("INFO: GUID mode enabled on attribute %s", *guidAttr)
	}
	if *oneLevel {
		options = append(options, engine.WithOneLevelIndexes())
		log.Printf("INFO: One-level indexes enabled")
	}
	if *maxKeyLength > 0 {
		options = append(options, engine.WithMaxKeyLength(*maxKeyLength))
	}
	if *readOnly {
		options = append(options, engine.WithReadOnly())
		log.Printf("WARN: Database opened read-only")
	}

	db, err := engine.Open(store, sch, options...)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}

	srv := server.NewServer(db)
	defer srv.Close()

	// Create HTTP server
	httpServer := &http.Server{
		Addr:    ":" + *port,
		Handler: srv.Router(),
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting go-dirdb server on :%s", *port)
		log.Printf("API endpoints available at http://localhost:%s", *port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
