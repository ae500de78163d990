// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"crypto/tls"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ttbt-io/lanekeeper/backend"
)

var (
	addr          = flag.String("addr", ":8080", "The TCP address to listen to")
	debugMode     = flag.Bool("debug", false, "Enable debug mode")
	dataDir       = flag.String("data-dir", "data", "Directory for game and player data")
	tlsCert       = flag.String("tls-cert", "", "Path to main HTTP TLS certificate")
	tlsKey        = flag.String("tls-key", "", "Path to main HTTP TLS key")
	syncWrites    = flag.Bool("sync-writes", false, "Save every frame to disk as it is posted")
	flushInterval = flag.Duration("flush-interval", 30*time.Second, "How often games held in memory are saved to disk")
	forceRebuild  = flag.Bool("force-rebuild", false, "Force rebuild of Registry indices on startup")
)

// main starts the web server and registers the API handlers.
func main() {
	flag.Parse()

	var mainTLSCert *tls.Certificate
	if *tlsCert != "" && *tlsKey != "" {
		cert, err := tls.LoadX509KeyPair(*tlsCert, *tlsKey)
		if err != nil {
			log.Fatalf("Failed to load main TLS cert/key: %v", err)
		}
		mainTLSCert = &cert
	}

	store, err := backend.OpenStorage(*dataDir, os.Getenv(backend.MasterKeyEnv))
	if err != nil {
		log.Fatalf("Critical Security Error: %v. Refusing to start.", err)
	}
	store.EnableCompression(true)

	server, err := backend.StartServer(backend.Options{
		Addr:          *addr,
		Cert:          mainTLSCert,
		DataDir:       *dataDir,
		Debug:         *debugMode,
		SyncWrites:    *syncWrites,
		FlushInterval: *flushInterval,
		ForceRebuild:  *forceRebuild,
		Storage:       store,
	})
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	// Wait for interrupt signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	} else {
		log.Println("Gracefully stopped.")
	}
}
