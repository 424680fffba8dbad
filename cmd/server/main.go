// Command server exposes bid-document generation over HTTP.
package main

import (
	"log"
	"net/http"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg := loadConfig()
	srv, err := newServer(cfg)
	if err != nil {
		log.Fatalf("Failed to init server: %v", err)
	}
	defer srv.Close()

	log.Printf("Tenderprep server starting on http://localhost:%s (data in %s)", cfg.Port, cfg.DataDir)
	if err := http.ListenAndServe(":"+cfg.Port, srv.routes()); err != nil {
		log.Fatal(err)
	}
}
