package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/ncecere/seat_billing/internal/config"
)

func main() {
	file := flag.String("config", "", "path to billing.yaml")
	offline := flag.Bool("offline", false, "skip database/redis/admin validation")
	flag.Parse()

	load := config.Load
	if *offline {
		load = config.LoadOffline
	}
	cfg, err := load(config.Options{ConfigFile: *file})
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cfg.Redacted()); err != nil {
		log.Fatalf("encode config: %v", err)
	}
}
