// Command simulator runs a standalone EBICS host the gateway can point at
// for local development and integration tests, following the repo's
// cmd/* process-per-concern layout.
package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/paynet/ebics-gateway/internal/simulator/bank"
	"github.com/paynet/ebics-gateway/internal/simulator/host"
)

func main() {
	addr := os.Getenv("SIMULATOR_ADDR")
	if addr == "" {
		addr = ":8090"
	}
	hostID := os.Getenv("SIMULATOR_HOST_ID")
	if hostID == "" {
		hostID = "SIMHOST"
	}

	ledger := bank.NewLedger()
	h, err := host.New(hostID, ledger)
	if err != nil {
		log.Fatalf("simulator: failed to generate host keys: %v", err)
	}

	fmt.Printf("ebics host simulator listening on %s (host id %s)\n", addr, hostID)
	if err := http.ListenAndServe(addr, h); err != nil {
		log.Fatalf("simulator: server failed: %v", err)
	}
}
