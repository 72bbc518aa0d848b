package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/splitleasesharath/splitlease-sub012/config"
	"github.com/splitleasesharath/splitlease-sub012/models"
)

// Requeues dead-lettered sync entries in bulk, by entity type and/or
// correlation id. Single-entry requeues go through the API; this is for the
// "legacy endpoint was down all night" case.
func main() {
	entityType := flag.String("entity-type", "", "Requeue dead letters for one entity type (user, listing, proposal, thread, message, lease).")
	correlationId := flag.String("correlation-id", "", "Requeue dead letters sharing one correlation id.")
	flag.Parse()

	if strings.TrimSpace(*entityType) == "" && strings.TrimSpace(*correlationId) == "" {
		fmt.Fprintln(os.Stderr, "at least one of -entity-type or -correlation-id is required")
		flag.Usage()
		os.Exit(2)
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}

	n, err := models.RequeueDeadLettersBulk(context.Background(), strings.TrimSpace(*entityType), strings.TrimSpace(*correlationId))
	if err != nil {
		fmt.Fprintln(os.Stderr, "requeue failed:", err)
		os.Exit(1)
	}
	fmt.Printf("requeued %d dead-lettered entr", n)
	if n == 1 {
		fmt.Println("y")
	} else {
		fmt.Println("ies")
	}
}
