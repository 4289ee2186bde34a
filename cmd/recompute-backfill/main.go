package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/commissions_backend/config"
	"bitbucket.org/mmdatafocus/commissions_backend/models"
	"bitbucket.org/mmdatafocus/commissions_backend/utils"
	"bitbucket.org/mmdatafocus/commissions_backend/workflow"
)

// recompute-backfill recomputes commissions for every store of a fiscal month,
// or for one store when -store-code is set. Intended for rule-catalog changes
// that must be replayed over already-computed periods.
func main() {
	fiscalMonth := flag.String("fiscal-month", "", "Fiscal month to recompute (required).")
	storeCode := flag.String("store-code", "", "Optional: recompute only one store.")
	flag.Parse()

	if strings.TrimSpace(*fiscalMonth) == "" {
		fmt.Fprintln(os.Stderr, "-fiscal-month is required")
		os.Exit(1)
	}

	ctx := context.Background()
	// Explicit connects (config does not connect in init()).
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	logger := config.GetLogger()

	models.MigrateTable()

	ctx = utils.SetUserNameInContext(ctx, "RecomputeBackfill")

	storeCodes := make([]string, 0)
	if strings.TrimSpace(*storeCode) != "" {
		storeCodes = append(storeCodes, strings.TrimSpace(*storeCode))
	} else {
		// Every store with a target row for the month gets recomputed.
		err := db.WithContext(ctx).Model(&models.StoreTarget{}).
			Where("fiscal_month = ?", strings.TrimSpace(*fiscalMonth)).
			Distinct().Pluck("store_code", &storeCodes).Error
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to list stores: %v\n", err)
			os.Exit(1)
		}
	}
	if len(storeCodes) == 0 {
		fmt.Fprintln(os.Stderr, "no stores found to recompute")
		return
	}

	failed := 0
	for _, code := range storeCodes {
		fmt.Printf("Recomputing commissions store=%s fiscal_month=%s\n", code, *fiscalMonth)
		err := workflow.RecomputeCommissionsForStore(ctx, db, logger, code, strings.TrimSpace(*fiscalMonth))
		if err != nil {
			failed++
			config.LogError(logger, "main.go", "main", "RecomputeCommissionsForStore", code, err)
			fmt.Fprintf(os.Stderr, "store %s: %v\n", code, err)
		}
	}

	fmt.Printf("Done: %d stores, %d failed\n", len(storeCodes), failed)
	if failed > 0 {
		os.Exit(1)
	}
}
