package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/commissions_backend/config"
	"bitbucket.org/mmdatafocus/commissions_backend/models"
	"bitbucket.org/mmdatafocus/commissions_backend/utils"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	ErrorMissingStoreTarget = errors.New("no store target found for the computation set")
	ErrorMissingStoreType   = errors.New("store type could not be resolved for the computation set")
)

// RecomputeCommissionsForStore recalculates every commission of one
// store-period from scratch and swaps the stored result in a single
// transaction. Concurrent recomputes of the same store-period are rejected
// with utils.ErrorRecomputeInProgress; manual adjustment rows survive the swap
// untouched.
func RecomputeCommissionsForStore(ctx context.Context, db *gorm.DB, logger *logrus.Logger, storeCode string, fiscalMonth string) error {

	locker := config.GetRedisLock()
	if locker != nil {
		lockKey := fmt.Sprintf("commission_recompute:%s:%s", storeCode, fiscalMonth)
		lock, err := locker.Obtain(ctx, lockKey, 30*time.Second, nil)
		if err == redislock.ErrNotObtained {
			config.LogError(logger, "CommissionWorkflow.go", "RecomputeCommissionsForStore", "Obtain lock", lockKey, err)
			return utils.ErrorRecomputeInProgress
		} else if err != nil {
			config.LogError(logger, "CommissionWorkflow.go", "RecomputeCommissionsForStore", "Obtain lock", lockKey, err)
			return err
		}
		defer func() {
			_ = lock.Release(ctx)
		}()
	}

	userName, _ := utils.GetUserNameFromContext(ctx)

	return db.Transaction(func(tx *gorm.DB) error {
		input, err := loadCalcInput(tx, logger, storeCode, fiscalMonth)
		if err != nil {
			return err
		}

		out := Calculate(*input)
		for i := range out.Records {
			out.Records[i].CreatorCode = userName
		}
		for i := range out.Details {
			out.Details[i].CreatorCode = userName
		}

		err = models.ReplaceCommissionRecords(tx, storeCode, fiscalMonth, out.Records, out.Details)
		if err != nil {
			config.LogError(logger, "CommissionWorkflow.go", "RecomputeCommissionsForStore", "ReplaceCommissionRecords", storeCode, err)
			return err
		}

		logger.WithFields(logrus.Fields{
			"store_code":   storeCode,
			"fiscal_month": fiscalMonth,
			"records":      len(out.Records),
			"details":      len(out.Details),
		}).Info("commission recompute completed")
		return nil
	})
}

// loadCalcInput prefetches every input of one commission run inside the
// caller's transaction.
func loadCalcInput(tx *gorm.DB, logger *logrus.Logger, storeCode string, fiscalMonth string) (*CalcInput, error) {

	period, err := models.GetCommissionPeriod(tx, storeCode, fiscalMonth)
	if err != nil {
		config.LogError(logger, "CommissionWorkflow.go", "loadCalcInput", "GetCommissionPeriod", storeCode, err)
		return nil, err
	}

	storeCodes := period.StoreCodes(storeCode)
	fiscalMonths := period.FiscalMonths(fiscalMonth)

	targets, err := models.GetStoreTargets(tx, storeCodes, fiscalMonths)
	if err != nil {
		config.LogError(logger, "CommissionWorkflow.go", "loadCalcInput", "GetStoreTargets", storeCodes, err)
		return nil, err
	}
	if len(targets) == 0 {
		config.LogError(logger, "CommissionWorkflow.go", "loadCalcInput", "GetStoreTargets", storeCodes, ErrorMissingStoreTarget)
		return nil, ErrorMissingStoreTarget
	}

	storeType := resolveStoreType(period, targets, storeCode)
	if storeType == "" {
		config.LogError(logger, "CommissionWorkflow.go", "loadCalcInput", "resolveStoreType", storeCode, ErrorMissingStoreType)
		return nil, ErrorMissingStoreType
	}

	staffRows, err := models.GetStaffAttendances(tx, storeCodes, fiscalMonths)
	if err != nil {
		config.LogError(logger, "CommissionWorkflow.go", "loadCalcInput", "GetStaffAttendances", storeCodes, err)
		return nil, err
	}

	positions := make([]string, 0)
	for _, row := range staffRows {
		if !utils.ContainsString(positions, row.Position) {
			positions = append(positions, row.Position)
		}
	}

	assignments, err := models.GetActiveAssignments(tx, storeType, positions)
	if err != nil {
		config.LogError(logger, "CommissionWorkflow.go", "loadCalcInput", "GetActiveAssignments", storeType, err)
		return nil, err
	}

	ruleCodes := make([]string, 0)
	for _, codes := range assignments {
		ruleCodes = utils.MergeStringSlices(ruleCodes, codes)
	}

	rules, err := models.GetRulesByCodes(tx, ruleCodes)
	if err != nil {
		config.LogError(logger, "CommissionWorkflow.go", "loadCalcInput", "GetRulesByCodes", ruleCodes, err)
		return nil, err
	}
	// Catalog rows are hand-maintained; rows with unknown enum values would
	// silently compute as commission rules, so drop them. The affected staff
	// surface in commissions_staff_detail with the no_bracket sentinel.
	for _, code := range pruneInvalidRules(rules) {
		config.LogError(logger, "CommissionWorkflow.go", "loadCalcInput", "invalid rule dropped from catalog", code,
			errors.New("rule has an unknown rule_type or rule_basis"))
	}

	brackets, err := models.GetBracketsByRuleCodes(tx, ruleCodes)
	if err != nil {
		config.LogError(logger, "CommissionWorkflow.go", "loadCalcInput", "GetBracketsByRuleCodes", ruleCodes, err)
		return nil, err
	}

	periodLengthDays, err := models.GetPeriodLengthDays(tx, fiscalMonths)
	if err != nil {
		config.LogError(logger, "CommissionWorkflow.go", "loadCalcInput", "GetPeriodLengthDays", fiscalMonths, err)
		return nil, err
	}

	openingDays := 0
	if period != nil {
		openingDays = period.OpeningDays
	}

	return &CalcInput{
		Period: PeriodContext{
			AnchorStoreCode:   storeCode,
			AnchorFiscalMonth: fiscalMonth,
			StoreType:         storeType,
			StoreCodes:        storeCodes,
			FiscalMonths:      fiscalMonths,
			OpeningDays:       openingDays,
			PeriodLengthDays:  periodLengthDays,
		},
		StoreTargets: targets,
		StaffRows:    staffRows,
		Assignments:  assignments,
		Rules:        rules,
		Brackets:     brackets,
	}, nil
}

// pruneInvalidRules removes catalog rows whose rule_type or rule_basis is not
// a known enum value, returning the removed codes sorted for stable logging.
func pruneInvalidRules(rules map[string]models.CommissionRule) []string {
	removed := make([]string, 0)
	for code, rule := range rules {
		if rule.RuleType.Valid() != nil || rule.RuleBasis.Valid() != nil {
			delete(rules, code)
			removed = append(removed, code)
		}
	}
	sort.Strings(removed)
	return removed
}

// resolveStoreType prefers the period record's store type, then the anchor
// store's target row, then any target row of the set.
func resolveStoreType(period *models.CommissionPeriod, targets []models.StoreTarget, anchorStoreCode string) string {
	if period != nil && period.StoreType != "" {
		return period.StoreType
	}
	for _, t := range targets {
		if t.StoreCode == anchorStoreCode && t.StoreType != "" {
			return t.StoreType
		}
	}
	for _, t := range targets {
		if t.StoreType != "" {
			return t.StoreType
		}
	}
	return ""
}
