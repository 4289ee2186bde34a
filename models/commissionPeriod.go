package models

import (
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/commissions_backend/utils"
	"gorm.io/gorm"
)

// CommissionPeriod defines one unit of commission computation: the anchor
// store and fiscal month, plus any merged stores and months folded into the
// same run.
type CommissionPeriod struct {
	StoreCode        string       `gorm:"primary_key;size:30" json:"store_code" binding:"required"`
	FiscalMonth      string       `gorm:"primary_key;size:50" json:"fiscal_month" binding:"required"`
	StoreType        string       `gorm:"size:50" json:"store_type"`
	FiscalPeriod     string       `gorm:"size:50" json:"fiscal_period"`
	Status           PeriodStatus `gorm:"size:20;default:'draft'" json:"status"`
	MergedStoreCodes string       `gorm:"size:255" json:"merged_store_codes"`
	MergedFlag       bool         `gorm:"default:false" json:"merged_flag"`
	OpeningDays      int          `json:"opening_days"`
	Remarks          string       `gorm:"type:text" json:"remarks"`
	CreatedAt        time.Time    `gorm:"autoCreateTime" json:"created_at"`
	CreatorCode      string       `gorm:"size:30" json:"creator_code"`
	UpdatedAt        time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
	ApprovedBy       string       `gorm:"size:30" json:"approved_by"`
	ApprovedAt       *time.Time   `json:"approved_at"`
	RejectedBy       string       `gorm:"size:30" json:"rejected_by"`
	RejectedAt       *time.Time   `json:"rejected_at"`
}

func (CommissionPeriod) TableName() string {
	return "commissions_store"
}

// GetCommissionPeriod loads the period record for an anchor store-month.
// Missing record is not fatal: the computation set then defaults to the anchor
// store and month alone.
func GetCommissionPeriod(tx *gorm.DB, storeCode string, fiscalMonth string) (*CommissionPeriod, error) {
	var period CommissionPeriod
	err := tx.Where("store_code = ? AND fiscal_month = ?", storeCode, fiscalMonth).
		First(&period).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &period, nil
}

// StoreCodes resolves the set of physical stores the period covers. Defaults
// to the anchor store when no merge is configured; the anchor is always part
// of the set.
func (p *CommissionPeriod) StoreCodes(anchorStoreCode string) []string {
	codes := []string{anchorStoreCode}
	if p == nil {
		return codes
	}
	return utils.MergeStringSlices(codes, utils.SplitAndTrim(p.MergedStoreCodes))
}

// FiscalMonths resolves the set of fiscal months the period covers. Defaults
// to the anchor month when fiscal_period is empty or equal to it.
func (p *CommissionPeriod) FiscalMonths(anchorFiscalMonth string) []string {
	months := []string{anchorFiscalMonth}
	if p == nil || p.FiscalPeriod == "" || p.FiscalPeriod == anchorFiscalMonth {
		return months
	}
	return utils.MergeStringSlices(months, utils.SplitAndTrim(p.FiscalPeriod))
}

// ApprovePeriod marks the period approved. Approval is an external review
// action; it never changes computed amounts.
func ApprovePeriod(tx *gorm.DB, storeCode string, fiscalMonth string, approverCode string) error {
	now := time.Now().UTC()
	res := tx.Model(&CommissionPeriod{}).
		Where("store_code = ? AND fiscal_month = ?", storeCode, fiscalMonth).
		Updates(map[string]interface{}{
			"status":      PeriodStatusApproved,
			"approved_by": approverCode,
			"approved_at": &now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrorRecordNotFound
	}
	return nil
}

// UnapprovePeriod reverts an approved period back to submitted.
func UnapprovePeriod(tx *gorm.DB, storeCode string, fiscalMonth string) error {
	res := tx.Model(&CommissionPeriod{}).
		Where("store_code = ? AND fiscal_month = ?", storeCode, fiscalMonth).
		Updates(map[string]interface{}{
			"status":      PeriodStatusSubmitted,
			"approved_by": "",
			"approved_at": nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrorRecordNotFound
	}
	return nil
}
