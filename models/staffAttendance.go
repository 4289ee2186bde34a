package models

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StaffAttendance is one staff member's attendance and sales figures for one
// store and fiscal month. A commission period spanning merged stores or months
// sees several of these rows per staff; the engine sums them before any rule
// logic runs.
type StaffAttendance struct {
	StaffCode          string          `gorm:"primary_key;size:30" json:"staff_code" binding:"required"`
	StoreCode          string          `gorm:"primary_key;size:30" json:"store_code" binding:"required"`
	FiscalMonth        string          `gorm:"primary_key;size:50" json:"fiscal_month" binding:"required"`
	ExpectedAttendance decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"expected_attendance"`
	ActualAttendance   decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"actual_attendance"`
	Position           string          `gorm:"size:100;not null" json:"position" binding:"required"`
	SalaryCoefficient  decimal.Decimal `gorm:"type:decimal(12,2);default:1" json:"salary_coefficient"`
	TargetValue        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"target_value"`
	SalesValue         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"sales_value"`
	DelFlag            bool            `gorm:"not null;default:false" json:"del_flag"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	CreatorCode        string          `gorm:"size:30" json:"creator_code"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (StaffAttendance) TableName() string {
	return "target_staff_attendances"
}

func GetStaffAttendances(tx *gorm.DB, storeCodes []string, fiscalMonths []string) ([]StaffAttendance, error) {
	var rows []StaffAttendance
	err := tx.Where("store_code IN ? AND fiscal_month IN ? AND del_flag = false", storeCodes, fiscalMonths).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

type StaffActualAttendance struct {
	StaffCode        string          `json:"staff_code" binding:"required"`
	ActualAttendance decimal.Decimal `json:"actual_attendance"`
}

// UpdateActualAttendances patches actual_attendance for the given staff of one
// store-period. This is the external attendance update path; the caller is
// expected to recompute commissions afterwards.
func UpdateActualAttendances(tx *gorm.DB, storeCode string, fiscalMonth string, updates []StaffActualAttendance) (int, error) {
	updated := 0
	for _, u := range updates {
		res := tx.Model(&StaffAttendance{}).
			Where("staff_code = ? AND store_code = ? AND fiscal_month = ?", u.StaffCode, storeCode, fiscalMonth).
			Update("actual_attendance", u.ActualAttendance)
		if res.Error != nil {
			return updated, res.Error
		}
		updated += int(res.RowsAffected)
	}
	return updated, nil
}

// Expected column order of the attendance workbook. Row 1 is the header.
var attendanceImportColumns = []string{
	"staff_code", "store_code", "fiscal_month", "position", "salary_coefficient",
	"expected_attendance", "actual_attendance", "target_value", "sales_value",
}

// ImportStaffAttendanceFromXlsx parses an uploaded attendance workbook and
// upserts its rows. Returns the number of rows imported.
func ImportStaffAttendanceFromXlsx(tx *gorm.DB, file io.Reader, creatorCode string) (int, error) {
	f, err := excelize.OpenReader(file)
	if err != nil {
		return 0, fmt.Errorf("failed to open Excel file: %v", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return 0, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return 0, err
	}
	if len(rows) < 2 {
		return 0, errors.New("workbook has no data rows")
	}

	header := rows[0]
	if len(header) < len(attendanceImportColumns) {
		return 0, fmt.Errorf("expected %d columns, got %d", len(attendanceImportColumns), len(header))
	}
	for i, want := range attendanceImportColumns {
		if !strings.EqualFold(strings.TrimSpace(header[i]), want) {
			return 0, fmt.Errorf("column %d must be %q, got %q", i+1, want, header[i])
		}
	}

	records := make([]StaffAttendance, 0, len(rows)-1)
	for idx, row := range rows[1:] {
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		if len(row) < len(attendanceImportColumns) {
			return 0, fmt.Errorf("row %d is incomplete", idx+2)
		}
		rec := StaffAttendance{
			StaffCode:   strings.TrimSpace(row[0]),
			StoreCode:   strings.TrimSpace(row[1]),
			FiscalMonth: strings.TrimSpace(row[2]),
			Position:    strings.TrimSpace(row[3]),
			CreatorCode: creatorCode,
		}
		if rec.StoreCode == "" || rec.FiscalMonth == "" || rec.Position == "" {
			return 0, fmt.Errorf("row %d is missing store_code, fiscal_month or position", idx+2)
		}
		decCols := []struct {
			dst  *decimal.Decimal
			cell string
			name string
		}{
			{&rec.SalaryCoefficient, row[4], "salary_coefficient"},
			{&rec.ExpectedAttendance, row[5], "expected_attendance"},
			{&rec.ActualAttendance, row[6], "actual_attendance"},
			{&rec.TargetValue, row[7], "target_value"},
			{&rec.SalesValue, row[8], "sales_value"},
		}
		for _, c := range decCols {
			cell := strings.TrimSpace(c.cell)
			if cell == "" {
				*c.dst = decimal.Zero
				continue
			}
			d, derr := decimal.NewFromString(strings.ReplaceAll(cell, ",", ""))
			if derr != nil {
				return 0, fmt.Errorf("row %d: invalid %s %q", idx+2, c.name, c.cell)
			}
			*c.dst = d
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return 0, errors.New("workbook has no data rows")
	}

	err = tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "staff_code"}, {Name: "store_code"}, {Name: "fiscal_month"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"position", "salary_coefficient", "expected_attendance",
			"actual_attendance", "target_value", "sales_value",
		}),
	}).Create(&records).Error
	if err != nil {
		return 0, err
	}
	return len(records), nil
}
