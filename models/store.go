package models

import (
	"time"
)

// Store is the store dimension row. Only the handful of columns the
// commission surface reads are mapped here; the table itself is owned by the
// upstream master-data sync.
type Store struct {
	StoreCode     string     `gorm:"primary_key;size:30" json:"store_code"`
	StoreName     string     `gorm:"size:255;not null" json:"store_name"`
	StoreType     string     `gorm:"size:30" json:"store_type"`
	ManageChannel string     `gorm:"size:30" json:"manage_channel"`
	ManageRegion  string     `gorm:"size:30" json:"manage_region"`
	OpenDate      *time.Time `json:"open_date"`
	CloseDate     *time.Time `json:"close_date"`
	InactiveFlag  int        `json:"inactive_flag"`
}

func (Store) TableName() string {
	return "store"
}
