package models

import "gorm.io/gorm"

// MigrateDatabase creates/updates the compliance tables. The business
// read-models (companies, orders, barrels, gauge readings) are owned and
// migrated by the production service; they are included here only so a fresh
// development database is usable end to end.
func MigrateDatabase(db *gorm.DB) error {
	return db.AutoMigrate(
		&Company{},
		&Order{},
		&Barrel{},
		&GaugeReading{},
		&LedgerEntry{},
		&InventorySnapshotRow{},
		&TaxDetermination{},
		&MonthlyReport{},
		&History{},
		&IdempotencyKey{},
	)
}
