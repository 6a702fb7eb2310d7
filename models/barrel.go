package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stillbooks/compliance_backend/config"
	"gorm.io/gorm"
)

// Barrel is a bonded storage container filled under an order.
type Barrel struct {
	ID           int       `gorm:"primary_key" json:"id"`
	CompanyId    int       `gorm:"index;not null" json:"company_id"`
	OrderId      int       `gorm:"index;not null" json:"order_id"`
	SerialNumber string    `gorm:"size:50;not null" json:"serial_number"`
	FilledAt     time.Time `gorm:"not null" json:"filled_at"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// GaugeReading is a measured volume/strength observation on a barrel. Removal
// readings are the tax-triggering events.
type GaugeReading struct {
	ID           int              `gorm:"primary_key" json:"id"`
	CompanyId    int              `gorm:"index;not null" json:"company_id"`
	BarrelId     int              `gorm:"index;not null" json:"barrel_id"`
	Kind         GaugeReadingKind `gorm:"size:20;not null" json:"kind"`
	WineGallons  decimal.Decimal  `gorm:"type:decimal(20,2);not null" json:"wine_gallons"`
	Proof        decimal.Decimal  `gorm:"type:decimal(8,2);not null" json:"proof"`
	TemperatureF decimal.Decimal  `gorm:"type:decimal(6,2);not null" json:"temperature_f"`
	ReadAt       time.Time        `gorm:"index;not null" json:"read_at"`
	CreatedAt    time.Time        `gorm:"autoCreateTime" json:"created_at"`
}

// GetRemovalReadingsForOrder loads all removal gauge readings across an
// order's barrels.
func GetRemovalReadingsForOrder(ctx context.Context, companyId int, orderId int) ([]*GaugeReading, error) {
	db := config.GetDB()
	var readings []*GaugeReading
	err := db.WithContext(ctx).
		Joins("JOIN barrels ON barrels.id = gauge_readings.barrel_id").
		Where("barrels.company_id = ? AND barrels.order_id = ? AND gauge_readings.kind = ?",
			companyId, orderId, GaugeReadingKindRemoval).
		Find(&readings).Error
	if err != nil {
		return nil, err
	}
	return readings, nil
}

// barrelWithOrder pairs a barrel with the order fields the snapshot inclusion
// rule needs.
type barrelWithOrder struct {
	Barrel Barrel
	Order  Order
}

func getBarrelsWithOrders(tx *gorm.DB, ctx context.Context, companyId int, existedBefore time.Time) ([]barrelWithOrder, error) {
	var barrels []Barrel
	err := tx.WithContext(ctx).
		Joins("JOIN orders ON orders.id = barrels.order_id").
		Where("barrels.company_id = ? AND orders.order_date < ?", companyId, existedBefore).
		Find(&barrels).Error
	if err != nil {
		return nil, err
	}
	if len(barrels) == 0 {
		return nil, nil
	}

	orderIds := make([]int, 0, len(barrels))
	seen := make(map[int]bool, len(barrels))
	for _, b := range barrels {
		if !seen[b.OrderId] {
			seen[b.OrderId] = true
			orderIds = append(orderIds, b.OrderId)
		}
	}
	var orders []Order
	if err := tx.WithContext(ctx).Where("company_id = ? AND id IN ?", companyId, orderIds).
		Find(&orders).Error; err != nil {
		return nil, err
	}
	ordersById := make(map[int]Order, len(orders))
	for _, o := range orders {
		ordersById[o.ID] = o
	}

	result := make([]barrelWithOrder, 0, len(barrels))
	for _, b := range barrels {
		order, ok := ordersById[b.OrderId]
		if !ok {
			continue
		}
		result = append(result, barrelWithOrder{Barrel: b, Order: order})
	}
	return result, nil
}
