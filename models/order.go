package models

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stillbooks/compliance_backend/config"
	"github.com/stillbooks/compliance_backend/utils"
)

// Order is the production-side aggregate a compliance event references. Order
// CRUD is owned by the production service; this is the read-model the
// compliance core consumes (spirit name, quantity, status text + status date).
type Order struct {
	ID              int        `gorm:"primary_key" json:"id"`
	CompanyId       int        `gorm:"index;not null" json:"company_id"`
	OrderNumber     string     `gorm:"size:50;not null" json:"order_number"`
	SpiritName      string     `gorm:"size:100" json:"spirit_name"`
	BarrelCount     int        `gorm:"not null;default:0" json:"barrel_count"`
	Status          string     `gorm:"size:100" json:"status"`
	StatusUpdatedAt *time.Time `json:"status_updated_at"`
	OrderDate       time.Time  `gorm:"index;not null" json:"order_date"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func GetOrderById(ctx context.Context, companyId int, orderId int) (*Order, error) {
	if orderId <= 0 {
		return nil, fmt.Errorf("%w: order id must be positive", utils.ErrorValidation)
	}
	db := config.GetDB()
	var order Order
	if err := db.WithContext(ctx).
		Where("company_id = ?", companyId).
		First(&order, orderId).Error; err != nil {
		return nil, fmt.Errorf("%w: order %d", utils.ErrorRecordNotFound, orderId)
	}
	return &order, nil
}

// terminal-disposal statuses remove an order's barrels from bonded inventory
var terminalDisposalStatuses = []string{"sold", "emptied", "dumped", "transferred out"}

func (o Order) IsTerminalDisposal() bool {
	status := strings.ToLower(strings.TrimSpace(o.Status))
	for _, s := range terminalDisposalStatuses {
		if strings.Contains(status, s) {
			return true
		}
	}
	return false
}

// InferTaxStatus maps free-text order status to the reporting tax-status
// dimension. Anything unrecognized is still in bond.
func (o Order) InferTaxStatus() TaxStatus {
	status := strings.ToLower(o.Status)
	switch {
	case strings.Contains(status, "tax paid"):
		return TaxStatusTaxPaid
	case strings.Contains(status, "export"):
		return TaxStatusExport
	case strings.Contains(status, "tax free"), strings.Contains(status, "duty free"):
		return TaxStatusTaxFree
	default:
		return TaxStatusBonded
	}
}
