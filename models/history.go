package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stillbooks/compliance_backend/config"
	"github.com/stillbooks/compliance_backend/utils"
	"gorm.io/gorm"
)

// History is the append-only audit trail. Every mutation of a compliance
// entity writes one row with serialized before/after state and the request
// metadata of the actor. Rows are written, never read back, by the components
// that produce them.
type History struct {
	ID            int       `gorm:"primary_key" json:"id"`
	CompanyId     int       `gorm:"index;not null" json:"company_id"`
	ActionType    string    `gorm:"size:10;not null" json:"action_type"`
	EntityType    string    `gorm:"size:50;index;not null" json:"entity_type"`
	EntityId      int       `gorm:"index;not null" json:"entity_id"`
	Before        string    `gorm:"type:text" json:"before"`
	After         string    `gorm:"type:text" json:"after"`
	Description   string    `gorm:"type:text;not null" json:"description"`
	UserId        int       `gorm:"index" json:"user_id"`
	UserName      string    `gorm:"size:100" json:"user_name"`
	ClientIP      string    `gorm:"size:45" json:"client_ip"`
	UserAgent     string    `gorm:"size:255" json:"user_agent"`
	CorrelationId string    `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type AuditEntityKind string

const (
	AuditEntityKindLedgerEntry      AuditEntityKind = "LedgerEntry"
	AuditEntityKindMonthlyReport    AuditEntityKind = "MonthlyReport"
	AuditEntityKindTaxDetermination AuditEntityKind = "TaxDetermination"
	AuditEntityKindSnapshotRun      AuditEntityKind = "SnapshotRun"
)

// AuditEntity is a tagged union over the entity kinds the audit trail can
// serialize. Exactly one value field is set, matching Kind; serialization is
// an explicit switch, not reflection over arbitrary structs.
type AuditEntity struct {
	Kind          AuditEntityKind
	LedgerEntry   *LedgerEntry
	Report        *MonthlyReport
	Determination *TaxDetermination
	SnapshotRun   *SnapshotRun
}

func LedgerEntryAuditEntity(entry *LedgerEntry) AuditEntity {
	return AuditEntity{Kind: AuditEntityKindLedgerEntry, LedgerEntry: entry}
}

func MonthlyReportAuditEntity(report *MonthlyReport) AuditEntity {
	return AuditEntity{Kind: AuditEntityKindMonthlyReport, Report: report}
}

func TaxDeterminationAuditEntity(determination *TaxDetermination) AuditEntity {
	return AuditEntity{Kind: AuditEntityKindTaxDetermination, Determination: determination}
}

func SnapshotRunAuditEntity(run *SnapshotRun) AuditEntity {
	return AuditEntity{Kind: AuditEntityKindSnapshotRun, SnapshotRun: run}
}

func (e AuditEntity) serialize() (string, error) {
	var (
		b   []byte
		err error
	)
	switch e.Kind {
	case AuditEntityKindLedgerEntry:
		if e.LedgerEntry == nil {
			return "", nil
		}
		b, err = json.Marshal(e.LedgerEntry)
	case AuditEntityKindMonthlyReport:
		if e.Report == nil {
			return "", nil
		}
		b, err = json.Marshal(e.Report)
	case AuditEntityKindTaxDetermination:
		if e.Determination == nil {
			return "", nil
		}
		b, err = json.Marshal(e.Determination)
	case AuditEntityKindSnapshotRun:
		if e.SnapshotRun == nil {
			return "", nil
		}
		b, err = json.Marshal(e.SnapshotRun)
	default:
		return "", fmt.Errorf("unknown audit entity kind %q", e.Kind)
	}
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (e AuditEntity) companyId() int {
	switch e.Kind {
	case AuditEntityKindLedgerEntry:
		if e.LedgerEntry != nil {
			return e.LedgerEntry.CompanyId
		}
	case AuditEntityKindMonthlyReport:
		if e.Report != nil {
			return e.Report.CompanyId
		}
	case AuditEntityKindTaxDetermination:
		if e.Determination != nil {
			return e.Determination.CompanyId
		}
	case AuditEntityKindSnapshotRun:
		if e.SnapshotRun != nil {
			return e.SnapshotRun.CompanyId
		}
	}
	return 0
}

func createHistory(tx *gorm.DB, actionType string, entityId int, before AuditEntity, after AuditEntity, description string) error {
	ctx := tx.Statement.Context

	companyId := after.companyId()
	if companyId == 0 {
		companyId = before.companyId()
	}
	if companyId == 0 {
		return errors.New("audit record requires a company-scoped entity")
	}
	kind := after.Kind
	if kind == "" {
		kind = before.Kind
	}

	beforeJSON, err := before.serialize()
	if err != nil {
		return err
	}
	afterJSON, err := after.serialize()
	if err != nil {
		return err
	}

	history := History{
		CompanyId:   companyId,
		ActionType:  actionType,
		EntityType:  string(kind),
		EntityId:    entityId,
		Before:      beforeJSON,
		After:       afterJSON,
		Description: description,
	}
	if ctx != nil {
		history.UserId, _ = utils.GetUserIdFromContext(ctx)
		history.UserName, _ = utils.GetUserNameFromContext(ctx)
		history.ClientIP, _ = utils.GetClientIPFromContext(ctx)
		history.UserAgent, _ = utils.GetUserAgentFromContext(ctx)
		history.CorrelationId, _ = utils.GetCorrelationIdFromContext(ctx)
	}

	return tx.Create(&history).Error
}

func SaveAuditCreate(tx *gorm.DB, entityId int, after AuditEntity, description string) error {
	return createHistory(tx, "CREATE", entityId, AuditEntity{}, after, description)
}

func SaveAuditUpdate(tx *gorm.DB, entityId int, before AuditEntity, after AuditEntity, description string) error {
	return createHistory(tx, "UPDATE", entityId, before, after, description)
}

func SaveAuditDelete(tx *gorm.DB, entityId int, before AuditEntity, description string) error {
	return createHistory(tx, "DELETE", entityId, before, AuditEntity{}, description)
}

// GetHistories lists a company's audit records, optionally filtered by entity
// and actor. Back-office read surface; the core never reads these back.
func GetHistories(ctx context.Context, entityType *string, entityId *int, userId *int) ([]*History, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId <= 0 {
		return nil, fmt.Errorf("%w: company id is required", utils.ErrorValidation)
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("company_id = ?", companyId)
	if entityType != nil && *entityType != "" {
		dbCtx = dbCtx.Where("entity_type = ?", *entityType)
	}
	if entityId != nil && *entityId > 0 {
		dbCtx = dbCtx.Where("entity_id = ?", *entityId)
	}
	if userId != nil && *userId > 0 {
		dbCtx = dbCtx.Where("user_id = ?", *userId)
	}

	var results []*History
	if err := dbCtx.Order("created_at DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
