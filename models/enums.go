package models

import "errors"

type TransactionKind string

const (
	TransactionKindProduction       TransactionKind = "Production"
	TransactionKindTransferIn       TransactionKind = "TransferIn"
	TransactionKindTransferOut      TransactionKind = "TransferOut"
	TransactionKindLoss             TransactionKind = "Loss"
	TransactionKindGain             TransactionKind = "Gain"
	TransactionKindTaxDetermination TransactionKind = "TaxDetermination"
	TransactionKindDestruction      TransactionKind = "Destruction"
	TransactionKindBottling         TransactionKind = "Bottling"
)

func ParseTransactionKind(s string) (TransactionKind, error) {
	switch TransactionKind(s) {
	case TransactionKindProduction,
		TransactionKindTransferIn,
		TransactionKindTransferOut,
		TransactionKindLoss,
		TransactionKindGain,
		TransactionKindTaxDetermination,
		TransactionKindDestruction,
		TransactionKindBottling:
		return TransactionKind(s), nil
	}
	return "", errors.New("invalid transaction kind")
}

type SpiritClass string

const (
	SpiritClassUnder190Proof    SpiritClass = "Under190Proof"
	SpiritClassNeutral190OrMore SpiritClass = "Neutral190OrMore"
	SpiritClassAlcohol          SpiritClass = "Alcohol"
	SpiritClassWine             SpiritClass = "Wine"
)

type TaxStatus string

const (
	TaxStatusBonded  TaxStatus = "Bonded"
	TaxStatusTaxPaid TaxStatus = "TaxPaid"
	TaxStatusExport  TaxStatus = "Export"
	TaxStatusTaxFree TaxStatus = "TaxFree"
)

type ReportStatus string

const (
	ReportStatusDraft         ReportStatus = "Draft"
	ReportStatusPendingReview ReportStatus = "PendingReview"
	ReportStatusApproved      ReportStatus = "Approved"
	ReportStatusSubmitted     ReportStatus = "Submitted"
	ReportStatusArchived      ReportStatus = "Archived"
)

// SourceType identifies the business entity a ledger entry originated from.
// Together with the source id and transaction kind it forms the natural key
// that makes ledger recording idempotent.
type SourceType string

const (
	SourceTypeOrder  SourceType = "Order"
	SourceTypeBatch  SourceType = "Batch"
	SourceTypeBarrel SourceType = "Barrel"
)

func ParseSourceType(s string) (SourceType, error) {
	switch SourceType(s) {
	case SourceTypeOrder, SourceTypeBatch, SourceTypeBarrel:
		return SourceType(s), nil
	}
	return "", errors.New("invalid source type")
}

type UserRole string

const (
	UserRoleOperator          UserRole = "Operator"
	UserRoleComplianceManager UserRole = "ComplianceManager"
	UserRoleAdmin             UserRole = "Admin"
	UserRoleSuperAdmin        UserRole = "SuperAdmin"
)

// reviewer roles may approve or reject a report under review
func (r UserRole) CanReview() bool {
	switch r {
	case UserRoleComplianceManager, UserRoleAdmin, UserRoleSuperAdmin:
		return true
	}
	return false
}

type GaugeReadingKind string

const (
	GaugeReadingKindFill    GaugeReadingKind = "Fill"
	GaugeReadingKindStorage GaugeReadingKind = "Storage"
	GaugeReadingKindRemoval GaugeReadingKind = "Removal"
)
