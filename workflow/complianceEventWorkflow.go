package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stillbooks/compliance_backend/config"
	"github.com/stillbooks/compliance_backend/models"
	"github.com/stillbooks/compliance_backend/models/reports"
	"github.com/stillbooks/compliance_backend/utils"
	"gorm.io/gorm"
)

// ComplianceEvent is one inbound business event (order/batch/barrel
// lifecycle) to be turned into a ledger entry. The producer supplies the
// scalar facts; the core never reaches back into the producing aggregate.
type ComplianceEvent struct {
	MessageId    string            `json:"message_id"`
	CompanyId    int               `json:"company_id"`
	EventType    string            `json:"event_type"`
	SourceType   models.SourceType `json:"source_type"`
	SourceId     int               `json:"source_id"`
	Date         time.Time         `json:"date"`
	SpiritName   string            `json:"spirit_name"`
	WineGallons  decimal.Decimal   `json:"wine_gallons"`
	Proof        decimal.Decimal   `json:"proof"`
	TemperatureF decimal.Decimal   `json:"temperature_f"`
	Note         string            `json:"note"`
}

// eventKinds maps producer event types to ledger transaction kinds.
var eventKinds = map[string]models.TransactionKind{
	"ProductionCompleted": models.TransactionKindProduction,
	"TransferredIn":       models.TransactionKindTransferIn,
	"TransferredOut":      models.TransactionKindTransferOut,
	"LossRecorded":        models.TransactionKindLoss,
	"GainRecorded":        models.TransactionKindGain,
	"Destroyed":           models.TransactionKindDestruction,
	"Bottled":             models.TransactionKindBottling,
}

// ProcessComplianceEventWorkflow records one event's ledger entry inside the
// caller's transaction.
func ProcessComplianceEventWorkflow(tx *gorm.DB, ctx context.Context, logger *logrus.Logger, calc *models.VolumeCalculator, classifier *models.SpiritClassifier, event ComplianceEvent) (*models.LedgerEntry, error) {
	kind, ok := eventKinds[event.EventType]
	if !ok {
		return nil, fmt.Errorf("%w: unknown event type %q", utils.ErrorValidation, event.EventType)
	}
	if _, err := models.ParseSourceType(string(event.SourceType)); err != nil {
		return nil, fmt.Errorf("%w: %q is not a source type", utils.ErrorValidation, event.SourceType)
	}
	// A quantity the producer could not supply is terminal: substituting zero
	// would misstate the filing.
	if !event.WineGallons.IsPositive() {
		return nil, fmt.Errorf("%w: %s %d supplied no positive quantity",
			utils.ErrorMissingContext, event.SourceType, event.SourceId)
	}

	classification := classifier.Classify(event.SpiritName, "Spirits")

	var proofGallons decimal.Decimal
	if event.Proof.IsPositive() {
		proofGallons = calc.ProofGallons(event.WineGallons, event.Proof, event.TemperatureF)
	} else {
		proofGallons = calc.ProofGallonsFromAbv(event.WineGallons, classification.Abv)
	}

	entry, err := models.RecordLedgerEntry(tx, ctx, models.RecordLedgerEntryInput{
		CompanyId:       event.CompanyId,
		TransactionDate: event.Date,
		Kind:            kind,
		ProductCategory: classification.Category,
		SpiritClass:     classification.SpiritClass,
		ProofGallons:    proofGallons,
		WineGallons:     event.WineGallons,
		SourceType:      event.SourceType,
		SourceId:        event.SourceId,
		Note:            event.Note,
	})
	if err != nil {
		config.LogError(logger, "complianceEventWorkflow.go", "ProcessComplianceEventWorkflow", "recording ledger entry", event, err)
		return nil, err
	}
	return entry, nil
}

// ProcessComplianceEvent is the entrypoint for one delivered event: a single
// transaction wrapping durable idempotency and the ledger write. Replays are
// successes.
func ProcessComplianceEvent(ctx context.Context, logger *logrus.Logger, calc *models.VolumeCalculator, classifier *models.SpiritClassifier, event ComplianceEvent) (*models.LedgerEntry, error) {
	db := config.GetDB()
	handlerName := "ComplianceEvent:" + event.EventType

	var entry *models.LedgerEntry
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if event.MessageId != "" {
			skip, err := BeginIdempotency(tx, event.CompanyId, handlerName, event.MessageId)
			if err != nil {
				return err
			}
			if skip {
				// replays answer with the entry the first delivery recorded
				entry, err = models.GetLedgerEntryBySource(tx, ctx, eventKinds[event.EventType], event.SourceType, event.SourceId)
				return err
			}
		}

		var err error
		entry, err = ProcessComplianceEventWorkflow(tx, ctx, logger, calc, classifier, event)
		if err != nil {
			return err
		}
		if event.MessageId != "" {
			return MarkIdempotencySucceeded(tx, event.CompanyId, handlerName, event.MessageId)
		}
		return nil
	})
	if err != nil {
		// the rollback erased the STARTED key, so the failure mark needs its
		// own transaction
		if event.MessageId != "" {
			_ = MarkIdempotencyFailed(db.WithContext(ctx), event.CompanyId, handlerName, event.MessageId, err)
		}
		return nil, err
	}

	if entry != nil {
		reports.InvalidateMonthlyReportCache(event.CompanyId, entry.TransactionDate.Year(), int(entry.TransactionDate.Month()))
	}
	return entry, nil
}
