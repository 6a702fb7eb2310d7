package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stillbooks/compliance_backend/config"
	"github.com/stillbooks/compliance_backend/models"
	"github.com/stillbooks/compliance_backend/models/reports"
	"github.com/stillbooks/compliance_backend/utils"
	"github.com/stillbooks/compliance_backend/workflow"
)

func TestEventDeliveryAndSnapshotAgainstDatabase(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "stillbooks_test")
	// Stale cached calculations are the failure mode under test.
	t.Setenv("ENABLE_REPORT_CACHE", "1")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedis()

	db := config.GetDB()
	if db == nil {
		t.Fatalf("db is nil after ConnectDatabaseWithRetry")
	}
	if err := models.MigrateDatabase(db); err != nil {
		t.Fatalf("MigrateDatabase: %v", err)
	}

	company := models.Company{Name: "Still City Distilling", Timezone: "UTC"}
	if err := db.Create(&company).Error; err != nil {
		t.Fatalf("seed company: %v", err)
	}

	ctx = utils.SetCompanyIdInContext(ctx, company.ID)
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test Operator")

	logger := config.GetLogger()
	calc := models.NewVolumeCalculator()
	classifier := models.NewSpiritClassifier()

	t.Run("ledger natural key dedupes concurrent-safe rewrites", func(t *testing.T) {
		input := models.RecordLedgerEntryInput{
			CompanyId:       company.ID,
			TransactionDate: time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC),
			Kind:            models.TransactionKindProduction,
			ProductCategory: "Whisky",
			SpiritClass:     models.SpiritClassUnder190Proof,
			ProofGallons:    decimal.RequireFromString("100.00"),
			WineGallons:     decimal.RequireFromString("80.00"),
			SourceType:      models.SourceTypeBatch,
			SourceId:        501,
			Note:            "distillation run 501",
		}
		first, err := models.RecordLedgerEntry(db, ctx, input)
		if err != nil {
			t.Fatalf("first RecordLedgerEntry: %v", err)
		}
		second, err := models.RecordLedgerEntry(db, ctx, input)
		if err != nil {
			t.Fatalf("second RecordLedgerEntry: %v", err)
		}
		if first.ID != second.ID {
			t.Fatalf("replay created a new entry: first=%d second=%d", first.ID, second.ID)
		}
		var count int64
		if err := db.Model(&models.LedgerEntry{}).
			Where("company_id = ? AND kind = ? AND source_type = ? AND source_id = ?",
				company.ID, models.TransactionKindProduction, models.SourceTypeBatch, 501).
			Count(&count).Error; err != nil {
			t.Fatalf("count ledger entries: %v", err)
		}
		if count != 1 {
			t.Fatalf("expected exactly 1 ledger entry for the natural key, got %d", count)
		}
	})

	t.Run("redelivered event returns the recorded entry", func(t *testing.T) {
		event := workflow.ComplianceEvent{
			MessageId:    "msg-prod-1",
			CompanyId:    company.ID,
			EventType:    "ProductionCompleted",
			SourceType:   models.SourceTypeBatch,
			SourceId:     502,
			Date:         time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
			SpiritName:   "bourbon",
			WineGallons:  decimal.RequireFromString("100.00"),
			Proof:        decimal.RequireFromString("110.00"),
			TemperatureF: decimal.RequireFromString("60.00"),
		}
		first, err := workflow.ProcessComplianceEvent(ctx, logger, calc, classifier, event)
		if err != nil {
			t.Fatalf("first delivery: %v", err)
		}
		if first == nil {
			t.Fatalf("first delivery returned no entry")
		}

		replay, err := workflow.ProcessComplianceEvent(ctx, logger, calc, classifier, event)
		if err != nil {
			t.Fatalf("redelivery: %v", err)
		}
		if replay == nil {
			t.Fatalf("redelivery returned no entry; the producer cannot ack without one")
		}
		if replay.ID != first.ID {
			t.Fatalf("redelivery returned a different entry: first=%d replay=%d", first.ID, replay.ID)
		}

		var count int64
		if err := db.Model(&models.LedgerEntry{}).
			Where("company_id = ? AND source_type = ? AND source_id = ?",
				company.ID, models.SourceTypeBatch, 502).
			Count(&count).Error; err != nil {
			t.Fatalf("count ledger entries: %v", err)
		}
		if count != 1 {
			t.Fatalf("redelivery duplicated the ledger entry: %d rows", count)
		}
	})

	t.Run("failed delivery is durably marked and retryable", func(t *testing.T) {
		event := workflow.ComplianceEvent{
			MessageId:  "msg-loss-1",
			CompanyId:  company.ID,
			EventType:  "LossRecorded",
			SourceType: models.SourceTypeBatch,
			SourceId:   503,
			Date:       time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC),
			SpiritName: "bourbon",
			// producer supplied no quantity
		}
		_, err := workflow.ProcessComplianceEvent(ctx, logger, calc, classifier, event)
		if !errors.Is(err, utils.ErrorMissingContext) {
			t.Fatalf("expected missing-context error, got %v", err)
		}

		// The failure mark must survive the rolled-back transaction.
		var key models.IdempotencyKey
		if err := db.
			Where("company_id = ? AND handler_name = ? AND message_id = ?",
				company.ID, "ComplianceEvent:LossRecorded", "msg-loss-1").
			First(&key).Error; err != nil {
			t.Fatalf("fetch idempotency key after failure: %v", err)
		}
		if key.Status != models.IdempotencyStatusFailed {
			t.Fatalf("expected FAILED idempotency status, got %s", key.Status)
		}
		if key.LastError == nil || *key.LastError == "" {
			t.Fatalf("expected the failure cause on the idempotency key")
		}

		// A corrected redelivery of the same message must go through.
		event.WineGallons = decimal.RequireFromString("10.00")
		entry, err := workflow.ProcessComplianceEvent(ctx, logger, calc, classifier, event)
		if err != nil {
			t.Fatalf("corrected redelivery: %v", err)
		}
		if entry == nil || entry.Kind != models.TransactionKindLoss {
			t.Fatalf("corrected redelivery did not record the loss: %+v", entry)
		}
	})

	t.Run("snapshot rebuild refreshes the cached monthly report", func(t *testing.T) {
		statusUpdated := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		order := models.Order{
			CompanyId:       company.ID,
			OrderNumber:     "ORD-1",
			SpiritName:      "bourbon",
			BarrelCount:     1,
			Status:          "Aging",
			StatusUpdatedAt: &statusUpdated,
			OrderDate:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		}
		if err := db.Create(&order).Error; err != nil {
			t.Fatalf("seed order: %v", err)
		}
		barrel := models.Barrel{
			CompanyId:    company.ID,
			OrderId:      order.ID,
			SerialNumber: "BBL-0001",
			FilledAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		}
		if err := db.Create(&barrel).Error; err != nil {
			t.Fatalf("seed barrel: %v", err)
		}

		before, err := reports.CalculateMonth(ctx, company.ID, 2026, 3)
		if err != nil {
			t.Fatalf("CalculateMonth before snapshot: %v", err)
		}
		for _, w := range before.Warnings {
			if strings.Contains(w, "diverges from snapshot") {
				t.Fatalf("no snapshot exists yet, but got reconciliation warning %q", w)
			}
		}

		snapshotDate := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
		rows, err := workflow.ProcessSnapshotWorkflow(ctx, logger, calc, classifier, company.ID, snapshotDate)
		if err != nil {
			t.Fatalf("ProcessSnapshotWorkflow: %v", err)
		}
		if len(rows) == 0 {
			t.Fatalf("snapshot produced no rows for a bonded barrel")
		}

		// The snapshot disagrees with the ledger-computed closing, so a fresh
		// calculation must reconcile and warn. A stale cache hides this.
		after, err := reports.CalculateMonth(ctx, company.ID, 2026, 3)
		if err != nil {
			t.Fatalf("CalculateMonth after snapshot: %v", err)
		}
		found := false
		for _, w := range after.Warnings {
			if strings.Contains(w, "diverges from snapshot") {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected a reconciliation warning after the snapshot rebuild; warnings: %v", after.Warnings)
		}
	})
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("stillbooks-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("stillbooks-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=stillbooks_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	out, err := cmd.CombinedOutput()
	return string(out), err
}
