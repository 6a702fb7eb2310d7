package models

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stillbooks/compliance_backend/config"
	"github.com/stillbooks/compliance_backend/utils"
	"gorm.io/gorm"
)

type WorkflowAction string

const (
	WorkflowActionSubmitForReview   WorkflowAction = "SubmitForReview"
	WorkflowActionApprove           WorkflowAction = "Approve"
	WorkflowActionReject            WorkflowAction = "Reject"
	WorkflowActionSubmitToRegulator WorkflowAction = "SubmitToRegulator"
	WorkflowActionArchive           WorkflowAction = "Archive"
)

// workflowTransitions is the whole state machine: each state lists exactly the
// actions legal from it and the state they lead to. There is no other
// transition path: Archived has no exits, and a Submitted period is immutable
// apart from archiving.
var workflowTransitions = map[ReportStatus]map[WorkflowAction]ReportStatus{
	ReportStatusDraft: {
		WorkflowActionSubmitForReview: ReportStatusPendingReview,
	},
	ReportStatusPendingReview: {
		WorkflowActionApprove: ReportStatusApproved,
		WorkflowActionReject:  ReportStatusDraft,
	},
	ReportStatusApproved: {
		WorkflowActionSubmitToRegulator: ReportStatusSubmitted,
	},
	ReportStatusSubmitted: {
		WorkflowActionArchive: ReportStatusArchived,
	},
}

func requiredStateFor(action WorkflowAction) ReportStatus {
	for state, actions := range workflowTransitions {
		if _, ok := actions[action]; ok {
			return state
		}
	}
	return ""
}

// Actor is the authenticated user attempting a transition.
type Actor struct {
	UserId int
	Role   UserRole
}

type transitionRequest struct {
	Action             WorkflowAction
	ConfirmationNumber string
	RejectionReason    string
}

// checkTransition enforces every precondition before any mutation. It returns
// the next status, or an error naming the required state/role so callers can
// surface actionable feedback.
func checkTransition(report *MonthlyReport, req transitionRequest, actor Actor) (ReportStatus, error) {
	next, ok := workflowTransitions[report.Status][req.Action]
	if !ok {
		return "", fmt.Errorf("%w: %s requires status %s, report %d is %s",
			utils.ErrorStateConflict, req.Action, requiredStateFor(req.Action), report.ID, report.Status)
	}

	switch req.Action {
	case WorkflowActionApprove, WorkflowActionReject:
		if !actor.Role.CanReview() {
			return "", fmt.Errorf("%w: %s requires a reviewer role (ComplianceManager, Admin or SuperAdmin), actor has %s",
				utils.ErrorStateConflict, req.Action, actor.Role)
		}
	case WorkflowActionSubmitForReview:
		if errs := report.ValidationErrorList(); len(errs) > 0 {
			return "", fmt.Errorf("%w: report %d has %d validation errors",
				utils.ErrorValidation, report.ID, len(errs))
		}
	case WorkflowActionSubmitToRegulator:
		if strings.TrimSpace(req.ConfirmationNumber) == "" {
			return "", fmt.Errorf("%w: confirmation number is required", utils.ErrorValidation)
		}
		// re-check against stale approvals
		if errs := report.ValidationErrorList(); len(errs) > 0 {
			return "", fmt.Errorf("%w: report %d has %d validation errors",
				utils.ErrorValidation, report.ID, len(errs))
		}
	}
	return next, nil
}

// ReportNotifier dispatches status-change notifications (email/webhook).
// Dispatch failures never roll back a transition.
type ReportNotifier interface {
	NotifyReportStatusChanged(ctx context.Context, report *MonthlyReport)
}

// ReportWorkflow drives a monthly report through its lifecycle.
type ReportWorkflow struct {
	notifier ReportNotifier
}

func NewReportWorkflow(notifier ReportNotifier) *ReportWorkflow {
	return &ReportWorkflow{notifier: notifier}
}

func actorFromContext(ctx context.Context) (Actor, error) {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId <= 0 {
		return Actor{}, fmt.Errorf("%w: user id is required", utils.ErrorValidation)
	}
	role, _ := utils.GetUserRoleFromContext(ctx)
	return Actor{UserId: userId, Role: UserRole(role)}, nil
}

// transition runs one guarded state change: precondition check, version-guarded
// update, audit record, then post-commit notification.
func (w *ReportWorkflow) transition(ctx context.Context, reportId int, expectedVersion int, req transitionRequest) (*MonthlyReport, error) {
	actor, err := actorFromContext(ctx)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	var after MonthlyReport
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var report MonthlyReport
		if err := tx.First(&report, reportId).Error; err != nil {
			return fmt.Errorf("%w: monthly report %d", utils.ErrorRecordNotFound, reportId)
		}
		if expectedVersion > 0 && expectedVersion != report.Version {
			return fmt.Errorf("%w: report %d changed since it was read (version %d, expected %d)",
				utils.ErrorStateConflict, reportId, report.Version, expectedVersion)
		}

		next, err := checkTransition(&report, req, actor)
		if err != nil {
			return err
		}

		before := report
		now := time.Now().UTC()
		updates := map[string]interface{}{
			"status":  next,
			"version": report.Version + 1,
		}
		report.Status = next
		report.Version++

		switch req.Action {
		case WorkflowActionSubmitForReview:
			updates["submitted_for_review_by"] = actor.UserId
			updates["submitted_for_review_at"] = now
			report.SubmittedForReviewBy = utils.Ptr(actor.UserId)
			report.SubmittedForReviewAt = utils.Ptr(now)
		case WorkflowActionApprove:
			updates["reviewed_by"] = actor.UserId
			updates["reviewed_at"] = now
			updates["rejection_reason"] = nil
			report.ReviewedBy = utils.Ptr(actor.UserId)
			report.ReviewedAt = utils.Ptr(now)
			report.RejectionReason = nil
		case WorkflowActionReject:
			// rejection clears any prior approval
			updates["reviewed_by"] = nil
			updates["reviewed_at"] = nil
			updates["submitted_for_review_by"] = nil
			updates["submitted_for_review_at"] = nil
			updates["rejection_reason"] = req.RejectionReason
			report.ReviewedBy = nil
			report.ReviewedAt = nil
			report.SubmittedForReviewBy = nil
			report.SubmittedForReviewAt = nil
			report.RejectionReason = utils.Ptr(req.RejectionReason)
		case WorkflowActionSubmitToRegulator:
			updates["submitted_by"] = actor.UserId
			updates["submitted_at"] = now
			updates["confirmation_number"] = req.ConfirmationNumber
			report.SubmittedBy = utils.Ptr(actor.UserId)
			report.SubmittedAt = utils.Ptr(now)
			report.ConfirmationNumber = utils.Ptr(req.ConfirmationNumber)
		case WorkflowActionArchive:
			updates["archived_by"] = actor.UserId
			updates["archived_at"] = now
			report.ArchivedBy = utils.Ptr(actor.UserId)
			report.ArchivedAt = utils.Ptr(now)
		}

		result := tx.Model(&MonthlyReport{}).
			Where("id = ? AND version = ?", report.ID, before.Version).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: report %d was modified concurrently", utils.ErrorStateConflict, reportId)
		}

		if err := SaveAuditUpdate(tx, report.ID, MonthlyReportAuditEntity(&before), MonthlyReportAuditEntity(&report),
			fmt.Sprintf("report %d-%02d %s -> %s", report.Year, report.Month, before.Status, report.Status)); err != nil {
			return err
		}
		after = report
		return nil
	})
	if err != nil {
		return nil, err
	}

	if w.notifier != nil {
		// fire-and-forget: notification problems are the dispatcher's to log
		w.notifier.NotifyReportStatusChanged(ctx, &after)
	}
	return &after, nil
}

// SubmitForReview moves a clean Draft to PendingReview.
func (w *ReportWorkflow) SubmitForReview(ctx context.Context, reportId int, expectedVersion int) (*MonthlyReport, error) {
	return w.transition(ctx, reportId, expectedVersion, transitionRequest{Action: WorkflowActionSubmitForReview})
}

// Approve marks a report under review as approved. Reviewer roles only.
func (w *ReportWorkflow) Approve(ctx context.Context, reportId int, expectedVersion int) (*MonthlyReport, error) {
	return w.transition(ctx, reportId, expectedVersion, transitionRequest{Action: WorkflowActionApprove})
}

// Reject sends a report under review back to Draft, clearing prior approval
// fields. Reviewer roles only.
func (w *ReportWorkflow) Reject(ctx context.Context, reportId int, expectedVersion int, reason string) (*MonthlyReport, error) {
	return w.transition(ctx, reportId, expectedVersion, transitionRequest{Action: WorkflowActionReject, RejectionReason: reason})
}

// SubmitToRegulator records the regulator's confirmation number and freezes
// the period.
func (w *ReportWorkflow) SubmitToRegulator(ctx context.Context, reportId int, expectedVersion int, confirmationNumber string) (*MonthlyReport, error) {
	return w.transition(ctx, reportId, expectedVersion, transitionRequest{Action: WorkflowActionSubmitToRegulator, ConfirmationNumber: confirmationNumber})
}

// Archive retires a submitted report. There is no transition out of Archived.
func (w *ReportWorkflow) Archive(ctx context.Context, reportId int, expectedVersion int) (*MonthlyReport, error) {
	return w.transition(ctx, reportId, expectedVersion, transitionRequest{Action: WorkflowActionArchive})
}
