package models

import (
	"errors"
	"testing"

	"github.com/stillbooks/compliance_backend/utils"
)

func reviewer() Actor {
	return Actor{UserId: 7, Role: UserRoleComplianceManager}
}

func operator() Actor {
	return Actor{UserId: 3, Role: UserRoleOperator}
}

func draftReport() *MonthlyReport {
	return &MonthlyReport{ID: 1, CompanyId: 1, Year: 2026, Month: 7, Status: ReportStatusDraft, Version: 1}
}

func TestCheckTransitionHappyPath(t *testing.T) {
	tests := []struct {
		from   ReportStatus
		req    transitionRequest
		actor  Actor
		expect ReportStatus
	}{
		{ReportStatusDraft, transitionRequest{Action: WorkflowActionSubmitForReview}, operator(), ReportStatusPendingReview},
		{ReportStatusPendingReview, transitionRequest{Action: WorkflowActionApprove}, reviewer(), ReportStatusApproved},
		{ReportStatusPendingReview, transitionRequest{Action: WorkflowActionReject, RejectionReason: "totals off"}, reviewer(), ReportStatusDraft},
		{ReportStatusApproved, transitionRequest{Action: WorkflowActionSubmitToRegulator, ConfirmationNumber: "TTB-123"}, operator(), ReportStatusSubmitted},
		{ReportStatusSubmitted, transitionRequest{Action: WorkflowActionArchive}, operator(), ReportStatusArchived},
	}
	for _, tt := range tests {
		report := draftReport()
		report.Status = tt.from
		next, err := checkTransition(report, tt.req, tt.actor)
		if err != nil {
			t.Fatalf("%s from %s: unexpected error %v", tt.req.Action, tt.from, err)
		}
		if next != tt.expect {
			t.Fatalf("%s from %s: expected %s, got %s", tt.req.Action, tt.from, tt.expect, next)
		}
	}
}

func TestCheckTransitionRejectsWrongState(t *testing.T) {
	report := draftReport() // approve requires PendingReview

	_, err := checkTransition(report, transitionRequest{Action: WorkflowActionApprove}, reviewer())
	if !errors.Is(err, utils.ErrorStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestCheckTransitionArchivedHasNoExits(t *testing.T) {
	report := draftReport()
	report.Status = ReportStatusArchived

	actions := []WorkflowAction{
		WorkflowActionSubmitForReview,
		WorkflowActionApprove,
		WorkflowActionReject,
		WorkflowActionSubmitToRegulator,
		WorkflowActionArchive,
	}
	for _, action := range actions {
		_, err := checkTransition(report, transitionRequest{Action: action, ConfirmationNumber: "TTB-123"}, reviewer())
		if !errors.Is(err, utils.ErrorStateConflict) {
			t.Errorf("%s on archived report: expected state conflict, got %v", action, err)
		}
	}
}

func TestCheckTransitionReviewRequiresReviewerRole(t *testing.T) {
	report := draftReport()
	report.Status = ReportStatusPendingReview

	for _, action := range []WorkflowAction{WorkflowActionApprove, WorkflowActionReject} {
		_, err := checkTransition(report, transitionRequest{Action: action}, operator())
		if !errors.Is(err, utils.ErrorStateConflict) {
			t.Errorf("%s as operator: expected state conflict, got %v", action, err)
		}
	}

	for _, role := range []UserRole{UserRoleComplianceManager, UserRoleAdmin, UserRoleSuperAdmin} {
		_, err := checkTransition(report, transitionRequest{Action: WorkflowActionApprove}, Actor{UserId: 9, Role: role})
		if err != nil {
			t.Errorf("approve as %s: unexpected error %v", role, err)
		}
	}
}

func TestCheckTransitionBlocksSubmissionWithValidationErrors(t *testing.T) {
	report := draftReport()
	report.ValidationErrors = encodeStringList([]string{"computed closing inventory is negative for Whisky/Under190Proof"})

	_, err := checkTransition(report, transitionRequest{Action: WorkflowActionSubmitForReview}, operator())
	if !errors.Is(err, utils.ErrorValidation) {
		t.Fatalf("submit-for-review with errors: expected validation error, got %v", err)
	}

	// stale approvals are re-checked at the regulator gate too
	report.Status = ReportStatusApproved
	_, err = checkTransition(report, transitionRequest{Action: WorkflowActionSubmitToRegulator, ConfirmationNumber: "TTB-123"}, operator())
	if !errors.Is(err, utils.ErrorValidation) {
		t.Fatalf("submit-to-regulator with errors: expected validation error, got %v", err)
	}
}

func TestCheckTransitionBlocksSubmissionWithCorruptValidationErrors(t *testing.T) {
	report := draftReport()
	corrupt := `["computed closing inventory` // truncated by a partial write
	report.ValidationErrors = &corrupt

	_, err := checkTransition(report, transitionRequest{Action: WorkflowActionSubmitForReview}, operator())
	if !errors.Is(err, utils.ErrorValidation) {
		t.Fatalf("submit-for-review with unreadable errors: expected validation error, got %v", err)
	}

	if errs := report.ValidationErrorList(); len(errs) != 1 {
		t.Fatalf("expected one placeholder error for unreadable results, got %v", errs)
	}
}

func TestCheckTransitionRequiresConfirmationNumber(t *testing.T) {
	report := draftReport()
	report.Status = ReportStatusApproved

	for _, confirmation := range []string{"", "   "} {
		_, err := checkTransition(report, transitionRequest{Action: WorkflowActionSubmitToRegulator, ConfirmationNumber: confirmation}, operator())
		if !errors.Is(err, utils.ErrorValidation) {
			t.Errorf("confirmation %q: expected validation error, got %v", confirmation, err)
		}
	}
}

func TestWarningsDoNotBlockSubmission(t *testing.T) {
	report := draftReport()
	report.ValidationWarnings = encodeStringList([]string{"opening inventory derived from ledger history; no snapshot exists before the period start"})

	next, err := checkTransition(report, transitionRequest{Action: WorkflowActionSubmitForReview}, operator())
	if err != nil {
		t.Fatalf("warnings must not block submission: %v", err)
	}
	if next != ReportStatusPendingReview {
		t.Fatalf("expected PendingReview, got %s", next)
	}
}
