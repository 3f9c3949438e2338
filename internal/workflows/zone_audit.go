package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/samirrijal/servezone/internal/core/domain"
)

// ZoneAuditInput is the input for the zone audit workflow.
type ZoneAuditInput struct {
	// DeactivateInvalid switches off active zones that failed validation.
	DeactivateInvalid bool
}

// ZoneAuditResult is returned by ZoneAuditWorkflow.
type ZoneAuditResult struct {
	Report      *domain.ZoneAuditReport
	Deactivated int
	Published   bool
}

// ZoneAuditWorkflow audits the zone catalog, optionally deactivates zones the
// matcher would skip anyway, and publishes the report. A failed publish is
// logged and does not fail the run.
func ZoneAuditWorkflow(ctx workflow.Context, input ZoneAuditInput) (*ZoneAuditResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting zone audit workflow", "deactivateInvalid", input.DeactivateInvalid)

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	// Step 1: audit
	var report domain.ZoneAuditReport
	if err := workflow.ExecuteActivity(ctx, "AuditZones").Get(ctx, &report); err != nil {
		return nil, err
	}
	result := &ZoneAuditResult{Report: &report}

	// Step 2: deactivate
	if input.DeactivateInvalid {
		if ids := invalidZoneIDs(report.Issues); len(ids) > 0 {
			if err := workflow.ExecuteActivity(ctx, "DeactivateZones", ids).Get(ctx, &result.Deactivated); err != nil {
				return result, err
			}
		}
	}

	// Step 3: publish
	if err := workflow.ExecuteActivity(ctx, "PublishAuditReport", &report).Get(ctx, nil); err != nil {
		logger.Warn("audit report publish failed", "error", err)
		return result, nil
	}
	result.Published = true

	logger.Info("Zone audit finished", "issues", len(report.Issues), "deactivated", result.Deactivated)
	return result, nil
}

// invalidZoneIDs lists zones with geometry problems. Duplicate ids are left
// for an operator since deactivating would hit both rows.
func invalidZoneIDs(issues []domain.ZoneIssue) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, is := range issues {
		if is.ZoneID == "" || is.Reason == domain.IssueDuplicateID || seen[is.ZoneID] {
			continue
		}
		seen[is.ZoneID] = true
		ids = append(ids, is.ZoneID)
	}
	return ids
}
