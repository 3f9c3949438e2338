package workflows

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samirrijal/servezone/internal/core/domain"
	"github.com/samirrijal/servezone/internal/core/ports"
)

// ZoneAuditor is the part of usecases.ZoneService the audit needs.
type ZoneAuditor interface {
	Audit(ctx context.Context) (*domain.ZoneAuditReport, error)
	Deactivate(ctx context.Context, ids []string) (int, error)
}

// ZoneAuditActivities holds the activity implementations for the zone audit
// workflow.
type ZoneAuditActivities struct {
	Zones  ZoneAuditor
	Events ports.EventPublisher
}

// AuditZones validates the whole catalog.
func (a *ZoneAuditActivities) AuditZones(ctx context.Context) (*domain.ZoneAuditReport, error) {
	report, err := a.Zones.Audit(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit zones: %w", err)
	}
	return report, nil
}

// DeactivateZones switches off zones that cannot be matched.
func (a *ZoneAuditActivities) DeactivateZones(ctx context.Context, ids []string) (int, error) {
	n, err := a.Zones.Deactivate(ctx, ids)
	if err != nil {
		return n, fmt.Errorf("deactivate zones: %w", err)
	}
	slog.InfoContext(ctx, "deactivated malformed zones", "count", n)
	return n, nil
}

// PublishAuditReport sends the report to downstream consumers.
func (a *ZoneAuditActivities) PublishAuditReport(ctx context.Context, report *domain.ZoneAuditReport) error {
	if a.Events == nil {
		slog.InfoContext(ctx, "zone audit (no publisher)", "total", report.Total, "issues", len(report.Issues))
		return nil
	}
	if err := a.Events.PublishZoneAudit(ctx, report); err != nil {
		return fmt.Errorf("publish audit report: %w", err)
	}
	return nil
}
