package recurrence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/paperledger/paperledger/internal/common"
	"github.com/paperledger/paperledger/internal/model"
	"github.com/paperledger/paperledger/internal/service"
)

// DefaultHorizonMonths is how far ahead instances are generated.
const DefaultHorizonMonths = 12

// Scheduler generates and maintains expected payment instances for
// templates.
type Scheduler struct {
	store   service.Store
	horizon int
}

// NewScheduler creates a scheduler over the given store.
func NewScheduler(store service.Store) *Scheduler {
	return &Scheduler{store: store, horizon: DefaultHorizonMonths}
}

// ScheduleForward ensures an expected instance exists for every period from
// the month of `from` through the horizon. Existing instances are left
// untouched, so re-running is idempotent. Returns the newly created
// instances and their side-effect intents.
func (s *Scheduler) ScheduleForward(ctx context.Context, tpl *model.RecurringTemplate, from time.Time) ([]model.RecurringInstance, []model.Intent, error) {
	if !tpl.Active {
		return nil, nil, fmt.Errorf("cannot schedule instances for inactive template %d", tpl.ID)
	}

	var created []model.RecurringInstance
	var intents []model.Intent

	for m := 0; m < s.horizon; m++ {
		period := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, from.Location()).AddDate(0, m, 0)
		key := model.PeriodKeyFor(period)

		_, err := s.store.GetInstanceByPeriod(ctx, tpl.ID, key)
		if err == nil {
			continue
		}
		if !errors.Is(err, common.ErrNotFound) {
			return nil, nil, fmt.Errorf("failed to check period %s: %w", key, err)
		}

		instance := model.RecurringInstance{
			TemplateID:     tpl.ID,
			PeriodKey:      key,
			DueDate:        dueDateIn(period, tpl.DueDay),
			ExpectedAmount: expectedAmount(tpl),
			Status:         model.InstanceStatusExpected,
			CreatedAt:      from,
		}
		if err := s.store.SaveInstance(ctx, &instance); err != nil {
			return nil, nil, fmt.Errorf("failed to save instance for period %s: %w", key, err)
		}

		created = append(created, instance)
		intents = append(intents,
			model.Intent{Kind: model.IntentScheduleReminder, TemplateID: tpl.ID, InstanceID: instance.ID, PeriodKey: key},
			model.Intent{Kind: model.IntentCreateCalendarEvent, TemplateID: tpl.ID, InstanceID: instance.ID, PeriodKey: key},
		)
	}

	if len(created) > 0 {
		slog.Info("scheduled recurring instances",
			"template_id", tpl.ID,
			"template", tpl.DisplayName,
			"created", len(created))
	}
	return created, intents, nil
}

// EnsureHistorical returns the instance for the period of dueDate, creating a
// retroactive one when no forward-generated row exists. Needed when linking
// documents that predate template creation.
func (s *Scheduler) EnsureHistorical(ctx context.Context, tpl *model.RecurringTemplate, dueDate time.Time, amount decimal.Decimal) (*model.RecurringInstance, error) {
	key := model.PeriodKeyFor(dueDate)

	existing, err := s.store.GetInstanceByPeriod(ctx, tpl.ID, key)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("failed to check period %s: %w", key, err)
	}

	instance := &model.RecurringInstance{
		TemplateID:     tpl.ID,
		PeriodKey:      key,
		DueDate:        dueDate,
		ExpectedAmount: amount,
		Status:         model.InstanceStatusExpected,
		Historical:     true,
		CreatedAt:      time.Now(),
	}
	if err := s.store.SaveInstance(ctx, instance); err != nil {
		return nil, fmt.Errorf("failed to save historical instance for period %s: %w", key, err)
	}
	slog.Debug("created historical instance", "template_id", tpl.ID, "period", key)
	return instance, nil
}

// Deactivate soft-deactivates a template and hard-deletes its expected
// instances. Matched, paid, and missed instances stay for history. Returns
// intents cancelling the deleted instances' scheduled side effects.
func (s *Scheduler) Deactivate(ctx context.Context, tpl *model.RecurringTemplate) ([]model.Intent, error) {
	instances, err := s.store.GetInstancesByTemplate(ctx, tpl.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load instances: %w", err)
	}

	var intents []model.Intent
	for _, inst := range instances {
		if inst.Status != model.InstanceStatusExpected {
			continue
		}
		intents = append(intents,
			model.Intent{Kind: model.IntentCancelReminder, TemplateID: tpl.ID, InstanceID: inst.ID, PeriodKey: inst.PeriodKey},
			model.Intent{Kind: model.IntentRemoveCalendarEvent, TemplateID: tpl.ID, InstanceID: inst.ID, PeriodKey: inst.PeriodKey},
		)
	}

	if err := s.store.DeleteInstancesByStatus(ctx, tpl.ID, model.InstanceStatusExpected); err != nil {
		return nil, fmt.Errorf("failed to delete expected instances: %w", err)
	}

	tpl.Active = false
	if err := s.store.SaveTemplate(ctx, tpl); err != nil {
		return nil, fmt.Errorf("failed to deactivate template: %w", err)
	}

	slog.Info("deactivated template", "template_id", tpl.ID, "template", tpl.DisplayName)
	return intents, nil
}

// Reactivate re-enables a template and regenerates forward instances.
func (s *Scheduler) Reactivate(ctx context.Context, tpl *model.RecurringTemplate, now time.Time) ([]model.Intent, error) {
	tpl.Active = true
	if err := s.store.SaveTemplate(ctx, tpl); err != nil {
		return nil, fmt.Errorf("failed to reactivate template: %w", err)
	}
	_, intents, err := s.ScheduleForward(ctx, tpl, now)
	if err != nil {
		return nil, err
	}
	slog.Info("reactivated template", "template_id", tpl.ID, "template", tpl.DisplayName)
	return intents, nil
}

// MarkOverdue transitions expected instances whose due date plus tolerance
// has passed to missed, updating the owning templates' missed counters.
func (s *Scheduler) MarkOverdue(ctx context.Context, now time.Time) ([]model.Intent, error) {
	expected, err := s.store.GetInstancesByStatus(ctx, model.InstanceStatusExpected)
	if err != nil {
		return nil, fmt.Errorf("failed to load expected instances: %w", err)
	}

	var intents []model.Intent
	for i := range expected {
		inst := &expected[i]

		tpl, err := s.store.GetTemplate(ctx, inst.TemplateID)
		if err != nil {
			slog.Error("skipping overdue check for orphan instance", "instance_id", inst.ID, "error", err)
			continue
		}
		if !inst.Overdue(now, tpl.ToleranceDays) {
			continue
		}

		transition, err := inst.MarkMissed()
		if err != nil {
			return nil, err
		}
		if err := s.store.SaveInstance(ctx, inst); err != nil {
			return nil, fmt.Errorf("failed to save missed instance: %w", err)
		}

		tpl.MissedCount++
		if err := s.store.SaveTemplate(ctx, tpl); err != nil {
			return nil, fmt.Errorf("failed to update missed counter: %w", err)
		}

		intents = append(intents, transition...)
		slog.Info("marked instance missed",
			"template_id", tpl.ID,
			"period", inst.PeriodKey,
			"due", inst.DueDate.Format("2006-01-02"))
	}
	return intents, nil
}

// dueDateIn places the template's due day inside the given month, clamping
// to the month's last day when the day does not exist.
func dueDateIn(period time.Time, dueDay int) time.Time {
	year, month := period.Year(), period.Month()
	lastDay := time.Date(year, month+1, 0, 0, 0, 0, 0, period.Location()).Day()
	day := dueDay
	if day > lastDay {
		day = lastDay
	}
	return time.Date(year, month, day, 0, 0, 0, 0, period.Location())
}

func expectedAmount(tpl *model.RecurringTemplate) decimal.Decimal {
	if tpl.AmountMin.IsZero() && tpl.AmountMax.IsZero() {
		return decimal.Zero
	}
	return tpl.AmountMin.Add(tpl.AmountMax).Div(decimal.NewFromInt(2))
}
