package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodKeyFor(t *testing.T) {
	assert.Equal(t, "2026-03", PeriodKeyFor(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2026-12", PeriodKeyFor(time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)))
}

func TestRecurringInstance_Match(t *testing.T) {
	t.Run("expected to matched", func(t *testing.T) {
		inst := RecurringInstance{ID: 7, TemplateID: 3, PeriodKey: "2026-03", Status: InstanceStatusExpected}

		intents, err := inst.Match("doc-1", false)
		require.NoError(t, err)
		assert.Equal(t, InstanceStatusMatched, inst.Status)
		require.NotNil(t, inst.DocumentID)
		assert.Equal(t, "doc-1", *inst.DocumentID)
		require.Len(t, intents, 1)
		assert.Equal(t, IntentCancelReminder, intents[0].Kind)
	})

	t.Run("paid document goes straight to paid", func(t *testing.T) {
		inst := RecurringInstance{Status: InstanceStatusExpected}

		_, err := inst.Match("doc-1", true)
		require.NoError(t, err)
		assert.Equal(t, InstanceStatusPaid, inst.Status)
	})

	t.Run("rematching the same document is allowed", func(t *testing.T) {
		inst := RecurringInstance{Status: InstanceStatusExpected}
		_, err := inst.Match("doc-1", false)
		require.NoError(t, err)

		_, err = inst.Match("doc-1", true)
		require.NoError(t, err)
		assert.Equal(t, InstanceStatusPaid, inst.Status)
	})

	t.Run("different document on a linked instance fails", func(t *testing.T) {
		inst := RecurringInstance{Status: InstanceStatusExpected}
		_, err := inst.Match("doc-1", false)
		require.NoError(t, err)

		_, err = inst.Match("doc-2", false)
		assert.Error(t, err)
	})

	t.Run("missed instance cannot be matched", func(t *testing.T) {
		inst := RecurringInstance{Status: InstanceStatusMissed}
		_, err := inst.Match("doc-1", false)
		assert.Error(t, err)
	})
}

func TestRecurringInstance_Transitions(t *testing.T) {
	t.Run("mark paid from matched", func(t *testing.T) {
		inst := RecurringInstance{Status: InstanceStatusMatched}
		_, err := inst.MarkPaid()
		require.NoError(t, err)
		assert.Equal(t, InstanceStatusPaid, inst.Status)
	})

	t.Run("mark missed only from expected", func(t *testing.T) {
		inst := RecurringInstance{Status: InstanceStatusExpected}
		_, err := inst.MarkMissed()
		require.NoError(t, err)
		assert.Equal(t, InstanceStatusMissed, inst.Status)

		_, err = inst.MarkMissed()
		assert.Error(t, err)
	})

	t.Run("cancel emits reminder and calendar intents", func(t *testing.T) {
		inst := RecurringInstance{Status: InstanceStatusExpected}
		intents, err := inst.Cancel()
		require.NoError(t, err)
		require.Len(t, intents, 2)
		assert.Equal(t, IntentCancelReminder, intents[0].Kind)
		assert.Equal(t, IntentRemoveCalendarEvent, intents[1].Kind)
	})

	t.Run("terminal statuses stay terminal", func(t *testing.T) {
		for _, status := range []InstanceStatus{InstanceStatusPaid, InstanceStatusMissed, InstanceStatusCancelled} {
			assert.True(t, status.Terminal(), string(status))
			inst := RecurringInstance{Status: status}
			_, err := inst.Cancel()
			assert.Error(t, err, string(status))
		}
	})
}

func TestRecurringInstance_Overdue(t *testing.T) {
	due := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	inst := RecurringInstance{Status: InstanceStatusExpected, DueDate: due}

	assert.False(t, inst.Overdue(due.AddDate(0, 0, 5), 5))
	assert.True(t, inst.Overdue(due.AddDate(0, 0, 6), 5))

	matched := RecurringInstance{Status: InstanceStatusMatched, DueDate: due}
	assert.False(t, matched.Overdue(due.AddDate(0, 0, 30), 5))
}
