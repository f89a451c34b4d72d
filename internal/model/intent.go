package model

// IntentKind names a side effect that a state transition asks downstream
// layers to perform. The core never performs these itself.
type IntentKind string

const (
	// IntentScheduleReminder asks the notification layer to schedule payment reminders.
	IntentScheduleReminder IntentKind = "scheduleReminder"
	// IntentCancelReminder asks the notification layer to cancel pending reminders.
	IntentCancelReminder IntentKind = "cancelReminder"
	// IntentCreateCalendarEvent asks the calendar layer to create an event.
	IntentCreateCalendarEvent IntentKind = "createCalendarEvent"
	// IntentRemoveCalendarEvent asks the calendar layer to remove an event.
	IntentRemoveCalendarEvent IntentKind = "removeCalendarEvent"
)

// Intent describes one requested side effect.
type Intent struct {
	Kind       IntentKind
	PeriodKey  string
	TemplateID int64
	InstanceID int64
}
