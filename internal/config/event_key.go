package config

// EventKeyStruct names the domain event types routed through the event bus.
type EventKeyStruct struct {
	EnrollmentCompleted string
	AttemptStarted      string
	AttemptCompleted    string
}

var EventKey = &EventKeyStruct{
	EnrollmentCompleted: "enrollment.completed",
	AttemptStarted:      "attempt.started",
	AttemptCompleted:    "attempt.completed",
}
