// Package notify delivers run outcome notifications to external sinks. A run
// never fails because a sink is down; callers decide what to do with errors.
package notify

// NotificationType maps run outcomes onto sink severities
type NotificationType int

const (
	NotifyInfo NotificationType = iota
	NotifySuccess
	NotifyWarning
	NotifyError
)

// Notification is one outcome message, sink-agnostic
type Notification struct {
	Title     string
	Message   string
	Type      NotificationType
	SessionID string // engine session the outcome belongs to, when known
}

// Notifier delivers one notification to one sink
type Notifier interface {
	Send(n Notification) error
}

// MultiNotifier fans a notification out to every configured sink. Every sink
// is attempted even when an earlier one fails; the last failure is reported.
type MultiNotifier struct {
	sinks []Notifier
}

func NewMultiNotifier(sinks ...Notifier) *MultiNotifier {
	return &MultiNotifier{sinks: sinks}
}

func (m *MultiNotifier) Send(n Notification) error {
	var lastErr error
	for _, sink := range m.sinks {
		if err := sink.Send(n); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
