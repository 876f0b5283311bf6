package shared

// Notification kinds.
const (
	NoticeSuccess = "success"
	NoticeError   = "error"
	NoticeWarning = "warning"
	NoticeInfo    = "info"
)

// Notification is a one-time user-facing message (toast or banner).
type Notification struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Notifier delivers notifications to whatever surface the operator is looking at.
type Notifier interface {
	Notify(Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

// Notify calls f.
func (f NotifierFunc) Notify(n Notification) { f(n) }
