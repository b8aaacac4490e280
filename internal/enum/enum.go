package enum

// ── Group A: Order lifecycle (enforced by the backend) ──

const (
	OrderStatusPaid       = "paid"
	OrderStatusReceived   = "received"
	OrderStatusPreparing  = "preparing"
	OrderStatusCompleted  = "completed"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivering = "delivering"
)

// ── Group B: Session roles ──

const (
	UserRoleAdmin = "admin"
	UserRoleUser  = "user"
)

// ── Group C: Console-local labels ──

const (
	NotificationSuccess = "success"
	NotificationError   = "error"
	NotificationInfo    = "info"
	NotificationWarning = "warning"
)

const (
	JournalPhotoConfirmed = "photo_confirmed"
	JournalQRDispatched   = "qr_dispatched"
	JournalQRFailed       = "qr_dispatch_failed"
	JournalQRReopened     = "qr_reopened"
	JournalQRResolved     = "qr_resolved"
	JournalQRClosed       = "qr_closed"
)

const (
	RiderStatePending = "pending"
	RiderStateSuccess = "success"
	RiderStateFailure = "failure"
)
