package styles

// Status icons.
const (
	IconSuccess = "✓"
	IconError   = "✗"
	IconWarning = "!"
	IconInfo    = "i"
	IconBullet  = "▸"
	IconDot     = "●"
	IconPending = "…"
)
