package cloud

// Connectivity reports whether the internet-facing network is up.
type Connectivity interface {
	Online() bool
}

// OnlineFunc adapts a function to Connectivity.
type OnlineFunc func() bool

// Online calls f.
func (f OnlineFunc) Online() bool { return f() }

// AlwaysOnline is used when no network status source is available.
var AlwaysOnline = OnlineFunc(func() bool { return true })
