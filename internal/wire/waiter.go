package wire

import "github.com/wasicore/runtime/hostadapter"

// Waiter is an alias of hostadapter.Waiter so the platform-specific files
// in this package can implement it without an import cycle.
type Waiter = hostadapter.Waiter
