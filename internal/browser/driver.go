package browser

import "context"

type ScrollDirection string

const (
	ScrollDown ScrollDirection = "down"
	ScrollUp   ScrollDirection = "up"
)

// scrollStepPx is how far a single Scroll call moves the viewport.
const scrollStepPx = 600

// Driver is the automation capability set the rest of the system runs
// against. A run owns exactly one Driver; no two operations are ever
// issued concurrently against it.
//
// Element-level operations address elements by the snapshot ID assigned
// in the most recent Snapshot call. Errors from Navigate are session
// level and treated as fatal by the executor; element-level failures are
// recoverable.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, elementID int) error
	Fill(ctx context.Context, elementID int, value string) error
	// Press sends a key to the currently focused element ("Enter", "Escape", ...).
	Press(ctx context.Context, key string) error
	Scroll(ctx context.Context, dir ScrollDirection) error
	Screenshot(ctx context.Context) ([]byte, error)
	Snapshot(ctx context.Context) (*PageSnapshot, error)
	URL() string
	Close() error
}
