package dispatch

// RelayCapable marks receiver types whose interface-dispatched methods
// may hand results back through the relay instead of blocking.
//
// The marker is a capability of the TYPE, checked structurally: embed
// it (or declare the no-op method) on the receiver implementation.
// Absence is the normal case and simply routes dispatch to the spawn
// path - the tag itself has no state and no failure modes.
//
//	type orderService struct{ ... }
//
//	func (orderService) RelayCapable() {}
type RelayCapable interface {
	RelayCapable()
}

// Tagged reports whether a receiver's type carries the relay capability.
// A nil receiver is never tagged.
func Tagged(receiver any) bool {
	_, ok := receiver.(RelayCapable)
	return ok
}
