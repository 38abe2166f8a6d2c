package dispatch

// Descriptor is the caller-supplied description of how a callable is
// invoked. Go has no lambda introspection, so the dispatch-relevant
// facts travel WITH the callable instead of being recovered from it:
// the receiver the method is bound to (nil for free functions) and
// whether the call site dispatches through an interface.
//
// Name is optional and appears in logs, traces, and error messages.
type Descriptor struct {
	Receiver     any
	ViaInterface bool
	Name         string
}

// Describe implements Callable, making every descriptor-embedding
// callable classifiable.
func (d Descriptor) Describe() Descriptor {
	return d
}

// Callable is implemented by the Func and Proc descriptor families.
type Callable interface {
	Describe() Descriptor
}

// Classification is the classifier's read of a callable: the receiver
// it is bound to and whether the call is interface-dispatched.
type Classification struct {
	Receiver     any
	ViaInterface bool
}

// Classify extracts a callable's dispatch classification.
//
// Classification never fails: a nil callable or an empty descriptor
// yields the zero classification (no receiver, not interface-dispatched),
// which downgrades dispatch to the spawn path.
func Classify(c Callable) Classification {
	if c == nil {
		return Classification{}
	}
	d := c.Describe()
	return Classification{
		Receiver:     d.Receiver,
		ViaInterface: d.ViaInterface,
	}
}

// AsyncEligible reports whether a callable takes the relay path:
// a receiver must be present, its type must carry the relay capability,
// and the call must be interface-dispatched.
func AsyncEligible(c Callable) bool {
	cl := Classify(c)
	return cl.Receiver != nil && Tagged(cl.Receiver) && cl.ViaInterface
}
