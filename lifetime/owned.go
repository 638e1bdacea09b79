// Package lifetime ties native GPU handles to the functions which destroy them.
//
// An Owned value holds exactly one handle. It is released at most once, either
// explicitly or when a new handle is moved into it. Collections of owned
// handles are released in reverse order of creation through a Stack.
package lifetime

// noCopy makes `go vet` report accidental copies of types which embed it.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Releaser is anything which gives back what it owns.
type Releaser interface {
	Release()
}

// Owned is the sole owner of a native handle. It must only be used through a
// pointer. The zero value holds the null handle and releases nothing.
type Owned[T comparable] struct {
	noCopy noCopy

	handle  T
	release func(T)
}

// New returns a wrapper owning handle. The release function is called with the
// handle once it is no longer needed.
func New[T comparable](handle T, release func(T)) *Owned[T] {
	o := &Owned[T]{}
	o.handle = handle
	o.release = release
	return o
}

// Get returns the owned handle. A nil wrapper returns the null handle.
func (o *Owned[T]) Get() T {
	if o == nil {
		var null T
		return null
	}
	return o.handle
}

// Valid returns true when the wrapper holds a non-null handle.
func (o *Owned[T]) Valid() bool {
	var null T
	return o != nil && o.handle != null
}

// Release destroys the owned handle and leaves the wrapper empty. Calling it on
// an empty or nil wrapper does nothing.
func (o *Owned[T]) Release() {
	if o == nil {
		return
	}

	handle, release := o.handle, o.release

	var null T
	o.handle = null
	o.release = nil

	if handle != null && release != nil {
		release(handle)
	}
}

// Reset releases the currently owned handle and takes ownership of a new one.
// Resetting to the handle which is already owned only replaces its destructor.
// A nil wrapper cannot own anything so handle is released immediately.
func (o *Owned[T]) Reset(handle T, release func(T)) {
	var null T
	if o == nil {
		if handle != null && release != nil {
			release(handle)
		}
		return
	}

	if handle != null && handle == o.handle {
		o.release = release
		return
	}

	o.Release()
	o.handle = handle
	o.release = release
}

// Take moves the handle into a new wrapper. The receiver is left empty and
// its destructor is never called for the moved handle.
func (o *Owned[T]) Take() *Owned[T] {
	moved := &Owned[T]{}
	if o == nil {
		return moved
	}

	moved.handle, o.handle = o.handle, moved.handle
	moved.release, o.release = o.release, nil
	return moved
}
