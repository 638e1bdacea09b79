package lifetime

// ReleaseFunc adapts a plain function to the Releaser interface.
type ReleaseFunc func()

// Release calls f.
func (f ReleaseFunc) Release() {
	if f != nil {
		f()
	}
}

// Stack releases everything pushed into it in reverse order. It mirrors how
// dependent GPU objects have to be torn down: a pipeline before its layout, a
// view before its image, the device after all of them.
type Stack struct {
	items []Releaser
}

// Push adds r on top of the stack. Nil values are ignored.
func (s *Stack) Push(r Releaser) {
	if r == nil {
		return
	}
	s.items = append(s.items, r)
}

// Defer pushes a function to be called on Release.
func (s *Stack) Defer(f func()) {
	s.Push(ReleaseFunc(f))
}

// Len returns the number of items waiting to be released.
func (s *Stack) Len() int {
	return len(s.items)
}

// Release releases all items starting from the last one pushed. The stack is
// empty afterwards so calling Release again does nothing.
func (s *Stack) Release() {
	for i := len(s.items) - 1; i >= 0; i-- {
		s.items[i].Release()
		s.items[i] = nil
	}
	s.items = s.items[:0]
}
