package lifetime

import (
	"testing"

	. "github.com/onsi/gomega"
)

type handle uintptr

func TestOwnedZeroValue(t *testing.T) {
	g := NewWithT(t)

	var o Owned[handle]
	g.Expect(o.Valid()).To(BeFalse())
	g.Expect(o.Get()).To(BeZero())
	g.Expect(o.Release).NotTo(Panic())

	var nilOwned *Owned[handle]
	g.Expect(nilOwned.Valid()).To(BeFalse())
	g.Expect(nilOwned.Get()).To(BeZero())
	g.Expect(nilOwned.Release).NotTo(Panic())
}

func TestOwnedReleasesOnce(t *testing.T) {
	g := NewWithT(t)

	var released []handle
	o := New(handle(3), func(h handle) { released = append(released, h) })
	g.Expect(o.Valid()).To(BeTrue())

	o.Release()
	o.Release()
	g.Expect(released).To(Equal([]handle{3}))
	g.Expect(o.Valid()).To(BeFalse())
}

func TestOwnedReset(t *testing.T) {
	g := NewWithT(t)

	var released []handle
	rel := func(h handle) { released = append(released, h) }

	o := New(handle(1), rel)
	o.Reset(handle(2), rel)
	g.Expect(released).To(Equal([]handle{1}), "old handle released before taking the new one")
	g.Expect(o.Get()).To(Equal(handle(2)))

	o.Reset(handle(2), rel)
	g.Expect(released).To(Equal([]handle{1}), "resetting to the same handle keeps it alive")

	o.Release()
	g.Expect(released).To(Equal([]handle{1, 2}))

	var empty *Owned[handle]
	g.Expect(func() { empty.Reset(handle(3), rel) }).NotTo(Panic())
	g.Expect(released).To(Equal([]handle{1, 2, 3}), "a nil wrapper does not leak the handle")
	g.Expect(empty.Get()).To(BeZero())
}

func TestOwnedTake(t *testing.T) {
	g := NewWithT(t)

	var released []handle
	o := New(handle(9), func(h handle) { released = append(released, h) })

	moved := o.Take()
	g.Expect(o.Valid()).To(BeFalse())
	g.Expect(moved.Get()).To(Equal(handle(9)))

	o.Release()
	g.Expect(released).To(BeEmpty())

	moved.Release()
	g.Expect(released).To(Equal([]handle{9}))
}

func TestStackReverseOrder(t *testing.T) {
	g := NewWithT(t)

	var order []string
	var s Stack
	s.Defer(func() { order = append(order, "device") })
	s.Push(New(handle(1), func(handle) { order = append(order, "layout") }))
	s.Push(nil)
	s.Defer(func() { order = append(order, "pipeline") })
	g.Expect(s.Len()).To(Equal(3))

	s.Release()
	s.Release()
	g.Expect(order).To(Equal([]string{"pipeline", "layout", "device"}))
	g.Expect(s.Len()).To(BeZero())
}

func TestLedger(t *testing.T) {
	g := NewWithT(t)

	l := NewLedger()
	a := Track(l, "buffer", handle(1), nil)
	b := Track(l, "buffer", handle(2), func(handle) {})
	img := Track(l, "image", handle(3), nil)
	null := Track(l, "image", handle(0), nil)

	g.Expect(l.Live("buffer")).To(Equal(2))
	g.Expect(l.Live("image")).To(Equal(1))
	g.Expect(l.LiveTotal()).To(Equal(3))
	g.Expect(l.Kinds()).To(Equal([]string{"buffer", "image"}))

	a.Release()
	b.Release()
	b.Release()
	null.Release()
	g.Expect(l.Live("buffer")).To(BeZero())
	g.Expect(l.Created("buffer")).To(Equal(2))
	g.Expect(l.Snapshot()).To(Equal(map[string]int{"image": 1}))

	img.Release()
	g.Expect(l.LiveTotal()).To(BeZero())

	var nilLedger *Ledger
	o := Track(nilLedger, "buffer", handle(5), nil)
	g.Expect(o.Valid()).To(BeTrue())
	g.Expect(nilLedger.LiveTotal()).To(BeZero())
}
