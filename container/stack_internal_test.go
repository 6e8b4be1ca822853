package container

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Stack base", func() {
	It("should track the bottom item", func() {
		s := NewStack[int](nil)
		Expect(s.base).To(BeNil())

		s.Push(1)
		bottom := s.base
		Expect(bottom.value).To(Equal(1))

		s.Push(2)
		Expect(s.base).To(BeIdenticalTo(bottom))

		var v int
		s.Pop(&v)
		Expect(s.base).To(BeIdenticalTo(bottom))

		s.Pop(&v)
		Expect(s.base).To(BeNil())
	})

	It("should splice src above the top without walking it", func() {
		dst := NewStack[int](nil)
		dst.Push(1)
		dstBase := dst.base

		src := NewStack[int](nil)
		src.Push(10)
		src.Push(20)
		srcBase := src.base

		Expect(dst.Transfer(src)).To(BeTrue())

		Expect(dst.base).To(BeIdenticalTo(dstBase))
		Expect(srcBase.next).To(BeIdenticalTo(dstBase))
		Expect(src.base).To(BeNil())
		Expect(src.head).To(BeNil())
	})

	It("should take the base of src when transferring into an empty stack", func() {
		dst := NewStack[int](nil)

		src := NewStack[int](nil)
		src.Push(1)
		src.Push(2)
		srcBase := src.base

		dst.Transfer(src)
		Expect(dst.base).To(BeIdenticalTo(srcBase))

		more := NewStack[int](nil)
		more.Push(3)
		dst.Transfer(more)
		Expect(dst.base).To(BeIdenticalTo(srcBase))

		var got []int
		var v int
		for dst.Pop(&v) {
			got = append(got, v)
		}
		Expect(got).To(Equal([]int{3, 2, 1}))
		Expect(dst.base).To(BeNil())
	})

	It("should forget the base when abandoning items", func() {
		s := NewStack[int](nil)
		s.Push(1)

		s.Destroy(false)
		Expect(s.base).To(BeNil())
	})
})
