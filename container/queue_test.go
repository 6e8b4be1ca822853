package container_test

import (
	"slices"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/tasktrace/container"
)

var _ = Describe("Queue", func() {
	var (
		destroyed []string
		q         *container.Queue[string]
	)

	BeforeEach(func() {
		destroyed = nil
		q = container.NewQueue[string](func(s string) {
			destroyed = append(destroyed, s)
		})
	})

	It("should dequeue in push order", func() {
		for _, s := range []string{"a", "b", "c"} {
			Expect(q.Enqueue(s)).To(BeTrue())
		}

		var got []string
		var v string
		for q.Dequeue(&v) {
			got = append(got, v)
		}

		Expect(got).To(Equal([]string{"a", "b", "c"}))
		Expect(q.IsEmpty()).To(BeTrue())
		Expect(q.Len()).To(Equal(0))
	})

	It("should return true when dequeuing the last item", func() {
		q.Enqueue("a")

		var v string
		Expect(q.Dequeue(&v)).To(BeTrue())
		Expect(q.IsEmpty()).To(BeTrue())

		v = "untouched"
		Expect(q.Dequeue(&v)).To(BeFalse())
		Expect(v).To(Equal("untouched"))
	})

	It("should accept items after being drained", func() {
		q.Enqueue("a")
		q.Dequeue(nil)
		q.Enqueue("b")

		Expect(slices.Collect(q.All())).To(Equal([]string{"b"}))
	})

	It("should append src onto the tail", func() {
		q.Enqueue("a")

		src := container.NewQueue[string](nil)
		src.Enqueue("b")
		src.Enqueue("c")

		Expect(q.Append(src)).To(BeTrue())
		Expect(src.IsEmpty()).To(BeTrue())
		Expect(q.Len()).To(Equal(3))

		q.Enqueue("d")
		Expect(slices.Collect(q.All())).To(Equal([]string{"a", "b", "c", "d"}))
	})

	It("should append into an empty queue", func() {
		src := container.NewQueue[string](nil)
		src.Enqueue("x")

		q.Append(src)
		q.Enqueue("y")

		Expect(slices.Collect(q.All())).To(Equal([]string{"x", "y"}))
	})

	It("should scan without consuming", func() {
		q.Enqueue("a")
		q.Enqueue("b")
		q.Enqueue("c")

		Expect(slices.Collect(q.All())).To(Equal([]string{"a", "b", "c"}))
		Expect(slices.Collect(q.All())).To(Equal([]string{"a", "b", "c"}))
		Expect(q.Len()).To(Equal(3))
	})

	It("should restart a scan from a cursor", func() {
		q.Enqueue("a")
		q.Enqueue("b")
		q.Enqueue("c")

		c := q.Cursor().Next()
		Expect(c.Value()).To(Equal("b"))
		Expect(slices.Collect(q.Scan(c))).To(Equal([]string{"b", "c"}))

		end := c.Next().Next()
		Expect(end.Valid()).To(BeFalse())
		Expect(slices.Collect(q.Scan(end))).To(BeEmpty())
	})

	It("should stop a scan early", func() {
		q.Enqueue("a")
		q.Enqueue("b")

		var seen []string
		for s := range q.All() {
			seen = append(seen, s)
			break
		}

		Expect(seen).To(Equal([]string{"a"}))
	})

	It("should destroy items in order", func() {
		q.Enqueue("a")
		q.Enqueue("b")

		q.Destroy(true)

		Expect(destroyed).To(Equal([]string{"a", "b"}))
	})

	It("should handle a nil queue", func() {
		var n *container.Queue[string]
		var v string

		Expect(n.Enqueue("a")).To(BeFalse())
		Expect(n.Dequeue(&v)).To(BeFalse())
		Expect(n.IsEmpty()).To(BeTrue())
		Expect(slices.Collect(n.All())).To(BeEmpty())
	})
})
