package trace

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/tasktrace/archive"
)

var _ = Describe("SQLite archive", func() {
	It("should read back what a session wrote", func() {
		ctx := context.Background()

		s, err := Initialise(testOptions(), nil, zerolog.Nop())
		Expect(err).NotTo(HaveOccurred())

		loc, err := NewLocation(s, 0, ThreadInitial)
		Expect(err).NotTo(HaveOccurred())

		p := NewParallelRegion(s, 0, 0, 0, ParallelInvoker, 2)
		loc.ThreadBegin()
		loc.Enter(p)
		t := NewTaskRegion(loc, TaskAttrs{ID: 1, Flags: TaskFlagImplicit,
			ParentType: TaskInitial})
		loc.Enter(t)
		loc.TaskSchedule(t, TaskComplete)
		loc.Leave()
		loc.Leave()
		loc.ThreadEnd()

		Expect(loc.Destroy()).To(Succeed())
		Expect(s.Finalise()).To(Succeed())

		r, err := archive.OpenReader(s.Dir())
		Expect(err).NotTo(HaveOccurred())
		defer r.Close()

		props, err := r.Properties(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(props).To(HaveKeyWithValue(EventModelProperty, "OMP"))

		strs, err := r.Strings(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(strs).To(HaveKeyWithValue(archive.StringRef(1), Version))

		locs, err := r.Locations(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(locs).To(HaveLen(1))
		Expect(locs[0].Events).To(BeEquivalentTo(6))
		Expect(strs[locs[0].Name]).To(Equal("Thread 0"))

		regions, err := r.Regions(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(regions).To(HaveLen(2))

		names := map[string]archive.RegionRole{}
		for _, d := range regions {
			names[strs[d.Name]] = d.Role
		}
		Expect(names).To(HaveKeyWithValue("Parallel Region 0", archive.RoleParallel))
		Expect(names).To(HaveKeyWithValue("implicit task 1", archive.RoleTask))

		events, err := r.Events(ctx, loc.Ref())
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(6))
		Expect(events[1].Region).To(Equal(p.Ref()))
		Expect(events[2].Region).To(Equal(t.Ref()))

		eventType, found := events[2].Attributes.Lookup(AttrEventType)
		Expect(found).To(BeTrue())
		Expect(strs[eventType.StringRef()]).To(Equal("task_enter"))
	})
})

var _ = Describe("Finalising a SQLite session", func() {
	var (
		ctx context.Context
		s   *State
		loc *Location
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		s, err = Initialise(testOptions(), nil, zerolog.Nop())
		Expect(err).NotTo(HaveOccurred())

		loc, err = NewLocation(s, 0, ThreadInitial)
		Expect(err).NotTo(HaveOccurred())
	})

	readLocations := func() ([]archive.LocationDef, *archive.Reader) {
		r, err := archive.OpenReader(s.Dir())
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(r.Close)

		locs, err := r.Locations(ctx)
		Expect(err).NotTo(HaveOccurred())

		return locs, r
	}

	It("should write the locations left open", func() {
		loc.ThreadBegin()
		loc.Enter(NewMasterRegion(loc, 0))
		loc.Leave()

		Expect(s.Finalise()).To(Succeed())
		Expect(s.Stats().LocationsLive).To(BeEquivalentTo(1))

		locs, r := readLocations()
		Expect(locs).To(HaveLen(1))
		Expect(locs[0].Ref).To(Equal(loc.Ref()))
		Expect(locs[0].Events).To(BeEquivalentTo(3))

		strs, err := r.Strings(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(strs[locs[0].Name]).To(Equal("Thread 0"))

		Expect(loc.Destroy()).To(MatchError(ErrFinalised))
		Expect(s.Stats().LocationsLive).To(BeZero())
	})

	It("should close a location its thread is still writing to", func() {
		started := make(chan struct{})
		stop := make(chan struct{})

		var g errgroup.Group
		g.Go(func() error {
			defer GinkgoRecover()

			loc.ThreadBegin()

			for i := 0; ; i++ {
				loc.Enter(NewMasterRegion(loc, 0))
				loc.Leave()

				if i == 100 {
					close(started)
				}

				select {
				case <-stop:
					return nil
				default:
				}
			}
		})

		<-started
		Expect(s.Finalise()).To(Succeed())
		close(stop)
		Expect(g.Wait()).To(Succeed())

		locs, r := readLocations()
		Expect(locs).To(HaveLen(1))

		events, err := r.Events(ctx, loc.Ref())
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(int(locs[0].Events)))
		Expect(loc.Events()).To(BeNumerically(">=", locs[0].Events))
		Expect(locs[0].Events).To(BeNumerically(">", 200))

		Expect(loc.Destroy()).To(MatchError(ErrFinalised))
	})
})
