package trace

import (
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"
	"go.uber.org/mock/gomock"
	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/tasktrace/archive"
	"github.com/sarchlab/tasktrace/idgen"
)

var _ = Describe("Location", func() {
	var (
		mockCtrl *gomock.Controller
		rec      *recorder
		s        *State
		loc      *Location
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		rec = newRecorder()

		var err error
		s, err = Initialise(testOptions(),
			openerOf(expectArchive(mockCtrl, rec)), zerolog.Nop())
		Expect(err).NotTo(HaveOccurred())

		loc, err = NewLocation(s, 0, ThreadInitial)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(s.Finalise()).To(Succeed())
		mockCtrl.Finish()
	})

	It("should record a parallel region and a task in order", func() {
		p := NewParallelRegion(s, 1, 0, 0, ParallelInvoker, 4)

		loc.ThreadBegin()
		loc.Enter(p)

		t := NewTaskRegion(loc, TaskAttrs{
			ID:         2,
			Flags:      TaskFlagImplicit,
			ParentType: TaskInitial,
		})
		loc.Enter(t)

		Expect(loc.Leave()).To(BeIdenticalTo(Region(t)))
		Expect(loc.Leave()).To(BeIdenticalTo(Region(p)))

		loc.ThreadEnd()

		Expect(loc.Depth()).To(Equal(0))
		Expect(rec.kinds(loc.Ref())).To(Equal([]archive.EventKind{
			archive.EventThreadBegin,
			archive.EventEnter,
			archive.EventEnter,
			archive.EventLeave,
			archive.EventLeave,
			archive.EventThreadEnd,
		}))

		events := rec.eventsOf(loc.Ref())
		var (
			regions    []archive.RegionRef
			eventTypes []string
			endpoints  []string
		)
		for i, e := range events {
			regions = append(regions, e.Region)
			eventTypes = append(eventTypes, rec.label(e, AttrEventType))
			endpoints = append(endpoints, rec.label(e, AttrEndpoint))

			if i > 0 {
				Expect(e.Seq).To(BeNumerically(">", events[i-1].Seq))
				Expect(e.Time).To(BeNumerically(">=", events[i-1].Time))
			}
		}

		Expect(regions).To(Equal([]archive.RegionRef{
			archive.NoRegion, p.Ref(), t.Ref(), t.Ref(), p.Ref(),
			archive.NoRegion,
		}))
		Expect(eventTypes).To(Equal([]string{
			"thread_begin", "parallel_begin", "task_enter", "task_leave",
			"parallel_end", "thread_end",
		}))
		Expect(endpoints).To(Equal([]string{
			"enter", "enter", "enter", "leave", "leave", "leave",
		}))
		Expect(loc.Events()).To(BeEquivalentTo(6))
	})

	It("should attach region attributes to events", func() {
		p := NewParallelRegion(s, 9, 0, 3, ParallelLeague, 8)

		loc.Enter(p)
		loc.Leave()

		e := rec.eventsOf(loc.Ref())[0]
		id, _ := e.Attributes.Lookup(AttrUniqueID)
		req, _ := e.Attributes.Lookup(AttrRequestedParallelism)
		enc, _ := e.Attributes.Lookup(AttrEncounteringTaskID)

		Expect(id.Value).To(BeEquivalentTo(9))
		Expect(req.Value).To(BeEquivalentTo(8))
		Expect(enc.Value).To(BeEquivalentTo(3))
		Expect(rec.label(e, AttrIsLeague)).To(Equal("true"))
		Expect(rec.label(e, AttrRegionType)).To(Equal("parallel"))
	})

	It("should write a parallel region with its children when released", func() {
		p := NewParallelRegion(s, 1, 0, 0, ParallelInvoker, 1)

		loc.Enter(p)
		w := NewWorkshareRegion(loc, WorkLoop, 100, 2)
		loc.Enter(w)
		loc.Leave()

		Expect(rec.regionRefs()).To(BeEmpty())

		loc.Leave()

		Expect(rec.regionRefs()).To(Equal(
			[]archive.RegionRef{p.Ref(), w.Ref()}))
		Expect(rec.str(rec.regionDefs(p.Ref())[0].Name)).
			To(Equal("Parallel Region 1"))
		Expect(rec.regionDefs(w.Ref())[0].Role).To(Equal(archive.RoleLoop))
		Expect(p.Released()).To(BeTrue())
		Expect(s.Stats().RegionsLive).To(BeZero())
	})

	It("should allow balanced nesting", func() {
		m := NewMasterRegion(loc, 0)
		y := NewSyncRegion(loc, SyncBarrierImplicit, SyncChildren, 0)

		loc.Enter(m)
		loc.Enter(y)

		Expect(loc.Depth()).To(Equal(2))
		Expect(loc.Leave()).To(BeIdenticalTo(Region(y)))
		Expect(loc.Leave()).To(BeIdenticalTo(Region(m)))
		Expect(loc.Depth()).To(Equal(0))
	})

	It("should panic when leaving with an empty stack", func() {
		m := NewMasterRegion(loc, 0)

		loc.Enter(m)
		loc.Leave()

		Expect(func() { loc.Leave() }).
			To(PanicWith(BeAssignableToTypeOf(&ConsistencyError{})))
	})

	It("should panic when the thread ends inside a region", func() {
		loc.Enter(NewMasterRegion(loc, 0))

		Expect(func() { loc.ThreadEnd() }).
			To(PanicWith(BeAssignableToTypeOf(&ConsistencyError{})))
	})

	It("should panic when entering a released parallel region", func() {
		p := NewParallelRegion(s, 1, 0, 0, ParallelInvoker, 1)

		loc.Enter(p)
		loc.Leave()

		Expect(func() { loc.Enter(p) }).
			To(PanicWith(BeAssignableToTypeOf(&ConsistencyError{})))
	})

	It("should keep references stable", func() {
		p := NewParallelRegion(s, 4, 0, 0, ParallelInvoker, 2)
		ref := p.Ref()

		Expect(NewParallelRegion(s, 4, 0, 0, ParallelInvoker, 2)).
			To(BeIdenticalTo(p))

		t := NewTaskRegion(loc, TaskAttrs{ID: 5, Flags: TaskFlagExplicit})
		Expect(NewTaskRegion(loc, TaskAttrs{ID: 5, Flags: TaskFlagExplicit})).
			To(BeIdenticalTo(t))

		loc.Enter(p)
		loc.Enter(t)
		loc.Leave()
		loc.Leave()

		Expect(p.Ref()).To(Equal(ref))
		Expect(t.Ref()).NotTo(Equal(ref))
		Expect(rec.regionDefs(ref)).To(HaveLen(1))

		Expect(loc.Destroy()).To(Succeed())
		Expect(rec.regionDefs(t.Ref())).To(HaveLen(1))
	})

	It("should hand out distinct references", func() {
		refs := map[archive.RegionRef]bool{}
		for i := 0; i < 10; i++ {
			refs[NewSyncRegion(loc, SyncBarrier, SyncChildren, 0).Ref()] = true
			refs[NewMasterRegion(loc, 0).Ref()] = true
		}

		Expect(refs).To(HaveLen(20))
	})

	It("should save and restore regions across task switches", func() {
		p := NewParallelRegion(s, 1, 0, 0, ParallelInvoker, 1)
		t1 := NewTaskRegion(loc, TaskAttrs{ID: 1, Flags: TaskFlagImplicit})
		t2 := NewTaskRegion(loc, TaskAttrs{ID: 2, Flags: TaskFlagExplicit,
			ParentID: 1, ParentType: TaskImplicit})
		y := NewSyncRegion(loc, SyncTaskwait, SyncChildren, 1)

		loc.Enter(p)
		loc.Enter(t1)
		loc.Enter(y)

		loc.TaskSwitch(t1, TaskYield, t2)

		Expect(loc.Depth()).To(Equal(0))
		Expect(t1.Status()).To(Equal(TaskYield))

		loc.Enter(t2)
		loc.Leave()
		loc.TaskSwitch(t2, TaskComplete, t1)

		Expect(loc.Depth()).To(Equal(3))
		Expect(loc.Leave()).To(BeIdenticalTo(Region(y)))
		Expect(loc.Leave()).To(BeIdenticalTo(Region(t1)))
		Expect(loc.Leave()).To(BeIdenticalTo(Region(p)))

		var switches []archive.Event
		for _, e := range rec.eventsOf(loc.Ref()) {
			if e.Kind == archive.EventTaskSwitch {
				switches = append(switches, e)
			}
		}

		Expect(switches).To(HaveLen(2))

		prior, _ := switches[0].Attributes.Lookup(AttrPriorTaskID)
		next, _ := switches[0].Attributes.Lookup(AttrNextTaskID)
		Expect(prior.Value).To(BeEquivalentTo(1))
		Expect(next.Value).To(BeEquivalentTo(2))
		Expect(rec.label(switches[0], AttrPriorTaskStatus)).To(Equal("yield"))
		Expect(rec.label(switches[0], AttrNextTaskRegionType)).
			To(Equal("explicit_task"))
		Expect(rec.label(switches[1], AttrEndpoint)).To(Equal("discrete"))
	})

	It("should record task status without writing events", func() {
		t := NewTaskRegion(loc, TaskAttrs{ID: 3, Flags: TaskFlagExplicit})
		before := loc.Events()

		loc.TaskSchedule(t, TaskComplete)
		loc.TaskSchedule(nil, TaskComplete)

		Expect(t.Status()).To(Equal(TaskComplete))
		Expect(loc.Events()).To(Equal(before))
	})

	It("should record task creation", func() {
		t := NewTaskRegion(loc, TaskAttrs{
			ID:             7,
			Flags:          TaskFlagExplicit | TaskFlagUntied,
			ParentID:       1,
			ParentType:     TaskImplicit,
			HasDependences: true,
			Source:         SourceLocation{File: "main.c", Func: "main", Line: 12},
			CreateRA:       0x400000,
		})

		loc.TaskCreate(t)

		e := rec.eventsOf(loc.Ref())[0]
		untied, _ := e.Attributes.Lookup(AttrTaskIsUntied)
		final, _ := e.Attributes.Lookup(AttrTaskIsFinal)
		line, _ := e.Attributes.Lookup(AttrSourceLineNumber)
		ra, _ := e.Attributes.Lookup(AttrTaskCreateRA)

		Expect(e.Kind).To(Equal(archive.EventTaskCreate))
		Expect(rec.label(e, AttrEventType)).To(Equal("task_create"))
		Expect(rec.label(e, AttrTaskType)).To(Equal("explicit_task"))
		Expect(rec.label(e, AttrParentTaskType)).To(Equal("implicit_task"))
		Expect(untied.Value).To(BeEquivalentTo(1))
		Expect(final.Value).To(BeEquivalentTo(0))
		Expect(line.Value).To(BeEquivalentTo(12))
		Expect(ra.Value).To(BeEquivalentTo(0x400000))

		Expect(s.Finalise()).To(Succeed())
		Expect(rec.label(e, AttrSourceFileName)).To(Equal("main.c"))
		Expect(rec.label(e, AttrSourceFuncName)).To(Equal("main"))
	})

	It("should write pending definitions and itself when destroyed", func() {
		loc.ThreadBegin()
		ph := NewPhaseRegion(loc, PhaseGeneric, "solve", 0)
		loc.Enter(ph)
		loc.Leave()
		loc.ThreadEnd()

		Expect(loc.Destroy()).To(Succeed())
		Expect(loc.Destroy()).To(Succeed())

		Expect(rec.regionDefs(ph.Ref())).To(HaveLen(1))
		Expect(rec.locations).To(HaveLen(1))
		Expect(rec.locations[0].Ref).To(Equal(loc.Ref()))
		Expect(rec.locations[0].Events).To(BeEquivalentTo(4))
		Expect(rec.locations[0].Type).To(Equal(archive.LocationCPUThread))
		Expect(rec.str(rec.locations[0].Name)).To(Equal("Thread 0"))
		Expect(s.Stats().LocationsLive).To(BeZero())

		Expect(s.Finalise()).To(Succeed())
		Expect(rec.str(rec.regionDefs(ph.Ref())[0].Name)).To(Equal("solve"))
	})

	It("should describe live locations", func() {
		loc.Enter(NewMasterRegion(loc, 0))

		infos := s.Locations()

		Expect(infos).To(HaveLen(1))
		Expect(infos[0].ID).To(Equal(idgen.ID(0)))
		Expect(infos[0].ThreadType).To(Equal(ThreadInitial))
		Expect(infos[0].Depth).To(BeEquivalentTo(1))
		Expect(infos[0].Events).To(BeEquivalentTo(1))
	})
})

var _ = Describe("Parallel region", func() {
	var (
		mockCtrl *gomock.Controller
		rec      *recorder
		s        *State
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		rec = newRecorder()

		var err error
		s, err = Initialise(testOptions(),
			openerOf(expectArchive(mockCtrl, rec)), zerolog.Nop())
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(s.Finalise()).To(Succeed())
		mockCtrl.Finish()
	})

	It("should be released exactly once by its team", func() {
		const team = 16

		p := NewParallelRegion(s, s.NextID(idgen.Parallel), 0, 0,
			ParallelTeam, team)

		var entered sync.WaitGroup
		entered.Add(team)
		start := make(chan struct{})
		children := make([]archive.RegionRef, team)

		var g errgroup.Group
		for i := 0; i < team; i++ {
			g.Go(func() error {
				defer GinkgoRecover()

				loc, err := NewLocation(s, s.NextID(idgen.Thread), ThreadWorker)
				if err != nil {
					entered.Done()
					return err
				}

				loc.Enter(p)
				entered.Done()
				<-start

				w := NewWorkshareRegion(loc, WorkSingleOther, 0, 0)
				children[i] = w.Ref()
				loc.Enter(w)
				loc.Leave()
				loc.Leave()

				return loc.Destroy()
			})
		}

		entered.Wait()
		close(start)
		Expect(g.Wait()).To(Succeed())

		Expect(p.Released()).To(BeTrue())
		Expect(p.EnterCount()).To(Equal(team))
		Expect(rec.regionDefs(p.Ref())).To(HaveLen(1))

		for _, ref := range children {
			Expect(rec.regionDefs(ref)).To(HaveLen(1))
		}

		Expect(rec.regionRefs()).To(HaveLen(team + 1))
		Expect(s.Stats().RegionsLive).To(BeZero())
		Expect(s.Stats().LocationsLive).To(BeZero())
	})
})
