package trace

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/tasktrace/archive"
	"github.com/sarchlab/tasktrace/config"
	"github.com/sarchlab/tasktrace/idgen"
)

func testOptions() config.Options {
	opts := config.Default()
	opts.TracePath = GinkgoT().TempDir()
	opts.TraceName = "unit"

	return opts
}

func openerOf(a archive.Archive) archive.Opener {
	return func(dir, name string) (archive.Archive, error) {
		return a, nil
	}
}

var _ = Describe("State", func() {
	var (
		mockCtrl *gomock.Controller
		rec      *recorder
		opts     config.Options
		s        *State
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		rec = newRecorder()
		opts = testOptions()

		var err error
		s, err = Initialise(opts, openerOf(expectArchive(mockCtrl, rec)),
			zerolog.Nop())
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(s.Finalise()).To(Succeed())
		mockCtrl.Finish()
	})

	It("should create the archive directory", func() {
		Expect(s.Dir()).To(HavePrefix(opts.TracePath))
		Expect(s.Name()).To(HavePrefix("unit."))
		Expect(s.Dir()).To(BeADirectory())
	})

	It("should reserve the first two strings", func() {
		Expect(rec.str(0)).To(Equal(""))
		Expect(rec.str(1)).To(Equal(Version))
	})

	It("should record the event model", func() {
		Expect(rec.props).To(HaveKeyWithValue(EventModelProperty, "OMP"))
		Expect(rec.strings).To(ContainElement("OMP Process"))
	})

	It("should define every attribute", func() {
		Expect(rec.attrs).To(HaveLen(int(numAttributes)))

		for _, d := range rec.attrs {
			Expect(rec.str(d.Name)).To(Equal(AttributeName(d.Ref)))
			Expect(d.Type).To(Equal(attributeSpecs[d.Ref].typ))
		}
	})

	It("should write every label once", func() {
		for _, l := range labelStrings {
			ref := s.label(l)
			Expect(rec.str(ref)).To(Equal(l))
		}
	})

	It("should copy the memory map", func() {
		if runtime.GOOS != "linux" {
			Skip("no /proc on " + runtime.GOOS)
		}

		Expect(filepath.Join(s.Dir(), "aux", "maps")).To(BeARegularFile())
	})

	It("should intern strings", func() {
		foo := s.RegisterString("foo")
		bar := s.RegisterString("bar")

		Expect(foo).To(BeNumerically(">", 1))
		Expect(bar).NotTo(Equal(foo))
		Expect(s.RegisterString("foo")).To(Equal(foo))
		Expect(s.RegisterString("")).To(Equal(archive.StringRef(0)))
		Expect(s.Stats().StringsInterned).To(Equal(2))
	})

	It("should write interned strings at finalise", func() {
		foo := s.RegisterString("foo")

		Expect(rec.strings).NotTo(HaveKey(foo))

		Expect(s.Finalise()).To(Succeed())

		Expect(rec.str(foo)).To(Equal("foo"))
	})

	It("should finalise once", func() {
		Expect(s.Finalise()).To(Succeed())
		Expect(s.Finalise()).To(Succeed())
		Expect(s.IsFinalised()).To(BeTrue())
	})

	It("should refuse locations after finalise", func() {
		Expect(s.Finalise()).To(Succeed())

		_, err := NewLocation(s, 0, ThreadInitial)

		Expect(err).To(MatchError(ErrFinalised))
	})

	It("should hand out unique ids", func() {
		a := s.NextID(idgen.Task)
		b := s.NextID(idgen.Task)

		Expect(b).To(Equal(a + 1))
	})
})

var _ = Describe("Initialise", func() {
	It("should fail when the trace path cannot be created", func() {
		opts := testOptions()
		file := filepath.Join(opts.TracePath, "file")
		Expect(os.WriteFile(file, nil, 0o644)).To(Succeed())
		opts.TracePath = filepath.Join(file, "sub")

		called := false
		_, err := Initialise(opts, func(dir, name string) (archive.Archive, error) {
			called = true
			return nil, nil
		}, zerolog.Nop())

		Expect(err).To(HaveOccurred())
		Expect(called).To(BeFalse())
	})

	It("should fail when the archive cannot be opened", func() {
		cause := errors.New("disk full")

		_, err := Initialise(testOptions(),
			func(dir, name string) (archive.Archive, error) {
				return nil, cause
			}, zerolog.Nop())

		Expect(err).To(MatchError(cause))
	})

	It("should fail on invalid options", func() {
		opts := testOptions()
		opts.EventModel = "cuda"

		_, err := Initialise(opts, nil, zerolog.Nop())

		Expect(err).To(HaveOccurred())
	})
})
