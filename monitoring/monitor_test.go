package monitoring

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"

	"github.com/sarchlab/tasktrace/config"
	"github.com/sarchlab/tasktrace/trace"
)

var _ = Describe("Monitor", func() {
	var (
		s   *trace.State
		loc *trace.Location
		m   *Monitor
	)

	get := func(url string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, url, nil)
		m.Router().ServeHTTP(rec, req)

		return rec
	}

	BeforeEach(func() {
		opts := config.Default()
		opts.TracePath = GinkgoT().TempDir()
		opts.TraceName = "monitor"

		var err error
		s, err = trace.Initialise(opts, nil, zerolog.Nop())
		Expect(err).NotTo(HaveOccurred())

		loc, err = trace.NewLocation(s, 0, trace.ThreadInitial)
		Expect(err).NotTo(HaveOccurred())

		loc.ThreadBegin()

		m = NewMonitor(s).WithPortNumber(0)
	})

	AfterEach(func() {
		loc.ThreadEnd()
		Expect(loc.Destroy()).To(Succeed())
		Expect(s.Finalise()).To(Succeed())
	})

	It("should describe the session", func() {
		rec := get("/api/session")

		var rsp sessionRsp
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(json.Unmarshal(rec.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp.Name).To(Equal(s.Name()))
		Expect(rsp.EventModel).To(Equal("omp"))
		Expect(rsp.Finalised).To(BeFalse())
	})

	It("should report counters", func() {
		rec := get("/api/stats")

		var rsp statsRsp
		Expect(json.Unmarshal(rec.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp.LocationsLive).To(BeEquivalentTo(1))
		Expect(rsp.EventsWritten).To(BeEquivalentTo(1))
	})

	It("should list live locations", func() {
		rec := get("/api/locations")

		var rsp []locationRsp
		Expect(json.Unmarshal(rec.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp).To(HaveLen(1))
		Expect(rsp[0].ThreadType).To(Equal("initial"))
		Expect(rsp[0].Events).To(BeEquivalentTo(1))
	})

	It("should serialize one location", func() {
		rec := get("/api/location/" + strconv.FormatUint(uint64(loc.Ref()), 10))

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.Len()).To(BeNumerically(">", 0))
	})

	It("should reject unknown locations", func() {
		Expect(get("/api/location/99").Code).To(Equal(http.StatusNotFound))
		Expect(get("/api/location/abc").Code).To(Equal(http.StatusBadRequest))
	})

	It("should reject invalid profile durations", func() {
		Expect(get("/api/profile?seconds=0").Code).
			To(Equal(http.StatusBadRequest))
		Expect(get("/api/profile?seconds=600").Code).
			To(Equal(http.StatusBadRequest))
	})

	It("should redirect the root to the session", func() {
		rec := get("/")

		Expect(rec.Code).To(Equal(http.StatusFound))
		Expect(rec.Header().Get("Location")).To(Equal("/api/session"))
	})

	It("should serve on a random port", func() {
		url, err := m.StartServer()
		Expect(err).NotTo(HaveOccurred())
		defer func() { Expect(m.Stop()).To(Succeed()) }()

		rsp, err := http.Get(url + "/api/stats")
		Expect(err).NotTo(HaveOccurred())
		defer rsp.Body.Close()

		Expect(rsp.StatusCode).To(Equal(http.StatusOK))
	})
})
