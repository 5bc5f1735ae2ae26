package flow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civilens/civilens/internal/civilens"
	"github.com/civilens/civilens/internal/detect"
	"github.com/civilens/civilens/internal/session"
)

type recordingSender struct {
	mu    sync.Mutex
	codes map[string]string
}

func (s *recordingSender) Send(_ context.Context, phone, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.codes == nil {
		s.codes = make(map[string]string)
	}
	s.codes[phone] = code
	return nil
}

func (s *recordingSender) last(phone string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[phone]
}

type fakeDetector struct {
	mu      sync.Mutex
	calls   int
	outcome civilens.DetectionOutcome
	err     error
	gate    chan struct{} // when set, Detect waits on it
}

func (d *fakeDetector) Detect(ctx context.Context, req detect.Request) (civilens.DetectionOutcome, error) {
	d.mu.Lock()
	d.calls++
	gate := d.gate
	d.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return d.outcome, d.err
}

func (d *fakeDetector) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type memComplaints struct {
	mu   sync.Mutex
	list []civilens.Complaint
}

func (m *memComplaints) Record(_ context.Context, c civilens.Complaint) (civilens.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.list = append(m.list, c)
	return c, nil
}

type failingRepo struct{ session.Memory }

func (*failingRepo) Save(context.Context, civilens.Session) error { return errors.New("disk full") }

type harness struct {
	repo       *session.Memory
	sender     *recordingSender
	detector   *fakeDetector
	complaints *memComplaints
	updates    []Update
	mu         sync.Mutex
}

func newHarness() *harness {
	return &harness{
		repo:       &session.Memory{},
		sender:     &recordingSender{},
		detector:   &fakeDetector{},
		complaints: &memComplaints{},
	}
}

func (h *harness) controller(t *testing.T) *Controller {
	t.Helper()
	c, err := NewController(context.Background(), Deps{
		Repo:       h.repo,
		Sender:     h.sender,
		Detector:   h.detector,
		Complaints: h.complaints,
		OnUpdate: func(u Update) {
			h.mu.Lock()
			h.updates = append(h.updates, u)
			h.mu.Unlock()
		},
	})
	require.NoError(t, err)
	return c
}

func (h *harness) login(t *testing.T, c *Controller, phone string) {
	t.Helper()
	ctx := context.Background()
	_, err := c.Dispatch(ctx, SubmitPhone{Phone: phone})
	require.NoError(t, err)
	_, err = c.Dispatch(ctx, SubmitCode{Code: h.sender.last(phone)})
	require.NoError(t, err)
}

func TestControllerLoginPersistsSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	c := h.controller(t)
	require.Equal(t, StageAuth, c.View().Stage)

	v, err := c.Dispatch(ctx, SubmitPhone{Phone: "12345"})
	assert.ErrorIs(t, err, ErrInvalidPhone)
	assert.Equal(t, StageAuth, v.Stage)

	v, err = c.Dispatch(ctx, SubmitPhone{Phone: "9876543210"})
	require.NoError(t, err)
	assert.Equal(t, StageOtp, v.Stage)
	assert.Equal(t, "9876543210", v.OtpPhone)

	code := h.sender.last("9876543210")
	require.Len(t, code, 6)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	v, err = c.Dispatch(ctx, SubmitCode{Code: wrong})
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.Equal(t, StageOtp, v.Stage)
	_, err = h.repo.Load(ctx)
	assert.ErrorIs(t, err, session.ErrNotFound)

	v, err = c.Dispatch(ctx, SubmitCode{Code: code})
	require.NoError(t, err)
	assert.Equal(t, StageReport, v.Stage)

	saved, err := h.repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, civilens.Session{Phone: "9876543210", Credits: 1000}, saved)
}

func TestControllerResumesPersistedSession(t *testing.T) {
	h := newHarness()
	h.login(t, h.controller(t), "9876543210")

	// A fresh controller over the same repository is a reload.
	reloaded := h.controller(t)
	v := reloaded.View()
	assert.Equal(t, StageReport, v.Stage)
	require.NotNil(t, v.Session)
	assert.Equal(t, 1000, v.Session.Credits)
}

func TestControllerRejectedReportTouchesNothing(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	require.NoError(t, h.repo.Save(ctx, civilens.Session{Phone: "9876543210", Credits: 5}))
	c := h.controller(t)
	saves := h.repo.Saves()

	_, err := c.Dispatch(ctx, SubmitReport{Draft: civilens.ReportDraft{
		ViolationType: civilens.ViolationNoParking,
		Image:         evidence(),
	}})
	assert.ErrorIs(t, err, ErrInsufficientCredits)
	assert.Equal(t, saves, h.repo.Saves())
	assert.Zero(t, h.detector.count())
}

func TestControllerNoParkingDetected(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.detector.outcome = civilens.DetectionOutcome{Detected: true, Result: "Detected 1 'No Parking' sign(s)", Image: "data:image/jpeg;base64,AA"}
	c := h.controller(t)
	h.login(t, c, "9876543210")
	saves := h.repo.Saves()

	v, err := c.Dispatch(ctx, SubmitReport{Draft: civilens.ReportDraft{
		ViolationType: civilens.ViolationNoParking,
		Image:         evidence(),
		Location:      "MG Road",
		Description:   "blocking the gate",
	}})
	require.NoError(t, err)

	assert.False(t, v.InFlight)
	require.NotNil(t, v.Outcome)
	assert.Equal(t, "data:image/jpeg;base64,AA", v.Outcome.Image)
	assert.Equal(t, 1000, v.Session.Credits)

	// Deduct then refund: two saves.
	assert.Equal(t, saves+2, h.repo.Saves())
	saved, _ := h.repo.Load(ctx)
	assert.Equal(t, 1000, saved.Credits)

	require.Len(t, h.complaints.list, 1)
	assert.Equal(t, "blocking the gate", h.complaints.list[0].Description)
	assert.Equal(t, civilens.ViolationNoParking, h.complaints.list[0].ViolationType)

	h.mu.Lock()
	defer h.mu.Unlock()
	var types []string
	for _, u := range h.updates {
		types = append(types, u.Type)
	}
	assert.Contains(t, types, UpdateDetection)
	assert.Contains(t, types, UpdateCredits)
}

func TestControllerDetectionFailureKeepsDeduction(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.detector.err = detect.ErrDetection
	c := h.controller(t)
	h.login(t, c, "9876543210")

	v, err := c.Dispatch(ctx, SubmitReport{Draft: civilens.ReportDraft{
		ViolationType: civilens.ViolationNoParking,
		Image:         evidence(),
	}})
	require.NoError(t, err)
	assert.Equal(t, "Error detecting violation", v.Outcome.Result)
	assert.Equal(t, 990, v.Session.Credits)

	saved, _ := h.repo.Load(ctx)
	assert.Equal(t, 990, saved.Credits)
	assert.Empty(t, h.complaints.list)
}

func TestControllerNoHelmetSkipsDetector(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	c := h.controller(t)
	h.login(t, c, "9876543210")

	v, err := c.Dispatch(ctx, SubmitReport{Draft: civilens.ReportDraft{
		ViolationType: civilens.ViolationNoHelmet,
		Image:         evidence(),
	}})
	require.NoError(t, err)
	assert.Equal(t, "No Helmet detection not yet implemented", v.Outcome.Result)
	assert.Equal(t, 990, v.Session.Credits)
	assert.Zero(t, h.detector.count())
}

func TestControllerStaysInteractiveWhileDetecting(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.detector.gate = make(chan struct{})
	h.detector.outcome = civilens.DetectionOutcome{Result: "No 'No Parking' signs detected"}
	c := h.controller(t)
	h.login(t, c, "9876543210")

	done := make(chan View, 1)
	go func() {
		v, _ := c.Dispatch(ctx, SubmitReport{Draft: civilens.ReportDraft{
			ViolationType: civilens.ViolationNoParking,
			Image:         evidence(),
		}})
		done <- v
	}()

	require.Eventually(t, func() bool { return c.View().InFlight }, time.Second, time.Millisecond)

	// Resubmitting is refused; switching tabs works.
	_, err := c.Dispatch(ctx, SubmitReport{Draft: civilens.ReportDraft{ViolationType: civilens.ViolationNoHelmet}})
	assert.ErrorIs(t, err, ErrSubmitInFlight)

	v, err := c.Dispatch(ctx, SelectTab{Tab: TabRewards})
	require.NoError(t, err)
	assert.Equal(t, StageRewards, v.Stage)

	v, err = c.Dispatch(ctx, LookupRewards{Phone: "9876543210"})
	require.NoError(t, err)
	assert.Equal(t, 990, v.Rewards.Credits)

	close(h.detector.gate)
	final := <-done
	assert.False(t, final.InFlight)
	assert.Equal(t, StageRewards, final.Stage)
	assert.Nil(t, final.Outcome)
}

func TestControllerSaveFailureLeavesFlowUnchanged(t *testing.T) {
	ctx := context.Background()
	sender := &recordingSender{}
	c, err := NewController(ctx, Deps{
		Repo:     &failingRepo{},
		Sender:   sender,
		Detector: &fakeDetector{},
	})
	require.NoError(t, err)

	_, err = c.Dispatch(ctx, SubmitPhone{Phone: "9876543210"})
	require.NoError(t, err)

	v, err := c.Dispatch(ctx, SubmitCode{Code: sender.last("9876543210")})
	require.Error(t, err)
	var ue *UserError
	assert.False(t, errors.As(err, &ue))
	assert.Equal(t, StageOtp, v.Stage)
	assert.Nil(t, v.Session)
}

func TestControllerReopenedFlowKeepsRefund(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.detector.gate = make(chan struct{})
	h.detector.outcome = civilens.DetectionOutcome{Detected: true, Result: "Detected 1 'No Parking' sign(s)"}
	first := h.controller(t)
	h.login(t, first, "9876543210")

	done := make(chan View, 1)
	go func() {
		v, _ := first.Dispatch(ctx, SubmitReport{Draft: civilens.ReportDraft{
			ViolationType: civilens.ViolationNoParking,
			Image:         evidence(),
		}})
		done <- v
	}()
	require.Eventually(t, func() bool { return first.View().InFlight }, time.Second, time.Millisecond)

	// A second flow on the same device opens with the deducted balance.
	second := h.controller(t)
	require.Equal(t, 990, second.View().Session.Credits)

	close(h.detector.gate)
	<-done
	saved, err := h.repo.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, 1000, saved.Credits)

	v, err := second.Dispatch(ctx, SubmitReport{Draft: civilens.ReportDraft{ViolationType: civilens.ViolationNoHelmet}})
	require.NoError(t, err)
	assert.Equal(t, 990, v.Session.Credits)

	saved, err = h.repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 990, saved.Credits)
}
