package flow

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civilens/civilens/internal/civilens"
)

func signedIn(credits int) Model {
	return Model{
		State:   Report{},
		Session: &civilens.Session{Phone: "9876543210", Credits: credits},
	}
}

func evidence() *civilens.Evidence {
	return &civilens.Evidence{Filename: "car.jpg", ContentType: "image/jpeg", Data: []byte{0xff, 0xd8}}
}

func TestInitial(t *testing.T) {
	assert.Equal(t, StageAuth, Initial(nil).State.Stage())

	m := Initial(&civilens.Session{Phone: "9876543210", Credits: 40})
	assert.Equal(t, StageReport, m.State.Stage())
	assert.Equal(t, 40, m.Session.Credits)
}

func TestSubmitPhone(t *testing.T) {
	tests := []struct {
		phone string
		ok    bool
	}{
		{"9876543210", true},
		{"0123456789", true},
		{"987654321", false},
		{"98765432101", false},
		{"98765-43210", false},
		{"abcdefghij", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.phone, func(t *testing.T) {
			next, effects, err := Transition(Initial(nil), SubmitPhone{Phone: tt.phone, Code: "123456"})
			if !tt.ok {
				assert.ErrorIs(t, err, ErrInvalidPhone)
				assert.Equal(t, StageAuth, next.State.Stage())
				assert.Empty(t, effects)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, Otp{Phone: tt.phone, Expected: "123456"}, next.State)
			assert.Equal(t, []Effect{SendCode{Phone: tt.phone, Code: "123456"}}, effects)
		})
	}
}

func TestSubmitCode(t *testing.T) {
	m := Model{State: Otp{Phone: "9876543210", Expected: "482913"}}

	for _, wrong := range []string{"", "482914", "48291", "4829130", " 482913"} {
		next, effects, err := Transition(m, SubmitCode{Code: wrong})
		assert.ErrorIs(t, err, ErrInvalidCode, "code %q", wrong)
		assert.Equal(t, m, next)
		assert.Empty(t, effects)
	}

	next, effects, err := Transition(m, SubmitCode{Code: "482913"})
	require.NoError(t, err)
	assert.Equal(t, StageReport, next.State.Stage())
	want := civilens.Session{Phone: "9876543210", Credits: 1000}
	assert.Equal(t, &want, next.Session)
	assert.Equal(t, []Effect{SaveSession{Session: want}}, effects)
}

func TestExampleLoginSequence(t *testing.T) {
	m := Initial(nil)

	m, _, err := Transition(m, SubmitPhone{Phone: "9876543210", Code: "555111"})
	require.NoError(t, err)
	require.Equal(t, StageOtp, m.State.Stage())

	m, _, err = Transition(m, SubmitCode{Code: "111555"})
	require.ErrorIs(t, err, ErrInvalidCode)
	require.Equal(t, StageOtp, m.State.Stage())

	m, effects, err := Transition(m, SubmitCode{Code: "555111"})
	require.NoError(t, err)
	assert.Equal(t, StageReport, m.State.Stage())
	assert.Equal(t, []Effect{SaveSession{Session: civilens.Session{Phone: "9876543210", Credits: 1000}}}, effects)
}

func TestSubmitReportRejections(t *testing.T) {
	tests := []struct {
		name  string
		model Model
		draft civilens.ReportDraft
		want  error
	}{
		{
			name:  "no session",
			model: Model{State: Report{}},
			draft: civilens.ReportDraft{ViolationType: civilens.ViolationNoParking, Image: evidence()},
			want:  ErrInsufficientCredits,
		},
		{
			name:  "balance below cost",
			model: signedIn(9),
			draft: civilens.ReportDraft{ViolationType: civilens.ViolationNoParking, Image: evidence()},
			want:  ErrInsufficientCredits,
		},
		{
			name:  "zero balance",
			model: signedIn(0),
			draft: civilens.ReportDraft{ViolationType: civilens.ViolationNoHelmet},
			want:  ErrInsufficientCredits,
		},
		{
			name:  "no violation type",
			model: signedIn(100),
			draft: civilens.ReportDraft{Image: evidence()},
			want:  ErrViolationRequired,
		},
		{
			name:  "unknown violation type",
			model: signedIn(100),
			draft: civilens.ReportDraft{ViolationType: "Speeding"},
			want:  ErrViolationRequired,
		},
		{
			name:  "not in report stage",
			model: Model{State: Rewards{}, Session: &civilens.Session{Phone: "9876543210", Credits: 100}},
			draft: civilens.ReportDraft{ViolationType: civilens.ViolationNoHelmet},
			want:  ErrWrongStage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, effects, err := Transition(tt.model, SubmitReport{Draft: tt.draft})
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.model, next)
			assert.Empty(t, effects)
		})
	}
}

func TestSubmitReportAtExactCost(t *testing.T) {
	next, _, err := Transition(signedIn(10), SubmitReport{Draft: civilens.ReportDraft{ViolationType: civilens.ViolationNoHelmet}})
	require.NoError(t, err)
	assert.Equal(t, 0, next.Session.Credits)
}

func TestSubmitNoHelmet(t *testing.T) {
	next, effects, err := Transition(signedIn(1000), SubmitReport{Draft: civilens.ReportDraft{
		ViolationType: civilens.ViolationNoHelmet,
		Image:         evidence(),
	}})
	require.NoError(t, err)

	assert.Equal(t, 990, next.Session.Credits)
	assert.False(t, next.InFlight)
	assert.Equal(t, []Effect{SaveSession{Session: civilens.Session{Phone: "9876543210", Credits: 990}}}, effects)
	require.NotNil(t, next.View().Outcome)
	assert.Equal(t, "No Helmet detection not yet implemented", next.View().Outcome.Result)
}

func TestSubmitNoParkingWithoutImage(t *testing.T) {
	next, effects, err := Transition(signedIn(50), SubmitReport{Draft: civilens.ReportDraft{
		ViolationType: civilens.ViolationNoParking,
	}})
	require.NoError(t, err)
	assert.Equal(t, 40, next.Session.Credits)
	assert.False(t, next.InFlight)
	assert.Len(t, effects, 1)
}

func TestNoParkingDetectionOutcomes(t *testing.T) {
	tests := []struct {
		name        string
		outcome     civilens.DetectionOutcome
		err         error
		wantCredits int
		wantResult  string
		wantRecord  bool
	}{
		{
			name:        "detected refunds",
			outcome:     civilens.DetectionOutcome{Detected: true, Result: "Detected 1 'No Parking' sign(s)", Image: "data:image/jpeg;base64,AA"},
			wantCredits: 500,
			wantResult:  "Detected 1 'No Parking' sign(s)",
			wantRecord:  true,
		},
		{
			name:        "not detected keeps deduction",
			outcome:     civilens.DetectionOutcome{Result: "No 'No Parking' signs detected"},
			wantCredits: 490,
			wantResult:  "No 'No Parking' signs detected",
		},
		{
			name:        "failure keeps deduction",
			err:         errors.New("connection refused"),
			wantCredits: 490,
			wantResult:  "Error detecting violation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, effects, err := Transition(signedIn(500), SubmitReport{Draft: civilens.ReportDraft{
				ViolationType: civilens.ViolationNoParking,
				Image:         evidence(),
				Location:      "MG Road",
			}})
			require.NoError(t, err)
			require.True(t, m.InFlight)
			require.Equal(t, 490, m.Session.Credits)
			require.Len(t, effects, 2)
			assert.Equal(t, SaveSession{Session: civilens.Session{Phone: "9876543210", Credits: 490}}, effects[0])
			det, ok := effects[1].(Detect)
			require.True(t, ok)
			assert.Equal(t, "MG Road", det.Request.Location)
			assert.Equal(t, "9876543210", det.Request.Phone)

			// A second submit is refused while the first is outstanding.
			_, _, err = Transition(m, SubmitReport{Draft: civilens.ReportDraft{ViolationType: civilens.ViolationNoHelmet}})
			require.ErrorIs(t, err, ErrSubmitInFlight)

			m, effects, err = Transition(m, DetectionFinished{Request: det.Request, Outcome: tt.outcome, Err: tt.err})
			require.NoError(t, err)
			assert.False(t, m.InFlight)
			assert.Equal(t, tt.wantCredits, m.Session.Credits)

			v := m.View()
			require.NotNil(t, v.Outcome)
			assert.Equal(t, tt.wantResult, v.Outcome.Result)

			var recorded, saved bool
			for _, eff := range effects {
				switch eff := eff.(type) {
				case RecordComplaint:
					recorded = true
					assert.Equal(t, "MG Road", eff.Complaint.Location)
				case SaveSession:
					saved = true
					assert.Equal(t, tt.wantCredits, eff.Session.Credits)
				}
			}
			assert.Equal(t, tt.wantRecord, recorded)
			assert.Equal(t, tt.wantRecord, saved)
		})
	}
}

func TestDetectionOutcomeDiscardedAfterLeavingReport(t *testing.T) {
	m, effects, err := Transition(signedIn(100), SubmitReport{Draft: civilens.ReportDraft{
		ViolationType: civilens.ViolationNoParking,
		Image:         evidence(),
	}})
	require.NoError(t, err)
	det := effects[1].(Detect)

	m, _, err = Transition(m, SelectTab{Tab: TabRewards})
	require.NoError(t, err)
	assert.True(t, m.InFlight)

	m, _, err = Transition(m, DetectionFinished{Request: det.Request, Outcome: civilens.DetectionOutcome{Detected: true, Result: "ok"}})
	require.NoError(t, err)
	assert.Equal(t, Rewards{}, m.State)
	assert.Equal(t, 100, m.Session.Credits)

	m, _, err = Transition(m, SelectTab{Tab: TabReport})
	require.NoError(t, err)
	assert.Nil(t, m.View().Outcome)
}

func TestStrayDetectionFinishedIgnored(t *testing.T) {
	m := signedIn(100)
	next, effects, err := Transition(m, DetectionFinished{Outcome: civilens.DetectionOutcome{Detected: true}})
	require.NoError(t, err)
	assert.Equal(t, m, next)
	assert.Empty(t, effects)
}

func TestLookupRewards(t *testing.T) {
	m := Model{State: Rewards{}, Session: &civilens.Session{Phone: "9876543210", Credits: 970}}

	for _, wrong := range []string{"", "9876543211", "987654321", "9876543210 "} {
		next, _, err := Transition(m, LookupRewards{Phone: wrong})
		assert.ErrorIs(t, err, ErrPhoneMismatch, "phone %q", wrong)
		assert.Nil(t, next.View().Rewards)
	}

	next, _, err := Transition(m, LookupRewards{Phone: "9876543210"})
	require.NoError(t, err)
	v := next.View()
	require.NotNil(t, v.Rewards)
	assert.Equal(t, civilens.Session{Phone: "9876543210", Credits: 970}, *v.Rewards)
}

func TestSelectTab(t *testing.T) {
	anon := Initial(nil)
	for _, tab := range []Tab{TabReport, TabRewards} {
		next, _, err := Transition(anon, SelectTab{Tab: tab})
		assert.ErrorIs(t, err, ErrNoSession, "tab %s", tab)
		assert.Equal(t, StageAuth, next.State.Stage())
	}

	// Login always goes back to Auth and forgets a pending code.
	pending := Model{State: Otp{Phone: "9876543210", Expected: "123456"}}
	next, _, err := Transition(pending, SelectTab{Tab: TabLogin})
	require.NoError(t, err)
	assert.Equal(t, Auth{}, next.State)

	m := signedIn(100)
	next, _, err = Transition(m, SelectTab{Tab: TabLogin})
	require.NoError(t, err)
	assert.Equal(t, StageAuth, next.State.Stage())
	assert.NotNil(t, next.Session)
	assert.True(t, next.View().Tabs.Report)

	next, _, err = Transition(next, SelectTab{Tab: TabRewards})
	require.NoError(t, err)
	assert.Equal(t, Rewards{}, next.State)

	_, _, err = Transition(next, SelectTab{Tab: "settings"})
	assert.ErrorIs(t, err, ErrWrongStage)
}

func TestTabsFollowSession(t *testing.T) {
	assert.Equal(t, Tabs{Login: true}, Initial(nil).View().Tabs)
	assert.Equal(t, Tabs{Login: true, Report: true, Rewards: true}, signedIn(0).View().Tabs)
}

func TestUserErrorMessage(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", ErrInvalidCode)
	var ue *UserError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "invalid_code", ue.Code)
	assert.Equal(t, "Invalid OTP. Please try again.", ue.Error())
}
