// Package flow is the reporting modal: sign in with a phone number and a
// one-time code, then report violations and look up earned credits.
//
// The flow is a tagged union of stage states. Transition is a pure function
// of (Model, Event) returning the next Model and the side effects to run;
// Controller runs those effects against the session repository, the OTP
// channel and the detection service.
package flow

import (
	"github.com/civilens/civilens/internal/civilens"
	"github.com/civilens/civilens/internal/detect"
)

// Stage names a State for views and tab highlighting.
type Stage string

const (
	StageAuth    Stage = "auth"
	StageOtp     Stage = "otp"
	StageReport  Stage = "report"
	StageRewards Stage = "rewards"
)

// State is one of Auth, Otp, Report or Rewards.
type State interface {
	Stage() Stage
	isState()
}

// Auth asks for a phone number.
type Auth struct{}

// Otp waits for the code sent to Phone. Expected never leaves memory.
type Otp struct {
	Phone    string
	Expected string
}

// Report shows the outcome of the last submission, if any.
type Report struct {
	Outcome *civilens.DetectionOutcome
}

// Rewards shows the balance once Revealed by a matching lookup.
type Rewards struct {
	Revealed bool
}

func (Auth) Stage() Stage    { return StageAuth }
func (Otp) Stage() Stage     { return StageOtp }
func (Report) Stage() Stage  { return StageReport }
func (Rewards) Stage() Stage { return StageRewards }

func (Auth) isState()    {}
func (Otp) isState()     {}
func (Report) isState()  {}
func (Rewards) isState() {}

// Model is the whole flow. Session is nil until a code has been verified.
type Model struct {
	State   State
	Session *civilens.Session
	// InFlight is set while a detection request is outstanding; it outlives
	// stage changes so Report cannot be resubmitted until the result is in.
	InFlight bool
}

// Initial returns the model a freshly opened flow starts from: Report when a
// session was persisted, Auth otherwise.
func Initial(sess *civilens.Session) Model {
	if sess != nil {
		s := *sess
		return Model{State: Report{}, Session: &s}
	}
	return Model{State: Auth{}}
}

// Tab is a navigation button of the modal.
type Tab string

const (
	TabLogin   Tab = "login"
	TabReport  Tab = "report"
	TabRewards Tab = "rewards"
)

// Event is one of SelectTab, SubmitPhone, SubmitCode, SubmitReport,
// DetectionFinished or LookupRewards.
type Event interface{ isEvent() }

// SelectTab switches tabs. Report and Rewards need a session.
type SelectTab struct{ Tab Tab }

// SubmitPhone requests a code for Phone. Code is the freshly generated code;
// Controller fills it in when empty.
type SubmitPhone struct {
	Phone string
	Code  string
}

// SubmitCode must equal the code sent for the pending phone.
type SubmitCode struct{ Code string }

// SubmitReport spends credits on a report and may start a detection.
type SubmitReport struct{ Draft civilens.ReportDraft }

// DetectionFinished carries the detector's answer for Request. It is ignored
// unless a detection is in flight.
type DetectionFinished struct {
	Request detect.Request
	Outcome civilens.DetectionOutcome
	Err     error
}

// LookupRewards reveals the balance when Phone equals the session phone.
type LookupRewards struct{ Phone string }

func (SelectTab) isEvent()         {}
func (SubmitPhone) isEvent()       {}
func (SubmitCode) isEvent()        {}
func (SubmitReport) isEvent()      {}
func (DetectionFinished) isEvent() {}
func (LookupRewards) isEvent()     {}

// Effect is one of SaveSession, SendCode, Detect or RecordComplaint.
type Effect interface{ isEffect() }

// SaveSession overwrites the persisted session.
type SaveSession struct{ Session civilens.Session }

// SendCode delivers Code to Phone.
type SendCode struct {
	Phone string
	Code  string
}

// Detect calls the detection service; the result comes back as DetectionFinished.
type Detect struct{ Request detect.Request }

// RecordComplaint logs a confirmed violation.
type RecordComplaint struct{ Complaint civilens.Complaint }

func (SaveSession) isEffect()     {}
func (SendCode) isEffect()        {}
func (Detect) isEffect()          {}
func (RecordComplaint) isEffect() {}
