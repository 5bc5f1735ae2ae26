package flow

import (
	"github.com/civilens/civilens/internal/civilens"
	"github.com/civilens/civilens/internal/detect"
	"github.com/civilens/civilens/internal/otp"
)

const (
	noHelmetPending = "No Helmet detection not yet implemented"
	detectionFailed = "Error detecting violation"
)

// UserError is a rejection the user can fix and retry from the same stage.
type UserError struct {
	Code string
	Msg  string
}

func (e *UserError) Error() string { return e.Msg }

var (
	ErrInvalidPhone        = &UserError{Code: "invalid_phone", Msg: "Please enter a valid 10-digit phone number"}
	ErrInvalidCode         = &UserError{Code: "invalid_code", Msg: "Invalid OTP. Please try again."}
	ErrInsufficientCredits = &UserError{Code: "insufficient_credits", Msg: "Insufficient credits! Please contact support."}
	ErrViolationRequired   = &UserError{Code: "violation_required", Msg: "Please select a violation type."}
	ErrPhoneMismatch       = &UserError{Code: "phone_mismatch", Msg: "Invalid Phone Number. Please try again."}
	ErrNoSession           = &UserError{Code: "no_session", Msg: "Please log in first."}
	ErrSubmitInFlight      = &UserError{Code: "submit_in_flight", Msg: "Your last report is still being checked."}
	ErrWrongStage          = &UserError{Code: "wrong_stage", Msg: "That action is not available right now."}
)

// Transition applies ev to m. On error m is returned unchanged with no effects.
func Transition(m Model, ev Event) (Model, []Effect, error) {
	switch ev := ev.(type) {
	case SelectTab:
		return selectTab(m, ev)
	case SubmitPhone:
		return submitPhone(m, ev)
	case SubmitCode:
		return submitCode(m, ev)
	case SubmitReport:
		return submitReport(m, ev)
	case DetectionFinished:
		return detectionFinished(m, ev)
	case LookupRewards:
		return lookupRewards(m, ev)
	}
	return m, nil, ErrWrongStage
}

func selectTab(m Model, ev SelectTab) (Model, []Effect, error) {
	switch ev.Tab {
	case TabLogin:
		m.State = Auth{}
		return m, nil, nil
	case TabReport:
		if m.Session == nil {
			return m, nil, ErrNoSession
		}
		if _, ok := m.State.(Report); !ok {
			m.State = Report{}
		}
		return m, nil, nil
	case TabRewards:
		if m.Session == nil {
			return m, nil, ErrNoSession
		}
		if _, ok := m.State.(Rewards); !ok {
			m.State = Rewards{}
		}
		return m, nil, nil
	}
	return m, nil, ErrWrongStage
}

func submitPhone(m Model, ev SubmitPhone) (Model, []Effect, error) {
	if _, ok := m.State.(Auth); !ok {
		return m, nil, ErrWrongStage
	}
	if !otp.ValidPhone(ev.Phone) {
		return m, nil, ErrInvalidPhone
	}
	m.State = Otp{Phone: ev.Phone, Expected: ev.Code}
	return m, []Effect{SendCode{Phone: ev.Phone, Code: ev.Code}}, nil
}

func submitCode(m Model, ev SubmitCode) (Model, []Effect, error) {
	st, ok := m.State.(Otp)
	if !ok {
		return m, nil, ErrWrongStage
	}
	if st.Expected == "" || ev.Code != st.Expected {
		return m, nil, ErrInvalidCode
	}

	sess := civilens.Session{Phone: st.Phone, Credits: civilens.InitialCredits}
	m.Session = &sess
	m.State = Report{}
	return m, []Effect{SaveSession{Session: sess}}, nil
}

func submitReport(m Model, ev SubmitReport) (Model, []Effect, error) {
	if _, ok := m.State.(Report); !ok {
		return m, nil, ErrWrongStage
	}
	if m.InFlight {
		return m, nil, ErrSubmitInFlight
	}
	if m.Session == nil || m.Session.Credits < civilens.ReportCost {
		return m, nil, ErrInsufficientCredits
	}
	if _, ok := civilens.ParseViolationType(string(ev.Draft.ViolationType)); !ok {
		return m, nil, ErrViolationRequired
	}

	sess := *m.Session
	sess.Credits -= civilens.ReportCost
	m.Session = &sess
	effects := []Effect{SaveSession{Session: sess}}

	var st Report
	switch {
	case ev.Draft.ViolationType == civilens.ViolationNoParking && ev.Draft.Image != nil:
		m.InFlight = true
		effects = append(effects, Detect{Request: detect.Request{
			Phone:         sess.Phone,
			ViolationType: ev.Draft.ViolationType,
			Image:         *ev.Draft.Image,
			Location:      ev.Draft.Location,
			Description:   ev.Draft.Description,
		}})
	case ev.Draft.ViolationType == civilens.ViolationNoHelmet:
		st.Outcome = &civilens.DetectionOutcome{Result: noHelmetPending}
	}
	m.State = st
	return m, effects, nil
}

func detectionFinished(m Model, ev DetectionFinished) (Model, []Effect, error) {
	if !m.InFlight {
		return m, nil, nil
	}
	m.InFlight = false

	var effects []Effect
	outcome := ev.Outcome
	if ev.Err != nil {
		outcome = civilens.DetectionOutcome{Result: detectionFailed}
	} else if outcome.Detected {
		if m.Session != nil && m.Session.Phone == ev.Request.Phone {
			sess := *m.Session
			sess.Credits += civilens.ReportCost
			m.Session = &sess
			effects = append(effects, SaveSession{Session: sess})
		}
		effects = append(effects, RecordComplaint{Complaint: civilens.Complaint{
			Phone:         ev.Request.Phone,
			ViolationType: ev.Request.ViolationType,
			Result:        outcome.Result,
			Location:      ev.Request.Location,
			Description:   ev.Request.Description,
		}})
	}

	// The outcome is only shown if the user is still looking at Report.
	if _, ok := m.State.(Report); ok {
		m.State = Report{Outcome: &outcome}
	}
	return m, effects, nil
}

func lookupRewards(m Model, ev LookupRewards) (Model, []Effect, error) {
	if _, ok := m.State.(Rewards); !ok {
		return m, nil, ErrWrongStage
	}
	if m.Session == nil || ev.Phone != m.Session.Phone {
		return m, nil, ErrPhoneMismatch
	}
	m.State = Rewards{Revealed: true}
	return m, nil, nil
}
