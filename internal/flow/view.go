package flow

import "github.com/civilens/civilens/internal/civilens"

// View is the render-ready projection of a Model.
type View struct {
	Stage    Stage             `json:"stage"`
	Tabs     Tabs              `json:"tabs"`
	Session  *civilens.Session `json:"session,omitempty"`
	InFlight bool              `json:"inFlight"`

	// OtpPhone is the number the pending code was sent to (Otp stage).
	OtpPhone string `json:"otpPhone,omitempty"`
	// Outcome is the last report result (Report stage).
	Outcome *civilens.DetectionOutcome `json:"outcome,omitempty"`
	// Rewards is set once the lookup matched (Rewards stage).
	Rewards *civilens.Session `json:"rewards,omitempty"`
}

// Tabs says which tabs are enabled. Login always is.
type Tabs struct {
	Login   bool `json:"login"`
	Report  bool `json:"report"`
	Rewards bool `json:"rewards"`
}

func (m Model) View() View {
	v := View{
		Stage:    m.State.Stage(),
		InFlight: m.InFlight,
		Tabs: Tabs{
			Login:   true,
			Report:  m.Session != nil,
			Rewards: m.Session != nil,
		},
	}
	if m.Session != nil {
		s := *m.Session
		v.Session = &s
	}

	switch st := m.State.(type) {
	case Otp:
		v.OtpPhone = st.Phone
	case Report:
		if st.Outcome != nil {
			o := *st.Outcome
			v.Outcome = &o
		}
	case Rewards:
		if st.Revealed && m.Session != nil {
			s := *m.Session
			v.Rewards = &s
		}
	}
	return v
}
