// Package civilens defines the core domain types shared by the reporting flow,
// its stores and the detection client. It has no external dependencies.
package civilens

import "time"

const (
	// InitialCredits is the balance of a freshly verified session.
	InitialCredits = 1000
	// ReportCost is deducted on every accepted report and refunded when the
	// detector confirms the violation.
	ReportCost = 10
)

type Session struct {
	Phone   string `json:"phone"`
	Credits int    `json:"credits"`
}

type ViolationType string

const (
	ViolationNoHelmet  ViolationType = "No Helmet"
	ViolationNoParking ViolationType = "No Parking"
)

// ParseViolationType maps the form value to a known type. The empty string
// (nothing selected) and unknown values report ok=false.
func ParseViolationType(s string) (ViolationType, bool) {
	switch ViolationType(s) {
	case ViolationNoHelmet:
		return ViolationNoHelmet, true
	case ViolationNoParking:
		return ViolationNoParking, true
	}
	return "", false
}

// Evidence is an uploaded image.
type Evidence struct {
	Filename    string
	ContentType string
	Data        []byte
}

type ReportDraft struct {
	ViolationType ViolationType
	Image         *Evidence
	Location      string
	Description   string
}

type BoundingBox struct {
	XMin       int     `json:"xmin"`
	YMin       int     `json:"ymin"`
	XMax       int     `json:"xmax"`
	YMax       int     `json:"ymax"`
	Confidence float64 `json:"confidence"`
}

type DetectionOutcome struct {
	Detected      bool          `json:"detected"`
	Result        string        `json:"result"`
	Image         string        `json:"image,omitempty"`
	BoundingBoxes []BoundingBox `json:"boundingBoxes,omitempty"`
}

// Complaint is a report the detector confirmed.
type Complaint struct {
	ID            string        `json:"id"`
	Phone         string        `json:"phone"`
	ViolationType ViolationType `json:"violationType"`
	Result        string        `json:"result"`
	Location      string        `json:"location,omitempty"`
	Description   string        `json:"description,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
}
