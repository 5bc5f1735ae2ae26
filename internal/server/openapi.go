package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/civilens/civilens/internal/flow"
)

// ErrorResponse is returned for all error responses outside the flow.
type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthCheck struct {
	Status    string `json:"status" enum:"ok,error"`
	LatencyMS int64  `json:"latency_ms"`
}

// HealthResponse maps each dependency name to its check result.
type HealthResponse map[string]HealthCheck

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "CiviLens API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Report traffic violations and earn credits. " +
		"Every /api/flow call acts on the browser identified by the civilens_device cookie.")

	// GET /healthz
	getHealthz, _ := r.NewOperationContext(http.MethodGet, "/healthz")
	getHealthz.SetSummary("Health check")
	getHealthz.SetDescription("Returns the health status of backend dependencies.")
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(getHealthz)

	// GET /api/flow
	getFlow, _ := r.NewOperationContext(http.MethodGet, "/api/flow")
	getFlow.SetSummary("Get flow")
	getFlow.SetDescription("Returns the current stage, enabled tabs, session and last outcome.")
	getFlow.AddRespStructure(flow.View{}, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(getFlow)

	// POST /api/flow/tab
	postTab, _ := r.NewOperationContext(http.MethodPost, "/api/flow/tab")
	postTab.SetSummary("Select tab")
	postTab.SetDescription("Switches to login, report or rewards. Report and rewards require a session.")
	postTab.AddReqStructure(TabRequest{})
	postTab.AddRespStructure(flow.View{}, openapi.WithHTTPStatus(http.StatusOK))
	postTab.AddRespStructure(FlowErrorResponse{}, openapi.WithHTTPStatus(http.StatusForbidden))
	postTab.AddRespStructure(FlowErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnprocessableEntity))
	_ = r.AddOperation(postTab)

	// POST /api/flow/phone
	postPhone, _ := r.NewOperationContext(http.MethodPost, "/api/flow/phone")
	postPhone.SetSummary("Request code")
	postPhone.SetDescription("Validates a 10-digit phone number and sends a 6-digit one-time code.")
	postPhone.AddReqStructure(PhoneRequest{})
	postPhone.AddRespStructure(flow.View{}, openapi.WithHTTPStatus(http.StatusOK))
	postPhone.AddRespStructure(FlowErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnprocessableEntity))
	_ = r.AddOperation(postPhone)

	// POST /api/flow/otp
	postOTP, _ := r.NewOperationContext(http.MethodPost, "/api/flow/otp")
	postOTP.SetSummary("Verify code")
	postOTP.SetDescription("Checks the one-time code and signs in with 1000 credits.")
	postOTP.AddReqStructure(CodeRequest{})
	postOTP.AddRespStructure(flow.View{}, openapi.WithHTTPStatus(http.StatusOK))
	postOTP.AddRespStructure(FlowErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnprocessableEntity))
	_ = r.AddOperation(postOTP)

	// POST /api/flow/report
	postReport, _ := r.NewOperationContext(http.MethodPost, "/api/flow/report")
	postReport.SetSummary("Submit report")
	postReport.SetDescription("Spends 10 credits. A No Parking report with an image is checked by the " +
		"detection service; a confirmed violation refunds the credits. Blocks until the check is done.")
	postReport.AddReqStructure(ReportForm{})
	postReport.AddRespStructure(flow.View{}, openapi.WithHTTPStatus(http.StatusOK))
	postReport.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	postReport.AddRespStructure(FlowErrorResponse{}, openapi.WithHTTPStatus(http.StatusForbidden))
	postReport.AddRespStructure(FlowErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	postReport.AddRespStructure(FlowErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnprocessableEntity))
	_ = r.AddOperation(postReport)

	// POST /api/flow/rewards
	postRewards, _ := r.NewOperationContext(http.MethodPost, "/api/flow/rewards")
	postRewards.SetSummary("View rewards")
	postRewards.SetDescription("Reveals the credit balance when the phone matches the signed-in number.")
	postRewards.AddReqStructure(PhoneRequest{})
	postRewards.AddRespStructure(flow.View{}, openapi.WithHTTPStatus(http.StatusOK))
	postRewards.AddRespStructure(FlowErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnprocessableEntity))
	_ = r.AddOperation(postRewards)

	// GET /api/flow/events
	getEvents, _ := r.NewOperationContext(http.MethodGet, "/api/flow/events")
	getEvents.SetSummary("SSE event stream")
	getEvents.SetDescription("Server-Sent Events stream of flow updates " +
		"(stage_changed, credits_changed, detection_finished).")
	getEvents.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK),
		openapi.WithContentType("text/event-stream"))
	_ = r.AddOperation(getEvents)

	// GET /api/flow/ws
	getWS, _ := r.NewOperationContext(http.MethodGet, "/api/flow/ws")
	getWS.SetSummary("WebSocket update feed")
	getWS.SetDescription("Upgrades to a WebSocket connection that sends the same updates as the SSE stream.")
	getWS.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusSwitchingProtocols),
		openapi.WithContentType("text/plain"))
	_ = r.AddOperation(getWS)

	// GET /api/complaints
	getComplaints, _ := r.NewOperationContext(http.MethodGet, "/api/complaints")
	getComplaints.SetSummary("List complaints")
	getComplaints.SetDescription("Confirmed violations, newest first. Requires HTTP basic auth as admin.")
	getComplaints.AddRespStructure(ComplaintListResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getComplaints.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	getComplaints.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getComplaints)

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
