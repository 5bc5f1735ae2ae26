// Package detect talks to the external violation-detection service.
//
// The service accepts a multipart form with the evidence image and report
// metadata and answers with a JSON document:
//
//	{"result": "...", "detected": true, "bounding_boxes": [...], "image": "data:image/jpeg;base64,..."}
//
// Every non-2xx status, transport error or undecodable body is reported as
// ErrDetection. Requests are never retried.
package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/civilens/civilens/internal/civilens"
)

var ErrDetection = errors.New("detection failed")

type Request struct {
	Phone         string
	ViolationType civilens.ViolationType
	Image         civilens.Evidence
	Location      string
	Description   string
}

// Detector classifies an evidence image.
type Detector interface {
	Detect(ctx context.Context, req Request) (civilens.DetectionOutcome, error)
}

type response struct {
	Result        string                 `json:"result"`
	Detected      bool                   `json:"detected"`
	BoundingBoxes []civilens.BoundingBox `json:"bounding_boxes"`
	Image         string                 `json:"image"`
	Error         string                 `json:"error"`
}

type Client struct {
	url  string
	http *http.Client
}

// NewClient returns a client posting to url. A zero timeout means no timeout.
func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		url:  url,
		http: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Detect(ctx context.Context, req Request) (civilens.DetectionOutcome, error) {
	body, contentType, err := encodeForm(req)
	if err != nil {
		return civilens.DetectionOutcome{}, fmt.Errorf("encoding form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return civilens.DetectionOutcome{}, fmt.Errorf("%w: building request: %v", ErrDetection, err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return civilens.DetectionOutcome{}, fmt.Errorf("%w: %v", ErrDetection, err)
	}
	defer resp.Body.Close()

	var out response
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// The service puts the reason in "error"; keep it for the log.
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&out)
		return civilens.DetectionOutcome{}, fmt.Errorf("%w: status %d %s", ErrDetection, resp.StatusCode, out.Error)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return civilens.DetectionOutcome{}, fmt.Errorf("%w: decoding response: %v", ErrDetection, err)
	}

	return civilens.DetectionOutcome{
		Detected:      out.Detected,
		Result:        out.Result,
		Image:         out.Image,
		BoundingBoxes: out.BoundingBoxes,
	}, nil
}

func encodeForm(req Request) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	filename := req.Image.Filename
	if filename == "" {
		filename = "evidence.jpg"
	}
	ct := req.Image.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
	h.Set("Content-Type", ct)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(req.Image.Data); err != nil {
		return nil, "", err
	}

	fields := [][2]string{
		{"violationType", string(req.ViolationType)},
		{"phone", req.Phone},
		{"location", req.Location},
		{"description", req.Description},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

// Unavailable is used when no detection service is configured; every call
// fails like an unreachable service would.
type Unavailable struct{}

func (Unavailable) Detect(context.Context, Request) (civilens.DetectionOutcome, error) {
	return civilens.DetectionOutcome{}, fmt.Errorf("%w: no detection service configured", ErrDetection)
}
