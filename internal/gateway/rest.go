package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/autopeer-io/campustrack/internal/pkg/apperr"
	"github.com/autopeer-io/campustrack/internal/pkg/metrics"
)

// maxErrorBody caps how much of an error response is read for its message.
const maxErrorBody = 64 << 10

// call describes one REST request. Route is the templated endpoint used as
// the metrics label; Path is the concrete one. Anonymous requests carry no
// credential, so their auth failures never end the current session.
type call struct {
	Method    string
	Route     string
	Path      string
	Query     url.Values
	Body      any
	Out       any
	Anonymous bool
}

func (g *Gateway) do(ctx context.Context, c call) error {
	if c.Path == "" {
		c.Path = c.Route
	}
	op := c.Method + " " + c.Route

	// 1. Build the request. Path segments arrive already escaped.
	u := *g.base
	u.RawPath = g.base.EscapedPath() + c.Path
	if p, err := url.PathUnescape(u.RawPath); err == nil {
		u.Path = p
	}
	if len(c.Query) > 0 {
		u.RawQuery = c.Query.Encode()
	}

	var body io.Reader
	if c.Body != nil {
		b, err := json.Marshal(c.Body)
		if err != nil {
			return apperr.Wrap(apperr.KindValidation, op, err)
		}
		body = bytes.NewReader(b)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, c.Method, u.String(), body)
	if err != nil {
		return apperr.Wrap(apperr.KindValidation, op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// 2. The credential is read now, not when the gateway was built, so a
	// logout between two calls is always honoured.
	credential := ""
	if g.creds != nil && !c.Anonymous {
		credential = g.creds.Credential()
	}
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	// 3. Send.
	start := time.Now()
	resp, err := g.http.Do(req)
	if err != nil {
		metrics.GatewayLatency.WithLabelValues(c.Method, c.Route, "error").Observe(time.Since(start).Seconds())
		return apperr.Wrap(apperr.KindNetwork, op, err)
	}
	defer resp.Body.Close()
	metrics.GatewayLatency.WithLabelValues(c.Method, c.Route, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())

	// 4. Classify failures.
	if resp.StatusCode >= http.StatusBadRequest {
		e := apperr.FromStatus(op, resp.StatusCode, readMessage(resp.Body))
		if e.Kind == apperr.KindAuth && credential != "" && g.onAuthError != nil {
			g.onAuthError(e)
		}
		return e
	}

	// 5. Decode.
	if c.Out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(c.Out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperr.Wrap(apperr.KindServer, op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// readMessage extracts the backend's message from an error body. The
// backend answers either {"message": ...}, {"error": ...} or plain text.
func readMessage(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return ""
	}

	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(b, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		return body.Error
	}
	if b[0] == '{' || b[0] == '<' {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func escape(segment string) string { return url.PathEscape(segment) }
