package warden

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// principalHeader names the requesting principal on mediated HTTP
// requests. Absent header falls back to the client default.
const principalHeader = "X-Warden-Principal"

// maxMediatedBody bounds how much request body is read for inspection.
const maxMediatedBody = 1 << 20

// Middleware returns an http.Handler that mediates each request before
// passing it to the next handler. Denied and escalated requests receive
// a 403 with a JSON body; sanitized requests are forwarded with the
// scrubbed body.
func (c *Client) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		action, err := actionFromRequest(r, c.cfg.principal)
		if err != nil {
			http.Error(w, "unreadable request body", http.StatusBadRequest)
			return
		}

		d := c.pipe.Mediate(r.Context(), toRequest(action, c.cfg.principal, c.cfg.kind))

		switch Verdict(d.Verdict) {
		case Deny, Escalate:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]any{
				"blocked":      true,
				"verdict":      string(d.Verdict),
				"reason":       d.Reason,
				"rule_id":      d.RuleID,
				"escalate_key": d.EscalateKey,
			})
			return

		case Sanitize:
			if len(d.Sanitized) == 1 {
				body := d.Sanitized[0].Data
				r.Body = io.NopCloser(strings.NewReader(body))
				r.ContentLength = int64(len(body))
			}
		}

		next.ServeHTTP(w, r)
	})
}

// actionFromRequest maps an HTTP request to an SDK Action. The body is
// buffered so the downstream handler can still read it.
func actionFromRequest(r *http.Request, defaultPrincipal string) (Action, error) {
	principal := r.Header.Get(principalHeader)
	if principal == "" {
		principal = defaultPrincipal
	}

	resource := r.URL.String()
	if r.URL.Host == "" && r.Host != "" {
		resource = r.Host + r.URL.RequestURI()
	}

	action := Action{
		Principal:  principal,
		ActionType: "http_request",
		Target:     resource,
	}

	if r.Body != nil && r.Body != http.NoBody {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxMediatedBody))
		if err != nil {
			return Action{}, err
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		if len(body) > 0 {
			action.Payloads = []Payload{{
				Data:   string(body),
				Origin: principal,
				Level:  "untrusted",
			}}
		}
	}
	return action, nil
}
