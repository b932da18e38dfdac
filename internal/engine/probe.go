package engine

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/0x6d61/wavs/internal/discovery"
	"github.com/0x6d61/wavs/internal/store"
	"github.com/0x6d61/wavs/internal/target"
	"github.com/0x6d61/wavs/internal/transport"
	"github.com/0x6d61/wavs/internal/workerpool"
)

// job is one (injection point, parameter) pair.
type job struct {
	point store.InjectionPoint
	param string
}

// Probe tests every parameter of every point with s and returns one
// finding per vulnerable (page, parameter). Each job tries the payloads in
// order and stops at the first success.
func (e *Engine) Probe(ctx context.Context, t *target.Target, s ProbeStrategy, points []store.InjectionPoint) []store.Finding {
	if len(s.Payloads) == 0 {
		return nil
	}
	if s.Mode == ModeTiming && s.Threshold <= 0 {
		s.Threshold = DefaultThreshold
	}

	var jobs []job
	for _, p := range points {
		if t.IsRestricted(p.Action) {
			continue
		}
		for _, param := range p.Parameters {
			jobs = append(jobs, job{point: p, param: param})
		}
	}

	logger := e.log.With().Str("category", s.Category).Str("mode", s.Mode.String()).Logger()
	logger.Debug().Int("jobs", len(jobs)).Int("payloads", len(s.Payloads)).Msg("probing")

	found := workerpool.Map(ctx, e.workers, jobs, func(ctx context.Context, j job) (store.Finding, bool) {
		for _, payload := range s.Payloads {
			if ctx.Err() != nil {
				return store.Finding{}, false
			}
			if e.try(ctx, t, s, j, payload) {
				logger.Info().Str("page", j.point.Action).Str("parameter", j.param).Str("payload", payload).Msg("vulnerable")
				return store.Finding{
					Category:  s.Category,
					Method:    j.point.Method,
					Page:      j.point.Action,
					Parameter: j.param,
					Payload:   payload,
				}, true
			}
		}
		return store.Finding{}, false
	})

	sortFindings(found)
	return Dedup(found)
}

func (e *Engine) try(ctx context.Context, t *target.Target, s ProbeStrategy, j job, payload string) bool {
	switch s.Mode {
	case ModeTiming:
		baseline := transport.Send(ctx, e.client, BuildRequest(t, j.point, j.param, Placeholder))
		req := BuildRequest(t, j.point, j.param, payload)
		req.Timeout = s.Threshold + transport.DefaultTimeout
		resp := transport.Send(ctx, e.client, req)
		return timingFlagged(baseline, resp, s.Threshold)

	case ModeStored:
		marked := payload + storedMarker()
		if transport.Send(ctx, e.client, BuildRequest(t, j.point, j.param, marked)) == nil {
			return false
		}
		read := transport.Get(ctx, e.client, discovery.PageURL(t, j.point.Action))
		return read != nil && strings.Contains(read.BodyString(), marked)

	default:
		resp := transport.Send(ctx, e.client, BuildRequest(t, j.point, j.param, payload))
		return matches(resp, s, payload)
	}
}

// BuildRequest sets every parameter of point to Placeholder and param to
// value. GET points carry them in the query and POST points in a form body.
func BuildRequest(t *target.Target, point store.InjectionPoint, param, value string) *transport.Request {
	values := url.Values{}
	for _, p := range point.Parameters {
		values.Set(p, Placeholder)
	}
	values.Set(param, value)

	u := discovery.PageURL(t, point.Action)
	if strings.EqualFold(point.Method, http.MethodPost) {
		return &transport.Request{
			Method:      http.MethodPost,
			URL:         u,
			Body:        values.Encode(),
			ContentType: "application/x-www-form-urlencoded",
		}
	}
	return &transport.Request{
		Method: http.MethodGet,
		URL:    u + "?" + values.Encode(),
	}
}

// matches applies content detection. A nil response never matches.
func matches(resp *transport.Response, s ProbeStrategy, payload string) bool {
	if resp == nil {
		return false
	}
	if s.ReflectPayload && payload != "" && strings.Contains(resp.BodyString(), payload) {
		return true
	}
	_, ok := resp.ContainsAny(s.Signatures)
	return ok
}

// storedMarker returns a token unique to one stored write. Other
// parameters of the same form and earlier attempts never carry it, so only
// this write surviving to the read can match.
func storedMarker() string {
	return "wavs" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// timingFlagged reports whether the payload request took at least
// threshold longer than the baseline. Either response missing means no.
func timingFlagged(baseline, payload *transport.Response, threshold time.Duration) bool {
	if baseline == nil || payload == nil {
		return false
	}
	return payload.Duration-baseline.Duration >= threshold
}
