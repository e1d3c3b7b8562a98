package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/playht/playht-go-sdk/logger"
	pkgerrors "github.com/playht/playht-go-sdk/pkg/errors"
	"github.com/playht/playht-go-sdk/pkg/httputil"
)

// synthesisRequest is the JSON body shared by the v2 REST endpoints and the
// inference endpoints. Unused fields are omitted.
type synthesisRequest struct {
	Text              string   `json:"text"`
	Voice             string   `json:"voice"`
	Quality           Quality  `json:"quality,omitempty"`
	OutputFormat      string   `json:"output_format,omitempty"`
	Speed             float64  `json:"speed,omitempty"`
	SampleRate        int      `json:"sample_rate,omitempty"`
	Seed              *int     `json:"seed,omitempty"`
	Temperature       *float64 `json:"temperature,omitempty"`
	VoiceEngine       string   `json:"voice_engine,omitempty"`
	Emotion           Emotion  `json:"emotion,omitempty"`
	VoiceGuidance     *float64 `json:"voice_guidance,omitempty"`
	StyleGuidance     *float64 `json:"style_guidance,omitempty"`
	TextGuidance      *float64 `json:"text_guidance,omitempty"`
	TopP              *float64 `json:"top_p,omitempty"`
	RepetitionPenalty *float64 `json:"repetition_penalty,omitempty"`
	Language          string   `json:"language,omitempty"`
	Voice2            string   `json:"voice_2,omitempty"`
	TurnPrefix        string   `json:"turn_prefix,omitempty"`
	TurnPrefix2       string   `json:"turn_prefix_2,omitempty"`
	RequestID         string   `json:"request_id,omitempty"`
}

func newSynthesisRequest(text string, opts Options) *synthesisRequest {
	co := opts.common()
	r := &synthesisRequest{
		Text:         text,
		Voice:        co.Voice,
		Quality:      co.Quality,
		OutputFormat: string(co.OutputFormat.orDefault()),
		Speed:        co.Speed,
		SampleRate:   co.SampleRate,
		Seed:         co.Seed,
		Temperature:  co.Temperature,
		VoiceEngine:  string(opts.Engine()),
	}
	switch o := opts.(type) {
	case *PlayHT2Options:
		r.Emotion = o.Emotion
		r.VoiceGuidance = o.VoiceGuidance
		r.StyleGuidance = o.StyleGuidance
	case *TurboOptions:
		r.VoiceGuidance = o.VoiceGuidance
		r.StyleGuidance = o.StyleGuidance
		r.TextGuidance = o.TextGuidance
		r.TopP = o.TopP
	case *Play3Options:
		r.Language = o.Language
		r.VoiceGuidance = o.VoiceGuidance
		r.StyleGuidance = o.StyleGuidance
		r.TextGuidance = o.TextGuidance
		r.RepetitionPenalty = o.RepetitionPenalty
	case *DialogOptions:
		r.Language = o.Language
		r.Voice2 = o.Voice2
		r.TurnPrefix = o.TurnPrefix
		r.TurnPrefix2 = o.TurnPrefix2
	}
	return r
}

// withRequestID tags ctx with a fresh request ID unless it already has one.
func withRequestID(ctx context.Context) (context.Context, string) {
	if id, ok := ctx.Value(logger.ContextKeyRequestID).(string); ok && id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return logger.WithRequestID(ctx, id), id
}

// newJSONRequest builds a request with a JSON body. Account credentials are
// applied when authenticated is set.
func (c *Client) newJSONRequest(ctx context.Context, method, url string, body any, accept string, authenticated bool) (*http.Request, error) {
	var rd io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.KindInvalidOption, component, "Encode", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.KindInvalidOption, component, "Request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if id, ok := ctx.Value(logger.ContextKeyRequestID).(string); ok {
		req.Header.Set("X-Request-Id", id)
	}
	if authenticated {
		if err := c.cred.Apply(ctx, req); err != nil {
			return nil, pkgerrors.New(pkgerrors.KindAuth, component, "Request", err)
		}
	}
	logger.APIRequest(ctx, url, method, url, map[string]string{
		"Accept": accept,
	}, body)
	return req, nil
}

// do sends req. Non-2xx responses are returned as KindProvider errors with
// the provider's message; the body of a successful response is left open.
func (c *Client) do(hc *http.Client, req *http.Request, op string) (*http.Response, error) {
	ctx := req.Context()
	resp, err := hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, pkgerrors.New(pkgerrors.KindCanceled, component, op, ctx.Err())
		}
		return nil, pkgerrors.New(pkgerrors.KindTransport, component, op, err)
	}
	if !httputil.IsSuccess(resp.StatusCode) {
		defer resp.Body.Close()
		kind := pkgerrors.KindProvider
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			kind = pkgerrors.KindAuth
		}
		e := httputil.ErrorFromResponse(kind, component, op, resp)
		logger.APIResponse(ctx, op, resp.StatusCode, "", e)
		return nil, e
	}
	logger.APIResponse(ctx, op, resp.StatusCode, "", nil)
	return resp, nil
}

// doJSON sends req and decodes a JSON response into out.
func (c *Client) doJSON(req *http.Request, op string, out any) error {
	resp, err := c.do(c.apiClient, req, op)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.New(pkgerrors.KindProtocol, component, op, err).
			WithMessage("malformed response: " + err.Error())
	}
	return nil
}

func isAuthRejection(err error) bool {
	var e *pkgerrors.Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == pkgerrors.KindAuth &&
		(e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden)
}
