package tts

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	pkgerrors "github.com/playht/playht-go-sdk/pkg/errors"
	"github.com/playht/playht-go-sdk/pkg/httputil"
)

// REST paths of the v2 engines.
const (
	TTSPath       = "/api/v2/tts"
	TTSStreamPath = "/api/v2/tts/stream"
)

const maxEventSize = 1 << 20

type completedEvent struct {
	ID       string  `json:"id"`
	URL      string  `json:"url"`
	Duration float64 `json:"duration"`
	Size     int64   `json:"size"`
	Message  string  `json:"message"`
}

// generateV2 requests a file through the SSE endpoint and waits for the
// completed event.
func (c *Client) generateV2(ctx context.Context, text string, opts Options) (*Generation, error) {
	req, err := c.newJSONRequest(ctx, http.MethodPost, c.baseURL+TTSPath,
		newSynthesisRequest(text, opts), "text/event-stream", true)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(c.streamHTTP, req, "Generate")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var gen *Generation
	err = readEvents(resp.Body, func(event, data string) (bool, error) {
		switch event {
		case "completed":
			var ev completedEvent
			if err := json.Unmarshal([]byte(data), &ev); err != nil {
				return true, pkgerrors.New(pkgerrors.KindProtocol, component, "Generate", err).
					WithMessage("malformed completed event: " + err.Error())
			}
			gen = &Generation{
				AudioURL:     ev.URL,
				GenerationID: ev.ID,
				Message:      ev.Message,
				Duration:     ev.Duration,
				Size:         ev.Size,
			}
			return true, nil
		case "error":
			msg, code := httputil.ExtractErrorMessage([]byte(data))
			if msg == "" {
				msg = "generation failed"
			}
			e := pkgerrors.Newf(pkgerrors.KindProvider, component, "Generate", "%s", msg)
			if code != "" {
				e = e.WithCode(code)
			}
			return true, e
		}
		return false, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, pkgerrors.New(pkgerrors.KindCanceled, component, "Generate", ctx.Err())
		}
		return nil, err
	}
	if gen == nil {
		return nil, pkgerrors.Newf(pkgerrors.KindProtocol, component, "Generate",
			"event stream ended without a completed event")
	}
	return gen, nil
}

// readEvents parses a text/event-stream body, calling fn once per event
// until fn reports done or the body ends.
func readEvents(r io.Reader, fn func(event, data string) (done bool, err error)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	event := ""
	var data []string
	dispatch := func() (bool, error) {
		if len(data) == 0 {
			event = ""
			return false, nil
		}
		name := event
		if name == "" {
			name = "message"
		}
		payload := strings.Join(data, "\n")
		event, data = "", data[:0]
		return fn(name, payload)
	}

	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			if done, err := dispatch(); done || err != nil {
				return err
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			event = value
		case "data":
			data = append(data, value)
		}
	}
	if err := sc.Err(); err != nil {
		return pkgerrors.New(pkgerrors.KindTransport, component, "ReadEvents", err)
	}
	_, err := dispatch()
	return err
}

// streamV2 opens a direct audio stream from the v2 streaming endpoint.
func (c *Client) streamV2(ctx context.Context, text string, opts Options) (io.ReadCloser, error) {
	co := opts.common()
	req, err := c.newJSONRequest(ctx, http.MethodPost, c.baseURL+TTSStreamPath,
		newSynthesisRequest(text, opts), co.OutputFormat.mimeType(), true)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(c.streamHTTP, req, "Stream")
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
