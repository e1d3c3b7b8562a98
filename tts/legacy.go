package tts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"golang.org/x/time/rate"

	"github.com/playht/playht-go-sdk/logger"
	pkgerrors "github.com/playht/playht-go-sdk/pkg/errors"
)

// Legacy engine paths.
const (
	ConvertPath       = "/api/v1/convert"
	ArticleStatusPath = "/api/v1/articleStatus"
)

// Generation is the durable result of a file-based synthesis.
type Generation struct {
	AudioURL     string
	GenerationID string
	Message      string
	Duration     float64
	Size         int64
}

type convertRequest struct {
	Content        []string `json:"content"`
	Voice          string   `json:"voice"`
	GlobalSpeed    string   `json:"globalSpeed,omitempty"`
	NarrationStyle string   `json:"narrationStyle,omitempty"`
	TrimSilence    bool     `json:"trimSilence,omitempty"`
}

type convertResponse struct {
	Status          string `json:"status"`
	TranscriptionID string `json:"transcriptionId"`
	Error           string `json:"error,omitempty"`
}

type articleStatusResponse struct {
	Converted    bool   `json:"converted"`
	AudioURL     string `json:"audioUrl"`
	Message      string `json:"message"`
	Error        bool   `json:"error"`
	ErrorMessage string `json:"errorMessage"`
}

// generateLegacy submits text to the legacy engine and polls until the
// audio file is ready.
func (c *Client) generateLegacy(ctx context.Context, text string, o *PlayHT1Options) (*Generation, error) {
	body := convertRequest{
		Content:        []string{text},
		Voice:          o.Voice,
		NarrationStyle: o.NarrationStyle,
		TrimSilence:    o.TrimSilence,
	}
	if o.Speed != 0 {
		body.GlobalSpeed = fmt.Sprintf("%d%%", int(o.Speed*100))
	}

	req, err := c.newJSONRequest(ctx, http.MethodPost, c.baseURL+ConvertPath, body, "application/json", true)
	if err != nil {
		return nil, err
	}
	var conv convertResponse
	if err := c.doJSON(req, "Convert", &conv); err != nil {
		return nil, err
	}
	if conv.TranscriptionID == "" {
		msg := conv.Error
		if msg == "" {
			msg = "convert response has no transcription ID"
		}
		return nil, pkgerrors.Newf(pkgerrors.KindProvider, component, "Convert", "%s", msg)
	}

	return c.pollArticle(ctx, conv.TranscriptionID)
}

func (c *Client) pollArticle(ctx context.Context, id string) (*Generation, error) {
	limiter := rate.NewLimiter(rate.Every(c.pollInterval), 1)
	statusURL := c.baseURL + ArticleStatusPath + "?" + url.Values{"transcriptionId": {id}}.Encode()

	for attempt := 1; attempt <= c.pollAttempts; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil, pkgerrors.New(pkgerrors.KindCanceled, component, "ArticleStatus", err)
		}

		req, err := c.newJSONRequest(ctx, http.MethodGet, statusURL, nil, "application/json", true)
		if err != nil {
			return nil, err
		}
		var st articleStatusResponse
		if err := c.doJSON(req, "ArticleStatus", &st); err != nil {
			return nil, err
		}

		switch {
		case st.Error:
			msg := st.ErrorMessage
			if msg == "" {
				msg = st.Message
			}
			return nil, pkgerrors.Newf(pkgerrors.KindProvider, component, "ArticleStatus", "%s", msg).
				WithCode("CONVERSION_FAILED")
		case st.Converted:
			return &Generation{AudioURL: st.AudioURL, GenerationID: id, Message: st.Message}, nil
		}
		logger.DebugContext(ctx, "legacy conversion pending", "transcription_id", id, "attempt", attempt)
	}

	return nil, pkgerrors.Newf(pkgerrors.KindMaxRetriesExceeded, component, "ArticleStatus",
		"audio for %s not ready after %d polls", id, c.pollAttempts)
}

// download opens the audio body at a generated URL.
func (c *Client) download(ctx context.Context, audioURL string) (io.ReadCloser, error) {
	req, err := c.newJSONRequest(ctx, http.MethodGet, audioURL, nil, "", false)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(c.streamHTTP, req, "Download")
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
