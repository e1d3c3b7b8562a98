package tts

import (
	"context"
	"io"

	"github.com/playht/playht-go-sdk/congestion"
	"github.com/playht/playht-go-sdk/logger"
	"github.com/playht/playht-go-sdk/proto/playhtv1"
	"github.com/playht/playht-go-sdk/streaming"
)

// Connection handle roles for the RPC engine.
const (
	rolePrimary  = "turbo"
	rolePremium  = "turbo-premium"
	roleCustom   = "turbo-custom"
	roleFallback = "turbo-fallback"
)

func (o *TurboOptions) algorithm(def congestion.Algorithm) congestion.Algorithm {
	if o.Congestion != nil {
		return *o.Congestion
	}
	return def
}

func f32(v *float64) *float32 {
	if v == nil {
		return nil
	}
	f := float32(*v)
	return &f
}

func turboParams(text string, o *TurboOptions) *playhtv1.TtsParams {
	p := &playhtv1.TtsParams{
		Text:          []string{text},
		Voice:         o.Voice,
		Quality:       o.Quality.proto(),
		Format:        o.OutputFormat.proto(),
		Temperature:   f32(o.Temperature),
		TopP:          f32(o.TopP),
		VoiceGuidance: f32(o.VoiceGuidance),
		StyleGuidance: f32(o.StyleGuidance),
		TextGuidance:  f32(o.TextGuidance),
	}
	if o.SampleRate != 0 {
		sr := int32(o.SampleRate)
		p.SampleRate = &sr
	}
	if o.Speed != 0 {
		s := float32(o.Speed)
		p.Speed = &s
	}
	if o.Seed != nil {
		s := int64(*o.Seed)
		p.Seed = &s
	}
	return p
}

// rpcChunk opens the RPC stream for one chunk. onSettled is handed to the
// source and fires on first audio or when the call ends.
func (c *Client) rpcChunk(o *TurboOptions) chunkGenerator {
	algo := o.algorithm(c.congestion)
	return func(ctx context.Context, text string, onSettled func()) (io.ReadCloser, error) {
		l, err := c.leases.Get(ctx, c.key(PlayHT2Turbo))
		if err != nil {
			return nil, err
		}
		raw, err := l.MarshalBinary()
		if err != nil {
			return nil, err
		}

		address, role := l.InferenceAddress(), rolePrimary
		if o.Quality == QualityPremium && l.PremiumInferenceAddress() != "" {
			address, role = l.PremiumInferenceAddress(), rolePremium
		}
		var fallback *streaming.Target
		if o.CustomAddress != "" {
			if o.FallbackEnabled {
				conn, err := c.handle(roleFallback).Get(address)
				if err != nil {
					return nil, err
				}
				fallback = &streaming.Target{Name: address, Conn: conn}
			}
			address, role = o.CustomAddress, roleCustom
		}

		conn, err := c.handle(role).Get(address)
		if err != nil {
			return nil, err
		}
		logger.StreamEvent(ctx, string(PlayHT2Turbo), "open", "target", address, "fallback", fallback != nil)

		return streaming.Open(ctx, streaming.SourceConfig{
			Request:    &playhtv1.TtsRequest{Params: turboParams(text, o), Lease: raw},
			Primary:    streaming.Target{Name: address, Conn: conn},
			Fallback:   fallback,
			Congestion: algo,
			Engine:     string(PlayHT2Turbo),
			OnSettled:  onSettled,
		}), nil
	}
}
