package sentence

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// DefaultFlushInterval is how long combined sentences may wait for more text
// after a chunk was emitted.
const DefaultFlushInterval = time.Second

// Delta is one increment of a live text source. A non-nil Err ends the input.
type Delta struct {
	Text string
	Err  error
}

// Chunk is one unit of text for synthesis. Index counts from zero in emission
// order. A chunk with a non-nil Err is the last one.
type Chunk struct {
	Index int
	Text  string
	Err   error
}

// Config tunes Aggregate.
type Config struct {
	MaxLength     int
	DesiredLength int
	FlushInterval time.Duration
}

// DefaultConfig returns the default aggregation limits.
func DefaultConfig() Config {
	return Config{
		MaxLength:     LineMaxLength,
		DesiredLength: DesiredLineLength,
		FlushInterval: DefaultFlushInterval,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxLength <= 0 {
		c.MaxLength = d.MaxLength
	}
	if c.DesiredLength <= 0 || c.DesiredLength > c.MaxLength {
		c.DesiredLength = min(d.DesiredLength, c.MaxLength)
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = d.FlushInterval
	}
	return c
}

// Aggregate turns a live text source into sentence-sized chunks. The first
// complete sentence is emitted on its own; later sentences are combined up to
// DesiredLength, never beyond MaxLength. Combined text is flushed at most
// FlushInterval after the later of the last emission and its first sentence.
// When in closes, combined text and then any unterminated remainder (given a
// trailing period) are emitted and the output closes. An input error is
// forwarded as the final chunk. Canceling ctx closes the output.
func Aggregate(ctx context.Context, in <-chan Delta, cfg Config) <-chan Chunk {
	out := make(chan Chunk)
	a := &aggregator{cfg: cfg.withDefaults(), out: out}
	go a.run(ctx, in)
	return out
}

// AggregateReader is Aggregate over a byte stream. Multi-byte runes split
// across reads are reassembled.
func AggregateReader(ctx context.Context, r io.Reader, cfg Config) <-chan Chunk {
	deltas := make(chan Delta)
	go func() {
		defer close(deltas)
		send := func(d Delta) bool {
			select {
			case deltas <- d:
				return true
			case <-ctx.Done():
				return false
			}
		}

		buf := make([]byte, 4096)
		var carry []byte
		for {
			n, err := r.Read(buf)
			if n > 0 {
				data := append(carry, buf[:n]...)
				cut := completeUTF8(data)
				carry = append([]byte(nil), data[cut:]...)
				if cut > 0 && !send(Delta{Text: string(data[:cut])}) {
					return
				}
			}
			if errors.Is(err, io.EOF) {
				if len(carry) > 0 {
					send(Delta{Text: string(carry)})
				}
				return
			}
			if err != nil {
				send(Delta{Err: err})
				return
			}
		}
	}()
	return Aggregate(ctx, deltas, cfg)
}

// completeUTF8 returns the length of the longest prefix of b that does not
// end inside a multi-byte rune.
func completeUTF8(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if utf8.FullRune(b[i:]) {
				return len(b)
			}
			return i
		}
	}
	return len(b)
}

type aggregator struct {
	cfg Config
	out chan<- Chunk

	pending     string
	combined    []string
	combinedLen int
	sentFirst   bool
	index       int
}

func (a *aggregator) run(ctx context.Context, in <-chan Delta) {
	defer close(a.out)

	var timer *time.Timer
	var timerC <-chan time.Time
	arm := func() {
		if timer != nil {
			timer.Stop()
		}
		timer = time.NewTimer(a.cfg.FlushInterval)
		timerC = timer.C
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case <-timerC:
			timerC = nil
			emitted, ok := a.flushCombined(ctx)
			if !ok {
				return
			}
			if emitted {
				arm()
			}

		case d, open := <-in:
			if !open {
				a.finish(ctx)
				return
			}
			if d.Err != nil {
				if _, ok := a.flushCombined(ctx); ok {
					a.send(ctx, Chunk{Err: d.Err})
				}
				return
			}
			a.pending += d.Text
			emitted, ok := a.drain(ctx)
			if !ok {
				return
			}
			// Combined text always has a flush pending.
			if emitted || (timerC == nil && len(a.combined) > 0) {
				arm()
			}
		}
	}
}

// drain moves every complete sentence out of pending.
func (a *aggregator) drain(ctx context.Context) (emitted, ok bool) {
	complete, rest := cutComplete(a.pending)
	if complete == "" {
		return false, true
	}
	a.pending = rest

	for _, s := range segment(normalize(complete)) {
		e, ok := a.addSentence(ctx, s)
		if !ok {
			return emitted, false
		}
		emitted = emitted || e
	}
	return emitted, true
}

func (a *aggregator) addSentence(ctx context.Context, s string) (emitted, ok bool) {
	parts := []string{s}
	if runeLen(s) > a.cfg.MaxLength {
		var err error
		if parts, err = splitLong(s, a.cfg.MaxLength); err != nil {
			a.send(ctx, Chunk{Err: err})
			return false, false
		}
	}

	for _, p := range parts {
		if !a.sentFirst {
			a.sentFirst = true
			if !a.emit(ctx, p) {
				return emitted, false
			}
			emitted = true
			continue
		}

		n := runeLen(p)
		if a.combinedLen > 0 && a.combinedLen+1+n > a.cfg.MaxLength {
			e, ok := a.flushCombined(ctx)
			if !ok {
				return emitted, false
			}
			emitted = emitted || e
		}
		if a.combinedLen > 0 {
			a.combinedLen++
		}
		a.combined = append(a.combined, p)
		a.combinedLen += n

		if a.combinedLen >= a.cfg.DesiredLength {
			if _, ok := a.flushCombined(ctx); !ok {
				return emitted, false
			}
			emitted = true
		}
	}
	return emitted, true
}

func (a *aggregator) flushCombined(ctx context.Context) (emitted, ok bool) {
	if len(a.combined) == 0 {
		return false, true
	}
	text := strings.Join(a.combined, " ")
	a.combined = a.combined[:0]
	a.combinedLen = 0
	return true, a.emit(ctx, text)
}

// finish flushes combined text, then the unterminated remainder.
func (a *aggregator) finish(ctx context.Context) {
	if _, ok := a.flushCombined(ctx); !ok {
		return
	}

	segs := segment(normalize(a.pending))
	a.pending = ""
	if len(segs) == 0 {
		return
	}
	last := []rune(segs[len(segs)-1])
	end := len(last)
	for end > 0 && isCloser(last[end-1]) {
		end--
	}
	if end == 0 || !isTerminator(last[end-1]) {
		segs[len(segs)-1] = string(last) + "."
	}

	lines, err := pack(segs, a.cfg.MaxLength)
	if err != nil {
		a.send(ctx, Chunk{Err: err})
		return
	}
	for _, l := range lines {
		if !a.emit(ctx, l) {
			return
		}
	}
}

func (a *aggregator) emit(ctx context.Context, text string) bool {
	ok := a.send(ctx, Chunk{Index: a.index, Text: text})
	a.index++
	return ok
}

func (a *aggregator) send(ctx context.Context, c Chunk) bool {
	if c.Err != nil {
		c.Index = a.index
	}
	select {
	case a.out <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

// cutComplete splits s after its last sentence boundary that is followed by
// whitespace. A boundary at the very end is not final yet: more terminators
// or closers may still arrive.
func cutComplete(s string) (complete, rest string) {
	runes := []rune(s)
	last := -1
	for i := 0; i < len(runes); {
		if !isTerminator(runes[i]) {
			i++
			continue
		}
		_, closeEnd, ok := boundaryAt(runes, i, false)
		if ok {
			last = closeEnd
		}
		i = max(closeEnd, i+1)
	}
	if last < 0 {
		return "", s
	}
	return string(runes[:last]), strings.TrimLeftFunc(string(runes[last:]), unicode.IsSpace)
}
