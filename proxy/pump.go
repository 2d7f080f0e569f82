//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/bassosimone/nop/blob/main/observeconn.go
// Adapted from: https://github.com/bassosimone/nop/blob/main/cancelwatch.go
//

package proxy

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mcpsentinel/sentinel/event"
	"github.com/mcpsentinel/sentinel/internal/errclass"
	"github.com/mcpsentinel/sentinel/internal/logx"
	"github.com/mcpsentinel/sentinel/wire"
)

// DefaultObservationBuffer is the observation channel's default capacity
// before the drop-oldest policy kicks in.
const DefaultObservationBuffer = 16384

// Pump copies bytes from Src to Dst unmodified, tee-ing complete lines
// into Observations without ever slowing the copy. One Pump handles one
// direction; the supervisor runs two (agent->child, child->agent)
// concurrently.
//
// All fields must be set before calling Run and not mutated concurrently
// with it.
type Pump struct {
	// Name labels this pump in logs (e.g. "agent->child").
	Name string

	// Direction tags every [Observation] this pump produces.
	Direction event.Direction

	// Src is read from until EOF or ctx is done.
	Src io.Reader

	// Dst receives every byte read from Src, unmodified and immediately.
	Dst io.Writer

	// SrcCloser, if set, is closed when ctx is done, unblocking a Read
	// in progress (os.Stdin and os.Pipe's read end satisfy io.Closer).
	SrcCloser io.Closer

	// Observations receives one [Observation] per complete line. A full
	// channel drops its oldest pending entry rather than blocking.
	Observations chan Observation

	// MaxLineBytes bounds line length before a forced cut. Zero means
	// [wire.DefaultMaxLineBytes].
	MaxLineBytes int

	// Logger is used for pump lifecycle and drop-rate logging.
	Logger logx.SLogger

	// ErrClassifier classifies the terminal Run error for structured logging.
	ErrClassifier errclass.Classifier

	// Now returns the current time, for [Observation.At] and logging.
	Now func() time.Time

	stats Stats
}

// Stats returns this pump's counters.
func (p *Pump) Stats() *Stats { return &p.stats }

func (p *Pump) maxLineBytes() int {
	if p.MaxLineBytes > 0 {
		return p.MaxLineBytes
	}
	return wire.DefaultMaxLineBytes
}

func (p *Pump) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Pump) logger() logx.SLogger {
	if p.Logger != nil {
		return p.Logger
	}
	return logx.Default()
}

func (p *Pump) errClassifier() errclass.Classifier {
	if p.ErrClassifier != nil {
		return p.ErrClassifier
	}
	return errclass.Default
}

// Run copies Src to Dst until EOF, ctx cancellation, or a read/write
// error, delivering observations as it goes. It returns the terminal
// error from io.Copy (io.EOF is never returned; io.Copy maps it to nil).
func (p *Pump) Run(ctx context.Context) error {
	if p.SrcCloser != nil {
		stop := context.AfterFunc(ctx, func() {
			p.SrcCloser.Close()
		})
		defer stop()
	}

	t0 := p.now()
	p.logger().Info("pumpStart", slog.String("pump", p.Name), slog.Time("t", t0))

	tee := newLineTee(p.maxLineBytes(), func(line []byte, oversized bool) {
		p.deliver(line, oversized)
	})

	n, err := io.Copy(io.MultiWriter(p.Dst, tee), p.Src)
	tee.flush()
	atomic.StoreUint64(&p.stats.bytesForwarded, uint64(n))

	p.logger().Info("pumpDone",
		slog.String("pump", p.Name),
		slog.Int64("bytesForwarded", n),
		slog.Any("err", err),
		slog.String("errClass", p.errClassifier().Classify(err)),
		slog.Time("t0", t0),
		slog.Time("t", p.now()),
	)
	return err
}

// deliver copies the line and hands it to the observation channel. No
// decoding happens here: the pump stays a pure byte path, and the
// pipeline goroutine parses the copy at its own pace.
func (p *Pump) deliver(raw []byte, oversized bool) {
	atomic.AddUint64(&p.stats.linesObserved, 1)

	p.offer(Observation{
		Direction: p.Direction,
		Raw:       append([]byte(nil), raw...),
		Oversized: oversized,
		At:        p.now(),
	})
}

// offer delivers obs to Observations, dropping the oldest pending entry
// instead of blocking when the channel is full. The copy loop never
// waits on the observation path.
func (p *Pump) offer(obs Observation) {
	for {
		select {
		case p.Observations <- obs:
			return
		default:
		}
		select {
		case <-p.Observations:
			atomic.AddUint64(&p.stats.observationsDropped, 1)
			p.logger().Debug("observationDropped", slog.String("pump", p.Name))
		default:
			// Consumer drained concurrently between the two selects; retry.
		}
	}
}
