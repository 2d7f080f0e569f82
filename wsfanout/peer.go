//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package wsfanout

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mcpsentinel/sentinel/internal/logx"
)

// peer is one connected dashboard. Its queue is drained by a dedicated
// writer goroutine; the data path never touches conn directly, so a slow
// or dead dashboard can never back-pressure event delivery.
type peer struct {
	conn   *websocket.Conn
	queue  chan []byte
	closed chan struct{}
	once   sync.Once

	writeDeadline time.Duration
	logger        logx.SLogger
}

func newPeer(conn *websocket.Conn, queueSize int, writeDeadline time.Duration, logger logx.SLogger) *peer {
	return &peer{
		conn:          conn,
		queue:         make(chan []byte, queueSize),
		closed:        make(chan struct{}),
		writeDeadline: writeDeadline,
		logger:        logger,
	}
}

// offer enqueues data without blocking. A full queue means the peer is
// too slow to keep up; the peer is dropped rather than allowed to stall
// delivery to everyone else. offer never sends on queue once the peer
// is closed, so it never races close's cleanup.
func (p *peer) offer(data []byte) {
	select {
	case <-p.closed:
		return
	default:
	}
	select {
	case p.queue <- data:
	case <-p.closed:
	default:
		p.logger.Info("wsPeerQueueFull")
		p.close()
	}
}

// writePump drains the queue to the underlying connection until the
// peer is closed or a write fails/deadline expires.
func (p *peer) writePump() {
	defer p.close()
	for {
		select {
		case <-p.closed:
			return
		case data := <-p.queue:
			if err := p.conn.SetWriteDeadline(time.Now().Add(p.writeDeadline)); err != nil {
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				p.logger.Info("wsPeerWriteFailed", slog.Any("err", err))
				return
			}
		}
	}
}

// readPump discards every inbound frame; peers have no control channel.
// It exists only to notice when the peer goes away, since
// gorilla/websocket requires a read loop to surface close frames and
// connection errors.
func (p *peer) readPump() {
	defer p.close()
	for {
		if _, _, err := p.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// close is idempotent: writePump, readPump, and the server's own
// shutdown path may all race to close the same peer.
func (p *peer) close() {
	p.once.Do(func() {
		close(p.closed)
		p.conn.Close()
	})
}
