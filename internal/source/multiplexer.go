// Package source implements the Message Source Multiplexer (spec.md §4.6):
// a totally-ordered stream of InboundMessages drawn from a polled external
// messaging database and an in-process push queue, with ROWID-based
// deduplication and a cooperative CLI fallback when the database driver
// cannot open the store directly.
package source

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ntars/tars/internal/bus"
)

const dedupCapacity = 1000

// Config controls how the Multiplexer polls the external database.
type Config struct {
	DatabasePath string        // path to the external message store (e.g. chat.db)
	OwnerAddress string        // handle.id to accept messages from
	PollInterval time.Duration // how often to poll the database
	CLIBinary    string        // fallback sqlite3-compatible CLI binary, "" disables fallback
}

// Multiplexer produces InboundMessages from the configured database and an
// in-process push queue, in ROWID order per source.
type Multiplexer struct {
	cfg Config
	bus *bus.Bus

	db       *sql.DB
	cliOnly  bool // true once the db driver has failed to open and the CLI fallback took over

	mu        sync.Mutex
	watermark int64
	dedup     []int64
	dedupSet  map[int64]struct{}

	push chan bus.InboundMessage

	stop chan struct{}
}

// New creates a Multiplexer. It starts no goroutine; polling happens inside
// WaitForMessage.
func New(cfg Config, b *bus.Bus) *Multiplexer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Multiplexer{
		cfg:      cfg,
		bus:      b,
		dedupSet: make(map[int64]struct{}),
		push:     make(chan bus.InboundMessage, 256),
		stop:     make(chan struct{}),
	}
}

// Open connects to the database, falling back to nil (CLI-only mode) if the
// pure-Go driver cannot open it — a recoverable path per spec.md §4.6.
func (m *Multiplexer) Open() error {
	db, err := sql.Open("sqlite", "file:"+m.cfg.DatabasePath+"?mode=ro")
	if err != nil {
		slog.Warn("source: sqlite driver open failed, falling back to CLI", "error", err)
		m.cliOnly = true
		return nil
	}
	if err := db.Ping(); err != nil {
		slog.Warn("source: sqlite driver ping failed, falling back to CLI", "error", err)
		m.cliOnly = true
		return nil
	}
	m.db = db

	max, err := m.latestRowID(context.Background())
	if err != nil {
		slog.Warn("source: could not read initial watermark, falling back to CLI", "error", err)
		m.cliOnly = true
		return nil
	}
	m.watermark = max
	return nil
}

// Push enqueues a dashboard/tunnel/dev-originated message for the next poll
// tick to pick up, non-blockingly (a full queue drops this message with a
// log line rather than blocking the producer).
func (m *Multiplexer) Push(msg bus.InboundMessage) {
	select {
	case m.push <- msg:
	default:
		slog.Warn("source: push queue full, dropping message")
	}
}

// Close closes the stop channel (once) and the database handle, if any.
func (m *Multiplexer) Close() {
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
	if m.db != nil {
		m.db.Close()
	}
}

// WaitForMessage blocks up to timeout, polling at cfg.PollInterval, and
// returns the concatenated text of everything observed in one poll tick as
// soon as either source yields something.
func (m *Multiplexer) WaitForMessage(ctx context.Context, timeout time.Duration) (string, bool) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		texts := m.pollOnce(ctx)
		if len(texts) > 0 {
			return strings.Join(texts, "\n"), true
		}
		if time.Now().After(deadline) {
			return "", false
		}
		select {
		case <-ctx.Done():
			return "", false
		case <-ticker.C:
		}
	}
}

// CheckForKill peeks at pending push-queue messages without consuming the
// external database's watermark, reporting whether any contains a
// configured kill word (case-insensitive).
func (m *Multiplexer) CheckForKill(words []string) (bool, string) {
	pending := m.drainPush()
	// put them back so WaitForMessage still observes them
	for _, msg := range pending {
		m.push <- msg
	}
	for _, msg := range pending {
		lower := strings.ToLower(msg.Text)
		for _, w := range words {
			if strings.Contains(lower, strings.ToLower(w)) {
				return true, msg.Text
			}
		}
	}
	return false, ""
}

// pollOnce drains the push queue and polls the external database once,
// returning the text of every new message observed, in arrival order.
func (m *Multiplexer) pollOnce(ctx context.Context) []string {
	var texts []string

	for _, msg := range m.drainPush() {
		texts = append(texts, msg.Text)
	}

	dbMsgs, err := m.pollDatabase(ctx)
	if err != nil {
		slog.Warn("source: database poll failed", "error", err)
	}
	for _, msg := range dbMsgs {
		texts = append(texts, msg.Text)
	}

	return texts
}

func (m *Multiplexer) drainPush() []bus.InboundMessage {
	var out []bus.InboundMessage
	for {
		select {
		case msg := <-m.push:
			out = append(out, msg)
		default:
			return out
		}
	}
}
