package source

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/ntars/tars/internal/bus"
)

const resetRecoveryWindow = 1000

// latestRowID reads the current max ROWID in the message table.
func (m *Multiplexer) latestRowID(ctx context.Context) (int64, error) {
	var max sql.NullInt64
	row := m.db.QueryRowContext(ctx, `SELECT MAX(ROWID) FROM message`)
	if err := row.Scan(&max); err != nil {
		return 0, err
	}
	if !max.Valid {
		return 0, nil
	}
	return max.Int64, nil
}

// pollDatabase reads every message newer than the current watermark from
// the owner's handle, not from self, with associated_message_type = 0,
// decoding attributedBody when the text column is empty. It deduplicates
// against the bounded FIFO and advances the watermark. A ROWID reset
// (db max far below the watermark) resets the watermark to (db_max - 10).
func (m *Multiplexer) pollDatabase(ctx context.Context) ([]bus.InboundMessage, error) {
	if m.cliOnly {
		return m.pollDatabaseCLI(ctx)
	}
	if m.db == nil {
		return nil, nil
	}

	m.mu.Lock()
	watermark := m.watermark
	m.mu.Unlock()

	dbMax, err := m.latestRowID(ctx)
	if err != nil {
		return nil, err
	}
	if dbMax < watermark-resetRecoveryWindow {
		slog.Warn("source: ROWID reset detected, rewinding watermark", "db_max", dbMax, "watermark", watermark)
		watermark = dbMax - 10
		m.mu.Lock()
		m.watermark = watermark
		m.mu.Unlock()
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT message.ROWID, message.text, message.attributedBody
		FROM message
		JOIN handle ON message.handle_id = handle.ROWID
		WHERE message.ROWID > ?
		  AND handle.id = ?
		  AND message.is_from_me = 0
		  AND message.associated_message_type = 0
		ORDER BY message.ROWID ASC
	`, watermark, m.cfg.OwnerAddress)
	if err != nil {
		return nil, fmt.Errorf("poll query: %w", err)
	}
	defer rows.Close()

	var out []bus.InboundMessage
	var maxSeen = watermark

	for rows.Next() {
		var id int64
		var text sql.NullString
		var blob []byte
		if err := rows.Scan(&id, &text, &blob); err != nil {
			return out, err
		}
		if id > maxSeen {
			maxSeen = id
		}

		if m.isDuplicate(id) {
			continue
		}

		body := text.String
		if body == "" {
			if decoded, ok := DecodeAttributedBody(blob); ok {
				body = decoded
			}
		}
		if body == "" {
			continue
		}

		m.markSeen(id)
		out = append(out, bus.InboundMessage{ID: id, Text: body, Source: bus.SourceExternal})
	}
	if err := rows.Err(); err != nil {
		return out, err
	}

	m.mu.Lock()
	if maxSeen > m.watermark {
		m.watermark = maxSeen
	}
	m.mu.Unlock()

	return out, nil
}

// isDuplicate reports whether id has already been surfaced, per the bounded
// FIFO dedup window.
func (m *Multiplexer) isDuplicate(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.dedupSet[id]
	return ok
}

// markSeen records id as surfaced, evicting the oldest entry once the FIFO
// exceeds dedupCapacity.
func (m *Multiplexer) markSeen(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.dedupSet[id]; ok {
		return
	}
	m.dedup = append(m.dedup, id)
	m.dedupSet[id] = struct{}{}
	if len(m.dedup) > dedupCapacity {
		oldest := m.dedup[0]
		m.dedup = m.dedup[1:]
		delete(m.dedupSet, oldest)
	}
}
