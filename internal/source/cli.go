package source

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/ntars/tars/internal/bus"
)

const cliSeparator = "|||"

// pollDatabaseCLI is the cooperative fallback when the pure-Go sqlite
// driver cannot open the database (typically a Full-Disk-Access style
// permission failure). It shells out to a sqlite3-compatible CLI binary
// and parses pipe-delimited output instead of using database/sql.
func (m *Multiplexer) pollDatabaseCLI(ctx context.Context) ([]bus.InboundMessage, error) {
	if m.cfg.CLIBinary == "" {
		return nil, fmt.Errorf("no CLI fallback binary configured")
	}

	m.mu.Lock()
	watermark := m.watermark
	m.mu.Unlock()

	dbMax, err := m.latestRowIDCLI(ctx)
	if err != nil {
		return nil, err
	}
	if dbMax < watermark-resetRecoveryWindow {
		slog.Warn("source: ROWID reset detected (CLI path), rewinding watermark", "db_max", dbMax, "watermark", watermark)
		watermark = dbMax - 10
		m.mu.Lock()
		m.watermark = watermark
		m.mu.Unlock()
	}

	query := fmt.Sprintf(`SELECT message.ROWID, message.text
		FROM message
		JOIN handle ON message.handle_id = handle.ROWID
		WHERE message.ROWID > %d
		  AND handle.id = '%s'
		  AND message.is_from_me = 0
		  AND message.associated_message_type = 0
		ORDER BY message.ROWID ASC`, watermark, escapeSQLLiteral(m.cfg.OwnerAddress))

	output, err := m.cliQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	var out []bus.InboundMessage
	maxSeen := watermark

	for _, line := range strings.Split(strings.TrimRight(output, "\n"), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, cliSeparator, 2)
		if len(parts) != 2 {
			continue
		}
		id, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			continue
		}
		if id > maxSeen {
			maxSeen = id
		}
		if m.isDuplicate(id) {
			continue
		}

		body := parts[1]
		if body == "" {
			if decoded, ok := m.readAttributedBodyCLI(ctx, id); ok {
				body = decoded
			}
		}
		if body == "" {
			continue
		}

		m.markSeen(id)
		out = append(out, bus.InboundMessage{ID: id, Text: body, Source: bus.SourceExternal})
	}

	m.mu.Lock()
	if maxSeen > m.watermark {
		m.watermark = maxSeen
	}
	m.mu.Unlock()

	return out, nil
}

func (m *Multiplexer) latestRowIDCLI(ctx context.Context) (int64, error) {
	output, err := m.cliQuery(ctx, "SELECT MAX(ROWID) FROM message")
	if err != nil {
		return 0, err
	}
	output = strings.TrimSpace(output)
	if output == "" {
		return 0, nil
	}
	return strconv.ParseInt(output, 10, 64)
}

// readAttributedBodyCLI queries the attributedBody BLOB for a single
// message as a hex dump (sqlite3's default BLOB rendering), since the CLI
// cannot hand back raw bytes directly.
func (m *Multiplexer) readAttributedBodyCLI(ctx context.Context, id int64) (string, bool) {
	query := fmt.Sprintf(`SELECT hex(attributedBody) FROM message WHERE ROWID = %d`, id)
	output, err := m.cliQuery(ctx, query)
	if err != nil {
		return "", false
	}
	output = strings.TrimSpace(output)
	if output == "" {
		return "", false
	}
	blob, err := hexDecode(output)
	if err != nil {
		return "", false
	}
	return DecodeAttributedBody(blob)
}

func (m *Multiplexer) cliQuery(ctx context.Context, query string) (string, error) {
	cmd := exec.CommandContext(ctx, m.cfg.CLIBinary, "-separator", cliSeparator, m.cfg.DatabasePath, query)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("cli query failed: %w: %s", err, stderr.String())
	}
	return stdout.String(), nil
}

func escapeSQLLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func hexDecode(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("odd-length hex string")
	}
	out := make([]byte, len(s)/2)
	for i := 0; i < len(out); i++ {
		b, err := strconv.ParseUint(s[i*2:i*2+2], 16, 8)
		if err != nil {
			return nil, err
		}
		out[i] = byte(b)
	}
	return out, nil
}
