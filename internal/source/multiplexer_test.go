package source

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ntars/tars/internal/bus"
)

func newTestDB(t *testing.T) (*sql.DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chat.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	schema := `
		CREATE TABLE handle (ROWID INTEGER PRIMARY KEY, id TEXT);
		CREATE TABLE message (
			ROWID INTEGER PRIMARY KEY,
			text TEXT,
			is_from_me INTEGER,
			date INTEGER,
			attributedBody BLOB,
			associated_message_type INTEGER,
			handle_id INTEGER
		);
		INSERT INTO handle (ROWID, id) VALUES (1, '+15551234567');
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return db, path
}

func insertMessage(t *testing.T, db *sql.DB, rowid int64, text string, fromMe bool) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO message (ROWID, text, is_from_me, date, associated_message_type, handle_id) VALUES (?, ?, ?, 0, 0, 1)`,
		rowid, text, boolToInt(fromMe))
	if err != nil {
		t.Fatalf("insert message: %v", err)
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func TestPollDatabaseSkipsDuplicatesAndOwnMessages(t *testing.T) {
	db, path := newTestDB(t)
	defer db.Close()

	insertMessage(t, db, 1, "hello from owner", false)
	insertMessage(t, db, 2, "self reply, should be skipped", true)

	m := New(Config{DatabasePath: path, OwnerAddress: "+15551234567", PollInterval: time.Millisecond}, bus.New())
	m.db = db
	m.watermark = 0

	msgs, err := m.pollDatabase(context.Background())
	if err != nil {
		t.Fatalf("pollDatabase error: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Text != "hello from owner" {
		t.Fatalf("expected 1 message from owner, got %+v", msgs)
	}

	// Second poll must not re-surface ROWID 1.
	msgs2, err := m.pollDatabase(context.Background())
	if err != nil {
		t.Fatalf("pollDatabase error: %v", err)
	}
	if len(msgs2) != 0 {
		t.Fatalf("expected no duplicate messages on second poll, got %+v", msgs2)
	}
}

func TestPollDatabaseDecodesAttributedBodyWhenTextEmpty(t *testing.T) {
	db, path := newTestDB(t)
	defer db.Close()

	payload := "typed-stream body"
	blob := buildBlob(nil, []byte{byte(len(payload))}, payload)
	_, err := db.Exec(`INSERT INTO message (ROWID, text, is_from_me, date, attributedBody, associated_message_type, handle_id) VALUES (1, '', 0, 0, ?, 0, 1)`, blob)
	if err != nil {
		t.Fatalf("insert message: %v", err)
	}

	m := New(Config{DatabasePath: path, OwnerAddress: "+15551234567", PollInterval: time.Millisecond}, bus.New())
	m.db = db

	msgs, err := m.pollDatabase(context.Background())
	if err != nil {
		t.Fatalf("pollDatabase error: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Text != payload {
		t.Fatalf("expected decoded attributedBody text, got %+v", msgs)
	}
}

func TestMarkSeenEvictsOldestPastCapacity(t *testing.T) {
	m := New(Config{DatabasePath: "unused"}, bus.New())
	for i := int64(0); i < dedupCapacity+10; i++ {
		m.markSeen(i)
	}
	if len(m.dedup) != dedupCapacity {
		t.Fatalf("expected dedup FIFO capped at %d, got %d", dedupCapacity, len(m.dedup))
	}
	if m.isDuplicate(0) {
		t.Fatal("expected oldest entry to have been evicted")
	}
	if !m.isDuplicate(dedupCapacity + 9) {
		t.Fatal("expected most recent entry to still be tracked")
	}
}

func TestCheckForKillPeeksWithoutConsuming(t *testing.T) {
	m := New(Config{DatabasePath: "unused"}, bus.New())
	m.Push(bus.InboundMessage{Text: "please STOP now"})

	found, text := m.CheckForKill([]string{"stop"})
	if !found || text != "please STOP now" {
		t.Fatalf("expected kill word match, got (%v, %q)", found, text)
	}

	// message must still be present for a subsequent real poll to consume
	select {
	case msg := <-m.push:
		if msg.Text != "please STOP now" {
			t.Fatalf("expected message preserved in queue, got %q", msg.Text)
		}
	default:
		t.Fatal("expected push queue to still contain the peeked message")
	}
}
