package server

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"testing"

	"kestrel/internal/pipeline"
	"kestrel/internal/store"
)

func TestAppendFetchRoundTrip(t *testing.T) {
	s, _ := setupTestServer(t)
	body := "Subject: hi\r\n\r\nHello"
	out := runSession(t, s,
		"A1 LOGIN test test\r\n"+
			"A2 CREATE INBOX\r\n"+
			fmt.Sprintf("A3 APPEND INBOX {%d}\r\n%s\r\n", len(body), body)+
			"A4 SELECT INBOX\r\n"+
			"A5 FETCH 1 BODY[]\r\n")

	if !strings.Contains(out, "+ \r\n") {
		t.Errorf("Expected continuation prompt, got %q", out)
	}
	if !strings.Contains(out, "A3 OK APPEND completed [UID 1]") {
		t.Errorf("Expected APPEND OK with uid, got %q", out)
	}
	if !strings.Contains(out, fmt.Sprintf("* 1 FETCH (BODY[] {%d})\r\n%s\r\n", len(body), body)) {
		t.Errorf("Expected body literal in FETCH response, got %q", out)
	}
	if !strings.Contains(out, "A5 OK FETCH completed") {
		t.Errorf("Expected FETCH OK, got %q", out)
	}
}

func TestAppendAssignsSequentialUIDs(t *testing.T) {
	s, _ := setupTestServer(t)
	out := runSession(t, s,
		"A1 LOGIN test test\r\n"+
			"A2 CREATE INBOX\r\n"+
			"A3 APPEND INBOX {3}\r\none\r\n"+
			"A4 APPEND INBOX {3}\r\ntwo\r\n")
	if !strings.Contains(out, "A3 OK APPEND completed [UID 1]") {
		t.Errorf("Expected first uid 1, got %q", out)
	}
	if !strings.Contains(out, "A4 OK APPEND completed [UID 2]") {
		t.Errorf("Expected second uid 2, got %q", out)
	}
}

func TestAppendWithoutLiteral(t *testing.T) {
	s, _ := setupTestServer(t)
	out := runSession(t, s,
		"A1 LOGIN test test\r\n"+
			"A2 CREATE INBOX\r\n"+
			"A3 APPEND INBOX nolIteral\r\n")
	if !strings.Contains(out, "A3 BAD APPEND requires a literal size") {
		t.Errorf("Expected non-literal APPEND to be rejected, got %q", out)
	}
}

func TestAppendToAbsentMailbox(t *testing.T) {
	s, _ := setupTestServer(t)
	out := runSession(t, s,
		"A1 LOGIN test test\r\n"+
			"A2 APPEND Nope {3}\r\nhey\r\n")
	if !strings.Contains(out, "A2 BAD APPEND failed") {
		t.Errorf("Expected APPEND to absent mailbox to fail, got %q", out)
	}
}

func TestAppendWithFlags(t *testing.T) {
	s, st := setupTestServer(t)
	out := runSession(t, s,
		"A1 LOGIN test test\r\n"+
			"A2 CREATE INBOX\r\n"+
			"A3 APPEND INBOX (\\Seen) {3}\r\nhey\r\n")
	if !strings.Contains(out, "A3 OK APPEND completed [UID 1]") {
		t.Errorf("Expected flagged APPEND to succeed, got %q", out)
	}

	msg, ok := st.GetMessage("test", "INBOX", 1)
	if !ok {
		t.Fatal("Expected message to be stored")
	}
	if len(msg.Flags) != 1 || msg.Flags[0] != `\Seen` {
		t.Errorf("Expected \\Seen flag stored, got %v", msg.Flags)
	}
}

func TestFetchUID(t *testing.T) {
	s, _ := setupTestServer(t)
	out := runSession(t, s,
		"A1 LOGIN test test\r\n"+
			"A2 CREATE INBOX\r\n"+
			"A3 APPEND INBOX {3}\r\nhey\r\n"+
			"A4 SELECT INBOX\r\n"+
			"A5 FETCH 1 UID\r\n")
	if !strings.Contains(out, "* 1 FETCH (UID 1)") {
		t.Errorf("Expected UID fetch line, got %q", out)
	}
	if !strings.Contains(out, "A5 OK FETCH completed") {
		t.Errorf("Expected FETCH OK, got %q", out)
	}
}

func TestFetchUnsupportedItem(t *testing.T) {
	s, _ := setupTestServer(t)
	out := runSession(t, s,
		"A1 LOGIN test test\r\n"+
			"A2 CREATE INBOX\r\n"+
			"A3 SELECT INBOX\r\n"+
			"A4 FETCH 1 ENVELOPE\r\n")
	if !strings.Contains(out, "A4 BAD FETCH failed: unsupported item ENVELOPE") {
		t.Errorf("Expected unsupported-item BAD, got %q", out)
	}
	if strings.Contains(out, "A4 OK") {
		t.Errorf("Unsupported item must not produce a tagged OK, got %q", out)
	}
}

func TestFetchMissingMessage(t *testing.T) {
	s, _ := setupTestServer(t)
	out := runSession(t, s,
		"A1 LOGIN test test\r\n"+
			"A2 CREATE INBOX\r\n"+
			"A3 SELECT INBOX\r\n"+
			"A4 FETCH 7 BODY[]\r\n")
	if !strings.Contains(out, "A4 BAD FETCH failed: no such message") {
		t.Errorf("Expected missing-message BAD, got %q", out)
	}
}

func TestSearch(t *testing.T) {
	s, st := setupTestServer(t)
	out := runSession(t, s,
		"A1 LOGIN test test\r\n"+
			"A2 CREATE INBOX\r\n"+
			"A3 APPEND INBOX {3}\r\none\r\n"+
			"A4 APPEND INBOX {3}\r\ntwo\r\n"+
			"A5 SELECT INBOX\r\n"+
			"A6 SEARCH\r\n"+
			"A7 SEARCH UNSEEN\r\n")

	if !strings.Contains(out, "* SEARCH 1 2\r\n") {
		t.Errorf("Expected default ALL search to list both uids, got %q", out)
	}
	// Both messages are unseen so far.
	if !strings.Contains(out, "A7 OK SEARCH completed") {
		t.Errorf("Expected UNSEEN search OK, got %q", out)
	}

	if !st.UpdateFlags("test", "INBOX", []int64{1}, []string{`\Seen`}, store.FlagsAdd) {
		t.Fatal("Failed to mark message seen")
	}
	out = runSession(t, s,
		"B1 LOGIN test test\r\n"+
			"B2 SELECT INBOX\r\n"+
			"B3 SEARCH UNSEEN\r\n")
	if !strings.Contains(out, "* SEARCH 2\r\n") {
		t.Errorf("Expected only unseen uid 2, got %q", out)
	}
}

func TestSearchUnsupportedCriteria(t *testing.T) {
	s, _ := setupTestServer(t)
	out := runSession(t, s,
		"A1 LOGIN test test\r\n"+
			"A2 CREATE INBOX\r\n"+
			"A3 SELECT INBOX\r\n"+
			"A4 SEARCH BEFORE 1-Jan-2020\r\n")
	if !strings.Contains(out, "A4 BAD SEARCH failed: unsupported criteria BEFORE") {
		t.Errorf("Expected unsupported-criteria BAD, got %q", out)
	}
}

type alwaysFailProcessor struct{}

func (alwaysFailProcessor) Name() string { return "alwaysfail" }
func (alwaysFailProcessor) Process(ctx pipeline.Context) (pipeline.Context, error) {
	return pipeline.Context{}, errors.New("boom")
}

func TestAppendSurvivesFailingProcessor(t *testing.T) {
	s, st := setupTestServer(t)
	s.pipeline = pipeline.New(log.New(io.Discard, "", 0))
	s.pipeline.Add(alwaysFailProcessor{})

	out := runSession(t, s,
		"A1 LOGIN test test\r\n"+
			"A2 CREATE INBOX\r\n"+
			"A3 APPEND INBOX {5}\r\nhello\r\n")
	if !strings.Contains(out, "A3 OK APPEND completed [UID 1]") {
		t.Errorf("Expected append to survive a failing processor, got %q", out)
	}

	msg, ok := st.GetMessage("test", "INBOX", 1)
	if !ok {
		t.Fatal("Expected message to be stored")
	}
	if string(msg.Content) != "hello" {
		t.Errorf("Expected pre-failure content stored, got %q", msg.Content)
	}
}

func TestAppendRunsPipeline(t *testing.T) {
	s, st := setupTestServer(t)
	s.pipeline.Add(&pipeline.StampProcessor{Server: "mx1"})

	runSession(t, s,
		"A1 LOGIN test test\r\n"+
			"A2 CREATE INBOX\r\n"+
			"A3 APPEND INBOX {5}\r\nhello\r\n")

	msg, ok := st.GetMessage("test", "INBOX", 1)
	if !ok {
		t.Fatal("Expected message to be stored")
	}
	if string(msg.Content) != "X-Processed-By: mx1\r\nhello" {
		t.Errorf("Expected stamped content, got %q", msg.Content)
	}
}
