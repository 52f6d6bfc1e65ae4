package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
)

func TestTextOutput(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text")

	Info("cache hit", KeyItemID, "abc123", KeyBytes, 42)

	out := buf.String()
	if !strings.Contains(out, "[INFO] cache hit") {
		t.Errorf("missing level/message in output: %q", out)
	}
	if !strings.Contains(out, "item_id=abc123") || !strings.Contains(out, "bytes=42") {
		t.Errorf("missing attributes in output: %q", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "WARN", "text")

	Debug("should not appear")
	Info("should not appear either")
	Warn("warning shown")

	out := buf.String()
	if strings.Contains(out, "should not appear") {
		t.Errorf("filtered levels leaked into output: %q", out)
	}
	if !strings.Contains(out, "warning shown") {
		t.Errorf("warn record missing: %q", out)
	}
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "json")

	Info("batch fetched", KeyCount, 5)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not valid JSON: %v (%q)", err, buf.String())
	}
	if record["msg"] != "batch fetched" {
		t.Errorf("unexpected msg field: %v", record["msg"])
	}
	if record["count"] != float64(5) {
		t.Errorf("unexpected count field: %v", record["count"])
	}
}

func TestContextFields(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text")

	ctx := WithContext(context.Background(), &LogContext{
		Session: "feed-1",
		ItemID:  "item-9",
		Region:  "video",
	})
	InfoCtx(ctx, "download complete")

	out := buf.String()
	for _, want := range []string{"session=feed-1", "item_id=item-9", "region=video"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in output: %q", want, out)
		}
	}
}

func TestContextFields_NoContext(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text")

	InfoCtx(context.Background(), "plain record")

	if !strings.Contains(buf.String(), "plain record") {
		t.Errorf("record missing: %q", buf.String())
	}
}

func TestSetLevel_Invalid(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text")

	SetLevel("NOISY") // ignored
	Info("still info")

	if !strings.Contains(buf.String(), "still info") {
		t.Errorf("level should be unchanged after invalid SetLevel")
	}
}

func TestConcurrentLogging(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				Info("concurrent", KeyIndex, j)
			}
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 16*50 {
		t.Errorf("expected %d lines, got %d", 16*50, len(lines))
	}
}
