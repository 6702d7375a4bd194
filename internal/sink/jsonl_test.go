package sink

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"sfbridge/internal/protocol"
)

func readJSONLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var out []map[string]any
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1<<20), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("bad JSONL line %q: %v", line, err)
		}
		out = append(out, rec)
	}
	return out
}

func TestLoggerWritesRecords(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(dir)
	if err != nil {
		t.Fatal(err)
	}

	l.Offer("AP->STA", "/dev/ttyUSB0", protocol.Frame{
		Type:    protocol.TypeUDP,
		Conn:    5010,
		Port:    40000,
		Payload: []byte{0x01, 0x02},
	})
	l.Offer("STA->AP", "/dev/ttyUSB1", protocol.Frame{
		Type: protocol.TypeHello,
		Payload: []byte("STA"),
	})

	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	recs := readJSONLines(t, filepath.Join(dir, "bridge.jsonl"))
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}

	first := recs[0]
	if first["dir"] != "AP->STA" || first["dev"] != "/dev/ttyUSB0" {
		t.Fatalf("record = %v", first)
	}
	if first["type"] != "UDP" || first["conn"].(float64) != 5010 || first["port"].(float64) != 40000 {
		t.Fatalf("record = %v", first)
	}
	if first["len"].(float64) != 2 || first["payload_hex"] != "0102" {
		t.Fatalf("record = %v", first)
	}
	if recs[1]["type"] != "HELLO" {
		t.Fatalf("record = %v", recs[1])
	}
}

func TestLoggerCapsPayloadPreview(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(dir)
	if err != nil {
		t.Fatal(err)
	}

	l.Offer("AP->STA", "dev", protocol.Frame{
		Type:    protocol.TypeTCPData,
		Port:    7060,
		Payload: make([]byte, 4000),
	})
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	recs := readJSONLines(t, filepath.Join(dir, "bridge.jsonl"))
	if len(recs) != 1 {
		t.Fatalf("got %d records", len(recs))
	}
	if recs[0]["len"].(float64) != 4000 {
		t.Fatalf("len = %v", recs[0]["len"])
	}
	if hexLen := len(recs[0]["payload_hex"].(string)); hexLen != 2*payloadPreviewBytes {
		t.Fatalf("preview hex length = %d, want %d", hexLen, 2*payloadPreviewBytes)
	}
}

func TestLoggerOfferAfterCloseDoesNotPanic(t *testing.T) {
	l, err := NewLogger(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	l.Offer("AP->STA", "dev", protocol.Frame{Type: protocol.TypeLog})
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
}
