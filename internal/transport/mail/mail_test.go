package mail

import (
	"context"
	"strings"
	"testing"
)

func TestHeaderBytes(t *testing.T) {
	m := New(Config{FromHeader: "GovTribe <noreply@example.test>"})
	h := m.newHeader()
	h["To"] = []string{"alice@example.test"}
	h["Subject"] = []string{"Update: Widget Study"}

	out := string(toBytes(h))
	for _, want := range []string{
		"From: GovTribe <noreply@example.test>\r\n",
		"To: alice@example.test\r\n",
		"Subject: Update: Widget Study\r\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("header missing %q in %q", want, out)
		}
	}
	if !strings.HasSuffix(out, "\r\n\r\n") {
		t.Fatalf("headers must end with a blank line")
	}
}

func TestSendHonorsCanceledContext(t *testing.T) {
	m := New(Config{Server: "smtp.example.test", Port: 587})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Send(ctx, "a@example.test", "s", "b", nil); err == nil {
		t.Fatalf("expected context error")
	}
}
