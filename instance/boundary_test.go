package instance

import (
	"strings"
	"testing"

	"wgserv"
)

func TestBoundaryOperations(t *testing.T) {
	h := Create()
	defer Destroy(h)

	if msg := Run(h); msg != "configuration required before run" {
		t.Fatalf("Run() on fresh instance = %q", msg)
	}
	if msg := SetConfiguration(h, "mtu: [1, 2]\n"); msg == "" {
		t.Fatal("SetConfiguration() accepted malformed text")
	}
	if msg := SetConfiguration(h, SampleConfiguration()); msg != "" {
		t.Fatalf("SetConfiguration(sample) = %q, want success", msg)
	}

	Destroy(h)
	Destroy(h)
	if msg := SetConfiguration(h, SampleConfiguration()); !strings.Contains(msg, "unknown instance handle") {
		t.Fatalf("SetConfiguration() after destroy = %q", msg)
	}
}

func TestSampleConfigurationParses(t *testing.T) {
	t.Parallel()

	cfg, err := wgserv.Parse(SampleConfiguration())
	if err != nil {
		t.Fatalf("Parse(sample) error = %v", err)
	}
	if cfg.PublicKey() != wgserv.Sample().PublicKey() {
		t.Fatal("sample configuration round trip changed the key")
	}
}
