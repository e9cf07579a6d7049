package obs

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":          "/",
		"/metrics":  "/metrics",
		"/companies/0d3c1f8e-7d7a-4a57-9a53-2a4b0c1e9f10":                "/companies/:id",
		"/companies/0d3c1f8e-7d7a-4a57-9a53-2a4b0c1e9f10/cases/42":       "/companies/:id/cases/:id",
		"/companies/0d3c1f8e-7d7a-4a57-9a53-2a4b0c1e9f10/cases?limit=10": "/companies/:id/cases",
		"/audit/01HZY3Q6T2W8K9V0N1M2P3R4S5":                              "/audit/:id",
		"/auth/login":                                                    "/auth/login",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestInitStampsBuildInfo(t *testing.T) {
	Init("v1.0.0", "abc123")
	Init("v1.0.1", "def456")

	if got := testutil.CollectAndCount(buildInfo); got != 1 {
		t.Fatalf("expected one build_info series, got %d", got)
	}
	if got := testutil.ToFloat64(buildInfo.WithLabelValues("v1.0.1", "def456")); got != 1 {
		t.Fatalf("expected current build labelled 1, got %v", got)
	}
}
