package observability

import "testing"

func TestParseHeaders(t *testing.T) {
	got := parseHeaders(" api-key = abc , broken, =x, tenant=t1 ")
	if len(got) != 2 || got["api-key"] != "abc" || got["tenant"] != "t1" {
		t.Fatalf("headers=%v", got)
	}
	if parseHeaders("") != nil {
		t.Fatalf("expected nil for empty input")
	}
}

func TestSampleRatio(t *testing.T) {
	t.Setenv("OTEL_SAMPLER_RATIO", "")
	if got := sampleRatio(); got != 1 {
		t.Fatalf("default ratio=%v", got)
	}
	t.Setenv("OTEL_SAMPLER_RATIO", "0.25")
	if got := sampleRatio(); got != 0.25 {
		t.Fatalf("ratio=%v", got)
	}
	t.Setenv("OTEL_SAMPLER_RATIO", "7")
	if got := sampleRatio(); got != 1 {
		t.Fatalf("clamped ratio=%v", got)
	}
}

func TestInitOTelDisabledReturnsNoopShutdown(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "")
	shutdown := InitOTel(t.Context(), nil, OtelConfig{ServiceName: "coursegen-test"})
	if shutdown == nil {
		t.Fatalf("nil shutdown")
	}
	if err := shutdown(t.Context()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
