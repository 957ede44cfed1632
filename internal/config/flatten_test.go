package config

import (
	"testing"
)

func TestFlatten_Nested(t *testing.T) {
	m := map[string]any{
		"backend": map[string]any{
			"app_name": "feynmancraft_adk",
			"user_id":  "user",
		},
		"log_level": "info",
	}
	got := Flatten(m)
	if got["backend.app_name"] != "feynmancraft_adk" {
		t.Errorf("expected backend.app_name=feynmancraft_adk, got %v", got["backend.app_name"])
	}
	if got["backend.user_id"] != "user" {
		t.Errorf("expected backend.user_id=user, got %v", got["backend.user_id"])
	}
	if got["log_level"] != "info" {
		t.Errorf("expected log_level=info, got %v", got["log_level"])
	}
	if len(got) != 3 {
		t.Errorf("expected 3 keys, got %d", len(got))
	}
}

func TestFlatten_DeeplyNested(t *testing.T) {
	m := map[string]any{
		"a": map[string]any{
			"b": map[string]any{
				"c": "deep",
			},
		},
	}
	got := Flatten(m)
	if got["a.b.c"] != "deep" {
		t.Errorf("expected a.b.c=deep, got %v", got["a.b.c"])
	}
	if len(got) != 1 {
		t.Errorf("expected 1 key, got %d", len(got))
	}
}

func TestFlatten_EmptyNestedMap(t *testing.T) {
	got := Flatten(map[string]any{"http": map[string]any{}})
	if len(got) != 0 {
		t.Errorf("expected 0 keys, got %d", len(got))
	}
}

func TestUnflatten_Nested(t *testing.T) {
	flat := map[string]any{
		"transport.poll_interval_ms": 2000.0,
		"transport.stream_enabled":   true,
		"data_dir":                   "/tmp/fw",
	}
	got := Unflatten(flat)

	transport, ok := got["transport"].(map[string]any)
	if !ok {
		t.Fatalf("expected transport to be map, got %T", got["transport"])
	}
	if transport["poll_interval_ms"] != 2000.0 {
		t.Errorf("unexpected poll interval %v", transport["poll_interval_ms"])
	}
	if transport["stream_enabled"] != true {
		t.Errorf("unexpected stream flag %v", transport["stream_enabled"])
	}
	if got["data_dir"] != "/tmp/fw" {
		t.Errorf("unexpected data_dir %v", got["data_dir"])
	}
}

func TestUnflatten_ReplacesScalarParent(t *testing.T) {
	got := Unflatten(map[string]any{
		"health":          "broken",
		"health.schedule": "@every 10s",
	})
	health, ok := got["health"].(map[string]any)
	if !ok {
		// Map iteration order decides which write wins; the nested form
		// must win whenever the nested key is written last.
		if got["health"] != "broken" {
			t.Fatalf("unexpected health value %v", got["health"])
		}
		return
	}
	if health["schedule"] != "@every 10s" {
		t.Errorf("unexpected schedule %v", health["schedule"])
	}
}

func TestRoundTrip_FlattenUnflatten(t *testing.T) {
	original := map[string]any{
		"data_dir": "/home/test/.feynwatch",
		"backend": map[string]any{
			"base_url":   "http://localhost:8000",
			"events_url": "http://localhost:8001/events",
		},
		"telegram": map[string]any{
			"token": "bot-token-abc",
		},
	}

	restored := Unflatten(Flatten(original))

	if restored["data_dir"] != original["data_dir"] {
		t.Errorf("data_dir mismatch: %v != %v", restored["data_dir"], original["data_dir"])
	}
	backend := restored["backend"].(map[string]any)
	if backend["base_url"] != "http://localhost:8000" || backend["events_url"] != "http://localhost:8001/events" {
		t.Errorf("backend mismatch: %v", backend)
	}
	tg := restored["telegram"].(map[string]any)
	if tg["token"] != "bot-token-abc" {
		t.Errorf("telegram.token mismatch: %v", tg["token"])
	}
}

func TestMaskSecrets(t *testing.T) {
	got := MaskSecrets(map[string]any{
		"backend.base_url": "http://localhost:8000",
		"telegram.token":   "123456:ABCdefGHIjkl",
	})
	if got["backend.base_url"] != "http://localhost:8000" {
		t.Errorf("non-secret changed: %v", got["backend.base_url"])
	}
	if got["telegram.token"] != "***Ijkl" {
		t.Errorf("expected telegram.token=***Ijkl, got %v", got["telegram.token"])
	}
}

func TestMaskSecrets_ShortAndEmpty(t *testing.T) {
	if got := MaskSecrets(map[string]any{"telegram.token": ""}); got["telegram.token"] != "" {
		t.Errorf("expected empty token to remain empty, got %v", got["telegram.token"])
	}
	if got := MaskSecrets(map[string]any{"telegram.token": "ab"}); got["telegram.token"] != "***ab" {
		t.Errorf("expected ***ab, got %v", got["telegram.token"])
	}
	if got := MaskSecrets(map[string]any{"telegram.token": "abcd"}); got["telegram.token"] != "***abcd" {
		t.Errorf("expected ***abcd, got %v", got["telegram.token"])
	}
}

func TestIsSecretKey(t *testing.T) {
	if !IsSecretKey("telegram.token") {
		t.Error("telegram.token should be secret")
	}
	if IsSecretKey("backend.base_url") {
		t.Error("backend.base_url should not be secret")
	}
}
