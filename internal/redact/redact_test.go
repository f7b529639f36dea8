package redact

import (
	"encoding/json"
	"net/url"
	"strings"
	"testing"
)

func TestHeaders(t *testing.T) {
	t.Parallel()

	in := map[string]string{
		"Authorization": "Bearer abc123",
		"Cookie":        "session=xyz",
		"Set-Cookie":    "session=xyz",
		"X-API-Key":     "key",
		"Content-Type":  "application/json",
		"Accept":        "*/*",
	}
	out := Headers(in)

	for _, name := range []string{"Authorization", "Cookie", "Set-Cookie", "X-API-Key"} {
		if out[name] != Sentinel {
			t.Fatalf("expected %s to be redacted, got %q", name, out[name])
		}
	}
	if out["Content-Type"] != "application/json" || out["Accept"] != "*/*" {
		t.Fatalf("expected benign headers to pass through: %v", out)
	}
	if in["Authorization"] != "Bearer abc123" {
		t.Fatalf("input map must not be mutated")
	}
}

func TestIsSensitiveField(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want bool
	}{
		{"password", true},
		{"PASSWORD", true},
		{"user_password", true},
		{"passwd", true},
		{"secret", true},
		{"client_secret", true},
		{"token", true},
		{"accessToken", true},
		{"creditcard", true},
		{"credit_card", true},
		{"cardNumber", true},
		{"card_number", true},
		{"cvv", true},
		{"cvc", true},
		{"ssn", true},
		{"social_security", true},
		{"socialSecurity", true},
		{"username", false},
		{"email", false},
		{"amount", false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsSensitiveField(tt.name); got != tt.want {
				t.Fatalf("IsSensitiveField(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestBodyRedactsNestedJSON(t *testing.T) {
	t.Parallel()

	body := `{"user":{"name":"alice","password":"hunter2","card":{"cardNumber":"4111111111111111","cvv":"123"}},"items":[{"token":"abc"}],"note":"ok"}`
	out := Body(&body)
	if out == nil {
		t.Fatal("expected non-nil result")
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(*out), &parsed); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	user := parsed["user"].(map[string]any)
	if user["password"] != Sentinel {
		t.Fatalf("expected password redacted, got %v", user["password"])
	}
	if user["name"] != "alice" {
		t.Fatalf("expected name preserved, got %v", user["name"])
	}
	card := user["card"].(map[string]any)
	if card["cardNumber"] != Sentinel || card["cvv"] != Sentinel {
		t.Fatalf("expected card fields redacted, got %v", card)
	}
	item := parsed["items"].([]any)[0].(map[string]any)
	if item["token"] != Sentinel {
		t.Fatalf("expected token redacted, got %v", item["token"])
	}
	if parsed["note"] != "ok" {
		t.Fatalf("expected note preserved, got %v", parsed["note"])
	}
}

func TestBodyRedactsSensitiveObjectValues(t *testing.T) {
	t.Parallel()

	// A sensitive key must redact its whole subtree, whatever the type.
	body := `{"credentials":{"token":{"value":"abc","expiry":123}}}`
	out := Body(&body)
	var parsed map[string]any
	if err := json.Unmarshal([]byte(*out), &parsed); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	creds := parsed["credentials"].(map[string]any)
	if creds["token"] != Sentinel {
		t.Fatalf("expected object value redacted, got %v", creds["token"])
	}
}

func TestBodyPassesThroughNonJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"plain text", "password=hunter2&user=alice"},
		{"html", "<html><body>password</body></html>"},
		{"scalar string", `"password"`},
		{"scalar number", "42"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			body := tt.body
			out := Body(&body)
			if out == nil || *out != tt.body {
				t.Fatalf("expected passthrough, got %v", out)
			}
		})
	}
}

func TestBodyNil(t *testing.T) {
	t.Parallel()

	if Body(nil) != nil {
		t.Fatal("expected nil in, nil out")
	}
}

func TestFormValues(t *testing.T) {
	t.Parallel()

	out := FormValues(url.Values{
		"username": {"alice"},
		"password": {"hunter2"},
		"tags":     {"a", "b"},
	})
	if out.Get("username") != "alice" || out.Get("password") != Sentinel {
		t.Fatalf("unexpected form redaction: %v", out)
	}
	if len(out["tags"]) != 2 {
		t.Fatalf("expected multi-valued field preserved, got %v", out["tags"])
	}
	if len(out["password"]) != 1 {
		t.Fatalf("expected sensitive field collapsed to a single sentinel, got %v", out["password"])
	}
}

func TestTruncateBody(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 200)
	out := TruncateBody(&long, 100)
	if out == nil {
		t.Fatal("expected non-nil result")
	}
	want := strings.Repeat("x", 100) + "... [truncated at 100 bytes]"
	if *out != want {
		t.Fatalf("unexpected truncation: %q", *out)
	}

	short := "hello"
	if got := TruncateBody(&short, 100); got == nil || *got != "hello" {
		t.Fatalf("expected short body unchanged, got %v", got)
	}

	exact := strings.Repeat("y", 100)
	if got := TruncateBody(&exact, 100); got == nil || *got != exact {
		t.Fatalf("expected exact-length body unchanged, got %v", got)
	}

	if TruncateBody(nil, 100) != nil {
		t.Fatal("expected nil in, nil out")
	}
}
