package env

import "testing"

func TestGetFallsBack(t *testing.T) {
	t.Setenv("JOHO_TEST_VALUE", "")
	if got := Get("JOHO_TEST_VALUE", "json"); got != "json" {
		t.Fatalf("expected fallback, got %q", got)
	}
	t.Setenv("JOHO_TEST_VALUE", " console ")
	if got := Get("JOHO_TEST_VALUE", "json"); got != "console" {
		t.Fatalf("expected trimmed value, got %q", got)
	}
}

func TestBool(t *testing.T) {
	t.Setenv("JOHO_TEST_FLAG", "true")
	if !Bool("JOHO_TEST_FLAG", false) {
		t.Fatal("expected true")
	}
	t.Setenv("JOHO_TEST_FLAG", "nope")
	if Bool("JOHO_TEST_FLAG", false) {
		t.Fatal("malformed value should fall back")
	}
}
