package i18n

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultCatalogHasConversationKeys(t *testing.T) {
	s := Default()
	keys := []string{
		"greeting", "no_text_error", "invalid_input", "invalid_url", "site_unreachable",
		"confirm_group", "empty_group", "member_list", "member_list_manual", "enter_pin", "invalid_pin",
		"window_open", "invalid_reading", "out_of_range", "submit_ok", "wrong_pin",
		"label.group.yes", "label.group.no", "label.pin_setup.done", "format.hour_token",
	}
	for _, k := range keys {
		if !s.Has(k) {
			t.Errorf("missing key %q", k)
		}
	}
	if s.Tag().String() != BaseLocale {
		t.Fatalf("tag = %s", s.Tag())
	}
}

func TestTextFormatsArgs(t *testing.T) {
	s := Default()
	got := s.Text("confirm_pin", "1234")
	if !strings.Contains(got, "<b>1234</b>") {
		t.Fatalf("confirm_pin = %q", got)
	}
	if s.Text("no.such.key") != "no.such.key" {
		t.Fatal("unknown key should render as itself")
	}
}

func TestUnknownLocaleFallsBackToBase(t *testing.T) {
	s, err := Load("de-CH", "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Tag().String() != BaseLocale {
		t.Fatalf("tag = %s", s.Tag())
	}
}

func TestOverrideFileWins(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "strings.yaml")
	if err := os.WriteFile(file, []byte("label.group.yes: \"Ja\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Load("en", file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := s.Text("label.group.yes"); got != "Ja" {
		t.Fatalf("override not applied: %q", got)
	}
	if !s.Has("greeting") {
		t.Fatal("base keys must survive override")
	}
}
