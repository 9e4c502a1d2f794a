package display

import (
	"bytes"
	"strings"
	"testing"
)

func TestProgressBar_Update(t *testing.T) {
	var buf bytes.Buffer
	pb := NewProgressBar(&buf, nil)

	pb.Update(50, "Copying a.txt")
	out := buf.String()

	if !strings.HasPrefix(out, "\r\033[K[") {
		t.Errorf("Expected the line to be cleared first, got %q", out)
	}
	filled := strings.Count(out, "█")
	empty := strings.Count(out, "░")
	if filled != empty || filled+empty != 26 {
		t.Errorf("Expected a half-filled 26 column bar, got %d filled and %d empty", filled, empty)
	}
	if !strings.HasSuffix(out, "  50% Copying a.txt") {
		t.Errorf("Unexpected bar %q", out)
	}
}

func TestProgressBar_Clamps(t *testing.T) {
	var buf bytes.Buffer
	pb := NewProgressBar(&buf, nil)

	pb.Update(150, "")
	if pb.Percent() != 100 {
		t.Errorf("Expected 100, got %d", pb.Percent())
	}
	pb.Update(-3, "")
	if pb.Percent() != 0 {
		t.Errorf("Expected 0, got %d", pb.Percent())
	}
}

func TestProgressBar_KeepsMessage(t *testing.T) {
	var buf bytes.Buffer
	pb := NewProgressBar(&buf, nil)

	pb.Update(10, "Counting files...")
	buf.Reset()
	pb.Update(20, "")
	if !strings.HasSuffix(buf.String(), "Counting files...") {
		t.Errorf("Expected previous message to be kept, got %q", buf.String())
	}
}

func TestProgressBar_ClearAndFinish(t *testing.T) {
	var buf bytes.Buffer
	pb := NewProgressBar(&buf, nil)

	pb.Clear()
	pb.Finish()
	if buf.Len() != 0 {
		t.Errorf("Expected no output before the first draw, got %q", buf.String())
	}

	pb.Update(100, "done")
	pb.Finish()
	if !strings.HasSuffix(buf.String(), "done\n") {
		t.Errorf("Expected Finish to end the line, got %q", buf.String())
	}
}

func TestColorSystem_PlainForNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	cs := NewColorSystem(&buf, DarkColorTheme())

	if cs.IsColorSupported() {
		t.Error("Expected colors to be disabled for a buffer")
	}
	if got := cs.Sprintf(ColorRed, "%d files", 3); got != "3 files" {
		t.Errorf("Expected plain text, got %q", got)
	}
	if cs.Theme() != DarkColorTheme() {
		t.Error("Expected the requested theme")
	}
}

func TestGetThemeByName(t *testing.T) {
	if GetThemeByName("light") != LightColorTheme() {
		t.Error("Expected light theme")
	}
	if GetThemeByName("none") != PlainTextTheme() {
		t.Error("Expected plain theme")
	}
	if GetThemeByName("unknown") != DarkColorTheme() {
		t.Error("Expected dark theme as default")
	}
}
