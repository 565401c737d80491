package browser

import (
	"context"
	"strings"
	"testing"

	"github.com/chromedp/chromedp"
)

func TestFrameExpression(t *testing.T) {
	expr := frameExpression("setCurrentFrame", 12)
	if !strings.Contains(expr, `window["setCurrentFrame"]`) {
		t.Fatalf("expected quoted entry point lookup, got %s", expr)
	}
	if !strings.Contains(expr, "await fn(12)") {
		t.Fatalf("expected frame index to be passed, got %s", expr)
	}
	if !strings.Contains(expr, "return false") {
		t.Fatalf("expected missing entry point to resolve false")
	}
}

func TestFrameExpression_QuotesEntryPoint(t *testing.T) {
	expr := frameExpression(`x"];alert(1);//`, 0)
	if !strings.Contains(expr, `window["x\"];alert(1);//"]`) {
		t.Fatalf("expected entry point to be escaped, got %s", expr)
	}
}

func TestAllocatorOptions(t *testing.T) {
	base := len(chromedp.DefaultExecAllocatorOptions)

	plain := NewLauncher(Options{Width: 400, Height: 300}, nil)
	if got := len(plain.AllocatorOptions()); got != base+3 {
		t.Fatalf("expected %d options, got %d", base+3, got)
	}

	full := NewLauncher(Options{Width: 400, Height: 300, NoSandbox: true, ExecPath: "/usr/bin/chromium"}, nil)
	if got := len(full.AllocatorOptions()); got != base+6 {
		t.Fatalf("expected %d options, got %d", base+6, got)
	}
}

func TestNewLauncher_Defaults(t *testing.T) {
	l := NewLauncher(Options{}, nil)
	if l.opts.EntryPoint != defaultEntryPoint || l.opts.LaunchTimeout != defaultLaunchTimeout {
		t.Fatalf("unexpected defaults %+v", l.opts)
	}
}

func TestLaunch_RejectsInvalidViewport(t *testing.T) {
	l := NewLauncher(Options{Width: 0, Height: 300}, nil)
	if _, err := l.Launch(context.Background()); err == nil {
		t.Fatalf("expected error for zero width")
	}
}
