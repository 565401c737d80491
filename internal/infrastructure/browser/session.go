package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"framecast/internal/application/render"
	renderdomain "framecast/internal/domain/render"
)

const (
	defaultEntryPoint    = "setCurrentFrame"
	defaultLaunchTimeout = 30 * time.Second
	networkIdleEvent     = "networkIdle"
)

// Options configure the browser process and page.
type Options struct {
	ExecPath      string
	Width         int
	Height        int
	NoSandbox     bool
	EntryPoint    string
	Selector      string
	LaunchTimeout time.Duration
}

// Launcher starts headless Chrome sessions through chromedp.
type Launcher struct {
	opts   Options
	logger *zap.Logger
}

// NewLauncher creates a launcher with a fixed viewport.
func NewLauncher(opts Options, logger *zap.Logger) *Launcher {
	if opts.EntryPoint == "" {
		opts.EntryPoint = defaultEntryPoint
	}
	if opts.LaunchTimeout <= 0 {
		opts.LaunchTimeout = defaultLaunchTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Launcher{opts: opts, logger: logger}
}

// AllocatorOptions returns the Chrome flags used for every session.
func (l *Launcher) AllocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.WindowSize(l.opts.Width, l.opts.Height),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("force-device-scale-factor", "1"),
	)
	if l.opts.NoSandbox {
		opts = append(opts, chromedp.NoSandbox, chromedp.Flag("disable-setuid-sandbox", true))
	}
	if l.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.opts.ExecPath))
	}
	return opts
}

// Launch starts one browser process with one page. The session outlives ctx;
// only Close ends it.
func (l *Launcher) Launch(ctx context.Context) (render.Session, error) {
	if l.opts.Width <= 0 || l.opts.Height <= 0 {
		return nil, fmt.Errorf("invalid viewport %dx%d", l.opts.Width, l.opts.Height)
	}

	base := context.WithoutCancel(ctx)
	allocCtx, allocCancel := chromedp.NewExecAllocator(base, l.AllocatorOptions()...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(l.logger.Sugar().Debugf),
		chromedp.WithErrorf(l.logger.Sugar().Warnf),
	)

	s := &Session{
		ctx:        tabCtx,
		cancelTab:  tabCancel,
		cancelProc: allocCancel,
		entryPoint: l.opts.EntryPoint,
		selector:   l.opts.Selector,
		logger:     l.logger,
	}

	// The first Run allocates the browser and binds its lifetime to the
	// context it is given, so it must be the long-lived tab context.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(tabCtx) }()

	timer := time.NewTimer(l.opts.LaunchTimeout)
	defer timer.Stop()
	select {
	case err := <-started:
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("start browser: %w", err)
		}
	case <-timer.C:
		_ = s.Close()
		return nil, fmt.Errorf("start browser: %w", context.DeadlineExceeded)
	case <-ctx.Done():
		_ = s.Close()
		return nil, fmt.Errorf("start browser: %w", ctx.Err())
	}

	err := s.run(ctx, l.opts.LaunchTimeout,
		chromedp.EmulateViewport(int64(l.opts.Width), int64(l.opts.Height)),
		page.SetLifecycleEventsEnabled(true),
	)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("configure page: %w", err)
	}
	l.logger.Info("browser launched", zap.Int("width", l.opts.Width), zap.Int("height", l.opts.Height))
	return s, nil
}

// Session is one chromedp browser process and its single tab.
type Session struct {
	ctx        context.Context
	cancelTab  context.CancelFunc
	cancelProc context.CancelFunc
	entryPoint string
	selector   string
	logger     *zap.Logger

	closeOnce sync.Once
}

// Navigate loads url and waits for network idle or timeout.
func (s *Session) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	opCtx, cancel := s.scope(ctx, timeout)
	defer cancel()

	idle := make(chan struct{}, 1)
	chromedp.ListenTarget(opCtx, func(ev interface{}) {
		if e, ok := ev.(*page.EventLifecycleEvent); ok && e.Name == networkIdleEvent {
			select {
			case idle <- struct{}{}:
			default:
			}
		}
	})

	if err := chromedp.Run(opCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	select {
	case <-idle:
		return nil
	case <-opCtx.Done():
		return fmt.Errorf("navigate %s: waiting for network idle: %w", url, opCtx.Err())
	}
}

// SetFrame calls the page entry point with index and awaits its result.
func (s *Session) SetFrame(ctx context.Context, index int) error {
	opCtx, cancel := s.scope(ctx, 0)
	defer cancel()

	var present bool
	err := chromedp.Run(opCtx, chromedp.Evaluate(frameExpression(s.entryPoint, index), &present,
		func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		},
	))
	if err != nil {
		return fmt.Errorf("evaluate %s(%d): %w", s.entryPoint, index, err)
	}
	if !present {
		return fmt.Errorf("%w: window.%s", renderdomain.ErrEntryPointMissing, s.entryPoint)
	}
	return nil
}

// CaptureTo writes a PNG of the selected element, or of the viewport when no
// selector is configured.
func (s *Session) CaptureTo(ctx context.Context, path string) error {
	opCtx, cancel := s.scope(ctx, 0)
	defer cancel()

	var buf []byte
	action := chromedp.CaptureScreenshot(&buf)
	if s.selector != "" {
		action = chromedp.Screenshot(s.selector, &buf, chromedp.NodeVisible, chromedp.ByQuery)
	}
	if err := chromedp.Run(opCtx, action); err != nil {
		return fmt.Errorf("screenshot: %w", err)
	}
	if len(buf) == 0 {
		return errors.New("screenshot: empty image")
	}
	return os.WriteFile(path, buf, 0o644)
}

// Close terminates the browser process. Safe to call more than once and after
// the process has exited; a failed graceful shutdown is logged, and the
// process is killed regardless.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		cancelCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(s.ctx) }()
		var err error
		select {
		case err = <-done:
		case <-cancelCtx.Done():
			err = cancelCtx.Err()
		}
		s.cancelTab()
		s.cancelProc()
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Debug("graceful browser shutdown failed", zap.Error(err))
		}
		s.logger.Debug("browser closed")
	})
	return nil
}

func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	opCtx, cancel := s.scope(ctx, timeout)
	defer cancel()
	return chromedp.Run(opCtx, actions...)
}

// scope derives an operation context from the tab that also ends when the
// caller's ctx does.
func (s *Session) scope(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	var opCtx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		opCtx, cancel = context.WithTimeout(s.ctx, timeout)
	} else {
		opCtx, cancel = context.WithCancel(s.ctx)
	}
	if deadline, ok := ctx.Deadline(); ok {
		var deadlineCancel context.CancelFunc
		opCtx, deadlineCancel = context.WithDeadline(opCtx, deadline)
		inner := cancel
		cancel = func() {
			deadlineCancel()
			inner()
		}
	}
	stop := context.AfterFunc(ctx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}
}

func frameExpression(entryPoint string, index int) string {
	name := strconv.Quote(entryPoint)
	return fmt.Sprintf(`(async () => {
	const fn = window[%s];
	if (typeof fn !== "function") { return false; }
	await fn(%d);
	return true;
})()`, name, index)
}
