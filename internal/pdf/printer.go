package pdf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Printer 把 HTML 打印成 PDF。浏览器在首次打印时启动，之后各任务共用，每次打印单独开一个页面。
type Printer struct {
	binPath string
	timeout time.Duration

	mu       sync.Mutex
	launch   *launcher.Launcher
	browser  *rod.Browser
	shutdown bool
}

// NewPrinter binPath 为空时按 PATH 查找 Chromium。
func NewPrinter(binPath string, timeout time.Duration) *Printer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Printer{binPath: binPath, timeout: timeout}
}

var errPrinterClosed = errors.New("pdf printer closed")

func (p *Printer) connect() (*rod.Browser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shutdown {
		return nil, errPrinterClosed
	}
	if p.browser != nil {
		return p.browser, nil
	}

	l := launcher.New().Headless(true).NoSandbox(true)
	if p.binPath != "" {
		l = l.Bin(p.binPath)
	} else if path, ok := launcher.LookPath(); ok {
		l = l.Bin(path)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("connect chromium: %w", err)
	}
	p.launch, p.browser = l, b
	return b, nil
}

// reset 丢弃已失效的浏览器，下次打印重新启动。
func (p *Printer) reset(b *rod.Browser) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.browser != b {
		return
	}
	_ = b.Close()
	p.launch.Cleanup()
	p.browser, p.launch = nil, nil
}

// Print 实现 worker.PDFPrinter。
func (p *Printer) Print(ctx context.Context, html string) ([]byte, error) {
	b, err := p.connect()
	if err != nil {
		return nil, err
	}

	page, err := b.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		p.reset(b)
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	data, err := render(page.Timeout(p.timeout), html)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func render(page *rod.Page, html string) ([]byte, error) {
	if err := page.SetDocumentContent(html); err != nil {
		return nil, fmt.Errorf("load html: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait for fonts and images: %w", err)
	}
	if err := (proto.EmulationSetEmulatedMedia{Media: "print"}).Call(page); err != nil {
		return nil, fmt.Errorf("emulate print media: %w", err)
	}

	stream, err := page.PDF(&proto.PagePrintToPDF{PrintBackground: true, PreferCSSPageSize: true})
	if err != nil {
		return nil, fmt.Errorf("print to pdf: %w", err)
	}
	defer stream.Close()
	return io.ReadAll(stream)
}

// Close 关闭浏览器。之后的 Print 调用返回错误。
func (p *Printer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shutdown = true
	if p.browser == nil {
		return nil
	}
	err := p.browser.Close()
	p.launch.Cleanup()
	p.browser, p.launch = nil, nil
	return err
}
