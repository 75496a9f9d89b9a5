// Package screenshot captures page screenshots of discovered hosts through a
// headless Chrome instance.
package screenshot

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// Capture loads rawURL in headless Chrome and writes a full-page screenshot
// under dir. It returns the path of the saved image.
func Capture(ctx context.Context, rawURL, dir string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating screenshot directory: %w", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing screenshot target: %w", err)
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, chromedp.DefaultExecAllocatorOptions[:]...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()
	runCtx, cancel := context.WithTimeout(browserCtx, timeout)
	defer cancel()

	var buf []byte
	err = chromedp.Run(runCtx,
		chromedp.Navigate(rawURL),
		chromedp.Sleep(2*time.Second),
		chromedp.CaptureScreenshot(&buf),
	)
	if err != nil {
		return "", fmt.Errorf("capturing %s: %w", rawURL, err)
	}

	name := fmt.Sprintf("%s_%d.png",
		strings.ReplaceAll(u.Hostname(), ".", "_"), time.Now().Unix())
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return "", fmt.Errorf("saving screenshot: %w", err)
	}
	return path, nil
}
