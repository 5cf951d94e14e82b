package browser

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/playwright-community/playwright-go"

	"go-lead-radar/internal/logging"
)

// ScreenshotDebugger saves full page captures when a page does not look the
// way an adapter expects.
type ScreenshotDebugger struct {
	outputDir string
	logger    logging.Logger
}

func NewScreenshotDebugger(dir string, logger logging.Logger) *ScreenshotDebugger {
	if dir == "" {
		dir = filepath.Join("logs", "screenshots")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &ScreenshotDebugger{outputDir: dir, logger: logger}
}

// Capture writes <name>_<timestamp>.png and returns its path.
func (s *ScreenshotDebugger) Capture(page playwright.Page, name, message string) (string, error) {
	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create screenshot dir: %w", err)
	}
	filename := fmt.Sprintf("%s_%s.png", name, time.Now().Format("2006-01-02_15-04-05"))
	path := filepath.Join(s.outputDir, filename)

	if _, err := page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	}); err != nil {
		s.logger.WithError(err).Warn("⚠️ Failed to capture screenshot")
		return "", err
	}
	s.logger.WithField("path", path).Infof("📸 %s", message)
	return path, nil
}
