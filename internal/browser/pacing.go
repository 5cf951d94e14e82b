package browser

import (
	"context"
	"math/rand"
	"time"

	"github.com/playwright-community/playwright-go"
)

// RandomDelay waits between min and max milliseconds, or until ctx is done.
func RandomDelay(ctx context.Context, min, max int) error {
	d := min
	if max > min {
		d = rand.Intn(max-min+1) + min
	}
	t := time.NewTimer(time.Duration(d) * time.Millisecond)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ScrollToLoad scrolls down in steps so lazily loaded grid items render.
func ScrollToLoad(ctx context.Context, page playwright.Page, steps int) error {
	for i := 0; i < steps; i++ {
		if _, err := page.Evaluate("window.scrollBy(0, window.innerHeight)"); err != nil {
			return err
		}
		if err := RandomDelay(ctx, 800, 1500); err != nil {
			return err
		}
	}
	return nil
}
