package scan

import (
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"

	"secretsift/internal/logging"
)

// regionProgress counts finished regions. A nil bar makes every method a no-op.
type regionProgress struct {
	bar *progressbar.ProgressBar
}

func newRegionProgress(total int, enabled bool, w io.Writer) *regionProgress {
	if !enabled || total == 0 {
		return &regionProgress{}
	}
	return &regionProgress{
		bar: progressbar.NewOptions(total,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription("Scanning regions..."),
			progressbar.OptionSetWidth(15),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionShowCount(),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(w)
			}),
		),
	}
}

// Done records one finished region
func (p *regionProgress) Done() {
	if p.bar == nil {
		return
	}
	if err := p.bar.Add(1); err != nil {
		logging.Debug("Failed to update progress bar", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// Finish completes the bar
func (p *regionProgress) Finish() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Finish()
}
