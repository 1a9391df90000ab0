package sync

import (
	"fmt"
	"math"
	"strings"
)

// progressBarWidth is the number of cells in the rendered meter.
const progressBarWidth = 50

// moods is the fixed 13-glyph table indexed by round(percent * 12), from
// dejected at 0% to delighted at 100%.
var moods = [...]string{
	"(v_v)", "(._.)", "(-_-)", "(-.-)", "(o_o)", "(O_o)",
	"(^_^)", "(*_*)", "(>_<)", "(^o^)", "(^_^)b", "(^_^)v", "(^o^)/",
}

// RenderProgress is the Progress Reporter (C8): a pure function of
// (done, total) producing a 50-cell bar filled with '*'/'·', a percent
// label, and a mood glyph. It must not panic on total = 0, which is defined
// as complete.
func RenderProgress(done, total int) string {
	percent := 1.0
	if total > 0 {
		percent = float64(done) / float64(total)
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 1 {
		percent = 1
	}

	filled := int(math.Round(percent * float64(progressBarWidth)))
	bar := strings.Repeat("*", filled) + strings.Repeat("·", progressBarWidth-filled)

	moodIndex := int(math.Round(percent * float64(len(moods)-1)))
	if moodIndex < 0 {
		moodIndex = 0
	}
	if moodIndex >= len(moods) {
		moodIndex = len(moods) - 1
	}

	return fmt.Sprintf("[%s] %3d%% %s", bar, int(math.Round(percent*100)), moods[moodIndex])
}
