package admission

import "strings"

// Screen performs the synchronous, side-effect-free content check that
// runs before any window accounting. A flagged message is rejected
// outright and never counts against the client's windows.
type Screen struct {
	keywords  []string
	schemes   []string
	maxRepeat int
}

type ScreenConfig struct {
	Keywords       []string
	BlockedSchemes []string
	MaxRepeatRun   int
}

func NewScreen(cfg ScreenConfig) *Screen {
	keywords := make([]string, 0, len(cfg.Keywords))
	for _, k := range cfg.Keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			keywords = append(keywords, k)
		}
	}

	schemes := cfg.BlockedSchemes
	if schemes == nil {
		schemes = []string{"javascript:", "data:", "file://"}
	}

	maxRepeat := cfg.MaxRepeatRun
	if maxRepeat <= 0 {
		maxRepeat = 12
	}

	return &Screen{keywords: keywords, schemes: schemes, maxRepeat: maxRepeat}
}

// Flagged reports whether the content matches any suspicious pattern.
func (s *Screen) Flagged(content string) bool {
	lower := strings.ToLower(content)

	for _, k := range s.keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}

	for _, scheme := range s.schemes {
		if strings.Contains(lower, scheme) {
			return true
		}
	}

	run := 0
	var prev rune
	for _, r := range content {
		if r == prev {
			run++
			if run >= s.maxRepeat {
				return true
			}
		} else {
			prev = r
			run = 1
		}
	}

	return false
}
