package watch

import (
	"strings"
	"time"
)

// Ticker rotates through frames on every clock tick. A frozen ticker means
// the UI loop stalled.
type Ticker struct {
	frames []string
	index  int
}

func NewTicker() Ticker {
	return Ticker{frames: []string{"◐", "◓", "◑", "◒"}}
}

func (t *Ticker) Tick() {
	t.index = (t.index + 1) % len(t.frames)
}

func (t Ticker) Current() string {
	return t.frames[t.index]
}

const activityDots = 5

// Activity lights up on every event and fades one dot per two seconds of
// silence.
type Activity struct {
	lastEvent time.Time
}

func (a *Activity) OnEvent(at time.Time) {
	a.lastEvent = at
}

func (a Activity) LastEvent() time.Time {
	return a.lastEvent
}

// Lit returns how many dots are lit at now.
func (a Activity) Lit(now time.Time) int {
	if a.lastEvent.IsZero() {
		return 0
	}
	n := activityDots - int(now.Sub(a.lastEvent)/(2*time.Second))
	if n < 0 {
		return 0
	}
	return n
}

func (a Activity) Render(theme Theme, now time.Time) string {
	lit := a.Lit(now)
	var b strings.Builder
	for i := range activityDots {
		if i < lit {
			b.WriteString(theme.TickerActive.Render("●"))
		} else {
			b.WriteString(theme.TickerInactive.Render("○"))
		}
	}
	return b.String()
}
