package bot

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"
)

const day = 24 * time.Hour

// monthSpan is the reference period for the share shown by /time.
const monthSpan = 30 * day

var (
	timeFooters = []string{
		"Every minute together counts 💕",
		"Time flies when we're together ⏰❤️",
		"This is only the beginning of the story 📖✨",
		"Every hour makes it stronger 🌹",
		"You make every second special 🌟",
	}

	statusFooters = []string{
		"Moments matter more than minutes 💫",
		"Every second together is a gift 🎁",
		"Good company only gets better with time 💕",
		"Time spent together is priceless ⏳❤️",
	}
)

// splitDuration breaks d into whole days, hours and minutes.
func splitDuration(d time.Duration) (days, hours, minutes int) {
	if d < 0 {
		d = 0
	}
	days = int(d / day)
	hours = int(d % day / time.Hour)
	minutes = int(d % time.Hour / time.Minute)
	return days, hours, minutes
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// formatDuration renders d as "2 days 3 hours 4 minutes", dropping the day
// part when it is zero.
func formatDuration(d time.Duration) string {
	days, hours, minutes := splitDuration(d)
	if days > 0 {
		return strings.Join([]string{plural(days, "day"), plural(hours, "hour"), plural(minutes, "minute")}, " ")
	}
	return plural(hours, "hour") + " " + plural(minutes, "minute")
}

// formatClock renders d as "3h 4m".
func formatClock(d time.Duration) string {
	return fmt.Sprintf("%dh %dm", int(d/time.Hour), int(d%time.Hour/time.Minute))
}

func formatHours(d time.Duration) string {
	return fmt.Sprintf("%.1f hours", d.Hours())
}

// monthShare is d as a percentage of a 30-day month.
func monthShare(d time.Duration) float64 {
	return float64(d) / float64(monthSpan) * 100
}

// formatCount groups thousands: 12345 -> "12,345".
func formatCount(n int64) string {
	if n < 0 {
		return "-" + formatCount(-n)
	}
	s := fmt.Sprintf("%d", n)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// pickMessage chooses a stable message for seed.
func pickMessage(seed string, messages []string) string {
	if len(messages) == 0 {
		return ""
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(seed))
	return messages[h.Sum32()%uint32(len(messages))]
}

// timeBreakdown is the body of the /time field.
func timeBreakdown(total time.Duration) string {
	days, hours, _ := splitDuration(total)
	return fmt.Sprintf("**%s**\n\nThat is about:\n• %s\n• %s\n• %s",
		formatDuration(total),
		plural(days*24+hours, "full hour"),
		formatCount(int64(total/time.Minute))+" minutes",
		formatCount(int64(total/time.Second))+" seconds",
	)
}
