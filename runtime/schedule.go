package runtime

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule yields the next activation after a given time.
type Schedule interface {
	Next(time.Time) time.Time
}

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule accepts a cron expression with optional seconds
// ("*/5 * * * *", "0 */15 * * * *", "@hourly") or a Go duration ("90s").
func ParseSchedule(spec string) (Schedule, error) {
	if spec == "" {
		return nil, fmt.Errorf("schedule is empty")
	}
	if sched, err := cronParser.Parse(spec); err == nil {
		return sched, nil
	}
	d, err := time.ParseDuration(spec)
	if err != nil {
		return nil, fmt.Errorf("schedule %q is neither a cron expression nor a duration: %w", spec, err)
	}
	if d <= 0 {
		return nil, fmt.Errorf("schedule %q must be positive", spec)
	}
	return cron.Every(d), nil
}

// NextScan returns when the inbox should next be scanned after base.
func NextScan(spec string, base time.Time) (time.Time, error) {
	sched, err := ParseSchedule(spec)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(base), nil
}
