package counters

import (
	"fmt"
	"time"
)

func activeRobotsKey(wh string) string { return fmt.Sprintf("wh:%s:robots:active", wh) }
func allRobotsKey(wh string) string    { return fmt.Sprintf("wh:%s:robots:all", wh) }
func batteryLastKey(wh string) string  { return fmt.Sprintf("wh:%s:battery:last", wh) }
func batterySumKey(wh string) string   { return fmt.Sprintf("wh:%s:battery:sum", wh) }
func batteryCountKey(wh string) string { return fmt.Sprintf("wh:%s:battery:count", wh) }
func criticalSkusKey(wh string) string { return fmt.Sprintf("wh:%s:critical_skus", wh) }

// activityKey 按 UTC epoch 分钟
func activityKey(wh string, t time.Time) string {
	return fmt.Sprintf("wh:%s:activity:%d", wh, t.Unix()/60)
}

// checkedKey 按配置时区的自然日
func checkedKey(wh string, t time.Time, loc *time.Location) string {
	return fmt.Sprintf("wh:%s:checked:%s:%s", wh, t.In(loc).Format("2006-01-02"), loc.String())
}

func fixedKeys(wh string) []string {
	return []string{
		activeRobotsKey(wh),
		allRobotsKey(wh),
		batteryLastKey(wh),
		batterySumKey(wh),
		batteryCountKey(wh),
		criticalSkusKey(wh),
	}
}

func patternKeys(wh string) []string {
	return []string{
		fmt.Sprintf("wh:%s:activity:*", wh),
		fmt.Sprintf("wh:%s:checked:*", wh),
	}
}
