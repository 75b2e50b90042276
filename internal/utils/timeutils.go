package utils

import (
	"fmt"
	"time"
)

// Elapsed formats a duration as H:MM:SS, dropping sub-second precision.
func Elapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", total/3600, (total/60)%60, total%60)
}
