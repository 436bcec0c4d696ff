package executor

import "time"

func secToDuration(s int) time.Duration {
	if s < 0 {
		s = 0
	}
	return time.Duration(s) * time.Second
}
