package trader

import (
	"log"
	"time"
)

// SleepFunc 注入点，测试里替换为空实现避免真实等待
type SleepFunc func(time.Duration)

// withRetry 固定间隔重试，返回最后一次错误
func withRetry(attempts int, delay time.Duration, sleep SleepFunc, op func() error) error {
	if sleep == nil {
		sleep = time.Sleep
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = op(); err == nil {
			return nil
		}
		if i < attempts-1 {
			log.Printf("⚠️ 第 %d/%d 次尝试失败: %v，%v 后重试", i+1, attempts, err, delay)
			sleep(delay)
		}
	}
	return err
}
