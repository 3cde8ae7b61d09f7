package service

import (
	"strconv"
	"time"
)

// 交易所 REST 响应里的数值全部是字符串，统一在这里转换

func StringToFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

func StringToInt64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

// MillisToTime 把毫秒时间戳字符串转换为 time.Time
// 解析失败或为 0 时返回零值 time.Time
func MillisToTime(s string) time.Time {
	ms, err := StringToInt64(s)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
