//go:build !unix

package fsx

// 非 unix 平台不区分跨盘错误，按普通 rename 失败处理。
func isEXDEV(err error) bool { return false }
