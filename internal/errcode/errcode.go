// Package errcode 定义推送给前端的任务失败码。
package errcode

// Code 按区间分类：4xxx 是用户可以处理的问题（换文件、补资料），5xxx 是系统故障。
type Code int

const (
	OK              Code = 0
	ResourceMissing Code = 4004
	UnsupportedFile Code = 4015
	ParserRejected  Code = 4022
	SystemError     Code = 5000
)

// UserFixable 为真时前端提示用户操作，否则提示稍后重试。
func (c Code) UserFixable() bool { return c >= 4000 && c < 5000 }

func (c Code) String() string {
	switch c {
	case OK:
		return "ok"
	case ResourceMissing:
		return "resource_missing"
	case UnsupportedFile:
		return "unsupported_file"
	case ParserRejected:
		return "parser_rejected"
	case SystemError:
		return "system_error"
	}
	return "unknown"
}
