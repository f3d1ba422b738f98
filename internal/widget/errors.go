package widget

import "errors"

var (
	// ErrInvalidState 当前状态不接受该命令
	ErrInvalidState = errors.New("command not valid in current state")

	// ErrWaiting 上一条消息尚未得到回复
	ErrWaiting = errors.New("waiting for agent reply")

	// ErrTerminating 会话正在结束
	ErrTerminating = errors.New("session teardown in progress")

	// ErrClosed 挂件实例已关闭
	ErrClosed = errors.New("widget is closed")

	// ErrStaleResponse 回复到达时会话已经结束，回复被丢弃
	ErrStaleResponse = errors.New("response arrived after session ended")

	// ErrNoTicketAgent 访客所选部门没有客服，无法创建工单
	ErrNoTicketAgent = errors.New("no agent available for this department")
)

// ValidationError 预聊天表单校验失败，状态不变
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
