package protocol

// RPC method names.
const (
	MethodConnect = "connect"
	MethodHealth  = "health"
	MethodStatus  = "status"

	MethodChatSend    = "chat.send"
	MethodChatHistory = "chat.history"
	MethodChatAbort   = "chat.abort"

	MethodApprovalsList    = "approvals.list"
	MethodApprovalsApprove = "approvals.approve"
	MethodApprovalsDeny    = "approvals.deny"
	MethodApprovalsAudit   = "approvals.audit"

	MethodCronList   = "cron.list"
	MethodCronAdd    = "cron.add"
	MethodCronRemove = "cron.remove"
	MethodCronEnable = "cron.enable"
	MethodCronUpdate = "cron.update"
	MethodCronRun    = "cron.run"
	MethodCronRunLog = "cron.runlog"

	MethodSessionsList  = "sessions.list"
	MethodSessionsClear = "sessions.clear"

	MethodSkillsList = "skills.list"
	MethodSkillsRead = "skills.read"

	MethodMemorySearch = "memory.search"
	MethodMemorySave   = "memory.save"
)
