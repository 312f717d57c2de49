package chat

var (
	CompressHistory   = compressHistory
	SummarizeContents = summarizeContents
	IsTokenLimitError = isTokenLimitError
	ToClaudeMessages  = toClaudeMessages
	BuildSystemPrompt = buildSystemPrompt
)
