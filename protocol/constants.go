package protocol

// MCPVersion is the MCP protocol revision spoken by the bundled engines.
const MCPVersion = "2024-11-05"

// MCP method names.
const (
	MethodInitialize    = "initialize"
	MethodInitialized   = "notifications/initialized"
	MethodToolsList     = "tools/list"
	MethodToolsCall     = "tools/call"
	MethodResourcesList = "resources/list"
	MethodResourcesRead = "resources/read"
	MethodPromptsList   = "prompts/list"
	MethodPromptsGet    = "prompts/get"
	MethodPing          = "ping"
)

// MCP notification methods.
const (
	MethodProgress  = "notifications/progress"
	MethodCancelled = "notifications/cancelled"
)
