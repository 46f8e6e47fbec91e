// internal/api/error_codes.go
package api

// API错误代码常量
const (
	// 通用错误
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorNotFound      = "NOT_FOUND"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorConflict      = "CONFLICT"
	ErrorForbidden     = "FORBIDDEN"

	// 剧本图相关错误
	ErrorGraphNotFound     = "GRAPH_NOT_FOUND"
	ErrorGraphParseFailed  = "GRAPH_PARSE_FAILED"
	ErrorDanglingReference = "DANGLING_REFERENCE"

	// 会话相关错误
	ErrorSessionNotFound = "SESSION_NOT_FOUND"
	ErrorChoiceNotFound  = "CHOICE_NOT_FOUND"
	ErrorTurnInProgress  = "TURN_IN_PROGRESS"
	ErrorSessionEnded    = "SESSION_ENDED"
	ErrorSessionFaulted  = "SESSION_FAULTED"
	ErrorHistoryEmpty    = "HISTORY_EMPTY"

	// 生成服务相关错误
	ErrorGeneratorUnavailable = "GENERATOR_UNAVAILABLE"
	ErrorGenerationFailed     = "GENERATION_FAILED"

	// 导出相关错误
	ErrorExportFailed        = "EXPORT_FAILED"
	ErrorExportFormatInvalid = "EXPORT_FORMAT_INVALID"

	// 配置健康相关
	ErrorConfigUnhealthy = "CONFIG_UNHEALTHY"
	ErrorConfigNotLoaded = "CONFIG_NOT_LOADED"
)
