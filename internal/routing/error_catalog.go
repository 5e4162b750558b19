package routing

import "strings"

// normalizeErrorMessage keeps an explicit human message as-is. Generic
// placeholders (empty, code echoes, short "... failed" tokens) are replaced
// by the catalog entry for the code, or a humanized form of the code.
func normalizeErrorMessage(code string, message string) string {
	if !isGenericErrorMessage(code, message) {
		return message
	}
	if known := knownErrorMessage(code); known != "" {
		return known
	}
	return humanizeErrorCode(code)
}

func isGenericErrorMessage(code string, message string) bool {
	message = strings.TrimSpace(message)
	if message == "" {
		return true
	}
	if strings.EqualFold(message, strings.TrimSpace(code)) {
		return true
	}
	if message == "internal_error" {
		return true
	}
	words := strings.Fields(strings.ReplaceAll(strings.ToLower(message), "_", " "))
	if len(words) == 0 || len(words) > 3 {
		return false
	}
	last := words[len(words)-1]
	return last == "failed" || last == "error"
}

func knownErrorMessage(code string) string {
	switch code {
	case "forbidden":
		return "无权限执行该操作。"
	case "unauthorized":
		return "登录已失效，请重新登录。"
	case "invalid_request":
		return "请求参数无效，请检查后重试。"
	case "tenant_not_found":
		return "未找到租户，请检查访问域名。"
	case "tenant_missing":
		return "租户上下文缺失，请刷新后重试。"
	case "tenant_resolve_error":
		return "租户解析失败，请稍后重试。"
	case "DEVICE_STATE_INVALID":
		return "设备状态数据无效，请刷新后重试。"
	case "UNKNOWN_STATUS_VALUE":
		return "状态值不在可选范围内，请重新选择。"
	case "PENDING_STATUS_CONFIRMATION":
		return "设备刚启用，请先选择状态。"
	case "SAVE_GATEWAY_MISSING":
		return "保存网关未配置，请联系管理员。"
	case "SAVE_GATEWAY_UNAVAILABLE":
		return "保存网关暂不可用，请稍后重试。"
	case "STATUS_RULES_INVALID":
		return "状态规则配置无效，请联系管理员。"
	default:
		return ""
	}
}

func humanizeErrorCode(code string) string {
	fields := strings.FieldsFunc(strings.ToLower(strings.TrimSpace(code)), func(r rune) bool {
		return r == '_' || r == '-'
	})
	if len(fields) == 0 {
		return "Request failed."
	}
	if len(fields) == 1 && (fields[0] == "failed" || fields[0] == "error") {
		return "Request " + fields[0] + "."
	}
	return titleCaseWords(fields) + "."
}

func titleCaseWords(words []string) string {
	if len(words) == 0 {
		return ""
	}
	out := make([]string, 0, len(words))
	for i, w := range words {
		switch strings.ToLower(w) {
		case "api", "db", "id", "uuid", "rls", "url":
			out = append(out, strings.ToUpper(w))
			continue
		}
		if i == 0 {
			out = append(out, capitalizeWord(w))
			continue
		}
		out = append(out, w)
	}
	return strings.Join(out, " ")
}

func capitalizeWord(w string) string {
	if w == "" {
		return ""
	}
	return strings.ToUpper(w[:1]) + w[1:]
}
