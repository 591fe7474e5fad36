package keyword

import "strings"

// orientationHints 是 LLM 常混进关键词里的画幅提示词；它们对素材检索只有噪音。
var orientationHints = map[string]struct{}{
	"vertical":  {},
	"portrait":  {},
	"landscape": {},
}

// Words 去掉画幅提示词后按空白切分关键词。
func Words(kw string) []string {
	fields := strings.Fields(kw)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := orientationHints[strings.ToLower(f)]; ok {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Strip 返回去掉画幅提示词、并把连续空白折叠为单个空格后的关键词。
func Strip(kw string) string {
	return strings.Join(Words(kw), " ")
}

// Reduce 把关键词展开为逐步变短的查询序列（breadcrumbs）。
//
// 不变量：
// - 至少返回 1 个元素；关键词为空时返回 [""]
// - 第 i+1 个元素是第 i 个元素去掉最后一个词
// - 第一个元素等于 Strip(kw)，最后一个元素只剩首词
func Reduce(kw string) []string {
	words := Words(kw)
	if len(words) == 0 {
		return []string{""}
	}
	out := make([]string, 0, len(words))
	for n := len(words); n >= 1; n-- {
		out = append(out, strings.Join(words[:n], " "))
	}
	return out
}

// Anchor 返回原始关键词的首词（小写），作为内容校验的锚点。
// 锚点只由原始关键词决定，与当前尝试的是哪一级 breadcrumb 无关。
func Anchor(kw string) string {
	words := Words(kw)
	if len(words) == 0 {
		return ""
	}
	return strings.ToLower(words[0])
}
