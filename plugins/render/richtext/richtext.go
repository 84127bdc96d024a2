// Package richtext 将模型输出文本转换为标题 + 交替底色条目的文档块。
//
// 这不是 markdown 解析器：易被误认为标记的字符被直接剔除（有损归一化）。
package richtext

import (
	"regexp"
	"strings"

	"sheetdoc/pkg/contract"
)

var blankLine = regexp.MustCompile(`\n[ \t\f\v]*\n`)

var stripper = strings.NewReplacer(
	"#", "", "*", "", "-", "", "_", "", "[", "", "]", "",
)

// Strip 剔除标记字符并去除首尾空白；幂等。
func Strip(s string) string {
	return strings.TrimSpace(stripper.Replace(s))
}

// Sections 按空行边界切分文本为段落：
// - 统一 CRLF/CR 为 LF；
// - 仅含空白的段落被跳过；
// - 段落首行（原样判定非空）为标题，其余非空行为明细；
// - 标题与明细均经 Strip 归一化；首行全为标记字符时标题为空串；
// - 归一化后为空的明细行被丢弃，不占底色序号。
func Sections(text string) []contract.Section {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	var out []contract.Section
	for _, chunk := range blankLine.Split(text, -1) {
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		var lines []string
		for _, ln := range strings.Split(chunk, "\n") {
			if strings.TrimSpace(ln) == "" {
				continue
			}
			lines = append(lines, ln)
		}
		sec := contract.Section{Title: Strip(lines[0])}
		for _, ln := range lines[1:] {
			if d := Strip(ln); d != "" {
				sec.Details = append(sec.Details, d)
			}
		}
		out = append(out, sec)
	}
	return out
}

// Renderer 将模型输出渲染到 DocumentSink；样式来自注入的 Theme。
type Renderer struct {
	theme contract.Theme
}

// New 创建渲染器；theme 以值拷贝持有。
func New(theme contract.Theme) *Renderer {
	return &Renderer{theme: theme.Merge(contract.Theme{})}
}

// Render 渲染一批模型输出：每段一个标题 + 按位置交替底色的条目，末尾追加一个空白间隔块。
// 返回渲染出的段落（供 sidecar 记录）。
func (r *Renderer) Render(sink contract.DocumentSink, text string) []contract.Section {
	secs := Sections(text)
	for _, s := range secs {
		sink.AppendHeading(s.Title, r.theme.Heading)
		for i, d := range s.Details {
			sink.AppendBullet(d, r.theme.BulletAt(i))
		}
	}
	sink.AppendSpacer()
	return secs
}
