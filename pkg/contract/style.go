package contract

// Style: 单个块的最小样式描述；颜色为 #RRGGBB，空串表示不设置。
type Style struct {
	Foreground string `json:"fg,omitempty" yaml:"foreground"`
	Background string `json:"bg,omitempty" yaml:"background"`
	Bold       bool   `json:"bold,omitempty" yaml:"bold"`
	Italic     bool   `json:"italic,omitempty" yaml:"italic"`
	FontSize   int    `json:"size,omitempty" yaml:"font_size"`
}

// Theme: 两个渲染器共享的不可变样式配置。
// 以值传递；Shades 仅通过 Shade 读取，调用方持有的切片不会被修改。
type Theme struct {
	Title           Style    `yaml:"title"`
	Timestamp       Style    `yaml:"timestamp"`
	Heading         Style    `yaml:"heading"`
	FallbackHeading Style    `yaml:"fallback_heading"`
	Bullet          Style    `yaml:"bullet"`
	Footer          Style    `yaml:"footer"`
	Shades          []string `yaml:"shades"`
}

// DefaultTheme 返回内置主题。
func DefaultTheme() Theme {
	return Theme{
		Title:           Style{Foreground: "#1A73E8", Bold: true, FontSize: 20},
		Timestamp:       Style{Foreground: "#5F6368", Italic: true, FontSize: 10},
		Heading:         Style{Foreground: "#1A73E8", Bold: true, FontSize: 14},
		FallbackHeading: Style{Foreground: "#B06000", Bold: true, FontSize: 14},
		Bullet:          Style{Foreground: "#202124", FontSize: 11},
		Footer:          Style{Foreground: "#5F6368", Italic: true, FontSize: 9},
		Shades:          []string{"#F8F9FA", "#E8F0FE"},
	}
}

// Shade 返回位置 i 的背景色（按 Shades 循环交替）；无配置时为空串。
func (t Theme) Shade(i int) string {
	if len(t.Shades) == 0 || i < 0 {
		return ""
	}
	return t.Shades[i%len(t.Shades)]
}

// BulletAt 返回位置 i 的条目样式（Bullet 样式 + 交替底色）。
func (t Theme) BulletAt(i int) Style {
	st := t.Bullet
	st.Background = t.Shade(i)
	return st
}

// Merge 以 over 中的非零字段覆盖 t，返回新主题。
func (t Theme) Merge(over Theme) Theme {
	out := t
	out.Title = mergeStyle(t.Title, over.Title)
	out.Timestamp = mergeStyle(t.Timestamp, over.Timestamp)
	out.Heading = mergeStyle(t.Heading, over.Heading)
	out.FallbackHeading = mergeStyle(t.FallbackHeading, over.FallbackHeading)
	out.Bullet = mergeStyle(t.Bullet, over.Bullet)
	out.Footer = mergeStyle(t.Footer, over.Footer)
	if len(over.Shades) > 0 {
		out.Shades = cloneStrings(over.Shades)
	} else {
		out.Shades = cloneStrings(t.Shades)
	}
	return out
}

func mergeStyle(base, over Style) Style {
	if over.Foreground != "" {
		base.Foreground = over.Foreground
	}
	if over.Background != "" {
		base.Background = over.Background
	}
	if over.Bold {
		base.Bold = true
	}
	if over.Italic {
		base.Italic = true
	}
	if over.FontSize > 0 {
		base.FontSize = over.FontSize
	}
	return base
}
