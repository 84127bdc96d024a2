package config

import (
	"gopkg.in/yaml.v3"

	"sheetdoc/pkg/contract"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// YAML 使用 snake_case；未知字段在解析期失败。JSON 作为 YAML 子集同样可读。
type Config struct {
	// Input: 源表路径；"-" 表示 STDIN（CSV）。
	Input string `yaml:"input"`
	// Sheet: XLSX 工作表名；为空取活动表。
	Sheet string `yaml:"sheet,omitempty"`
	// Output: 工件路径；为空时按输入名派生 "<stem>-doc<ext>"。
	Output    string `yaml:"output,omitempty"`
	BatchSize int    `yaml:"batch_size"`
	// PauseMS: 每批之后的固定停顿（毫秒）；nil 表示未设置，0 表示不停顿。
	PauseMS *int `yaml:"pause_ms"`
	// AbortOnMalformed: 响应形状无效时终止（默认回退）。
	AbortOnMalformed *bool `yaml:"abort_on_malformed,omitempty"`
	// Sidecar: 额外写出 <artifact>.jsonl。
	Sidecar *bool   `yaml:"sidecar,omitempty"`
	Logging Logging `yaml:"logging"`

	// 组件名选择（空则使用默认名）。
	Components Components `yaml:"components"`
	// 各组件 Options 子树，原样传入工厂。
	Options Options `yaml:"options"`

	Document Document       `yaml:"document"`
	Theme    contract.Theme `yaml:"theme"`

	// LLM Provider 选择与定义。
	LLM      string              `yaml:"llm"`
	Provider map[string]Provider `yaml:"provider"`
}

// Logging: 日志等级与目录。
type Logging struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir,omitempty"`
}

// Components: 组件名选择（注册表中的实现名）。
// Reader 额外接受 "auto"：按输入扩展名在 csv/xlsx 间选择。
type Components struct {
	Reader        string `yaml:"reader"`
	Batcher       string `yaml:"batcher"`
	PromptBuilder string `yaml:"prompt_builder"`
	Assembler     string `yaml:"assembler"`
	Writer        string `yaml:"writer"`
}

// Options: 各组件的原样 YAML Options。
// 批容量只由顶层 batch_size 决定，故无 batcher 子树。
type Options struct {
	Reader        *Raw `yaml:"reader,omitempty"`
	PromptBuilder *Raw `yaml:"prompt_builder,omitempty"`
	Assembler     *Raw `yaml:"assembler,omitempty"`
	Writer        *Raw `yaml:"writer,omitempty"`
}

// Document: 文档固定文案。
type Document struct {
	Title           string `yaml:"title"`
	Footer          string `yaml:"footer"`
	TimestampLayout string `yaml:"timestamp_layout"`
}

// Provider: 命名 provider 定义（client 实现 + 凭据来源 + options + 限额）。
type Provider struct {
	Client     string     `yaml:"client"`
	Credential Credential `yaml:"credential,omitempty"`
	Limits     Limits     `yaml:"limits,omitempty"`
	Options    *Raw       `yaml:"options,omitempty"`
}

// Credential: 凭据来源（环境变量优先，其次文件）。值本身从不出现在配置中。
type Credential struct {
	Env  string `yaml:"env,omitempty"`
	File string `yaml:"file,omitempty"`
}

// Limits: 限流配置（仅承载；执行位于 rate.Gate）。
type Limits struct {
	RPM int `yaml:"rpm,omitempty"`
}

// Raw: 原样保留的 Options 子树。
// 自定义 UnmarshalYAML 使其不受外层 KnownFields 约束；严格校验由工厂层 DecodeStrict 完成。
type Raw struct {
	yaml.Node
}

// NewRaw 包装一个节点；nil 返回 nil。
func NewRaw(n *yaml.Node) *Raw {
	if n == nil {
		return nil
	}
	return &Raw{Node: *n}
}

func (r *Raw) UnmarshalYAML(value *yaml.Node) error {
	r.Node = *value
	return nil
}

func (r Raw) MarshalYAML() (any, error) { return &r.Node, nil }

// YAML 返回底层节点；r 为 nil 时返回 nil（工厂按默认选项处理）。
func (r *Raw) YAML() *yaml.Node {
	if r == nil {
		return nil
	}
	return &r.Node
}
