package registry

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"

	"sheetdoc/pkg/contract"
	aansi "sheetdoc/plugins/assembler/ansi"
	ahtml "sheetdoc/plugins/assembler/html"
	amd "sheetdoc/plugins/assembler/markdown"
	bfixed "sheetdoc/plugins/batcher/fixed"
	flaky "sheetdoc/plugins/llmclient/flaky"
	gmi "sheetdoc/plugins/llmclient/gemini"
	mock "sheetdoc/plugins/llmclient/mock"
	oai "sheetdoc/plugins/llmclient/openai"
	prow "sheetdoc/plugins/prompt/rowformat"
	rcsv "sheetdoc/plugins/reader/csv"
	rxlsx "sheetdoc/plugins/reader/xlsx"
	wfs "sheetdoc/plugins/writer/filesystem"
	wstd "sheetdoc/plugins/writer/stdout"
)

// DecodeStrict: 将原样 YAML 子树严格解码到 v，拒绝未知字段。
// node 为 nil 时保持零值（默认选项）。
func DecodeStrict(node *yaml.Node, v any) error {
	if node == nil || node.Kind == 0 {
		return nil
	}
	b, err := yaml.Marshal(node)
	if err != nil {
		return fmt.Errorf("%w: options: %v", contract.ErrConfigInvalid, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: options: %v", contract.ErrConfigInvalid, err)
	}
	return nil
}

// NewReader 工厂签名：接收原样 YAML Options。
type NewReader func(node *yaml.Node) (contract.TableReader, error)

// NewBatcher 工厂签名。
type NewBatcher func(node *yaml.Node) (contract.Batcher, error)

// NewPromptBuilder 工厂签名。
type NewPromptBuilder func(node *yaml.Node) (contract.PromptBuilder, error)

// NewAssembler 工厂签名。
type NewAssembler func(node *yaml.Node) (contract.Assembler, error)

// NewWriter 工厂签名。
type NewWriter func(node *yaml.Node) (contract.Writer, error)

// LLMFactory: LLM 客户端工厂；凭据由装配层解析后注入。
type LLMFactory struct {
	// NeedsCredential: 按 Options 判定装配层是否在启动阶段即要求凭据存在；nil 表示不要求。
	NeedsCredential func(node *yaml.Node) (bool, error)
	New             func(node *yaml.Node, cred contract.Credential) (contract.LLMClient, error)
}

// RequiresCredential 报告给定 Options 下该客户端是否必须有凭据。
func (f LLMFactory) RequiresCredential(node *yaml.Node) (bool, error) {
	if f.NeedsCredential == nil {
		return false, nil
	}
	return f.NeedsCredential(node)
}

func always(*yaml.Node) (bool, error) { return true, nil }

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// csv: 文件/STDIN CSV
	"csv": func(node *yaml.Node) (contract.TableReader, error) {
		var opts rcsv.Options
		if err := DecodeStrict(node, &opts); err != nil {
			return nil, err
		}
		return rcsv.New(&opts)
	},
	// xlsx: Excel 工作簿的单张工作表
	"xlsx": func(node *yaml.Node) (contract.TableReader, error) {
		var opts rxlsx.Options
		if err := DecodeStrict(node, &opts); err != nil {
			return nil, err
		}
		return rxlsx.New(&opts), nil
	},
}

// Batcher 工厂注册表。
var Batcher = map[string]NewBatcher{
	// fixed: 固定容量顺序分批
	"fixed": func(node *yaml.Node) (contract.Batcher, error) {
		var opts bfixed.Options
		if err := DecodeStrict(node, &opts); err != nil {
			return nil, err
		}
		return bfixed.New(&opts), nil
	},
}

// PromptBuilder 工厂注册表。
var PromptBuilder = map[string]NewPromptBuilder{
	// rowformat: 表头/值配对的记录格式化提示词
	"rowformat": func(node *yaml.Node) (contract.PromptBuilder, error) {
		var opts prow.Options
		if err := DecodeStrict(node, &opts); err != nil {
			return nil, err
		}
		return prow.New(&opts)
	},
}

// LLMClient 工厂注册表。
var LLMClient = map[string]LLMFactory{
	// openai: disable_default_auth 时凭据可选（网关自带鉴权）
	"openai": {NeedsCredential: func(node *yaml.Node) (bool, error) {
		var opts oai.Options
		if err := DecodeStrict(node, &opts); err != nil {
			return false, err
		}
		return !opts.DisableDefaultAuth, nil
	}, New: func(node *yaml.Node, cred contract.Credential) (contract.LLMClient, error) {
		var opts oai.Options
		if err := DecodeStrict(node, &opts); err != nil {
			return nil, err
		}
		return oai.New(&opts, cred)
	}},
	"gemini": {NeedsCredential: always, New: func(node *yaml.Node, cred contract.Credential) (contract.LLMClient, error) {
		var opts gmi.Options
		if err := DecodeStrict(node, &opts); err != nil {
			return nil, err
		}
		return gmi.New(&opts, cred)
	}},
	"mock": {New: func(node *yaml.Node, _ contract.Credential) (contract.LLMClient, error) {
		var opts mock.Options
		if err := DecodeStrict(node, &opts); err != nil {
			return nil, err
		}
		return mock.New(&opts)
	}},
	"flaky": {New: func(node *yaml.Node, _ contract.Credential) (contract.LLMClient, error) {
		var opts flaky.Options
		if err := DecodeStrict(node, &opts); err != nil {
			return nil, err
		}
		return flaky.New(&opts)
	}},
}

// Assembler 工厂注册表。
var Assembler = map[string]NewAssembler{
	"markdown": func(node *yaml.Node) (contract.Assembler, error) {
		var opts amd.Options
		if err := DecodeStrict(node, &opts); err != nil {
			return nil, err
		}
		return amd.New(&opts), nil
	},
	"html": func(node *yaml.Node) (contract.Assembler, error) {
		var opts ahtml.Options
		if err := DecodeStrict(node, &opts); err != nil {
			return nil, err
		}
		return ahtml.New(&opts), nil
	},
	"ansi": func(node *yaml.Node) (contract.Assembler, error) {
		var opts aansi.Options
		if err := DecodeStrict(node, &opts); err != nil {
			return nil, err
		}
		return aansi.New(&opts), nil
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// filesystem: 文件系统 Writer（覆盖写/原子替换可配置）
	"filesystem": func(node *yaml.Node) (contract.Writer, error) {
		var opts wfs.Options
		if err := DecodeStrict(node, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
	// stdout: 写到标准输出
	"stdout": func(node *yaml.Node) (contract.Writer, error) {
		var opts struct{}
		if err := DecodeStrict(node, &opts); err != nil {
			return nil, err
		}
		return wstd.New(nil), nil
	},
}

// Names 返回注册表键的有序列表（用于帮助与错误信息）。
func Names[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
