package registry

import (
	"errors"
	"testing"

	"gopkg.in/yaml.v3"

	"sheetdoc/pkg/contract"
)

func node(t *testing.T, src string) *yaml.Node {
	t.Helper()
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		return doc.Content[0]
	}
	return &doc
}

// TestDecodeStrict 验证严格解码逻辑。
func TestDecodeStrict(t *testing.T) {
	type opt struct {
		A int `yaml:"a"`
	}
	var o opt
	if err := DecodeStrict(nil, &o); err != nil || o.A != 0 {
		t.Fatalf("nil 输入失败: %v", err)
	}
	if err := DecodeStrict(node(t, "a: 1"), &o); err != nil || o.A != 1 {
		t.Fatalf("合法 YAML 解析失败: %v", err)
	}
	err := DecodeStrict(node(t, "a: 1\nb: 2"), &o)
	if err == nil {
		t.Fatalf("未知字段应报错")
	}
	if !errors.Is(err, contract.ErrConfigInvalid) {
		t.Fatalf("应归类为配置错误: %v", err)
	}
}

// TestFactories 遍历注册表入口：空选项可构造，未知字段被拒绝。
func TestFactories(t *testing.T) {
	empty := func(t *testing.T) *yaml.Node { return node(t, "{}") }
	bad := func(t *testing.T) *yaml.Node { return node(t, "x: 1") }

	for name, f := range Reader {
		if _, err := f(empty(t)); err != nil {
			t.Fatalf("reader %s: %v", name, err)
		}
		if _, err := f(bad(t)); err == nil {
			t.Fatalf("reader %s 未对未知字段报错", name)
		}
	}
	for name, f := range Batcher {
		if _, err := f(nil); err != nil {
			t.Fatalf("batcher %s: %v", name, err)
		}
		if _, err := f(bad(t)); err == nil {
			t.Fatalf("batcher %s 未对未知字段报错", name)
		}
	}
	for name, f := range PromptBuilder {
		if _, err := f(empty(t)); err != nil {
			t.Fatalf("prompt %s: %v", name, err)
		}
		if _, err := f(bad(t)); err == nil {
			t.Fatalf("prompt %s 未对未知字段报错", name)
		}
	}
	for name, f := range LLMClient {
		if _, err := f.New(empty(t), contract.NewCredential("k")); err != nil {
			t.Fatalf("llm %s: %v", name, err)
		}
		if _, err := f.New(bad(t), contract.Credential{}); err == nil {
			t.Fatalf("llm %s 未对未知字段报错", name)
		}
	}
	for name, f := range Assembler {
		a, err := f(empty(t))
		if err != nil {
			t.Fatalf("assembler %s: %v", name, err)
		}
		if a.Ext() == "" || a.Ext()[0] != '.' {
			t.Fatalf("assembler %s: ext %q", name, a.Ext())
		}
		if _, err := f(bad(t)); err == nil {
			t.Fatalf("assembler %s 未对未知字段报错", name)
		}
	}
	for name, f := range Writer {
		var n *yaml.Node
		if name == "filesystem" {
			n = node(t, "output_dir: "+t.TempDir())
		}
		if _, err := f(n); err != nil {
			t.Fatalf("writer %s: %v", name, err)
		}
		if _, err := f(bad(t)); err == nil {
			t.Fatalf("writer %s 未对未知字段报错", name)
		}
	}
}

func TestCredentialFlags(t *testing.T) {
	want := map[string]bool{"openai": true, "gemini": true, "mock": false, "flaky": false}
	for name, need := range want {
		f, ok := LLMClient[name]
		if !ok {
			t.Fatalf("missing llm %s", name)
		}
		got, err := f.RequiresCredential(nil)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if got != need {
			t.Fatalf("%s RequiresCredential=%v", name, got)
		}
	}
}

// openai 关闭默认鉴权后不再强制凭据；Options 非法时报告配置错误。
func TestCredentialFollowsOptions(t *testing.T) {
	f := LLMClient["openai"]
	need, err := f.RequiresCredential(node(t, "disable_default_auth: true"))
	if err != nil || need {
		t.Fatalf("disable_default_auth: need=%v err=%v", need, err)
	}
	need, err = f.RequiresCredential(node(t, "model: gpt-4o-mini"))
	if err != nil || !need {
		t.Fatalf("default auth: need=%v err=%v", need, err)
	}
	if _, err := f.RequiresCredential(node(t, "x: 1")); !errors.Is(err, contract.ErrConfigInvalid) {
		t.Fatalf("unknown field: %v", err)
	}
	need, err = LLMClient["gemini"].RequiresCredential(node(t, "model: gemini-2.0-flash"))
	if err != nil || !need {
		t.Fatalf("gemini: need=%v err=%v", need, err)
	}
}

func TestNamesSorted(t *testing.T) {
	got := Names(Assembler)
	want := []string{"ansi", "html", "markdown"}
	if len(got) != len(want) {
		t.Fatalf("names %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("names %v", got)
		}
	}
}
