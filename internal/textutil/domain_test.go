package textutil

import "testing"

func TestNormalizeLookup(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  baidu.com ", "baidu.com"},
		{"ＢＡＩＤＵ．ＣＯＭ", "baidu.com"},
		{"baidu。com", "baidu.com"},
		{"https://www.Baidu.com/s?wd=x", "baidu.com"},
		{"baidu.com/path", "baidu.com"},
		{"example.cn.", "example.cn"},
		{"北京百度网讯科技有限公司", "北京百度网讯科技有限公司"},
		{"  ", ""},
	}
	for _, tt := range tests {
		if got := NormalizeLookup(tt.in); got != tt.want {
			t.Errorf("NormalizeLookup(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsDomainLike(t *testing.T) {
	if !IsDomainLike("qq.com") {
		t.Fatal("expected qq.com to be domain-like")
	}
	if IsDomainLike("腾讯.中国") {
		t.Fatal("non-ascii names are treated as unit names")
	}
	if IsDomainLike("localhost") {
		t.Fatal("expected dotless value to be rejected")
	}
}
