package toon

import (
	"fmt"
	"strings"
	"testing"

	"github.com/phobologic/repotrim/internal/model"
)

func TestEncodeValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", `""`},
		{"simple", "hello", "hello"},
		{"leading space", " hello", `" hello"`},
		{"trailing space", "hello ", `"hello "`},
		{"newline", "a\nb", `"a\nb"`},
		{"tab", "a\tb", `"a\tb"`},
		{"true keyword", "true", `"true"`},
		{"null keyword", "null", `"null"`},
		{"integer", "42", "42"},
		{"negative integer", "-1", "-1"},
		{"float", "3.14", "3.14"},
		{"comma", "a,b", `"a,b"`},
		{"colon", "a:b", `"a:b"`},
		{"quote", `a"b`, `"a\"b"`},
		{"backslash", `a\b`, `"a\\b"`},
		{"bracket", "[3]string", `"[3]string"`},
		{"dash prefix", "-foo", `"-foo"`},
		{"lone dash", "-", `"-"`},
		{"path", "data/products.json", "data/products.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := encodeValue(tt.in)
			if got != tt.want {
				t.Errorf("encodeValue(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func sampleMap() *model.TraceMap {
	return &model.TraceMap{
		Project: "shop",
		Files: []model.TracedFile{
			{
				Original: "data/products.json",
				Category: model.Data,
				Tokens:   10000,
				Schema:   &model.Schema{Type: "json", Shape: &model.Shape{Type: "string"}},
				Usages: []model.FileUsage{
					{File: "handlers/shop.py", Line: 3, Type: model.UsageJSON},
				},
			},
			{
				Original: "logs/app.log",
				Category: model.Log,
				Tokens:   1500,
			},
		},
	}
}

func TestEncode(t *testing.T) {
	t.Parallel()

	got := Encode(sampleMap())
	lines := strings.Split(got, "\n")
	want := []string{
		"project: shop",
		"tokens_saved: 11500",
		`resolver: "get_path(\"<original>\")"`,
		"moved[2]{original,category,tokens,schema,used_in}:",
		"  data/products.json,data,10000,string,1",
		`  logs/app.log,log,1500,"-",0`,
		"usages[1]{original,file,line,type}:",
		"  data/products.json,handlers/shop.py,3,json",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines:\n%s", len(lines), got)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d: got %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestEncodeCapped(t *testing.T) {
	t.Parallel()

	tm := &model.TraceMap{Project: "big"}
	for i := 0; i < 50; i++ {
		tm.Files = append(tm.Files, model.TracedFile{
			Original: fmt.Sprintf("data/file_%02d.json", i),
			Category: model.Data,
			Tokens:   1000 - i,
			Usages:   []model.FileUsage{{File: "main.py", Line: i + 1, Type: model.UsageRead}},
		})
	}

	full := Encode(tm)
	capped := EncodeCapped(tm, 600)
	if len(capped) > 600 {
		t.Errorf("capped length %d > 600", len(capped))
	}
	if len(capped) >= len(full) {
		t.Errorf("capped output not shorter than full output")
	}
	if !strings.Contains(capped, "omitted: ") {
		t.Errorf("capped output missing omitted marker:\n%s", capped)
	}
	// Heaviest file survives.
	if !strings.Contains(capped, "data/file_00.json") {
		t.Errorf("heaviest file dropped:\n%s", capped)
	}
}

func TestEncodeEmpty(t *testing.T) {
	t.Parallel()

	got := Encode(&model.TraceMap{Project: "empty"})
	if !strings.Contains(got, "moved[0]{original,category,tokens,schema,used_in}:") {
		t.Errorf("expected empty moved section, got:\n%s", got)
	}
	if strings.Contains(got, "usages[") {
		t.Errorf("unexpected usages section:\n%s", got)
	}
}
