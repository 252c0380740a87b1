package output

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

type sample struct {
	ID        string     `json:"id"`
	PostID    int64      `json:"post_id"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	Secret    string     `json:"-"`
}

type sampleList []sample

func (l sampleList) Table(wide bool) *Table {
	t := &Table{Headers: []string{"ID", "POST"}}
	if wide {
		t.Headers = append(t.Headers, "EXPIRES")
	}
	for _, s := range l {
		row := []string{s.ID, FormatValue(s.PostID)}
		if wide {
			row = append(row, FormatValue(s.ExpiresAt))
		}
		t.AddRow(row...)
	}
	return t
}

var expires = time.Date(2026, 3, 4, 5, 6, 0, 0, time.UTC)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatTable, false},
		{"table", FormatTable, false},
		{"json", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestNewFormatter(t *testing.T) {
	if _, ok := NewFormatter(FormatJSON, false).(*JSONFormatter); !ok {
		t.Error("json format did not select JSONFormatter")
	}
	if _, ok := NewFormatter(FormatYAML, false).(*YAMLFormatter); !ok {
		t.Error("yaml format did not select YAMLFormatter")
	}
	f, ok := NewFormatter(FormatTable, true).(*TableFormatter)
	if !ok || !f.Wide {
		t.Error("table format did not select a wide TableFormatter")
	}
}

func TestTableFormatter(t *testing.T) {
	list := sampleList{
		{ID: "pvlk-a", PostID: 1, ExpiresAt: expires},
		{ID: "pvlk-b", PostID: 2, ExpiresAt: expires},
	}

	tests := []struct {
		name    string
		f       *TableFormatter
		data    any
		want    []string
		notWant []string
	}{
		{
			name:    "tabular",
			f:       &TableFormatter{},
			data:    list,
			want:    []string{"ID", "POST", "pvlk-a", "pvlk-b"},
			notWant: []string{"EXPIRES"},
		},
		{
			name: "tabular wide",
			f:    &TableFormatter{Wide: true},
			data: list,
			want: []string{"EXPIRES", "2026-03-04 05:06 UTC"},
		},
		{
			name:    "no headers",
			f:       &TableFormatter{NoHeaders: true},
			data:    &Table{Headers: []string{"NAME"}, Rows: [][]string{{"value"}}},
			want:    []string{"value"},
			notWant: []string{"NAME"},
		},
		{
			name:    "struct",
			f:       &TableFormatter{},
			data:    &sample{ID: "pvlk-c", PostID: 3, Secret: "hidden"},
			want:    []string{"FIELD", "post_id", "3", "expires_at", "revoked_at"},
			notWant: []string{"hidden"},
		},
		{
			name: "json fallback",
			f:    &TableFormatter{},
			data: []int{1, 2},
			want: []string{"[\n  1,\n  2\n]"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := tt.f.Format(&buf, tt.data); err != nil {
				t.Fatalf("Format() error = %v", err)
			}
			out := buf.String()
			for _, s := range tt.want {
				if !strings.Contains(out, s) {
					t.Errorf("output missing %q:\n%s", s, out)
				}
			}
			for _, s := range tt.notWant {
				if strings.Contains(out, s) {
					t.Errorf("output contains %q:\n%s", s, out)
				}
			}
		})
	}
}

func TestFormatValue(t *testing.T) {
	var nilTime *time.Time
	tests := []struct {
		in   any
		want string
	}{
		{nil, "-"},
		{"", "-"},
		{"abc", "abc"},
		{int64(42), "42"},
		{true, "true"},
		{time.Time{}, "-"},
		{expires, "2026-03-04 05:06 UTC"},
		{&expires, "2026-03-04 05:06 UTC"},
		{nilTime, "-"},
		{[]string{}, "-"},
		{[]string{"a", "b"}, "[2 items]"},
		{map[string]int{"a": 1}, "{1 keys}"},
	}
	for _, tt := range tests {
		if got := FormatValue(tt.in); got != tt.want {
			t.Errorf("FormatValue(%#v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := (&JSONFormatter{}).Format(&buf, sample{ID: "pvlk-a", PostID: 1, Secret: "hidden"}); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"post_id": 1`) {
		t.Errorf("output = %s", out)
	}
	if strings.Contains(out, "hidden") {
		t.Error("json output contains a json:\"-\" field")
	}
}

func TestJSONFormatter_KeepsURLSeparators(t *testing.T) {
	var buf bytes.Buffer
	url := "https://blog.example.com/?khm_preview_post=3&khm_preview_token=ab"
	if err := (&JSONFormatter{}).Format(&buf, map[string]string{"preview_url": url}); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if !strings.Contains(buf.String(), url) {
		t.Errorf("output = %s, want the URL unescaped", buf.String())
	}
}

func TestYAMLFormatter(t *testing.T) {
	var buf bytes.Buffer
	data := sample{ID: "pvlk-a", PostID: 7, ExpiresAt: expires, Secret: "hidden"}
	if err := (&YAMLFormatter{}).Format(&buf, data); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"id: pvlk-a", "post_id: 7", "expires_at: \"2026-03-04T05:06:00Z\""} {
		if !strings.Contains(out, want) {
			t.Errorf("yaml output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "hidden") || strings.Contains(out, "revoked_at") {
		t.Errorf("yaml output has omitted fields:\n%s", out)
	}
}
