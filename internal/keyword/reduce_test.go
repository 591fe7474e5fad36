package keyword

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestReduce_Breadcrumbs(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"Penguin climbing mountain", []string{"Penguin climbing mountain", "Penguin climbing", "Penguin"}},
		{"  Samurai   standing\train ", []string{"Samurai standing rain", "Samurai standing", "Samurai"}},
		{"sunset", []string{"sunset"}},
		{"Vertical penguin swimming", []string{"penguin swimming", "penguin"}},
		{"city LANDSCAPE night Portrait", []string{"city night", "city"}},
		{"", []string{""}},
		{"   ", []string{""}},
		{"Vertical", []string{""}},
	}
	for _, c := range cases {
		got := Reduce(c.in)
		if diff := cmp.Diff(c.want, got); diff != "" {
			t.Fatalf("Reduce(%q) 不符合预期 (-want +got):\n%s", c.in, diff)
		}
	}
}

func TestReduce_Monotonic(t *testing.T) {
	for _, in := range []string{"a b c d e", "stock market chart", "man in suit looking at phone"} {
		got := Reduce(in)
		n := len(strings.Fields(in))
		if len(got) != n {
			t.Fatalf("Reduce(%q) 期望 %d 个元素，实际 %d", in, n, len(got))
		}
		if got[0] != in {
			t.Fatalf("第一个元素应等于完整输入：%q", got[0])
		}
		for i := 1; i < len(got); i++ {
			prev := strings.Fields(got[i-1])
			cur := strings.Fields(got[i])
			if len(cur) != len(prev)-1 {
				t.Fatalf("词数应逐级减 1：%q -> %q", got[i-1], got[i])
			}
			if !strings.HasPrefix(got[i-1], got[i]+" ") {
				t.Fatalf("%q 不是 %q 的词前缀", got[i], got[i-1])
			}
		}
	}
}

func TestAnchor(t *testing.T) {
	cases := map[string]string{
		"Penguin chick hatching":   "penguin",
		"Portrait Samurai in rain": "samurai",
		"":                         "",
		"landscape":                "",
	}
	for in, want := range cases {
		if got := Anchor(in); got != want {
			t.Fatalf("Anchor(%q) 期望 %q，实际 %q", in, want, got)
		}
	}
}
