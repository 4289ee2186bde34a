package utils

import (
	"reflect"
	"testing"
)

func TestSplitAndTrim(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"  ", nil},
		{"S001", []string{"S001"}},
		{"S001,S002", []string{"S001", "S002"}},
		{" S001 , S002 ,, S003 ", []string{"S001", "S002", "S003"}},
	}
	for _, c := range cases {
		got := SplitAndTrim(c.in)
		if !reflect.DeepEqual(got, c.want) {
			t.Fatalf("SplitAndTrim(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestMergeStringSlices(t *testing.T) {
	got := MergeStringSlices([]string{"a", "b"}, []string{"b", "c", "a", "d"})
	want := []string{"a", "b", "c", "d"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("MergeStringSlices = %v, want %v", got, want)
	}

	got = MergeStringSlices(nil, []string{"x"})
	if !reflect.DeepEqual(got, []string{"x"}) {
		t.Fatalf("MergeStringSlices(nil, [x]) = %v", got)
	}
}

func TestContainsString(t *testing.T) {
	list := []string{"seller", "manager"}
	if !ContainsString(list, "seller") {
		t.Fatalf("expected seller to be found")
	}
	if ContainsString(list, "cleaner") {
		t.Fatalf("cleaner should not be found")
	}
	if ContainsString(nil, "seller") {
		t.Fatalf("nil list contains nothing")
	}
}
