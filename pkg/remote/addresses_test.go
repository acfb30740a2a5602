package remote

import (
	"reflect"
	"testing"
)

func TestNormalizeAddresses(t *testing.T) {
	tests := []struct {
		name  string
		lists [][]string
		want  []string
	}{
		{"nil", nil, []string{}},
		{"blank entries", [][]string{{"", "  ", "\t"}}, []string{}},
		{"trim and slash", [][]string{{" http://a:1/ ", "http://b:2//"}}, []string{"http://a:1", "http://b:2"}},
		{"duplicates keep first", [][]string{{"http://b:2", "http://a:1", "http://b:2/"}}, []string{"http://b:2", "http://a:1"}},
		{"merge lists", [][]string{{"http://a:1"}, {"http://a:1", "http://c:3"}}, []string{"http://a:1", "http://c:3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeAddresses(tt.lists...)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("remote:addresses_test - NormalizeAddresses(%v) = %#v, want %#v", tt.lists, got, tt.want)
			}
		})
	}
}
