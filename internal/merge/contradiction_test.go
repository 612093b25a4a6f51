package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpposingStances(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want bool
	}{
		{
			name: "opposing stances with shared subject",
			a:    "enforce strict validation",
			b:    "validation is unnecessary here",
			want: true,
		},
		{
			name: "opposing stances without shared subject",
			a:    "enforce strict validation",
			b:    "caching is unnecessary here",
			want: false,
		},
		{
			name: "same stance",
			a:    "add request validation",
			b:    "enforce strict validation",
			want: false,
		},
		{
			name: "both negative",
			a:    "remove the validation layer",
			b:    "validation is unnecessary here",
			want: false,
		},
		{
			name: "neutral wording never flags",
			a:    "validation lives in the handler",
			b:    "validation is unnecessary here",
			want: false,
		},
		{
			name: "mixed wording is ambiguous",
			a:    "add caching but remove validation",
			b:    "enforce strict validation",
			want: false,
		},
		{
			name: "case and spacing insensitive",
			a:    "Enforce   STRICT validation",
			b:    "Validation is UNNECESSARY here",
			want: true,
		},
		{
			name: "multi word negative marker",
			a:    "retries are not needed for this endpoint",
			b:    "add retries around the flaky endpoint",
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Finding{Text: tt.a, Category: "style"}
			b := Finding{Text: tt.b, Category: "style"}
			assert.Equal(t, tt.want, OpposingStances(a, b))
			assert.Equal(t, tt.want, OpposingStances(b, a), "predicate is symmetric")
		})
	}
}
