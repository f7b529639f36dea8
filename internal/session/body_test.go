package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeFormBody(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "sensitive form field",
			in:   "username=alice&password=hunter2",
			want: "password=%5BREDACTED%5D&username=alice",
		},
		{
			name: "repeated sensitive field collapses",
			in:   "token=a&token=b&page=1",
			want: "page=1&token=%5BREDACTED%5D",
		},
		{
			name: "benign form kept byte for byte",
			in:   "b=2&a=1",
			want: "b=2&a=1",
		},
		{
			name: "json body untouched",
			in:   `{"password":"hunter2"}`,
			want: `{"password":"hunter2"}`,
		},
		{
			name: "plain text untouched",
			in:   "hello world",
			want: "hello world",
		},
		{
			name: "empty body untouched",
			in:   "",
			want: "",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, sanitizeFormBody(tt.in))
		})
	}
}
