package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestAuthorValidate(t *testing.T) {
	cases := []struct {
		name   string
		author Author
		want   error
	}{
		{name: "valid", author: Author{ID: "u1", Name: "Alice"}, want: nil},
		{name: "empty id", author: Author{Name: "Alice"}, want: ErrUserIDInvalid},
		{name: "id too long", author: Author{ID: UserID(strings.Repeat("x", MaxUserIDLen+1)), Name: "Alice"}, want: ErrUserIDInvalid},
		{name: "empty name", author: Author{ID: "u1"}, want: ErrNameEmpty},
		{name: "name too long", author: Author{ID: "u1", Name: strings.Repeat("x", MaxNameLen+1)}, want: ErrNameTooLong},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.author.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}
