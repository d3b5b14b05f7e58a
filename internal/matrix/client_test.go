package matrix

import (
	"testing"

	"maunium.net/go/mautrix/id"
)

func TestShouldHandle(t *testing.T) {
	self := id.UserID("@bridge:example.org")
	other := id.UserID("@alice:example.org")
	const start = int64(1_000_000)

	cases := []struct {
		name   string
		sender id.UserID
		ts     int64
		want   bool
	}{
		{"own message is ignored", self, start + 10, false},
		{"backlog from before start is ignored", other, start - 1, false},
		{"fresh message from another user", other, start + 10, true},
		{"message at exactly start time", other, start, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := shouldHandle(self, tc.sender, tc.ts, start); got != tc.want {
				t.Errorf("shouldHandle(%q, ts=%d) = %v, want %v", tc.sender, tc.ts, got, tc.want)
			}
		})
	}
}
