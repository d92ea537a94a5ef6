package session

import "testing"

func TestStatus_String(t *testing.T) {
	tests := map[Status]string{
		Idle:              "idle",
		Connecting:        "connecting",
		AwaitingHandshake: "awaiting-handshake",
		Established:       "established",
		Closed:            "closed",
		Status(42):        "status(42)",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int32(s), got, want)
		}
	}
}

func TestStatus_Active(t *testing.T) {
	for _, s := range []Status{Connecting, AwaitingHandshake, Established} {
		if !s.Active() {
			t.Errorf("%s should be active", s)
		}
	}
	for _, s := range []Status{Idle, Closed} {
		if s.Active() {
			t.Errorf("%s should not be active", s)
		}
	}
}

func TestInfo_String(t *testing.T) {
	tests := []struct {
		info Info
		want string
	}{
		{Info{Status: Closed}, "closed"},
		{Info{Status: Connecting, Address: "10.0.0.5", Port: 21076}, "connecting 10.0.0.5:21076"},
		{Info{Status: Established, Address: "10.0.0.5", Port: 21076, Identity: "Player 1.2"},
			"established 10.0.0.5:21076 (Player 1.2)"},
	}
	for _, tt := range tests {
		if got := tt.info.String(); got != tt.want {
			t.Errorf("got %q, want %q", got, tt.want)
		}
	}
}
