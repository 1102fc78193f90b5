package outcome

import "testing"

func TestDerive(t *testing.T) {
	cases := []struct {
		ok, failed int
		want       Status
	}{
		{0, 0, StatusSuccess},
		{3, 0, StatusSuccess},
		{0, 2, StatusError},
		{2, 1, StatusPartial},
	}
	for _, tc := range cases {
		if got := Derive(tc.ok, tc.failed); got != tc.want {
			t.Fatalf("Derive(%d, %d) = %s, want %s", tc.ok, tc.failed, got, tc.want)
		}
	}

	if StatusRunning.Terminal() || !StatusPartial.Terminal() {
		t.Fatalf("unexpected terminal classification")
	}
}

func TestAborted(t *testing.T) {
	if got := Aborted(0); got != StatusError {
		t.Fatalf("Aborted(0) = %s, want error", got)
	}
	if got := Aborted(1); got != StatusPartial {
		t.Fatalf("Aborted(1) = %s, want partial", got)
	}
}
