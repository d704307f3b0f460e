package goroutineid

import (
	"sync"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		stack string
		want  int64
	}{
		{"goroutine 1 [running]:\nmain.main()", 1},
		{"goroutine 18446 [running]:", 18446},
		{"goroutine ", 0},
		{"thread 7 [running]:", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := parse([]byte(tt.stack)); got != tt.want {
			t.Errorf("parse(%q) = %d, want %d", tt.stack, got, tt.want)
		}
	}
}

func TestGet(t *testing.T) {
	self := Get()
	if self == 0 {
		t.Fatal("Get returned 0")
	}
	if again := Get(); again != self {
		t.Errorf("Get = %d then %d on the same goroutine", self, again)
	}

	var (
		wg    sync.WaitGroup
		other int64
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		other = Get()
	}()
	wg.Wait()
	if other == 0 || other == self {
		t.Errorf("other goroutine id = %d, self = %d", other, self)
	}
}
