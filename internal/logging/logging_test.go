package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewLevels(t *testing.T) {
	if got := New("debug", true).GetLevel(); got != logrus.DebugLevel {
		t.Errorf("level = %v, want debug", got)
	}
	if got := New("bogus", false).GetLevel(); got != logrus.InfoLevel {
		t.Errorf("level = %v, want info fallback", got)
	}
	if _, ok := New("info", false).Formatter.(*logrus.JSONFormatter); !ok {
		t.Errorf("expected JSON formatter outside dev")
	}
}
