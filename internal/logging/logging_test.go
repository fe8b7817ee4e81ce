package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoggerLevels(t *testing.T) {
	cases := []struct {
		note  string
		level Level
		exp   []string
		unexp []string
	}{
		{
			note:  "unset level logs warnings",
			exp:   []string{"warned", "failed"},
			unexp: []string{"debugged", "informed"},
		},
		{
			note:  "debug logs everything",
			level: Debug,
			exp:   []string{"debugged", "informed", "warned", "failed"},
		},
		{
			note:  "error only",
			level: Error,
			exp:   []string{"failed"},
			unexp: []string{"debugged", "informed", "warned"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			var buf bytes.Buffer
			l := NewLogger(Config{Level: tc.level, Format: JSON, Output: &buf})
			l.Debugf("debugged %d", 1)
			l.Infof("informed %d", 2)
			l.Warnf("warned %d", 3)
			l.Errorf("failed %d", 4)

			out := buf.String()
			for _, s := range tc.exp {
				if !strings.Contains(out, s) {
					t.Errorf("expected %q in output:\n%s", s, out)
				}
			}
			for _, s := range tc.unexp {
				if strings.Contains(out, s) {
					t.Errorf("did not expect %q in output:\n%s", s, out)
				}
			}
		})
	}
}

func TestLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(Config{Level: Info, Format: JSON, Output: &buf}).With("binary", "/app/bin/tool")
	l.Infof("hello")

	if !strings.Contains(buf.String(), `"binary":"/app/bin/tool"`) {
		t.Fatalf("missing field in %s", buf.String())
	}
}

func TestNop(t *testing.T) {
	NewNop().Errorf("nothing %s", "happens")
}

func TestNilLogger(t *testing.T) {
	var l *Logger
	l.Debugf("x")
	l.With("k", "v").Errorf("y")
}

func TestParse(t *testing.T) {
	if l, err := ParseLevel("warning"); err != nil || l != Warn {
		t.Fatalf("expected warn, got %v %v", l, err)
	}
	if f, err := ParseFormat("json"); err != nil || f != JSON {
		t.Fatalf("expected json, got %v %v", f, err)
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatal("expected error")
	}
}
