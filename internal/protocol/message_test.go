package protocol

import "testing"

func TestMessage_String(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{"info", Info("account created: bob"), "[INFO] account created: bob"},
		{"error", Error("bad credentials"), "[ERROR] bad credentials"},
		{"you", You("alice", "hello   world"), "[you:alice] hello   world"},
		{"peer", Peer("alice", "hello"), "[peer:alice] hello"},
		{"pm", PM("bob", "psst"), "[pm:bob] psst"},
		{"pm sent", PMSent("carol", "psst"), "[pm-sent:carol] psst"},
		{"run stdout", RunOut("c", "42"), "[run-out:c] 42"},
		{"run stderr", RunErr("c", "boom"), "[run-err:c] boom"},
		{"infof", Infof("exit code %d", 124), "[INFO] exit code 124"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParse_RoundTrip(t *testing.T) {
	msgs := []Message{
		Info("hello"),
		Error("nope"),
		You("alice", "a  b  c"),
		Peer("bob", "hey"),
		PM("carol", "secret"),
		PMSent("dave", "secret"),
		RunOut("cpp", "output"),
		RunErr("shell", "oops"),
	}
	for _, m := range msgs {
		got := Parse(m.String())
		if got != m {
			t.Errorf("Parse(%q) = %+v, want %+v", m.String(), got, m)
		}
	}
}

func TestParse_UnknownTagFallsBackToServerLine(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"future tag", "[typing:alice] ..."},
		{"bare text", "plain server notice"},
		{"malformed bracket", "[oops no close"},
		{"empty tag", "[] text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.line)
			if got.Kind != KindServer {
				t.Errorf("Parse(%q).Kind = %v, want KindServer", tt.line, got.Kind)
			}
		})
	}
}

func TestParse_PreservesBodyWhitespace(t *testing.T) {
	got := Parse("[pm:alice]   spaced   out  ")
	if got.Text != "  spaced   out  " {
		t.Errorf("Text = %q, internal whitespace must survive", got.Text)
	}
}
