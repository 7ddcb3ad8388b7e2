// Package protocol defines the line-oriented wire grammar spoken over a chat
// connection. Outbound traffic is modelled as a closed set of message kinds
// and only rendered to its textual form at the transport boundary.
package protocol

import (
	"fmt"
	"strings"
)

// Kind discriminates outbound message variants.
type Kind int

const (
	// KindServer is a generic server line. It is also the fallback for
	// inbound lines whose tag the parser does not recognize.
	KindServer Kind = iota
	KindInfo
	KindError
	KindYou    // echo of the sender's own chat line
	KindPeer   // broadcast chat line from another user
	KindPM     // private message from another user
	KindPMSent // acknowledgment of a sent private message
	KindRunOut // one line of captured stdout from /run
	KindRunErr // one line of captured stderr from /run
)

// Wire tags for the name-carrying kinds.
const (
	tagYou    = "you"
	tagPeer   = "peer"
	tagPM     = "pm"
	tagPMSent = "pm-sent"
	tagRunOut = "run-out"
	tagRunErr = "run-err"
)

// Message is one outbound line. Name is the username (or language tag for the
// run kinds) carried inside the wire tag; it is empty for INFO/ERROR/server
// lines.
type Message struct {
	Kind Kind
	Name string
	Text string
}

func Info(text string) Message  { return Message{Kind: KindInfo, Text: text} }
func Error(text string) Message { return Message{Kind: KindError, Text: text} }

func Infof(format string, args ...any) Message  { return Info(fmt.Sprintf(format, args...)) }
func Errorf(format string, args ...any) Message { return Error(fmt.Sprintf(format, args...)) }

// You tags the sender's own echoed chat line.
func You(username, text string) Message {
	return Message{Kind: KindYou, Name: username, Text: text}
}

// Peer tags a broadcast chat line originating from username.
func Peer(username, text string) Message {
	return Message{Kind: KindPeer, Name: username, Text: text}
}

// PM tags a private message originating from username.
func PM(username, text string) Message {
	return Message{Kind: KindPM, Name: username, Text: text}
}

// PMSent acknowledges to the sender that a private message reached username.
func PMSent(username, text string) Message {
	return Message{Kind: KindPMSent, Name: username, Text: text}
}

// RunOut carries one line of stdout captured from a /run execution.
func RunOut(lang, text string) Message {
	return Message{Kind: KindRunOut, Name: lang, Text: text}
}

// RunErr carries one line of stderr captured from a /run execution.
func RunErr(lang, text string) Message {
	return Message{Kind: KindRunErr, Name: lang, Text: text}
}

// String renders the message to its wire form:
// "[INFO] text", "[ERROR] text" or "[tag:name] text".
func (m Message) String() string {
	switch m.Kind {
	case KindInfo:
		return "[INFO] " + m.Text
	case KindError:
		return "[ERROR] " + m.Text
	case KindYou:
		return tagged(tagYou, m.Name, m.Text)
	case KindPeer:
		return tagged(tagPeer, m.Name, m.Text)
	case KindPM:
		return tagged(tagPM, m.Name, m.Text)
	case KindPMSent:
		return tagged(tagPMSent, m.Name, m.Text)
	case KindRunOut:
		return tagged(tagRunOut, m.Name, m.Text)
	case KindRunErr:
		return tagged(tagRunErr, m.Name, m.Text)
	default:
		return m.Text
	}
}

func tagged(tag, name, text string) string {
	return "[" + tag + ":" + name + "] " + text
}

// Parse interprets one inbound server line on the receiving side. A line that
// carries no tag, or a tag Parse does not know, comes back as KindServer with
// the raw line as Text so newer server tags degrade gracefully.
func Parse(line string) Message {
	if !strings.HasPrefix(line, "[") {
		return Message{Kind: KindServer, Text: line}
	}
	end := strings.Index(line, "] ")
	if end < 0 {
		return Message{Kind: KindServer, Text: line}
	}
	tag := line[1:end]
	text := line[end+2:]

	switch tag {
	case "INFO":
		return Message{Kind: KindInfo, Text: text}
	case "ERROR":
		return Message{Kind: KindError, Text: text}
	}

	name := ""
	if i := strings.Index(tag, ":"); i >= 0 {
		tag, name = tag[:i], tag[i+1:]
	}
	switch tag {
	case tagYou:
		return Message{Kind: KindYou, Name: name, Text: text}
	case tagPeer:
		return Message{Kind: KindPeer, Name: name, Text: text}
	case tagPM:
		return Message{Kind: KindPM, Name: name, Text: text}
	case tagPMSent:
		return Message{Kind: KindPMSent, Name: name, Text: text}
	case tagRunOut:
		return Message{Kind: KindRunOut, Name: name, Text: text}
	case tagRunErr:
		return Message{Kind: KindRunErr, Name: name, Text: text}
	}
	return Message{Kind: KindServer, Text: line}
}
