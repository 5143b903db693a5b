package message

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewStampsUTC(t *testing.T) {
	at := time.Date(2026, 10, 16, 12, 30, 0, 0, time.FixedZone("CEST", 2*3600))
	m := New(SenderUser, at, Text("hola"))
	require.Equal(t, time.UTC, m.Timestamp.Location())
	require.True(t, m.Timestamp.Equal(at))
}

func TestMessageValidate(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, New(SenderBot, at, Text("ok"), Link("https://a.test", "a")).Validate())

	require.Error(t, Message{Sender: "robot", Timestamp: at, Content: []Segment{Text("x")}}.Validate())
	require.Error(t, Message{Sender: SenderUser, Content: []Segment{Text("x")}}.Validate())
	require.Error(t, Message{Sender: SenderUser, Timestamp: at}.Validate())
	require.Error(t, New(SenderUser, at, Text("  ")).Validate())
	require.Error(t, New(SenderUser, at, Segment{Type: "image"}).Validate())
	require.Error(t, New(SenderUser, at, Link("ftp://files.test/x", "x")).Validate())
}

func TestSafeURL(t *testing.T) {
	for _, u := range []string{"https://a.test", "http://a.test/x?y=1", "mailto:me@a.test", " https://a.test "} {
		require.True(t, SafeURL(u), u)
	}
	for _, u := range []string{"javascript:alert(1)", "data:text/html,hi", "/relative", "https://", "mailto:", "::"} {
		require.False(t, SafeURL(u), u)
	}
}

func TestLinkDefaultsLabel(t *testing.T) {
	require.Equal(t, "https://a.test", Link("https://a.test", " ").Label)
}

func TestPlainText(t *testing.T) {
	m := Message{Content: []Segment{
		Text("Visita"),
		Link("https://a.test", "nuestra web"),
		Text(" o escribe a"),
		Link("mailto:x@a.test", "mailto:x@a.test"),
	}}
	require.Equal(t, "Visita nuestra web (https://a.test) o escribe a mailto:x@a.test", m.PlainText())
}

func TestSegmentsReplaceInvalidUTF8(t *testing.T) {
	require.Equal(t, "a\uFFFDb", Text("a\xffb").Value)
	l := Link("https://x.test/\xff", "ver \xfe")
	require.Equal(t, "https://x.test/\uFFFD", l.URL)
	require.Equal(t, "ver \uFFFD", l.Label)
}
