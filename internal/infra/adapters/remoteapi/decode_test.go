package remoteapi

import (
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func newLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

func collectDeltas(t *testing.T, dec decodeFunc, input string) []string {
	t.Helper()
	var got []string
	err := dec(strings.NewReader(input), func(d string) error {
		got = append(got, d)
		return nil
	}, newLogger())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return got
}

func assertDeltas(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("deltas = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("deltas = %q, want %q", got, want)
		}
	}
}

func TestDecodeTokenDeltaSSE(t *testing.T) {
	input := "data: {\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\" world\"}}]}\n\n" +
		"data: [DONE]\n\n"
	assertDeltas(t, collectDeltas(t, decodeTokenDeltaSSE, input), []string{"Hello", " world"})
}

func TestDecodeTokenDeltaSSESkipsMalformed(t *testing.T) {
	input := "data: {\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n\n" +
		"data: {not json at all\n\n" +
		"data: {\"choices\":[]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\" world\"}}]}\n\n" +
		"data: [DONE]\n\n"
	assertDeltas(t, collectDeltas(t, decodeTokenDeltaSSE, input), []string{"Hello", " world"})
}

func TestDecodeTokenDeltaSSEIgnoresNonDataLines(t *testing.T) {
	input := "event: message\r\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\r\n" +
		"\r\n" +
		"data: [DONE]\n"
	assertDeltas(t, collectDeltas(t, decodeTokenDeltaSSE, input), []string{"Hi"})
}

func TestDecodeTypedEventSSE(t *testing.T) {
	input := "data: {\"type\":\"content_block_delta\",\"delta\":{\"text\":\"Hello\"}}\n\n" +
		"data: {\"type\":\"content_block_delta\",\"delta\":{\"text\":\" world\"}}\n\n"
	assertDeltas(t, collectDeltas(t, decodeTypedEventSSE, input), []string{"Hello", " world"})
}

func TestDecodeTypedEventSSEOnlyContentBlockDelta(t *testing.T) {
	input := "data: {\"type\":\"message_start\",\"message\":{}}\n\n" +
		"data: {\"type\":\"content_block_start\",\"content_block\":{\"type\":\"text\"}}\n\n" +
		"data: {\"type\":\"content_block_delta\",\"delta\":{\"text\":\"only this\"}}\n\n" +
		"data: {\"type\":\"message_stop\"}\n\n"
	assertDeltas(t, collectDeltas(t, decodeTypedEventSSE, input), []string{"only this"})
}

func TestDecodeNDJSON(t *testing.T) {
	input := "{\"message\":{\"content\":\"Hello\"}}\n" +
		"{\"message\":{\"content\":\" world\"}}\n" +
		"{\"done\":true}\n"
	assertDeltas(t, collectDeltas(t, decodeNDJSON, input), []string{"Hello", " world"})
}

func TestDecodeNDJSONStopsAtDone(t *testing.T) {
	input := "{\"message\":{\"content\":\"Hello\"}}\n" +
		"{\"done\":true}\n" +
		"{\"message\":{\"content\":\"never seen\"}}\n"
	assertDeltas(t, collectDeltas(t, decodeNDJSON, input), []string{"Hello"})
}

func TestDecodeNDJSONSkipsMalformedAndBlankLines(t *testing.T) {
	input := "\n" +
		"garbage line\n" +
		"{\"message\":{\"content\":\"ok\"}}\n" +
		"{\"done\":true}\n"
	assertDeltas(t, collectDeltas(t, decodeNDJSON, input), []string{"ok"})
}

func TestDecodeEmitErrorAborts(t *testing.T) {
	stop := errors.New("consumer gone")
	input := "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n\n" +
		"data: [DONE]\n\n"
	var n int
	err := decodeTokenDeltaSSE(strings.NewReader(input), func(string) error {
		n++
		return stop
	}, newLogger())
	if !errors.Is(err, stop) {
		t.Fatalf("decode error = %v, want %v", err, stop)
	}
	if n != 1 {
		t.Fatalf("emit called %d times, want 1", n)
	}
}

func TestDecoderFor(t *testing.T) {
	for flavor, want := range map[string]string{
		FlavorOpenAI:    "Hello",
		FlavorAnthropic: "Hello",
		FlavorOllama:    "Hello",
	} {
		inputs := map[string]string{
			FlavorOpenAI:    "data: {\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n\ndata: [DONE]\n\n",
			FlavorAnthropic: "data: {\"type\":\"content_block_delta\",\"delta\":{\"text\":\"Hello\"}}\n\n",
			FlavorOllama:    "{\"message\":{\"content\":\"Hello\"},\"done\":true}\n",
		}
		got := collectDeltas(t, decoderFor(flavor), inputs[flavor])
		if len(got) != 1 || got[0] != want {
			t.Errorf("flavor %s: deltas = %q", flavor, got)
		}
	}
}
