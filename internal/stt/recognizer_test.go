package stt

import "testing"

func TestTranscribe_EmptyAudioIsEmptyTranscript(t *testing.T) {
	// Empty input returns before any model is touched.
	r := &Recognizer{}

	text, err := r.Transcribe(nil, "en")
	if err != nil {
		t.Fatalf("Transcribe(empty) returned error: %v", err)
	}
	if text != "" {
		t.Errorf("Transcribe(empty) = %q, want empty", text)
	}
}
