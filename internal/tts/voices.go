package tts

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
)

// Voice is a Kokoro v1.0 speaker.
type Voice struct {
	Name       string
	SpeakerID  int
	EspeakCode string // Language code for espeak-ng
	Language   string // Human-readable language name
}

// voiceGroups lists the Kokoro multi-lang v1.0 voices in speaker ID order.
var voiceGroups = []struct {
	language string
	espeak   string
	names    []string
}{
	{"American English", "en-us", []string{
		"af_alloy", "af_aoede", "af_bella", "af_heart", "af_jessica", "af_kore", "af_nicole",
		"af_nova", "af_river", "af_sarah", "af_sky", "am_adam", "am_echo", "am_eric",
		"am_fenrir", "am_liam", "am_michael", "am_onyx", "am_puck", "am_santa",
	}},
	{"British English", "en-gb", []string{
		"bf_alice", "bf_emma", "bf_isabella", "bf_lily", "bm_daniel", "bm_fable", "bm_george", "bm_lewis",
	}},
	{"Spanish", "es", []string{"ef_dora", "em_alex"}},
	{"French", "fr-fr", []string{"ff_siwis"}},
	{"Hindi", "hi", []string{"hf_alpha", "hf_beta", "hm_omega", "hm_psi"}},
	{"Italian", "it", []string{"if_sara", "im_nicola"}},
	{"Japanese", "ja", []string{"jf_alpha", "jf_gongitsune", "jf_nezumi", "jf_tebukuro", "jm_kumo"}},
	{"Portuguese BR", "pt-br", []string{"pf_dora", "pm_alex", "pm_santa"}},
	{"Mandarin Chinese", "cmn", []string{
		"zf_xiaobei", "zf_xiaoni", "zf_xiaoxiao", "zf_xiaoyi", "zm_yunjian", "zm_yunxi", "zm_yunxia", "zm_yunyang",
	}},
}

// Voices maps voice names to their metadata.
var Voices = buildVoices()

func buildVoices() map[string]Voice {
	voices := make(map[string]Voice)
	id := 0
	for _, g := range voiceGroups {
		for _, name := range g.names {
			voices[name] = Voice{Name: name, SpeakerID: id, EspeakCode: g.espeak, Language: g.language}
			id++
		}
	}
	return voices
}

// LookupVoice returns the voice with the given name.
func LookupVoice(name string) (Voice, bool) {
	v, ok := Voices[name]
	return v, ok
}

// Lexicon returns the lexicon files for voice inside the Kokoro model
// directory. Non-English, non-Chinese voices use espeak-ng instead and get "".
func Lexicon(modelDir string, voice Voice) string {
	switch voice.EspeakCode {
	case "en-us":
		return filepath.Join(modelDir, "lexicon-us-en.txt")
	case "en-gb":
		return filepath.Join(modelDir, "lexicon-gb-en.txt")
	case "cmn":
		// Chinese lexicon with English fallback
		return filepath.Join(modelDir, "lexicon-us-en.txt") + "," + filepath.Join(modelDir, "lexicon-zh.txt")
	default:
		return ""
	}
}

// EspeakLanguage returns the espeak-ng language for voices without a lexicon.
func EspeakLanguage(voice Voice) string {
	switch voice.EspeakCode {
	case "en-us", "en-gb", "cmn":
		return ""
	default:
		return voice.EspeakCode
	}
}

// PrintVoices writes all voices grouped by language.
func PrintVoices(w io.Writer) {
	fmt.Fprintf(w, "Kokoro TTS v1.0 - %d voices across %d languages\n", len(Voices), len(voiceGroups))
	for _, g := range voiceGroups {
		names := append([]string(nil), g.names...)
		sort.Strings(names)

		fmt.Fprintf(w, "\n── %s (%d voices) ──\n", g.language, len(names))
		fmt.Fprintf(w, "%-15s %-4s %s\n", "VOICE", "ID", "ESPEAK")
		fmt.Fprintln(w, strings.Repeat("─", 50))
		for _, name := range names {
			v := Voices[name]
			fmt.Fprintf(w, "%-15s %-4d %s\n", name, v.SpeakerID, v.EspeakCode)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Set conversation.voice in config.yaml to pick one (speaker: kokoro).")
}

// PrintVoiceInfo writes details for one voice.
func PrintVoiceInfo(w io.Writer, name string) error {
	v, ok := LookupVoice(name)
	if !ok {
		return fmt.Errorf("voice '%s' not found. Run with -list-voices to see available voices", name)
	}
	fmt.Fprintf(w, "Voice:       %s\n", name)
	fmt.Fprintf(w, "Speaker ID:  %d\n", v.SpeakerID)
	fmt.Fprintf(w, "Language:    %s\n", v.Language)
	fmt.Fprintf(w, "Espeak code: %s\n", v.EspeakCode)
	return nil
}
