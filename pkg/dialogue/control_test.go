package dialogue

import "testing"

func TestFixControl(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want ControlBundle
	}{
		{
			name: "empty string falls back to default",
			raw:  "",
			want: DefaultControlBundle(),
		},
		{
			name: "malformed json falls back to default",
			raw:  "{not json",
			want: DefaultControlBundle(),
		},
		{
			name: "full bundle passes through",
			raw:  `{"diarization": true, "response": false, "emotion": "happy", "speed": "fast", "timbre": "warm"}`,
			want: ControlBundle{Diarization: true, Response: false, Emotion: "happy", Speed: "fast", Timbre: "warm"},
		},
		{
			name: "unknown keys are dropped",
			raw:  `{"response": false, "unexpected": "field", "nested": {"a": 1}}`,
			want: ControlBundle{Diarization: false, Response: false, Emotion: "default", Speed: "default", Timbre: "default"},
		},
		{
			name: "missing keys hold their defaults",
			raw:  `{"timbre": "warm"}`,
			want: ControlBundle{Diarization: false, Response: true, Emotion: "default", Speed: "default", Timbre: "warm"},
		},
		{
			name: "wrong-typed fields hold their defaults",
			raw:  `{"diarization": "yes", "response": 1, "emotion": 5, "speed": ["fast"], "timbre": null}`,
			want: DefaultControlBundle(),
		},
		{
			name: "empty string values do not override their defaults",
			raw:  `{"emotion": "", "speed": "", "timbre": ""}`,
			want: DefaultControlBundle(),
		},
		{
			name: "top-level json array falls back to default",
			raw:  `["diarization", true]`,
			want: DefaultControlBundle(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FixControl(tt.raw)
			if got.Diarization != tt.want.Diarization ||
				got.Response != tt.want.Response ||
				got.Emotion != tt.want.Emotion ||
				got.Speed != tt.want.Speed ||
				got.Timbre != tt.want.Timbre {
				t.Errorf("FixControl(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
			if got.Speech != nil || got.Transcript != "" {
				t.Errorf("FixControl(%q) should never populate Speech/Transcript, got %+v", tt.raw, got)
			}
		})
	}
}

func TestMergeSpeech(t *testing.T) {
	base := ControlBundle{Emotion: "happy", Speed: "fast", Timbre: "warm", Response: true}
	speech := []byte{1, 2, 3}
	transcript := "hello there"

	merged := MergeSpeech(base, speech, transcript)

	if string(merged.Speech) != string(speech) {
		t.Errorf("expected Speech %v, got %v", speech, merged.Speech)
	}
	if merged.Transcript != transcript {
		t.Errorf("expected Transcript %q, got %q", transcript, merged.Transcript)
	}
	if merged.Emotion != base.Emotion || merged.Speed != base.Speed || merged.Timbre != base.Timbre || merged.Response != base.Response {
		t.Errorf("MergeSpeech mutated unrelated fields: got %+v", merged)
	}
}
