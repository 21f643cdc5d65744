package google

import (
	"errors"
	"testing"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"

	"live-transcription-service/internal/service/stt"
)

func TestParseAudioEncoding(t *testing.T) {
	tests := []struct {
		input    string
		expected speechpb.RecognitionConfig_AudioEncoding
	}{
		{"LINEAR16", speechpb.RecognitionConfig_LINEAR16},
		{"MULAW", speechpb.RecognitionConfig_MULAW},
		{"FLAC", speechpb.RecognitionConfig_FLAC},
		{"AMR", speechpb.RecognitionConfig_AMR},
		{"AMR_WB", speechpb.RecognitionConfig_AMR_WB},
		{"OGG_OPUS", speechpb.RecognitionConfig_OGG_OPUS},
		{"SPEEX_WITH_HEADER_BYTE", speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE},
		{"WEBM_OPUS", speechpb.RecognitionConfig_WEBM_OPUS},
		{"ENCODING_UNSPECIFIED", speechpb.RecognitionConfig_LINEAR16}, // fallback
		{"UNKNOWN", speechpb.RecognitionConfig_LINEAR16},              // fallback
		{"invalid", speechpb.RecognitionConfig_LINEAR16},              // fallback
		{"", speechpb.RecognitionConfig_LINEAR16},                     // fallback
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseAudioEncoding(tt.input)
			if got != tt.expected {
				t.Errorf("parseAudioEncoding(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseAudioEncoding_CaseSensitive(t *testing.T) {
	// Encoding strings should be uppercase
	tests := []struct {
		input    string
		expected speechpb.RecognitionConfig_AudioEncoding
	}{
		{"mulaw", speechpb.RecognitionConfig_LINEAR16}, // lowercase -> fallback
		{"Mulaw", speechpb.RecognitionConfig_LINEAR16}, // mixed case -> fallback
		{"MULAW", speechpb.RecognitionConfig_MULAW},    // uppercase -> match
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseAudioEncoding(tt.input)
			if got != tt.expected {
				t.Errorf("parseAudioEncoding(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestBuildStreamingConfig(t *testing.T) {
	got := buildStreamingConfig(stt.DefaultRecognitionConfig())

	want := &speechpb.StreamingRecognitionConfig{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:            16000,
			LanguageCode:               "en-US",
			MaxAlternatives:            1,
			EnableAutomaticPunctuation: true,
			Model:                      "latest_long",
		},
		InterimResults: true,
	}

	if !proto.Equal(got, want) {
		t.Errorf("buildStreamingConfig() = %v, want %v", got, want)
	}
}

func TestStreamingConfig_ClonesTemplate(t *testing.T) {
	b := &Backend{}
	cfg := stt.DefaultRecognitionConfig()

	first := b.streamingConfig(cfg)
	second := b.streamingConfig(cfg)
	if first == second {
		t.Fatal("expected a distinct message per connection")
	}
	if !proto.Equal(first, second) {
		t.Error("expected identical config for identical input")
	}

	cfg.LanguageCode = "de-DE"
	third := b.streamingConfig(cfg)
	if third.GetConfig().GetLanguageCode() != "de-DE" {
		t.Errorf("expected template rebuilt for new language, got %s", third.GetConfig().GetLanguageCode())
	}
}

func TestConvertResponse(t *testing.T) {
	resp := &speechpb.StreamingRecognizeResponse{
		Results: []*speechpb.StreamingRecognitionResult{
			{
				Alternatives: []*speechpb.SpeechRecognitionAlternative{
					{Transcript: "hello world", Confidence: 0.9},
				},
				IsFinal: true,
			},
			{},
		},
	}

	got := convertResponse(resp)
	if len(got.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got.Results))
	}

	alt, final, ok := got.Best()
	if !ok {
		t.Fatal("expected a best alternative")
	}
	if alt.Transcript != "hello world" || !final {
		t.Errorf("unexpected best alternative %+v final=%v", alt, final)
	}
	if len(got.Results[1].Alternatives) != 0 {
		t.Error("expected second result to have no alternatives")
	}
}

func TestConvertResponse_Empty(t *testing.T) {
	got := convertResponse(&speechpb.StreamingRecognizeResponse{})
	if _, _, ok := got.Best(); ok {
		t.Error("expected empty response to have no best alternative")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want stt.ErrorKind
	}{
		{"unauthenticated", status.Error(codes.Unauthenticated, "bad creds"), stt.KindConfig},
		{"permission denied", status.Error(codes.PermissionDenied, "no"), stt.KindConfig},
		{"invalid argument", status.Error(codes.InvalidArgument, "bad rate"), stt.KindConfig},
		{"out of range", status.Error(codes.OutOfRange, "Exceeded maximum allowed stream duration"), stt.KindStreamLimit},
		{"unavailable", status.Error(codes.Unavailable, "reset"), stt.KindTransient},
		{"internal", status.Error(codes.Internal, "5xx"), stt.KindTransient},
		{"resource exhausted", status.Error(codes.ResourceExhausted, "quota"), stt.KindTransient},
		{"plain error", errors.New("connection reset by peer"), stt.KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("recv", tt.err)
			if got := stt.KindOf(err); got != tt.want {
				t.Errorf("classify(%v) kind = %v, want %v", tt.err, got, tt.want)
			}
			if !errors.Is(err, tt.err) {
				t.Error("expected classified error to wrap the cause")
			}
		})
	}
}
