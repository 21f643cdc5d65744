// Package google provides a Google Cloud Speech-to-Text backend.
package google

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"

	"live-transcription-service/internal/service/stt"
)

// Config holds client options for the Google backend.
type Config struct {
	Endpoint string // optional API endpoint override
	// MaxStreamDuration is advertised to the session manager when set.
	MaxStreamDuration time.Duration
}

// Backend implements stt.Backend using Google Cloud Speech-to-Text streaming
// recognition. Every Open is a new StreamingRecognize call.
type Backend struct {
	client      *speech.Client
	maxDuration time.Duration

	mu       sync.Mutex
	lastCfg  stt.RecognitionConfig
	template *speechpb.StreamingRecognitionConfig
}

// New creates a new Google STT backend.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	c, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, stt.Config("new_client", err)
	}
	return &Backend{client: c, maxDuration: cfg.MaxStreamDuration}, nil
}

// Name identifies the provider.
func (b *Backend) Name() string {
	return "google"
}

// MaxStreamDuration returns the configured connection limit, zero if unset.
func (b *Backend) MaxStreamDuration() time.Duration {
	return b.maxDuration
}

// Open starts a streaming recognition call and sends the config as the first message.
func (b *Backend) Open(ctx context.Context, cfg stt.RecognitionConfig) (stt.Stream, error) {
	ctx, cancel := context.WithCancel(ctx)

	client, err := b.client.StreamingRecognize(ctx)
	if err != nil {
		cancel()
		return nil, classify("open", err)
	}

	err = client.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: b.streamingConfig(cfg),
		},
	})
	if err != nil {
		cancel()
		return nil, classify("send_config", err)
	}

	return &stream{client: client, cancel: cancel}, nil
}

// streamingConfig returns a fresh copy of the config message for cfg. Each
// connection owns its message.
func (b *Backend) streamingConfig(cfg stt.RecognitionConfig) *speechpb.StreamingRecognitionConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.template == nil || b.lastCfg != cfg {
		b.template = buildStreamingConfig(cfg)
		b.lastCfg = cfg
	}
	return proto.Clone(b.template).(*speechpb.StreamingRecognitionConfig)
}

// Close releases the underlying gRPC client.
func (b *Backend) Close() error {
	return b.client.Close()
}

type stream struct {
	client    speechpb.Speech_StreamingRecognizeClient
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Send sends audio bytes to Google Speech-to-Text.
func (s *stream) Send(_ context.Context, audio []byte) error {
	err := s.client.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audio,
		},
	})
	if err != nil {
		return classify("send", err)
	}
	return nil
}

func (s *stream) CloseSend() error {
	return s.client.CloseSend()
}

// Recv receives the next response. In-band errors reported in the response
// are classified like transport errors.
func (s *stream) Recv() (*stt.Response, error) {
	resp, err := s.client.Recv()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, classify("recv", err)
	}
	if st := resp.GetError(); st != nil && codes.Code(st.GetCode()) != codes.OK {
		return nil, classify("recv", status.ErrorProto(st))
	}
	return convertResponse(resp), nil
}

func (s *stream) Close() error {
	s.closeOnce.Do(s.cancel)
	return nil
}

func buildStreamingConfig(cfg stt.RecognitionConfig) *speechpb.StreamingRecognitionConfig {
	return &speechpb.StreamingRecognitionConfig{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   parseAudioEncoding(cfg.Encoding),
			SampleRateHertz:            int32(cfg.SampleRateHz),
			LanguageCode:               cfg.LanguageCode,
			MaxAlternatives:            int32(cfg.MaxAlternatives),
			EnableAutomaticPunctuation: cfg.EnableAutomaticPunctuation,
			Model:                      cfg.Model,
		},
		InterimResults: cfg.InterimResults,
	}
}

// parseAudioEncoding maps an encoding name to the API enum. Unknown names and
// ENCODING_UNSPECIFIED fall back to LINEAR16. Names are case sensitive.
func parseAudioEncoding(s string) speechpb.RecognitionConfig_AudioEncoding {
	v, ok := speechpb.RecognitionConfig_AudioEncoding_value[s]
	if !ok || v == int32(speechpb.RecognitionConfig_ENCODING_UNSPECIFIED) {
		return speechpb.RecognitionConfig_LINEAR16
	}
	return speechpb.RecognitionConfig_AudioEncoding(v)
}

func convertResponse(resp *speechpb.StreamingRecognizeResponse) *stt.Response {
	out := &stt.Response{Results: make([]stt.Result, 0, len(resp.GetResults()))}
	for _, r := range resp.GetResults() {
		res := stt.Result{IsFinal: r.GetIsFinal()}
		for _, a := range r.GetAlternatives() {
			res.Alternatives = append(res.Alternatives, stt.Alternative{
				Transcript: a.GetTranscript(),
				Confidence: a.GetConfidence(),
			})
		}
		out.Results = append(out.Results, res)
	}
	return out
}

// classify maps gRPC status codes to the backend error taxonomy. OUT_OF_RANGE
// is what the API returns when a stream exceeds its maximum duration.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return stt.Transient(op, err)
	}
	st, ok := status.FromError(err)
	if !ok {
		return stt.Transient(op, err)
	}
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied, codes.InvalidArgument,
		codes.FailedPrecondition, codes.NotFound, codes.Unimplemented:
		return stt.Config(op, err)
	case codes.OutOfRange:
		return stt.StreamLimit(op, err)
	default:
		return stt.Transient(op, err)
	}
}
