package grpcclient

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // JPEG decoder
	"image/png"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/GriffinCanCode/screen-translator/internal/capture"
	apperrors "github.com/GriffinCanCode/screen-translator/internal/errors"
	"github.com/GriffinCanCode/screen-translator/internal/model"
	"github.com/GriffinCanCode/screen-translator/internal/textdetect"
	"github.com/GriffinCanCode/screen-translator/internal/trace"
)

// The wire format uses well-known types only: the request is the frame as a
// PNG in a BytesValue, the response a ListValue of region structs.

func encodeFrame(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeRegions(regions []textdetect.Region) (*structpb.ListValue, error) {
	items := make([]any, 0, len(regions))
	for _, r := range regions {
		corners := make([]any, 0, len(r.Corners))
		for _, p := range r.Corners {
			corners = append(corners, []any{p.X, p.Y})
		}
		m := map[string]any{
			"text":     r.Text,
			"left":     r.Box.Left,
			"top":      r.Box.Top,
			"right":    r.Box.Right,
			"bottom":   r.Box.Bottom,
			"corners":  corners,
			"language": r.Language,
		}
		if r.HasConfidence {
			m["confidence"] = r.Confidence
		}
		items = append(items, m)
	}
	return structpb.NewList(items)
}

func decodeRegions(list *structpb.ListValue) ([]textdetect.Region, error) {
	regions := make([]textdetect.Region, 0, len(list.GetValues()))
	for i, v := range list.GetValues() {
		s := v.GetStructValue()
		if s == nil {
			return nil, fmt.Errorf("region %d is not an object", i)
		}
		f := s.GetFields()
		num := func(k string) int { return int(f[k].GetNumberValue()) }

		r := textdetect.Region{
			Text:     f["text"].GetStringValue(),
			Box:      model.Rect{Left: num("left"), Top: num("top"), Right: num("right"), Bottom: num("bottom")},
			Language: f["language"].GetStringValue(),
		}
		if c, ok := f["confidence"]; ok {
			r.Confidence = c.GetNumberValue()
			r.HasConfidence = true
		}
		for _, cv := range f["corners"].GetListValue().GetValues() {
			xy := cv.GetListValue().GetValues()
			if len(xy) != 2 {
				return nil, fmt.Errorf("region %d has a malformed corner", i)
			}
			r.Corners = append(r.Corners, textdetect.Point{X: xy[0].GetNumberValue(), Y: xy[1].GetNumberValue()})
		}
		regions = append(regions, r)
	}
	return regions, nil
}

var ocrServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*textdetect.Recognizer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Recognize", Handler: recognizeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ocr.proto",
}

func recognizeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	rec := srv.(textdetect.Recognizer)

	handle := func(ctx context.Context, req any) (any, error) {
		if lang := requestLanguage(ctx); lang != "" {
			ctx = textdetect.WithLanguage(ctx, lang)
		}
		data := req.(*wrapperspb.BytesValue).GetValue()
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.InvalidArgument, "decode frame").GRPCStatus().Err()
		}
		f := capture.NewFrame(img, time.Now())
		f.Format = capture.Encoded

		regions, err := rec.Recognize(ctx, f)
		if err != nil {
			trace.Logger(ctx).Warn("recognize failed", "error", err)
			return nil, apperrors.Wrap(err, apperrors.DetectionFailed, "recognize").GRPCStatus().Err()
		}
		return encodeRegions(regions)
	}

	if interceptor == nil {
		return handle(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodRecognize}
	return interceptor(ctx, in, info, handle)
}

// requestLanguage returns the OCR language hint sent by the client.
func requestLanguage(ctx context.Context) string {
	md, _ := metadata.FromIncomingContext(ctx)
	if v := md.Get(LanguageKey); len(v) > 0 {
		return v[0]
	}
	return ""
}

// NewServer exposes rec as the OCR service, with the standard health service
// reporting it as serving.
func NewServer(rec textdetect.Recognizer, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(trace.UnaryServerInterceptor())}, opts...)
	srv := grpc.NewServer(opts...)
	srv.RegisterService(&ocrServiceDesc, rec)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	grpc_health_v1.RegisterHealthServer(srv, hs)
	return srv
}
