// Package grpcclient talks to a remote OCR service over gRPC.
package grpcclient

import "time"

const (
	ServiceName     = "screentranslator.ocr.v1.OCR"
	MethodRecognize = "/" + ServiceName + "/Recognize"

	// LanguageKey carries the OCR language hint in request metadata.
	LanguageKey = "x-ocr-language"

	DefaultKeepaliveTime    = 10 * time.Second
	DefaultKeepaliveTimeout = 3 * time.Second

	DefaultHealthCheckInterval = 5 * time.Second
	HealthCheckTimeout         = 2 * time.Second

	// DefaultRecognizeTimeout bounds one OCR call; a frame that takes longer
	// is stale anyway.
	DefaultRecognizeTimeout = 3 * time.Second
)
