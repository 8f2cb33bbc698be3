//go:build !gocv

package bubble

func NewGocvExtractor() (Extractor, error) {
	return nil, ErrGocvUnavailable
}
