package codec

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"

	"github.com/MrWong99/curaai/pkg/audio"
)

// soxrResampler adapts the pure Go polyphase resampler. Its FIR filter holds
// back a window of input, which only Flush releases.
type soxrResampler struct {
	r resampling.Resampler
}

// NewSoxrResampler creates a high quality mono resampler. Equal rates yield
// a passthrough.
func NewSoxrResampler(srcRate, dstRate int) (Resampler, error) {
	if srcRate <= 0 || dstRate <= 0 {
		return nil, fmt.Errorf("invalid rates %d -> %d", srcRate, dstRate)
	}
	if srcRate == dstRate {
		return passthrough{}, nil
	}
	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(srcRate),
		OutputRate: float64(dstRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, err
	}
	return &soxrResampler{r: r}, nil
}

func (s *soxrResampler) Process(in []int16) ([]int16, error) {
	out, err := s.r.Process(audio.Int16sToFloat64(in))
	if err != nil {
		return nil, err
	}
	return audio.Float64sToInt16(out), nil
}

func (s *soxrResampler) Flush() ([]int16, error) {
	out, err := s.r.Flush()
	if err != nil {
		return nil, err
	}
	return audio.Float64sToInt16(out), nil
}

// linearResampler interpolates each frame independently. It keeps no state,
// so Flush is a no-op. Lower quality, but cheap and dependency free.
type linearResampler struct {
	src, dst int
}

// NewLinearResampler creates a stateless linear interpolation resampler.
func NewLinearResampler(srcRate, dstRate int) (Resampler, error) {
	if srcRate <= 0 || dstRate <= 0 {
		return nil, fmt.Errorf("invalid rates %d -> %d", srcRate, dstRate)
	}
	return linearResampler{src: srcRate, dst: dstRate}, nil
}

func (l linearResampler) Process(in []int16) ([]int16, error) {
	return audio.ResampleLinear(in, l.src, l.dst), nil
}

func (l linearResampler) Flush() ([]int16, error) { return nil, nil }

type passthrough struct{}

func (passthrough) Process(in []int16) ([]int16, error) { return in, nil }
func (passthrough) Flush() ([]int16, error)             { return nil, nil }

// ResamplerByName maps a configuration value to a factory. Unknown names
// return nil.
func ResamplerByName(name string) ResamplerFactory {
	switch name {
	case "", "soxr":
		return NewSoxrResampler
	case "linear":
		return NewLinearResampler
	default:
		return nil
	}
}
