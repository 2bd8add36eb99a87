package audio

import (
	"math"
	"time"
)

// dynamicEnergyRatio scales ambient energy into a speech threshold.
const dynamicEnergyRatio = 1.5

// prerollDuration of audio before the first voiced frame is kept so the
// onset of the phrase is not clipped.
const prerollDuration = 500 * time.Millisecond

// segmenter turns a stream of fixed-size frames into one phrase, the way an
// energy-gated recognizer does.
type segmenter struct {
	p         Profile
	threshold float64
	frameDur  time.Duration

	preroll    [][]int16
	prerollCap int

	out      []int16
	speaking bool
	waited   time.Duration
	phrase   time.Duration
	voiced   time.Duration
	silence  time.Duration
}

func newSegmenter(p Profile, threshold float64, frameDur time.Duration) *segmenter {
	if threshold <= 0 {
		threshold = p.EnergyThreshold
	}
	n := 1
	if frameDur > 0 {
		n = int(prerollDuration / frameDur)
		if n < 1 {
			n = 1
		}
	}

	return &segmenter{
		p:          p,
		threshold:  threshold,
		frameDur:   frameDur,
		prerollCap: n,
	}
}

// feed consumes one frame. It reports done once a phrase is complete and
// returns ErrCaptureTimeout if no phrase starts within the profile timeout.
func (s *segmenter) feed(frame []int16) (bool, error) {
	e := frameRMS(frame)

	if !s.speaking {
		s.waited += s.frameDur

		if e > s.threshold {
			s.speaking = true
			s.out = s.out[:0]
			for _, f := range s.preroll {
				s.out = append(s.out, f...)
			}
			s.preroll = s.preroll[:0]
			s.out = append(s.out, frame...)
			s.phrase = s.frameDur
			s.voiced = s.frameDur
			s.silence = 0
			return false, nil
		}

		s.pushPreroll(frame)

		if s.p.Timeout > 0 && s.waited >= s.p.Timeout {
			return false, ErrCaptureTimeout
		}
		return false, nil
	}

	s.out = append(s.out, frame...)
	s.phrase += s.frameDur

	if e > s.threshold {
		s.voiced += s.frameDur
		s.silence = 0
	} else {
		s.silence += s.frameDur
	}

	if s.p.PhraseTimeLimit > 0 && s.phrase >= s.p.PhraseTimeLimit {
		return true, nil
	}

	if s.silence >= s.p.PauseThreshold {
		if s.voiced < s.p.PhraseThreshold {
			// too short to be speech, keep waiting
			s.speaking = false
			s.out = s.out[:0]
			return false, nil
		}
		return true, nil
	}

	return false, nil
}

func (s *segmenter) samples() []int16 {
	return s.out
}

func (s *segmenter) pushPreroll(frame []int16) {
	f := append([]int16(nil), frame...)
	if len(s.preroll) >= s.prerollCap {
		copy(s.preroll, s.preroll[1:])
		s.preroll[len(s.preroll)-1] = f
		return
	}
	s.preroll = append(s.preroll, f)
}

// ambientThreshold derives a speech threshold from calibration frame energies.
func ambientThreshold(energies []float64) float64 {
	if len(energies) == 0 {
		return 0
	}
	var sum float64
	for _, e := range energies {
		sum += e
	}
	return sum / float64(len(energies)) * dynamicEnergyRatio
}

func frameRMS(f []int16) float64 {
	if len(f) == 0 {
		return 0
	}
	var s float64
	for _, x := range f {
		v := float64(x)
		s += v * v
	}
	return math.Sqrt(s / float64(len(f)))
}
