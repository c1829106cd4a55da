package audio

import "time"

// EnergyDetector reports the start of each utterance from chunk energy.
// Speech must stay above the threshold for the debounce period before it
// counts, and the detector re-arms only after the silence period.
type EnergyDetector struct {
	format    Format
	threshold float64
	debounce  time.Duration
	silence   time.Duration

	speaking bool
	loud     time.Duration
	quiet    time.Duration
}

// NewEnergyDetector creates a detector. threshold is an RMS level in [0, 1].
func NewEnergyDetector(format Format, threshold float64, debounce, silence time.Duration) *EnergyDetector {
	return &EnergyDetector{format: format, threshold: threshold, debounce: debounce, silence: silence}
}

// Feed processes one chunk and returns true exactly once per utterance, on
// the chunk where speech is confirmed.
func (d *EnergyDetector) Feed(chunk []byte) bool {
	dur := d.format.Duration(len(chunk))
	if RMSEnergy(chunk) >= d.threshold {
		d.quiet = 0
		d.loud += dur
		if !d.speaking && d.loud >= d.debounce {
			d.speaking = true
			return true
		}
		return false
	}

	d.loud = 0
	if d.speaking {
		d.quiet += dur
		if d.quiet >= d.silence {
			d.speaking = false
			d.quiet = 0
		}
	}
	return false
}

// Speaking reports whether an utterance is in progress.
func (d *EnergyDetector) Speaking() bool { return d.speaking }

// Reset forgets any utterance in progress.
func (d *EnergyDetector) Reset() {
	d.speaking = false
	d.loud = 0
	d.quiet = 0
}
