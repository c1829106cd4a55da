package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Pump reads microphone PCM, cuts it into chunks and reports speech onset.
type Pump struct {
	Reader   io.Reader
	Chunker  *Chunker
	Detector *EnergyDetector // optional
	OnChunk  func([]byte)
	OnSpeech func()
	ReadSize int
}

// Run pumps until the reader ends or ctx is cancelled. A blocked Read is
// only interrupted by closing the reader. EOF is a clean stop.
func (p *Pump) Run(ctx context.Context) error {
	size := p.ReadSize
	if size < 256 {
		size = 4096
	}
	buf := make([]byte, size)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		n, err := p.Reader.Read(buf)
		if n > 0 {
			for _, chunk := range p.Chunker.Write(buf[:n]) {
				p.emit(chunk)
			}
		}
		if err != nil {
			if rest := p.Chunker.Flush(); rest != nil {
				p.emit(rest)
			}
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("audio capture: %w", err)
		}
	}
}

func (p *Pump) emit(chunk []byte) {
	if p.Detector != nil && p.Detector.Feed(chunk) && p.OnSpeech != nil {
		p.OnSpeech()
	}
	if p.OnChunk != nil {
		p.OnChunk(chunk)
	}
}
