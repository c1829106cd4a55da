package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/iris/internal/logging"
)

var pcm16k = Format{SampleRate: 16000}

// level returns d of constant-amplitude PCM whose RMS energy is amp.
func level(amp float64, d time.Duration) []byte {
	n := pcm16k.BytesFor(d) / 2
	v := int16(amp * 32768)
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func TestFormat(t *testing.T) {
	assert.Equal(t, 3200, pcm16k.BytesFor(100*time.Millisecond))
	assert.Equal(t, 100*time.Millisecond, pcm16k.Duration(3200))
	assert.Equal(t, time.Duration(0), Format{}.Duration(100))
}

func TestRMSEnergy(t *testing.T) {
	assert.Equal(t, 0.0, RMSEnergy(nil))
	assert.Equal(t, 0.0, RMSEnergy(level(0, 10*time.Millisecond)))
	assert.InDelta(t, 0.5, RMSEnergy(level(0.5, 10*time.Millisecond)), 0.001)
	assert.InDelta(t, 0.25, RMSEnergy(level(-0.25, 10*time.Millisecond)), 0.001)
}

func TestEnergyDetector(t *testing.T) {
	d := NewEnergyDetector(pcm16k, 0.1, 200*time.Millisecond, 300*time.Millisecond)
	loud := level(0.3, 100*time.Millisecond)
	quiet := level(0.01, 100*time.Millisecond)

	// A single loud blip is not speech.
	assert.False(t, d.Feed(loud))
	assert.False(t, d.Feed(quiet))
	assert.False(t, d.Feed(loud))

	// Sustained energy fires once.
	assert.True(t, d.Feed(loud))
	assert.True(t, d.Speaking())
	for i := 0; i < 5; i++ {
		assert.False(t, d.Feed(loud))
	}

	// A short pause does not re-arm.
	assert.False(t, d.Feed(quiet))
	assert.False(t, d.Feed(loud))
	assert.False(t, d.Feed(loud))

	// A long pause does.
	for i := 0; i < 3; i++ {
		d.Feed(quiet)
	}
	assert.False(t, d.Speaking())
	assert.False(t, d.Feed(loud))
	assert.True(t, d.Feed(loud))

	d.Reset()
	assert.False(t, d.Speaking())
}

func TestChunker(t *testing.T) {
	c := NewChunker(4)
	assert.Empty(t, c.Write([]byte{1, 2, 3}))
	assert.Equal(t, 3, c.Buffered())

	chunks := c.Write([]byte{4, 5, 6, 7, 8, 9, 10})
	assert.Equal(t, [][]byte{{1, 2, 3, 4}, {5, 6, 7, 8}}, chunks)
	assert.Equal(t, []byte{9, 10}, c.Flush())
	assert.Nil(t, c.Flush())

	assert.Equal(t, 6, NewChunker(5).size)
	assert.Equal(t, 2, NewChunker(0).size)
}

func TestChunker_DoesNotAliasInput(t *testing.T) {
	c := NewChunker(2)
	in := []byte{1, 2}
	out := c.Write(in)
	in[0] = 9
	assert.Equal(t, []byte{1, 2}, out[0])
}

type errReader struct {
	data []byte
	err  error
}

func (r *errReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestPump(t *testing.T) {
	var stream []byte
	stream = append(stream, level(0.01, 200*time.Millisecond)...)
	stream = append(stream, level(0.5, 300*time.Millisecond)...)
	stream = append(stream, 1, 2) // partial chunk

	var chunks [][]byte
	var speechAt []int
	p := &Pump{
		Reader:   bytes.NewReader(stream),
		Chunker:  NewChunker(pcm16k.BytesFor(100 * time.Millisecond)),
		Detector: NewEnergyDetector(pcm16k, 0.1, 200*time.Millisecond, time.Second),
		OnChunk:  func(c []byte) { chunks = append(chunks, c) },
		OnSpeech: func() { speechAt = append(speechAt, len(chunks)) },
	}
	require.NoError(t, p.Run(context.Background()))

	assert.Len(t, chunks, 6)
	assert.Equal(t, []byte{1, 2}, chunks[5])
	// Speech is reported before the chunk that confirmed it is forwarded.
	assert.Equal(t, []int{3}, speechAt)
}

func TestPump_ReadError(t *testing.T) {
	p := &Pump{
		Reader:  &errReader{data: []byte{1, 2, 3}, err: errors.New("device unplugged")},
		Chunker: NewChunker(1024),
	}
	var got []byte
	p.OnChunk = func(c []byte) { got = append(got, c...) }
	err := p.Run(context.Background())
	assert.EqualError(t, err, "audio capture: device unplugged")
	assert.Equal(t, []byte{1, 2, 3}, got)
}

func TestPump_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &Pump{Reader: &errReader{err: io.ErrUnexpectedEOF}, Chunker: NewChunker(2)}
	assert.NoError(t, p.Run(ctx))
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

// gateWriter blocks every write until released.
type gateWriter struct {
	syncBuffer
	gate chan struct{}
}

func (g *gateWriter) Write(p []byte) (int, error) {
	<-g.gate
	return g.syncBuffer.Write(p)
}

func TestWriterPlayback_PlaysAndReportsState(t *testing.T) {
	var mu sync.Mutex
	var transitions []string
	record := func(s string) func() {
		return func() {
			mu.Lock()
			defer mu.Unlock()
			transitions = append(transitions, s)
		}
	}

	out := &gateWriter{gate: make(chan struct{})}
	p := NewWriterPlayback(out, PlaybackOptions{
		Format:    pcm16k,
		OnStarted: record("started"),
		OnStopped: record("stopped"),
	}, logging.New(io.Discard, "silent"))
	defer p.Close()

	p.Enqueue([]byte{1, 2})
	p.Enqueue([]byte{3, 4})
	close(out.gate)
	require.Eventually(t, func() bool { return out.Len() == 4 && !p.IsPlaying() }, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"started", "stopped"}, transitions)
}

func TestWriterPlayback_StopDropsQueue(t *testing.T) {
	w := &gateWriter{gate: make(chan struct{})}
	stops := 0
	p := NewWriterPlayback(w, PlaybackOptions{Format: pcm16k, OnStopped: func() { stops++ }}, logging.New(io.Discard, "silent"))
	defer p.Close()

	p.Enqueue([]byte{1, 2})
	p.Enqueue([]byte{3, 4})
	p.Enqueue([]byte{5, 6})
	assert.True(t, p.IsPlaying())

	p.Stop()
	assert.False(t, p.IsPlaying())
	assert.Equal(t, 1, stops)
	p.Stop()
	assert.Equal(t, 1, stops)

	// Release the chunk that was already being written.
	close(w.gate)
	time.Sleep(20 * time.Millisecond)
	assert.LessOrEqual(t, w.Len(), 2)
	assert.False(t, p.IsPlaying())
}

func TestWriterPlayback_ClosedIgnoresEnqueue(t *testing.T) {
	p := NewWriterPlayback(io.Discard, PlaybackOptions{}, logging.New(io.Discard, "silent"))
	require.NoError(t, p.Close())
	p.Enqueue([]byte{1, 2})
	assert.False(t, p.IsPlaying())
}
