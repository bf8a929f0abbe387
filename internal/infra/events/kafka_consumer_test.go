package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// fakeFetcher entrega los mensajes precargados y después bloquea hasta que
// el contexto se cancele, como haría un reader sin tráfico.
type fakeFetcher struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []kafka.Message
}

func (f *fakeFetcher) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if len(f.pending) > 0 {
		msg := f.pending[0]
		f.pending = f.pending[1:]
		f.mu.Unlock()
		return msg, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeFetcher) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed = append(f.committed, msgs...)
	return nil
}

func (f *fakeFetcher) Config() kafka.ReaderConfig {
	return kafka.ReaderConfig{Topic: "matching_events"}
}

func (f *fakeFetcher) committedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.committed)
}

type fakeWriter struct {
	mu       sync.Mutex
	written  []kafka.Message
	writeErr error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.writeErr != nil {
		return w.writeErr
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) writtenCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.written)
}

// failingHandler falla siempre y cuenta los intentos.
type failingHandler struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (h *failingHandler) HandleMessage(ctx context.Context, key string, payload []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	return h.err
}

func (h *failingHandler) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func poisonMessage() kafka.Message {
	return kafka.Message{
		Topic: "matching_events",
		Key:   []byte("trip-1"),
		Value: []byte(`{"broken":true}`),
	}
}

func TestConsumerAdapter_RetryExhaustionSendsToDltAndCommits(t *testing.T) {
	fetcher := &fakeFetcher{pending: []kafka.Message{poisonMessage()}}
	dlt := &fakeWriter{}
	handler := &failingHandler{err: errors.New("línea con acento áéíóú que no cabe")}

	adapter := NewConsumerAdapter(fetcher, handler, dlt, 3, time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	adapter.Start(ctx)

	// El mensaje venenoso agota los reintentos, va a la DLT y el offset avanza.
	assert.Eventually(t, func() bool {
		return fetcher.committedCount() == 1 && dlt.writtenCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 3, handler.callCount())

	dltMsg := dlt.written[0]
	assert.Equal(t, "matching_events"+DltSuffix, dltMsg.Topic)
	assert.Equal(t, []byte("trip-1"), dltMsg.Key)
	assert.Equal(t, []byte(`{"broken":true}`), dltMsg.Value)

	assert.Len(t, dltMsg.Headers, 1)
	assert.Equal(t, "dlt-exception-message", dltMsg.Headers[0].Key)
	assert.Equal(t, handler.err.Error(), string(dltMsg.Headers[0].Value))
}

func TestConsumerAdapter_SkipMessageCommitsWithoutDlt(t *testing.T) {
	fetcher := &fakeFetcher{pending: []kafka.Message{poisonMessage()}}
	dlt := &fakeWriter{}
	handler := &failingHandler{err: ErrSkipMessage}

	adapter := NewConsumerAdapter(fetcher, handler, dlt, 3, time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	adapter.Start(ctx)

	assert.Eventually(t, func() bool {
		return fetcher.committedCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Payload irreparable: un intento, sin DLT, offset confirmado.
	assert.Equal(t, 1, handler.callCount())
	assert.Equal(t, 0, dlt.writtenCount())
}

func TestConsumerAdapter_DltWriteFailureStillCommits(t *testing.T) {
	fetcher := &fakeFetcher{pending: []kafka.Message{poisonMessage()}}
	dlt := &fakeWriter{writeErr: errors.New("broker down")}
	handler := &failingHandler{err: errors.New("boom")}

	adapter := NewConsumerAdapter(fetcher, handler, dlt, 2, time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	adapter.Start(ctx)

	// La DLT caída no puede atascar la partición: el offset avanza igual.
	assert.Eventually(t, func() bool {
		return fetcher.committedCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, dlt.writtenCount())
}

func TestTruncate_DoesNotSplitRunes(t *testing.T) {
	assert.Equal(t, "corto", truncate("corto", 500))

	// "é" ocupa dos bytes: cortar en medio debe retroceder al límite de runa.
	s := "café con leche"
	cut := truncate(s, 4)
	assert.Equal(t, "caf", cut)
	assert.True(t, utf8.ValidString(cut))

	long := ""
	for i := 0; i < 300; i++ {
		long += "ñ" // 2 bytes por runa, 600 en total
	}
	cut = truncate(long, 501)
	assert.Equal(t, 500, len(cut))
	assert.True(t, utf8.ValidString(cut))
}
