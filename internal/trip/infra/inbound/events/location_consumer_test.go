package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	tripDomain "github.com/davicafu/triplab/internal/trip/domain"
)

// fakeLocationReader entrega los mensajes precargados y cancela el contexto
// al agotarlos para que fetchLoop termine.
type fakeLocationReader struct {
	pending []kafka.Message
	cancel  context.CancelFunc
}

func (r *fakeLocationReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.pending) == 0 {
		r.cancel()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.pending[0]
	r.pending = r.pending[1:]
	return msg, nil
}

func (r *fakeLocationReader) Config() kafka.ReaderConfig {
	return kafka.ReaderConfig{Topic: "driver_location_events"}
}

type recordingForwarder struct {
	mu      sync.Mutex
	batches [][]tripDomain.DriverLocationUpdatedEvent
}

func (f *recordingForwarder) ForwardDriverLocationBulk(ctx context.Context, events []tripDomain.DriverLocationUpdatedEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]tripDomain.DriverLocationUpdatedEvent, len(events))
	copy(cp, events)
	f.batches = append(f.batches, cp)
}

func (f *recordingForwarder) snapshot() [][]tripDomain.DriverLocationUpdatedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]tripDomain.DriverLocationUpdatedEvent(nil), f.batches...)
}

func TestLocationConsumer_FlushesOnBatchSize(t *testing.T) {
	forwarder := &recordingForwarder{}
	c := NewLocationConsumer(nil, forwarder, nil, 3, time.Hour, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.flushLoop(ctx)

	for i := 0; i < 3; i++ {
		c.buf <- tripDomain.DriverLocationUpdatedEvent{DriverID: int64(i)}
	}

	assert.Eventually(t, func() bool {
		batches := forwarder.snapshot()
		return len(batches) == 1 && len(batches[0]) == 3
	}, time.Second, 10*time.Millisecond, "el lote completo debe difundirse sin esperar al ticker")
}

func TestLocationConsumer_FlushesOnTicker(t *testing.T) {
	forwarder := &recordingForwarder{}
	c := NewLocationConsumer(nil, forwarder, nil, 100, 20*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.flushLoop(ctx)

	c.buf <- tripDomain.DriverLocationUpdatedEvent{DriverID: 42}

	assert.Eventually(t, func() bool {
		batches := forwarder.snapshot()
		return len(batches) == 1 && len(batches[0]) == 1
	}, time.Second, 10*time.Millisecond, "un lote parcial debe salir al vencer el intervalo")
}

func TestLocationConsumer_DropsOldestUnderPressure(t *testing.T) {
	var msgs []kafka.Message
	for i := int64(1); i <= 4; i++ {
		msgs = append(msgs, kafka.Message{
			Value: envelope(t, "driver.location_updated", tripDomain.DriverLocationUpdatedEvent{DriverID: i}),
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &fakeLocationReader{pending: msgs, cancel: cancel}

	// batchSize 1 => búfer con hueco para 2 posiciones; sin flushLoop el
	// torrente de 4 mensajes fuerza el descarte de las más antiguas.
	c := NewLocationConsumer(reader, &recordingForwarder{}, nil, 1, time.Hour, zap.NewNop())
	c.fetchLoop(ctx)

	var buffered []int64
	for {
		select {
		case evt := <-c.buf:
			buffered = append(buffered, evt.DriverID)
			continue
		default:
		}
		break
	}
	assert.Equal(t, []int64{3, 4}, buffered, "sobreviven las posiciones más recientes")
}

func TestLocationConsumer_FetchSkipsGarbage(t *testing.T) {
	msgs := []kafka.Message{
		{Value: []byte("garbage")},
		{Value: envelope(t, "driver.location_updated", tripDomain.DriverLocationUpdatedEvent{DriverID: 7})},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &fakeLocationReader{pending: msgs, cancel: cancel}

	c := NewLocationConsumer(reader, &recordingForwarder{}, nil, 10, time.Hour, zap.NewNop())
	c.fetchLoop(ctx)

	evt := <-c.buf
	assert.Equal(t, int64(7), evt.DriverID)
	assert.Empty(t, c.buf, "el payload inválido se descarta sin encolar nada")
}

func TestLocationConsumer_DecodeRejectsGarbage(t *testing.T) {
	c := NewLocationConsumer(nil, &recordingForwarder{}, nil, 10, time.Hour, zap.NewNop())

	_, ok := c.decode([]byte("garbage"))
	assert.False(t, ok)

	_, ok = c.decode([]byte(`{"type":"x","data":"not-an-object"}`))
	assert.False(t, ok)
}
