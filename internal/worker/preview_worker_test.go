package worker

import (
	"context"
	"testing"
)

type fakeRunner struct {
	ids []uint64
}

func (r *fakeRunner) Run(id uint64) { r.ids = append(r.ids, id) }

type fakeAck struct {
	acked, nacked, requeued bool
}

func (a *fakeAck) Ack(bool) error { a.acked = true; return nil }

func (a *fakeAck) Nack(_, requeue bool) error {
	a.nacked = true
	a.requeued = requeue
	return nil
}

func TestHandlePreviewMessage(t *testing.T) {
	runner := &fakeRunner{}
	ack := &fakeAck{}
	HandlePreviewMessage(context.Background(), newLimiter(0, 1), runner, []byte(`{"file_id":12}`), ack)
	if !ack.acked || len(runner.ids) != 1 || runner.ids[0] != 12 {
		t.Fatalf("expect run+ack, got ack=%+v ids=%v", ack, runner.ids)
	}
}

func TestHandlePreviewMessageDropsGarbage(t *testing.T) {
	runner := &fakeRunner{}
	for _, body := range []string{`nope`, `{}`} {
		ack := &fakeAck{}
		HandlePreviewMessage(context.Background(), nil, runner, []byte(body), ack)
		if !ack.acked || ack.nacked {
			t.Fatalf("invalid message %q should be acked, got %+v", body, ack)
		}
	}
	if len(runner.ids) != 0 {
		t.Fatalf("runner should not be called, got %v", runner.ids)
	}
}

func TestHandlePreviewMessageRequeuesOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	limiter := newLimiter(1, 1)
	limiter.Allow() // 耗尽令牌
	runner := &fakeRunner{}
	ack := &fakeAck{}
	HandlePreviewMessage(ctx, limiter, runner, []byte(`{"file_id":3}`), ack)
	if !ack.nacked || !ack.requeued || len(runner.ids) != 0 {
		t.Fatalf("expect requeue on cancelled context, got %+v ids=%v", ack, runner.ids)
	}
}
