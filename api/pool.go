package api

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/knight-systems/productivity-service/domain"
)

type publishJob struct {
	ev domain.CaptureEvent
}

var (
	once           sync.Once
	jobs           chan publishJob
	workerCount    int
	jobBuf         int
	publishTimeout time.Duration
	handoffTimeout time.Duration
	bg             = context.Background()
	globalSink     EventSink
	globalLog      *log.Logger
	workerWG       sync.WaitGroup
)

// shutdownEventPublisher stops worker goroutines and clears shared state. It is intended for tests.
func shutdownEventPublisher() {
	if jobs != nil {
		close(jobs)
		jobs = nil
	}

	workerWG.Wait()

	globalSink = nil
	globalLog = nil
	workerCount = 0
	jobBuf = 0
	publishTimeout = 0
	handoffTimeout = 0
	once = sync.Once{}
	workerWG = sync.WaitGroup{}
}

func initEventPublisher(sink EventSink, logger *log.Logger) {
	once.Do(func() {
		globalSink = sink
		if logger == nil {
			panic("Logger is not initialized")
		}
		globalLog = logger

		workerCount = envInt("PUBLISH_WORKERS", 8)
		jobBuf = envInt("PUBLISH_BUFFER", 1024)
		publishTimeout = envDur("PUBLISH_TIMEOUT", 60*time.Second)
		handoffTimeout = envDur("PUBLISH_HANDOFF_TIMEOUT", 15*time.Millisecond)

		jobs = make(chan publishJob, jobBuf)
		for i := 0; i < workerCount; i++ {
			workerWG.Add(1)
			go publishWorker(i, jobs)
		}
		globalLog.Infof("event publisher started, workers: %d, buffer: %d, timeout: %v, handoff: %v", workerCount, jobBuf, publishTimeout, handoffTimeout)
	})
}

func publishWorker(id int, jobCh <-chan publishJob) {
	defer workerWG.Done()
	for j := range jobCh {
		ctx, cancel := context.WithTimeout(bg, publishTimeout)
		err := globalSink.EnqueueCapture(ctx, j.ev)
		cancel()

		if err != nil {
			globalLog.Errorf("capture event publish failed, err: %v, id: %s, kind: %s, worker: %d", err, j.ev.ID, j.ev.Kind, id)
		}
	}
}

// emitCapture hands a capture event to the publisher pool. When the buffer
// is saturated the event is published inline on the calling goroutine, so
// an event is never dropped without a log line.
func emitCapture(ev domain.CaptureEvent) {
	if globalSink == nil {
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = nextTimestamp()
	}

	if tryEnqueueJob(publishJob{ev: ev}) {
		return
	}

	if globalLog != nil {
		globalLog.Warn("publish buffer saturated; publishing inline")
	}

	ctx, cancel := context.WithTimeout(bg, publishTimeout)
	err := globalSink.EnqueueCapture(ctx, ev)
	cancel()
	if err != nil && globalLog != nil {
		globalLog.Errorf("inline capture event publish failed, err: %v, id: %s, kind: %s", err, ev.ID, ev.Kind)
	}
}

func tryEnqueueJob(job publishJob) bool {
	if jobs == nil {
		return false
	}

	if ok, closed := trySendNonBlocking(jobs, job); closed {
		return false
	} else if ok {
		return true
	}

	if handoffTimeout <= 0 {
		return false
	}

	timer := time.NewTimer(handoffTimeout)
	defer timer.Stop()

	ok, closed := sendWithTimer(jobs, job, timer.C)
	if closed {
		return false
	}
	return ok
}

func trySendNonBlocking(ch chan publishJob, job publishJob) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- job:
		return true, false
	default:
		return false, false
	}
}

func sendWithTimer(ch chan publishJob, job publishJob, timer <-chan time.Time) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- job:
		return true, false
	case <-timer:
		return false, false
	}
}
