package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

func almostEqualFloat64(a, b, eps float64) bool {
	if a > b {
		return a-b <= eps
	}
	return b-a <= eps
}

// testSignature returns a valid 64 hex character generation signature that
// is distinct for each label.
func testSignature(label byte) string {
	return strings.Repeat(fmt.Sprintf("%02x", label), 32)
}

type pollResult struct {
	info MiningInfo
	err  error
}

// scriptedFetcher replays results in order and then repeats the last one.
type scriptedFetcher struct {
	mu      sync.Mutex
	results []pollResult
	calls   int
	block   chan struct{}
}

func (f *scriptedFetcher) FetchMiningInfo(ctx context.Context) (MiningInfo, error) {
	f.mu.Lock()
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return MiningInfo{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.results) == 0 {
		return MiningInfo{}, errors.New("no scripted result")
	}
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return r.info, r.err
}

func (f *scriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingDispatcher struct {
	mu    sync.Mutex
	cands []NonceCandidate
}

func (d *recordingDispatcher) Dispatch(c NonceCandidate) {
	d.mu.Lock()
	d.cands = append(d.cands, c)
	d.mu.Unlock()
}

func (d *recordingDispatcher) Dispatched() []NonceCandidate {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]NonceCandidate(nil), d.cands...)
}

type fatalCall struct {
	msg string
	err error
}

type fatalRecorder struct {
	mu    sync.Mutex
	calls []fatalCall
}

func (r *fatalRecorder) fatal(msg string, err error, _ ...any) {
	r.mu.Lock()
	r.calls = append(r.calls, fatalCall{msg: msg, err: err})
	r.mu.Unlock()
}

func (r *fatalRecorder) Calls() []fatalCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]fatalCall(nil), r.calls...)
}

type fakeSubmitter struct {
	mu      sync.Mutex
	calls   int
	results []error
	result  SubmitResult
}

func (s *fakeSubmitter) SubmitNonce(_ context.Context, cand NonceCandidate) (SubmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	var err error
	if len(s.results) > 0 {
		err = s.results[0]
		s.results = s.results[1:]
	}
	if err != nil {
		return SubmitResult{}, err
	}
	res := s.result
	if res.ServerDeadline == 0 {
		res.ServerDeadline = cand.AdjustedDeadline
	}
	return res, nil
}

func (s *fakeSubmitter) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
