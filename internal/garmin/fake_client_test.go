package garmin

import (
	"context"
	"sync"
	"time"

	"haintegrations/internal/credential"
)

// fakeClient serves canned snapshots and can fail per domain. A pinned
// client keeps its own tokens, as if the remote had rotated them.
type fakeClient struct {
	mu       sync.Mutex
	tokens   credential.Credential
	pinned   bool
	failures map[CoordinatorType]error
	calls    map[CoordinatorType]int
	refresh  int

	core      CoreData
	activity  ActivityData
	training  TrainingData
	body      BodyData
	goals     GoalsData
	gear      GearData
	bp        BloodPressureData
	menstrual MenstrualData
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		failures: make(map[CoordinatorType]error),
		calls:    make(map[CoordinatorType]int),
	}
}

func (f *fakeClient) setFailure(typ CoordinatorType, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, typ)
		return
	}
	f.failures[typ] = err
}

func (f *fakeClient) pinTokens(c credential.Credential) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pinned = true
	f.tokens = c
}

func (f *fakeClient) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refresh
}

func (f *fakeClient) callCount(typ CoordinatorType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[typ]
}

func (f *fakeClient) record(typ CoordinatorType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[typ]++
	return f.failures[typ]
}

func (f *fakeClient) RefreshTokens(ctx context.Context, current credential.Credential) (credential.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh++
	next := current
	next.OAuth2Token = "refreshed"
	next.ExpiresAt = current.ExpiresAt.Add(24 * time.Hour)
	f.tokens = next
	return next, nil
}

func (f *fakeClient) UseTokens(c credential.Credential) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pinned {
		return
	}
	f.tokens = c
}

func (f *fakeClient) Tokens() credential.Credential {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokens
}

func (f *fakeClient) FetchCore(ctx context.Context, day time.Time) (CoreData, error) {
	return f.core, f.record(CoordinatorCore)
}

func (f *fakeClient) FetchActivity(ctx context.Context, day time.Time) (ActivityData, error) {
	return f.activity, f.record(CoordinatorActivity)
}

func (f *fakeClient) FetchTraining(ctx context.Context, day time.Time) (TrainingData, error) {
	return f.training, f.record(CoordinatorTraining)
}

func (f *fakeClient) FetchBody(ctx context.Context, day time.Time) (BodyData, error) {
	return f.body, f.record(CoordinatorBody)
}

func (f *fakeClient) FetchGoals(ctx context.Context) (GoalsData, error) {
	return f.goals, f.record(CoordinatorGoals)
}

func (f *fakeClient) FetchGear(ctx context.Context) (GearData, error) {
	return f.gear, f.record(CoordinatorGear)
}

func (f *fakeClient) FetchBloodPressure(ctx context.Context, day time.Time) (BloodPressureData, error) {
	return f.bp, f.record(CoordinatorBloodPressure)
}

func (f *fakeClient) FetchMenstrual(ctx context.Context, day time.Time) (MenstrualData, error) {
	d := f.menstrual
	d.Day = day
	return d, f.record(CoordinatorMenstrual)
}

var _ Client = (*fakeClient)(nil)
