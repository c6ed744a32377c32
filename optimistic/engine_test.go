package optimistic

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
)

func TestEngine_CommitWithServerValue(t *testing.T) {
	eng := NewEngine([]string{"a"}, nil)

	server := []string{"a", "b-server"}
	got, err := eng.Execute(context.Background(), []string{"a", "b-provisional"},
		func(ctx context.Context) (*[]string, error) {
			return &server, nil
		}, Options[[]string]{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !reflect.DeepEqual(got, server) {
		t.Errorf("Execute() = %v, want server value %v", got, server)
	}
	if !reflect.DeepEqual(eng.Value(), server) {
		t.Errorf("Value() = %v, want %v", eng.Value(), server)
	}
}

func TestEngine_CommitKeepsProvisionalOnNilResult(t *testing.T) {
	eng := NewEngine([]string{"a"}, nil)

	provisional := []string{"a", "b"}
	got, err := eng.Execute(context.Background(), provisional,
		func(ctx context.Context) (*[]string, error) {
			return nil, nil
		}, Options[[]string]{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !reflect.DeepEqual(got, provisional) {
		t.Errorf("Execute() = %v, want provisional %v", got, provisional)
	}
}

func TestEngine_RevertRestoresSnapshot(t *testing.T) {
	initial := []string{"a", "b"}
	eng := NewEngine(initial, nil)

	opErr := errors.New("network down")
	got, err := eng.Execute(context.Background(), []string{"a"},
		func(ctx context.Context) (*[]string, error) {
			return nil, opErr
		}, Options[[]string]{})
	if !errors.Is(err, opErr) {
		t.Fatalf("Execute() error = %v, want %v", err, opErr)
	}
	if !reflect.DeepEqual(got, initial) {
		t.Errorf("Execute() after revert = %v, want %v", got, initial)
	}
	if !errors.Is(eng.Err(), opErr) {
		t.Errorf("Err() = %v, want %v", eng.Err(), opErr)
	}

	eng.ResetErr()
	if eng.Err() != nil {
		t.Errorf("Err() after ResetErr = %v, want nil", eng.Err())
	}
}

func TestEngine_SnapshotDoesNotAliasProvisional(t *testing.T) {
	initial := []string{"a", "b", "c"}
	eng := NewEngine(initial, nil)

	opErr := errors.New("fail")
	// The provisional slice shares its backing array with the live value;
	// writing through it must not corrupt the rollback snapshot.
	provisional := eng.Value()[:2]
	_, err := eng.Execute(context.Background(), provisional,
		func(ctx context.Context) (*[]string, error) {
			provisional[0] = "mutated"
			return nil, opErr
		}, Options[[]string]{})
	if err == nil {
		t.Fatal("Execute() expected error")
	}
	if !reflect.DeepEqual(eng.Value(), []string{"a", "b", "c"}) {
		t.Errorf("rollback restored %v, want [a b c]", eng.Value())
	}
}

func TestEngine_ProvisionalVisibleBeforeOperation(t *testing.T) {
	var observed [][]string
	eng := NewEngine([]string{}, func(v []string) {
		observed = append(observed, v)
	})

	provisional := []string{"x"}
	_, err := eng.Execute(context.Background(), provisional,
		func(ctx context.Context) (*[]string, error) {
			// At this point the observer has already seen the provisional
			// value.
			if len(observed) == 0 || !reflect.DeepEqual(observed[len(observed)-1], provisional) {
				t.Error("provisional value was not published before the operation ran")
			}
			return nil, nil
		}, Options[[]string]{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
}

func TestEngine_CallbacksFireInOrder(t *testing.T) {
	eng := NewEngine(0, nil)

	var order []string
	_, err := eng.Execute(context.Background(), 1,
		func(ctx context.Context) (*int, error) {
			return nil, errors.New("fail")
		}, Options[int]{
			Rollback: func(original int, err error) int {
				order = append(order, "rollback-fn")
				return original
			},
			OnError: func(err error) {
				order = append(order, "on-error")
			},
			OnRollback: func(restored int) {
				order = append(order, "on-rollback")
			},
		})
	if err == nil {
		t.Fatal("Execute() expected error")
	}
	want := []string{"rollback-fn", "on-error", "on-rollback"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("callback order = %v, want %v", order, want)
	}
}

func TestEngine_OverlappingExecutionsRunFIFO(t *testing.T) {
	eng := NewEngine(0, nil)

	first := make(chan struct{})
	release := make(chan struct{})
	var order []int
	var mu sync.Mutex

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		eng.Execute(context.Background(), 1, func(ctx context.Context) (*int, error) {
			close(first)
			<-release
			mu.Lock()
			order = append(order, 1)
			mu.Unlock()
			return nil, nil
		}, Options[int]{})
	}()

	<-first
	go func() {
		defer wg.Done()
		eng.Execute(context.Background(), 2, func(ctx context.Context) (*int, error) {
			mu.Lock()
			order = append(order, 2)
			mu.Unlock()
			return nil, nil
		}, Options[int]{})
	}()

	close(release)
	wg.Wait()

	if !reflect.DeepEqual(order, []int{1, 2}) {
		t.Errorf("execution order = %v, want [1 2]", order)
	}
	if eng.Value() != 2 {
		t.Errorf("Value() = %d, want 2", eng.Value())
	}
}

func TestEngine_ResetIgnoredWhilePending(t *testing.T) {
	eng := NewEngine(0, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		eng.Execute(context.Background(), 1, func(ctx context.Context) (*int, error) {
			close(started)
			<-release
			return nil, nil
		}, Options[int]{})
		close(done)
	}()

	<-started
	eng.Reset(99)
	if v := eng.Value(); v != 1 {
		t.Errorf("Reset() during pending update changed value to %d", v)
	}
	close(release)
	<-done

	eng.Reset(99)
	if v := eng.Value(); v != 99 {
		t.Errorf("Reset() after settle = %d, want 99", v)
	}
}

func TestClone_DeepCopiesSlices(t *testing.T) {
	original := []string{"a", "b"}
	cloned, err := Clone(original)
	if err != nil {
		t.Fatalf("Clone() error = %v", err)
	}
	cloned[0] = "mutated"
	if original[0] != "a" {
		t.Error("Clone() aliased the original slice")
	}
}
