package progress

import (
	"context"
	"fmt"
	"time"
)

type exampleCountingSink struct {
	records int
}

func (s *exampleCountingSink) Consume(_ context.Context, batch []Event) error {
	for _, evt := range batch {
		if evt.Stage == StageUnitDone {
			s.records += evt.Records
		}
	}
	return nil
}

func (s *exampleCountingSink) Close(context.Context) error {
	return nil
}

// ExampleHub_Emit shows a sink totalling the publications added per unit.
func ExampleHub_Emit() {
	sink := &exampleCountingSink{}
	hub := NewHub(Config{BufferSize: 4, MaxBatchEvents: 1, MaxBatchWait: time.Second}, sink)

	hub.Emit(Event{
		RunID:      [16]byte{9},
		TS:         time.Unix(0, 0),
		Stage:      StageUnitDone,
		Conference: "icml.cc",
		Author:     "Jane Smith",
		Step:       1,
		Total:      1,
		Records:    2,
	})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("publications recorded: %d\n", sink.records)
	// Output:
	// publications recorded: 2
}
