package pipeflow

import "fmt"

// SkipItem is returned by a node function to abandon processing of the
// current master key without logging an error. The dispatcher treats the
// item as done; no downstream node runs and nothing is saved for it.
type SkipItem struct {
	MasterKey any
	Message   string
}

// NewSkipItem builds a SkipItem for the given master key. Message defaults
// to "skip item" when empty.
func NewSkipItem(masterKey any, message string) *SkipItem {
	if message == "" {
		message = "skip item"
	}
	return &SkipItem{MasterKey: masterKey, Message: message}
}

func (s *SkipItem) Error() string {
	return fmt.Sprintf("item %v requested to skip its execution: %s", s.MasterKey, s.Message)
}

// StopPipeline is returned by a node function to terminate the whole
// pipeline after the current item finishes. It always wins over
// Config.ErrorTolerant and is re-surfaced by Pipeline.Run and System.Run.
type StopPipeline struct {
	MasterKey any
	Message   string
}

// NewStopPipeline builds a StopPipeline for the given master key. Message
// defaults to "stop pipeline execution" when empty.
func NewStopPipeline(masterKey any, message string) *StopPipeline {
	if message == "" {
		message = "stop pipeline execution"
	}
	return &StopPipeline{MasterKey: masterKey, Message: message}
}

func (s *StopPipeline) Error() string {
	return fmt.Sprintf("item %v requested to stop the pipeline execution: %s", s.MasterKey, s.Message)
}
