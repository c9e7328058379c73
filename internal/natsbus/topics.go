package natsbus

import "fmt"

// Topic patterns for NATS pub/sub communication.

func TopicRunEvents(runID string) string {
	return fmt.Sprintf("events.run.%s", runID)
}

func TopicPipelineEvents(runID string) string {
	return fmt.Sprintf("events.pipeline.%s", runID)
}

const (
	TopicEventsAll      = "events.>"
	TopicEventsRun      = "events.run.*"
	TopicEventsPipeline = "events.pipeline.*"
)
