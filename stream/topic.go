package stream

import (
	"fmt"
	"strings"
	"sync"

	"github.com/svetoslav0421/nocode-claude-ai/job"
)

// Topic names:
//
//	jobs          every job event
//	job:<jobID>   events for one job
//	type:<type>   events for one job type
const TopicJobs = "jobs"

// JobTopic returns the topic for a single job.
func JobTopic(jobID string) string { return "job:" + jobID }

// TypeTopic returns the topic for a job type.
func TypeTopic(t job.Type) string { return "type:" + string(t) }

// ValidateTopic checks a client-supplied topic name.
func ValidateTopic(topic string) error {
	if topic == TopicJobs {
		return nil
	}
	kind, key, ok := strings.Cut(topic, ":")
	if !ok || key == "" {
		return fmt.Errorf("stream: invalid topic %q", topic)
	}
	switch kind {
	case "job":
		return nil
	case "type":
		if !job.Type(key).Valid() {
			return fmt.Errorf("stream: unknown job type in topic %q", topic)
		}
		return nil
	default:
		return fmt.Errorf("stream: unknown topic kind %q", kind)
	}
}

// resolveTopics lists every topic evt is published on.
func resolveTopics(evt *Event) []string {
	topics := []string{TopicJobs}
	if evt.Topic != "" {
		topics = append(topics, evt.Topic)
	}
	if evt.jobType != "" {
		topics = append(topics, "type:"+evt.jobType)
	}
	return topics
}

// topicRegistry maps topics to their subscribers. Safe for concurrent use.
type topicRegistry struct {
	mu     sync.RWMutex
	topics map[string]map[string]*Subscriber
}

func newTopicRegistry() *topicRegistry {
	return &topicRegistry{topics: make(map[string]map[string]*Subscriber)}
}

func (tr *topicRegistry) subscribe(topic string, sub *Subscriber) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	subs, ok := tr.topics[topic]
	if !ok {
		subs = make(map[string]*Subscriber)
		tr.topics[topic] = subs
	}
	subs[sub.ID()] = sub
}

func (tr *topicRegistry) unsubscribeAll(subscriberID string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	for topic, subs := range tr.topics {
		delete(subs, subscriberID)
		if len(subs) == 0 {
			delete(tr.topics, topic)
		}
	}
}

// broadcast delivers evt once to every subscriber on any of topics and
// returns the delivered and dropped counts.
func (tr *topicRegistry) broadcast(topics []string, evt *Event) (delivered, dropped int) {
	tr.mu.RLock()
	seen := make(map[string]*Subscriber)
	for _, topic := range topics {
		for sid, sub := range tr.topics[topic] {
			seen[sid] = sub
		}
	}
	tr.mu.RUnlock()

	for _, sub := range seen {
		if sub.send(evt) {
			delivered++
		} else {
			dropped++
		}
	}
	return delivered, dropped
}

func (tr *topicRegistry) count() int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return len(tr.topics)
}
