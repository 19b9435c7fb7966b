package driver

import "github.com/nagyist/reactive-kafka/kafka"

// registryEntry is the requester bound to one requested partition.
type registryEntry struct {
	requester RequesterID
	reply     chan<- RequestResult
}

// registry tracks which requester is awaiting records for which partition,
// and which requesters are currently being watched for liveness. A
// partition appears at most once; a re-request overwrites the previous
// entry. Every method must be called from the mailbox goroutine only.
type registry struct {
	requests map[kafka.TopicPartition]registryEntry
	watched  map[RequesterID]struct{}
}

func newRegistry() *registry {
	return &registry{
		requests: make(map[kafka.TopicPartition]registryEntry),
		watched:  make(map[RequesterID]struct{}),
	}
}

// isWatched reports whether id is already in the watched set, that is, it
// has made a request since it was last purged (even if every one of those
// requests has since been served), so the caller knows whether a liveness
// watcher still needs spawning.
func (r *registry) isWatched(id RequesterID) bool {
	_, ok := r.watched[id]
	return ok
}

// add records partitions as requested by id, replying on reply once records
// arrive. Existing entries for any of these partitions are overwritten.
func (r *registry) add(id RequesterID, reply chan<- RequestResult, partitions []kafka.TopicPartition) {
	r.watched[id] = struct{}{}
	for _, p := range partitions {
		r.requests[p] = registryEntry{requester: id, reply: reply}
	}
}

// toFetch returns every partition with a live request.
func (r *registry) toFetch() []kafka.TopicPartition {
	out := make([]kafka.TopicPartition, 0, len(r.requests))
	for p := range r.requests {
		out = append(out, p)
	}
	return out
}

// remove drops the request entry for p, for example once records for it
// have been dispatched.
func (r *registry) remove(p kafka.TopicPartition) {
	delete(r.requests, p)
}

// purge drops every entry requested by id and stops watching it.
func (r *registry) purge(id RequesterID) {
	for p, e := range r.requests {
		if e.requester == id {
			delete(r.requests, p)
		}
	}
	delete(r.watched, id)
}

// groupByRequester groups records already known to belong to requested
// partitions by their requester's reply channel, concatenating each
// requester's partitions into one batch.
func (r *registry) groupByRequester(byPartition map[kafka.TopicPartition][]kafka.ConsumerRecord) map[chan<- RequestResult][]kafka.ConsumerRecord {
	grouped := make(map[chan<- RequestResult][]kafka.ConsumerRecord)
	for p, records := range byPartition {
		entry, ok := r.requests[p]
		if !ok {
			continue
		}
		grouped[entry.reply] = append(grouped[entry.reply], records...)
	}
	return grouped
}
