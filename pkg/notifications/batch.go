package notifications

import (
	"slices"
	"time"
)

// BatchStatus is a batch's lifecycle position.
type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchProcessing BatchStatus = "processing"
	BatchSent       BatchStatus = "sent"
	BatchFailed     BatchStatus = "failed"
	// BatchMerged marks a batch whose members moved to MergedInto.
	BatchMerged BatchStatus = "merged"
)

// Batch groups batchable records that share a user and key until flushed
// as one summary notification.
type Batch struct {
	ID           string      `json:"id"`
	UserID       string      `json:"user_id"`
	BatchKey     string      `json:"batch_key"`
	Members      []Record    `json:"members"`
	MaxSize      int         `json:"max_size"`
	ScheduledFor time.Time   `json:"scheduled_for"`
	Status       BatchStatus `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
	FlushedAt    *time.Time  `json:"flushed_at,omitempty"`
	SummaryID    string      `json:"summary_id,omitempty"`
	MergedInto   string      `json:"merged_into,omitempty"`
}

// Full reports whether the batch reached its cap.
func (b Batch) Full() bool {
	return len(b.Members) >= b.MaxSize
}

// MemberIDs returns member record ids in insertion order.
func (b Batch) MemberIDs() []string {
	ids := make([]string, len(b.Members))
	for i, m := range b.Members {
		ids[i] = m.ID
	}
	return ids
}

// Clone returns a deep copy.
func (b Batch) Clone() Batch {
	c := b
	c.Members = make([]Record, len(b.Members))
	for i, m := range b.Members {
		c.Members[i] = m.Clone()
	}
	c.FlushedAt = cloneTime(b.FlushedAt)
	return c
}

// highestPriority returns the most urgent priority among members.
func (b Batch) highestPriority() Priority {
	best := PriorityLow
	for _, m := range b.Members {
		if m.Priority.Rank() > best.Rank() {
			best = m.Priority
		}
	}
	return best
}

// channelUnion returns member channels in first-seen order.
func (b Batch) channelUnion() []Channel {
	var out []Channel
	for _, m := range b.Members {
		for _, ch := range m.Channels {
			if !slices.Contains(out, ch) {
				out = append(out, ch)
			}
		}
	}
	return out
}
